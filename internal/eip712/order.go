package eip712

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"polygo/internal/apierr"
	"polygo/pkg/types"
)

const (
	OrderDomainName    = "Polymarket CTF Exchange"
	OrderDomainVersion = "1"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Wallet is the signing capability the order and auth signers need.
type Wallet interface {
	Address() common.Address
	// SignHash returns a 65-byte [R || S || V] signature with V in {27, 28}.
	SignHash(hash []byte) ([]byte, error)
}

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var orderTypes = apitypes.Types{
	"EIP712Domain": domainFields,
	"Order": {
		{Name: "salt", Type: "uint256"},
		{Name: "maker", Type: "address"},
		{Name: "signer", Type: "address"},
		{Name: "taker", Type: "address"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "makerAmount", Type: "uint256"},
		{Name: "takerAmount", Type: "uint256"},
		{Name: "expiration", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "feeRateBps", Type: "uint256"},
		{Name: "side", Type: "uint8"},
		{Name: "signatureType", Type: "uint8"},
	},
}

// OrderDomain returns the exchange domain for chainID and market type.
func OrderDomain(chainID uint64, negRisk bool) (apitypes.TypedDataDomain, error) {
	c, err := ContractsFor(chainID)
	if err != nil {
		return apitypes.TypedDataDomain{}, err
	}
	return apitypes.TypedDataDomain{
		Name:              OrderDomainName,
		Version:           OrderDomainVersion,
		ChainId:           ethmath.NewHexOrDecimal256(int64(chainID)),
		VerifyingContract: c.VerifyingContract(negRisk).Hex(),
	}, nil
}

// DomainSeparator hashes a domain with the four-field EIP712Domain type.
func DomainSeparator(domain apitypes.TypedDataDomain) ([]byte, error) {
	td := apitypes.TypedData{Types: apitypes.Types{"EIP712Domain": domainFields}, Domain: domain}
	sep, err := td.HashStruct("EIP712Domain", domain.Map())
	if err != nil {
		return nil, apierr.Crypto("domain", "hash domain", err)
	}
	return sep, nil
}

// OrderDigest computes keccak256(0x1901 || domainSeparator || structHash) for
// order on chainID. Unsupported chains are rejected before anything is hashed.
func OrderDigest(order types.Order, chainID uint64) ([]byte, error) {
	domain, err := OrderDomain(chainID, order.NegRisk)
	if err != nil {
		return nil, err
	}

	msg, err := orderMessage(order)
	if err != nil {
		return nil, err
	}

	td := apitypes.TypedData{
		Types:       orderTypes,
		PrimaryType: "Order",
		Domain:      domain,
		Message:     msg,
	}
	return digest(td)
}

// SignOrder signs order for chainID and returns the immutable signed copy.
func SignOrder(w Wallet, order types.Order, chainID uint64) (types.SignedOrder, error) {
	hash, err := OrderDigest(order, chainID)
	if err != nil {
		return types.SignedOrder{}, err
	}
	sig, err := w.SignHash(hash)
	if err != nil {
		return types.SignedOrder{}, apierr.Crypto("signature", "sign order", err)
	}
	return types.SignedOrder{Order: order, Signature: hexutil.Encode(sig)}, nil
}

func orderMessage(o types.Order) (apitypes.TypedDataMessage, error) {
	msg := apitypes.TypedDataMessage{}

	uints := []struct{ field, value string }{
		{"salt", o.Salt.String()},
		{"tokenId", o.TokenID},
		{"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount},
		{"expiration", o.Expiration},
		{"nonce", o.Nonce},
		{"feeRateBps", o.FeeRateBps},
	}
	for _, u := range uints {
		n, err := ParseUint256(u.field, u.value)
		if err != nil {
			return nil, err
		}
		msg[u.field] = n
	}

	addrs := []struct{ field, value string }{
		{"maker", o.Maker},
		{"signer", o.Signer},
		{"taker", o.Taker},
	}
	for _, a := range addrs {
		if !common.IsHexAddress(a.value) {
			return nil, apierr.Crypto(a.field, fmt.Sprintf("%q is not a hex address", a.value), nil)
		}
		msg[a.field] = common.HexToAddress(a.value).Hex()
	}

	if !o.Side.Valid() {
		return nil, apierr.Crypto("side", fmt.Sprintf("%q is not BUY or SELL", o.Side), nil)
	}
	msg["side"] = new(big.Int).SetUint64(uint64(o.Side.Code()))

	switch o.SignatureType {
	case types.SigEOA, types.SigProxy, types.SigGnosisSafe:
	default:
		return nil, apierr.Crypto("signatureType", fmt.Sprintf("%d is not 0, 1, or 2", o.SignatureType), nil)
	}
	msg["signatureType"] = big.NewInt(int64(o.SignatureType))

	return msg, nil
}

// ParseUint256 parses a non-negative base-10 integer that fits in 256 bits.
// Errors name the field.
func ParseUint256(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, apierr.Crypto(field, "empty value is not a non-negative base-10 integer", nil)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, apierr.Crypto(field, fmt.Sprintf("%q is not a non-negative base-10 integer", s), nil)
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Cmp(maxUint256) > 0 {
		return nil, apierr.Crypto(field, fmt.Sprintf("%q does not fit in uint256", s), nil)
	}
	return n, nil
}

func digest(td apitypes.TypedData) ([]byte, error) {
	sep, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, apierr.Crypto("domain", "hash domain", err)
	}
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, apierr.Crypto(td.PrimaryType, "hash struct", err)
	}

	raw := make([]byte, 0, 2+len(sep)+len(structHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, sep...)
	raw = append(raw, structHash...)
	return crypto.Keccak256(raw), nil
}
