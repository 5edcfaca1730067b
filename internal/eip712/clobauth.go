package eip712

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"polygo/internal/apierr"
)

const (
	ClobAuthDomainName    = "ClobAuthDomain"
	ClobAuthDomainVersion = "1"

	attestation = "This message attests that I control the given wallet"
)

var clobAuthTypes = apitypes.Types{
	"EIP712Domain": domainFields,
	"ClobAuth": {
		{Name: "message", Type: "string"},
	},
}

// ClobAuthDomain returns the L1 auth domain. Its verifying contract is the
// zero address.
func ClobAuthDomain(chainID uint64) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              ClobAuthDomainName,
		Version:           ClobAuthDomainVersion,
		ChainId:           ethmath.NewHexOrDecimal256(int64(chainID)),
		VerifyingContract: common.Address{}.Hex(),
	}
}

// ClobAuthMessage is the attestation text signed for L1 auth.
func ClobAuthMessage(timestamp int64, nonce uint32) string {
	return fmt.Sprintf("%s\ntimestamp: %d\nnonce: %d", attestation, timestamp, nonce)
}

// ClobAuthDigest computes the EIP-712 digest of the ClobAuth challenge.
func ClobAuthDigest(chainID uint64, timestamp int64, nonce uint32) ([]byte, error) {
	td := apitypes.TypedData{
		Types:       clobAuthTypes,
		PrimaryType: "ClobAuth",
		Domain:      ClobAuthDomain(chainID),
		Message: apitypes.TypedDataMessage{
			"message": ClobAuthMessage(timestamp, nonce),
		},
	}
	return digest(td)
}

// SignClobAuth signs the L1 challenge and returns a 0x-prefixed hex signature.
func SignClobAuth(w Wallet, chainID uint64, timestamp int64, nonce uint32) (string, error) {
	hash, err := ClobAuthDigest(chainID, timestamp, nonce)
	if err != nil {
		return "", err
	}
	sig, err := w.SignHash(hash)
	if err != nil {
		return "", apierr.Crypto("signature", "sign clob auth", err)
	}
	return hexutil.Encode(sig), nil
}
