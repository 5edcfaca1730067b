package auth

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PrivateKeyWallet signs digests with an in-memory secp256k1 key.
type PrivateKeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewPrivateKeyWallet parses a hex private key, with or without 0x prefix.
func NewPrivateKeyWallet(hexKey string) (*PrivateKeyWallet, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")

	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return WalletFromKey(key), nil
}

// WalletFromKey wraps an existing key.
func WalletFromKey(key *ecdsa.PrivateKey) *PrivateKeyWallet {
	return &PrivateKeyWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the signer's Ethereum address.
func (w *PrivateKeyWallet) Address() common.Address {
	return w.address
}

// SignHash signs a 32-byte digest and adjusts V to 27/28.
func (w *PrivateKeyWallet) SignHash(hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(hash, w.key)
	if err != nil {
		return nil, fmt.Errorf("sign hash: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

func (w *PrivateKeyWallet) String() string {
	return "PrivateKeyWallet{address:" + w.address.Hex() + " key:" + redacted + "}"
}

func (w *PrivateKeyWallet) GoString() string {
	return w.String()
}
