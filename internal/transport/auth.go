package transport

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"polygo/internal/apierr"
	"polygo/internal/auth"
	"polygo/internal/eip712"
)

// AuthMode selects how a request is authenticated. The set is closed:
// NoAuth, L1Auth and L2Auth.
type AuthMode interface {
	authMode()
}

// NoAuth sends the request without credentials.
type NoAuth struct{}

// L1Auth signs the ClobAuth challenge with a wallet. It is only used to create
// or derive API keys. A zero Timestamp means "now", taken on every attempt.
type L1Auth struct {
	Wallet    eip712.Wallet
	ChainID   uint64
	Nonce     uint32
	Timestamp int64
}

// L2Auth signs each request with the API secret.
type L2Auth struct {
	Address     common.Address
	Credentials auth.Credentials
	Signer      *auth.Signer
}

func (NoAuth) authMode() {}
func (L1Auth) authMode() {}
func (L2Auth) authMode() {}

// headers derives the auth headers for one attempt.
func (c *HTTPClient) headers(mode AuthMode, method, path, body string) (map[string]string, error) {
	switch m := mode.(type) {
	case nil, NoAuth:
		return nil, nil
	case L1Auth:
		if m.Wallet == nil {
			return nil, &apierr.Error{Kind: apierr.KindAuthentication, Message: "l1 auth requires a wallet"}
		}
		ts := m.Timestamp
		if ts == 0 {
			ts = c.now().Unix()
		}
		return auth.L1Headers(m.Wallet, m.ChainID, ts, m.Nonce)
	case L2Auth:
		if m.Signer == nil || m.Credentials.ApiKey == "" || m.Credentials.Passphrase == "" {
			return nil, &apierr.Error{Kind: apierr.KindAuthentication, Message: "l2 auth requires api key, passphrase and signer"}
		}
		return auth.L2Headers(m.Address, m.Credentials, m.Signer, c.now().Unix(), method, path, body), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %T", mode)
	}
}
