// Package auth provides the two Polymarket authentication layers:
//
//   - L1 (EIP-712): a wallet signs a ClobAuth challenge, proving ownership of
//     the address. Used only to mint or derive L2 API keys.
//
//   - L2 (HMAC-SHA256): every trading request is signed with the API secret
//     over "timestamp + METHOD + path [+ body]".
//
// The secret material in this package never reaches a log line: Credentials
// and Signer redact themselves in every formatting path.
package auth

import (
	"log/slog"

	"polygo/pkg/types"
)

const redacted = "<redacted>"

// Credentials holds the L2 API key triplet returned by /auth/derive-api-key.
type Credentials struct {
	ApiKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// Complete reports whether all three fields are set.
func (c Credentials) Complete() bool {
	return c.ApiKey != "" && c.Secret != "" && c.Passphrase != ""
}

// WSAuth returns the credentials in the shape the user WebSocket channel expects.
func (c Credentials) WSAuth() *types.WSAuth {
	return &types.WSAuth{
		ApiKey:     c.ApiKey,
		Secret:     c.Secret,
		Passphrase: c.Passphrase,
	}
}

func (c Credentials) String() string {
	return "Credentials{ApiKey:" + redacted + " Secret:" + redacted + " Passphrase:" + redacted + "}"
}

func (c Credentials) GoString() string {
	return c.String()
}

// LogValue implements slog.LogValuer.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("api_key", redacted),
		slog.String("secret", redacted),
		slog.String("passphrase", redacted),
	)
}
