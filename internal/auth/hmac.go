package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"strings"
)

// Encoding selects the base64 alphabet of an HMAC signature.
type Encoding int

const (
	// EncodingURLSafe is standard base64 with + and / replaced by - and _.
	// Padding is kept. This is what the CLOB expects.
	EncodingURLSafe Encoding = iota
	// EncodingStandard is plain standard base64.
	EncodingStandard
)

// secretDecoders are tried in order; the first successful decode wins and
// the raw string bytes are used if none succeeds.
var secretDecoders = []*base64.Encoding{
	base64.RawURLEncoding,
	base64.URLEncoding,
	base64.StdEncoding,
}

// Signer computes L2 HMAC-SHA256 signatures. It is immutable and safe to
// share across goroutines.
type Signer struct {
	secret []byte
}

// NewSigner ingests an API secret issued in any of the supported encodings.
func NewSigner(secret string) *Signer {
	return &Signer{secret: decodeSecret(secret)}
}

func decodeSecret(secret string) []byte {
	for _, dec := range secretDecoders {
		if b, err := dec.DecodeString(secret); err == nil {
			return b
		}
	}
	return []byte(secret)
}

// CreateMessage builds the canonical L2 message: timestamp + METHOD + path + body.
func CreateMessage(timestamp, method, path, body string) string {
	return timestamp + method + path + body
}

// Sign returns the URL-safe signature of message.
func (s *Signer) Sign(message string) string {
	return s.SignWith(message, EncodingURLSafe)
}

// SignWith returns the signature of message in the requested encoding.
func (s *Signer) SignWith(message string, enc Encoding) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if enc == EncodingURLSafe {
		sig = strings.NewReplacer("+", "-", "/", "_").Replace(sig)
	}
	return sig
}

func (s Signer) String() string {
	return "Signer{secret:" + redacted + "}"
}

func (s Signer) GoString() string {
	return s.String()
}

// LogValue implements slog.LogValuer.
func (s Signer) LogValue() slog.Value {
	return slog.GroupValue(slog.String("secret", redacted))
}
