// Package apierr is the error taxonomy shared by every stage of the request
// pipeline: local validation, signing, transport and API responses.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an Error.
type Kind string

const (
	KindAuthentication Kind = "AUTHENTICATION"
	KindValidation     Kind = "VALIDATION"
	KindRateLimit      Kind = "RATE_LIMIT"
	KindTimeout        Kind = "TIMEOUT"
	KindNetwork        Kind = "NETWORK"
	KindSerialization  Kind = "SERIALIZATION"
	KindCrypto         Kind = "CRYPTO"
	KindAPI            Kind = "API"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrRateLimit      = &Error{Kind: KindRateLimit}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrSerialization  = &Error{Kind: KindSerialization}
	ErrCrypto         = &Error{Kind: KindCrypto}
	ErrAPI            = &Error{Kind: KindAPI}
)

// Error is the standard error returned by the pipeline.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 for local failures
	Message string // server message or local description
	Field   string // offending field for validation/crypto failures
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(e.Kind)))
	b.WriteString(" error")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %s", e.Field)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Status == 0 && t.Message == "" && t.Field == "" && t.Cause == nil
}

// Retryable reports whether the error is transient at the pipeline level.
// Only throttling qualifies; everything else is surfaced immediately.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimit
}

// HTTPStatus maps the kind back onto a status code for callers that proxy errors.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindValidation, KindCrypto:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Validation returns a local precondition failure.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// InvalidField returns a validation failure naming the offending field and value.
func InvalidField(field string, value any, reason string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf("%v: %s", value, reason)}
}

// Crypto returns a signing/hashing/parsing failure.
func Crypto(field, msg string, cause error) *Error {
	return &Error{Kind: KindCrypto, Field: field, Message: msg, Cause: cause}
}

// Network wraps a transport failure.
func Network(cause error) *Error {
	return &Error{Kind: KindNetwork, Message: "request failed", Cause: cause}
}

// Serialization wraps an encode/decode failure.
func Serialization(msg string, cause error) *Error {
	return &Error{Kind: KindSerialization, Message: msg, Cause: cause}
}

// FromResponse maps a non-2xx response onto the taxonomy. The message is taken
// from the JSON "error" field, then "message", then the raw body.
func FromResponse(status int, body []byte) *Error {
	msg := extractMessage(body)

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Kind: KindAuthentication, Status: status, Message: msg}
	case http.StatusBadRequest:
		return &Error{Kind: KindValidation, Status: status, Message: msg}
	case http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, Status: status, Message: msg}
	case http.StatusRequestTimeout:
		return &Error{Kind: KindTimeout, Status: status, Message: msg}
	default:
		return &Error{Kind: KindAPI, Status: status, Message: msg}
	}
}

func extractMessage(body []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, key := range []string{"error", "message"} {
			raw, ok := obj[key]
			if !ok {
				continue
			}
			var s string
			if json.Unmarshal(raw, &s) == nil {
				return s
			}
		}
	}
	return string(body)
}
