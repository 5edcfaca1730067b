package transport

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polygo/internal/apierr"
	"polygo/internal/auth"
	"polygo/internal/eip712"
	"polygo/internal/ratelimit"
	"polygo/internal/retry"
)

const (
	testKey    = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testSecret = "cG9seWdvLXRlc3Qtc2VjcmV0LTAxMjM0NTY3ODlhYmNkZWY="
	rawSecret  = "polygo-test-secret-0123456789abcdef"
)

func fastRetry(n uint32) *retry.Config {
	return &retry.Config{MaxRetries: n, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func newTestClient(t *testing.T, srv *httptest.Server, opts Options) *HTTPClient {
	t.Helper()
	opts.BaseURL = srv.URL
	if opts.Retry == nil {
		opts.Retry = fastRetry(3)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c, err := NewHTTPClient(opts)
	require.NoError(t, err)
	return c
}

type okResponse struct {
	OK    bool   `json:"ok"`
	Value string `json:"value"`
}

func TestNewHTTPClientValidatesBaseURL(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"", "clob.polymarket.com", "ftp://x", "http://"} {
		_, err := NewHTTPClient(Options{BaseURL: u})
		assert.ErrorIs(t, err, apierr.ErrValidation, "base url %q", u)
	}

	c, err := NewHTTPClient(Options{BaseURL: "https://clob.polymarket.com/", Limiter: ratelimit.CLOB()})
	require.NoError(t, err)
	assert.Equal(t, "https://clob.polymarket.com", c.BaseURL())
	assert.Equal(t, "clob", c.Surface())
	assert.Equal(t, retry.DefaultConfig().MaxRetries, c.retry.MaxRetries)
}

func TestSendDecodesSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "123", r.URL.Query().Get("token_id"))
		for k := range r.Header {
			assert.False(t, strings.HasPrefix(strings.ToUpper(k), "POLY_"), "unexpected auth header %s", k)
		}
		_, _ = io.WriteString(w, `{"ok":true,"value":"x"}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, Options{})

	got, err := Send[okResponse](context.Background(), c, Request{
		Method: http.MethodGet,
		Path:   "/book",
		Query:  url.Values{"token_id": {"123"}},
		Auth:   NoAuth{},
	})
	require.NoError(t, err)
	assert.Equal(t, okResponse{OK: true, Value: "x"}, got)
}

func TestSendEmptyBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, Options{})

	got, err := Send[okResponse](context.Background(), c, Request{Method: http.MethodDelete, Path: "/order"})
	require.NoError(t, err)
	assert.Equal(t, okResponse{}, got)
}

func TestSendRetriesUntilExhausted(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"slow down"}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, Options{Retry: fastRetry(3)})

	_, err := Send[okResponse](context.Background(), c, Request{Method: http.MethodGet, Path: "/price"})
	require.Error(t, err)

	assert.Equal(t, int32(4), attempts.Load(), "1 initial + 3 retries")
	assert.ErrorIs(t, err, apierr.ErrRateLimit)

	var e *apierr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusTooManyRequests, e.Status)
	assert.Equal(t, "slow down", e.Message)
}

func TestSendZeroRetries(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, Options{Retry: fastRetry(0)})

	_, err := Send[okResponse](context.Background(), c, Request{Path: "/price"})
	assert.ErrorIs(t, err, apierr.ErrRateLimit)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestSendHonoursRetryAfter(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "0.02")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, Options{Retry: &retry.Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Second}})

	start := time.Now()
	got, err := Send[okResponse](context.Background(), c, Request{Path: "/price"})
	require.NoError(t, err)
	assert.True(t, got.OK)
	assert.Equal(t, int32(2), attempts.Load())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSendMapsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		kind    apierr.Kind
		message string
	}{
		{"bad request", http.StatusBadRequest, `{"error":"invalid tick"}`, apierr.KindValidation, "invalid tick"},
		{"unauthorized", http.StatusUnauthorized, `{"error":"Unauthorized/Invalid api key"}`, apierr.KindAuthentication, "Unauthorized/Invalid api key"},
		{"forbidden", http.StatusForbidden, `{"message":"geo blocked"}`, apierr.KindAuthentication, "geo blocked"},
		{"timeout", http.StatusRequestTimeout, `timeout`, apierr.KindTimeout, "timeout"},
		{"not found", http.StatusNotFound, `{"message":"market not found"}`, apierr.KindAPI, "market not found"},
		{"server error raw body", http.StatusInternalServerError, `upstream exploded`, apierr.KindAPI, "upstream exploded"},
		{"json without message", http.StatusBadGateway, `{"code":7}`, apierr.KindAPI, `{"code":7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()
			c := newTestClient(t, srv, Options{})

			_, err := Send[okResponse](context.Background(), c, Request{Path: "/markets"})
			require.Error(t, err)

			var e *apierr.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, int32(1), attempts.Load(), "only 429 is retried")
		})
	}
}

func TestSendDecodeFailureIsSerialization(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>maintenance</html>`)
	}))
	defer srv.Close()

	var logs syncBuffer
	c := newTestClient(t, srv, Options{Logger: slog.New(slog.NewTextHandler(&logs, nil))})

	_, err := Send[okResponse](context.Background(), c, Request{Path: "/book"})
	assert.ErrorIs(t, err, apierr.ErrSerialization)
	assert.Contains(t, logs.String(), "maintenance", "raw body is logged")
}

func TestSendNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv, Options{})
	srv.Close()

	_, err := Send[okResponse](context.Background(), c, Request{Path: "/time"})
	assert.ErrorIs(t, err, apierr.ErrNetwork)
}

func TestSendCancelledDuringRetryWait(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, Options{Retry: &retry.Config{MaxRetries: 3, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Send[okResponse](ctx, c, Request{Path: "/price"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestSendWaitsForRateLimiter(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	limiter := ratelimit.New("test", ratelimit.Per(1, time.Hour))
	c := newTestClient(t, srv, Options{Limiter: limiter})

	_, err := Send[okResponse](context.Background(), c, Request{Path: "/book"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = Send[okResponse](ctx, c, Request{Path: "/book"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "rate limit"))
	assert.Equal(t, int32(1), attempts.Load(), "second request never left the process")
}

func TestSendRejectsMalformedPath(t *testing.T) {
	t.Parallel()
	c, err := NewHTTPClient(Options{BaseURL: "https://clob.polymarket.com"})
	require.NoError(t, err)

	for _, p := range []string{"book", "/book?token_id=1"} {
		_, err := Send[okResponse](context.Background(), c, Request{Path: p})
		assert.ErrorIs(t, err, apierr.ErrValidation, p)
	}
}

// ————————————————————————————————————————————————————————————————————————
// Auth
// ————————————————————————————————————————————————————————————————————————

func expectedSig(ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(rawSecret))
	mac.Write([]byte(ts + method + path + body))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return strings.NewReplacer("+", "-", "/", "_").Replace(sig)
}

type seenRequest struct {
	header http.Header
	body   string
	query  string
}

func TestSendL2SignsEveryAttempt(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		seen []seenRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, seenRequest{header: r.Header.Clone(), body: string(b), query: r.URL.RawQuery})
		n := len(seen)
		mu.Unlock()

		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, Options{})

	var clock atomic.Int64
	clock.Store(1700000000)
	c.now = func() time.Time { return time.Unix(clock.Add(1), 0) }

	creds := auth.Credentials{ApiKey: "key-1", Secret: testSecret, Passphrase: "pass-1"}
	addr := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")

	_, err := Send[okResponse](context.Background(), c, Request{
		Method: http.MethodPost,
		Path:   "/order",
		Query:  url.Values{"dry": {"1"}},
		Body:   map[string]any{"orderType": "GTC", "owner": "key-1"},
		Auth:   L2Auth{Address: addr, Credentials: creds, Signer: auth.NewSigner(creds.Secret)},
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)

	wantBody := `{"orderType":"GTC","owner":"key-1"}`
	for _, s := range seen {
		assert.Equal(t, wantBody, s.body, "body is encoded once and reused")
		assert.Equal(t, "dry=1", s.query)

		ts := s.header.Get(auth.HeaderTimestamp)
		assert.Equal(t, addr.Hex(), s.header.Get(auth.HeaderAddress))
		assert.Equal(t, "key-1", s.header.Get(auth.HeaderAPIKey))
		assert.Equal(t, "pass-1", s.header.Get(auth.HeaderPassphrase))
		assert.Equal(t, expectedSig(ts, "POST", "/order", wantBody), s.header.Get(auth.HeaderSignature))
		assert.Empty(t, s.header.Get(auth.HeaderNonce))
	}
	assert.NotEqual(t,
		seen[0].header.Get(auth.HeaderTimestamp),
		seen[1].header.Get(auth.HeaderTimestamp),
		"retries are re-signed with a fresh timestamp")
}

func TestSendL2RequiresCredentials(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	}))
	defer srv.Close()
	c := newTestClient(t, srv, Options{})

	_, err := Send[okResponse](context.Background(), c, Request{Path: "/data/orders", Auth: L2Auth{}})
	assert.ErrorIs(t, err, apierr.ErrAuthentication)
}

func TestSendL1Headers(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		headers []http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Clone())
		n := len(headers)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"apiKey":"k","secret":"s","passphrase":"p"}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, Options{})

	var clock atomic.Int64
	clock.Store(1700000000)
	c.now = func() time.Time { return time.Unix(clock.Add(1), 0) }

	w, err := auth.NewPrivateKeyWallet(testKey)
	require.NoError(t, err)

	creds, err := Send[auth.Credentials](context.Background(), c, Request{
		Method: http.MethodGet,
		Path:   "/auth/derive-api-key",
		Auth:   L1Auth{Wallet: w, ChainID: eip712.ChainPolygon, Nonce: 9},
	})
	require.NoError(t, err)
	assert.Equal(t, "k", creds.ApiKey)
	require.Len(t, headers, 2)

	for i, h := range headers {
		assert.Equal(t, w.Address().Hex(), h.Get(auth.HeaderAddress))
		assert.Equal(t, "9", h.Get(auth.HeaderNonce))
		assert.Len(t, h.Get(auth.HeaderSignature), 132)
		assert.Empty(t, h.Get(auth.HeaderAPIKey))
		assert.Equal(t, []string{"1700000001", "1700000002"}[i], h.Get(auth.HeaderTimestamp))
	}
}

func TestSendL1FixedTimestamp(t *testing.T) {
	t.Parallel()

	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get(auth.HeaderTimestamp))
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, Options{})

	w, err := auth.NewPrivateKeyWallet(testKey)
	require.NoError(t, err)

	_, err = Send[auth.Credentials](context.Background(), c, Request{
		Method: http.MethodPost,
		Path:   "/auth/api-key",
		Auth:   L1Auth{Wallet: w, ChainID: eip712.ChainAmoy, Timestamp: 1234},
	})
	require.NoError(t, err)
	assert.Equal(t, "1234", got.Load())
}

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	short := []byte("short")
	assert.Equal(t, "short", truncateForLog(short))

	long := bytes.Repeat([]byte("a"), logBodyMax+10)
	out := truncateForLog(long)
	assert.True(t, strings.HasSuffix(out, "... [truncated]"))
	assert.Len(t, out, logBodyMax+len("... [truncated]"))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
