// Package transport is the authenticated, rate-limited request executor shared
// by every Polymarket surface client.
//
// A request goes through a bounded loop:
//
//	build -> wait for rate limit -> sign + send -> success
//	                                            -> 429: sleep, loop again
//	                                            -> other failure: return
//
// The body is encoded once; auth headers are rebuilt on every pass so a retried
// request never replays a stale timestamp.
package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"polygo/internal/apierr"
	"polygo/internal/ratelimit"
	"polygo/internal/retry"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultPoolSize = 10

	// logBodyMax caps how much of a response body reaches a log line.
	logBodyMax = 512
)

// Options configure an HTTPClient. Zero values fall back to defaults.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	PoolSize  int           // idle connections kept per host
	Retry     *retry.Config // nil uses retry.DefaultConfig
	Limiter   *ratelimit.Limiter
	UserAgent string
	Logger    *slog.Logger
}

// HTTPClient sends requests for one API surface. It is immutable after
// construction and safe for concurrent use; the limiter it holds is the only
// shared mutable state.
type HTTPClient struct {
	http    *resty.Client
	baseURL string
	surface string
	retry   retry.Config
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewHTTPClient validates opts and builds the client. Resty's own retry is
// left disabled; throttling is handled by Send.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apierr.InvalidField("baseURL", opts.BaseURL, "must be an absolute http(s) URL")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pool := opts.PoolSize
	if pool <= 0 {
		pool = DefaultPoolSize
	}
	rc := retry.DefaultConfig()
	if opts.Retry != nil {
		rc = *opts.Retry
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	surface := u.Host
	if opts.Limiter != nil {
		surface = opts.Limiter.Name()
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = pool

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetTransport(tr).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		httpClient.SetHeader("User-Agent", opts.UserAgent)
	}

	return &HTTPClient{
		http:    httpClient,
		baseURL: baseURL,
		surface: surface,
		retry:   rc,
		limiter: opts.Limiter,
		logger:  logger.With("component", "transport", "surface", surface),
		now:     time.Now,
	}, nil
}

// BaseURL returns the normalised base URL, without a trailing slash.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Surface names the API surface in logs and metrics.
func (c *HTTPClient) Surface() string {
	return c.surface
}

// Limiter returns the shared limiter, or nil if requests are not throttled.
func (c *HTTPClient) Limiter() *ratelimit.Limiter {
	return c.limiter
}

func truncateForLog(b []byte) string {
	if len(b) <= logBodyMax {
		return string(b)
	}
	return fmt.Sprintf("%s... [truncated]", b[:logBodyMax])
}
