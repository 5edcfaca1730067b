package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"polygo/internal/apierr"
)

// Request describes one API call. Path is relative to the client's base URL,
// starts with "/" and carries no query string; Query is appended separately
// and is not part of the L2 signature.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any // nil, []byte, json.RawMessage or any JSON-encodable value
	Auth   AuthMode
}

// Send executes req and decodes a 2xx JSON body into T. An empty 2xx body
// yields the zero T.
func Send[T any](ctx context.Context, c *HTTPClient, req Request) (T, error) {
	var out T

	raw, err := c.Do(ctx, req)
	if err != nil {
		return out, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Error("decode response",
			"method", req.Method,
			"path", req.Path,
			"error", err,
			"body", truncateForLog(raw),
		)
		return out, apierr.Serialization(fmt.Sprintf("decode %s %s response", req.Method, req.Path), err)
	}
	return out, nil
}

// Do runs the request loop and returns the raw 2xx body.
func (c *HTTPClient) Do(ctx context.Context, req Request) ([]byte, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	if !strings.HasPrefix(req.Path, "/") || strings.ContainsRune(req.Path, '?') {
		return nil, apierr.InvalidField("path", req.Path, "must start with / and carry no query string")
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	log := c.logger.With("request_id", uuid.NewString(), "method", method, "path", req.Path)
	start := time.Now()
	defer func() {
		requestLatency.WithLabelValues(c.surface, method).Observe(time.Since(start).Seconds())
	}()

	for attempt := uint32(0); ; attempt++ {
		if c.limiter != nil {
			waitStart := time.Now()
			if err := c.limiter.Acquire(ctx, req.Path, method); err != nil {
				return nil, err
			}
			rateLimitWait.WithLabelValues(c.surface).Observe(time.Since(waitStart).Seconds())
		}

		headers, err := c.headers(req.Auth, method, req.Path, string(body))
		if err != nil {
			return nil, err
		}

		r := c.http.R().SetContext(ctx).SetHeaders(headers)
		if len(req.Query) > 0 {
			r.SetQueryParamsFromValues(req.Query)
		}
		if body != nil {
			r.SetBody(body)
		}

		resp, err := r.Execute(method, req.Path)
		if err != nil {
			requestsTotal.WithLabelValues(c.surface, method, "error").Inc()
			log.Warn("request failed", "attempt", attempt, "error", err)
			return nil, apierr.Network(err)
		}

		status := resp.StatusCode()
		if status >= 200 && status < 300 {
			requestsTotal.WithLabelValues(c.surface, method, strconv.Itoa(status)).Inc()
			log.Debug("request ok", "status", status, "attempt", attempt)
			return resp.Body(), nil
		}

		if delay, ok := c.retry.ShouldRetry(status, attempt, resp.Header().Get("Retry-After")); ok {
			retriesTotal.WithLabelValues(c.surface).Inc()
			log.Warn("rate limited, retrying",
				"attempt", attempt+1,
				"max_retries", c.retry.MaxRetries,
				"delay_ms", delay.Milliseconds(),
			)
			if err := sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("retry wait: %w", err)
			}
			continue
		}

		requestsTotal.WithLabelValues(c.surface, method, strconv.Itoa(status)).Inc()
		apiErr := apierr.FromResponse(status, resp.Body())
		log.Error("request rejected", "status", status, "attempt", attempt, "message", apiErr.Message)
		return nil, apiErr
	}
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, apierr.Serialization("encode request body", err)
		}
		return raw, nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
