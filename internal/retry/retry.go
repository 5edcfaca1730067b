// Package retry decides whether a throttled response is retried and how long
// to wait before the next attempt.
package retry

import (
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

const maxShift = 10

// Config bounds the retry loop. It is a plain value passed at client-build time.
type Config struct {
	MaxRetries     uint32
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// jitter returns a factor in [0.75, 1.25]; nil uses math/rand.
	jitter func() float64
}

// DefaultConfig is 3 retries starting at 500ms, capped at 10s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Backoff returns the jittered delay before retry number attempt+1:
// initial * 2^min(attempt,10), capped at MaxBackoff, scaled by a uniform
// factor in [0.75, 1.25] and never below 1ms.
func (c Config) Backoff(attempt uint32) time.Duration {
	capped := c.baseBackoff(attempt)

	jitter := c.jitter
	if jitter == nil {
		jitter = defaultJitter
	}
	d := time.Duration(float64(capped) * jitter())
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// baseBackoff is the deterministic, pre-jitter part of Backoff.
func (c Config) baseBackoff(attempt uint32) time.Duration {
	shift := min(attempt, maxShift)
	base := c.InitialBackoff * time.Duration(uint64(1)<<shift)
	if base > c.MaxBackoff || base < 0 {
		return c.MaxBackoff
	}
	return base
}

// ShouldRetry reports whether a response should be retried and after what
// delay. Only 429 responses are retried, and only while attempt < MaxRetries.
// A numeric Retry-After header (seconds, possibly fractional) is honoured
// verbatim up to MaxBackoff; anything else falls back to Backoff.
func (c Config) ShouldRetry(status int, attempt uint32, retryAfter string) (time.Duration, bool) {
	if status != http.StatusTooManyRequests || attempt >= c.MaxRetries {
		return 0, false
	}
	if secs, ok := parseRetryAfter(retryAfter); ok {
		ms := math.Floor(secs * 1000)
		if ms*float64(time.Millisecond) >= float64(c.MaxBackoff) {
			return c.MaxBackoff, true
		}
		return time.Duration(ms) * time.Millisecond, true
	}
	return c.Backoff(attempt), true
}

func parseRetryAfter(v string) (float64, bool) {
	if v == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return 0, false
	}
	return secs, true
}

func defaultJitter() float64 {
	return 0.75 + rand.Float64()*0.5
}
