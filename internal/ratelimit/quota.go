// Package ratelimit implements token-bucket rate limiting for the Polymarket APIs.
//
// Polymarket publishes limits as "N requests per window" tiers: a global
// ceiling per API surface, per-endpoint burst limits and, for the most
// valuable mutating endpoints, a longer sustained window. A Quota turns one
// such allowance into a smoothly refilling token bucket (rather than a fixed
// window that resets in bursts), and a Limiter layers the buckets for a whole
// surface.
package ratelimit

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Quota is an allowance of Count requests per Period.
type Quota struct {
	Count  uint32
	Period time.Duration
}

// Per returns a quota of n requests per d.
func Per(n uint32, d time.Duration) Quota {
	return Quota{Count: n, Period: d}
}

// PerTenSeconds returns a quota of n requests per 10-second window, the unit
// most Polymarket limits are published in.
func PerTenSeconds(n uint32) Quota {
	return Per(n, 10*time.Second)
}

// PerMinute returns a quota of n requests per minute.
func PerMinute(n uint32) Quota {
	return Per(n, time.Minute)
}

// Burst is the bucket capacity. Zero counts are coerced to 1.
func (q Quota) Burst() int {
	return int(max(q.Count, 1))
}

// Interval is the time to refill a single token.
func (q Quota) Interval() time.Duration {
	return q.Period / time.Duration(max(q.Count, 1))
}

// Bucket builds a full token bucket for the quota. An interval that rounds to
// zero (huge counts, zero period) yields an unthrottled bucket.
func (q Quota) Bucket() *rate.Limiter {
	interval := q.Interval()
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, q.Burst())
	}
	return rate.NewLimiter(rate.Every(interval), q.Burst())
}

func (q Quota) String() string {
	return fmt.Sprintf("%d/%s", q.Count, q.Period)
}
