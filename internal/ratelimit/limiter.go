package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
)

// MatchMode selects how an endpoint pattern is compared against a path.
type MatchMode int

const (
	// Prefix matches the pattern followed by a segment boundary ("", "/" or "?").
	Prefix MatchMode = iota
	// Exact matches byte-equal paths only.
	Exact
)

// EndpointLimit configures the buckets for one endpoint pattern.
type EndpointLimit struct {
	Pattern   string
	Method    string // empty matches any method
	Mode      MatchMode
	Burst     Quota
	Sustained *Quota // optional longer-window ceiling
}

// Matches reports whether the entry applies to the request.
func (e EndpointLimit) Matches(path, method string) bool {
	if e.Method != "" && e.Method != method {
		return false
	}
	switch e.Mode {
	case Exact:
		return path == e.Pattern
	default:
		rest, ok := strings.CutPrefix(path, e.Pattern)
		if !ok {
			return false
		}
		// a pattern ending in "/" already sits on a boundary
		if strings.HasSuffix(e.Pattern, "/") {
			return true
		}
		return rest == "" || rest[0] == '/' || rest[0] == '?'
	}
}

type endpoint struct {
	limit     EndpointLimit
	burst     *rate.Limiter
	sustained *rate.Limiter
}

// Limiter groups the buckets for one API surface: a global default bucket and
// an ordered list of endpoint buckets where the first match wins. It is safe
// for concurrent use and meant to be shared by every request of a client.
type Limiter struct {
	name      string
	def       *rate.Limiter
	defQuota  Quota
	endpoints []endpoint
}

// New builds a limiter. Declaration order of limits is significant: an entry
// that could be shadowed by a shorter prefix must come first.
func New(name string, def Quota, limits ...EndpointLimit) *Limiter {
	l := &Limiter{
		name:      name,
		def:       def.Bucket(),
		defQuota:  def,
		endpoints: make([]endpoint, 0, len(limits)),
	}
	for _, lim := range limits {
		ep := endpoint{limit: lim, burst: lim.Burst.Bucket()}
		if lim.Sustained != nil {
			ep.sustained = lim.Sustained.Bucket()
		}
		l.endpoints = append(l.endpoints, ep)
	}
	return l
}

// Name returns the API surface the limiter was built for.
func (l *Limiter) Name() string {
	return l.name
}

// Acquire blocks until the request may be sent or ctx is done. The default
// bucket is always awaited first, then the burst and sustained buckets of the
// first matching endpoint. A cancelled wait consumes no token.
func (l *Limiter) Acquire(ctx context.Context, path, method string) error {
	if err := l.def.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s default: %w", l.name, err)
	}

	ep := l.match(path, method)
	if ep == nil {
		return nil
	}
	if err := ep.burst.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s %s: %w", l.name, ep.limit.Pattern, err)
	}
	if ep.sustained != nil {
		if err := ep.sustained.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit %s %s sustained: %w", l.name, ep.limit.Pattern, err)
		}
	}
	return nil
}

// Match returns the endpoint entry that governs the request, if any.
func (l *Limiter) Match(path, method string) (EndpointLimit, bool) {
	if ep := l.match(path, method); ep != nil {
		return ep.limit, true
	}
	return EndpointLimit{}, false
}

func (l *Limiter) match(path, method string) *endpoint {
	for i := range l.endpoints {
		if l.endpoints[i].limit.Matches(path, method) {
			return &l.endpoints[i]
		}
	}
	return nil
}

// Limits returns a copy of the endpoint configuration in declaration order.
func (l *Limiter) Limits() []EndpointLimit {
	out := make([]EndpointLimit, len(l.endpoints))
	for i, ep := range l.endpoints {
		out[i] = ep.limit
	}
	return out
}

// Default returns the global quota.
func (l *Limiter) Default() Quota {
	return l.defQuota
}
