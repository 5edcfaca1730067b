package ratelimit

import (
	"fmt"
	"net/http"
	"time"
)

func sustained(q Quota) *Quota { return &q }

// CLOB returns the limiter for clob.polymarket.com.
//
//   - default: 9000 per 10s
//   - POST /order: 3500 per 10s burst, 36000 per 10min sustained
//   - DELETE /order: 3000 per 10s
//
// The two /order entries sit ahead of everything else and /prices-history
// ahead of /price; the segment-boundary rule keeps /price from matching
// /prices-history anyway, but the order documents intent.
func CLOB() *Limiter {
	return New("clob", PerTenSeconds(9000),
		EndpointLimit{Pattern: "/order", Method: http.MethodPost, Burst: PerTenSeconds(3500), Sustained: sustained(Per(36000, 10*time.Minute))},
		EndpointLimit{Pattern: "/order", Method: http.MethodDelete, Burst: PerTenSeconds(3000)},
		EndpointLimit{Pattern: "/auth", Burst: PerTenSeconds(100)},
		EndpointLimit{Pattern: "/trades", Burst: PerTenSeconds(900)},
		EndpointLimit{Pattern: "/data/", Burst: PerTenSeconds(900)},
		EndpointLimit{Pattern: "/prices-history", Burst: PerTenSeconds(1500)},
		EndpointLimit{Pattern: "/markets", Burst: PerTenSeconds(1500)},
		EndpointLimit{Pattern: "/book", Burst: PerTenSeconds(1500)},
		EndpointLimit{Pattern: "/price", Burst: PerTenSeconds(1500)},
		EndpointLimit{Pattern: "/midpoint", Burst: PerTenSeconds(1500)},
		EndpointLimit{Pattern: "/neg-risk", Burst: PerTenSeconds(1500)},
		EndpointLimit{Pattern: "/tick-size", Burst: PerTenSeconds(1500)},
	)
}

// Gamma returns the limiter for gamma-api.polymarket.com.
func Gamma() *Limiter {
	return New("gamma", PerTenSeconds(4000),
		EndpointLimit{Pattern: "/comments", Burst: PerTenSeconds(200)},
		EndpointLimit{Pattern: "/tags", Burst: PerTenSeconds(200)},
		EndpointLimit{Pattern: "/markets", Burst: PerTenSeconds(300)},
		EndpointLimit{Pattern: "/public-search", Burst: PerTenSeconds(350)},
		EndpointLimit{Pattern: "/events", Burst: PerTenSeconds(500)},
	)
}

// Data returns the limiter for data-api.polymarket.com.
func Data() *Limiter {
	return New("data", PerTenSeconds(1000),
		EndpointLimit{Pattern: "/closed-positions", Burst: PerTenSeconds(150)},
		EndpointLimit{Pattern: "/positions", Burst: PerTenSeconds(150)},
		EndpointLimit{Pattern: "/trades", Burst: PerTenSeconds(200)},
	)
}

// Relay returns the limiter for the relayer, which only has a global ceiling.
func Relay() *Limiter {
	return New("relay", PerMinute(25))
}

// ForSurface resolves a limiter by API surface name.
func ForSurface(name string) (*Limiter, error) {
	switch name {
	case "clob":
		return CLOB(), nil
	case "gamma":
		return Gamma(), nil
	case "data":
		return Data(), nil
	case "relay":
		return Relay(), nil
	default:
		return nil, fmt.Errorf("unknown api surface %q: must be clob, gamma, data, or relay", name)
	}
}
