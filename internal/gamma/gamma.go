// Package gamma reads market metadata from the Gamma API
// (gamma-api.polymarket.com). Requests share the transport executor with the
// CLOB client and are rate-limited against the Gamma table.
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"polygo/internal/apierr"
	"polygo/internal/ratelimit"
	"polygo/internal/retry"
	"polygo/internal/transport"
	"polygo/pkg/types"
)

const (
	DefaultBaseURL = "https://gamma-api.polymarket.com"

	// pageSize is the page size AllMarkets walks with.
	pageSize = 100
)

// Market is the JSON shape returned by the Gamma API. Several list fields
// arrive as JSON-encoded strings; use the accessor methods to decode them.
type Market struct {
	ID                    string  `json:"id"`
	Question              string  `json:"question"`
	ConditionID           string  `json:"conditionId"`
	Slug                  string  `json:"slug"`
	Active                bool    `json:"active"`
	Closed                bool    `json:"closed"`
	AcceptingOrders       bool    `json:"acceptingOrders"`
	EnableOrderBook       bool    `json:"enableOrderBook"`
	EndDate               string  `json:"endDate"`
	Liquidity             string  `json:"liquidity"`
	Volume24hr            float64 `json:"volume24hr"`
	Outcomes              string  `json:"outcomes"`
	OutcomePrices         string  `json:"outcomePrices"`
	ClobTokenIds          string  `json:"clobTokenIds"`
	NegRisk               bool    `json:"negRisk"`
	Spread                float64 `json:"spread"`
	BestBid               float64 `json:"bestBid"`
	BestAsk               float64 `json:"bestAsk"`
	LastTradePrice        float64 `json:"lastTradePrice"`
	OrderPriceMinTickSize float64 `json:"orderPriceMinTickSize"`
	OrderMinSize          float64 `json:"orderMinSize"`
}

// TokenIDs decodes clobTokenIds, e.g. `["yes","no"]`.
func (m Market) TokenIDs() ([]string, error) {
	return decodeList(m.ClobTokenIds)
}

// OutcomeNames decodes outcomes, e.g. `["Yes","No"]`.
func (m Market) OutcomeNames() ([]string, error) {
	return decodeList(m.Outcomes)
}

// TickSize maps the numeric tick onto the closed set, defaulting to 0.01.
func (m Market) TickSize() types.TickSize {
	if t, err := types.TickSizeFromFloat(m.OrderPriceMinTickSize); err == nil {
		return t
	}
	return types.Tick001
}

// LiquidityUSD parses the string-encoded liquidity, 0 if absent.
func (m Market) LiquidityUSD() float64 {
	v, _ := strconv.ParseFloat(m.Liquidity, 64)
	return v
}

// Tradable reports whether orders can be placed on the market right now.
func (m Market) Tradable() bool {
	if !m.Active || m.Closed || !m.AcceptingOrders || !m.EnableOrderBook {
		return false
	}
	ids, err := m.TokenIDs()
	return err == nil && len(ids) > 0
}

func decodeList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode list %q: %w", s, err)
	}
	return out, nil
}

// Filter narrows GET /markets. Nil pointers leave the parameter out.
type Filter struct {
	Limit        int
	Offset       int
	Active       *bool
	Closed       *bool
	Order        string // e.g. "volume24hr"
	Ascending    *bool
	Slugs        []string
	ConditionIDs []string
	LiquidityMin float64
	VolumeMin    float64
	EndDateMin   time.Time
	EndDateMax   time.Time
}

// Open returns a filter for active, unresolved markets.
func Open() Filter {
	yes, no := true, false
	return Filter{Active: &yes, Closed: &no}
}

func (f Filter) query() url.Values {
	q := url.Values{}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	setBool(q, "active", f.Active)
	setBool(q, "closed", f.Closed)
	setBool(q, "ascending", f.Ascending)
	if f.Order != "" {
		q.Set("order", f.Order)
	}
	for _, s := range f.Slugs {
		q.Add("slug", s)
	}
	for _, id := range f.ConditionIDs {
		q.Add("condition_ids", id)
	}
	if f.LiquidityMin > 0 {
		q.Set("liquidity_num_min", strconv.FormatFloat(f.LiquidityMin, 'f', -1, 64))
	}
	if f.VolumeMin > 0 {
		q.Set("volume_num_min", strconv.FormatFloat(f.VolumeMin, 'f', -1, 64))
	}
	if !f.EndDateMin.IsZero() {
		q.Set("end_date_min", f.EndDateMin.UTC().Format(time.RFC3339))
	}
	if !f.EndDateMax.IsZero() {
		q.Set("end_date_max", f.EndDateMax.UTC().Format(time.RFC3339))
	}
	return q
}

func setBool(q url.Values, key string, v *bool) {
	if v != nil {
		q.Set(key, strconv.FormatBool(*v))
	}
}

// Options configure a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	PoolSize  int
	Retry     *retry.Config
	UserAgent string
	Logger    *slog.Logger
}

// Client is a read-only Gamma API client.
type Client struct {
	http   *transport.HTTPClient
	logger *slog.Logger
}

// NewClient builds a Gamma client with its own Gamma rate limiter.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient, err := transport.NewHTTPClient(transport.Options{
		BaseURL:   opts.BaseURL,
		Timeout:   opts.Timeout,
		PoolSize:  opts.PoolSize,
		Retry:     opts.Retry,
		Limiter:   ratelimit.Gamma(),
		UserAgent: opts.UserAgent,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("gamma transport: %w", err)
	}
	return &Client{http: httpClient, logger: logger.With("component", "gamma")}, nil
}

// Markets fetches one page of markets matching f.
func (c *Client) Markets(ctx context.Context, f Filter) ([]Market, error) {
	markets, err := transport.Send[[]Market](ctx, c.http, transport.Request{
		Method: http.MethodGet,
		Path:   "/markets",
		Query:  f.query(),
	})
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	return markets, nil
}

// AllMarkets pages through every market matching f. f.Limit and f.Offset are
// managed by the walk.
func (c *Client) AllMarkets(ctx context.Context, f Filter) ([]Market, error) {
	var all []Market
	f.Limit = pageSize
	f.Offset = 0

	for {
		page, err := c.Markets(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("markets page at offset %d: %w", f.Offset, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
		f.Offset += pageSize
	}

	c.logger.Debug("markets fetched", "total", len(all))
	return all, nil
}

// Market fetches a market by its Gamma ID.
func (c *Client) Market(ctx context.Context, id string) (*Market, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apierr.InvalidField("id", id, "required")
	}
	return c.one(ctx, "/markets/"+url.PathEscape(id))
}

// MarketBySlug fetches a market by its URL slug.
func (c *Client) MarketBySlug(ctx context.Context, slug string) (*Market, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, apierr.InvalidField("slug", slug, "required")
	}
	return c.one(ctx, "/markets/slug/"+url.PathEscape(slug))
}

func (c *Client) one(ctx context.Context, path string) (*Market, error) {
	m, err := transport.Send[Market](ctx, c.http, transport.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return &m, nil
}
