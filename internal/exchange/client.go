// Package exchange implements the Polymarket CLOB REST and WebSocket clients.
//
// The REST client (Client) goes through the shared transport executor, so every
// call is rate-limited against the CLOB table, retried on 429, and signed with
// the auth layer the endpoint needs:
//
//   - public:  GET /book, /tick-size, /neg-risk, /fee-rate, /
//   - L1:      POST /auth/api-key, GET /auth/derive-api-key
//   - L2:      POST /order, /orders; DELETE /order, /orders, /cancel-all,
//     /cancel-market-orders; GET /data/orders
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"polygo/internal/apierr"
	"polygo/internal/auth"
	"polygo/internal/eip712"
	"polygo/internal/ratelimit"
	"polygo/internal/retry"
	"polygo/internal/transport"
	"polygo/pkg/types"
)

const (
	DefaultBaseURL = "https://clob.polymarket.com"

	// maxBatch is the most orders POST /orders accepts at once.
	maxBatch = 15
)

// Options configure a Client. Only BaseURL-independent fields are required
// for public calls; Wallet is needed for L1 and order signing, Credentials for
// L2.
type Options struct {
	BaseURL       string
	ChainID       uint64
	Wallet        eip712.Wallet
	Funder        string // maker address for proxy wallets; defaults to the signer
	SignatureType types.SignatureType
	Credentials   auth.Credentials
	DryRun        bool // mutating calls are logged and answered locally

	Timeout   time.Duration
	PoolSize  int
	Retry     *retry.Config
	UserAgent string
	Logger    *slog.Logger
}

// Client is the Polymarket CLOB REST API client.
type Client struct {
	http    *transport.HTTPClient
	chainID uint64
	wallet  eip712.Wallet
	funder  common.Address
	sigType types.SignatureType
	dryRun  bool
	logger  *slog.Logger

	mu     sync.RWMutex
	creds  auth.Credentials
	signer *auth.Signer
}

// NewClient builds a CLOB client with its own CLOB rate limiter.
func NewClient(opts Options) (*Client, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	chainID := opts.ChainID
	if chainID == 0 {
		chainID = eip712.ChainPolygon
	}
	if _, err := eip712.ContractsFor(chainID); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var funder common.Address
	switch {
	case opts.Funder != "":
		if !common.IsHexAddress(opts.Funder) {
			return nil, apierr.InvalidField("funder", opts.Funder, "not a hex address")
		}
		funder = common.HexToAddress(opts.Funder)
	case opts.SignatureType.IsProxy():
		return nil, apierr.InvalidField("funder", "", fmt.Sprintf("signature type %d requires a funder address", opts.SignatureType))
	case opts.Wallet != nil:
		funder = opts.Wallet.Address()
	}

	httpClient, err := transport.NewHTTPClient(transport.Options{
		BaseURL:   baseURL,
		Timeout:   opts.Timeout,
		PoolSize:  opts.PoolSize,
		Retry:     opts.Retry,
		Limiter:   ratelimit.CLOB(),
		UserAgent: opts.UserAgent,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("clob transport: %w", err)
	}

	c := &Client{
		http:    httpClient,
		chainID: chainID,
		wallet:  opts.Wallet,
		funder:  funder,
		sigType: opts.SignatureType,
		dryRun:  opts.DryRun,
		logger:  logger.With("component", "clob"),
	}
	if opts.Credentials.Complete() {
		c.SetCredentials(opts.Credentials)
	}
	return c, nil
}

// ChainID returns the chain orders are signed for.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// Address returns the signer's address, or the zero address for a public client.
func (c *Client) Address() common.Address {
	if c.wallet == nil {
		return common.Address{}
	}
	return c.wallet.Address()
}

// FunderAddress returns the maker address used in orders.
func (c *Client) FunderAddress() common.Address {
	return c.funder
}

// HasL2Credentials reports whether trading endpoints can be called.
func (c *Client) HasL2Credentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.signer != nil
}

// SetCredentials installs L2 credentials, typically after DeriveAPIKey.
func (c *Client) SetCredentials(creds auth.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
	c.signer = auth.NewSigner(creds.Secret)
}

// Credentials returns the installed L2 credentials.
func (c *Client) Credentials() (auth.Credentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds, c.signer != nil
}

func (c *Client) l1(nonce uint32) (transport.AuthMode, error) {
	if c.wallet == nil {
		return nil, apierr.Validation("a wallet is required for L1 authentication")
	}
	return transport.L1Auth{Wallet: c.wallet, ChainID: c.chainID, Nonce: nonce}, nil
}

func (c *Client) l2() (transport.L2Auth, error) {
	if c.wallet == nil {
		return transport.L2Auth{}, apierr.Validation("a wallet is required for L2 authentication")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.signer == nil {
		return transport.L2Auth{}, &apierr.Error{Kind: apierr.KindAuthentication, Message: "no L2 credentials; derive or create an API key first"}
	}
	return transport.L2Auth{Address: c.wallet.Address(), Credentials: c.creds, Signer: c.signer}, nil
}

// ————————————————————————————————————————————————————————————————————————
// Public endpoints
// ————————————————————————————————————————————————————————————————————————

// Ping measures the round trip to the API root.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/"}); err != nil {
		return 0, fmt.Errorf("ping: %w", err)
	}
	return time.Since(start), nil
}

// OrderBook fetches the order book for a single token.
func (c *Client) OrderBook(ctx context.Context, tokenID string) (*types.BookResponse, error) {
	book, err := transport.Send[types.BookResponse](ctx, c.http, tokenRequest("/book", tokenID))
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &book, nil
}

// TickSize fetches the minimum tick of a token's market.
func (c *Client) TickSize(ctx context.Context, tokenID string) (types.TickSize, error) {
	resp, err := transport.Send[types.TickSizeResponse](ctx, c.http, tokenRequest("/tick-size", tokenID))
	if err != nil {
		return "", fmt.Errorf("get tick size: %w", err)
	}
	v, err := resp.MinimumTickSize.Float64()
	if err != nil {
		return "", apierr.InvalidField("minimum_tick_size", resp.MinimumTickSize, "not a number")
	}
	tick, err := types.TickSizeFromFloat(v)
	if err != nil {
		return "", &apierr.Error{Kind: apierr.KindValidation, Field: "minimum_tick_size", Message: err.Error()}
	}
	return tick, nil
}

// NegRisk reports whether the token trades on the neg-risk exchange.
func (c *Client) NegRisk(ctx context.Context, tokenID string) (bool, error) {
	resp, err := transport.Send[types.NegRiskResponse](ctx, c.http, tokenRequest("/neg-risk", tokenID))
	if err != nil {
		return false, fmt.Errorf("get neg risk: %w", err)
	}
	return resp.NegRisk, nil
}

// FeeRate returns the fee rate in basis points as a decimal string, "0" when
// the API omits it.
func (c *Client) FeeRate(ctx context.Context, tokenID string) (string, error) {
	resp, err := transport.Send[types.FeeRateResponse](ctx, c.http, tokenRequest("/fee-rate", tokenID))
	if err != nil {
		return "", fmt.Errorf("get fee rate: %w", err)
	}
	if resp.FeeRateBps == "" {
		return "0", nil
	}
	return resp.FeeRateBps.String(), nil
}

func tokenRequest(path, tokenID string) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  url.Values{"token_id": {tokenID}},
	}
}

// ————————————————————————————————————————————————————————————————————————
// L1: API key management
// ————————————————————————————————————————————————————————————————————————

// CreateAPIKey mints a new L2 key for the wallet and installs it.
func (c *Client) CreateAPIKey(ctx context.Context, nonce uint32) (auth.Credentials, error) {
	return c.apiKey(ctx, http.MethodPost, "/auth/api-key", nonce)
}

// DeriveAPIKey recovers the existing L2 key for the wallet and installs it.
func (c *Client) DeriveAPIKey(ctx context.Context, nonce uint32) (auth.Credentials, error) {
	return c.apiKey(ctx, http.MethodGet, "/auth/derive-api-key", nonce)
}

// CreateOrDeriveAPIKey creates a key and falls back to deriving the existing
// one when creation is refused.
func (c *Client) CreateOrDeriveAPIKey(ctx context.Context, nonce uint32) (auth.Credentials, error) {
	creds, err := c.CreateAPIKey(ctx, nonce)
	if err == nil {
		return creds, nil
	}
	if apierr.KindOf(err) == apierr.KindNetwork || ctx.Err() != nil {
		return auth.Credentials{}, err
	}
	c.logger.Info("create api key refused, deriving", "error", err)
	return c.DeriveAPIKey(ctx, nonce)
}

func (c *Client) apiKey(ctx context.Context, method, path string, nonce uint32) (auth.Credentials, error) {
	mode, err := c.l1(nonce)
	if err != nil {
		return auth.Credentials{}, err
	}

	creds, err := transport.Send[auth.Credentials](ctx, c.http, transport.Request{Method: method, Path: path, Auth: mode})
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if !creds.Complete() {
		return auth.Credentials{}, apierr.Serialization(path+" returned incomplete credentials", nil)
	}

	c.SetCredentials(creds)
	c.logger.Info("API key installed", "path", path, "address", c.wallet.Address().Hex())
	return creds, nil
}

// ————————————————————————————————————————————————————————————————————————
// L2: orders
// ————————————————————————————————————————————————————————————————————————

// SignOrder signs order for the client's chain.
func (c *Client) SignOrder(order types.Order) (types.SignedOrder, error) {
	if c.wallet == nil {
		return types.SignedOrder{}, apierr.Validation("a wallet is required to sign orders")
	}
	return eip712.SignOrder(c.wallet, order, c.chainID)
}

// PostOrder submits one signed order.
func (c *Client) PostOrder(ctx context.Context, order types.SignedOrder, orderType types.OrderType, postOnly bool) (*types.OrderResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would post order", "token", order.TokenID, "side", order.Side)
		return &types.OrderResponse{Success: true, OrderID: "dry-run-0", Status: "live"}, nil
	}
	mode, err := c.l2()
	if err != nil {
		return nil, err
	}

	payload := types.OrderPayload{
		Order:     order,
		Owner:     mode.Credentials.ApiKey,
		OrderType: orderType,
		PostOnly:  postOnly,
	}
	resp, err := transport.Send[types.OrderResponse](ctx, c.http, transport.Request{
		Method: http.MethodPost,
		Path:   "/order",
		Body:   payload,
		Auth:   mode,
	})
	if err != nil {
		return nil, fmt.Errorf("post order: %w", err)
	}
	return &resp, nil
}

// PostOrders submits up to 15 signed orders in one request.
func (c *Client) PostOrders(ctx context.Context, orders []types.SignedOrder, orderType types.OrderType) ([]types.OrderResponse, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	if len(orders) > maxBatch {
		return nil, apierr.Validation("batch limit is %d orders, got %d", maxBatch, len(orders))
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would post orders", "count", len(orders))
		results := make([]types.OrderResponse, len(orders))
		for i := range orders {
			results[i] = types.OrderResponse{Success: true, OrderID: fmt.Sprintf("dry-run-%d", i), Status: "live"}
		}
		return results, nil
	}
	mode, err := c.l2()
	if err != nil {
		return nil, err
	}

	payloads := make([]types.OrderPayload, len(orders))
	for i, o := range orders {
		payloads[i] = types.OrderPayload{Order: o, Owner: mode.Credentials.ApiKey, OrderType: orderType}
	}
	results, err := transport.Send[[]types.OrderResponse](ctx, c.http, transport.Request{
		Method: http.MethodPost,
		Path:   "/orders",
		Body:   payloads,
		Auth:   mode,
	})
	if err != nil {
		return nil, fmt.Errorf("post orders: %w", err)
	}
	return results, nil
}

// ListOrders lists the account's resting orders.
func (c *Client) ListOrders(ctx context.Context) ([]types.OpenOrder, error) {
	mode, err := c.l2()
	if err != nil {
		return nil, err
	}
	orders, err := transport.Send[[]types.OpenOrder](ctx, c.http, transport.Request{
		Method: http.MethodGet,
		Path:   "/data/orders",
		Auth:   mode,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// CancelOrder cancels one order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*types.CancelResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "order_id", orderID)
		return &types.CancelResponse{Canceled: []string{orderID}}, nil
	}
	return c.cancel(ctx, "/order", map[string]any{"orderID": orderID})
}

// CancelOrders cancels several orders by ID.
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) (*types.CancelResponse, error) {
	if len(orderIDs) == 0 {
		return &types.CancelResponse{}, nil
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel orders", "count", len(orderIDs))
		return &types.CancelResponse{Canceled: orderIDs}, nil
	}
	return c.cancel(ctx, "/orders", orderIDs)
}

// CancelAll cancels every open order across all markets.
func (c *Client) CancelAll(ctx context.Context) (*types.CancelResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel all orders")
		return &types.CancelResponse{}, nil
	}
	resp, err := c.cancel(ctx, "/cancel-all", nil)
	if err != nil {
		return nil, err
	}
	c.logger.Warn("all orders cancelled", "count", len(resp.Canceled))
	return resp, nil
}

// CancelMarketOrders cancels all orders for one market.
func (c *Client) CancelMarketOrders(ctx context.Context, conditionID string) (*types.CancelResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel market orders", "market", conditionID)
		return &types.CancelResponse{}, nil
	}
	return c.cancel(ctx, "/cancel-market-orders", map[string]any{"market": conditionID})
}

func (c *Client) cancel(ctx context.Context, path string, body any) (*types.CancelResponse, error) {
	mode, err := c.l2()
	if err != nil {
		return nil, err
	}
	resp, err := transport.Send[types.CancelResponse](ctx, c.http, transport.Request{
		Method: http.MethodDelete,
		Path:   path,
		Body:   body,
		Auth:   mode,
	})
	if err != nil {
		return nil, fmt.Errorf("cancel %s: %w", path, err)
	}
	c.logger.Info("orders cancelled", "path", path, "count", len(resp.Canceled))
	return &resp, nil
}
