package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"polygo/internal/amounts"
	"polygo/internal/apierr"
	"polygo/pkg/types"
)

// OrderArgs describe a limit order in human units.
type OrderArgs struct {
	TokenID    string
	Price      float64 // probability in (0, 1]
	Size       float64 // shares
	Side       types.Side
	Expiration int64 // unix seconds, 0 for none (GTC)
}

// MarketOrderArgs describe a market order. Amount is USDC for BUY and shares
// for SELL. A zero Price is resolved from the book.
type MarketOrderArgs struct {
	TokenID   string
	Amount    float64
	Side      types.Side
	Price     float64
	OrderType types.OrderType // defaults to FOK
}

// CreateOptions override market metadata that would otherwise be fetched.
type CreateOptions struct {
	TickSize types.TickSize
	NegRisk  *bool
}

func (a OrderArgs) validate() error {
	if a.TokenID == "" {
		return apierr.InvalidField("tokenId", a.TokenID, "required")
	}
	if !a.Side.Valid() {
		return apierr.InvalidField("side", a.Side, "must be BUY or SELL")
	}
	if math.IsNaN(a.Price) || math.IsInf(a.Price, 0) || a.Price <= 0 || a.Price > 1 {
		return apierr.InvalidField("price", a.Price, "must be finite and between 0.0 and 1.0")
	}
	if math.IsNaN(a.Size) || math.IsInf(a.Size, 0) || a.Size <= 0 {
		return apierr.InvalidField("size", a.Size, "must be finite and positive")
	}
	if a.Expiration < 0 {
		return apierr.InvalidField("expiration", a.Expiration, "must not be negative")
	}
	return nil
}

func (a MarketOrderArgs) validate() error {
	if a.TokenID == "" {
		return apierr.InvalidField("tokenId", a.TokenID, "required")
	}
	if !a.Side.Valid() {
		return apierr.InvalidField("side", a.Side, "must be BUY or SELL")
	}
	if math.IsNaN(a.Amount) || math.IsInf(a.Amount, 0) || a.Amount <= 0 {
		return apierr.InvalidField("amount", a.Amount, "must be finite and positive")
	}
	if a.Price != 0 && (math.IsNaN(a.Price) || math.IsInf(a.Price, 0) || a.Price < 0 || a.Price > 1) {
		return apierr.InvalidField("price", a.Price, "must be finite and between 0.0 and 1.0")
	}
	return nil
}

// CreateOrder builds an unsigned limit order. Tick size and neg-risk come from
// opts when set and from the API otherwise; the fee rate is always fetched.
func (c *Client) CreateOrder(ctx context.Context, args OrderArgs, opts CreateOptions) (types.Order, error) {
	if c.wallet == nil {
		return types.Order{}, apierr.Validation("a wallet is required to create orders")
	}
	if err := args.validate(); err != nil {
		return types.Order{}, err
	}

	tick, negRisk, err := c.marketMetadata(ctx, args.TokenID, opts)
	if err != nil {
		return types.Order{}, err
	}
	fee, err := c.FeeRate(ctx, args.TokenID)
	if err != nil {
		return types.Order{}, err
	}

	maker, taker, err := amounts.CalculateOrderAmounts(args.Price, args.Size, args.Side, tick)
	if err != nil {
		return types.Order{}, err
	}
	return c.buildOrder(args.TokenID, args.Side, maker, taker, args.Expiration, fee, negRisk), nil
}

// CreateMarketOrder builds an unsigned market order. Without an explicit price
// it walks the asks (BUY) or bids (SELL) for the level that fills Amount.
func (c *Client) CreateMarketOrder(ctx context.Context, args MarketOrderArgs, opts CreateOptions) (types.Order, error) {
	if c.wallet == nil {
		return types.Order{}, apierr.Validation("a wallet is required to create orders")
	}
	if err := args.validate(); err != nil {
		return types.Order{}, err
	}

	tick, negRisk, err := c.marketMetadata(ctx, args.TokenID, opts)
	if err != nil {
		return types.Order{}, err
	}

	price := args.Price
	if price == 0 {
		book, err := c.OrderBook(ctx, args.TokenID)
		if err != nil {
			return types.Order{}, err
		}
		levels := book.Asks
		if args.Side == types.SELL {
			levels = book.Bids
		}
		p, ok := amounts.CalculateMarketPrice(levels, args.Amount, args.Side)
		if !ok {
			return types.Order{}, apierr.Validation("Not enough liquidity to fill market order")
		}
		price = p
	}

	fee, err := c.FeeRate(ctx, args.TokenID)
	if err != nil {
		return types.Order{}, err
	}

	maker, taker, err := amounts.CalculateMarketOrderAmounts(args.Amount, price, args.Side, tick)
	if err != nil {
		return types.Order{}, err
	}
	return c.buildOrder(args.TokenID, args.Side, maker, taker, 0, fee, negRisk), nil
}

// PlaceOrder creates, signs and posts a limit order.
func (c *Client) PlaceOrder(ctx context.Context, args OrderArgs, orderType types.OrderType, postOnly bool, opts CreateOptions) (*types.OrderResponse, error) {
	if orderType == "" {
		orderType = types.OrderTypeGTC
	}
	order, err := c.CreateOrder(ctx, args, opts)
	if err != nil {
		return nil, err
	}
	signed, err := c.SignOrder(order)
	if err != nil {
		return nil, err
	}
	return c.PostOrder(ctx, signed, orderType, postOnly)
}

// PlaceMarketOrder creates, signs and posts a market order. Market orders are
// never post-only.
func (c *Client) PlaceMarketOrder(ctx context.Context, args MarketOrderArgs, opts CreateOptions) (*types.OrderResponse, error) {
	orderType := args.OrderType
	if orderType == "" {
		orderType = types.OrderTypeFOK
	}
	order, err := c.CreateMarketOrder(ctx, args, opts)
	if err != nil {
		return nil, err
	}
	signed, err := c.SignOrder(order)
	if err != nil {
		return nil, err
	}
	return c.PostOrder(ctx, signed, orderType, false)
}

func (c *Client) marketMetadata(ctx context.Context, tokenID string, opts CreateOptions) (types.TickSize, bool, error) {
	tick := opts.TickSize
	if tick == "" {
		t, err := c.TickSize(ctx, tokenID)
		if err != nil {
			return "", false, err
		}
		tick = t
	} else if _, err := types.ParseTickSize(string(tick)); err != nil {
		return "", false, apierr.InvalidField("tickSize", tick, err.Error())
	}

	if opts.NegRisk != nil {
		return tick, *opts.NegRisk, nil
	}
	negRisk, err := c.NegRisk(ctx, tokenID)
	if err != nil {
		return "", false, err
	}
	return tick, negRisk, nil
}

func (c *Client) buildOrder(tokenID string, side types.Side, maker, taker string, expiration int64, fee string, negRisk bool) types.Order {
	return types.Order{
		Salt:          json.Number(amounts.GenerateSalt()),
		Maker:         c.funder.Hex(),
		Signer:        c.wallet.Address().Hex(),
		Taker:         common.Address{}.Hex(),
		TokenID:       tokenID,
		MakerAmount:   maker,
		TakerAmount:   taker,
		Expiration:    strconv.FormatInt(expiration, 10),
		Nonce:         "0",
		FeeRateBps:    fee,
		Side:          side,
		SignatureType: c.sigType,
		NegRisk:       negRisk,
	}
}

// String renders args for logs.
func (a OrderArgs) String() string {
	return fmt.Sprintf("%s %g @ %g (%s)", a.Side, a.Size, a.Price, a.TokenID)
}
