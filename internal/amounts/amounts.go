// Package amounts converts human prices and sizes into the fixed-point
// maker/taker integers the exchange contract expects.
//
// All arithmetic is done in decimal. Float inputs are converted once with
// their shortest representation, so 0.545 is exactly 0.545 and
// round-half-to-even behaves as written.
package amounts

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"polygo/internal/apierr"
	"polygo/pkg/types"
)

// SizeDecimals is the precision of shares and USDC amounts on the exchange.
const SizeDecimals int32 = 6

// CalculateOrderAmounts returns the raw maker and taker amounts of a limit
// order. Price is rounded to the tick, size to six decimals, both
// half-to-even. BUY gives (cost, shares); SELL gives (shares, cost).
func CalculateOrderAmounts(price, size float64, side types.Side, tick types.TickSize) (maker, taker string, err error) {
	if err := finite("price", price); err != nil {
		return "", "", err
	}
	if err := finite("size", size); err != nil {
		return "", "", err
	}
	if !side.Valid() {
		return "", "", apierr.InvalidField("side", side, "must be BUY or SELL")
	}
	if err := validTick(tick); err != nil {
		return "", "", err
	}

	p := decimal.NewFromFloat(price).RoundBank(tick.Decimals())
	s := decimal.NewFromFloat(size).RoundBank(SizeDecimals)
	cost := p.Mul(s).RoundBank(SizeDecimals)

	shares, usdc := toRaw(s), toRaw(cost)
	if side == types.BUY {
		return usdc, shares, nil
	}
	return shares, usdc, nil
}

// CalculateMarketOrderAmounts returns the raw amounts of a market order.
// amount is USDC for BUY and shares for SELL. The taker leg of a BUY and the
// maker leg of a SELL round toward zero so the order never asks for more
// than the book can give.
func CalculateMarketOrderAmounts(amount, price float64, side types.Side, tick types.TickSize) (maker, taker string, err error) {
	if err := finite("amount", amount); err != nil {
		return "", "", err
	}
	if err := finite("price", price); err != nil {
		return "", "", err
	}
	if !side.Valid() {
		return "", "", apierr.InvalidField("side", side, "must be BUY or SELL")
	}
	if err := validTick(tick); err != nil {
		return "", "", err
	}

	p := decimal.NewFromFloat(price).RoundBank(tick.Decimals())
	if p.IsZero() {
		return "0", "0", nil
	}

	a := decimal.NewFromFloat(amount)
	switch side {
	case types.BUY:
		usdc := a.RoundBank(SizeDecimals)
		shares, _ := usdc.QuoRem(p, SizeDecimals)
		return toRaw(usdc), toRaw(shares), nil
	default:
		shares := a.Truncate(SizeDecimals)
		usdc := shares.Mul(p).RoundBank(SizeDecimals)
		return toRaw(shares), toRaw(usdc), nil
	}
}

// CalculateMarketPrice walks book levels, best first, until the cumulative
// notional (BUY, price*size) or shares (SELL, size) reaches amount, and
// returns the price of the level that completes the fill. It reports false
// when the book is empty, a level does not parse, or liquidity runs out.
func CalculateMarketPrice(levels []types.PriceLevel, amount float64, side types.Side) (float64, bool) {
	if len(levels) == 0 {
		return 0, false
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, false
	}
	target := decimal.NewFromFloat(amount)

	sum := decimal.Zero
	for _, lvl := range levels {
		p, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			return 0, false
		}
		s, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			return 0, false
		}

		if side == types.BUY {
			sum = sum.Add(p.Mul(s))
		} else {
			sum = sum.Add(s)
		}
		if sum.GreaterThanOrEqual(target) {
			return p.InexactFloat64(), true
		}
	}
	return 0, false
}

// RoundBankers rounds v to places decimals, ties to even.
func RoundBankers(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).RoundBank(places).InexactFloat64()
}

var maxUint128 = new(big.Int).Lsh(big.NewInt(1), 128)

// GenerateSalt returns a uniformly random unsigned 128-bit integer in decimal.
func GenerateSalt() string {
	n, err := rand.Int(rand.Reader, maxUint128)
	if err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return n.String()
}

func toRaw(v decimal.Decimal) string {
	return v.Shift(SizeDecimals).Round(0).String()
}

func validTick(tick types.TickSize) error {
	if _, err := types.ParseTickSize(string(tick)); err != nil {
		return apierr.InvalidField("tickSize", fmt.Sprintf("%q", string(tick)), "must be 0.1, 0.01, 0.001, or 0.0001")
	}
	return nil
}

func finite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return apierr.InvalidField(field, v, "must be a finite number")
	}
	return nil
}
