// Package amm implements the automated market maker for binary party
// prediction markets.
//
// The two outcome pools (YES and NO) are priced independently: a trade
// against one outcome moves only that outcome's price. Prices are not
// forced to sum to 1 — this mirrors the product's pricing model and is
// deliberate, not a bug.
//
// Buys move the price linearly in dollars spent (impact = amount / k),
// which keeps execution order-independent and auditable without any
// iterative solving. Sells pay out along a saturating hyperbolic curve so
// a large sell can never drain more than the pool supports.
//
// All monetary values use shopspring/decimal — never float64 for money.
package amm

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidPoolK is returned when the liquidity constant k <= 0.
	ErrInvalidPoolK = errors.New("amm: pool constant k must be positive")

	// ErrInvalidAmount is returned when a buy amount <= 0.
	ErrInvalidAmount = errors.New("amm: amount must be positive")

	// ErrInvalidShares is returned when a sell share count <= 0.
	ErrInvalidShares = errors.New("amm: shares must be positive")

	// MinPrice is the price floor. Sells clamp here rather than pushing
	// an outcome to zero.
	MinPrice = decimal.NewFromFloat(0.01)

	// MaxPrice is the price ceiling. Buys cap here to prevent certainty
	// pricing and division degeneracy in the average-price math.
	MaxPrice = decimal.NewFromFloat(0.99)

	// PriceScale is the number of decimal places for price/money rounding.
	PriceScale int32 = 8

	two = decimal.NewFromInt(2)
)

// BuyQuote is the result of pricing a buy against one outcome pool.
type BuyQuote struct {
	NewPrice  decimal.Decimal // post-trade price of the bought outcome
	AvgPrice  decimal.Decimal // average execution price per share
	Shares    decimal.Decimal // shares received
	Spend     decimal.Decimal // dollars actually absorbed (<= amount at the cap)
	MaxPayout decimal.Decimal // shares * 1.0, paid if the outcome wins
}

// SellQuote is the result of pricing a sell against one outcome pool.
type SellQuote struct {
	NewPrice decimal.Decimal // post-trade price of the sold outcome
	AvgPrice decimal.Decimal // average execution price per share
	Dollars  decimal.Decimal // dollars credited to the seller
}

// BuyPreview prices a buy of `amount` dollars against the outcome pool
// currently quoted at oldPrice with liquidity constant poolK.
//
//	impact    = amount / k
//	newPrice  = min(oldPrice + impact, MaxPrice)
//	spend     = (newPrice - oldPrice) * k
//	avgPrice  = (oldPrice + newPrice) / 2
//	shares    = spend / avgPrice
//
// Near the ceiling the pool absorbs less than `amount`; the caller must
// charge Spend, never the raw amount.
func BuyPreview(oldPrice, poolK, amount decimal.Decimal) (BuyQuote, error) {
	if poolK.LessThanOrEqual(decimal.Zero) {
		return BuyQuote{}, ErrInvalidPoolK
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return BuyQuote{}, ErrInvalidAmount
	}

	impact := amount.Div(poolK)
	newPrice := oldPrice.Add(impact)
	if newPrice.GreaterThan(MaxPrice) {
		newPrice = MaxPrice
	}
	// The price move floors toward oldPrice; rounding up would charge a
	// spend above the requested amount.
	newPrice = newPrice.RoundDown(PriceScale)

	spend := newPrice.Sub(oldPrice).Mul(poolK).Round(PriceScale)
	if spend.GreaterThan(amount) {
		spend = amount
	}
	avgPrice := oldPrice.Add(newPrice).Div(two).Round(PriceScale)

	// Share grants round down; rounding dust stays in the pool.
	shares := decimal.Zero
	if avgPrice.IsPositive() {
		shares = spend.Div(avgPrice).RoundDown(PriceScale)
	}

	return BuyQuote{
		NewPrice:  newPrice,
		AvgPrice:  avgPrice,
		Shares:    shares,
		Spend:     spend,
		MaxPayout: shares, // 1 unit payout per winning share
	}, nil
}

// SellPreview prices a sell of `shares` against the outcome pool currently
// quoted at currentPrice with liquidity constant poolK.
//
//	dollars   = shares * price * 2k / (2k + shares)
//	newPrice  = price - dollars / k
//
// If the resulting price would fall below MinPrice, the price clamps to
// MinPrice and dollars is re-derived from the clamped move:
//
//	dollars = (price - MinPrice) * k
//
// so the payout always agrees with the price actually charted.
func SellPreview(currentPrice, poolK, shares decimal.Decimal) (SellQuote, error) {
	if poolK.LessThanOrEqual(decimal.Zero) {
		return SellQuote{}, ErrInvalidPoolK
	}
	if shares.LessThanOrEqual(decimal.Zero) {
		return SellQuote{}, ErrInvalidShares
	}

	twoK := poolK.Mul(two)
	dollars := shares.Mul(currentPrice).Mul(twoK).Div(twoK.Add(shares))
	newPrice := currentPrice.Sub(dollars.Div(poolK))

	if newPrice.LessThan(MinPrice) {
		newPrice = MinPrice
		dollars = currentPrice.Sub(MinPrice).Mul(poolK)
		if dollars.IsNegative() {
			dollars = decimal.Zero
		}
	}
	newPrice = newPrice.Round(PriceScale)
	// Payouts round down; rounding dust stays in the pool, so a buy
	// round-tripped straight back can never net positive.
	dollars = dollars.RoundDown(PriceScale)

	avgPrice := dollars.Div(shares).Round(PriceScale)

	return SellQuote{
		NewPrice: newPrice,
		AvgPrice: avgPrice,
		Dollars:  dollars,
	}, nil
}

// ClampPrice bounds a price to [MinPrice, MaxPrice]. Used when seeding
// markets from admin input.
func ClampPrice(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(MinPrice) {
		return MinPrice
	}
	if p.GreaterThan(MaxPrice) {
		return MaxPrice
	}
	return p
}
