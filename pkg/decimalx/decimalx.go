// Package decimalx centralizes the fixed-decimal arithmetic the engine needs
// at the exchange boundary: price ticks, size ticks, and minimum-order-value
// repair. Nothing in this package touches float64; every quantity that can
// reach an order travels through decimal.Decimal.
package decimalx

import "github.com/shopspring/decimal"

// PriceTick is the exchange's price precision (4 fractional digits).
const PriceTick = 4

// SizeTick is the exchange's share-size precision (2 fractional digits).
const SizeTick = 2

// MinOrderValue is the smallest notional the exchange will accept.
var MinOrderValue = decimal.NewFromFloat(1.00)

var centStep = decimal.New(1, -SizeTick)

// RoundPrice rounds p to the 4-decimal price tick. Buys round down
// (conservative for the buyer), sells round up.
func RoundPrice(p decimal.Decimal, side Side) decimal.Decimal {
	switch side {
	case Sell:
		return roundUp(p, PriceTick)
	default:
		return roundDown(p, PriceTick)
	}
}

// RoundSize rounds s up to the 2-decimal size tick. Sizes never round down:
// undershooting the requested notional risks falling below MinOrderValue.
func RoundSize(s decimal.Decimal) decimal.Decimal {
	return roundUp(s, SizeTick)
}

// Side distinguishes the rounding direction for price ticking.
type Side int

const (
	Buy Side = iota
	Sell
)

// ComputeOrderSize implements the §4.8.1 sizing algorithm: given a desired
// notional and a limit price, return a (shares, price, value) triple that is
// tick-valid and satisfies value >= MinOrderValue. It eliminates the subtle
// underflow where price*shares lands a cent below the minimum after naive
// rounding.
func ComputeOrderSize(desiredNotional, limitPrice decimal.Decimal, side Side) (shares, price, value decimal.Decimal, err error) {
	if limitPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, decimal.Zero, ErrInvalidPrice
	}
	price = RoundPrice(limitPrice, side)
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, decimal.Zero, ErrInvalidPrice
	}

	minShares := decimal.Max(
		desiredNotional.Div(price),
		MinOrderValue.Div(price),
	)
	shares = RoundSize(minShares)
	value = price.Mul(shares)

	for value.LessThan(MinOrderValue) {
		shares = shares.Add(centStep)
		value = price.Mul(shares)
	}
	return shares, price, value, nil
}

func roundUp(d decimal.Decimal, places int32) decimal.Decimal {
	factor := decimal.New(1, places)
	return d.Mul(factor).Ceil().Div(factor).Truncate(places)
}

func roundDown(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Truncate(places)
}
