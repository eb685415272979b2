package decimalx_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictcore/pkg/decimalx"
)

func TestComputeOrderSize_PrecisionTrap(t *testing.T) {
	// S2 from the testable-properties scenarios: $1.00 desired notional at
	// a $0.23 price must never round to a sub-minimum order.
	notional := decimal.NewFromFloat(1.00)
	price := decimal.NewFromFloat(0.23)

	shares, roundedPrice, value, err := decimalx.ComputeOrderSize(notional, price, decimalx.Buy)
	require.NoError(t, err)

	assert.True(t, value.GreaterThanOrEqual(decimalx.MinOrderValue), "value %s below min order value", value)
	assert.Equal(t, "4.35", shares.StringFixed(2))
	assert.Equal(t, "0.23", roundedPrice.StringFixed(4))
	assert.Equal(t, "1.0005", value.StringFixed(4))
}

func TestComputeOrderSize_AlwaysMeetsMinimum(t *testing.T) {
	for cents := 1; cents <= 99; cents++ {
		price := decimal.New(int64(cents), -2)
		for _, notional := range []float64{0.5, 1.0, 2.5, 10.0} {
			shares, roundedPrice, value, err := decimalx.ComputeOrderSize(decimal.NewFromFloat(notional), price, decimalx.Buy)
			require.NoError(t, err)
			assert.True(t, value.GreaterThanOrEqual(decimalx.MinOrderValue),
				"price=%s notional=%.2f => value=%s", roundedPrice, notional, value)
		}
	}
}

func TestComputeOrderSize_InvalidPrice(t *testing.T) {
	_, _, _, err := decimalx.ComputeOrderSize(decimal.NewFromFloat(1), decimal.Zero, decimalx.Buy)
	require.ErrorIs(t, err, decimalx.ErrInvalidPrice)
}

func TestRoundPrice_BuySellDirection(t *testing.T) {
	p := decimal.NewFromFloat(0.123456)
	assert.True(t, decimalx.RoundPrice(p, decimalx.Buy).LessThanOrEqual(p))
	assert.True(t, decimalx.RoundPrice(p, decimalx.Sell).GreaterThanOrEqual(p))
}
