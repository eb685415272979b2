package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// TPInputs carries everything the layered take-profit computation needs for
// one position at one tick.
type TPInputs struct {
	TimeToClose     time.Duration
	Age             time.Duration
	Change30s       decimal.Decimal // signed percent change over the trailing 30s
	ConsecutiveWins int
	ConsecutiveLoss int
}

// ComputeTP applies the §4.7.2 multiplicative layers to baseTakeProfitPct.
// Bounds (Testable Property 5): the combined multiplier is clamped, so the
// result is always within [0.40*base, 1.32*base].
func ComputeTP(base decimal.Decimal, side Side, in TPInputs) decimal.Decimal {
	mult := decimal.NewFromInt(1)

	switch {
	case in.TimeToClose < 2*time.Minute:
		mult = mult.Mul(decimal.NewFromFloat(0.40))
	case in.TimeToClose < 4*time.Minute:
		mult = mult.Mul(decimal.NewFromFloat(0.60))
	case in.TimeToClose < 6*time.Minute:
		mult = mult.Mul(decimal.NewFromFloat(0.80))
	case in.TimeToClose > 10*time.Minute:
		mult = mult.Mul(decimal.NewFromFloat(1.20))
	}

	if in.Age > 8*time.Minute {
		mult = mult.Mul(decimal.NewFromFloat(0.70))
	}

	threshold := decimal.NewFromFloat(0.001)
	switch side {
	case SideUp:
		if in.Change30s.LessThan(threshold.Neg()) {
			mult = mult.Mul(decimal.NewFromFloat(0.60))
		}
	case SideDown:
		if in.Change30s.GreaterThan(threshold) {
			mult = mult.Mul(decimal.NewFromFloat(0.60))
		}
	}

	switch {
	case in.ConsecutiveWins >= 3:
		mult = mult.Mul(decimal.NewFromFloat(1.10))
	case in.ConsecutiveLoss >= 2:
		mult = mult.Mul(decimal.NewFromFloat(0.80))
	}

	lo, hi := decimal.NewFromFloat(0.40), decimal.NewFromFloat(1.32)
	if mult.LessThan(lo) {
		mult = lo
	} else if mult.GreaterThan(hi) {
		mult = hi
	}

	return base.Mul(mult)
}

// SLInputs carries the inputs to the layered stop-loss computation.
type SLInputs struct {
	AvgAbsChange10_30_60 decimal.Decimal // mean of |change| over 10s, 30s, 60s windows
	Age                  time.Duration
}

// ComputeSL applies the §4.7.3 multiplicative layers to baseStopLossPct.
// Bounds (Testable Property 5): result is always within [0.64*base, 1.5*base].
func ComputeSL(base decimal.Decimal, in SLInputs) decimal.Decimal {
	mult := decimal.NewFromInt(1)

	switch {
	case in.AvgAbsChange10_30_60.GreaterThan(decimal.NewFromFloat(0.01)):
		mult = mult.Mul(decimal.NewFromFloat(1.5))
	case in.AvgAbsChange10_30_60.LessThan(decimal.NewFromFloat(0.002)):
		mult = mult.Mul(decimal.NewFromFloat(0.8))
	}

	if in.Age > 8*time.Minute {
		mult = mult.Mul(decimal.NewFromFloat(0.8))
	}

	return base.Mul(mult)
}
