package ensemble

import (
	"context"
	"math"

	"predictcore/pkg/market/indicators"
)

// TechnicalAdvisor derives a bullish/bearish/neutral signal from 1-minute
// and 5-minute price series using the same EMA/MACD/RSI math the indicators
// package already provides, generalized here to accept a raw price series
// rather than an exchange-kline slice.
type TechnicalAdvisor struct {
	weight float64
}

// NewTechnicalAdvisor constructs the advisor.
func NewTechnicalAdvisor(weight float64) *TechnicalAdvisor {
	return &TechnicalAdvisor{weight: weight}
}

// Name implements Advisor.
func (a *TechnicalAdvisor) Name() string { return "technical" }

// Vote implements Advisor. Insufficient history on both timeframes votes
// NEUTRAL; when only one timeframe has enough history, the vote is derived
// from that timeframe alone.
func (a *TechnicalAdvisor) Vote(ctx context.Context, req Request) AdvisorVote {
	signal1m, ok1m := timeframeSignal(req.PriceSeries1m)
	signal5m, ok5m := timeframeSignal(req.PriceSeries5m)

	if !ok1m && !ok5m {
		return AdvisorVote{Advisor: a.Name(), Action: Neutral, Weight: a.weight, Reason: "insufficient price history"}
	}

	var combined float64
	var n float64
	if ok1m {
		combined += signal1m
		n++
	}
	if ok5m {
		combined += signal5m
		n++
	}
	combined /= n

	action := Neutral
	switch {
	case combined > 0.15:
		action = BuyYes
	case combined < -0.15:
		action = BuyNo
	default:
		action = Skip
	}

	confidence := math.Min(100, math.Abs(combined)*100)
	return AdvisorVote{
		Advisor:    a.Name(),
		Action:     action,
		Confidence: confidence,
		Weight:     a.weight,
		Reason:     "EMA/MACD/RSI composite",
	}
}

// timeframeSignal returns a signed signal in roughly [-1, 1]: positive is
// bullish, negative bearish. It needs at least 30 points for a stable RSI
// read; fewer returns ok=false.
func timeframeSignal(prices []float64) (float64, bool) {
	if len(prices) < 30 {
		return 0, false
	}

	_, _, hist := indicators.MACD(prices)
	rsi := indicators.RSI(prices, 14)

	last := len(prices) - 1
	macdSignal := 0.0
	if !math.IsNaN(hist[last]) {
		macdSignal = clamp(hist[last]/prices[last]*50, -1, 1)
	}

	rsiSignal := 0.0
	if !math.IsNaN(rsi[last]) {
		rsiSignal = clamp((rsi[last]-50)/50, -1, 1)
	}

	return (macdSignal + rsiSignal) / 2, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
