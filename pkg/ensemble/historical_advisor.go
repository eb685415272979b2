package ensemble

import "context"

// WinRateLookup is the slice of LearningStore's aggregates the historical
// advisor needs: win rate for a (strategy, asset, hour-of-day) bucket.
// Defined here rather than imported from pkg/learning to avoid a dependency
// cycle; pkg/learning's Store satisfies this interface.
type WinRateLookup interface {
	WinRate(strategy, asset string, hourOfDay int) (rate float64, ok bool)
}

// HistoricalAdvisor votes based on the recorded win rate for the proposed
// (strategy, asset, hour) bucket. A tie at exactly 0.50, or no recorded
// history at all, resolves to NEUTRAL.
type HistoricalAdvisor struct {
	lookup WinRateLookup
	weight float64
}

// NewHistoricalAdvisor constructs the advisor over a win-rate source.
func NewHistoricalAdvisor(lookup WinRateLookup, weight float64) *HistoricalAdvisor {
	return &HistoricalAdvisor{lookup: lookup, weight: weight}
}

// Name implements Advisor.
func (a *HistoricalAdvisor) Name() string { return "historical" }

// Vote implements Advisor.
func (a *HistoricalAdvisor) Vote(ctx context.Context, req Request) AdvisorVote {
	rate, ok := a.lookup.WinRate(req.Strategy, req.Asset, req.HourOfDay)
	if !ok {
		return AdvisorVote{Advisor: a.Name(), Action: Neutral, Weight: a.weight, Reason: "no history"}
	}

	action := impliedAction(req)
	switch {
	case rate >= 0.55:
		return AdvisorVote{
			Advisor:    a.Name(),
			Action:     action,
			Confidence: confidenceFromWinRate(rate),
			Weight:     a.weight,
			Reason:     "favorable historical win rate",
		}
	case rate <= 0.45:
		return AdvisorVote{Advisor: a.Name(), Action: Skip, Confidence: confidenceFromWinRate(1 - rate), Weight: a.weight, Reason: "unfavorable historical win rate"}
	default:
		return AdvisorVote{Advisor: a.Name(), Action: Neutral, Weight: a.weight, Reason: "historical win rate inconclusive"}
	}
}

// impliedAction picks the side this advisor would back when history is
// favorable: the side whose market-implied price is cheaper, i.e. the one
// offering more edge if the favorable base rate holds.
func impliedAction(req Request) Action {
	if req.YesPrice <= req.NoPrice {
		return BuyYes
	}
	return BuyNo
}

func confidenceFromWinRate(rate float64) float64 {
	// Map [0.55, 1.0] (or its mirror below 0.45) onto [55, 100].
	if rate < 0.5 {
		rate = 1 - rate
	}
	return rate * 100
}
