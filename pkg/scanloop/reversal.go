package scanloop

import (
	"context"
	"time"

	"predictcore/pkg/ensemble"
	"predictcore/pkg/market"
	"predictcore/pkg/position"
	"predictcore/pkg/pricefeed"
)

// reversalMinConsensus is the §4.7.4 step 6 threshold: only an ensemble
// decision the opposite side clears decisively reverses an otherwise-held
// position.
const reversalMinConsensus = 0.60

// reversalAdvisor satisfies position.ReversalAdvisor by asking the same
// ensemble the directional strategy consults whether it now favors the
// opposite side from the one a position holds.
type reversalAdvisor struct {
	ensemble *ensemble.Ensemble
	feed     pricefeed.Feed
}

func newReversalAdvisor(ens *ensemble.Ensemble, feed pricefeed.Feed) *reversalAdvisor {
	return &reversalAdvisor{ensemble: ens, feed: feed}
}

// Reversed implements position.ReversalAdvisor.
func (r *reversalAdvisor) Reversed(pos position.Position) (float64, bool) {
	asset := market.Asset(pos.Asset)
	req := ensemble.Request{
		MarketID:        pos.MarketID,
		Asset:           pos.Asset,
		Strategy:        pos.Strategy,
		HourOfDay:       time.Now().UTC().Hour(),
		PriceSeries1m:   toFloatSeries(r.feed.Series(asset, 60)),
		PriceSeries5m:   toFloatSeries(r.feed.Series(asset, 300)),
		OpportunityType: ensemble.OpportunityDirectional,
	}

	wantAction := ensemble.BuyNo
	if pos.Side == position.SideDown {
		wantAction = ensemble.BuyYes
	}

	decision := r.ensemble.Decide(context.Background(), req)
	if decision.Action != wantAction {
		return decision.Consensus, false
	}
	return decision.Consensus, decision.Consensus >= reversalMinConsensus
}
