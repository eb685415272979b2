package scanloop

import (
	"time"

	"github.com/shopspring/decimal"

	"predictcore/pkg/market"
	"predictcore/pkg/position"
	"predictcore/pkg/pricefeed"
)

// marketQuoter implements position.Quoter over one tick's market snapshot:
// CurrentPrice comes from the live market list (the token's own price), the
// Change*s come from the underlying asset's spot feed, since those are two
// distinct notions of "price" a position's exit math needs together.
type marketQuoter struct {
	markets map[string]*market.Market
	feed    pricefeed.Feed
	now     time.Time
}

func newMarketQuoter(markets map[string]*market.Market, feed pricefeed.Feed, now time.Time) marketQuoter {
	return marketQuoter{markets: markets, feed: feed, now: now}
}

// Quote implements position.Quoter.
func (q marketQuoter) Quote(marketID, tokenID string) (position.Quote, bool) {
	m, ok := q.markets[marketID]
	if !ok {
		return position.Quote{}, false
	}
	price, ok := tokenPrice(m, tokenID)
	if !ok {
		return position.Quote{}, false
	}
	c10, _ := q.feed.ChangePct(m.Asset, 10)
	c30, _ := q.feed.ChangePct(m.Asset, 30)
	c60, _ := q.feed.ChangePct(m.Asset, 60)
	return position.Quote{
		CurrentPrice: price,
		TimeToClose:  m.TimeToClose(q.now),
		Change10s:    c10,
		Change30s:    c30,
		Change60s:    c60,
	}, true
}

func tokenPrice(m *market.Market, tokenID string) (decimal.Decimal, bool) {
	switch tokenID {
	case m.UpTokenID:
		return m.UpPrice, true
	case m.DownTokenID:
		return m.DownPrice, true
	default:
		return decimal.Zero, false
	}
}
