// Package pricefeed maintains rolling per-asset price history sourced from
// an external centralized-exchange spot stream, and answers the
// latest/change/volatility queries StrategyDispatcher needs each tick.
//
// Scheduling model: one goroutine per tracked asset consumes the stream and
// publishes into a per-asset ring buffer guarded by a mutex; this mutex
// plays the role of the cooperative scheduler's ordering guarantee described
// in the concurrency model — the scan goroutine's reads are a
// copy-on-read snapshot of whatever the stream goroutine has published so
// far, never a partial write.
package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"predictcore/pkg/market"
)

// Source is the external streaming source this feed subscribes to: one push
// per (asset, price, timestamp) tuple. StreamFeed consumes the channel it
// returns and, when Subscribe fails or the channel closes, subscribes again
// with exponential backoff.
type Source interface {
	// Subscribe returns a channel of price updates for asset. The channel
	// is closed when ctx is cancelled or the subscription is permanently
	// lost.
	Subscribe(ctx context.Context, asset market.Asset) (<-chan Update, error)
}

// Update is a single streamed price observation.
type Update struct {
	Asset market.Asset
	Price decimal.Decimal
	At    time.Time
}

// Feed is the consumed interface StrategyDispatcher and the Technical
// advisor depend on.
type Feed interface {
	Latest(asset market.Asset) (decimal.Decimal, bool)
	ChangePct(asset market.Asset, seconds int) (decimal.Decimal, bool)
	Volatility(asset market.Asset, windowSeconds int) decimal.Decimal
	// Series returns up to windowSeconds of retained per-second closing
	// prices, oldest first. It may return fewer points than requested when
	// the ring buffer's retained history is shorter, per §4.3's "aligned
	// with data availability" allowance for timeframes beyond the 120s
	// minimum retention window.
	Series(asset market.Asset, windowSeconds int) []decimal.Decimal
}

// reconnectMinBackoff/MaxBackoff bound the exponential backoff applied when
// a stream subscription drops.
const (
	reconnectMinBackoff = 250 * time.Millisecond
	reconnectMaxBackoff = 8 * time.Second
)

type series struct {
	mu   sync.Mutex
	ring *ring
}

// StreamFeed is the concrete Feed backed by a live Source, one goroutine per
// tracked asset.
type StreamFeed struct {
	source Source
	series map[market.Asset]*series
}

// NewStreamFeed constructs a feed tracking the given assets and starts one
// consumer goroutine per asset. It returns without waiting for any
// subscription; each goroutine subscribes and reconnects in the background
// for the lifetime of ctx.
func NewStreamFeed(ctx context.Context, source Source, assets []market.Asset) *StreamFeed {
	f := &StreamFeed{
		source: source,
		series: make(map[market.Asset]*series, len(assets)),
	}
	for _, asset := range assets {
		f.series[asset] = &series{ring: newRing()}
		go f.runAsset(ctx, asset)
	}
	return f
}

func (f *StreamFeed) runAsset(ctx context.Context, asset market.Asset) {
	backoff := reconnectMinBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := f.source.Subscribe(ctx, asset)
		if err != nil {
			logx.WithContext(ctx).Errorf("pricefeed: subscribe %s: %v", asset, err)
			if !sleepBackoff(ctx, &backoff) {
				return
			}
			continue
		}
		backoff = reconnectMinBackoff

		for u := range updates {
			f.publish(asset, u.At, u.Price)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
		logx.WithContext(ctx).Infof("pricefeed: stream for %s closed, reconnecting", asset)
	}
}

func sleepBackoff(ctx context.Context, backoff *time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(*backoff):
	}
	*backoff *= 2
	if *backoff > reconnectMaxBackoff {
		*backoff = reconnectMaxBackoff
	}
	return true
}

func (f *StreamFeed) publish(asset market.Asset, at time.Time, price decimal.Decimal) {
	s, ok := f.series[asset]
	if !ok {
		return
	}
	s.mu.Lock()
	s.ring.push(at, price)
	s.mu.Unlock()
}

// Latest implements Feed.
func (f *StreamFeed) Latest(asset market.Asset) (decimal.Decimal, bool) {
	s, ok := f.series[asset]
	if !ok {
		return decimal.Zero, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ring.latest()
	if !ok {
		return decimal.Zero, false
	}
	return t.price, true
}

// ChangePct implements Feed: percent change over the trailing window ending
// now, or false if history does not reach back that far.
func (f *StreamFeed) ChangePct(asset market.Asset, seconds int) (decimal.Decimal, bool) {
	s, ok := f.series[asset]
	if !ok {
		return decimal.Zero, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, ok := s.ring.latest()
	if !ok {
		return decimal.Zero, false
	}
	past, ok := s.ring.at(latest.at.Add(-time.Duration(seconds) * time.Second))
	if !ok || past.price.IsZero() {
		return decimal.Zero, false
	}
	return latest.price.Sub(past.price).Div(past.price), true
}

// Volatility implements Feed: mean absolute change across a fixed grid of
// 1-second steps over the trailing window.
func (f *StreamFeed) Volatility(asset market.Asset, windowSeconds int) decimal.Decimal {
	s, ok := f.series[asset]
	if !ok {
		return decimal.Zero
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, ok := s.ring.latest()
	if !ok {
		return decimal.Zero
	}

	var sum decimal.Decimal
	count := 0
	prev, havePrev := s.ring.at(latest.at.Add(-time.Duration(windowSeconds) * time.Second))
	for step := 1; step <= windowSeconds; step++ {
		cur, ok := s.ring.at(latest.at.Add(-time.Duration(windowSeconds-step) * time.Second))
		if !ok || !havePrev || prev.price.IsZero() {
			prev = cur
			havePrev = ok
			continue
		}
		sum = sum.Add(cur.price.Sub(prev.price).Div(prev.price).Abs())
		count++
		prev = cur
	}
	if count == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(count)))
}

// Series implements Feed.
func (f *StreamFeed) Series(asset market.Asset, windowSeconds int) []decimal.Decimal {
	s, ok := f.series[asset]
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.series(windowSeconds)
}
