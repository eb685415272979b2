package pricefeed

import (
	"time"

	"github.com/shopspring/decimal"
)

// historyWindow is the minimum retained history per asset (>= 120s per the
// component design).
const historyWindow = 150 * time.Second

type tick struct {
	at    time.Time
	price decimal.Decimal
}

// ring is a time-bounded append-only buffer of price ticks for one asset.
// It is not safe for concurrent use on its own; the owning series guards it
// with a mutex at the publish/read boundary.
type ring struct {
	ticks []tick
}

func newRing() *ring {
	return &ring{ticks: make([]tick, 0, 256)}
}

func (r *ring) push(at time.Time, price decimal.Decimal) {
	r.ticks = append(r.ticks, tick{at: at, price: price})
	cutoff := at.Add(-historyWindow)
	i := 0
	for i < len(r.ticks) && r.ticks[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		r.ticks = append(r.ticks[:0], r.ticks[i:]...)
	}
}

func (r *ring) latest() (tick, bool) {
	if len(r.ticks) == 0 {
		return tick{}, false
	}
	return r.ticks[len(r.ticks)-1], true
}

// at returns the most recent tick at or before the given time, and whether
// history reaches back that far.
func (r *ring) at(target time.Time) (tick, bool) {
	var best tick
	found := false
	for _, t := range r.ticks {
		if t.at.After(target) {
			break
		}
		best = t
		found = true
	}
	return best, found
}

// series returns every retained price within windowSeconds of the latest
// tick, oldest first. Returns fewer points than requested (even zero) when
// retained history is shorter than windowSeconds.
func (r *ring) series(windowSeconds int) []decimal.Decimal {
	if len(r.ticks) == 0 {
		return nil
	}
	latest := r.ticks[len(r.ticks)-1]
	cutoff := latest.at.Add(-time.Duration(windowSeconds) * time.Second)
	out := make([]decimal.Decimal, 0, len(r.ticks))
	for _, t := range r.ticks {
		if t.at.Before(cutoff) {
			continue
		}
		out = append(out, t.price)
	}
	return out
}
