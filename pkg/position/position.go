// Package position owns the authoritative set of open trading positions.
// Only the scan goroutine ever calls Register or CheckExits; this package
// does no locking of its own because it relies on that single-writer
// guarantee from the concurrency model.
package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is which token within the binary market a position holds.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

// State is a position's place in the Pending -> Open -> Closing -> Closed |
// Stuck state machine (§4.7.5).
type State string

const (
	// StatePending is held only by OrderExecutor between order submission
	// and a confirmed fill; Manager never stores a position in this state,
	// since Register is only called once the exchange confirms.
	StatePending State = "PENDING"
	StateOpen    State = "OPEN"
	StateClosing State = "CLOSING"
	StateClosed  State = "CLOSED"
	StateStuck   State = "STUCK"
)

// ExitReason names why CheckExits decided to close a position.
type ExitReason string

const (
	ExitMarketClose  ExitReason = "market_close"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTimeExit     ExitReason = "time_exit"
	ExitReversal     ExitReason = "reversal"
)

// Position is one open (or closing) trade. actual_size is authoritative:
// it is whatever the exchange reported filled, never the requested size.
type Position struct {
	MarketID  string
	TokenID   string
	Asset     string
	Side      Side
	Strategy  string
	EntryPrice decimal.Decimal
	ActualSize decimal.Decimal
	EntryTime  time.Time
	EntryValue decimal.Decimal
	CloseTime  time.Time // market close time, not position close

	// EntryMomentum/EntryYesPrice/EntryNoPrice are the ensemble Request
	// values in effect when this position was opened. They exist only so
	// the RL advisor's Update can rebuild the same discretized state it
	// voted on once the trade closes; nothing else reads them.
	EntryMomentum float64
	EntryYesPrice float64
	EntryNoPrice  float64

	State State

	PeakUnrealizedPct decimal.Decimal // high-water mark for the trailing-stop rule
	SellAttempts      int
	PendingSellSize   decimal.Decimal // remaining size to sell once Closing
}

// Key identifies a position uniquely within the open set.
type Key struct {
	MarketID string
	Side     Side
}

func (p Position) key() Key { return Key{MarketID: p.MarketID, Side: p.Side} }

// EntryValueOf returns entry_price * actual_size, the canonical exposure
// contribution of a position.
func (p Position) EntryValueOf() decimal.Decimal {
	return p.EntryPrice.Mul(p.ActualSize)
}

// UnrealizedPct computes the signed percentage gain of holding this position
// at currentPrice, positive when favorable regardless of side.
func (p Position) UnrealizedPct(currentPrice decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return currentPrice.Sub(p.EntryPrice).Div(p.EntryPrice)
}
