package position

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
)

// BaseParams are the LearningStore-derived defaults the layered TP/SL
// computations start from; Manager takes a fresh copy each tick so a
// learning-driven recompute is picked up without restarting the engine.
type BaseParams struct {
	BaseTakeProfitPct decimal.Decimal
	BaseStopLossPct   decimal.Decimal
}

// Quote is a priced, timed snapshot of one market at the moment CheckExits
// runs, sourced from the live exchange market list plus PriceFeed.
type Quote struct {
	CurrentPrice decimal.Decimal
	TimeToClose  time.Duration
	Change10s    decimal.Decimal
	Change30s    decimal.Decimal
	Change60s    decimal.Decimal
}

// Quoter resolves the current quote for an open position's (market, token).
type Quoter interface {
	Quote(marketID, tokenID string) (Quote, bool)
}

// Streak is the RiskState streak counters CheckExits needs for the TP
// streak layer; it is a value copy, never a live pointer into RiskState.
type Streak struct {
	ConsecutiveWins int
	ConsecutiveLoss int
}

// ReversalAdvisor lets CheckExits consult the ensemble for the opportunistic
// reversal-exit trigger (§4.7.4 step 6). A nil ReversalAdvisor disables that
// trigger entirely rather than treating it as always-false.
type ReversalAdvisor interface {
	Reversed(pos Position) (consensus float64, reversed bool)
}

// ExitDecision is what CheckExits returns for one position that should be
// sold this tick; OrderExecutor turns it into a sell order.
type ExitDecision struct {
	Position Position
	Reason   ExitReason
	SellAt   decimal.Decimal
}

// emergencyGrace bounds how long a Closing position may sit unsettled past
// its market's close before being marked Stuck.
const emergencyGrace = 0

// trailingRetracePct is how far price must retrace from its peak unrealized
// gain, once TP has been reached at least once, to fire the trailing stop.
const trailingRetracePct = 0.20

// maxSellAttempts bounds retries for a Closing position before it is
// considered stuck (subject also to the market-close deadline).
const maxSellAttempts = 5

// Config controls the two time-based exit thresholds named in §4.7.4/§6;
// the layered TP/SL percentages themselves come from learning.BaseParams,
// not here.
type Config struct {
	MaxHoldMinutes              int `yaml:"max_hold_minutes"`
	ForceExitMinutesBeforeClose int `yaml:"force_exit_minutes_before_close"`
}

// DefaultConfig matches the minutes named in §4.7.4/§6.
func DefaultConfig() Config {
	return Config{MaxHoldMinutes: 13, ForceExitMinutesBeforeClose: 2}
}

// Manager is the authoritative open-position set. Only the scan goroutine
// calls Register or CheckExits — see the package doc.
type Manager struct {
	open map[Key]*Position

	maxHoldAge      time.Duration
	forceExitWindow time.Duration
}

// NewManager constructs an empty position set governed by cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		open:            make(map[Key]*Position),
		maxHoldAge:      time.Duration(cfg.MaxHoldMinutes) * time.Minute,
		forceExitWindow: time.Duration(cfg.ForceExitMinutesBeforeClose) * time.Minute,
	}
}

// Register records a confirmed fill as an Open position. actual_size must
// be exactly what the exchange reported filled (Testable Property 1).
func (m *Manager) Register(p Position) {
	p.State = StateOpen
	p.EntryValue = p.EntryValueOf()
	k := p.key()
	m.open[k] = &p
}

// Recover re-registers a position loaded from the positions.json checkpoint
// at startup, preserving whatever state it was in when the process stopped.
func (m *Manager) Recover(p Position) {
	k := p.key()
	m.open[k] = &p
}

// Open returns every position currently tracked, Open or Closing.
func (m *Manager) Open() []Position {
	out := make([]Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	return out
}

// Get returns the tracked position for (marketID, side), if any.
func (m *Manager) Get(marketID string, side Side) (Position, bool) {
	p, ok := m.open[Key{MarketID: marketID, Side: side}]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// ExposureUSD sums entry_value across every open (non-Closed) position.
func (m *Manager) ExposureUSD() decimal.Decimal {
	total := decimal.Zero
	for _, p := range m.open {
		if p.State == StateOpen || p.State == StateClosing {
			total = total.Add(p.EntryValue)
		}
	}
	return total
}

// CheckExits evaluates every Open position's exit triggers in the §4.7.4
// fixed order and returns a decision for each position that should be sold
// this tick. Positions already Closing are retried via RetrySell instead.
func (m *Manager) CheckExits(now time.Time, base BaseParams, q Quoter, streak Streak, reversal ReversalAdvisor) []ExitDecision {
	var decisions []ExitDecision
	for k, p := range m.open {
		if p.State != StateOpen {
			continue
		}
		quote, ok := q.Quote(p.MarketID, p.TokenID)
		if !ok {
			continue
		}

		age := now.Sub(p.EntryTime)
		unrealized := p.UnrealizedPct(quote.CurrentPrice)

		tp := ComputeTP(base.BaseTakeProfitPct, p.Side, TPInputs{
			TimeToClose:     quote.TimeToClose,
			Age:             age,
			Change30s:       quote.Change30s,
			ConsecutiveWins: streak.ConsecutiveWins,
			ConsecutiveLoss: streak.ConsecutiveLoss,
		})
		avgAbsChange := quote.Change10s.Abs().Add(quote.Change30s.Abs()).Add(quote.Change60s.Abs()).Div(decimal.NewFromInt(3))
		sl := ComputeSL(base.BaseStopLossPct, SLInputs{AvgAbsChange10_30_60: avgAbsChange, Age: age})

		if unrealized.GreaterThan(p.PeakUnrealizedPct) {
			p.PeakUnrealizedPct = unrealized
		}

		reason, fires := evaluateExitTriggers(m.forceExitWindow, m.maxHoldAge, quote.TimeToClose, unrealized, tp, sl, p.PeakUnrealizedPct, age, p, reversal)
		if !fires {
			continue
		}

		decisions = append(decisions, ExitDecision{Position: *p, Reason: reason, SellAt: quote.CurrentPrice})
		p.State = StateClosing
		p.PendingSellSize = p.ActualSize
		delete(m.open, k)
		m.open[k] = p
	}
	return decisions
}

func evaluateExitTriggers(forceExitWindow, maxHoldAge, timeToClose time.Duration, unrealized, tp, sl, peak decimal.Decimal, age time.Duration, p *Position, reversal ReversalAdvisor) (ExitReason, bool) {
	if timeToClose < forceExitWindow {
		return ExitMarketClose, true
	}
	if unrealized.GreaterThanOrEqual(tp) {
		return ExitTakeProfit, true
	}
	if peak.GreaterThanOrEqual(tp) {
		retrace := peak.Sub(unrealized)
		if retrace.GreaterThanOrEqual(peak.Mul(decimal.NewFromFloat(trailingRetracePct))) {
			return ExitTrailingStop, true
		}
	}
	if unrealized.LessThanOrEqual(sl.Neg()) {
		return ExitStopLoss, true
	}
	if age >= maxHoldAge {
		return ExitTimeExit, true
	}
	if reversal != nil && unrealized.IsPositive() {
		if consensus, reversed := reversal.Reversed(*p); reversed && consensus >= 0.60 {
			return ExitReversal, true
		}
	}
	return "", false
}

// ConfirmExit finalizes a Closing position once its sell order fills,
// transitioning it to Closed and returning the realized P&L for
// LearningStore/RiskState bookkeeping.
func (m *Manager) ConfirmExit(marketID string, side Side, filledSize, exitPrice decimal.Decimal) (Position, decimal.Decimal, error) {
	k := Key{MarketID: marketID, Side: side}
	p, ok := m.open[k]
	if !ok || p.State != StateClosing {
		return Position{}, decimal.Zero, fmt.Errorf("position: no closing position for %s/%s", marketID, side)
	}
	realized := exitPrice.Sub(p.EntryPrice).Mul(filledSize)
	p.State = StateClosed
	closed := *p
	delete(m.open, k)
	return closed, realized, nil
}

// ReducePendingSell records a partial sell fill against a Closing position,
// subtracting the filled amount from the remaining size to dispose of. The
// caller is expected to follow up with RetrySell to reschedule the
// remainder for the next tick.
func (m *Manager) ReducePendingSell(marketID string, side Side, filled decimal.Decimal) {
	k := Key{MarketID: marketID, Side: side}
	p, ok := m.open[k]
	if !ok {
		return
	}
	p.PendingSellSize = p.PendingSellSize.Sub(filled)
	if p.PendingSellSize.IsNegative() {
		p.PendingSellSize = decimal.Zero
	}
}

// RetrySell marks a failed sell attempt. If the market has already closed,
// or attempts are exhausted, the position is marked Stuck and left for the
// exchange's own settlement; otherwise it reverts to Open for retry next
// tick, per §4.7.5.
func (m *Manager) RetrySell(marketID string, side Side, timeToClose time.Duration) {
	k := Key{MarketID: marketID, Side: side}
	p, ok := m.open[k]
	if !ok {
		return
	}
	p.SellAttempts++
	if timeToClose < emergencyGrace || p.SellAttempts > maxSellAttempts {
		p.State = StateStuck
		logx.Errorf("position: %s/%s stuck after %d sell attempts, time_to_close=%s", marketID, side, p.SellAttempts, timeToClose)
		return
	}
	p.State = StateOpen
}
