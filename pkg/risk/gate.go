package risk

import (
	"github.com/shopspring/decimal"

	"predictcore/pkg/decimalx"
	"predictcore/pkg/exchange"
)

// TradeRequest is the entry candidate StrategyDispatcher hands to the gate.
type TradeRequest struct {
	Asset           string
	Strategy        string // "sum_to_one" | "latency" | "directional"
	Side            exchange.OrderSide
	LimitPrice      decimal.Decimal
	DesiredNotional decimal.Decimal

	// Confidence and ImpliedProb only matter for directional trades; they
	// feed the Kelly edge check.
	Confidence float64 // 0..1, ensemble's win-probability estimate
	ImpliedProb decimal.Decimal // market-implied probability, i.e. LimitPrice

	AvailableBalance decimal.Decimal
	OpenExposureUSD  decimal.Decimal
	OrderBook        *exchange.OrderBook // nil if unavailable
}

// Approval is the gate's verdict: either a sized, ready-to-submit order, or
// a veto naming the first check that failed.
type Approval struct {
	Approved bool
	Reason   Reason
	Message  string

	Shares decimal.Decimal
	Price  decimal.Decimal
	Value  decimal.Decimal
}

func veto(reason Reason, message string) Approval {
	return Approval{Approved: false, Reason: reason, Message: message}
}

// Mode is the core's externally observable trading state (§5/§8).
type Mode string

const (
	ModeTrading       Mode = "trading"
	ModeEntriesPaused Mode = "entries_paused"
	ModeHalted        Mode = "halted"
)

// ModeFor reports whether new entries are paused under cfg/state: the
// circuit breaker has tripped, or today's realized loss cap has been
// reached. Exits are unaffected either way — only Evaluate's first two
// (standing) checks are reflected here, not the per-request ones.
func ModeFor(cfg Config, state State) Mode {
	if state.ConsecutiveLosses >= cfg.CircuitBreakerLosses {
		return ModeEntriesPaused
	}
	dailyCap := state.DailyStartBalance.Mul(cfg.DailyLossCapPct)
	if state.DailyLossAccumulated.GreaterThanOrEqual(dailyCap) {
		return ModeEntriesPaused
	}
	return ModeTrading
}

// Mode reports the gate's current standing trading state.
func (g *Gate) Mode() Mode {
	return ModeFor(g.cfg, *g.state)
}

// Gate evaluates TradeRequests against Config and the live State.
type Gate struct {
	cfg   Config
	state *State
}

// NewGate constructs a Gate over the given config and state. The state is
// shared with ScanLoop/PositionManager exit bookkeeping via RecordWin/Loss.
func NewGate(cfg Config, state *State) *Gate {
	return &Gate{cfg: cfg, state: state}
}

// Evaluate runs the seven ordered checks from §4.6, vetoing on the first
// failure. A non-directional request (sum_to_one, latency) skips the
// Kelly-edge sizing step and instead sizes directly off DesiredNotional.
func (g *Gate) Evaluate(req TradeRequest) Approval {
	if g.state.ConsecutiveLosses >= g.cfg.CircuitBreakerLosses {
		return veto(ReasonCircuitBreaker, "circuit breaker active after consecutive losses")
	}

	dailyCap := g.state.DailyStartBalance.Mul(g.cfg.DailyLossCapPct)
	if g.state.DailyLossAccumulated.GreaterThanOrEqual(dailyCap) {
		return veto(ReasonDailyLossLimit, "daily realized loss cap reached")
	}

	exposureCap := g.cfg.StandardExposureCap
	if req.AvailableBalance.LessThanOrEqual(g.cfg.SmallBalanceThreshold) {
		exposureCap = g.cfg.SmallBalanceExposure
	}
	projectedExposure := req.OpenExposureUSD.Add(req.DesiredNotional)
	heatCap := req.AvailableBalance.Mul(exposureCap)
	if projectedExposure.GreaterThan(heatCap) {
		return veto(ReasonExposure, "position would exceed portfolio heat cap")
	}

	notional := req.DesiredNotional.Mul(g.state.PositionSizeMultiplier)

	if req.Strategy == "directional" {
		impliedProb, _ := req.ImpliedProb.Float64()
		edge := req.Confidence - impliedProb - mustFloat(g.cfg.FeePct)
		if decimal.NewFromFloat(edge).LessThan(g.cfg.MinEdge) {
			return veto(ReasonKellyEdge, "edge below minimum after fees")
		}

		kellyFrac := kellyFraction(req.Confidence, impliedProb)
		stakeFraction := decimal.NewFromFloat(kellyFrac).Mul(g.cfg.FractionOfKelly)
		if stakeFraction.GreaterThan(g.cfg.MaxPositionPct) {
			stakeFraction = g.cfg.MaxPositionPct
		}
		kellyNotional := req.AvailableBalance.Mul(stakeFraction)
		if kellyNotional.LessThan(notional) {
			notional = kellyNotional
		}
	}

	if req.OrderBook != nil {
		slippage := estimateSlippage(req.OrderBook, req.Side, notional, req.LimitPrice)
		if slippage.GreaterThan(g.cfg.MaxSlippage) {
			return veto(ReasonLiquidity, "order would incur excessive slippage")
		}
	}

	side := decimalx.Buy
	if req.Side == exchange.SideSell {
		side = decimalx.Sell
	}
	shares, price, value, err := decimalx.ComputeOrderSize(notional, req.LimitPrice, side)
	if err != nil || value.LessThan(decimalx.MinOrderValue) {
		return veto(ReasonMinOrderValue, "order value below exchange minimum after sizing")
	}

	required := value.Mul(decimal.NewFromInt(1).Add(g.cfg.FeeBuffer))
	if required.GreaterThan(req.AvailableBalance) {
		return veto(ReasonBalanceCheck, "insufficient exchange balance for sized order plus fee buffer")
	}

	return Approval{Approved: true, Shares: shares, Price: price, Value: value}
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// estimateSlippage walks the relevant side of the book (asks for a buy, bids
// for a sell) consuming depth until notional is filled, returning the
// fractional slippage of the resulting volume-weighted price versus the
// limit price. An empty book returns zero slippage (proceed but log is the
// caller's responsibility via the returned nil-book case).
func estimateSlippage(book *exchange.OrderBook, side exchange.OrderSide, notional, limitPrice decimal.Decimal) decimal.Decimal {
	levels := book.Asks
	if side == exchange.SideSell {
		levels = book.Bids
	}
	if len(levels) == 0 || limitPrice.IsZero() {
		return decimal.Zero
	}

	remaining := notional
	var filledValue, filledShares decimal.Decimal
	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		levelValue := lvl.Price.Mul(lvl.Size)
		take := levelValue
		takeShares := lvl.Size
		if take.GreaterThan(remaining) {
			takeShares = remaining.Div(lvl.Price)
			take = remaining
		}
		filledValue = filledValue.Add(take)
		filledShares = filledShares.Add(takeShares)
		remaining = remaining.Sub(take)
	}
	if filledShares.IsZero() {
		return decimal.Zero
	}
	vwap := filledValue.Div(filledShares)
	return vwap.Sub(limitPrice).Div(limitPrice).Abs()
}
