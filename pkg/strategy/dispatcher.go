// Package strategy runs the three entry strategies — sum_to_one, latency,
// directional — against each scanned market in fixed order, stopping at the
// first that places an order, per §4.4.
package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"predictcore/pkg/ensemble"
	"predictcore/pkg/exchange"
	"predictcore/pkg/market"
	"predictcore/pkg/order"
	"predictcore/pkg/position"
	"predictcore/pkg/pricefeed"
	"predictcore/pkg/risk"
)

// half is the break-even binary-market price; a token price above it implies
// the market favors that side.
var half = decimal.NewFromFloat(0.5)

// Config controls the three strategies' entry thresholds (§4.4/§6).
type Config struct {
	SumToOneThreshold  decimal.Decimal `yaml:"sum_to_one_threshold"`
	MinProfitAfterFees decimal.Decimal `yaml:"min_profit_after_fees"`
	FeeEstimate        decimal.Decimal `yaml:"fee_estimate"`

	LatencyMomentumThreshold decimal.Decimal `yaml:"latency_momentum_threshold"`
	// LatencyEdgeMin and LatencySensitivity are not individually named in
	// §4.4's prose ("gap >= edge_min"); they parameterize the heuristic
	// mapping from underlying momentum to an expected binary-price shift,
	// documented in DESIGN.md as an explicit open-question resolution.
	LatencyEdgeMin     decimal.Decimal `yaml:"latency_edge_min"`
	LatencySensitivity decimal.Decimal `yaml:"latency_sensitivity"`

	DirectionalEnabled bool `yaml:"directional_enabled"`

	MinConsensus  float64 `yaml:"min_consensus"`
	MinConfidence float64 `yaml:"min_confidence"`

	// DefaultNotional is the desired notional per leg before RiskGate's own
	// Kelly/exposure sizing narrows it.
	DefaultNotional decimal.Decimal `yaml:"default_notional"`
}

// DefaultConfig matches the defaults named in §4.4/§6.
func DefaultConfig() Config {
	return Config{
		SumToOneThreshold:        decimal.NewFromFloat(0.98),
		MinProfitAfterFees:       decimal.NewFromFloat(0.005),
		FeeEstimate:              decimal.NewFromFloat(0.03),
		LatencyMomentumThreshold: decimal.NewFromFloat(0.003),
		LatencyEdgeMin:           decimal.NewFromFloat(0.01),
		LatencySensitivity:       decimal.NewFromFloat(1.0),
		DirectionalEnabled:       true,
		// MinConsensus/MinConfidence are named in §6 as 0.15/0.15; Consensus
		// is a 0..1 fraction but Confidence is a weighted average on the
		// 0..100 scale (per ensemble.Decision), so a literal 0.15 confidence
		// floor would never reject anything. Read as "15" on the same scale
		// Confidence is reported in, which is the only reading that makes
		// the threshold a real gate.
		MinConsensus:    0.15,
		MinConfidence:   15,
		DefaultNotional: decimal.NewFromFloat(5.00),
	}
}

// BookSource looks up live order-book depth for the RiskGate's liquidity
// check. exchange.Client satisfies this directly.
type BookSource interface {
	GetOrderBook(ctx context.Context, tokenID string) (*exchange.OrderBook, error)
}

// Portfolio supplies the balance/exposure figures RiskGate and the ensemble
// need, sourced fresh each tick from the exchange and PositionManager.
type Portfolio struct {
	AvailableBalance decimal.Decimal
	OpenExposureUSD  decimal.Decimal
	State            ensemble.PortfolioState

	// SizeMultiplier scales DefaultNotional before RiskGate's own Kelly/
	// exposure sizing narrows it — LearningStore's win-rate-driven knob,
	// distinct from RiskState's circuit-breaker-driven PositionSizeMultiplier
	// that risk.Gate applies on top. Zero (the struct's unset default) is
	// treated as 1, i.e. no adjustment.
	SizeMultiplier decimal.Decimal
}

// Dispatcher runs the three strategies for one market per tick.
type Dispatcher struct {
	cfg       Config
	ensemble  *ensemble.Ensemble
	feed      pricefeed.Feed
	gate      *risk.Gate
	executor  *order.Executor
	positions *position.Manager
	books     BookSource
}

// New constructs a Dispatcher wiring every component a strategy needs to go
// from opportunity detection through a registered position.
func New(cfg Config, ens *ensemble.Ensemble, feed pricefeed.Feed, gate *risk.Gate, executor *order.Executor, positions *position.Manager, books BookSource) *Dispatcher {
	return &Dispatcher{cfg: cfg, ensemble: ens, feed: feed, gate: gate, executor: executor, positions: positions, books: books}
}

// Run evaluates sum_to_one, then (15-min-crypto markets only) latency, then
// directional, stopping at the first strategy that places an order.
func (d *Dispatcher) Run(ctx context.Context, m *market.Market, now time.Time, pf Portfolio) {
	if d.trySumToOne(ctx, m, now, pf) {
		return
	}
	if !m.Is15MinCrypto {
		return
	}
	if d.tryLatency(ctx, m, now, pf) {
		return
	}
	if d.cfg.DirectionalEnabled {
		d.tryDirectional(ctx, m, now, pf)
	}
}

// trySumToOne implements §4.4 step 1. It is considered "fired" — suppressing
// latency/directional this tick — as soon as the price/profit condition
// matches, independent of whether RiskGate ultimately approves either leg.
func (d *Dispatcher) trySumToOne(ctx context.Context, m *market.Market, now time.Time, pf Portfolio) bool {
	total := m.UpPrice.Add(m.DownPrice)
	if total.GreaterThanOrEqual(d.cfg.SumToOneThreshold) {
		return false
	}
	spread := decimal.NewFromInt(1).Sub(total)
	profitAfterFees := spread.Sub(d.cfg.FeeEstimate)
	if profitAfterFees.LessThan(d.cfg.MinProfitAfterFees) {
		return false
	}

	logx.WithContext(ctx).Infof("strategy: sum_to_one opportunity on %s, spread=%s profit_after_fees=%s", m.ID, spread, profitAfterFees)
	d.submitLeg(ctx, m, now, "sum_to_one", position.SideUp, m.UpTokenID, m.UpPrice, 0, half, pf, ensemble.Request{})
	d.submitLeg(ctx, m, now, "sum_to_one", position.SideDown, m.DownTokenID, m.DownPrice, 0, half, pf, ensemble.Request{})
	return true
}

// tryLatency implements §4.4 step 2.
func (d *Dispatcher) tryLatency(ctx context.Context, m *market.Market, now time.Time, pf Portfolio) bool {
	momentum, ok := d.feed.ChangePct(m.Asset, 10)
	if !ok || momentum.Abs().LessThan(d.cfg.LatencyMomentumThreshold) {
		return false
	}

	alignedSide := position.SideUp
	alignedPrice := m.UpPrice
	if momentum.IsNegative() {
		alignedSide = position.SideDown
		alignedPrice = m.DownPrice
	}

	deviation := alignedPrice.Sub(half)
	if alignedSide == position.SideDown {
		deviation = half.Sub(alignedPrice)
	}
	expectedShift := momentum.Abs().Mul(d.cfg.LatencySensitivity)
	gap := expectedShift.Sub(deviation)
	if gap.LessThan(d.cfg.LatencyEdgeMin) {
		return false
	}

	if _, open := d.positions.Get(m.ID, alignedSide); open {
		return false
	}

	req := d.buildRequest(m, now, pf, ensemble.OpportunityLatency, "latency", momentum)
	decision := d.ensemble.Decide(ctx, req)
	if !decision.Approved(d.cfg.MinConsensus, d.cfg.MinConfidence) {
		return false
	}

	tokenID, price := m.UpTokenID, m.UpPrice
	if alignedSide == position.SideDown {
		tokenID, price = m.DownTokenID, m.DownPrice
	}
	d.submitLeg(ctx, m, now, "latency", alignedSide, tokenID, price, decision.Confidence, price, pf, req)
	return true
}

// tryDirectional implements §4.4 step 3.
func (d *Dispatcher) tryDirectional(ctx context.Context, m *market.Market, now time.Time, pf Portfolio) bool {
	req := d.buildRequest(m, now, pf, ensemble.OpportunityDirectional, "directional", decimal.Zero)
	decision := d.ensemble.Decide(ctx, req)
	if !decision.Approved(d.cfg.MinConsensus, d.cfg.MinConfidence) {
		return false
	}

	var side position.Side
	var tokenID string
	var price decimal.Decimal
	switch decision.Action {
	case ensemble.BuyYes:
		side, tokenID, price = position.SideUp, m.UpTokenID, m.UpPrice
	case ensemble.BuyNo:
		side, tokenID, price = position.SideDown, m.DownTokenID, m.DownPrice
	default:
		// BuyBoth is downgraded to Skip for directional requests by
		// ensemble.Combine; Skip never reaches here since Approved
		// rejects it above.
		return false
	}

	if _, open := d.positions.Get(m.ID, side); open {
		return false
	}

	d.submitLeg(ctx, m, now, "directional", side, tokenID, price, decision.Confidence, price, pf, req)
	return true
}

// buildRequest assembles the ensemble Request common to latency and
// directional opportunities.
func (d *Dispatcher) buildRequest(m *market.Market, now time.Time, pf Portfolio, ot ensemble.OpportunityType, strategy string, momentum decimal.Decimal) ensemble.Request {
	momentumF, _ := momentum.Float64()
	upF, _ := m.UpPrice.Float64()
	downF, _ := m.DownPrice.Float64()
	return ensemble.Request{
		MarketID:        m.ID,
		Asset:           string(m.Asset),
		Strategy:        strategy,
		HourOfDay:       now.UTC().Hour(),
		YesPrice:        upF,
		NoPrice:         downF,
		RecentMomentum:  momentumF,
		PriceSeries1m:   toFloatSeries(d.feed.Series(m.Asset, 60)),
		PriceSeries5m:   toFloatSeries(d.feed.Series(m.Asset, 300)),
		PortfolioState:  pf.State,
		OpportunityType: ot,
	}
}

// submitLeg runs RiskGate.Evaluate for one leg and, on approval, submits the
// buy and registers the resulting fill. confidence/impliedProb only matter
// for directional requests (risk.Gate skips the Kelly step otherwise).
func (d *Dispatcher) submitLeg(ctx context.Context, m *market.Market, now time.Time, strategyName string, side position.Side, tokenID string, limitPrice decimal.Decimal, confidencePct float64, impliedProb decimal.Decimal, pf Portfolio, req ensemble.Request) {
	var book *exchange.OrderBook
	if d.books != nil {
		b, err := d.books.GetOrderBook(ctx, tokenID)
		if err != nil {
			logx.WithContext(ctx).Errorf("strategy: order book fetch failed for %s: %v", tokenID, err)
		} else {
			book = b
		}
	}

	sizeMultiplier := pf.SizeMultiplier
	if sizeMultiplier.IsZero() {
		sizeMultiplier = decimal.NewFromInt(1)
	}

	req := risk.TradeRequest{
		Asset:            string(m.Asset),
		Strategy:         strategyName,
		Side:             exchange.SideBuy,
		LimitPrice:       limitPrice,
		DesiredNotional:  d.cfg.DefaultNotional.Mul(sizeMultiplier),
		Confidence:       confidencePct / 100,
		ImpliedProb:      impliedProb,
		AvailableBalance: pf.AvailableBalance,
		OpenExposureUSD:  pf.OpenExposureUSD,
		OrderBook:        book,
	}
	approval := d.gate.Evaluate(req)
	if !approval.Approved {
		logx.WithContext(ctx).Infof("strategy: %s veto on %s/%s: %s (%s)", strategyName, m.ID, side, approval.Reason, approval.Message)
		return
	}

	fill, err := d.executor.Buy(ctx, tokenID, approval.Value, approval.Price)
	if err != nil {
		logx.WithContext(ctx).Errorf("strategy: %s buy failed on %s/%s: %v", strategyName, m.ID, side, err)
		return
	}

	d.positions.Register(position.Position{
		MarketID:      m.ID,
		TokenID:       tokenID,
		Asset:         string(m.Asset),
		Side:          side,
		Strategy:      strategyName,
		EntryPrice:    fill.Price,
		ActualSize:    fill.ActualSize,
		EntryTime:     now,
		CloseTime:     m.CloseTime,
		EntryMomentum: req.RecentMomentum,
		EntryYesPrice: req.YesPrice,
		EntryNoPrice:  req.NoPrice,
	})
	logx.WithContext(ctx).Infof("strategy: %s opened %s/%s size=%s price=%s", strategyName, m.ID, side, fill.ActualSize, fill.Price)
}

func toFloatSeries(decs []decimal.Decimal) []float64 {
	if len(decs) == 0 {
		return nil
	}
	out := make([]float64, len(decs))
	for i, d := range decs {
		f, _ := d.Float64()
		out[i] = f
	}
	return out
}
