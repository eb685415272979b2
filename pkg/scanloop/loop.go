// Package scanloop ties every other component into the ticker-driven
// pipeline described in §4.1/§5: fetch markets, dispatch the three
// strategies, evaluate exits, and — on a slower cadence — probe balance,
// flush the journal, and roll the risk state's daily counters.
package scanloop

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"predictcore/pkg/ensemble"
	"predictcore/pkg/exchange"
	"predictcore/pkg/journal"
	"predictcore/pkg/learning"
	"predictcore/pkg/market"
	"predictcore/pkg/order"
	"predictcore/pkg/position"
	"predictcore/pkg/pricefeed"
	"predictcore/pkg/risk"
	"predictcore/pkg/strategy"
)

// Config controls the loop's two cadences. Neither interval is itself a
// correctness knob: scan_interval_s trades CPU/API-rate budget for
// reaction latency, heartbeat_interval_s trades checkpoint durability for
// write volume.
type Config struct {
	// ScanInterval/HeartbeatInterval are yaml:"-" because a YAML integer
	// unmarshals into a time.Duration's underlying int64 as nanoseconds, not
	// seconds; internal/config reads the companion *Seconds fields below and
	// converts after unmarshaling, the same pattern ensemble.Config's
	// DecisionDeadline and LLMAdvisorConfig's CacheTTL/MinInterval use.
	ScanInterval      time.Duration `yaml:"-"`
	HeartbeatInterval time.Duration `yaml:"-"`

	ScanIntervalSeconds      int `yaml:"scan_interval_s"`
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_s"`

	// SellSlippagePct is subtracted from the quoted price when pricing an
	// exit SELL, a conservative execution buffer distinct from RiskGate's
	// much looser liquidity-veto MaxSlippage threshold.
	SellSlippagePct decimal.Decimal `yaml:"sell_slippage_pct"`
}

// errFetchBackoff marks a fetch skipped because a prior failure's backoff
// window has not elapsed yet; it is never logged as a fresh failure.
var errFetchBackoff = errors.New("scanloop: fetch backoff in effect")

// DefaultConfig matches the cadences named in §4.1/§5/§6.
func DefaultConfig() Config {
	return Config{
		ScanInterval:      1 * time.Second,
		HeartbeatInterval: 60 * time.Second,
		SellSlippagePct:   decimal.NewFromFloat(0.01),
	}
}

// Loop owns the single scan goroutine: the only writer to PositionManager,
// RiskState (outside the heartbeat's daily reset), and LearningStore.
type Loop struct {
	cfg      Config
	riskCfg  risk.Config
	client   exchange.Client
	feed     pricefeed.Feed
	dispatch *strategy.Dispatcher
	executor *order.Executor
	positions *position.Manager
	learningStore *learning.Store
	riskState *risk.State
	reversal  *reversalAdvisor
	j         *journal.Journal

	rlAdvisor      *ensemble.RLAdvisor
	rlLearningRate float64

	running       int32
	lastHeartbeat time.Time
	markets       map[string]*market.Market

	fetchFailures int
	nextFetchAt   time.Time

	lastHeartbeatBalance     decimal.Decimal
	haveLastHeartbeatBalance bool
}

// New wires every component the loop drives each tick.
func New(
	cfg Config,
	riskCfg risk.Config,
	client exchange.Client,
	feed pricefeed.Feed,
	dispatch *strategy.Dispatcher,
	executor *order.Executor,
	positions *position.Manager,
	learningStore *learning.Store,
	riskState *risk.State,
	ens *ensemble.Ensemble,
	j *journal.Journal,
	rlAdvisor *ensemble.RLAdvisor,
	rlLearningRate float64,
) *Loop {
	return &Loop{
		cfg:            cfg,
		riskCfg:        riskCfg,
		client:         client,
		feed:           feed,
		dispatch:       dispatch,
		executor:       executor,
		positions:      positions,
		learningStore:  learningStore,
		riskState:      riskState,
		reversal:       newReversalAdvisor(ens, feed),
		j:              j,
		markets:        make(map[string]*market.Market),
		rlAdvisor:      rlAdvisor,
		rlLearningRate: rlLearningRate,
	}
}

// Run replays the journal, evaluates exits immediately against whatever was
// recovered (Testable Property 9), then drives the ticker loop until ctx is
// cancelled.
func (l *Loop) Run(ctx context.Context) {
	if err := l.j.Recover(l.positions); err != nil {
		logx.WithContext(ctx).Errorf("scanloop: recover positions: %v", err)
	}
	if snap, ok, err := l.j.LoadLearning(); err != nil {
		logx.WithContext(ctx).Errorf("scanloop: load learning snapshot: %v", err)
	} else if ok {
		l.learningStore.Restore(snap)
	}

	now := time.Now()
	if markets, err := l.fetchMarkets(ctx); err != nil {
		logx.WithContext(ctx).Errorf("scanloop: initial market fetch failed, exits run against recovered positions only: %v", err)
	} else {
		l.setMarkets(markets, now)
	}
	l.runExits(ctx, now)

	ticker := time.NewTicker(l.cfg.ScanInterval)
	defer ticker.Stop()
	l.lastHeartbeat = now

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !atomic.CompareAndSwapInt32(&l.running, 0, 1) {
				logx.WithContext(ctx).Info("scanloop: previous tick still running, skipping this one")
				continue
			}
			l.tick(ctx, now)
			atomic.StoreInt32(&l.running, 0)

			if now.Sub(l.lastHeartbeat) >= l.cfg.HeartbeatInterval {
				l.heartbeat(ctx, now)
				l.lastHeartbeat = now
			}
		}
	}
}

// tick implements one scan_task pass: fetch, dispatch, evaluate exits. A
// fetch failure never blocks exit evaluation — it just runs against the
// last-known market snapshot, per §4.1's FetchError handling.
func (l *Loop) tick(ctx context.Context, now time.Time) {
	markets, err := l.fetchMarkets(ctx)
	switch {
	case err == nil:
		l.setMarkets(markets, now)
	case errors.Is(err, errFetchBackoff):
		// still within backoff; already logged when the failure first hit.
	default:
		logx.WithContext(ctx).Errorf("scanloop: fetch markets failed, using cached list: %v", err)
	}

	if err == nil {
		l.runStrategies(ctx, now)
	}
	l.runExits(ctx, now)
}

func (l *Loop) runStrategies(ctx context.Context, now time.Time) {
	balance, err := l.client.GetBalance(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("scanloop: balance probe failed, skipping entries this tick: %v", err)
		return
	}

	pf := strategy.Portfolio{
		AvailableBalance: balance,
		OpenExposureUSD:  l.positions.ExposureUSD(),
		SizeMultiplier:   l.learningStore.BaseParams().SizeMultiplier,
		State: ensemble.PortfolioState{
			OpenPositions:   len(l.positions.Open()),
			AvailableUSD:    mustFloat(balance),
			ConsecutiveWins: l.riskState.ConsecutiveWins,
			ConsecutiveLoss: l.riskState.ConsecutiveLosses,
		},
	}

	for _, m := range l.markets {
		if !m.IsTradeable(now) {
			continue
		}
		l.dispatch.Run(ctx, m, now, pf)
		pf.OpenExposureUSD = l.positions.ExposureUSD()
	}
}

func (l *Loop) runExits(ctx context.Context, now time.Time) {
	q := newMarketQuoter(l.markets, l.feed, now)
	base := position.BaseParams{
		BaseTakeProfitPct: l.learningStore.BaseParams().BaseTakeProfitPct,
		BaseStopLossPct:   l.learningStore.BaseParams().BaseStopLossPct,
	}
	streak := position.Streak{
		ConsecutiveWins: l.riskState.ConsecutiveWins,
		ConsecutiveLoss: l.riskState.ConsecutiveLosses,
	}

	decisions := l.positions.CheckExits(now, base, q, streak, l.reversal)
	for _, dec := range decisions {
		l.executeExit(ctx, dec, now)
	}
	if len(decisions) > 0 {
		l.flushPositions(ctx)
	}
}

func (l *Loop) executeExit(ctx context.Context, dec position.ExitDecision, now time.Time) {
	pos := dec.Position
	sellPrice := dec.SellAt.Sub(dec.SellAt.Mul(l.cfg.SellSlippagePct))

	fill, err := l.executor.Sell(ctx, pos.TokenID, pos.PendingSellSize, sellPrice)
	if err != nil {
		logx.WithContext(ctx).Errorf("scanloop: sell failed for %s/%s (%s): %v", pos.MarketID, pos.Side, dec.Reason, err)
		l.positions.RetrySell(pos.MarketID, pos.Side, pos.CloseTime.Sub(now))
		return
	}

	if fill.ActualSize.LessThan(pos.PendingSellSize) {
		logx.WithContext(ctx).Infof("scanloop: partial fill selling %s/%s, %s of %s remaining", pos.MarketID, pos.Side, pos.PendingSellSize.Sub(fill.ActualSize), pos.PendingSellSize)
		l.positions.ReducePendingSell(pos.MarketID, pos.Side, fill.ActualSize)
		l.positions.RetrySell(pos.MarketID, pos.Side, pos.CloseTime.Sub(now))
		return
	}

	closed, realized, err := l.positions.ConfirmExit(pos.MarketID, pos.Side, pos.ActualSize, fill.Price)
	if err != nil {
		logx.WithContext(ctx).Errorf("scanloop: confirm exit for %s/%s: %v", pos.MarketID, pos.Side, err)
		return
	}

	if realized.IsNegative() {
		l.riskState.RecordLoss(l.riskCfg, realized)
	} else {
		l.riskState.RecordWin(l.riskCfg)
	}

	profitPct := decimal.Zero
	if !closed.EntryValue.IsZero() {
		profitPct = realized.Div(closed.EntryValue)
	}
	holdTime := now.Sub(closed.EntryTime)

	l.learningStore.Record(learning.Record{
		MarketID:   closed.MarketID,
		Asset:      closed.Asset,
		Strategy:   closed.Strategy,
		HourOfDay:  now.UTC().Hour(),
		ProfitPct:  profitPct,
		ExitReason: string(dec.Reason),
		HoldTime:   holdTime,
		ClosedAt:   now,
	})
	l.updateRLAdvisor(closed, profitPct)

	if err := l.j.AppendTrade(journal.TradeRecord{
		MarketID:    closed.MarketID,
		Asset:       closed.Asset,
		Strategy:    closed.Strategy,
		Side:        string(closed.Side),
		EntryPrice:  closed.EntryPrice,
		ExitPrice:   fill.Price,
		ActualSize:  closed.ActualSize,
		RealizedPnL: realized,
		ProfitPct:   profitPct,
		EntryTime:   closed.EntryTime,
		ExitTime:    now,
		ExitReason:  string(dec.Reason),
	}); err != nil {
		logx.WithContext(ctx).Errorf("scanloop: append trade journal: %v", err)
	}
	l.flushLearning(ctx)

	logx.WithContext(ctx).Infof("scanloop: closed %s/%s reason=%s pnl=%s", closed.MarketID, closed.Side, dec.Reason, realized)
}

// updateRLAdvisor trains the RL advisor's Q-table on the state it voted on
// when this position was opened, rewarding it with the trade's realized
// profit percentage. A no-op for arbitrage legs, which never go through the
// ensemble and so carry a zero-value entry state.
func (l *Loop) updateRLAdvisor(closed position.Position, profitPct decimal.Decimal) {
	if l.rlAdvisor == nil || closed.Strategy == "sum_to_one" {
		return
	}
	action := ensemble.BuyYes
	if closed.Side == position.SideDown {
		action = ensemble.BuyNo
	}
	reward, _ := profitPct.Float64()
	l.rlAdvisor.Update(ensemble.Request{
		RecentMomentum: closed.EntryMomentum,
		YesPrice:       closed.EntryYesPrice,
		NoPrice:        closed.EntryNoPrice,
	}, action, reward, l.rlLearningRate)
}

// fetchBackoffBase/Cap bound the exponential backoff applied to repeated
// FetchError failures (§4.1's "retried with exponential backoff capped at
// 8s"); a FatalError (none currently distinguishable from exchange.Client's
// interface) would instead be surfaced rather than retried.
const (
	fetchBackoffBase = 250 * time.Millisecond
	fetchBackoffCap  = 8 * time.Second
)

func (l *Loop) fetchMarkets(ctx context.Context) ([]*market.Market, error) {
	now := time.Now()
	if now.Before(l.nextFetchAt) {
		return nil, errFetchBackoff
	}

	raw, err := l.client.GetMarkets(ctx)
	if err != nil {
		l.fetchFailures++
		backoff := fetchBackoffBase << uint(l.fetchFailures-1)
		if backoff > fetchBackoffCap || backoff <= 0 {
			backoff = fetchBackoffCap
		}
		l.nextFetchAt = now.Add(backoff)
		return nil, err
	}
	l.fetchFailures = 0
	l.nextFetchAt = time.Time{}

	out := make([]*market.Market, 0, len(raw))
	for _, r := range raw {
		m, err := market.Parse(r, now)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (l *Loop) setMarkets(markets []*market.Market, now time.Time) {
	next := make(map[string]*market.Market, len(markets))
	for _, m := range markets {
		next[m.ID] = m
	}
	l.markets = next
}

// sigFailureThreshold is how many consecutive signing failures are treated
// as "repeated" for the entries_paused health signal (§8).
const sigFailureThreshold = 3

// Mode implements the core's externally observable trading state. Exits
// keep running in every mode; only new entries are affected.
func (l *Loop) Mode() risk.Mode {
	if l.executor.SignatureFailures() >= sigFailureThreshold {
		return risk.ModeEntriesPaused
	}
	return risk.ModeFor(l.riskCfg, *l.riskState)
}

// Healthy reports whether the engine is in any mode short of halted.
func (l *Loop) Healthy() bool {
	return l.Mode() != risk.ModeHalted
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
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
