// Package learning maintains the append-only trade-outcome log's derived
// in-memory aggregates and recomputes the engine's adaptive BaseParams
// after each exit, per §4.9.
package learning

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Config controls when BaseParams recomputation kicks in and how fast the
// size multiplier reacts.
type Config struct {
	MinTradesForLearning int     `yaml:"min_trades_for_learning"`
	LearningRate         float64 `yaml:"learning_rate"`

	// InitialBaseTakeProfitPct/InitialBaseStopLossPct seed BaseParams before
	// MinTradesForLearning trades have accrued; zero means "use the §6
	// defaults" (see DefaultConfig), not "zero percent".
	InitialBaseTakeProfitPct float64 `yaml:"base_take_profit_pct"`
	InitialBaseStopLossPct   float64 `yaml:"base_stop_loss_pct"`
}

// DefaultConfig matches the defaults named in §4.9/§6.
func DefaultConfig() Config {
	return Config{
		MinTradesForLearning:     5,
		LearningRate:             0.1,
		InitialBaseTakeProfitPct: 0.005,
		InitialBaseStopLossPct:   0.010,
	}
}

// seedBaseParams returns the pre-learning BaseParams implied by cfg,
// falling back to DefaultBaseParams's percentages when cfg leaves either
// initial percentage unset.
func (cfg Config) seedBaseParams() BaseParams {
	base := DefaultBaseParams()
	if cfg.InitialBaseTakeProfitPct != 0 {
		base.BaseTakeProfitPct = decimal.NewFromFloat(cfg.InitialBaseTakeProfitPct)
	}
	if cfg.InitialBaseStopLossPct != 0 {
		base.BaseStopLossPct = decimal.NewFromFloat(cfg.InitialBaseStopLossPct)
	}
	return base
}

// BaseParams are the learning-derived defaults PositionManager's layered
// TP/SL computations start from each tick.
type BaseParams struct {
	BaseTakeProfitPct decimal.Decimal
	BaseStopLossPct   decimal.Decimal
	SizeMultiplier    decimal.Decimal
}

// DefaultBaseParams seeds the engine before any trade history exists.
func DefaultBaseParams() BaseParams {
	return BaseParams{
		BaseTakeProfitPct: decimal.NewFromFloat(0.005),
		BaseStopLossPct:   decimal.NewFromFloat(0.010),
		SizeMultiplier:    decimal.NewFromInt(1),
	}
}

// Record is one closed position's outcome, appended to trade_journal.ndjson
// by the journal package and fed into the store here.
type Record struct {
	MarketID    string
	Asset       string
	Strategy    string
	HourOfDay   int
	ProfitPct   decimal.Decimal // signed: positive is a win
	ExitReason  string
	HoldTime    time.Duration
	ClosedAt    time.Time
}

// Stats is a trades/wins/total-profit-pct rollup for one aggregate bucket.
type Stats struct {
	Trades        int
	Wins          int
	TotalProfitPct decimal.Decimal
}

func (s Stats) winRate() (float64, bool) {
	if s.Trades == 0 {
		return 0, false
	}
	return float64(s.Wins) / float64(s.Trades), true
}

type bucketKey struct {
	Strategy string
	Asset    string
	Hour     int
}

func (k bucketKey) String() string {
	return fmt.Sprintf("%s|%s|%d", k.Strategy, k.Asset, k.Hour)
}

// Store is the single-writer (scan_task) learning aggregate set. Advisor
// goroutines only ever call WinRate, which is safe for concurrent readers.
type Store struct {
	cfg Config

	mu sync.RWMutex

	buckets  map[bucketKey]*Stats
	byStrat  map[string]*Stats
	byAsset  map[string]*Stats
	byHour   map[int]*Stats

	winningProfitSum decimal.Decimal
	winningCount     int
	losingProfitSum  decimal.Decimal // stored as a positive magnitude
	losingCount      int
	totalTrades      int

	base BaseParams
}

// NewStore constructs a Store seeded with DefaultBaseParams; call Restore
// after construction to replay a persisted learning.json snapshot.
func NewStore(cfg Config) *Store {
	return &Store{
		cfg:     cfg,
		buckets: make(map[bucketKey]*Stats),
		byStrat: make(map[string]*Stats),
		byAsset: make(map[string]*Stats),
		byHour:  make(map[int]*Stats),
		base:    cfg.seedBaseParams(),
	}
}

// Record folds one closed position's outcome into every aggregate
// dimension and, once enough trades have accrued, recomputes BaseParams.
func (s *Store) Record(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	win := rec.ProfitPct.IsPositive()

	s.bump(s.bucketStats(bucketKey{rec.Strategy, rec.Asset, rec.HourOfDay}), rec, win)
	s.bump(s.dimStats(s.byStrat, rec.Strategy), rec, win)
	s.bump(s.dimStats(s.byAsset, rec.Asset), rec, win)
	s.bump(s.hourStats(rec.HourOfDay), rec, win)

	s.totalTrades++
	if win {
		s.winningCount++
		s.winningProfitSum = s.winningProfitSum.Add(rec.ProfitPct)
	} else {
		s.losingCount++
		s.losingProfitSum = s.losingProfitSum.Add(rec.ProfitPct.Abs())
	}

	if s.totalTrades >= s.cfg.MinTradesForLearning {
		s.recomputeBaseParams()
	}
}

func (s *Store) bump(stats *Stats, rec Record, win bool) {
	stats.Trades++
	if win {
		stats.Wins++
	}
	stats.TotalProfitPct = stats.TotalProfitPct.Add(rec.ProfitPct)
}

func (s *Store) bucketStats(k bucketKey) *Stats {
	st, ok := s.buckets[k]
	if !ok {
		st = &Stats{}
		s.buckets[k] = st
	}
	return st
}

func (s *Store) dimStats(m map[string]*Stats, key string) *Stats {
	st, ok := m[key]
	if !ok {
		st = &Stats{}
		m[key] = st
	}
	return st
}

func (s *Store) hourStats(hour int) *Stats {
	st, ok := s.byHour[hour]
	if !ok {
		st = &Stats{}
		s.byHour[hour] = st
	}
	return st
}

// recomputeBaseParams implements the §4.9 BaseParams update. Caller must
// hold s.mu.
func (s *Store) recomputeBaseParams() {
	avgWinning := decimal.Zero
	if s.winningCount > 0 {
		avgWinning = s.winningProfitSum.Div(decimal.NewFromInt(int64(s.winningCount)))
	}
	avgLosing := decimal.Zero
	if s.losingCount > 0 {
		avgLosing = s.losingProfitSum.Div(decimal.NewFromInt(int64(s.losingCount)))
	}

	s.base.BaseTakeProfitPct = clamp(avgWinning.Mul(decimal.NewFromFloat(0.8)), 0.002, 0.015)
	s.base.BaseStopLossPct = clamp(avgLosing.Mul(decimal.NewFromFloat(1.1)), 0.005, 0.02)

	winRate := float64(s.winningCount) / float64(s.totalTrades)
	delta := 0.0
	switch {
	case winRate > 0.5:
		delta = s.cfg.LearningRate
	case winRate < 0.5:
		delta = -s.cfg.LearningRate
	}
	mult := 1.0 + delta
	if mult < 0.5 {
		mult = 0.5
	}
	if mult > 2.0 {
		mult = 2.0
	}
	s.base.SizeMultiplier = decimal.NewFromFloat(mult)
}

func clamp(d decimal.Decimal, lo, hi float64) decimal.Decimal {
	loD, hiD := decimal.NewFromFloat(lo), decimal.NewFromFloat(hi)
	if d.LessThan(loD) {
		return loD
	}
	if d.GreaterThan(hiD) {
		return hiD
	}
	return d
}

// BaseParams returns the current learning-derived defaults.
func (s *Store) BaseParams() BaseParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// WinRate implements ensemble.WinRateLookup: the recorded win rate for the
// (strategy, asset, hour-of-day) bucket, or ok=false if unseen.
func (s *Store) WinRate(strategy, asset string, hourOfDay int) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.buckets[bucketKey{strategy, asset, hourOfDay}]
	if !ok {
		return 0, false
	}
	return st.winRate()
}

// TotalTrades returns the number of recorded closed positions.
func (s *Store) TotalTrades() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalTrades
}
