// Package risk implements the pre-trade validation gate: seven ordered
// checks, first failure vetoes the trade. It owns RiskState, the only
// mutable trading-risk bookkeeping outside PositionManager, and is mutated
// exclusively by the scan goroutine (plus the idempotent UTC daily reset
// driven by the heartbeat pass, which ScanLoop runs on that same goroutine).
package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reason names which of the seven ordered checks vetoed a trade.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonCircuitBreaker  Reason = "CircuitBreaker"
	ReasonDailyLossLimit  Reason = "DailyLossLimit"
	ReasonExposure        Reason = "Exposure"
	ReasonKellyEdge       Reason = "KellyEdge"
	ReasonLiquidity       Reason = "Liquidity"
	ReasonMinOrderValue   Reason = "MinOrderValue"
	ReasonBalanceCheck    Reason = "BalanceCheck"
)

// Config carries the tunable thresholds behind each check, per §4.6.
type Config struct {
	CircuitBreakerLosses  int             `yaml:"circuit_breaker_losses"`
	CircuitBreakerWins    int             `yaml:"circuit_breaker_wins"`
	DailyLossCapPct       decimal.Decimal `yaml:"daily_loss_cap_pct"`
	SmallBalanceThreshold decimal.Decimal `yaml:"small_balance_threshold"`
	SmallBalanceExposure  decimal.Decimal `yaml:"small_balance_exposure_cap"`
	StandardExposureCap   decimal.Decimal `yaml:"standard_exposure_cap"`
	MinEdge               decimal.Decimal `yaml:"min_edge"`
	FractionOfKelly       decimal.Decimal `yaml:"fraction_of_kelly"`
	MaxPositionPct        decimal.Decimal `yaml:"max_position_pct"`
	MaxSlippage           decimal.Decimal `yaml:"max_slippage"`
	FeeBuffer             decimal.Decimal `yaml:"fee_buffer"`
	FeePct                decimal.Decimal `yaml:"fee_pct"`
}

// DefaultConfig returns the thresholds named explicitly in §4.6.
func DefaultConfig() Config {
	return Config{
		CircuitBreakerLosses:  3,
		CircuitBreakerWins:    3,
		DailyLossCapPct:       decimal.NewFromFloat(0.10),
		SmallBalanceThreshold: decimal.NewFromFloat(10),
		SmallBalanceExposure:  decimal.NewFromFloat(0.80),
		StandardExposureCap:   decimal.NewFromFloat(0.30),
		MinEdge:               decimal.NewFromFloat(0.02),
		FractionOfKelly:       decimal.NewFromFloat(0.5),
		MaxPositionPct:        decimal.NewFromFloat(0.25),
		MaxSlippage:           decimal.NewFromFloat(0.50),
		FeeBuffer:             decimal.NewFromFloat(0.01),
		FeePct:                decimal.NewFromFloat(0.03),
	}
}

// State is the mutable risk bookkeeping the gate consults and updates.
// Owned exclusively by the scan goroutine; the idempotent UTC daily-date
// rollover is also triggered by the heartbeat pass on that goroutine.
type State struct {
	ConsecutiveWins        int
	ConsecutiveLosses      int
	PositionSizeMultiplier decimal.Decimal
	DailyLossAccumulated   decimal.Decimal
	DailyStartBalance      decimal.Decimal
	dailyResetDate         string
}

// NewState seeds RiskState for a fresh run against startingBalance.
func NewState(startingBalance decimal.Decimal, now time.Time) *State {
	return &State{
		PositionSizeMultiplier: decimal.NewFromInt(1),
		DailyStartBalance:      startingBalance,
		dailyResetDate:         now.UTC().Format("2006-01-02"),
	}
}

// ResetIfNewDay clears daily-loss bookkeeping on UTC date rollover. Callable
// from either scan_task or heartbeat_task; idempotent for a given date.
func (s *State) ResetIfNewDay(now time.Time, currentBalance decimal.Decimal) {
	today := now.UTC().Format("2006-01-02")
	if today == s.dailyResetDate {
		return
	}
	s.dailyResetDate = today
	s.DailyLossAccumulated = decimal.Zero
	s.DailyStartBalance = currentBalance
}

// RecordWin updates streak state after a profitable exit, clearing the
// circuit breaker once three consecutive wins accrue.
func (s *State) RecordWin(cfg Config) {
	s.ConsecutiveWins++
	tripped := s.ConsecutiveLosses >= cfg.CircuitBreakerLosses
	if !tripped || s.ConsecutiveWins >= cfg.CircuitBreakerWins {
		s.ConsecutiveLosses = 0
	}
	if s.ConsecutiveWins >= cfg.CircuitBreakerWins {
		s.PositionSizeMultiplier = decimal.NewFromInt(1)
	}
}

// RecordLoss updates streak state and realized daily loss after a losing
// exit, tripping the circuit breaker at the configured threshold.
func (s *State) RecordLoss(cfg Config, realizedLoss decimal.Decimal) {
	s.ConsecutiveLosses++
	s.ConsecutiveWins = 0
	s.DailyLossAccumulated = s.DailyLossAccumulated.Add(realizedLoss.Abs())
	if s.ConsecutiveLosses >= cfg.CircuitBreakerLosses {
		s.PositionSizeMultiplier = decimal.NewFromFloat(0.5)
	}
}
