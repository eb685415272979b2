package risk_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictcore/pkg/exchange"
	"predictcore/pkg/risk"
)

func baseRequest() risk.TradeRequest {
	return risk.TradeRequest{
		Asset:            "BTC",
		Strategy:         "latency",
		Side:             exchange.SideBuy,
		LimitPrice:       decimal.NewFromFloat(0.50),
		DesiredNotional:  decimal.NewFromFloat(5),
		AvailableBalance: decimal.NewFromFloat(100),
		OpenExposureUSD:  decimal.Zero,
	}
}

func TestGate_Evaluate_ApprovesWithinLimits(t *testing.T) {
	state := risk.NewState(decimal.NewFromFloat(100), time.Now())
	g := risk.NewGate(risk.DefaultConfig(), state)

	approval := g.Evaluate(baseRequest())
	require.True(t, approval.Approved)
	assert.True(t, approval.Value.GreaterThanOrEqual(decimal.NewFromFloat(1)))
}

func TestGate_Evaluate_CircuitBreakerVetoesAfterThreeLosses(t *testing.T) {
	cfg := risk.DefaultConfig()
	state := risk.NewState(decimal.NewFromFloat(100), time.Now())
	state.RecordLoss(cfg, decimal.NewFromFloat(1))
	state.RecordLoss(cfg, decimal.NewFromFloat(1))
	state.RecordLoss(cfg, decimal.NewFromFloat(1))

	g := risk.NewGate(cfg, state)
	approval := g.Evaluate(baseRequest())
	assert.False(t, approval.Approved)
	assert.Equal(t, risk.ReasonCircuitBreaker, approval.Reason)
}

func TestGate_Evaluate_CircuitBreakerClearsAfterThreeWins(t *testing.T) {
	cfg := risk.DefaultConfig()
	state := risk.NewState(decimal.NewFromFloat(100), time.Now())
	state.RecordLoss(cfg, decimal.NewFromFloat(1))
	state.RecordLoss(cfg, decimal.NewFromFloat(1))
	state.RecordLoss(cfg, decimal.NewFromFloat(1))
	state.RecordWin(cfg)
	state.RecordWin(cfg)
	state.RecordWin(cfg)

	assert.Equal(t, 0, state.ConsecutiveLosses)
	assert.True(t, state.PositionSizeMultiplier.Equal(decimal.NewFromInt(1)))
}

func TestGate_Evaluate_DailyLossLimitVetoes(t *testing.T) {
	cfg := risk.DefaultConfig()
	state := risk.NewState(decimal.NewFromFloat(100), time.Now())
	state.DailyLossAccumulated = decimal.NewFromFloat(10) // 10% of 100

	g := risk.NewGate(cfg, state)
	approval := g.Evaluate(baseRequest())
	assert.False(t, approval.Approved)
	assert.Equal(t, risk.ReasonDailyLossLimit, approval.Reason)
}

func TestGate_Evaluate_ExposureCapVetoes(t *testing.T) {
	cfg := risk.DefaultConfig()
	state := risk.NewState(decimal.NewFromFloat(100), time.Now())
	g := risk.NewGate(cfg, state)

	req := baseRequest()
	req.OpenExposureUSD = decimal.NewFromFloat(95)
	req.DesiredNotional = decimal.NewFromFloat(10)

	approval := g.Evaluate(req)
	assert.False(t, approval.Approved)
	assert.Equal(t, risk.ReasonExposure, approval.Reason)
}

func TestGate_Evaluate_DirectionalKellyEdgeVetoesOnLowEdge(t *testing.T) {
	cfg := risk.DefaultConfig()
	state := risk.NewState(decimal.NewFromFloat(100), time.Now())
	g := risk.NewGate(cfg, state)

	req := baseRequest()
	req.Strategy = "directional"
	req.Confidence = 0.52
	req.ImpliedProb = decimal.NewFromFloat(0.50)

	approval := g.Evaluate(req)
	assert.False(t, approval.Approved)
	assert.Equal(t, risk.ReasonKellyEdge, approval.Reason)
}

func TestGate_Evaluate_DirectionalApprovesOnStrongEdge(t *testing.T) {
	cfg := risk.DefaultConfig()
	state := risk.NewState(decimal.NewFromFloat(100), time.Now())
	g := risk.NewGate(cfg, state)

	req := baseRequest()
	req.Strategy = "directional"
	req.Confidence = 0.75
	req.ImpliedProb = decimal.NewFromFloat(0.50)
	req.DesiredNotional = decimal.NewFromFloat(20)

	approval := g.Evaluate(req)
	require.True(t, approval.Approved)
}

func TestGate_Evaluate_BalanceCheckVetoesInsufficientFunds(t *testing.T) {
	cfg := risk.DefaultConfig()
	// Widen the exposure caps so this test isolates the balance check: the
	// trade is otherwise entirely within limits except for actual cash on
	// hand falling just short of price*size*(1+fee_buffer).
	cfg.StandardExposureCap = decimal.NewFromFloat(2.0)
	cfg.SmallBalanceExposure = decimal.NewFromFloat(2.0)
	state := risk.NewState(decimal.NewFromFloat(1), time.Now())
	g := risk.NewGate(cfg, state)

	req := baseRequest()
	req.AvailableBalance = decimal.NewFromFloat(1.00)
	req.DesiredNotional = decimal.NewFromFloat(1.00)

	approval := g.Evaluate(req)
	assert.False(t, approval.Approved)
	assert.Equal(t, risk.ReasonBalanceCheck, approval.Reason)
}

func TestGate_Evaluate_LiquidityVetoesOnThinBookSlippage(t *testing.T) {
	cfg := risk.DefaultConfig()
	state := risk.NewState(decimal.NewFromFloat(1000), time.Now())
	g := risk.NewGate(cfg, state)

	req := baseRequest()
	req.AvailableBalance = decimal.NewFromFloat(1000)
	req.DesiredNotional = decimal.NewFromFloat(100)
	req.OrderBook = &exchange.OrderBook{
		TokenID: "t1",
		Asks: []exchange.Level{
			{Price: decimal.NewFromFloat(0.50), Size: decimal.NewFromFloat(2)},
			{Price: decimal.NewFromFloat(2.00), Size: decimal.NewFromFloat(1000)},
		},
	}

	approval := g.Evaluate(req)
	assert.False(t, approval.Approved)
	assert.Equal(t, risk.ReasonLiquidity, approval.Reason)
}

func TestState_ResetIfNewDay_ClearsAccumulatedLoss(t *testing.T) {
	state := risk.NewState(decimal.NewFromFloat(100), time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC))
	state.DailyLossAccumulated = decimal.NewFromFloat(5)

	state.ResetIfNewDay(time.Date(2026, 7, 31, 0, 1, 0, 0, time.UTC), decimal.NewFromFloat(95))
	assert.True(t, state.DailyLossAccumulated.IsZero())
	assert.True(t, state.DailyStartBalance.Equal(decimal.NewFromFloat(95)))
}
