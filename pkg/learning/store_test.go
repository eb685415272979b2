package learning_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictcore/pkg/learning"
)

func TestStore_WinRate_UnseenBucketReturnsFalse(t *testing.T) {
	s := learning.NewStore(learning.DefaultConfig())
	_, ok := s.WinRate("directional", "BTC", 14)
	assert.False(t, ok)
}

func TestStore_Record_TracksWinRatePerBucket(t *testing.T) {
	s := learning.NewStore(learning.DefaultConfig())
	s.Record(learning.Record{Strategy: "directional", Asset: "BTC", HourOfDay: 14, ProfitPct: decimal.NewFromFloat(0.01)})
	s.Record(learning.Record{Strategy: "directional", Asset: "BTC", HourOfDay: 14, ProfitPct: decimal.NewFromFloat(0.01)})
	s.Record(learning.Record{Strategy: "directional", Asset: "BTC", HourOfDay: 14, ProfitPct: decimal.NewFromFloat(-0.01)})

	rate, ok := s.WinRate("directional", "BTC", 14)
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)
}

func TestStore_Record_RecomputesBaseParamsAfterMinTrades(t *testing.T) {
	cfg := learning.Config{MinTradesForLearning: 3, LearningRate: 0.1}
	s := learning.NewStore(cfg)

	before := s.BaseParams()
	assert.True(t, before.SizeMultiplier.Equal(decimal.NewFromInt(1)))

	s.Record(learning.Record{Strategy: "directional", Asset: "BTC", HourOfDay: 1, ProfitPct: decimal.NewFromFloat(0.01)})
	s.Record(learning.Record{Strategy: "directional", Asset: "BTC", HourOfDay: 1, ProfitPct: decimal.NewFromFloat(0.01)})
	s.Record(learning.Record{Strategy: "directional", Asset: "BTC", HourOfDay: 1, ProfitPct: decimal.NewFromFloat(0.01)})

	after := s.BaseParams()
	assert.True(t, after.SizeMultiplier.Equal(decimal.NewFromFloat(1.1)))
	// base_take_profit_pct = clamp(0.01*0.8, 0.002, 0.015) = 0.008
	assert.True(t, after.BaseTakeProfitPct.Equal(decimal.NewFromFloat(0.008)))
}

func TestStore_Record_HonorsConfiguredLearningRate(t *testing.T) {
	cfg := learning.Config{MinTradesForLearning: 1, LearningRate: 0.25}
	s := learning.NewStore(cfg)

	s.Record(learning.Record{Strategy: "directional", Asset: "BTC", HourOfDay: 1, ProfitPct: decimal.NewFromFloat(0.01)})

	after := s.BaseParams()
	assert.True(t, after.SizeMultiplier.Equal(decimal.NewFromFloat(1.25)))
}

func TestStore_SnapshotRestore_RoundTrips(t *testing.T) {
	cfg := learning.Config{MinTradesForLearning: 2, LearningRate: 0.1}
	s := learning.NewStore(cfg)
	s.Record(learning.Record{Strategy: "latency", Asset: "ETH", HourOfDay: 9, ProfitPct: decimal.NewFromFloat(0.02)})
	s.Record(learning.Record{Strategy: "latency", Asset: "ETH", HourOfDay: 9, ProfitPct: decimal.NewFromFloat(-0.01)})

	snap := s.Snapshot()

	restored := learning.NewStore(cfg)
	restored.Restore(snap)

	rate, ok := restored.WinRate("latency", "ETH", 9)
	require.True(t, ok)
	assert.InDelta(t, 0.5, rate, 1e-9)
	assert.Equal(t, 2, restored.TotalTrades())
}

func TestStore_BaseTakeProfitPct_ClampsToUpperBound(t *testing.T) {
	cfg := learning.Config{MinTradesForLearning: 1, LearningRate: 0.1}
	s := learning.NewStore(cfg)
	s.Record(learning.Record{Strategy: "directional", Asset: "SOL", HourOfDay: 5, ProfitPct: decimal.NewFromFloat(0.5)})

	after := s.BaseParams()
	assert.True(t, after.BaseTakeProfitPct.Equal(decimal.NewFromFloat(0.015)))
}
