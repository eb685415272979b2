package journal_test

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictcore/pkg/journal"
	"predictcore/pkg/learning"
	"predictcore/pkg/position"
)

func TestJournal_AppendTrade_WritesOneLinePerRecord(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(dir)
	require.NoError(t, err)
	defer j.Close()

	rec := journal.TradeRecord{
		MarketID:   "m1",
		Asset:      "BTC",
		Strategy:   "directional",
		Side:       "UP",
		EntryPrice: decimal.NewFromFloat(0.50),
		ExitPrice:  decimal.NewFromFloat(0.52),
		ActualSize: decimal.NewFromFloat(10),
		RealizedPnL: decimal.NewFromFloat(0.20),
		ProfitPct:  decimal.NewFromFloat(0.04),
		EntryTime:  time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC),
		ExitTime:   time.Date(2026, 7, 31, 10, 5, 0, 0, time.UTC),
		ExitReason: "take_profit",
	}
	require.NoError(t, j.AppendTrade(rec))
	require.NoError(t, j.AppendTrade(rec))

	f, err := os.Open(filepath.Join(dir, "trade_journal.ndjson"))
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestJournal_LoadPositions_MissingFileReturnsNilNoError(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(dir)
	require.NoError(t, err)
	defer j.Close()

	positions, err := j.LoadPositions()
	require.NoError(t, err)
	assert.Nil(t, positions)
}

func TestJournal_FlushPositions_RoundTripsThroughLoad(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(dir)
	require.NoError(t, err)
	defer j.Close()

	entryTime := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	closeTime := entryTime.Add(15 * time.Minute)
	want := []position.Position{
		{
			MarketID:   "m1",
			TokenID:    "tok-up",
			Asset:      "BTC",
			Side:       position.SideUp,
			Strategy:   "directional",
			EntryPrice: decimal.NewFromFloat(0.50),
			ActualSize: decimal.NewFromFloat(10),
			EntryTime:  entryTime,
			EntryValue: decimal.NewFromFloat(5),
			CloseTime:  closeTime,
			State:      position.StateOpen,
		},
	}

	require.NoError(t, j.FlushPositions(want))

	got, err := j.LoadPositions()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want[0].MarketID, got[0].MarketID)
	assert.True(t, want[0].EntryPrice.Equal(got[0].EntryPrice))
	assert.True(t, want[0].EntryValue.Equal(got[0].EntryValue))
	assert.Equal(t, want[0].State, got[0].State)
	assert.True(t, want[0].EntryTime.Equal(got[0].EntryTime))
}

func TestJournal_Recover_RegistersEachPositionIntoManager(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(dir)
	require.NoError(t, err)
	defer j.Close()

	entryTime := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	require.NoError(t, j.FlushPositions([]position.Position{
		{
			MarketID:   "m1",
			TokenID:    "tok-up",
			Asset:      "BTC",
			Side:       position.SideUp,
			EntryPrice: decimal.NewFromFloat(0.50),
			ActualSize: decimal.NewFromFloat(10),
			EntryTime:  entryTime,
			EntryValue: decimal.NewFromFloat(5),
			CloseTime:  entryTime.Add(15 * time.Minute),
			State:      position.StateOpen,
		},
	}))

	mgr := position.NewManager(position.DefaultConfig())
	require.NoError(t, j.Recover(mgr))

	got, ok := mgr.Get("m1", position.SideUp)
	require.True(t, ok)
	assert.True(t, got.ActualSize.Equal(decimal.NewFromFloat(10)))
}

func TestJournal_FlushLearning_RoundTripsThroughLoad(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(dir)
	require.NoError(t, err)
	defer j.Close()

	store := learning.NewStore(learning.Config{MinTradesForLearning: 1, LearningRate: 0.1})
	store.Record(learning.Record{Strategy: "directional", Asset: "BTC", HourOfDay: 10, ProfitPct: decimal.NewFromFloat(0.01)})
	snap := store.Snapshot()

	require.NoError(t, j.FlushLearning(snap))

	got, ok, err := j.LoadLearning()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.TotalTrades)

	restored := learning.NewStore(learning.Config{MinTradesForLearning: 1, LearningRate: 0.1})
	restored.Restore(got)
	rate, ok := restored.WinRate("directional", "BTC", 10)
	require.True(t, ok)
	assert.Equal(t, 1.0, rate)
}

func TestJournal_LoadLearning_MissingFileReturnsFalseNoError(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(dir)
	require.NoError(t, err)
	defer j.Close()

	_, ok, err := j.LoadLearning()
	require.NoError(t, err)
	assert.False(t, ok)
}
