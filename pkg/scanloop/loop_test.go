package scanloop_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictcore/pkg/ensemble"
	"predictcore/pkg/exchange"
	"predictcore/pkg/journal"
	"predictcore/pkg/learning"
	"predictcore/pkg/market"
	"predictcore/pkg/order"
	"predictcore/pkg/position"
	"predictcore/pkg/pricefeed"
	"predictcore/pkg/risk"
	"predictcore/pkg/scanloop"
	"predictcore/pkg/strategy"
)

type fakeFeed struct{}

func (fakeFeed) Latest(asset market.Asset) (decimal.Decimal, bool) { return decimal.Zero, false }
func (fakeFeed) ChangePct(asset market.Asset, seconds int) (decimal.Decimal, bool) {
	return decimal.Zero, false
}
func (fakeFeed) Volatility(asset market.Asset, windowSeconds int) decimal.Decimal { return decimal.Zero }
func (fakeFeed) Series(asset market.Asset, windowSeconds int) []decimal.Decimal   { return nil }

type fakeBuilder struct{}

func (fakeBuilder) Build(ctx context.Context, intent exchange.OrderIntent) (*exchange.SignedOrder, error) {
	return &exchange.SignedOrder{Intent: intent, Payload: []byte("x")}, nil
}
func (fakeBuilder) Address() string { return "0xabc" }

type fakeClient struct {
	raw        []exchange.RawMarket
	balance    decimal.Decimal
	filledSize decimal.Decimal
	sellCalls  int
}

func (c *fakeClient) GetMarkets(ctx context.Context) ([]exchange.RawMarket, error) { return c.raw, nil }
func (c *fakeClient) GetBalance(ctx context.Context) (decimal.Decimal, error)      { return c.balance, nil }
func (c *fakeClient) GetOrderBook(ctx context.Context, tokenID string) (*exchange.OrderBook, error) {
	return nil, nil
}
func (c *fakeClient) PostOrder(ctx context.Context, signed *exchange.SignedOrder) (*exchange.OrderResponse, error) {
	c.sellCalls++
	return &exchange.OrderResponse{Success: true, OrderID: "o1", FilledSize: c.filledSize}, nil
}

func newLoop(t *testing.T, client *fakeClient, dir string) *scanloop.Loop {
	t.Helper()
	j, err := journal.Open(dir)
	require.NoError(t, err)

	gateCfg := risk.DefaultConfig()
	gateCfg.StandardExposureCap = decimal.NewFromInt(1000)
	gateCfg.SmallBalanceExposure = decimal.NewFromInt(1000)
	state := risk.NewState(decimal.NewFromInt(1000), time.Now())
	gate := risk.NewGate(gateCfg, state)

	feed := fakeFeed{}
	ex := order.NewExecutor(client, fakeBuilder{})
	positions := position.NewManager(position.DefaultConfig())
	ens := ensemble.New(ensemble.Config{}, ensembleSkipAdvisor{})
	learningStore := learning.NewStore(learning.DefaultConfig())

	dispatch := strategy.New(strategy.DefaultConfig(), ens, feed, gate, ex, positions, client)

	cfg := scanloop.DefaultConfig()
	cfg.ScanInterval = 5 * time.Millisecond
	cfg.HeartbeatInterval = 10 * time.Millisecond

	return scanloop.New(cfg, gateCfg, client, feed, dispatch, ex, positions, learningStore, state, ens, j, nil, 0.1)
}

// ensembleSkipAdvisor always votes SKIP, so no unwanted directional entries
// fire during loop-level tests focused on exits/heartbeat.
type ensembleSkipAdvisor struct{}

func (ensembleSkipAdvisor) Name() string { return "skip" }
func (ensembleSkipAdvisor) Vote(ctx context.Context, req ensemble.Request) ensemble.AdvisorVote {
	return ensemble.AdvisorVote{Advisor: "skip", Action: ensemble.Skip, Weight: 1}
}

func runBriefly(t *testing.T, loop interface{ Run(context.Context) }) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	time.Sleep(60 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after context cancellation")
	}
}

func TestLoop_Run_RecoversPositionAndClosesOnImmediateExit(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	bootstrap, err := journal.Open(dir)
	require.NoError(t, err)
	require.NoError(t, bootstrap.FlushPositions([]position.Position{{
		MarketID:        "m1",
		TokenID:         "tok-up",
		Asset:           "BTC",
		Side:            position.SideUp,
		Strategy:        "directional",
		EntryPrice:      decimal.NewFromFloat(0.50),
		ActualSize:      decimal.NewFromFloat(10),
		EntryTime:       now.Add(-1 * time.Minute),
		EntryValue:      decimal.NewFromFloat(5),
		CloseTime:       now.Add(90 * time.Second), // inside the 2m force-exit window
		State:           position.StateOpen,
		PendingSellSize: decimal.Zero,
	}}))
	require.NoError(t, bootstrap.Close())

	client := &fakeClient{
		raw: []exchange.RawMarket{{
			ID: "m1", Question: "BTC up?", UpTokenID: "tok-up", DownTokenID: "tok-down",
			UpPrice: decimal.NewFromFloat(0.55), DownPrice: decimal.NewFromFloat(0.45),
			OpenTime: now.Add(-13 * time.Minute), CloseTime: now.Add(90 * time.Second),
			AcceptingOrders: true,
		}},
		balance:    decimal.NewFromInt(1000),
		filledSize: decimal.NewFromFloat(10),
	}

	loop := newLoop(t, client, dir)
	runBriefly(t, loop)

	assert.Equal(t, 1, client.sellCalls)

	data, err := os.ReadFile(filepath.Join(dir, "trade_journal.ndjson"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"market_id":"m1"`)
	assert.Contains(t, string(data), `"exit_reason":"market_close"`)
}

func TestLoop_Heartbeat_FlushesCheckpointsEvenWithNoExits(t *testing.T) {
	dir := t.TempDir()
	client := &fakeClient{balance: decimal.NewFromInt(1000)}

	loop := newLoop(t, client, dir)
	runBriefly(t, loop)

	_, err := os.Stat(filepath.Join(dir, "positions.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "learning.json"))
	assert.NoError(t, err)
}
