package order_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictcore/pkg/exchange"
	"predictcore/pkg/order"
)

type fakeBuilder struct {
	err error
}

func (b fakeBuilder) Build(ctx context.Context, intent exchange.OrderIntent) (*exchange.SignedOrder, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &exchange.SignedOrder{Intent: intent, Payload: []byte("x")}, nil
}

func (b fakeBuilder) Address() string { return "0xabc" }

type fakeClient struct {
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	resp *exchange.OrderResponse
	err  error
}

func (c *fakeClient) GetMarkets(ctx context.Context) ([]exchange.RawMarket, error) { return nil, nil }
func (c *fakeClient) GetBalance(ctx context.Context) (decimal.Decimal, error)      { return decimal.Zero, nil }
func (c *fakeClient) GetOrderBook(ctx context.Context, tokenID string) (*exchange.OrderBook, error) {
	return nil, nil
}

func (c *fakeClient) PostOrder(ctx context.Context, signed *exchange.SignedOrder) (*exchange.OrderResponse, error) {
	r := c.responses[c.calls]
	c.calls++
	return r.resp, r.err
}

func TestExecutor_Buy_SuccessReturnsExchangeReportedFill(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{resp: &exchange.OrderResponse{Success: true, OrderID: "o1", FilledSize: decimal.NewFromFloat(4.35)}},
	}}
	ex := order.NewExecutor(client, fakeBuilder{})

	fill, err := ex.Buy(context.Background(), "tok", decimal.NewFromFloat(1.00), decimal.NewFromFloat(0.23))
	require.NoError(t, err)
	assert.Equal(t, "o1", fill.OrderID)
	assert.True(t, fill.ActualSize.Equal(decimal.NewFromFloat(4.35)))
	assert.Equal(t, 1, client.calls)
}

func TestExecutor_Buy_BusinessRejectionNotRetried(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{resp: &exchange.OrderResponse{Success: false, ErrorMessage: "insufficient funds"}},
	}}
	ex := order.NewExecutor(client, fakeBuilder{})

	_, err := ex.Buy(context.Background(), "tok", decimal.NewFromFloat(1.00), decimal.NewFromFloat(0.23))
	require.Error(t, err)
	assert.True(t, errors.Is(err, order.ErrOrderRejected))
	assert.Equal(t, 1, client.calls)
}

func TestExecutor_Buy_RetriesTransientNetworkErrorThenSucceeds(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{err: errors.New("dial tcp: connection refused")},
		{err: errors.New("dial tcp: connection refused")},
		{resp: &exchange.OrderResponse{Success: true, OrderID: "o2", FilledSize: decimal.NewFromFloat(4.35)}},
	}}
	ex := order.NewExecutor(client, fakeBuilder{})

	fill, err := ex.Buy(context.Background(), "tok", decimal.NewFromFloat(1.00), decimal.NewFromFloat(0.23))
	require.NoError(t, err)
	assert.Equal(t, "o2", fill.OrderID)
	assert.Equal(t, 3, client.calls)
}

func TestExecutor_Buy_ExhaustsRetriesAndReturnsError(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
	}}
	ex := order.NewExecutor(client, fakeBuilder{})

	_, err := ex.Buy(context.Background(), "tok", decimal.NewFromFloat(1.00), decimal.NewFromFloat(0.23))
	require.Error(t, err)
	assert.Equal(t, 4, client.calls)
}

func TestExecutor_Buy_CancelledRequestQueuesSuspectFill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{responses: []fakeResponse{
		{err: context.Canceled},
	}}
	ex := order.NewExecutor(client, fakeBuilder{})

	_, err := ex.Buy(ctx, "tok", decimal.NewFromFloat(1.00), decimal.NewFromFloat(0.23))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	suspects := ex.DrainSuspectFills()
	require.Len(t, suspects, 1)
	assert.Equal(t, "tok", suspects[0].TokenID)
	assert.True(t, suspects[0].Notional.Equal(decimal.NewFromFloat(1.00)))

	// Draining clears the queue.
	assert.Empty(t, ex.DrainSuspectFills())
}

func TestExecutor_Sell_CancelledRequestDoesNotQueueSuspectFill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{responses: []fakeResponse{
		{err: context.Canceled},
	}}
	ex := order.NewExecutor(client, fakeBuilder{})

	_, err := ex.Sell(ctx, "tok", decimal.NewFromFloat(10), decimal.NewFromFloat(0.50))
	require.Error(t, err)
	assert.Empty(t, ex.DrainSuspectFills())
}

func TestExecutor_Buy_BusinessRejectionDoesNotQueueSuspectFill(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{resp: &exchange.OrderResponse{Success: false, ErrorMessage: "insufficient funds"}},
	}}
	ex := order.NewExecutor(client, fakeBuilder{})

	_, err := ex.Buy(context.Background(), "tok", decimal.NewFromFloat(1.00), decimal.NewFromFloat(0.23))
	require.Error(t, err)
	assert.Empty(t, ex.DrainSuspectFills())
}

func TestExecutor_Sell_UsesExactRemainingSize(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{resp: &exchange.OrderResponse{Success: true, OrderID: "o3", FilledSize: decimal.NewFromFloat(10)}},
	}}
	ex := order.NewExecutor(client, fakeBuilder{})

	fill, err := ex.Sell(context.Background(), "tok", decimal.NewFromFloat(10), decimal.NewFromFloat(0.50))
	require.NoError(t, err)
	assert.True(t, fill.ActualSize.Equal(decimal.NewFromFloat(10)))
}
