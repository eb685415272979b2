package hyperliquid_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictcore/pkg/exchange"
	"predictcore/pkg/signer/hyperliquid"
)

const testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestBuilder_AddressDerivedFromKey(t *testing.T) {
	b, err := hyperliquid.NewBuilder(testPrivateKey, false)
	require.NoError(t, err)
	assert.NotEmpty(t, b.Address())
	assert.True(t, len(b.Address()) == 42 && b.Address()[:2] == "0x")
}

func TestBuilder_Build_ProducesSignedOrder(t *testing.T) {
	b, err := hyperliquid.NewBuilder(testPrivateKey, false)
	require.NoError(t, err)

	intent := exchange.OrderIntent{
		TokenID:   "0xabc123",
		Side:      exchange.SideBuy,
		Price:     decimal.NewFromFloat(0.52),
		Size:      decimal.NewFromFloat(4.35),
		ClientID:  "clid-1",
		Timestamp: time.Now(),
	}

	signed, err := b.Build(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, intent, signed.Intent)
	assert.Len(t, signed.Signature, 32)
	assert.NotEmpty(t, signed.Payload)
}

func TestBuilder_Build_RespectsCancellation(t *testing.T) {
	b, err := hyperliquid.NewBuilder(testPrivateKey, false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = b.Build(ctx, exchange.OrderIntent{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBuilder_RejectsEmptyKey(t *testing.T) {
	_, err := hyperliquid.NewBuilder("", false)
	assert.Error(t, err)
}
