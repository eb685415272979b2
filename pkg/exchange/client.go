package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// Client abstracts the exchange REST/websocket transport. Core logic only
// ever depends on this interface; a concrete venue adapter and the dry-run
// simulator in the sim subpackage both satisfy it.
type Client interface {
	// GetMarkets returns every currently active market, unfiltered.
	GetMarkets(ctx context.Context) ([]RawMarket, error)
	// GetBalance returns available collateral.
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	// GetOrderBook returns book depth for tokenID, or nil if unavailable.
	GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error)
	// PostOrder submits a signed order and reports the exchange's response.
	PostOrder(ctx context.Context, signed *SignedOrder) (*OrderResponse, error)
}
