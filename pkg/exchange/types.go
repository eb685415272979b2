// Package exchange abstracts the prediction-market exchange this engine
// trades against: market discovery, balance, order book depth and signed
// order submission. Nothing above this package knows the wire format of any
// particular venue.
package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawMarket is the exchange's market payload, parsed but not yet validated
// or classified. pkg/market.Parse turns a RawMarket into a Market.
type RawMarket struct {
	ID          string
	Question    string
	UpTokenID   string
	DownTokenID string
	UpPrice     decimal.Decimal
	DownPrice   decimal.Decimal
	Liquidity   decimal.Decimal
	OpenTime    time.Time
	CloseTime   time.Time
	Closed      bool
	AcceptingOrders bool
}

// OrderBook is a shallow depth snapshot for one side of one token.
type OrderBook struct {
	TokenID string
	Bids    []Level
	Asks    []Level
}

// Level is a single price/size rung of an order book.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderSide is the direction of a signed order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderIntent is the unsigned description of an order this engine wants to
// place. signer.Builder turns an OrderIntent into a SignedOrder.
type OrderIntent struct {
	TokenID   string
	Side      OrderSide
	Price     decimal.Decimal
	Size      decimal.Decimal
	ClientID  string
	Timestamp time.Time
}

// SignedOrder is an OrderIntent plus whatever signature/wire encoding the
// concrete signer produced. Its Payload is opaque to everything except the
// exchange.Client implementation that posts it.
type SignedOrder struct {
	Intent    OrderIntent
	Payload   []byte
	Signature []byte
}

// OrderResponse is the exchange's reply to PostOrder.
type OrderResponse struct {
	Success      bool
	OrderID      string
	FilledSize   decimal.Decimal
	ErrorMessage string
}
