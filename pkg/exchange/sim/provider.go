// Package sim provides a dry-run exchange.Client that fills binary-outcome
// orders against a synthetic order book instead of a live venue. Wired by
// cmd/engine when started with -dry-run, generalized from the teacher's
// leveraged-futures paper-trading simulator to this engine's buy/sell-shares
// domain.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"predictcore/pkg/exchange"
)

// Provider is an in-memory exchange.Client. Balance and fills are tracked
// entirely in process memory; nothing is persisted across restarts.
type Provider struct {
	mu      sync.Mutex
	balance decimal.Decimal
	markets []exchange.RawMarket
	books   map[string]*exchange.OrderBook
	fills   []exchange.OrderResponse
}

// NewProvider constructs a simulator seeded with a starting balance and an
// initial market set. Markets can be refreshed via SetMarkets as the caller
// sees fit (e.g. from a recorded fixture or a generator).
func NewProvider(startingBalance decimal.Decimal, markets []exchange.RawMarket) *Provider {
	return &Provider{
		balance: startingBalance,
		markets: markets,
		books:   make(map[string]*exchange.OrderBook),
	}
}

// SetMarkets replaces the simulated market set.
func (p *Provider) SetMarkets(markets []exchange.RawMarket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markets = markets
}

// SetOrderBook installs a synthetic book depth for a token.
func (p *Provider) SetOrderBook(tokenID string, book *exchange.OrderBook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.books[tokenID] = book
}

// GetMarkets implements exchange.Client.
func (p *Provider) GetMarkets(ctx context.Context) ([]exchange.RawMarket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]exchange.RawMarket, len(p.markets))
	copy(out, p.markets)
	return out, nil
}

// GetBalance implements exchange.Client.
func (p *Provider) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// GetOrderBook implements exchange.Client. Returns nil, nil when no
// synthetic book has been installed for tokenID, matching the "no data"
// path RiskGate's liquidity check tolerates.
func (p *Provider) GetOrderBook(ctx context.Context, tokenID string) (*exchange.OrderBook, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	book, ok := p.books[tokenID]
	if !ok {
		return nil, nil
	}
	cp := *book
	return &cp, nil
}

// PostOrder implements exchange.Client: fills immediately at the signed
// intent's price against the simulated balance, up to the configured book
// depth (full fill if no book is installed for the token).
func (p *Provider) PostOrder(ctx context.Context, signed *exchange.SignedOrder) (*exchange.OrderResponse, error) {
	if signed == nil {
		return nil, fmt.Errorf("sim: nil signed order")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	notional := signed.Intent.Price.Mul(signed.Intent.Size)
	filled := signed.Intent.Size

	if book, ok := p.books[signed.Intent.TokenID]; ok {
		filled = cappedByDepth(signed.Intent, book)
		notional = signed.Intent.Price.Mul(filled)
	}

	switch signed.Intent.Side {
	case exchange.SideBuy:
		if notional.GreaterThan(p.balance) {
			resp := exchange.OrderResponse{Success: false, ErrorMessage: "insufficient balance"}
			p.fills = append(p.fills, resp)
			return &resp, nil
		}
		p.balance = p.balance.Sub(notional)
	case exchange.SideSell:
		p.balance = p.balance.Add(notional)
	}

	resp := exchange.OrderResponse{
		Success:    true,
		OrderID:    uuid.NewString(),
		FilledSize: filled,
	}
	p.fills = append(p.fills, resp)
	return &resp, nil
}

func cappedByDepth(intent exchange.OrderIntent, book *exchange.OrderBook) decimal.Decimal {
	levels := book.Asks
	if intent.Side == exchange.SideSell {
		levels = book.Bids
	}
	available := decimal.Zero
	for _, lvl := range levels {
		available = available.Add(lvl.Size)
	}
	if available.IsZero() || available.GreaterThanOrEqual(intent.Size) {
		return intent.Size
	}
	return available
}
