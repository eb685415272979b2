// Package order drives the buy/sell precision discipline at the exchange
// boundary: sizing via pkg/decimalx, signing via pkg/signer, submission and
// retry via pkg/exchange.
package order

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"predictcore/pkg/decimalx"
	"predictcore/pkg/exchange"
	"predictcore/pkg/signer"
)

// ErrOrderRejected marks a business-logic rejection (invalid signature,
// minimum size, insufficient funds): never retried.
var ErrOrderRejected = errors.New("order: rejected by exchange")

// retryBackoffs are the fixed network-retry delays from §4.8.2.
var retryBackoffs = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1 * time.Second}

// Fill is the outcome of a successful submit: exactly what the exchange
// reported, never what was requested (Testable Property 1).
type Fill struct {
	OrderID    string
	ActualSize decimal.Decimal
	Price      decimal.Decimal
}

// SuspectFill is a BUY whose request was cancelled client-side (deadline or
// caller cancellation) with the outcome at the exchange unknown — it may
// have been accepted anyway. Heartbeat reconciliation (§5/§7) confirms or
// clears these against the exchange's reported balance; the executor never
// resolves them itself.
type SuspectFill struct {
	TokenID   string
	Notional  decimal.Decimal
	Timestamp time.Time
}

// Executor submits signed orders and retries transient network failures.
type Executor struct {
	client  exchange.Client
	builder signer.Builder

	sigFailures int32 // atomic: consecutive Build() errors, for §8's health signal

	mu       sync.Mutex
	suspects []SuspectFill
}

// NewExecutor constructs an Executor over a concrete exchange client and
// order-signing builder.
func NewExecutor(client exchange.Client, builder signer.Builder) *Executor {
	return &Executor{client: client, builder: builder}
}

// SignatureFailures returns the number of consecutive order-signing
// failures seen since the last success, feeding the engine's
// entries_paused health signal.
func (e *Executor) SignatureFailures() int {
	return int(atomic.LoadInt32(&e.sigFailures))
}

// Buy sizes and submits a BUY order for desiredNotional at limitPrice,
// per §4.8.1/§4.8.2.
func (e *Executor) Buy(ctx context.Context, tokenID string, desiredNotional, limitPrice decimal.Decimal) (Fill, error) {
	return e.submit(ctx, tokenID, exchange.SideBuy, desiredNotional, limitPrice)
}

// Sell sizes and submits a SELL order, mirroring Buy (§4.8.3). size is the
// exact remaining position size to dispose of, not a notional target.
func (e *Executor) Sell(ctx context.Context, tokenID string, size, limitPrice decimal.Decimal) (Fill, error) {
	notional := size.Mul(limitPrice)
	return e.submit(ctx, tokenID, exchange.SideSell, notional, limitPrice)
}

func (e *Executor) submit(ctx context.Context, tokenID string, side exchange.OrderSide, desiredNotional, limitPrice decimal.Decimal) (Fill, error) {
	sizeSide := decimalx.Buy
	if side == exchange.SideSell {
		sizeSide = decimalx.Sell
	}
	shares, price, _, err := decimalx.ComputeOrderSize(desiredNotional, limitPrice, sizeSide)
	if err != nil {
		return Fill{}, err
	}

	intent := exchange.OrderIntent{
		TokenID:   tokenID,
		Side:      side,
		Price:     price,
		Size:      shares,
		Timestamp: time.Now(),
	}

	var lastErr error
	for attempt := 0; attempt <= len(retryBackoffs); attempt++ {
		fill, err := e.attempt(ctx, intent)
		if err == nil {
			return fill, nil
		}
		if errors.Is(err, ErrOrderRejected) {
			return Fill{}, err
		}
		lastErr = err
		if attempt == len(retryBackoffs) {
			break
		}
		logx.WithContext(ctx).Errorf("order: transient submit failure (attempt %d): %v", attempt+1, err)
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = len(retryBackoffs)
		case <-time.After(retryBackoffs[attempt]):
		}
	}
	if side == exchange.SideBuy && isCancellation(lastErr) {
		e.recordSuspectFill(tokenID, desiredNotional)
	}
	return Fill{}, lastErr
}

// isCancellation reports whether err reflects the caller's context expiring
// or being cancelled, as opposed to a definite exchange-side rejection or
// transport error.
func isCancellation(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// recordSuspectFill queues a cancelled BUY for heartbeat reconciliation.
func (e *Executor) recordSuspectFill(tokenID string, notional decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.suspects = append(e.suspects, SuspectFill{TokenID: tokenID, Notional: notional, Timestamp: time.Now()})
}

// DrainSuspectFills returns every cancelled BUY queued since the last call
// and clears the queue; the caller (scanloop's heartbeat) owns reconciling
// them against the exchange's reported balance.
func (e *Executor) DrainSuspectFills() []SuspectFill {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.suspects) == 0 {
		return nil
	}
	out := e.suspects
	e.suspects = nil
	return out
}

func (e *Executor) attempt(ctx context.Context, intent exchange.OrderIntent) (Fill, error) {
	signed, err := e.builder.Build(ctx, intent)
	if err != nil {
		atomic.AddInt32(&e.sigFailures, 1)
		return Fill{}, err
	}
	atomic.StoreInt32(&e.sigFailures, 0)

	resp, err := e.client.PostOrder(ctx, signed)
	if err != nil {
		return Fill{}, err // transient: network/transport error, retried by caller
	}
	if !resp.Success || resp.ErrorMessage != "" {
		return Fill{}, errorf(resp.ErrorMessage)
	}
	return Fill{OrderID: resp.OrderID, ActualSize: resp.FilledSize, Price: intent.Price}, nil
}

func errorf(msg string) error {
	if msg == "" {
		msg = "order rejected with no message"
	}
	return errors.Join(ErrOrderRejected, errors.New(msg))
}
