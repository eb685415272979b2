// Package signer abstracts the credential/wallet/signing dependency. Core
// logic (RiskGate, OrderExecutor, PositionManager) depends only on Builder;
// the hyperliquid subpackage supplies a concrete EIP-712/msgpack adapter for
// local/dev use.
package signer

import (
	"context"

	"predictcore/pkg/exchange"
)

// Builder wraps credential material and turns an unsigned order intent into
// a wire-encoded, signed order ready to POST through exchange.Client.
type Builder interface {
	Build(ctx context.Context, intent exchange.OrderIntent) (*exchange.SignedOrder, error)
	// Address returns the signer's public wallet address, for balance
	// reconciliation and logging.
	Address() string
}
