package scanloop

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"predictcore/pkg/position"
)

// orphanDriftTolerance absorbs the price drift between a cancelled buy's
// requested notional and the notional the exchange may have actually
// filled it at; a balance drop below this fraction of the suspected
// notional is treated as noise, not an OrphanFill.
const orphanDriftTolerance = 0.5

// heartbeat implements the 60s-cadence side task: a balance probe (also the
// trigger for RiskState's idempotent UTC daily reset), reconciliation of
// any buys cancelled client-side since the last probe, and a persistence
// flush of both checkpoint documents regardless of whether any exits fired
// this tick.
func (l *Loop) heartbeat(ctx context.Context, now time.Time) {
	balance, err := l.client.GetBalance(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("scanloop: heartbeat balance probe failed: %v", err)
	} else {
		l.reconcileOrphanFills(ctx, balance)
		l.riskState.ResetIfNewDay(now, balance)
	}

	l.flushPositions(ctx)
	l.flushLearning(ctx)
}

// reconcileOrphanFills drains every BUY the executor cancelled client-side
// since the last heartbeat and checks it against the exchange's reported
// balance and PositionManager, per §5/§7 and Testable Scenario S7: a
// cancelled buy the exchange actually accepted shows up as a balance drop
// with no matching registered position. That is logged loudly as
// OrphanFill and surfaced to the operator; it is never auto-registered as a
// position — the operator reconciles it by hand.
func (l *Loop) reconcileOrphanFills(ctx context.Context, balance decimal.Decimal) {
	suspects := l.executor.DrainSuspectFills()
	havePrior := l.haveLastHeartbeatBalance
	prior := l.lastHeartbeatBalance
	l.lastHeartbeatBalance = balance
	l.haveLastHeartbeatBalance = true

	if len(suspects) == 0 || !havePrior {
		return
	}

	open := l.positions.Open()
	drop := prior.Sub(balance)
	for _, s := range suspects {
		if positionExistsForToken(open, s.TokenID) {
			continue // a normal fill event already registered it
		}
		if drop.LessThan(s.Notional.Mul(decimal.NewFromFloat(orphanDriftTolerance))) {
			continue // balance barely moved: the cancel almost certainly held
		}
		logx.WithContext(ctx).Errorf(
			"scanloop: OrphanFill suspected token=%s notional=%s balance_drop=%s cancelled_at=%s",
			s.TokenID, s.Notional, drop, s.Timestamp.Format(time.RFC3339))
	}
}

func positionExistsForToken(open []position.Position, tokenID string) bool {
	for _, p := range open {
		if p.TokenID == tokenID {
			return true
		}
	}
	return false
}

func (l *Loop) flushPositions(ctx context.Context) {
	if err := l.j.FlushPositions(l.positions.Open()); err != nil {
		logx.WithContext(ctx).Errorf("scanloop: flush positions checkpoint: %v", err)
	}
}

func (l *Loop) flushLearning(ctx context.Context) {
	if err := l.j.FlushLearning(l.learningStore.Snapshot()); err != nil {
		logx.WithContext(ctx).Errorf("scanloop: flush learning checkpoint: %v", err)
	}
}
