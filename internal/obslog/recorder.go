// Package obslog is the best-effort, observability-only sink for the
// ensemble's LLM conversation digests. It is never on the decision path: a
// write failure here is logged and dropped, never surfaced to the advisor
// or the vote it backs.
package obslog

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx driver
)

// Config carries the Postgres DSN the recorder writes through. An empty DSN
// disables the recorder entirely (New returns nil).
type Config struct {
	DSN string `yaml:"dsn"`
}

const insertConversation = `
INSERT INTO llm_conversations
	(market_id, advisor, request_digest, response_digest, latency_ms, cached, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const writeTimeout = 2 * time.Second

// Recorder implements ensemble.ConversationRecorder over a Postgres table.
type Recorder struct {
	conn sqlx.SqlConn
}

// New constructs a Recorder, or returns nil if cfg.DSN is empty — a nil
// *Recorder is itself a valid ensemble.ConversationRecorder (every method
// below is nil-receiver safe), matching the "nil recorder disables
// recording" contract the ensemble package documents.
func New(cfg Config) *Recorder {
	if cfg.DSN == "" {
		return nil
	}
	return &Recorder{conn: sqlx.NewSqlConn("pgx", cfg.DSN)}
}

// Record implements ensemble.ConversationRecorder. It writes in its own
// goroutine with a bounded timeout so a slow or unreachable database never
// adds latency to the advisor's vote.
func (r *Recorder) Record(marketID, advisor, requestDigest, responseDigest string, latency time.Duration, cached bool) {
	if r == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		_, err := r.conn.ExecCtx(ctx, insertConversation,
			marketID, advisor, requestDigest, responseDigest, latency.Milliseconds(), cached, time.Now().UTC())
		if err != nil {
			logx.Errorf("obslog: record conversation for %s/%s: %v", marketID, advisor, err)
		}
	}()
}
