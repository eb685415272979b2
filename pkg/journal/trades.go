package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is one closed-position line in trade_journal.ndjson. It
// carries enough of the position's lifecycle to reconstruct a
// learning.Record without this package importing pkg/learning's Record
// shape directly — scanloop does that translation.
type TradeRecord struct {
	MarketID   string          `json:"market_id"`
	Asset      string          `json:"asset"`
	Strategy   string          `json:"strategy"`
	Side       string          `json:"side"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	ActualSize decimal.Decimal `json:"actual_size"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ProfitPct  decimal.Decimal `json:"profit_pct"`
	EntryTime  time.Time       `json:"entry_time"`
	ExitTime   time.Time       `json:"exit_time"`
	ExitReason string          `json:"exit_reason"`
}

// AppendTrade writes one closed-position record as a single ndjson line.
// The file is opened O_APPEND, so concurrent writers (there are none in
// this engine's single-writer model) would still never interleave within
// a line.
func (j *Journal) AppendTrade(rec TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: marshal trade record: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.tradeFile.Write(data); err != nil {
		return fmt.Errorf("journal: append trade record: %w", err)
	}
	return nil
}
