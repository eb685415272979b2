// Package journal implements crash recovery: an append-only ndjson trade
// log, an atomically-checkpointed open-position snapshot, and the
// LearningStore's persisted aggregates. Generalized from the teacher's
// per-cycle JSON writer to the three-document layout this engine needs.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	tradeFileName     = "trade_journal.ndjson"
	positionsFileName = "positions.json"
	learningFileName  = "learning.json"
)

// Journal owns the three on-disk documents described in §4.10.
type Journal struct {
	dir string

	mu        sync.Mutex
	tradeFile *os.File
}

// Open creates dir if needed and opens the append-only trade log, ready for
// AppendTrade. Callers should defer Close.
func Open(dir string) (*Journal, error) {
	if dir == "" {
		dir = "journal"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, tradeFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open trade log: %w", err)
	}
	return &Journal{dir: dir, tradeFile: f}, nil
}

// Close releases the trade-log file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tradeFile.Close()
}

// writeAtomic writes data to path via a temp-file-then-rename, so a crash
// mid-write never leaves a corrupt checkpoint in place.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("journal: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("journal: rename temp file: %w", err)
	}
	return nil
}

func readIfExists(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
