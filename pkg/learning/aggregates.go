package learning

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Snapshot is the JSON-serializable form of a Store, persisted to
// learning.json and replayed at startup.
type Snapshot struct {
	Buckets map[string]Stats `json:"buckets"`
	ByStrat map[string]Stats `json:"by_strategy"`
	ByAsset map[string]Stats `json:"by_asset"`
	ByHour  map[int]Stats    `json:"by_hour"`

	WinningProfitSum decimal.Decimal `json:"winning_profit_sum"`
	WinningCount     int             `json:"winning_count"`
	LosingProfitSum  decimal.Decimal `json:"losing_profit_sum"`
	LosingCount      int             `json:"losing_count"`
	TotalTrades      int             `json:"total_trades"`

	Base BaseParams `json:"base_params"`
}

// Snapshot captures the current aggregate state for persistence.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Buckets:          make(map[string]Stats, len(s.buckets)),
		ByStrat:          make(map[string]Stats, len(s.byStrat)),
		ByAsset:          make(map[string]Stats, len(s.byAsset)),
		ByHour:           make(map[int]Stats, len(s.byHour)),
		WinningProfitSum: s.winningProfitSum,
		WinningCount:     s.winningCount,
		LosingProfitSum:  s.losingProfitSum,
		LosingCount:      s.losingCount,
		TotalTrades:      s.totalTrades,
		Base:             s.base,
	}
	for k, v := range s.buckets {
		snap.Buckets[k.String()] = *v
	}
	for k, v := range s.byStrat {
		snap.ByStrat[k] = *v
	}
	for k, v := range s.byAsset {
		snap.ByAsset[k] = *v
	}
	for k, v := range s.byHour {
		snap.ByHour[k] = *v
	}
	return snap
}

// Restore replaces the store's aggregates with a persisted snapshot,
// rebuilding BaseParams rather than trusting the persisted value blindly so
// a config change to clamp bounds takes effect immediately on restart.
//
// bucketKeyed entries ("strategy|asset|hour") that fail to parse are
// dropped; a corrupt learning.json should not prevent startup.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buckets = make(map[bucketKey]*Stats, len(snap.Buckets))
	for raw, stats := range snap.Buckets {
		k, ok := parseBucketKey(raw)
		if !ok {
			continue
		}
		st := stats
		s.buckets[k] = &st
	}
	s.byStrat = copyDim(snap.ByStrat)
	s.byAsset = copyDim(snap.ByAsset)
	s.byHour = make(map[int]*Stats, len(snap.ByHour))
	for hour, stats := range snap.ByHour {
		st := stats
		s.byHour[hour] = &st
	}

	s.winningProfitSum = snap.WinningProfitSum
	s.winningCount = snap.WinningCount
	s.losingProfitSum = snap.LosingProfitSum
	s.losingCount = snap.LosingCount
	s.totalTrades = snap.TotalTrades

	if s.totalTrades >= s.cfg.MinTradesForLearning {
		s.recomputeBaseParams()
	} else {
		s.base = s.cfg.seedBaseParams()
	}
}

func copyDim(src map[string]Stats) map[string]*Stats {
	out := make(map[string]*Stats, len(src))
	for k, v := range src {
		st := v
		out[k] = &st
	}
	return out
}

func parseBucketKey(raw string) (bucketKey, bool) {
	strategy, rest, ok := strings.Cut(raw, "|")
	if !ok {
		return bucketKey{}, false
	}
	asset, hourStr, ok := strings.Cut(rest, "|")
	if !ok {
		return bucketKey{}, false
	}
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return bucketKey{}, false
	}
	return bucketKey{Strategy: strategy, Asset: asset, Hour: hour}, true
}
