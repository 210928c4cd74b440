// Package optimizer implements C5: a rule-based plan rewriter driven to a
// fixed point, a cost-based wrapper that only accepts rewrites clearing an
// improvement threshold, a table statistics cache, and a pattern-history
// cache of hot canonical plan shapes.
package optimizer

import (
	"sync"

	"github.com/datapunk/lake/pkg/types"
)

// TableStats summarizes one source's row count and per-column distribution,
// used by JoinReorder to estimate sub-plan size and by the cost model to
// score a rewrite.
type TableStats struct {
	RowCount int64
	Columns  map[string]types.ColumnStats
}

// defaultRowCount is used when no statistics have been recorded for a
// source yet, so the optimizer can still make a (conservative) decision
// rather than refusing to estimate cost at all.
const defaultRowCount = 1000

// StatisticsCache holds per-table row counts and column stats, refreshed
// out of band (e.g. from partition manifests) and consulted by cost-aware
// rules. It also tracks the row count last seen at cache-build time so
// PatternHistory can detect when statistics have drifted enough to
// invalidate a cached hot plan shape.
type StatisticsCache struct {
	mu     sync.RWMutex
	tables map[string]TableStats
}

// NewStatisticsCache builds an empty StatisticsCache.
func NewStatisticsCache() *StatisticsCache {
	return &StatisticsCache{tables: make(map[string]TableStats)}
}

// Set records (or replaces) statistics for a table.
func (s *StatisticsCache) Set(table string, stats TableStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = stats
}

// Get returns the statistics recorded for table, or (TableStats{}, false)
// if none have been recorded.
func (s *StatisticsCache) Get(table string) (TableStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.tables[table]
	return st, ok
}

// RowCount returns table's recorded row count, or defaultRowCount if
// nothing has been recorded yet.
func (s *StatisticsCache) RowCount(table string) int64 {
	if st, ok := s.Get(table); ok && st.RowCount > 0 {
		return st.RowCount
	}
	return defaultRowCount
}

// DriftFraction reports the relative change in table's row count between
// the previously recorded value and newCount, used to decide whether a
// pattern-history entry should be invalidated.
func (s *StatisticsCache) DriftFraction(table string, newCount int64) float64 {
	old, ok := s.Get(table)
	if !ok || old.RowCount == 0 {
		return 0
	}
	delta := newCount - old.RowCount
	if delta < 0 {
		delta = -delta
	}
	return float64(delta) / float64(old.RowCount)
}
