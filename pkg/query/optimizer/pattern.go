package optimizer

import (
	"encoding/json"
	"sync"

	"github.com/datapunk/lake/pkg/types"
)

// hotThreshold is how many times a canonical plan shape must be seen before
// its optimized form is served from cache instead of re-running the rule
// engine and cost gate.
const hotThreshold = 5

// Canonicalize renders a plan's shape as a stable string — used both as the
// QueryPlan.Canonical cache-key field and as PatternHistory's lookup key —
// so two queries with identical structure (ignoring nothing; literal values
// inside predicates do still distinguish them, same as the cache layer's
// plan-ID keying) hit the same history entry.
func Canonicalize(root *types.PlanNode) string {
	data, err := json.Marshal(root)
	if err != nil {
		return ""
	}
	return string(data)
}

type patternEntry struct {
	seenCount int
	plan      *types.PlanNode
	tables    map[string]bool
}

// PatternHistory tracks how often each canonical plan shape recurs and
// caches the optimized plan for shapes seen often enough ("hot"), so
// repeated structurally-identical queries skip rule evaluation. Entries are
// invalidated when RefreshStatistics observes significant drift in any
// table the cached plan scans.
type PatternHistory struct {
	mu      sync.Mutex
	entries map[string]*patternEntry
}

// NewPatternHistory builds an empty PatternHistory.
func NewPatternHistory() *PatternHistory {
	return &PatternHistory{entries: make(map[string]*patternEntry)}
}

// Lookup returns the cached optimized plan for canonical if it has been
// seen at least hotThreshold times.
func (h *PatternHistory) Lookup(canonical string) (*types.PlanNode, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[canonical]
	if !ok || e.seenCount < hotThreshold {
		return nil, false
	}
	return e.plan, true
}

// Record registers one more sighting of canonical, updating the cached
// optimized plan once it becomes hot.
func (h *PatternHistory) Record(canonical string, optimized *types.PlanNode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[canonical]
	if !ok {
		tables := map[string]bool{}
		for _, t := range sourceNames(optimized) {
			tables[t] = true
		}
		e = &patternEntry{tables: tables}
		h.entries[canonical] = e
	}
	e.seenCount++
	e.plan = optimized
}

// InvalidateTable drops every cached entry whose plan scans table, forcing
// the next occurrence of that shape back through full rule evaluation.
func (h *PatternHistory) InvalidateTable(table string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, e := range h.entries {
		if e.tables[table] {
			delete(h.entries, key)
		}
	}
}

// Size reports the number of distinct canonical shapes currently tracked.
func (h *PatternHistory) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
