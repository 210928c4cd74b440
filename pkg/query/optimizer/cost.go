package optimizer

import "github.com/datapunk/lake/pkg/types"

// defaultImprovementThreshold is the spec default: a rewrite is only
// accepted if it beats the current plan's cost by more than 5%, avoiding
// thrashing between two plans of nearly identical cost.
const defaultImprovementThreshold = 0.05

// CostOptimizer wraps an Engine with an acceptance gate: the rule-engine
// output only replaces the original plan if its estimated cost clears
// ImprovementThreshold, otherwise the original (unoptimized but known-cost)
// plan is kept.
type CostOptimizer struct {
	engine               *Engine
	stats                *StatisticsCache
	ImprovementThreshold float64
	history              *PatternHistory
}

// NewCostOptimizer builds a CostOptimizer over stats with the spec's
// default 5% improvement threshold and pattern-history cache.
func NewCostOptimizer(stats *StatisticsCache) *CostOptimizer {
	if stats == nil {
		stats = NewStatisticsCache()
	}
	return &CostOptimizer{
		engine:               NewEngine(stats),
		stats:                stats,
		ImprovementThreshold: defaultImprovementThreshold,
		history:              NewPatternHistory(),
	}
}

// Optimize runs the rule engine and accepts its rewrite only if it beats
// the original plan's estimated cost by more than ImprovementThreshold. A
// hot (frequently seen) canonical plan shape is served straight from the
// pattern-history cache, skipping rule evaluation entirely.
func (c *CostOptimizer) Optimize(plan *types.QueryPlan) *types.QueryPlan {
	if plan == nil || plan.Root == nil {
		return plan
	}

	canonical := Canonicalize(plan.Root)
	if cached, ok := c.history.Lookup(canonical); ok {
		return &types.QueryPlan{Root: cached, Canonical: canonical}
	}

	originalCost := baseCost(plan.Root, c.stats)
	rewritten := c.engine.Optimize(plan)
	newCost := baseCost(rewritten.Root, c.stats)

	accepted := rewritten.Root
	if originalCost > 0 {
		improvement := (originalCost - newCost) / originalCost
		if improvement <= c.ImprovementThreshold {
			accepted = plan.Root
		}
	}

	result := &types.QueryPlan{Root: accepted, Canonical: Canonicalize(accepted)}
	c.history.Record(canonical, accepted)
	return result
}

// RefreshStatistics updates table stats and invalidates any pattern-history
// entry whose backing table has drifted by more than the 10% threshold,
// per the spec's pattern-history invalidation rule.
func (c *CostOptimizer) RefreshStatistics(table string, stats TableStats) {
	drift := c.stats.DriftFraction(table, stats.RowCount)
	c.stats.Set(table, stats)
	if drift > 0.10 {
		c.history.InvalidateTable(table)
	}
}
