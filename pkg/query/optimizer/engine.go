package optimizer

import "github.com/datapunk/lake/pkg/types"

// maxIterations caps the fixed-point loop so a pair of rules that keep
// undoing each other's work (which none of the built-in rules do, but a
// future custom rule might) can't spin the optimizer forever.
const maxIterations = 50

// costEpsilon is the minimum fractional cost change considered significant
// when deciding whether the rule engine has reached a fixed point — below
// this, further iteration isn't worth the wall-clock.
const costEpsilon = 1e-6

// Engine applies a fixed ordered set of Rules to a plan repeatedly until no
// rule changes it (a fixed point) or maxIterations is hit.
type Engine struct {
	rules []Rule
	stats *StatisticsCache
}

// NewEngine builds an Engine running the spec's four core rules in a fixed
// order: predicate push-down and temporal rewrite first (they only make
// scans cheaper), then join reorder (which benefits from the now-tighter
// per-side cost estimates), then column prune last (informational only, so
// ordering relative to the others doesn't matter for correctness).
func NewEngine(stats *StatisticsCache) *Engine {
	if stats == nil {
		stats = NewStatisticsCache()
	}
	return &Engine{
		stats: stats,
		rules: []Rule{
			PredicatePushdownRule{},
			NewTemporalRewriteRule(),
			JoinReorderRule{},
			ColumnPruneRule{},
		},
	}
}

// Rules exposes the engine's configured rule set, e.g. for tests asserting
// a specific rule fired.
func (e *Engine) Rules() []Rule { return e.rules }

// Optimize rewrites plan by iterating every rule to a fixed point.
func (e *Engine) Optimize(plan *types.QueryPlan) *types.QueryPlan {
	if plan == nil || plan.Root == nil {
		return plan
	}
	root := plan.Root
	prevCost := baseCost(root, e.stats)

	for iter := 0; iter < maxIterations; iter++ {
		changedThisPass := false
		for _, rule := range e.rules {
			rewritten, changed := rule.Apply(root, e.stats)
			if changed {
				root = rewritten
				changedThisPass = true
			}
		}
		if !changedThisPass {
			break
		}
		newCost := baseCost(root, e.stats)
		if prevCost > 0 && absFloat(prevCost-newCost)/prevCost < costEpsilon {
			prevCost = newCost
			break
		}
		prevCost = newCost
	}

	return &types.QueryPlan{Root: root}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
