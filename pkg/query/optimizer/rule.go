package optimizer

import "github.com/datapunk/lake/pkg/types"

// Rule is one plan-rewrite strategy. Apply returns the rewritten root and
// whether it changed anything; EstimatedCost scores a plan so the
// CostOptimizer (and JoinReorder internally) can compare alternatives.
type Rule interface {
	Name() string
	Apply(root *types.PlanNode, stats *StatisticsCache) (*types.PlanNode, bool)
	EstimatedCost(root *types.PlanNode, stats *StatisticsCache) float64
}

// baseCost estimates a plan's cost as the product of every scanned source's
// row count, discounted by a selectivity prior for each ancestor filter —
// a simple, table-driven stand-in for a full cardinality estimator, shared
// by every rule's EstimatedCost so they agree on what "better" means.
func baseCost(root *types.PlanNode, stats *StatisticsCache) float64 {
	if root == nil {
		return 0
	}
	switch root.Kind {
	case types.PlanScan:
		return float64(stats.RowCount(root.Source))
	case types.PlanFilter:
		return baseCost(root.Input, stats) * selectivityPrior(root.Predicate)
	case types.PlanJoin:
		return baseCost(root.Left, stats) * baseCost(root.Right, stats) * 0.01
	case types.PlanAggregate, types.PlanSort, types.PlanProject:
		return baseCost(root.Input, stats)
	case types.PlanLimit:
		c := baseCost(root.Input, stats)
		if root.N > 0 && float64(root.N) < c {
			return float64(root.N)
		}
		return c
	case types.PlanUnion:
		var sum float64
		for _, in := range root.Inputs {
			sum += baseCost(in, stats)
		}
		return sum
	default:
		return defaultRowCount
	}
}

// selectivityPrior returns the fraction of rows an opaque predicate string
// is assumed to let through absent column statistics: an equality
// comparison is assumed far more selective (0.1) than any other operator
// (0.3), per the spec's join-reorder priors.
func selectivityPrior(predicate string) float64 {
	if predicate == "" {
		return 1
	}
	if containsEquality(predicate) {
		return 0.1
	}
	return 0.3
}

func containsEquality(predicate string) bool {
	for i := 0; i < len(predicate); i++ {
		if predicate[i] == '=' {
			if i == 0 || predicate[i-1] != '!' && predicate[i-1] != '<' && predicate[i-1] != '>' {
				return true
			}
		}
	}
	return false
}
