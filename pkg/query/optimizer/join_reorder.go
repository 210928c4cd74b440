package optimizer

import "github.com/datapunk/lake/pkg/types"

// JoinReorderRule puts the cheaper operand (by baseCost) of each join on
// the left: it visits every join node and swaps its two inputs when the
// right one is cheaper. It does not sort the leaves of a multi-join chain
// and does not search other join orders.
//
// Reordering only commutes for symmetric join kinds (inner/full/cross);
// left/right joins are asymmetric so their operand order is left alone.
type JoinReorderRule struct{}

func (JoinReorderRule) Name() string { return "join_reorder" }

func (r JoinReorderRule) Apply(root *types.PlanNode, stats *StatisticsCache) (*types.PlanNode, bool) {
	return rewriteTree(root, func(n *types.PlanNode) (*types.PlanNode, bool) {
		if n.Kind != types.PlanJoin || !symmetric(n.JoinKind) {
			return n, false
		}
		leftCost := baseCost(n.Left, stats)
		rightCost := baseCost(n.Right, stats)
		if rightCost < leftCost {
			return &types.PlanNode{Kind: types.PlanJoin, ID: n.ID, JoinKind: n.JoinKind, Left: n.Right, Right: n.Left, On: n.On}, true
		}
		return n, false
	})
}

func (r JoinReorderRule) EstimatedCost(root *types.PlanNode, stats *StatisticsCache) float64 {
	return baseCost(root, stats)
}

func symmetric(kind types.JoinType) bool {
	return kind == types.JoinInner || kind == types.JoinFull || kind == types.JoinCross
}
