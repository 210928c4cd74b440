package optimizer

import (
	"strings"

	"github.com/datapunk/lake/pkg/types"
)

// PredicatePushdownRule pushes a Filter sitting above a Join down onto
// whichever side it exclusively references, so that side's scan discards
// non-matching rows before the join runs instead of after.
//
// Predicates are opaque text by the time they reach a PlanNode (the SQL/
// NoSQL parsers render the Expr tree to a canonical string), so this rule
// can't do real column-provenance analysis — it falls back to a substring
// check against each side's source name, which is correct for the common
// "table.column" qualified-predicate shape the parsers emit for join
// conditions and unqualified single-table WHERE clauses, documented as a
// deliberate simplification in DESIGN.md.
type PredicatePushdownRule struct{}

func (PredicatePushdownRule) Name() string { return "predicate_pushdown" }

func (r PredicatePushdownRule) Apply(root *types.PlanNode, stats *StatisticsCache) (*types.PlanNode, bool) {
	return rewriteTree(root, func(n *types.PlanNode) (*types.PlanNode, bool) {
		if n.Kind != types.PlanFilter || n.Input == nil || n.Input.Kind != types.PlanJoin {
			return n, false
		}
		join := n.Input
		leftNames := sourceNames(join.Left)
		rightNames := sourceNames(join.Right)
		mentionsLeft := mentionsAny(n.Predicate, leftNames)
		mentionsRight := mentionsAny(n.Predicate, rightNames)

		switch {
		case mentionsLeft && !mentionsRight:
			newLeft := &types.PlanNode{Kind: types.PlanFilter, ID: "pushed:" + n.ID, Predicate: n.Predicate, Input: join.Left}
			return &types.PlanNode{Kind: types.PlanJoin, ID: join.ID, JoinKind: join.JoinKind, Left: newLeft, Right: join.Right, On: join.On}, true
		case mentionsRight && !mentionsLeft:
			newRight := &types.PlanNode{Kind: types.PlanFilter, ID: "pushed:" + n.ID, Predicate: n.Predicate, Input: join.Right}
			return &types.PlanNode{Kind: types.PlanJoin, ID: join.ID, JoinKind: join.JoinKind, Left: join.Left, Right: newRight, On: join.On}, true
		default:
			return n, false
		}
	})
}

func (r PredicatePushdownRule) EstimatedCost(root *types.PlanNode, stats *StatisticsCache) float64 {
	return baseCost(root, stats)
}

func sourceNames(n *types.PlanNode) []string {
	if n == nil {
		return nil
	}
	var out []string
	if n.Source != "" {
		out = append(out, n.Source)
	}
	out = append(out, sourceNames(n.Input)...)
	out = append(out, sourceNames(n.Left)...)
	out = append(out, sourceNames(n.Right)...)
	for _, in := range n.Inputs {
		out = append(out, sourceNames(in)...)
	}
	return out
}

func mentionsAny(predicate string, names []string) bool {
	for _, name := range names {
		if name != "" && strings.Contains(predicate, name) {
			return true
		}
	}
	return false
}

// rewriteTree applies f at every node post-order, rebuilding ancestors of
// any node f changed (plans are immutable, so a rewrite always produces a
// new tree rather than mutating root in place). It returns the new root and
// whether anything changed anywhere in the tree.
func rewriteTree(root *types.PlanNode, f func(*types.PlanNode) (*types.PlanNode, bool)) (*types.PlanNode, bool) {
	if root == nil {
		return nil, false
	}
	changed := false
	next := *root

	if next.Input != nil {
		rewritten, ch := rewriteTree(next.Input, f)
		if ch {
			next.Input = rewritten
			changed = true
		}
	}
	if next.Left != nil {
		rewritten, ch := rewriteTree(next.Left, f)
		if ch {
			next.Left = rewritten
			changed = true
		}
	}
	if next.Right != nil {
		rewritten, ch := rewriteTree(next.Right, f)
		if ch {
			next.Right = rewritten
			changed = true
		}
	}
	if len(next.Inputs) > 0 {
		newInputs := make([]*types.PlanNode, len(next.Inputs))
		for i, in := range next.Inputs {
			rewritten, ch := rewriteTree(in, f)
			newInputs[i] = rewritten
			if ch {
				changed = true
			}
		}
		next.Inputs = newInputs
	}

	result, ch := f(&next)
	if ch {
		return result, true
	}
	if changed {
		return &next, true
	}
	return root, false
}
