package optimizer

import (
	"regexp"
	"sort"

	"github.com/datapunk/lake/pkg/types"
)

// ColumnPruneRule propagates the set of columns actually needed by the plan
// (projections, group/sort keys, join/filter predicates) down to every Scan
// node's Spec as "required_columns", so the federation executor (C6) can
// ask a source to return only those columns instead of every column in the
// source. It never removes columns from Project/Aggregate/Sort nodes
// themselves — those already name exactly the columns their caller asked
// for — it only annotates scans, which is the one place over-fetching
// actually happens.
type ColumnPruneRule struct{}

func (ColumnPruneRule) Name() string { return "column_prune" }

var nonIdentWord = map[string]bool{
	"and": true, "or": true, "not": true, "true": true, "false": true, "null": true,
	"like": true, "in": true, "asc": true, "desc": true,
}

var identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_.]*`)

func extractIdents(s string, into map[string]bool) {
	for _, m := range identPattern.FindAllString(s, -1) {
		lower := toLower(m)
		if nonIdentWord[lower] {
			continue
		}
		into[m] = true
	}
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

func collectRequired(n *types.PlanNode, required map[string]bool) {
	if n == nil {
		return
	}
	switch n.Kind {
	case types.PlanProject:
		for _, c := range n.Columns {
			required[c] = true
		}
	case types.PlanFilter:
		extractIdents(n.Predicate, required)
	case types.PlanJoin:
		extractIdents(n.On, required)
	case types.PlanAggregate:
		for _, c := range n.GroupKeys {
			required[c] = true
		}
		for _, a := range n.Aggs {
			extractIdents(a, required)
		}
	case types.PlanSort:
		for _, s := range n.SortKeys {
			extractIdents(s, required)
		}
	}
	collectRequired(n.Input, required)
	collectRequired(n.Left, required)
	collectRequired(n.Right, required)
	for _, in := range n.Inputs {
		collectRequired(in, required)
	}
}

func (ColumnPruneRule) Apply(root *types.PlanNode, stats *StatisticsCache) (*types.PlanNode, bool) {
	required := map[string]bool{}
	collectRequired(root, required)
	if len(required) == 0 {
		return root, false
	}
	cols := make([]string, 0, len(required))
	for c := range required {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	return rewriteTree(root, func(n *types.PlanNode) (*types.PlanNode, bool) {
		if n.Kind != types.PlanScan {
			return n, false
		}
		if existing, ok := n.Spec["required_columns"].([]string); ok && sameStrings(existing, cols) {
			return n, false
		}
		spec := make(map[string]any, len(n.Spec)+1)
		for k, v := range n.Spec {
			spec[k] = v
		}
		spec["required_columns"] = cols
		nn := *n
		nn.Spec = spec
		return &nn, true
	})
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (ColumnPruneRule) EstimatedCost(root *types.PlanNode, stats *StatisticsCache) float64 {
	return baseCost(root, stats)
}
