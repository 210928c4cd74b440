package federation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datapunk/lake/pkg/types"
)

// Evaluate runs the part of a plan that the source executors couldn't —
// everything above the leaves that got dispatched as SubPlans: residual
// filters referencing more than one source, joins across sources,
// aggregation, sort, limit, projection, and union. rowsByLeaf supplies each
// leaf node's already-fetched rows, keyed by the leaf's PlanNode.ID.
func Evaluate(root *types.PlanNode, rowsByLeaf map[string][]Row) ([]Row, error) {
	if root == nil {
		return nil, nil
	}

	if name := leafSourceName(root); name != "" {
		return rowsByLeaf[root.ID], nil
	}

	switch root.Kind {
	case types.PlanFilter:
		var rows []Row
		var err error
		if inner := root.Input; inner != nil && leafSourceName(inner) != "" {
			rows = rowsByLeaf[inner.ID]
		} else {
			rows, err = Evaluate(root.Input, rowsByLeaf)
			if err != nil {
				return nil, err
			}
		}
		out := make([]Row, 0, len(rows))
		for _, r := range rows {
			if evalPredicate(root.Predicate, r) {
				out = append(out, r)
			}
		}
		return out, nil

	case types.PlanJoin:
		return evalJoin(root, rowsByLeaf)

	case types.PlanAggregate:
		rows, err := Evaluate(root.Input, rowsByLeaf)
		if err != nil {
			return nil, err
		}
		return evalAggregate(root, rows), nil

	case types.PlanSort:
		rows, err := Evaluate(root.Input, rowsByLeaf)
		if err != nil {
			return nil, err
		}
		return evalSort(root, rows), nil

	case types.PlanLimit:
		rows, err := Evaluate(root.Input, rowsByLeaf)
		if err != nil {
			return nil, err
		}
		return evalLimit(root, rows), nil

	case types.PlanProject:
		rows, err := Evaluate(root.Input, rowsByLeaf)
		if err != nil {
			return nil, err
		}
		return evalProject(root, rows), nil

	case types.PlanUnion:
		var out []Row
		for _, in := range root.Inputs {
			rows, err := Evaluate(in, rowsByLeaf)
			if err != nil {
				return nil, err
			}
			out = append(out, rows...)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("federation: no evaluator for plan node kind %q", root.Kind)
	}
}

// evalJoin nested-loop joins left against right, testing n.On against each
// candidate pair's merged row. Join predicates from the SQL dialect are
// qualified ("orders.customer_id = customers.id"), so merging rarely
// collides; an unqualified predicate naming the same column on both sides
// would collide (the right value wins) and the predicate degenerates to a
// tautology — a known limitation of evaluating opaque predicate text rather
// than a real join-key expression.
func evalJoin(n *types.PlanNode, rowsByLeaf map[string][]Row) ([]Row, error) {
	left, err := Evaluate(n.Left, rowsByLeaf)
	if err != nil {
		return nil, err
	}
	right, err := Evaluate(n.Right, rowsByLeaf)
	if err != nil {
		return nil, err
	}

	var out []Row
	rightMatched := make([]bool, len(right))

	for _, l := range left {
		matched := false
		for ri, r := range right {
			merged := joinRow(l, r)
			if n.JoinKind == types.JoinCross || evalPredicate(n.On, merged) {
				out = append(out, merged)
				matched = true
				rightMatched[ri] = true
			}
		}
		if !matched && (n.JoinKind == types.JoinLeft || n.JoinKind == types.JoinFull) {
			out = append(out, joinRow(l, nil))
		}
	}
	if n.JoinKind == types.JoinFull || n.JoinKind == types.JoinRight {
		for ri, r := range right {
			if !rightMatched[ri] {
				out = append(out, joinRow(nil, r))
			}
		}
	}
	return out, nil
}

func joinRow(l, r Row) Row {
	merged := make(Row, len(l)+len(r))
	for k, v := range l {
		merged[k] = v
	}
	for k, v := range r {
		merged[k] = v
	}
	return merged
}

// evalAggregate groups rows by the string form of their GroupKeys values.
func evalAggregate(n *types.PlanNode, rows []Row) []Row {
	if len(n.GroupKeys) == 0 {
		return []Row{applyAggs(n.Aggs, rows)}
	}

	groups := map[string][]Row{}
	var order []string
	for _, r := range rows {
		key := groupKey(n.GroupKeys, r)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	out := make([]Row, 0, len(order))
	for _, key := range order {
		group := groups[key]
		result := applyAggs(n.Aggs, group)
		for _, gk := range n.GroupKeys {
			if len(group) > 0 {
				result[gk] = group[0][gk]
			}
		}
		out = append(out, result)
	}
	return out
}

func groupKey(keys []string, r Row) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprint(r[k])
	}
	return strings.Join(parts, "\x00")
}

// applyAggs evaluates each "func(col)" expression (or "count(*)") in aggs
// over group, returning one Row keyed by the raw aggregate expression text.
func applyAggs(aggs []string, group []Row) Row {
	out := Row{}
	for _, expr := range aggs {
		fn, col := splitAggExpr(expr)
		out[expr] = runAgg(fn, col, group)
	}
	return out
}

func splitAggExpr(expr string) (fn, col string) {
	open := strings.Index(expr, "(")
	closeIdx := strings.LastIndex(expr, ")")
	if open < 0 || closeIdx < open {
		return strings.ToLower(expr), ""
	}
	return strings.ToLower(strings.TrimSpace(expr[:open])), strings.TrimSpace(expr[open+1 : closeIdx])
}

func runAgg(fn, col string, group []Row) any {
	switch fn {
	case "count":
		return float64(len(group))
	case "sum":
		var sum float64
		for _, r := range group {
			if f, ok := asFloat(r[col]); ok {
				sum += f
			}
		}
		return sum
	case "avg":
		if len(group) == 0 {
			return float64(0)
		}
		var sum float64
		for _, r := range group {
			if f, ok := asFloat(r[col]); ok {
				sum += f
			}
		}
		return sum / float64(len(group))
	case "min":
		var best float64
		set := false
		for _, r := range group {
			if f, ok := asFloat(r[col]); ok && (!set || f < best) {
				best, set = f, true
			}
		}
		return best
	case "max":
		var best float64
		set := false
		for _, r := range group {
			if f, ok := asFloat(r[col]); ok && (!set || f > best) {
				best, set = f, true
			}
		}
		return best
	default:
		return nil
	}
}

func evalSort(n *types.PlanNode, rows []Row) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		for _, key := range n.SortKeys {
			col, desc := parseSortKey(key)
			fi, fj := out[i][col], out[j][col]
			if cmp := compareValues(fi, fj); cmp != 0 {
				if desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		return false
	})
	return out
}

func parseSortKey(key string) (col string, desc bool) {
	fields := strings.Fields(key)
	if len(fields) == 0 {
		return key, false
	}
	col = fields[0]
	if len(fields) > 1 && strings.EqualFold(fields[1], "DESC") {
		desc = true
	}
	return col, desc
}

func compareValues(a, b any) int {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs)
}

// evalLimit applies a Limit node: N>=0 caps the row count (a SQL LIMIT), a
// negative N drops the first -N rows (the NoSQL dialect's "skip" stage,
// which the parser encodes with a negated N rather than a separate kind).
func evalLimit(n *types.PlanNode, rows []Row) []Row {
	if n.N < 0 {
		skip := int(-n.N)
		if skip >= len(rows) {
			return nil
		}
		return rows[skip:]
	}
	if int(n.N) < len(rows) {
		return rows[:n.N]
	}
	return rows
}

func evalProject(n *types.PlanNode, rows []Row) []Row {
	if len(n.Columns) == 0 {
		return rows
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		projected := make(Row, len(n.Columns))
		for _, c := range n.Columns {
			projected[c] = r[c]
		}
		out[i] = projected
	}
	return out
}
