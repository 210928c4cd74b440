package federation

import "github.com/datapunk/lake/pkg/types"

// SubPlan is one leaf data-fetch node (Scan, or an opaque PivotMR/TimeSeries/
// GraphTraversal leaf — plus any Filter already pinned onto it by the
// optimizer's predicate push-down) assigned to a single DataSource.
type SubPlan struct {
	ID     string
	Source types.DataSource
	Node   *types.PlanNode
}

// Splitter walks a plan and pulls out every leaf data-fetch node reachable
// from its root as an independent SubPlan, matched to the DataSource whose
// Name equals the leaf's source name.
type Splitter struct{}

// NewSplitter builds a Splitter.
func NewSplitter() *Splitter { return &Splitter{} }

// leafSourceName returns the data-source name a leaf plan node reads from,
// or "" if n isn't a dispatchable leaf. Scan/PivotMR/TimeSeries carry it in
// Source; GraphTraversal has no Source field (the NoSQL dialect has no
// concept of a traversal "table"), so its edge collection doubles as the
// source name instead.
func leafSourceName(n *types.PlanNode) string {
	switch n.Kind {
	case types.PlanScan, types.PlanPivotMR, types.PlanTimeSeries:
		return n.Source
	case types.PlanGraphTraversal:
		if ec, ok := n.Spec["edge_collection"].(string); ok {
			return ec
		}
	}
	return ""
}

// Split returns one SubPlan per leaf data-fetch node in plan, in the order
// they're encountered left-to-right, depth-first. A leaf whose source
// doesn't match any entry in sources is skipped and its name is reported in
// missing, so the caller can decide whether that's a hard failure (unknown
// source) or tolerable (partial-results policy).
func (s *Splitter) Split(plan *types.QueryPlan, sources []types.DataSource) (subPlans []SubPlan, missing []string) {
	if plan == nil || plan.Root == nil {
		return nil, nil
	}
	byName := make(map[string]types.DataSource, len(sources))
	for _, src := range sources {
		byName[src.Name] = src
	}

	seenMissing := map[string]bool{}
	recordMissing := func(name string) {
		if !seenMissing[name] {
			seenMissing[name] = true
			missing = append(missing, name)
		}
	}

	var walk func(n *types.PlanNode)
	walk = func(n *types.PlanNode) {
		if n == nil {
			return
		}
		if name := leafSourceName(n); name != "" {
			src, ok := byName[name]
			if !ok {
				recordMissing(name)
				return
			}
			subPlans = append(subPlans, SubPlan{ID: n.ID, Source: src, Node: n})
			return
		}
		// A Filter directly over a leaf is carried along as part of the
		// leaf's sub-plan (predicate push-down already pinned it there), so
		// it isn't split out as its own node — the leaf's own ID keys the
		// dispatched result, but the Filter (with its predicate) is what
		// gets sent to the source executor.
		if n.Kind == types.PlanFilter && n.Input != nil {
			if name := leafSourceName(n.Input); name != "" {
				src, ok := byName[name]
				if !ok {
					recordMissing(name)
					return
				}
				subPlans = append(subPlans, SubPlan{ID: n.Input.ID, Source: src, Node: n})
				return
			}
		}
		walk(n.Input)
		walk(n.Left)
		walk(n.Right)
		for _, in := range n.Inputs {
			walk(in)
		}
	}
	walk(plan.Root)
	return subPlans, missing
}
