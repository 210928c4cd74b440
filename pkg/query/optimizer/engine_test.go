package optimizer

import (
	"testing"

	"github.com/datapunk/lake/pkg/types"
)

func scan(id, source string) *types.PlanNode {
	return &types.PlanNode{Kind: types.PlanScan, ID: id, Source: source}
}

func TestPredicatePushdownRule(t *testing.T) {
	join := &types.PlanNode{
		Kind: types.PlanJoin, ID: "j1", JoinKind: types.JoinInner,
		Left: scan("s1", "orders"), Right: scan("s2", "customers"),
		On: "orders.customer_id = customers.id",
	}
	filter := &types.PlanNode{Kind: types.PlanFilter, ID: "f1", Predicate: "orders.status = 'open'", Input: join}

	rewritten, changed := PredicatePushdownRule{}.Apply(filter, NewStatisticsCache())
	if !changed {
		t.Fatalf("expected predicate pushdown to change the plan")
	}
	if rewritten.Kind != types.PlanJoin {
		t.Fatalf("expected filter to be pushed below the join, got kind %v", rewritten.Kind)
	}
	if rewritten.Left.Kind != types.PlanFilter {
		t.Fatalf("expected pushed filter on left side, got %v", rewritten.Left.Kind)
	}
}

func TestJoinReorderRuleSwapsCheaperSideFirst(t *testing.T) {
	stats := NewStatisticsCache()
	stats.Set("big", TableStats{RowCount: 1_000_000})
	stats.Set("small", TableStats{RowCount: 10})

	join := &types.PlanNode{
		Kind: types.PlanJoin, ID: "j1", JoinKind: types.JoinInner,
		Left: scan("s1", "small"), Right: scan("s2", "big"),
	}
	rewritten, changed := JoinReorderRule{}.Apply(join, stats)
	if changed {
		t.Fatalf("left side already cheaper, rule should not have needed to swap")
	}
	_ = rewritten

	join2 := &types.PlanNode{
		Kind: types.PlanJoin, ID: "j2", JoinKind: types.JoinInner,
		Left: scan("s1", "big"), Right: scan("s2", "small"),
	}
	rewritten2, changed2 := JoinReorderRule{}.Apply(join2, stats)
	if !changed2 {
		t.Fatalf("expected swap when right side is cheaper")
	}
	if rewritten2.Left.Source != "small" {
		t.Fatalf("expected left to become 'small' after swap, got %s", rewritten2.Left.Source)
	}
}

func TestJoinReorderRuleLeavesAsymmetricJoinsAlone(t *testing.T) {
	stats := NewStatisticsCache()
	stats.Set("big", TableStats{RowCount: 1_000_000})
	join := &types.PlanNode{
		Kind: types.PlanJoin, ID: "j1", JoinKind: types.JoinLeft,
		Left: scan("s1", "small"), Right: scan("s2", "big"),
	}
	_, changed := JoinReorderRule{}.Apply(join, stats)
	if changed {
		t.Fatalf("left join is asymmetric, rule must not reorder it")
	}
}

func TestColumnPruneRuleAnnotatesScan(t *testing.T) {
	root := &types.PlanNode{
		Kind: types.PlanProject, ID: "p1", Columns: []string{"name", "total"},
		Input: &types.PlanNode{
			Kind: types.PlanFilter, ID: "f1", Predicate: "status = 1",
			Input: scan("s1", "orders"),
		},
	}
	rewritten, changed := ColumnPruneRule{}.Apply(root, NewStatisticsCache())
	if !changed {
		t.Fatalf("expected column prune to annotate scan")
	}
	scanNode := rewritten.Input.Input
	cols, ok := scanNode.Spec["required_columns"].([]string)
	if !ok {
		t.Fatalf("expected required_columns on scan spec, got %#v", scanNode.Spec)
	}
	want := map[string]bool{"name": true, "total": true, "status": true}
	if len(cols) != len(want) {
		t.Fatalf("expected %d required columns, got %v", len(want), cols)
	}
	for _, c := range cols {
		if !want[c] {
			t.Fatalf("unexpected required column %q", c)
		}
	}
}

func TestTemporalRewriteRuleAttachesPartitionFilter(t *testing.T) {
	root := &types.PlanNode{
		Kind: types.PlanFilter, ID: "f1",
		Predicate: "ts >= '2026-01-01T00:00:00Z' AND ts <= '2026-01-02T00:00:00Z'",
		Input:     scan("s1", "events"),
	}
	rule := NewTemporalRewriteRule()
	rewritten, changed := rule.Apply(root, NewStatisticsCache())
	if !changed {
		t.Fatalf("expected temporal rewrite to attach a partition filter")
	}
	scanNode := rewritten.Input
	if len(scanNode.PartitionFilter) == 0 {
		t.Fatalf("expected non-empty partition filter, got %v", scanNode.PartitionFilter)
	}
}

func TestEngineReachesFixedPoint(t *testing.T) {
	stats := NewStatisticsCache()
	stats.Set("small", TableStats{RowCount: 5})
	stats.Set("big", TableStats{RowCount: 5000})

	plan := &types.QueryPlan{Root: &types.PlanNode{
		Kind: types.PlanFilter, ID: "f1", Predicate: "big.status = 'open'",
		Input: &types.PlanNode{
			Kind: types.PlanJoin, ID: "j1", JoinKind: types.JoinInner,
			Left: scan("s1", "small"), Right: scan("s2", "big"),
		},
	}}

	engine := NewEngine(stats)
	result := engine.Optimize(plan)
	if result == nil || result.Root == nil {
		t.Fatalf("expected a non-nil optimized plan")
	}
}

func TestCostOptimizerRejectsInsufficientImprovement(t *testing.T) {
	stats := NewStatisticsCache()
	co := NewCostOptimizer(stats)
	co.ImprovementThreshold = 1.0 // impossible to clear, forces fallback to original

	plan := &types.QueryPlan{Root: scan("s1", "orders")}
	result := co.Optimize(plan)
	if result.Root != plan.Root {
		t.Fatalf("expected original plan to be kept when improvement threshold can't be met")
	}
}

func TestCostOptimizerServesHotPatternFromHistory(t *testing.T) {
	stats := NewStatisticsCache()
	co := NewCostOptimizer(stats)
	co.ImprovementThreshold = 0 // accept any strict improvement, so repeated calls populate history identically

	plan := &types.QueryPlan{Root: scan("s1", "orders")}
	var last *types.QueryPlan
	for i := 0; i < hotThreshold+1; i++ {
		last = co.Optimize(plan)
	}
	if last == nil || last.Root == nil {
		t.Fatalf("expected an optimized plan once the pattern is hot")
	}
	if co.history.Size() != 1 {
		t.Fatalf("expected exactly one tracked canonical shape, got %d", co.history.Size())
	}
}

func TestStatisticsCacheDriftAndInvalidation(t *testing.T) {
	stats := NewStatisticsCache()
	stats.Set("orders", TableStats{RowCount: 1000})
	if d := stats.DriftFraction("orders", 1050); d >= 0.10 {
		t.Fatalf("5%% drift should be below the 10%% invalidation threshold, got %f", d)
	}
	if d := stats.DriftFraction("orders", 2000); d < 0.10 {
		t.Fatalf("100%% drift should clear the 10%% threshold, got %f", d)
	}

	co := NewCostOptimizer(stats)
	co.history.Record("shape-a", scan("s1", "orders"))
	co.RefreshStatistics("orders", TableStats{RowCount: 5000})
	if _, ok := co.history.Lookup("shape-a"); ok {
		t.Fatalf("expected pattern history entry to be invalidated after large drift")
	}
}
