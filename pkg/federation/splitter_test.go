package federation

import (
	"testing"

	"github.com/datapunk/lake/pkg/types"
)

func TestSplitterAssignsScansToSources(t *testing.T) {
	plan := &types.QueryPlan{Root: &types.PlanNode{
		Kind: types.PlanJoin, ID: "j1", JoinKind: types.JoinInner,
		Left:  &types.PlanNode{Kind: types.PlanScan, ID: "s1", Source: "orders"},
		Right: &types.PlanNode{Kind: types.PlanScan, ID: "s2", Source: "customers"},
		On:    "orders.customer_id = customers.id",
	}}
	sources := []types.DataSource{
		{Name: "orders", Kind: types.SourceRelational},
		{Name: "customers", Kind: types.SourceRelational},
	}

	sp := NewSplitter()
	subPlans, missing := sp.Split(plan, sources)
	if len(missing) != 0 {
		t.Fatalf("expected no missing sources, got %v", missing)
	}
	if len(subPlans) != 2 {
		t.Fatalf("expected 2 sub-plans, got %d", len(subPlans))
	}
}

func TestSplitterReportsMissingSource(t *testing.T) {
	plan := &types.QueryPlan{Root: &types.PlanNode{Kind: types.PlanScan, ID: "s1", Source: "unknown_table"}}
	sp := NewSplitter()
	subPlans, missing := sp.Split(plan, nil)
	if len(subPlans) != 0 {
		t.Fatalf("expected 0 sub-plans when source is unregistered, got %d", len(subPlans))
	}
	if len(missing) != 1 || missing[0] != "unknown_table" {
		t.Fatalf("expected missing=[unknown_table], got %v", missing)
	}
}

func TestSplitterCarriesPushedDownFilter(t *testing.T) {
	plan := &types.QueryPlan{Root: &types.PlanNode{
		Kind: types.PlanFilter, ID: "f1", Predicate: "status = 1",
		Input: &types.PlanNode{Kind: types.PlanScan, ID: "s1", Source: "orders"},
	}}
	sources := []types.DataSource{{Name: "orders", Kind: types.SourceRelational}}
	sp := NewSplitter()
	subPlans, _ := sp.Split(plan, sources)
	if len(subPlans) != 1 {
		t.Fatalf("expected 1 sub-plan, got %d", len(subPlans))
	}
	if subPlans[0].ID != "s1" {
		t.Fatalf("expected sub-plan keyed by scan ID, got %s", subPlans[0].ID)
	}
	if subPlans[0].Node.Kind != types.PlanFilter {
		t.Fatalf("expected dispatched node to be the filter, got %v", subPlans[0].Node.Kind)
	}
}

func TestSplitterGraphTraversalUsesEdgeCollectionAsSource(t *testing.T) {
	plan := &types.QueryPlan{Root: &types.PlanNode{
		Kind: types.PlanGraphTraversal, ID: "graph:follows",
		Spec: map[string]any{"edge_collection": "follows", "start_node": "u1"},
	}}
	sources := []types.DataSource{{Name: "follows", Kind: types.SourceGraph}}
	sp := NewSplitter()
	subPlans, missing := sp.Split(plan, sources)
	if len(missing) != 0 || len(subPlans) != 1 {
		t.Fatalf("expected 1 sub-plan and no missing, got subPlans=%d missing=%v", len(subPlans), missing)
	}
}
