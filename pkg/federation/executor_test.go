package federation

import (
	"context"
	"testing"

	"github.com/datapunk/lake/pkg/types"
)

func TestExecutorEndToEndJoinAcrossSources(t *testing.T) {
	registry := NewRegistry()
	registry.Register("orders", SourceExecutorFunc(func(ctx context.Context, node *types.PlanNode) ([]types.Record, error) {
		return []types.Record{
			{ID: "o1", Payload: []byte(`{"customer_id":"c1","amount":10}`)},
			{ID: "o2", Payload: []byte(`{"customer_id":"c2","amount":20}`)},
		}, nil
	}))
	registry.Register("customers", SourceExecutorFunc(func(ctx context.Context, node *types.PlanNode) ([]types.Record, error) {
		return []types.Record{{ID: "c1", Payload: []byte(`{"name":"alice"}`)}}, nil
	}))

	executor := NewExecutor(DefaultExecutorConfig(), registry, nil, nil)

	plan := &types.QueryPlan{Root: &types.PlanNode{
		Kind: types.PlanJoin, ID: "j1", JoinKind: types.JoinInner,
		Left:  &types.PlanNode{Kind: types.PlanScan, ID: "orders_scan", Source: "orders"},
		Right: &types.PlanNode{Kind: types.PlanScan, ID: "customers_scan", Source: "customers"},
		On:    "customer_id = id",
	}}
	sources := []types.DataSource{
		{Name: "orders", Kind: types.SourceRelational},
		{Name: "customers", Kind: types.SourceRelational},
	}

	result, err := executor.Execute(context.Background(), plan, sources)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusOK {
		t.Fatalf("expected ok status, got %v (failed=%v missing=%v)", result.Status, result.Failed, result.Missing)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 joined row, got %d: %v", len(result.Rows), result.Rows)
	}
}

func TestExecutorReportsPartialOnSourceFailure(t *testing.T) {
	registry := NewRegistry()
	registry.Register("orders", SourceExecutorFunc(func(ctx context.Context, node *types.PlanNode) ([]types.Record, error) {
		return []types.Record{{ID: "o1", Payload: []byte(`{"amount":10}`)}}, nil
	}))
	// "customers" intentionally unregistered.

	executor := NewExecutor(DefaultExecutorConfig(), registry, nil, nil)
	plan := &types.QueryPlan{Root: &types.PlanNode{
		Kind: types.PlanUnion, ID: "u1",
		Inputs: []*types.PlanNode{
			{Kind: types.PlanScan, ID: "orders_scan", Source: "orders"},
			{Kind: types.PlanScan, ID: "customers_scan", Source: "customers"},
		},
	}}
	sources := []types.DataSource{{Name: "orders", Kind: types.SourceRelational}}

	result, err := executor.Execute(context.Background(), plan, sources)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusPartial {
		t.Fatalf("expected partial status, got %v", result.Status)
	}
	if len(result.Missing) != 1 || result.Missing[0] != "customers" {
		t.Fatalf("expected missing=[customers], got %v", result.Missing)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected the one available source's row, got %d", len(result.Rows))
	}
}

func TestExecutorReportsFailedWhenNoSourceAvailable(t *testing.T) {
	executor := NewExecutor(DefaultExecutorConfig(), NewRegistry(), nil, nil)
	plan := &types.QueryPlan{Root: &types.PlanNode{Kind: types.PlanScan, ID: "s1", Source: "ghost"}}

	result, err := executor.Execute(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusFailed {
		t.Fatalf("expected failed status, got %v", result.Status)
	}
}
