package federation

import (
	"context"

	"github.com/datapunk/lake/pkg/types"
)

// SourceExecutor runs a single SubPlan against one data source and returns
// the rows it produced. Implementations live per DataSourceKind (relational
// over a SQL driver, document over a Mongo-shaped client, object over a
// blob store listing, etc.) — this package only orchestrates dispatch.
type SourceExecutor interface {
	Execute(ctx context.Context, node *types.PlanNode) ([]types.Record, error)
}

// SourceExecutorFunc adapts a plain function to a SourceExecutor.
type SourceExecutorFunc func(ctx context.Context, node *types.PlanNode) ([]types.Record, error)

// Execute implements SourceExecutor.
func (f SourceExecutorFunc) Execute(ctx context.Context, node *types.PlanNode) ([]types.Record, error) {
	return f(ctx, node)
}

// Registry resolves a DataSource's name to the SourceExecutor that knows
// how to talk to it.
type Registry struct {
	executors map[string]SourceExecutor
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]SourceExecutor)}
}

// Register binds name to executor, replacing any prior binding.
func (r *Registry) Register(name string, executor SourceExecutor) {
	r.executors[name] = executor
}

// Get returns the executor registered for name, if any.
func (r *Registry) Get(name string) (SourceExecutor, bool) {
	e, ok := r.executors[name]
	return e, ok
}
