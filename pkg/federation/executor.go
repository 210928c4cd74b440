package federation

import (
	"context"
	"time"

	"github.com/datapunk/lake/pkg/cache"
	"github.com/datapunk/lake/pkg/cluster"
	"github.com/datapunk/lake/pkg/types"
)

// Status summarizes how a federated query fared across all its sub-plans.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Result is a federated query's outcome.
type Result struct {
	Status  Status
	Rows    []Row
	Failed  []SubPlanResult // sub-plans that never produced rows
	Missing []string        // plan sources with no registered DataSource at all
}

// ExecutorConfig bundles the pieces a federation Executor needs beyond
// dispatch tuning: the CancelTimeout grace period given to in-flight
// sub-plans after the caller's context is canceled (so a client
// disconnecting doesn't instantly kill sub-plans close to finishing). The
// result cache is not part of it; NewExecutor takes it as its own argument.
type ExecutorConfig struct {
	Dispatch      DispatchConfig
	CancelTimeout time.Duration
}

// DefaultExecutorConfig matches config.Default().Federation.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Dispatch:      DefaultDispatchConfig(),
		CancelTimeout: 5 * time.Second,
	}
}

// Executor runs a query plan end to end: split into sub-plans, dispatch
// across sources, merge the results. A nil Cache disables result caching.
type Executor struct {
	cfg        ExecutorConfig
	splitter   *Splitter
	dispatcher *Dispatcher
	cache      *cache.Cache
}

// NewExecutor builds an Executor. breakers may be nil to disable circuit
// breaking; resultCache may be nil to disable caching.
func NewExecutor(cfg ExecutorConfig, registry *Registry, breakers *cluster.CircuitBreakerRegistry, resultCache *cache.Cache) *Executor {
	if cfg.CancelTimeout <= 0 {
		cfg = DefaultExecutorConfig()
	}
	return &Executor{
		cfg:        cfg,
		splitter:   NewSplitter(),
		dispatcher: NewDispatcher(cfg.Dispatch, registry, breakers),
		cache:      resultCache,
	}
}

// Execute runs plan against sources. If ctx is canceled while sub-plans are
// still in flight, Execute gives them up to CancelTimeout to finish before
// abandoning them and returning whatever completed — callers that need a
// hard deadline should wrap ctx with their own timeout first.
func (e *Executor) Execute(ctx context.Context, plan *types.QueryPlan, sources []types.DataSource) (*Result, error) {
	if plan == nil || plan.Root == nil {
		return &Result{Status: StatusOK}, nil
	}

	subPlans, missing := e.splitter.Split(plan, sources)

	dispatchCtx := ctx
	if e.cfg.CancelTimeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = withGraceOnParentCancel(ctx, e.cfg.CancelTimeout)
		defer cancel()
	}

	subResults := e.dispatcher.Dispatch(dispatchCtx, subPlans)

	rowsByLeaf := make(map[string][]Row, len(subResults))
	var failed []SubPlanResult
	for _, r := range subResults {
		if r.Status == SubPlanOK {
			rowsByLeaf[r.SubPlan.ID] = r.Rows
		} else {
			failed = append(failed, r)
			rowsByLeaf[r.SubPlan.ID] = nil
		}
	}

	rows, err := Evaluate(plan.Root, rowsByLeaf)
	if err != nil {
		return &Result{Status: StatusFailed, Failed: failed, Missing: missing}, err
	}

	status := StatusOK
	switch {
	case len(missing) == 0 && len(failed) == 0:
		status = StatusOK
	case len(failed) == len(subPlans) && len(subPlans) > 0:
		status = StatusFailed
	case len(subPlans) == 0 && len(missing) > 0:
		status = StatusFailed
	default:
		status = StatusPartial
	}

	return &Result{Status: status, Rows: rows, Failed: failed, Missing: missing}, nil
}

// withGraceOnParentCancel returns a context that lingers for grace after
// ctx is canceled, instead of canceling immediately — giving in-flight
// sub-plan goroutines a window to return before their context is finally
// torn down.
func withGraceOnParentCancel(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	child, cancel := context.WithCancel(context.Background())
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			select {
			case <-time.After(grace):
			case <-stop:
			}
			cancel()
		case <-stop:
		}
	}()
	return child, func() {
		close(stop)
		cancel()
	}
}
