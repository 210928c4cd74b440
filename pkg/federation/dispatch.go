package federation

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/datapunk/lake/pkg/cluster"
	"github.com/datapunk/lake/pkg/monitor"
	"github.com/datapunk/lake/pkg/types"
)

// DispatchConfig tunes the dispatcher's concurrency, per-sub-plan timeout
// and retry backoff. Field names and defaults mirror
// config.FederationConfig so callers can pass it straight through.
type DispatchConfig struct {
	MaxConcurrentSubPlans int
	SubPlanTimeout        time.Duration
	RetryAttempts         int
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration
}

// DefaultDispatchConfig matches config.Default().Federation.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		MaxConcurrentSubPlans: 16,
		SubPlanTimeout:        30 * time.Second,
		RetryAttempts:         2,
		RetryBaseDelay:        time.Second,
		RetryMaxDelay:         30 * time.Second,
	}
}

// SubPlanStatus reports how a single sub-plan fared.
type SubPlanStatus string

const (
	SubPlanOK     SubPlanStatus = "ok"
	SubPlanFailed SubPlanStatus = "failed"
)

// SubPlanResult is one sub-plan's outcome: its rows on success, or the last
// error encountered across all retry attempts on failure.
type SubPlanResult struct {
	SubPlan SubPlan
	Status  SubPlanStatus
	Rows    []Row
	Err     error
}

// Dispatcher runs SubPlans across a bounded worker pool, retrying transient
// failures with exponential backoff and jitter, and tripping a per-source
// circuit breaker on repeated failure so a degraded source stops being
// hammered by every subsequent query.
type Dispatcher struct {
	cfg      DispatchConfig
	registry *Registry
	breakers *cluster.CircuitBreakerRegistry
}

// NewDispatcher builds a Dispatcher. breakers may be nil, in which case no
// circuit breaking is applied (useful for tests exercising a single source
// executor directly).
func NewDispatcher(cfg DispatchConfig, registry *Registry, breakers *cluster.CircuitBreakerRegistry) *Dispatcher {
	if cfg.MaxConcurrentSubPlans <= 0 {
		cfg = DefaultDispatchConfig()
	}
	return &Dispatcher{cfg: cfg, registry: registry, breakers: breakers}
}

// Dispatch runs every sub-plan concurrently (bounded by
// MaxConcurrentSubPlans), returning one SubPlanResult per sub-plan in the
// same order they were given. A sub-plan whose source has no registered
// executor fails immediately without consuming a retry attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, subPlans []SubPlan) []SubPlanResult {
	results := make([]SubPlanResult, len(subPlans))
	sem := make(chan struct{}, d.cfg.MaxConcurrentSubPlans)
	var wg sync.WaitGroup

	for i, sp := range subPlans {
		i, sp := i, sp
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = d.runOne(ctx, sp)
		}()
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) runOne(ctx context.Context, sp SubPlan) SubPlanResult {
	timer := monitor.NewTimer()
	sourceKind := string(sp.Source.Kind)

	executor, ok := d.registry.Get(sp.Source.Name)
	if !ok {
		monitor.FederationSubPlansTotal.WithLabelValues(sourceKind, "failed").Inc()
		return SubPlanResult{SubPlan: sp, Status: SubPlanFailed, Err: unregisteredSourceError(sp.Source.Name)}
	}

	var breaker *cluster.CircuitBreaker
	if d.breakers != nil {
		breaker = d.breakers.Get(sp.Source.Name)
	}

	attempts := d.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts+1; attempt++ {
		if breaker != nil {
			if err := breaker.Allow(); err != nil {
				lastErr = err
				break
			}
		}

		rows, err := d.attempt(ctx, executor, sp.Node)
		if err == nil {
			if breaker != nil {
				breaker.RecordSuccess()
			}
			monitor.FederationSubPlansTotal.WithLabelValues(sourceKind, "ok").Inc()
			timer.ObserveDurationVec(monitor.FederationSubPlanDuration, sourceKind)
			return SubPlanResult{SubPlan: sp, Status: SubPlanOK, Rows: rows}
		}

		lastErr = err
		if breaker != nil {
			breaker.RecordFailure()
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			time.Sleep(backoff(d.cfg, attempt))
		}
	}

	monitor.FederationSubPlansTotal.WithLabelValues(sourceKind, "failed").Inc()
	timer.ObserveDurationVec(monitor.FederationSubPlanDuration, sourceKind)
	return SubPlanResult{SubPlan: sp, Status: SubPlanFailed, Err: lastErr}
}

func (d *Dispatcher) attempt(ctx context.Context, executor SourceExecutor, node *types.PlanNode) ([]Row, error) {
	timeout := d.cfg.SubPlanTimeout
	if timeout <= 0 {
		timeout = DefaultDispatchConfig().SubPlanTimeout
	}
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	records, err := executor.Execute(subCtx, node)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = recordToRow(r)
	}
	return rows, nil
}

// backoff computes attempt's delay as base*2^attempt, capped at max, plus up
// to 20% jitter so retrying sub-plans across many sources don't all retry
// in lockstep.
func backoff(cfg DispatchConfig, attempt int) time.Duration {
	base := cfg.RetryBaseDelay
	if base <= 0 {
		base = time.Second
	}
	max := cfg.RetryMaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}
	delay := base << attempt
	if delay > max || delay <= 0 {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 5 + 1))
	return delay + jitter
}
