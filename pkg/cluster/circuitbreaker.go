package cluster

import (
	"fmt"
	"sync"
	"time"

	"github.com/datapunk/lake/pkg/monitor"
)

// CircuitState is one state in the Closed -> Open -> HalfOpen -> Closed
// cycle used to stop calling a repeatedly-failing dependency.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig tunes the breaker's trip/cooldown/probe behavior.
type CircuitBreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	ProbeLimit       int
}

// DefaultCircuitBreakerConfig matches the spec defaults: 5 consecutive
// failures trips the breaker, a 60s cooldown before probing resumes, and
// up to 3 concurrent probes while half-open.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
		ProbeLimit:       3,
	}
}

// CircuitBreaker guards calls to a single named dependency (a peer node, a
// federated data source, the cache tier-2 backend).
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig

	mu           sync.Mutex
	state        CircuitState
	failureCount int
	openedAt     time.Time
	probesInUse  int
}

// NewCircuitBreaker creates a closed CircuitBreaker named name.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg = DefaultCircuitBreakerConfig()
	}
	cb := &CircuitBreaker{name: name, cfg: cfg, state: CircuitClosed}
	monitor.CircuitBreakerState.WithLabelValues(name, name).Set(0)
	return cb
}

// Allow reports whether a call may proceed now. While Open and before the
// cooldown elapses, calls are rejected outright. Once the cooldown elapses
// the breaker moves to HalfOpen and allows up to ProbeLimit concurrent
// probe calls through.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(cb.openedAt) < cb.cfg.Cooldown {
			return fmt.Errorf("circuit %s is open", cb.name)
		}
		cb.state = CircuitHalfOpen
		cb.probesInUse = 0
		monitor.CircuitBreakerState.WithLabelValues(cb.name, cb.name).Set(2)
		fallthrough
	case CircuitHalfOpen:
		if cb.probesInUse >= cb.cfg.ProbeLimit {
			return fmt.Errorf("circuit %s is half-open and at probe limit", cb.name)
		}
		cb.probesInUse++
		return nil
	default:
		return nil
	}
}

// RecordSuccess reports a successful call. In HalfOpen, a success closes
// the breaker and resets its failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.probesInUse--
		cb.state = CircuitClosed
		cb.failureCount = 0
		monitor.CircuitBreakerState.WithLabelValues(cb.name, cb.name).Set(0)
	case CircuitClosed:
		cb.failureCount = 0
	}
}

// RecordFailure reports a failed call. In Closed state, FailureThreshold
// consecutive failures trips the breaker to Open. In HalfOpen, any probe
// failure re-opens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.probesInUse--
		cb.trip()
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.trip()
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = CircuitOpen
	cb.openedAt = time.Now()
	cb.failureCount = 0
	monitor.CircuitBreakerState.WithLabelValues(cb.name, cb.name).Set(1)
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CircuitBreakerRegistry holds one CircuitBreaker per dependency name,
// created lazily on first use.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewCircuitBreakerRegistry creates an empty registry using cfg for every
// breaker it lazily creates.
func NewCircuitBreakerRegistry(cfg CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for name, creating it if this is the first call.
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(name, r.cfg)
		r.breakers[name] = cb
	}
	return cb
}
