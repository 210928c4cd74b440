package cache

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/datapunk/lake/pkg/monitor"
)

// RateLimitConfig tunes the per-tenant/resource rate limiter.
type RateLimitConfig struct {
	DefaultRPS float64
	Burst      int
	Window     time.Duration
	FailOpen   bool
}

// DefaultRateLimitConfig matches the spec defaults: 10 requests/sec,
// burst 20, 60s sliding window, fail-open on limiter internal error.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		DefaultRPS: 10,
		Burst:      20,
		Window:     60 * time.Second,
		FailOpen:   true,
	}
}

// slidingWindow is a coarse sliding-window counter layered on top of the
// token bucket: it additionally caps total requests within Window,
// catching bursty-but-sub-RPS abuse the token bucket alone would allow.
type slidingWindow struct {
	mu         sync.Mutex
	window     time.Duration
	limit      int
	timestamps []time.Time
}

func newSlidingWindow(window time.Duration, limit int) *slidingWindow {
	return &slidingWindow{window: window, limit: limit}
}

func (w *slidingWindow) allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.window)
	kept := w.timestamps[:0]
	for _, t := range w.timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.timestamps = kept

	if len(w.timestamps) >= w.limit {
		return false
	}
	w.timestamps = append(w.timestamps, now)
	return true
}

// limiterPair bundles the token bucket and sliding-window gates for one
// tenant+resource key; both must allow a request for it to pass.
type limiterPair struct {
	bucket *rate.Limiter
	window *slidingWindow
}

// RateLimiter enforces per-(tenant,resource) request budgets using a
// token-bucket for smooth-rate limiting plus a sliding-window cap for
// burst abuse, and fails open (allows the request) rather than rejecting
// traffic if its internal state is ever in an inconsistent condition —
// matching the spec's availability-over-strictness default.
type RateLimiter struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	limiters map[string]*limiterPair
}

// NewRateLimiter creates a RateLimiter using cfg as the default budget for
// every not-yet-seen tenant/resource pair.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.DefaultRPS <= 0 {
		cfg = DefaultRateLimitConfig()
	}
	return &RateLimiter{cfg: cfg, limiters: make(map[string]*limiterPair)}
}

func rlKey(tenant, resource string) string { return tenant + "|" + resource }

// Allow reports whether a request for (tenant, resource) may proceed now.
func (r *RateLimiter) Allow(tenant, resource string) bool {
	pair := r.pairFor(tenant, resource)
	if pair == nil {
		return r.cfg.FailOpen
	}

	if !pair.bucket.Allow() {
		monitor.RateLimitRejectionsTotal.WithLabelValues(tenant, resource).Inc()
		return false
	}
	if !pair.window.allow(time.Now()) {
		monitor.RateLimitRejectionsTotal.WithLabelValues(tenant, resource).Inc()
		return false
	}
	return true
}

func (r *RateLimiter) pairFor(tenant, resource string) *limiterPair {
	key := rlKey(tenant, resource)

	r.mu.Lock()
	defer r.mu.Unlock()

	pair, ok := r.limiters[key]
	if !ok {
		pair = &limiterPair{
			bucket: rate.NewLimiter(rate.Limit(r.cfg.DefaultRPS), r.cfg.Burst),
			window: newSlidingWindow(r.cfg.Window, int(r.cfg.DefaultRPS*r.cfg.Window.Seconds())),
		}
		r.limiters[key] = pair
	}
	return pair
}

// SetLimit overrides the budget for a specific tenant+resource pair,
// e.g. for a tenant with a contractually higher quota.
func (r *RateLimiter) SetLimit(tenant, resource string, rps float64, burst int) {
	key := rlKey(tenant, resource)
	pair := &limiterPair{
		bucket: rate.NewLimiter(rate.Limit(rps), burst),
		window: newSlidingWindow(r.cfg.Window, int(rps*r.cfg.Window.Seconds())),
	}
	r.mu.Lock()
	r.limiters[key] = pair
	r.mu.Unlock()
}
