package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/datapunk/lake/pkg/log"
)

// RefreshFunc executes a materialized view's backing query and returns its
// result set. The concrete implementation (wired at the call site, e.g. by
// cmd/lake) runs the query text through the federation executor; this
// package stays query-engine-agnostic to avoid an import cycle back into
// pkg/federation, which already depends on pkg/monitor for instrumentation.
type RefreshFunc func(ctx context.Context, query string) (any, error)

// MaterializedView periodically re-runs a query on RefreshInterval and
// serves the most recent successful result until it goes stale past
// Retention, at which point Read reports the snapshot as no longer valid
// rather than serving arbitrarily old data.
type MaterializedView struct {
	Name            string
	Query           string
	RefreshInterval time.Duration
	Retention       time.Duration

	refresh RefreshFunc

	mu          sync.RWMutex
	snapshot    any
	refreshedAt time.Time
	lastErr     error

	stopCh chan struct{}
}

// NewMaterializedView builds a view that calls refresh to recompute its
// snapshot. The view does not begin refreshing until Start is called.
func NewMaterializedView(name, query string, refreshInterval, retention time.Duration, refresh RefreshFunc) *MaterializedView {
	return &MaterializedView{
		Name:            name,
		Query:           query,
		RefreshInterval: refreshInterval,
		Retention:       retention,
		refresh:         refresh,
		stopCh:          make(chan struct{}),
	}
}

// Start begins the background refresh loop, grounded on the same
// ticker-plus-stop-channel shape as pkg/cluster.Reconciler and AlertManager.
func (v *MaterializedView) Start() {
	go v.run()
}

// Stop terminates the refresh loop. A stopped view continues to serve its
// last snapshot via Read.
func (v *MaterializedView) Stop() {
	close(v.stopCh)
}

func (v *MaterializedView) run() {
	interval := v.RefreshInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger := log.WithComponent("materialized_view").With().Str("view", v.Name).Logger()
	logger.Info().Msg("materialized view refresh started")

	v.refreshOnce(context.Background(), logger)
	for {
		select {
		case <-ticker.C:
			v.refreshOnce(context.Background(), logger)
		case <-v.stopCh:
			logger.Info().Msg("materialized view refresh stopped")
			return
		}
	}
}

// refreshOnce runs a single refresh cycle, recording metrics and updating
// the snapshot on success. Kept separate from run's ticker loop so Refresh
// (an on-demand, synchronous refresh) can share the same logic.
func (v *MaterializedView) refreshOnce(ctx context.Context, logger zerolog.Logger) error {
	timer := NewTimer()
	result, err := v.refresh(ctx, v.Query)
	timer.ObserveDurationVec(ViewRefreshDuration, v.Name)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.lastErr = err
		ViewRefreshesTotal.WithLabelValues(v.Name, "error").Inc()
		logger.Error().Err(err).Msg("materialized view refresh failed")
		return err
	}
	v.snapshot = result
	v.refreshedAt = time.Now()
	v.lastErr = nil
	ViewRefreshesTotal.WithLabelValues(v.Name, "ok").Inc()
	return nil
}

// Refresh runs an immediate, synchronous refresh outside the ticker cadence
// (e.g. in response to an explicit API call or a CLI command).
func (v *MaterializedView) Refresh(ctx context.Context) error {
	return v.refreshOnce(ctx, log.WithComponent("materialized_view").With().Str("view", v.Name).Logger())
}

// Read returns the view's current snapshot. ok is false if no successful
// refresh has ever completed, or if the snapshot is older than Retention.
func (v *MaterializedView) Read() (snapshot any, refreshedAt time.Time, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.refreshedAt.IsZero() {
		return nil, time.Time{}, false
	}
	if v.Retention > 0 && time.Since(v.refreshedAt) > v.Retention {
		return nil, v.refreshedAt, false
	}
	return v.snapshot, v.refreshedAt, true
}

// LastError returns the error from the most recent failed refresh, if any.
func (v *MaterializedView) LastError() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastErr
}

// ViewManager owns a set of named materialized views, mirroring AlertManager's
// registry shape.
type ViewManager struct {
	mu    sync.Mutex
	views map[string]*MaterializedView
}

// NewViewManager builds an empty ViewManager.
func NewViewManager() *ViewManager {
	return &ViewManager{views: make(map[string]*MaterializedView)}
}

// Register adds a view and starts its refresh loop.
func (m *ViewManager) Register(view *MaterializedView) {
	m.mu.Lock()
	m.views[view.Name] = view
	m.mu.Unlock()
	view.Start()
}

// Get looks up a registered view by name.
func (m *ViewManager) Get(name string) (*MaterializedView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[name]
	return v, ok
}

// StopAll stops every registered view's refresh loop.
func (m *ViewManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.views {
		v.Stop()
	}
}
