// Package monitor implements C7's metric collection and exposition, alert
// rule evaluation and materialized views. Retention enforcement and rollups
// live in pkg/partition and record their counts here.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lake_nodes_total",
			Help: "Total number of nodes by role and status",
		},
		[]string{"role", "status"},
	)

	PartitionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lake_partitions_total",
			Help: "Total number of partitions by kind",
		},
		[]string{"kind"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lake_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lake_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lake_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lake_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lake_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lake_raft_commit_duration_seconds",
			Help:    "Time taken to commit a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lake_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lake_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Query / federation metrics
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lake_query_duration_seconds",
			Help:    "End-to-end query duration in seconds by dialect",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dialect", "status"},
	)

	OptimizerRewrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lake_optimizer_rewrites_total",
			Help: "Total number of plan rewrites applied, by rule",
		},
		[]string{"rule"},
	)

	FederationSubPlansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lake_federation_subplans_total",
			Help: "Total number of federation sub-plans dispatched by source kind and status",
		},
		[]string{"source_kind", "status"},
	)

	FederationSubPlanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lake_federation_subplan_duration_seconds",
			Help:    "Sub-plan execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source_kind"},
	)

	// Cache / rate-limit metrics
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lake_cache_hits_total",
			Help: "Total cache hits by tier",
		},
		[]string{"tier"},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lake_cache_misses_total",
			Help: "Total cache misses that fell through to recompute",
		},
	)

	CacheStampedesAvoidedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lake_cache_stampedes_avoided_total",
			Help: "Total concurrent recompute requests collapsed by single-flight",
		},
	)

	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lake_rate_limit_rejections_total",
			Help: "Total requests rejected by the rate limiter, by tenant and resource",
		},
		[]string{"tenant", "resource"},
	)

	// Reconciliation / health metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lake_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lake_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	NodeHealthScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lake_node_health_score",
			Help: "Computed health score (0-1) per node",
		},
		[]string{"node_id"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lake_circuit_breaker_state",
			Help: "Circuit breaker state per node/service (0=closed, 1=open, 2=half_open)",
		},
		[]string{"node_id", "service"},
	)

	// Retention / rollup metrics
	RetentionEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lake_retention_evictions_total",
			Help: "Total partitions evicted by retention; the event_type label carries the partition granularity, as retention policies are set per granularity, not per event type",
		},
		[]string{"event_type"},
	)

	RollupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lake_rollups_total",
			Help: "Total rollup jobs completed, by source granularity",
		},
		[]string{"source_granularity"},
	)

	AlertsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lake_alerts_fired_total",
			Help: "Total alerts fired, by rule and severity",
		},
		[]string{"rule", "severity"},
	)

	// Materialized view metrics
	ViewRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lake_view_refreshes_total",
			Help: "Total materialized view refreshes, by view and status",
		},
		[]string{"view", "status"},
	)

	ViewRefreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lake_view_refresh_duration_seconds",
			Help:    "Materialized view refresh duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"view"},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		PartitionsTotal,
		RaftLeader,
		RaftPeers,
		RaftLogIndex,
		RaftAppliedIndex,
		RaftApplyDuration,
		RaftCommitDuration,
		APIRequestsTotal,
		APIRequestDuration,
		QueryDuration,
		OptimizerRewrites,
		FederationSubPlansTotal,
		FederationSubPlanDuration,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheStampedesAvoidedTotal,
		RateLimitRejectionsTotal,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		NodeHealthScore,
		CircuitBreakerState,
		RetentionEvictionsTotal,
		RollupsTotal,
		AlertsFiredTotal,
		ViewRefreshesTotal,
		ViewRefreshDuration,
	)
}

// Handler returns the Prometheus exposition HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing operations and recording the elapsed
// duration to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a new Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to an unlabeled histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
