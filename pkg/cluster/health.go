package cluster

import (
	"sync"
	"time"

	"github.com/datapunk/lake/pkg/monitor"
	"github.com/datapunk/lake/pkg/types"
)

// healthWeights implement the spec's weighted health_score formula:
// cpu 0.2 + memory 0.2 + disk 0.2 + error_rate 0.3 + latency 0.1.
const (
	weightCPU       = 0.2
	weightMemory    = 0.2
	weightDisk      = 0.2
	weightErrorRate = 0.3
	weightLatency   = 0.1
)

// nodeHealth tracks the rolling health_score and hysteresis state for one
// node, modeled on the Checker/Status/Update idiom of a per-target health
// check, generalized here from a single boolean Healthy flag to a
// continuous weighted score with unhealthy/recovery thresholds.
type nodeHealth struct {
	score        float64
	healthy      bool
	lastObserved time.Time
}

// HealthMonitor computes and tracks per-node health scores and applies
// hysteresis so a node doesn't flap between healthy/unhealthy on noise:
// it must fall below unhealthyThreshold to go unhealthy, and climb back
// above recoveryThreshold to be considered healthy again.
type HealthMonitor struct {
	mu                 sync.RWMutex
	nodes              map[string]*nodeHealth
	unhealthyThreshold float64
	recoveryThreshold  float64
}

// NewHealthMonitor creates a HealthMonitor with the given hysteresis
// thresholds. Both must be in (0, 1]; recoveryThreshold should exceed
// unhealthyThreshold to avoid flapping.
func NewHealthMonitor(unhealthyThreshold, recoveryThreshold float64) *HealthMonitor {
	if unhealthyThreshold <= 0 {
		unhealthyThreshold = 0.5
	}
	if recoveryThreshold <= 0 {
		recoveryThreshold = 0.8
	}
	return &HealthMonitor{
		nodes:              make(map[string]*nodeHealth),
		unhealthyThreshold: unhealthyThreshold,
		recoveryThreshold:  recoveryThreshold,
	}
}

// latencyCeilingMs is the latency above which latency contributes zero to
// the health score; below this it scales linearly to 1.
const latencyCeilingMs = 500.0

// Score computes the weighted health_score from a node's resource metrics.
// cpu/memory/disk are fractional utilization in [0,1] where 0 is idle (so
// we invert them: a fully-utilized resource contributes 0 to the score).
// error_rate is a fraction in [0,1] of failed requests (inverted the same
// way). latency is normalized against latencyCeilingMs, 1 being fastest.
func Score(m types.ResourceMetrics) float64 {
	cpuScore := clamp01(1 - m.CPU)
	memScore := clamp01(1 - m.Memory)
	diskScore := clamp01(1 - m.Disk)
	errScore := clamp01(1 - m.ErrorRate)
	latScore := clamp01(1 - m.LatencyMs/latencyCeilingMs)

	return weightCPU*cpuScore +
		weightMemory*memScore +
		weightDisk*diskScore +
		weightErrorRate*errScore +
		weightLatency*latScore
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Observe records a fresh set of resource metrics for nodeID, recomputes
// its health_score, and applies unhealthy/recovery hysteresis. It returns
// the node's health state after the observation.
func (hm *HealthMonitor) Observe(nodeID string, m types.ResourceMetrics) (score float64, healthy bool) {
	score = Score(m)

	hm.mu.Lock()
	nh, ok := hm.nodes[nodeID]
	if !ok {
		nh = &nodeHealth{healthy: true}
		hm.nodes[nodeID] = nh
	}
	nh.score = score
	nh.lastObserved = time.Now()

	switch {
	case nh.healthy && score < hm.unhealthyThreshold:
		nh.healthy = false
	case !nh.healthy && score >= hm.recoveryThreshold:
		nh.healthy = true
	}
	healthy = nh.healthy
	hm.mu.Unlock()

	monitor.NodeHealthScore.WithLabelValues(nodeID).Set(score)
	return score, healthy
}

// IsHealthy reports the last-known health state for nodeID. Unknown nodes
// are reported healthy by default — a node absent from observation history
// has not yet failed anything.
func (hm *HealthMonitor) IsHealthy(nodeID string) bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	nh, ok := hm.nodes[nodeID]
	if !ok {
		return true
	}
	return nh.healthy
}

// ScoreOf returns the last computed score for nodeID, or 1.0 if unobserved.
func (hm *HealthMonitor) ScoreOf(nodeID string) float64 {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	nh, ok := hm.nodes[nodeID]
	if !ok {
		return 1.0
	}
	return nh.score
}

// Forget removes a node's health history, called once it is fully
// deregistered from the cluster.
func (hm *HealthMonitor) Forget(nodeID string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	delete(hm.nodes, nodeID)
}
