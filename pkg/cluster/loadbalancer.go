package cluster

import (
	"fmt"
	"sync"

	"github.com/datapunk/lake/pkg/types"
)

// Strategy selects which node should receive the next unit of work.
type Strategy string

const (
	StrategyRoundRobin     Strategy = "round_robin"
	StrategyLeastConns     Strategy = "least_connections"
	StrategyHealthWeighted Strategy = "health_weighted"
	StrategyAdaptive       Strategy = "adaptive"
)

// LoadBalancer picks a target node among a role's alive, healthy members
// using one of round-robin, least-connections, health-weighted or adaptive
// strategies. It consults the owning Cluster's HealthMonitor for health
// scores and tracks its own in-flight connection counts per node.
type LoadBalancer struct {
	cluster *Cluster

	mu       sync.Mutex
	indexes  map[string]int // round-robin cursor, keyed by role
	inFlight map[string]int // in-flight request count, keyed by node ID
}

// NewLoadBalancer creates a LoadBalancer bound to c, used to read the
// current node registry and health scores.
func NewLoadBalancer(c *Cluster) *LoadBalancer {
	return &LoadBalancer{
		cluster:  c,
		indexes:  make(map[string]int),
		inFlight: make(map[string]int),
	}
}

// Select picks a node among those with the given role using strategy,
// considering only nodes currently reported alive and healthy.
func (lb *LoadBalancer) Select(role types.NodeRole, strategy Strategy) (*types.Node, error) {
	candidates, err := lb.aliveHealthy(role)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no healthy nodes available for role %s", role)
	}

	switch strategy {
	case StrategyLeastConns:
		return lb.selectLeastConnections(candidates), nil
	case StrategyHealthWeighted:
		return lb.selectHealthWeighted(candidates), nil
	case StrategyAdaptive:
		return lb.selectAdaptive(candidates), nil
	default:
		return lb.selectRoundRobin(role, candidates), nil
	}
}

func (lb *LoadBalancer) aliveHealthy(role types.NodeRole) ([]*types.Node, error) {
	nodes, err := lb.cluster.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	var out []*types.Node
	for _, n := range nodes {
		if n.Role != role || n.Status != types.NodeStatusAlive {
			continue
		}
		if lb.cluster.Health != nil && !lb.cluster.Health.IsHealthy(n.ID) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// selectRoundRobin cycles through candidates in list order, remembering its
// cursor per role so repeated calls distribute evenly over time.
func (lb *LoadBalancer) selectRoundRobin(role types.NodeRole, candidates []*types.Node) *types.Node {
	key := string(role)
	lb.mu.Lock()
	defer lb.mu.Unlock()
	idx := lb.indexes[key] % len(candidates)
	lb.indexes[key] = idx + 1
	return candidates[idx]
}

// selectLeastConnections picks the candidate with the fewest in-flight
// requests tracked via Acquire/Release.
func (lb *LoadBalancer) selectLeastConnections(candidates []*types.Node) *types.Node {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	best := candidates[0]
	bestCount := lb.inFlight[best.ID]
	for _, n := range candidates[1:] {
		if c := lb.inFlight[n.ID]; c < bestCount {
			best, bestCount = n, c
		}
	}
	return best
}

// selectHealthWeighted picks the candidate with the highest health_score.
func (lb *LoadBalancer) selectHealthWeighted(candidates []*types.Node) *types.Node {
	best := candidates[0]
	bestScore := lb.cluster.Health.ScoreOf(best.ID)
	for _, n := range candidates[1:] {
		if s := lb.cluster.Health.ScoreOf(n.ID); s > bestScore {
			best, bestScore = n, s
		}
	}
	return best
}

// selectAdaptive blends health_score with current load: it favors the node
// with the highest score-per-in-flight-request ratio, so a highly healthy
// but already-busy node yields to a moderately healthy idle one.
func (lb *LoadBalancer) selectAdaptive(candidates []*types.Node) *types.Node {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	best := candidates[0]
	bestRatio := lb.adaptiveRatio(best)
	for _, n := range candidates[1:] {
		if r := lb.adaptiveRatio(n); r > bestRatio {
			best, bestRatio = n, r
		}
	}
	return best
}

func (lb *LoadBalancer) adaptiveRatio(n *types.Node) float64 {
	score := lb.cluster.Health.ScoreOf(n.ID)
	load := float64(lb.inFlight[n.ID]) + 1 // +1 avoids division by zero
	return score / load
}

// Acquire marks the start of a request against nodeID, incrementing its
// in-flight count for least-connections/adaptive selection.
func (lb *LoadBalancer) Acquire(nodeID string) {
	lb.mu.Lock()
	lb.inFlight[nodeID]++
	lb.mu.Unlock()
}

// Release marks the end of a request against nodeID.
func (lb *LoadBalancer) Release(nodeID string) {
	lb.mu.Lock()
	if lb.inFlight[nodeID] > 0 {
		lb.inFlight[nodeID]--
	}
	lb.mu.Unlock()
}
