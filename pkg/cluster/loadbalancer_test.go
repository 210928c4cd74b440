package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lake/pkg/types"
)

func newTestCluster(t *testing.T) *Cluster {
	t.Helper()
	c, err := New(Config{NodeID: "node-test", DataDir: t.TempDir(), UnhealthyThreshold: 0.5, RecoveryThreshold: 0.8})
	require.NoError(t, err)
	t.Cleanup(func() { c.store.Close() })
	return c
}

func seedNode(t *testing.T, c *Cluster, id string, role types.NodeRole, status types.NodeStatus) {
	t.Helper()
	require.NoError(t, c.Store().CreateNode(&types.Node{ID: id, Role: role, Status: status}))
}

func TestSelectReturnsErrorWhenNoCandidates(t *testing.T) {
	c := newTestCluster(t)
	_, err := c.LoadBalancer.Select(types.NodeRoleFollower, StrategyRoundRobin)
	assert.Error(t, err)
}

func TestSelectExcludesDeadAndUnhealthyNodes(t *testing.T) {
	c := newTestCluster(t)
	seedNode(t, c, "alive-healthy", types.NodeRoleFollower, types.NodeStatusAlive)
	seedNode(t, c, "dead", types.NodeRoleFollower, types.NodeStatusDead)
	c.Health.Observe("alive-healthy", types.ResourceMetrics{})
	c.Health.Observe("unhealthy-alive", types.ResourceMetrics{CPU: 1, Memory: 1, Disk: 1, ErrorRate: 1, LatencyMs: latencyCeilingMs})
	seedNode(t, c, "unhealthy-alive", types.NodeRoleFollower, types.NodeStatusAlive)

	node, err := c.LoadBalancer.Select(types.NodeRoleFollower, StrategyRoundRobin)
	require.NoError(t, err)
	assert.Equal(t, "alive-healthy", node.ID)
}

func TestSelectRoundRobinCyclesEvenly(t *testing.T) {
	c := newTestCluster(t)
	seedNode(t, c, "a", types.NodeRoleFollower, types.NodeStatusAlive)
	seedNode(t, c, "b", types.NodeRoleFollower, types.NodeStatusAlive)

	seen := make(map[string]int)
	for i := 0; i < 4; i++ {
		n, err := c.LoadBalancer.Select(types.NodeRoleFollower, StrategyRoundRobin)
		require.NoError(t, err)
		seen[n.ID]++
	}
	assert.Equal(t, 2, seen["a"])
	assert.Equal(t, 2, seen["b"])
}

func TestSelectLeastConnectionsPicksLowestInFlight(t *testing.T) {
	c := newTestCluster(t)
	seedNode(t, c, "busy", types.NodeRoleFollower, types.NodeStatusAlive)
	seedNode(t, c, "idle", types.NodeRoleFollower, types.NodeStatusAlive)
	c.LoadBalancer.Acquire("busy")
	c.LoadBalancer.Acquire("busy")

	n, err := c.LoadBalancer.Select(types.NodeRoleFollower, StrategyLeastConns)
	require.NoError(t, err)
	assert.Equal(t, "idle", n.ID)
}

func TestReleaseDecrementsInFlight(t *testing.T) {
	c := newTestCluster(t)
	seedNode(t, c, "a", types.NodeRoleFollower, types.NodeStatusAlive)
	seedNode(t, c, "b", types.NodeRoleFollower, types.NodeStatusAlive)

	c.LoadBalancer.Acquire("a")
	c.LoadBalancer.Acquire("a")
	c.LoadBalancer.Release("a")

	n, err := c.LoadBalancer.Select(types.NodeRoleFollower, StrategyLeastConns)
	require.NoError(t, err)
	assert.Equal(t, "b", n.ID)
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	c := newTestCluster(t)
	c.LoadBalancer.Release("never-acquired")
	assert.Equal(t, 0, c.LoadBalancer.inFlight["never-acquired"])
}

func TestSelectHealthWeightedPicksHighestScore(t *testing.T) {
	c := newTestCluster(t)
	seedNode(t, c, "healthier", types.NodeRoleFollower, types.NodeStatusAlive)
	seedNode(t, c, "ok", types.NodeRoleFollower, types.NodeStatusAlive)
	c.Health.Observe("healthier", types.ResourceMetrics{})
	c.Health.Observe("ok", types.ResourceMetrics{CPU: 0.3, Memory: 0.3, Disk: 0.3, ErrorRate: 0.3})

	n, err := c.LoadBalancer.Select(types.NodeRoleFollower, StrategyHealthWeighted)
	require.NoError(t, err)
	assert.Equal(t, "healthier", n.ID)
}

func TestSelectAdaptivePrefersIdleOverBusyEvenIfLessHealthy(t *testing.T) {
	c := newTestCluster(t)
	seedNode(t, c, "busy-and-healthy", types.NodeRoleFollower, types.NodeStatusAlive)
	seedNode(t, c, "idle-and-ok", types.NodeRoleFollower, types.NodeStatusAlive)
	c.Health.Observe("busy-and-healthy", types.ResourceMetrics{})
	c.Health.Observe("idle-and-ok", types.ResourceMetrics{CPU: 0.3, Memory: 0.3, Disk: 0.3, ErrorRate: 0.3})
	for i := 0; i < 10; i++ {
		c.LoadBalancer.Acquire("busy-and-healthy")
	}

	n, err := c.LoadBalancer.Select(types.NodeRoleFollower, StrategyAdaptive)
	require.NoError(t, err)
	assert.Equal(t, "idle-and-ok", n.ID)
}

func TestSelectRespectsRoleFiltering(t *testing.T) {
	c := newTestCluster(t)
	seedNode(t, c, "leader-1", types.NodeRoleLeader, types.NodeStatusAlive)
	seedNode(t, c, "follower-1", types.NodeRoleFollower, types.NodeStatusAlive)

	n, err := c.LoadBalancer.Select(types.NodeRoleLeader, StrategyRoundRobin)
	require.NoError(t, err)
	assert.Equal(t, "leader-1", n.ID)
}
