package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lake/pkg/types"
)

func TestDefaultReconcilerConfigMatchesClusterDefaults(t *testing.T) {
	cfg := DefaultReconcilerConfig()
	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, 6*time.Second, cfg.SuspectAfter)
	assert.Equal(t, 30*time.Second, cfg.DeadAfter)
	assert.Equal(t, 3, cfg.ReplicationFactor)
}

func TestNewReconcilerFallsBackToDefaultsOnZeroInterval(t *testing.T) {
	c := newBootstrappedCluster(t)
	r := NewReconciler(c, ReconcilerConfig{})
	assert.Equal(t, DefaultReconcilerConfig().ReplicationFactor, r.cfg.ReplicationFactor)
}

func TestReconcileMarksSuspectNodeAfterSilence(t *testing.T) {
	c := newBootstrappedCluster(t)
	require.NoError(t, c.RegisterNode(&types.Node{ID: "node-2", Status: types.NodeStatusAlive, LastHeartbeat: time.Now().Add(-10 * time.Second)}))

	r := NewReconciler(c, ReconcilerConfig{Interval: time.Hour, SuspectAfter: 5 * time.Second, DeadAfter: time.Minute, ReplicationFactor: 3})
	r.Reconcile()

	got, err := c.GetNode("node-2")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusSuspect, got.Status)
}

func TestReconcileMarksDeadNodeAfterLongerSilence(t *testing.T) {
	c := newBootstrappedCluster(t)
	require.NoError(t, c.RegisterNode(&types.Node{ID: "node-2", Status: types.NodeStatusSuspect, LastHeartbeat: time.Now().Add(-time.Minute)}))

	r := NewReconciler(c, ReconcilerConfig{Interval: time.Hour, SuspectAfter: 5 * time.Second, DeadAfter: 30 * time.Second, ReplicationFactor: 3})
	r.Reconcile()

	got, err := c.GetNode("node-2")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusDead, got.Status)
}

func TestReconcileLeavesFreshNodesAlive(t *testing.T) {
	c := newBootstrappedCluster(t)
	require.NoError(t, c.RegisterNode(&types.Node{ID: "node-2", Status: types.NodeStatusAlive, LastHeartbeat: time.Now()}))

	r := NewReconciler(c, ReconcilerConfig{Interval: time.Hour, SuspectAfter: 5 * time.Second, DeadAfter: 30 * time.Second, ReplicationFactor: 3})
	r.Reconcile()

	got, err := c.GetNode("node-2")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusAlive, got.Status)
}

func TestReconcilePartitionsReplicatesUnderReplicatedPartition(t *testing.T) {
	c := newBootstrappedCluster(t)
	require.NoError(t, c.RegisterNode(&types.Node{ID: "node-1", Status: types.NodeStatusAlive, LastHeartbeat: time.Now()}))
	require.NoError(t, c.RegisterNode(&types.Node{ID: "node-2", Status: types.NodeStatusAlive, LastHeartbeat: time.Now()}))
	require.NoError(t, c.AssignPartition(&types.ReplicationState{PartitionKey: "p-1", PrimaryNode: "node-1"}))

	r := NewReconciler(c, ReconcilerConfig{Interval: time.Hour, SuspectAfter: time.Hour, DeadAfter: time.Hour, ReplicationFactor: 2})
	r.Reconcile()

	states, err := c.ListReplicationStates()
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Contains(t, states[0].ReplicaNodes, "node-2")
}

func TestReconcilePartitionsLeavesFullyReplicatedPartitionAlone(t *testing.T) {
	c := newBootstrappedCluster(t)
	require.NoError(t, c.RegisterNode(&types.Node{ID: "node-1", Status: types.NodeStatusAlive, LastHeartbeat: time.Now()}))
	require.NoError(t, c.AssignPartition(&types.ReplicationState{PartitionKey: "p-1", PrimaryNode: "node-1"}))

	r := NewReconciler(c, ReconcilerConfig{Interval: time.Hour, SuspectAfter: time.Hour, DeadAfter: time.Hour, ReplicationFactor: 1})
	r.Reconcile()

	states, err := c.ListReplicationStates()
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Empty(t, states[0].ReplicaNodes)
}

func TestLiveReplicasFiltersToAliveNodes(t *testing.T) {
	alive := map[string]*types.Node{"node-1": {ID: "node-1"}}
	rs := &types.ReplicationState{PrimaryNode: "node-1", ReplicaNodes: []string{"node-2"}}
	assert.Equal(t, []string{"node-1"}, liveReplicas(rs, alive))
}

func TestStartAndStopReconcilerLoop(t *testing.T) {
	c := newBootstrappedCluster(t)
	r := NewReconciler(c, ReconcilerConfig{Interval: 5 * time.Millisecond, SuspectAfter: time.Hour, DeadAfter: time.Hour, ReplicationFactor: 3})
	r.Start()
	time.Sleep(20 * time.Millisecond)
	r.Stop()
}
