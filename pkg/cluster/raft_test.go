package cluster

import (
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lake/pkg/types"
)

// newBootstrappedCluster builds a single-node Raft cluster bound to an
// OS-assigned loopback port and waits for it to become leader, for tests
// that exercise mutations routed through Apply.
func newBootstrappedCluster(t *testing.T) *Cluster {
	t.Helper()
	c, err := New(Config{NodeID: "node-1", BindAddr: "127.0.0.1:0", DataDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, c.Bootstrap())
	t.Cleanup(func() { c.Shutdown() })

	require.Eventually(t, c.IsLeader, 5*time.Second, 10*time.Millisecond, "node never became leader")
	return c
}

func TestBootstrapBecomesLeader(t *testing.T) {
	c := newBootstrappedCluster(t)
	assert.True(t, c.IsLeader())
	assert.NotEmpty(t, c.LeaderAddr())
}

func TestRegisterUpdateDeregisterNodeThroughRaft(t *testing.T) {
	c := newBootstrappedCluster(t)

	require.NoError(t, c.RegisterNode(&types.Node{ID: "node-2", Role: types.NodeRoleFollower}))
	got, err := c.GetNode("node-2")
	require.NoError(t, err)
	assert.Equal(t, types.NodeRoleFollower, got.Role)

	require.NoError(t, c.UpdateNode(&types.Node{ID: "node-2", Role: types.NodeRoleLeader}))
	got, err = c.GetNode("node-2")
	require.NoError(t, err)
	assert.Equal(t, types.NodeRoleLeader, got.Role)

	require.NoError(t, c.DeregisterNode("node-2"))
	_, err = c.GetNode("node-2")
	assert.Error(t, err)
}

func TestAssignAndRevokePartitionThroughRaft(t *testing.T) {
	c := newBootstrappedCluster(t)

	rs := &types.ReplicationState{PartitionKey: "p-1", PrimaryNode: "node-1"}
	require.NoError(t, c.AssignPartition(rs))

	states, err := c.ListReplicationStates()
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "node-1", states[0].PrimaryNode)

	require.NoError(t, c.RevokePartition("p-1"))
}

func TestApplyFailsBeforeRaftStarted(t *testing.T) {
	c, err := New(Config{NodeID: "node-1", DataDir: t.TempDir()})
	require.NoError(t, err)
	defer c.store.Close()

	err = c.Apply(Command{Op: opCreateNode, Data: []byte(`{}`)})
	assert.Error(t, err)
}

func TestAddVoterRejectsNonLeader(t *testing.T) {
	c, err := New(Config{NodeID: "node-1", BindAddr: "127.0.0.1:0", DataDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, c.JoinExisting())
	defer c.Shutdown()

	err = c.AddVoter("node-2", "127.0.0.1:1234")
	assert.Error(t, err)
}

func TestGetClusterServersReflectsBootstrapConfiguration(t *testing.T) {
	c := newBootstrappedCluster(t)
	servers, err := c.GetClusterServers()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, raft.ServerID("node-1"), servers[0].ID)
}

func TestStatsReportsLeaderState(t *testing.T) {
	c := newBootstrappedCluster(t)
	stats := c.Stats()
	assert.Equal(t, raft.Leader.String(), stats["state"])
}

func TestStatsNilBeforeRaftStarted(t *testing.T) {
	c, err := New(Config{NodeID: "node-1", DataDir: t.TempDir()})
	require.NoError(t, err)
	defer c.store.Close()
	assert.Nil(t, c.Stats())
}
