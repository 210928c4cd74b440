package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/datapunk/lake/pkg/storage"
	"github.com/datapunk/lake/pkg/types"
	"github.com/hashicorp/raft"
)

// Command is one state-change operation recorded in the Raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opCreateNode      = "create_node"
	opUpdateNode      = "update_node"
	opDeleteNode      = "delete_node"
	opAssignPartition = "assign_partition"
	opRevokePartition = "revoke_partition"
)

// stateMachine implements raft.FSM over the cluster-state mutation
// vocabulary: node add/remove/update and partition assign/revoke.
type stateMachine struct {
	mu    sync.RWMutex
	store storage.Store
}

func newStateMachine(store storage.Store) *stateMachine {
	return &stateMachine{store: store}
}

// Apply is invoked by Raft once a log entry is committed.
func (f *stateMachine) Apply(l *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opCreateNode:
		var node types.Node
		if err := json.Unmarshal(cmd.Data, &node); err != nil {
			return err
		}
		return f.store.CreateNode(&node)

	case opUpdateNode:
		var node types.Node
		if err := json.Unmarshal(cmd.Data, &node); err != nil {
			return err
		}
		return f.store.UpdateNode(&node)

	case opDeleteNode:
		var nodeID string
		if err := json.Unmarshal(cmd.Data, &nodeID); err != nil {
			return err
		}
		return f.store.DeleteNode(nodeID)

	case opAssignPartition:
		var rs types.ReplicationState
		if err := json.Unmarshal(cmd.Data, &rs); err != nil {
			return err
		}
		return f.store.SaveReplicationState(&rs)

	case opRevokePartition:
		var partitionKey string
		if err := json.Unmarshal(cmd.Data, &partitionKey); err != nil {
			return err
		}
		return f.store.DeletePartition(partitionKey)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot captures the full cluster state for Raft log compaction.
func (f *stateMachine) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	nodes, err := f.store.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	partitions, err := f.store.ListPartitions()
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	states, err := f.store.ListReplicationStates()
	if err != nil {
		return nil, fmt.Errorf("list replication states: %w", err)
	}

	return &clusterSnapshot{
		Nodes:             nodes,
		Partitions:        partitions,
		ReplicationStates: states,
	}, nil
}

// Restore replays a snapshot into the FSM's store, called on node restart or
// when a new node joins and must catch up via InstallSnapshot.
func (f *stateMachine) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap clusterSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, node := range snap.Nodes {
		if err := f.store.CreateNode(node); err != nil {
			return fmt.Errorf("restore node: %w", err)
		}
	}
	for _, p := range snap.Partitions {
		if err := f.store.CreatePartition(p); err != nil {
			return fmt.Errorf("restore partition: %w", err)
		}
	}
	for _, rs := range snap.ReplicationStates {
		if err := f.store.SaveReplicationState(rs); err != nil {
			return fmt.Errorf("restore replication state: %w", err)
		}
	}
	return nil
}

// clusterSnapshot is the JSON-serializable point-in-time state persisted by
// raft.FSMSnapshot.Persist.
type clusterSnapshot struct {
	Nodes             []*types.Node
	Partitions        []*types.Partition
	ReplicationStates []*types.ReplicationState
}

func (s *clusterSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *clusterSnapshot) Release() {}
