// Package storage defines the persistence interface for cluster metadata —
// nodes, partition manifests, replication state, backups index and secrets —
// and a BoltDB-backed implementation.
package storage

import (
	"github.com/datapunk/lake/pkg/types"
)

// BackupRecord indexes one partition backup artifact.
type BackupRecord struct {
	PartitionKey string
	Version      uint64
	Path         string
	Checksum     string
	CreatedAt    string
}

// Store is the interface satisfied by the cluster metadata store. The Raft
// FSM's Apply writes nodes, partitions and replication state through it;
// the retention and rollup jobs, the backup manager, the CA and the
// `lake backup` command also write to it directly, outside Raft.
type Store interface {
	// Nodes
	CreateNode(node *types.Node) error
	GetNode(id string) (*types.Node, error)
	ListNodes() ([]*types.Node, error)
	UpdateNode(node *types.Node) error
	DeleteNode(id string) error

	// Partitions
	CreatePartition(p *types.Partition) error
	GetPartition(key string) (*types.Partition, error)
	ListPartitions() ([]*types.Partition, error)
	UpdatePartition(p *types.Partition) error
	DeletePartition(key string) error

	// Replication state
	SaveReplicationState(rs *types.ReplicationState) error
	GetReplicationState(partitionKey string) (*types.ReplicationState, error)
	ListReplicationStates() ([]*types.ReplicationState, error)

	// Secrets (encrypted at rest via pkg/security)
	CreateSecret(name string, encrypted []byte) error
	GetSecret(name string) ([]byte, error)
	DeleteSecret(name string) error

	// Backups index
	RecordBackup(b *BackupRecord) error
	ListBackups(partitionKey string) ([]*BackupRecord, error)

	// Certificate authority state (pkg/security's CA JSON), set once at bootstrap.
	SaveCA(data []byte) error
	GetCA() ([]byte, error)

	Close() error
}
