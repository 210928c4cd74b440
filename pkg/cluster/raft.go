// Package cluster implements the distributed partition layer (C2): Raft
// consensus over cluster-state mutations, node health monitoring, a
// health-aware load balancer, per-dependency circuit breakers and partition
// backup/restore.
package cluster

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/datapunk/lake/pkg/events"
	"github.com/datapunk/lake/pkg/log"
	"github.com/datapunk/lake/pkg/monitor"
	"github.com/datapunk/lake/pkg/security"
	"github.com/datapunk/lake/pkg/storage"
	"github.com/datapunk/lake/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Cluster owns the Raft-replicated ClusterState: node registry, partition
// placement and replication state. All mutations flow through Apply so they
// are linearized by the Raft log before any component observes them.
type Cluster struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft           *raft.Raft
	fsm            *stateMachine
	store          storage.Store
	tokenManager   *TokenManager
	secretsManager *security.SecretsManager
	eventBroker    *events.Broker

	Health          *HealthMonitor
	LoadBalancer    *LoadBalancer
	CircuitBreakers *CircuitBreakerRegistry
	Backups         *BackupManager
	reconciler      *Reconciler
}

// Config configures a new Cluster node.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	HeartbeatInterval  time.Duration
	UnhealthyThreshold float64
	RecoveryThreshold  float64
}

// New constructs a Cluster node backed by a fresh or existing BoltDB store.
// Raft itself is not started until Bootstrap or JoinExisting is called.
func New(cfg Config) (*Cluster, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	fsm := newStateMachine(store)

	clusterKey := security.DeriveKeyFromClusterID(cfg.NodeID)
	secretsManager, err := security.NewSecretsManager(clusterKey)
	if err != nil {
		return nil, fmt.Errorf("create secrets manager: %w", err)
	}
	if err := security.SetClusterEncryptionKey(clusterKey); err != nil {
		return nil, fmt.Errorf("set cluster encryption key: %w", err)
	}

	eventBroker := events.NewBroker()
	eventBroker.Start()

	if cfg.UnhealthyThreshold == 0 {
		cfg.UnhealthyThreshold = 0.5
	}
	if cfg.RecoveryThreshold == 0 {
		cfg.RecoveryThreshold = 0.8
	}

	c := &Cluster{
		nodeID:         cfg.NodeID,
		bindAddr:       cfg.BindAddr,
		dataDir:        cfg.DataDir,
		fsm:            fsm,
		store:          store,
		secretsManager: secretsManager,
		tokenManager:   NewTokenManager(),
		eventBroker:    eventBroker,
	}
	c.Health = NewHealthMonitor(cfg.UnhealthyThreshold, cfg.RecoveryThreshold)
	c.LoadBalancer = NewLoadBalancer(c)
	c.CircuitBreakers = NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig())

	backups, err := NewBackupManager(store, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create backup manager: %w", err)
	}
	c.Backups = backups
	c.reconciler = NewReconciler(c, DefaultReconcilerConfig())

	return c, nil
}

// StartBackgroundJobs starts the reconciliation loop. Only meaningful once
// Raft is running (via Bootstrap or JoinExisting), since reconciliation is a
// leader-only responsibility.
func (c *Cluster) StartBackgroundJobs() {
	c.reconciler.Start()
}

// raftConfig builds a raft.Config tuned for sub-10s failover on LAN-class
// links between lake nodes, rather than hashicorp/raft's WAN-conservative
// defaults.
func raftConfig(nodeID string) *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(nodeID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	return config
}

func (c *Cluster) buildRaft() (*raft.Raft, *raft.NetworkTransport, error) {
	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-log.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("create stable store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig(c.nodeID), c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, nil, fmt.Errorf("create raft: %w", err)
	}
	return r, transport, nil
}

// Bootstrap initializes a brand-new single-node cluster.
func (c *Cluster) Bootstrap() error {
	r, transport, err := c.buildRaft()
	if err != nil {
		return err
	}
	c.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(c.nodeID), Address: transport.LocalAddr()},
		},
	}
	future := c.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("bootstrap cluster: %w", err)
	}

	log.WithComponent("cluster").Info().Str("node_id", c.nodeID).Msg("bootstrapped single-node cluster")
	return nil
}

// JoinExisting starts Raft for a node that will be added to an already
// bootstrapped cluster via the leader's AddVoter RPC (see pkg/cluster/rpc).
func (c *Cluster) JoinExisting() error {
	r, _, err := c.buildRaft()
	if err != nil {
		return err
	}
	c.raft = r
	return nil
}

// AddVoter adds nodeID/address as a new voting member. Must be called on the
// current leader.
func (c *Cluster) AddVoter(nodeID, address string) error {
	if c.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !c.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", c.LeaderAddr())
	}
	future := c.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("add voter: %w", err)
	}
	return nil
}

// RemoveServer removes a node from the Raft configuration.
func (c *Cluster) RemoveServer(nodeID string) error {
	if c.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !c.IsLeader() {
		return fmt.Errorf("not the leader")
	}
	future := c.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("remove server: %w", err)
	}
	return nil
}

// GetClusterServers lists the current Raft configuration.
func (c *Cluster) GetClusterServers() ([]raft.Server, error) {
	if c.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}
	future := c.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader reports whether this node currently holds Raft leadership.
func (c *Cluster) IsLeader() bool {
	return c.raft != nil && c.raft.State() == raft.Leader
}

// LeaderAddr returns the current leader's address, or "" if unknown.
func (c *Cluster) LeaderAddr() string {
	if c.raft == nil {
		return ""
	}
	return string(c.raft.Leader())
}

// Stats reports Raft term/index/peer counters for the metrics/health surface.
func (c *Cluster) Stats() map[string]any {
	if c.raft == nil {
		return nil
	}
	stats := map[string]any{
		"state":          c.raft.State().String(),
		"last_log_index": c.raft.LastIndex(),
		"applied_index":  c.raft.AppliedIndex(),
		"leader":         string(c.raft.Leader()),
	}
	if cf := c.raft.GetConfiguration(); cf.Error() == nil {
		stats["peers"] = uint64(len(cf.Configuration().Servers))
	}
	return stats
}

// Apply submits a Command to the Raft log and blocks until it is committed
// and applied to the local FSM.
func (c *Cluster) Apply(cmd Command) error {
	timer := monitor.NewTimer()
	defer timer.ObserveDuration(monitor.RaftCommitDuration)

	if c.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	future := c.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply command: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// EventBroker returns the cluster's audit/notification event broker.
func (c *Cluster) EventBroker() *events.Broker { return c.eventBroker }

// Reconciler returns the cluster's Reconciler, for callers that need to
// trigger an on-demand reconciliation pass (e.g. `lake partition rebalance`)
// rather than waiting on its ticker.
func (c *Cluster) Reconciler() *Reconciler { return c.reconciler }

// Store exposes the underlying metadata store for read paths (ListNodes,
// ListPartitions etc. bypass Raft since they are local reads, not mutations).
func (c *Cluster) Store() storage.Store { return c.store }

// Tokens exposes the join-token manager.
func (c *Cluster) Tokens() *TokenManager { return c.tokenManager }

// --- Mutating operations — each builds a Command and applies it via Raft ---

func (c *Cluster) apply(op string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", op, err)
	}
	return c.Apply(Command{Op: op, Data: data})
}

// RegisterNode adds a node to the registry.
func (c *Cluster) RegisterNode(node *types.Node) error {
	return c.apply(opCreateNode, node)
}

// UpdateNode persists a node's current status/metrics/role.
func (c *Cluster) UpdateNode(node *types.Node) error {
	return c.apply(opUpdateNode, node)
}

// DeregisterNode evicts a node from the registry (typically after it has
// been dead past the suspect deadline, its partitions re-replicated).
func (c *Cluster) DeregisterNode(id string) error {
	return c.apply(opDeleteNode, id)
}

// AssignPartition records that a partition now has the given primary and
// replica set.
func (c *Cluster) AssignPartition(rs *types.ReplicationState) error {
	return c.apply(opAssignPartition, rs)
}

// RevokePartition deletes the partition's manifest (the partitions bucket
// entry keyed by partitionKey); its replication state entry is left as is.
func (c *Cluster) RevokePartition(partitionKey string) error {
	return c.apply(opRevokePartition, partitionKey)
}

// ListNodes reads the node registry directly from the local store. Reads are
// not routed through Raft — they may be up to replica_staleness_bound stale
// unless the caller routes to the leader.
func (c *Cluster) ListNodes() ([]*types.Node, error) {
	return c.store.ListNodes()
}

// GetNode reads one node from the local store.
func (c *Cluster) GetNode(id string) (*types.Node, error) {
	return c.store.GetNode(id)
}

// ListReplicationStates reads all partition placements from the local store.
func (c *Cluster) ListReplicationStates() ([]*types.ReplicationState, error) {
	return c.store.ListReplicationStates()
}

// Shutdown releases Raft and storage resources.
func (c *Cluster) Shutdown() error {
	if c.reconciler != nil {
		c.reconciler.Stop()
	}
	if c.eventBroker != nil {
		c.eventBroker.Stop()
	}
	if c.raft != nil {
		if err := c.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("shutdown raft: %w", err)
		}
	}
	return c.store.Close()
}
