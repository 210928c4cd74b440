package cluster

import (
	"sync"
	"time"

	"github.com/datapunk/lake/pkg/log"
	"github.com/datapunk/lake/pkg/monitor"
	"github.com/datapunk/lake/pkg/types"
	"github.com/rs/zerolog"
)

// ReconcilerConfig tunes the suspect/dead timeouts and replication factor
// the Reconciler enforces.
type ReconcilerConfig struct {
	Interval          time.Duration
	SuspectAfter      time.Duration
	DeadAfter         time.Duration
	ReplicationFactor int
}

// DefaultReconcilerConfig matches the cluster defaults: heartbeat every 2s,
// suspect after 3 missed heartbeats (6s), dead after 30s, replication
// factor 3.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:          10 * time.Second,
		SuspectAfter:      6 * time.Second,
		DeadAfter:         30 * time.Second,
		ReplicationFactor: 3,
	}
}

// Reconciler runs only on the Raft leader. It watches node heartbeats for
// suspect/dead transitions and ensures every partition still has
// ReplicationFactor live replicas, triggering re-replication onto healthy
// nodes when it does not.
type Reconciler struct {
	cluster *Cluster
	cfg     ReconcilerConfig
	logger  zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewReconciler creates a Reconciler bound to cluster.
func NewReconciler(cluster *Cluster, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval == 0 {
		cfg = DefaultReconcilerConfig()
	}
	return &Reconciler{
		cluster: cluster,
		cfg:     cfg,
		logger:  log.WithComponent("reconciler"),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the reconciliation loop in a background goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop terminates the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			if !r.cluster.IsLeader() {
				continue
			}
			r.reconcile()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// Reconcile runs one reconciliation pass synchronously regardless of
// leadership or the ticker schedule, for on-demand triggers such as
// `lake partition rebalance`.
func (r *Reconciler) Reconcile() {
	r.reconcile()
}

func (r *Reconciler) reconcile() {
	timer := monitor.NewTimer()
	defer func() {
		timer.ObserveDuration(monitor.ReconciliationDuration)
		monitor.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.reconcileNodes()
	r.reconcilePartitions()
}

// reconcileNodes marks nodes suspect after SuspectAfter of silence and dead
// after DeadAfter, per the spec's node-status state machine.
func (r *Reconciler) reconcileNodes() {
	nodes, err := r.cluster.ListNodes()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list nodes")
		return
	}

	now := time.Now()
	for _, node := range nodes {
		silence := now.Sub(node.LastHeartbeat)

		switch {
		case silence > r.cfg.DeadAfter && node.Status != types.NodeStatusDead:
			r.logger.Warn().Str("node_id", node.ID).Dur("silence", silence).Msg("node dead")
			node.Status = types.NodeStatusDead
			if err := r.cluster.UpdateNode(node); err != nil {
				r.logger.Error().Err(err).Str("node_id", node.ID).Msg("failed to mark node dead")
				continue
			}
			if r.cluster.Health != nil {
				r.cluster.Health.Forget(node.ID)
			}

		case silence > r.cfg.SuspectAfter && node.Status == types.NodeStatusAlive:
			r.logger.Warn().Str("node_id", node.ID).Dur("silence", silence).Msg("node suspect")
			node.Status = types.NodeStatusSuspect
			if err := r.cluster.UpdateNode(node); err != nil {
				r.logger.Error().Err(err).Str("node_id", node.ID).Msg("failed to mark node suspect")
			}
		}
	}
}

// reconcilePartitions ensures every partition still has ReplicationFactor
// live replicas; partitions short a replica get a new one assigned from the
// healthiest available node not already hosting that partition.
func (r *Reconciler) reconcilePartitions() {
	states, err := r.cluster.ListReplicationStates()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list replication states")
		return
	}

	nodes, err := r.cluster.ListNodes()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list nodes")
		return
	}
	aliveByID := make(map[string]*types.Node, len(nodes))
	for _, n := range nodes {
		if n.Status == types.NodeStatusAlive {
			aliveByID[n.ID] = n
		}
	}

	for _, rs := range states {
		live := liveReplicas(rs, aliveByID)
		if len(live) >= r.cfg.ReplicationFactor {
			continue
		}

		target := r.pickReplicaTarget(rs, aliveByID, live)
		if target == "" {
			r.logger.Warn().Str("partition_key", rs.PartitionKey).Msg("no healthy candidate for re-replication")
			continue
		}

		rs.ReplicaNodes = append(rs.ReplicaNodes, target)
		if err := r.cluster.AssignPartition(rs); err != nil {
			r.logger.Error().Err(err).Str("partition_key", rs.PartitionKey).Msg("failed to re-replicate partition")
			continue
		}
		r.logger.Info().Str("partition_key", rs.PartitionKey).Str("node_id", target).Msg("partition re-replicated")
	}
}

func liveReplicas(rs *types.ReplicationState, alive map[string]*types.Node) []string {
	var live []string
	if _, ok := alive[rs.PrimaryNode]; ok {
		live = append(live, rs.PrimaryNode)
	}
	for _, r := range rs.ReplicaNodes {
		if _, ok := alive[r]; ok {
			live = append(live, r)
		}
	}
	return live
}

func (r *Reconciler) pickReplicaTarget(rs *types.ReplicationState, alive map[string]*types.Node, live []string) string {
	hosting := make(map[string]bool, len(live))
	for _, id := range live {
		hosting[id] = true
	}

	var best *types.Node
	var bestScore float64 = -1
	for id, n := range alive {
		if hosting[id] {
			continue
		}
		score := 1.0
		if r.cluster.Health != nil {
			score = r.cluster.Health.ScoreOf(id)
		}
		if score > bestScore {
			best, bestScore = n, score
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}
