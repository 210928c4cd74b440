package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/datapunk/lake/pkg/cluster/rpc"
	"github.com/datapunk/lake/pkg/types"
)

// HandleJoin implements rpc.Handler. It validates the join token, then (if
// this node is the leader) adds the requester as a new Raft voter and
// registers it in the node registry.
func (c *Cluster) HandleJoin(ctx context.Context, req *rpc.JoinRequest) (*rpc.JoinResponse, error) {
	if err := c.tokenManager.Validate(req.Token); err != nil {
		return nil, fmt.Errorf("invalid join token: %w", err)
	}
	if !c.IsLeader() {
		return nil, fmt.Errorf("not the leader, current leader: %s", c.LeaderAddr())
	}

	if err := c.AddVoter(req.NodeID, req.BindAddr); err != nil {
		return nil, fmt.Errorf("add voter: %w", err)
	}

	node := &types.Node{
		ID:            req.NodeID,
		Address:       req.BindAddr,
		Role:          types.NodeRoleFollower,
		Status:        types.NodeStatusAlive,
		LastHeartbeat: time.Now(),
		CreatedAt:     time.Now(),
	}
	if err := c.RegisterNode(node); err != nil {
		return nil, fmt.Errorf("register node: %w", err)
	}

	c.tokenManager.Revoke(req.Token)

	servers, _ := c.GetClusterServers()
	return &rpc.JoinResponse{LeaderID: c.nodeID, Peers: len(servers)}, nil
}

// HandleHeartbeat implements rpc.Handler. It records the sender's resource
// metrics against the HealthMonitor and refreshes its LastHeartbeat.
func (c *Cluster) HandleHeartbeat(ctx context.Context, req *rpc.HeartbeatRequest) (*rpc.HeartbeatResponse, error) {
	metrics := types.ResourceMetrics{
		CPU:       req.CPU,
		Memory:    req.Memory,
		Disk:      req.Disk,
		ErrorRate: req.ErrorRate,
		LatencyMs: req.LatencyMs,
	}
	score, _ := c.Health.Observe(req.NodeID, metrics)

	node, err := c.GetNode(req.NodeID)
	if err == nil {
		node.Metrics = metrics
		node.HealthScore = score
		node.LastHeartbeat = time.Now()
		node.Status = types.NodeStatusAlive
		_ = c.UpdateNode(node)
	}

	return &rpc.HeartbeatResponse{Accepted: true, HealthScore: score}, nil
}

// HandleReplicate implements rpc.Handler. Actual record storage is the
// concern of the partition's columnar store; this stub acknowledges
// receipt so the primary's write-quorum accounting can proceed. A full
// implementation would hand req.Records to the local partition writer.
func (c *Cluster) HandleReplicate(ctx context.Context, req *rpc.ReplicateRequest) (*rpc.ReplicateResponse, error) {
	return &rpc.ReplicateResponse{Accepted: true}, nil
}
