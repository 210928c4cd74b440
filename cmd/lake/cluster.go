package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datapunk/lake/pkg/cluster"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage cluster membership",
}

var clusterAddNodeCmd = &cobra.Command{
	Use:   "add-node <node-id> <raft-addr>",
	Short: "Add a new voting member to the Raft cluster",
	Long: `add-node must be run against (or forwarded to) the current Raft
leader; it adds node-id at raft-addr as a new voting member.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, addr := args[0], args[1]

		cl, err := openClusterForAdmin()
		if err != nil {
			return err
		}
		defer cl.Shutdown()

		if err := cl.AddVoter(nodeID, addr); err != nil {
			return fmt.Errorf("add voter: %w", err)
		}
		fmt.Printf("node %s (%s) added as a voting member\n", nodeID, addr)
		return nil
	},
}

var clusterRemoveNodeCmd = &cobra.Command{
	Use:   "remove-node <node-id>",
	Short: "Remove a member from the Raft cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID := args[0]

		cl, err := openClusterForAdmin()
		if err != nil {
			return err
		}
		defer cl.Shutdown()

		if err := cl.RemoveServer(nodeID); err != nil {
			return fmt.Errorf("remove server: %w", err)
		}
		if err := cl.DeregisterNode(nodeID); err != nil {
			return fmt.Errorf("deregister node: %w", err)
		}
		fmt.Printf("node %s removed from the cluster\n", nodeID)
		return nil
	},
}

func init() {
	clusterCmd.AddCommand(clusterAddNodeCmd)
	clusterCmd.AddCommand(clusterRemoveNodeCmd)
}

// openClusterForAdmin attaches to this node's local Raft/store state for an
// administrative one-shot command. It starts Raft via JoinExisting and never
// bootstraps. It opens the same bbolt files as `lake serve`, so it blocks or
// fails while serve holds the same data dir.
func openClusterForAdmin() (*cluster.Cluster, error) {
	cl, err := cluster.New(cluster.Config{
		NodeID:             cfg.NodeID,
		BindAddr:           cfg.BindAddr,
		DataDir:            cfg.DataDir,
		HeartbeatInterval:  cfg.Cluster.HeartbeatInterval,
		UnhealthyThreshold: cfg.Cluster.UnhealthyThreshold,
		RecoveryThreshold:  cfg.Cluster.RecoveryThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("attach to cluster store: %w", err)
	}
	if err := cl.JoinExisting(); err != nil {
		return nil, fmt.Errorf("start raft: %w", err)
	}
	return cl, nil
}
