package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var partitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Partition placement operations",
}

var partitionRebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Run one reconciliation pass immediately",
	Long: `rebalance triggers the same reconciliation pass the background
reconciler runs on its ticker: it marks suspect/dead nodes and re-replicates
any partition whose live replica count has fallen below the replication
factor. It only has an effect when run on the current Raft leader.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, err := openClusterForAdmin()
		if err != nil {
			return err
		}
		defer cl.Shutdown()

		if !cl.IsLeader() {
			return fmt.Errorf("this node is not the raft leader (leader: %s); rebalance must run there", cl.LeaderAddr())
		}

		cl.Reconciler().Reconcile()
		fmt.Println("reconciliation pass complete")
		return nil
	},
}

func init() {
	partitionCmd.AddCommand(partitionRebalanceCmd)
}
