package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/datapunk/lake/pkg/storage"
	"github.com/datapunk/lake/pkg/types"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Partition manifest backup and restore",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create <partition-key>",
	Short: "Snapshot a partition's manifest and replication state to disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		cl, err := openClusterForAdmin()
		if err != nil {
			return err
		}
		defer cl.Shutdown()

		store := cl.Store()
		partitions, err := store.ListPartitions()
		if err != nil {
			return fmt.Errorf("list partitions: %w", err)
		}
		var partition *types.Partition
		for _, p := range partitions {
			if p.Key.String() == key {
				partition = p
				break
			}
		}
		if partition == nil {
			return fmt.Errorf("no partition with key %q", key)
		}

		replication, err := store.GetReplicationState(key)
		if err != nil {
			return fmt.Errorf("get replication state for %q: %w", key, err)
		}

		rec, err := cl.Backups.Create(partition, replication)
		if err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
		fmt.Printf("backup created: partition=%s version=%d path=%s checksum=%s\n",
			rec.PartitionKey, rec.Version, rec.Path, rec.Checksum)
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <partition-key> <version>",
	Short: "Restore a partition manifest and replication state from a backup",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		version, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}

		cl, err := openClusterForAdmin()
		if err != nil {
			return err
		}
		defer cl.Shutdown()

		records, err := cl.Backups.List(key)
		if err != nil {
			return fmt.Errorf("list backups for %q: %w", key, err)
		}
		var target *storage.BackupRecord
		for _, r := range records {
			if r.Version == version {
				target = r
				break
			}
		}
		if target == nil {
			return fmt.Errorf("no backup of %q at version %d", key, version)
		}

		partition, replication, err := cl.Backups.Restore(target)
		if err != nil {
			return fmt.Errorf("restore backup: %w", err)
		}

		store := cl.Store()
		if err := store.UpdatePartition(partition); err != nil {
			return fmt.Errorf("write restored partition manifest: %w", err)
		}
		if err := cl.AssignPartition(replication); err != nil {
			return fmt.Errorf("apply restored replication state: %w", err)
		}

		fmt.Printf("partition %s restored to version %d\n", key, version)
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupRestoreCmd)
}
