// Command lake is Datapunk Lake's single binary: it runs the query API
// server and gives operators cluster/partition/backup/metrics subcommands
// against a running or local node.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datapunk/lake/pkg/config"
	"github.com/datapunk/lake/pkg/lakeerr"
	"github.com/datapunk/lake/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfg config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "lake",
	Short: "Datapunk Lake - a personal-data lake query engine",
	Long: `Datapunk Lake partitions, federates and serves queries over a
personal data lake: geospatial/time partitioning, Raft-replicated cluster
metadata, a cost-based query optimizer and a federated executor behind one
HTTP API.`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"lake version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (overridden by DP_* env vars)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format; overrides config")

	cobra.OnInitialize(initConfigAndLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(partitionCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(metricsCmd)
}

func initConfigAndLogging() {
	path, _ := rootCmd.PersistentFlags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfigInput)
	}
	cfg = loaded

	if level, _ := rootCmd.PersistentFlags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json"); jsonOut {
		cfg.Log.JSON = true
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
}

// Exit codes, per the external interface contract: 0 success, 1 generic
// runtime error, 2 invalid command usage, 64 (EX_USAGE) config/input
// validation error, 130 interrupted by SIGINT.
const (
	exitOK          = 0
	exitError       = 1
	exitUsage       = 2
	exitConfigInput = 64
	exitInterrupted = 130
)

var errInterrupted = errors.New("interrupted")

func exitCodeFor(err error) int {
	if errors.Is(err, errInterrupted) {
		return exitInterrupted
	}
	var lerr *lakeerr.Error
	if errors.As(err, &lerr) && lerr.Kind == lakeerr.KindInput {
		return exitConfigInput
	}
	return exitError
}
