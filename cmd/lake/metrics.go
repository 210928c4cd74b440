package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Inspect process metrics",
}

var metricsDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every registered Prometheus metric in text exposition format",
	Long: `dump gathers this process's metric registry (the same one served by
GET /metrics during lake serve) and writes it to stdout, for piping into a
scrape collector or inspecting offline without standing up the HTTP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		families, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			return err
		}

		encoder := expfmt.NewEncoder(os.Stdout, expfmt.FmtText)
		for _, mf := range families {
			if err := encoder.Encode(mf); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	metricsCmd.AddCommand(metricsDumpCmd)
}
