package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datapunk/lake/pkg/api"
	"github.com/datapunk/lake/pkg/cache"
	"github.com/datapunk/lake/pkg/cluster"
	"github.com/datapunk/lake/pkg/federation"
	"github.com/datapunk/lake/pkg/log"
	"github.com/datapunk/lake/pkg/monitor"
	"github.com/datapunk/lake/pkg/query/optimizer"
	"github.com/datapunk/lake/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the query API server, cluster node and background jobs",
	Long: `serve boots this node's cluster membership (bootstrapping a new
cluster or joining an existing one), starts the partition reconciler and
alert manager, and serves the POST /v1/query and GET /v1/health HTTP API
until interrupted. No materialized view is registered by default.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("bootstrap", false, "Bootstrap a new single-node cluster instead of joining one")
	serveCmd.Flags().String("listen", "", "HTTP API listen address; overrides config api.listen_addr")
}

func runServe(cmd *cobra.Command, args []string) error {
	bootstrap, _ := cmd.Flags().GetBool("bootstrap")
	listen, _ := cmd.Flags().GetString("listen")
	if listen == "" {
		listen = cfg.API.ListenAddr
	}

	logger := log.WithComponent("lake")

	cl, err := cluster.New(cluster.Config{
		NodeID:             cfg.NodeID,
		BindAddr:           cfg.BindAddr,
		DataDir:            cfg.DataDir,
		HeartbeatInterval:  cfg.Cluster.HeartbeatInterval,
		UnhealthyThreshold: cfg.Cluster.UnhealthyThreshold,
		RecoveryThreshold:  cfg.Cluster.RecoveryThreshold,
	})
	if err != nil {
		return fmt.Errorf("create cluster node: %w", err)
	}
	defer cl.Shutdown()

	if bootstrap {
		if err := cl.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap cluster: %w", err)
		}
	} else {
		if err := cl.JoinExisting(); err != nil {
			return fmt.Errorf("join cluster: %w", err)
		}
	}
	cl.StartBackgroundJobs()
	logger.Info().Str("node_id", cfg.NodeID).Bool("bootstrap", bootstrap).Msg("cluster node started")

	resultCache, err := cache.New(cache.Config{
		Tier1MaxEntries: cfg.Cache.Tier1MaxEntries,
		RedisAddr:       cfg.Cache.RedisAddr,
		NodeID:          cfg.NodeID,
		JitterFraction:  cfg.Cache.JitterFraction,
	})
	if err != nil {
		return fmt.Errorf("create result cache: %w", err)
	}

	registry := federation.NewRegistry()
	executorCfg := federation.ExecutorConfig{
		CancelTimeout: cfg.Federation.CancelTimeout,
		Dispatch: federation.DispatchConfig{
			MaxConcurrentSubPlans: cfg.Federation.MaxConcurrentSubPlans,
			SubPlanTimeout:        cfg.Federation.SubPlanTimeout,
			RetryAttempts:         cfg.Federation.RetryAttempts,
			RetryBaseDelay:        cfg.Federation.RetryBaseDelay,
			RetryMaxDelay:         cfg.Federation.RetryMaxDelay,
		},
	}
	executor := federation.NewExecutor(executorCfg, registry, cl.CircuitBreakers, resultCache)

	limiter := cache.NewRateLimiter(cache.RateLimitConfig{
		DefaultRPS: cfg.RateLimit.DefaultRPS,
		Burst:      cfg.RateLimit.DefaultBurst,
		Window:     cfg.RateLimit.WindowSize,
		FailOpen:   cfg.RateLimit.FailOpen,
	})

	srv := api.NewServer(api.ServerConfig{
		Keys:      api.NewKeyStore(),
		Policy:    api.NewPolicy(),
		Limiter:   limiter,
		Broker:    cl.EventBroker(),
		Optimizer: optimizer.NewCostOptimizer(nil),
		Executor:  executor,
		ResultTTL: cfg.Cache.QueryResultTTL,
		Sources: func() []types.DataSource {
			nodes, err := cl.ListNodes()
			if err != nil {
				return nil
			}
			sources := make([]types.DataSource, 0, len(nodes))
			for _, n := range nodes {
				sources = append(sources, types.DataSource{Name: n.ID, Endpoint: n.Address})
			}
			return sources
		},
	})
	srv.RegisterHealthCheck("raft", func() error {
		if cl.IsLeader() || cl.LeaderAddr() != "" {
			return nil
		}
		return fmt.Errorf("no raft leader known")
	})

	alerts := monitor.NewAlertManager(monitor.MetricSourceFunc(func(name string) (float64, bool) {
		return 0, false
	}), cl.EventBroker())
	alerts.Start(cfg.Monitor.EvalInterval)
	defer alerts.Stop()

	// Materialized views are deployment-specific (which queries are worth
	// precomputing depends on what the tenant actually asks for), so none
	// are registered by default. A view's RefreshFunc runs through the same
	// pipeline POST /v1/query uses, via srv.Query, e.g.:
	//   views.Register(monitor.NewMaterializedView(name, query, interval,
	//     retention, func(ctx context.Context, q string) (any, error) {
	//       resp := srv.Query(ctx, api.QueryRequest{Tenant: tenant, Dialect: "sql", Query: q})
	//       return resp.Data, nil
	//     }))
	views := monitor.NewViewManager()
	defer views.StopAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("addr", listen).Msg("API server listening")
	// Start races ListenAndServe against ctx.Done() internally and performs
	// a graceful Shutdown on cancellation, so the interrupt path still
	// returns through the same err value rather than a second code path.
	err = srv.Start(ctx, listen)
	if ctx.Err() != nil {
		logger.Info().Msg("shutdown complete")
		return errInterrupted
	}
	if err != nil {
		return fmt.Errorf("API server: %w", err)
	}
	return nil
}
