package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datapunk/lake/pkg/cache"
	"github.com/datapunk/lake/pkg/events"
	"github.com/datapunk/lake/pkg/federation"
	"github.com/datapunk/lake/pkg/lakeerr"
	"github.com/datapunk/lake/pkg/log"
	"github.com/datapunk/lake/pkg/monitor"
	"github.com/datapunk/lake/pkg/query/lang"
	"github.com/datapunk/lake/pkg/query/lang/nosql"
	"github.com/datapunk/lake/pkg/query/lang/sql"
	"github.com/datapunk/lake/pkg/query/optimizer"
	"github.com/datapunk/lake/pkg/types"
)

// Server is the C8 HTTP surface: POST /v1/query and GET /v1/health, wired
// through the auth/rate-limit/audit middleware chain (the net/http
// translation of the teacher's gRPC interceptor idiom) in front of the
// query engine (C4 parse -> C5 optimize -> C6 federate).
type Server struct {
	cfg       ServerConfig
	keys      *KeyStore
	policy    *Policy
	limiter   *cache.RateLimiter
	broker    *events.Broker
	optimizer *optimizer.CostOptimizer
	executor  *federation.Executor
	resultTTL time.Duration

	sources      func() []types.DataSource
	healthChecks map[string]HealthChecker

	mux *http.ServeMux
}

// ServerConfig bundles the dependencies Server needs. Sources supplies the
// current set of federated DataSources (discovered via C1/C2 in a live
// deployment; a static slice is fine for tests and single-node setups).
type ServerConfig struct {
	Keys      *KeyStore
	Policy    *Policy
	Limiter   *cache.RateLimiter
	Broker    *events.Broker
	Optimizer *optimizer.CostOptimizer
	Executor  *federation.Executor
	ResultTTL time.Duration
	Sources   func() []types.DataSource
}

// NewServer builds a Server and registers its routes.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Sources == nil {
		cfg.Sources = func() []types.DataSource { return nil }
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 60 * time.Second
	}
	s := &Server{
		cfg:          cfg,
		keys:         cfg.Keys,
		policy:       cfg.Policy,
		limiter:      cfg.Limiter,
		broker:       cfg.Broker,
		optimizer:    cfg.Optimizer,
		executor:     cfg.Executor,
		resultTTL:    cfg.ResultTTL,
		sources:      cfg.Sources,
		healthChecks: make(map[string]HealthChecker),
	}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

// RegisterHealthCheck adds a named subsystem check reported by GET /v1/health.
func (s *Server) RegisterHealthCheck(name string, check HealthChecker) {
	s.healthChecks[name] = check
}

// Handler returns the Server's http.Handler for embedding or for ListenAndServe.
func (s *Server) Handler() http.Handler { return s.mux }

// Query runs req through the same parse/optimize/execute pipeline as POST
// /v1/query, bypassing HTTP and the auth/rate-limit/audit middleware chain.
// This is the wiring point for in-process callers such as a
// monitor.MaterializedView's RefreshFunc (see cmd/lake's serve command).
func (s *Server) Query(ctx context.Context, req QueryRequest) QueryResponse {
	return s.runQuery(ctx, req, log.WithComponent("api"))
}

// Start runs the HTTP server on addr until it errors or ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) routes() {
	queryHandler := chain(
		http.HandlerFunc(s.handleQuery),
		recoverMiddleware,
		withRequestID,
		withMetrics,
		authMiddleware(s.keys, s.policy, ResourceQuery),
		rateLimitMiddleware(s.limiter, ResourceQuery),
		auditMiddleware(s.broker),
	)
	s.mux.Handle("/v1/query", queryHandler)

	healthHandler := chain(
		http.HandlerFunc(s.handleHealth),
		recoverMiddleware,
		withRequestID,
		withMetrics,
	)
	s.mux.Handle("/v1/health", healthHandler)
	s.mux.Handle("/metrics", monitor.Handler())
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		writeError(w, requestID, lakeerr.New(lakeerr.KindInput, "method_not_allowed", "only POST is supported"))
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, requestID, lakeerr.Wrap(err, lakeerr.KindInput, "invalid_body", "request body is not valid JSON"))
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestID
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	logger := log.WithComponent("api").With().Str("request_id", req.RequestID).Str("tenant", req.Tenant).Logger()

	start := time.Now()
	resp := s.runQuery(r.Context(), req, logger)
	resp.Metrics.TotalMS = time.Since(start).Milliseconds()
	if resp.Status == "failed" {
		logger.Warn().Strs("errors", errorCodes(resp.Errors)).Msg("query request failed")
	}

	status := http.StatusOK
	if resp.Status == "failed" {
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) runQuery(ctx context.Context, req QueryRequest, logger zerolog.Logger) QueryResponse {
	resp := QueryResponse{RequestID: req.RequestID}

	if req.Options.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Options.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	parseStart := time.Now()
	plan, perr := parseQuery(req.Dialect, req.Query)
	resp.Metrics.ParseMS = time.Since(parseStart).Milliseconds()
	if perr != nil {
		resp.Status = "failed"
		resp.Errors = []ErrorDetail{{
			Kind:    string(lakeerr.KindInput),
			Code:    string(perr.Kind),
			Message: perr.Message,
			Field:   perr.Token,
		}}
		monitor.QueryDuration.WithLabelValues(req.Dialect, "failed").Observe(0)
		return resp
	}

	optimizeStart := time.Now()
	plan = s.optimizer.Optimize(plan)
	resp.Metrics.OptimizeMS = time.Since(optimizeStart).Milliseconds()

	execStart := time.Now()
	var result *federation.Result
	var err error
	if req.Options.Cache {
		key := cache.Key{PlanID: plan.Canonical, TenantID: req.Tenant, ParamsHash: plan.Canonical}
		result, err = s.executor.ExecuteCached(ctx, key, cache.ConsistencyEventual, s.resultTTL, plan, s.sources())
	} else {
		result, err = s.executor.Execute(ctx, plan, s.sources())
	}
	resp.Metrics.ExecuteMS = time.Since(execStart).Milliseconds()

	if err != nil {
		resp.Status = "failed"
		resp.Errors = append(resp.Errors, toErrorDetail(err))
		logger.Error().Err(err).Msg("federation execute failed")
		monitor.QueryDuration.WithLabelValues(req.Dialect, "failed").Observe(float64(resp.Metrics.ExecuteMS) / 1000)
		return resp
	}

	resp.Status = string(result.Status)
	resp.Metrics.RowCount = len(result.Rows)
	resp.Data = make([]map[string]any, len(result.Rows))
	for i, row := range result.Rows {
		resp.Data[i] = row
	}
	for _, f := range result.Failed {
		if f.Err != nil {
			resp.Errors = append(resp.Errors, ErrorDetail{
				Kind:    string(lakeerr.KindTransient),
				Code:    "subplan_failed",
				Message: f.Err.Error(),
				Field:   f.SubPlan.Source.Name,
			})
		}
	}
	for _, m := range result.Missing {
		resp.Errors = append(resp.Errors, ErrorDetail{
			Kind:    string(lakeerr.KindNotFound),
			Code:    "source_missing",
			Message: "query referenced a source with no registered DataSource",
			Field:   m,
		})
	}

	if resp.Status == "failed" && !req.Options.PartialResults {
		resp.Data = nil
	}

	monitor.QueryDuration.WithLabelValues(req.Dialect, resp.Status).Observe(float64(resp.Metrics.ExecuteMS) / 1000)
	return resp
}

func errorCodes(errs []ErrorDetail) []string {
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	return codes
}

func parseQuery(dialect, query string) (*types.QueryPlan, *lang.ParseError) {
	switch dialect {
	case "nosql":
		return nosql.Parse(query)
	case "sql", "":
		return sql.Parse(query)
	default:
		return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Message: "unknown dialect: " + dialect}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.healthChecks))
	status := HealthHealthy
	failures := 0

	for name, check := range s.healthChecks {
		if err := check(); err != nil {
			checks[name] = err.Error()
			failures++
		} else {
			checks[name] = "ok"
		}
	}

	switch {
	case failures == 0:
		status = HealthHealthy
	case failures < len(s.healthChecks):
		status = HealthDegraded
	default:
		status = HealthUnhealthy
	}

	resp := HealthResponse{Status: status, Checks: checks, Timestamp: time.Now()}

	statusCode := http.StatusOK
	if status == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
