package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/datapunk/lake/pkg/cache"
	"github.com/datapunk/lake/pkg/events"
	"github.com/datapunk/lake/pkg/lakeerr"
	"github.com/datapunk/lake/pkg/log"
	"github.com/datapunk/lake/pkg/monitor"
)

// middleware wraps an http.Handler with one piece of cross-cutting
// behavior, composed into a chain — the net/http translation of the
// teacher's gRPC unary interceptor (pkg/api/interceptor.go), which wraps
// one grpc.UnaryHandler per concern (there it's read-only enforcement;
// here it's request ID assignment, auth, rate limiting, and metrics).
type middleware func(http.Handler) http.Handler

// chain applies middlewares in order so the first one listed is outermost
// (runs first on the way in, last on the way out).
func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyPrincipal ctxKey = "principal"
)

func requestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func principalFrom(ctx context.Context) (Principal, bool) {
	v, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return v, ok
}

// withRequestID assigns a request ID (from the X-Request-ID header if the
// caller supplied one, otherwise a fresh UUID) and stashes it in context.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withMetrics records APIRequestsTotal/APIRequestDuration for every request,
// tagging the status by the response writer's recorded status code.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := monitor.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		monitor.APIRequestsTotal.WithLabelValues(r.Method, http.StatusText(rec.status)).Inc()
		timer.ObserveDurationVec(monitor.APIRequestDuration, r.Method)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// authMiddleware validates the request's tenant and API key, read from the
// X-Tenant-ID and X-API-Key headers, via ks and enforces RBAC/quota via
// policy, writing the error response itself and short-circuiting the chain
// on failure. The body is not read here: the envelope's tenant and api_key
// fields play no part in authentication.
func authMiddleware(ks *KeyStore, policy *Policy, resource Resource) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, apiKey := r.Header.Get("X-Tenant-ID"), r.Header.Get("X-API-Key")
			if tenant == "" || apiKey == "" {
				writeError(w, requestIDFrom(r.Context()), lakeerr.New(lakeerr.KindPolicy, "unauthorized", "missing tenant or api key"))
				return
			}

			principal, err := ks.Validate(tenant, apiKey)
			if err != nil {
				writeError(w, requestIDFrom(r.Context()), err)
				return
			}
			if err := policy.Check(principal, resource); err != nil {
				writeError(w, requestIDFrom(r.Context()), err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rateLimitMiddleware enforces the per-(tenant,resource) token bucket after
// auth has established a Principal.
func rateLimitMiddleware(rl *cache.RateLimiter, resource Resource) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := principalFrom(r.Context())
			if !ok {
				// auth middleware must run first in the chain.
				writeError(w, requestIDFrom(r.Context()), lakeerr.New(lakeerr.KindInternal, "middleware_order", "rate limiter ran before auth"))
				return
			}
			if !rl.Allow(principal.Tenant, string(resource)) {
				writeError(w, requestIDFrom(r.Context()), lakeerr.New(lakeerr.KindPolicy, "rate_limited", "request rate exceeds tenant budget"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// auditMiddleware publishes an audit event for every authenticated request,
// after it completes, to broker (if non-nil).
func auditMiddleware(broker *events.Broker) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if broker == nil {
				return
			}
			principal, _ := principalFrom(r.Context())
			broker.Publish(&events.Event{
				Type:    events.EventAuditAPIRequest,
				Message: r.URL.Path,
				Metadata: map[string]string{
					"tenant":      principal.Tenant,
					"method":      r.Method,
					"request_id":  requestIDFrom(r.Context()),
					"duration_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
				},
			})
		})
	}
}

func logUnhandledPanic(requestID string, recovered any) {
	log.WithComponent("api").Error().Interface("panic", recovered).Str("request_id", requestID).Msg("panic recovered in handler")
}

// recoverMiddleware converts a panicking handler into a 500 response
// instead of taking down the whole server, matching net/http's own
// per-connection recovery but logging through the module's structured
// logger rather than stderr.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logUnhandledPanic(requestIDFrom(r.Context()), rec)
				writeError(w, requestIDFrom(r.Context()), lakeerr.New(lakeerr.KindInternal, "panic", "internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
