package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/analytics"
	"github.com/poormans/rategate/internal/antibot"
	"github.com/poormans/rategate/internal/domain"
	"github.com/poormans/rategate/internal/gateway"
	apimw "github.com/poormans/rategate/internal/httpapi/middleware"
	"github.com/poormans/rategate/internal/ratelimit"
	"github.com/poormans/rategate/internal/repo"
)

type Server struct {
	Logger    *zap.Logger
	Store     repo.Store
	Engine    *ratelimit.Engine
	Analytics *analytics.Service
	Tokens    *antibot.TokenStore
	Proxy     *gateway.Proxy

	AdminKeys        apimw.Keys
	AdminAllowRemote bool
}

func NewServer(
	logger *zap.Logger,
	store repo.Store,
	engine *ratelimit.Engine,
	svc *analytics.Service,
	tokens *antibot.TokenStore,
	proxy *gateway.Proxy,
) *Server {
	return &Server{
		Logger:    logger,
		Store:     store,
		Engine:    engine,
		Analytics: svc,
		Tokens:    tokens,
		Proxy:     proxy,
	}
}

// PublicRouter serves proxied traffic plus the few endpoints that belong
// on the public port. The admin surface does not exist here.
func (s *Server) PublicRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Use(apimw.RequestLog(s.Logger))

	r.Get("/healthz", handleHealthz)

	// admin paths are invisible on the public port
	r.HandleFunc("/api/admin", handleAdminHidden)
	r.HandleFunc("/api/admin/*", handleAdminHidden)

	r.Get("/api/analytics/summary", s.handleSummary)
	r.Get("/api/tokens/form", s.handleTokenForm)
	r.Get("/api/tokens/challenge", s.handleTokenChallenge)

	// everything else is gateway traffic behind the limiter
	r.Handle("/*", s.withRateLimit(s.Proxy))

	return r
}

// AdminRouter serves the control plane: REST CRUD, log and analytics
// reads, and the analytics stream.
func (s *Server) AdminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Use(apimw.RequestLog(s.Logger))
	r.Use(apimw.LoopbackOnly(s.AdminAllowRemote))

	r.Get("/healthz", handleHealthz)

	r.Group(func(g chi.Router) {
		g.Use(apimw.RequireKey(s.AdminKeys))

		g.Route("/api/admin", func(ar chi.Router) {
			ar.Route("/policies", func(pr chi.Router) {
				pr.Get("/", s.handlePolicyList)
				pr.Post("/", s.handlePolicyCreate)
				pr.Get("/{id}", s.handlePolicyGet)
				pr.Put("/{id}", s.handlePolicyUpdate)
				pr.Delete("/{id}", s.handlePolicyDelete)
			})
			ar.Route("/rules", func(rr chi.Router) {
				rr.Get("/", s.handleRuleList)
				rr.Post("/", s.handleRuleCreate)
				rr.Get("/active", s.handleRuleActive)
				rr.Post("/refresh", s.handleRuleRefresh)
				rr.Get("/{id}", s.handleRuleGet)
				rr.Put("/{id}", s.handleRuleUpdate)
				rr.Patch("/{id}/queue", s.handleRuleQueuePatch)
				rr.Delete("/{id}", s.handleRuleDelete)
			})
			ar.Get("/config", s.handleConfigList)
			ar.Post("/config/{key}", s.handleConfigSet)
			ar.Get("/logs", s.handleLogs)
			ar.Get("/analytics/summary", s.handleSummary)
			ar.Get("/analytics/series", s.handleSeries)
		})

		g.Get("/ws/analytics", s.handleAnalyticsWS)
	})

	return r
}

// withRateLimit runs the request through the engine before it reaches the
// proxy. Every decision is counted and logged; storage trouble fails open.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		d, err := s.Engine.Evaluate(r.Context(), r)
		if err != nil {
			if r.Context().Err() != nil {
				// client abandoned a queued request
				return
			}
			s.Logger.Warn("limiter_evaluate_error", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		s.Analytics.Record(d.Allowed)
		s.appendTrafficLog(r, d, time.Since(start))

		if !d.Allowed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) appendTrafficLog(r *http.Request, d ratelimit.Decision, latency time.Duration) {
	l := &domain.TrafficLog{
		At:            time.Now().UTC(),
		ClientKey:     d.ClientKey,
		Path:          r.URL.Path,
		Method:        r.Method,
		Allowed:       d.Allowed,
		MatchedBy:     d.MatchedBy,
		LatencyMicros: latency.Microseconds(),
	}
	if err := s.Store.AppendLog(r.Context(), l); err != nil {
		s.Logger.Warn("traffic_log_append_error", zap.Error(err))
	}
}

// refreshEngine runs after admin writes so changes apply without waiting
// out the cache TTL.
func (s *Server) refreshEngine(ctx context.Context) {
	if err := s.Engine.Refresh(ctx); err != nil {
		s.Logger.Warn("engine_refresh_error", zap.Error(err))
	}
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleAdminHidden(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
