package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ness-ot/ot2net/internal/audit"
	"github.com/ness-ot/ot2net/internal/auth"
	"github.com/ness-ot/ot2net/internal/platform/database"
	"github.com/ness-ot/ot2net/internal/platform/middleware"
	"github.com/ness-ot/ot2net/internal/project"
	"github.com/ness-ot/ot2net/internal/rbac"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Pool           *pgxpool.Pool
	Verifier       auth.Verifier
	RBAC           *rbac.Evaluator
	RBACHandler    *rbac.Handler
	RBACOptions    []rbac.MiddlewareOption
	Membership     rbac.MembershipChecker
	Data           database.Client
	ProjectHandler *project.Handler
	AuditHandler   *audit.Handler
	Gatherer       prometheus.Gatherer
	Logger         *slog.Logger

	CORSAllowedOrigins []string
	RateLimit          int
	RateWindow         time.Duration
	Development        bool
}

type Server struct {
	httpServer   *http.Server
	protectedMux *http.ServeMux
	pool         *pgxpool.Pool
	handler      http.Handler
}

func New(addr string, deps Dependencies) *Server {
	// Protected routes mux, wrapped with auth and tenant middleware
	protectedMux := http.NewServeMux()

	var protectedHandler http.Handler = protectedMux
	if deps.Data != nil {
		protectedHandler = middleware.DataClient(deps.Data)(protectedHandler)
	}
	protectedHandler = middleware.TenantContext(protectedHandler)
	if deps.Verifier != nil {
		protectedHandler = auth.Middleware(deps.Verifier)(protectedHandler)
	}
	if deps.RateLimit > 0 && deps.RateWindow > 0 {
		protectedHandler = middleware.RateLimit(deps.RateLimit, deps.RateWindow)(protectedHandler)
	}

	// Top-level mux: public routes + protected catch-all
	topMux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		protectedMux: protectedMux,
		pool:         deps.Pool,
	}

	// Public routes (no auth required)
	topMux.HandleFunc("GET /healthz", s.handleHealth)
	topMux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.Gatherer != nil {
		topMux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	protectedMux.HandleFunc("GET /api/v1/me", handleMe)

	opts := deps.RBACOptions

	if deps.RBACHandler != nil {
		protectedMux.HandleFunc("GET /api/v1/me/permissions", deps.RBACHandler.HandleMyPermissions)
		protectedMux.Handle("GET /api/v1/admin/matrix",
			rbac.RequireAdmin(opts...)(http.HandlerFunc(deps.RBACHandler.HandleMatrix)),
		)
	}

	if deps.AuditHandler != nil {
		protectedMux.Handle("GET /api/v1/audit/events",
			rbac.RequireAdmin(opts...)(http.HandlerFunc(deps.AuditHandler.HandleListEvents)),
		)
	}

	if deps.ProjectHandler != nil && deps.RBAC != nil && deps.Membership != nil {
		h := deps.ProjectHandler
		member := rbac.RequireProjectAccess(deps.Membership, opts...)
		can := func(resource string, action rbac.Action) func(http.Handler) http.Handler {
			return rbac.RequirePermission(deps.RBAC, resource, action, opts...)
		}

		protectedMux.Handle("GET /api/v1/projetos",
			can("projetos", rbac.ActionRead)(http.HandlerFunc(h.HandleList)),
		)
		protectedMux.Handle("GET /api/v1/projetos/resumo",
			can("projetos", rbac.ActionRead)(http.HandlerFunc(h.HandleSummary)),
		)
		protectedMux.Handle("GET /api/v1/projetos/{id}",
			can("projetos", rbac.ActionRead)(member(http.HandlerFunc(h.HandleGet))),
		)
		protectedMux.Handle("PUT /api/v1/projetos/{id}",
			can("projetos", rbac.ActionUpdate)(member(http.HandlerFunc(h.HandleUpdate))),
		)
		protectedMux.Handle("GET /api/v1/projetos/{id}/equipe",
			can("equipe", rbac.ActionRead)(member(http.HandlerFunc(h.HandleListTeam))),
		)
		protectedMux.Handle("POST /api/v1/projetos/{id}/equipe",
			can("equipe", rbac.ActionCreate)(member(http.HandlerFunc(h.HandleAddMember))),
		)
	}

	// All other routes go through auth middleware
	topMux.Handle("/", protectedHandler)

	// Wrap top-level mux with observability and header middleware
	var handler http.Handler = topMux
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)
	handler = middleware.SecureHeaders(deps.Development)(handler)
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ProtectedMux returns the mux for authenticated routes.
// Use this to register routes that require authentication.
func (s *Server) ProtectedMux() *http.ServeMux {
	return s.protectedMux
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func handleMe(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Não autenticado"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": identity})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database not connected",
		})
		return
	}

	if err := s.pool.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
