package rbac

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/ness-ot/ot2net/internal/auth"
)

// AuditLogger is the audit interface for RBAC denial logging.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent)
}

// AuditEvent captures an auditable action.
type AuditEvent struct {
	TenantID     uuid.UUID
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Metadata     map[string]any
	Source       string
}

// MiddlewareOption configures RBAC middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	audit   AuditLogger
	labels  *Labels
	logger  *slog.Logger
	metrics *Metrics
	verbose bool
}

func newMiddlewareConfig(opts []MiddlewareOption) middlewareConfig {
	mc := middlewareConfig{
		labels: DefaultLabels(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&mc)
	}
	return mc
}

// WithAuditLogger attaches an audit logger to log RBAC denials.
func WithAuditLogger(logger AuditLogger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.audit = logger
	}
}

// WithLabels sets the locale of denial messages.
func WithLabels(labels *Labels) MiddlewareOption {
	return func(c *middlewareConfig) {
		if labels != nil {
			c.labels = labels
		}
	}
}

// WithMiddlewareLogger sets the logger denials are reported on.
func WithMiddlewareLogger(logger *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records gate decisions on m.
func WithMetrics(m *Metrics) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.metrics = m
	}
}

// WithVerboseDenials echoes the caller's role and grants in 403 bodies.
// Off by default: it discloses the permission matrix to clients.
func WithVerboseDenials(enabled bool) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.verbose = enabled
	}
}

// RequirePermission returns middleware that checks if the authenticated
// user's role may perform action on resource.
func RequirePermission(engine PolicyEngine, resource string, action Action, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mc := newMiddlewareConfig(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.GetIdentity(r.Context())
			if identity == nil {
				mc.metrics.decision(gatePermission, outcomeUnauthenticated)
				writeUnauthenticated(w, mc.labels)
				return
			}

			decision, err := engine.Authorize(r.Context(), identity, resource, action)
			if err != nil {
				mc.metrics.decision(gatePermission, outcomeError)
				mc.logger.Error("rbac: authorization check failed",
					"user_id", identity.UserID,
					"resource", resource,
					"action", string(action),
					"error", err,
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "authorization check failed",
				})
				return
			}

			if !decision.Allowed {
				mc.metrics.decision(gatePermission, outcomeDenied)
				mc.logger.Info("rbac: permission denied",
					"user_id", identity.UserID,
					"role", identity.Role,
					"resource", resource,
					"action", string(action),
				)
				mc.auditDenial(r.Context(), identity, resource, map[string]any{
					"permission": Grant{Resource: resource, Action: action}.String(),
					"reason":     decision.Reason,
				})

				body := map[string]any{
					"error":   "Permissão negada",
					"message": mc.labels.Denied(resource, action),
				}
				if mc.verbose {
					grants := engine.Grants(Role(identity.Role))
					perms := make([]string, len(grants))
					for i, g := range grants {
						perms[i] = g.String()
					}
					body["userRole"] = identity.Role
					body["userPermissions"] = perms
				}
				writeJSON(w, http.StatusForbidden, body)
				return
			}

			mc.metrics.decision(gatePermission, outcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission returns middleware that admits the caller when at
// least one of grants is allowed.
func RequireAnyPermission(engine PolicyEngine, grants []Grant, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mc := newMiddlewareConfig(opts)

	wanted := make([]string, len(grants))
	for i, g := range grants {
		wanted[i] = g.String()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.GetIdentity(r.Context())
			if identity == nil {
				mc.metrics.decision(gatePermission, outcomeUnauthenticated)
				writeUnauthenticated(w, mc.labels)
				return
			}

			for _, g := range grants {
				decision, err := engine.Authorize(r.Context(), identity, g.Resource, g.Action)
				if err != nil {
					mc.metrics.decision(gatePermission, outcomeError)
					mc.logger.Error("rbac: authorization check failed",
						"user_id", identity.UserID,
						"permission", g.String(),
						"error", err,
					)
					writeJSON(w, http.StatusInternalServerError, map[string]string{
						"error": "authorization check failed",
					})
					return
				}
				if decision.Allowed {
					mc.metrics.decision(gatePermission, outcomeAllowed)
					next.ServeHTTP(w, r)
					return
				}
			}

			mc.metrics.decision(gatePermission, outcomeDenied)
			mc.logger.Info("rbac: permission denied",
				"user_id", identity.UserID,
				"role", identity.Role,
				"permissions", wanted,
			)
			resource := ""
			if len(grants) > 0 {
				resource = grants[0].Resource
			}
			mc.auditDenial(r.Context(), identity, resource, map[string]any{
				"permissions": wanted,
				"reason":      "none of the permissions granted",
			})
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error":   "Acesso negado",
				"message": mc.labels.DeniedAny(),
			})
		})
	}
}

// RequireAdmin returns middleware that only admits ADMIN and PLATFORM_ADMIN.
func RequireAdmin(opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mc := newMiddlewareConfig(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.GetIdentity(r.Context())
			if identity == nil {
				mc.metrics.decision(gateAdmin, outcomeUnauthenticated)
				writeUnauthenticated(w, mc.labels)
				return
			}

			if !Role(identity.Role).IsAdmin() {
				mc.metrics.decision(gateAdmin, outcomeDenied)
				mc.logger.Info("rbac: admin access denied",
					"user_id", identity.UserID,
					"role", identity.Role,
					"path", r.URL.Path,
				)
				mc.auditDenial(r.Context(), identity, "admin", map[string]any{
					"path": r.URL.Path,
				})
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":   "Acesso negado",
					"message": mc.labels.AdminOnly(),
				})
				return
			}

			mc.metrics.decision(gateAdmin, outcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

func (mc middlewareConfig) auditDenial(ctx context.Context, identity *auth.Identity, resourceType string, metadata map[string]any) {
	if mc.audit == nil {
		return
	}
	// Events are stored per tenant; callers without one cannot be recorded.
	tid, err := uuid.Parse(identity.TenantID)
	if err != nil {
		return
	}
	evt := AuditEvent{
		TenantID:     tid,
		Action:       "access.denied",
		ResourceType: resourceType,
		Metadata:     metadata,
		Source:       "api",
	}
	evt.Metadata["role"] = identity.Role
	if uid, parseErr := uuid.Parse(identity.UserID); parseErr == nil {
		evt.UserID = &uid
	} else {
		evt.Metadata["user_id"] = identity.UserID
	}
	mc.audit.Log(ctx, evt)
}

func writeUnauthenticated(w http.ResponseWriter, labels *Labels) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error":   "Não autenticado",
		"message": labels.Unauthenticated(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
