package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/ness-ot/ot2net/internal/auth"
	"github.com/ness-ot/ot2net/internal/rbac"
)

// Event represents a single auditable action in the system.
type Event struct {
	TenantID     uuid.UUID
	UserID       *uuid.UUID // nil for system events
	Action       string     // e.g. "access.denied", "projeto.updated"
	ResourceType string     // e.g. "projetos", "equipe", "admin"
	ResourceID   *uuid.UUID
	Metadata     map[string]any
	Source       string // "api", "cli", "system"
}

const (
	ActionAccessDenied = "access.denied"

	ActionProjetoUpdated    = "projeto.updated"
	ActionEquipeMemberAdded = "equipe.member_added"
)

const (
	MetadataUserID     = "user_id"
	MetadataProjetoID  = "projeto_id"
	MetadataRequestID  = "request_id"
	MetadataPermission = "permission"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// ActorIDFromContext extracts the authenticated user's UUID from the
// request context, returning nil if no identity is present or the
// user ID is not a valid UUID.
func ActorIDFromContext(ctx context.Context) *uuid.UUID {
	identity := auth.GetIdentity(ctx)
	if identity == nil {
		return nil
	}
	uid, err := uuid.Parse(identity.UserID)
	if err != nil {
		return nil
	}
	return &uid
}

// FromRequest builds an API event for the caller in ctx. ok is false when
// the caller has no identity or a tenant that is not a UUID. Provider user
// ids that are not UUIDs are kept in metadata.
func FromRequest(ctx context.Context, action, resourceType string, metadata map[string]any) (Event, bool) {
	identity := auth.GetIdentity(ctx)
	if identity == nil {
		return Event{}, false
	}
	tenantID, err := uuid.Parse(identity.TenantID)
	if err != nil {
		return Event{}, false
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	userID := ActorIDFromContext(ctx)
	if userID == nil {
		metadata[MetadataUserID] = identity.UserID
	}
	return Event{
		TenantID:     tenantID,
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		Metadata:     metadata,
		Source:       "api",
	}, true
}

// RBACLogger forwards authorization denials to an audit Logger.
type RBACLogger struct {
	Logger Logger
}

// Log implements rbac.AuditLogger.
func (l RBACLogger) Log(ctx context.Context, e rbac.AuditEvent) {
	l.Logger.Log(ctx, Event{
		TenantID:     e.TenantID,
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Metadata:     e.Metadata,
		Source:       e.Source,
	})
}
