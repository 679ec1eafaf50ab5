package audit

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ness-ot/ot2net/internal/auth"
	"github.com/ness-ot/ot2net/internal/platform/database"
	"github.com/ness-ot/ot2net/internal/rbac"
)

// recordingClient captures operations; safe for the logger's worker goroutine.
type recordingClient struct {
	mu   sync.Mutex
	ops  []database.Operation
	rows []database.Row
	err  error
}

func (c *recordingClient) Do(_ context.Context, op database.Operation) (*database.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, op)
	if c.err != nil {
		return nil, c.err
	}
	return &database.Result{Rows: c.rows, Affected: int64(len(op.Batch))}, nil
}

func (c *recordingClient) operations() []database.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]database.Operation(nil), c.ops...)
}

type captureLogger struct {
	events []Event
}

func (l *captureLogger) Log(_ context.Context, e Event) { l.events = append(l.events, e) }
func (l *captureLogger) Close() error                   { return nil }

func TestFromRequest(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()

	t.Run("uuid user", func(t *testing.T) {
		ctx := auth.WithIdentity(context.Background(), &auth.Identity{
			UserID: userID.String(), Role: "CONSULTOR", TenantID: tenantID.String(),
		})
		e, ok := FromRequest(ctx, ActionProjetoUpdated, "projetos", nil)
		require.True(t, ok)
		assert.Equal(t, tenantID, e.TenantID)
		require.NotNil(t, e.UserID)
		assert.Equal(t, userID, *e.UserID)
		assert.Equal(t, "api", e.Source)
		assert.NotContains(t, e.Metadata, MetadataUserID)
	})

	t.Run("provider user id kept in metadata", func(t *testing.T) {
		ctx := auth.WithIdentity(context.Background(), &auth.Identity{
			UserID: "firebase-uid-1", Role: "CONSULTOR", TenantID: tenantID.String(),
		})
		e, ok := FromRequest(ctx, ActionProjetoUpdated, "projetos", nil)
		require.True(t, ok)
		assert.Nil(t, e.UserID)
		assert.Equal(t, "firebase-uid-1", e.Metadata[MetadataUserID])
	})

	t.Run("tenant not a uuid", func(t *testing.T) {
		ctx := auth.WithIdentity(context.Background(), &auth.Identity{
			UserID: userID.String(), Role: "CONSULTOR", TenantID: "acme",
		})
		_, ok := FromRequest(ctx, ActionProjetoUpdated, "projetos", nil)
		assert.False(t, ok)
	})

	t.Run("no identity", func(t *testing.T) {
		_, ok := FromRequest(context.Background(), ActionProjetoUpdated, "projetos", nil)
		assert.False(t, ok)
	})
}

func TestRBACLogger_ForwardsDenials(t *testing.T) {
	capture := &captureLogger{}
	tenantID := uuid.New()

	var logger rbac.AuditLogger = RBACLogger{Logger: capture}
	logger.Log(context.Background(), rbac.AuditEvent{
		TenantID:     tenantID,
		Action:       ActionAccessDenied,
		ResourceType: "usuarios",
		Metadata:     map[string]any{"permission": "usuarios:update"},
		Source:       "api",
	})

	require.Len(t, capture.events, 1)
	e := capture.events[0]
	assert.Equal(t, tenantID, e.TenantID)
	assert.Equal(t, ActionAccessDenied, e.Action)
	assert.Equal(t, "usuarios", e.ResourceType)
	assert.Equal(t, "usuarios:update", e.Metadata["permission"])
}
