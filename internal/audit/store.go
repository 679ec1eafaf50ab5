package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/ness-ot/ot2net/internal/platform/database"
)

const model = "audit_events"

// Store handles audit event persistence through the data client. Every
// write and read is scoped to one tenant.
type Store struct {
	client database.Client
}

// NewStore creates an audit Store over an unscoped client.
func NewStore(client database.Client) *Store {
	return &Store{client: client}
}

// InsertBatch writes events, one CreateMany per tenant.
func (s *Store) InsertBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	byTenant := make(map[uuid.UUID][]map[string]any)
	var order []uuid.UUID
	for _, e := range events {
		row, err := eventRow(e)
		if err != nil {
			return fmt.Errorf("building audit row: %w", err)
		}
		if _, seen := byTenant[e.TenantID]; !seen {
			order = append(order, e.TenantID)
		}
		byTenant[e.TenantID] = append(byTenant[e.TenantID], row)
	}

	for _, tenantID := range order {
		scoped := database.ApplyTenantIsolation(s.client, tenantID.String())
		_, err := scoped.Do(ctx, database.Operation{
			Model: model,
			Kind:  database.CreateMany,
			Batch: byTenant[tenantID],
		})
		if err != nil {
			return fmt.Errorf("inserting audit events: %w", err)
		}
	}
	return nil
}

func eventRow(e Event) (map[string]any, error) {
	var meta any
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling metadata: %w", err)
		}
		meta = string(b)
	}
	return map[string]any{
		"user_id":       uuidOrNil(e.UserID),
		"action":        e.Action,
		"resource_type": e.ResourceType,
		"resource_id":   uuidOrNil(e.ResourceID),
		"metadata":      meta,
		"source":        e.Source,
	}, nil
}

func uuidOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// ListEventsParams defines filters for querying audit events.
type ListEventsParams struct {
	Action       *string
	ResourceType *string
	UserID       *uuid.UUID
	Source       *string
	After        *time.Time
	Before       *time.Time
	Limit        int
}

// listOperation builds the FindMany for p. The tenant predicate is added by
// the scoped client the caller passes to List.
func listOperation(p ListEventsParams) database.Operation {
	where := sq.And{}
	if p.Action != nil {
		where = append(where, sq.Eq{"action": *p.Action})
	}
	if p.ResourceType != nil {
		where = append(where, sq.Eq{"resource_type": *p.ResourceType})
	}
	if p.UserID != nil {
		where = append(where, sq.Eq{"user_id": p.UserID.String()})
	}
	if p.Source != nil {
		where = append(where, sq.Eq{"source": *p.Source})
	}
	if p.After != nil {
		where = append(where, sq.Gt{"created_at": *p.After})
	}
	if p.Before != nil {
		where = append(where, sq.Lt{"created_at": *p.Before})
	}

	op := database.Operation{
		Model:   model,
		Kind:    database.FindMany,
		Columns: []string{"id", "tenant_id", "user_id", "action", "resource_type", "resource_id", "metadata", "source", "created_at"},
		OrderBy: []string{"created_at DESC"},
		Limit:   uint64(p.Limit),
	}
	if len(where) > 0 {
		op.Where = where
	}
	return op
}

// List returns events matching p, newest first. client must be scoped to
// the tenant being queried.
func List(ctx context.Context, client database.Client, p ListEventsParams) ([]database.Row, error) {
	res, err := client.Do(ctx, listOperation(p))
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	return res.Rows, nil
}
