package database

import (
	"context"
	"fmt"
	"maps"

	sq "github.com/Masterminds/squirrel"
)

// TenantColumn is the foreign key every tenant-scoped table carries.
const TenantColumn = "tenant_id"

// exemptModels are global tables the isolation layer passes through.
var exemptModels = map[string]bool{
	"tenants":  true,
	"usuarios": true,
}

// IsTenantScoped reports whether model is rewritten by ApplyTenantIsolation.
func IsTenantScoped(model string) bool {
	return !exemptModels[model]
}

// TenantClient scopes every operation on a tenant-scoped model to one
// tenant. Rows of other tenants are invisible to it: reads come back empty
// and single-row writes fail with ErrNotFound.
type TenantClient struct {
	next     Client
	tenantID string
}

// ApplyTenantIsolation returns a client bound to tenantID. client is never
// modified. Wrapping a TenantClient with its own tenant returns it as is;
// wrapping with another tenant stacks both predicates, so nothing is visible.
func ApplyTenantIsolation(client Client, tenantID string) Client {
	if tc, ok := client.(*TenantClient); ok && tc.tenantID == tenantID {
		return tc
	}
	return &TenantClient{next: client, tenantID: tenantID}
}

// TenantID returns the tenant the client is bound to.
func (c *TenantClient) TenantID() string {
	return c.tenantID
}

// Do implements Client.
func (c *TenantClient) Do(ctx context.Context, op Operation) (*Result, error) {
	if !IsTenantScoped(op.Model) {
		return c.next.Do(ctx, op)
	}
	if c.tenantID == "" {
		return nil, fmt.Errorf("%s on %s: %w", op.Kind, op.Model, ErrNoTenant)
	}
	return c.next.Do(ctx, c.scope(op))
}

func (c *TenantClient) scope(op Operation) Operation {
	switch op.Kind {
	case Create:
		op.Data = c.withTenant(op.Data)
	case CreateMany:
		batch := make([]map[string]any, len(op.Batch))
		for i, row := range op.Batch {
			batch[i] = c.withTenant(row)
		}
		op.Batch = batch
	case Update, UpdateMany:
		data := maps.Clone(op.Data)
		delete(data, TenantColumn)
		op.Data = data
		op.Where = c.filter(op.Where)
	default:
		op.Where = c.filter(op.Where)
	}
	return op
}

func (c *TenantClient) filter(where sq.Sqlizer) sq.Sqlizer {
	own := sq.Eq{TenantColumn: c.tenantID}
	if where == nil {
		return own
	}
	return sq.And{where, own}
}

func (c *TenantClient) withTenant(row map[string]any) map[string]any {
	out := make(map[string]any, len(row)+1)
	maps.Copy(out, row)
	out[TenantColumn] = c.tenantID
	return out
}
