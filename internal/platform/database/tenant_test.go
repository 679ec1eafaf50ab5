package database_test

import (
	"context"
	"errors"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ness-ot/ot2net/internal/platform/database"
)

// recordingClient captures the operations it receives.
type recordingClient struct {
	ops []database.Operation
	err error
}

func (r *recordingClient) Do(_ context.Context, op database.Operation) (*database.Result, error) {
	r.ops = append(r.ops, op)
	if r.err != nil {
		return nil, r.err
	}
	return &database.Result{}, nil
}

func (r *recordingClient) last(t *testing.T) database.Operation {
	t.Helper()
	require.NotEmpty(t, r.ops)
	return r.ops[len(r.ops)-1]
}

func whereSQL(t *testing.T, op database.Operation) (string, []any) {
	t.Helper()
	require.NotNil(t, op.Where)
	sql, args, err := op.Where.ToSql()
	require.NoError(t, err)
	return sql, args
}

func TestTenantIsolation_ReadsGetTenantPredicate(t *testing.T) {
	raw := &recordingClient{}
	client := database.ApplyTenantIsolation(raw, "tenant-a")

	kinds := []database.Kind{
		database.FindMany, database.FindFirst, database.FindUnique,
		database.Count, database.Aggregate, database.GroupBy,
	}
	for _, kind := range kinds {
		_, err := client.Do(context.Background(), database.Operation{Model: "projetos", Kind: kind})
		require.NoError(t, err)

		sql, args := whereSQL(t, raw.last(t))
		assert.Equal(t, "tenant_id = ?", sql, kind)
		assert.Equal(t, []any{"tenant-a"}, args, kind)
	}
}

func TestTenantIsolation_MergesCallerFilter(t *testing.T) {
	raw := &recordingClient{}
	client := database.ApplyTenantIsolation(raw, "tenant-a")

	_, err := client.Do(context.Background(), database.Operation{
		Model: "projetos",
		Kind:  database.FindMany,
		Where: sq.Eq{"status": "ativo"},
	})
	require.NoError(t, err)

	sql, args := whereSQL(t, raw.last(t))
	assert.Equal(t, "(status = ? AND tenant_id = ?)", sql)
	assert.Equal(t, []any{"ativo", "tenant-a"}, args)
}

func TestTenantIsolation_CallerCannotOverrideTenantFilter(t *testing.T) {
	raw := &recordingClient{}
	client := database.ApplyTenantIsolation(raw, "tenant-a")

	_, err := client.Do(context.Background(), database.Operation{
		Model: "projetos",
		Kind:  database.FindMany,
		Where: sq.Eq{"tenant_id": "tenant-b"},
	})
	require.NoError(t, err)

	sql, args := whereSQL(t, raw.last(t))
	assert.Equal(t, "(tenant_id = ? AND tenant_id = ?)", sql)
	assert.Equal(t, []any{"tenant-b", "tenant-a"}, args)
}

func TestTenantIsolation_CreateInjectsTenant(t *testing.T) {
	raw := &recordingClient{}
	client := database.ApplyTenantIsolation(raw, "tenant-a")

	data := map[string]any{"nome": "Subestação Norte", "tenant_id": "tenant-b"}
	_, err := client.Do(context.Background(), database.Operation{Model: "projetos", Kind: database.Create, Data: data})
	require.NoError(t, err)

	got := raw.last(t)
	assert.Equal(t, map[string]any{"nome": "Subestação Norte", "tenant_id": "tenant-a"}, got.Data)
	assert.Nil(t, got.Where)
	assert.Equal(t, "tenant-b", data["tenant_id"], "caller payload must not be mutated")
}

func TestTenantIsolation_CreateManyInjectsEveryRow(t *testing.T) {
	raw := &recordingClient{}
	client := database.ApplyTenantIsolation(raw, "tenant-a")

	batch := []map[string]any{{"nome": "a"}, {"nome": "b"}, {"nome": "c", "tenant_id": "x"}}
	_, err := client.Do(context.Background(), database.Operation{Model: "projetos", Kind: database.CreateMany, Batch: batch})
	require.NoError(t, err)

	got := raw.last(t)
	require.Len(t, got.Batch, 3)
	for _, row := range got.Batch {
		assert.Equal(t, "tenant-a", row["tenant_id"])
	}
	assert.NotContains(t, batch[0], "tenant_id")
	assert.Equal(t, "x", batch[2]["tenant_id"])
}

func TestTenantIsolation_UpdatesAndDeletesAreScoped(t *testing.T) {
	raw := &recordingClient{}
	client := database.ApplyTenantIsolation(raw, "tenant-a")

	for _, kind := range []database.Kind{database.Update, database.UpdateMany, database.Delete, database.DeleteMany} {
		op := database.Operation{Model: "projetos", Kind: kind, Where: sq.Eq{"id": "p1"}}
		if kind == database.Update || kind == database.UpdateMany {
			op.Data = map[string]any{"nome": "novo", "tenant_id": "tenant-b"}
		}
		_, err := client.Do(context.Background(), op)
		require.NoError(t, err)

		got := raw.last(t)
		sql, args := whereSQL(t, got)
		assert.Equal(t, "(id = ? AND tenant_id = ?)", sql, kind)
		assert.Equal(t, []any{"p1", "tenant-a"}, args, kind)
		if op.Data != nil {
			assert.Equal(t, map[string]any{"nome": "novo"}, got.Data, kind)
			assert.Equal(t, "tenant-b", op.Data["tenant_id"])
		}
	}
}

func TestTenantIsolation_ExemptModelsPassThrough(t *testing.T) {
	raw := &recordingClient{}
	client := database.ApplyTenantIsolation(raw, "tenant-a")

	for _, model := range []string{"tenants", "usuarios"} {
		op := database.Operation{Model: model, Kind: database.Create, Data: map[string]any{"email": "x@y.z"}}
		_, err := client.Do(context.Background(), op)
		require.NoError(t, err)
		assert.Equal(t, op.Data, raw.last(t).Data)

		_, err = client.Do(context.Background(), database.Operation{Model: model, Kind: database.FindMany})
		require.NoError(t, err)
		assert.Nil(t, raw.last(t).Where)
	}
	assert.False(t, database.IsTenantScoped("usuarios"))
	assert.True(t, database.IsTenantScoped("membros_equipe"))
}

func TestTenantIsolation_SameTenantIsIdempotent(t *testing.T) {
	raw := &recordingClient{}
	once := database.ApplyTenantIsolation(raw, "tenant-a")
	twice := database.ApplyTenantIsolation(once, "tenant-a")

	assert.Same(t, once, twice)

	op := database.Operation{Model: "projetos", Kind: database.FindMany, Where: sq.Eq{"id": "p1"}}
	_, err := once.Do(context.Background(), op)
	require.NoError(t, err)
	_, err = twice.Do(context.Background(), op)
	require.NoError(t, err)

	require.Len(t, raw.ops, 2)
	sql1, args1 := whereSQL(t, raw.ops[0])
	sql2, args2 := whereSQL(t, raw.ops[1])
	assert.Equal(t, sql1, sql2)
	assert.Equal(t, args1, args2)
}

func TestTenantIsolation_FreshWrapperPerCall(t *testing.T) {
	raw := &recordingClient{}

	a := database.ApplyTenantIsolation(raw, "tenant-a")
	b := database.ApplyTenantIsolation(raw, "tenant-b")

	assert.NotSame(t, a, b)
	assert.Equal(t, "tenant-a", a.(*database.TenantClient).TenantID())
	assert.Equal(t, "tenant-b", b.(*database.TenantClient).TenantID())
}

func TestTenantIsolation_DifferentTenantStacksPredicates(t *testing.T) {
	raw := &recordingClient{}
	client := database.ApplyTenantIsolation(database.ApplyTenantIsolation(raw, "tenant-a"), "tenant-b")

	_, err := client.Do(context.Background(), database.Operation{Model: "projetos", Kind: database.FindMany})
	require.NoError(t, err)

	sql, args := whereSQL(t, raw.last(t))
	assert.Equal(t, "(tenant_id = ? AND tenant_id = ?)", sql)
	assert.Equal(t, []any{"tenant-b", "tenant-a"}, args)
}

func TestTenantIsolation_EmptyTenantFailsClosed(t *testing.T) {
	raw := &recordingClient{}
	client := database.ApplyTenantIsolation(raw, "")

	_, err := client.Do(context.Background(), database.Operation{Model: "projetos", Kind: database.FindMany})
	assert.ErrorIs(t, err, database.ErrNoTenant)
	assert.Empty(t, raw.ops)

	_, err = client.Do(context.Background(), database.Operation{Model: "usuarios", Kind: database.FindMany})
	assert.NoError(t, err)
}

func TestTenantIsolation_PropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("connection reset")
	client := database.ApplyTenantIsolation(&recordingClient{err: storeErr}, "tenant-a")

	_, err := client.Do(context.Background(), database.Operation{Model: "projetos", Kind: database.FindMany})
	assert.Same(t, storeErr, err)
}

func TestClientFromContext(t *testing.T) {
	assert.Nil(t, database.ClientFromContext(context.Background()))

	client := database.ApplyTenantIsolation(&recordingClient{}, "tenant-a")
	ctx := database.WithClient(context.Background(), client)
	assert.Same(t, client, database.ClientFromContext(ctx))
}
