package project_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ness-ot/ot2net/internal/auth"
	"github.com/ness-ot/ot2net/internal/platform/database"
	"github.com/ness-ot/ot2net/internal/project"
)

func TestMembershipStore_Member(t *testing.T) {
	client := &fakeClient{}
	store := project.NewMembershipStore(client)

	ok, err := store.IsProjectMember(context.Background(), &auth.Identity{
		UserID: "user-1", Role: "CONSULTOR", TenantID: "tenant-a",
	}, "proj-1")
	require.NoError(t, err)
	assert.True(t, ok)

	op := client.last(t)
	assert.Equal(t, "membros_equipe", op.Model)
	assert.Equal(t, database.FindFirst, op.Kind)
	sql, args, err := op.Where.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(projeto_id = ? AND usuario_id = ? AND tenant_id = ?)", sql)
	assert.Equal(t, []any{"proj-1", "user-1", "tenant-a"}, args)
}

func TestMembershipStore_NotMember(t *testing.T) {
	client := &fakeClient{respond: func(database.Operation) (*database.Result, error) {
		return nil, database.ErrNotFound
	}}

	ok, err := project.NewMembershipStore(client).IsProjectMember(context.Background(), &auth.Identity{
		UserID: "user-1", Role: "CONSULTOR", TenantID: "tenant-a",
	}, "proj-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMembershipStore_LookupError(t *testing.T) {
	client := &fakeClient{respond: func(database.Operation) (*database.Result, error) {
		return nil, errors.New("connection reset")
	}}

	ok, err := project.NewMembershipStore(client).IsProjectMember(context.Background(), &auth.Identity{
		UserID: "user-1", Role: "CONSULTOR", TenantID: "tenant-a",
	}, "proj-1")
	assert.ErrorContains(t, err, "connection reset")
	assert.False(t, ok)
}

func TestMembershipStore_NoTenantIsNeverMember(t *testing.T) {
	client := &fakeClient{}

	ok, err := project.NewMembershipStore(client).IsProjectMember(context.Background(), &auth.Identity{
		UserID: "user-1", Role: "CONSULTOR",
	}, "proj-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, client.ops)
}
