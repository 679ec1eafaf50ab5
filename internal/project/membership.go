package project

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/ness-ot/ot2net/internal/auth"
	"github.com/ness-ot/ot2net/internal/platform/database"
)

// MembershipStore answers project-team membership from membros_equipe.
type MembershipStore struct {
	client database.Client
}

// NewMembershipStore creates a store over an unscoped client. Each lookup is
// scoped to the caller's tenant.
func NewMembershipStore(client database.Client) *MembershipStore {
	return &MembershipStore{client: client}
}

// IsProjectMember implements rbac.MembershipChecker. A caller without a
// tenant is never a member.
func (s *MembershipStore) IsProjectMember(ctx context.Context, identity *auth.Identity, projectID string) (bool, error) {
	if identity == nil || identity.TenantID == "" {
		return false, nil
	}

	scoped := database.ApplyTenantIsolation(s.client, identity.TenantID)
	_, err := scoped.Do(ctx, database.Operation{
		Model:   modelMembros,
		Kind:    database.FindFirst,
		Columns: []string{"id"},
		Where:   sq.Eq{"projeto_id": projectID, "usuario_id": identity.UserID},
	})
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking project membership: %w", err)
	}
	return true, nil
}
