package auth

import (
	"context"
	"errors"
)

var (
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrMissingTenant = errors.New("user not associated with a tenant")
)

// DefaultRole is assigned when a verified token carries no role claim.
const DefaultRole = "VISUALIZADOR"

// Identity is the caller resolved from a verified bearer token. It is built
// once per request and never modified afterwards.
type Identity struct {
	UserID    string `json:"id" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Role      string `json:"role" validate:"required"`
	TenantID  string `json:"tenant_id,omitempty"`
	ClienteID string `json:"cliente_id,omitempty"`
}

// Verifier turns a raw bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}
