package rbac

import (
	"context"
	"errors"

	"github.com/ness-ot/ot2net/internal/auth"
)

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrProjectIDRequired   = errors.New("project id required")
	ErrConfigurationDefect = errors.New("rbac configuration defect")
)

// Role is the authorization class of a caller. A caller holds exactly one.
type Role string

const (
	RolePlatformAdmin  Role = "PLATFORM_ADMIN"
	RoleAdmin          Role = "ADMIN"
	RoleGerenteProjeto Role = "GERENTE_PROJETO"
	RoleConsultor      Role = "CONSULTOR"
	RoleCliente        Role = "CLIENTE"
	RoleAuditor        Role = "AUDITOR"
	RoleGestor         Role = "GESTOR"
	RoleVisualizador   Role = "VISUALIZADOR"
)

// Roles returns every role the platform assigns, in declaration order.
func Roles() []Role {
	return []Role{
		RolePlatformAdmin,
		RoleAdmin,
		RoleGerenteProjeto,
		RoleConsultor,
		RoleCliente,
		RoleAuditor,
		RoleGestor,
		RoleVisualizador,
	}
}

// IsAdmin reports whether r bypasses instance-level checks.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RolePlatformAdmin
}

// Action is one of the CRUD verbs, or Wildcard.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions returns the four CRUD actions.
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
}

// Wildcard matches any resource or any action.
const Wildcard = "*"

// Grant permits a role to perform Action on Resource. Either field may be
// Wildcard.
type Grant struct {
	Resource string `json:"resource"`
	Action   Action `json:"action"`
}

// Matches reports whether g covers action on resource. Comparison is literal
// and case-sensitive.
func (g Grant) Matches(resource string, action Action) bool {
	return (g.Resource == Wildcard || g.Resource == resource) &&
		(g.Action == Wildcard || g.Action == action)
}

func (g Grant) String() string {
	return g.Resource + ":" + string(g.Action)
}

// Decision represents the result of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// PolicyEngine defines the authorization interface.
type PolicyEngine interface {
	// Authorize checks if the identity's role may perform action on resource.
	Authorize(ctx context.Context, identity *auth.Identity, resource string, action Action) (*Decision, error)
	// Grants lists the grants held by role. Unknown roles hold none.
	Grants(role Role) []Grant
}
