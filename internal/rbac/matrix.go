package rbac

import (
	"errors"
	"fmt"
	"slices"
)

// Matrix maps each role to its grants. It is immutable once built; every
// accessor hands out copies.
type Matrix struct {
	grants map[Role][]Grant
}

// NewMatrix copies grants into a new Matrix.
func NewMatrix(grants map[Role][]Grant) *Matrix {
	m := &Matrix{grants: make(map[Role][]Grant, len(grants))}
	for role, gs := range grants {
		m.grants[role] = slices.Clone(gs)
		if m.grants[role] == nil {
			m.grants[role] = []Grant{}
		}
	}
	return m
}

// Grants returns the grants of role. Lookup is total: an unknown role yields
// an empty list.
func (m *Matrix) Grants(role Role) []Grant {
	return slices.Clone(m.grants[role])
}

// Has reports whether role has an entry, even an empty one.
func (m *Matrix) Has(role Role) bool {
	_, ok := m.grants[role]
	return ok
}

// Roles returns the roles with an entry, sorted.
func (m *Matrix) Roles() []Role {
	roles := make([]Role, 0, len(m.grants))
	for role := range m.grants {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles
}

// Validate reports every role in roles that has no matrix entry.
func (m *Matrix) Validate(roles ...Role) error {
	var errs []error
	for _, role := range roles {
		if !m.Has(role) {
			errs = append(errs, fmt.Errorf("%w: role %q has no matrix entry", ErrConfigurationDefect, role))
		}
	}
	return errors.Join(errs...)
}

// AccessibleResources lists the resources role may perform action on. A
// wildcard resource grant is reported as Wildcard.
func (m *Matrix) AccessibleResources(role Role, action Action) []string {
	var out []string
	for _, g := range m.grants[role] {
		if g.Action != Wildcard && g.Action != action {
			continue
		}
		if !slices.Contains(out, g.Resource) {
			out = append(out, g.Resource)
		}
	}
	return out
}

func crud(resources ...string) []Grant {
	return grant(resources, Actions()...)
}

func readOnly(resources ...string) []Grant {
	return grant(resources, ActionRead)
}

func readUpdate(resources ...string) []Grant {
	return grant(resources, ActionRead, ActionUpdate)
}

func grant(resources []string, actions ...Action) []Grant {
	out := make([]Grant, 0, len(resources)*len(actions))
	for _, r := range resources {
		for _, a := range actions {
			out = append(out, Grant{Resource: r, Action: a})
		}
	}
	return out
}

// auditorResources is enumerated rather than granted as "*:read" so that a
// new resource stays hidden from auditors until listed here.
var auditorResources = []string{
	"clientes",
	"empresas",
	"localidades",
	"projetos",
	"coleta-processos",
	"catalogo",
	"equipe",
	"partes-interessadas",
	"usuarios",
	"configuracoes",
	"organizacoes",
	"sites",
	"stakeholders",
	"descricoes",
	"processos",
	"relatorios",
}

// DefaultMatrix returns the platform's permission matrix.
func DefaultMatrix() *Matrix {
	full := []Grant{{Resource: Wildcard, Action: Wildcard}}

	return NewMatrix(map[Role][]Grant{
		RolePlatformAdmin: full,
		RoleAdmin:         full,
		RoleGerenteProjeto: slices.Concat(
			readOnly("clientes"),
			crud("empresas", "localidades", "projetos", "coleta-processos", "catalogo", "equipe", "partes-interessadas"),
			readUpdate("configuracoes"),
		),
		RoleConsultor: slices.Concat(
			readOnly("clientes"),
			readUpdate("empresas", "localidades", "projetos"),
			crud("coleta-processos"),
			readOnly("catalogo", "equipe"),
			readUpdate("partes-interessadas", "configuracoes"),
			crud("descricoes", "processos"),
			readOnly("relatorios", "stakeholders", "sites"),
		),
		RoleCliente: slices.Concat(
			readOnly("localidades", "projetos", "catalogo", "partes-interessadas"),
			readUpdate("configuracoes"),
		),
		RoleAuditor: slices.Concat(
			readOnly(auditorResources...),
			grant([]string{"configuracoes"}, ActionUpdate),
		),
		RoleGestor:       readOnly("projetos", "processos", "descricoes", "relatorios", "stakeholders", "equipe"),
		RoleVisualizador: readOnly("relatorios"),
	})
}
