package rbac

import (
	"net/http"

	"github.com/ness-ot/ot2net/internal/auth"
)

// Handler serves read-only views of the permission matrix so clients need
// not carry their own copy.
type Handler struct {
	engine *Evaluator
	labels *Labels
}

// NewHandler creates a matrix handler. A nil labels uses pt-BR.
func NewHandler(engine *Evaluator, labels *Labels) *Handler {
	if labels == nil {
		labels = DefaultLabels()
	}
	return &Handler{engine: engine, labels: labels}
}

type grantView struct {
	Resource      string `json:"resource"`
	Action        Action `json:"action"`
	ResourceLabel string `json:"resource_label"`
	ActionLabel   string `json:"action_label"`
}

func (h *Handler) grantViews(role Role) []grantView {
	grants := h.engine.Grants(role)
	out := make([]grantView, len(grants))
	for i, g := range grants {
		out[i] = grantView{
			Resource:      g.Resource,
			Action:        g.Action,
			ResourceLabel: h.labels.Resource(g.Resource),
			ActionLabel:   h.labels.Action(g.Action),
		}
	}
	return out
}

// HandleMyPermissions returns the caller's role and grants.
// GET /api/v1/me/permissions
func (h *Handler) HandleMyPermissions(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		writeUnauthenticated(w, h.labels)
		return
	}

	role := Role(identity.Role)
	writeJSON(w, http.StatusOK, map[string]any{
		"role":     role,
		"is_admin": role.IsAdmin(),
		"grants":   h.grantViews(role),
	})
}

// HandleMatrix returns every role's grants.
// GET /api/v1/admin/matrix
func (h *Handler) HandleMatrix(w http.ResponseWriter, _ *http.Request) {
	matrix := h.engine.Matrix()
	roles := make(map[Role][]grantView)
	for _, role := range matrix.Roles() {
		roles[role] = h.grantViews(role)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"locale": h.labels.Locale(),
		"roles":  roles,
	})
}
