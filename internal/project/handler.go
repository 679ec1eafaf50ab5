package project

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-playground/validator/v10"

	"github.com/ness-ot/ot2net/internal/audit"
	"github.com/ness-ot/ot2net/internal/platform/database"
)

const (
	modelProjetos = "projetos"
	modelMembros  = "membros_equipe"
)

// Handler serves project and project-team endpoints. Authorization is done
// by the rbac middleware wrapped around each route; handlers only see the
// tenant-scoped client attached to the request.
type Handler struct {
	audit    audit.Logger
	validate *validator.Validate
}

// NewHandler creates a project handler. A nil logger disables auditing.
func NewHandler(logger audit.Logger) *Handler {
	if logger == nil {
		logger = audit.NopLogger{}
	}
	return &Handler{audit: logger, validate: validator.New()}
}

type updateProjetoRequest struct {
	Nome      *string `json:"nome" validate:"omitempty,min=1,max=200"`
	Descricao *string `json:"descricao"`
	Status    *string `json:"status" validate:"omitempty,oneof=ativo pausado concluido cancelado"`
}

type addMembroRequest struct {
	UsuarioID string `json:"usuario_id" validate:"required"`
	Papel     string `json:"papel" validate:"required,max=100"`
}

// HandleList returns the tenant's projects.
// GET /api/v1/projetos
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	client, ok := clientOrError(w, r)
	if !ok {
		return
	}

	res, err := client.Do(r.Context(), database.Operation{
		Model:   modelProjetos,
		Kind:    database.FindMany,
		OrderBy: []string{"nome"},
	})
	if err != nil {
		h.internalError(w, r, "listing projects", err)
		return
	}
	writeJSON(w, http.StatusOK, rowsOrEmpty(res.Rows))
}

// HandleSummary counts the tenant's projects per status.
// GET /api/v1/projetos/resumo
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	client, ok := clientOrError(w, r)
	if !ok {
		return
	}

	res, err := client.Do(r.Context(), database.Operation{
		Model:      modelProjetos,
		Kind:       database.GroupBy,
		GroupBy:    []string{"status"},
		Aggregates: []database.AggregateFunc{{Func: "COUNT", Column: "*", As: "total"}},
		OrderBy:    []string{"status"},
	})
	if err != nil {
		h.internalError(w, r, "summarizing projects", err)
		return
	}
	writeJSON(w, http.StatusOK, rowsOrEmpty(res.Rows))
}

// HandleGet returns one project.
// GET /api/v1/projetos/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	client, ok := clientOrError(w, r)
	if !ok {
		return
	}

	res, err := client.Do(r.Context(), database.Operation{
		Model: modelProjetos,
		Kind:  database.FindUnique,
		Where: sq.Eq{"id": r.PathValue("id")},
	})
	if errors.Is(err, database.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Projeto não encontrado"})
		return
	}
	if err != nil {
		h.internalError(w, r, "loading project", err)
		return
	}
	writeJSON(w, http.StatusOK, res.First())
}

// HandleUpdate applies a partial update to a project.
// PUT /api/v1/projetos/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	client, ok := clientOrError(w, r)
	if !ok {
		return
	}

	var req updateProjetoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	data := map[string]any{}
	if req.Nome != nil {
		data["nome"] = *req.Nome
	}
	if req.Descricao != nil {
		data["descricao"] = *req.Descricao
	}
	if req.Status != nil {
		data["status"] = *req.Status
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no fields to update"})
		return
	}

	id := r.PathValue("id")
	res, err := client.Do(r.Context(), database.Operation{
		Model: modelProjetos,
		Kind:  database.Update,
		Where: sq.Eq{"id": id},
		Data:  data,
	})
	if errors.Is(err, database.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Projeto não encontrado"})
		return
	}
	if err != nil {
		h.internalError(w, r, "updating project", err)
		return
	}

	h.record(r, audit.ActionProjetoUpdated, modelProjetos, map[string]any{audit.MetadataProjetoID: id})
	writeJSON(w, http.StatusOK, res.First())
}

// HandleListTeam returns the project's team.
// GET /api/v1/projetos/{id}/equipe
func (h *Handler) HandleListTeam(w http.ResponseWriter, r *http.Request) {
	client, ok := clientOrError(w, r)
	if !ok {
		return
	}

	res, err := client.Do(r.Context(), database.Operation{
		Model:   modelMembros,
		Kind:    database.FindMany,
		Where:   sq.Eq{"projeto_id": r.PathValue("id")},
		OrderBy: []string{"papel", "usuario_id"},
	})
	if err != nil {
		h.internalError(w, r, "listing team", err)
		return
	}
	writeJSON(w, http.StatusOK, rowsOrEmpty(res.Rows))
}

// HandleAddMember adds a user to the project's team.
// POST /api/v1/projetos/{id}/equipe
func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	client, ok := clientOrError(w, r)
	if !ok {
		return
	}

	var req addMembroRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// The tenant-scoped lookup keeps a foreign project id from ever being
	// written, and admins skip the membership guard that would catch it.
	id := r.PathValue("id")
	_, err := client.Do(r.Context(), database.Operation{
		Model: modelProjetos,
		Kind:  database.FindUnique,
		Where: sq.Eq{"id": id},
	})
	if errors.Is(err, database.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Projeto não encontrado"})
		return
	}
	if err != nil {
		h.internalError(w, r, "loading project", err)
		return
	}

	res, err := client.Do(r.Context(), database.Operation{
		Model: modelMembros,
		Kind:  database.Create,
		Data: map[string]any{
			"projeto_id": id,
			"usuario_id": req.UsuarioID,
			"papel":      req.Papel,
		},
	})
	if err != nil {
		h.internalError(w, r, "adding team member", err)
		return
	}

	h.record(r, audit.ActionEquipeMemberAdded, "equipe", map[string]any{
		audit.MetadataProjetoID: id,
		"usuario_id":            req.UsuarioID,
	})
	writeJSON(w, http.StatusCreated, res.First())
}

func (h *Handler) record(r *http.Request, action, resourceType string, metadata map[string]any) {
	if event, ok := audit.FromRequest(r.Context(), action, resourceType, metadata); ok {
		h.audit.Log(r.Context(), event)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, what string, err error) {
	slog.ErrorContext(r.Context(), what+" failed", "error", err, "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func clientOrError(w http.ResponseWriter, r *http.Request) (database.Client, bool) {
	client := database.ClientFromContext(r.Context())
	if client == nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "User not associated with a tenant"})
		return nil, false
	}
	return client, true
}

func rowsOrEmpty(rows []database.Row) []database.Row {
	if rows == nil {
		return []database.Row{}
	}
	return rows
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
