package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ness-ot/ot2net/internal/platform/database"
)

// Handler serves audit query endpoints.
type Handler struct{}

// NewHandler creates an audit query handler.
func NewHandler() *Handler {
	return &Handler{}
}

// HandleListEvents returns audit events for the current tenant.
// GET /api/v1/audit/events?limit=50&after=<timestamp>&action=<action>
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	client := database.ClientFromContext(r.Context())
	if client == nil {
		writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	q := r.URL.Query()
	p := ListEventsParams{Limit: 50}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			p.Limit = n
		}
	}
	if raw := q.Get("after"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			p.After = &t
		}
	}
	if raw := q.Get("action"); raw != "" {
		p.Action = &raw
	}
	if raw := q.Get("resource_type"); raw != "" {
		p.ResourceType = &raw
	}

	rows, err := List(r.Context(), client, p)
	if err != nil {
		writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	events := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		e := map[string]any(row)
		if raw, ok := row["metadata"].(string); ok && json.Valid([]byte(raw)) {
			e["metadata"] = json.RawMessage(raw)
		}
		events = append(events, e)
	}

	writeAuditJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func writeAuditJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
