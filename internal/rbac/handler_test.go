package rbac_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ness-ot/ot2net/internal/auth"
	"github.com/ness-ot/ot2net/internal/rbac"
)

func TestHandleMyPermissions(t *testing.T) {
	h := rbac.NewHandler(rbac.NewEvaluator(rbac.DefaultMatrix()), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/permissions", nil)
	req = setIdentity(req, &auth.Identity{UserID: "u1", Role: "CLIENTE", TenantID: "t1"})
	w := httptest.NewRecorder()

	h.HandleMyPermissions(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Role    string `json:"role"`
		IsAdmin bool   `json:"is_admin"`
		Grants  []struct {
			Resource      string `json:"resource"`
			Action        string `json:"action"`
			ResourceLabel string `json:"resource_label"`
			ActionLabel   string `json:"action_label"`
		} `json:"grants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CLIENTE", body.Role)
	assert.False(t, body.IsAdmin)
	require.Len(t, body.Grants, 6)
	assert.Equal(t, "localidades", body.Grants[0].Resource)
	assert.Equal(t, "visualizar", body.Grants[0].ActionLabel)
}

func TestHandleMyPermissions_NoIdentity(t *testing.T) {
	h := rbac.NewHandler(rbac.NewEvaluator(rbac.DefaultMatrix()), nil)

	w := httptest.NewRecorder()
	h.HandleMyPermissions(w, httptest.NewRequest(http.MethodGet, "/api/v1/me/permissions", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleMatrix(t *testing.T) {
	labels, err := rbac.NewLabels("en")
	require.NoError(t, err)
	h := rbac.NewHandler(rbac.NewEvaluator(rbac.DefaultMatrix()), labels)

	w := httptest.NewRecorder()
	h.HandleMatrix(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/matrix", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Locale string                      `json:"locale"`
		Roles  map[string][]map[string]any `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "en", body.Locale)
	assert.Len(t, body.Roles, len(rbac.Roles()))
	require.Len(t, body.Roles["ADMIN"], 1)
	assert.Equal(t, "*", body.Roles["ADMIN"][0]["resource"])
	assert.Equal(t, "reports", body.Roles["VISUALIZADOR"][0]["resource_label"])
}
