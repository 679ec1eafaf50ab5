package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ness-ot/ot2net/internal/auth"
	"github.com/ness-ot/ot2net/internal/platform/database"
	"github.com/ness-ot/ot2net/internal/platform/middleware"
)

type nopClient struct{}

func (nopClient) Do(context.Context, database.Operation) (*database.Result, error) {
	return &database.Result{}, nil
}

func withIdentity(r *http.Request, identity *auth.Identity) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), identity))
}

func TestTenantContext_SetsContextValue(t *testing.T) {
	var gotTenantID string
	handler := middleware.TenantContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenantID = middleware.GetTenantID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), &auth.Identity{
		UserID:   "user-123",
		Role:     "CONSULTOR",
		TenantID: "tenant-456",
	})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-456", gotTenantID)
}

func TestTenantContext_NoIdentity(t *testing.T) {
	called := false
	handler := middleware.TenantContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Empty(t, middleware.GetTenantID(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, called)
}

func TestTenantContext_RejectsIdentityWithoutTenant(t *testing.T) {
	handler := middleware.TenantContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), &auth.Identity{
		UserID: "user-123",
		Role:   "CONSULTOR",
	})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "User not associated with a tenant", body["error"])
	assert.Equal(t, "Contact administrator to assign tenant", body["hint"])
}

func TestDataClient_AttachesScopedClient(t *testing.T) {
	var got database.Client
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = database.ClientFromContext(r.Context())
	})
	handler := middleware.TenantContext(middleware.DataClient(nopClient{})(inner))

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), &auth.Identity{
		UserID:   "user-123",
		Role:     "CONSULTOR",
		TenantID: "tenant-456",
	})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	scoped, ok := got.(*database.TenantClient)
	require.True(t, ok, "expected a tenant-scoped client, got %T", got)
	assert.Equal(t, "tenant-456", scoped.TenantID())
}

func TestDataClient_NoTenantNoClient(t *testing.T) {
	var got database.Client
	handler := middleware.DataClient(nopClient{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = database.ClientFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Nil(t, got)
}
