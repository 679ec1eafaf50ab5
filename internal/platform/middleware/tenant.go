package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ness-ot/ot2net/internal/auth"
	"github.com/ness-ot/ot2net/internal/platform/database"
)

type tenantContextKey struct{}

// TenantContext extracts the tenant ID from the authenticated identity and
// sets it in the request context. An authenticated caller without a tenant
// is rejected with 403. Requests without an identity pass through.
func TenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.GetIdentity(r.Context())
		if identity == nil {
			next.ServeHTTP(w, r)
			return
		}

		if identity.TenantID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "User not associated with a tenant",
				"hint":  "Contact administrator to assign tenant",
			})
			return
		}

		ctx := context.WithValue(r.Context(), tenantContextKey{}, identity.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTenantID retrieves the tenant ID from the request context.
func GetTenantID(ctx context.Context) string {
	if id, ok := ctx.Value(tenantContextKey{}).(string); ok {
		return id
	}
	return ""
}

// DataClient attaches a client scoped to the request's tenant. It must run
// after TenantContext; requests without a tenant get no client.
func DataClient(raw database.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := GetTenantID(r.Context())
			if tenantID == "" {
				next.ServeHTTP(w, r)
				return
			}
			scoped := database.ApplyTenantIsolation(raw, tenantID)
			next.ServeHTTP(w, r.WithContext(database.WithClient(r.Context(), scoped)))
		})
	}
}
