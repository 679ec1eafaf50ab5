package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-playground/validator/v10"
)

// FirebaseIssuer returns the OIDC issuer for Firebase ID tokens of a project.
func FirebaseIssuer(projectID string) string {
	return "https://securetoken.google.com/" + projectID
}

// OIDCVerifier verifies ID tokens issued by an OIDC provider (Firebase in
// production) and maps their custom claims onto an Identity.
type OIDCVerifier struct {
	verifier    *oidc.IDTokenVerifier
	defaultRole string
	validate    *validator.Validate
}

// NewOIDCVerifier discovers the provider at issuerURL.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID, defaultRole string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC provider: %w", err)
	}
	return newOIDCVerifier(provider.Verifier(&oidc.Config{ClientID: clientID}), defaultRole), nil
}

// NewOIDCVerifierWithKeySet builds a verifier against a fixed key set,
// skipping discovery.
func NewOIDCVerifierWithKeySet(issuerURL, clientID string, keySet oidc.KeySet, defaultRole string) *OIDCVerifier {
	return newOIDCVerifier(oidc.NewVerifier(issuerURL, keySet, &oidc.Config{ClientID: clientID}), defaultRole)
}

func newOIDCVerifier(v *oidc.IDTokenVerifier, defaultRole string) *OIDCVerifier {
	if defaultRole == "" {
		defaultRole = DefaultRole
	}
	return &OIDCVerifier{verifier: v, defaultRole: defaultRole, validate: validator.New()}
}

// Verify implements Verifier.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	var c struct {
		Email     string `json:"email"`
		Role      string `json:"role"`
		TenantID  string `json:"tenant_id"`
		ClienteID string `json:"cliente_id"`
	}
	if err := token.Claims(&c); err != nil {
		return nil, fmt.Errorf("%w: decoding claims: %v", ErrTokenInvalid, err)
	}

	identity := &Identity{
		UserID:    token.Subject,
		Email:     c.Email,
		Role:      c.Role,
		TenantID:  c.TenantID,
		ClienteID: c.ClienteID,
	}
	if identity.Role == "" {
		identity.Role = v.defaultRole
	}
	if err := v.validate.Struct(identity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return identity, nil
}
