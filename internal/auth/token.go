package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

// claims mirrors the Supabase access token layout with the custom
// role/tenant claims the consulting platform adds.
type claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	ClienteID string `json:"cliente_id,omitempty"`
}

// TokenService issues and verifies HS256 access tokens.
type TokenService struct {
	signingKey  []byte
	issuer      string
	expiry      time.Duration
	defaultRole string
	validate    *validator.Validate
}

// NewTokenService creates a TokenService. An empty defaultRole falls back to
// DefaultRole.
func NewTokenService(signingKey, issuer string, expiry time.Duration, defaultRole string) *TokenService {
	if defaultRole == "" {
		defaultRole = DefaultRole
	}
	return &TokenService{
		signingKey:  []byte(signingKey),
		issuer:      issuer,
		expiry:      expiry,
		defaultRole: defaultRole,
		validate:    validator.New(),
	}
}

// CreateAccessToken signs a token for identity. Used by tests and the dev CLI.
func (s *TokenService) CreateAccessToken(identity *Identity) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		Email:     identity.Email,
		Role:      identity.Role,
		TenantID:  identity.TenantID,
		ClienteID: identity.ClienteID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(s.signingKey)
}

// Verify implements Verifier.
func (s *TokenService) Verify(_ context.Context, tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	identity := &Identity{
		UserID:    c.Subject,
		Email:     c.Email,
		Role:      c.Role,
		TenantID:  c.TenantID,
		ClienteID: c.ClienteID,
	}
	if identity.Role == "" {
		identity.Role = s.defaultRole
	}
	if err := s.validate.Struct(identity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return identity, nil
}
