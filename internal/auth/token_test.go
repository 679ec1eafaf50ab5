package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ness-ot/ot2net/internal/auth"
)

func TestTokenService_CreateAndVerify(t *testing.T) {
	svc := newTestTokenService()

	identity := &auth.Identity{
		UserID:    "user-123",
		Email:     "gestor@cliente.com.br",
		Role:      "GESTOR",
		TenantID:  "tenant-456",
		ClienteID: "cliente-9",
	}

	token, err := svc.CreateAccessToken(identity)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	got, err := svc.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, identity, got)
}

func TestTokenService_DefaultsRole(t *testing.T) {
	svc := newTestTokenService()

	token, err := svc.CreateAccessToken(&auth.Identity{UserID: "user-123", TenantID: "t1"})
	require.NoError(t, err)

	got, err := svc.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultRole, got.Role)
}

func TestTokenService_ConfiguredDefaultRole(t *testing.T) {
	svc := auth.NewTokenService(testSigningKey, "ot2net", time.Hour, "AUDITOR")

	token, err := svc.CreateAccessToken(&auth.Identity{UserID: "user-123"})
	require.NoError(t, err)

	got, err := svc.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "AUDITOR", got.Role)
}

func TestTokenService_ExpiredToken(t *testing.T) {
	svc := auth.NewTokenService(testSigningKey, "ot2net", -time.Minute, "")

	token, err := svc.CreateAccessToken(&auth.Identity{UserID: "user-123", Role: "ADMIN"})
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenService_WrongKey(t *testing.T) {
	other := auth.NewTokenService("another-signing-key-32-chars-long!!", "ot2net", time.Hour, "")
	token, err := other.CreateAccessToken(&auth.Identity{UserID: "user-123", Role: "ADMIN"})
	require.NoError(t, err)

	_, err = newTestTokenService().Verify(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenService_WrongIssuer(t *testing.T) {
	other := auth.NewTokenService(testSigningKey, "someone-else", time.Hour, "")
	token, err := other.CreateAccessToken(&auth.Identity{UserID: "user-123", Role: "ADMIN"})
	require.NoError(t, err)

	_, err = newTestTokenService().Verify(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenService_RejectsMissingSubject(t *testing.T) {
	svc := newTestTokenService()

	token, err := svc.CreateAccessToken(&auth.Identity{Role: "ADMIN"})
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenService_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  "user-123",
		"iss":  "ot2net",
		"role": "ADMIN",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestTokenService().Verify(context.Background(), signed)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}
