package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", 1)
	tok, err := m.GenerateToken("acme", "ops@acme.test")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "ops@acme.test", claims.Subject)
}

func TestJWT_WrongSecretRejected(t *testing.T) {
	tok, err := NewJWTManager("secret", 1).GenerateToken("acme", "")
	require.NoError(t, err)
	_, err = NewJWTManager("other", 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestJWT_ExpiredRejected(t *testing.T) {
	m := NewJWTManager("secret", 1)
	claims := CustomClaims{
		TenantID: "acme",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = m.VerifyToken(tok)
	assert.Error(t, err)
}

func TestJWT_MissingTenantRejected(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = NewJWTManager("secret", 1).VerifyToken(tok)
	assert.ErrorContains(t, err, "tenantId")
}
