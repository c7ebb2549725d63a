package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/oh-my-collab/performance-service/internal/auth"
)

var testConfig = auth.Config{Secret: "test-secret", Issuer: "collab.identity"}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	return signed
}

func TestParseValidToken(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	token := signToken(t, jwt.MapClaims{
		"sub":    "member-1",
		"iss":    testConfig.Issuer,
		"exp":    expiry.Unix(),
		"scopes": []string{auth.ScopePerformanceRead, auth.ScopePerformanceWrite},
	})

	claims, err := auth.Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "member-1", claims.Subject)
	require.True(t, claims.HasScope(auth.ScopePerformanceRead))
	require.True(t, claims.HasScope(auth.ScopePerformanceWrite))
	require.False(t, claims.HasScope("admin"))
	require.WithinDuration(t, expiry, claims.ExpiresAt, time.Second)
}

func TestParseRejectsTokenWithoutExpiry(t *testing.T) {
	// A correctly signed token with no exp claim must fail validation
	// instead of crashing the request.
	token := signToken(t, jwt.MapClaims{
		"sub":    "member-1",
		"iss":    testConfig.Issuer,
		"scopes": []string{auth.ScopePerformanceRead},
	})

	claims, err := auth.Parse(token, testConfig)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
	require.Nil(t, claims)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": "member-1",
		"iss": testConfig.Issuer,
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	_, err := auth.Parse(token, testConfig)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": "member-1",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := auth.Parse(token, testConfig)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseRejectsMissingSubject(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"iss": testConfig.Issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := auth.Parse(token, testConfig)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseRejectsEmptyToken(t *testing.T) {
	_, err := auth.Parse("   ", testConfig)
	require.ErrorIs(t, err, auth.ErrMissingToken)
}
