package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviesnow/pkg/apierror"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestParseClaimsExtractsFields(t *testing.T) {
	now := time.Now()
	token := signToken(t, jwt.MapClaims{
		"sub":         "user-1",
		"email":       "casey@example.com",
		"jti":         "session-abc",
		"roles":       []string{"admin", "uploader"},
		"permissions": []string{"bundles:write"},
		"iat":         now.Unix(),
		"exp":         now.Add(15 * time.Minute).Unix(),
	})

	claims, err := ParseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "casey@example.com", claims.Email)
	assert.Equal(t, "session-abc", claims.SessionJTI)
	assert.Equal(t, []string{"admin", "uploader"}, claims.Roles)
	assert.Equal(t, []string{"bundles:write"}, claims.Permissions)
	assert.WithinDuration(t, now.Add(15*time.Minute), claims.ExpiresAt, time.Second)
}

func TestParseClaimsSingleRoleString(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "user-1", "role": "viewer"})

	claims, err := ParseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, []string{"viewer"}, claims.Roles)
}

func TestParseClaimsScopeFallsBackToPermissions(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "user-1", "scope": "bundles:read bundles:write"})

	claims, err := ParseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, []string{"bundles:read", "bundles:write"}, claims.Permissions)
}

func TestParseClaimsMalformedToken(t *testing.T) {
	for _, token := range []string{"", "not-a-jwt", "a.b", "a.!!!.c"} {
		_, err := ParseClaims(token)
		require.Error(t, err, "token %q", token)
		assert.True(t, apierror.HasCode(err, apierror.CodeUnauthorized))
	}
}

func TestHasRoleIsCaseInsensitive(t *testing.T) {
	claims := &Claims{Roles: []string{"Admin"}}
	assert.True(t, claims.HasRole("admin"))
	assert.True(t, claims.IsAdmin())
	assert.False(t, claims.HasRole("uploader"))
}

func TestExpiredHonorsSkew(t *testing.T) {
	now := time.Now()
	claims := &Claims{ExpiresAt: now.Add(20 * time.Second)}

	assert.False(t, claims.Expired(now, 0))
	assert.True(t, claims.Expired(now, 30*time.Second), "a token inside the skew window counts as expired")

	unbounded := &Claims{}
	assert.False(t, unbounded.Expired(now, time.Hour), "no exp claim means no client-side expiry")
}
