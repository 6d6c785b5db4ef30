package sandbox

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds. Refresh and re-auth tokens are ordinary JWTs with a
// different "type" claim so they can't stand in for access tokens.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	tokenTypeReauth  = "reauth"
)

var errBadToken = errors.New("sandbox: invalid token")

// sandboxClaims are the JWT claims the sandbox issues and verifies.
type sandboxClaims struct {
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	TokenType string   `json:"type"`
	jwt.RegisteredClaims
}

// tokenIssuer signs and verifies HS256 tokens.
type tokenIssuer struct {
	key []byte
	now func() time.Time
}

func newTokenIssuer(signingKey string, now func() time.Time) *tokenIssuer {
	return &tokenIssuer{key: []byte(signingKey), now: now}
}

// issue mints a token of the given type, bound to the session via jti.
func (ti *tokenIssuer) issue(u *user, jti, tokenType string, ttl time.Duration) (string, error) {
	now := ti.now()
	claims := sandboxClaims{
		Email:     u.Email,
		Roles:     append([]string{}, u.Roles...),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        jti,
			Issuer:    "moviesnow-sandbox",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.key)
}

// verify parses the token, checks the signature and expiry, and requires
// the expected token type.
func (ti *tokenIssuer) verify(raw, wantType string) (*sandboxClaims, error) {
	claims := &sandboxClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadToken
		}
		return ti.key, nil
	}, jwt.WithTimeFunc(ti.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, errBadToken
	}
	if claims.TokenType != wantType {
		return nil, errBadToken
	}
	return claims, nil
}
