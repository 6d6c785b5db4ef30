package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"moviesnow/pkg/apierror"
)

// Claims is the client-relevant subset of the access token payload.
// Parsing is unverified: signature validation is the server's job, the
// client only reads claims for expiry scheduling and role gating.
type Claims struct {
	Subject     string
	Email       string
	Roles       []string
	Permissions []string
	SessionJTI  string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// ParseClaims decodes the claims of a JWT access token without verifying
// its signature. Malformed tokens return an error, never panic.
func ParseClaims(token string) (*Claims, error) {
	if token == "" {
		return nil, apierror.New(apierror.CodeUnauthorized, "no access token")
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, apierror.Wrap(err, apierror.CodeUnauthorized, "malformed access token")
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierror.New(apierror.CodeUnauthorized, "unexpected token claims")
	}

	c := &Claims{
		Subject:     stringClaim(mapClaims, "sub"),
		Email:       stringClaim(mapClaims, "email"),
		SessionJTI:  stringClaim(mapClaims, "jti"),
		Roles:       stringsClaim(mapClaims, "roles", "role"),
		Permissions: stringsClaim(mapClaims, "permissions", "perms"),
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	// OAuth-style space-separated scope strings double as permissions.
	if len(c.Permissions) == 0 {
		if scope := stringClaim(mapClaims, "scope"); scope != "" {
			c.Permissions = strings.Fields(scope)
		}
	}
	return c, nil
}

// HasRole reports whether the token carries the role, case-insensitively.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the token grants the admin surface.
func (c *Claims) IsAdmin() bool {
	return c.HasRole("admin") || c.HasRole("superadmin")
}

// Expired reports whether the token expiry has passed at the given time,
// minus a safety skew so a token about to lapse counts as expired.
func (c *Claims) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(c.ExpiresAt)
}

func stringClaim(m jwt.MapClaims, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// stringsClaim reads a claim that may be a JSON array or a single string,
// trying each key in order.
func stringsClaim(m jwt.MapClaims, keys ...string) []string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			if v != "" {
				return []string{v}
			}
		}
	}
	return nil
}
