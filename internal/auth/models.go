// Package auth implements login, token refresh, step-up reauthentication
// and the account activity feed, plus the persistent credential session
// the transport draws bearer tokens from.
package auth

import (
	"time"

	"moviesnow/internal/api"
)

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	SessionJTI   string
}

// ReauthToken is a short-lived step-up token minted after the user
// re-confirms their password. Destructive operations attach it.
type ReauthToken struct {
	Token     string
	ExpiresAt time.Time
}

// ActivityEvent is one entry of the account's security activity feed.
type ActivityEvent struct {
	ID        string
	Kind      string
	IP        string
	UserAgent string
	Location  string
	Success   bool
	At        time.Time
}

// tokenEnvelope covers the token response shapes of login, refresh and
// reauth: expiry as an absolute timestamp or as relative seconds.
type tokenEnvelope struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ReauthToken  string        `json:"reauth_token"`
	Token        string        `json:"token"`
	ExpiresAt    api.Timestamp `json:"expires_at"`
	ExpiresIn    float64       `json:"expires_in"`
	SessionJTI   string        `json:"session_jti"`
	JTI          string        `json:"jti"`
}

// expiry resolves the two expiry spellings against now.
func (e *tokenEnvelope) expiry(now time.Time) time.Time {
	if !e.ExpiresAt.IsZero() {
		return e.ExpiresAt.Time
	}
	if e.ExpiresIn > 0 {
		return now.Add(time.Duration(e.ExpiresIn * float64(time.Second)))
	}
	return time.Time{}
}

// sessionJTI resolves the session identifier aliases.
func (e *tokenEnvelope) sessionJTI() string {
	if e.SessionJTI != "" {
		return e.SessionJTI
	}
	return e.JTI
}
