// Package sessions lists and revokes the account's device sessions.
package sessions

import (
	"time"
)

// Session is the canonical device session record. JSON output uses
// RFC 3339 timestamps regardless of how the server spelled them.
type Session struct {
	JTI        string    `json:"jti"`
	Current    bool      `json:"is_current"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	LastSeenAt time.Time `json:"last_seen_at,omitzero"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
	IP         string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Device     string    `json:"device"`
	Location   string    `json:"location,omitempty"`
}

// RevokeOutcome reports a bulk revocation. Partial failure is an outcome,
// not an error: some sessions gone is better than none.
type RevokeOutcome struct {
	RevokedCount int
	FailedCount  int
}
