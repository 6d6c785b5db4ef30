package sessions

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"moviesnow/internal/api"
	"moviesnow/pkg/apierror"
)

// sessionRecord tolerates every field spelling the backend and its
// gateways have used for a session. Aliases are resolved in declaration
// order; the canonical name wins when both are present.
type sessionRecord struct {
	JTI       string `json:"jti"`
	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	IsCurrent *bool `json:"is_current"`
	Current   *bool `json:"current"`

	CreatedAt api.Timestamp `json:"created_at"`
	Created   api.Timestamp `json:"created"`

	LastSeenAt   api.Timestamp `json:"last_seen_at"`
	LastSeen     api.Timestamp `json:"last_seen"`
	LastActiveAt api.Timestamp `json:"last_active_at"`

	ExpiresAt api.Timestamp `json:"expires_at"`
	Expires   api.Timestamp `json:"expires"`

	IPAddress string `json:"ip_address"`
	IP        string `json:"ip"`

	UserAgent string `json:"user_agent"`
	UA        string `json:"ua"`

	Location string `json:"location"`
	Geo      string `json:"geo"`
}

// decodeSessions normalizes a sessions response. Accepted envelopes, in
// priority order: bare array; {"sessions":[...]}; {"items":[...]};
// {"data":{...}} nesting either; a single bare session object. An empty
// body is an empty list, never an error. Records without any identifier
// are dropped.
func decodeSessions(data []byte) ([]Session, api.PageInfo, error) {
	items, info, err := api.DecodeCollection(data, "sessions")
	if err != nil {
		// A single object response is a one-element list, provided it
		// looks like a session at all.
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var rec sessionRecord
			if jsonErr := json.Unmarshal(trimmed, &rec); jsonErr == nil && rec.jti() != "" {
				return []Session{rec.normalize()}, api.PageInfo{Total: 1}, nil
			}
		}
		return nil, info, apierror.Wrap(err, apierror.CodeInternal, "unrecognized sessions response")
	}

	out := make([]Session, 0, len(items))
	for _, item := range items {
		var rec sessionRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		if rec.jti() == "" {
			continue
		}
		out = append(out, rec.normalize())
	}
	sortSessions(out)
	if info.Total < 0 || info.Total < len(out) {
		info.Total = len(out)
	}
	return out, info, nil
}

func (r *sessionRecord) jti() string {
	switch {
	case r.JTI != "":
		return r.JTI
	case r.ID != "":
		return r.ID
	default:
		return r.SessionID
	}
}

func (r *sessionRecord) normalize() Session {
	s := Session{
		JTI:       r.jti(),
		IP:        firstNonEmpty(r.IPAddress, r.IP),
		UserAgent: firstNonEmpty(r.UserAgent, r.UA),
		Location:  firstNonEmpty(r.Location, r.Geo),
	}
	if r.IsCurrent != nil {
		s.Current = *r.IsCurrent
	} else if r.Current != nil {
		s.Current = *r.Current
	}
	s.CreatedAt = firstNonZero(r.CreatedAt, r.Created)
	s.LastSeenAt = firstNonZero(r.LastSeenAt, r.LastSeen, r.LastActiveAt)
	s.ExpiresAt = firstNonZero(r.ExpiresAt, r.Expires)
	s.Device = DeviceName(s.UserAgent)
	return s
}

// sortSessions orders the current session first, then by last activity,
// newest first; ties fall back to the identifier for stable output.
func sortSessions(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.Current != b.Current {
			return a.Current
		}
		if !a.LastSeenAt.Equal(b.LastSeenAt) {
			return a.LastSeenAt.After(b.LastSeenAt)
		}
		return a.JTI < b.JTI
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...api.Timestamp) time.Time {
	for _, v := range values {
		if !v.IsZero() {
			return v.Time
		}
	}
	return time.Time{}
}
