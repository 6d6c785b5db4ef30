package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"moviesnow/internal/api"
)

// activityRecord tolerates the field aliases seen across backend versions
// of the activity feed.
type activityRecord struct {
	ID        string        `json:"id"`
	EventID   string        `json:"event_id"`
	Kind      string        `json:"kind"`
	Type      string        `json:"type"`
	Event     string        `json:"event"`
	IP        string        `json:"ip_address"`
	IPAlias   string        `json:"ip"`
	UserAgent string        `json:"user_agent"`
	UAAlias   string        `json:"ua"`
	Location  string        `json:"location"`
	Geo       string        `json:"geo"`
	Success   *bool         `json:"success"`
	At        api.Timestamp `json:"at"`
	CreatedAt api.Timestamp `json:"created_at"`
	Timestamp api.Timestamp `json:"timestamp"`
}

// Activity fetches the account's security activity feed: logins, refresh
// grants, revocations. Entries the payload renders unintelligibly are
// skipped, not fatal.
func (s *Service) Activity(ctx context.Context, page api.Page) ([]ActivityEvent, api.PageInfo, error) {
	var raw json.RawMessage
	req := api.NewRequest("auth.activity", http.MethodGet, "/api/v1/auth/activity", api.WithPage(page))
	if err := s.client.Do(ctx, req, &raw); err != nil {
		return nil, api.PageInfo{}, err
	}

	items, info, err := api.DecodeCollection(raw, "events", "activity")
	if err != nil {
		return nil, api.PageInfo{}, err
	}

	out := make([]ActivityEvent, 0, len(items))
	for _, item := range items {
		var rec activityRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			s.logger.DebugContext(ctx, "skipping malformed activity entry", "error", err)
			continue
		}
		event := rec.normalize()
		if event.Kind == "" && event.At.IsZero() {
			continue
		}
		out = append(out, event)
	}
	return out, info, nil
}

func (r *activityRecord) normalize() ActivityEvent {
	event := ActivityEvent{
		ID:        firstNonEmpty(r.ID, r.EventID),
		Kind:      firstNonEmpty(r.Kind, r.Type, r.Event),
		IP:        firstNonEmpty(r.IP, r.IPAlias),
		UserAgent: firstNonEmpty(r.UserAgent, r.UAAlias),
		Location:  firstNonEmpty(r.Location, r.Geo),
		Success:   true,
	}
	if r.Success != nil {
		event.Success = *r.Success
	}
	switch {
	case !r.At.IsZero():
		event.At = r.At.Time
	case !r.CreatedAt.IsZero():
		event.At = r.CreatedAt.Time
	default:
		event.At = r.Timestamp.Time
	}
	return event
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
