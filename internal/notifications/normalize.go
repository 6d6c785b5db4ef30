package notifications

import (
	"encoding/json"
	"sort"

	"moviesnow/internal/api"
	"moviesnow/pkg/apierror"
)

// notificationRecord tolerates the field spellings the feed endpoints
// have used. Aliases resolve in declaration order.
type notificationRecord struct {
	ID             string `json:"id"`
	NotificationID string `json:"notification_id"`

	Type     string `json:"type"`
	Category string `json:"category"`

	Priority string `json:"priority"`

	Title   string `json:"title"`
	Subject string `json:"subject"`

	Body    string `json:"body"`
	Message string `json:"message"`

	Read   *bool `json:"read"`
	IsRead *bool `json:"is_read"`

	Pinned   *bool `json:"pinned"`
	IsPinned *bool `json:"is_pinned"`

	ActionURL  string `json:"action_url"`
	ActionLink string `json:"action_link"`
	Link       string `json:"link"`

	CreatedAt api.Timestamp `json:"created_at"`
	Created   api.Timestamp `json:"created"`
	ReadAt    api.Timestamp `json:"read_at"`
}

// decodeNotifications normalizes a feed response. Accepted envelopes, in
// priority order: bare array; {"notifications":[...]}; {"items":[...]};
// {"data":{...}} nesting either. Empty/204 bodies are an empty feed.
// Records without an identifier are dropped; unknown categories and
// priorities fall back to system/medium.
func decodeNotifications(data []byte) ([]Notification, api.PageInfo, error) {
	items, info, err := api.DecodeCollection(data, "notifications")
	if err != nil {
		return nil, info, apierror.Wrap(err, apierror.CodeInternal, "unrecognized notifications response")
	}

	out := make([]Notification, 0, len(items))
	for _, item := range items {
		var rec notificationRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		n := rec.normalize()
		if n.ID == "" {
			continue
		}
		out = append(out, n)
	}
	sortNotifications(out)
	if info.Total < len(out) {
		info.Total = len(out)
	}
	return out, info, nil
}

func (r *notificationRecord) normalize() Notification {
	n := Notification{
		ID:        firstNonEmpty(r.ID, r.NotificationID),
		Type:      ParseType(firstNonEmpty(r.Type, r.Category)),
		Priority:  ParsePriority(r.Priority),
		Title:     firstNonEmpty(r.Title, r.Subject),
		Body:      firstNonEmpty(r.Body, r.Message),
		ActionURL: firstNonEmpty(r.ActionURL, r.ActionLink, r.Link),
		ReadAt:    r.ReadAt.Time,
	}
	if r.Read != nil {
		n.Read = *r.Read
	} else if r.IsRead != nil {
		n.Read = *r.IsRead
	} else if !r.ReadAt.IsZero() {
		n.Read = true
	}
	if r.Pinned != nil {
		n.Pinned = *r.Pinned
	} else if r.IsPinned != nil {
		n.Pinned = *r.IsPinned
	}
	if !r.CreatedAt.IsZero() {
		n.CreatedAt = r.CreatedAt.Time
	} else {
		n.CreatedAt = r.Created.Time
	}
	return n
}

// sortNotifications orders pinned entries first, then by priority, then
// newest first; ties fall back to the identifier for stable output.
func sortNotifications(items []Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() < b.Priority.rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
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
