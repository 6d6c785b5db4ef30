// Package notifications lists the account's notification feed, derives
// page-level stats, and flips read/pinned flags with optimistic cache
// updates.
package notifications

import "time"

// Type categorizes a notification. The set is closed; anything the
// server sends outside it normalizes to TypeSystem so a new backend
// category never breaks an old client.
type Type string

const (
	TypeNewContent       Type = "new_content"
	TypeContinueWatching Type = "continue_watching"
	TypeBundleReady      Type = "bundle_ready"
	TypeAccount          Type = "account"
	TypeSecurity         Type = "security"
	TypeBilling          Type = "billing"
	TypeSystem           Type = "system"
	TypePromotion        Type = "promotion"
)

// Types lists every known category in display order.
func Types() []Type {
	return []Type{
		TypeNewContent, TypeContinueWatching, TypeBundleReady, TypeAccount,
		TypeSecurity, TypeBilling, TypeSystem, TypePromotion,
	}
}

// ParseType maps a server-provided category string onto the closed set.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeNewContent, TypeContinueWatching, TypeBundleReady, TypeAccount,
		TypeSecurity, TypeBilling, TypeSystem, TypePromotion:
		return Type(s)
	default:
		return TypeSystem
	}
}

// Priority orders notifications by urgency. Unknown values normalize to
// PriorityMedium.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority maps a server-provided priority onto the closed set.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s)
	default:
		return PriorityMedium
	}
}

// rank orders priorities for sorting, most urgent first.
func (p Priority) rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// Notification is the canonical feed entry.
type Notification struct {
	ID        string
	Type      Type
	Priority  Priority
	Title     string
	Body      string
	Read      bool
	Pinned    bool
	ActionURL string
	CreatedAt time.Time
	ReadAt    time.Time
}

// Filter narrows a notification listing. Zero values mean "no
// constraint"; Search matches title and body case-insensitively.
type Filter struct {
	UnreadOnly bool
	Type       Type
	Priority   Priority
	Search     string
}

// Stats are derived client-side from one fetched page, not from the
// whole collection the server holds.
type Stats struct {
	Total      int
	Unread     int
	Pinned     int
	ByType     map[Type]int
	ByPriority map[Priority]int
}
