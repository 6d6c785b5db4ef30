// Package rbac manages roles and permissions through the admin API.
// Role icons are a closed enum with an explicit glyph table; colors are
// validated hex tokens.
package rbac

import (
	"sort"

	"moviesnow/internal/theme"
)

// Icon is a role's display icon. The set is closed: unknown icon names
// parse to IconShield rather than failing or looking anything up
// dynamically.
type Icon string

const (
	IconShield Icon = "shield"
	IconCrown  Icon = "crown"
	IconStar   Icon = "star"
	IconWrench Icon = "wrench"
	IconEye    Icon = "eye"
	IconFilm   Icon = "film"
	IconUpload Icon = "upload"
	IconUsers  Icon = "users"
)

// iconGlyphs is the explicit enum-to-glyph table the console renders
// from.
var iconGlyphs = map[Icon]string{
	IconShield: "🛡",
	IconCrown:  "👑",
	IconStar:   "★",
	IconWrench: "🔧",
	IconEye:    "👁",
	IconFilm:   "🎬",
	IconUpload: "⇪",
	IconUsers:  "👥",
}

// ParseIcon maps a server-provided icon name onto the closed set.
func ParseIcon(s string) Icon {
	icon := Icon(s)
	if _, ok := iconGlyphs[icon]; ok {
		return icon
	}
	return IconShield
}

// Glyph returns the terminal glyph for the icon.
func (i Icon) Glyph() string {
	if g, ok := iconGlyphs[i]; ok {
		return g
	}
	return iconGlyphs[IconShield]
}

// DefaultColor is assigned to roles created without an explicit color.
const DefaultColor = theme.Color("#3b82f6")

// Permission grants one action on one resource.
type Permission struct {
	Resource string
	Action   string
	Category string
}

// Key renders the canonical "resource:action" form.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

// Role is a named permission set.
type Role struct {
	ID          string
	Name        string
	Color       theme.Color
	Icon        Icon
	System      bool
	Permissions []Permission
}

// CreateParams describes a new role.
type CreateParams struct {
	Name        string   `json:"name" validate:"required,min=2,max=50"`
	Color       string   `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Icon        string   `json:"icon,omitempty"`
	Permissions []string `json:"permissions,omitempty" validate:"dive,required"`
}

// UpdateParams describes a partial role update; nil fields stay
// untouched.
type UpdateParams struct {
	Name        *string   `json:"name,omitempty" validate:"omitempty,min=2,max=50"`
	Color       *string   `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Icon        *string   `json:"icon,omitempty"`
	Permissions *[]string `json:"permissions,omitempty"`
}

// GroupPermissions buckets permissions by category, categories and
// members both sorted for stable display.
func GroupPermissions(perms []Permission) map[string][]Permission {
	groups := make(map[string][]Permission)
	for _, p := range perms {
		category := p.Category
		if category == "" {
			category = "general"
		}
		groups[category] = append(groups[category], p)
	}
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i].Key() < members[j].Key() })
	}
	return groups
}
