// Package bundles manages downloadable media packages through the admin
// API: listing with filters, page-level stats, creation, updates, and
// step-up-guarded deletion.
package bundles

import "time"

// BundleType is what a bundle packages.
type BundleType string

const (
	TypeMovie   BundleType = "movie"
	TypeEpisode BundleType = "episode"
	TypeSeason  BundleType = "season"
	TypeSeries  BundleType = "series"
)

// Quality is the bundle's video quality tier.
type Quality string

const (
	Quality480p  Quality = "480p"
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
	Quality2160p Quality = "2160p"
)

// Format is the bundle's container format.
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatMKV  Format = "mkv"
	FormatWebM Format = "webm"
)

// Status is where the bundle is in its packaging pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Bundle is the canonical media package record.
type Bundle struct {
	ID        string
	Title     string
	Type      BundleType
	Quality   Quality
	Format    Format
	SizeBytes int64
	Premium   bool
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter narrows a bundle listing. Zero values mean "no constraint".
type Filter struct {
	Search      string
	Type        BundleType
	Status      Status
	PremiumOnly bool
}

// CreateParams describes a new bundle. Validated client-side before any
// network call.
type CreateParams struct {
	Title     string     `json:"title" validate:"required,min=1,max=200"`
	Type      BundleType `json:"type" validate:"required,oneof=movie episode season series"`
	Quality   Quality    `json:"quality" validate:"required,oneof=480p 720p 1080p 2160p"`
	Format    Format     `json:"format" validate:"required,oneof=mp4 mkv webm"`
	SizeBytes int64      `json:"size_bytes" validate:"omitempty,min=0"`
	Premium   bool       `json:"premium"`
}

// UpdateParams describes a partial bundle update; nil fields stay
// untouched.
type UpdateParams struct {
	Title   *string  `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Quality *Quality `json:"quality,omitempty" validate:"omitempty,oneof=480p 720p 1080p 2160p"`
	Format  *Format  `json:"format,omitempty" validate:"omitempty,oneof=mp4 mkv webm"`
	Premium *bool    `json:"premium,omitempty"`
	Status  *Status  `json:"status,omitempty" validate:"omitempty,oneof=pending processing ready failed"`
}

// Stats are derived client-side from one fetched page.
type Stats struct {
	Total        int
	TotalBytes   int64
	ByType       map[BundleType]int
	ByStatus     map[Status]int
	ReadyShare   float64
	PremiumShare float64
}
