package models

import (
	"time"
)

// Source represents one configured data feed belonging to a newsletter.
// Config is an opaque blob whose shape is owned entirely by the module
// registered under Type; the core never interprets it.
type Source struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	NewsletterID uint       `gorm:"index;not null" json:"newsletter_id"`
	Type         string     `gorm:"not null" json:"type"` // module registry key
	Name         string     `json:"name"`                 // optional display override
	Config       JSON       `gorm:"type:json" json:"config"`
	DisplayOrder int        `gorm:"not null;default:0" json:"display_order"`
	LastUpdated  *time.Time `json:"last_updated"` // most recent successful fetch
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// DisplayName returns the user-facing name for the source, falling back
// to the module title when no override is set
func (s *Source) DisplayName(moduleTitle string) string {
	if s.Name != "" {
		return s.Name
	}
	return moduleTitle
}
