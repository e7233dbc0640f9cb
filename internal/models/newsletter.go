package models

import (
	"time"
)

// Frequency represents how often a newsletter is sent
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// Newsletter represents a user-configured periodic digest.
// The schedule fields are frequency-specific: DaysOfWeek applies only to
// weekly newsletters, DayOfMonth to monthly and quarterly, Months to
// quarterly. Inapplicable fields are ignored, never cleared.
type Newsletter struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	UserID     uint        `gorm:"index;not null" json:"user_id"`
	Title      string      `gorm:"not null" json:"title"`
	Timezone   string      `gorm:"not null;default:'UTC'" json:"timezone"`  // IANA zone name
	SendTime   string      `gorm:"not null;default:'08:00'" json:"send_time"` // local "HH:MM", 24h
	Frequency  Frequency   `gorm:"not null;default:'daily'" json:"frequency"`
	DaysOfWeek IntSlice    `gorm:"type:json" json:"days_of_week"` // 1-7, Monday=1
	DayOfMonth int         `gorm:"default:1" json:"day_of_month"` // 1-31, clamped to month length
	Months     IntSlice    `gorm:"type:json" json:"months"`       // 1-12
	Recipients StringSlice `gorm:"type:json" json:"recipients"`
	IsPaused   bool        `gorm:"default:false" json:"is_paused"`
	CreatedAt  time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}
