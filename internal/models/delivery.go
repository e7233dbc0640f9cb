package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// DeliveryStatus represents the terminal outcome of one dispatch attempt
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryLog is one append-only record per dispatch attempt per newsletter.
// The (newsletter_id, local_date) unique index is the at-most-once-per-day
// guarantee: a second dispatch on the same local calendar day cannot insert.
type DeliveryLog struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	NewsletterID uint           `gorm:"uniqueIndex:idx_delivery_day;not null" json:"newsletter_id"`
	LocalDate    string         `gorm:"uniqueIndex:idx_delivery_day;not null" json:"local_date"` // YYYY-MM-DD in the newsletter's zone
	SentAt       time.Time      `gorm:"not null" json:"sent_at"`
	Status       DeliveryStatus `gorm:"not null" json:"status"`
	ErrorMessage string         `json:"error_message"`
}

// SourceSnapshot is the archived form of one source's contribution to an issue
type SourceSnapshot struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Data        []Row  `json:"data"`
	LastUpdated string `json:"last_updated"`
}

// SnapshotList stores the per-issue source snapshots as a JSON column
type SnapshotList []SourceSnapshot

func (l SnapshotList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *SnapshotList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	return json.Unmarshal(asBytes(value), l)
}

// Issue is one archived rendering of a newsletter. Issues are immutable
// once written; IssueNumber starts at 1 and is gapless per newsletter.
// Failed sends are archived too, carrying the error message.
type Issue struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	NewsletterID uint           `gorm:"uniqueIndex:idx_issue_number;not null" json:"newsletter_id"`
	IssueNumber  int            `gorm:"uniqueIndex:idx_issue_number;not null" json:"issue_number"`
	Content      string         `gorm:"type:text" json:"content"`
	SourcesData  SnapshotList   `gorm:"type:json" json:"sources_data"`
	SentAt       time.Time      `gorm:"not null" json:"sent_at"`
	EmailStatus  DeliveryStatus `gorm:"not null" json:"email_status"`
	ErrorMessage string         `json:"error_message"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
