package storage

import (
	"context"
	"errors"
	"time"

	"github.com/newsletter-engine/internal/models"
)

// ErrDuplicateDelivery is returned by RecordDelivery when a log entry
// already exists for the (newsletter, local date) pair. The dispatcher
// treats it as "someone beat us to it", not as a failure.
var ErrDuplicateDelivery = errors.New("delivery already recorded for this local date")

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for data persistence. Newsletter and
// Source mutations exist for the external dashboard layer; the dispatch
// core only reads them and appends to the ledger.
type Repository interface {
	// Newsletter operations
	CreateNewsletter(ctx context.Context, n *models.Newsletter) error
	GetNewsletterByID(ctx context.Context, id uint) (*models.Newsletter, error)
	ListNewsletters(ctx context.Context, userID uint) ([]*models.Newsletter, error)
	ListDispatchable(ctx context.Context) ([]*models.Newsletter, error)
	UpdateNewsletter(ctx context.Context, n *models.Newsletter) error
	DeleteNewsletter(ctx context.Context, id uint) error
	SetPaused(ctx context.Context, id uint, paused bool) error

	// Source operations
	CreateSource(ctx context.Context, s *models.Source) error
	UpdateSource(ctx context.Context, s *models.Source) error
	DeleteSource(ctx context.Context, id uint) error
	ListSources(ctx context.Context, newsletterID uint) ([]*models.Source, error)
	ReorderSources(ctx context.Context, newsletterID uint, orderedIDs []uint) error
	MarkSourceFetched(ctx context.Context, sourceID uint, at time.Time) error

	// Delivery ledger
	HasDeliveryOn(ctx context.Context, newsletterID uint, localDate string) (bool, error)
	RecordDelivery(ctx context.Context, entry *models.DeliveryLog, issue *models.Issue) error
	ListDeliveryLog(ctx context.Context, newsletterID uint, limit int) ([]*models.DeliveryLog, error)

	// History archive
	GetHistory(ctx context.Context, newsletterID uint, limit, offset int) ([]*models.Issue, error)
	GetHistoryCount(ctx context.Context, newsletterID uint) (int64, error)
	GetIssue(ctx context.Context, newsletterID uint, issueNumber int) (*models.Issue, error)
	SearchHistory(ctx context.Context, userID uint, query string, newsletterID *uint, limit int) ([]*models.Issue, error)

	// Maintenance
	Ping(ctx context.Context) error
	Migrate() error
	Close() error
}
