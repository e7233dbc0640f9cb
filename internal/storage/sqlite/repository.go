package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" && !strings.HasPrefix(dsn, ":memory:") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Newsletter{},
		&models.Source{},
		&models.DeliveryLog{},
		&models.Issue{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Newsletter operations

func (r *Repository) CreateNewsletter(ctx context.Context, n *models.Newsletter) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *Repository) GetNewsletterByID(ctx context.Context, id uint) (*models.Newsletter, error) {
	var n models.Newsletter
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &n, nil
}

func (r *Repository) ListNewsletters(ctx context.Context, userID uint) ([]*models.Newsletter, error) {
	var newsletters []*models.Newsletter
	query := r.db.WithContext(ctx).Order("id")
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Find(&newsletters).Error; err != nil {
		return nil, err
	}
	return newsletters, nil
}

// ListDispatchable returns all non-paused newsletters
func (r *Repository) ListDispatchable(ctx context.Context) ([]*models.Newsletter, error) {
	var newsletters []*models.Newsletter
	if err := r.db.WithContext(ctx).
		Where("is_paused = ?", false).
		Order("id").
		Find(&newsletters).Error; err != nil {
		return nil, err
	}
	return newsletters, nil
}

func (r *Repository) UpdateNewsletter(ctx context.Context, n *models.Newsletter) error {
	return r.db.WithContext(ctx).Save(n).Error
}

// DeleteNewsletter removes a newsletter and cascades to its sources,
// delivery log, and archived issues
func (r *Repository) DeleteNewsletter(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("newsletter_id = ?", id).Delete(&models.Source{}).Error; err != nil {
			return err
		}
		if err := tx.Where("newsletter_id = ?", id).Delete(&models.DeliveryLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("newsletter_id = ?", id).Delete(&models.Issue{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Newsletter{}, id).Error
	})
}

func (r *Repository) SetPaused(ctx context.Context, id uint, paused bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Newsletter{}).
		Where("id = ?", id).
		Update("is_paused", paused).Error
}

// Source operations

// CreateSource appends the source at the end of the newsletter's display order
func (r *Repository) CreateSource(ctx context.Context, s *models.Source) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxOrder int
		if err := tx.Model(&models.Source{}).
			Where("newsletter_id = ?", s.NewsletterID).
			Select("COALESCE(MAX(display_order), -1)").
			Scan(&maxOrder).Error; err != nil {
			return err
		}
		s.DisplayOrder = maxOrder + 1
		return tx.Create(s).Error
	})
}

func (r *Repository) UpdateSource(ctx context.Context, s *models.Source) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// DeleteSource removes a source and closes the display-order gap it leaves
func (r *Repository) DeleteSource(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var src models.Source
		if err := tx.First(&src, id).Error; err != nil {
			return wrapErr(err)
		}
		if err := tx.Delete(&models.Source{}, id).Error; err != nil {
			return err
		}
		return tx.Model(&models.Source{}).
			Where("newsletter_id = ? AND display_order > ?", src.NewsletterID, src.DisplayOrder).
			UpdateColumn("display_order", gorm.Expr("display_order - 1")).Error
	})
}

// ListSources returns a newsletter's sources in display order
func (r *Repository) ListSources(ctx context.Context, newsletterID uint) ([]*models.Source, error) {
	var sources []*models.Source
	if err := r.db.WithContext(ctx).
		Where("newsletter_id = ?", newsletterID).
		Order("display_order").
		Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// ReorderSources rewrites display order to match orderedIDs, which must
// contain exactly the newsletter's source IDs
func (r *Repository) ReorderSources(ctx context.Context, newsletterID uint, orderedIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Source{}).
			Where("newsletter_id = ?", newsletterID).
			Count(&count).Error; err != nil {
			return err
		}
		if int(count) != len(orderedIDs) {
			return fmt.Errorf("reorder expects %d source ids, got %d", count, len(orderedIDs))
		}
		for i, id := range orderedIDs {
			res := tx.Model(&models.Source{}).
				Where("id = ? AND newsletter_id = ?", id, newsletterID).
				UpdateColumn("display_order", i)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("source %d does not belong to newsletter %d", id, newsletterID)
			}
		}
		return nil
	})
}

func (r *Repository) MarkSourceFetched(ctx context.Context, sourceID uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Source{}).
		Where("id = ?", sourceID).
		Update("last_updated", at).Error
}

// Delivery ledger

func (r *Repository) HasDeliveryOn(ctx context.Context, newsletterID uint, localDate string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.DeliveryLog{}).
		Where("newsletter_id = ? AND local_date = ?", newsletterID, localDate).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordDelivery writes the log entry and the archived issue atomically,
// assigning the next issue number inside the transaction. The unique
// index on (newsletter_id, local_date) is the at-most-once guarantee: a
// concurrent duplicate surfaces as ErrDuplicateDelivery and nothing is
// written.
func (r *Repository) RecordDelivery(ctx context.Context, entry *models.DeliveryLog, issue *models.Issue) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		var maxIssue int
		if err := tx.Model(&models.Issue{}).
			Where("newsletter_id = ?", issue.NewsletterID).
			Select("COALESCE(MAX(issue_number), 0)").
			Scan(&maxIssue).Error; err != nil {
			return err
		}
		issue.IssueNumber = maxIssue + 1

		return tx.Create(issue).Error
	})
	if err != nil && isUniqueViolation(err) {
		return storage.ErrDuplicateDelivery
	}
	return err
}

func (r *Repository) ListDeliveryLog(ctx context.Context, newsletterID uint, limit int) ([]*models.DeliveryLog, error) {
	var entries []*models.DeliveryLog
	query := r.db.WithContext(ctx).
		Where("newsletter_id = ?", newsletterID).
		Order("sent_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// History archive

func (r *Repository) GetHistory(ctx context.Context, newsletterID uint, limit, offset int) ([]*models.Issue, error) {
	var issues []*models.Issue
	query := r.db.WithContext(ctx).
		Where("newsletter_id = ?", newsletterID).
		Order("issue_number DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&issues).Error; err != nil {
		return nil, err
	}
	return issues, nil
}

func (r *Repository) GetHistoryCount(ctx context.Context, newsletterID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Issue{}).
		Where("newsletter_id = ?", newsletterID).
		Count(&count).Error
	return count, err
}

func (r *Repository) GetIssue(ctx context.Context, newsletterID uint, issueNumber int) (*models.Issue, error) {
	var issue models.Issue
	if err := r.db.WithContext(ctx).
		Where("newsletter_id = ? AND issue_number = ?", newsletterID, issueNumber).
		First(&issue).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &issue, nil
}

// SearchHistory matches archived content for one owner's newsletters,
// optionally narrowed to a single newsletter
func (r *Repository) SearchHistory(ctx context.Context, userID uint, query string, newsletterID *uint, limit int) ([]*models.Issue, error) {
	var issues []*models.Issue
	q := r.db.WithContext(ctx).
		Model(&models.Issue{}).
		Joins("JOIN newsletters ON newsletters.id = issues.newsletter_id").
		Where("newsletters.user_id = ?", userID).
		Where("issues.content LIKE ?", "%"+query+"%").
		Order("issues.sent_at DESC")
	if newsletterID != nil {
		q = q.Where("issues.newsletter_id = ?", *newsletterID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&issues).Error; err != nil {
		return nil, err
	}
	return issues, nil
}

func wrapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ storage.Repository = (*Repository)(nil)
