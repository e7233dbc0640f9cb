// Package rss implements the generic feed module backed by gofeed.
package rss

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/internal/source"
	"github.com/newsletter-engine/pkg/logger"
	"github.com/newsletter-engine/pkg/ratelimit"
)

const (
	defaultLimit = 5
	maxLimit     = 25
)

// Register adds the rss module to the registry
func Register(r *source.Registry) {
	r.Register("rss", func(cfg models.JSON, deps source.Deps) source.Module {
		return New(cfg, deps)
	})
}

// Module fetches the latest items of one feed
type Module struct {
	cfg    models.JSON
	deps   source.Deps
	parser *gofeed.Parser
	log    *logger.Logger
}

// New creates an RSS module
func New(cfg models.JSON, deps source.Deps) *Module {
	return &Module{
		cfg:    cfg,
		deps:   deps,
		parser: gofeed.NewParser(),
		log:    deps.Log.WithModule("rss", cfg.GetString("feed_url")),
	}
}

// Type returns the registry key
func (m *Module) Type() string {
	return "rss"
}

// Title returns the display title
func (m *Module) Title() string {
	return "Feed"
}

// ConfigFields describes the module's config schema
func (m *Module) ConfigFields() []source.Field {
	limitMin, limitMax := 1.0, float64(maxLimit)
	return []source.Field{
		{Name: "feed_url", Type: source.FieldString, Label: "Feed URL", Required: true},
		{Name: "limit", Type: source.FieldInt, Label: "Item count", Default: defaultLimit, Min: &limitMin, Max: &limitMax},
	}
}

// ValidateConfig checks the feed URL format and item count
func (m *Module) ValidateConfig(cfg models.JSON) error {
	feedURL := cfg.GetString("feed_url")
	if feedURL == "" {
		return fmt.Errorf("feed_url is required")
	}
	if !strings.HasPrefix(feedURL, "http://") && !strings.HasPrefix(feedURL, "https://") {
		return fmt.Errorf("feed_url must start with http:// or https://")
	}
	if cfg.Has("limit") {
		if n := cfg.GetInt("limit"); n < 1 || n > maxLimit {
			return fmt.Errorf("limit %d out of range 1-%d", n, maxLimit)
		}
	}
	return nil
}

// Fetch retrieves the latest feed items, degrading internally on failure
func (m *Module) Fetch(ctx context.Context) []models.Row {
	rows, err := m.fetch(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Feed fetch failed")
		return source.Unavailable(m.Title())
	}
	return rows
}

func (m *Module) fetch(ctx context.Context) ([]models.Row, error) {
	if err := m.deps.Limiter.Wait(ctx, ratelimit.LimiterRSS); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	feed, err := m.parser.ParseURLWithContext(m.cfg.GetString("feed_url"), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	if len(feed.Items) == 0 {
		return nil, fmt.Errorf("feed has no items")
	}

	limit := m.cfg.GetInt("limit")
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	if limit > len(feed.Items) {
		limit = len(feed.Items)
	}

	rows := make([]models.Row, 0, limit)
	for _, item := range feed.Items[:limit] {
		ts := ""
		if item.PublishedParsed != nil {
			ts = item.PublishedParsed.Format("Jan 2")
		}
		rows = append(rows, models.Row{
			Label:     feed.Title,
			Value:     strings.TrimSpace(item.Title),
			Timestamp: ts,
		})
	}
	return rows, nil
}

var _ source.Module = (*Module)(nil)
