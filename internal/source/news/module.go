// Package news implements the NewsAPI top-headlines module.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/internal/source"
	"github.com/newsletter-engine/pkg/logger"
	"github.com/newsletter-engine/pkg/ratelimit"
)

const (
	baseURL      = "https://newsapi.org/v2"
	defaultLimit = 5
	maxLimit     = 20
)

var categories = []string{"business", "entertainment", "general", "health", "science", "sports", "technology"}

// Register adds the news module to the registry
func Register(r *source.Registry) {
	r.Register("news", func(cfg models.JSON, deps source.Deps) source.Module {
		return New(cfg, deps)
	})
}

// Module fetches top headlines for a country/category pair
type Module struct {
	cfg  models.JSON
	deps source.Deps
	log  *logger.Logger
}

// New creates a news module
func New(cfg models.JSON, deps source.Deps) *Module {
	return &Module{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.WithModule("news", cfg.GetString("category")),
	}
}

// Type returns the registry key
func (m *Module) Type() string {
	return "news"
}

// Title returns the display title, including the category when set
func (m *Module) Title() string {
	if cat := m.cfg.GetString("category"); cat != "" {
		return "Top " + capitalize(cat) + " Headlines"
	}
	return "Top Headlines"
}

// ConfigFields describes the module's config schema
func (m *Module) ConfigFields() []source.Field {
	limitMin, limitMax := 1.0, float64(maxLimit)
	return []source.Field{
		{Name: "api_key", Type: source.FieldString, Label: "NewsAPI key", Required: true},
		{Name: "country", Type: source.FieldString, Label: "Country code", Default: "us"},
		{Name: "category", Type: source.FieldSelect, Label: "Category", Options: categories},
		{Name: "limit", Type: source.FieldInt, Label: "Headline count", Default: defaultLimit, Min: &limitMin, Max: &limitMax},
	}
}

// ValidateConfig checks the API key, category, and headline count
func (m *Module) ValidateConfig(cfg models.JSON) error {
	if !cfg.Has("api_key") {
		return fmt.Errorf("api_key is required")
	}
	if cfg.Has("category") {
		cat := strings.ToLower(cfg.GetString("category"))
		found := false
		for _, c := range categories {
			if cat == c {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unsupported category %q", cfg.GetString("category"))
		}
	}
	if cfg.Has("limit") {
		if n := cfg.GetInt("limit"); n < 1 || n > maxLimit {
			return fmt.Errorf("limit %d out of range 1-%d", n, maxLimit)
		}
	}
	return nil
}

// Fetch retrieves headlines, degrading internally on failure
func (m *Module) Fetch(ctx context.Context) []models.Row {
	rows, err := m.fetch(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Headline fetch failed")
		return source.Unavailable(m.Title())
	}
	return rows
}

type headlinesResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func (m *Module) fetch(ctx context.Context) ([]models.Row, error) {
	if err := m.deps.Limiter.Wait(ctx, ratelimit.LimiterNewsAPI); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	limit := m.cfg.GetInt("limit")
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}

	q := url.Values{}
	q.Set("pageSize", fmt.Sprint(limit))
	country := m.cfg.GetString("country")
	if country == "" {
		country = "us"
	}
	q.Set("country", country)
	if cat := m.cfg.GetString("category"); cat != "" {
		q.Set("category", strings.ToLower(cat))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.apiBase()+"/top-headlines?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", m.cfg.GetString("api_key"))

	resp, err := m.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var payload headlinesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if payload.Status != "ok" {
		return nil, fmt.Errorf("provider error: %s", payload.Message)
	}
	if len(payload.Articles) == 0 {
		return nil, fmt.Errorf("no headlines returned")
	}

	rows := make([]models.Row, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		ts := a.PublishedAt
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			ts = t.Format("Jan 2 15:04")
		}
		rows = append(rows, models.Row{
			Label:     a.Source.Name,
			Value:     a.Title,
			Timestamp: ts,
		})
	}
	return rows, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (m *Module) apiBase() string {
	if base := m.cfg.GetString("api_base"); base != "" {
		return base
	}
	return baseURL
}

var _ source.Module = (*Module)(nil)
