// Package stripe implements the Stripe revenue summary module.
package stripe

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
	baseURL = "https://api.stripe.com/v1"

	defaultDays = 7
	maxDays     = 90
	pageSize    = 100
)

// Register adds the stripe module to the registry
func Register(r *source.Registry) {
	r.Register("stripe", func(cfg models.JSON, deps source.Deps) source.Module {
		return New(cfg, deps)
	})
}

// Module summarizes charge revenue over a configurable trailing window
type Module struct {
	cfg  models.JSON
	deps source.Deps
	log  *logger.Logger
}

// New creates a Stripe revenue module
func New(cfg models.JSON, deps source.Deps) *Module {
	return &Module{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.WithModule("stripe", ""),
	}
}

// Type returns the registry key
func (m *Module) Type() string {
	return "stripe"
}

// Title returns the display title
func (m *Module) Title() string {
	return fmt.Sprintf("Stripe Revenue (%dd)", m.days())
}

// ConfigFields describes the module's config schema
func (m *Module) ConfigFields() []source.Field {
	daysMin, daysMax := 1.0, float64(maxDays)
	return []source.Field{
		{Name: "api_key", Type: source.FieldString, Label: "Stripe secret key", Required: true},
		{Name: "days", Type: source.FieldInt, Label: "Trailing window (days)", Default: defaultDays, Min: &daysMin, Max: &daysMax},
	}
}

// ValidateConfig checks the secret key prefix and the window bounds
func (m *Module) ValidateConfig(cfg models.JSON) error {
	key := cfg.GetString("api_key")
	if key == "" {
		return fmt.Errorf("api_key is required")
	}
	if !strings.HasPrefix(key, "sk_") && !strings.HasPrefix(key, "rk_") {
		return fmt.Errorf("api_key must be a secret or restricted key")
	}
	if cfg.Has("days") {
		if d := cfg.GetInt("days"); d < 1 || d > maxDays {
			return fmt.Errorf("days %d out of range 1-%d", d, maxDays)
		}
	}
	return nil
}

// Fetch summarizes recent balance transactions, degrading internally on failure
func (m *Module) Fetch(ctx context.Context) []models.Row {
	rows, err := m.fetch(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Revenue fetch failed")
		return source.Unavailable(m.Title())
	}
	return rows
}

type balanceTransactionList struct {
	Data []struct {
		Amount   int64  `json:"amount"`
		Fee      int64  `json:"fee"`
		Currency string `json:"currency"`
		Type     string `json:"type"`
	} `json:"data"`
	HasMore bool `json:"has_more"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (m *Module) fetch(ctx context.Context) ([]models.Row, error) {
	if err := m.deps.Limiter.Wait(ctx, ratelimit.LimiterStripe); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	since := time.Now().AddDate(0, 0, -m.days()).Unix()

	q := url.Values{}
	q.Set("limit", fmt.Sprint(pageSize))
	q.Set("created[gte]", fmt.Sprint(since))
	q.Set("type", "charge")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.apiBase()+"/balance_transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.GetString("api_key"))

	resp, err := m.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var payload balanceTransactionList
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("provider error: %s", payload.Error.Message)
	}

	var gross, fees int64
	currency := "usd"
	for _, txn := range payload.Data {
		gross += txn.Amount
		fees += txn.Fee
		if txn.Currency != "" {
			currency = txn.Currency
		}
	}

	rows := []models.Row{
		{Label: "Gross Revenue", Value: source.FormatMoney(float64(gross)/100, currency)},
		{Label: "Charges", Value: fmt.Sprint(len(payload.Data))},
		{Label: "Net Revenue", Value: source.FormatMoney(float64(gross-fees)/100, currency)},
	}
	if payload.HasMore {
		// One page is enough for a digest summary; flag the truncation.
		rows = append(rows, models.Row{Label: "Note", Value: fmt.Sprintf("first %d charges only", pageSize)})
	}
	return rows, nil
}

func (m *Module) days() int {
	if d := m.cfg.GetInt("days"); d >= 1 && d <= maxDays {
		return d
	}
	return defaultDays
}

func (m *Module) apiBase() string {
	if base := m.cfg.GetString("api_base"); base != "" {
		return base
	}
	return baseURL
}

var _ source.Module = (*Module)(nil)
