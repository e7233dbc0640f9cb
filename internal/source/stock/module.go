// Package stock implements the Yahoo Finance quote tracker, covering the
// generic stock module and the fixed-symbol S&P 500 index module.
package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/internal/source"
	"github.com/newsletter-engine/pkg/logger"
	"github.com/newsletter-engine/pkg/ratelimit"
)

const (
	baseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

	sp500Symbol = "^GSPC"
	sp500Name   = "S&P 500"
)

// Register adds the stock and sp500 trackers to the registry
func Register(r *source.Registry) {
	r.Register("stock", func(cfg models.JSON, deps source.Deps) source.Module {
		return New(cfg, deps)
	})
	r.Register("sp500", func(cfg models.JSON, deps source.Deps) source.Module {
		m := New(cfg, deps)
		m.fixedSymbol = sp500Symbol
		m.fixedName = sp500Name
		m.typeKey = "sp500"
		return m
	})
}

// Module tracks one equity or index quote with day-over-day change
type Module struct {
	cfg  models.JSON
	deps source.Deps
	log  *logger.Logger

	typeKey     string
	fixedSymbol string // set for the sp500 registration
	fixedName   string
}

// New creates a generic stock tracker
func New(cfg models.JSON, deps source.Deps) *Module {
	return &Module{
		cfg:     cfg,
		deps:    deps,
		typeKey: "stock",
		log:     deps.Log.WithModule("stock", cfg.GetString("symbol")),
	}
}

// Type returns the registry key
func (m *Module) Type() string {
	return m.typeKey
}

// Title returns the display title: the configured symbol, or the index name
func (m *Module) Title() string {
	if m.fixedName != "" {
		return m.fixedName
	}
	return strings.ToUpper(m.cfg.GetString("symbol"))
}

// ConfigFields describes the module's config schema. The sp500
// registration ignores the symbol field entirely.
func (m *Module) ConfigFields() []source.Field {
	if m.fixedSymbol != "" {
		return nil
	}
	return []source.Field{
		{Name: "symbol", Type: source.FieldString, Label: "Ticker symbol", Required: true},
	}
}

// ValidateConfig requires a symbol for the generic stock tracker
func (m *Module) ValidateConfig(cfg models.JSON) error {
	if m.fixedSymbol != "" {
		return nil
	}
	if !cfg.Has("symbol") {
		return fmt.Errorf("symbol is required")
	}
	if len(cfg.GetString("symbol")) > 12 {
		return fmt.Errorf("symbol %q is too long", cfg.GetString("symbol"))
	}
	return nil
}

// Fetch retrieves the latest quote, degrading internally on failure
func (m *Module) Fetch(ctx context.Context) []models.Row {
	rows, err := m.fetch(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Quote fetch failed")
		return source.Unavailable(m.label())
	}
	return rows
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
				Currency           string  `json:"currency"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (m *Module) fetch(ctx context.Context) ([]models.Row, error) {
	if err := m.deps.Limiter.Wait(ctx, ratelimit.LimiterYahoo); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	symbol := m.symbol()
	if symbol == "" {
		return nil, fmt.Errorf("no symbol configured")
	}

	endpoint := fmt.Sprintf("%s/%s?range=5d&interval=1d", m.apiBase(), url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("provider error: %s", payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("empty result for %s", symbol)
	}

	meta := payload.Chart.Result[0].Meta
	currency := strings.ToLower(meta.Currency)
	if currency == "" {
		currency = "usd"
	}

	var changePct float64
	if meta.PreviousClose != 0 {
		changePct = (meta.RegularMarketPrice - meta.PreviousClose) / meta.PreviousClose * 100
	}

	return []models.Row{{
		Label: m.label(),
		Value: source.FormatMoney(meta.RegularMarketPrice, currency),
		Delta: source.PercentDelta(changePct),
	}}, nil
}

func (m *Module) symbol() string {
	if m.fixedSymbol != "" {
		return m.fixedSymbol
	}
	return strings.ToUpper(m.cfg.GetString("symbol"))
}

func (m *Module) label() string {
	return m.Title() + " Price"
}

func (m *Module) apiBase() string {
	if base := m.cfg.GetString("api_base"); base != "" {
		return base
	}
	return baseURL
}

var _ source.Module = (*Module)(nil)
