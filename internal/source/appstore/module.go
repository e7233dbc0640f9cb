// Package appstore implements the App Store Connect sales summary module.
// It pulls the daily sales report (gzipped TSV) and reduces it to unit and
// proceeds totals.
package appstore

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/internal/source"
	"github.com/newsletter-engine/pkg/logger"
	"github.com/newsletter-engine/pkg/ratelimit"
)

const baseURL = "https://api.appstoreconnect.apple.com/v1"

// Register adds the appstore module to the registry
func Register(r *source.Registry) {
	r.Register("appstore", func(cfg models.JSON, deps source.Deps) source.Module {
		return New(cfg, deps)
	})
}

// Module summarizes yesterday's App Store sales for one vendor
type Module struct {
	cfg  models.JSON
	deps source.Deps
	log  *logger.Logger
}

// New creates an App Store sales module
func New(cfg models.JSON, deps source.Deps) *Module {
	return &Module{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.WithModule("appstore", cfg.GetString("vendor_number")),
	}
}

// Type returns the registry key
func (m *Module) Type() string {
	return "appstore"
}

// Title returns the display title
func (m *Module) Title() string {
	return "App Store Sales"
}

// ConfigFields describes the module's config schema
func (m *Module) ConfigFields() []source.Field {
	return []source.Field{
		{Name: "api_token", Type: source.FieldString, Label: "App Store Connect API token", Required: true},
		{Name: "vendor_number", Type: source.FieldString, Label: "Vendor number", Required: true},
	}
}

// ValidateConfig checks the token and the numeric vendor number
func (m *Module) ValidateConfig(cfg models.JSON) error {
	if !cfg.Has("api_token") {
		return fmt.Errorf("api_token is required")
	}
	vendor := cfg.GetString("vendor_number")
	if vendor == "" {
		return fmt.Errorf("vendor_number is required")
	}
	if _, err := strconv.Atoi(vendor); err != nil {
		return fmt.Errorf("vendor_number %q must be numeric", vendor)
	}
	return nil
}

// Fetch retrieves yesterday's sales report, degrading internally on failure
func (m *Module) Fetch(ctx context.Context) []models.Row {
	rows, err := m.fetch(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Sales report fetch failed")
		return source.Unavailable(m.Title())
	}
	return rows
}

func (m *Module) fetch(ctx context.Context) ([]models.Row, error) {
	if err := m.deps.Limiter.Wait(ctx, ratelimit.LimiterAppStore); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	// Daily reports lag one day behind.
	reportDate := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")

	q := url.Values{}
	q.Set("filter[frequency]", "DAILY")
	q.Set("filter[reportType]", "SALES")
	q.Set("filter[reportSubType]", "SUMMARY")
	q.Set("filter[vendorNumber]", m.cfg.GetString("vendor_number"))
	q.Set("filter[reportDate]", reportDate)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.apiBase()+"/salesReports?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.GetString("api_token"))
	req.Header.Set("Accept", "application/a-gzip")

	resp, err := m.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	units, proceeds, currency, err := sumSalesReport(resp.Body)
	if err != nil {
		return nil, err
	}

	return []models.Row{
		{Label: "Units Sold", Value: humanize.Comma(units), Timestamp: reportDate},
		{Label: "Proceeds", Value: source.FormatMoney(proceeds, currency), Timestamp: reportDate},
	}, nil
}

// sumSalesReport totals the Units and Developer Proceeds columns of a
// gzipped tab-separated sales report
func sumSalesReport(body io.Reader) (units int64, proceeds float64, currency string, err error) {
	gz, err := gzip.NewReader(body)
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to open report: %w", err)
	}
	defer gz.Close()

	r := csv.NewReader(gz)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to read report header: %w", err)
	}

	unitsCol, proceedsCol, currencyCol := -1, -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "Units":
			unitsCol = i
		case "Developer Proceeds":
			proceedsCol = i
		case "Currency of Proceeds":
			currencyCol = i
		}
	}
	if unitsCol < 0 || proceedsCol < 0 {
		return 0, 0, "", fmt.Errorf("report missing expected columns")
	}

	currency = "usd"
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, "", fmt.Errorf("failed to read report row: %w", err)
		}
		if unitsCol >= len(record) || proceedsCol >= len(record) {
			continue
		}
		if u, err := strconv.ParseInt(strings.TrimSpace(record[unitsCol]), 10, 64); err == nil {
			units += u
		}
		if p, err := strconv.ParseFloat(strings.TrimSpace(record[proceedsCol]), 64); err == nil {
			proceeds += p
		}
		if currencyCol >= 0 && currencyCol < len(record) && record[currencyCol] != "" {
			currency = strings.ToLower(record[currencyCol])
		}
	}
	return units, proceeds, currency, nil
}

func (m *Module) apiBase() string {
	if base := m.cfg.GetString("api_base"); base != "" {
		return base
	}
	return baseURL
}

var _ source.Module = (*Module)(nil)
