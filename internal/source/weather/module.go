// Package weather implements the OpenWeatherMap current-conditions module.
package weather

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

const baseURL = "https://api.openweathermap.org/data/2.5"

var units = []string{"metric", "imperial", "standard"}

// Register adds the weather module to the registry
func Register(r *source.Registry) {
	r.Register("weather", func(cfg models.JSON, deps source.Deps) source.Module {
		return New(cfg, deps)
	})
}

// Module reports current conditions for a configured city or coordinate pair
type Module struct {
	cfg  models.JSON
	deps source.Deps
	log  *logger.Logger
}

// New creates a weather module
func New(cfg models.JSON, deps source.Deps) *Module {
	return &Module{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.WithModule("weather", cfg.GetString("city")),
	}
}

// Type returns the registry key
func (m *Module) Type() string {
	return "weather"
}

// Title includes the configured city when one is set
func (m *Module) Title() string {
	if city := m.cfg.GetString("city"); city != "" {
		return "Weather in " + city
	}
	return "Weather"
}

// ConfigFields describes the module's config schema
func (m *Module) ConfigFields() []source.Field {
	latMin, latMax := -90.0, 90.0
	lonMin, lonMax := -180.0, 180.0
	return []source.Field{
		{Name: "api_key", Type: source.FieldString, Label: "OpenWeatherMap API key", Required: true},
		{Name: "city", Type: source.FieldString, Label: "City name"},
		{Name: "lat", Type: source.FieldFloat, Label: "Latitude", Min: &latMin, Max: &latMax},
		{Name: "lon", Type: source.FieldFloat, Label: "Longitude", Min: &lonMin, Max: &lonMax},
		{Name: "units", Type: source.FieldSelect, Label: "Units", Default: "metric", Options: units},
	}
}

// ValidateConfig requires an API key and either a city or a coordinate
// pair within range
func (m *Module) ValidateConfig(cfg models.JSON) error {
	if !cfg.Has("api_key") {
		return fmt.Errorf("api_key is required")
	}

	hasCity := cfg.Has("city")
	hasCoords := cfg.Has("lat") && cfg.Has("lon")
	if !hasCity && !hasCoords {
		return fmt.Errorf("either city or lat/lon is required")
	}
	if hasCoords {
		lat, lon := cfg.GetFloat("lat"), cfg.GetFloat("lon")
		if lat < -90 || lat > 90 {
			return fmt.Errorf("latitude %v out of range", lat)
		}
		if lon < -180 || lon > 180 {
			return fmt.Errorf("longitude %v out of range", lon)
		}
	}

	if cfg.Has("units") {
		u := strings.ToLower(cfg.GetString("units"))
		for _, valid := range units {
			if u == valid {
				return nil
			}
		}
		return fmt.Errorf("unsupported units %q", cfg.GetString("units"))
	}
	return nil
}

// Fetch retrieves current conditions, degrading internally on failure
func (m *Module) Fetch(ctx context.Context) []models.Row {
	rows, err := m.fetch(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Weather fetch failed")
		return source.Unavailable(m.Title())
	}
	return rows
}

type weatherResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
}

func (m *Module) fetch(ctx context.Context) ([]models.Row, error) {
	if err := m.deps.Limiter.Wait(ctx, ratelimit.LimiterOpenWeather); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("appid", m.cfg.GetString("api_key"))
	q.Set("units", m.unitsOrDefault())
	if city := m.cfg.GetString("city"); city != "" {
		q.Set("q", city)
	} else {
		q.Set("lat", m.cfg.GetString("lat"))
		q.Set("lon", m.cfg.GetString("lon"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.apiBase()+"/weather?"+q.Encode(), nil)
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

	var payload weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	rows := []models.Row{
		{Label: "Temperature", Value: fmt.Sprintf("%.1f%s (feels like %.1f%s)",
			payload.Main.Temp, m.degreeSuffix(), payload.Main.FeelsLike, m.degreeSuffix())},
	}
	if len(payload.Weather) > 0 {
		rows = append(rows, models.Row{Label: "Conditions", Value: payload.Weather[0].Description})
	}
	rows = append(rows,
		models.Row{Label: "Humidity", Value: fmt.Sprintf("%d%%", payload.Main.Humidity)},
		models.Row{Label: "Wind", Value: fmt.Sprintf("%.1f %s", payload.Wind.Speed, m.windUnit())},
	)
	return rows, nil
}

func (m *Module) unitsOrDefault() string {
	if u := strings.ToLower(m.cfg.GetString("units")); u != "" {
		return u
	}
	return "metric"
}

func (m *Module) degreeSuffix() string {
	switch m.unitsOrDefault() {
	case "imperial":
		return "°F"
	case "standard":
		return "K"
	default:
		return "°C"
	}
}

func (m *Module) windUnit() string {
	if m.unitsOrDefault() == "imperial" {
		return "mph"
	}
	return "m/s"
}

func (m *Module) apiBase() string {
	if base := m.cfg.GetString("api_base"); base != "" {
		return base
	}
	return baseURL
}

var _ source.Module = (*Module)(nil)
