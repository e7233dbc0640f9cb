// Package crypto implements the CoinGecko-backed price tracker modules.
// One parameterized module covers every supported coin; each coin is its
// own registry type so dashboards list them as distinct source types.
package crypto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/internal/source"
	"github.com/newsletter-engine/pkg/logger"
	"github.com/newsletter-engine/pkg/ratelimit"
)

const baseURL = "https://api.coingecko.com/api/v3"

var currencies = []string{"usd", "eur", "gbp", "jpy"}

// Coin identifies one supported tracker: its registry type key, the
// CoinGecko asset ID, and the display name
type Coin struct {
	TypeKey string
	AssetID string
	Name    string
}

// Coins is the full set of supported price trackers
var Coins = []Coin{
	{TypeKey: "bitcoin", AssetID: "bitcoin", Name: "Bitcoin"},
	{TypeKey: "ethereum", AssetID: "ethereum", Name: "Ethereum"},
	{TypeKey: "xrp", AssetID: "ripple", Name: "XRP"},
	{TypeKey: "tether", AssetID: "tether", Name: "Tether"},
	{TypeKey: "binancecoin", AssetID: "binancecoin", Name: "BinanceCoin"},
}

// Register adds all coin trackers to the registry
func Register(r *source.Registry) {
	for _, coin := range Coins {
		r.Register(coin.TypeKey, func(cfg models.JSON, deps source.Deps) source.Module {
			return New(coin, cfg, deps)
		})
	}
}

// Module tracks one crypto asset's price and 24h change
type Module struct {
	coin Coin
	cfg  models.JSON
	deps source.Deps
	log  *logger.Logger
}

// New creates a price tracker for the given coin
func New(coin Coin, cfg models.JSON, deps source.Deps) *Module {
	return &Module{
		coin: coin,
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.WithModule(coin.TypeKey, coin.Name),
	}
}

// Type returns the registry key
func (m *Module) Type() string {
	return m.coin.TypeKey
}

// Title returns the display title
func (m *Module) Title() string {
	return m.coin.Name
}

// ConfigFields describes the module's config schema
func (m *Module) ConfigFields() []source.Field {
	return []source.Field{
		{
			Name:    "currency",
			Type:    source.FieldSelect,
			Label:   "Quote currency",
			Default: "usd",
			Options: currencies,
		},
	}
}

// ValidateConfig checks the optional currency selection
func (m *Module) ValidateConfig(cfg models.JSON) error {
	if !cfg.Has("currency") {
		return nil
	}
	cur := strings.ToLower(cfg.GetString("currency"))
	for _, c := range currencies {
		if cur == c {
			return nil
		}
	}
	return fmt.Errorf("unsupported currency %q", cfg.GetString("currency"))
}

// Fetch retrieves the current price and 24h change. Provider failures
// degrade to a single unavailable row.
func (m *Module) Fetch(ctx context.Context) []models.Row {
	rows, err := m.fetch(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Price fetch failed")
		return source.Unavailable(m.label())
	}
	return rows
}

func (m *Module) fetch(ctx context.Context) ([]models.Row, error) {
	if err := m.deps.Limiter.Wait(ctx, ratelimit.LimiterCoinGecko); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	currency := strings.ToLower(m.cfg.GetString("currency"))
	if currency == "" {
		currency = "usd"
	}

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s&include_24hr_change=true",
		m.apiBase(), m.coin.AssetID, currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	quote, ok := payload[m.coin.AssetID]
	if !ok {
		return nil, fmt.Errorf("asset %s missing from response", m.coin.AssetID)
	}
	price, ok := quote[currency]
	if !ok {
		return nil, fmt.Errorf("currency %s missing from response", currency)
	}
	change := quote[currency+"_24h_change"]

	return []models.Row{{
		Label: m.label(),
		Value: source.FormatMoney(price, currency),
		Delta: source.PercentDelta(change),
	}}, nil
}

func (m *Module) label() string {
	return m.coin.Name + " Price"
}

// apiBase allows tests to point the module at a stub server
func (m *Module) apiBase() string {
	if base := m.cfg.GetString("api_base"); base != "" {
		return base
	}
	return baseURL
}

var _ source.Module = (*Module)(nil)
