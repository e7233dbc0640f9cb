package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/internal/source"
	"github.com/newsletter-engine/pkg/logger"
)

func TestAllBuiltinTypesResolve(t *testing.T) {
	t.Parallel()

	reg := New(source.Deps{Log: logger.Nop()})

	expected := []string{
		"appstore",
		"binancecoin",
		"bitcoin",
		"ethereum",
		"news",
		"rss",
		"sp500",
		"stock",
		"stripe",
		"tether",
		"weather",
		"xrp",
	}
	require.Equal(t, expected, reg.Types())

	for _, typeKey := range expected {
		mod, err := reg.NewByType(typeKey, models.JSON{})
		require.NoError(t, err, "type %s", typeKey)
		require.Equal(t, typeKey, mod.Type())
		require.NotEmpty(t, mod.Title())
	}
}

func TestConfigValidationPerType(t *testing.T) {
	t.Parallel()

	reg := New(source.Deps{Log: logger.Nop()})

	cases := []struct {
		name    string
		typeKey string
		cfg     models.JSON
		wantErr bool
	}{
		{"bitcoin empty ok", "bitcoin", models.JSON{}, false},
		{"bitcoin bad currency", "bitcoin", models.JSON{"currency": "doge"}, true},
		{"sp500 needs nothing", "sp500", models.JSON{}, false},
		{"stock needs symbol", "stock", models.JSON{}, true},
		{"stock with symbol", "stock", models.JSON{"symbol": "AAPL"}, false},
		{"weather needs api key", "weather", models.JSON{"city": "Kyiv"}, true},
		{"weather city ok", "weather", models.JSON{"api_key": "k", "city": "Kyiv"}, false},
		{"weather coords ok", "weather", models.JSON{"api_key": "k", "lat": 50.45, "lon": 30.52}, false},
		{"weather lat out of range", "weather", models.JSON{"api_key": "k", "lat": 91.0, "lon": 0.0}, true},
		{"weather needs location", "weather", models.JSON{"api_key": "k"}, true},
		{"news needs api key", "news", models.JSON{}, true},
		{"news bad category", "news", models.JSON{"api_key": "k", "category": "gossip"}, true},
		{"news ok", "news", models.JSON{"api_key": "k", "category": "technology", "limit": 5}, false},
		{"rss needs feed url", "rss", models.JSON{}, true},
		{"rss rejects bare host", "rss", models.JSON{"feed_url": "example.com/feed"}, true},
		{"rss ok", "rss", models.JSON{"feed_url": "https://example.com/feed.xml"}, false},
		{"appstore needs numeric vendor", "appstore", models.JSON{"api_token": "t", "vendor_number": "abc"}, true},
		{"appstore ok", "appstore", models.JSON{"api_token": "t", "vendor_number": "88123456"}, false},
		{"stripe needs secret key", "stripe", models.JSON{"api_key": "pk_live_x"}, true},
		{"stripe ok", "stripe", models.JSON{"api_key": "sk_test_x", "days": 7}, false},
		{"stripe days out of range", "stripe", models.JSON{"api_key": "sk_test_x", "days": 365}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mod, err := reg.NewByType(tc.typeKey, tc.cfg)
			require.NoError(t, err)

			err = mod.ValidateConfig(tc.cfg)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
