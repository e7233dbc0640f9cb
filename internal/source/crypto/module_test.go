package crypto

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/internal/source"
	"github.com/newsletter-engine/pkg/logger"
	"github.com/newsletter-engine/pkg/ratelimit"
)

func testDeps(client *http.Client) source.Deps {
	if client == nil {
		client = &http.Client{Timeout: time.Second}
	}
	return source.Deps{
		HTTPClient: client,
		Limiter:    ratelimit.NewMultiLimiter(),
		Log:        logger.Nop(),
	}
}

func bitcoin() Coin {
	return Coin{TypeKey: "bitcoin", AssetID: "bitcoin", Name: "Bitcoin"}
}

func TestFetchReturnsPriceRow(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simple/price", r.URL.Path)
		require.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		require.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		fmt.Fprint(w, `{"bitcoin":{"usd":65432.15,"usd_24h_change":2.41}}`)
	}))
	defer srv.Close()

	m := New(bitcoin(), models.JSON{"api_base": srv.URL}, testDeps(nil))
	rows := m.Fetch(context.Background())

	require.Len(t, rows, 1)
	require.Equal(t, "Bitcoin Price", rows[0].Label)
	require.Equal(t, "$65,432.15", rows[0].Value)
	require.NotNil(t, rows[0].Delta)
	require.Equal(t, "+2.41%", rows[0].Delta.Value)
	require.Equal(t, models.DeltaGreen, rows[0].Delta.Color)
}

func TestFetchNegativeChangeIsRed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ethereum":{"eur":3120.5,"eur_24h_change":-1.07}}`)
	}))
	defer srv.Close()

	coin := Coin{TypeKey: "ethereum", AssetID: "ethereum", Name: "Ethereum"}
	m := New(coin, models.JSON{"api_base": srv.URL, "currency": "eur"}, testDeps(nil))
	rows := m.Fetch(context.Background())

	require.Len(t, rows, 1)
	require.Equal(t, "Ethereum Price", rows[0].Label)
	require.Equal(t, "€3,120.5", rows[0].Value)
	require.Equal(t, models.DeltaRed, rows[0].Delta.Color)
}

func TestFetchDegradesOnFailure(t *testing.T) {
	t.Parallel()

	requireDegraded := func(t *testing.T, rows []models.Row) {
		t.Helper()
		require.Len(t, rows, 1)
		require.Equal(t, "Bitcoin Price", rows[0].Label)
		require.Equal(t, "Data unavailable", rows[0].Value)
		require.Nil(t, rows[0].Delta)
	}

	t.Run("provider timeout", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
		}))
		defer srv.Close()

		client := &http.Client{Timeout: 50 * time.Millisecond}
		m := New(bitcoin(), models.JSON{"api_base": srv.URL}, testDeps(client))
		requireDegraded(t, m.Fetch(context.Background()))
	})

	t.Run("http error status", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		m := New(bitcoin(), models.JSON{"api_base": srv.URL}, testDeps(nil))
		requireDegraded(t, m.Fetch(context.Background()))
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `not json`)
		}))
		defer srv.Close()

		m := New(bitcoin(), models.JSON{"api_base": srv.URL}, testDeps(nil))
		requireDegraded(t, m.Fetch(context.Background()))
	})

	t.Run("unreachable host", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // closed before use

		m := New(bitcoin(), models.JSON{"api_base": srv.URL}, testDeps(nil))
		requireDegraded(t, m.Fetch(context.Background()))
	})
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	m := New(bitcoin(), nil, testDeps(nil))

	require.NoError(t, m.ValidateConfig(models.JSON{}))
	require.NoError(t, m.ValidateConfig(models.JSON{"currency": "usd"}))
	require.NoError(t, m.ValidateConfig(models.JSON{"currency": "EUR"}))
	require.Error(t, m.ValidateConfig(models.JSON{"currency": "doge"}))
}

func TestRegisterCoversAllCoins(t *testing.T) {
	t.Parallel()

	reg := source.NewRegistry(testDeps(nil))
	Register(reg)

	for _, coin := range Coins {
		mod, err := reg.NewByType(coin.TypeKey, nil)
		require.NoError(t, err)
		require.Equal(t, coin.TypeKey, mod.Type())
		require.Equal(t, coin.Name, mod.Title())
	}
}
