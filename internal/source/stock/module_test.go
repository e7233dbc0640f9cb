package stock

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

func testDeps() source.Deps {
	return source.Deps{
		HTTPClient: &http.Client{Timeout: time.Second},
		Limiter:    ratelimit.NewMultiLimiter(),
		Log:        logger.Nop(),
	}
}

func chartBody(price, prevClose float64, currency string) string {
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"regularMarketPrice":%v,"chartPreviousClose":%v,"currency":%q}}]}}`,
		price, prevClose, currency)
}

func TestFetchQuote(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/AAPL", r.URL.Path)
		fmt.Fprint(w, chartBody(202.5, 200, "USD"))
	}))
	defer srv.Close()

	m := New(models.JSON{"symbol": "aapl", "api_base": srv.URL}, testDeps())
	rows := m.Fetch(context.Background())

	require.Len(t, rows, 1)
	require.Equal(t, "AAPL Price", rows[0].Label)
	require.Equal(t, "$202.5", rows[0].Value)
	require.Equal(t, "+1.25%", rows[0].Delta.Value)
	require.Equal(t, models.DeltaGreen, rows[0].Delta.Color)
}

func TestFetchIndexUsesFixedSymbol(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/%5EGSPC", r.URL.EscapedPath())
		fmt.Fprint(w, chartBody(5400, 5454.54, "USD"))
	}))
	defer srv.Close()

	reg := source.NewRegistry(testDeps())
	Register(reg)

	mod, err := reg.NewByType("sp500", models.JSON{"api_base": srv.URL})
	require.NoError(t, err)
	require.Equal(t, "S&P 500", mod.Title())

	rows := mod.Fetch(context.Background())
	require.Len(t, rows, 1)
	require.Equal(t, "S&P 500 Price", rows[0].Label)
	require.Equal(t, models.DeltaRed, rows[0].Delta.Color)
}

func TestFetchDegradesOnProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[],"error":{"description":"No data found"}}}`)
	}))
	defer srv.Close()

	m := New(models.JSON{"symbol": "NOPE", "api_base": srv.URL}, testDeps())
	rows := m.Fetch(context.Background())

	require.Len(t, rows, 1)
	require.Equal(t, "NOPE Price", rows[0].Label)
	require.Equal(t, "Data unavailable", rows[0].Value)
	require.Nil(t, rows[0].Delta)
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	m := New(nil, testDeps())
	require.Error(t, m.ValidateConfig(models.JSON{}))
	require.NoError(t, m.ValidateConfig(models.JSON{"symbol": "MSFT"}))
	require.Error(t, m.ValidateConfig(models.JSON{"symbol": "WAYTOOLONGSYMBOL"}))

	reg := source.NewRegistry(testDeps())
	Register(reg)
	sp, err := reg.NewByType("sp500", nil)
	require.NoError(t, err)
	require.NoError(t, sp.ValidateConfig(models.JSON{}), "index tracker needs no config")
}
