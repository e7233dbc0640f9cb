// Package catalog wires every built-in source module into a registry.
// Adding a provider means adding a Register call here; the full set of
// supported source types is visible in this one file.
package catalog

import (
	"github.com/newsletter-engine/internal/source"
	"github.com/newsletter-engine/internal/source/appstore"
	"github.com/newsletter-engine/internal/source/crypto"
	"github.com/newsletter-engine/internal/source/news"
	"github.com/newsletter-engine/internal/source/rss"
	"github.com/newsletter-engine/internal/source/stock"
	"github.com/newsletter-engine/internal/source/stripe"
	"github.com/newsletter-engine/internal/source/weather"
)

// New builds a registry with all built-in modules registered
func New(deps source.Deps) *source.Registry {
	r := source.NewRegistry(deps)

	crypto.Register(r)  // bitcoin, ethereum, xrp, tether, binancecoin
	stock.Register(r)   // stock, sp500
	weather.Register(r) // weather
	news.Register(r)    // news
	rss.Register(r)     // rss
	appstore.Register(r)
	stripe.Register(r)

	return r
}
