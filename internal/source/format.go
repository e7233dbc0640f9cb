package source

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/newsletter-engine/internal/models"
)

// MoneySymbol returns the display symbol for an ISO currency code,
// falling back to the upper-cased code itself
func MoneySymbol(currency string) string {
	switch strings.ToLower(currency) {
	case "usd":
		return "$"
	case "eur":
		return "€"
	case "gbp":
		return "£"
	case "jpy":
		return "¥"
	default:
		return strings.ToUpper(currency) + " "
	}
}

// FormatMoney renders an amount with thousands separators and two
// decimals, prefixed by the currency symbol
func FormatMoney(amount float64, currency string) string {
	return MoneySymbol(currency) + humanize.CommafWithDigits(amount, 2)
}

// PercentDelta builds a signed percentage delta, colored by sign
func PercentDelta(raw float64) *models.Delta {
	return models.DeltaFor(raw, fmt.Sprintf("%+.2f%%", raw))
}
