package source

import (
	"context"
	"net/http"
	"time"

	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/pkg/logger"
	"github.com/newsletter-engine/pkg/ratelimit"
)

// Module is the uniform contract every data provider implements. The
// aggregation pipeline never branches on provider identity: it resolves a
// module from the registry and talks to this interface only.
type Module interface {
	// Type returns the registry key this module is resolved by
	Type() string

	// Title returns the display title, possibly derived from config
	// (e.g. including a configured city name)
	Title() string

	// ConfigFields returns the ordered field descriptors that drive
	// config validation and any external config-entry UI
	ConfigFields() []Field

	// ValidateConfig checks the config structurally and semantically.
	// It is pure: no network I/O. Called before a source is persisted.
	ValidateConfig(cfg models.JSON) error

	// Fetch retrieves and normalizes the provider's data. It must never
	// let a network, auth, parsing, or rate-limit failure escape: on any
	// failure it returns a single degraded row instead. This is the
	// load-bearing guarantee of the whole pipeline.
	Fetch(ctx context.Context) []models.Row
}

// FieldType enumerates the primitive kinds a config field can hold
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	FieldSelect FieldType = "select"
)

// Field describes one config key of a module: its type, whether it is
// required, and any bounds or allowed options
type Field struct {
	Name     string      `json:"name"`
	Type     FieldType   `json:"type"`
	Label    string      `json:"label"`
	Required bool        `json:"required"`
	Default  interface{} `json:"default,omitempty"`
	Min      *float64    `json:"min,omitempty"`
	Max      *float64    `json:"max,omitempty"`
	Options  []string    `json:"options,omitempty"`
}

// Deps carries the shared collaborators handed to every module factory.
// Modules hold no global state; everything they need arrives here and in
// their immutable config.
type Deps struct {
	HTTPClient *http.Client
	Limiter    *ratelimit.MultiLimiter
	Log        *logger.Logger
}

// DefaultDeps builds module dependencies with a conservatively timed
// HTTP client and the default per-provider rate limits
func DefaultDeps(log *logger.Logger) Deps {
	return Deps{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Limiter:    ratelimit.NewDefaultLimiter(),
		Log:        log,
	}
}

// Unavailable is the canonical degraded payload: exactly one row carrying
// the module-identifying label, a human-readable diagnostic value, and no
// delta. Modules return it whenever their provider call fails.
func Unavailable(label string) []models.Row {
	return []models.Row{{Label: label, Value: "Data unavailable", Delta: nil}}
}
