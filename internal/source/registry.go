package source

import (
	"fmt"
	"sort"

	"github.com/newsletter-engine/internal/models"
)

// Factory constructs a module from its persisted config. The config value
// is handed over once, at construction, and treated as immutable.
type Factory func(cfg models.JSON, deps Deps) Module

// Registry maps source type keys to module factories. All supported types
// are registered explicitly at startup, so the full set is visible at
// compile time; there is no reflective name-based resolution.
type Registry struct {
	deps      Deps
	factories map[string]Factory
}

// NewRegistry creates an empty registry bound to the given dependencies
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:      deps,
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under the given type key. Registering the same
// key twice is a wiring bug and panics at startup.
func (r *Registry) Register(typeKey string, factory Factory) {
	if _, exists := r.factories[typeKey]; exists {
		panic(fmt.Sprintf("source: duplicate registration for type %q", typeKey))
	}
	r.factories[typeKey] = factory
}

// New constructs a module for the given persisted source record
func (r *Registry) New(src *models.Source) (Module, error) {
	factory, ok := r.factories[src.Type]
	if !ok {
		return nil, fmt.Errorf("unknown source type %q", src.Type)
	}
	return factory(src.Config, r.deps), nil
}

// NewByType constructs a module from a bare type key and config, used by
// the config-validation path before a source record exists
func (r *Registry) NewByType(typeKey string, cfg models.JSON) (Module, error) {
	factory, ok := r.factories[typeKey]
	if !ok {
		return nil, fmt.Errorf("unknown source type %q", typeKey)
	}
	return factory(cfg, r.deps), nil
}

// Types returns all registered type keys, sorted
func (r *Registry) Types() []string {
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
