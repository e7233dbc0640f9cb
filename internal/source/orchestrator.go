package source

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/pkg/logger"
)

const (
	// DefaultFetchTimeout bounds a single module invocation
	DefaultFetchTimeout = 10 * time.Second

	defaultParallelism = 4
)

// FetchResult pairs one configured source with its fetched rows. Results
// keep the persisted display order regardless of fetch completion order.
type FetchResult struct {
	Source    *models.Source
	Title     string
	Rows      []models.Row
	FetchedAt time.Time
	OK        bool // false when the module degraded, timed out, or could not be built
}

// Orchestrator fetches all of a newsletter's sources with per-source
// isolation. A module that times out, panics, or cannot be resolved is
// treated exactly like a module-internal failure: its slot in the result
// is filled with the degraded payload and the batch continues.
type Orchestrator struct {
	registry    *Registry
	timeout     time.Duration
	parallelism int
	log         *logger.Logger
}

// NewOrchestrator creates an orchestrator over the given registry.
// timeout <= 0 falls back to DefaultFetchTimeout, parallelism <= 0 to a
// small default.
func NewOrchestrator(registry *Registry, timeout time.Duration, parallelism int, log *logger.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &Orchestrator{
		registry:    registry,
		timeout:     timeout,
		parallelism: parallelism,
		log:         log.WithComponent("orchestrator"),
	}
}

// FetchAll fetches every source and returns one result per input, in
// input order. The input is expected to be ordered by display_order (the
// repository guarantees this); execution order is unspecified.
func (o *Orchestrator) FetchAll(ctx context.Context, sources []*models.Source) []FetchResult {
	results := make([]FetchResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)

	for i, src := range sources {
		g.Go(func() error {
			results[i] = o.fetchOne(gctx, src)
			return nil
		})
	}
	// Workers never return errors; isolation happens inside fetchOne.
	_ = g.Wait()

	return results
}

// fetchOne resolves and invokes a single module under the fetch timeout
func (o *Orchestrator) fetchOne(ctx context.Context, src *models.Source) FetchResult {
	log := o.log.WithSource(src.ID).WithModule(src.Type, src.Name)

	mod, err := o.registry.New(src)
	if err != nil {
		log.Error().Err(err).Msg("Failed to resolve source module")
		label := src.DisplayName(src.Type)
		return FetchResult{
			Source:    src,
			Title:     label,
			Rows:      Unavailable(label),
			FetchedAt: time.Now(),
		}
	}

	title := src.DisplayName(mod.Title())
	rows := o.guardedFetch(ctx, mod, title, log)

	return FetchResult{
		Source:    src,
		Title:     title,
		Rows:      rows,
		FetchedAt: time.Now(),
		OK:        !IsUnavailable(rows),
	}
}

// guardedFetch runs mod.Fetch under the per-module timeout, recovering
// panics. Modules catch their own provider failures; this layer only adds
// the two failure modes a module cannot catch for itself.
func (o *Orchestrator) guardedFetch(ctx context.Context, mod Module, title string, log *logger.Logger) []models.Row {
	fetchCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan []models.Row, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Source module panicked")
				done <- Unavailable(title)
			}
		}()
		done <- mod.Fetch(fetchCtx)
	}()

	select {
	case rows := <-done:
		return rows
	case <-fetchCtx.Done():
		log.Warn().Dur("timeout", o.timeout).Msg("Source fetch timed out")
		return Unavailable(title)
	}
}

// IsUnavailable reports whether rows are the canonical degraded payload
func IsUnavailable(rows []models.Row) bool {
	return len(rows) == 1 && rows[0].Value == "Data unavailable" && rows[0].Delta == nil
}
