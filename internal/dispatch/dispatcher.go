// Package dispatch runs the periodic batch delivery loop: find every
// newsletter due now, fetch its sources, render, send, archive. The
// dispatcher holds no state between runs; everything it needs to be
// idempotent lives in the delivery ledger.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newsletter-engine/internal/mail"
	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/internal/render"
	"github.com/newsletter-engine/internal/schedule"
	"github.com/newsletter-engine/internal/source"
	"github.com/newsletter-engine/internal/storage"
	"github.com/newsletter-engine/pkg/logger"
)

// Mode selects the side-effect level of one dispatcher run
type Mode string

const (
	// ModeSend is the default: full fetch, render, send, archive
	ModeSend Mode = "send"
	// ModeDryRun fetches and renders but skips sending and archiving
	ModeDryRun Mode = "dry-run"
	// ModeHealthCheck only verifies dependent services are reachable
	ModeHealthCheck Mode = "health-check"
)

// ParseMode validates a mode string from the trigger surface
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSend, ModeDryRun, ModeHealthCheck:
		return Mode(s), nil
	case "":
		return ModeSend, nil
	default:
		return "", fmt.Errorf("unknown dispatch mode %q", s)
	}
}

// Result aggregates one run's outcomes. Total counts newsletters that
// were due and attempted; skipped newsletters are not included.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Config holds dispatcher tuning
type Config struct {
	// Window is the dispatch window width, matching the external
	// trigger's cadence (a newsletter is due when its next send instant
	// falls inside [now, now+Window))
	Window time.Duration
	// Workers bounds cross-newsletter parallelism
	Workers int
}

const (
	defaultWindow  = 15 * time.Minute
	defaultWorkers = 4
)

// Dispatcher composes the calculator, orchestrator, renderer, sender,
// and ledger into the per-run state machine
type Dispatcher struct {
	repo     storage.Repository
	orch     *source.Orchestrator
	renderer render.Renderer
	sender   mail.Sender
	window   time.Duration
	workers  int
	log      *logger.Logger

	now func() time.Time // stubbed in tests
}

// New creates a dispatcher
func New(repo storage.Repository, orch *source.Orchestrator, renderer render.Renderer, sender mail.Sender, cfg Config, log *logger.Logger) *Dispatcher {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Dispatcher{
		repo:     repo,
		orch:     orch,
		renderer: renderer,
		sender:   sender,
		window:   cfg.Window,
		workers:  cfg.Workers,
		log:      log.WithComponent("dispatcher"),
		now:      time.Now,
	}
}

// healthChecker is implemented by collaborators that can probe their
// backing service
type healthChecker interface {
	Healthcheck(ctx context.Context) error
}

// Run executes one dispatcher invocation in the given mode. Only
// unreachable persistence aborts the run; every per-newsletter failure is
// contained and counted.
func (d *Dispatcher) Run(ctx context.Context, mode Mode) (Result, error) {
	switch mode {
	case ModeHealthCheck:
		return Result{}, d.healthcheck(ctx)
	case ModeSend, ModeDryRun:
	default:
		return Result{}, fmt.Errorf("unknown dispatch mode %q", mode)
	}

	newsletters, err := d.repo.ListDispatchable(ctx)
	if err != nil {
		// Nothing can be safely attempted without the ledger.
		return Result{}, fmt.Errorf("fatal: listing newsletters: %w", err)
	}

	now := d.now()
	windowEnd := now.Add(d.window)

	d.log.Info().
		Str("mode", string(mode)).
		Int("candidates", len(newsletters)).
		Time("window_end", windowEnd).
		Msg("Dispatch run started")

	var (
		mu     sync.Mutex
		result Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for _, n := range newsletters {
		g.Go(func() error {
			out := d.process(gctx, n, now, windowEnd, mode)
			mu.Lock()
			switch out {
			case outcomeSent:
				result.Sent++
				result.Total++
			case outcomeFailed:
				result.Failed++
				result.Total++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	d.log.Info().
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Int("total", result.Total).
		Msg("Dispatch run finished")

	return result, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
)

// process drives one newsletter through the per-run state machine:
// eligibility check, then fetch -> render -> send -> archive. All
// failures terminate inside this function; nothing propagates to
// sibling newsletters.
func (d *Dispatcher) process(ctx context.Context, n *models.Newsletter, now, windowEnd time.Time, mode Mode) outcome {
	log := d.log.WithNewsletter(n.ID)

	localDate, err := schedule.LocalDate(n.Timezone, now)
	if err != nil {
		log.Error().Err(err).Str("timezone", n.Timezone).Msg("Invalid newsletter timezone, skipping")
		return outcomeSkipped
	}

	alreadySent, err := d.repo.HasDeliveryOn(ctx, n.ID, localDate)
	if err != nil {
		log.Error().Err(err).Msg("Eligibility check failed, skipping")
		return outcomeSkipped
	}

	due, err := schedule.IsDue(n, now, windowEnd, alreadySent)
	if err != nil {
		log.Error().Err(err).Msg("Invalid schedule configuration, skipping")
		return outcomeSkipped
	}
	if !due {
		return outcomeSkipped
	}

	log.Info().Str("local_date", localDate).Str("mode", string(mode)).Msg("Newsletter due, dispatching")

	// Fetching
	var results []source.FetchResult
	sources, err := d.repo.ListSources(ctx, n.ID)
	if err == nil {
		results = d.orch.FetchAll(ctx, sources)
	}

	// Rendering
	var content string
	stepErr := err
	if stepErr == nil {
		content, stepErr = d.renderer.Render(n, results, now)
	}

	if mode == ModeDryRun {
		if stepErr != nil {
			log.Warn().Err(stepErr).Msg("Dry run would fail")
			return outcomeFailed
		}
		log.Info().Int("sources", len(results)).Int("content_bytes", len(content)).Msg("Dry run would send")
		return outcomeSent
	}

	// Sending
	if stepErr == nil {
		if len(n.Recipients) == 0 {
			stepErr = fmt.Errorf("no recipients configured")
		} else {
			stepErr = d.sender.Send(ctx, &mail.Message{
				To:      n.Recipients,
				Subject: fmt.Sprintf("%s - %s", n.Title, now.Format("Jan 2, 2006")),
				HTML:    content,
			})
		}
	}

	status := models.DeliverySent
	errMsg := ""
	if stepErr != nil {
		status = models.DeliveryFailed
		errMsg = stepErr.Error()
	}

	// Archive: log entry and issue land together, and the unique
	// (newsletter, local date) index turns a racing duplicate into a no-op.
	entry := &models.DeliveryLog{
		NewsletterID: n.ID,
		LocalDate:    localDate,
		SentAt:       now,
		Status:       status,
		ErrorMessage: errMsg,
	}
	issue := &models.Issue{
		NewsletterID: n.ID,
		Content:      content,
		SourcesData:  snapshots(results),
		SentAt:       now,
		EmailStatus:  status,
		ErrorMessage: errMsg,
	}
	if err := d.repo.RecordDelivery(ctx, entry, issue); err != nil {
		if errors.Is(err, storage.ErrDuplicateDelivery) {
			log.Warn().Msg("Delivery already recorded for today, skipping")
			return outcomeSkipped
		}
		log.Error().Err(err).Msg("Failed to archive delivery")
		return outcomeFailed
	}

	for _, res := range results {
		if !res.OK {
			continue
		}
		if err := d.repo.MarkSourceFetched(ctx, res.Source.ID, res.FetchedAt); err != nil {
			log.Warn().Err(err).Uint("source_id", res.Source.ID).Msg("Failed to update source fetch time")
		}
	}

	if stepErr != nil {
		log.Warn().Err(stepErr).Int("issue_number", issue.IssueNumber).Msg("Delivery failed and archived")
		return outcomeFailed
	}
	log.Info().Int("issue_number", issue.IssueNumber).Msg("Issue delivered and archived")
	return outcomeSent
}

// healthcheck probes dependent services without fetching or sending
func (d *Dispatcher) healthcheck(ctx context.Context) error {
	if err := d.repo.Ping(ctx); err != nil {
		return fmt.Errorf("storage unreachable: %w", err)
	}
	if hc, ok := d.sender.(healthChecker); ok {
		if err := hc.Healthcheck(ctx); err != nil {
			return fmt.Errorf("mail transport unreachable: %w", err)
		}
	}
	d.log.Info().Msg("Health check passed")
	return nil
}

func snapshots(results []source.FetchResult) models.SnapshotList {
	out := make(models.SnapshotList, 0, len(results))
	for _, res := range results {
		lastUpdated := ""
		switch {
		case res.OK:
			lastUpdated = res.FetchedAt.Format(time.RFC3339)
		case res.Source.LastUpdated != nil:
			lastUpdated = res.Source.LastUpdated.Format(time.RFC3339)
		}
		out = append(out, models.SourceSnapshot{
			Title:       res.Title,
			Type:        res.Source.Type,
			Data:        res.Rows,
			LastUpdated: lastUpdated,
		})
	}
	return out
}
