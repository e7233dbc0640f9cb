package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/newsletter-engine/internal/config"
	"github.com/newsletter-engine/internal/dispatch"
	"github.com/newsletter-engine/internal/mail/resend"
	"github.com/newsletter-engine/internal/render"
	"github.com/newsletter-engine/internal/source"
	"github.com/newsletter-engine/internal/source/catalog"
	"github.com/newsletter-engine/internal/storage/sqlite"
	"github.com/newsletter-engine/pkg/logger"
	"github.com/newsletter-engine/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "newsletter-scheduler",
		Short: "Background scheduler for the newsletter engine",
		Long: `Runs the dispatch loop on a fixed cadence. Each tick finds every
newsletter due in the current window and drives fetch, render, send,
and archive with per-newsletter isolation.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting newsletter scheduler")

	// Initialize storage
	repo, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Start health check server
	go startHealthServer()

	// Initialize rate limiter and source modules
	limiter := ratelimit.NewDefaultLimiter()
	deps := source.DefaultDeps(log)
	deps.Limiter = limiter
	registry := catalog.New(deps)

	orch := source.NewOrchestrator(registry, cfg.Dispatch.FetchTimeout(), cfg.Dispatch.SourceParallelism, log)

	renderer, err := render.NewHTML()
	if err != nil {
		return fmt.Errorf("failed to build renderer: %w", err)
	}

	sender := resend.New(resend.Config{
		APIKey:      cfg.Mail.APIKey,
		SenderName:  cfg.Mail.SenderName,
		SenderEmail: cfg.Mail.SenderEmail,
	}, limiter, log)

	dispatcher := dispatch.New(repo, orch, renderer, sender, dispatch.Config{
		Window:  cfg.Dispatch.Window(),
		Workers: cfg.Dispatch.Workers,
	}, log)

	// Create cron scheduler
	c := cron.New(cron.WithLogger(cronLogger{log}))

	_, err = c.AddFunc(cfg.Scheduler.DispatchCron, func() {
		ctx := context.Background()
		log.Info().Msg("Running scheduled dispatch")

		result, err := dispatcher.Run(ctx, dispatch.ModeSend)
		if err != nil {
			log.Error().Err(err).Msg("Scheduled dispatch failed")
			return
		}

		log.Info().
			Int("sent", result.Sent).
			Int("failed", result.Failed).
			Int("total", result.Total).
			Msg("Scheduled dispatch completed")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule dispatch job: %w", err)
	}
	log.Info().Str("cron", cfg.Scheduler.DispatchCron).Msg("Dispatch job scheduled")

	// Start scheduler
	c.Start()
	log.Info().Msg("Scheduler started")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down scheduler")
	c.Stop()

	return nil
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Msgf(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Msgf(msg, keysAndValues...)
}

// startHealthServer starts a simple HTTP server for platform health checks
func startHealthServer() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "10000"
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Newsletter Scheduler"))
	})

	log.Info().Str("port", port).Msg("Health check server starting")
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Error().Err(err).Msg("Health server failed")
	}
}
