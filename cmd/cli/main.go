package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/newsletter-engine/internal/config"
	"github.com/newsletter-engine/internal/dispatch"
	"github.com/newsletter-engine/internal/mail/resend"
	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/internal/render"
	"github.com/newsletter-engine/internal/schedule"
	"github.com/newsletter-engine/internal/source"
	"github.com/newsletter-engine/internal/source/catalog"
	"github.com/newsletter-engine/internal/storage"
	"github.com/newsletter-engine/internal/storage/sqlite"
	"github.com/newsletter-engine/pkg/logger"
	"github.com/newsletter-engine/pkg/ratelimit"
)

var (
	cfgFile  string
	cfg      *config.Config
	log      *logger.Logger
	repo     storage.Repository
	registry *source.Registry
	limiter  *ratelimit.MultiLimiter
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "newsletter-engine",
		Short: "Personalized digest newsletter engine",
		Long: `Assembles and delivers personalized digest emails built from
pluggable data sources on per-newsletter schedules.`,
		PersistentPreRunE: initializeApp,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(dispatchCmd())
	rootCmd.AddCommand(newslettersCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
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

	// Initialize storage
	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize source modules
	limiter = ratelimit.NewDefaultLimiter()
	deps := source.DefaultDeps(log)
	deps.Limiter = limiter
	registry = catalog.New(deps)

	return nil
}

func newDispatcher() (*dispatch.Dispatcher, error) {
	orch := source.NewOrchestrator(registry, cfg.Dispatch.FetchTimeout(), cfg.Dispatch.SourceParallelism, log)

	renderer, err := render.NewHTML()
	if err != nil {
		return nil, fmt.Errorf("failed to build renderer: %w", err)
	}

	sender := resend.New(resend.Config{
		APIKey:      cfg.Mail.APIKey,
		SenderName:  cfg.Mail.SenderName,
		SenderEmail: cfg.Mail.SenderEmail,
	}, limiter, log)

	return dispatch.New(repo, orch, renderer, sender, dispatch.Config{
		Window:  cfg.Dispatch.Window(),
		Workers: cfg.Dispatch.Workers,
	}, log), nil
}

// ============ DISPATCH COMMAND ============

func dispatchCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run one dispatch cycle",
		Long: `Finds every newsletter due in the current window and drives
fetch, render, send, and archive. This is the same entry point the
background scheduler triggers on its cadence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := dispatch.ParseMode(mode)
			if err != nil {
				return err
			}

			d, err := newDispatcher()
			if err != nil {
				return err
			}

			result, err := d.Run(context.Background(), m)
			if err != nil {
				return err
			}

			if m == dispatch.ModeHealthCheck {
				fmt.Println("All dependent services reachable")
				return nil
			}
			fmt.Printf("Dispatch complete: %d sent, %d failed, %d total\n",
				result.Sent, result.Failed, result.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "send", "dispatch mode: send, dry-run, or health-check")
	return cmd
}

// ============ NEWSLETTER COMMANDS ============

func newslettersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newsletters",
		Short: "Inspect and manage newsletters",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all newsletters",
		RunE: func(cmd *cobra.Command, args []string) error {
			newsletters, err := repo.ListNewsletters(context.Background(), 0)
			if err != nil {
				return err
			}
			if len(newsletters) == 0 {
				fmt.Println("No newsletters configured")
				return nil
			}
			for _, n := range newsletters {
				state := "active"
				if n.IsPaused {
					state = "paused"
				}
				fmt.Printf("[%d] %s - %s at %s (%s, %s)\n",
					n.ID, n.Title, n.Frequency, n.SendTime, n.Timezone, state)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "next [id]",
		Short: "Show the next send instant for a newsletter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid newsletter id: %w", err)
			}
			n, err := repo.GetNewsletterByID(context.Background(), uint(id))
			if err != nil {
				return err
			}
			if n.IsPaused {
				fmt.Printf("[%d] %s is paused; never due\n", n.ID, n.Title)
				return nil
			}

			now := time.Now()
			localDate, err := schedule.LocalDate(n.Timezone, now)
			if err != nil {
				return err
			}
			sentToday, err := repo.HasDeliveryOn(context.Background(), n.ID, localDate)
			if err != nil {
				return err
			}
			next, err := schedule.NextSend(n, now, sentToday)
			if err != nil {
				return err
			}
			fmt.Printf("[%d] %s next sends at %s\n", n.ID, n.Title, next.Format("Mon Jan 2 2006 15:04 MST"))
			return nil
		},
	})

	cmd.AddCommand(pauseCmd("pause", true))
	cmd.AddCommand(pauseCmd("resume", false))

	return cmd
}

func pauseCmd(verb string, paused bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " [id]",
		Short: verb + " a newsletter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid newsletter id: %w", err)
			}
			if err := repo.SetPaused(context.Background(), uint(id), paused); err != nil {
				return err
			}
			fmt.Printf("Newsletter %d %sd\n", id, verb)
			return nil
		},
	}
}

// ============ SOURCE COMMANDS ============

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect configured sources and module types",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "types",
		Short: "List supported source module types",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range registry.Types() {
				mod, err := registry.NewByType(t, models.JSON{})
				if err != nil {
					return err
				}
				fmt.Printf("%-12s %s\n", t, mod.Title())
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list [newsletter-id]",
		Short: "List a newsletter's sources in display order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid newsletter id: %w", err)
			}
			sources, err := repo.ListSources(context.Background(), uint(id))
			if err != nil {
				return err
			}
			for _, s := range sources {
				last := "never"
				if s.LastUpdated != nil {
					last = s.LastUpdated.Format(time.RFC3339)
				}
				fmt.Printf("%2d. [%d] %s (%s) last fetched %s\n",
					s.DisplayOrder, s.ID, s.DisplayName(s.Type), s.Type, last)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [type] [config-json]",
		Short: "Validate a config blob against a module's schema",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfgBlob models.JSON
			if err := json.Unmarshal([]byte(args[1]), &cfgBlob); err != nil {
				return fmt.Errorf("invalid config JSON: %w", err)
			}
			mod, err := registry.NewByType(args[0], cfgBlob)
			if err != nil {
				return err
			}
			if err := mod.ValidateConfig(cfgBlob); err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			fmt.Println("Config valid")
			return nil
		},
	})

	return cmd
}

// ============ HISTORY COMMANDS ============

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and search archived issues",
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list [newsletter-id]",
		Short: "List archived issues, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid newsletter id: %w", err)
			}
			ctx := context.Background()
			issues, err := repo.GetHistory(ctx, uint(id), limit, offset)
			if err != nil {
				return err
			}
			total, err := repo.GetHistoryCount(ctx, uint(id))
			if err != nil {
				return err
			}
			for _, issue := range issues {
				line := fmt.Sprintf("#%d sent %s status=%s",
					issue.IssueNumber, issue.SentAt.Format("2006-01-02 15:04"), issue.EmailStatus)
				if issue.ErrorMessage != "" {
					line += " error=" + issue.ErrorMessage
				}
				fmt.Println(line)
			}
			fmt.Printf("(%d of %d issues)\n", len(issues), total)
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum issues to show")
	listCmd.Flags().IntVar(&offset, "offset", 0, "issues to skip")
	cmd.AddCommand(listCmd)

	var userID, searchNewsletter uint
	var searchLimit int
	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search archived issue content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var nID *uint
			if searchNewsletter != 0 {
				nID = &searchNewsletter
			}
			issues, err := repo.SearchHistory(context.Background(), userID, args[0], nID, searchLimit)
			if err != nil {
				return err
			}
			if len(issues) == 0 {
				fmt.Println("No matching issues")
				return nil
			}
			for _, issue := range issues {
				fmt.Printf("newsletter=%d #%d sent %s status=%s\n",
					issue.NewsletterID, issue.IssueNumber,
					issue.SentAt.Format("2006-01-02 15:04"), issue.EmailStatus)
			}
			return nil
		},
	}
	searchCmd.Flags().UintVar(&userID, "user", 0, "owning user id")
	searchCmd.Flags().UintVar(&searchNewsletter, "newsletter", 0, "restrict to one newsletter")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum issues to show")
	cmd.AddCommand(searchCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show [newsletter-id] [issue-number]",
		Short: "Print one archived issue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid newsletter id: %w", err)
			}
			num, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid issue number: %w", err)
			}
			issue, err := repo.GetIssue(context.Background(), uint(id), num)
			if err != nil {
				return err
			}
			fmt.Printf("Issue #%d sent %s status=%s\n", issue.IssueNumber,
				issue.SentAt.Format(time.RFC3339), issue.EmailStatus)
			if issue.ErrorMessage != "" {
				fmt.Printf("Error: %s\n", issue.ErrorMessage)
			}
			fmt.Println(issue.Content)
			return nil
		},
	})

	return cmd
}
