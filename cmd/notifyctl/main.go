// Command notifyctl is the admin CLI for the event-start notifier.
//
// Usage:
//
//	notifyctl run-once
//	notifyctl run-once --dry-run
//	notifyctl audience --event 42
//	notifyctl ledger show --event 42
//	notifyctl ledger prune
//	notifyctl migrate
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/seevents/event-notifier/internal/app"
	"github.com/seevents/event-notifier/internal/config"
	"github.com/seevents/event-notifier/internal/db"
	"github.com/seevents/event-notifier/internal/maintenance"
	"github.com/seevents/event-notifier/internal/notifications"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "notifyctl",
		Short:        "Event-start notifier admin CLI",
		SilenceUsage: true,
	}

	root.AddCommand(runOnceCmd())
	root.AddCommand(audienceCmd())
	root.AddCommand(ledgerCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// run-once command
// --------------------------------------------------------------------------

func runOnceCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Run a single notification cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(func(ctx context.Context, cfg *config.Config, a *app.App) error {
				result, err := a.Pipeline.RunCycle(ctx, notifications.RunOptions{DryRun: dryRun})
				if err != nil {
					return err
				}
				logger.Info("Cycle finished", "cycle_id", result.CycleID, "summary", result.Summary())
				for _, e := range result.Errors {
					logger.Error("cycle error", "error", e)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EVENT\tSTATUS\tAUDIENCE\tTOKENS\tSENT\tFAILED\tERROR")
				for _, o := range result.Outcomes {
					fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%s\n",
						o.EventID, o.Status, o.Audience, o.Tokens, o.Sent, o.Failed, o.Error)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve audiences without sending or writing the ledger")
	return cmd
}

// --------------------------------------------------------------------------
// audience command
// --------------------------------------------------------------------------

func audienceCmd() *cobra.Command {
	var eventID int64
	cmd := &cobra.Command{
		Use:   "audience",
		Short: "Print the resolved audience of an event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if eventID <= 0 {
				return fmt.Errorf("--event is required")
			}
			return runWithApp(func(ctx context.Context, cfg *config.Config, a *app.App) error {
				pv, err := a.Pipeline.Preview(ctx, eventID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Event %d %q (%s) starts %s\n",
					pv.Event.ID, pv.Event.Name, pv.Event.Category, pv.Event.StartTime.Format(time.RFC3339))
				fmt.Fprintf(out, "eligible=%t in_window=%t notified=%t audience=%d tokens=%d\n\n",
					pv.Eligible, pv.InWindow, pv.Ledger != nil, len(pv.Recipients), pv.Tokens)

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "USER\tTOKEN\tREASONS")
				for _, r := range pv.Recipients {
					fmt.Fprintf(w, "%s\t%t\t%s\n", r.ID, r.PushToken != "", r.Reasons)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().Int64Var(&eventID, "event", 0, "Event ID")
	return cmd
}

// --------------------------------------------------------------------------
// ledger commands
// --------------------------------------------------------------------------

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and maintain the notified-events ledger",
	}
	cmd.AddCommand(ledgerShowCmd())
	cmd.AddCommand(ledgerPruneCmd())
	return cmd
}

func ledgerShowCmd() *cobra.Command {
	var eventID int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the ledger entry of an event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if eventID <= 0 {
				return fmt.Errorf("--event is required")
			}
			return runWithApp(func(ctx context.Context, cfg *config.Config, a *app.App) error {
				entry, err := a.Ledger.Lookup(ctx, eventID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"event_id": eventID,
					"notified": entry != nil,
					"entry":    entry,
				})
			})
		},
	}
	cmd.Flags().Int64Var(&eventID, "event", 0, "Event ID")
	return cmd
}

func ledgerPruneCmd() *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete ledger entries of events that ended before the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(func(ctx context.Context, cfg *config.Config, a *app.App) error {
				if retention <= 0 {
					retention = cfg.LedgerRetention
				}
				n, err := maintenance.PruneLedger(ctx, a.Ledger, retention, time.Now(), logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d ledger entries\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "Override LEDGER_RETENTION (e.g. 72h)")
	return cmd
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger table and the schedule-change trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			pool, err := db.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool.Pool); err != nil {
				return err
			}
			logger.Info("Schema applied")
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runWithApp handles config loading, pipeline construction, and context
// cancellation.
func runWithApp(fn func(ctx context.Context, cfg *config.Config, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, cfg, a)
}
