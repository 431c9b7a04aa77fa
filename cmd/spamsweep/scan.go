package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/abdulachik/spamsweep/internal/app"
	"github.com/abdulachik/spamsweep/internal/config"
	"github.com/abdulachik/spamsweep/internal/enforcer"
	"github.com/abdulachik/spamsweep/internal/scanner"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the public timeline once",
	Long: `Read the public timeline from the persisted cursor up to the live edge,
act on every hit and save the cursor.

With MASTODON_STATUS_ID set only that post is evaluated and the cursor is
left untouched.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) (err error) {
	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.ValidateForScan(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if cfg.StatusID != "" {
		return a.Guard(func() error {
			if err := a.Scheduler.LoadRules(ctx); err != nil {
				return err
			}
			return scanStatus(ctx, a, cfg.StatusID)
		})
	}

	slog.Info("starting scan",
		"instance", cfg.Instance,
		"min_id", a.Tracker.Value(),
		"dry_run", cfg.DryRun,
	)

	result, report, err := a.Scan(ctx)
	if err != nil {
		return err
	}
	printResult(result, report)

	switch result.Outcome {
	case scanner.OutcomeComplete:
		return nil
	case scanner.OutcomeCanceled:
		slog.Info("scan interrupted", "last_id", a.Tracker.Value())
		return nil
	default:
		return fmt.Errorf("scan ended early (%s): %w", result.Outcome, result.Err)
	}
}

// scanStatus evaluates a single post and acts on it if it is a hit.
func scanStatus(ctx context.Context, a *app.App, id string) error {
	verdict, err := a.Paginator.Check(ctx, id, a.Scheduler.Rules())
	if err != nil {
		return err
	}

	result := &scanner.Result{Source: "check", Evaluated: 1}
	if verdict.Matched {
		result.Hits = []scanner.Hit{{Post: verdict.Post, Reason: verdict.Reason}}
	}

	var report *enforcer.Report
	if len(result.Hits) > 0 {
		report = a.Enforcer.Handle(ctx, result.Hits)
	}
	printResult(result, report)
	return nil
}

func printResult(result *scanner.Result, report *enforcer.Report) {
	fmt.Fprintf(os.Stdout, "Source:    %s\n", result.Source)
	fmt.Fprintf(os.Stdout, "Outcome:   %s\n", result.Outcome)
	fmt.Fprintf(os.Stdout, "Pages:     %d\n", result.Pages)
	fmt.Fprintf(os.Stdout, "Evaluated: %d\n", result.Evaluated)
	fmt.Fprintf(os.Stdout, "Skipped:   %d\n", result.Skipped)
	fmt.Fprintf(os.Stdout, "Hits:      %d\n", len(result.Hits))

	if report == nil {
		return
	}

	fmt.Println()
	notice := enforcer.Summarize(report)
	fmt.Println(notice.Subject)
	fmt.Println(notice.Body)
}
