package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abdulachik/spamsweep/internal/app"
	"github.com/abdulachik/spamsweep/internal/config"
	"github.com/abdulachik/spamsweep/internal/metrics"
	"github.com/abdulachik/spamsweep/internal/scheduler"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sweep daemon",
	Long: `Run the SpamSweep daemon: refresh the rules, page through the public
timeline to the live edge and follow the live stream, over and over, until
interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.ValidateForServe(); err != nil {
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

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(metrics.Config{
			Addr:    cfg.MetricsAddr,
			Version: version,
			Health:  a.Scheduler.Health(),
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	slog.Info("starting SpamSweep daemon",
		"instance", cfg.Instance,
		"dry_run", cfg.DryRun,
		"refresh_interval", cfg.RulesRefreshInterval,
		"stream", cfg.StreamEnabled,
		"transport", cfg.StreamTransport,
	)

	if err := a.Serve(ctx); err != nil && !scheduler.IsShutdown(err) {
		return fmt.Errorf("scheduler error: %w", err)
	}

	slog.Info("shutting down...", "last_id", a.Tracker.Value())
	return nil
}
