// Package app wires the application's dependencies together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abdulachik/spamsweep/internal/config"
	"github.com/abdulachik/spamsweep/internal/cursor"
	"github.com/abdulachik/spamsweep/internal/db"
	"github.com/abdulachik/spamsweep/internal/enforcer"
	"github.com/abdulachik/spamsweep/internal/httpclient"
	"github.com/abdulachik/spamsweep/internal/mastodon"
	"github.com/abdulachik/spamsweep/internal/notify"
	"github.com/abdulachik/spamsweep/internal/rules"
	"github.com/abdulachik/spamsweep/internal/scanner"
	"github.com/abdulachik/spamsweep/internal/scheduler"
)

// App is the main application container holding all dependencies.
type App struct {
	Config    *config.Config
	Store     *db.Store
	Client    *mastodon.Client
	Rules     *rules.Source
	Tracker   *cursor.Tracker
	Paginator *scanner.Paginator
	Enforcer  *enforcer.Enforcer
	Scheduler *scheduler.Scheduler
}

// NewClient creates the Mastodon client for cfg.
func NewClient(cfg *config.Config) *mastodon.Client {
	return mastodon.New(mastodon.Config{
		Instance:   cfg.Instance,
		Token:      cfg.Token,
		HTTPClient: httpclient.New(30 * time.Second),
	})
}

// NewRuleSource creates the rule source for cfg.
func NewRuleSource(cfg *config.Config) *rules.Source {
	return rules.NewSource(rules.SourceConfig{
		Location:   cfg.RulesURL,
		HTTPClient: httpclient.New(30 * time.Second),
	})
}

// NewPaginator creates a timeline paginator reading through client.
func NewPaginator(cfg *config.Config, client *mastodon.Client) *scanner.Paginator {
	return scanner.NewPaginator(scanner.PaginatorConfig{
		Timeline:    client,
		PageSize:    cfg.PageSize,
		MinInterval: cfg.MinRequestInterval,
	})
}

// New creates a new application instance with all dependencies wired up.
// The cursor is resolved from the explicit id, the cursor file or the
// start offset, in that order.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := db.NewStore(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	cursorFile := cursor.NewFile(cfg.CursorPath)
	initial, origin, err := cursor.Resolve(cfg.MinID, cursorFile, time.Now(), cfg.StartOffset)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("resolve cursor: %w", err)
	}
	tracker, err := cursor.NewTracker(initial, cursorFile)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create cursor: %w", err)
	}
	slog.Info("cursor resolved", "min_id", initial, "origin", origin, "path", cursorFile.Path())

	client := NewClient(cfg)

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.NotifyHandle != "" {
		notifier = notify.NewMastodonNotifier(notify.MastodonConfig{
			Poster:   client,
			ToHandle: cfg.NotifyHandle,
		})
	}

	enf, err := enforcer.New(enforcer.Config{
		Admin:    client,
		Ledger:   store,
		Notifier: notifier,
		DryRun:   cfg.DryRun,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	source := NewRuleSource(cfg)
	paginator := NewPaginator(cfg, client)

	var consumer scheduler.Streamer
	if cfg.StreamEnabled {
		consumer = scanner.NewConsumer(streamOpener(cfg, client))
	}

	sched := scheduler.New(scheduler.Config{
		Rules:           source,
		Paginator:       paginator,
		Consumer:        consumer,
		Handler:         enf,
		Tracker:         tracker,
		RefreshInterval: cfg.RulesRefreshInterval,
		StreamBudget:    cfg.StreamBudget,
		PollInterval:    cfg.PollInterval,
	})

	return &App{
		Config:    cfg,
		Store:     store,
		Client:    client,
		Rules:     source,
		Tracker:   tracker,
		Paginator: paginator,
		Enforcer:  enf,
		Scheduler: sched,
	}, nil
}

func streamOpener(cfg *config.Config, client *mastodon.Client) scanner.Opener {
	if cfg.StreamTransport == config.TransportWebSocket {
		return client.OpenWebSocket
	}
	return client.OpenStream
}

// Close persists the cursor and closes all resources. It is safe to call
// more than once; the cursor is written only on the first call.
func (a *App) Close() error {
	var errs []error
	if a.Tracker != nil {
		if err := a.Tracker.Persist(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		a.Store = nil
	}
	return errors.Join(errs...)
}
