// Package scheduler runs the control loop: it owns the cursor and the
// active rule set and drives rule refreshes, timeline passes, enforcement
// and streaming.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abdulachik/spamsweep/internal/cursor"
	"github.com/abdulachik/spamsweep/internal/enforcer"
	"github.com/abdulachik/spamsweep/internal/rules"
	"github.com/abdulachik/spamsweep/internal/scanner"
)

// RuleLoader loads the rule set.
type RuleLoader interface {
	Load(ctx context.Context, previous *rules.Set) (*rules.Set, error)
	Location() string
}

// Pager runs one timeline pass.
type Pager interface {
	Run(ctx context.Context, set *rules.Set, tracker *cursor.Tracker) *scanner.Result
}

// Streamer reads the live stream for a bounded time.
type Streamer interface {
	Run(ctx context.Context, budget time.Duration, set *rules.Set, tracker *cursor.Tracker) *scanner.Result
}

// Handler acts on a batch of hits.
type Handler interface {
	Handle(ctx context.Context, hits []scanner.Hit) *enforcer.Report
}

// Scheduler orchestrates the scan cycle.
type Scheduler struct {
	loader    RuleLoader
	paginator Pager
	consumer  Streamer
	handler   Handler
	tracker   *cursor.Tracker
	health    *Health

	refreshInterval time.Duration
	streamBudget    time.Duration
	pollInterval    time.Duration

	set         *rules.Set
	lastRefresh time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds scheduler configuration. Consumer is nil when streaming is
// disabled.
type Config struct {
	Rules     RuleLoader
	Paginator Pager
	Consumer  Streamer
	Handler   Handler
	Tracker   *cursor.Tracker

	RefreshInterval time.Duration
	StreamBudget    time.Duration
	PollInterval    time.Duration
}

// New creates a new scheduler.
func New(cfg Config) *Scheduler {
	if cfg.StreamBudget <= 0 {
		cfg.StreamBudget = cfg.RefreshInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}

	return &Scheduler{
		loader:          cfg.Rules,
		paginator:       cfg.Paginator,
		consumer:        cfg.Consumer,
		handler:         cfg.Handler,
		tracker:         cfg.Tracker,
		health:          NewHealth(),
		refreshInterval: cfg.RefreshInterval,
		streamBudget:    cfg.StreamBudget,
		pollInterval:    cfg.PollInterval,
		now:             time.Now,
		sleep:           sleepContext,
	}
}

// Health returns the health tracker.
func (s *Scheduler) Health() *Health {
	return s.health
}

// Rules returns the active rule set.
func (s *Scheduler) Rules() *rules.Set {
	return s.set
}

// LoadRules loads the initial rule set. Failure here is fatal to the
// caller.
func (s *Scheduler) LoadRules(ctx context.Context) error {
	set, err := s.loader.Load(ctx, nil)
	if err != nil {
		ruleRefreshes.WithLabelValues("failed").Inc()
		s.health.SetUnhealthy(ComponentRules, err)
		return fmt.Errorf("load rules from %s: %w", s.loader.Location(), err)
	}

	s.install(set)
	ruleRefreshes.WithLabelValues("loaded").Inc()
	slog.Info("rules loaded", "source", s.loader.Location(), "rules", set.Len())
	return nil
}

// RefreshRules reloads the rule set if the refresh interval has elapsed.
// On failure the previous set stays active.
func (s *Scheduler) RefreshRules(ctx context.Context) {
	if s.set != nil && s.now().Sub(s.lastRefresh) < s.refreshInterval {
		return
	}

	set, err := s.loader.Load(ctx, s.set)
	if err != nil {
		ruleRefreshes.WithLabelValues("failed").Inc()
		s.health.SetUnhealthy(ComponentRules, err)
		slog.Error("rule refresh failed, keeping previous rules", "source", s.loader.Location(), "rules", s.set.Len(), "error", err)
		// Retry on the next cycle.
		s.lastRefresh = s.now()
		return
	}

	if set == s.set {
		ruleRefreshes.WithLabelValues("not_modified").Inc()
		s.lastRefresh = s.now()
		s.health.SetHealthy(ComponentRules, "unchanged")
		return
	}

	s.install(set)
	ruleRefreshes.WithLabelValues("loaded").Inc()
	slog.Info("rules reloaded", "source", s.loader.Location(), "rules", set.Len(), "etag", set.ETag)
}

func (s *Scheduler) install(set *rules.Set) {
	s.set = set
	s.lastRefresh = s.now()
	activeRules.Set(float64(set.Len()))
	s.health.SetHealthy(ComponentRules, fmt.Sprintf("%d rules", set.Len()))
}

// Pass runs one timeline pass to the live edge and hands its hits to the
// handler. The hits are handled even when the pass ended on an error.
func (s *Scheduler) Pass(ctx context.Context) (*scanner.Result, *enforcer.Report) {
	result := s.paginator.Run(ctx, s.set, s.tracker)
	s.observe(ComponentTimeline, result)

	report := s.handle(ctx, result)
	return result, report
}

// Stream reads the live stream for the configured budget and hands its
// hits to the handler.
func (s *Scheduler) Stream(ctx context.Context) (*scanner.Result, *enforcer.Report) {
	result := s.consumer.Run(ctx, s.streamBudget, s.set, s.tracker)
	s.observe(ComponentStream, result)

	report := s.handle(ctx, result)
	return result, report
}

func (s *Scheduler) handle(ctx context.Context, result *scanner.Result) *enforcer.Report {
	if len(result.Hits) == 0 {
		return nil
	}

	// The cursor is already past these hits; they are handled even after
	// shutdown was requested.
	report := s.handler.Handle(context.WithoutCancel(ctx), result.Hits)
	if failed := report.Failed(); failed > 0 {
		s.health.SetUnhealthy(ComponentEnforcer, fmt.Errorf("%d account(s) with failed actions", failed))
	} else {
		s.health.SetHealthy(ComponentEnforcer, fmt.Sprintf("%d account(s) handled", report.Acted()))
	}
	return report
}

func (s *Scheduler) observe(component string, result *scanner.Result) {
	cursorPosition(s.tracker.Value())

	attrs := []any{
		"source", result.Source,
		"outcome", result.Outcome,
		"pages", result.Pages,
		"events", result.Events,
		"evaluated", result.Evaluated,
		"skipped", result.Skipped,
		"hits", len(result.Hits),
		"cursor", s.tracker.Value(),
	}

	switch result.Outcome {
	case scanner.OutcomeComplete:
		s.health.SetHealthy(component, result.Outcome.String())
		slog.Info("pass complete", attrs...)
	case scanner.OutcomeCanceled:
		slog.Info("pass canceled", attrs...)
	default:
		s.health.SetUnhealthy(component, result.Err)
		slog.Warn("pass ended early", append(attrs, "error", result.Err)...)
	}
}

// Run loads the rules and repeats the cycle until ctx is canceled: refresh
// rules, page to the live edge, then stream for the budget or, with
// streaming disabled, wait for the poll interval.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("starting scheduler",
		"rules", s.loader.Location(),
		"refresh_interval", s.refreshInterval,
		"streaming", s.consumer != nil,
		"stream_budget", s.streamBudget,
		"poll_interval", s.pollInterval,
		"cursor", s.tracker.Value(),
	)

	if s.set == nil {
		if err := s.LoadRules(ctx); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			slog.Info("scheduler shutting down", "cursor", s.tracker.Value())
			return err
		}

		cycles.Inc()
		s.RefreshRules(ctx)

		if s.consumer == nil {
			s.Pass(ctx)
			if ctx.Err() == nil {
				s.sleep(ctx, s.pollInterval)
			}
			continue
		}

		result := s.passAndStream(ctx)
		if result != nil && result.Failed() && ctx.Err() == nil {
			// Back off before reconnecting.
			s.sleep(ctx, s.pollInterval)
		}
	}
}

// passAndStream runs a timeline pass and then streams. The pass's hits are
// handled while the stream session runs, so the stream connects right at the
// live edge. It returns nil if ctx was canceled before streaming started.
func (s *Scheduler) passAndStream(ctx context.Context) *scanner.Result {
	pass := s.paginator.Run(ctx, s.set, s.tracker)
	s.observe(ComponentTimeline, pass)
	if ctx.Err() != nil {
		s.handle(ctx, pass)
		return nil
	}

	handled := make(chan struct{})
	go func() {
		defer close(handled)
		s.handle(ctx, pass)
	}()

	result := s.consumer.Run(ctx, s.streamBudget, s.set, s.tracker)
	s.observe(ComponentStream, result)

	<-handled
	s.handle(ctx, result)
	return result
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsShutdown reports whether err only signals a requested shutdown.
func IsShutdown(err error) bool {
	return errors.Is(err, context.Canceled)
}
