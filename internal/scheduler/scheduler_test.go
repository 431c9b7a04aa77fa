package scheduler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/abdulachik/spamsweep/internal/cursor"
	"github.com/abdulachik/spamsweep/internal/enforcer"
	"github.com/abdulachik/spamsweep/internal/mastodon"
	"github.com/abdulachik/spamsweep/internal/rules"
	"github.com/abdulachik/spamsweep/internal/scanner"
	"github.com/abdulachik/spamsweep/internal/toot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	sets  []*rules.Set
	errs  []error
	calls int
	prevs []*rules.Set
}

func (f *fakeLoader) Load(ctx context.Context, previous *rules.Set) (*rules.Set, error) {
	i := f.calls
	f.calls++
	f.prevs = append(f.prevs, previous)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.sets) {
		if f.sets[i] == nil {
			return previous, nil
		}
		return f.sets[i], nil
	}
	return previous, nil
}

func (f *fakeLoader) Location() string { return "rules.yaml" }

type fakePager struct {
	log     *[]string
	results []*scanner.Result
	sets    []*rules.Set
	onRun   func()
}

func (f *fakePager) Run(ctx context.Context, set *rules.Set, tracker *cursor.Tracker) *scanner.Result {
	*f.log = append(*f.log, "page")
	f.sets = append(f.sets, set)
	if f.onRun != nil {
		f.onRun()
	}
	if len(f.results) == 0 {
		return &scanner.Result{Source: "timeline"}
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r
}

type fakeStreamer struct {
	log     *[]string
	budgets []time.Duration
	onRun   func()
	result  *scanner.Result
}

func (f *fakeStreamer) Run(ctx context.Context, budget time.Duration, set *rules.Set, tracker *cursor.Tracker) *scanner.Result {
	*f.log = append(*f.log, "stream")
	f.budgets = append(f.budgets, budget)
	if f.onRun != nil {
		f.onRun()
	}
	if f.result != nil {
		return f.result
	}
	return &scanner.Result{Source: "stream"}
}

type fakeHandler struct {
	batches  [][]scanner.Hit
	ctxErrs  []error
	report   *enforcer.Report
	onHandle func()
}

func (f *fakeHandler) Handle(ctx context.Context, hits []scanner.Hit) *enforcer.Report {
	if f.onHandle != nil {
		f.onHandle()
	}
	f.batches = append(f.batches, hits)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.report != nil {
		return f.report
	}
	return &enforcer.Report{Hits: len(hits)}
}

func ruleSet(etag string) *rules.Set {
	needle := "spam"
	return &rules.Set{Rules: []rules.Rule{{ContentContains: &needle}}, ETag: etag}
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *time.Time) {
	t.Helper()
	tracker, err := cursor.NewTracker("100", nil)
	require.NoError(t, err)
	cfg.Tracker = tracker
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 5 * time.Minute
	}

	s := New(cfg)
	clock := time.Date(2024, 2, 18, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return s, &clock
}

func TestScheduler_LoadRules(t *testing.T) {
	t.Run("failure is reported", func(t *testing.T) {
		loader := &fakeLoader{errs: []error{errors.New("no such file")}}
		s, _ := newTestScheduler(t, Config{Rules: loader})

		err := s.LoadRules(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rules.yaml")
		assert.False(t, s.Health().GetStatus(ComponentRules).Healthy)
	})

	t.Run("run fails without initial rules", func(t *testing.T) {
		var log []string
		loader := &fakeLoader{errs: []error{errors.New("bad document")}}
		s, _ := newTestScheduler(t, Config{Rules: loader, Paginator: &fakePager{log: &log}})

		err := s.Run(context.Background())
		require.Error(t, err)
		assert.Empty(t, log)
	})
}

func TestScheduler_RefreshRules(t *testing.T) {
	first, second := ruleSet("a"), ruleSet("b")
	loader := &fakeLoader{
		sets: []*rules.Set{first, nil, nil, second},
		errs: []error{nil, nil, errors.New("unreachable"), nil},
	}
	s, clock := newTestScheduler(t, Config{Rules: loader, RefreshInterval: time.Minute})
	ctx := context.Background()

	require.NoError(t, s.LoadRules(ctx))
	assert.Same(t, first, s.Rules())

	// Interval not elapsed.
	s.RefreshRules(ctx)
	assert.Equal(t, 1, loader.calls)

	// Unchanged document.
	*clock = clock.Add(time.Minute)
	s.RefreshRules(ctx)
	assert.Equal(t, 2, loader.calls)
	assert.Same(t, first, loader.prevs[1])
	assert.Same(t, first, s.Rules())

	// Failure keeps the previous set.
	*clock = clock.Add(time.Minute)
	s.RefreshRules(ctx)
	assert.Same(t, first, s.Rules())
	assert.False(t, s.Health().GetStatus(ComponentRules).Healthy)

	// New document replaces the set.
	*clock = clock.Add(time.Minute)
	s.RefreshRules(ctx)
	assert.Same(t, second, s.Rules())
	assert.True(t, s.Health().GetStatus(ComponentRules).Healthy)
}

func TestScheduler_Pass(t *testing.T) {
	t.Run("hits of a failed pass are still handled", func(t *testing.T) {
		var log []string
		hits := []scanner.Hit{{Post: toot.Post{ID: "101"}, Reason: rules.ReasonContentContains}}
		pager := &fakePager{log: &log, results: []*scanner.Result{{
			Source:  "timeline",
			Hits:    hits,
			Outcome: scanner.OutcomeRateLimited,
			Err:     &mastodon.APIError{StatusCode: http.StatusTooManyRequests},
		}}}
		handler := &fakeHandler{}
		s, _ := newTestScheduler(t, Config{Rules: &fakeLoader{sets: []*rules.Set{ruleSet("a")}}, Paginator: pager, Handler: handler})
		require.NoError(t, s.LoadRules(context.Background()))

		result, report := s.Pass(context.Background())

		assert.Equal(t, scanner.OutcomeRateLimited, result.Outcome)
		require.NotNil(t, report)
		assert.Equal(t, [][]scanner.Hit{hits}, handler.batches)
		assert.False(t, s.Health().GetStatus(ComponentTimeline).Healthy)
	})

	t.Run("no hits, no handling", func(t *testing.T) {
		var log []string
		handler := &fakeHandler{}
		s, _ := newTestScheduler(t, Config{Rules: &fakeLoader{}, Paginator: &fakePager{log: &log}, Handler: handler})

		_, report := s.Pass(context.Background())

		assert.Nil(t, report)
		assert.Empty(t, handler.batches)
		assert.True(t, s.Health().GetStatus(ComponentTimeline).Healthy)
	})

	t.Run("hits are handled after cancellation", func(t *testing.T) {
		var log []string
		ctx, cancel := context.WithCancel(context.Background())
		pager := &fakePager{log: &log, onRun: cancel, results: []*scanner.Result{{
			Hits:    []scanner.Hit{{Post: toot.Post{ID: "101"}}},
			Outcome: scanner.OutcomeCanceled,
			Err:     context.Canceled,
		}}}
		handler := &fakeHandler{}
		s, _ := newTestScheduler(t, Config{Rules: &fakeLoader{}, Paginator: pager, Handler: handler})

		s.Pass(ctx)

		require.Len(t, handler.batches, 1)
		assert.NoError(t, handler.ctxErrs[0])
	})

	t.Run("failed actions mark the enforcer unhealthy", func(t *testing.T) {
		var log []string
		pager := &fakePager{log: &log, results: []*scanner.Result{{Hits: []scanner.Hit{{Post: toot.Post{ID: "101"}}}}}}
		handler := &fakeHandler{report: &enforcer.Report{Accounts: []enforcer.AccountReport{
			{AccountID: "1", Suspend: enforcer.ActionOutcome{Outcome: "failed"}},
		}}}
		s, _ := newTestScheduler(t, Config{Rules: &fakeLoader{}, Paginator: pager, Handler: handler})

		s.Pass(context.Background())
		assert.False(t, s.Health().GetStatus(ComponentEnforcer).Healthy)
	})
}

func TestScheduler_Run(t *testing.T) {
	t.Run("pages then streams each cycle", func(t *testing.T) {
		var log []string
		ctx, cancel := context.WithCancel(context.Background())

		streamer := &fakeStreamer{log: &log}
		runs := 0
		streamer.onRun = func() {
			runs++
			if runs == 2 {
				cancel()
			}
		}

		loader := &fakeLoader{sets: []*rules.Set{ruleSet("a")}}
		s, _ := newTestScheduler(t, Config{
			Rules:        loader,
			Paginator:    &fakePager{log: &log},
			Consumer:     streamer,
			Handler:      &fakeHandler{},
			StreamBudget: 30 * time.Second,
		})

		err := s.Run(ctx)

		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, IsShutdown(err))
		assert.Equal(t, []string{"page", "stream", "page", "stream"}, log)
		assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, streamer.budgets)
		assert.Equal(t, 1, loader.calls)
	})

	t.Run("polls when streaming is disabled", func(t *testing.T) {
		var log []string
		ctx, cancel := context.WithCancel(context.Background())

		var slept []time.Duration
		s, _ := newTestScheduler(t, Config{
			Rules:        &fakeLoader{sets: []*rules.Set{ruleSet("a")}},
			Paginator:    &fakePager{log: &log},
			Handler:      &fakeHandler{},
			PollInterval: 45 * time.Second,
		})
		s.sleep = func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			if len(slept) == 3 {
				cancel()
			}
			return ctx.Err()
		}

		err := s.Run(ctx)

		assert.True(t, IsShutdown(err))
		assert.Equal(t, []string{"page", "page", "page"}, log)
		assert.Equal(t, []time.Duration{45 * time.Second, 45 * time.Second, 45 * time.Second}, slept)
	})

	t.Run("stream failure backs off and continues", func(t *testing.T) {
		var log []string
		ctx, cancel := context.WithCancel(context.Background())

		streamer := &fakeStreamer{log: &log, result: &scanner.Result{
			Source:  "stream",
			Outcome: scanner.OutcomeProtocolError,
			Err:     errors.New("line 3: data without event"),
		}}

		var slept int
		s, _ := newTestScheduler(t, Config{
			Rules:     &fakeLoader{sets: []*rules.Set{ruleSet("a")}},
			Paginator: &fakePager{log: &log},
			Consumer:  streamer,
			Handler:   &fakeHandler{},
		})
		s.sleep = func(ctx context.Context, d time.Duration) error {
			slept++
			if slept == 2 {
				cancel()
			}
			return ctx.Err()
		}

		s.Run(ctx)

		assert.Equal(t, []string{"page", "stream", "page", "stream"}, log)
		assert.False(t, s.Health().GetStatus(ComponentStream).Healthy)
	})

	t.Run("streams while the pass hits are handled", func(t *testing.T) {
		var log []string
		ctx, cancel := context.WithCancel(context.Background())

		streaming := make(chan struct{})
		streamer := &fakeStreamer{log: &log, onRun: func() {
			close(streaming)
			cancel()
		}}

		passHits := []scanner.Hit{{Post: toot.Post{ID: "101"}}}
		var streamedFirst bool
		handler := &fakeHandler{onHandle: func() {
			select {
			case <-streaming:
				streamedFirst = true
			case <-time.After(2 * time.Second):
			}
		}}

		s, _ := newTestScheduler(t, Config{
			Rules:     &fakeLoader{sets: []*rules.Set{ruleSet("a")}},
			Paginator: &fakePager{log: &log, results: []*scanner.Result{{Source: "timeline", Hits: passHits}}},
			Consumer:  streamer,
			Handler:   handler,
		})

		err := s.Run(ctx)

		assert.True(t, IsShutdown(err))
		assert.Equal(t, []string{"page", "stream"}, log)
		require.Len(t, handler.batches, 1)
		assert.Equal(t, passHits, handler.batches[0])
		assert.True(t, streamedFirst, "stream should start before the pass hits are handled")
	})

	t.Run("stream budget defaults to the refresh interval", func(t *testing.T) {
		s := New(Config{RefreshInterval: 7 * time.Minute})
		assert.Equal(t, 7*time.Minute, s.streamBudget)
		assert.Equal(t, time.Minute, s.pollInterval)
	})
}
