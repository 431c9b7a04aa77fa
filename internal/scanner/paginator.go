package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abdulachik/spamsweep/internal/cursor"
	"github.com/abdulachik/spamsweep/internal/rules"
	"github.com/abdulachik/spamsweep/internal/toot"
)

const (
	DefaultPageSize    = 40
	DefaultMinInterval = 1500 * time.Millisecond

	sourceTimeline = "timeline"
	sourceCheck    = "check"
)

// Timeline is the part of the instance API the paginator reads.
type Timeline interface {
	PublicTimeline(ctx context.Context, minID string, limit int) ([]toot.Post, error)
	Status(ctx context.Context, id string) (*toot.Post, error)
}

// Paginator pages through the public timeline from the cursor to the live
// edge.
type Paginator struct {
	timeline    Timeline
	pageSize    int
	minInterval time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// PaginatorConfig holds configuration for the paginator.
type PaginatorConfig struct {
	Timeline    Timeline
	PageSize    int
	MinInterval time.Duration
}

// NewPaginator creates a new paginator.
func NewPaginator(cfg PaginatorConfig) *Paginator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}

	return &Paginator{
		timeline:    cfg.Timeline,
		pageSize:    cfg.PageSize,
		minInterval: cfg.MinInterval,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Run fetches pages newer than the cursor until an empty page comes back
// or a fetch fails. Each page is evaluated in ascending id order and the
// cursor advanced past every post, matched or not. Posts at or before the
// cursor are skipped.
//
// The returned result always carries the hits collected so far. A failed
// fetch ends the pass; it is not retried here.
func (p *Paginator) Run(ctx context.Context, set *rules.Set, tracker *cursor.Tracker) *Result {
	result := &Result{Source: sourceTimeline}

	for {
		if err := ctx.Err(); err != nil {
			return result.finish(ctx, err)
		}

		minID := tracker.Value()
		start := p.now()
		posts, err := p.timeline.PublicTimeline(ctx, minID, p.pageSize)
		elapsed := p.now().Sub(start)
		if err != nil {
			slog.Warn("timeline fetch failed", "min_id", minID, "error", err)
			return result.finish(ctx, fmt.Errorf("fetch timeline page: %w", err))
		}

		result.Pages++
		pagesFetched.Inc()

		if len(posts) == 0 {
			slog.Debug("reached live edge", "cursor", minID, "pages", result.Pages)
			return result.finish(ctx, nil)
		}

		for _, post := range toot.SortByID(posts) {
			if toot.ValidID(post.ID) && tracker.Seen(post.ID) {
				result.Skipped++
				continue
			}

			verdict := evaluate(set, &post, sourceTimeline)
			result.Evaluated++
			if verdict.Matched {
				result.Hits = append(result.Hits, Hit{Post: verdict.Post, Reason: verdict.Reason})
			}
			tracker.Advance(post.ID)
		}

		slog.Debug("timeline page processed",
			"page", result.Pages,
			"posts", len(posts),
			"cursor", tracker.Value(),
			"hits", len(result.Hits),
		)

		// A page that cannot move the cursor would be fetched again forever.
		if tracker.Value() == minID {
			slog.Warn("timeline page did not advance cursor", "cursor", minID, "posts", len(posts))
			return result.finish(ctx, nil)
		}

		if err := p.throttle(ctx, elapsed); err != nil {
			return result.finish(ctx, err)
		}
	}
}

// Check fetches and evaluates a single post. The cursor is not involved.
func (p *Paginator) Check(ctx context.Context, id string, set *rules.Set) (*Verdict, error) {
	post, err := p.timeline.Status(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch status %s: %w", id, err)
	}

	verdict := evaluate(set, post, sourceCheck)
	return &verdict, nil
}

// throttle waits out the remainder of the minimum request interval.
func (p *Paginator) throttle(ctx context.Context, elapsed time.Duration) error {
	delay := p.minInterval - elapsed
	if delay <= 0 {
		return nil
	}
	return p.sleep(ctx, delay)
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
