package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abdulachik/spamsweep/internal/cursor"
	"github.com/abdulachik/spamsweep/internal/rules"
	"github.com/abdulachik/spamsweep/internal/stream"
	"github.com/abdulachik/spamsweep/internal/toot"
)

const sourceStream = "stream"

// Opener connects to the live event stream.
type Opener func(ctx context.Context) (stream.Source, error)

// Consumer reads the live stream for a bounded time.
type Consumer struct {
	open Opener
}

// NewConsumer creates a new consumer.
func NewConsumer(open Opener) *Consumer {
	return &Consumer{open: open}
}

// Run connects to the stream and evaluates every created or updated post
// until budget elapses, the stream closes or a read fails. Running out of
// budget is a normal end. A protocol violation ends the session with a
// *stream.ProtocolError.
func (c *Consumer) Run(ctx context.Context, budget time.Duration, set *rules.Set, tracker *cursor.Tracker) *Result {
	result := &Result{Source: sourceStream}

	sessionCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	src, err := c.open(sessionCtx)
	if err != nil {
		if budgetElapsed(ctx, sessionCtx) {
			return result.finish(ctx, nil)
		}
		return result.finish(ctx, fmt.Errorf("open stream: %w", err))
	}
	defer src.Close()

	slog.Info("streaming", "budget", budget, "cursor", tracker.Value())

	for ev, err := range stream.All(src) {
		if err != nil {
			if budgetElapsed(ctx, sessionCtx) {
				break
			}
			return result.finish(ctx, err)
		}

		result.Events++
		streamEvents.WithLabelValues(ev.Name).Inc()

		if !ev.IsPost() {
			continue
		}

		var post toot.Post
		if err := json.Unmarshal([]byte(ev.Payload), &post); err != nil {
			slog.Warn("skipping undecodable stream payload", "event", ev.Name, "error", err)
			continue
		}

		// Edits always target a post the cursor has passed.
		if ev.Name == stream.EventUpdate && toot.ValidID(post.ID) && tracker.Seen(post.ID) {
			result.Skipped++
			continue
		}

		verdict := evaluate(set, &post, sourceStream)
		result.Evaluated++
		if verdict.Matched {
			result.Hits = append(result.Hits, Hit{Post: verdict.Post, Reason: verdict.Reason})
		}
		tracker.Advance(post.ID)
	}

	if !budgetElapsed(ctx, sessionCtx) && ctx.Err() == nil {
		slog.Info("stream closed by server", "events", result.Events)
	}
	return result.finish(ctx, nil)
}

// budgetElapsed reports whether the session ended because its own deadline
// passed while the parent context is still live.
func budgetElapsed(parent, session context.Context) bool {
	return parent.Err() == nil && errors.Is(session.Err(), context.DeadlineExceeded)
}
