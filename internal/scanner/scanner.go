// Package scanner walks the public timeline and the live stream, evaluating
// every post against the active rule set and collecting the hits of a pass
// into one batch.
package scanner

import (
	"context"
	"errors"
	"log/slog"

	"github.com/abdulachik/spamsweep/internal/mastodon"
	"github.com/abdulachik/spamsweep/internal/rules"
	"github.com/abdulachik/spamsweep/internal/stream"
	"github.com/abdulachik/spamsweep/internal/toot"
)

// Hit is a post that matched a rule.
type Hit struct {
	Post   toot.Post
	Reason rules.Reason
}

// Verdict is the full outcome of evaluating one post.
type Verdict struct {
	Post    toot.Post
	Matched bool
	Reason  rules.Reason
}

// Outcome tells how a pass or stream session ended.
type Outcome int

const (
	// OutcomeComplete is a normal end: the live edge was reached or the
	// stream budget elapsed.
	OutcomeComplete Outcome = iota
	OutcomeRateLimited
	OutcomeAPIError
	OutcomeProtocolError
	OutcomeCanceled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeAPIError:
		return "api_error"
	case OutcomeProtocolError:
		return "protocol_error"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result summarizes one pagination pass or stream session. Hits holds
// everything collected before the end, including when Err is set.
type Result struct {
	Source    string
	Pages     int
	Events    int
	Evaluated int
	Skipped   int
	Hits      []Hit
	Outcome   Outcome
	Err       error
}

// Failed reports whether the pass ended abnormally.
func (r *Result) Failed() bool {
	return r.Outcome != OutcomeComplete
}

func (r *Result) finish(ctx context.Context, err error) *Result {
	r.Err = err
	r.Outcome = classify(ctx, err)
	passesTotal.WithLabelValues(r.Source, r.Outcome.String()).Inc()
	return r
}

func classify(ctx context.Context, err error) Outcome {
	if err == nil {
		return OutcomeComplete
	}
	if ctx.Err() != nil {
		return OutcomeCanceled
	}
	if stream.IsProtocolError(err) {
		return OutcomeProtocolError
	}
	if mastodon.IsRateLimited(err) {
		return OutcomeRateLimited
	}
	var apiErr *mastodon.APIError
	if errors.As(err, &apiErr) {
		return OutcomeAPIError
	}
	return OutcomeFailed
}

// evaluate runs one post through the rule set and records the verdict.
func evaluate(set *rules.Set, post *toot.Post, source string) Verdict {
	matched, reason := set.Evaluate(post)

	postsEvaluated.WithLabelValues(source).Inc()
	verdicts.WithLabelValues(reason.String()).Inc()

	slog.Debug("post evaluated",
		"source", source,
		"id", post.ID,
		"acct", post.Account.Acct,
		"matched", matched,
		"reason", reason,
	)

	return Verdict{Post: *post, Matched: matched, Reason: reason}
}
