// Package enforcer acts on the hits of a pass: it records them, suspends
// and deletes each offending account once, and tells the operator.
package enforcer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/abdulachik/spamsweep/internal/db"
	"github.com/abdulachik/spamsweep/internal/mastodon"
	"github.com/abdulachik/spamsweep/internal/notify"
	"github.com/abdulachik/spamsweep/internal/scanner"
)

const (
	ActionSuspend = "suspend"
	ActionDelete  = "delete"

	defaultCacheSize = 10000
)

// Admin is the account-management part of the instance API.
type Admin interface {
	SuspendAccount(ctx context.Context, accountID string) (*mastodon.ActionResult, error)
	DeleteAccount(ctx context.Context, accountID string) (*mastodon.ActionResult, error)
}

// Ledger records hits and actions.
type Ledger interface {
	RecordHit(ctx context.Context, arg db.RecordHitParams) (bool, error)
	RecordAction(ctx context.Context, arg db.RecordActionParams) error
	IsAccountPurged(ctx context.Context, accountID string) (bool, error)
}

// Enforcer handles batches of hits.
type Enforcer struct {
	admin    Admin
	ledger   Ledger
	notifier notify.Notifier
	dryRun   bool

	purged *lru.Cache[string, struct{}]
}

// Config holds configuration for the enforcer. Ledger and Notifier are
// optional.
type Config struct {
	Admin     Admin
	Ledger    Ledger
	Notifier  notify.Notifier
	DryRun    bool
	CacheSize int
}

// New creates a new enforcer.
func New(cfg Config) (*Enforcer, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}

	purged, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create purged account cache: %w", err)
	}

	return &Enforcer{
		admin:    cfg.Admin,
		ledger:   cfg.Ledger,
		notifier: cfg.Notifier,
		dryRun:   cfg.DryRun,
		purged:   purged,
	}, nil
}

// DryRun reports whether destructive actions are disabled.
func (e *Enforcer) DryRun() bool {
	return e.dryRun
}

// ActionOutcome is the result of one admin call.
type ActionOutcome struct {
	Outcome    string
	StatusCode int
	Err        error
}

// AccountReport is what happened to one account.
type AccountReport struct {
	AccountID string
	Acct      string
	Hits      int
	Reasons   []string
	Skipped   bool
	Suspend   ActionOutcome
	Delete    ActionOutcome
}

// Report summarizes one batch.
type Report struct {
	Hits     int
	DryRun   bool
	Accounts []AccountReport
}

// Acted returns the number of accounts that were not skipped.
func (r *Report) Acted() int {
	var n int
	for _, a := range r.Accounts {
		if !a.Skipped {
			n++
		}
	}
	return n
}

// Failed returns the number of accounts with a failed action.
func (r *Report) Failed() int {
	var n int
	for _, a := range r.Accounts {
		if a.Suspend.Outcome == db.OutcomeFailed || a.Delete.Outcome == db.OutcomeFailed {
			n++
		}
	}
	return n
}

type account struct {
	id      string
	acct    string
	hits    int
	reasons []string
}

// Handle logs and records every hit, then suspends and deletes each
// distinct account once, in the order the accounts were first seen. In
// dry-run mode the actions are only logged. A failed action is reported
// and the batch continues with the next account.
func (e *Enforcer) Handle(ctx context.Context, hits []scanner.Hit) *Report {
	report := &Report{Hits: len(hits), DryRun: e.dryRun}
	if len(hits) == 0 {
		return report
	}

	accounts := e.collect(ctx, hits)

	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			slog.Warn("stopping enforcement", "remaining_accounts", len(accounts)-len(report.Accounts), "error", err)
			break
		}
		report.Accounts = append(report.Accounts, e.enforce(ctx, acc))
	}

	e.notify(ctx, report)

	return report
}

// collect logs and records each hit and groups the hits by account.
func (e *Enforcer) collect(ctx context.Context, hits []scanner.Hit) []*account {
	var order []*account
	byID := make(map[string]*account)

	for _, hit := range hits {
		post := hit.Post
		reason := hit.Reason.String()

		slog.Info("spam hit",
			"id", post.ID,
			"created_at", post.CreatedAt,
			"acct", post.Account.Acct,
			"account_id", post.Account.ID,
			"reason", reason,
		)
		hitsHandled.WithLabelValues(reason).Inc()

		if e.ledger != nil {
			if _, err := e.ledger.RecordHit(ctx, db.RecordHitParams{
				StatusID:        post.ID,
				StatusCreatedAt: post.CreatedAt,
				AccountID:       post.Account.ID,
				Acct:            post.Account.Acct,
				Reason:          reason,
				DryRun:          e.dryRun,
			}); err != nil {
				slog.Warn("failed to record hit", "id", post.ID, "error", err)
			}
		}

		if post.Account.ID == "" {
			slog.Warn("hit has no account id", "id", post.ID)
			continue
		}

		acc, ok := byID[post.Account.ID]
		if !ok {
			acc = &account{id: post.Account.ID, acct: post.Account.Acct}
			byID[acc.id] = acc
			order = append(order, acc)
		}
		acc.hits++
		if !slices.Contains(acc.reasons, reason) {
			acc.reasons = append(acc.reasons, reason)
		}
	}

	return order
}

func (e *Enforcer) enforce(ctx context.Context, acc *account) AccountReport {
	report := AccountReport{
		AccountID: acc.id,
		Acct:      acc.acct,
		Hits:      acc.hits,
		Reasons:   acc.reasons,
	}

	if e.alreadyPurged(ctx, acc.id) {
		slog.Info("account already purged", "acct", acc.acct, "account_id", acc.id)
		accountsSkipped.Inc()
		report.Skipped = true
		return report
	}

	if e.dryRun {
		slog.Info("dry run: would suspend and delete account",
			"acct", acc.acct,
			"account_id", acc.id,
			"hits", acc.hits,
		)
		report.Suspend = e.record(ctx, acc, ActionSuspend, ActionOutcome{Outcome: db.OutcomeDryRun})
		report.Delete = e.record(ctx, acc, ActionDelete, ActionOutcome{Outcome: db.OutcomeDryRun})
		return report
	}

	report.Suspend = e.record(ctx, acc, ActionSuspend, outcomeOf(e.admin.SuspendAccount(ctx, acc.id)))
	report.Delete = e.record(ctx, acc, ActionDelete, outcomeOf(e.admin.DeleteAccount(ctx, acc.id)))

	if report.Delete.Outcome == db.OutcomeOK {
		e.purged.Add(acc.id, struct{}{})
	}

	return report
}

func (e *Enforcer) alreadyPurged(ctx context.Context, accountID string) bool {
	if e.purged.Contains(accountID) {
		return true
	}
	if e.ledger == nil {
		return false
	}

	purged, err := e.ledger.IsAccountPurged(ctx, accountID)
	if err != nil {
		slog.Warn("failed to look up account in ledger", "account_id", accountID, "error", err)
		return false
	}
	if purged {
		e.purged.Add(accountID, struct{}{})
	}
	return purged
}

// record logs an action outcome and writes it to the ledger.
func (e *Enforcer) record(ctx context.Context, acc *account, action string, outcome ActionOutcome) ActionOutcome {
	accountActions.WithLabelValues(action, outcome.Outcome).Inc()

	switch outcome.Outcome {
	case db.OutcomeOK:
		slog.Info("account action succeeded", "action", action, "acct", acc.acct, "account_id", acc.id, "status", outcome.StatusCode)
	case db.OutcomeFailed:
		slog.Error("account action failed", "action", action, "acct", acc.acct, "account_id", acc.id, "status", outcome.StatusCode, "error", outcome.Err)
	}

	if e.ledger == nil {
		return outcome
	}

	params := db.RecordActionParams{
		AccountID:  acc.id,
		Acct:       acc.acct,
		Action:     action,
		Outcome:    outcome.Outcome,
		StatusCode: outcome.StatusCode,
	}
	if outcome.Err != nil {
		params.Error = outcome.Err.Error()
	}
	if err := e.ledger.RecordAction(ctx, params); err != nil {
		slog.Warn("failed to record account action", "action", action, "account_id", acc.id, "error", err)
	}

	return outcome
}

func outcomeOf(result *mastodon.ActionResult, err error) ActionOutcome {
	outcome := ActionOutcome{Outcome: db.OutcomeOK, Err: err}
	if result != nil {
		outcome.StatusCode = result.StatusCode
	}
	if err != nil {
		outcome.Outcome = db.OutcomeFailed
	}
	return outcome
}

func (e *Enforcer) notify(ctx context.Context, report *Report) {
	if e.notifier == nil || report.Acted() == 0 {
		return
	}

	if err := e.notifier.Send(ctx, Summarize(report)); err != nil {
		slog.Warn("failed to send notification", "error", err)
	}
}

// Summarize turns a report into an operator notification.
func Summarize(report *Report) notify.Notification {
	var subject string
	acted := report.Acted()
	switch {
	case report.DryRun:
		subject = fmt.Sprintf("dry run: %d account(s) would be suspended and deleted", acted)
	case report.Failed() > 0:
		subject = fmt.Sprintf("%d account(s) suspended and deleted, %d with failures", acted, report.Failed())
	default:
		subject = fmt.Sprintf("%d account(s) suspended and deleted", acted)
	}

	var lines []string
	for _, a := range report.Accounts {
		if a.Skipped {
			continue
		}
		line := fmt.Sprintf("%s (%d hit(s): %s)", a.Acct, a.Hits, strings.Join(a.Reasons, ", "))
		if a.Suspend.Outcome == db.OutcomeFailed || a.Delete.Outcome == db.OutcomeFailed {
			line += " FAILED"
		}
		lines = append(lines, line)
	}

	return notify.Notification{Subject: subject, Body: strings.Join(lines, "\n")}
}
