package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries runs the ledger statements against a DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Action outcomes stored in account_actions.outcome.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeDryRun = "dry_run"
)

// Hit is a row of the hits table.
type Hit struct {
	ID              int64
	StatusID        string
	StatusCreatedAt sql.NullTime
	AccountID       string
	Acct            string
	Reason          string
	DryRun          bool
	DetectedAt      time.Time
}

type RecordHitParams struct {
	StatusID        string
	StatusCreatedAt time.Time
	AccountID       string
	Acct            string
	Reason          string
	DryRun          bool
}

const recordHit = `
INSERT INTO hits (status_id, status_created_at, account_id, acct, reason, dry_run)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (status_id) DO NOTHING
`

// RecordHit stores a hit. A status already recorded is left untouched and
// reported as false.
func (q *Queries) RecordHit(ctx context.Context, arg RecordHitParams) (bool, error) {
	createdAt := sql.NullTime{Time: arg.StatusCreatedAt, Valid: !arg.StatusCreatedAt.IsZero()}
	res, err := q.db.ExecContext(ctx, recordHit,
		arg.StatusID,
		createdAt,
		arg.AccountID,
		arg.Acct,
		arg.Reason,
		arg.DryRun,
	)
	if err != nil {
		return false, fmt.Errorf("record hit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record hit: %w", err)
	}
	return n > 0, nil
}

type RecordActionParams struct {
	AccountID  string
	Acct       string
	Action     string
	Outcome    string
	StatusCode int
	Error      string
}

const recordAction = `
INSERT INTO account_actions (account_id, acct, action, outcome, status_code, error)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) RecordAction(ctx context.Context, arg RecordActionParams) error {
	statusCode := sql.NullInt64{Int64: int64(arg.StatusCode), Valid: arg.StatusCode != 0}
	errText := sql.NullString{String: arg.Error, Valid: arg.Error != ""}
	if _, err := q.db.ExecContext(ctx, recordAction,
		arg.AccountID,
		arg.Acct,
		arg.Action,
		arg.Outcome,
		statusCode,
		errText,
	); err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}

const isAccountPurged = `
SELECT EXISTS (
    SELECT 1 FROM account_actions
    WHERE account_id = ? AND action = 'delete' AND outcome = 'ok'
)
`

// IsAccountPurged reports whether a delete of the account succeeded before.
func (q *Queries) IsAccountPurged(ctx context.Context, accountID string) (bool, error) {
	var purged bool
	if err := q.db.QueryRowContext(ctx, isAccountPurged, accountID).Scan(&purged); err != nil {
		return false, fmt.Errorf("check purged account: %w", err)
	}
	return purged, nil
}

func (q *Queries) CountHits(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM hits").Scan(&count); err != nil {
		return 0, fmt.Errorf("count hits: %w", err)
	}
	return count, nil
}

func (q *Queries) CountHitAccounts(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT account_id) FROM hits").Scan(&count); err != nil {
		return 0, fmt.Errorf("count hit accounts: %w", err)
	}
	return count, nil
}

type CountHitsByReasonRow struct {
	Reason string
	Count  int64
}

const countHitsByReason = `
SELECT reason, COUNT(*) FROM hits GROUP BY reason ORDER BY COUNT(*) DESC, reason
`

func (q *Queries) CountHitsByReason(ctx context.Context) ([]CountHitsByReasonRow, error) {
	rows, err := q.db.QueryContext(ctx, countHitsByReason)
	if err != nil {
		return nil, fmt.Errorf("count hits by reason: %w", err)
	}
	defer rows.Close()

	var items []CountHitsByReasonRow
	for rows.Next() {
		var i CountHitsByReasonRow
		if err := rows.Scan(&i.Reason, &i.Count); err != nil {
			return nil, fmt.Errorf("scan hits by reason: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits by reason: %w", err)
	}
	return items, nil
}

type CountActionsRow struct {
	Action  string
	Outcome string
	Count   int64
}

const countActions = `
SELECT action, outcome, COUNT(*) FROM account_actions GROUP BY action, outcome ORDER BY action, outcome
`

func (q *Queries) CountActions(ctx context.Context) ([]CountActionsRow, error) {
	rows, err := q.db.QueryContext(ctx, countActions)
	if err != nil {
		return nil, fmt.Errorf("count actions: %w", err)
	}
	defer rows.Close()

	var items []CountActionsRow
	for rows.Next() {
		var i CountActionsRow
		if err := rows.Scan(&i.Action, &i.Outcome, &i.Count); err != nil {
			return nil, fmt.Errorf("scan actions: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return items, nil
}

const listRecentHits = `
SELECT id, status_id, status_created_at, account_id, acct, reason, dry_run, detected_at
FROM hits
ORDER BY id DESC
LIMIT ?
`

func (q *Queries) ListRecentHits(ctx context.Context, limit int) ([]Hit, error) {
	rows, err := q.db.QueryContext(ctx, listRecentHits, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent hits: %w", err)
	}
	defer rows.Close()

	var items []Hit
	for rows.Next() {
		var i Hit
		if err := rows.Scan(
			&i.ID,
			&i.StatusID,
			&i.StatusCreatedAt,
			&i.AccountID,
			&i.Acct,
			&i.Reason,
			&i.DryRun,
			&i.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return items, nil
}
