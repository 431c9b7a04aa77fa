// Package db is the enforcement ledger: a SQLite database recording every
// hit and every action taken against an account.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abdulachik/spamsweep/internal/db/migrations"
	_ "modernc.org/sqlite"
)

// Store wraps the database connection and provides access to queries.
type Store struct {
	*sql.DB
	*Queries
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// NewStore opens the ledger at dbPath, creating its directory if needed.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serializes writers.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(strings.TrimPrefix(pragma, "PRAGMA ")), err)
		}
	}

	return &Store{DB: sqlDB, Queries: New(sqlDB)}, nil
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	slog.Info("running database migrations")

	if _, err := s.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, version := range applied {
		done[version] = true
	}

	files, err := migrationFiles()
	if err != nil {
		return err
	}

	for _, file := range files {
		if done[file] {
			slog.Debug("migration already applied", "file", file)
			continue
		}
		if err := s.apply(ctx, file); err != nil {
			return err
		}
		slog.Info("migration applied", "file", file)
	}

	return nil
}

// AppliedMigrations lists recorded migration versions in order.
func (s *Store) AppliedMigrations(ctx context.Context) ([]string, error) {
	rows, err := s.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}
	return versions, nil
}

func (s *Store) apply(ctx context.Context, file string) error {
	content, err := fs.ReadFile(migrations.FS, file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, extractUpMigration(string(content))); err != nil {
		return fmt.Errorf("execute migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", file); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// extractUpMigration returns the part of a migration file between the Up
// and Down markers.
func extractUpMigration(content string) string {
	up, _, found := strings.Cut(content, "-- +migrate Down")
	if !found {
		return content
	}
	up = strings.TrimSpace(up)
	return strings.TrimSpace(strings.TrimPrefix(up, "-- +migrate Up"))
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}
