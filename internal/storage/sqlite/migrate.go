package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dyike/GemScreener/internal/storage"
)

var migrations = []storage.Migration{
	{
		Version: 1,
		Name:    "runs, results and outcomes",
		Stmts: []string{
			`CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    profile TEXT NOT NULL,
    scheme TEXT NOT NULL DEFAULT '',
    universe TEXT NOT NULL,
    as_of TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    screened INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS results (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    rank INTEGER NOT NULL,
    symbol TEXT NOT NULL,
    score REAL NOT NULL,
    entry_date TEXT NOT NULL,
    entry_price TEXT NOT NULL,
    PRIMARY KEY (run_id, symbol)
)`,
			`CREATE TABLE IF NOT EXISTS outcomes (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    symbol TEXT NOT NULL,
    discard INTEGER NOT NULL DEFAULT 0,
    max_gain_pct REAL NOT NULL,
    max_drawdown_pct REAL NOT NULL,
    classification TEXT NOT NULL,
    PRIMARY KEY (run_id, symbol, discard)
)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		},
	},
	{
		Version: 2,
		Name:    "rejections and error counts",
		Stmts: []string{
			`CREATE TABLE IF NOT EXISTS rejections (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    symbol TEXT NOT NULL,
    stage TEXT NOT NULL,
    kind TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, symbol)
)`,
			`ALTER TABLE runs ADD COLUMN error_count INTEGER NOT NULL DEFAULT 0`,
			`CREATE INDEX IF NOT EXISTS idx_rejections_kind ON rejections(run_id, kind)`,
		},
	},
}

// Migrate applies every migration newer than the recorded version, each in
// its own transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		for _, stmt := range m.Stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}
