package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dyike/GemScreener/internal/storage"
)

var migrations = []storage.Migration{
	{
		Version: 1,
		Name:    "runs, results and outcomes",
		Stmts: []string{
			`create table if not exists runs (
				id text primary key,
				profile text not null,
				scheme text not null default '',
				universe text not null,
				as_of date not null,
				started_at timestamptz not null,
				finished_at timestamptz not null,
				screened int not null default 0,
				payload jsonb not null
			);`,
			`create table if not exists results (
				run_id text not null references runs(id) on delete cascade,
				rank int not null,
				symbol text not null,
				score double precision not null,
				entry_date date not null,
				entry_price numeric not null,
				primary key (run_id, symbol)
			);`,
			`create table if not exists outcomes (
				run_id text not null references runs(id) on delete cascade,
				symbol text not null,
				discard boolean not null default false,
				max_gain_pct double precision not null,
				max_drawdown_pct double precision not null,
				classification text not null,
				primary key (run_id, symbol, discard)
			);`,
			`create index if not exists runs_started_at_idx on runs(started_at desc);`,
		},
	},
	{
		Version: 2,
		Name:    "rejections and error counts",
		Stmts: []string{
			`create table if not exists rejections (
				run_id text not null references runs(id) on delete cascade,
				symbol text not null,
				stage text not null,
				kind text not null,
				reason text not null default '',
				primary key (run_id, symbol)
			);`,
			`alter table runs add column if not exists error_count int not null default 0;`,
			`create index if not exists rejections_kind_idx on rejections(run_id, kind);`,
		},
	},
}

// Migrate applies pending migrations, each in its own transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `create table if not exists schema_migrations (
		version int primary key,
		name text not null,
		applied_at timestamptz not null default now()
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := schemaVersion(ctx, pool)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		for _, stmt := range m.Stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
			}
		}
		if _, err := tx.Exec(ctx, `insert into schema_migrations(version, name) values ($1, $2)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func schemaVersion(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var v int
	if err := pool.QueryRow(ctx, `select coalesce(max(version), 0) from schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
