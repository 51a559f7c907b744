// Package postgres stores runs in Postgres through a pgx pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dyike/GemScreener/internal/storage"
	"github.com/dyike/GemScreener/models"
)

// Store persists runs in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Open connects and migrates.
func Open(ctx context.Context, databaseURL string, cfg PoolConfig) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database url is required")
	}
	pool, err := NewPool(ctx, databaseURL, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.pool)
}

func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	if err := storage.ValidateRun(run); err != nil {
		return err
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		insert into runs(id, profile, scheme, universe, as_of, started_at, finished_at, screened, error_count, payload)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		on conflict (id) do update set
			profile = excluded.profile,
			scheme = excluded.scheme,
			universe = excluded.universe,
			as_of = excluded.as_of,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			screened = excluded.screened,
			error_count = excluded.error_count,
			payload = excluded.payload
	`, run.ID, run.Profile, run.Scheme, run.Universe, run.AsOf, run.StartedAt, run.FinishedAt,
		run.Screened, run.Errors.Total(), string(payload))
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	for _, table := range []string{"results", "outcomes", "rejections"} {
		if _, err := tx.Exec(ctx, `delete from `+table+` where run_id = $1`, run.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	batch := &pgx.Batch{}
	for _, r := range run.Results {
		batch.Queue(`insert into results(run_id, rank, symbol, score, entry_date, entry_price) values ($1,$2,$3,$4,$5,$6)`,
			run.ID, r.Rank, r.Ticker.Symbol, r.Score, r.EntryDate, r.EntryPrice.String())
	}
	for _, o := range run.Outcomes {
		batch.Queue(`insert into outcomes(run_id, symbol, discard, max_gain_pct, max_drawdown_pct, classification) values ($1,$2,false,$3,$4,$5)`,
			run.ID, o.Symbol, o.MaxGainPct, o.MaxDrawdownPct, string(o.Classification))
	}
	for _, o := range run.DiscardOutcomes {
		batch.Queue(`insert into outcomes(run_id, symbol, discard, max_gain_pct, max_drawdown_pct, classification) values ($1,$2,true,$3,$4,$5)`,
			run.ID, o.Symbol, o.MaxGainPct, o.MaxDrawdownPct, string(o.Classification))
	}
	for _, r := range run.Rejected {
		batch.Queue(`insert into rejections(run_id, symbol, stage, kind, reason) values ($1,$2,$3,$4,$5) on conflict do nothing`,
			run.ID, r.Ticker.Symbol, r.Stage, r.Kind, r.Reason)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert run rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *Store) LoadRun(ctx context.Context, id string) (*models.Run, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("run id is required")
	}
	var payload []byte
	err := s.pool.QueryRow(ctx, `select payload from runs where id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, storage.ErrRunNotFound)
		}
		return nil, fmt.Errorf("load run: %w", err)
	}

	var run models.Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]storage.RunSummary, error) {
	rows, err := s.pool.Query(ctx, `
		select r.id, r.profile, r.scheme, r.universe, r.as_of, r.started_at, r.screened, r.error_count,
			(select count(*) from results where run_id = r.id),
			coalesce((select symbol from results where run_id = r.id and rank = 1), '')
		from runs r
		order by r.started_at desc, r.id
		limit $1
	`, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []storage.RunSummary
	for rows.Next() {
		var rec storage.RunSummary
		var selected int64
		if err := rows.Scan(&rec.ID, &rec.Profile, &rec.Scheme, &rec.Universe, &rec.AsOf, &rec.StartedAt,
			&rec.Screened, &rec.ErrorCount, &selected, &rec.TopSymbol); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Selected = int(selected)
		out = append(out, rec)
	}
	return out, rows.Err()
}
