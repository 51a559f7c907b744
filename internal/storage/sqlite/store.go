package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/GemScreener/internal/storage"
	"github.com/dyike/GemScreener/models"
	"github.com/dyike/GemScreener/pkg/sqlite"
)

// Store persists runs in a local SQLite file.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open creates dbPath if needed and migrates the schema.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// SaveRun writes the run and replaces its child rows in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	if err := storage.ValidateRun(run); err != nil {
		return err
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO runs (id, profile, scheme, universe, as_of, started_at, finished_at, screened, error_count, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    profile=excluded.profile,
    scheme=excluded.scheme,
    universe=excluded.universe,
    as_of=excluded.as_of,
    started_at=excluded.started_at,
    finished_at=excluded.finished_at,
    screened=excluded.screened,
    error_count=excluded.error_count,
    payload=excluded.payload
`, run.ID, run.Profile, run.Scheme, run.Universe, run.AsOf.Format(models.DateLayout),
		formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Screened, run.Errors.Total(), string(payload))
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	for _, table := range []string{"results", "outcomes", "rejections"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, run.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, r := range run.Results {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO results (run_id, rank, symbol, score, entry_date, entry_price)
VALUES (?, ?, ?, ?, ?, ?)
`, run.ID, r.Rank, r.Ticker.Symbol, r.Score, r.EntryDate.Format(models.DateLayout), r.EntryPrice.String()); err != nil {
			return fmt.Errorf("insert result %s: %w", r.Ticker.Symbol, err)
		}
	}

	insertOutcome := func(o models.ForwardOutcome, discard bool) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO outcomes (run_id, symbol, discard, max_gain_pct, max_drawdown_pct, classification)
VALUES (?, ?, ?, ?, ?, ?)
`, run.ID, o.Symbol, discard, o.MaxGainPct, o.MaxDrawdownPct, string(o.Classification))
		if err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.Symbol, err)
		}
		return nil
	}
	for _, o := range run.Outcomes {
		if err := insertOutcome(o, false); err != nil {
			return err
		}
	}
	for _, o := range run.DiscardOutcomes {
		if err := insertOutcome(o, true); err != nil {
			return err
		}
	}

	for _, r := range run.Rejected {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO rejections (run_id, symbol, stage, kind, reason)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(run_id, symbol) DO NOTHING
`, run.ID, r.Ticker.Symbol, r.Stage, r.Kind, r.Reason); err != nil {
			return fmt.Errorf("insert rejection %s: %w", r.Ticker.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *Store) LoadRun(ctx context.Context, id string) (*models.Run, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ? LIMIT 1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, storage.ErrRunNotFound)
		}
		return nil, fmt.Errorf("load run: %w", err)
	}

	var run models.Run
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns lists runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]storage.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT r.id, r.profile, r.scheme, r.universe, r.as_of, r.started_at, r.screened, r.error_count,
    (SELECT COUNT(*) FROM results WHERE run_id = r.id),
    COALESCE((SELECT symbol FROM results WHERE run_id = r.id AND rank = 1), '')
FROM runs r
ORDER BY r.started_at DESC, r.id
LIMIT ?
`, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []storage.RunSummary
	for rows.Next() {
		var rec storage.RunSummary
		var asOf, started string
		if err := rows.Scan(&rec.ID, &rec.Profile, &rec.Scheme, &rec.Universe, &asOf, &started,
			&rec.Screened, &rec.ErrorCount, &rec.Selected, &rec.TopSymbol); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.AsOf, _ = models.ParseDate(asOf)
		rec.StartedAt = parseTime(started)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs rows: %w", err)
	}
	return out, nil
}
