// Package storage persists runs under one versioned schema.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dyike/GemScreener/models"
)

// SchemaVersion is the version both the database schema and the JSON
// interchange format are written at.
const SchemaVersion = 2

var (
	ErrRunNotFound        = errors.New("run not found")
	ErrUnsupportedVersion = errors.New("unsupported schema version")
)

// Store is implemented by the sqlite and postgres backends.
type Store interface {
	SaveRun(ctx context.Context, run *models.Run) error
	LoadRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	SchemaVersion(ctx context.Context) (int, error)
	Close() error
}

// RunSummary is one row of a run listing.
type RunSummary struct {
	ID         string    `json:"id"`
	Profile    string    `json:"profile"`
	Scheme     string    `json:"scheme,omitempty"`
	Universe   string    `json:"universe"`
	AsOf       time.Time `json:"as_of"`
	StartedAt  time.Time `json:"started_at"`
	Screened   int       `json:"screened"`
	Selected   int       `json:"selected"`
	TopSymbol  string    `json:"top_symbol,omitempty"`
	ErrorCount int       `json:"error_count"`
}

// Summarize builds the listing row of a run.
func Summarize(run *models.Run) RunSummary {
	s := RunSummary{
		ID:         run.ID,
		Profile:    run.Profile,
		Scheme:     run.Scheme,
		Universe:   run.Universe,
		AsOf:       run.AsOf,
		StartedAt:  run.StartedAt,
		Screened:   run.Screened,
		Selected:   len(run.Results),
		ErrorCount: run.Errors.Total(),
	}
	if len(run.Results) > 0 {
		s.TopSymbol = run.Results[0].Ticker.Symbol
	}
	return s
}

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	Name    string
	Stmts   []string
}

// ClampLimit bounds a listing page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// ValidateRun checks the fields every backend keys on.
func ValidateRun(run *models.Run) error {
	if run == nil {
		return errors.New("nil run")
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}
	return nil
}
