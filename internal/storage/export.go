package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dyike/GemScreener/models"
)

// Envelope is the JSON interchange file.
type Envelope struct {
	SchemaVersion int         `json:"schema_version"`
	ExportedAt    time.Time   `json:"exported_at"`
	Run           *models.Run `json:"run"`
}

// ExportJSON writes run to path atomically.
func ExportJSON(path string, run *models.Run) error {
	if err := ValidateRun(run); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	env := Envelope{SchemaVersion: SchemaVersion, ExportedAt: time.Now().UTC(), Run: run}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "run-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp export: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp export: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// ImportJSON reads an interchange file, upgrading older versions and refusing
// newer ones.
func ImportJSON(path string) (*models.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	switch {
	case env.SchemaVersion <= 0:
		return nil, fmt.Errorf("%s: missing schema_version: %w", path, ErrUnsupportedVersion)
	case env.SchemaVersion > SchemaVersion:
		return nil, fmt.Errorf("%s: version %d is newer than %d: %w", path, env.SchemaVersion, SchemaVersion, ErrUnsupportedVersion)
	}
	if env.Run == nil {
		return nil, fmt.Errorf("%s: no run in file", path)
	}

	for v := env.SchemaVersion; v < SchemaVersion; v++ {
		upgrades[v](env.Run)
	}
	if err := ValidateRun(env.Run); err != nil {
		return nil, err
	}
	return env.Run, nil
}

// upgrades[v] lifts a run written at version v to v+1.
var upgrades = map[int]func(*models.Run){
	// Version 1 files predate rejection kinds and per-ticker stages.
	1: func(run *models.Run) {
		for i := range run.Rejected {
			r := &run.Rejected[i]
			if r.Kind != "" {
				continue
			}
			if r.Stage == "FILTERED" {
				r.Kind = "filtered"
			} else {
				r.Kind = "other"
			}
		}
		if run.Errors == nil {
			run.Errors = models.ErrorSummary{}
		}
	},
}
