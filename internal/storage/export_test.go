package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/GemScreener/internal/storage"
	"github.com/dyike/GemScreener/internal/storage/storagetest"
)

func TestExportImportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "run.json")
	want := storagetest.SampleRun("run-1")

	require.NoError(t, storage.ExportJSON(path, want))
	got, err := storage.ImportJSON(path)
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	require.Len(t, got.Results, len(want.Results))
	assert.True(t, want.Results[0].EntryPrice.Equal(got.Results[0].EntryPrice))
	assert.Equal(t, want.Rejected[0].Kind, got.Rejected[0].Kind)
	assert.Equal(t, want.Errors.Total(), got.Errors.Total())
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestImportRefusesNewerVersion(t *testing.T) {
	path := writeFile(t, `{"schema_version": 99, "run": {"id": "x"}}`)
	_, err := storage.ImportJSON(path)
	assert.ErrorIs(t, err, storage.ErrUnsupportedVersion)
}

func TestImportRefusesMissingVersion(t *testing.T) {
	path := writeFile(t, `{"run": {"id": "x"}}`)
	_, err := storage.ImportJSON(path)
	assert.ErrorIs(t, err, storage.ErrUnsupportedVersion)
}

func TestImportUpgradesVersionOne(t *testing.T) {
	path := writeFile(t, `{
  "schema_version": 1,
  "run": {
    "id": "old",
    "profile": "v4final",
    "universe": "sample",
    "rejected": [
      {"ticker": {"symbol": "PRCY"}, "stage": "FILTERED", "reason": "price above max"},
      {"ticker": {"symbol": "GONE"}, "stage": "UNIVERSE", "reason": "no data"}
    ]
  }
}`)

	run, err := storage.ImportJSON(path)
	require.NoError(t, err)
	require.Len(t, run.Rejected, 2)
	assert.Equal(t, "filtered", run.Rejected[0].Kind)
	assert.Equal(t, "other", run.Rejected[1].Kind)
	assert.NotNil(t, run.Errors)
	assert.Equal(t, 0, run.Errors.Total())
}

func TestExportRequiresID(t *testing.T) {
	err := storage.ExportJSON(filepath.Join(t.TempDir(), "run.json"), storagetest.SampleRun(""))
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	s := storage.Summarize(storagetest.SampleRun("r"))
	assert.Equal(t, 2, s.Selected)
	assert.Equal(t, "SPKE", s.TopSymbol)
	assert.Equal(t, 2, s.ErrorCount)
	assert.Equal(t, 50, storage.ClampLimit(0))
	assert.Equal(t, 500, storage.ClampLimit(10000))
}
