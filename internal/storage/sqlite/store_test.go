package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/GemScreener/internal/storage"
	"github.com/dyike/GemScreener/internal/storage/storagetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "gem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMigrateRecordsSchemaVersion(t *testing.T) {
	store := openTestStore(t)

	v, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.SchemaVersion, v)
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gem.db")

	first, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.SaveRun(ctx, storagetest.SampleRun("r1")))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, Migrate(ctx, second.db))
	v, err := second.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.SchemaVersion, v)

	run, err := second.LoadRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "v6", run.Profile)
}

func TestSaveAndLoadRun(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	want := storagetest.SampleRun("run-1")

	require.NoError(t, store.SaveRun(ctx, want))

	got, err := store.LoadRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "SPKE", got.Results[0].Ticker.Symbol)
	assert.True(t, want.Results[0].EntryPrice.Equal(got.Results[0].EntryPrice))
	assert.True(t, want.AsOf.Equal(got.AsOf))
	assert.Equal(t, want.Errors.Total(), got.Errors.Total())
	assert.Equal(t, want.Stages, got.Stages)
	require.Len(t, got.Outcomes, 1)
	assert.Equal(t, want.Outcomes[0].Classification, got.Outcomes[0].Classification)
}

func TestSaveRunReplacesChildren(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	run := storagetest.SampleRun("run-1")
	require.NoError(t, store.SaveRun(ctx, run))

	run.Results = run.Results[:1]
	run.Rejected = nil
	require.NoError(t, store.SaveRun(ctx, run))

	var results, rejections int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM results WHERE run_id = ?`, "run-1").Scan(&results))
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM rejections WHERE run_id = ?`, "run-1").Scan(&rejections))
	assert.Equal(t, 1, results)
	assert.Equal(t, 0, rejections)
}

func TestLoadRunNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.LoadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

func TestSaveRunRequiresID(t *testing.T) {
	store := openTestStore(t)
	err := store.SaveRun(context.Background(), storagetest.SampleRun(""))
	assert.Error(t, err)
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	older := storagetest.SampleRun("older")
	newer := storagetest.SampleRun("newer")
	newer.StartedAt = older.StartedAt.Add(24 * time.Hour)
	require.NoError(t, store.SaveRun(ctx, older))
	require.NoError(t, store.SaveRun(ctx, newer))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].ID)
	assert.Equal(t, "SPKE", runs[0].TopSymbol)
	assert.Equal(t, 2, runs[0].Selected)
	assert.Equal(t, 2, runs[0].ErrorCount)
	assert.True(t, storage.Summarize(newer).AsOf.Equal(runs[0].AsOf))

	limited, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
