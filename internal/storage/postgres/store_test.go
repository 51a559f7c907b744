package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/GemScreener/internal/storage"
	"github.com/dyike/GemScreener/internal/storage/storagetest"
)

func TestWithSSLMode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@db.example.com:5432/gem", "postgres://u:p@db.example.com:5432/gem?sslmode=require"},
		{"postgres://u:p@db.example.com/gem?sslmode=disable", "postgres://u:p@db.example.com/gem?sslmode=disable"},
		{"postgres://u:p@localhost:5432/gem", "postgres://u:p@localhost:5432/gem"},
		{"postgres://u:p@127.0.0.1/gem", "postgres://u:p@127.0.0.1/gem"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withSSLMode(tt.in), tt.in)
	}
}

func TestPoolConfigFromEnv(t *testing.T) {
	t.Setenv("GEM_DB_MAX_CONNS", "2")
	t.Setenv("GEM_DB_MIN_CONNS", "5")
	t.Setenv("GEM_DB_MAX_CONN_IDLE_TIME", "1m")

	cfg := PoolConfigFromEnv()
	assert.Equal(t, int32(2), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, time.Minute, cfg.MaxConnIdleTime)
}

func TestStoreRoundTrip(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skipf("DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := Open(ctx, dbURL, DefaultPoolConfig())
	require.NoError(t, err)
	defer store.Close()

	v, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.SchemaVersion, v)

	id := uuid.NewString()
	want := storagetest.SampleRun(id)
	require.NoError(t, store.SaveRun(ctx, want))
	require.NoError(t, store.SaveRun(ctx, want))

	got, err := store.LoadRun(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Results, 2)
	assert.True(t, want.Results[0].EntryPrice.Equal(got.Results[0].EntryPrice))

	runs, err := store.ListRuns(ctx, 500)
	require.NoError(t, err)
	var found bool
	for _, r := range runs {
		if r.ID == id {
			found = true
			assert.Equal(t, "SPKE", r.TopSymbol)
			assert.Equal(t, 2, r.Selected)
		}
	}
	assert.True(t, found)

	_, err = store.LoadRun(ctx, uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}
