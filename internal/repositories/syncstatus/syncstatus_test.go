package syncstatus

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_status (
  entity_type TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  last_sync_at INTEGER NOT NULL DEFAULT 0,
  error_message TEXT NOT NULL DEFAULT ''
);`)
	require.NoError(t, err)
	return db
}

func TestUpsert_CreatesThenUpdatesInPlace(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, EntityLibrary, StatusPending, ""))
	require.NoError(t, r.Upsert(ctx, EntityLibrary, StatusError, "server exploded"))

	row, err := r.Get(ctx, EntityLibrary)
	require.NoError(t, err)
	assert.Equal(t, StatusError, row.Status)
	assert.Equal(t, "server exploded", row.ErrorMessage)
	assert.False(t, row.LastSyncAt.IsZero())

	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "upsert must not create duplicate rows")
}

func TestGet_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	_, err := r.Get(context.Background(), EntityTags)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, EntityCategories, StatusSynced, ""))
	require.NoError(t, r.Upsert(ctx, EntityTags, StatusSynced, ""))
	require.NoError(t, r.Clear(ctx))

	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
