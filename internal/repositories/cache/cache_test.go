package cache

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/palstore/internal/catalog"
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
CREATE TABLE cached_items (
  remote_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  thumbnail_url TEXT NOT NULL DEFAULT '',
  rating REAL NOT NULL DEFAULT 0,
  review_count INTEGER NOT NULL DEFAULT 0,
  payload TEXT NOT NULL DEFAULT '',
  cached_at INTEGER NOT NULL DEFAULT 0
);`)
	require.NoError(t, err)
	return db
}

func TestUpsert_InsertThenUpdate(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &catalog.Item{ID: "r1", Name: "Robo", Rating: 4.0}))
	require.NoError(t, r.Upsert(ctx, &catalog.Item{ID: "r1", Name: "Robo v2", Rating: 4.5}))

	items, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Robo v2", items[0].Name)
	assert.Equal(t, 4.5, items[0].Rating)
	require.NotNil(t, items[0].Payload)
	assert.Equal(t, "Robo v2", items[0].Payload.Name)
}

func TestUpdateDisplayFields(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &catalog.Item{ID: "r1", Name: "Old", ReviewCount: 1}))
	require.NoError(t, r.UpdateDisplayFields(ctx, "r1", DisplayFields{
		Name: "New", Description: "d", Thumbnail: "https://x/t.png", Rating: 5, ReviewCount: 7,
	}))

	items, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "New", items[0].Name)
	assert.Equal(t, 7, items[0].ReviewCount)
}

func TestUpdateDisplayFields_NotCached(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	err := r.UpdateDisplayFields(context.Background(), "missing", DisplayFields{})
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestGetAll_MalformedPayloadKeepsDisplayColumns(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &catalog.Item{ID: "r1", Name: "Robo"}))
	_, err := db.Exec(`UPDATE cached_items SET payload = '{bad' WHERE remote_id = 'r1'`)
	require.NoError(t, err)

	items, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].Payload)
	assert.Equal(t, "Robo", items[0].Name)
}

func TestClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &catalog.Item{ID: "r1"}))
	require.NoError(t, r.Clear(ctx))

	items, err := r.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
