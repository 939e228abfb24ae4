package syncer

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/palstore/internal/catalog"
	"github.com/dmitrijs2005/palstore/internal/logging"
	"github.com/dmitrijs2005/palstore/internal/repositories/cache"
	"github.com/dmitrijs2005/palstore/internal/repositories/library"
	"github.com/dmitrijs2005/palstore/internal/repositories/settings"
	"github.com/dmitrijs2005/palstore/internal/repositories/syncstatus"
	"github.com/dmitrijs2005/palstore/internal/retryx"
	"github.com/dmitrijs2005/palstore/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE settings (
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
CREATE TABLE library (
  user_id TEXT NOT NULL,
  remote_id TEXT NOT NULL,
  purchased_at INTEGER NOT NULL DEFAULT 0,
  downloaded INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (user_id, remote_id)
);
CREATE TABLE cached_items (
  remote_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  thumbnail_url TEXT NOT NULL DEFAULT '',
  rating REAL NOT NULL DEFAULT 0,
  review_count INTEGER NOT NULL DEFAULT 0,
  payload TEXT NOT NULL DEFAULT '',
  cached_at INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE sync_status (
  entity_type TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  last_sync_at INTEGER NOT NULL DEFAULT 0,
  error_message TEXT NOT NULL DEFAULT ''
);`)
	require.NoError(t, err)
	return db
}

// fakeClient is a scriptable catalog.Client.
type fakeClient struct {
	mu sync.Mutex

	categories []catalog.Category
	tags       []catalog.Tag
	libPages   []*catalog.Page
	items      map[string]*catalog.Item

	errCategories error
	errTags       error
	errItems      map[string]error

	// blockCategories, when set, is waited on before GetCategories returns.
	blockCategories chan struct{}

	categoriesCalls int
	libraryCalls    int
}

var _ catalog.Client = (*fakeClient)(nil)

func (f *fakeClient) GetCategories(ctx context.Context) ([]catalog.Category, error) {
	f.mu.Lock()
	f.categoriesCalls++
	block := f.blockCategories
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.categories, f.errCategories
}

func (f *fakeClient) GetTags(ctx context.Context, q catalog.Query) ([]catalog.Tag, error) {
	return f.tags, f.errTags
}

func (f *fakeClient) GetLibrary(ctx context.Context, q catalog.Query) (*catalog.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.libraryCalls++
	if len(f.libPages) == 0 {
		return &catalog.Page{Page: q.Page, Limit: q.Limit}, nil
	}
	idx := q.Page - 1
	if idx < 0 || idx >= len(f.libPages) {
		return &catalog.Page{Page: q.Page, Limit: q.Limit}, nil
	}
	return f.libPages[idx], nil
}

func (f *fakeClient) GetByID(ctx context.Context, id string) (*catalog.Item, error) {
	if err := f.errItems[id]; err != nil {
		return nil, err
	}
	if it, ok := f.items[id]; ok {
		return it, nil
	}
	return nil, &retryx.APIError{StatusCode: 404}
}

func (f *fakeClient) Search(ctx context.Context, q catalog.Query) (*catalog.Page, error) {
	return &catalog.Page{}, nil
}

func (f *fakeClient) GetMyItems(ctx context.Context, q catalog.Query) (*catalog.Page, error) {
	return &catalog.Page{}, nil
}

func (f *fakeClient) CheckOwnership(ctx context.Context, id string) (*catalog.Ownership, error) {
	return &catalog.Ownership{}, nil
}

func newSyncer(t *testing.T, db *sql.DB, client catalog.Client, sess session.Provider) *Syncer {
	t.Helper()
	return New(client, sess, db,
		settings.NewSQLiteRepository(db),
		library.NewSQLiteRepository(db),
		cache.NewSQLiteRepository(db),
		syncstatus.NewSQLiteRepository(db),
		testLogger())
}

func authed() session.Provider {
	return session.Static{Authenticated: true, UserID: "u1"}
}

func TestSyncAll_HappyPath(t *testing.T) {
	db := setupDB(t)
	purchased := time.Now().UTC().Truncate(time.Second)
	client := &fakeClient{
		categories: []catalog.Category{{ID: "c1", Name: "Art"}},
		tags:       []catalog.Tag{{ID: "t1", Name: "fun"}},
		libPages: []*catalog.Page{{
			Items: []catalog.Item{{ID: "r1", Name: "Robo", PurchasedAt: &purchased}},
		}},
	}
	s := newSyncer(t, db, client, authed())
	ctx := context.Background()

	require.NoError(t, s.SyncAll(ctx))
	assert.Equal(t, StateSuccess, s.State())
	assert.False(t, s.LastSyncAt().IsZero())
	assert.Empty(t, s.LastError())

	cats, err := s.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Art", cats[0].Name)

	tags, err := s.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)

	rows, err := library.NewSQLiteRepository(db).GetAllForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r1", rows[0].RemoteID)
	assert.Equal(t, purchased, rows[0].PurchasedAt)

	statuses, err := s.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 4)
	for _, row := range statuses {
		assert.Equal(t, syncstatus.StatusSynced, row.Status, row.EntityType)
	}
}

func TestSyncAll_NotAuthenticated(t *testing.T) {
	db := setupDB(t)
	s := newSyncer(t, db, &fakeClient{}, session.Static{})

	err := s.SyncAll(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, StateIdle, s.State())
}

func TestSyncAll_ConcurrentCallIsNoop(t *testing.T) {
	db := setupDB(t)
	block := make(chan struct{})
	client := &fakeClient{blockCategories: block}
	s := newSyncer(t, db, client, authed())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.SyncAll(ctx) }()

	// Wait until the first sync is inside the categories phase.
	require.Eventually(t, func() bool {
		return s.State() == StateSyncing
	}, time.Second, time.Millisecond)

	require.NoError(t, s.SyncAll(ctx), "a second call during a sync must be a no-op")

	close(block)
	require.NoError(t, <-done)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, 1, client.categoriesCalls)
}

func TestSyncAll_PhaseFailureAbortsLaterPhases(t *testing.T) {
	db := setupDB(t)
	client := &fakeClient{
		categories: []catalog.Category{{ID: "c1", Name: "Art"}},
		errTags:    &retryx.APIError{StatusCode: 400, Message: "bad request"},
	}
	s := newSyncer(t, db, client, authed())
	ctx := context.Background()

	err := s.SyncAll(ctx)
	require.Error(t, err)
	assert.Equal(t, StateError, s.State())
	assert.NotEmpty(t, s.LastError())

	statusRepo := syncstatus.NewSQLiteRepository(db)

	catRow, err := statusRepo.Get(ctx, syncstatus.EntityCategories)
	require.NoError(t, err)
	assert.Equal(t, syncstatus.StatusSynced, catRow.Status)

	tagRow, err := statusRepo.Get(ctx, syncstatus.EntityTags)
	require.NoError(t, err)
	assert.Equal(t, syncstatus.StatusError, tagRow.Status)
	assert.Contains(t, tagRow.ErrorMessage, "bad request")

	_, err = statusRepo.Get(ctx, syncstatus.EntityLibrary)
	assert.ErrorIs(t, err, syncstatus.ErrNotFound, "library phase must not start after tags failed")

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Zero(t, client.libraryCalls)
}

func TestSyncAll_LibraryPagination(t *testing.T) {
	db := setupDB(t)
	client := &fakeClient{
		libPages: []*catalog.Page{
			{Items: []catalog.Item{{ID: "a"}, {ID: "b"}}, HasMore: true},
			{Items: []catalog.Item{{ID: "c"}}},
		},
	}
	s := newSyncer(t, db, client, authed())
	ctx := context.Background()

	require.NoError(t, s.SyncAll(ctx))

	rows, err := library.NewSQLiteRepository(db).GetAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestSyncAll_ItemMetadataPartialFailure(t *testing.T) {
	db := setupDB(t)
	cacheRepo := cache.NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, cacheRepo.Upsert(ctx, &catalog.Item{ID: "ok", Name: "Old"}))
	require.NoError(t, cacheRepo.Upsert(ctx, &catalog.Item{ID: "bad", Name: "Broken"}))

	client := &fakeClient{
		items: map[string]*catalog.Item{
			"ok": {ID: "ok", Name: "Fresh", Rating: 4.2, ReviewCount: 10},
		},
		errItems: map[string]error{
			"bad": &retryx.APIError{StatusCode: 400},
		},
	}
	s := newSyncer(t, db, client, authed())

	require.NoError(t, s.SyncAll(ctx), "one failing item must not fail the sync")

	items, err := cacheRepo.GetAll(ctx)
	require.NoError(t, err)
	byID := map[string]cache.Item{}
	for _, it := range items {
		byID[it.RemoteID] = it
	}
	assert.Equal(t, "Fresh", byID["ok"].Name)
	assert.Equal(t, "Broken", byID["bad"].Name, "failed item keeps its stale fields")
}

func TestSyncAll_ItemMetadataAllFail(t *testing.T) {
	db := setupDB(t)
	cacheRepo := cache.NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, cacheRepo.Upsert(ctx, &catalog.Item{ID: "bad", Name: "Broken"}))

	client := &fakeClient{
		errItems: map[string]error{
			"bad": &retryx.APIError{StatusCode: 400},
		},
	}
	s := newSyncer(t, db, client, authed())

	err := s.SyncAll(ctx)
	require.Error(t, err)
	assert.Equal(t, StateError, s.State())
}

func TestNeedsSync(t *testing.T) {
	db := setupDB(t)
	client := &fakeClient{}
	ctx := context.Background()

	signedOut := newSyncer(t, db, client, session.Static{})
	assert.False(t, signedOut.NeedsSync(ctx), "signed-out users never need sync")

	s := newSyncer(t, db, client, authed())
	assert.True(t, s.NeedsSync(ctx), "no status rows means sync is needed")

	require.NoError(t, s.SyncAll(ctx))
	assert.False(t, s.NeedsSync(ctx))

	// Age one phase past the staleness window.
	stale := time.Now().UTC().Add(-10 * time.Minute).Unix()
	_, err := db.Exec(`UPDATE sync_status SET last_sync_at = ? WHERE entity_type = ?`,
		stale, syncstatus.EntityLibrary)
	require.NoError(t, err)
	assert.True(t, s.NeedsSync(ctx))
}

func TestClearCache(t *testing.T) {
	db := setupDB(t)
	client := &fakeClient{
		libPages: []*catalog.Page{{Items: []catalog.Item{{ID: "r1"}}}},
		items:    map[string]*catalog.Item{"r1": {ID: "r1", Name: "Robo"}},
	}
	s := newSyncer(t, db, client, authed())
	ctx := context.Background()

	require.NoError(t, s.CacheItem(ctx, &catalog.Item{ID: "r1", Name: "Robo"}))
	require.NoError(t, s.SyncAll(ctx))

	require.NoError(t, s.ClearCache(ctx))

	items, err := cache.NewSQLiteRepository(db).GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	rows, err := library.NewSQLiteRepository(db).GetAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	statuses, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, statuses)

	assert.Equal(t, StateIdle, s.State())
	assert.True(t, s.LastSyncAt().IsZero())
}
