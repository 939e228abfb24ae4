// Package syncer orchestrates refreshing local mirrors of remote catalog
// data: reference lists, the purchase library, and cached item metadata.
// Phases run in a fixed order and the first failed phase aborts the rest;
// every phase records its outcome in the sync_status table.
package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/palstore/internal/catalog"
	"github.com/dmitrijs2005/palstore/internal/logging"
	"github.com/dmitrijs2005/palstore/internal/repositories/cache"
	"github.com/dmitrijs2005/palstore/internal/repositories/library"
	"github.com/dmitrijs2005/palstore/internal/repositories/settings"
	"github.com/dmitrijs2005/palstore/internal/repositories/syncstatus"
	"github.com/dmitrijs2005/palstore/internal/retryx"
	"github.com/dmitrijs2005/palstore/internal/session"
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
	StateSuccess State = "success"
)

// staleAfter is how old the last successful sync may be before NeedsSync
// reports true.
const staleAfter = 5 * time.Minute

// libraryPageSize is the page size used when walking the remote library.
const libraryPageSize = 100

// ErrNotAuthenticated is returned by SyncAll when no user is signed in.
var ErrNotAuthenticated = errors.New("not authenticated")

// Syncer runs the four sync phases against the remote catalog.
type Syncer struct {
	client  catalog.Client
	session session.Provider
	db      *sql.DB

	settings settings.Repository
	library  library.Repository
	cache    cache.Repository
	status   syncstatus.Repository

	log logging.Logger

	mu       sync.Mutex
	state    State
	lastSync time.Time
	lastErr  string
}

func New(client catalog.Client, sess session.Provider, db *sql.DB,
	set settings.Repository, lib library.Repository, cch cache.Repository,
	status syncstatus.Repository, log logging.Logger) *Syncer {
	return &Syncer{
		client:   client,
		session:  sess,
		db:       db,
		settings: set,
		library:  lib,
		cache:    cch,
		status:   status,
		log:      log,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSyncAt returns when the last full sync completed, zero if never.
func (s *Syncer) LastSyncAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// LastError returns the message of the last failed sync, "" after a success.
func (s *Syncer) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SyncAll runs all phases in order. While a sync is already in flight every
// other call returns immediately without doing anything.
func (s *Syncer) SyncAll(ctx context.Context) error {
	if !s.session.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	s.mu.Lock()
	if s.state == StateSyncing {
		s.mu.Unlock()
		return nil
	}
	s.state = StateSyncing
	s.mu.Unlock()

	err := s.runPhases(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = StateError
		s.lastErr = err.Error()
	} else {
		s.state = StateSuccess
		s.lastErr = ""
		s.lastSync = time.Now().UTC()
	}
	s.mu.Unlock()
	return err
}

func (s *Syncer) runPhases(ctx context.Context) error {
	phases := []struct {
		entity string
		run    func(ctx context.Context) error
	}{
		{syncstatus.EntityCategories, s.syncCategories},
		{syncstatus.EntityTags, s.syncTags},
		{syncstatus.EntityLibrary, s.syncLibrary},
		{syncstatus.EntityItemMetadata, s.syncItemMetadata},
	}

	for _, phase := range phases {
		if err := s.status.Upsert(ctx, phase.entity, syncstatus.StatusPending, ""); err != nil {
			return err
		}
		if err := phase.run(ctx); err != nil {
			_ = s.status.Upsert(ctx, phase.entity, syncstatus.StatusError, err.Error())
			s.log.Error(ctx, "sync phase failed", "entity", phase.entity, "error", err)
			return fmt.Errorf("sync %s: %w", phase.entity, err)
		}
		if err := s.status.Upsert(ctx, phase.entity, syncstatus.StatusSynced, ""); err != nil {
			return err
		}
		s.log.Debug(ctx, "sync phase complete", "entity", phase.entity)
	}
	return nil
}

func (s *Syncer) syncCategories(ctx context.Context) error {
	cats, err := retryx.Do(ctx, retryx.Options{}, func(ctx context.Context) ([]catalog.Category, error) {
		return s.client.GetCategories(ctx)
	})
	if err != nil {
		return err
	}
	blob, err := json.Marshal(cats)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}
	return s.settings.Set(ctx, settings.KeyCategories, blob)
}

func (s *Syncer) syncTags(ctx context.Context) error {
	tags, err := retryx.Do(ctx, retryx.Options{}, func(ctx context.Context) ([]catalog.Tag, error) {
		return s.client.GetTags(ctx, catalog.Query{})
	})
	if err != nil {
		return err
	}
	blob, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	return s.settings.Set(ctx, settings.KeyTags, blob)
}

// syncLibrary walks the remote purchase list page by page and replaces the
// local mirror wholesale; downloaded flags of surviving items carry over
// inside the replace.
func (s *Syncer) syncLibrary(ctx context.Context) error {
	userID := s.session.CurrentUserID()

	var rows []library.Row
	for page := 1; ; page++ {
		q := catalog.Query{Page: page, Limit: libraryPageSize}
		res, err := retryx.Do(ctx, retryx.Options{}, func(ctx context.Context) (*catalog.Page, error) {
			return s.client.GetLibrary(ctx, q)
		})
		if err != nil {
			return err
		}
		for _, item := range res.Items {
			row := library.Row{UserID: userID, RemoteID: item.ID}
			if item.PurchasedAt != nil {
				row.PurchasedAt = *item.PurchasedAt
			}
			rows = append(rows, row)
		}
		if !res.HasMore {
			break
		}
	}

	return s.library.ReplaceForUser(ctx, s.db, userID, rows)
}

// syncItemMetadata refreshes the display fields of every cached item. One
// item failing does not stop the others; the phase itself fails only when
// nothing could be refreshed at all, since all items failing together means
// the catalog itself is unreachable, not that individual items went stale.
func (s *Syncer) syncItemMetadata(ctx context.Context) error {
	items, err := s.cache.GetAll(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	var failed int
	var lastErr error
	for _, it := range items {
		remote, err := retryx.Do(ctx, retryx.Options{}, func(ctx context.Context) (*catalog.Item, error) {
			return s.client.GetByID(ctx, it.RemoteID)
		})
		if err != nil {
			failed++
			lastErr = err
			s.log.Warn(ctx, "failed to refresh cached item", "remote_id", it.RemoteID, "error", err)
			continue
		}
		err = s.cache.UpdateDisplayFields(ctx, it.RemoteID, cache.DisplayFields{
			Name:        remote.Name,
			Description: remote.Description,
			Thumbnail:   remote.ThumbnailURL,
			Rating:      remote.Rating,
			ReviewCount: remote.ReviewCount,
		})
		if err != nil && !errors.Is(err, cache.ErrNotCached) {
			failed++
			lastErr = err
		}
	}
	if failed == len(items) {
		return fmt.Errorf("no cached item could be refreshed: %w", lastErr)
	}
	return nil
}

// NeedsSync reports whether a full sync should run: never for a signed-out
// user, otherwise whenever any phase is missing, not synced, or older than
// the staleness window.
func (s *Syncer) NeedsSync(ctx context.Context) bool {
	if !s.session.IsAuthenticated() {
		return false
	}

	rows, err := s.status.GetAll(ctx)
	if err != nil {
		return true
	}
	byEntity := map[string]syncstatus.Row{}
	for _, row := range rows {
		byEntity[row.EntityType] = row
	}

	cutoff := time.Now().UTC().Add(-staleAfter)
	for _, entity := range []string{
		syncstatus.EntityCategories,
		syncstatus.EntityTags,
		syncstatus.EntityLibrary,
		syncstatus.EntityItemMetadata,
	} {
		row, ok := byEntity[entity]
		if !ok || row.Status != syncstatus.StatusSynced || row.LastSyncAt.Before(cutoff) {
			return true
		}
	}
	return false
}

// CacheItem stores a catalog item for offline browsing and later metadata
// refresh.
func (s *Syncer) CacheItem(ctx context.Context, item *catalog.Item) error {
	return s.cache.Upsert(ctx, item)
}

// Categories returns the locally stored category reference list, nil when
// no sync has stored one yet.
func (s *Syncer) Categories(ctx context.Context) ([]catalog.Category, error) {
	blob, err := s.settings.Get(ctx, settings.KeyCategories)
	if err != nil || blob == nil {
		return nil, err
	}
	var cats []catalog.Category
	if err := json.Unmarshal(blob, &cats); err != nil {
		return nil, fmt.Errorf("failed to decode stored categories: %w", err)
	}
	return cats, nil
}

// Tags returns the locally stored tag reference list, nil when no sync has
// stored one yet.
func (s *Syncer) Tags(ctx context.Context) ([]catalog.Tag, error) {
	blob, err := s.settings.Get(ctx, settings.KeyTags)
	if err != nil || blob == nil {
		return nil, err
	}
	var tags []catalog.Tag
	if err := json.Unmarshal(blob, &tags); err != nil {
		return nil, fmt.Errorf("failed to decode stored tags: %w", err)
	}
	return tags, nil
}

// Status lists the persisted per-entity sync rows.
func (s *Syncer) Status(ctx context.Context) ([]syncstatus.Row, error) {
	return s.status.GetAll(ctx)
}

// ClearCache wipes everything sync ever wrote: cached items, the library
// mirror, the status rows, and the in-memory state.
func (s *Syncer) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return err
	}
	if err := s.library.Clear(ctx); err != nil {
		return err
	}
	if err := s.status.Clear(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = StateIdle
	s.lastSync = time.Time{}
	s.lastErr = ""
	s.mu.Unlock()
	return nil
}
