// Package cache keeps remote catalog items cached for offline browsing,
// independent of the user's own pals.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/palstore/internal/catalog"
	"github.com/dmitrijs2005/palstore/internal/dbx"
)

// Item is a cached catalog item: a few display columns for fast listing plus
// the full item payload.
type Item struct {
	RemoteID    string
	Name        string
	Description string
	Thumbnail   string
	Rating      float64
	ReviewCount int
	Payload     *catalog.Item
	CachedAt    time.Time
}

// DisplayFields is the subset refreshed in place by the metadata sync phase.
type DisplayFields struct {
	Name        string
	Description string
	Thumbnail   string
	Rating      float64
	ReviewCount int
}

// Repository describes cached-item operations.
type Repository interface {
	// Upsert inserts or replaces a cached item by remote id.
	Upsert(ctx context.Context, item *catalog.Item) error

	// GetAll lists every cached item.
	GetAll(ctx context.Context) ([]Item, error)

	// UpdateDisplayFields refreshes the listed columns for one item.
	UpdateDisplayFields(ctx context.Context, remoteID string, f DisplayFields) error

	// Clear removes all cached items.
	Clear(ctx context.Context) error
}

// SQLiteRepository implements Repository over a DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, item *catalog.Item) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode cached item: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cached_items (remote_id, name, description, thumbnail_url, rating, review_count, payload, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(remote_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			thumbnail_url = excluded.thumbnail_url,
			rating = excluded.rating,
			review_count = excluded.review_count,
			payload = excluded.payload,
			cached_at = excluded.cached_at
	`, item.ID, item.Name, item.Description, item.ThumbnailURL,
		item.Rating, item.ReviewCount, string(payload), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert cached item %s: %w", item.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT remote_id, name, description, thumbnail_url, rating, review_count, payload, cached_at
		 FROM cached_items ORDER BY cached_at, remote_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select cached items: %w", err)
	}
	defer rows.Close()

	var result []Item
	for rows.Next() {
		var it Item
		var payload string
		var cachedAt int64
		if err := rows.Scan(&it.RemoteID, &it.Name, &it.Description, &it.Thumbnail,
			&it.Rating, &it.ReviewCount, &payload, &cachedAt); err != nil {
			return nil, err
		}
		it.CachedAt = time.Unix(cachedAt, 0).UTC()
		if payload != "" {
			// A malformed payload leaves only the display columns usable.
			var item catalog.Item
			if err := json.Unmarshal([]byte(payload), &item); err == nil {
				it.Payload = &item
			}
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) UpdateDisplayFields(ctx context.Context, remoteID string, f DisplayFields) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cached_items SET name = ?, description = ?, thumbnail_url = ?, rating = ?, review_count = ?
		WHERE remote_id = ?
	`, f.Name, f.Description, f.Thumbnail, f.Rating, f.ReviewCount, remoteID)
	if err != nil {
		return fmt.Errorf("failed to refresh cached item %s: %w", remoteID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotCached
	}
	return nil
}

// ErrNotCached is returned when refreshing an item that is no longer cached.
var ErrNotCached = errors.New("item not cached")

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cached_items`)
	if err != nil {
		return fmt.Errorf("failed to clear cached items: %w", err)
	}
	return nil
}
