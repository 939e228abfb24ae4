// Package syncstatus persists one status row per synced entity type so the
// app can show when each kind of data was last refreshed and why a refresh
// failed.
package syncstatus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/palstore/internal/dbx"
)

// Status values for a sync row.
const (
	StatusPending = "pending"
	StatusSynced  = "synced"
	StatusError   = "error"
)

// Entity type keys used by the orchestrator.
const (
	EntityCategories   = "categories"
	EntityTags         = "tags"
	EntityLibrary      = "library"
	EntityItemMetadata = "item-metadata"
)

// Row is the persisted sync state for one entity type.
type Row struct {
	EntityType   string
	Status       string
	LastSyncAt   time.Time
	ErrorMessage string
}

// ErrNotFound is returned when no row exists for an entity type.
var ErrNotFound = errors.New("sync status not found")

// Repository describes sync-status persistence.
type Repository interface {
	// Upsert creates or updates the row for entityType in place.
	Upsert(ctx context.Context, entityType, status, errorMessage string) error

	// Get returns the row for entityType or ErrNotFound.
	Get(ctx context.Context, entityType string) (*Row, error)

	// GetAll lists every status row.
	GetAll(ctx context.Context) ([]Row, error)

	// Clear removes all rows; only an explicit cache clear does this.
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

func (r *SQLiteRepository) Upsert(ctx context.Context, entityType, status, errorMessage string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_status (entity_type, status, last_sync_at, error_message)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type) DO UPDATE SET
			status = excluded.status,
			last_sync_at = excluded.last_sync_at,
			error_message = excluded.error_message
	`, entityType, status, time.Now().UTC().Unix(), errorMessage)
	if err != nil {
		return fmt.Errorf("failed to upsert sync status[%s]: %w", entityType, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, entityType string) (*Row, error) {
	var row Row
	var lastSyncAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT entity_type, status, last_sync_at, error_message FROM sync_status WHERE entity_type = ?`,
		entityType).Scan(&row.EntityType, &row.Status, &lastSyncAt, &row.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status[%s]: %w", entityType, err)
	}
	row.LastSyncAt = time.Unix(lastSyncAt, 0).UTC()
	return &row, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entity_type, status, last_sync_at, error_message FROM sync_status ORDER BY entity_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to select sync status rows: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var row Row
		var lastSyncAt int64
		if err := rows.Scan(&row.EntityType, &row.Status, &lastSyncAt, &row.ErrorMessage); err != nil {
			return nil, err
		}
		row.LastSyncAt = time.Unix(lastSyncAt, 0).UTC()
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_status`)
	if err != nil {
		return fmt.Errorf("failed to clear sync status: %w", err)
	}
	return nil
}
