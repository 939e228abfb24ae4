// Package library mirrors the user's remote purchase list. The mirror
// carries no independent local state except the downloaded flag, so sync
// replaces it wholesale rather than diffing.
package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/palstore/internal/dbx"
)

// Row is one library mirror entry.
type Row struct {
	UserID      string
	RemoteID    string
	PurchasedAt time.Time
	Downloaded  bool
}

// Repository describes the library mirror operations.
type Repository interface {
	// GetAllForUser lists the mirror rows for one user.
	GetAllForUser(ctx context.Context, userID string) ([]Row, error)

	// ReplaceForUser atomically swaps the user's mirror for rows. The
	// downloaded flag of remote ids that survive the swap is preserved.
	ReplaceForUser(ctx context.Context, db *sql.DB, userID string, rows []Row) error

	// SetDownloaded flips the downloaded flag for one remote id.
	SetDownloaded(ctx context.Context, userID, remoteID string, downloaded bool) error

	// Clear removes every mirror row for all users.
	Clear(ctx context.Context) error
}

// SQLiteRepository implements Repository.
type SQLiteRepository struct {
	db dbx.DBTX
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetAllForUser(ctx context.Context, userID string) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, remote_id, purchased_at, downloaded FROM library WHERE user_id = ? ORDER BY remote_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select library rows: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var row Row
		var purchasedAt int64
		var downloaded int
		if err := rows.Scan(&row.UserID, &row.RemoteID, &purchasedAt, &downloaded); err != nil {
			return nil, err
		}
		row.PurchasedAt = time.Unix(purchasedAt, 0).UTC()
		row.Downloaded = downloaded != 0
		result = append(result, row)
	}
	return result, rows.Err()
}

// ReplaceForUser deletes and re-inserts inside one transaction so readers
// never observe a half-replaced mirror. Downloaded flags are re-applied to
// surviving ids instead of being reset on every sync.
func (r *SQLiteRepository) ReplaceForUser(ctx context.Context, db *sql.DB, userID string, newRows []Row) error {
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		downloaded := map[string]bool{}
		rows, err := tx.QueryContext(ctx,
			`SELECT remote_id FROM library WHERE user_id = ? AND downloaded = 1`, userID)
		if err != nil {
			return fmt.Errorf("failed to read downloaded flags: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			downloaded[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if _, err := tx.ExecContext(ctx, `DELETE FROM library WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to clear library mirror: %w", err)
		}
		for _, row := range newRows {
			dl := 0
			if row.Downloaded || downloaded[row.RemoteID] {
				dl = 1
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO library (user_id, remote_id, purchased_at, downloaded) VALUES (?, ?, ?, ?)`,
				userID, row.RemoteID, row.PurchasedAt.Unix(), dl); err != nil {
				return fmt.Errorf("failed to insert library row %s: %w", row.RemoteID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) SetDownloaded(ctx context.Context, userID, remoteID string, downloaded bool) error {
	dl := 0
	if downloaded {
		dl = 1
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE library SET downloaded = ? WHERE user_id = ? AND remote_id = ?`, dl, userID, remoteID)
	if err != nil {
		return fmt.Errorf("failed to set downloaded flag: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM library`)
	if err != nil {
		return fmt.Errorf("failed to clear library: %w", err)
	}
	return nil
}
