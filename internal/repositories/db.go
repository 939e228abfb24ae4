// Package repositories wires the local database: it opens the SQLite file,
// runs schema migrations, and hands out one repository per table.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/palstore/internal/db/migrations"
	"github.com/dmitrijs2005/palstore/internal/logging"
	"github.com/dmitrijs2005/palstore/internal/repositories/cache"
	"github.com/dmitrijs2005/palstore/internal/repositories/library"
	"github.com/dmitrijs2005/palstore/internal/repositories/pals"
	"github.com/dmitrijs2005/palstore/internal/repositories/settings"
	"github.com/dmitrijs2005/palstore/internal/repositories/syncstatus"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Repositories bundles every repository over one shared connection.
type Repositories struct {
	Pals       pals.Repository
	Settings   settings.Repository
	Library    library.Repository
	Cache      cache.Repository
	SyncStatus syncstatus.Repository

	// DB is the shared handle, exposed for transactional flows
	// (legacy import, library replace).
	DB *sql.DB
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the database at dsn, migrates the
// schema, and returns the repository set. SQLite does not tolerate
// concurrent writers, so the pool is pinned to a single connection.
func InitDatabase(ctx context.Context, dsn string, log logging.Logger) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		Pals:       pals.NewSQLiteRepository(db, log),
		Settings:   settings.NewSQLiteRepository(db),
		Library:    library.NewSQLiteRepository(db),
		Cache:      cache.NewSQLiteRepository(db),
		SyncStatus: syncstatus.NewSQLiteRepository(db),
		DB:         db,
	}, nil
}

// Close releases the shared connection.
func (r *Repositories) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}
