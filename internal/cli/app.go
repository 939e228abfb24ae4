// Package cli wires the data layer into the palstore command-line tool.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/palstore/internal/blob"
	"github.com/dmitrijs2005/palstore/internal/catalog"
	"github.com/dmitrijs2005/palstore/internal/config"
	"github.com/dmitrijs2005/palstore/internal/logging"
	"github.com/dmitrijs2005/palstore/internal/migration"
	"github.com/dmitrijs2005/palstore/internal/repositories"
	"github.com/dmitrijs2005/palstore/internal/session"
	"github.com/dmitrijs2005/palstore/internal/store"
	"github.com/dmitrijs2005/palstore/internal/syncer"
)

// App bundles the wired data layer behind the CLI commands.
type App struct {
	cfg   *config.Config
	log   logging.Logger
	repos *repositories.Repositories

	Catalog catalog.Client
	Store   *store.Store
	Syncer  *syncer.Syncer
	Engine  *migration.Engine
}

// NewApp opens the database, builds every component, and runs the store's
// startup sequence (legacy import, mirror load, default seed).
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	repos, err := repositories.InitDatabase(ctx, cfg.DatabasePath, log)
	if err != nil {
		return nil, err
	}

	blobs, err := blob.NewFSStore(cfg.ThumbnailDir())
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	client := catalog.NewHTTPClient(cfg.CatalogURL, cfg.CatalogTimeout, func() string {
		return cfg.AuthToken
	})
	sess := session.Static{Authenticated: cfg.IsAuthenticated(), UserID: cfg.UserID}

	engine := migration.NewEngine(repos.DB, cfg.DataDir, log)
	sync := syncer.New(client, sess, repos.DB,
		repos.Settings, repos.Library, repos.Cache, repos.SyncStatus, log)

	st := store.New(store.Config{
		Pals:     repos.Pals,
		Library:  repos.Library,
		Client:   client,
		Blobs:    blobs,
		Session:  sess,
		Migrator: engine,
		Cacher:   sync,
		Log:      log,
	})
	if err := st.Init(ctx); err != nil {
		_ = repos.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		log:     log,
		repos:   repos,
		Catalog: client,
		Store:   st,
		Syncer:  sync,
		Engine:  engine,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.repos.Close()
}
