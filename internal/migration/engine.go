// Package migration imports pals from the legacy single-file JSON format
// into the SQLite database. The import runs at most once per data directory:
// a marker file records completion and is only written after every record
// landed, so a failed run is retried in full on the next start.
package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/palstore/internal/dbx"
	"github.com/dmitrijs2005/palstore/internal/logging"
	"github.com/dmitrijs2005/palstore/internal/models"
	"github.com/dmitrijs2005/palstore/internal/repositories/pals"
)

const (
	legacyFileName = "pals.json"
	markerFileName = ".import-complete"
)

// Result reports what a Run did.
type Result struct {
	// Performed is true when a legacy file was found and imported.
	Performed bool
	// Imported is the number of pals written to the database.
	Imported int
}

// Engine performs the one-shot legacy import.
type Engine struct {
	db      *sql.DB
	dataDir string
	log     logging.Logger

	mu      sync.Mutex
	running bool
}

func NewEngine(db *sql.DB, dataDir string, log logging.Logger) *Engine {
	return &Engine{db: db, dataDir: dataDir, log: log}
}

func (e *Engine) legacyPath() string { return filepath.Join(e.dataDir, legacyFileName) }
func (e *Engine) markerPath() string { return filepath.Join(e.dataDir, markerFileName) }

// Run executes the import if it has not completed before. Concurrent calls
// are collapsed: while one import is in flight every other call returns an
// empty Result immediately.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return Result{}, nil
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if e.markerExists() {
		return Result{}, nil
	}

	data, err := os.ReadFile(e.legacyPath())
	if errors.Is(err, os.ErrNotExist) {
		// Fresh install, nothing to import. Mark done so later starts
		// skip the filesystem check.
		if err := e.writeMarker(); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to read legacy file: %w", err)
	}

	var blob models.LegacyBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return Result{}, fmt.Errorf("failed to parse legacy file: %w", err)
	}

	// An empty record array counts as "nothing to import": the marker is
	// written but the file is only removed after a real import.
	if len(blob.Pals) == 0 {
		if err := e.writeMarker(); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	}

	// All records import in one transaction: a partial import would leave
	// no way to tell which pals made it across on the next attempt.
	imported := 0
	err = dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := pals.NewSQLiteRepository(tx, e.log)
		for i, rec := range blob.Pals {
			pal, err := transformRecord(rec)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			if _, err := repo.Create(ctx, pal); err != nil {
				return fmt.Errorf("record %d (%s): %w", i, rec.Name, err)
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("legacy import failed: %w", err)
	}

	if err := e.writeMarker(); err != nil {
		return Result{}, err
	}
	e.removeLegacyFile()

	e.log.Info(ctx, "legacy import complete", "imported", imported)
	return Result{Performed: true, Imported: imported}, nil
}

func (e *Engine) markerExists() bool {
	_, err := os.Stat(e.markerPath())
	return err == nil
}

func (e *Engine) writeMarker() error {
	if err := os.WriteFile(e.markerPath(), []byte("ok\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write import marker: %w", err)
	}
	return nil
}

// removeLegacyFile is best effort: the marker already guards re-import, the
// stale file just wastes disk.
func (e *Engine) removeLegacyFile() {
	if err := os.Remove(e.legacyPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.log.Warn(context.Background(), "failed to remove legacy file", "error", err)
	}
}
