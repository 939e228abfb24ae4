package pals

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/palstore/internal/models"
)

// ErrNotFound is returned by point lookups when no pal matches.
var ErrNotFound = errors.New("pal not found")

// Repository describes CRUD and query operations over pal records.
// Implementations are backed by the local SQLite database.
type Repository interface {
	// Create inserts a new pal, assigning its id and timestamps, and
	// returns the fully hydrated record.
	Create(ctx context.Context, pal *models.Pal) (*models.Pal, error)

	// GetAll returns every stored pal in storage order.
	GetAll(ctx context.Context) ([]models.Pal, error)

	// GetByID returns one pal or ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Pal, error)

	// GetByName returns the first pal with the given name or ErrNotFound.
	GetByName(ctx context.Context, name string) (*models.Pal, error)

	// Update applies only the fields present in upd and returns the
	// hydrated result, or ErrNotFound.
	Update(ctx context.Context, id string, upd models.PalUpdate) (*models.Pal, error)

	// Delete removes a pal. Deleting a missing id reports false, not an error.
	Delete(ctx context.Context, id string) (bool, error)

	// GetBySource filters by origin.
	GetBySource(ctx context.Context, source models.Source) ([]models.Pal, error)

	// GetByCapability returns pals whose given capability flag is true.
	GetByCapability(ctx context.Context, capability string) ([]models.Pal, error)
}
