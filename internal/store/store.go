// Package store is the aggregate root of the data layer. It keeps an
// in-memory mirror of the pals repository so reads never hit storage, and
// funnels every mutation through one path that writes the repository first
// and then the mirror, so the two can never drift apart.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/palstore/internal/blob"
	"github.com/dmitrijs2005/palstore/internal/catalog"
	"github.com/dmitrijs2005/palstore/internal/logging"
	"github.com/dmitrijs2005/palstore/internal/migration"
	"github.com/dmitrijs2005/palstore/internal/models"
	"github.com/dmitrijs2005/palstore/internal/prompt"
	"github.com/dmitrijs2005/palstore/internal/repositories/library"
	"github.com/dmitrijs2005/palstore/internal/repositories/pals"
	"github.com/dmitrijs2005/palstore/internal/retryx"
	"github.com/dmitrijs2005/palstore/internal/session"
)

// seedPalName is the built-in persona created on first start if absent.
const seedPalName = "Lookie"

// Migrator runs the one-shot legacy import; see the migration package.
type Migrator interface {
	Run(ctx context.Context) (migration.Result, error)
}

// Cacher stores remote items for offline browsing; see syncer.CacheItem.
type Cacher interface {
	CacheItem(ctx context.Context, item *catalog.Item) error
}

// Config wires a Store's collaborators.
type Config struct {
	Pals    pals.Repository
	Library library.Repository
	Client  catalog.Client
	Blobs   blob.Store
	Session session.Provider

	// Migrator and Cacher are optional; nil disables the legacy import and
	// offline caching of browsed items.
	Migrator Migrator
	Cacher   Cacher

	Log logging.Logger
}

// Store is the facade the rest of the application talks to.
type Store struct {
	pals     pals.Repository
	library  library.Repository
	client   catalog.Client
	blobs    blob.Store
	session  session.Provider
	migrator Migrator
	cacher   Cacher
	log      logging.Logger

	mu     sync.RWMutex
	mirror []models.Pal
}

func New(cfg Config) *Store {
	return &Store{
		pals:     cfg.Pals,
		library:  cfg.Library,
		client:   cfg.Client,
		blobs:    cfg.Blobs,
		session:  cfg.Session,
		migrator: cfg.Migrator,
		cacher:   cfg.Cacher,
		log:      cfg.Log,
	}
}

// Init runs the startup sequence: legacy import, mirror load, default seed.
// A failed import or load is logged and the app continues with whatever is
// there; only the seed write can fail Init.
func (s *Store) Init(ctx context.Context) error {
	if s.migrator != nil {
		res, err := s.migrator.Run(ctx)
		if err != nil {
			s.log.Error(ctx, "legacy import failed, continuing without it", "error", err)
		} else if res.Performed {
			s.log.Info(ctx, "legacy pals imported", "count", res.Imported)
		}
	}

	all, err := s.pals.GetAll(ctx)
	if err != nil {
		s.log.Error(ctx, "failed to load pals, starting empty", "error", err)
		all = nil
	}
	s.mu.Lock()
	s.mirror = all
	s.mu.Unlock()

	return s.ensureSeeded(ctx)
}

// ensureSeeded creates the built-in pal if no pal with its name exists yet.
// Matching by name keeps the seed idempotent across restarts.
func (s *Store) ensureSeeded(ctx context.Context) error {
	_, err := s.pals.GetByName(ctx, seedPalName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pals.ErrNotFound) {
		s.log.Error(ctx, "failed to check seed pal", "error", err)
		return nil
	}

	_, err = s.Create(ctx, &models.Pal{
		Name:           seedPalName,
		Description:    "Your friendly starter pal. Ask it anything.",
		PromptTemplate: "You are Lookie, a cheerful and curious companion. Keep answers short and warm.",
	})
	return err
}

// put is the single mirror write path: replace in place or append.
// Callers hold no lock; the repository write must already have succeeded.
func (s *Store) put(p *models.Pal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.mirror {
		if s.mirror[i].ID == p.ID {
			s.mirror[i] = *p
			return
		}
	}
	s.mirror = append(s.mirror, *p)
}

func (s *Store) drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.mirror {
		if s.mirror[i].ID == id {
			s.mirror = append(s.mirror[:i], s.mirror[i+1:]...)
			return
		}
	}
}

// Create persists a new pal and mirrors the stored result.
func (s *Store) Create(ctx context.Context, pal *models.Pal) (*models.Pal, error) {
	created, err := s.pals.Create(ctx, pal)
	if err != nil {
		return nil, err
	}
	s.put(created)
	return created, nil
}

// Update applies a partial update and mirrors the stored result.
func (s *Store) Update(ctx context.Context, id string, upd models.PalUpdate) (*models.Pal, error) {
	updated, err := s.pals.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.put(updated)
	return updated, nil
}

// Delete removes a pal and, best effort, its locally stored thumbnail.
// Deleting a missing id reports false without error.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	existing, _ := s.GetByID(id)

	ok, err := s.pals.Delete(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	s.drop(id)

	if existing != nil && existing.IsLocalThumbnail() {
		if err := s.blobs.Delete(existing.ThumbnailRef); err != nil {
			s.log.Warn(ctx, "failed to delete pal thumbnail", "pal_id", id, "error", err)
		}
	}
	return true, nil
}

// GetAll returns a snapshot of the mirror.
func (s *Store) GetAll() []models.Pal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Pal, len(s.mirror))
	copy(out, s.mirror)
	return out
}

// GetByID reads from the mirror; nil when absent.
func (s *Store) GetByID(id string) (*models.Pal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.mirror {
		if s.mirror[i].ID == id {
			p := s.mirror[i]
			return &p, true
		}
	}
	return nil, false
}

// GetBySource filters the mirror by origin.
func (s *Store) GetBySource(source models.Source) []models.Pal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Pal
	for i := range s.mirror {
		if s.mirror[i].Source == source {
			out = append(out, s.mirror[i])
		}
	}
	return out
}

// GetByCapability filters the mirror by a capability flag being true.
func (s *Store) GetByCapability(capability string) []models.Pal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Pal
	for i := range s.mirror {
		if s.mirror[i].Capabilities[capability] {
			out = append(out, s.mirror[i])
		}
	}
	return out
}

// MaterializeRemoteItem downloads a catalog item into a local pal.
//
// Premium items require a verified purchase. The prompt is split into a
// clean template plus any embedded parameter schema. Metadata refresh and
// thumbnail download are both best effort; a persistence failure after a
// thumbnail was stored removes the orphaned blob again.
func (s *Store) MaterializeRemoteItem(ctx context.Context, item *catalog.Item) (*models.Pal, error) {
	if !item.IsFree() {
		own, err := retryx.Do(ctx, retryx.Options{}, func(ctx context.Context) (*catalog.Ownership, error) {
			return s.client.CheckOwnership(ctx, item.ID)
		})
		if err != nil {
			return nil, err
		}
		if !own.Owned {
			return nil, retryx.NewDomainError("you must own %q to download it", item.Name)
		}
	}

	// Refresh the item detail so the local copy starts from current
	// metadata; the listing payload we were handed is the fallback.
	fresh, err := retryx.Do(ctx, retryx.Options{}, func(ctx context.Context) (*catalog.Item, error) {
		return s.client.GetByID(ctx, item.ID)
	})
	if err != nil {
		s.log.Warn(ctx, "failed to refresh item before download, using listing data",
			"remote_id", item.ID, "error", err)
		fresh = item
	}

	parsed := prompt.Parse(fresh.Prompt)

	pal := &models.Pal{
		Name:                   fresh.Name,
		Description:            fresh.Description,
		ThumbnailRef:           fresh.ThumbnailURL,
		PromptTemplate:         parsed.Template,
		PromptTemplateOriginal: fresh.Prompt,
		Parameters:             parsed.Defaults,
		ParameterSchema:        parsed.Schema,
		Capabilities:           fresh.Capabilities,
		Source:                 models.SourceRemote,
		RemoteID:               fresh.ID,
		Creator:                fresh.Creator,
		Categories:             fresh.Categories,
		Tags:                   fresh.Tags,
		Rating:                 fresh.Rating,
		ReviewCount:            fresh.ReviewCount,
		Protection:             fresh.Protection,
		Price:                  fresh.Price,
		Owned:                  true,
		RemoteSettings:         fresh.Settings,
	}

	// Generation settings may live on the referenced model item rather than
	// the pal item itself; fetching them is best effort.
	if pal.RemoteSettings == nil && fresh.ModelID != "" {
		model, err := retryx.Do(ctx, retryx.Options{}, func(ctx context.Context) (*catalog.Item, error) {
			return s.client.GetByID(ctx, fresh.ModelID)
		})
		if err != nil {
			s.log.Warn(ctx, "failed to fetch model metadata", "model_id", fresh.ModelID, "error", err)
		} else {
			pal.RemoteSettings = model.Settings
		}
	}

	var storedRef string
	if fresh.ThumbnailURL != "" {
		ref, err := s.blobs.Store(ctx, fresh.ID, fresh.ThumbnailURL)
		if err != nil {
			s.log.Warn(ctx, "thumbnail download failed, keeping remote url",
				"remote_id", fresh.ID, "error", err)
		} else {
			pal.ThumbnailRef = ref
			storedRef = ref
		}
	}

	created, err := s.Create(ctx, pal)
	if err != nil {
		if storedRef != "" {
			_ = s.blobs.Delete(storedRef)
		}
		return nil, err
	}

	if s.session.IsAuthenticated() {
		if err := s.library.SetDownloaded(ctx, s.session.CurrentUserID(), fresh.ID, true); err != nil {
			s.log.Warn(ctx, "failed to flag library item downloaded",
				"remote_id", fresh.ID, "error", err)
		}
	}
	return created, nil
}

// RenderPrompt renders a pal's working template, substituting the given
// values over the pal's stored parameters.
func (s *Store) RenderPrompt(id string, values map[string]string) (string, error) {
	p, ok := s.GetByID(id)
	if !ok {
		return "", pals.ErrNotFound
	}
	return prompt.Render(p.PromptTemplate, values, p.Parameters), nil
}

// Search queries the catalog. Network failure degrades to an empty result.
func (s *Store) Search(ctx context.Context, q catalog.Query) []catalog.Item {
	return s.fetchPage(ctx, "search", q, s.client.Search)
}

// LoadLibrary lists the user's purchases. Results are cached for offline
// browsing; network failure degrades to an empty result.
func (s *Store) LoadLibrary(ctx context.Context, q catalog.Query) []catalog.Item {
	items := s.fetchPage(ctx, "library", q, s.client.GetLibrary)
	if s.cacher != nil {
		for i := range items {
			if err := s.cacher.CacheItem(ctx, &items[i]); err != nil {
				s.log.Warn(ctx, "failed to cache library item", "remote_id", items[i].ID, "error", err)
			}
		}
	}
	return items
}

// LoadMyItems lists the user's own published items; never fails.
func (s *Store) LoadMyItems(ctx context.Context, q catalog.Query) []catalog.Item {
	return s.fetchPage(ctx, "my-items", q, s.client.GetMyItems)
}

func (s *Store) fetchPage(ctx context.Context, what string, q catalog.Query,
	fetch func(ctx context.Context, q catalog.Query) (*catalog.Page, error)) []catalog.Item {
	page, err := retryx.Do(ctx, retryx.Options{}, func(ctx context.Context) (*catalog.Page, error) {
		return fetch(ctx, q)
	})
	if err != nil {
		s.log.Warn(ctx, "catalog request failed", "what", what, "error", err)
		return nil
	}
	return page.Items
}

var _ Migrator = (*migration.Engine)(nil)
