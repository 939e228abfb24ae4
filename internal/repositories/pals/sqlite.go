package pals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/palstore/internal/dbx"
	"github.com/dmitrijs2005/palstore/internal/logging"
	"github.com/dmitrijs2005/palstore/internal/models"
	"github.com/google/uuid"
)

const palColumns = `id, name, description, thumbnail_ref,
	prompt_template, prompt_template_original, prompt_is_modified,
	parameters, parameter_schema, capabilities, source, remote_id,
	creator, categories, tags, rating, review_count, protection, price, owned,
	generation_settings, remote_settings, created_at, updated_at`

// SQLiteRepository implements Repository over a DBTX, so it works on a plain
// connection or inside a caller-owned transaction (the legacy import binds
// it to a tx).
type SQLiteRepository struct {
	db  dbx.DBTX
	log logging.Logger
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository returns a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX, log logging.Logger) *SQLiteRepository {
	return &SQLiteRepository{db: db, log: log}
}

func (r *SQLiteRepository) Create(ctx context.Context, pal *models.Pal) (*models.Pal, error) {
	p := *pal
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Source == "" {
		p.Source = models.SourceLocal
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO pals (`+palColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.ThumbnailRef,
		p.PromptTemplate, p.PromptTemplateOriginal, boolInt(p.PromptIsModified),
		encodeMap(p.Parameters), encodeSlice(p.ParameterSchema), encodeMap(p.Capabilities),
		string(p.Source), p.RemoteID,
		encodePtr(p.Creator), encodeSlice(p.Categories), encodeSlice(p.Tags),
		p.Rating, p.ReviewCount, p.Protection, p.Price, boolInt(p.Owned),
		encodePtr(p.GenerationSettings), encodePtr(p.RemoteSettings),
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert pal: %w", err)
	}
	return r.GetByID(ctx, p.ID)
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Pal, error) {
	return r.queryPals(ctx, `SELECT `+palColumns+` FROM pals ORDER BY created_at, id`)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Pal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+palColumns+` FROM pals WHERE id = ?`, id)
	p, err := r.scanPal(ctx, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pal %s: %w", id, err)
	}
	return p, nil
}

func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*models.Pal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+palColumns+` FROM pals WHERE name = ? ORDER BY created_at LIMIT 1`, name)
	p, err := r.scanPal(ctx, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pal by name %q: %w", name, err)
	}
	return p, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, id string, upd models.PalUpdate) (*models.Pal, error) {
	cols := make([]string, 0, 12)
	args := make([]any, 0, 14)
	set := func(col string, val any) {
		cols = append(cols, col+" = ?")
		args = append(args, val)
	}

	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Description != nil {
		set("description", *upd.Description)
	}
	if upd.ThumbnailRef != nil {
		set("thumbnail_ref", *upd.ThumbnailRef)
	}
	if upd.PromptTemplate != nil {
		set("prompt_template", *upd.PromptTemplate)
	}
	if upd.PromptTemplateOriginal != nil {
		set("prompt_template_original", *upd.PromptTemplateOriginal)
	}
	if upd.PromptIsModified != nil {
		set("prompt_is_modified", boolInt(*upd.PromptIsModified))
	}
	if upd.Parameters != nil {
		set("parameters", encodeMap(upd.Parameters))
	}
	if upd.ParameterSchema != nil {
		set("parameter_schema", encodeSlice(upd.ParameterSchema))
	}
	if upd.Capabilities != nil {
		set("capabilities", encodeMap(upd.Capabilities))
	}
	if upd.Categories != nil {
		set("categories", encodeSlice(upd.Categories))
	}
	if upd.Tags != nil {
		set("tags", encodeSlice(upd.Tags))
	}
	if upd.GenerationSettings != nil {
		set("generation_settings", encodePtr(upd.GenerationSettings))
	}
	if upd.RemoteSettings != nil {
		set("remote_settings", encodePtr(upd.RemoteSettings))
	}

	if len(cols) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, time.Now().UTC().Unix(), id)
	q := fmt.Sprintf("UPDATE pals SET %s, updated_at = ? WHERE id = ?", strings.Join(cols, ", "))
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update pal %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pals WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete pal %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLiteRepository) GetBySource(ctx context.Context, source models.Source) ([]models.Pal, error) {
	return r.queryPals(ctx, `SELECT `+palColumns+` FROM pals WHERE source = ? ORDER BY created_at, id`, string(source))
}

func (r *SQLiteRepository) GetByCapability(ctx context.Context, capability string) ([]models.Pal, error) {
	// The LIKE filter narrows rows at the storage level; the decoded map is
	// still consulted because the serialized form is not canonical.
	rows, err := r.queryPals(ctx,
		`SELECT `+palColumns+` FROM pals WHERE capabilities LIKE ? ORDER BY created_at, id`,
		`%"`+capability+`":true%`)
	if err != nil {
		return nil, err
	}
	result := rows[:0]
	for _, p := range rows {
		if p.HasCapability(capability) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (r *SQLiteRepository) queryPals(ctx context.Context, query string, args ...any) ([]models.Pal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select pals: %w", err)
	}
	defer rows.Close()

	var result []models.Pal
	for rows.Next() {
		p, err := r.scanPal(ctx, rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanPal hydrates one row. Scalar scan failures abort the row; a malformed
// serialized column only zeroes that field, with a warning, so legacy or
// partially migrated data never blocks a read.
func (r *SQLiteRepository) scanPal(ctx context.Context, row rowScanner) (*models.Pal, error) {
	var p models.Pal
	var promptModified, owned, createdAt, updatedAt int64
	var source string
	var params, schema, caps, creator, categories, tags, genSettings, remSettings string

	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ThumbnailRef,
		&p.PromptTemplate, &p.PromptTemplateOriginal, &promptModified,
		&params, &schema, &caps, &source, &p.RemoteID,
		&creator, &categories, &tags, &p.Rating, &p.ReviewCount, &p.Protection, &p.Price, &owned,
		&genSettings, &remSettings, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.PromptIsModified = promptModified != 0
	p.Owned = owned != 0
	p.Source = models.Source(source)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	p.Parameters = decodeColumn[map[string]string](r, ctx, p.ID, "parameters", params)
	p.ParameterSchema = decodeColumn[[]models.ParameterField](r, ctx, p.ID, "parameter_schema", schema)
	p.Capabilities = decodeColumn[map[string]bool](r, ctx, p.ID, "capabilities", caps)
	p.Creator = decodeColumn[*models.CreatorInfo](r, ctx, p.ID, "creator", creator)
	p.Categories = decodeColumn[[]string](r, ctx, p.ID, "categories", categories)
	p.Tags = decodeColumn[[]string](r, ctx, p.ID, "tags", tags)
	p.GenerationSettings = decodeColumn[*models.GenerationSettings](r, ctx, p.ID, "generation_settings", genSettings)
	p.RemoteSettings = decodeColumn[*models.GenerationSettings](r, ctx, p.ID, "remote_settings", remSettings)

	return &p, nil
}

func decodeColumn[T any](r *SQLiteRepository, ctx context.Context, id, column, raw string) T {
	var v T
	if raw == "" {
		return v
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		r.log.Warn(ctx, "malformed serialized column, field degraded to empty",
			"pal_id", id, "column", column, "error", err)
		var zero T
		return zero
	}
	return v
}

// Absent sub-objects are stored as empty strings, never as JSON null, to
// keep round-trips lossless.

func encodeMap[V any](m map[string]V) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

func encodeSlice[T any](s []T) string {
	if len(s) == 0 {
		return ""
	}
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(b)
}

func encodePtr[T any](p *T) string {
	if p == nil {
		return ""
	}
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(b)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
