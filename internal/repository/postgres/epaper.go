package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/repository"
)

type EpaperRepo struct {
	DB DBTX
}

const epaperColumns = `id, city, edition_date, title, path, url, created_at`

const createEpaper = `-- name: CreateEpaper
INSERT INTO epapers (id, city, edition_date, title, path, url, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + epaperColumns

func (r *EpaperRepo) CreateEpaper(ctx context.Context, fields repository.EpaperFields) (models.Epaper, error) {
	rows, _ := r.DB.Query(ctx, createEpaper, uuid.New(), fields.City, editionDate(fields.EditionDate), fields.Title, fields.Path, fields.URL, time.Now())
	epaper, err := pgx.CollectOneRow(rows, rowToEpaper)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return epaper, apperrors.ErrEpaperExists
		}

		return epaper, fmt.Errorf("db error: %w", err)
	}

	return epaper, nil
}

// Re-uploading the same city and date replaces file reference and title but keeps the row id
const upsertEpaper = `-- name: UpsertEpaper
INSERT INTO epapers (id, city, edition_date, title, path, url, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (city, edition_date) DO UPDATE
SET title = EXCLUDED.title, path = EXCLUDED.path, url = EXCLUDED.url, created_at = EXCLUDED.created_at
RETURNING ` + epaperColumns

func (r *EpaperRepo) UpsertEpaper(ctx context.Context, fields repository.EpaperFields) (models.Epaper, error) {
	rows, _ := r.DB.Query(ctx, upsertEpaper, uuid.New(), fields.City, editionDate(fields.EditionDate), fields.Title, fields.Path, fields.URL, time.Now())
	epaper, err := pgx.CollectOneRow(rows, rowToEpaper)
	if err != nil {
		return epaper, fmt.Errorf("db error: %w", err)
	}

	return epaper, nil
}

const getEpaper = `-- name: GetEpaper
SELECT ` + epaperColumns + ` FROM epapers
WHERE id = $1
`

func (r *EpaperRepo) GetEpaper(ctx context.Context, id uuid.UUID) (models.Epaper, error) {
	rows, _ := r.DB.Query(ctx, getEpaper, id)
	return collectEpaper(rows)
}

const deleteEpaper = `-- name: DeleteEpaper
DELETE FROM epapers
WHERE id = $1
RETURNING ` + epaperColumns

func (r *EpaperRepo) DeleteEpaper(ctx context.Context, id uuid.UUID) (models.Epaper, error) {
	rows, _ := r.DB.Query(ctx, deleteEpaper, id)
	return collectEpaper(rows)
}

const listEpapers = `-- name: ListEpapers
SELECT ` + epaperColumns + ` FROM epapers
WHERE ($1::date IS NULL OR edition_date = $1::date)
  AND ($2 = '' OR city = $2)
  AND ($3 = '' OR title ILIKE '%' || $3 || '%')
ORDER BY edition_date DESC, city
`

func (r *EpaperRepo) ListEpapers(ctx context.Context, opts repository.ListEpapersOpts) ([]models.Epaper, error) {
	var date *time.Time
	if opts.EditionDate != nil {
		d := editionDate(*opts.EditionDate)
		date = &d
	}

	rows, _ := r.DB.Query(ctx, listEpapers, date, opts.City, opts.Search)
	epapers, err := pgx.CollectRows(rows, rowToEpaper)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return epapers, nil
}

// Edition date is a calendar day, time of day and zone are dropped
func editionDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func collectEpaper(rows pgx.Rows) (models.Epaper, error) {
	epaper, err := pgx.CollectOneRow(rows, rowToEpaper)

	switch {
	case err == nil:
		return epaper, nil
	case errors.Is(err, pgx.ErrNoRows):
		return epaper, apperrors.ErrEpaperNotFound
	default:
		return epaper, fmt.Errorf("db error: %w", err)
	}
}

func rowToEpaper(row pgx.CollectableRow) (models.Epaper, error) {
	var e models.Epaper
	err := row.Scan(&e.ID, &e.City, &e.EditionDate, &e.Title, &e.Path, &e.URL, &e.CreatedAt)
	return e, err
}
