package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/repository"
)

type NewsRepo struct {
	DB DBTX
}

const newsColumns = `id, title, description, category, image_url, image_path, video_url, video_path, created_at`

const createNews = `-- name: CreateNews
INSERT INTO news (id, title, description, category, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + newsColumns

func (r *NewsRepo) CreateNews(ctx context.Context, fields repository.NewsFields) (models.News, error) {
	rows, _ := r.DB.Query(ctx, createNews, uuid.New(), fields.Title, fields.Description, fields.Category, time.Now())
	news, err := pgx.CollectOneRow(rows, rowToNews)
	if err != nil {
		return news, fmt.Errorf("db error: %w", err)
	}

	return news, nil
}

const getNews = `-- name: GetNews
SELECT ` + newsColumns + ` FROM news
WHERE id = $1
`

func (r *NewsRepo) GetNews(ctx context.Context, id uuid.UUID) (models.News, error) {
	rows, _ := r.DB.Query(ctx, getNews, id)
	return collectNews(rows)
}

const updateNews = `-- name: UpdateNews
UPDATE news SET title = $2, description = $3, category = $4
WHERE id = $1
RETURNING ` + newsColumns

func (r *NewsRepo) UpdateNews(ctx context.Context, id uuid.UUID, fields repository.NewsFields) (models.News, error) {
	rows, _ := r.DB.Query(ctx, updateNews, id, fields.Title, fields.Description, fields.Category)
	return collectNews(rows)
}

// Only one media kind is kept: $2..$5 are image url/path followed by video url/path
const setNewsMedia = `-- name: SetNewsMedia
UPDATE news SET image_url = $2, image_path = $3, video_url = $4, video_path = $5
WHERE id = $1
RETURNING ` + newsColumns

func (r *NewsRepo) SetNewsMedia(ctx context.Context, id uuid.UUID, media models.MediaRef) (models.News, error) {
	var imageURL, imagePath, videoURL, videoPath *string

	switch media.Kind {
	case models.MediaImage:
		imageURL, imagePath = &media.URL, &media.Path
	case models.MediaVideo:
		videoURL, videoPath = &media.URL, &media.Path
	default:
		return models.News{}, apperrors.ErrNewsInvalidMedia
	}

	rows, _ := r.DB.Query(ctx, setNewsMedia, id, imageURL, imagePath, videoURL, videoPath)
	return collectNews(rows)
}

const deleteNews = `-- name: DeleteNews
DELETE FROM news
WHERE id = $1
RETURNING ` + newsColumns

func (r *NewsRepo) DeleteNews(ctx context.Context, id uuid.UUID) (models.News, error) {
	rows, _ := r.DB.Query(ctx, deleteNews, id)
	return collectNews(rows)
}

const listNews = `-- name: ListNews
SELECT ` + newsColumns + ` FROM news
WHERE ($1 = '' OR category = $1)
ORDER BY created_at DESC, id
LIMIT NULLIF($2, 0)
`

func (r *NewsRepo) ListNews(ctx context.Context, opts repository.ListNewsOpts) ([]models.News, error) {
	rows, _ := r.DB.Query(ctx, listNews, opts.Category, opts.Limit)
	news, err := pgx.CollectRows(rows, rowToNews)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return news, nil
}

const listMediaPaths = `-- name: ListMediaPaths
SELECT image_path FROM news WHERE image_path IS NOT NULL
UNION ALL
SELECT video_path FROM news WHERE video_path IS NOT NULL
`

func (r *NewsRepo) ListMediaPaths(ctx context.Context) ([]string, error) {
	rows, _ := r.DB.Query(ctx, listMediaPaths)
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return paths, nil
}

func collectNews(rows pgx.Rows) (models.News, error) {
	news, err := pgx.CollectOneRow(rows, rowToNews)

	switch {
	case err == nil:
		return news, nil
	case errors.Is(err, pgx.ErrNoRows):
		return news, apperrors.ErrNewsNotFound
	default:
		return news, fmt.Errorf("db error: %w", err)
	}
}

func rowToNews(row pgx.CollectableRow) (models.News, error) {
	var n models.News
	err := row.Scan(&n.ID, &n.Title, &n.Description, &n.Category, &n.ImageURL, &n.ImagePath, &n.VideoURL, &n.VideoPath, &n.CreatedAt)
	return n, err
}
