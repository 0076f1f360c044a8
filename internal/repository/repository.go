package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/newsdesk/internal/models"
)

// Profile repository interface
type ProfileRepo interface {
	// Create profile or update role of existing one (matched by email)
	UpsertProfile(ctx context.Context, email string, role models.Role) (models.Profile, error)

	// Return profile by email
	// If profile not found must return apperrors.ErrProfileNotFound
	GetProfileByEmail(ctx context.Context, email string) (models.Profile, error)
}

type NewsFields struct {
	Title       string
	Description string
	Category    string
}

type ListNewsOpts struct {
	Category string // empty means any category
	Limit    int    // zero means no limit
}

// News repository interface
type NewsRepo interface {
	CreateNews(ctx context.Context, fields NewsFields) (models.News, error)

	// Has to return apperrors.ErrNewsNotFound if news not exists
	GetNews(ctx context.Context, id uuid.UUID) (models.News, error)
	UpdateNews(ctx context.Context, id uuid.UUID, fields NewsFields) (models.News, error)

	// Attach media replacing any media attached before: setting image clears video and vice versa
	SetNewsMedia(ctx context.Context, id uuid.UUID, media models.MediaRef) (models.News, error)

	// Delete news and return the deleted row, so caller may cleanup media
	DeleteNews(ctx context.Context, id uuid.UUID) (models.News, error)

	// List news, newest first
	ListNews(ctx context.Context, opts ListNewsOpts) ([]models.News, error)

	// Return all object paths referenced by news rows
	ListMediaPaths(ctx context.Context) ([]string, error)
}

type EpaperFields struct {
	City        string
	EditionDate time.Time
	Title       string
	Path        string
	URL         string
}

type ListEpapersOpts struct {
	EditionDate *time.Time
	City        string
	Search      string // case-insensitive substring of title
}

// Epaper repository interface
type EpaperRepo interface {
	// Create epaper row
	// If epaper for the city and date exists must return apperrors.ErrEpaperExists
	CreateEpaper(ctx context.Context, fields EpaperFields) (models.Epaper, error)

	// Create epaper or replace the one for the same city and date
	UpsertEpaper(ctx context.Context, fields EpaperFields) (models.Epaper, error)

	// Has to return apperrors.ErrEpaperNotFound if epaper not exists
	GetEpaper(ctx context.Context, id uuid.UUID) (models.Epaper, error)
	DeleteEpaper(ctx context.Context, id uuid.UUID) (models.Epaper, error)

	// List epapers, newest edition first
	ListEpapers(ctx context.Context, opts ListEpapersOpts) ([]models.Epaper, error)
}

type Storage interface {
	Profile() ProfileRepo
	News() NewsRepo
	Epaper() EpaperRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
