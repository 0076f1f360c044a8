// Package epaper manages daily PDF editions per city
package epaper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/objectstore"
	"github.com/nkiryanov/newsdesk/internal/repository"
)

const (
	ContentType = "application/pdf"

	defaultSignedURLTTL = time.Hour
	datePattern         = "02-01-2006"
)

var pdfMagic = []byte("%PDF-")

type Objects interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, bucket string, keys ...string) error
	PublicURL(bucket, key string) string
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	SignedUploadURL(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error)
}

type Config struct {
	// View URLs are plain public URLs when the bucket is public
	PublicBucket bool
	SignedURLTTL time.Duration
}

type UploadInput struct {
	City        string
	EditionDate time.Time
	Title       string
	Size        int64
	Body        io.Reader
}

type UploadTicket struct {
	Path      string    `json:"path"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	cfg     Config
	storage repository.Storage
	objects Objects
	logger  logger.Logger
}

func NewService(cfg Config, storage repository.Storage, objects Objects, l logger.Logger) *Service {
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedURLTTL
	}

	return &Service{
		cfg:     cfg,
		storage: storage,
		objects: objects,
		logger:  l,
	}
}

// FileName of the edition: <City>-DD-MM-YYYY.pdf
func FileName(city string, date time.Time) string {
	return fmt.Sprintf("%s-%s.pdf", city, date.Format(datePattern))
}

// NormalizeCity returns the canonical spelling of supported city
func NormalizeCity(city string) (string, error) {
	city = strings.TrimSpace(city)
	i := slices.IndexFunc(models.Cities, func(c string) bool { return strings.EqualFold(c, city) })
	if i < 0 {
		return "", fmt.Errorf("%w: %q", apperrors.ErrEpaperInvalidCity, city)
	}
	return models.Cities[i], nil
}

// Upload edition. Edition of the same city and date is overwritten
func (s *Service) Upload(ctx context.Context, in UploadInput) (models.Epaper, error) {
	var epaper models.Epaper

	city, err := NormalizeCity(in.City)
	if err != nil {
		return epaper, err
	}
	if in.EditionDate.IsZero() {
		return epaper, fmt.Errorf("%w: edition date is required", apperrors.ErrEpaperInvalidFile)
	}
	if in.Body == nil {
		return epaper, fmt.Errorf("%w: file is empty", apperrors.ErrEpaperInvalidFile)
	}

	body, err := checkPDF(in.Body)
	if err != nil {
		return epaper, err
	}

	name := FileName(city, in.EditionDate)
	url, err := s.objects.Upload(ctx, objectstore.BucketEpaper, name, body, in.Size, ContentType)
	if err != nil {
		return epaper, fmt.Errorf("cant upload epaper: %w", err)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = name
	}

	epaper, err = s.storage.Epaper().UpsertEpaper(ctx, repository.EpaperFields{
		City:        city,
		EditionDate: in.EditionDate,
		Title:       title,
		Path:        name,
		URL:         url,
	})
	if err != nil {
		return epaper, fmt.Errorf("cant save epaper: %w", err)
	}

	s.logger.Info("epaper uploaded", "city", city, "edition_date", in.EditionDate.Format(time.DateOnly))
	return epaper, nil
}

// checkPDF reads the magic header and returns reader of the whole file
// Seekable body is rewound and returned as is: S3 client needs to seek it to sign the payload
func checkPDF(body io.Reader) (io.Reader, error) {
	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(body, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return nil, apperrors.ErrEpaperInvalidFile
	}

	if seeker, ok := body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("cant rewind epaper file: %w", err)
		}
		return body, nil
	}

	return io.MultiReader(bytes.NewReader(head), body), nil
}

// UploadURL lets client PUT a large file directly to the bucket. It must be registered afterwards
func (s *Service) UploadURL(ctx context.Context, city string, date time.Time) (UploadTicket, error) {
	city, err := NormalizeCity(city)
	if err != nil {
		return UploadTicket{}, err
	}

	name := FileName(city, date)
	url, err := s.objects.SignedUploadURL(ctx, objectstore.BucketEpaper, name, ContentType, s.cfg.SignedURLTTL)
	if err != nil {
		return UploadTicket{}, fmt.Errorf("cant sign upload: %w", err)
	}

	return UploadTicket{Path: name, UploadURL: url, ExpiresAt: time.Now().Add(s.cfg.SignedURLTTL)}, nil
}

// Register row for file uploaded with UploadURL
func (s *Service) Register(ctx context.Context, city string, date time.Time, title string) (models.Epaper, error) {
	city, err := NormalizeCity(city)
	if err != nil {
		return models.Epaper{}, err
	}

	name := FileName(city, date)
	if strings.TrimSpace(title) == "" {
		title = name
	}

	return s.storage.Epaper().UpsertEpaper(ctx, repository.EpaperFields{
		City:        city,
		EditionDate: date,
		Title:       strings.TrimSpace(title),
		Path:        name,
		URL:         s.objects.PublicURL(objectstore.BucketEpaper, name),
	})
}

func (s *Service) List(ctx context.Context, opts repository.ListEpapersOpts) ([]models.Epaper, error) {
	if opts.City != "" {
		city, err := NormalizeCity(opts.City)
		if err != nil {
			return nil, err
		}
		opts.City = city
	}
	opts.Search = strings.TrimSpace(opts.Search)

	return s.storage.Epaper().ListEpapers(ctx, opts)
}

// ViewURL to open the edition. Signed URLs expire after SignedURLTTL
func (s *Service) ViewURL(ctx context.Context, id uuid.UUID) (string, error) {
	epaper, err := s.storage.Epaper().GetEpaper(ctx, id)
	if err != nil {
		return "", err
	}

	if s.cfg.PublicBucket {
		return s.objects.PublicURL(objectstore.BucketEpaper, epaper.Path), nil
	}

	return s.objects.SignedURL(ctx, objectstore.BucketEpaper, epaper.Path, s.cfg.SignedURLTTL)
}

// Delete edition object and row
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.storage.Epaper().DeleteEpaper(ctx, id)
	if err != nil {
		return err
	}

	if err := s.objects.Remove(ctx, objectstore.BucketEpaper, deleted.Path); err != nil {
		s.logger.Warn("cant remove epaper file", "path", deleted.Path, "error", err)
	}

	s.logger.Info("epaper deleted", "id", id, "city", deleted.City)
	return nil
}
