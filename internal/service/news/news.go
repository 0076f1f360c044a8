// Package news manages articles and their media objects
package news

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/kv"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/objectstore"
	"github.com/nkiryanov/newsdesk/internal/repository"
	"github.com/nkiryanov/newsdesk/internal/service/validate"
)

// Written by deep link handling, consumed once by the news list
const KeyHighlightedNews = "highlighted_news_id"

type Objects interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, bucket string, keys ...string) error
	List(ctx context.Context, bucket, prefix string) ([]objectstore.Object, error)
}

// Media file attached on create or edit
type Media struct {
	Kind        models.MediaKind
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Input struct {
	Title       string
	Description string
	Category    string

	// Optional. Replaces any media attached before
	Media *Media
}

type Service struct {
	storage repository.Storage
	objects Objects
	store   kv.Store
	logger  logger.Logger

	now func() time.Time
}

func NewService(storage repository.Storage, objects Objects, store kv.Store, l logger.Logger) *Service {
	return &Service{
		storage: storage,
		objects: objects,
		store:   store,
		logger:  l,
		now:     time.Now,
	}
}

// Create article. Row is rolled back if media upload fails, uploaded object is removed if the row fails
func (s *Service) Create(ctx context.Context, in Input) (models.News, error) {
	var news models.News

	fields, err := s.fields(in)
	if err != nil {
		return news, err
	}

	var uploaded string
	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		created, err := st.News().CreateNews(ctx, fields)
		if err != nil {
			return err
		}
		news = created

		if in.Media == nil {
			return nil
		}

		ref, err := s.upload(ctx, created.ID, in.Media)
		if err != nil {
			return err
		}
		uploaded = ref.Path

		news, err = st.News().SetNewsMedia(ctx, created.ID, ref)
		return err
	})
	if err != nil {
		if uploaded != "" {
			s.removeQuietly(ctx, uploaded)
		}
		return models.News{}, fmt.Errorf("cant create news: %w", err)
	}

	s.logger.Info("news created", "id", news.ID, "category", news.Category)
	return news, nil
}

// Update article. New media is uploaded first, previous media objects are removed after the row is saved
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (models.News, error) {
	var news models.News

	fields, err := s.fields(in)
	if err != nil {
		return news, err
	}

	previous, err := s.storage.News().GetNews(ctx, id)
	if err != nil {
		return news, err
	}

	var ref *models.MediaRef
	if in.Media != nil {
		r, err := s.upload(ctx, id, in.Media)
		if err != nil {
			return news, fmt.Errorf("cant update news: %w", err)
		}
		ref = &r
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		news, err = st.News().UpdateNews(ctx, id, fields)
		if err != nil || ref == nil {
			return err
		}
		news, err = st.News().SetNewsMedia(ctx, id, *ref)
		return err
	})
	if err != nil {
		if ref != nil {
			s.removeQuietly(ctx, ref.Path)
		}
		return models.News{}, fmt.Errorf("cant update news: %w", err)
	}

	if ref != nil {
		var stale []string
		for _, p := range previous.MediaPaths() {
			if p != ref.Path {
				stale = append(stale, p)
			}
		}
		s.removeQuietly(ctx, stale...)
	}

	return news, nil
}

// Delete article and its media
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.storage.News().DeleteNews(ctx, id)
	if err != nil {
		return err
	}

	s.removeQuietly(ctx, deleted.MediaPaths()...)
	s.logger.Info("news deleted", "id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.News, error) {
	return s.storage.News().GetNews(ctx, id)
}

func (s *Service) List(ctx context.Context, opts repository.ListNewsOpts) ([]models.News, error) {
	return s.storage.News().ListNews(ctx, opts)
}

// Orphans returns media objects older than grace that no article references
// Younger objects may belong to article being created right now
func (s *Service) Orphans(ctx context.Context, grace time.Duration) ([]string, error) {
	objects, err := s.objects.List(ctx, objectstore.BucketNewsMedia, "")
	if err != nil {
		return nil, fmt.Errorf("cant list media: %w", err)
	}

	paths, err := s.storage.News().ListMediaPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("cant list referenced media: %w", err)
	}

	referenced := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		referenced[p] = struct{}{}
	}

	cutoff := s.now().Add(-grace)
	var orphans []string
	for _, obj := range objects {
		if _, ok := referenced[obj.Key]; ok {
			continue
		}
		if !obj.LastModified.IsZero() && obj.LastModified.After(cutoff) {
			continue
		}
		orphans = append(orphans, obj.Key)
	}

	return orphans, nil
}

// RemoveMedia objects from the media bucket
func (s *Service) RemoveMedia(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.objects.Remove(ctx, objectstore.BucketNewsMedia, keys...)
}

// CleanupOrphans removes unreferenced media at once and returns removed keys
func (s *Service) CleanupOrphans(ctx context.Context, grace time.Duration) ([]string, error) {
	orphans, err := s.Orphans(ctx, grace)
	if err != nil {
		return nil, err
	}

	if err := s.RemoveMedia(ctx, orphans...); err != nil {
		return nil, fmt.Errorf("cant remove orphaned media: %w", err)
	}

	s.logger.Info("orphaned media removed", "count", len(orphans))
	return orphans, nil
}

// TakeHighlight returns article id the news list has to highlight. Each id is returned once
func (s *Service) TakeHighlight(ctx context.Context) (uuid.UUID, bool, error) {
	raw, err := s.store.Take(ctx, KeyHighlightedNews)
	switch {
	case errors.Is(err, apperrors.ErrKeyNotFound):
		return uuid.Nil, false, nil
	case err != nil:
		return uuid.Nil, false, fmt.Errorf("cant read highlighted news: %w", err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		s.logger.Warn("highlighted news id is malformed, dropped", "value", raw)
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

func (s *Service) fields(in Input) (repository.NewsFields, error) {
	title, description, err := validate.News(in.Title, in.Description, in.Category)
	if err != nil {
		return repository.NewsFields{}, err
	}

	if in.Media != nil {
		if err := checkMedia(in.Media); err != nil {
			return repository.NewsFields{}, err
		}
	}

	return repository.NewsFields{Title: title, Description: description, Category: strings.TrimSpace(in.Category)}, nil
}

func checkMedia(m *Media) error {
	if m.Body == nil {
		return fmt.Errorf("%w: file is empty", apperrors.ErrNewsInvalidMedia)
	}

	switch m.Kind {
	case models.MediaImage, models.MediaVideo:
	default:
		return fmt.Errorf("%w: unknown kind %q", apperrors.ErrNewsInvalidMedia, m.Kind)
	}

	if m.ContentType != "" && !strings.HasPrefix(m.ContentType, string(m.Kind)+"/") {
		return fmt.Errorf("%w: %s is not %s", apperrors.ErrNewsInvalidMedia, m.ContentType, m.Kind)
	}
	return nil
}

// MediaKey of uploaded file: YYYY-MM-DD/<news id>/<kind>-<unix millis><ext>
func MediaKey(now time.Time, id uuid.UUID, kind models.MediaKind, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s/%s/%s-%d%s", now.UTC().Format(time.DateOnly), id, kind, now.UnixMilli(), ext)
}

func (s *Service) upload(ctx context.Context, id uuid.UUID, m *Media) (models.MediaRef, error) {
	key := MediaKey(s.now(), id, m.Kind, m.Filename)

	url, err := s.objects.Upload(ctx, objectstore.BucketNewsMedia, key, m.Body, m.Size, m.ContentType)
	if err != nil {
		return models.MediaRef{}, fmt.Errorf("cant upload %s: %w", m.Kind, err)
	}

	return models.MediaRef{Kind: m.Kind, URL: url, Path: key}, nil
}

// removeQuietly logs instead of failing: article state is already saved
func (s *Service) removeQuietly(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.RemoveMedia(ctx, keys...); err != nil {
		s.logger.Warn("cant remove media, left for orphan cleanup", "keys", keys, "error", err)
	}
}
