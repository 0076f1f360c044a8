package news

import (
	"context"
	"errors"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/kv"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/objectstore"
	"github.com/nkiryanov/newsdesk/internal/repository"
	"github.com/nkiryanov/newsdesk/internal/repository/postgres"
	"github.com/nkiryanov/newsdesk/internal/service/validate"
	"github.com/nkiryanov/newsdesk/internal/testutil"
)

type fakeObjects struct {
	mu        sync.Mutex
	objects   map[string]objectstore.Object
	uploadErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string]objectstore.Object)}
}

func (f *fakeObjects) Upload(_ context.Context, bucket, key string, body io.Reader, _ int64, _ string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = objectstore.Object{Key: key, Size: int64(len(data)), LastModified: time.Now()}
	return "https://cdn.test/" + bucket + "/" + key, nil
}

func (f *fakeObjects) Remove(_ context.Context, _ string, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.objects, k)
	}
	return nil
}

func (f *fakeObjects) List(_ context.Context, _ string, _ string) ([]objectstore.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Collect(maps.Values(f.objects)), nil
}

func (f *fakeObjects) put(key string, modified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = objectstore.Object{Key: key, LastModified: modified}
}

func (f *fakeObjects) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(maps.Keys(f.objects))
}

func image(name string) *Media {
	return &Media{Kind: models.MediaImage, Filename: name, ContentType: "image/jpeg", Body: strings.NewReader("jpeg")}
}

func video(name string) *Media {
	return &Media{Kind: models.MediaVideo, Filename: name, ContentType: "video/mp4", Body: strings.NewReader("mp4")}
}

func TestMediaKey(t *testing.T) {
	id := uuid.MustParse("7b0c6c0e-3b1c-4c59-9a0a-5f3c2f0d8a11")
	now := time.Date(2024, 3, 9, 22, 30, 0, 0, time.UTC)

	key := MediaKey(now, id, models.MediaImage, "Photo.JPG")

	require.Equal(t, "2024-03-09/7b0c6c0e-3b1c-4c59-9a0a-5f3c2f0d8a11/image-1710023400000.jpg", key)
}

func TestService(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withTx := func(t *testing.T, fn func(s *Service, objects *fakeObjects)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			objects := newFakeObjects()
			fn(NewService(postgres.NewStorage(tx), objects, kv.NewMemory(), logger.NewNoOpLogger()), objects)
		})
	}

	input := Input{Title: " Monsoon arrives ", Description: "Heavy rain expected", Category: models.CategoryIndia}

	t.Run("Create", func(t *testing.T) {
		t.Run("without media", func(t *testing.T) {
			withTx(t, func(s *Service, objects *fakeObjects) {
				created, err := s.Create(t.Context(), input)

				require.NoError(t, err)
				require.Equal(t, "Monsoon arrives", created.Title)
				require.Nil(t, created.ImageURL)
				require.Empty(t, objects.keys())
			})
		})

		t.Run("with image", func(t *testing.T) {
			withTx(t, func(s *Service, objects *fakeObjects) {
				in := input
				in.Media = image("photo.jpg")

				created, err := s.Create(t.Context(), in)

				require.NoError(t, err)
				require.NotNil(t, created.ImagePath)
				require.NotNil(t, created.ImageURL)
				require.Nil(t, created.VideoPath)
				require.True(t, strings.HasPrefix(*created.ImagePath, time.Now().UTC().Format(time.DateOnly)+"/"+created.ID.String()+"/image-"))
				require.True(t, strings.HasSuffix(*created.ImagePath, ".jpg"))
				require.Equal(t, []string{*created.ImagePath}, objects.keys())
			})
		})

		t.Run("upload failure rolls row back", func(t *testing.T) {
			withTx(t, func(s *Service, objects *fakeObjects) {
				objects.uploadErr = errors.New("bucket is gone")
				in := input
				in.Media = image("photo.jpg")

				_, err := s.Create(t.Context(), in)
				require.Error(t, err)

				list, err := s.List(t.Context(), repository.ListNewsOpts{})
				require.NoError(t, err)
				require.Empty(t, list, "row must be rolled back")
			})
		})

		t.Run("invalid input", func(t *testing.T) {
			withTx(t, func(s *Service, _ *fakeObjects) {
				_, err := s.Create(t.Context(), Input{Title: "", Category: models.CategorySport})
				var verr *validate.Error
				require.ErrorAs(t, err, &verr)
				require.Equal(t, validate.MsgTitleRequired, verr.Message)

				in := input
				in.Media = &Media{Kind: models.MediaImage, Filename: "clip.mp4", ContentType: "video/mp4", Body: strings.NewReader("mp4")}
				_, err = s.Create(t.Context(), in)
				require.ErrorIs(t, err, apperrors.ErrNewsInvalidMedia)
			})
		})
	})

	t.Run("Update", func(t *testing.T) {
		t.Run("video replaces image", func(t *testing.T) {
			withTx(t, func(s *Service, objects *fakeObjects) {
				in := input
				in.Media = image("photo.jpg")
				created, err := s.Create(t.Context(), in)
				require.NoError(t, err)
				oldImage := *created.ImagePath

				in = Input{Title: "Monsoon is late", Category: models.CategoryIndia, Media: video("clip.mp4")}
				updated, err := s.Update(t.Context(), created.ID, in)

				require.NoError(t, err)
				require.Equal(t, "Monsoon is late", updated.Title)
				require.Nil(t, updated.ImagePath, "setting video must clear image")
				require.Nil(t, updated.ImageURL)
				require.NotNil(t, updated.VideoPath)
				require.Equal(t, []string{*updated.VideoPath}, objects.keys(), "previous image must be removed")
				require.NotContains(t, objects.keys(), oldImage)
			})
		})

		t.Run("without media keeps media", func(t *testing.T) {
			withTx(t, func(s *Service, objects *fakeObjects) {
				in := input
				in.Media = image("photo.jpg")
				created, err := s.Create(t.Context(), in)
				require.NoError(t, err)

				updated, err := s.Update(t.Context(), created.ID, Input{Title: "Edited", Category: models.CategorySport})

				require.NoError(t, err)
				require.Equal(t, models.CategorySport, updated.Category)
				require.Equal(t, created.ImagePath, updated.ImagePath)
				require.Len(t, objects.keys(), 1)
			})
		})

		t.Run("not found", func(t *testing.T) {
			withTx(t, func(s *Service, objects *fakeObjects) {
				in := input
				in.Media = image("photo.jpg")

				_, err := s.Update(t.Context(), uuid.New(), in)

				require.ErrorIs(t, err, apperrors.ErrNewsNotFound)
				require.Empty(t, objects.keys(), "nothing uploaded for missing news")
			})
		})
	})

	t.Run("Delete removes media", func(t *testing.T) {
		withTx(t, func(s *Service, objects *fakeObjects) {
			in := input
			in.Media = video("clip.mp4")
			created, err := s.Create(t.Context(), in)
			require.NoError(t, err)

			err = s.Delete(t.Context(), created.ID)

			require.NoError(t, err)
			require.Empty(t, objects.keys())
			_, err = s.Get(t.Context(), created.ID)
			require.ErrorIs(t, err, apperrors.ErrNewsNotFound)

			err = s.Delete(t.Context(), created.ID)
			require.ErrorIs(t, err, apperrors.ErrNewsNotFound)
		})
	})

	t.Run("CleanupOrphans", func(t *testing.T) {
		withTx(t, func(s *Service, objects *fakeObjects) {
			in := input
			in.Media = image("photo.jpg")
			created, err := s.Create(t.Context(), in)
			require.NoError(t, err)

			objects.put("2024-01-01/old/image-1.jpg", time.Now().Add(-48*time.Hour))
			objects.put("2024-01-01/fresh/image-2.jpg", time.Now())

			removed, err := s.CleanupOrphans(t.Context(), time.Hour)

			require.NoError(t, err)
			require.Equal(t, []string{"2024-01-01/old/image-1.jpg"}, removed)
			require.ElementsMatch(t, []string{*created.ImagePath, "2024-01-01/fresh/image-2.jpg"}, objects.keys())
		})
	})
}

func TestTakeHighlight(t *testing.T) {
	store := kv.NewMemory()
	s := NewService(nil, newFakeObjects(), store, logger.NewNoOpLogger())

	_, ok, err := s.TakeHighlight(t.Context())
	require.NoError(t, err)
	require.False(t, ok)

	id := uuid.New()
	require.NoError(t, store.Set(t.Context(), KeyHighlightedNews, id.String()))

	got, ok, err := s.TakeHighlight(t.Context())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, got)

	_, ok, err = s.TakeHighlight(t.Context())
	require.NoError(t, err)
	require.False(t, ok, "highlight is handed out once")

	require.NoError(t, store.Set(t.Context(), KeyHighlightedNews, "not-a-uuid"))
	_, ok, err = s.TakeHighlight(t.Context())
	require.NoError(t, err)
	require.False(t, ok)
}
