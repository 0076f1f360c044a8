package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/repository"
	"github.com/nkiryanov/newsdesk/internal/service/coordinator"
	"github.com/nkiryanov/newsdesk/internal/service/epaper"
	"github.com/nkiryanov/newsdesk/internal/service/news"
)

type fakeAuth struct {
	signInErr  error
	signUp     *models.Session
	signUpErr  error
	resetErr   error
	signedOut  bool
	resetEmail string
}

func (f *fakeAuth) SignIn(_ context.Context, email string, _ string) (models.Session, error) {
	if f.signInErr != nil {
		return models.Session{}, f.signInErr
	}
	return models.Session{User: models.User{ID: "u-1", Email: email}}, nil
}

func (f *fakeAuth) SignUp(_ context.Context, _ string, _ string) (*models.Session, error) {
	return f.signUp, f.signUpErr
}

func (f *fakeAuth) SignOut(_ context.Context) {
	f.signedOut = true
}

func (f *fakeAuth) RequestPasswordReset(_ context.Context, email string) error {
	f.resetEmail = email
	return f.resetErr
}

type fakeProfiles struct {
	upserted map[string]models.Role
}

func (f *fakeProfiles) UpsertProfile(_ context.Context, email string, role models.Role) (models.Profile, error) {
	if f.upserted == nil {
		f.upserted = make(map[string]models.Role)
	}
	f.upserted[email] = role
	return models.Profile{ID: uuid.New(), Email: email, Role: role}, nil
}

type fakeCoordinator struct {
	mu sync.Mutex

	view   coordinator.View
	links  []string
	submit coordinator.SubmitResult
	cancel coordinator.CancelResult
	back   coordinator.BackResult
	err    error

	// View applied on next Sync, as queued auth event
	pending *coordinator.View
	syncErr error
}

func (f *fakeCoordinator) HandleLink(uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, uri)
	return f.err
}

func (f *fakeCoordinator) SubmitPassword(_ context.Context, _ string, _ string) (coordinator.SubmitResult, error) {
	return f.submit, f.err
}

func (f *fakeCoordinator) CancelRecovery(_ context.Context, confirm bool) (coordinator.CancelResult, error) {
	return f.cancel, f.err
}

func (f *fakeCoordinator) Back(_ context.Context) (coordinator.BackResult, error) {
	return f.back, f.err
}

func (f *fakeCoordinator) Sync(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncErr != nil {
		return f.syncErr
	}
	if f.pending != nil {
		f.view, f.pending = *f.pending, nil
	}
	return nil
}

func (f *fakeCoordinator) View() coordinator.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeCoordinator) EffectiveRole() models.Role {
	return f.View().EffectiveRole()
}

// signedInAs makes fake coordinator report signed in user with the role
func signedInAs(role models.Role) *fakeCoordinator {
	return &fakeCoordinator{view: coordinator.View{SignedIn: true, Email: "nk@example.com", Role: role}}
}

type fakeNews struct {
	items     map[uuid.UUID]models.News
	created   *news.Input
	mediaBody string
	highlight uuid.UUID
	removed   []string
	grace     time.Duration
	err       error
}

func newFakeNews() *fakeNews {
	return &fakeNews{items: make(map[uuid.UUID]models.News)}
}

func (f *fakeNews) record(in news.Input) error {
	f.created = &in
	if in.Media != nil {
		data, err := io.ReadAll(in.Media.Body)
		if err != nil {
			return err
		}
		f.mediaBody = string(data)
	}
	return nil
}

func (f *fakeNews) Create(_ context.Context, in news.Input) (models.News, error) {
	if f.err != nil {
		return models.News{}, f.err
	}
	if err := f.record(in); err != nil {
		return models.News{}, err
	}
	item := models.News{ID: uuid.New(), Title: in.Title, Description: in.Description, Category: in.Category}
	f.items[item.ID] = item
	return item, nil
}

func (f *fakeNews) Update(_ context.Context, id uuid.UUID, in news.Input) (models.News, error) {
	if _, ok := f.items[id]; !ok {
		return models.News{}, apperrors.ErrNewsNotFound
	}
	if err := f.record(in); err != nil {
		return models.News{}, err
	}
	item := models.News{ID: id, Title: in.Title, Description: in.Description, Category: in.Category}
	f.items[id] = item
	return item, nil
}

func (f *fakeNews) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.items[id]; !ok {
		return apperrors.ErrNewsNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeNews) Get(_ context.Context, id uuid.UUID) (models.News, error) {
	item, ok := f.items[id]
	if !ok {
		return models.News{}, apperrors.ErrNewsNotFound
	}
	return item, nil
}

func (f *fakeNews) List(_ context.Context, opts repository.ListNewsOpts) ([]models.News, error) {
	list := []models.News{}
	for _, item := range f.items {
		if opts.Category == "" || item.Category == opts.Category {
			list = append(list, item)
		}
	}
	return list, nil
}

func (f *fakeNews) CleanupOrphans(_ context.Context, grace time.Duration) ([]string, error) {
	f.grace = grace
	return f.removed, f.err
}

func (f *fakeNews) TakeHighlight(_ context.Context) (uuid.UUID, bool, error) {
	id := f.highlight
	f.highlight = uuid.Nil
	return id, id != uuid.Nil, nil
}

type fakeEpaper struct {
	uploaded *epaper.UploadInput
	body     string
	list     []models.Epaper
	listOpts repository.ListEpapersOpts
	url      string
	err      error
}

func (f *fakeEpaper) Upload(_ context.Context, in epaper.UploadInput) (models.Epaper, error) {
	if f.err != nil {
		return models.Epaper{}, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return models.Epaper{}, err
	}
	f.uploaded = &in
	f.body = string(data)
	name := epaper.FileName(in.City, in.EditionDate)
	return models.Epaper{ID: uuid.New(), City: in.City, EditionDate: in.EditionDate, Title: name, Path: name}, nil
}

func (f *fakeEpaper) UploadURL(_ context.Context, city string, date time.Time) (epaper.UploadTicket, error) {
	if f.err != nil {
		return epaper.UploadTicket{}, f.err
	}
	name := epaper.FileName(city, date)
	return epaper.UploadTicket{Path: name, UploadURL: "https://cdn.test/" + name + "?upload=1"}, nil
}

func (f *fakeEpaper) Register(_ context.Context, city string, date time.Time, title string) (models.Epaper, error) {
	if f.err != nil {
		return models.Epaper{}, f.err
	}
	return models.Epaper{ID: uuid.New(), City: city, EditionDate: date, Title: title}, nil
}

func (f *fakeEpaper) List(_ context.Context, opts repository.ListEpapersOpts) ([]models.Epaper, error) {
	f.listOpts = opts
	return f.list, f.err
}

func (f *fakeEpaper) ViewURL(_ context.Context, _ uuid.UUID) (string, error) {
	return f.url, f.err
}

func (f *fakeEpaper) Delete(_ context.Context, _ uuid.UUID) error {
	return f.err
}

// startServer runs router over given deps, missing services are replaced with empty fakes
func startServer(t *testing.T, d Deps) string {
	t.Helper()

	if d.Auth == nil {
		d.Auth = &fakeAuth{}
	}
	if d.Profiles == nil {
		d.Profiles = &fakeProfiles{}
	}
	if d.Coordinator == nil {
		d.Coordinator = &fakeCoordinator{}
	}
	if d.News == nil {
		d.News = newFakeNews()
	}
	if d.Epaper == nil {
		d.Epaper = &fakeEpaper{}
	}
	d.Logger = logger.NewNoOpLogger()

	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(srv.Close)

	return srv.URL
}
