package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/newsdesk/internal/handlers/middleware"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/repository"
	"github.com/nkiryanov/newsdesk/internal/service/coordinator"
	"github.com/nkiryanov/newsdesk/internal/service/epaper"
	"github.com/nkiryanov/newsdesk/internal/service/news"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Deps struct {
	Auth        authService
	Profiles    profileRepo
	Coordinator coordinatorService
	News        newsService
	Epaper      epaperService

	// Navigation push channel, GET /ws
	WebSocket http.Handler

	// Objects younger than this are kept by orphan cleanup
	OrphanGrace time.Duration

	Logger logger.Logger
}

func NewRouter(d Deps) http.Handler {
	adminOnly := middleware.RoleMiddleware(d.Coordinator, models.RoleAdmin)

	session := NewSession(d.Auth, d.Profiles, d.Coordinator, d.Logger)
	recovery := NewRecovery(d.Coordinator, d.Logger)
	newsHandler := NewNews(d.News, d.OrphanGrace, d.Logger)
	epaperHandler := NewEpaper(d.Epaper, d.Logger)

	api := http.NewServeMux()

	api.HandleFunc("POST /auth/signin", session.signIn)
	api.HandleFunc("POST /auth/signup", session.signUp)
	api.HandleFunc("POST /auth/signout", session.signOut)
	api.HandleFunc("POST /auth/forgot-password", session.forgotPassword)
	api.HandleFunc("GET /session", session.view)

	api.HandleFunc("POST /links", recovery.link)
	api.HandleFunc("POST /recovery/password", recovery.submit)
	api.HandleFunc("POST /recovery/cancel", recovery.cancel)
	api.HandleFunc("POST /navigation/back", recovery.back)

	api.HandleFunc("GET /news", newsHandler.list)
	api.HandleFunc("GET /news/highlight", newsHandler.highlight)
	api.HandleFunc("GET /news/{id}", newsHandler.get)
	api.Handle("POST /news", adminOnly(http.HandlerFunc(newsHandler.create)))
	api.Handle("PUT /news/{id}", adminOnly(http.HandlerFunc(newsHandler.update)))
	api.Handle("DELETE /news/{id}", adminOnly(http.HandlerFunc(newsHandler.delete)))
	api.Handle("POST /news/cleanup", adminOnly(http.HandlerFunc(newsHandler.cleanup)))

	api.HandleFunc("GET /epapers", epaperHandler.list)
	api.HandleFunc("GET /epapers/{id}/url", epaperHandler.viewURL)
	api.Handle("POST /epapers", adminOnly(http.HandlerFunc(epaperHandler.upload)))
	api.Handle("POST /epapers/upload-url", adminOnly(http.HandlerFunc(epaperHandler.uploadURL)))
	api.Handle("POST /epapers/register", adminOnly(http.HandlerFunc(epaperHandler.register)))
	api.Handle("DELETE /epapers/{id}", adminOnly(http.HandlerFunc(epaperHandler.delete)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	if d.WebSocket != nil {
		root.Handle("GET /ws", d.WebSocket)
	}

	handler := chain(root,
		middleware.LoggerMiddleware(d.Logger),
	)

	return handler
}

type authService interface {
	// Has to return apperrors.ErrInvalidCredentials or apperrors.ErrEmailNotConfirmed for rejected login
	SignIn(ctx context.Context, email string, password string) (models.Session, error)

	// Session is nil if email has to be confirmed first
	// Has to return apperrors.ErrAccountExists if account already exists
	SignUp(ctx context.Context, email string, password string) (*models.Session, error)
	SignOut(ctx context.Context)
	RequestPasswordReset(ctx context.Context, email string) error
}

type profileRepo interface {
	UpsertProfile(ctx context.Context, email string, role models.Role) (models.Profile, error)
}

type coordinatorService interface {
	HandleLink(uri string) error
	SubmitPassword(ctx context.Context, password string, confirm string) (coordinator.SubmitResult, error)
	CancelRecovery(ctx context.Context, confirm bool) (coordinator.CancelResult, error)
	Back(ctx context.Context) (coordinator.BackResult, error)
	Sync(ctx context.Context) error
	View() coordinator.View
	EffectiveRole() models.Role
}

type newsService interface {
	Create(ctx context.Context, in news.Input) (models.News, error)
	Update(ctx context.Context, id uuid.UUID, in news.Input) (models.News, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (models.News, error)
	List(ctx context.Context, opts repository.ListNewsOpts) ([]models.News, error)
	CleanupOrphans(ctx context.Context, grace time.Duration) ([]string, error)
	TakeHighlight(ctx context.Context) (uuid.UUID, bool, error)
}

type epaperService interface {
	Upload(ctx context.Context, in epaper.UploadInput) (models.Epaper, error)
	UploadURL(ctx context.Context, city string, date time.Time) (epaper.UploadTicket, error)
	Register(ctx context.Context, city string, date time.Time, title string) (models.Epaper, error)
	List(ctx context.Context, opts repository.ListEpapersOpts) ([]models.Epaper, error)
	ViewURL(ctx context.Context, id uuid.UUID) (string, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
