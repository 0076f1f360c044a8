package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/newsdesk/internal/db"
	"github.com/nkiryanov/newsdesk/internal/deeplink"
	"github.com/nkiryanov/newsdesk/internal/gotrue"
	"github.com/nkiryanov/newsdesk/internal/handlers"
	"github.com/nkiryanov/newsdesk/internal/kv"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/navigation"
	"github.com/nkiryanov/newsdesk/internal/objectstore"
	"github.com/nkiryanov/newsdesk/internal/recovery"
	"github.com/nkiryanov/newsdesk/internal/repository/postgres"
	"github.com/nkiryanov/newsdesk/internal/service/auth"
	"github.com/nkiryanov/newsdesk/internal/service/coordinator"
	"github.com/nkiryanov/newsdesk/internal/service/epaper"
	"github.com/nkiryanov/newsdesk/internal/service/janitor"
	"github.com/nkiryanov/newsdesk/internal/service/news"
	"github.com/nkiryanov/newsdesk/internal/websocket"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	openURL     string
	coordinator *coordinator.Coordinator
	janitor     *janitor.Janitor
	logger      logger.Logger

	pool *pgxpool.Pool
	kv   *kv.SQLite
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Recovery credentials can't be kept without the key, so fail before touching anything
	sealer, err := recovery.NewSealer(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("error while creating sealer. Err: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	store, err := kv.Open(c.KVPath)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while opening kv store. Err: %w", err)
	}

	// Initialize repositories and external clients
	storage := postgres.NewStorage(pool)
	objects := objectstore.New(objectstore.Config{
		Endpoint:  c.S3Endpoint,
		Region:    c.S3Region,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		PublicURL: c.PublicStorageURL,
	})
	if !objects.Enabled() {
		l.Warn("object storage credentials are not set, media and e-paper uploads are disabled")
	}

	authClient, err := auth.NewClient(
		auth.Config{ResetRedirectURL: c.ResetRedirectURL, JWTSecret: c.JWTSecret},
		gotrue.NewClient(c.AuthURL, c.AuthAPIKey, l),
		store,
		l,
	)
	if err != nil {
		pool.Close()
		return nil, errors.Join(fmt.Errorf("error while creating auth client. Err: %w", err), store.Close())
	}

	// Navigation is pushed to the shell over websocket
	hub := websocket.NewHub(l)
	nav := navigation.NewRouter(hub, l)

	coord, err := coordinator.New(
		coordinator.Config{PasswordUpdateTimeout: c.PasswordUpdateTimeout},
		coordinator.Deps{
			Auth:       authClient,
			Machine:    recovery.NewMachine(store, sealer, l),
			Profiles:   storage.Profile(),
			Classifier: deeplink.NewClassifier(c.DeeplinkScheme),
			Navigator:  nav,
			Store:      store,
			Logger:     l,
		},
	)
	if err != nil {
		pool.Close()
		return nil, errors.Join(fmt.Errorf("error while creating coordinator. Err: %w", err), store.Close())
	}

	newsService := news.NewService(storage, objects, store, l)
	epaperService := epaper.NewService(
		epaper.Config{PublicBucket: c.EpaperPublicBucket, SignedURLTTL: c.SignedURLTTL},
		storage,
		objects,
		l,
	)

	var jan *janitor.Janitor
	if objects.Enabled() {
		jan = janitor.New(janitor.Config{Interval: c.OrphanCleanupInterval, Grace: c.OrphanGrace}, l, newsService)
	}

	mux := handlers.NewRouter(handlers.Deps{
		Auth:        authClient,
		Profiles:    storage.Profile(),
		Coordinator: coord,
		News:        newsService,
		Epaper:      epaperService,
		WebSocket:   websocket.HandleWebSocket(hub, l, func() any { return nav.Current() }),
		OrphanGrace: c.OrphanGrace,
		Logger:      l,
	})

	return &ServerApp{
		ListenAddr:  c.ListenAddr,
		Handler:     mux,
		openURL:     c.OpenURL,
		coordinator: coord,
		janitor:     jan,
		logger:      l,
		pool:        pool,
		kv:          store,
	}, nil
}

// Run starts coordinator, janitor and http server. Everything is stopped gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()
	defer s.kv.Close() // nolint:errcheck

	appCtx, appCancel := context.WithCancel(ctx)
	defer appCancel()

	coordinatorStopped := s.coordinator.Start(appCtx, s.openURL)
	defer func() { <-coordinatorStopped }()

	if s.janitor != nil {
		janitorStopped := s.janitor.Process(appCtx)
		defer func() { <-janitorStopped }()
	}

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})

	go func() {
		<-appCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	appCancel()
	<-idleConnsClosed

	return err
}
