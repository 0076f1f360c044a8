// Package auth holds the signed in session and tells subscribers whenever it changes.
// The auth provider itself is reached through the gotrue client.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/gotrue"
	"github.com/nkiryanov/newsdesk/internal/kv"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/models"
)

// Key under which the session is persisted
const SessionKey = "auth_session"

// Remote auth API, implemented by *gotrue.Client
type API interface {
	SignInWithPassword(ctx context.Context, email string, password string) (models.Session, error)
	RefreshToken(ctx context.Context, refreshToken string) (models.Session, error)
	SignUp(ctx context.Context, email string, password string) (gotrue.SignUpResult, error)
	Logout(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (models.User, error)
	UpdatePassword(ctx context.Context, accessToken string, password string) (models.User, error)
	Recover(ctx context.Context, email string, redirectTo string) error
}

type Config struct {
	// Where password recovery email links lead
	ResetRedirectURL string

	// Secret to verify access tokens. Tokens are only decoded when empty
	JWTSecret string
}

type Client struct {
	api    API
	store  kv.Store
	claims *gotrue.ClaimsParser
	logger logger.Logger

	resetRedirectURL string

	mu      sync.Mutex
	session *models.Session

	subMu  sync.Mutex
	subs   map[int]func(models.AuthEvent)
	nextID int

	now func() time.Time
}

func NewClient(cfg Config, api API, store kv.Store, l logger.Logger) (*Client, error) {
	if api == nil || store == nil {
		return nil, errors.New("auth api and store must not be nil")
	}

	return &Client{
		api:              api,
		store:            store,
		claims:           gotrue.NewClaimsParser(cfg.JWTSecret),
		logger:           l,
		resetRedirectURL: cfg.ResetRedirectURL,
		subs:             make(map[int]func(models.AuthEvent)),
		now:              time.Now,
	}, nil
}

// Subscribe fn to auth events. Events are delivered synchronously on the goroutine that changed the session,
// so fn must not block and must not call back into the client
func (c *Client) Subscribe(fn func(models.AuthEvent)) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs, id)
	}
}

// Current session or nil if signed out
func (c *Client) Session() *models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Restore persisted session and emit INITIAL_SESSION. Expired session is refreshed first
func (c *Client) Restore(ctx context.Context) error {
	var restored *models.Session

	raw, err := c.store.Get(ctx, SessionKey)
	switch {
	case errors.Is(err, apperrors.ErrKeyNotFound):
	case err != nil:
		return fmt.Errorf("cant read persisted session: %w", err)
	default:
		var s models.Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			c.logger.Warn("persisted session is corrupted, dropping it", "error", err)
			_ = c.store.Remove(ctx, SessionKey)
			break
		}

		if s.Expired(c.now()) {
			refreshed, err := c.api.RefreshToken(ctx, s.RefreshToken)
			if err != nil {
				c.logger.Info("persisted session cant be refreshed, dropping it", "error", err)
				_ = c.store.Remove(ctx, SessionKey)
				break
			}
			s = refreshed
		}

		restored = &s
	}

	if restored != nil {
		if err := c.setSession(ctx, *restored); err != nil {
			return err
		}
	}

	c.emit(models.AuthInitialSession)
	return nil
}

func (c *Client) SignIn(ctx context.Context, email string, password string) (models.Session, error) {
	s, err := c.api.SignInWithPassword(ctx, email, password)
	if err != nil {
		return s, mapError(err)
	}

	if err := c.setSession(ctx, s); err != nil {
		return s, err
	}

	c.emit(models.AuthSignedIn)
	return s, nil
}

// Sign up. Returned session is nil when email has to be confirmed first
func (c *Client) SignUp(ctx context.Context, email string, password string) (*models.Session, error) {
	res, err := c.api.SignUp(ctx, email, password)
	if err != nil {
		return nil, mapError(err)
	}

	if res.Session == nil {
		return nil, nil
	}

	if err := c.setSession(ctx, *res.Session); err != nil {
		return nil, err
	}

	c.emit(models.AuthSignedIn)
	return res.Session, nil
}

// Adopt token pair received out of band (confirmation link) and emit SIGNED_IN
func (c *Client) SetSession(ctx context.Context, pair models.TokenPair) (models.Session, error) {
	return c.adoptPair(ctx, pair, models.AuthSignedIn)
}

// Adopt token pair from password recovery link and emit PASSWORD_RECOVERY
func (c *Client) SetRecoverySession(ctx context.Context, pair models.TokenPair) (models.Session, error) {
	return c.adoptPair(ctx, pair, models.AuthPasswordRecovery)
}

func (c *Client) adoptPair(ctx context.Context, pair models.TokenPair, kind models.AuthEventKind) (models.Session, error) {
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return models.Session{}, errors.New("access and refresh tokens are required")
	}

	s := models.Session{TokenPair: pair}

	claims, err := c.claims.Parse(pair.AccessToken)
	if err == nil && claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}

	if err != nil || s.Expired(c.now()) {
		// Refresh token is exchanged for fresh pair, which also proves the link is still valid
		s, err = c.api.RefreshToken(ctx, pair.RefreshToken)
		if err != nil {
			return s, err
		}
	} else {
		user, err := c.api.GetUser(ctx, pair.AccessToken)
		if err != nil {
			return s, err
		}
		s.User = user
	}

	if err := c.setSession(ctx, s); err != nil {
		return s, err
	}

	c.emit(kind)
	return s, nil
}

// Exchange refresh token and emit TOKEN_REFRESHED
func (c *Client) Refresh(ctx context.Context) (models.Session, error) {
	current := c.Session()
	if current == nil {
		return models.Session{}, apperrors.ErrNoSession
	}

	s, err := c.api.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		return s, err
	}

	if err := c.setSession(ctx, s); err != nil {
		return s, err
	}

	c.emit(models.AuthTokenRefreshed)
	return s, nil
}

// Change password of the signed in user and emit USER_UPDATED
// Errors of the auth API are returned as is, so caller may tell expired session apart
func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	current := c.Session()
	if current == nil {
		return apperrors.ErrNoSession
	}

	if current.Expired(c.now()) {
		refreshed, err := c.Refresh(ctx)
		if err != nil {
			return err
		}
		current = &refreshed
	}

	user, err := c.api.UpdatePassword(ctx, current.AccessToken, password)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.session != nil && c.session.AccessToken == current.AccessToken {
		c.session.User = user
	}
	c.mu.Unlock()

	c.emit(models.AuthUserUpdated)
	return nil
}

// Send password recovery email
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.api.Recover(ctx, email, c.resetRedirectURL)
}

// Sign out: revoke session remotely (best effort), clear it locally and emit SIGNED_OUT
// Local state is cleared and SIGNED_OUT emitted even if there was no session or remote call failed
func (c *Client) SignOut(ctx context.Context) {
	c.mu.Lock()
	current := c.session
	c.session = nil
	c.mu.Unlock()

	if current != nil {
		if err := c.api.Logout(ctx, current.AccessToken); err != nil {
			c.logger.Warn("remote sign out failed, session cleared locally", "error", err)
		}
	}

	if err := c.store.Remove(ctx, SessionKey); err != nil {
		c.logger.Error("cant remove persisted session", "error", err)
	}

	c.emit(models.AuthSignedOut)
}

func (c *Client) setSession(ctx context.Context, s models.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("cant encode session: %w", err)
	}

	if err := c.store.Set(ctx, SessionKey, string(raw)); err != nil {
		return fmt.Errorf("cant persist session: %w", err)
	}

	c.mu.Lock()
	c.session = &s
	c.mu.Unlock()

	return nil
}

func (c *Client) emit(kind models.AuthEventKind) {
	event := models.AuthEvent{Kind: kind, Session: c.Session()}

	c.subMu.Lock()
	subs := make([]func(models.AuthEvent), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	c.logger.Debug("auth event", "kind", kind, "has_session", event.Session != nil)

	for _, fn := range subs {
		fn(event)
	}
}

func mapError(err error) error {
	var apiErr *gotrue.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	msg := strings.ToLower(apiErr.Message)

	switch {
	case apiErr.Code == gotrue.CodeInvalidCredentials || strings.Contains(msg, "invalid login credentials"):
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidCredentials, err)
	case apiErr.Code == gotrue.CodeEmailNotConfirmed || strings.Contains(msg, "email not confirmed"):
		return fmt.Errorf("%w: %w", apperrors.ErrEmailNotConfirmed, err)
	case apiErr.Code == gotrue.CodeUserAlreadyExists || strings.Contains(msg, "already") || strings.Contains(msg, "registered"):
		return fmt.Errorf("%w: %w", apperrors.ErrAccountExists, err)
	default:
		return err
	}
}
