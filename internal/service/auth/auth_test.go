package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/gotrue"
	"github.com/nkiryanov/newsdesk/internal/kv"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/models"
)

// fakeAPI answers like GoTrue with configurable errors
type fakeAPI struct {
	mu sync.Mutex

	signInErr  error
	refreshErr error
	getUserErr error
	updateErr  error
	logoutErr  error
	signUp     gotrue.SignUpResult

	logouts     []string
	updatedWith []string
	recovered   []string
}

func (f *fakeAPI) SignInWithPassword(_ context.Context, email string, _ string) (models.Session, error) {
	if f.signInErr != nil {
		return models.Session{}, f.signInErr
	}
	return testSession("at-signin", email, time.Hour), nil
}

func (f *fakeAPI) RefreshToken(_ context.Context, refreshToken string) (models.Session, error) {
	if f.refreshErr != nil {
		return models.Session{}, f.refreshErr
	}
	return testSession("at-refreshed-"+refreshToken, "reader@example.com", time.Hour), nil
}

func (f *fakeAPI) SignUp(_ context.Context, _ string, _ string) (gotrue.SignUpResult, error) {
	return f.signUp, nil
}

func (f *fakeAPI) Logout(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, accessToken)
	return f.logoutErr
}

func (f *fakeAPI) GetUser(_ context.Context, _ string) (models.User, error) {
	if f.getUserErr != nil {
		return models.User{}, f.getUserErr
	}
	return models.User{ID: "u1", Email: "reader@example.com"}, nil
}

func (f *fakeAPI) UpdatePassword(_ context.Context, accessToken string, _ string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedWith = append(f.updatedWith, accessToken)
	if f.updateErr != nil {
		return models.User{}, f.updateErr
	}
	return models.User{ID: "u1", Email: "reader@example.com"}, nil
}

func (f *fakeAPI) Recover(_ context.Context, email string, redirectTo string) error {
	f.recovered = append(f.recovered, email+"|"+redirectTo)
	return nil
}

func testSession(access string, email string, ttl time.Duration) models.Session {
	return models.Session{
		TokenPair: models.TokenPair{AccessToken: access, RefreshToken: "rt"},
		ExpiresAt: time.Now().Add(ttl),
		User:      models.User{ID: "u1", Email: email},
	}
}

func accessToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, gotrue.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(exp)},
		Email:            "reader@example.com",
	})
	signed, err := token.SignedString([]byte("jwt-secret"))
	require.NoError(t, err)
	return signed
}

type recorder struct {
	mu     sync.Mutex
	events []models.AuthEvent
}

func (r *recorder) record(e models.AuthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []models.AuthEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]models.AuthEventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func newTestClient(t *testing.T, api *fakeAPI) (*Client, *kv.Memory, *recorder) {
	t.Helper()

	store := kv.NewMemory()
	c, err := NewClient(Config{ResetRedirectURL: "newsdesk://reset-password", JWTSecret: "jwt-secret"}, api, store, logger.NewNoOpLogger())
	require.NoError(t, err)

	rec := &recorder{}
	c.Subscribe(rec.record)

	return c, store, rec
}

func TestClient(t *testing.T) {
	t.Run("new client requires collaborators", func(t *testing.T) {
		_, err := NewClient(Config{}, nil, kv.NewMemory(), logger.NewNoOpLogger())
		require.Error(t, err)
	})

	t.Run("SignIn", func(t *testing.T) {
		t.Run("ok persists and emits", func(t *testing.T) {
			c, store, rec := newTestClient(t, &fakeAPI{})

			s, err := c.SignIn(t.Context(), "reader@example.com", "secret")

			require.NoError(t, err)
			require.Equal(t, "at-signin", s.AccessToken)
			require.Equal(t, "at-signin", c.Session().AccessToken)
			require.Equal(t, []models.AuthEventKind{models.AuthSignedIn}, rec.kinds())

			raw, err := store.Get(t.Context(), SessionKey)
			require.NoError(t, err)
			var persisted models.Session
			require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
			require.Equal(t, "at-signin", persisted.AccessToken)
		})

		t.Run("invalid credentials mapped", func(t *testing.T) {
			c, _, rec := newTestClient(t, &fakeAPI{signInErr: &gotrue.Error{Status: 400, Code: gotrue.CodeInvalidCredentials, Message: "Invalid login credentials"}})

			_, err := c.SignIn(t.Context(), "reader@example.com", "wrong")

			require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
			require.Nil(t, c.Session())
			require.Empty(t, rec.kinds())
		})

		t.Run("email not confirmed mapped", func(t *testing.T) {
			c, _, _ := newTestClient(t, &fakeAPI{signInErr: &gotrue.Error{Status: 400, Message: "Email not confirmed"}})

			_, err := c.SignIn(t.Context(), "reader@example.com", "secret")

			require.ErrorIs(t, err, apperrors.ErrEmailNotConfirmed)
		})
	})

	t.Run("SignUp", func(t *testing.T) {
		t.Run("pending confirmation", func(t *testing.T) {
			c, _, rec := newTestClient(t, &fakeAPI{signUp: gotrue.SignUpResult{User: models.User{ID: "u2"}}})

			s, err := c.SignUp(t.Context(), "new@example.com", "secret")

			require.NoError(t, err)
			require.Nil(t, s)
			require.Empty(t, rec.kinds(), "no session no events")
		})

		t.Run("autoconfirmed signs in", func(t *testing.T) {
			session := testSession("at-signup", "new@example.com", time.Hour)
			c, _, rec := newTestClient(t, &fakeAPI{signUp: gotrue.SignUpResult{User: session.User, Session: &session}})

			s, err := c.SignUp(t.Context(), "new@example.com", "secret")

			require.NoError(t, err)
			require.Equal(t, "at-signup", s.AccessToken)
			require.Equal(t, []models.AuthEventKind{models.AuthSignedIn}, rec.kinds())
		})
	})

	t.Run("SetRecoverySession", func(t *testing.T) {
		t.Run("fresh token validated with user endpoint", func(t *testing.T) {
			c, _, rec := newTestClient(t, &fakeAPI{})
			access := accessToken(t, time.Now().Add(time.Hour))

			s, err := c.SetRecoverySession(t.Context(), models.TokenPair{AccessToken: access, RefreshToken: "rt"})

			require.NoError(t, err)
			require.Equal(t, access, s.AccessToken)
			require.Equal(t, "reader@example.com", s.User.Email)
			require.Equal(t, []models.AuthEventKind{models.AuthPasswordRecovery}, rec.kinds())
		})

		t.Run("expired token refreshed", func(t *testing.T) {
			c, _, _ := newTestClient(t, &fakeAPI{})
			access := accessToken(t, time.Now().Add(-time.Minute))

			s, err := c.SetRecoverySession(t.Context(), models.TokenPair{AccessToken: access, RefreshToken: "link-rt"})

			require.NoError(t, err)
			require.Equal(t, "at-refreshed-link-rt", s.AccessToken)
		})

		t.Run("rejected link", func(t *testing.T) {
			c, _, rec := newTestClient(t, &fakeAPI{getUserErr: &gotrue.Error{Status: 401, Message: "invalid JWT"}})

			_, err := c.SetRecoverySession(t.Context(), models.TokenPair{AccessToken: accessToken(t, time.Now().Add(time.Hour)), RefreshToken: "rt"})

			require.Error(t, err)
			require.Nil(t, c.Session())
			require.Empty(t, rec.kinds())
		})

		t.Run("missing token", func(t *testing.T) {
			c, _, _ := newTestClient(t, &fakeAPI{})

			_, err := c.SetRecoverySession(t.Context(), models.TokenPair{AccessToken: "at"})

			require.Error(t, err)
		})
	})

	t.Run("SetSession emits signed in", func(t *testing.T) {
		c, _, rec := newTestClient(t, &fakeAPI{})

		_, err := c.SetSession(t.Context(), models.TokenPair{AccessToken: accessToken(t, time.Now().Add(time.Hour)), RefreshToken: "rt"})

		require.NoError(t, err)
		require.Equal(t, []models.AuthEventKind{models.AuthSignedIn}, rec.kinds())
	})

	t.Run("UpdatePassword", func(t *testing.T) {
		t.Run("no session", func(t *testing.T) {
			c, _, _ := newTestClient(t, &fakeAPI{})

			err := c.UpdatePassword(t.Context(), "new-secret")

			require.ErrorIs(t, err, apperrors.ErrNoSession)
		})

		t.Run("ok emits user updated", func(t *testing.T) {
			api := &fakeAPI{}
			c, _, rec := newTestClient(t, api)
			_, err := c.SignIn(t.Context(), "reader@example.com", "secret")
			require.NoError(t, err)

			err = c.UpdatePassword(t.Context(), "new-secret")

			require.NoError(t, err)
			require.Equal(t, []string{"at-signin"}, api.updatedWith)
			require.Equal(t, []models.AuthEventKind{models.AuthSignedIn, models.AuthUserUpdated}, rec.kinds())
		})

		t.Run("api error returned as is", func(t *testing.T) {
			apiErr := &gotrue.Error{Status: 401, Code: gotrue.CodeSessionExpired, Message: "session expired"}
			c, _, _ := newTestClient(t, &fakeAPI{updateErr: apiErr})
			_, err := c.SignIn(t.Context(), "reader@example.com", "secret")
			require.NoError(t, err)

			err = c.UpdatePassword(t.Context(), "new-secret")

			require.True(t, gotrue.IsSessionExpired(err))
		})
	})

	t.Run("SignOut", func(t *testing.T) {
		t.Run("clears even if remote fails", func(t *testing.T) {
			api := &fakeAPI{logoutErr: errors.New("network down")}
			c, store, rec := newTestClient(t, api)
			_, err := c.SignIn(t.Context(), "reader@example.com", "secret")
			require.NoError(t, err)

			c.SignOut(t.Context())

			require.Nil(t, c.Session())
			require.Equal(t, []string{"at-signin"}, api.logouts)
			require.Equal(t, []models.AuthEventKind{models.AuthSignedIn, models.AuthSignedOut}, rec.kinds())
			_, err = store.Get(t.Context(), SessionKey)
			require.ErrorIs(t, err, apperrors.ErrKeyNotFound)
		})

		t.Run("without session still emits", func(t *testing.T) {
			api := &fakeAPI{}
			c, _, rec := newTestClient(t, api)

			c.SignOut(t.Context())

			require.Empty(t, api.logouts)
			require.Equal(t, []models.AuthEventKind{models.AuthSignedOut}, rec.kinds())
		})
	})

	t.Run("Restore", func(t *testing.T) {
		t.Run("nothing persisted", func(t *testing.T) {
			c, _, rec := newTestClient(t, &fakeAPI{})

			require.NoError(t, c.Restore(t.Context()))

			require.Nil(t, c.Session())
			require.Equal(t, []models.AuthEventKind{models.AuthInitialSession}, rec.kinds())
		})

		t.Run("valid session", func(t *testing.T) {
			c, store, rec := newTestClient(t, &fakeAPI{})
			raw, _ := json.Marshal(testSession("at-stored", "reader@example.com", time.Hour))
			require.NoError(t, store.Set(t.Context(), SessionKey, string(raw)))

			require.NoError(t, c.Restore(t.Context()))

			require.Equal(t, "at-stored", c.Session().AccessToken)
			require.Equal(t, []models.AuthEventKind{models.AuthInitialSession}, rec.kinds())
			require.Equal(t, "at-stored", rec.events[0].Session.AccessToken)
		})

		t.Run("expired session refreshed", func(t *testing.T) {
			c, store, _ := newTestClient(t, &fakeAPI{})
			raw, _ := json.Marshal(testSession("at-stored", "reader@example.com", -time.Hour))
			require.NoError(t, store.Set(t.Context(), SessionKey, string(raw)))

			require.NoError(t, c.Restore(t.Context()))

			require.Equal(t, "at-refreshed-rt", c.Session().AccessToken)
		})

		t.Run("expired session not refreshable is dropped", func(t *testing.T) {
			c, store, rec := newTestClient(t, &fakeAPI{refreshErr: &gotrue.Error{Status: 400, Code: gotrue.CodeRefreshNotFound}})
			raw, _ := json.Marshal(testSession("at-stored", "reader@example.com", -time.Hour))
			require.NoError(t, store.Set(t.Context(), SessionKey, string(raw)))

			require.NoError(t, c.Restore(t.Context()))

			require.Nil(t, c.Session())
			require.Equal(t, []models.AuthEventKind{models.AuthInitialSession}, rec.kinds())
			_, err := store.Get(t.Context(), SessionKey)
			require.ErrorIs(t, err, apperrors.ErrKeyNotFound)
		})

		t.Run("corrupted session dropped", func(t *testing.T) {
			c, store, _ := newTestClient(t, &fakeAPI{})
			require.NoError(t, store.Set(t.Context(), SessionKey, "{not json"))

			require.NoError(t, c.Restore(t.Context()))

			require.Nil(t, c.Session())
		})
	})

	t.Run("RequestPasswordReset uses redirect", func(t *testing.T) {
		api := &fakeAPI{}
		c, _, _ := newTestClient(t, api)

		require.NoError(t, c.RequestPasswordReset(t.Context(), "reader@example.com"))

		require.Equal(t, []string{"reader@example.com|newsdesk://reset-password"}, api.recovered)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		c, _, _ := newTestClient(t, &fakeAPI{})
		rec := &recorder{}
		unsubscribe := c.Subscribe(rec.record)

		unsubscribe()
		c.SignOut(t.Context())

		require.Empty(t, rec.kinds())
	})
}
