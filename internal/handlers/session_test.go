package handlers

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/gotrue"
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/recovery"
	"github.com/nkiryanov/newsdesk/internal/service/coordinator"
)

// do sends request with json body and returns response code and body
func do(t *testing.T, method string, url string, data string) (int, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, url, strings.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func Test_SessionHandler(t *testing.T) {
	t.Run("sign in ok", func(t *testing.T) {
		url := startServer(t, Deps{})

		code, body := do(t, http.MethodPost, url+"/api/auth/signin", `{"email": "nk@example.com", "password": "secret1"}`)

		require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
		require.JSONEq(t, `{"message": "User logged in successfully"}`, body)
	})

	t.Run("sign in rejected", func(t *testing.T) {
		tests := []struct {
			name     string
			err      error
			wantCode int
			wantBody string
		}{
			{
				name:     "invalid credentials",
				err:      apperrors.ErrInvalidCredentials,
				wantCode: http.StatusUnauthorized,
				wantBody: `{"error": "service_error", "message": "Invalid email or password. Please try again."}`,
			},
			{
				name:     "email not confirmed",
				err:      apperrors.ErrEmailNotConfirmed,
				wantCode: http.StatusForbidden,
				wantBody: `{"error": "service_error", "message": "Please check your email and verify your account first."}`,
			},
			{
				name:     "provider error",
				err:      &gotrue.Error{Status: 429, Code: "over_request_rate_limit", Message: "Too many requests"},
				wantCode: http.StatusBadGateway,
				wantBody: `{"error": "service_error", "message": "Too many requests"}`,
			},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				url := startServer(t, Deps{Auth: &fakeAuth{signInErr: tc.err}})

				code, body := do(t, http.MethodPost, url+"/api/auth/signin", `{"email": "nk@example.com", "password": "secret1"}`)

				require.Equal(t, tc.wantCode, code)
				require.JSONEq(t, tc.wantBody, body)
			})
		}
	})

	t.Run("sign in empty fields", func(t *testing.T) {
		url := startServer(t, Deps{})

		code, body := do(t, http.MethodPost, url+"/api/auth/signin", `{"email": "", "password": ""}`)

		require.Equal(t, http.StatusBadRequest, code)
		require.JSONEq(t, `{"error": "form_invalid", "message": "Email and password cannot be empty"}`, body)
	})

	t.Run("sign up needs confirmation", func(t *testing.T) {
		profiles := &fakeProfiles{}
		url := startServer(t, Deps{Profiles: profiles})

		code, body := do(t, http.MethodPost, url+"/api/auth/signup",
			`{"email": "nk@example.com", "password": "secret1", "confirm_password": "secret1"}`)

		require.Equalf(t, http.StatusAccepted, code, "not expected code. Body: %s", body)
		require.JSONEq(t, `{"message": "Verification link sent to your email. Please confirm your email (expires in 10 min), then log in."}`, body)
		require.Equal(t, map[string]models.Role{"nk@example.com": models.RoleUser}, profiles.upserted)
	})

	t.Run("sign up with session", func(t *testing.T) {
		url := startServer(t, Deps{Auth: &fakeAuth{signUp: &models.Session{}}})

		code, body := do(t, http.MethodPost, url+"/api/auth/signup",
			`{"email": "nk@example.com", "password": "secret1", "confirm_password": "secret1"}`)

		require.Equal(t, http.StatusCreated, code)
		require.JSONEq(t, `{"message": "Account created successfully!"}`, body)
	})

	t.Run("sign up existing account", func(t *testing.T) {
		profiles := &fakeProfiles{}
		url := startServer(t, Deps{Auth: &fakeAuth{signUpErr: apperrors.ErrAccountExists}, Profiles: profiles})

		code, body := do(t, http.MethodPost, url+"/api/auth/signup",
			`{"email": "nk@example.com", "password": "secret1", "confirm_password": "secret1"}`)

		require.Equal(t, http.StatusConflict, code)
		require.JSONEq(t, `{"error": "service_error", "message": "This email is already registered. Please sign in instead."}`, body)
		require.Empty(t, profiles.upserted, "profile must not be created for existing account")
	})

	t.Run("sign up passwords mismatch", func(t *testing.T) {
		url := startServer(t, Deps{})

		code, body := do(t, http.MethodPost, url+"/api/auth/signup",
			`{"email": "nk@example.com", "password": "secret1", "confirm_password": "secret2"}`)

		require.Equal(t, http.StatusBadRequest, code)
		require.JSONEq(t, `{"error": "form_invalid", "message": "Passwords do not match"}`, body)
	})

	t.Run("forgot password", func(t *testing.T) {
		auth := &fakeAuth{}
		url := startServer(t, Deps{Auth: auth})

		code, body := do(t, http.MethodPost, url+"/api/auth/forgot-password", `{"email": " NK@example.com "}`)

		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `{"message": "Password reset link has been sent to your email. The link will expire in 10 minutes."}`, body)
		require.Equal(t, "nk@example.com", auth.resetEmail)
	})

	t.Run("forgot password without email", func(t *testing.T) {
		url := startServer(t, Deps{})

		code, body := do(t, http.MethodPost, url+"/api/auth/forgot-password", `{"email": ""}`)

		require.Equal(t, http.StatusBadRequest, code)
		require.JSONEq(t, `{"error": "form_invalid", "message": "Please enter your email address"}`, body)
	})

	t.Run("sign out", func(t *testing.T) {
		auth := &fakeAuth{}
		url := startServer(t, Deps{Auth: auth})

		code, _ := do(t, http.MethodPost, url+"/api/auth/signout", "")

		require.Equal(t, http.StatusOK, code)
		require.True(t, auth.signedOut)
	})

	t.Run("view hides role while recovering", func(t *testing.T) {
		c := &fakeCoordinator{view: coordinator.View{
			RecoveryState: recovery.StateActive,
			Recovering:    true,
			SignedIn:      true,
			Email:         "nk@example.com",
			Role:          models.RoleAdmin,
			RecoveryEmail: "nk@example.com",
		}}
		url := startServer(t, Deps{Coordinator: c})

		code, body := do(t, http.MethodGet, url+"/api/session", "")

		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `{
			"recovery_state": "RECOVERY_ACTIVE",
			"recovering": true,
			"email": "nk@example.com",
			"signed_in": true,
			"role": "guest",
			"recovery_email": "nk@example.com"
		}`, body)
	})
}
