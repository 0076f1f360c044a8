package models

import (
	"time"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Session issued by the auth provider
type Session struct {
	TokenPair
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// Expired reports whether the access token has to be refreshed before use
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type AuthEventKind string

const (
	AuthInitialSession   AuthEventKind = "INITIAL_SESSION"
	AuthSignedIn         AuthEventKind = "SIGNED_IN"
	AuthSignedOut        AuthEventKind = "SIGNED_OUT"
	AuthTokenRefreshed   AuthEventKind = "TOKEN_REFRESHED"
	AuthUserUpdated      AuthEventKind = "USER_UPDATED"
	AuthPasswordRecovery AuthEventKind = "PASSWORD_RECOVERY"
)

// AuthEvent is emitted by the auth client whenever the session changes
// Session is a snapshot taken at emission time; consumers should prefer the client's current session
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}
