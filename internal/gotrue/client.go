// Package gotrue is a client for the GoTrue authentication API
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/models"
)

const defaultTimeout = 30 * time.Second

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         models.User `json:"user"`
}

func (t tokenResponse) session(now time.Time) models.Session {
	s := models.Session{
		TokenPair: models.TokenPair{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken},
		User:      t.User,
	}

	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}

	return s
}

// Result of sign up. Session is nil when email confirmation is required
type SignUpResult struct {
	User    models.User
	Session *models.Session
}

type Client struct {
	BaseURL string
	APIKey  string

	client *http.Client
	logger logger.Logger
}

func NewClient(baseURL string, apiKey string, l logger.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  l,
	}
}

func (c *Client) SignInWithPassword(ctx context.Context, email string, password string) (models.Session, error) {
	var token tokenResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", map[string]string{"email": email, "password": password}, &token)
	if err != nil {
		return models.Session{}, err
	}

	return token.session(time.Now()), nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (models.Session, error) {
	var token tokenResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", map[string]string{"refresh_token": refreshToken}, &token)
	if err != nil {
		return models.Session{}, err
	}

	return token.session(time.Now()), nil
}

func (c *Client) SignUp(ctx context.Context, email string, password string) (SignUpResult, error) {
	// Body is either a session (autoconfirm) or a bare user
	var body struct {
		tokenResponse
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	err := c.do(ctx, http.MethodPost, "/signup", "", map[string]string{"email": email, "password": password}, &body)
	if err != nil {
		return SignUpResult{}, err
	}

	if body.AccessToken != "" {
		s := body.session(time.Now())
		return SignUpResult{User: s.User, Session: &s}, nil
	}

	return SignUpResult{User: models.User{ID: body.ID, Email: body.Email}}, nil
}

// Revoke session of the access token on the server
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &user)
	return user, err
}

func (c *Client) UpdatePassword(ctx context.Context, accessToken string, password string) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodPut, "/user", accessToken, map[string]string{"password": password}, &user)
	return user, err
}

// Send password recovery email with link back to redirectTo
func (c *Client) Recover(ctx context.Context, email string, redirectTo string) error {
	path := "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}

	return c.do(ctx, http.MethodPost, path, "", map[string]string{"email": email}, nil)
}

func (c *Client) do(ctx context.Context, method string, path string, accessToken string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.APIKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := decodeError(resp, respBody)
		c.logger.Debug("auth api error", "method", method, "path", strings.SplitN(path, "?", 2)[0], "status", apiErr.Status, "code", apiErr.Code)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.Warn("failed to decode auth api response", "path", path, "error", err)
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
