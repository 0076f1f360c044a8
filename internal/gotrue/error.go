package gotrue

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Well known GoTrue error codes
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeUserAlreadyExists  = "user_already_exists"
	CodeBadJWT             = "bad_jwt"
	CodeSessionNotFound    = "session_not_found"
	CodeSessionExpired     = "session_expired"
	CodeOTPExpired         = "otp_expired"
	CodeRefreshNotFound    = "refresh_token_not_found"
	CodeSamePassword       = "same_password"
	CodeWeakPassword       = "weak_password"
)

// Error returned by the auth API
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("auth api status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("auth api status %d (%s): %s", e.Status, e.Code, e.Message)
}

// Both error shapes GoTrue answers with: new {error_code, msg} and OAuth-like {error, error_description}
type errorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func decodeError(resp *http.Response, body []byte) *Error {
	e := &Error{Status: resp.StatusCode}

	var b errorBody
	if err := json.Unmarshal(body, &b); err != nil {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return e
	}

	e.Code = firstNonEmpty(b.ErrorCode, b.Error)
	e.Message = firstNonEmpty(b.Msg, b.Message, b.ErrorDescription, b.Error, http.StatusText(resp.StatusCode))

	return e
}

// HasCode reports whether err is auth API error with the code
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

var sessionCodes = []string{CodeBadJWT, CodeSessionNotFound, CodeSessionExpired, CodeOTPExpired, CodeRefreshNotFound}

// IsSessionExpired reports whether err means the session used for the call is no longer usable
func IsSessionExpired(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return true
	}
	if slices.Contains(sessionCodes, e.Code) {
		return true
	}

	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "expired") || strings.Contains(msg, "invalid")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
