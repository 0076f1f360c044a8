package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/gotrue"
	"github.com/nkiryanov/newsdesk/internal/handlers/render"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/service/validate"
)

const (
	MsgSignedIn           = "User logged in successfully"
	MsgAccountCreated     = "Account created successfully!"
	MsgVerificationSent   = "Verification link sent to your email. Please confirm your email (expires in 10 min), then log in."
	MsgInvalidCredentials = "Invalid email or password. Please try again."
	MsgEmailNotVerified   = "Please check your email and verify your account first."
	MsgAccountExists      = "This email is already registered. Please sign in instead."
	MsgResetLinkSent      = "Password reset link has been sent to your email. The link will expire in 10 minutes."
	MsgSignedOut          = "Signed out"
)

type SessionHandler struct {
	auth        authService
	profiles    profileRepo
	coordinator coordinatorService
	logger      logger.Logger
}

type MessageResponse struct {
	Message string `json:"message"`
}

func NewSession(auth authService, profiles profileRepo, c coordinatorService, l logger.Logger) *SessionHandler {
	return &SessionHandler{auth: auth, profiles: profiles, coordinator: c, logger: l}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirm_password"`
}

func (h *SessionHandler) signIn(w http.ResponseWriter, r *http.Request) {
	data, err := render.BindAndValidate[credentialsRequest](w, r)
	if err != nil {
		return
	}

	email, password, err := validate.SignIn(data.Email, data.Password)
	if err != nil {
		render.FormError(w, err.Error())
		return
	}

	_, err = h.auth.SignIn(r.Context(), email, password)
	switch {
	case err == nil:
		render.JSON(w, MessageResponse{Message: MsgSignedIn})
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		render.ServiceError(w, MsgInvalidCredentials, http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrEmailNotConfirmed):
		render.ServiceError(w, MsgEmailNotVerified, http.StatusForbidden)
	default:
		h.logger.Warn("sign in failed", "error", err)
		render.ServiceError(w, providerMessage(err), http.StatusBadGateway)
	}
}

func (h *SessionHandler) signUp(w http.ResponseWriter, r *http.Request) {
	data, err := render.BindAndValidate[credentialsRequest](w, r)
	if err != nil {
		return
	}

	email, password, err := validate.SignUp(data.Email, data.Password, data.Confirm)
	if err != nil {
		render.FormError(w, err.Error())
		return
	}

	session, err := h.auth.SignUp(r.Context(), email, password)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrAccountExists):
		render.ServiceError(w, MsgAccountExists, http.StatusConflict)
		return
	default:
		h.logger.Warn("sign up failed", "error", err)
		render.ServiceError(w, providerMessage(err), http.StatusBadGateway)
		return
	}

	if h.profiles != nil {
		if _, err := h.profiles.UpsertProfile(r.Context(), email, models.RoleUser); err != nil {
			h.logger.Error("cant create profile", "error", err)
		}
	}

	if session == nil {
		render.JSONWithStatus(w, MessageResponse{Message: MsgVerificationSent}, http.StatusAccepted)
		return
	}
	render.JSONWithStatus(w, MessageResponse{Message: MsgAccountCreated}, http.StatusCreated)
}

func (h *SessionHandler) signOut(w http.ResponseWriter, r *http.Request) {
	h.auth.SignOut(r.Context())
	render.JSON(w, MessageResponse{Message: MsgSignedOut})
}

func (h *SessionHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Email string `json:"email"`
	}

	data, err := render.BindAndValidate[request](w, r)
	if err != nil {
		return
	}

	email, err := validate.Email(data.Email)
	if err != nil {
		render.FormError(w, err.Error())
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), email); err != nil {
		h.logger.Warn("password reset request failed", "error", err)
		render.ServiceError(w, providerMessage(err), http.StatusBadGateway)
		return
	}

	render.JSON(w, MessageResponse{Message: MsgResetLinkSent})
}

// view of the session after everything queued so far is handled
func (h *SessionHandler) view(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.Sync(r.Context()); err != nil {
		render.ServiceError(w, "Service is shutting down", http.StatusServiceUnavailable)
		return
	}

	v := h.coordinator.View()
	v.Role = v.EffectiveRole()
	render.JSON(w, v)
}

// providerMessage is message of auth provider error suitable for user
func providerMessage(err error) string {
	var apiErr *gotrue.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Something went wrong"
}
