package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/handlers/render"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/service/coordinator"
)

type RecoveryHandler struct {
	coordinator coordinatorService
	logger      logger.Logger
}

func NewRecovery(c coordinatorService, l logger.Logger) *RecoveryHandler {
	return &RecoveryHandler{coordinator: c, logger: l}
}

// link delivered to running app. Handled asynchronously, in order of delivery
func (h *RecoveryHandler) link(w http.ResponseWriter, r *http.Request) {
	type request struct {
		URL string `json:"url" validate:"required"`
	}

	data, err := render.BindAndValidate[request](w, r)
	if err != nil {
		return
	}

	if err := h.coordinator.HandleLink(data.URL); err != nil {
		render.ServiceError(w, "Service is shutting down", http.StatusServiceUnavailable)
		return
	}

	render.JSONWithStatus(w, MessageResponse{Message: "Link accepted"}, http.StatusAccepted)
}

func (h *RecoveryHandler) submit(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Password string `json:"password"`
		Confirm  string `json:"confirm_password"`
	}

	data, err := render.BindAndValidate[request](w, r)
	if err != nil {
		return
	}

	res, err := h.coordinator.SubmitPassword(r.Context(), data.Password, data.Confirm)
	if err != nil {
		h.renderError(w, err)
		return
	}

	switch res.Outcome {
	case coordinator.OutcomeSuccess:
		render.JSON(w, res)
	case coordinator.OutcomeInvalid:
		render.JSONWithStatus(w, res, http.StatusBadRequest)
	case coordinator.OutcomeExpired:
		render.JSONWithStatus(w, res, http.StatusGone)
	case coordinator.OutcomeTimeout:
		render.JSONWithStatus(w, res, http.StatusGatewayTimeout)
	default:
		render.JSONWithStatus(w, res, http.StatusBadGateway)
	}
}

func (h *RecoveryHandler) cancel(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Confirm bool `json:"confirm"`
	}

	data, err := render.BindAndValidate[request](w, r)
	if err != nil {
		return
	}

	res, err := h.coordinator.CancelRecovery(r.Context(), data.Confirm)
	if err != nil {
		h.renderError(w, err)
		return
	}

	if res.Prompt != nil {
		render.JSONWithStatus(w, res, http.StatusConflict)
		return
	}
	render.JSON(w, res)
}

func (h *RecoveryHandler) back(w http.ResponseWriter, r *http.Request) {
	res, err := h.coordinator.Back(r.Context())
	if err != nil {
		h.renderError(w, err)
		return
	}
	render.JSON(w, res)
}

func (h *RecoveryHandler) renderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotRecovering):
		render.ServiceError(w, "Password recovery is not active", http.StatusConflict)
	case errors.Is(err, coordinator.ErrStopped):
		render.ServiceError(w, "Service is shutting down", http.StatusServiceUnavailable)
	default:
		h.logger.Error("recovery request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
