package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/handlers/render"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/repository"
	"github.com/nkiryanov/newsdesk/internal/service/epaper"
)

type EpaperHandler struct {
	epaper epaperService
	logger logger.Logger
}

func NewEpaper(s epaperService, l logger.Logger) *EpaperHandler {
	return &EpaperHandler{epaper: s, logger: l}
}

type URLResponse struct {
	URL string `json:"url"`
}

type editionRequest struct {
	City  string `json:"city" validate:"required,city"`
	Date  string `json:"date" validate:"required,datestr"`
	Title string `json:"title" validate:"max=200"`
}

func (h *EpaperHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := repository.ListEpapersOpts{City: q.Get("city"), Search: q.Get("q")}

	if raw := q.Get("date"); raw != "" {
		date, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			render.ServiceError(w, "Date must be in YYYY-MM-DD format", http.StatusBadRequest)
			return
		}
		opts.EditionDate = &date
	}

	list, err := h.epaper.List(r.Context(), opts)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSON(w, list)
}

func (h *EpaperHandler) viewURL(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	url, err := h.epaper.ViewURL(r.Context(), id)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSON(w, URLResponse{URL: url})
}

// upload multipart form: city, date (YYYY-MM-DD), optional title and pdf "file"
func (h *EpaperHandler) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemoryMultipart); err != nil {
		render.ServiceError(w, "Request must be multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll() // nolint:errcheck

	date, err := time.Parse(time.DateOnly, r.FormValue("date"))
	if err != nil {
		render.ServiceError(w, "Date must be in YYYY-MM-DD format", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		render.ServiceError(w, "Please choose a PDF file", http.StatusBadRequest)
		return
	}
	defer file.Close() // nolint:errcheck

	created, err := h.epaper.Upload(r.Context(), epaper.UploadInput{
		City:        r.FormValue("city"),
		EditionDate: date,
		Title:       r.FormValue("title"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSONWithStatus(w, created, http.StatusCreated)
}

func (h *EpaperHandler) uploadURL(w http.ResponseWriter, r *http.Request) {
	data, err := render.BindAndValidate[editionRequest](w, r)
	if err != nil {
		return
	}

	// Validated by datestr tag
	date, _ := time.Parse(time.DateOnly, data.Date)

	ticket, err := h.epaper.UploadURL(r.Context(), data.City, date)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSON(w, ticket)
}

func (h *EpaperHandler) register(w http.ResponseWriter, r *http.Request) {
	data, err := render.BindAndValidate[editionRequest](w, r)
	if err != nil {
		return
	}

	date, _ := time.Parse(time.DateOnly, data.Date)

	created, err := h.epaper.Register(r.Context(), data.City, date, data.Title)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSONWithStatus(w, created, http.StatusCreated)
}

func (h *EpaperHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.epaper.Delete(r.Context(), id); err != nil {
		h.renderError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *EpaperHandler) renderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrEpaperInvalidCity):
		render.ServiceError(w, "Unknown city", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrEpaperInvalidFile):
		render.ServiceError(w, "Only PDF files are allowed", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrEpaperExists):
		render.ServiceError(w, "Epaper for this city and date already exists", http.StatusConflict)
	case errors.Is(err, apperrors.ErrEpaperNotFound), errors.Is(err, apperrors.ErrObjectNotFound):
		render.ServiceError(w, "Epaper not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		render.ServiceError(w, "Epaper storage is not available", http.StatusServiceUnavailable)
	default:
		h.logger.Error("epaper request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
