package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/handlers/render"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/repository"
	"github.com/nkiryanov/newsdesk/internal/service/news"
	"github.com/nkiryanov/newsdesk/internal/service/validate"
)

const (
	maxMemoryMultipart = 32 << 20
	maxNewsListLimit   = 100
)

type NewsHandler struct {
	news        newsService
	orphanGrace time.Duration
	logger      logger.Logger
}

func NewNews(s newsService, orphanGrace time.Duration, l logger.Logger) *NewsHandler {
	return &NewsHandler{news: s, orphanGrace: orphanGrace, logger: l}
}

type HighlightResponse struct {
	ID *uuid.UUID `json:"id"`
}

type CleanupResponse struct {
	Removed []string `json:"removed"`
}

func (h *NewsHandler) list(w http.ResponseWriter, r *http.Request) {
	opts := repository.ListNewsOpts{Category: r.URL.Query().Get("category")}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxNewsListLimit {
			render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		opts.Limit = limit
	}

	list, err := h.news.List(r.Context(), opts)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSON(w, list)
}

func (h *NewsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	item, err := h.news.Get(r.Context(), id)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSON(w, item)
}

// highlight is the article opened by the last content link. Returned once
func (h *NewsHandler) highlight(w http.ResponseWriter, r *http.Request) {
	id, ok, err := h.news.TakeHighlight(r.Context())
	if err != nil {
		h.renderError(w, err)
		return
	}

	resp := HighlightResponse{}
	if ok {
		resp.ID = &id
	}
	render.JSON(w, resp)
}

func (h *NewsHandler) create(w http.ResponseWriter, r *http.Request) {
	in, cleanup, ok := h.parseInput(w, r)
	if !ok {
		return
	}
	defer cleanup()

	created, err := h.news.Create(r.Context(), in)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSONWithStatus(w, created, http.StatusCreated)
}

func (h *NewsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	in, cleanup, ok := h.parseInput(w, r)
	if !ok {
		return
	}
	defer cleanup()

	updated, err := h.news.Update(r.Context(), id, in)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSON(w, updated)
}

func (h *NewsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.news.Delete(r.Context(), id); err != nil {
		h.renderError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NewsHandler) cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.news.CleanupOrphans(r.Context(), h.orphanGrace)
	if err != nil {
		h.renderError(w, err)
		return
	}

	if removed == nil {
		removed = []string{}
	}
	render.JSON(w, CleanupResponse{Removed: removed})
}

// parseInput reads multipart form: title, description, category and optional "image" or "video" file
func (h *NewsHandler) parseInput(w http.ResponseWriter, r *http.Request) (news.Input, func(), bool) {
	noop := func() {}

	if err := r.ParseMultipartForm(maxMemoryMultipart); err != nil {
		render.ServiceError(w, "Request must be multipart form", http.StatusBadRequest)
		return news.Input{}, noop, false
	}

	in := news.Input{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
	}

	var files []multipart.File
	cleanup := func() {
		for _, f := range files {
			_ = f.Close()
		}
		_ = r.MultipartForm.RemoveAll()
	}

	for _, kind := range []models.MediaKind{models.MediaImage, models.MediaVideo} {
		file, header, err := r.FormFile(string(kind))
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			cleanup()
			render.ServiceError(w, "Cant read uploaded file", http.StatusBadRequest)
			return news.Input{}, noop, false
		}
		files = append(files, file)

		if in.Media != nil {
			cleanup()
			render.ServiceError(w, "Attach either image or video, not both", http.StatusBadRequest)
			return news.Input{}, noop, false
		}

		in.Media = &news.Media{
			Kind:        kind,
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		}
	}

	return in, cleanup, true
}

func (h *NewsHandler) renderError(w http.ResponseWriter, err error) {
	var verr *validate.Error

	switch {
	case errors.As(err, &verr):
		render.FormError(w, verr.Message)
	case errors.Is(err, apperrors.ErrNewsNotFound):
		render.ServiceError(w, "News not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrNewsInvalidMedia):
		render.ServiceError(w, "Image must be an image file and video must be a video file", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		render.ServiceError(w, "Media storage is not available", http.StatusServiceUnavailable)
	default:
		h.logger.Error("news request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// pathID parses {id} path value, writing 400 if it is not uuid
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "Invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
