package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cueflow/internal/apperr"
	"github.com/starford/cueflow/internal/showservice"
)

// Handler holds the show library route handlers.
type Handler struct {
	svc *showservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *showservice.Service) *Handler {
	return &Handler{svc: svc}
}

// showPath extracts the show path from the URL (everything after /api/shows/).
// Supports encoded slashes from OpenAPI clients (e.g. shows%2Fopening.json).
func showPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListShows handles GET /api/shows.
//
//	@Summary		List shows with optional pagination and filtering
//	@Tags			shows
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			protocol	query		string	false	"Filter by protocol"	Enums(dmx, midi, osc)
//	@Param			sort		query		string	false	"Sort field"			Enums(name, duration, updated)
//	@Success		200			{object}	ShowListResponse
//	@Security		BearerAuth
//	@Router			/shows [get]
func (h *Handler) ListShows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	protocol := q.Get("protocol")
	sort := q.Get("sort")

	items, total, err := h.svc.ListShows(r.Context(), limit, offset, protocol, sort)
	if err != nil {
		slog.Error("list shows failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shows": items,
		"total": total,
	})
}

// GetShow handles GET /api/shows/*.
//
//	@Summary		Get a single show by path
//	@Tags			shows
//	@Produce		json
//	@Param			path	path		string	true	"Show path"
//	@Success		200		{object}	ShowDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/shows/{path} [get]
func (h *Handler) GetShow(w http.ResponseWriter, r *http.Request) {
	path := showPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	show, err := h.svc.GetShow(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get show failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, show)
}

// CreateShow handles POST /api/shows.
//
//	@Summary		Create a new show
//	@Tags			shows
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateShowRequest	true	"Show to create"
//	@Success		201		{object}	ShowDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/shows [post]
func (h *Handler) CreateShow(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateShowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Timeline == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("path and timeline are required"))
		return
	}
	show, err := h.svc.CreateShow(r.Context(), req.Path, req.Timeline)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrAlreadyExists):
			writeJSON(w, http.StatusConflict, errorBody("show already exists"))
		case errors.Is(err, apperr.ErrValidation):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("create show failed", slog.String("path", req.Path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, show)
}

// UpdateShow handles PUT /api/shows/*.
//
//	@Summary		Update a show with optimistic concurrency
//	@Tags			shows
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string				true	"Show path"
//	@Param			If-Match	header		string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		UpdateShowRequest	true	"Updated timeline"
//	@Success		200			{object}	ShowDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/shows/{path} [put]
func (h *Handler) UpdateShow(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := showPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req UpdateShowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Timeline == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("timeline is required"))
		return
	}

	ifMatch := r.Header.Get("If-Match")
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch = strings.Trim(ifMatch, `"`)

	show, err := h.svc.UpdateShow(r.Context(), path, req.Timeline, ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
		case errors.Is(err, apperr.ErrValidation):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("update show failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, show)
}

// DeleteShow handles DELETE /api/shows/*.
//
//	@Summary		Delete a show
//	@Tags			shows
//	@Param			path	path	string	true	"Show path"
//	@Success		204		"Show deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/shows/{path} [delete]
func (h *Handler) DeleteShow(w http.ResponseWriter, r *http.Request) {
	path := showPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteShow(r.Context(), path); err != nil {
		slog.Error("delete show failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across shows
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}
