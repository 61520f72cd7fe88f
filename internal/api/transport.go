package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cueflow/internal/apperr"
	"github.com/starford/cueflow/internal/engine"
	"github.com/starford/cueflow/internal/models"
	"github.com/starford/cueflow/internal/showservice"
	"github.com/starford/cueflow/internal/timeline"
)

// TransportHandler holds the playback and timeline route handlers.
type TransportHandler struct {
	eng        *engine.Engine
	svc        *showservice.Service
	filterPath string
}

// NewTransportHandler creates a new TransportHandler. filterPath is the
// DMX filter configuration file used by the reload endpoint.
func NewTransportHandler(eng *engine.Engine, svc *showservice.Service, filterPath string) *TransportHandler {
	return &TransportHandler{eng: eng, svc: svc, filterPath: filterPath}
}

func editStatus(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// State handles GET /api/transport.
func (h *TransportHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

// Play handles POST /api/transport/play.
func (h *TransportHandler) Play(w http.ResponseWriter, r *http.Request) {
	h.eng.Play()
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

// Pause handles POST /api/transport/pause.
func (h *TransportHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.eng.Pause()
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

// Seek handles POST /api/transport/seek.
func (h *TransportHandler) Seek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if _, err := h.eng.Seek(req.Position); err != nil {
		writeJSON(w, editStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

// Rate handles POST /api/transport/rate.
func (h *TransportHandler) Rate(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	applied := h.eng.SetRate(req.Rate)
	writeJSON(w, http.StatusOK, map[string]any{
		"rate":     applied,
		"snapshot": h.eng.Snapshot(),
	})
}

// Loop handles POST /api/transport/loop.
func (h *TransportHandler) Loop(w http.ResponseWriter, r *http.Request) {
	var req LoopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	var region *models.LoopRegion
	if !req.Clear {
		region = &models.LoopRegion{Start: req.Start, End: req.End}
	}
	if err := h.eng.SetLoop(region); err != nil {
		writeJSON(w, editStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

// LoopIn handles POST /api/transport/loop/in. With no position in the
// body the current playhead is used.
func (h *TransportHandler) LoopIn(w http.ResponseWriter, r *http.Request) {
	var req LoopPointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	pos := h.eng.Snapshot().Now
	if req.Position != nil {
		pos = *req.Position
	}
	if _, err := h.eng.SetLoopIn(pos); err != nil {
		writeJSON(w, editStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

// LoopOut handles POST /api/transport/loop/out.
func (h *TransportHandler) LoopOut(w http.ResponseWriter, r *http.Request) {
	var req LoopPointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	pos := h.eng.Snapshot().Now
	if req.Position != nil {
		pos = *req.Position
	}
	if _, err := h.eng.SetLoopOut(pos); err != nil {
		writeJSON(w, editStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

// LoadShow handles POST /api/transport/load.
func (h *TransportHandler) LoadShow(w http.ResponseWriter, r *http.Request) {
	var req LoadShowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	show, err := h.svc.LoadShow(r.Context(), req.Path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("load show failed", slog.String("path", req.Path), slog.String("error", err.Error()))
			writeJSON(w, editStatus(err), errorBody(err.Error()))
		}
		return
	}
	writeJSON(w, http.StatusOK, show)
}

// Timeline handles GET /api/timeline.
func (h *TransportHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Document().Snapshot())
}

// AddTrack handles POST /api/timeline/tracks.
func (h *TransportHandler) AddTrack(w http.ResponseWriter, r *http.Request) {
	var track models.Track
	if err := json.NewDecoder(r.Body).Decode(&track); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	tl, err := h.eng.ApplyEdit(timeline.AddTrack{Track: track})
	if err != nil {
		writeJSON(w, editStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, tl)
}

// RemoveTrack handles DELETE /api/timeline/tracks/{trackID}.
func (h *TransportHandler) RemoveTrack(w http.ResponseWriter, r *http.Request) {
	tl, err := h.eng.ApplyEdit(timeline.RemoveTrack{TrackID: chi.URLParam(r, "trackID")})
	if err != nil {
		writeJSON(w, editStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// SetPriority handles PUT /api/timeline/tracks/{trackID}/priority.
func (h *TransportHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	var req PriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	tl, err := h.eng.ApplyEdit(timeline.SetTrackPriority{
		TrackID:  chi.URLParam(r, "trackID"),
		Priority: req.Priority,
	})
	if err != nil {
		writeJSON(w, editStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// AddEvent handles POST /api/timeline/tracks/{trackID}/events.
func (h *TransportHandler) AddEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	tl, err := h.eng.ApplyEdit(timeline.AddEvent{
		TrackID: chi.URLParam(r, "trackID"),
		Event:   ev,
	})
	if err != nil {
		writeJSON(w, editStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, tl)
}

// MoveEvent handles PUT /api/timeline/tracks/{trackID}/events/{eventID}.
func (h *TransportHandler) MoveEvent(w http.ResponseWriter, r *http.Request) {
	var req MoveEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	tl, err := h.eng.ApplyEdit(timeline.MoveEvent{
		TrackID:  chi.URLParam(r, "trackID"),
		EventID:  chi.URLParam(r, "eventID"),
		Start:    req.Start,
		Duration: req.Duration,
	})
	if err != nil {
		writeJSON(w, editStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// RemoveEvent handles DELETE /api/timeline/tracks/{trackID}/events/{eventID}.
func (h *TransportHandler) RemoveEvent(w http.ResponseWriter, r *http.Request) {
	tl, err := h.eng.ApplyEdit(timeline.RemoveEvent{
		TrackID: chi.URLParam(r, "trackID"),
		EventID: chi.URLParam(r, "eventID"),
	})
	if err != nil {
		writeJSON(w, editStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// OutputValues handles GET /api/outputs/values.
func (h *TransportHandler) OutputValues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"values": h.eng.LastValues(),
	})
}

// OutputFailures handles GET /api/outputs/failures.
func (h *TransportHandler) OutputFailures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"failures": h.eng.RecentFailures(),
	})
}

// Filters handles GET /api/filters.
func (h *TransportHandler) Filters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FilterStateResponse{
		DMXEnabled: h.eng.FiltersOK(),
		Config:     h.eng.Filters(),
	})
}

// ReloadFilters handles POST /api/filters/reload.
func (h *TransportHandler) ReloadFilters(w http.ResponseWriter, r *http.Request) {
	if h.filterPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("no filter config file configured"))
		return
	}
	if err := h.eng.ReloadFilters(h.filterPath); err != nil {
		slog.Error("filter reload failed", slog.String("path", h.filterPath), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, FilterStateResponse{
		DMXEnabled: h.eng.FiltersOK(),
		Config:     h.eng.Filters(),
	})
}
