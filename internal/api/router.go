package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cueflow/internal/engine"
	"github.com/starford/cueflow/internal/showservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// filterPath is the DMX filter configuration file for the reload endpoint.
func NewRouter(svc *showservice.Service, eng *engine.Engine, authEnabled bool, token string, sseHandler http.Handler, filterPath string) chi.Router {
	h := NewHandler(svc)
	th := NewTransportHandler(eng, svc, filterPath)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Shows CRUD.
	r.Get("/shows", h.ListShows)
	r.Post("/shows", h.CreateShow)
	r.Get("/shows/*", h.GetShow)
	r.Put("/shows/*", h.UpdateShow)
	r.Delete("/shows/*", h.DeleteShow)

	// Search.
	r.Get("/search", h.Search)

	// Transport control.
	r.Get("/transport", th.State)
	r.Post("/transport/play", th.Play)
	r.Post("/transport/pause", th.Pause)
	r.Post("/transport/seek", th.Seek)
	r.Post("/transport/rate", th.Rate)
	r.Post("/transport/loop", th.Loop)
	r.Post("/transport/loop/in", th.LoopIn)
	r.Post("/transport/loop/out", th.LoopOut)
	r.Post("/transport/load", th.LoadShow)

	// Live timeline edits.
	r.Get("/timeline", th.Timeline)
	r.Post("/timeline/tracks", th.AddTrack)
	r.Delete("/timeline/tracks/{trackID}", th.RemoveTrack)
	r.Put("/timeline/tracks/{trackID}/priority", th.SetPriority)
	r.Post("/timeline/tracks/{trackID}/events", th.AddEvent)
	r.Put("/timeline/tracks/{trackID}/events/{eventID}", th.MoveEvent)
	r.Delete("/timeline/tracks/{trackID}/events/{eventID}", th.RemoveEvent)

	// Output status.
	r.Get("/outputs/values", th.OutputValues)
	r.Get("/outputs/failures", th.OutputFailures)

	// DMX filter configuration.
	r.Get("/filters", th.Filters)
	r.Post("/filters/reload", th.ReloadFilters)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
