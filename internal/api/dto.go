package api

import (
	"github.com/starford/cueflow/internal/dmx"
	"github.com/starford/cueflow/internal/models"
	"github.com/starford/cueflow/internal/showservice"
)

// CreateShowRequest is the request body for creating a show.
type CreateShowRequest struct {
	Path     string           `json:"path" example:"shows/opening.json" validate:"required"`
	Timeline *models.Timeline `json:"timeline" validate:"required"`
}

// UpdateShowRequest is the request body for updating a show.
type UpdateShowRequest struct {
	Timeline *models.Timeline `json:"timeline" validate:"required"`
}

// ShowDetail is the full show response type (aliased from the domain layer).
type ShowDetail = showservice.ShowDetail

// ShowListItem is a lightweight item in a list response (aliased from the domain layer).
type ShowListItem = showservice.ShowListItem

// ShowListResponse wraps paginated show listings.
type ShowListResponse struct {
	Shows []ShowListItem `json:"shows" validate:"required"`
	Total int            `json:"total" example:"12" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"shows/opening.json" validate:"required"`
	Name    string `json:"name" example:"Opening Night" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// LoadShowRequest selects the show to load into the engine.
type LoadShowRequest struct {
	Path string `json:"path" example:"shows/opening.json" validate:"required"`
}

// SeekRequest carries the target playhead position in seconds.
type SeekRequest struct {
	Position float64 `json:"position" example:"12.5"`
}

// RateRequest carries the playback rate. Magnitude is clamped into the
// supported range; the sign selects direction.
type RateRequest struct {
	Rate float64 `json:"rate" example:"1.5"`
}

// LoopRequest installs a loop region, or clears it when Clear is true.
type LoopRequest struct {
	Start float64 `json:"start" example:"4.0"`
	End   float64 `json:"end" example:"9.0"`
	Clear bool    `json:"clear,omitempty"`
}

// LoopPointRequest moves one loop bound. A nil position means the
// current playhead.
type LoopPointRequest struct {
	Position *float64 `json:"position,omitempty" example:"4.0"`
}

// PriorityRequest sets a track's merge priority.
type PriorityRequest struct {
	Priority int `json:"priority" example:"10"`
}

// MoveEventRequest repositions (and optionally resizes) an event.
type MoveEventRequest struct {
	Start    float64  `json:"start" example:"3.0"`
	Duration *float64 `json:"duration,omitempty" example:"2.0"`
}

// FilterStateResponse reports the active DMX filter configuration and
// whether DMX output is currently enabled. DMXEnabled goes false when a
// filter configuration fails to load and stays false until one loads.
type FilterStateResponse struct {
	DMXEnabled bool        `json:"dmx_enabled" validate:"required"`
	Config     *dmx.Config `json:"config" validate:"required"`
}
