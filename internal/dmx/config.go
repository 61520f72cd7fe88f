// Package dmx implements the per-channel filter and merge engine that maps
// raw track values onto final DMX universe frames.
package dmx

import (
	"encoding/json"
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cueflow/internal/apperr"
)

// Merge policies for channels written by more than one track.
const (
	MergeHTP = "htp" // highest takes precedence
	MergeLTP = "ltp" // latest-started event takes precedence
)

// Stage types. Clamp is implicit and always runs last; listing it merely
// moves its bounds.
const (
	StageScale  = "scale"
	StageInvert = "invert"
	StageOffset = "offset"
	StageCurve  = "curve"
	StageClamp  = "clamp"
)

// Config is the DMX filter configuration document (dmx_filter_config.json).
// The universe and channel filter fields mirror the capture-side settings
// the recorder honors; Groups drive playback filtering and merging.
type Config struct {
	UniverseFilterEnabled bool  `json:"universe_filter_enabled"`
	UniverseFilterList    []int `json:"universe_filter_list"`
	ChannelFilterEnabled  bool  `json:"dmx_filter_enabled"`
	ChannelFilterList     []int `json:"dmx_filter_channels"`

	Groups []Group `json:"groups"`
}

// Group applies a merge policy and an ordered stage list to a set of
// channels. Channels not covered by any group merge HTP with no stages.
type Group struct {
	Name     string  `json:"name"`
	Channels []int   `json:"channels"` // 1-based
	Merge    string  `json:"merge"`
	Stages   []Stage `json:"stages"`
}

// Stage is one pure value transform in a group's chain.
type Stage struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount,omitempty"` // scale factor, offset delta, curve exponent
	Min    float64 `json:"min,omitempty"`    // clamp lower bound
	Max    float64 `json:"max,omitempty"`    // clamp upper bound
}

// Validate checks the configuration document.
func (c *Config) Validate() error {
	for _, u := range c.UniverseFilterList {
		if u < 0 {
			return fmt.Errorf("universe filter: negative universe %d", u)
		}
	}
	for _, ch := range c.ChannelFilterList {
		if ch < 1 || ch > 512 {
			return fmt.Errorf("channel filter: channel %d outside 1..512", ch)
		}
	}
	for i := range c.Groups {
		if err := c.Groups[i].Validate(); err != nil {
			return fmt.Errorf("group %q: %w", c.Groups[i].Name, err)
		}
	}
	return nil
}

// Validate checks a single group definition.
func (g *Group) Validate() error {
	if err := validation.ValidateStruct(g,
		validation.Field(&g.Name, validation.Required),
		validation.Field(&g.Merge, validation.Required, validation.In(MergeHTP, MergeLTP)),
		validation.Field(&g.Channels, validation.Required),
	); err != nil {
		return err
	}
	for _, ch := range g.Channels {
		if ch < 1 || ch > 512 {
			return fmt.Errorf("channel %d outside 1..512", ch)
		}
	}
	for _, st := range g.Stages {
		if err := validation.Validate(st.Type,
			validation.Required,
			validation.In(StageScale, StageInvert, StageOffset, StageCurve, StageClamp),
		); err != nil {
			return fmt.Errorf("stage type %q: %w", st.Type, err)
		}
		if st.Type == StageCurve && st.Amount <= 0 {
			return fmt.Errorf("curve stage requires a positive exponent, got %v", st.Amount)
		}
	}
	return nil
}

// DefaultConfig returns a pass-through configuration: no filters, no
// groups, everything merged HTP.
func DefaultConfig() *Config {
	return &Config{}
}

// LoadConfig reads and validates a filter configuration file. Errors wrap
// apperr.ErrConfigLoad so callers can disable DMX output without touching
// the other protocols.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", apperr.ErrConfigLoad, path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", apperr.ErrConfigLoad, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrConfigLoad, err)
	}
	return &cfg, nil
}
