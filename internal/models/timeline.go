// Package models defines the domain types for Cueflow.
package models

// Protocol identifies which output adapter a track targets.
type Protocol string

const (
	ProtocolDMX  Protocol = "dmx"
	ProtocolMIDI Protocol = "midi"
	ProtocolOSC  Protocol = "osc"
)

// InterpMode selects how a nonzero-duration event resolves intermediate values.
type InterpMode string

const (
	// InterpHold keeps the start value until the event ends.
	InterpHold InterpMode = "hold"
	// InterpLinear interpolates linearly between start and end values.
	InterpLinear InterpMode = "linear"
	// InterpEased interpolates with a monotonic ease-in/ease-out curve.
	InterpEased InterpMode = "eased"
)

// Timeline is an ordered set of tracks with an optional loop region.
// Instances are treated as immutable between edits: the edit API always
// swaps in a fresh copy, so a snapshot taken by the playback loop never
// changes underneath it.
type Timeline struct {
	Name   string      `json:"name" msgpack:"name"`
	Tracks []Track     `json:"tracks" msgpack:"tracks"`
	Loop   *LoopRegion `json:"loop,omitempty" msgpack:"loop,omitempty"`
}

// Duration returns the total timeline length: the latest event end across
// all tracks. An empty timeline has duration zero.
func (t *Timeline) Duration() float64 {
	var max float64
	for i := range t.Tracks {
		evs := t.Tracks[i].Events
		if len(evs) == 0 {
			continue
		}
		if end := evs[len(evs)-1].End(); end > max {
			max = end
		}
	}
	return max
}

// TrackByID returns the track with the given ID, or nil.
func (t *Timeline) TrackByID(id string) *Track {
	for i := range t.Tracks {
		if t.Tracks[i].ID == id {
			return &t.Tracks[i]
		}
	}
	return nil
}

// LoopRegion is a [Start, End) window in seconds that playback wraps into.
type LoopRegion struct {
	Start float64 `json:"start" msgpack:"start"`
	End   float64 `json:"end" msgpack:"end"`
}

// Length returns End - Start.
func (r LoopRegion) Length() float64 { return r.End - r.Start }

// Contains reports whether t falls inside the region.
func (r LoopRegion) Contains(t float64) bool { return t >= r.Start && t < r.End }

// Target carries the protocol-specific routing information for a track.
// Only the fields for the track's protocol are meaningful.
type Target struct {
	// DMX: 1-based first channel plus width within a universe.
	Universe int `json:"universe,omitempty" msgpack:"universe,omitempty"`
	Channel  int `json:"channel,omitempty" msgpack:"channel,omitempty"`
	Width    int `json:"width,omitempty" msgpack:"width,omitempty"`

	// MIDI: device port name, 1-based channel, CC number for continuous tracks.
	Device      string `json:"device,omitempty" msgpack:"device,omitempty"`
	MIDIChannel int    `json:"midi_channel,omitempty" msgpack:"midi_channel,omitempty"`
	Controller  int    `json:"controller,omitempty" msgpack:"controller,omitempty"`

	// OSC: destination host:port and message address.
	OSCHost    string `json:"osc_host,omitempty" msgpack:"osc_host,omitempty"`
	OSCPort    int    `json:"osc_port,omitempty" msgpack:"osc_port,omitempty"`
	OSCAddress string `json:"osc_address,omitempty" msgpack:"osc_address,omitempty"`

	// FilterGroup optionally names a channel group in the DMX filter config.
	FilterGroup string `json:"filter_group,omitempty" msgpack:"filter_group,omitempty"`
}

// Track owns an ordered, non-overlapping sequence of events bound to one
// output target. Priority breaks ties under latest-takes-precedence merging;
// higher wins.
type Track struct {
	ID       string   `json:"id" msgpack:"id"`
	Name     string   `json:"name,omitempty" msgpack:"name,omitempty"`
	Protocol Protocol `json:"protocol" msgpack:"protocol"`
	Target   Target   `json:"target" msgpack:"target"`
	Priority int      `json:"priority,omitempty" msgpack:"priority,omitempty"`
	Events   []Event  `json:"events" msgpack:"events"`
}

// Width returns the number of value lanes a track carries. DMX tracks span
// Target.Width channels; MIDI and OSC tracks carry a single lane.
func (tr *Track) Width() int {
	if tr.Protocol == ProtocolDMX && tr.Target.Width > 0 {
		return tr.Target.Width
	}
	return 1
}

// Event is a single timed entry on a track. Duration zero marks an
// instantaneous trigger (MIDI note, OSC message); nonzero duration marks a
// value held or interpolated over time (a DMX fade).
type Event struct {
	ID       string     `json:"id" msgpack:"id"`
	Start    float64    `json:"start" msgpack:"start"`
	Duration float64    `json:"duration" msgpack:"duration"`
	Mode     InterpMode `json:"mode,omitempty" msgpack:"mode,omitempty"`

	// From and To are the value vectors at the event's start and end.
	// Their length must match the track width. Triggers carry neither.
	From []float64 `json:"from,omitempty" msgpack:"from,omitempty"`
	To   []float64 `json:"to,omitempty" msgpack:"to,omitempty"`

	// Trigger holds the payload for zero-duration events.
	Trigger *TriggerPayload `json:"trigger,omitempty" msgpack:"trigger,omitempty"`
}

// End returns Start + Duration.
func (e *Event) End() float64 { return e.Start + e.Duration }

// IsTrigger reports whether the event is an instantaneous trigger.
func (e *Event) IsTrigger() bool { return e.Duration == 0 }

// TriggerPayload is the message body of a zero-duration event.
type TriggerPayload struct {
	// MIDI note trigger: note number, velocity, and how long until note-off.
	Note         int     `json:"note,omitempty" msgpack:"note,omitempty"`
	Velocity     int     `json:"velocity,omitempty" msgpack:"velocity,omitempty"`
	NoteDuration float64 `json:"note_duration,omitempty" msgpack:"note_duration,omitempty"`

	// OSC arguments, sent in order. Supported kinds: int, float64, string, bool.
	Args []any `json:"args,omitempty" msgpack:"args,omitempty"`
}
