package models

import (
	"fmt"
	"time"
)

// OutputChange is one resolved value produced by a scheduler tick. It is
// handed to an adapter immediately and never retained.
type OutputChange struct {
	TrackID  string
	Protocol Protocol
	Target   Target

	// Priority is the originating track's merge priority.
	Priority int

	// Values holds the resolved value vector for continuous tracks.
	Values []float64

	// Trigger is non-nil for instantaneous events. Trigger changes must
	// never be coalesced away under backpressure.
	Trigger *TriggerPayload

	// Frame is set instead of Values on merged DMX universe changes after
	// the filter/merge stage.
	Frame *[512]byte

	// Time is the timeline position the change was resolved at; Timestamp
	// is the wall-clock instant it was produced.
	Time      float64
	Timestamp time.Time
}

// CoalesceKey identifies the slot a change occupies in an adapter queue.
// A newer continuous change for the same key replaces a pending one.
func (c *OutputChange) CoalesceKey() string {
	if c.Frame != nil {
		return fmt.Sprintf("dmx/universe/%d", c.Target.Universe)
	}
	return string(c.Protocol) + "/" + c.TrackID
}
