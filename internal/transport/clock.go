// Package transport implements the playback clock: the single authority
// for "now" with play/pause/seek/loop/rate state.
package transport

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/starford/cueflow/internal/apperr"
	"github.com/starford/cueflow/internal/models"
)

// SeekMode selects how out-of-bounds seek targets are handled.
type SeekMode string

const (
	// SeekClamp clamps the target into [0, duration].
	SeekClamp SeekMode = "clamp"
	// SeekError rejects out-of-bounds targets with apperr.ErrOutOfRange.
	SeekError SeekMode = "error"
)

// Segment is a half-open span (From, To] of timeline time covered by one
// tick, in play direction. A tick that wraps the loop boundary yields one
// segment per pass so the scheduler can fire boundary triggers exactly once.
type Segment struct {
	From float64
	To   float64
}

// Reverse reports whether the segment runs backwards in timeline time.
func (s Segment) Reverse() bool { return s.To < s.From }

// TickResult describes what one clock tick covered.
type TickResult struct {
	// Now is the timeline position after the tick.
	Now float64
	// Segments lists the spans traversed, split at loop boundaries.
	Segments []Segment
	// Wrapped is true when the tick crossed the loop boundary at least once.
	Wrapped bool
	// Gen is the discontinuity generation; it changes on every seek.
	Gen uint64
}

// Snapshot is a read-only copy of the transport state for UI display.
type Snapshot struct {
	Now      float64            `json:"now"`
	Rate     float64            `json:"rate"`
	Playing  bool               `json:"playing"`
	Duration float64            `json:"duration"`
	Loop     *models.LoopRegion `json:"loop,omitempty"`
	Gen      uint64             `json:"-"`
}

// Clock advances timeline time from wall-clock elapsed intervals. The
// playback loop is its sole ticker; control methods may be called from any
// goroutine.
type Clock struct {
	mu       sync.Mutex
	now      float64
	rate     float64
	playing  bool
	duration float64
	loop     *models.LoopRegion
	gen      uint64
	seekMode SeekMode
}

// NewClock creates a paused clock at time zero with rate 1.
func NewClock(duration float64, mode SeekMode) *Clock {
	if mode == "" {
		mode = SeekClamp
	}
	return &Clock{rate: 1, duration: duration, seekMode: mode}
}

// Start begins advancing time on subsequent ticks.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = true
}

// Pause stops advancing time. Position is kept.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
}

// SetDuration updates the timeline length, clamping the position into the
// new bounds. Called when a different timeline is loaded or edited.
func (c *Clock) SetDuration(d float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.duration = d
	if c.now > d {
		c.now = d
		c.gen++
	}
}

// SetRate sets the playback rate. Zero behaves as paused; negative plays
// in reverse.
func (c *Clock) SetRate(r float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = r
}

// SetLoop installs or clears the loop region.
func (c *Clock) SetLoop(region *models.LoopRegion) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if region != nil && region.Length() <= 0 {
		return fmt.Errorf("%w: loop region end %.3f not after start %.3f",
			apperr.ErrValidation, region.End, region.Start)
	}
	c.loop = region
	return nil
}

// SetLoopIn moves the loop start to t, creating the region when absent.
// An end at or before the new start is pushed out to the timeline end so
// the region stays valid.
func (c *Clock) SetLoopIn(t float64) (*models.LoopRegion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < 0 || t >= c.duration {
		return nil, fmt.Errorf("%w: loop start %.3f outside [0, %.3f)", apperr.ErrOutOfRange, t, c.duration)
	}
	loop := models.LoopRegion{Start: t, End: c.duration}
	if c.loop != nil {
		loop.End = c.loop.End
	}
	if loop.End <= t {
		loop.End = c.duration
	}
	c.loop = &loop
	out := loop
	return &out, nil
}

// SetLoopOut moves the loop end to t, creating the region when absent. A
// start at or after the new end is pushed back to zero.
func (c *Clock) SetLoopOut(t float64) (*models.LoopRegion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t <= 0 || t > c.duration {
		return nil, fmt.Errorf("%w: loop end %.3f outside (0, %.3f]", apperr.ErrOutOfRange, t, c.duration)
	}
	loop := models.LoopRegion{Start: 0, End: t}
	if c.loop != nil {
		loop.Start = c.loop.Start
	}
	if loop.Start >= t {
		loop.Start = 0
	}
	c.loop = &loop
	out := loop
	return &out, nil
}

// Seek moves the playhead. Out-of-bounds targets are clamped or rejected
// per the configured seek mode. When looping is active and the target falls
// outside the region, the target is wrapped into the region. Seek always
// bumps the discontinuity generation so the scheduler recomputes from the
// new position instead of replaying the jumped span.
func (c *Clock) Seek(t float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < 0 || t > c.duration {
		if c.seekMode == SeekError {
			return c.now, fmt.Errorf("%w: seek %.3f outside [0, %.3f]", apperr.ErrOutOfRange, t, c.duration)
		}
		t = math.Min(math.Max(t, 0), c.duration)
	}
	if c.loop != nil && !c.loop.Contains(t) && c.loop.Length() > 0 {
		t = c.loop.Start + math.Mod(t-c.loop.Start, c.loop.Length())
		if t < c.loop.Start {
			t += c.loop.Length()
		}
	}
	c.now = t
	c.gen++
	return c.now, nil
}

// Tick advances the clock by elapsed wall time scaled by rate and returns
// the spans traversed. A paused clock returns its position and no segments.
// Reaching the end of a non-looping timeline pauses playback at the end
// (symmetrically, at zero under reverse playback).
func (c *Clock) Tick(elapsed time.Duration) TickResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := TickResult{Now: c.now, Gen: c.gen}
	if !c.playing || c.rate == 0 || elapsed <= 0 {
		return res
	}

	delta := elapsed.Seconds() * c.rate
	target := c.now + delta

	if c.loop != nil && c.loop.Length() > 0 {
		res.Segments, res.Wrapped, c.now = c.advanceLooping(target)
	} else {
		res.Segments, c.now = c.advanceBounded(target)
	}
	res.Now = c.now
	res.Gen = c.gen
	return res
}

// advanceBounded moves toward target and clamps at the timeline bounds,
// pausing when an end is hit.
func (c *Clock) advanceBounded(target float64) ([]Segment, float64) {
	from := c.now
	if target >= c.duration {
		target = c.duration
		c.playing = false
	} else if target <= 0 {
		target = 0
		c.playing = false
	}
	if target == from {
		return nil, from
	}
	return []Segment{{From: from, To: target}}, target
}

// advanceLooping moves toward target. Crossing the loop boundary wraps the
// excess into the region (modulo its length) and splits the tick into one
// segment per side of the boundary, so the scheduler sees the tail of one
// pass and the head of the next separately.
func (c *Clock) advanceLooping(target float64) ([]Segment, bool, float64) {
	loop := *c.loop
	from := c.now

	if target > from && target > loop.End && from < loop.End {
		excess := math.Mod(target-loop.End, loop.Length())
		to := loop.Start + excess
		c.gen++
		segs := []Segment{{From: from, To: loop.End}}
		if to > loop.Start {
			segs = append(segs, Segment{From: loop.Start, To: to})
		}
		return segs, true, to
	}
	if target < from && target < loop.Start && from > loop.Start {
		excess := math.Mod(loop.Start-target, loop.Length())
		to := loop.End - excess
		c.gen++
		segs := []Segment{{From: from, To: loop.Start}}
		if to < loop.End {
			segs = append(segs, Segment{From: loop.End, To: to})
		}
		return segs, true, to
	}

	// No boundary crossed; still clamp to the timeline bounds.
	if target > c.duration {
		target = c.duration
	} else if target < 0 {
		target = 0
	}
	if target == from {
		return nil, false, from
	}
	return []Segment{{From: from, To: target}}, false, target
}

// Snapshot returns a copy of the current transport state.
func (c *Clock) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var loop *models.LoopRegion
	if c.loop != nil {
		l := *c.loop
		loop = &l
	}
	return Snapshot{
		Now:      c.now,
		Rate:     c.rate,
		Playing:  c.playing,
		Duration: c.duration,
		Loop:     loop,
		Gen:      c.gen,
	}
}
