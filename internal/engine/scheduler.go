// Package engine drives timeline playback: the scheduler resolves events
// into output changes per clock tick, and the player loop pushes them
// through the protocol dispatchers.
package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/starford/cueflow/internal/models"
	"github.com/starford/cueflow/internal/transport"
)

// FadeEndPolicy controls the value a track resolves to after its last
// event has ended.
type FadeEndPolicy string

const (
	// FadeEndRevert drops the track back to zero after an event ends.
	FadeEndRevert FadeEndPolicy = "revert"
	// FadeEndHold keeps the event's final value until another event starts.
	FadeEndHold FadeEndPolicy = "hold"
)

// TriggerSeekPolicy controls whether triggers jumped over by a seek fire.
type TriggerSeekPolicy string

const (
	// SeekSuppress skips triggers inside the jumped span (default).
	SeekSuppress TriggerSeekPolicy = "suppress"
	// SeekReplay fires jumped-over triggers once, in order, to keep
	// external devices in sync after a scrub.
	SeekReplay TriggerSeekPolicy = "replay"
)

// Scheduler turns clock tick spans into ordered output changes. It keeps
// the trigger fired-set for the current pass and the last value emitted
// per track. Tick is driven by the playback loop; Reset, Prune, and
// LastValues may be called from other goroutines.
type Scheduler struct {
	fadeEnd    FadeEndPolicy
	seekPolicy TriggerSeekPolicy

	mu       sync.Mutex
	fired    map[string]struct{} // trackID+"/"+eventID, reset each pass
	last     map[string][]float64
	lastTime float64
	lastGen  uint64
	started  bool
}

// NewScheduler builds a scheduler with the given policies.
func NewScheduler(fadeEnd FadeEndPolicy, seek TriggerSeekPolicy) *Scheduler {
	if fadeEnd == "" {
		fadeEnd = FadeEndRevert
	}
	if seek == "" {
		seek = SeekSuppress
	}
	return &Scheduler{
		fadeEnd:    fadeEnd,
		seekPolicy: seek,
		fired:      make(map[string]struct{}),
		last:       make(map[string][]float64),
	}
}

// Reset clears all pass state. Called when a different timeline is loaded.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired = make(map[string]struct{})
	s.last = make(map[string][]float64)
	s.started = false
}

// Prune drops pass state for tracks no longer in the timeline, so a
// removed track's last value cannot govern future emissions.
func (s *Scheduler) Prune(alive map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.last {
		if _, ok := alive[id]; !ok {
			delete(s.last, id)
		}
	}
	for key := range s.fired {
		id, _, _ := strings.Cut(key, "/")
		if _, ok := alive[id]; !ok {
			delete(s.fired, key)
		}
	}
}

// LastValues returns a copy of the last emitted value per track, for UI
// feedback.
func (s *Scheduler) LastValues() map[string][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]float64, len(s.last))
	for k, v := range s.last {
		out[k] = append([]float64(nil), v...)
	}
	return out
}

// Tick resolves one clock tick into output changes, ordered by track index
// and then by event start time.
func (s *Scheduler) Tick(tl *models.Timeline, res transport.TickResult) []models.OutputChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var changes []models.OutputChange

	if !s.started {
		s.started = true
		s.lastGen = res.Gen
		s.lastTime = res.Now
		// First observation of a timeline: treat as a discontinuity so
		// every track emits its value at the starting position.
		return s.discontinuity(tl, res.Now, res.Now, false, now)
	}

	// A generation change without a wrap means a seek (or scrub) happened
	// since the last tick. Recompute from the new position instead of
	// replaying the jumped span.
	if res.Gen != s.lastGen && !res.Wrapped {
		to := res.Now
		reverse := false
		if len(res.Segments) > 0 {
			to = res.Segments[0].From
			reverse = res.Segments[0].Reverse()
		}
		changes = append(changes, s.discontinuity(tl, s.lastTime, to, reverse, now)...)
	}

	for i, seg := range res.Segments {
		if res.Wrapped && i > 0 {
			// Loop boundary crossed: a new pass begins, so every trigger
			// becomes eligible again.
			s.fired = make(map[string]struct{})
		}
		changes = append(changes, s.segment(tl, seg, now)...)
	}

	s.lastGen = res.Gen
	s.lastTime = res.Now
	return changes
}

// segment emits triggers whose start lies inside the span and one change
// per track affected by a continuous event.
func (s *Scheduler) segment(tl *models.Timeline, seg transport.Segment, now time.Time) []models.OutputChange {
	lo, hi := seg.From, seg.To
	if seg.Reverse() {
		lo, hi = hi, lo
	}

	var changes []models.OutputChange
	for ti := range tl.Tracks {
		tr := &tl.Tracks[ti]
		affected := false
		for ei := range tr.Events {
			ev := &tr.Events[ei]
			if ev.IsTrigger() {
				// Closed interval: a trigger exactly on a segment edge
				// fires here; the fired-set stops the next segment from
				// firing it again within the same pass.
				if ev.Start >= lo && ev.Start <= hi {
					s.fire(tr, ev, seg.To, now, &changes)
				}
				continue
			}
			if ev.Start <= hi && ev.End() >= lo {
				affected = true
			}
		}
		if affected {
			s.emitResolved(tr, seg.To, now, &changes)
		}
	}
	return changes
}

// discontinuity recomputes the full active set at the new time and emits a
// change for every track whose resolved value differs from its last
// emitted value, so no stale output survives a jump. Trigger fired-state
// is rebuilt from the new position per the configured seek policy.
func (s *Scheduler) discontinuity(tl *models.Timeline, from, to float64, reverse bool, now time.Time) []models.OutputChange {
	var changes []models.OutputChange

	// Replay consults the pre-seek fired set so a trigger that already
	// fired this pass is not fired a second time; only genuinely skipped
	// triggers in the jumped span replay.
	replayed := make(map[string]struct{})
	if s.seekPolicy == SeekReplay && to > from {
		for ti := range tl.Tracks {
			tr := &tl.Tracks[ti]
			for ei := range tr.Events {
				ev := &tr.Events[ei]
				if ev.IsTrigger() && ev.Start > from && ev.Start <= to {
					if s.fire(tr, ev, to, now, &changes) {
						replayed[firedKey(tr, ev)] = struct{}{}
					}
				}
			}
		}
	}

	// Rebuild fired-state from the new position: everything strictly
	// behind the playhead counts as fired for this pass, everything at or
	// after it is eligible (landing exactly on a trigger re-arms it,
	// unless replay just fired it). A backwards seek therefore re-arms
	// later triggers.
	s.fired = replayed
	for ti := range tl.Tracks {
		tr := &tl.Tracks[ti]
		for ei := range tr.Events {
			ev := &tr.Events[ei]
			if !ev.IsTrigger() {
				continue
			}
			behind := ev.Start < to
			if reverse {
				behind = ev.Start > to
			}
			if behind {
				s.fired[firedKey(tr, ev)] = struct{}{}
			}
		}
	}

	for ti := range tl.Tracks {
		s.emitResolved(&tl.Tracks[ti], to, now, &changes)
	}
	return changes
}

// fire emits a trigger change once. Returns true if it fired.
func (s *Scheduler) fire(tr *models.Track, ev *models.Event, at float64, now time.Time, out *[]models.OutputChange) bool {
	key := firedKey(tr, ev)
	if _, done := s.fired[key]; done {
		return false
	}
	s.fired[key] = struct{}{}
	*out = append(*out, models.OutputChange{
		TrackID:   tr.ID,
		Protocol:  tr.Protocol,
		Target:    tr.Target,
		Trigger:   ev.Trigger,
		Time:      at,
		Timestamp: now,
	})
	return true
}

// emitResolved computes a track's continuous value at time t and appends a
// change when it differs from the last emitted value.
func (s *Scheduler) emitResolved(tr *models.Track, t float64, now time.Time, out *[]models.OutputChange) {
	vals, startedAt := s.resolve(tr, t)
	if vals == nil {
		// Playhead precedes every event on the track. If the track has
		// already spoken this pass (reverse playback backed out of its
		// first event), revert drops it to zero; hold keeps the value.
		if _, spoke := s.last[tr.ID]; !spoke || s.fadeEnd != FadeEndRevert {
			return
		}
		vals, startedAt = make([]float64, tr.Width()), 0
	}
	if prev, ok := s.last[tr.ID]; ok && equalValues(prev, vals) {
		return
	}
	s.last[tr.ID] = vals
	*out = append(*out, models.OutputChange{
		TrackID:   tr.ID,
		Protocol:  tr.Protocol,
		Target:    tr.Target,
		Priority:  tr.Priority,
		Values:    vals,
		Time:      startedAt,
		Timestamp: now,
	})
}

// resolve returns the track's value vector at time t, or nil when no event
// has any opinion yet. The second return is the start time of the
// governing event, used for latest-takes-precedence merging downstream.
func (s *Scheduler) resolve(tr *models.Track, t float64) ([]float64, float64) {
	var lastEnded *models.Event
	for ei := range tr.Events {
		ev := &tr.Events[ei]
		if ev.IsTrigger() {
			continue
		}
		if ev.Start <= t && t <= ev.End() {
			return interpolate(ev, t), ev.Start
		}
		if ev.End() < t {
			lastEnded = ev
		}
	}
	if lastEnded == nil {
		return nil, 0
	}
	if s.fadeEnd == FadeEndHold {
		return append([]float64(nil), lastEnded.To...), lastEnded.Start
	}
	return make([]float64, tr.Width()), lastEnded.Start
}

func firedKey(tr *models.Track, ev *models.Event) string {
	return tr.ID + "/" + ev.ID
}
