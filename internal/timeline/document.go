package timeline

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/starford/cueflow/internal/apperr"
	"github.com/starford/cueflow/internal/models"
)

// Document holds the current timeline behind an atomic pointer. Readers
// (the playback loop, the UI) take consistent snapshots without locking;
// writers serialize through mu and commit whole-document copies, so a
// half-applied edit is never observable.
type Document struct {
	mu  sync.Mutex
	cur atomic.Pointer[models.Timeline]
}

// NewDocument creates a document holding an empty timeline.
func NewDocument() *Document {
	d := &Document{}
	d.cur.Store(&models.Timeline{})
	return d
}

// Snapshot returns the current timeline. Callers must not mutate it.
func (d *Document) Snapshot() *models.Timeline {
	return d.cur.Load()
}

// Replace validates tl and swaps it in as the new document.
func (d *Document) Replace(tl *models.Timeline) error {
	if err := Validate(tl); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cur.Store(tl)
	return nil
}

// Edit is a validated mutation of the timeline. Apply works on a private
// copy; returning an error leaves the document untouched.
type Edit interface {
	Apply(tl *models.Timeline) error
}

// Apply runs an edit against a copy of the current timeline, validates the
// result, and commits it atomically. The committed snapshot is returned.
func (d *Document) Apply(e Edit) (*models.Timeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := clone(d.cur.Load())
	if err := e.Apply(next); err != nil {
		return nil, err
	}
	if err := Validate(next); err != nil {
		return nil, err
	}
	d.cur.Store(next)
	return next, nil
}

func clone(tl *models.Timeline) *models.Timeline {
	out := &models.Timeline{Name: tl.Name}
	if tl.Loop != nil {
		l := *tl.Loop
		out.Loop = &l
	}
	out.Tracks = make([]models.Track, len(tl.Tracks))
	for i, tr := range tl.Tracks {
		c := tr
		c.Events = make([]models.Event, len(tr.Events))
		copy(c.Events, tr.Events)
		out.Tracks[i] = c
	}
	return out
}

// AddEvent inserts an event into a track, keeping events sorted by start.
type AddEvent struct {
	TrackID string
	Event   models.Event
}

func (a AddEvent) Apply(tl *models.Timeline) error {
	tr := tl.TrackByID(a.TrackID)
	if tr == nil {
		return fmt.Errorf("%w: track %q", apperr.ErrNotFound, a.TrackID)
	}
	for i := range tr.Events {
		if tr.Events[i].ID == a.Event.ID {
			return fmt.Errorf("%w: event %q", apperr.ErrAlreadyExists, a.Event.ID)
		}
	}
	tr.Events = append(tr.Events, a.Event)
	sortEvents(tr)
	return nil
}

// RemoveEvent deletes an event from a track.
type RemoveEvent struct {
	TrackID string
	EventID string
}

func (r RemoveEvent) Apply(tl *models.Timeline) error {
	tr := tl.TrackByID(r.TrackID)
	if tr == nil {
		return fmt.Errorf("%w: track %q", apperr.ErrNotFound, r.TrackID)
	}
	for i := range tr.Events {
		if tr.Events[i].ID == r.EventID {
			tr.Events = append(tr.Events[:i], tr.Events[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: event %q", apperr.ErrNotFound, r.EventID)
}

// MoveEvent shifts an event's start time (and optionally its duration).
type MoveEvent struct {
	TrackID  string
	EventID  string
	Start    float64
	Duration *float64
}

func (m MoveEvent) Apply(tl *models.Timeline) error {
	tr := tl.TrackByID(m.TrackID)
	if tr == nil {
		return fmt.Errorf("%w: track %q", apperr.ErrNotFound, m.TrackID)
	}
	for i := range tr.Events {
		if tr.Events[i].ID == m.EventID {
			tr.Events[i].Start = m.Start
			if m.Duration != nil {
				tr.Events[i].Duration = *m.Duration
			}
			sortEvents(tr)
			return nil
		}
	}
	return fmt.Errorf("%w: event %q", apperr.ErrNotFound, m.EventID)
}

// AddTrack appends a new track.
type AddTrack struct {
	Track models.Track
}

func (a AddTrack) Apply(tl *models.Timeline) error {
	if tl.TrackByID(a.Track.ID) != nil {
		return fmt.Errorf("%w: track %q", apperr.ErrAlreadyExists, a.Track.ID)
	}
	tl.Tracks = append(tl.Tracks, a.Track)
	return nil
}

// RemoveTrack deletes a track and all its events.
type RemoveTrack struct {
	TrackID string
}

func (r RemoveTrack) Apply(tl *models.Timeline) error {
	for i := range tl.Tracks {
		if tl.Tracks[i].ID == r.TrackID {
			tl.Tracks = append(tl.Tracks[:i], tl.Tracks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: track %q", apperr.ErrNotFound, r.TrackID)
}

// SetLoop installs or clears the loop region. Setting an out point at or
// before the in point pushes the other bound to keep a valid region, the
// same way the loop in/out controls behave in the editor.
type SetLoop struct {
	Region *models.LoopRegion
}

func (s SetLoop) Apply(tl *models.Timeline) error {
	if s.Region == nil {
		tl.Loop = nil
		return nil
	}
	r := *s.Region
	if r.End <= r.Start {
		r.End = r.Start + 5.0
	}
	tl.Loop = &r
	return nil
}

// SetTrackPriority changes a track's LTP merge priority.
type SetTrackPriority struct {
	TrackID  string
	Priority int
}

func (s SetTrackPriority) Apply(tl *models.Timeline) error {
	tr := tl.TrackByID(s.TrackID)
	if tr == nil {
		return fmt.Errorf("%w: track %q", apperr.ErrNotFound, s.TrackID)
	}
	tr.Priority = s.Priority
	return nil
}

func sortEvents(tr *models.Track) {
	sort.SliceStable(tr.Events, func(i, j int) bool {
		return tr.Events[i].Start < tr.Events[j].Start
	})
}
