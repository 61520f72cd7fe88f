// Package timeline owns the editable timeline document: validation of the
// model invariants, atomic copy-on-write edits, and file codecs.
package timeline

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cueflow/internal/apperr"
	"github.com/starford/cueflow/internal/models"
)

// Validate checks a whole timeline against the model invariants. It is run
// on every load and before every edit commit, so the playback loop can
// assume any snapshot it sees is valid.
func Validate(tl *models.Timeline) error {
	seen := make(map[string]struct{}, len(tl.Tracks))
	for i := range tl.Tracks {
		tr := &tl.Tracks[i]
		if _, dup := seen[tr.ID]; dup {
			return fmt.Errorf("%w: duplicate track id %q", apperr.ErrValidation, tr.ID)
		}
		seen[tr.ID] = struct{}{}
		if err := validateTrack(tr); err != nil {
			return err
		}
	}
	if tl.Loop != nil {
		if tl.Loop.Start < 0 || tl.Loop.End <= tl.Loop.Start {
			return fmt.Errorf("%w: loop region [%.3f, %.3f] is empty or negative",
				apperr.ErrValidation, tl.Loop.Start, tl.Loop.End)
		}
	}
	return nil
}

func validateTrack(tr *models.Track) error {
	if err := validation.ValidateStruct(tr,
		validation.Field(&tr.ID, validation.Required),
		validation.Field(&tr.Protocol, validation.Required,
			validation.In(models.ProtocolDMX, models.ProtocolMIDI, models.ProtocolOSC)),
	); err != nil {
		return fmt.Errorf("%w: track %q: %v", apperr.ErrValidation, tr.ID, err)
	}
	if err := validateTarget(tr); err != nil {
		return err
	}

	width := tr.Width()
	for i := range tr.Events {
		ev := &tr.Events[i]
		if err := validateEvent(tr, ev, width); err != nil {
			return err
		}
		// Track-local non-overlap: events are kept sorted by start, and
		// each event must end before the next one starts.
		if i > 0 {
			prev := &tr.Events[i-1]
			if ev.Start < prev.Start {
				return fmt.Errorf("%w: track %q events not ordered by start time",
					apperr.ErrValidation, tr.ID)
			}
			if prev.End() > ev.Start {
				return fmt.Errorf("%w: track %q: event %q (ends %.3f) overlaps event %q (starts %.3f)",
					apperr.ErrValidation, tr.ID, prev.ID, prev.End(), ev.ID, ev.Start)
			}
		}
	}
	return nil
}

func validateTarget(tr *models.Track) error {
	t := &tr.Target
	switch tr.Protocol {
	case models.ProtocolDMX:
		if t.Universe < 0 {
			return fmt.Errorf("%w: track %q: negative universe", apperr.ErrValidation, tr.ID)
		}
		if t.Channel < 1 || t.Channel > 512 {
			return fmt.Errorf("%w: track %q: channel %d outside 1..512", apperr.ErrValidation, tr.ID, t.Channel)
		}
		if t.Width < 1 || t.Channel+t.Width-1 > 512 {
			return fmt.Errorf("%w: track %q: channel span %d+%d exceeds universe",
				apperr.ErrValidation, tr.ID, t.Channel, t.Width)
		}
	case models.ProtocolMIDI:
		if t.Device == "" {
			return fmt.Errorf("%w: track %q: midi device required", apperr.ErrValidation, tr.ID)
		}
		if t.MIDIChannel < 1 || t.MIDIChannel > 16 {
			return fmt.Errorf("%w: track %q: midi channel %d outside 1..16", apperr.ErrValidation, tr.ID, t.MIDIChannel)
		}
	case models.ProtocolOSC:
		if t.OSCAddress == "" || t.OSCAddress[0] != '/' {
			return fmt.Errorf("%w: track %q: osc address must start with '/'", apperr.ErrValidation, tr.ID)
		}
	}
	return nil
}

func validateEvent(tr *models.Track, ev *models.Event, width int) error {
	if ev.ID == "" {
		return fmt.Errorf("%w: track %q: event without id", apperr.ErrValidation, tr.ID)
	}
	if ev.Start < 0 || ev.Duration < 0 {
		return fmt.Errorf("%w: track %q event %q: negative time", apperr.ErrValidation, tr.ID, ev.ID)
	}
	if ev.IsTrigger() {
		if ev.Trigger == nil {
			return fmt.Errorf("%w: track %q event %q: zero-duration event needs a trigger payload",
				apperr.ErrValidation, tr.ID, ev.ID)
		}
		return nil
	}
	switch ev.Mode {
	case models.InterpHold, models.InterpLinear, models.InterpEased:
	case "":
		ev.Mode = models.InterpHold
	default:
		return fmt.Errorf("%w: track %q event %q: unknown interpolation mode %q",
			apperr.ErrValidation, tr.ID, ev.ID, ev.Mode)
	}
	if len(ev.From) != width || len(ev.To) != width {
		return fmt.Errorf("%w: track %q event %q: value width %d/%d, track expects %d",
			apperr.ErrValidation, tr.ID, ev.ID, len(ev.From), len(ev.To), width)
	}
	return nil
}
