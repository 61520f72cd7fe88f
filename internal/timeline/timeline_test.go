package timeline

import (
	"errors"
	"testing"

	"github.com/starford/cueflow/internal/apperr"
	"github.com/starford/cueflow/internal/models"
)

func dmxTrack(id string, events ...models.Event) models.Track {
	return models.Track{
		ID:       id,
		Protocol: models.ProtocolDMX,
		Target:   models.Target{Universe: 0, Channel: 1, Width: 1},
		Events:   events,
	}
}

func fade(id string, start, dur, from, to float64) models.Event {
	return models.Event{
		ID: id, Start: start, Duration: dur, Mode: models.InterpLinear,
		From: []float64{from}, To: []float64{to},
	}
}

func TestValidateAcceptsNonOverlapping(t *testing.T) {
	tl := &models.Timeline{Tracks: []models.Track{
		dmxTrack("a", fade("e1", 0, 2, 0, 255), fade("e2", 2, 1, 255, 0)),
	}}
	if err := Validate(tl); err != nil {
		t.Fatalf("valid timeline rejected: %v", err)
	}
}

func TestValidateRejectsOverlap(t *testing.T) {
	tl := &models.Timeline{Tracks: []models.Track{
		dmxTrack("a", fade("e1", 0, 2, 0, 255), fade("e2", 1.5, 1, 0, 0)),
	}}
	err := Validate(tl)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestValidateRejectsBadChannelSpan(t *testing.T) {
	tr := dmxTrack("a")
	tr.Target.Channel = 510
	tr.Target.Width = 4
	err := Validate(&models.Timeline{Tracks: []models.Track{tr}})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestValidateRejectsTriggerWithoutPayload(t *testing.T) {
	tr := dmxTrack("a", models.Event{ID: "t", Start: 1})
	err := Validate(&models.Timeline{Tracks: []models.Track{tr}})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestValidateDefaultsInterpMode(t *testing.T) {
	ev := fade("e", 0, 1, 0, 255)
	ev.Mode = ""
	tl := &models.Timeline{Tracks: []models.Track{dmxTrack("a", ev)}}
	if err := Validate(tl); err != nil {
		t.Fatal(err)
	}
	if tl.Tracks[0].Events[0].Mode != models.InterpHold {
		t.Fatalf("mode = %q, want hold default", tl.Tracks[0].Events[0].Mode)
	}
}

func TestApplyRejectedEditLeavesDocumentUntouched(t *testing.T) {
	d := NewDocument()
	if err := d.Replace(&models.Timeline{Tracks: []models.Track{
		dmxTrack("a", fade("e1", 0, 2, 0, 255)),
	}}); err != nil {
		t.Fatal(err)
	}
	before := d.Snapshot()

	// Overlapping insert must be rejected at the boundary.
	_, err := d.Apply(AddEvent{TrackID: "a", Event: fade("e2", 1, 2, 0, 0)})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if d.Snapshot() != before {
		t.Fatal("rejected edit mutated the document")
	}
}

func TestApplyCommitsCopyOnWrite(t *testing.T) {
	d := NewDocument()
	if err := d.Replace(&models.Timeline{Tracks: []models.Track{dmxTrack("a")}}); err != nil {
		t.Fatal(err)
	}
	before := d.Snapshot()

	after, err := d.Apply(AddEvent{TrackID: "a", Event: fade("e1", 0, 2, 0, 255)})
	if err != nil {
		t.Fatal(err)
	}
	if after == before {
		t.Fatal("commit should swap in a fresh copy")
	}
	if len(before.Tracks[0].Events) != 0 {
		t.Fatal("old snapshot was mutated")
	}
	if len(d.Snapshot().Tracks[0].Events) != 1 {
		t.Fatal("new snapshot missing the event")
	}
}

func TestMoveEventKeepsOrdering(t *testing.T) {
	d := NewDocument()
	if err := d.Replace(&models.Timeline{Tracks: []models.Track{
		dmxTrack("a", fade("e1", 0, 1, 0, 255), fade("e2", 2, 1, 255, 0)),
	}}); err != nil {
		t.Fatal(err)
	}
	after, err := d.Apply(MoveEvent{TrackID: "a", EventID: "e2", Start: 4})
	if err != nil {
		t.Fatal(err)
	}
	evs := after.Tracks[0].Events
	if evs[1].ID != "e2" || evs[1].Start != 4 {
		t.Fatalf("events = %+v", evs)
	}
}

func TestSetLoopPushesInvalidOut(t *testing.T) {
	d := NewDocument()
	if err := d.Replace(&models.Timeline{Tracks: []models.Track{
		dmxTrack("a", fade("e1", 0, 20, 0, 255)),
	}}); err != nil {
		t.Fatal(err)
	}
	after, err := d.Apply(SetLoop{Region: &models.LoopRegion{Start: 3, End: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if after.Loop.End != 8 {
		t.Fatalf("loop end = %v, want pushed to 8", after.Loop.End)
	}
}

func TestRemoveEventNotFound(t *testing.T) {
	d := NewDocument()
	if err := d.Replace(&models.Timeline{Tracks: []models.Track{dmxTrack("a")}}); err != nil {
		t.Fatal(err)
	}
	_, err := d.Apply(RemoveEvent{TrackID: "a", EventID: "ghost"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	tl := &models.Timeline{
		Name: "demo",
		Tracks: []models.Track{
			dmxTrack("a", fade("e1", 0, 2, 0, 255), trigger2("t1", 3)),
		},
		Loop: &models.LoopRegion{Start: 0, End: 5},
	}

	for _, name := range []string{"show.json", "show.json.gz", "show.mpk"} {
		data, err := Encode(name, tl)
		if err != nil {
			t.Fatalf("%s: encode: %v", name, err)
		}
		got, err := Decode(name, data)
		if err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if got.Name != "demo" || len(got.Tracks) != 1 || len(got.Tracks[0].Events) != 2 {
			t.Fatalf("%s: round trip lost data: %+v", name, got)
		}
		if got.Loop == nil || got.Loop.End != 5 {
			t.Fatalf("%s: loop lost", name)
		}
	}
}

// trigger2 builds a DMX-track-compatible trigger (no note payload needed,
// but the payload must exist for validation).
func trigger2(id string, start float64) models.Event {
	return models.Event{ID: id, Start: start, Trigger: &models.TriggerPayload{}}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	data, err := Encode("bad.json", &models.Timeline{Tracks: []models.Track{
		dmxTrack("a", fade("e1", 0, 2, 0, 255), fade("e2", 1, 2, 0, 0)),
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode("bad.json", data); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestIsShowFile(t *testing.T) {
	for _, name := range []string{"a.json", "a.json.gz", "a.mpk"} {
		if !IsShowFile(name) {
			t.Errorf("%s should be a show file", name)
		}
	}
	for _, name := range []string{"a.md", "a.gz.bak", "a.yaml"} {
		if IsShowFile(name) {
			t.Errorf("%s should not be a show file", name)
		}
	}
}
