package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/cueflow/internal/apperr"
	"github.com/starford/cueflow/internal/dmx"
	"github.com/starford/cueflow/internal/models"
	"github.com/starford/cueflow/internal/timeline"
)

func dmxChange(trackID string, universe, channel int, startedAt float64, vals ...float64) models.OutputChange {
	return models.OutputChange{
		TrackID:  trackID,
		Protocol: models.ProtocolDMX,
		Target:   models.Target{Universe: universe, Channel: channel, Width: len(vals)},
		Values:   vals,
		Time:     startedAt,
	}
}

func TestEngineMergesOverlappingDMXTracks(t *testing.T) {
	e := New(nil, Options{})

	// Two tracks write channel 1 of universe 0: a fade caught mid-flight at
	// 191.25 and a steady level of 100. Highest takes precedence.
	e.mu.Lock()
	e.updateLayer(dmxChange("fade", 0, 1, 0, 191.25))
	e.updateLayer(dmxChange("steady", 0, 1, 0, 100))
	frames := e.mergeUniverses(map[int]bool{0: true})
	e.mu.Unlock()

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Frame == nil {
		t.Fatal("frame change missing payload")
	}
	if got := frames[0].Frame[0]; got != 191 {
		t.Fatalf("merged channel 1 = %d, want 191", got)
	}
	if key := frames[0].CoalesceKey(); key != "dmx/universe/0" {
		t.Fatalf("frame coalesce key = %q", key)
	}
}

func TestEngineMergesPerUniverseIndependently(t *testing.T) {
	e := New(nil, Options{})

	e.mu.Lock()
	e.updateLayer(dmxChange("a", 0, 1, 0, 10))
	e.updateLayer(dmxChange("b", 1, 1, 0, 20))
	frames := e.mergeUniverses(map[int]bool{0: true, 1: true})
	e.mu.Unlock()

	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	byUniverse := map[int]byte{}
	for _, f := range frames {
		byUniverse[f.Target.Universe] = f.Frame[0]
	}
	if byUniverse[0] != 10 || byUniverse[1] != 20 {
		t.Fatalf("per-universe channel 1 = %v, want {0:10 1:20}", byUniverse)
	}
}

func TestEngineUniverseFilterBlocksFrames(t *testing.T) {
	e := New(nil, Options{})
	cfg := dmx.DefaultConfig()
	cfg.UniverseFilterEnabled = true
	cfg.UniverseFilterList = []int{2}
	if err := e.SetFilters(cfg); err != nil {
		t.Fatalf("SetFilters: %v", err)
	}

	e.mu.Lock()
	e.updateLayer(dmxChange("a", 0, 1, 0, 10))
	e.updateLayer(dmxChange("b", 2, 1, 0, 20))
	frames := e.mergeUniverses(map[int]bool{0: true, 2: true})
	e.mu.Unlock()

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want only the allowed universe", len(frames))
	}
	if frames[0].Target.Universe != 2 {
		t.Fatalf("surviving universe = %d, want 2", frames[0].Target.Universe)
	}
}

func TestEngineSetRateClampsMagnitude(t *testing.T) {
	e := New(nil, Options{})
	cases := []struct{ in, want float64 }{
		{0.05, 0.1},
		{1.0, 1.0},
		{10, 4.0},
		{-10, -4.0},
		{-0.01, -0.1},
		{0, 0},
	}
	for _, c := range cases {
		if got := e.SetRate(c.in); got != c.want {
			t.Errorf("SetRate(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestEngineLoadTimelineResetsPlayback(t *testing.T) {
	e := New(nil, Options{})
	tl := &models.Timeline{
		Name: "show",
		Loop: &models.LoopRegion{Start: 1, End: 4},
		Tracks: []models.Track{{
			ID:       "t1",
			Protocol: models.ProtocolDMX,
			Target:   models.Target{Universe: 0, Channel: 1, Width: 1},
			Events:   []models.Event{{ID: "e1", Start: 0, Duration: 6, From: []float64{0}, To: []float64{255}}},
		}},
	}
	if err := e.LoadTimeline(tl); err != nil {
		t.Fatalf("LoadTimeline: %v", err)
	}
	snap := e.Snapshot()
	if snap.Playing {
		t.Error("loaded timeline should start paused")
	}
	if snap.Duration != 6 {
		t.Errorf("duration = %v, want 6", snap.Duration)
	}
	if snap.Loop == nil || snap.Loop.Start != 1 || snap.Loop.End != 4 {
		t.Errorf("loop = %+v, want [1,4]", snap.Loop)
	}
	// Position resets even though the loop region starts later; Seek(0)
	// wraps into the region.
	if !tl.Loop.Contains(snap.Now) && snap.Now != 0 {
		t.Errorf("position after load = %v", snap.Now)
	}
}

func TestEngineLoadTimelineRejectsInvalid(t *testing.T) {
	e := New(nil, Options{})
	bad := &models.Timeline{Tracks: []models.Track{{ID: "t1", Protocol: "bogus"}}}
	if err := e.LoadTimeline(bad); err == nil {
		t.Fatal("invalid timeline accepted")
	}
}

func TestEngineFailureRingKeepsNewest(t *testing.T) {
	e := New(nil, Options{})
	for i := 0; i < failureRingSize+10; i++ {
		e.recordFailure(Failure{Key: "k", Timestamp: time.Unix(int64(i), 0)})
	}
	got := e.RecentFailures()
	if len(got) != failureRingSize {
		t.Fatalf("ring holds %d failures, want %d", len(got), failureRingSize)
	}
	if got[0].Timestamp.Unix() != 10 {
		t.Errorf("oldest retained = %d, want 10", got[0].Timestamp.Unix())
	}
	if got[len(got)-1].Timestamp.Unix() != int64(failureRingSize+9) {
		t.Errorf("newest retained = %d, want %d", got[len(got)-1].Timestamp.Unix(), failureRingSize+9)
	}
}

func TestEngineBadFilterConfigDisablesDMX(t *testing.T) {
	e := New(nil, Options{})
	path := filepath.Join(t.TempDir(), "dmx_filter_config.json")

	_ = os.WriteFile(path, []byte(`{"groups": [{"name": "g", "merge": "nope", "channels": [1]}]}`), 0o644)
	err := e.ReloadFilters(path)
	if err == nil {
		t.Fatal("invalid filter config accepted")
	}
	if !errors.Is(err, apperr.ErrConfigLoad) {
		t.Fatalf("err = %v, want ErrConfigLoad", err)
	}
	if e.FiltersOK() {
		t.Fatal("dmx should be disabled after a failed config load")
	}

	e.mu.Lock()
	e.updateLayer(dmxChange("a", 0, 1, 0, 10))
	frames := e.mergeUniverses(map[int]bool{0: true})
	e.mu.Unlock()
	if len(frames) != 0 {
		t.Fatalf("disabled dmx emitted %d frames, want 0", len(frames))
	}

	// A corrected config re-enables frame emission.
	_ = os.WriteFile(path, []byte(`{"groups": []}`), 0o644)
	if err := e.ReloadFilters(path); err != nil {
		t.Fatalf("valid reload: %v", err)
	}
	if !e.FiltersOK() {
		t.Fatal("dmx should re-enable after a good config load")
	}
	e.mu.Lock()
	frames = e.mergeUniverses(map[int]bool{0: true})
	e.mu.Unlock()
	if len(frames) != 1 {
		t.Fatalf("re-enabled dmx emitted %d frames, want 1", len(frames))
	}
}

func TestEngineRemoveTrackDropsRetainedState(t *testing.T) {
	e := New(nil, Options{})
	tl := &models.Timeline{
		Name: "show",
		Tracks: []models.Track{
			{
				ID:       "a",
				Protocol: models.ProtocolDMX,
				Target:   models.Target{Universe: 0, Channel: 1, Width: 1},
				Events:   []models.Event{{ID: "e1", Start: 0, Duration: 2, Mode: models.InterpLinear, From: []float64{0}, To: []float64{200}}},
			},
			{
				ID:       "b",
				Protocol: models.ProtocolDMX,
				Target:   models.Target{Universe: 0, Channel: 1, Width: 1},
				Events:   []models.Event{{ID: "e1", Start: 0, Duration: 2, Mode: models.InterpHold, From: []float64{50}, To: []float64{50}}},
			},
		},
	}
	if err := e.LoadTimeline(tl); err != nil {
		t.Fatalf("LoadTimeline: %v", err)
	}
	e.sched.Tick(e.doc.Snapshot(), tick(0, false, seg(0, 2.0)))
	e.mu.Lock()
	e.updateLayer(dmxChange("a", 0, 1, 0, 200))
	e.updateLayer(dmxChange("b", 0, 1, 0, 50))
	e.mu.Unlock()

	if _, err := e.ApplyEdit(timeline.RemoveTrack{TrackID: "a"}); err != nil {
		t.Fatalf("ApplyEdit: %v", err)
	}

	e.mu.Lock()
	_, retained := e.layers["a"]
	frames := e.mergeUniverses(map[int]bool{0: true})
	e.mu.Unlock()
	if retained {
		t.Error("removed track still has a retained dmx layer")
	}
	if len(frames) != 1 || frames[0].Frame[0] != 50 {
		t.Fatalf("merged channel 1 after removal = %+v, want 50 from the surviving track", frames)
	}
	if _, ok := e.LastValues()["a"]; ok {
		t.Error("removed track still reported in last values")
	}
}

func TestEngineApplyEditSyncsClock(t *testing.T) {
	e := New(nil, Options{})
	tl := &models.Timeline{
		Name: "show",
		Tracks: []models.Track{{
			ID:       "t1",
			Protocol: models.ProtocolDMX,
			Target:   models.Target{Universe: 0, Channel: 1, Width: 1},
			Events:   []models.Event{{ID: "e1", Start: 0, Duration: 2, From: []float64{0}, To: []float64{255}}},
		}},
	}
	if err := e.LoadTimeline(tl); err != nil {
		t.Fatalf("LoadTimeline: %v", err)
	}
	if d := e.Snapshot().Duration; d != 2 {
		t.Fatalf("duration = %v, want 2", d)
	}

	// Extending the last event grows the clock's duration with the document.
	dur := 5.0
	if _, err := e.ApplyEdit(timeline.MoveEvent{TrackID: "t1", EventID: "e1", Start: 0, Duration: &dur}); err != nil {
		t.Fatalf("ApplyEdit: %v", err)
	}
	if d := e.Snapshot().Duration; d != 5 {
		t.Fatalf("duration after edit = %v, want 5", d)
	}
}
