package output

import (
	"testing"
	"time"

	"github.com/starford/cueflow/internal/models"
	"github.com/starford/cueflow/internal/timeline"
)

func TestParseArtDMX(t *testing.T) {
	payload := make([]byte, 512)
	payload[0] = 200
	pkt := buildArtDMX(1, 3, payload)

	universe, got, ok := parseArtDMX(pkt)
	if !ok {
		t.Fatal("valid packet rejected")
	}
	if universe != 3 {
		t.Errorf("universe = %d, want 3", universe)
	}
	if len(got) != 512 || got[0] != 200 {
		t.Errorf("payload = len %d, [0] = %d", len(got), got[0])
	}

	if _, _, ok := parseArtDMX([]byte("not art-net")); ok {
		t.Error("garbage accepted")
	}
	bad := buildArtDMX(1, 0, payload)
	bad[9] = 0x51 // wrong opcode
	if _, _, ok := parseArtDMX(bad); ok {
		t.Error("wrong opcode accepted")
	}
}

func testRecorder(allowed func(int) bool) *Recorder {
	r := &Recorder{
		allowed: allowed,
		frames:  make(map[int][512]byte),
		seen:    make(map[int]bool),
		started: time.Now(),
	}
	if r.allowed == nil {
		r.allowed = func(int) bool { return true }
	}
	return r
}

func framePacket(values map[int]byte) []byte {
	payload := make([]byte, 512)
	for ch, v := range values {
		payload[ch-1] = v
	}
	return buildArtDMX(1, 0, payload)
}

func TestRecorderCapturesTransitions(t *testing.T) {
	r := testRecorder(nil)
	start := r.started

	r.capture(framePacket(map[int]byte{1: 100}), start)
	r.capture(framePacket(map[int]byte{1: 100}), start.Add(time.Second))          // no change
	r.capture(framePacket(map[int]byte{1: 200, 2: 50}), start.Add(2*time.Second)) // two transitions

	tl := r.Timeline("capture")
	if len(tl.Tracks) != 2 {
		t.Fatalf("tracks = %d, want 2", len(tl.Tracks))
	}

	ch1 := tl.Tracks[0]
	if ch1.ID != "u0-ch1" || ch1.Target.Channel != 1 {
		t.Fatalf("first track = %+v", ch1)
	}
	if len(ch1.Events) != 2 {
		t.Fatalf("ch1 events = %d, want 2", len(ch1.Events))
	}
	if ch1.Events[0].Start != 0 || ch1.Events[0].From[0] != 100 {
		t.Errorf("first event = %+v", ch1.Events[0])
	}
	// The first event holds until the transition at t=2.
	if ch1.Events[0].Duration != 2 {
		t.Errorf("first event duration = %v, want 2", ch1.Events[0].Duration)
	}
	if ch1.Events[1].Start != 2 || ch1.Events[1].From[0] != 200 {
		t.Errorf("second event = %+v", ch1.Events[1])
	}

	ch2 := tl.Tracks[1]
	if len(ch2.Events) != 1 || ch2.Events[0].Start != 2 || ch2.Events[0].From[0] != 50 {
		t.Errorf("ch2 events = %+v", ch2.Events)
	}
}

func TestRecorderTimelineValidates(t *testing.T) {
	r := testRecorder(nil)
	start := r.started
	r.capture(framePacket(map[int]byte{1: 10, 5: 20}), start)
	r.capture(framePacket(map[int]byte{1: 30, 5: 20}), start.Add(500*time.Millisecond))
	r.capture(framePacket(map[int]byte{1: 0, 5: 40}), start.Add(time.Second))

	tl := r.Timeline("capture")
	if err := timeline.Validate(tl); err != nil {
		t.Fatalf("recorded timeline invalid: %v", err)
	}
	if tl.Duration() != 1.001 {
		t.Errorf("duration = %v", tl.Duration())
	}
}

func TestRecorderUniverseFilter(t *testing.T) {
	r := testRecorder(func(u int) bool { return u == 1 })
	payload := make([]byte, 512)
	payload[0] = 99

	r.capture(buildArtDMX(1, 0, payload), r.started) // universe 0: filtered
	r.capture(buildArtDMX(1, 1, payload), r.started)

	tl := r.Timeline("capture")
	if len(tl.Tracks) != 1 || tl.Tracks[0].Target.Universe != 1 {
		t.Fatalf("tracks = %+v", tl.Tracks)
	}
}

func TestRecorderFirstFrameSkipsDarkChannels(t *testing.T) {
	r := testRecorder(nil)
	r.capture(framePacket(map[int]byte{3: 255}), r.started)

	tl := r.Timeline("capture")
	if len(tl.Tracks) != 1 {
		t.Fatalf("tracks = %d, want 1 (dark channels skipped)", len(tl.Tracks))
	}
	if tl.Tracks[0].Target.Channel != 3 {
		t.Errorf("channel = %d, want 3", tl.Tracks[0].Target.Channel)
	}
	if tl.Tracks[0].Protocol != models.ProtocolDMX {
		t.Errorf("protocol = %q", tl.Tracks[0].Protocol)
	}
}
