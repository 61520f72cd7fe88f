package transport

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/starford/cueflow/internal/apperr"
	"github.com/starford/cueflow/internal/models"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTickAdvancesByRate(t *testing.T) {
	c := NewClock(10, SeekClamp)
	c.Start()
	c.SetRate(2)

	res := c.Tick(500 * time.Millisecond)
	if !approx(res.Now, 1.0) {
		t.Fatalf("now = %v, want 1.0", res.Now)
	}
	if len(res.Segments) != 1 || !approx(res.Segments[0].From, 0) || !approx(res.Segments[0].To, 1.0) {
		t.Fatalf("segments = %+v", res.Segments)
	}
}

func TestTickPausedDoesNotAdvance(t *testing.T) {
	c := NewClock(10, SeekClamp)
	res := c.Tick(time.Second)
	if res.Now != 0 || len(res.Segments) != 0 {
		t.Fatalf("paused clock moved: %+v", res)
	}

	c.Start()
	c.SetRate(0)
	res = c.Tick(time.Second)
	if res.Now != 0 {
		t.Fatalf("rate-0 clock moved to %v", res.Now)
	}
}

func TestTickPausesAtEnd(t *testing.T) {
	c := NewClock(2, SeekClamp)
	c.Start()
	res := c.Tick(3 * time.Second)
	if !approx(res.Now, 2) {
		t.Fatalf("now = %v, want clamped to 2", res.Now)
	}
	if c.Snapshot().Playing {
		t.Fatal("clock should pause at the end of a non-looping timeline")
	}
}

func TestSeekClampAndError(t *testing.T) {
	c := NewClock(5, SeekClamp)
	now, err := c.Seek(9)
	if err != nil || !approx(now, 5) {
		t.Fatalf("clamp seek: now=%v err=%v", now, err)
	}
	now, err = c.Seek(-1)
	if err != nil || now != 0 {
		t.Fatalf("clamp negative seek: now=%v err=%v", now, err)
	}

	ce := NewClock(5, SeekError)
	if _, err := ce.Seek(9); !errors.Is(err, apperr.ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	if _, err := ce.Seek(3); err != nil {
		t.Fatalf("in-bounds seek failed: %v", err)
	}
}

func TestSeekBumpsGeneration(t *testing.T) {
	c := NewClock(5, SeekClamp)
	g0 := c.Snapshot().Gen
	if _, err := c.Seek(1); err != nil {
		t.Fatal(err)
	}
	if c.Snapshot().Gen == g0 {
		t.Fatal("seek did not change discontinuity generation")
	}
}

func TestSeekWrapsIntoLoopRegion(t *testing.T) {
	c := NewClock(10, SeekClamp)
	if err := c.SetLoop(&models.LoopRegion{Start: 2, End: 6}); err != nil {
		t.Fatal(err)
	}
	now, err := c.Seek(7)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(now, 3) {
		t.Fatalf("seek outside loop wrapped to %v, want 3", now)
	}
}

func TestLoopWrapForward(t *testing.T) {
	c := NewClock(10, SeekClamp)
	if err := c.SetLoop(&models.LoopRegion{Start: 0, End: 5}); err != nil {
		t.Fatal(err)
	}
	c.Start()
	if _, err := c.Seek(4.5); err != nil {
		t.Fatal(err)
	}
	g0 := c.Snapshot().Gen

	res := c.Tick(time.Second)
	if !res.Wrapped {
		t.Fatal("expected wrap")
	}
	if !approx(res.Now, 0.5) {
		t.Fatalf("now = %v, want 0.5", res.Now)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("segments = %+v, want 2", res.Segments)
	}
	if !approx(res.Segments[0].From, 4.5) || !approx(res.Segments[0].To, 5) {
		t.Errorf("first segment = %+v", res.Segments[0])
	}
	if !approx(res.Segments[1].From, 0) || !approx(res.Segments[1].To, 0.5) {
		t.Errorf("second segment = %+v", res.Segments[1])
	}
	if res.Gen == g0 {
		t.Error("loop wrap should bump the discontinuity generation")
	}
}

func TestLoopWrapExcessModulo(t *testing.T) {
	c := NewClock(10, SeekClamp)
	if err := c.SetLoop(&models.LoopRegion{Start: 0, End: 2}); err != nil {
		t.Fatal(err)
	}
	c.Start()
	if _, err := c.Seek(1.5); err != nil {
		t.Fatal(err)
	}

	// 5s of advance from 1.5 in a 2s loop: excess 4.5 mod 2 = 0.5.
	res := c.Tick(5 * time.Second)
	if !approx(res.Now, 0.5) {
		t.Fatalf("now = %v, want 0.5", res.Now)
	}
}

func TestLoopWrapReverse(t *testing.T) {
	c := NewClock(10, SeekClamp)
	if err := c.SetLoop(&models.LoopRegion{Start: 2, End: 6}); err != nil {
		t.Fatal(err)
	}
	c.Start()
	c.SetRate(-1)
	if _, err := c.Seek(2.5); err != nil {
		t.Fatal(err)
	}

	res := c.Tick(time.Second)
	if !res.Wrapped {
		t.Fatal("expected reverse wrap")
	}
	if !approx(res.Now, 5.5) {
		t.Fatalf("now = %v, want 5.5", res.Now)
	}
	if len(res.Segments) != 2 || !res.Segments[0].Reverse() {
		t.Fatalf("segments = %+v", res.Segments)
	}
}

func TestSetLoopRejectsEmptyRegion(t *testing.T) {
	c := NewClock(10, SeekClamp)
	err := c.SetLoop(&models.LoopRegion{Start: 3, End: 3})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSetDurationClampsPosition(t *testing.T) {
	c := NewClock(10, SeekClamp)
	if _, err := c.Seek(8); err != nil {
		t.Fatal(err)
	}
	c.SetDuration(4)
	if snap := c.Snapshot(); !approx(snap.Now, 4) {
		t.Fatalf("now = %v, want 4", snap.Now)
	}
}

func TestSetLoopInCreatesRegionToEnd(t *testing.T) {
	c := NewClock(10, SeekClamp)
	region, err := c.SetLoopIn(3)
	if err != nil {
		t.Fatalf("SetLoopIn: %v", err)
	}
	if !approx(region.Start, 3) || !approx(region.End, 10) {
		t.Fatalf("region = %+v, want [3, 10]", region)
	}
}

func TestSetLoopOutCreatesRegionFromZero(t *testing.T) {
	c := NewClock(10, SeekClamp)
	region, err := c.SetLoopOut(6)
	if err != nil {
		t.Fatalf("SetLoopOut: %v", err)
	}
	if !approx(region.Start, 0) || !approx(region.End, 6) {
		t.Fatalf("region = %+v, want [0, 6]", region)
	}
}

func TestSetLoopInPushesEarlierEnd(t *testing.T) {
	c := NewClock(10, SeekClamp)
	if err := c.SetLoop(&models.LoopRegion{Start: 1, End: 4}); err != nil {
		t.Fatal(err)
	}

	// Moving the start past the end pushes the end to the timeline end.
	region, err := c.SetLoopIn(7)
	if err != nil {
		t.Fatalf("SetLoopIn: %v", err)
	}
	if !approx(region.Start, 7) || !approx(region.End, 10) {
		t.Fatalf("region = %+v, want [7, 10]", region)
	}
}

func TestSetLoopOutPushesLaterStart(t *testing.T) {
	c := NewClock(10, SeekClamp)
	if err := c.SetLoop(&models.LoopRegion{Start: 5, End: 9}); err != nil {
		t.Fatal(err)
	}

	region, err := c.SetLoopOut(2)
	if err != nil {
		t.Fatalf("SetLoopOut: %v", err)
	}
	if !approx(region.Start, 0) || !approx(region.End, 2) {
		t.Fatalf("region = %+v, want [0, 2]", region)
	}
}

func TestSetLoopBoundsOutOfRange(t *testing.T) {
	c := NewClock(10, SeekClamp)
	if _, err := c.SetLoopIn(10); !errors.Is(err, apperr.ErrOutOfRange) {
		t.Errorf("SetLoopIn(duration) err = %v, want ErrOutOfRange", err)
	}
	if _, err := c.SetLoopOut(0); !errors.Is(err, apperr.ErrOutOfRange) {
		t.Errorf("SetLoopOut(0) err = %v, want ErrOutOfRange", err)
	}
	if _, err := c.SetLoopOut(10.5); !errors.Is(err, apperr.ErrOutOfRange) {
		t.Errorf("SetLoopOut(>duration) err = %v, want ErrOutOfRange", err)
	}
}
