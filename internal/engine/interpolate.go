package engine

import "github.com/starford/cueflow/internal/models"

// interpolate resolves a nonzero-duration event's value vector at time t,
// which must lie within [ev.Start, ev.End()]. Linear interpolation is exact
// at both endpoints; the eased curve is a monotonic smoothstep, so it is
// also exact at the endpoints and never overshoots.
func interpolate(ev *models.Event, t float64) []float64 {
	switch ev.Mode {
	case models.InterpLinear:
		return lerp(ev, fraction(ev, t))
	case models.InterpEased:
		f := fraction(ev, t)
		return lerp(ev, f*f*(3-2*f))
	default: // hold
		if t >= ev.End() {
			return append([]float64(nil), ev.To...)
		}
		return append([]float64(nil), ev.From...)
	}
}

func fraction(ev *models.Event, t float64) float64 {
	f := (t - ev.Start) / ev.Duration
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func lerp(ev *models.Event, f float64) []float64 {
	out := make([]float64, len(ev.From))
	for i := range ev.From {
		out[i] = ev.From[i] + (ev.To[i]-ev.From[i])*f
	}
	return out
}

func equalValues(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
