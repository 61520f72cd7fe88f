package dmx

import "math"

// Layer is one track's raw contribution to a universe for a tick.
type Layer struct {
	Channel   int       // 1-based first channel
	Values    []float64 // one per channel, raw 0..255
	Priority  int       // LTP tie-break, higher wins
	StartedAt float64   // start time of the contributing event
}

// Engine applies merge policy and filter chains. It holds configuration
// only; Apply is a pure function of its inputs, so identical layers and
// identical configuration always yield identical frames.
type Engine struct {
	cfg     *Config
	byChan  [513]*Group // channel -> owning group, nil = default
	chanOK  [513]bool   // channel filter membership
	univOK  map[int]bool
}

// NewEngine builds an engine from a validated configuration.
func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	e := &Engine{cfg: cfg}
	for i := range cfg.Groups {
		g := &cfg.Groups[i]
		for _, ch := range g.Channels {
			e.byChan[ch] = g
		}
	}
	for ch := 1; ch <= 512; ch++ {
		e.chanOK[ch] = !cfg.ChannelFilterEnabled
	}
	for _, ch := range cfg.ChannelFilterList {
		if cfg.ChannelFilterEnabled {
			e.chanOK[ch] = true
		}
	}
	if cfg.UniverseFilterEnabled {
		e.univOK = make(map[int]bool, len(cfg.UniverseFilterList))
		for _, u := range cfg.UniverseFilterList {
			e.univOK[u] = true
		}
	}
	return e
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *Config { return e.cfg }

// UniverseAllowed reports whether frames for the given universe may be sent.
func (e *Engine) UniverseAllowed(u int) bool {
	if e.univOK == nil {
		return true
	}
	return e.univOK[u]
}

// Apply merges the raw layers into a final 512-channel frame. Multiple
// writes to one channel resolve per the channel group's merge policy (HTP
// when ungrouped). The group's stages then run in configured order, and a
// clamp to the valid range always runs last.
func (e *Engine) Apply(layers []Layer) [512]byte {
	var merged [513]float64
	var written [513]bool
	var wonAt [513]float64 // StartedAt of the current LTP winner
	var wonPri [513]int

	for _, l := range layers {
		for i, v := range l.Values {
			ch := l.Channel + i
			if ch < 1 || ch > 512 {
				continue
			}
			policy := MergeHTP
			if g := e.byChan[ch]; g != nil {
				policy = g.Merge
			}
			if !written[ch] {
				merged[ch], written[ch] = v, true
				wonAt[ch], wonPri[ch] = l.StartedAt, l.Priority
				continue
			}
			switch policy {
			case MergeLTP:
				if l.StartedAt > wonAt[ch] || (l.StartedAt == wonAt[ch] && l.Priority > wonPri[ch]) {
					merged[ch] = v
					wonAt[ch], wonPri[ch] = l.StartedAt, l.Priority
				}
			default: // HTP
				if v > merged[ch] {
					merged[ch] = v
				}
			}
		}
	}

	var frame [512]byte
	for ch := 1; ch <= 512; ch++ {
		if !written[ch] || !e.chanOK[ch] {
			continue
		}
		v := merged[ch]
		lo, hi := 0.0, 255.0
		if g := e.byChan[ch]; g != nil {
			for _, st := range g.Stages {
				switch st.Type {
				case StageScale:
					v *= st.Amount
				case StageInvert:
					v = 255 - v
				case StageOffset:
					v += st.Amount
				case StageCurve:
					v = 255 * math.Pow(clampUnit(v/255), st.Amount)
				case StageClamp:
					lo, hi = st.Min, st.Max
				}
			}
		}
		// Clamp runs last no matter where it sits in the chain.
		if v < lo {
			v = lo
		}
		if v > hi {
			v = hi
		}
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		frame[ch-1] = byte(math.Round(v))
	}
	return frame
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
