package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/cueflow/internal/dmx"
	"github.com/starford/cueflow/internal/models"
	"github.com/starford/cueflow/internal/output"
	"github.com/starford/cueflow/internal/timeline"
	"github.com/starford/cueflow/internal/transport"
)

const (
	// MinRate and MaxRate bound the playback rate magnitude.
	MinRate = 0.1
	MaxRate = 4.0

	defaultTickInterval = 25 * time.Millisecond
	defaultSendTimeout  = 250 * time.Millisecond
	failureRingSize     = 64
)

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	TickInterval time.Duration
	SendTimeout  time.Duration
	FadeEnd      FadeEndPolicy
	SeekTriggers TriggerSeekPolicy
	SeekMode     transport.SeekMode
	Logger       *slog.Logger

	// OnState receives transport snapshots, throttled to at most one per
	// StateInterval. Nil disables state publishing.
	OnState       func(transport.Snapshot)
	StateInterval time.Duration

	// OnFailure receives adapter failures as they are recorded.
	OnFailure func(Failure)
}

// dmxLayer is the retained state of one DMX track between ticks.
type dmxLayer struct {
	universe int
	layer    dmx.Layer
}

// Engine owns the playback loop: it ticks the transport clock, resolves
// track values through the scheduler, merges DMX contributions into
// universe frames, and hands everything to the protocol dispatchers.
type Engine struct {
	doc   *timeline.Document
	clock *transport.Clock
	sched *Scheduler
	log   *slog.Logger
	opts  Options

	dispatchers map[models.Protocol]*dispatcher

	filters   atomic.Pointer[dmx.Engine]
	filtersOK atomic.Bool

	mu     sync.Mutex
	layers map[string]*dmxLayer

	failMu   sync.Mutex
	failures []Failure
	failHead int
}

// New builds an engine over the given adapters. Adapters for protocols the
// loaded timeline never uses are harmless.
func New(adapters []output.Adapter, opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StateInterval <= 0 {
		opts.StateInterval = 100 * time.Millisecond
	}

	e := &Engine{
		doc:         timeline.NewDocument(),
		clock:       transport.NewClock(0, opts.SeekMode),
		sched:       NewScheduler(opts.FadeEnd, opts.SeekTriggers),
		log:         opts.Logger.With("component", "engine"),
		opts:        opts,
		dispatchers: make(map[models.Protocol]*dispatcher),
		layers:      make(map[string]*dmxLayer),
	}
	e.filters.Store(dmx.NewEngine(nil))
	e.filtersOK.Store(true)

	for _, a := range adapters {
		e.dispatchers[a.Protocol()] = newDispatcher(a, opts.SendTimeout, opts.Logger, e.recordFailure)
	}
	return e
}

// Document exposes the editable timeline document.
func (e *Engine) Document() *timeline.Document { return e.doc }

// Run drives the playback loop until ctx is cancelled, then drains and
// closes the dispatchers.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range e.dispatchers {
		d := d
		g.Go(func() error {
			d.run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		e.loop(gctx)
		return nil
	})
	return g.Wait()
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	var lastState time.Time
	var lastSent transport.Snapshot

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now

			tl := e.doc.Snapshot()
			res := e.clock.Tick(elapsed)
			changes := e.sched.Tick(tl, res)
			e.route(changes)

			if e.opts.OnState != nil && now.Sub(lastState) >= e.opts.StateInterval {
				snap := e.clock.Snapshot()
				if snap != lastSent {
					e.opts.OnState(snap)
					lastSent = snap
					lastState = now
				}
			}
		}
	}
}

// route splits scheduler output by protocol. DMX track changes update the
// layer state and are replaced by merged per-universe frames; everything
// else goes to its dispatcher unchanged.
func (e *Engine) route(changes []models.OutputChange) {
	if len(changes) == 0 {
		return
	}
	byProto := make(map[models.Protocol][]models.OutputChange)
	touched := make(map[int]bool)

	e.mu.Lock()
	for _, c := range changes {
		if c.Protocol == models.ProtocolDMX && c.Trigger == nil {
			e.updateLayer(c)
			touched[c.Target.Universe] = true
			continue
		}
		byProto[c.Protocol] = append(byProto[c.Protocol], c)
	}
	frames := e.mergeUniverses(touched)
	e.mu.Unlock()

	byProto[models.ProtocolDMX] = append(byProto[models.ProtocolDMX], frames...)
	for proto, batch := range byProto {
		if d, ok := e.dispatchers[proto]; ok {
			d.enqueue(batch)
		} else if len(batch) > 0 {
			e.log.Debug("no adapter for protocol", "protocol", string(proto))
		}
	}
}

// updateLayer records a DMX track's latest contribution. Caller holds e.mu.
func (e *Engine) updateLayer(c models.OutputChange) {
	l, ok := e.layers[c.TrackID]
	if !ok {
		l = &dmxLayer{}
		e.layers[c.TrackID] = l
	}
	l.universe = c.Target.Universe
	l.layer = dmx.Layer{
		Channel:   c.Target.Channel,
		Values:    c.Values,
		Priority:  c.Priority,
		StartedAt: c.Time,
	}
}

// mergeUniverses builds one frame change per touched universe. Caller
// holds e.mu.
func (e *Engine) mergeUniverses(touched map[int]bool) []models.OutputChange {
	if len(touched) == 0 || !e.filtersOK.Load() {
		return nil
	}
	eng := e.filters.Load()
	now := time.Now()
	out := make([]models.OutputChange, 0, len(touched))
	for u := range touched {
		if !eng.UniverseAllowed(u) {
			continue
		}
		var layers []dmx.Layer
		for _, l := range e.layers {
			if l.universe == u {
				layers = append(layers, l.layer)
			}
		}
		frame := eng.Apply(layers)
		out = append(out, models.OutputChange{
			Protocol:  models.ProtocolDMX,
			Target:    models.Target{Universe: u},
			Frame:     &frame,
			Timestamp: now,
		})
	}
	return out
}

// LoadTimeline replaces the document and resets playback state to zero.
func (e *Engine) LoadTimeline(tl *models.Timeline) error {
	if err := e.doc.Replace(tl); err != nil {
		return err
	}
	e.clock.Pause()
	e.clock.SetDuration(tl.Duration())
	if err := e.clock.SetLoop(tl.Loop); err != nil {
		return err
	}
	if _, err := e.clock.Seek(0); err != nil {
		return err
	}
	e.sched.Reset()
	e.mu.Lock()
	e.layers = make(map[string]*dmxLayer)
	e.mu.Unlock()
	e.log.Info("timeline loaded", "name", tl.Name, "tracks", len(tl.Tracks), "duration", tl.Duration())
	return nil
}

// ApplyEdit runs a timeline edit and keeps the clock in sync with the
// resulting duration and loop region. State retained for tracks the edit
// removed is dropped so their last values stop merging into frames.
func (e *Engine) ApplyEdit(edit timeline.Edit) (*models.Timeline, error) {
	tl, err := e.doc.Apply(edit)
	if err != nil {
		return nil, err
	}
	e.clock.SetDuration(tl.Duration())
	if err := e.clock.SetLoop(tl.Loop); err != nil {
		return nil, err
	}

	alive := make(map[string]struct{}, len(tl.Tracks))
	for i := range tl.Tracks {
		alive[tl.Tracks[i].ID] = struct{}{}
	}
	e.sched.Prune(alive)
	e.mu.Lock()
	for id := range e.layers {
		if _, ok := alive[id]; !ok {
			delete(e.layers, id)
		}
	}
	e.mu.Unlock()
	return tl, nil
}

// Play starts or resumes playback.
func (e *Engine) Play() { e.clock.Start() }

// Pause halts playback in place.
func (e *Engine) Pause() { e.clock.Pause() }

// Seek moves the playhead and returns the effective position.
func (e *Engine) Seek(t float64) (float64, error) { return e.clock.Seek(t) }

// SetRate sets the playback rate, clamping its magnitude into the
// supported range. The sign selects direction.
func (e *Engine) SetRate(r float64) float64 {
	if r != 0 {
		mag := math.Min(math.Max(math.Abs(r), MinRate), MaxRate)
		r = math.Copysign(mag, r)
	}
	e.clock.SetRate(r)
	return r
}

// SetLoop installs or clears the loop region on both the clock and the
// document.
func (e *Engine) SetLoop(region *models.LoopRegion) error {
	if err := e.clock.SetLoop(region); err != nil {
		return err
	}
	_, err := e.doc.Apply(timeline.SetLoop{Region: region})
	return err
}

// SetLoopIn moves the loop start, creating the region when absent. The
// other bound is pushed when needed to keep the region valid.
func (e *Engine) SetLoopIn(t float64) (*models.LoopRegion, error) {
	region, err := e.clock.SetLoopIn(t)
	if err != nil {
		return nil, err
	}
	if _, err := e.doc.Apply(timeline.SetLoop{Region: region}); err != nil {
		return nil, err
	}
	return region, nil
}

// SetLoopOut moves the loop end, creating the region when absent.
func (e *Engine) SetLoopOut(t float64) (*models.LoopRegion, error) {
	region, err := e.clock.SetLoopOut(t)
	if err != nil {
		return nil, err
	}
	if _, err := e.doc.Apply(timeline.SetLoop{Region: region}); err != nil {
		return nil, err
	}
	return region, nil
}

// Snapshot returns the current transport state.
func (e *Engine) Snapshot() transport.Snapshot { return e.clock.Snapshot() }

// LastValues returns the most recent resolved value per track.
func (e *Engine) LastValues() map[string][]float64 { return e.sched.LastValues() }

// ReloadFilters swaps in a new filter configuration from path. On error
// the previous configuration is kept but DMX frame emission is disabled
// until a valid configuration loads; MIDI and OSC are unaffected.
func (e *Engine) ReloadFilters(path string) error {
	cfg, err := dmx.LoadConfig(path)
	if err != nil {
		e.filtersOK.Store(false)
		e.log.Warn("dmx output disabled until filter config is corrected", "path", path)
		return err
	}
	e.filters.Store(dmx.NewEngine(cfg))
	e.filtersOK.Store(true)
	e.log.Info("filter configuration reloaded", "path", path, "groups", len(cfg.Groups))
	return nil
}

// SetFilters installs an already-built filter configuration.
func (e *Engine) SetFilters(cfg *dmx.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.filters.Store(dmx.NewEngine(cfg))
	e.filtersOK.Store(true)
	return nil
}

// Filters returns the active filter configuration.
func (e *Engine) Filters() *dmx.Config { return e.filters.Load().Config() }

// FiltersOK reports whether DMX output is enabled. It is false after a
// filter configuration failed to load, until a good one replaces it.
func (e *Engine) FiltersOK() bool { return e.filtersOK.Load() }

func (e *Engine) recordFailure(f Failure) {
	e.failMu.Lock()
	if len(e.failures) < failureRingSize {
		e.failures = append(e.failures, f)
	} else {
		e.failures[e.failHead] = f
		e.failHead = (e.failHead + 1) % failureRingSize
	}
	e.failMu.Unlock()

	if e.opts.OnFailure != nil {
		e.opts.OnFailure(f)
	}
}

// RecentFailures returns the retained adapter failures, oldest first.
func (e *Engine) RecentFailures() []Failure {
	e.failMu.Lock()
	defer e.failMu.Unlock()
	out := make([]Failure, 0, len(e.failures))
	out = append(out, e.failures[e.failHead:]...)
	out = append(out, e.failures[:e.failHead]...)
	return out
}
