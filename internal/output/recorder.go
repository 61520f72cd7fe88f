package output

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/starford/cueflow/internal/models"
)

// capturedChange is one channel transition seen on the wire, with a
// timestamp relative to the start of the recording.
type capturedChange struct {
	at       float64
	universe int
	channel  int // 1-based
	value    byte
}

// Recorder captures ArtDMX traffic from the network into timeline tracks.
// It diffs incoming frames against the last frame per universe and keeps
// one change per channel transition.
type Recorder struct {
	conn    *net.UDPConn
	allowed func(universe int) bool

	mu      sync.Mutex
	started time.Time
	stopped float64
	frames  map[int][512]byte
	seen    map[int]bool
	changes []capturedChange
}

// NewRecorder binds a UDP listener (empty listen means ":6454"). allowed
// restricts captured universes; nil captures everything.
func NewRecorder(listen string, allowed func(universe int) bool) (*Recorder, error) {
	if listen == "" {
		listen = fmt.Sprintf(":%d", artnetPort)
	}
	addr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("recorder: resolve %s: %w", listen, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("recorder: listen %s: %w", listen, err)
	}
	if allowed == nil {
		allowed = func(int) bool { return true }
	}
	return &Recorder{
		conn:    conn,
		allowed: allowed,
		frames:  make(map[int][512]byte),
		seen:    make(map[int]bool),
	}, nil
}

// Run reads packets until ctx is cancelled. The first call stamps the
// recording start; timestamps are relative to it.
func (r *Recorder) Run(ctx context.Context) error {
	r.mu.Lock()
	r.started = time.Now()
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			r.mu.Lock()
			r.stopped = time.Since(r.started).Seconds()
			r.mu.Unlock()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("recorder: read: %w", err)
		}
		r.capture(buf[:n], time.Now())
	}
}

// capture parses one packet and records the channels that changed.
func (r *Recorder) capture(pkt []byte, now time.Time) {
	universe, payload, ok := parseArtDMX(pkt)
	if !ok || !r.allowed(universe) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	at := now.Sub(r.started).Seconds()
	last := r.frames[universe]
	first := !r.seen[universe]
	for i := 0; i < len(payload) && i < 512; i++ {
		// The first frame establishes levels: record every lit channel.
		// Later frames record transitions only.
		if first && payload[i] == 0 {
			continue
		}
		if !first && payload[i] == last[i] {
			continue
		}
		r.changes = append(r.changes, capturedChange{
			at:       at,
			universe: universe,
			channel:  i + 1,
			value:    payload[i],
		})
		last[i] = payload[i]
	}
	r.frames[universe] = last
	r.seen[universe] = true
	if at > r.stopped {
		r.stopped = at
	}
}

// Timeline assembles the capture into a timeline: one single-channel DMX
// track per channel that moved, with hold events spanning the gaps
// between transitions.
func (r *Recorder) Timeline(name string) *models.Timeline {
	r.mu.Lock()
	defer r.mu.Unlock()

	type key struct{ universe, channel int }
	byChannel := make(map[key][]capturedChange)
	var keys []key
	for _, c := range r.changes {
		k := key{c.universe, c.channel}
		if _, ok := byChannel[k]; !ok {
			keys = append(keys, k)
		}
		byChannel[k] = append(byChannel[k], c)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].universe != keys[j].universe {
			return keys[i].universe < keys[j].universe
		}
		return keys[i].channel < keys[j].channel
	})

	end := r.stopped
	tl := &models.Timeline{Name: name}
	for _, k := range keys {
		changes := byChannel[k]
		track := models.Track{
			ID:       fmt.Sprintf("u%d-ch%d", k.universe, k.channel),
			Name:     fmt.Sprintf("universe %d channel %d", k.universe, k.channel),
			Protocol: models.ProtocolDMX,
			Target:   models.Target{Universe: k.universe, Channel: k.channel, Width: 1},
		}
		for i, c := range changes {
			evEnd := end
			if i+1 < len(changes) {
				evEnd = changes[i+1].at
			}
			if evEnd <= c.at {
				evEnd = c.at + 0.001
			}
			v := float64(c.value)
			track.Events = append(track.Events, models.Event{
				ID:       fmt.Sprintf("%s-%d", track.ID, i),
				Start:    c.at,
				Duration: evEnd - c.at,
				Mode:     models.InterpHold,
				From:     []float64{v},
				To:       []float64{v},
			})
		}
		tl.Tracks = append(tl.Tracks, track)
	}
	return tl
}

// Close releases the socket.
func (r *Recorder) Close() error { return r.conn.Close() }

// parseArtDMX validates an ArtDMX packet and returns its universe and
// payload slice.
func parseArtDMX(pkt []byte) (int, []byte, bool) {
	if len(pkt) < 18 || string(pkt[0:8]) != "Art-Net\x00" {
		return 0, nil, false
	}
	if pkt[8] != 0x00 || pkt[9] != 0x50 {
		return 0, nil, false
	}
	universe := int(pkt[14]) | int(pkt[15]&0x7F)<<8
	length := int(pkt[16])<<8 | int(pkt[17])
	if length <= 0 || len(pkt) < 18+length {
		return 0, nil, false
	}
	return universe, pkt[18 : 18+length], true
}
