package output

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/starford/cueflow/internal/apperr"
	"github.com/starford/cueflow/internal/models"
)

const (
	artnetPort = 6454

	// minFrameInterval is the minimum gap between ArtDMX frames on the
	// wire, matching the standard full-frame refresh limit.
	minFrameInterval = 23 * time.Millisecond
)

// ArtNet sends merged universe frames as ArtDMX packets over UDP. It keeps
// the last frame per universe and can refresh them periodically so nodes
// holding a data-loss timeout do not black out between changes.
type ArtNet struct {
	conn *net.UDPConn
	dest *net.UDPAddr

	mu       sync.Mutex
	seq      uint8
	lastSent time.Time
	frames   map[int][512]byte
}

// NewArtNet opens a UDP socket toward target ("host" or "host:port";
// empty means limited broadcast).
func NewArtNet(target string) (*ArtNet, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("artnet: open socket: %w", err)
	}

	ip := net.IPv4bcast
	port := artnetPort
	if target != "" {
		host, p, splitErr := net.SplitHostPort(target)
		if splitErr != nil {
			host = target
		} else {
			fmt.Sscanf(p, "%d", &port)
		}
		if parsed := net.ParseIP(host); parsed != nil {
			ip = parsed
		}
	}

	return &ArtNet{
		conn:   conn,
		dest:   &net.UDPAddr{IP: ip, Port: port},
		seq:    1,
		frames: make(map[int][512]byte),
	}, nil
}

// Protocol implements Adapter.
func (a *ArtNet) Protocol() models.Protocol { return models.ProtocolDMX }

// Send transmits one ArtDMX frame per universe change in the batch,
// honoring the minimum inter-frame interval and the context deadline.
func (a *ArtNet) Send(ctx context.Context, batch []models.OutputChange) []Result {
	results := make([]Result, len(batch))
	for i, c := range batch {
		results[i] = Result{Key: c.CoalesceKey(), Protocol: models.ProtocolDMX}
		if c.Frame == nil {
			// Track-level changes are merged into frames upstream;
			// anything else here is a trigger with no DMX meaning.
			continue
		}
		if err := a.sendFrame(ctx, c.Target.Universe, *c.Frame); err != nil {
			results[i].Err = err
		}
	}
	return results
}

func (a *ArtNet) sendFrame(ctx context.Context, universe int, frame [512]byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if wait := minFrameInterval - time.Since(a.lastSent); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("%w: universe %d: %v", apperr.ErrAdapterTimeout, universe, ctx.Err())
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = a.conn.SetWriteDeadline(deadline)
	}
	pkt := buildArtDMX(a.seq, uint16(universe), frame[:])
	a.seq++
	if a.seq == 0 {
		a.seq = 1
	}
	if _, err := a.conn.WriteToUDP(pkt, a.dest); err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return fmt.Errorf("%w: universe %d: %v", apperr.ErrAdapterTimeout, universe, err)
		}
		return fmt.Errorf("%w: universe %d: %v", apperr.ErrAdapterSend, universe, err)
	}
	a.lastSent = time.Now()
	a.frames[universe] = frame
	return nil
}

// Refresh resends the last frame of every universe at the given interval
// until ctx is cancelled. Run it in its own goroutine.
func (a *ArtNet) Refresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.mu.Lock()
			universes := make([]int, 0, len(a.frames))
			for u := range a.frames {
				universes = append(universes, u)
			}
			a.mu.Unlock()
			for _, u := range universes {
				a.mu.Lock()
				frame := a.frames[u]
				a.mu.Unlock()
				sctx, cancel := context.WithTimeout(ctx, interval)
				_ = a.sendFrame(sctx, u, frame)
				cancel()
			}
		}
	}
}

// Close releases the socket.
func (a *ArtNet) Close() error { return a.conn.Close() }

// buildArtDMX constructs an ArtDMX packet: opcode 0x5000, protocol
// version 14, sequence, sub-uni/net split of the universe, then payload.
func buildArtDMX(seq uint8, universe uint16, payload []byte) []byte {
	pkt := make([]byte, 18+len(payload))
	copy(pkt[0:], []byte("Art-Net\x00"))
	pkt[8], pkt[9] = 0x00, 0x50
	pkt[10], pkt[11] = 0x00, 14
	pkt[12], pkt[13] = seq, 0x00
	pkt[14] = byte(universe & 0xFF)
	pkt[15] = byte((universe >> 8) & 0x7F)
	pkt[16] = byte((len(payload) >> 8) & 0xFF)
	pkt[17] = byte(len(payload) & 0xFF)
	copy(pkt[18:], payload)
	return pkt
}
