package output

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/starford/cueflow/internal/apperr"
	"github.com/starford/cueflow/internal/models"
)

// MIDI routes track output to hardware or virtual MIDI ports. Continuous
// values become control changes, triggers become a note-on with a timed
// note-off.
type MIDI struct {
	mu    sync.Mutex
	ports map[string]drivers.Out
}

func NewMIDI() *MIDI {
	return &MIDI{ports: make(map[string]drivers.Out)}
}

// Protocol implements Adapter.
func (m *MIDI) Protocol() models.Protocol { return models.ProtocolMIDI }

func (m *MIDI) port(device string) (drivers.Out, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if out, ok := m.ports[device]; ok {
		return out, nil
	}
	out, err := midi.FindOutPort(device)
	if err != nil {
		return nil, fmt.Errorf("%w: midi port %q: %v", apperr.ErrAdapterSend, device, err)
	}
	m.ports[device] = out
	return out, nil
}

// Send implements Adapter. The context only gates work that has not
// started yet; rtmidi writes themselves are not cancellable.
func (m *MIDI) Send(ctx context.Context, batch []models.OutputChange) []Result {
	results := make([]Result, len(batch))
	for i, c := range batch {
		results[i] = Result{Key: c.CoalesceKey(), Protocol: models.ProtocolMIDI}
		select {
		case <-ctx.Done():
			results[i].Err = fmt.Errorf("%w: midi %q: %v", apperr.ErrAdapterTimeout, c.Target.Device, ctx.Err())
			continue
		default:
		}
		if err := m.sendOne(c); err != nil {
			results[i].Err = err
		}
	}
	return results
}

func (m *MIDI) sendOne(c models.OutputChange) error {
	out, err := m.port(c.Target.Device)
	if err != nil {
		return err
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return fmt.Errorf("%w: midi %q: %v", apperr.ErrAdapterSend, c.Target.Device, err)
	}

	ch := uint8(c.Target.MIDIChannel - 1)
	if c.Trigger != nil {
		note := uint8(c.Trigger.Note)
		vel := uint8(c.Trigger.Velocity)
		if err := send(midi.NoteOn(ch, note, vel)); err != nil {
			return fmt.Errorf("%w: midi %q note on: %v", apperr.ErrAdapterSend, c.Target.Device, err)
		}
		hold := time.Duration(c.Trigger.NoteDuration * float64(time.Second))
		if hold <= 0 {
			hold = 100 * time.Millisecond
		}
		time.AfterFunc(hold, func() {
			if s, err := midi.SendTo(out); err == nil {
				_ = s(midi.NoteOff(ch, note))
			}
		})
		return nil
	}

	for off, v := range c.Values {
		cc := uint8(c.Target.Controller + off)
		// DMX byte range down to the 7-bit controller range.
		val := uint8(int(v) * 127 / 255)
		if err := send(midi.ControlChange(ch, cc, val)); err != nil {
			return fmt.Errorf("%w: midi %q cc %d: %v", apperr.ErrAdapterSend, c.Target.Device, cc, err)
		}
	}
	return nil
}

// Close closes all opened ports and the driver.
func (m *MIDI) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, out := range m.ports {
		_ = out.Close()
	}
	m.ports = make(map[string]drivers.Out)
	midi.CloseDriver()
	return nil
}
