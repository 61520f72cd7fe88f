package output

import (
	"context"
	"fmt"
	"sync"

	"github.com/hypebeast/go-osc/osc"

	"github.com/starford/cueflow/internal/apperr"
	"github.com/starford/cueflow/internal/models"
)

// OSC sends track output as OSC messages over UDP, one client per
// destination host:port. Continuous values are normalized to 0..1 floats;
// trigger payloads carry their arguments verbatim.
type OSC struct {
	mu      sync.Mutex
	clients map[string]*osc.Client
}

func NewOSC() *OSC {
	return &OSC{clients: make(map[string]*osc.Client)}
}

// Protocol implements Adapter.
func (o *OSC) Protocol() models.Protocol { return models.ProtocolOSC }

func (o *OSC) client(host string, port int) *osc.Client {
	key := fmt.Sprintf("%s:%d", host, port)
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.clients[key]; ok {
		return c
	}
	c := osc.NewClient(host, port)
	o.clients[key] = c
	return c
}

// Send implements Adapter.
func (o *OSC) Send(ctx context.Context, batch []models.OutputChange) []Result {
	results := make([]Result, len(batch))
	for i, c := range batch {
		results[i] = Result{Key: c.CoalesceKey(), Protocol: models.ProtocolOSC}
		select {
		case <-ctx.Done():
			results[i].Err = fmt.Errorf("%w: osc %s: %v", apperr.ErrAdapterTimeout, c.Target.OSCAddress, ctx.Err())
			continue
		default:
		}
		if err := o.sendOne(c); err != nil {
			results[i].Err = err
		}
	}
	return results
}

func (o *OSC) sendOne(c models.OutputChange) error {
	client := o.client(c.Target.OSCHost, c.Target.OSCPort)
	msg := osc.NewMessage(c.Target.OSCAddress)
	if c.Trigger != nil {
		for _, arg := range c.Trigger.Args {
			msg.Append(arg)
		}
	} else {
		for _, v := range c.Values {
			msg.Append(float32(v) / 255.0)
		}
	}
	if err := client.Send(msg); err != nil {
		return fmt.Errorf("%w: osc %s: %v", apperr.ErrAdapterSend, c.Target.OSCAddress, err)
	}
	return nil
}

// Close implements Adapter. go-osc clients hold no persistent sockets.
func (o *OSC) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clients = make(map[string]*osc.Client)
	return nil
}
