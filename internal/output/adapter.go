// Package output implements the protocol adapters: Art-Net DMX, MIDI and
// OSC. Adapters translate batches of abstract output changes into wire
// messages and report per-message results; they never return a fatal error
// to the playback loop.
package output

import (
	"context"

	"github.com/starford/cueflow/internal/models"
)

// Result reports the outcome of sending one change.
type Result struct {
	Key      string          // the change's coalesce key
	Protocol models.Protocol
	Err      error // nil on success; wraps ErrAdapterTimeout or ErrAdapterSend
}

// Adapter is the single send capability every protocol implements. Send
// must honor ctx's deadline and return one Result per change, in order.
// Implementations may block on I/O but never beyond the deadline.
type Adapter interface {
	Protocol() models.Protocol
	Send(ctx context.Context, batch []models.OutputChange) []Result
	Close() error
}
