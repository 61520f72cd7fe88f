package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/cueflow/internal/models"
	"github.com/starford/cueflow/internal/output"
)

// Failure is one adapter send error surfaced to observers.
type Failure struct {
	Key       string          `json:"key"`
	Protocol  models.Protocol `json:"protocol"`
	Error     string          `json:"error"`
	Timestamp time.Time       `json:"timestamp"`
}

// dispatcher owns one adapter and a single worker goroutine. Producers
// never block: continuous changes coalesce by key (newest wins) while the
// worker is busy, trigger changes queue in order and are never dropped.
type dispatcher struct {
	adapter output.Adapter
	timeout time.Duration
	log     *slog.Logger
	onFail  func(Failure)

	mu       sync.Mutex
	pending  map[string]models.OutputChange
	order    []string
	triggers []models.OutputChange
	wake     chan struct{}
	done     chan struct{}
}

func newDispatcher(adapter output.Adapter, timeout time.Duration, log *slog.Logger, onFail func(Failure)) *dispatcher {
	d := &dispatcher{
		adapter: adapter,
		timeout: timeout,
		log:     log.With("adapter", string(adapter.Protocol())),
		onFail:  onFail,
		pending: make(map[string]models.OutputChange),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	return d
}

// enqueue accepts a batch of changes without blocking.
func (d *dispatcher) enqueue(changes []models.OutputChange) {
	if len(changes) == 0 {
		return
	}
	d.mu.Lock()
	for _, c := range changes {
		if c.Trigger != nil {
			d.triggers = append(d.triggers, c)
			continue
		}
		key := c.CoalesceKey()
		if _, exists := d.pending[key]; !exists {
			d.order = append(d.order, key)
		}
		d.pending[key] = c
	}
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) drain() []models.OutputChange {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.triggers) + len(d.order)
	if n == 0 {
		return nil
	}
	batch := make([]models.OutputChange, 0, n)
	// Triggers go out first so a note queued before a level change keeps
	// its ordering even under coalescing.
	batch = append(batch, d.triggers...)
	d.triggers = nil
	for _, key := range d.order {
		batch = append(batch, d.pending[key])
	}
	d.pending = make(map[string]models.OutputChange)
	d.order = d.order[:0]
	return batch
}

// run is the worker loop. It exits when ctx is cancelled, after a final
// drain attempt, and closes the adapter.
func (d *dispatcher) run(ctx context.Context) {
	defer close(d.done)
	defer func() {
		if err := d.adapter.Close(); err != nil {
			d.log.Warn("adapter close failed", "error", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			d.flush(context.Background())
			return
		case <-d.wake:
			d.flush(ctx)
		}
	}
}

func (d *dispatcher) flush(ctx context.Context) {
	for {
		batch := d.drain()
		if len(batch) == 0 {
			return
		}
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		results := d.adapter.Send(sctx, batch)
		cancel()
		for _, r := range results {
			if r.Err == nil {
				continue
			}
			d.log.Warn("send failed", "key", r.Key, "error", r.Err)
			if d.onFail != nil {
				d.onFail(Failure{
					Key:       r.Key,
					Protocol:  r.Protocol,
					Error:     r.Err.Error(),
					Timestamp: time.Now(),
				})
			}
		}
	}
}

func (d *dispatcher) wait() { <-d.done }
