package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const recordTimeout = 5 * time.Second

// Dispatcher decouples audit delivery from the request path. Submit never
// blocks: when the buffer is full the event is dropped and logged.
type Dispatcher struct {
	sink   Sink
	logger *zap.Logger
	events chan Event

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

func NewDispatcher(sink Sink, bufferSize int, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	d := &Dispatcher{
		sink:   sink,
		logger: logger.Named("audit.dispatcher"),
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Submit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("audit event after close dropped",
			zap.String("event_type", e.EventType), zap.String("operation", e.Operation))
		return
	}

	select {
	case d.events <- e:
	default:
		d.logger.Warn("audit buffer full, event dropped",
			zap.String("event_type", e.EventType),
			zap.String("operation", e.Operation),
			zap.String("transfer_id", e.TransferID))
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := d.sink.Record(ctx, e); err != nil {
			d.logger.Error("audit sink failed",
				zap.String("event_type", e.EventType),
				zap.String("operation", e.Operation),
				zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events and waits until the buffer is drained or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.events)
		d.mu.Unlock()
	})
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
