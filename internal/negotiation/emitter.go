package negotiation

import (
	"context"
	"sync"
)

// Sink receives derived quote payloads. Implementations typically forward
// the payload to the persistence layer or push it to a connected client.
type Sink interface {
	Publish(ctx context.Context, q Quote) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, q Quote) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, q Quote) error { return f(ctx, q) }

// Emitter forwards derived quotes to a sink only when the payload differs
// from the previous emission. The sink's reaction may itself trigger a
// recompute, so suppressing identical payloads is what breaks the cycle:
// no two consecutive emissions ever carry the same quote. Emission happens
// synchronously with the state settling; nothing is debounced or delayed.
type Emitter struct {
	Sink Sink

	mu      sync.Mutex
	last    Quote
	emitted bool
}

// Emit publishes q unless it equals the last successfully emitted quote.
// It reports whether the sink was invoked.
func (e *Emitter) Emit(ctx context.Context, q Quote) (bool, error) {
	if e == nil || e.Sink == nil {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.emitted && e.last == q {
		return false, nil
	}
	if err := e.Sink.Publish(ctx, q); err != nil {
		return false, err
	}
	e.last = q
	e.emitted = true
	return true, nil
}

// Reset clears the remembered payload so the next Emit always publishes.
func (e *Emitter) Reset() {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.emitted = false
	e.last = Quote{}
	e.mu.Unlock()
}
