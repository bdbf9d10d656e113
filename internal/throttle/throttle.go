// Package throttle implements the admission gate that bounds in-flight crawl tasks.
package throttle

import (
	"context"
	"fmt"
)

// DefaultCapacity is the slot count used when none is configured.
const DefaultCapacity = 10

// Throttle is a counting semaphore over a buffered channel. Acquire returns
// immediately while fewer than Capacity slots are held.
type Throttle struct {
	slots chan struct{}
}

// New builds a Throttle with the given capacity.
func New(capacity int) (*Throttle, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("throttle capacity must be > 0")
	}
	return &Throttle{slots: make(chan struct{}, capacity)}, nil
}

// Acquire blocks until a slot is free or ctx is done.
func (t *Throttle) Acquire(ctx context.Context) error {
	select {
	case t.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("throttle acquire canceled: %w", ctx.Err())
	}
}

// Release frees a slot. It never blocks; releasing an idle throttle is a no-op.
func (t *Throttle) Release() {
	select {
	case <-t.slots:
	default:
	}
}

// InFlight returns the number of held slots.
func (t *Throttle) InFlight() int {
	return len(t.slots)
}

// Capacity returns the maximum number of concurrent holders.
func (t *Throttle) Capacity() int {
	return cap(t.slots)
}
