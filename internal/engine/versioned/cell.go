// Package versioned holds single-slot values that readers can wait on.
package versioned

import (
	"context"
	"sync"

	domainerrors "pyanalyzer/internal/core/errors"
)

// Cell stores the latest value of a derived artifact together with a
// monotonically increasing version. Version 0 means the cell was never set.
//
// All goroutines waiting for the next version share one pending slot. Set
// publishes the value into that slot and closes its channel, so every waiter
// receives exactly the value that woke it. A waiter that gives up leaves
// nothing behind.
type Cell[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	next    *pending[T]
}

type pending[T any] struct {
	done    chan struct{}
	value   T
	version uint64
	waiters int
	pinned  bool
}

// Set replaces the value, bumps the version and wakes every waiter.
func (c *Cell[T]) Set(v T) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.version++
	if c.next != nil {
		c.next.value = v
		c.next.version = c.version
		close(c.next.done)
		c.next = nil
	}
	return c.version
}

// Get returns the current value or ErrNotReady if the cell is unset.
func (c *Cell[T]) Get() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version == 0 {
		var zero T
		return zero, domainerrors.ErrNotReady
	}
	return c.value, nil
}

// TryGet returns the value and version without failing.
func (c *Cell[T]) TryGet() (T, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.version, c.version > 0
}

func (c *Cell[T]) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// GetAsync returns immediately when a value exists, otherwise it blocks
// until the first Set or until ctx is done.
func (c *Cell[T]) GetAsync(ctx context.Context) (T, error) {
	v, _, err := c.WaitNewer(ctx, 0)
	return v, err
}

// WaitNewer blocks until the version exceeds seen.
func (c *Cell[T]) WaitNewer(ctx context.Context, seen uint64) (T, uint64, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, 0, domainerrors.Cancelled(err)
	}
	c.mu.Lock()
	if c.version > seen {
		v, ver := c.value, c.version
		c.mu.Unlock()
		return v, ver, nil
	}
	p := c.pendingLocked()
	p.waiters++
	c.mu.Unlock()

	select {
	case <-p.done:
		return p.value, p.version, nil
	case <-ctx.Done():
		c.release(p)
		return zero, 0, domainerrors.Cancelled(ctx.Err())
	}
}

// release drops a cancelled waiter. The last one out clears the slot.
func (c *Cell[T]) release(p *pending[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.waiters--
	if p.waiters == 0 && !p.pinned && c.next == p {
		c.next = nil
	}
}

// Waiters reports how many goroutines are blocked on the next version.
func (c *Cell[T]) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next == nil {
		return 0
	}
	return c.next.waiters
}

// Changed returns a channel closed on the next Set.
func (c *Cell[T]) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pendingLocked()
	p.pinned = true
	return p.done
}

func (c *Cell[T]) pendingLocked() *pending[T] {
	if c.next == nil {
		c.next = &pending[T]{done: make(chan struct{})}
	}
	return c.next
}
