// Package state provides the lock-protected, change-notifying value cell
// that backs every writer/reader pair in the model package, plus the async
// queue built on top of it.
package state

import (
	"context"
	"sync"

	transfork "github.com/quadrant-labs/transfork"
)

// Cell is a lock-protected value with change notification. Writer handles
// mutate exclusively; reader handles observe snapshots. Any mutation bumps
// an internal epoch and wakes every waiter blocked in Modified; once closed,
// reads keep returning the final value but further mutation is refused.
//
// Cell has no Rust-style Drop: callers release writer/reader handles
// explicitly via ReleaseWriter/ReleaseReader, which is the idiomatic Go
// substitute for "drop the last handle".
type Cell[T any] struct {
	mu      sync.Mutex
	value   T
	epoch   uint64
	closed  error
	notify  chan struct{}
	writers int
	readers int
}

// NewCell creates a cell with one writer and one reader already accounted
// for (the pair returned by a Produce-style constructor).
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value:   initial,
		notify:  make(chan struct{}),
		writers: 1,
		readers: 1,
	}
}

// Snapshot returns the current value, epoch, and terminal error.
func (c *Cell[T]) Snapshot() (T, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.epoch, c.closed
}

// WithLock gives fn exclusive access to the value and the current closed
// state. fn returns mutated=true if it changed the value, which bumps the
// epoch and wakes all Modified waiters. WithLock returns the epoch as left
// by fn, which callers pass to Modified to wait for the next change.
func (c *Cell[T]) WithLock(fn func(value *T, closed error) (mutated bool)) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn(&c.value, c.closed) {
		c.bumpLocked()
	}
	return c.epoch
}

func (c *Cell[T]) bumpLocked() {
	c.epoch++
	old := c.notify
	c.notify = make(chan struct{})
	close(old)
}

// Modified returns a channel that is immediately ready if the epoch has
// already moved past lastEpoch or the cell is closed, otherwise a channel
// that becomes ready on the next mutation or close.
func (c *Cell[T]) Modified(lastEpoch uint64) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != lastEpoch || c.closed != nil {
		ready := make(chan struct{})
		close(ready)
		return ready
	}
	return c.notify
}

// Closed blocks until the cell reaches a terminal state, respecting ctx
// cancellation.
func (c *Cell[T]) Closed(ctx context.Context) error {
	for {
		_, epoch, closed := c.Snapshot()
		if closed != nil {
			return closed
		}
		select {
		case <-c.Modified(epoch):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close sets the terminal error if the cell isn't already closed. It
// returns nil on the call that wins, or the existing terminal error
// otherwise — first call wins, matching the upstream close() semantics.
func (c *Cell[T]) Close(err error) error {
	if err == nil {
		err = transfork.ErrCancel
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed != nil {
		return c.closed
	}
	c.closed = err
	c.bumpLocked()
	return nil
}

// AddWriter records an additional writer handle (Split).
func (c *Cell[T]) AddWriter() {
	c.mu.Lock()
	c.writers++
	c.mu.Unlock()
}

// ReleaseWriter drops a writer handle. When the last writer is released and
// the cell was never explicitly closed, it transitions to transfork.ErrCancel.
func (c *Cell[T]) ReleaseWriter() {
	c.mu.Lock()
	c.writers--
	last := c.writers == 0
	already := c.closed != nil
	c.mu.Unlock()

	if last && !already {
		c.Close(transfork.ErrCancel)
	}
}

// AddReader records an additional reader handle (Clone).
func (c *Cell[T]) AddReader() {
	c.mu.Lock()
	c.readers++
	c.mu.Unlock()
}

// ReleaseReader drops a reader handle. Readers never affect closed state;
// the count exists only to mirror the upstream reference-count invariant.
func (c *Cell[T]) ReleaseReader() {
	c.mu.Lock()
	c.readers--
	c.mu.Unlock()
}

// Counts returns the current writer/reader handle counts, for tests.
func (c *Cell[T]) Counts() (writers, readers int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writers, c.readers
}
