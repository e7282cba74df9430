// Package mailbox provides a single-slot, latest-wins handoff between one
// producer and one consumer goroutine.
//
// A Publish never blocks: an unconsumed item is overwritten and handed to the
// drop callback so the producer can release any resources it holds. Receive
// blocks until an item is available or the mailbox is closed.
package mailbox

import "sync"

// Mailbox is a single-slot buffer with overwrite semantics.
// It takes ownership of every published item: each item is either received
// exactly once or passed to the drop callback exactly once.
type Mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	item   T
	full   bool
	closed bool

	drops  uint64
	onDrop func(T)
}

// New creates an empty mailbox. onDrop may be nil.
func New[T any](onDrop func(T)) *Mailbox[T] {
	m := &Mailbox[T]{onDrop: onDrop}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish stores v, replacing any unconsumed item. It returns false if the
// mailbox is closed, in which case v is dropped.
func (m *Mailbox[T]) Publish(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.drop(v)
		return false
	}

	var old T
	replaced := m.full
	if replaced {
		old = m.item
		m.drops++
	}
	m.item = v
	m.full = true
	m.cond.Signal()
	m.mu.Unlock()

	// Callbacks run outside the lock; they may be slow (e.g. freeing a Mat).
	if replaced {
		m.drop(old)
	}
	return true
}

// Receive blocks until an item is available or the mailbox is closed.
// The second return value is false once the mailbox is closed.
func (m *Mailbox[T]) Receive() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for !m.full && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		var zero T
		return zero, false
	}
	return m.take(), true
}

// TryReceive returns the pending item without blocking.
func (m *Mailbox[T]) TryReceive() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full || m.closed {
		var zero T
		return zero, false
	}
	return m.take(), true
}

// Close wakes a blocked receiver and drops any pending item. Idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var pending T
	hadPending := m.full
	if hadPending {
		pending = m.take()
	}
	m.cond.Broadcast()
	m.mu.Unlock()

	if hadPending {
		m.drop(pending)
	}
}

// Pending reports whether an item is waiting to be received.
func (m *Mailbox[T]) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.full && !m.closed
}

// Drops is the number of items overwritten before being received.
func (m *Mailbox[T]) Drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

// take must be called with mu held and full set.
func (m *Mailbox[T]) take() T {
	v := m.item
	var zero T
	m.item = zero
	m.full = false
	return v
}

func (m *Mailbox[T]) drop(v T) {
	if m.onDrop != nil {
		m.onDrop(v)
	}
}
