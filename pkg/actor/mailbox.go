package actor

import (
	"context"
	"sync"
)

// Mailbox is an unbounded FIFO queue with a single consumer. Send never blocks,
// so a parent can always message a busy child.
type Mailbox[T any] struct {
	mu     sync.Mutex
	queue  []T
	notify chan struct{}
	closed bool
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{notify: make(chan struct{}, 1)}
}

// Send enqueues msg. It returns false once the mailbox is closed.
func (m *Mailbox[T]) Send(msg T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// Receive blocks until a message is available, the mailbox is closed and
// drained, or ctx is done.
func (m *Mailbox[T]) Receive(ctx context.Context) (T, bool) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			msg := m.queue[0]
			var zero T
			m.queue[0] = zero
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return msg, true
		}
		closed := m.closed
		m.mu.Unlock()

		var zero T
		if closed {
			return zero, false
		}
		select {
		case <-ctx.Done():
			return zero, false
		case <-m.notify:
		}
	}
}

// Close stops accepting messages. Already queued messages can still be received.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued messages.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
