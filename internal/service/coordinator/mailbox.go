package coordinator

import (
	"sync"
)

// mailbox is unbounded FIFO queue: push never blocks, so auth events emitted
// while the loop itself calls the auth client can't deadlock it
type mailbox struct {
	mu     sync.Mutex
	queue  []any
	ready  chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

// push returns false if mailbox closed
func (m *mailbox) push(msg any) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// drain returns everything queued so far
func (m *mailbox) drain() []any {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.queue
	m.queue = nil
	return msgs
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
}
