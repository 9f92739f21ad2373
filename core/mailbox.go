package core

import (
	"context"
	"sync"
)

// envelope is one unit of work for an actor: a message to process, a
// get-method query, or a snapshot request.
type envelope struct {
	msg      *Message
	query    *query
	snapshot chan<- snapshotResult
}

type query struct {
	method string
	args   []any
	reply  chan<- queryResult
}

type queryResult struct {
	value any
	err   error
}

type snapshotResult struct {
	snap ActorSnapshot
	err  error
}

// mailbox is an unbounded FIFO queue. Senders never block and messages are
// never dropped.
type mailbox struct {
	mu     sync.Mutex
	items  []envelope
	signal chan struct{}
	closed bool
}

func newMailbox(capacity int) *mailbox {
	return &mailbox{
		items:  make([]envelope, 0, capacity),
		signal: make(chan struct{}, 1),
	}
}

// push appends e. It returns false once the mailbox is closed.
func (m *mailbox) push(e envelope) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, e)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// pop blocks until an envelope is available or ctx is done.
func (m *mailbox) pop(ctx context.Context) (envelope, bool) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			e := m.items[0]
			m.items[0] = envelope{}
			m.items = m.items[1:]
			m.mu.Unlock()
			return e, true
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-ctx.Done():
			return envelope{}, false
		}
	}
}

// close rejects further pushes and returns whatever was still queued.
func (m *mailbox) close() []envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	rest := m.items
	m.items = nil
	return rest
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
