package server

import "sync"

// mailbox is an unbounded FIFO. push never blocks, so the stack may post
// events from inside a request the loop is making.
type mailbox struct {
	mu     sync.Mutex
	items  []any
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(item any) {
	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// ready is signalled after every push; one signal may cover many items.
func (m *mailbox) ready() <-chan struct{} { return m.signal }

// drain removes and returns everything queued, oldest first.
func (m *mailbox) drain() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
