package lwt

import "sync"

// messageOp enumerates the cross-worker operations a mailbox carries.
type messageOp int

const (
	opYield messageOp = iota
	opWakeup
	opBlock
	opSndBlocked
	opSndBuffered
)

// message is the mailbox's unit of cross-worker communication. It carries
// only plain owned data: a fiber pointer (wake/yield/block target or
// foreign sender), a channel pointer, and an optional payload — never a
// pointer into another worker's queue internals.
type message struct {
	op      messageOp
	fiber   *Fiber
	channel *Channel
	data    any
}

// mailbox is a worker's inbound FIFO of cross-worker operations. It is
// the single lock-protected shared structure in the runtime: the mutex is
// held only for the duration of a single append or single drain, never
// across a context switch.
type mailbox struct {
	mu    sync.Mutex
	items []message
}

func newMailbox() *mailbox {
	return &mailbox{}
}

func (m *mailbox) post(msg message) {
	m.mu.Lock()
	m.items = append(m.items, msg)
	m.mu.Unlock()
}

// drain pops and returns the oldest message, if any.
func (m *mailbox) drain() (message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return message{}, false
	}
	msg := m.items[0]
	m.items = m.items[1:]
	return msg, true
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
