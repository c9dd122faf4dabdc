package lwt

import (
	"sync"
	"sync/atomic"

	"github.com/cooniur/lwt/lwt/internal/ring"
)

var channelIDSeq atomic.Int64

// sendWaiter is an entry in a channel's blocked-sender FIFO. It is a
// separate structure from the fiber's own intrusive queue linkage: a
// fiber can be simultaneously linked into its owning worker's wait queue
// (BLOCKED) and logically queued here as a pending sender (see
// DESIGN.md).
type sendWaiter struct {
	fiber *Fiber
	data  any
}

// groupMembership records a channel's registration with a group in one
// direction.
type groupMembership struct {
	group   *Group
	channel *Channel
	queued  bool
	events  int64
}

// Channel is a rendezvous (capacity 0) or bounded-ring buffered channel.
// All mutation of a channel's internals happens on its receiver's
// worker — either directly (the receiver/sender is running there) or via
// a mailbox re-drive (see worker.go's handleMessage) — except the narrow
// set of fields guarded by mu below, which a caller on any worker may
// touch directly (deref accounting, mark tag, group membership reads).
type Channel struct {
	id   int64
	name string

	ring *ring.Buffer // nil => rendezvous

	blockedSenders []*sendWaiter // FIFO; append at tail, pop from head

	mu       sync.Mutex
	receiver *Fiber
	senders  map[int64]*Fiber
	mark     any

	rcvBlocked bool

	groups [2]*groupMembership // indexed by Direction
}

// NewChannel creates a channel. A zero capacity makes it a rendezvous
// channel; otherwise it is buffered with a bounded ring of that
// capacity. The creating fiber becomes the receiver.
func NewChannel(creator *Fiber, capacity int, name string) *Channel {
	c := &Channel{
		id:      channelIDSeq.Add(1),
		name:    name,
		senders: make(map[int64]*Fiber),
	}
	if capacity > 0 {
		c.ring = ring.New(capacity)
	}
	c.receiver = creator
	return c
}

// Name returns the channel's diagnostic name.
func (c *Channel) Name() string { return c.name }

func (c *Channel) buffered() bool { return c.ring != nil }

// SendingCount returns the number of distinct fibers ever observed
// sending on this channel.
func (c *Channel) SendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.senders)
}

// MarkGet returns the opaque per-channel mark tag.
func (c *Channel) MarkGet() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mark
}

// MarkSet stores an opaque per-channel mark tag. The runtime never reads it.
func (c *Channel) MarkSet(v any) {
	c.mu.Lock()
	c.mark = v
	c.mu.Unlock()
}

func (c *Channel) registerSender(f *Fiber) {
	c.mu.Lock()
	if _, ok := c.senders[f.id]; !ok {
		c.senders[f.id] = f
	}
	c.mu.Unlock()
}

// DerefResult reports the outcome of Deref.
type DerefResult int

const (
	DerefKept DerefResult = iota
	DerefFreed
	DerefInvalid
)

// Deref removes caller from the channel's receiver slot (if caller is the
// current receiver) or its sender set. When neither a receiver nor any
// sender remains the channel is torn down: its ring buffer is released,
// group memberships are dropped, and DerefFreed is returned.
func (c *Channel) Deref(caller *Fiber) DerefResult {
	if c == nil || caller == nil {
		return DerefInvalid
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.receiver == caller {
		c.receiver = nil
	} else {
		delete(c.senders, caller.id)
	}

	if c.receiver == nil && len(c.senders) == 0 {
		c.ring = nil
		for d := 0; d < 2; d++ {
			c.groups[d] = nil
		}
		return DerefFreed
	}
	return DerefKept
}

// maybeQueueGroupEvent enqueues a pending-event notification for dir on
// this channel's registered group, coalescing with any event already
// queued, and wakes listeners blocked in Group.Wait for that direction.
// owner is the worker executing this call (always the channel's owning
// worker — see Send/Recv) and must be passed to wake() as the caller's
// own identity, never a woken fiber's worker: wake() only mutates a
// worker's queues in place when callerWorker is the worker actually
// running this goroutine, and defers to the mailbox otherwise.
//
// gm.events/group.eventCount count *outstanding* (undelivered)
// notifications, not lifetime sends: a channel already flagged queued
// does not bump them again (coalescing — §4.5), and Group.Wait decrements
// them when it drains one. Remove/Free's busy guards depend on these
// reaching zero once every notification has actually been collected.
func (c *Channel) maybeQueueGroupEvent(dir Direction, owner *Worker) {
	c.mu.Lock()
	gm := c.groups[dir]
	c.mu.Unlock()
	if gm == nil {
		return
	}
	gm.group.mu.Lock()
	if !gm.queued {
		gm.queued = true
		gm.events++
		gm.group.eventCount[dir]++
		gm.group.eventQ[dir] = append(gm.group.eventQ[dir], c)
	}
	waiters := gm.group.waitQ[dir]
	gm.group.waitQ[dir] = nil
	gm.group.mu.Unlock()

	for _, waiter := range waiters {
		wake(owner, waiter)
	}
}

// ---- send ------------------------------------------------------------

// Send delivers data to this channel's receiver. It fails with
// ErrSelfSend if caller is the receiver, or ErrNoReceiver if the channel
// has no receiver (it deref'd). Otherwise caller is recorded as a sender
// and the operation is dispatched by mode: rendezvous channels block
// until a receiver consumes the value; buffered channels block only
// while the ring is full.
func (c *Channel) Send(caller *Fiber, data any) error {
	c.mu.Lock()
	receiver := c.receiver
	c.mu.Unlock()

	if receiver == nil {
		return ErrNoReceiver
	}
	if receiver == caller {
		return ErrSelfSend
	}
	c.registerSender(caller)

	if receiver.worker != caller.worker {
		op := opSndBlocked
		if c.buffered() {
			op = opSndBuffered
		}
		// caller must already be visibly BLOCKED before the message is
		// posted, or a wake() arriving while the owner processes it could
		// race ahead of caller parking and be dropped.
		cw := caller.worker
		cw.blockPrepare(caller)
		receiver.worker.mailbox.post(message{op: op, fiber: caller, channel: c, data: data})
		cw.blockDispatch(caller)
		return nil
	}

	c.maybeQueueGroupEvent(DirSnd, caller.worker)
	if c.buffered() {
		return c.sendBufferedOnOwner(caller.worker, caller, data)
	}
	return c.sendRendezvousOnOwner(caller.worker, caller, data)
}

// sendOnOwnerRendezvous/sendOnOwnerBuffered are the mailbox re-drive entry
// points: w is always the channel's owning (receiver's) worker, and
// caller may be a foreign fiber that already called block() on its own
// worker before this was posted.
func (c *Channel) sendOnOwnerRendezvous(w *Worker, caller *Fiber, data any) {
	c.maybeQueueGroupEvent(DirSnd, w)
	_ = c.sendRendezvousOnOwner(w, caller, data)
}

func (c *Channel) sendOnOwnerBuffered(w *Worker, caller *Fiber, data any) {
	c.maybeQueueGroupEvent(DirSnd, w)
	_ = c.sendBufferedOnOwner(w, caller, data)
}

func (c *Channel) sendRendezvousOnOwner(w *Worker, caller *Fiber, data any) error {
	c.blockedSenders = append(c.blockedSenders, &sendWaiter{fiber: caller, data: data})

	// a receiver that called Recv before this send arrived is already
	// parked in the wait queue (rcvBlocked); nothing else will ever move
	// it back to runnable, so it must be woken here.
	c.mu.Lock()
	rcvBlocked := c.rcvBlocked
	receiver := c.receiver
	c.mu.Unlock()
	if rcvBlocked && receiver != nil {
		wake(w, receiver)
	}

	if caller.worker == w && w.current == caller {
		// direct/local path: block until a receiver dequeues this entry.
		w.block(caller)
	}
	// foreign re-drive: caller already blocked on its own worker.
	return nil
}

func (c *Channel) sendBufferedOnOwner(w *Worker, caller *Fiber, data any) error {
	if c.ring.Full() {
		c.blockedSenders = append(c.blockedSenders, &sendWaiter{fiber: caller, data: data})
		if caller.worker == w && w.current == caller {
			w.blockAndWake(caller, c.receiver)
		}
		return nil
	}
	c.ring.Push(data)
	c.mu.Lock()
	rcvBlocked := c.rcvBlocked
	receiver := c.receiver
	c.mu.Unlock()
	if rcvBlocked && receiver != nil {
		wake(w, receiver)
	}
	// no-op unless caller arrived here already BLOCKED (the cross-worker
	// re-drive path); a same-worker caller is still Running and wake()
	// ignores it.
	wake(w, caller)
	return nil
}

// ---- receive ----------------------------------------------------------

// Recv blocks until a value is available and returns it. Only the
// channel's receiver should call Recv (enforced by convention, not by an
// error return — mirroring the spec's "programming errors are
// assertions" policy).
func (c *Channel) Recv(caller *Fiber) any {
	w := caller.worker
	c.maybeQueueGroupEvent(DirRcv, w)
	if c.buffered() {
		return c.recvBufferedOnOwner(w, caller)
	}
	return c.recvRendezvousOnOwner(w, caller)
}

func (c *Channel) recvRendezvousOnOwner(w *Worker, caller *Fiber) any {
	for len(c.blockedSenders) == 0 {
		c.mu.Lock()
		c.rcvBlocked = true
		c.mu.Unlock()
		w.block(caller)
	}
	c.mu.Lock()
	c.rcvBlocked = false
	c.mu.Unlock()

	waiter := c.blockedSenders[0]
	c.blockedSenders = c.blockedSenders[1:]
	wake(w, waiter.fiber)
	return waiter.data
}

func (c *Channel) recvBufferedOnOwner(w *Worker, caller *Fiber) any {
	for c.ring.Empty() {
		c.mu.Lock()
		c.rcvBlocked = true
		c.mu.Unlock()
		w.block(caller)
	}
	c.mu.Lock()
	c.rcvBlocked = false
	c.mu.Unlock()

	val := c.ring.Pop()
	if len(c.blockedSenders) > 0 {
		waiter := c.blockedSenders[0]
		c.blockedSenders = c.blockedSenders[1:]
		c.ring.Push(waiter.data)
		wake(w, waiter.fiber)
	}
	return val
}

// ---- channel-over-channel & delegation --------------------------------

// SendChan sends a channel handle as an ordinary payload.
func (c *Channel) SendChan(caller *Fiber, ch2 *Channel) error { return c.Send(caller, ch2) }

// RecvChan receives a channel handle.
func (c *Channel) RecvChan(caller *Fiber) *Channel {
	v := c.Recv(caller)
	ch, _ := v.(*Channel)
	return ch
}

// SendDeleg sends d over c after adding caller to d's sender set.
func (c *Channel) SendDeleg(caller *Fiber, d *Channel) error {
	d.registerSender(caller)
	return c.Send(caller, d)
}

// RecvDeleg receives a channel and reassigns its receiver to caller —
// receivership delegation.
func (c *Channel) RecvDeleg(caller *Fiber) *Channel {
	d := c.RecvChan(caller)
	if d != nil {
		d.mu.Lock()
		d.receiver = caller
		d.mu.Unlock()
	}
	return d
}
