package lwt

import (
	"fmt"
	"sync/atomic"
)

// EntryFunc is a fiber's entry point. It receives its own descriptor (the
// idiomatic-Go stand-in for a thread-local "current fiber" — Go exposes
// no public goroutine-local storage), its argument, and an optional
// inherited channel.
type EntryFunc func(self *Fiber, arg any, inherited *Channel) any

var fiberIDSeq atomic.Int64

// Fiber is a cooperatively-scheduled, user-space thread of control. Its
// "stack" is a dedicated goroutine parked on a single-slot baton channel
// (turn); resuming a fiber means sending on that channel, and the fiber's
// own suspension points (Yield/block/Die) are the only places it gives
// the baton back. This is the Go-idiomatic substitute for the hand-rolled
// register save/restore the spec deliberately leaves architecture-
// specific (see DESIGN.md).
type Fiber struct {
	id     int64
	name   string
	flags  Flags
	status atomic.Int32

	entry     EntryFunc
	arg       any
	inherited *Channel

	retval any
	err    error

	worker *Worker
	joiner *Fiber
	joinMu chanJoinLock

	// intrusive queue linkage (run/wait/zombie/dead queues)
	qPrev, qNext *Fiber
	queue        *queue

	// pendingSendData is not written by the channel code: a blocked
	// sender's payload is carried in the channel's own sendWaiter entry
	// (see channel.go). The field is only cleared on recycle.
	pendingSendData any

	turn chan struct{} // single-slot baton; resumed by a send, parked by a receive
}

// chanJoinLock is a tiny mutex kept out of sync import noise at the call
// site; join() is the one operation that touches another worker's fiber
// descriptor directly (see DESIGN.md "Open Question resolutions").
type chanJoinLock struct{ ch chan struct{} }

func newJoinLock() chanJoinLock {
	c := make(chan struct{}, 1)
	c <- struct{}{}
	return chanJoinLock{ch: c}
}

func (l chanJoinLock) Lock()   { <-l.ch }
func (l chanJoinLock) Unlock() { l.ch <- struct{}{} }

func newFiber(name string, flags Flags, entry EntryFunc, arg any, inherited *Channel) *Fiber {
	f := &Fiber{
		id:        fiberIDSeq.Add(1),
		name:      name,
		flags:     flags,
		entry:     entry,
		arg:       arg,
		inherited: inherited,
		joinMu:    newJoinLock(),
		turn:      make(chan struct{}, 1),
	}
	f.status.Store(int32(StatusReady))
	return f
}

// ID returns the fiber's process-wide, monotonic, unique id.
func (f *Fiber) ID() int64 { return f.id }

// Name returns the diagnostic name given at spawn time.
func (f *Fiber) Name() string { return f.name }

// Status atomically reads the fiber's state.
func (f *Fiber) Status() Status { return Status(f.status.Load()) }

func (f *Fiber) setStatus(s Status) { f.status.Store(int32(s)) }

// Worker returns the worker this fiber is pinned to; fibers never migrate.
func (f *Fiber) Worker() *Worker { return f.worker }

func (f *Fiber) String() string {
	return fmt.Sprintf("Fiber[%d:%s:%s]", f.id, f.name, f.Status())
}

// clearForRecycle drops the entry/arg/stack-equivalent state, per the
// invariant that a fiber's entry function and argument are cleared on
// transition into ZOMBIE/DEAD.
func (f *Fiber) clearForRecycle() {
	f.entry = nil
	f.arg = nil
	f.inherited = nil
	f.joiner = nil
	f.pendingSendData = nil
}
