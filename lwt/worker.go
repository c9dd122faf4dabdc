package lwt

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Worker hosts a scheduler and a set of fibers pinned to it for life.
// Fibers never migrate between workers. Within a worker exactly one fiber
// executes at a time; concurrency across workers is mediated entirely by
// each worker's mailbox (see mailbox.go).
//
// The "native thread handle" the spec describes has no single goroutine
// counterpart in this Go implementation: each fiber, idle included, is a
// dedicated goroutine parked on a single-slot baton channel, resumed only
// by the worker's own dispatch code (kickoff hands out the first baton of
// a NewWorker) (see fiber.go's doc comment and
// DESIGN.md for why this stands in for hand-rolled register save/restore).
type Worker struct {
	ID     uuid.UUID
	logger *zap.SugaredLogger

	stackSize int
	mailbox   *mailbox

	runQ, waitQ *queue

	// zombieQ/deadQ are additionally guarded by zqMu: join() is the one
	// operation that inspects and mutates a *foreign* worker's
	// bookkeeping directly, outside the mailbox protocol (see
	// DESIGN.md "Open Question resolutions").
	zqMu          sync.Mutex
	zombieQ, deadQ *queue

	main, idle *Fiber
	current    *Fiber

	stopRequested atomic.Bool
	winddown      chan struct{}
}

// NewRootWorker creates a worker with no initial fiber: the calling
// goroutine itself plays the role of the worker's main fiber (Main()),
// the same way the C original's single-threaded program before any
// lwt_create call is implicitly "the first lwt". Callers spawn fibers
// onto it with Spawn, then drive scheduling by calling a method on
// Main() — Yield, Block, Join, or Die. There is deliberately no Start
// step: dispatch begins naturally at that first call, which enqueues and
// parks Main() before handing off to anything else (see kickoff's doc
// comment for why an explicit up-front dispatch would race).
func NewRootWorker(opts ...Option) *Worker {
	cfg := defaultOptions()
	for _, o := range opts {
		o(&cfg)
	}
	w := newBareWorker(cfg)
	w.spawnIdle()
	return w
}

// NewWorker is the kthd_create equivalent: it allocates a worker and its
// initial fiber and starts the worker's native goroutine immediately. If
// inherited is non-nil, caller is added to inherited's sender set and
// inherited's receiver is reassigned to the new initial fiber — channel
// delegation across workers.
func NewWorker(caller *Fiber, entry EntryFunc, arg any, inherited *Channel, opts ...Option) (*Worker, error) {
	if entry == nil {
		return nil, ErrAllocFail
	}
	cfg := defaultOptions()
	for _, o := range opts {
		o(&cfg)
	}
	w := newBareWorker(cfg)
	w.spawnIdle()

	initial := w.allocFiber("init", FlagNoJoin, entry, arg, inherited)
	initial.worker = w
	w.runQ.Enqueue(initial)
	go w.runFiberGoroutine(initial)

	if inherited != nil {
		if caller != nil {
			inherited.registerSender(caller)
		}
		inherited.receiver = initial
	}

	w.kickoff()
	return w, nil
}

func newBareWorker(cfg options) *Worker {
	w := &Worker{
		ID:        uuid.New(),
		logger:    cfg.logger,
		stackSize: cfg.stackSize,
		mailbox:   newMailbox(),
		runQ:      newQueue("run"),
		waitQ:     newQueue("wait"),
		zombieQ:   newQueue("zombie"),
		deadQ:     newQueue("dead"),
		winddown:  make(chan struct{}),
	}
	w.main = newFiber("main", FlagNoJoin, nil, nil, nil)
	w.main.worker = w
	w.main.setStatus(StatusRunning)
	w.current = w.main
	return w
}

func (w *Worker) spawnIdle() {
	w.idle = newFiber("idle", FlagNoJoin, idleEntry, w, nil)
	w.idle.worker = w
	w.runQ.Enqueue(w.idle)
	go w.runFiberGoroutine(w.idle)
}

// Wait blocks until the worker has wound down (see Close).
func (w *Worker) Wait() { <-w.winddown }

// Close requests that the worker wind down once quiescent: no blocked
// fibers, no other runnable fiber besides idle, and an empty mailbox.
// This is a Go-necessary addition (the C original never tears its worker
// threads down); see DESIGN.md "Open Question resolutions".
func (w *Worker) Close() {
	w.stopRequested.Store(true)
}

// kickoff performs a brand-new worker's first hand-off, dispatching
// whichever fiber currently heads the run queue (always the idle fiber:
// see spawnIdle/NewWorker ordering). It is only safe to call when nothing
// else is concurrently acting as this worker's "current" fiber — true
// for NewWorker, whose external caller returns immediately afterward and
// never touches w again except via Wait/Close, but NOT true for a root
// worker (see NewRootWorker): there the external goroutine that built w
// keeps running synchronously as w.main, so signaling another fiber's
// turn here would let two goroutines mutate w's queues concurrently. A
// root worker's first dispatch instead happens naturally the moment
// main calls Yield/Block/Join/Die, which already enqueues and parks it
// before handing off — see those methods.
func (w *Worker) kickoff() {
	first := w.runQ.Dequeue()
	if first == nil {
		close(w.winddown)
		return
	}
	w.current = first
	first.setStatus(StatusRunning)
	first.turn <- struct{}{}
}

func (w *Worker) runFiberGoroutine(f *Fiber) {
	<-f.turn
	ret := func() (r any) {
		defer func() {
			if rec := recover(); rec != nil {
				f.err = errPanic{rec}
			}
		}()
		return f.entry(f, f.arg, f.inherited)
	}()
	w.die(f, ret)
}

type errPanic struct{ v any }

func (e errPanic) Error() string { return "lwt: fiber panic" }

// ---- dispatch primitives -------------------------------------------------

// switchTo resumes next and parks cur; cur resumes exactly here the next
// time it is dispatched. All shared-queue mutation must happen before
// this call: the only thing cur does afterward is block on its own
// baton, so the brief window between waking next and parking cur is race
// free.
func (w *Worker) switchTo(cur, next *Fiber) {
	w.current = next
	next.setStatus(StatusRunning)
	next.turn <- struct{}{}
	<-cur.turn
}

// switchAway resumes next without parking the caller; used by die, whose
// goroutine never runs again.
func (w *Worker) switchAway(next *Fiber) {
	w.current = next
	next.setStatus(StatusRunning)
	next.turn <- struct{}{}
}

func (w *Worker) resurrectIdle() {
	if w.idle.queue == nil && w.idle.Status() != StatusRunning {
		w.idle.setStatus(StatusReady)
		w.runQ.Enqueue(w.idle)
	}
}

func (w *Worker) wakeAllBlocked() {
	for {
		f := w.waitQ.Peek()
		if f == nil {
			break
		}
		w.waitQ.Remove(f)
		f.setStatus(StatusReady)
		w.runQ.Enqueue(f)
	}
}

// ---- scheduler operations -------------------------------------------------

// Spawn creates and schedules a new fiber on this worker, popping a
// descriptor from the dead pool (refilling in batches of 64 when empty).
// If inherited is non-nil its receiver is reassigned to the new fiber
// (delegation at birth).
func (w *Worker) Spawn(name string, flags Flags, entry EntryFunc, arg any, inherited *Channel) *Fiber {
	f := w.allocFiber(name, flags, entry, arg, inherited)
	w.runQ.Enqueue(f)
	if inherited != nil {
		inherited.receiver = f
	}
	go w.runFiberGoroutine(f)
	return f
}

func (w *Worker) allocFiber(name string, flags Flags, entry EntryFunc, arg any, inherited *Channel) *Fiber {
	f := w.deadQ.Dequeue()
	if f == nil {
		w.refillDeadPool()
		f = w.deadQ.Dequeue()
	}
	f.id = fiberIDSeq.Add(1)
	f.name = name
	f.flags = flags
	f.entry = entry
	f.arg = arg
	f.inherited = inherited
	f.retval = nil
	f.err = nil
	f.joiner = nil
	f.worker = w
	f.setStatus(StatusReady)
	return f
}

func (w *Worker) refillDeadPool() {
	const batch = 64
	for i := 0; i < batch; i++ {
		shell := &Fiber{joinMu: newJoinLock(), turn: make(chan struct{}, 1)}
		shell.setStatus(StatusDead)
		w.deadQ.Enqueue(shell)
	}
}

// Yield rotates cur to the tail of the run queue, marking it READY. If
// target is given and lives on another worker, a YIELD message is posted
// there and the local pick proceeds; if target is local and BLOCKED or
// READY, it is spliced to the front of the run queue (granted the CPU
// immediately). The new head becomes RUNNING and dispatch occurs.
func (w *Worker) Yield(cur *Fiber, target *Fiber) {
	cur.setStatus(StatusReady)
	w.runQ.Enqueue(cur)

	if target != nil {
		if target.worker != w {
			target.worker.mailbox.post(message{op: opYield, fiber: target})
		} else {
			switch target.Status() {
			case StatusBlocked:
				w.waitQ.Remove(target)
				w.runQ.InsertBefore(w.runQ.Peek(), target)
				target.setStatus(StatusReady)
			case StatusReady:
				if target.queue == w.runQ {
					w.runQ.Remove(target)
				}
				w.runQ.InsertBefore(w.runQ.Peek(), target)
			}
		}
	}

	next := w.runQ.Dequeue()
	w.switchTo(cur, next)
}

// die transitions f to FINISHED, wakes its joiner if any, and otherwise
// recycles it (NOJOIN) or parks it as a ZOMBIE awaiting join. If the run
// queue is empty afterward, every blocked fiber is woken as a
// deadlock-avoidance escape hatch for a pending cross-worker wakeup.
func (w *Worker) die(f *Fiber, retval any) {
	f.retval = retval
	f.setStatus(StatusFinished)

	f.joinMu.Lock()
	joiner := f.joiner
	f.joinMu.Unlock()

	switch {
	case joiner != nil:
		wake(f.worker, joiner)
	case f.flags&FlagNoJoin != 0:
		f.setStatus(StatusDead)
		f.clearForRecycle()
		w.zqMu.Lock()
		w.deadQ.Enqueue(f)
		w.zqMu.Unlock()
	default:
		f.setStatus(StatusZombie)
		w.zqMu.Lock()
		f.entry, f.arg, f.inherited = nil, nil, nil
		w.zombieQ.Enqueue(f)
		w.zqMu.Unlock()
	}

	if w.runQ.Len() == 0 {
		w.wakeAllBlocked()
	}

	next := w.runQ.Dequeue()
	if next == nil {
		close(w.winddown)
		return
	}
	w.switchAway(next)
}

// block moves self from the run queue to the wait queue (BLOCKED) and
// dispatches the new run-queue head, resurrecting the idle fiber first
// if the run queue would otherwise be empty.
func (w *Worker) block(self *Fiber) {
	w.blockPrepare(self)
	w.blockDispatch(self)
}

// blockPrepare marks self BLOCKED and moves it to the wait queue without
// dispatching away yet. Split out from block so a caller can publish a
// cross-worker wake condition (a mailbox post) only after self is
// already visibly BLOCKED — otherwise the foreign worker could drain and
// process the message before self finishes parking, and a wake() arriving
// in that window would be silently dropped (wake is a no-op unless the
// target is already BLOCKED).
func (w *Worker) blockPrepare(self *Fiber) {
	w.waitQ.Enqueue(self)
	self.setStatus(StatusBlocked)
}

// blockDispatch completes a block begun with blockPrepare by handing off
// to the next runnable fiber.
func (w *Worker) blockDispatch(self *Fiber) {
	if w.runQ.Len() == 0 {
		w.resurrectIdle()
	}
	next := w.runQ.Dequeue()
	w.switchTo(self, next)
}

// blockTarget blocks f; if f is self it is a plain block(), otherwise f
// is moved directly from run to wait without dispatching (used to
// service a mailbox BLOCK message against a local fiber).
func (w *Worker) blockTarget(self, f *Fiber) {
	if f == self {
		w.block(self)
		return
	}
	if f.queue == w.runQ {
		w.runQ.Remove(f)
	}
	w.waitQ.Enqueue(f)
	f.setStatus(StatusBlocked)
}

// blockAndWake parks self and, if target is local, splices it to the
// front of the run queue as READY; if target lives elsewhere a WAKEUP is
// posted there instead. Used by the buffered-send-on-full path to nudge
// the receiver awake without waiting for a full wake() round trip.
func (w *Worker) blockAndWake(self, target *Fiber) {
	w.waitQ.Enqueue(self)
	self.setStatus(StatusBlocked)

	if target != nil {
		if target.worker == w {
			switch target.queue {
			case w.waitQ:
				w.waitQ.Remove(target)
			case w.runQ:
				w.runQ.Remove(target)
			}
			w.runQ.InsertBefore(w.runQ.Peek(), target)
			target.setStatus(StatusReady)
		} else {
			target.worker.mailbox.post(message{op: opWakeup, fiber: target})
		}
	}

	if w.runQ.Len() == 0 {
		w.resurrectIdle()
	}
	next := w.runQ.Dequeue()
	w.switchTo(self, next)
}

// wake moves f from BLOCKED to READY. callerWorker is the worker
// executing the call; if it owns f the move happens in place, otherwise
// a WAKEUP message is posted to f's owner.
func wake(callerWorker *Worker, f *Fiber) {
	if f.Status() != StatusBlocked {
		return
	}
	if f.worker == callerWorker {
		callerWorker.waitQ.Remove(f)
		f.setStatus(StatusReady)
		callerWorker.runQ.Enqueue(f)
	} else {
		f.worker.mailbox.post(message{op: opWakeup, fiber: f})
	}
}

// ---- idle loop / mailbox pump --------------------------------------------

func idleEntry(self *Fiber, arg any, _ *Channel) any {
	w := arg.(*Worker)
	for {
		if w.shouldStop() {
			return nil
		}
		if msg, ok := w.mailbox.drain(); ok {
			w.handleMessage(self, msg)
		} else {
			self.Yield(nil)
		}
	}
}

func (w *Worker) shouldStop() bool {
	return w.stopRequested.Load() && w.waitQ.Len() == 0 && w.runQ.Len() == 0 && w.mailbox.len() == 0
}

func (w *Worker) handleMessage(self *Fiber, msg message) {
	switch msg.op {
	case opYield:
		w.Yield(self, msg.fiber)
	case opWakeup:
		wake(w, msg.fiber)
	case opBlock:
		w.blockTarget(self, msg.fiber)
	case opSndBlocked:
		msg.channel.sendOnOwnerRendezvous(w, msg.fiber, msg.data)
	case opSndBuffered:
		msg.channel.sendOnOwnerBuffered(w, msg.fiber, msg.data)
	}
}

// ---- diagnostics -----------------------------------------------------------

// Current returns the fiber currently running on this worker. Only safe
// to call from within a fiber running on w.
func (w *Worker) Current() *Fiber { return w.current }

// Main returns the worker's main fiber — the external goroutine that
// constructed the worker, participating in the schedule without a
// dedicated dispatch goroutine of its own (see NewRootWorker).
func (w *Worker) Main() *Fiber { return w.main }

// Info returns one of the three scheduler counters.
func (w *Worker) Info(kind InfoKind) int {
	switch kind {
	case InfoRunnable:
		return w.runQ.Len()
	case InfoZombies:
		return w.zombieQ.Len()
	case InfoBlocked:
		return w.waitQ.Len()
	default:
		return 0
	}
}

// Snapshot returns all three InfoKind counters in one call — additive
// convenience over the C original's single-counter lwt_info.
func (w *Worker) Snapshot() (runnable, zombies, blocked int) {
	return w.runQ.Len(), w.zombieQ.Len(), w.waitQ.Len()
}
