package lwt

import "runtime"

// Yield is the fiber-level convenience wrapper around Worker.Yield: the
// caller rotates to the run queue's tail, optionally granting the CPU to
// target immediately.
func (f *Fiber) Yield(target *Fiber) { f.worker.Yield(f, target) }

// Die kills the calling fiber, recording retval as its return value. It
// never returns to the caller.
func (f *Fiber) Die(retval any) {
	f.worker.die(f, retval)
	runtime.Goexit()
}

// Block parks the calling fiber until something wakes it.
func (f *Fiber) Block() { f.worker.block(f) }

// Join is the fiber-level convenience wrapper around the package-level
// Join.
func (f *Fiber) Join(target *Fiber) (any, error) { return Join(f, target) }

// Join blocks caller until target reaches FINISHED/ZOMBIE, then returns
// target's return value and recycles target to its worker's dead pool.
// It fails if target is nil, is caller itself, is already DEAD, carries
// FlagNoJoin, or already has a joiner.
func Join(caller, target *Fiber) (any, error) {
	if target == nil || target == caller {
		return nil, ErrInvalidTarget
	}
	if target.Status() == StatusDead {
		return nil, ErrInvalidTarget
	}
	if target.flags&FlagNoJoin != 0 {
		return nil, ErrNotJoinable
	}

	target.joinMu.Lock()
	if target.joiner != nil {
		target.joinMu.Unlock()
		return nil, ErrNotJoinable
	}
	target.joiner = caller
	target.joinMu.Unlock()

	w := caller.worker
	for target.Status() < StatusFinished {
		w.block(caller)
	}

	retval := target.retval

	tw := target.worker
	tw.zqMu.Lock()
	if target.queue == tw.zombieQ {
		tw.zombieQ.Remove(target)
	}
	target.setStatus(StatusDead)
	target.clearForRecycle()
	tw.deadQ.Enqueue(target)
	tw.zqMu.Unlock()

	return retval, nil
}
