package lwt

import "testing"

func TestForkJoinIdentity(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	const sentinel = 0x37337
	child := w.Spawn("identity", FlagNone, func(self *Fiber, arg any, _ *Channel) any {
		return arg
	}, sentinel, nil)

	ret, err := main.Join(child)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if ret != sentinel {
		t.Errorf("Join() = %v, want %#x", ret, sentinel)
	}

	if r, z, b := w.Snapshot(); r != 1 || z != 0 || b != 0 {
		t.Errorf("Snapshot() = (%d,%d,%d), want (1,0,0)", r, z, b)
	}
	w.Close()
}

func TestYieldBounce(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	bounce := func(self *Fiber, arg any, _ *Channel) any {
		n := arg.(int)
		for i := 0; i < n; i++ {
			self.Yield(nil)
		}
		return nil
	}

	c1 := w.Spawn("bounce-1", FlagNone, bounce, 10, nil)
	c2 := w.Spawn("bounce-2", FlagNone, bounce, 10, nil)

	if _, err := main.Join(c1); err != nil {
		t.Fatalf("join c1: %v", err)
	}
	if _, err := main.Join(c2); err != nil {
		t.Fatalf("join c2: %v", err)
	}

	if r, z, b := w.Snapshot(); r != 1 || z != 0 || b != 0 {
		t.Errorf("Snapshot() = (%d,%d,%d), want (1,0,0)", r, z, b)
	}
	w.Close()
}

func TestSequenceInterleaveInvariant(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	var sched [2]int
	curr := 0
	violated := false

	seq := func(val int) EntryFunc {
		return func(self *Fiber, arg any, _ *Channel) any {
			for i := 0; i < 200; i++ {
				other := curr
				curr = (curr + 1) % 2
				sched[curr] = val
				if sched[other] == val {
					violated = true
				}
				self.Yield(nil)
			}
			return nil
		}
	}

	c1 := w.Spawn("sequence-1", FlagNone, seq(1), nil, nil)
	c2 := w.Spawn("sequence-2", FlagNone, seq(2), nil, nil)

	main.Join(c2)
	main.Join(c1)

	if violated {
		t.Error("sequence interleave invariant was violated")
	}
	w.Close()
}

func TestDirectedYieldLandsInZombieQueue(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	child := w.Spawn("directed", FlagNone, func(self *Fiber, arg any, _ *Channel) any {
		return nil
	}, nil, nil)

	main.Yield(child)

	if z := w.Info(InfoZombies); z != 1 {
		t.Errorf("Info(InfoZombies) = %d, want 1", z)
	}
	if _, err := main.Join(child); err != nil {
		t.Fatalf("join: %v", err)
	}
	w.Close()
}

func TestNestedJoinsZombieCountBeforeJoin(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	inner := w.Spawn("inner", FlagNone, func(self *Fiber, arg any, _ *Channel) any {
		return nil
	}, nil, nil)

	main.Yield(inner)
	if z := w.Info(InfoZombies); z != 1 {
		t.Fatalf("Info(InfoZombies) = %d, want 1", z)
	}

	if _, err := main.Join(inner); err != nil {
		t.Fatalf("join: %v", err)
	}
	if r, z, b := w.Snapshot(); r != 1 || z != 0 || b != 0 {
		t.Errorf("Snapshot() = (%d,%d,%d), want (1,0,0)", r, z, b)
	}
	w.Close()
}

func TestJoinRejectsNilAndSelf(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	if _, err := main.Join(nil); err != ErrInvalidTarget {
		t.Errorf("Join(nil) err = %v, want ErrInvalidTarget", err)
	}
	if _, err := main.Join(main); err != ErrInvalidTarget {
		t.Errorf("Join(self) err = %v, want ErrInvalidTarget", err)
	}
	w.Close()
}

func TestJoinRejectsNoJoinFlag(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	child := w.Spawn("nojoin", FlagNoJoin, func(self *Fiber, arg any, _ *Channel) any {
		return nil
	}, nil, nil)

	if _, err := main.Join(child); err != ErrNotJoinable {
		t.Errorf("Join() err = %v, want ErrNotJoinable", err)
	}
	w.Close()
}

func TestJoinRejectsSecondJoiner(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	child := w.Spawn("slow", FlagNone, func(self *Fiber, arg any, _ *Channel) any {
		self.Yield(nil) // stay alive long enough for both joins below to race
		return nil
	}, nil, nil)

	joiner1 := w.Spawn("joiner1", FlagNone, func(self *Fiber, arg any, _ *Channel) any {
		_, err := self.Join(child)
		return err
	}, nil, nil)

	// Directed yield to joiner1: it registers as child's joiner and blocks,
	// cooperatively handing control back to main by the time child's own
	// single Yield resumes it.
	main.Yield(joiner1)

	if _, err := main.Join(child); err != ErrNotJoinable {
		t.Errorf("second Join() err = %v, want ErrNotJoinable", err)
	}
	w.Close()
}

func TestNewWorkerSpawnsAndWindsDown(t *testing.T) {
	w, err := NewWorker(nil, func(self *Fiber, arg any, _ *Channel) any {
		return arg
	}, 7, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	w.Close()
	w.Wait()
}

func TestNewWorkerRejectsNilEntry(t *testing.T) {
	if _, err := NewWorker(nil, nil, nil, nil); err != ErrAllocFail {
		t.Errorf("NewWorker(nil entry) err = %v, want ErrAllocFail", err)
	}
}
