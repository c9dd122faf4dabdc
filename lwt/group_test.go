package lwt

import "testing"

func TestGroupWaitReceivesQueuedSendEvent(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	group := NewGroup("g")
	var ch *Channel
	var got *Channel

	waiter := w.Spawn("waiter", FlagNone, func(self *Fiber, arg any, _ *Channel) any {
		// self must be both the Add-er and the Wait-er: Wait determines
		// its caller's direction from the listener set Add populated, and
		// the caller it parks is whichever fiber is actually executing.
		ch = NewChannel(self, 1, "c") // buffered: Send need not wait on a Recv
		if err := group.Add(self, ch, DirSnd); err != nil {
			return err
		}
		c, _, err := group.Wait(self)
		got = c
		return err
	}, nil, nil)

	main.Yield(waiter) // run far enough to create ch, Add, and block in Wait

	sender := w.Spawn("sender", FlagNone, func(self *Fiber, arg any, _ *Channel) any {
		return ch.Send(self, 1)
	}, nil, nil)

	if _, err := main.Join(sender); err != nil {
		t.Fatalf("join sender: %v", err)
	}
	if ret, err := main.Join(waiter); err != nil {
		t.Fatalf("join waiter: %v", err)
	} else if ret != nil {
		t.Fatalf("group.Wait returned error: %v", ret)
	}
	if got != ch {
		t.Errorf("group.Wait() = %v, want %v", got, ch)
	}
	w.Close()
}

func TestGroupAddRejectsDuplicateDirectionRegistration(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	group := NewGroup("g")
	ch := NewChannel(main, 0, "c")

	if err := group.Add(main, ch, DirSnd); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := group.Add(main, ch, DirSnd); err != ErrDirectionConflict {
		t.Errorf("second Add() = %v, want ErrDirectionConflict", err)
	}
	if len(group.members[DirSnd]) != 1 {
		t.Errorf("members[DirSnd] has %d entries, want 1", len(group.members[DirSnd]))
	}
	w.Close()
}

func TestGroupAddRejectsWrongRoleForDirSnd(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	group := NewGroup("g")
	ch := NewChannel(main, 0, "c") // main is ch's receiver
	outsider := newTestFiber("outsider")

	if err := group.Add(outsider, ch, DirSnd); err != ErrDirectionConflict {
		t.Errorf("Add() by non-receiver = %v, want ErrDirectionConflict", err)
	}
	if ch.groups[DirSnd] != nil {
		t.Error("channel should have no DirSnd membership after a rejected Add")
	}
	w.Close()
}

func TestGroupAddAllowsAnyCallerForDirRcv(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	group := NewGroup("g")
	ch := NewChannel(main, 0, "c")
	outsider := newTestFiber("outsider")

	if err := group.Add(outsider, ch, DirRcv); err != nil {
		t.Errorf("Add() for DirRcv by non-receiver = %v, want nil", err)
	}
	w.Close()
}

func TestGroupRemoveClearsChannelBackReference(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	group := NewGroup("g")
	ch := NewChannel(main, 0, "c")
	if err := group.Add(main, ch, DirRcv); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := group.Remove(main, ch, DirRcv); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if ch.groups[DirRcv] != nil {
		t.Error("channel should have no group back-reference after Remove")
	}
	if len(group.members[DirRcv]) != 0 {
		t.Error("group should have no members after Remove")
	}
	if len(group.listeners[DirRcv]) != 0 {
		t.Error("group should have no listeners after Remove")
	}
	w.Close()
}

// TestGroupRemoveRejectsWhileEventsOutstanding exercises cgrp_rem's busy
// guard: a channel with an undelivered notification can't be pulled out
// of the group until a Wait actually drains it.
func TestGroupRemoveRejectsWhileEventsOutstanding(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	group := NewGroup("g")
	ch := NewChannel(main, 1, "c")
	if err := group.Add(main, ch, DirSnd); err != nil {
		t.Fatalf("Add: %v", err)
	}

	sender := w.Spawn("sender", FlagNone, func(self *Fiber, arg any, _ *Channel) any {
		return ch.Send(self, 1)
	}, nil, nil)
	if _, err := main.Join(sender); err != nil {
		t.Fatalf("join sender: %v", err)
	}

	if err := group.Remove(main, ch, DirSnd); err != ErrGroupBusy {
		t.Errorf("Remove() with an outstanding event = %v, want ErrGroupBusy", err)
	}

	if _, _, err := group.Wait(main); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := group.Remove(main, ch, DirSnd); err != nil {
		t.Errorf("Remove() after drain = %v, want nil", err)
	}
	w.Close()
}

func TestGroupFreeFailsWhileChannelsRegistered(t *testing.T) {
	w := NewRootWorker()
	main := w.Main()

	group := NewGroup("g")
	c1 := NewChannel(main, 0, "c1")
	c2 := NewChannel(main, 0, "c2")
	if err := group.Add(main, c1, DirSnd); err != nil {
		t.Fatalf("Add c1: %v", err)
	}
	if err := group.Add(main, c2, DirRcv); err != nil {
		t.Fatalf("Add c2: %v", err)
	}

	if err := group.Free(); err != ErrGroupBusy {
		t.Errorf("Free() with channels registered = %v, want ErrGroupBusy", err)
	}

	if err := group.Remove(main, c1, DirSnd); err != nil {
		t.Fatalf("Remove c1: %v", err)
	}
	if err := group.Remove(main, c2, DirRcv); err != nil {
		t.Fatalf("Remove c2: %v", err)
	}

	if err := group.Free(); err != nil {
		t.Errorf("Free() after removing all channels = %v, want nil", err)
	}
	w.Close()
}

// TestGroupWaitAcrossCrossWorkerSend exercises a group event raised by a
// cross-worker send: the send happens on a different worker than the one
// the group waiter parked on, so Send posts it to the owner's mailbox and
// the owner worker re-drives it, queuing the group event and waking the
// waiter on its own worker. Run with -race.
func TestGroupWaitAcrossCrossWorkerSend(t *testing.T) {
	handoff := make(chan *Channel, 1)
	results := make(chan *Channel, 1)

	wB, err := NewWorker(nil, func(self *Fiber, arg any, _ *Channel) any {
		ch := NewChannel(self, 1, "cross") // buffered: Send need not wait on a Recv
		group := NewGroup("g")
		if err := group.Add(self, ch, DirSnd); err != nil {
			return err
		}
		handoff <- ch
		got, _, _ := group.Wait(self)
		results <- got
		return nil
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	ch := <-handoff

	wA, err := NewWorker(nil, func(self *Fiber, arg any, _ *Channel) any {
		c := arg.(*Channel)
		return c.Send(self, 7)
	}, ch, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	if got := <-results; got != ch {
		t.Errorf("group.Wait() = %v, want %v", got, ch)
	}
	wA.Close()
	wB.Close()
	wA.Wait()
	wB.Wait()
}
