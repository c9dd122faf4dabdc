package lwt

import (
	"sync"
	"sync/atomic"
)

var groupIDSeq atomic.Int64

// Group multiplexes readiness events from a set of channels, registered
// per direction (DirSnd or DirRcv), so a fiber can wait on "whichever of
// these channels is ready" instead of blocking on one at a time.
//
// Each direction also holds a listener set: the fibers that have
// registered at least one channel for that direction. Wait uses it to
// determine the caller's own listening direction rather than being told
// one, mirroring cgrp_wait's out_dir parameter.
type Group struct {
	id   int64
	name string

	mu sync.Mutex

	members   [2]map[int64]*groupMembership // channel id -> membership, per direction
	listeners [2]map[*Fiber]int              // listener -> channels registered there, per direction

	eventQ     [2][]*Channel // channels with a coalesced pending event, per direction
	eventCount [2]int64      // outstanding (undelivered) event count, per direction

	waitQ [2][]*Fiber // fibers parked in Wait, per direction
}

// NewGroup creates an empty channel group.
func NewGroup(name string) *Group {
	g := &Group{
		id:   groupIDSeq.Add(1),
		name: name,
	}
	for d := 0; d < 2; d++ {
		g.members[d] = make(map[int64]*groupMembership)
		g.listeners[d] = make(map[*Fiber]int)
	}
	return g
}

// Name returns the group's diagnostic name.
func (g *Group) Name() string { return g.name }

// Add registers ch with the group for direction dir on caller's behalf.
// For DirSnd (caller will wait for ch to become sendable) caller must be
// ch's current receiver — the role that will eventually observe ch
// become sendable. Both directions additionally fail with
// ErrDirectionConflict if ch already belongs to any group (this one or
// another) for that direction. On success caller joins that direction's
// listener set and ch.groups[dir] points at the new membership.
func (g *Group) Add(caller *Fiber, ch *Channel, dir Direction) error {
	if dir == DirSnd {
		ch.mu.Lock()
		receiver := ch.receiver
		ch.mu.Unlock()
		if receiver != caller {
			return ErrDirectionConflict
		}
	}

	ch.mu.Lock()
	conflict := ch.groups[dir] != nil
	ch.mu.Unlock()
	if conflict {
		return ErrDirectionConflict
	}

	gm := &groupMembership{group: g, channel: ch}

	g.mu.Lock()
	g.members[dir][ch.id] = gm
	g.listeners[dir][caller]++
	g.mu.Unlock()

	ch.mu.Lock()
	ch.groups[dir] = gm
	ch.mu.Unlock()
	return nil
}

// Remove unregisters ch from the group for direction dir on caller's
// behalf. It fails with ErrGroupBusy, leaving ch untouched, if either of
// ch's two directions still has an outstanding (undelivered) event —
// matching cgrp_rem's rule that a channel with pending events can't be
// pulled out from under a Wait that hasn't collected them yet. On success
// it clears ch's back-reference for dir and drops caller from that
// direction's listener set once caller has no other channel registered
// there.
func (g *Group) Remove(caller *Fiber, ch *Channel, dir Direction) error {
	ch.mu.Lock()
	for d := 0; d < 2; d++ {
		if gm := ch.groups[d]; gm != nil && gm.events != 0 {
			ch.mu.Unlock()
			return ErrGroupBusy
		}
	}
	gm := ch.groups[dir]
	ch.mu.Unlock()

	if gm == nil || gm.group != g {
		return nil
	}

	g.mu.Lock()
	delete(g.members[dir], ch.id)
	if n := g.listeners[dir][caller]; n > 1 {
		g.listeners[dir][caller] = n - 1
	} else {
		delete(g.listeners[dir], caller)
	}
	g.mu.Unlock()

	ch.mu.Lock()
	ch.groups[dir] = nil
	ch.mu.Unlock()
	return nil
}

// Free releases the group, failing with ErrGroupBusy if any channel is
// still registered for either direction (callers must Remove every
// channel first — matching cgrp_free). A successful Free has nothing
// left to clear: Remove already drops each channel's back-reference and
// listener entry as it goes.
func (g *Group) Free() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.members[DirSnd]) > 0 || len(g.members[DirRcv]) > 0 {
		return ErrGroupBusy
	}
	return nil
}

// listenerDirection reports the direction caller is registered as a
// listener for. Must be called with g.mu held.
func (g *Group) listenerDirection(caller *Fiber) (Direction, bool) {
	if g.listeners[DirSnd][caller] > 0 {
		return DirSnd, true
	}
	if g.listeners[DirRcv][caller] > 0 {
		return DirRcv, true
	}
	return 0, false
}

// Wait determines caller's listening direction from the listener set it
// belongs to (ErrDirectionConflict if it belongs to neither), then blocks
// until a registered channel in that direction has a pending event.
// On wake it dequeues the first such channel, decrements its event
// counters, and returns it along with the direction it was waiting on.
// Coalesced events (multiple sends/receives queued before a Wait drains
// them) are delivered as a single readiness notification per channel,
// matching Channel's own event coalescing.
func (g *Group) Wait(caller *Fiber) (*Channel, Direction, error) {
	w := caller.worker

	g.mu.Lock()
	dir, ok := g.listenerDirection(caller)
	g.mu.Unlock()
	if !ok {
		return nil, 0, ErrDirectionConflict
	}

	for {
		g.mu.Lock()
		if len(g.eventQ[dir]) > 0 {
			ch := g.eventQ[dir][0]
			g.eventQ[dir] = g.eventQ[dir][1:]
			g.eventCount[dir]--
			g.mu.Unlock()

			ch.mu.Lock()
			if gm := ch.groups[dir]; gm != nil {
				gm.queued = false
				gm.events--
			}
			ch.mu.Unlock()
			return ch, dir, nil
		}
		g.waitQ[dir] = append(g.waitQ[dir], caller)
		g.mu.Unlock()

		w.block(caller)
	}
}
