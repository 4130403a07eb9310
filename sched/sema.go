package sched

import (
	"github.com/joeycumines/go-kernsched/internal/ordq"
	"github.com/joeycumines/go-kernsched/kassert"
)

// Semaphore is a counting semaphore. Blocked threads are woken in priority
// order, FIFO among equal priorities.
type Semaphore struct {
	s       *Scheduler
	waiters *ordq.Queue[handle]
	value   uint
}

// NewSemaphore returns a semaphore with the given initial value. It may be
// called before the scheduler is started.
func (s *Scheduler) NewSemaphore(value uint) *Semaphore {
	return &Semaphore{
		s:       s,
		waiters: ordq.New(s.byPriority),
		value:   value,
	}
}

// Down waits for the value to become positive, then decrements it. Calling
// Down from interrupt context is a contract violation.
func (x *Semaphore) Down() {
	s := x.s
	kassert.That(!s.ic.InContext(), `sched.Semaphore.Down`, `called from interrupt context`)

	g := s.ic.Guard()
	for x.value == 0 {
		t := s.running()
		t.waitingOn = x
		x.waiters.Insert(t.h)
		s.trace(EventBlock, t, 0)
		s.block(StatusBlocked)
	}
	x.value--
	g.Restore()
}

// TryDown decrements the value if it is positive, without blocking,
// reporting whether it did so. It may be called from interrupt context.
func (x *Semaphore) TryDown() bool {
	g := x.s.ic.Guard()
	defer g.Restore()
	if x.value == 0 {
		return false
	}
	x.value--
	return true
}

// Up increments the value, and wakes the highest priority waiter, if any.
// If the woken thread has a higher priority than the running thread, the
// running thread yields. It may be called from interrupt context, in which
// case the yield happens when the handler returns.
func (x *Semaphore) Up() {
	s := x.s
	g := s.ic.Guard()
	var woken *thread
	if h, ok := x.waiters.PopFront(); ok {
		woken = s.arena.get(h)
		s.unblock(woken)
		s.trace(EventUnblock, woken, int64(s.running().id))
	}
	x.value++
	preempt := woken != nil && woken.priority > s.running().priority
	g.Restore()

	if preempt {
		s.preempt()
	}
}

// Value returns the current value.
func (x *Semaphore) Value() uint { return x.value }

// Waiters returns the IDs of the blocked threads, in the order they will be
// woken.
func (x *Semaphore) Waiters() []ID {
	g := x.s.ic.Guard()
	defer g.Restore()
	ids := make([]ID, 0, x.waiters.Len())
	for i := 0; i < x.waiters.Len(); i++ {
		ids = append(ids, x.s.arena.get(x.waiters.Get(i)).id)
	}
	return ids
}
