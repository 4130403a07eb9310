package sched

import (
	"github.com/joeycumines/go-kernsched/kassert"
)

type (
	// Lock is a mutual exclusion lock, held by at most one thread at a time.
	// Unlike a semaphore, a lock has an owner: only the thread that acquired
	// it may release it. Locks are not recursive, and do not donate priority
	// to their holder.
	Lock struct {
		sema   *Semaphore
		holder *thread
	}

	// Cond is a condition variable, with Mesa semantics: signaling a
	// condition wakes a waiter, which must re-check the condition once it
	// reacquires the lock. Waiters are woken in priority order, FIFO among
	// equal priorities.
	Cond struct {
		s       *Scheduler
		waiters []*condWaiter
	}

	condWaiter struct {
		sema *Semaphore
		t    *thread
	}
)

// NewLock returns an unheld lock.
func (s *Scheduler) NewLock() *Lock {
	return &Lock{sema: s.NewSemaphore(1)}
}

// Acquire waits until the lock is available, and takes it. Acquiring a lock
// already held by the caller, or from interrupt context, is a contract
// violation.
func (x *Lock) Acquire() {
	s := x.sema.s
	kassert.That(!s.ic.InContext(), `sched.Lock.Acquire`, `called from interrupt context`)
	kassert.That(!x.HeldByCurrent(), `sched.Lock.Acquire`, `lock already held by thread %d`, s.Current())
	x.sema.Down()
	x.holder = s.running()
}

// TryAcquire takes the lock if it is available, without blocking. Locks
// are owned by threads, so it may not be called from interrupt context.
func (x *Lock) TryAcquire() bool {
	s := x.sema.s
	kassert.That(!s.ic.InContext(), `sched.Lock.TryAcquire`, `called from interrupt context`)
	kassert.That(!x.HeldByCurrent(), `sched.Lock.TryAcquire`, `lock already held by thread %d`, s.Current())
	if !x.sema.TryDown() {
		return false
	}
	x.holder = s.running()
	return true
}

// Release releases the lock, which must be held by the caller.
func (x *Lock) Release() {
	kassert.That(x.HeldByCurrent(), `sched.Lock.Release`, `lock not held by thread %d`, x.sema.s.Current())
	x.holder = nil
	x.sema.Up()
}

// HeldByCurrent reports whether the running thread holds the lock.
func (x *Lock) HeldByCurrent() bool {
	return x.holder != nil && x.holder == x.sema.s.cur
}

// Holder returns the ID of the thread holding the lock, if any.
func (x *Lock) Holder() (ID, bool) {
	if x.holder == nil {
		return 0, false
	}
	return x.holder.id, true
}

// NewCond returns a condition variable.
func (s *Scheduler) NewCond() *Cond {
	return &Cond{s: s}
}

// Wait atomically releases lock and waits to be signaled, then reacquires
// lock before returning. The caller must hold lock.
func (x *Cond) Wait(lock *Lock) {
	kassert.That(!x.s.ic.InContext(), `sched.Cond.Wait`, `called from interrupt context`)
	kassert.That(lock.HeldByCurrent(), `sched.Cond.Wait`, `lock not held by thread %d`, x.s.Current())
	w := &condWaiter{sema: x.s.NewSemaphore(0), t: x.s.running()}
	x.waiters = append(x.waiters, w)
	lock.Release()
	w.sema.Down()
	lock.Acquire()
}

// Signal wakes the highest priority waiter, if any. The caller must hold
// lock.
func (x *Cond) Signal(lock *Lock) {
	kassert.That(lock.HeldByCurrent(), `sched.Cond.Signal`, `lock not held by thread %d`, x.s.Current())
	if len(x.waiters) == 0 {
		return
	}
	// priorities may have changed since the waiters arrived
	best := 0
	for i, w := range x.waiters[1:] {
		if w.t.priority > x.waiters[best].t.priority {
			best = i + 1
		}
	}
	w := x.waiters[best]
	x.waiters = append(x.waiters[:best], x.waiters[best+1:]...)
	w.sema.Up()
}

// Broadcast wakes every waiter. The caller must hold lock.
func (x *Cond) Broadcast(lock *Lock) {
	for len(x.waiters) != 0 {
		x.Signal(lock)
	}
}

// Len returns the number of waiters.
func (x *Cond) Len() int { return len(x.waiters) }
