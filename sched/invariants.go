package sched

import (
	"errors"
	"fmt"
)

// CheckInvariants verifies the scheduler's structural invariants, returning
// an error describing every violation found:
//
//   - exactly one thread is running, and it is the current thread
//   - the ready and sleep queues, and the waiters of every semaphore a thread
//     is blocked on, are correctly ordered
//   - every thread other than idle is a member of at most one queue, and its
//     status agrees with that membership
//
// The idle thread is never queued, and is exempt. See also
// [WithInvariantChecks].
func (s *Scheduler) CheckInvariants() error {
	g := s.ic.Guard()
	defer g.Restore()
	return s.checkInvariants()
}

func (s *Scheduler) checkInvariants() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !s.ready.Sorted() {
		fail("ready queue out of order")
	}
	if !s.sleepers.Sorted() {
		fail("sleep queue out of order")
	}

	running := 0
	for _, t := range s.arena.byID {
		if t.status == StatusRunning {
			running++
			if t != s.cur {
				fail("thread %d is running but not current", t.id)
			}
		}
		if t == s.idle {
			if s.ready.Contains(t.h) || s.sleepers.Contains(t.h) || t.waitingOn != nil {
				fail("idle thread %d is queued", t.id)
			}
			continue
		}

		inReady := s.ready.Contains(t.h)
		inSleep := s.sleepers.Contains(t.h)
		inWait := t.waitingOn != nil && t.waitingOn.waiters.Contains(t.h)
		if t.waitingOn != nil && !t.waitingOn.waiters.Sorted() {
			fail("waiters of semaphore blocking thread %d out of order", t.id)
		}

		var want [3]bool
		switch t.status {
		case StatusReady:
			want[0] = true
		case StatusSleeping:
			want[1] = true
		case StatusBlocked:
			want[2] = true
		}
		if got := [3]bool{inReady, inSleep, inWait}; got != want {
			fail("thread %d (%s) is %s, but membership is ready=%v sleep=%v wait=%v",
				t.id, t.name, t.status, inReady, inSleep, inWait)
		}
	}

	if running != 1 {
		fail("%d threads running", running)
	}
	if n := s.ready.Len() + s.sleepers.Len(); n > len(s.arena.byID) {
		fail("%d queued handles but only %d threads", n, len(s.arena.byID))
	}

	return errors.Join(errs...)
}
