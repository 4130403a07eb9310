package sched

import (
	"runtime"

	"github.com/joeycumines/go-kernsched/intr"
	"github.com/joeycumines/go-kernsched/kassert"
)

// schedule switches to the next thread to run, which may be the current
// thread. Interrupts must be disabled, and the current thread must have
// already left the running state.
func (s *Scheduler) schedule() {
	cur := s.cur
	kassert.That(s.ic.Level() == intr.Off, `sched.schedule`, `interrupts must be disabled`)
	kassert.That(cur.status != StatusRunning, `sched.schedule`, `thread %d (%s) is still running`, cur.id, cur.name)
	next := s.nextToRun()
	var prev *thread
	if cur != next {
		prev = s.switchThreads(cur, next)
	}
	s.scheduleTail(prev)
}

func (s *Scheduler) nextToRun() *thread {
	if h, ok := s.ready.PopFront(); ok {
		return s.arena.get(h)
	}
	kassert.That(s.idle != nil, `sched.nextToRun`, `no thread to run`)
	return s.idle
}

// switchThreads hands the CPU to next, and parks the calling goroutine until
// cur is switched back to, returning the thread that did so. A dying thread
// is never switched back to, and its goroutine exits.
func (s *Scheduler) switchThreads(cur, next *thread) *thread {
	dying := cur.status == StatusDying
	s.prev = cur
	s.cur = next
	next.resume <- struct{}{}
	// cur's fields belong to next's goroutine from here
	if dying {
		runtime.Goexit()
	}
	select {
	case <-cur.resume:
	case <-s.off:
		runtime.Goexit()
	}
	return s.prev
}

// scheduleTail completes a switch, on the thread switched to. If the
// previous thread is dying, its page is freed.
func (s *Scheduler) scheduleTail(prev *thread) {
	kassert.That(s.ic.Level() == intr.Off, `sched.scheduleTail`, `interrupts must be disabled`)
	cur := s.cur
	cur.status = StatusRunning
	s.slice = 0

	if prev != nil {
		s.stats.Switches++
		if cur != s.idle {
			s.metrics.dispatched(s.ticks - cur.readyAt)
		}
		s.trace(EventSwitch, cur, int64(prev.id))
		if prev.status == StatusDying {
			kassert.That(prev != s.main && prev != s.idle, `sched.scheduleTail`, `%s thread died`, prev.name)
			s.arena.free(prev)
			s.stats.Exited++
		}
	}

	if s.checks {
		if err := s.checkInvariants(); err != nil {
			kassert.Fail(`sched.scheduleTail`, `%v`, err)
		}
	}
}

// trampoline is the body of every thread's goroutine, other than main.
func (s *Scheduler) trampoline(t *thread) {
	defer s.wg.Done()

	select {
	case <-t.resume:
	case <-s.off:
		return
	}

	defer s.recoverHalt(t)

	s.scheduleTail(s.prev)
	s.ic.Enable()
	t.fn(t.arg)
	s.Exit()
}

// recoverHalt must be deferred by every thread's goroutine. A panic, or an
// unexpected runtime.Goexit, halts the kernel.
func (s *Scheduler) recoverHalt(t *thread) {
	r := recover()

	var cause error
	if r != nil {
		if v, ok := kassert.Recover(r); ok {
			cause = v
		} else {
			cause = PanicError{Value: r}
		}
	} else if !t.completed && !s.stopping() {
		cause = ErrGoexit
	} else {
		return
	}

	err := &HaltError{Thread: t.id, Name: t.name, Cause: cause}
	s.log.Emerg().
		Int64(`id`, int64(t.id)).
		Str(`name`, t.name).
		Int64(`tick`, s.ticks).
		Err(cause).
		Log(`kernel halted`)
	s.powerOff(err)
}

func (s *Scheduler) stopping() bool {
	select {
	case <-s.off:
		return true
	case <-s.ic.Stopped():
		return true
	default:
		return false
	}
}

// powerOff releases Run. It is called at most once with effect, by the
// thread holding the CPU.
func (s *Scheduler) powerOff(err *HaltError) {
	s.finish.Do(func() {
		s.haltErr = err
		close(s.finished)
	})
}
