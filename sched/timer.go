package sched

import (
	"context"
	"time"

	"github.com/joeycumines/go-kernsched/intr"
	"github.com/joeycumines/go-kernsched/kassert"
)

// TimerVector is the interrupt vector of the timer.
const TimerVector uint8 = 0x20

// TickSource is the machine's periodic hardware timer. Run must call tick at
// the timer frequency until ctx is done, then return nil. It is called from
// its own goroutine, and tick is safe to call from any goroutine.
type TickSource interface {
	Run(ctx context.Context, tick func()) error
}

// Ticks returns the number of timer ticks since boot. It may be called from
// interrupt context.
func (s *Scheduler) Ticks() int64 { return s.ticks }

// Elapsed returns the number of ticks since then, a value returned by
// [Scheduler.Ticks].
func (s *Scheduler) Elapsed(then int64) int64 { return s.Ticks() - then }

// Frequency returns the configured number of ticks per second.
func (s *Scheduler) Frequency() int { return s.hz }

// Sleep suspends the calling thread for approximately ticks timer ticks. It
// wakes on the first tick on which the tick count reaches Ticks()+ticks,
// meaning that a non-positive value wakes on the next tick. Sleeping from
// interrupt context is a contract violation.
func (s *Scheduler) Sleep(ticks int64) {
	kassert.That(!s.ic.InContext(), `sched.Sleep`, `called from interrupt context`)

	g := s.ic.Guard()
	t := s.running()
	kassert.That(t != s.idle, `sched.Sleep`, `idle thread cannot sleep`)
	t.wakeAt = s.ticks + ticks
	s.sleepers.Insert(t.h)
	s.trace(EventSleep, t, t.wakeAt)
	s.block(StatusSleeping)
	g.Restore()
}

// SleepFor converts d to ticks, rounding up, then calls [Scheduler.Sleep].
// Non-positive durations return immediately.
func (s *Scheduler) SleepFor(d time.Duration) {
	if ticks := s.durationToTicks(d); ticks > 0 {
		s.Sleep(ticks)
	}
}

func (s *Scheduler) durationToTicks(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	hz := int64(s.hz)
	ticks := int64(d/time.Second) * hz
	rem := int64(d%time.Second) * hz
	return ticks + (rem+int64(time.Second)-1)/int64(time.Second)
}

// timerInterrupt is the handler for TimerVector.
func (s *Scheduler) timerInterrupt(*intr.Frame) {
	s.ticks++
	cur := s.running()

	var preempt bool
	for {
		h, ok := s.sleepers.Front()
		if !ok {
			break
		}
		t := s.arena.get(h)
		if t.wakeAt > s.ticks {
			break
		}
		s.sleepers.PopFront()
		s.unblock(t)
		s.trace(EventWake, t, t.wakeAt)
		if t.priority > cur.priority {
			preempt = true
		}
	}

	s.threadTick(cur)

	if preempt {
		s.ic.YieldOnReturn()
	}
}

// threadTick performs per-tick accounting, and enforces the time slice.
func (s *Scheduler) threadTick(cur *thread) {
	if cur == s.idle {
		s.stats.IdleTicks++
	} else {
		s.stats.KernelTicks++
	}
	cur.ticks++

	s.slice++
	if s.timeSlice > 0 && s.slice >= s.timeSlice {
		s.ic.YieldOnReturn()
	}
}
