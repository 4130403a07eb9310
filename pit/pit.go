// Package pit implements a programmable interval timer: the periodic
// hardware timer that drives a scheduler's timer interrupt, on the host's
// monotonic clock.
package pit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Timer raises a tick at a fixed frequency. It satisfies
// sched.TickSource. Ticks that are missed, because the receiver was slow,
// are dropped rather than queued, as the interrupt controller coalesces
// pending requests anyway.
type Timer struct {
	period  time.Duration
	hz      int
	raised  atomic.Int64
	running atomic.Bool
}

// New returns a timer firing hz times per second.
func New(hz int) (*Timer, error) {
	if hz <= 0 || time.Duration(hz) > time.Second {
		return nil, fmt.Errorf("pit: invalid frequency %d", hz)
	}
	return &Timer{
		period: time.Second / time.Duration(hz),
		hz:     hz,
	}, nil
}

// Run calls tick once per period until ctx is done, then returns nil. A
// timer may only be run by one caller at a time.
func (x *Timer) Run(ctx context.Context, tick func()) error {
	if tick == nil {
		return fmt.Errorf("pit: nil tick func")
	}
	if !x.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pit: timer already running")
	}
	defer x.running.Store(false)

	ticker := time.NewTicker(x.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			x.raised.Add(1)
			tick()
		}
	}
}

// Frequency returns the number of ticks per second.
func (x *Timer) Frequency() int { return x.hz }

// Period returns the interval between ticks.
func (x *Timer) Period() time.Duration { return x.period }

// Raised returns the number of ticks raised so far, across all runs.
func (x *Timer) Raised() int64 { return x.raised.Load() }

func (x *Timer) String() string {
	return fmt.Sprintf("pit(%dHz)", x.hz)
}
