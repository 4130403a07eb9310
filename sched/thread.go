package sched

import (
	"github.com/joeycumines/go-kernsched/palloc"
)

// Thread priorities. Higher values are more urgent.
const (
	PriMin     = 0
	PriDefault = 31
	PriMax     = 63
)

type (
	// ID identifies a thread. IDs are allocated in increasing order starting
	// at 1, and are never reused.
	ID int64

	// Status is the scheduling state of a thread.
	Status uint8

	// Func is the entry point of a thread.
	Func func(arg any)

	// ThreadInfo is a snapshot of a thread, see [Scheduler.Threads].
	ThreadInfo struct {
		Name     string
		ID       ID
		Priority int
		Status   Status
		// WakeAt is the tick a sleeping thread will wake on.
		WakeAt int64
		// Ticks is the number of timer ticks the thread was running for.
		Ticks int64
	}

	handle int

	thread struct {
		fn        Func
		arg       any
		waitingOn *Semaphore
		resume    chan struct{}
		name      string
		page      palloc.Page
		id        ID
		wakeAt    int64
		ticks     int64
		readyAt   int64
		h         handle
		priority  int
		status    Status
		// completed is set once the entry function returns, or the thread
		// exits, to distinguish runtime.Goexit from within the entry function
		completed bool
	}
)

const (
	// StatusRunning is the state of the single thread executing on the CPU.
	StatusRunning Status = iota
	// StatusReady means the thread is in the ready queue.
	StatusReady
	// StatusBlocked means the thread is waiting on a semaphore.
	StatusBlocked
	// StatusSleeping means the thread is in the sleep queue.
	StatusSleeping
	// StatusDying means the thread has exited, and is about to be reaped.
	StatusDying
)

// String implements fmt.Stringer.
func (x Status) String() string {
	switch x {
	case StatusRunning:
		return `running`
	case StatusReady:
		return `ready`
	case StatusBlocked:
		return `blocked`
	case StatusSleeping:
		return `sleeping`
	case StatusDying:
		return `dying`
	default:
		return `unknown`
	}
}

func validPriority(priority int) bool {
	return priority >= PriMin && priority <= PriMax
}

func (t *thread) info() ThreadInfo {
	v := ThreadInfo{
		Name:     t.name,
		ID:       t.id,
		Priority: t.priority,
		Status:   t.status,
		Ticks:    t.ticks,
	}
	if t.status == StatusSleeping {
		v.WakeAt = t.wakeAt
	}
	return v
}
