package sched

type (
	// EventKind identifies a scheduling event, see [TraceEvent].
	EventKind uint8

	// TraceEvent describes a change in the state of a thread.
	TraceEvent struct {
		Name string
		// Tick is the tick count when the event occurred.
		Tick   int64
		Thread ID
		// Priority is the thread's priority, after the event.
		Priority int
		// Arg depends on Kind:
		//   - EventCreate: the creating thread, or 0 for the main thread
		//   - EventSwitch: the thread switched away from
		//   - EventUnblock: the running (unblocking) thread
		//   - EventSleep, EventWake: the wake tick
		//   - EventPriority: the previous priority
		Arg  int64
		Kind EventKind
	}

	// Tracer receives scheduling events. It is called synchronously, on the
	// thread holding the CPU, with interrupts disabled, and must not call
	// back into the Scheduler.
	Tracer interface {
		Trace(ev TraceEvent)
	}

	// TracerFunc implements Tracer.
	TracerFunc func(ev TraceEvent)
)

const (
	_ EventKind = iota
	// EventCreate is a thread being created.
	EventCreate
	// EventSwitch is a thread starting to run.
	EventSwitch
	// EventBlock is a thread blocking on a semaphore.
	EventBlock
	// EventUnblock is a thread being released by a semaphore.
	EventUnblock
	// EventSleep is a thread entering the sleep queue.
	EventSleep
	// EventWake is the timer waking a sleeping thread.
	EventWake
	// EventYield is the running thread yielding, or being preempted.
	EventYield
	// EventExit is a thread exiting.
	EventExit
	// EventPriority is a thread's priority being changed.
	EventPriority
)

var eventKindNames = [...]string{
	EventCreate:   `create`,
	EventSwitch:   `switch`,
	EventBlock:    `block`,
	EventUnblock:  `unblock`,
	EventSleep:    `sleep`,
	EventWake:     `wake`,
	EventYield:    `yield`,
	EventExit:     `exit`,
	EventPriority: `priority`,
}

// String implements fmt.Stringer.
func (x EventKind) String() string {
	if int(x) < len(eventKindNames) && eventKindNames[x] != `` {
		return eventKindNames[x]
	}
	return `unknown`
}

// Trace implements Tracer.
func (x TracerFunc) Trace(ev TraceEvent) { x(ev) }

func (s *Scheduler) trace(kind EventKind, t *thread, arg int64) {
	if s.tracer == nil {
		return
	}
	s.tracer.Trace(TraceEvent{
		Name:     t.name,
		Tick:     s.ticks,
		Thread:   t.id,
		Priority: t.priority,
		Arg:      arg,
		Kind:     kind,
	})
}
