package sched

import (
	"sync/atomic"
)

// runState is the lifecycle of a Scheduler, as a whole.
//
//	stateCreated → stateRunning   [Run()]
//	stateRunning → stateHalted    [power off]
//	stateHalted  → (terminal)
//
// Transitions out of stateCreated must use TryTransition, so that concurrent
// calls to Run race safely.
type runState uint64

const (
	stateCreated runState = iota
	stateRunning
	stateHalted
)

func (s runState) String() string {
	switch s {
	case stateCreated:
		return "Created"
	case stateRunning:
		return "Running"
	case stateHalted:
		return "Halted"
	default:
		return "Unknown"
	}
}

type fastState struct {
	v atomic.Uint64
}

func (s *fastState) Load() runState {
	return runState(s.v.Load())
}

func (s *fastState) Store(state runState) {
	s.v.Store(uint64(state))
}

func (s *fastState) TryTransition(from, to runState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}
