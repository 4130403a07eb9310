package sched

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrNoMemory is returned (wrapped) by [Scheduler.Create] when no page is
	// available to back a new thread.
	ErrNoMemory = errors.New("sched: out of memory")

	// ErrAlreadyRunning is returned by [Scheduler.Run] if the scheduler is
	// already running.
	ErrAlreadyRunning = errors.New("sched: scheduler is already running")

	// ErrHalted is returned by [Scheduler.Run] if the scheduler has already
	// been run, since a powered off machine cannot be restarted.
	ErrHalted = errors.New("sched: scheduler has halted")

	// ErrNoSuchThread is returned (wrapped) by operations addressing a thread
	// by ID, if it does not exist, or has exited.
	ErrNoSuchThread = errors.New("sched: no such thread")

	// ErrGoexit is the cause of a [HaltError] when a thread's goroutine was
	// terminated by runtime.Goexit, rather than returning or exiting.
	ErrGoexit = errors.New("sched: thread goroutine exited via runtime.Goexit")
)

// HaltError is returned by [Scheduler.Run] when a kernel thread panicked,
// which includes contract violations (see the kassert package).
type HaltError struct {
	// Cause is the reason for the halt, a [*kassert.Violation], a
	// [PanicError], or [ErrGoexit].
	Cause  error
	Name   string
	Thread ID
}

// Error implements the error interface.
func (e *HaltError) Error() string {
	return fmt.Sprintf("sched: kernel halted: thread %d (%s): %v", e.Thread, e.Name, e.Cause)
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *HaltError) Unwrap() error {
	return e.Cause
}

// PanicError wraps a value recovered from a panicking kernel thread.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("sched: thread panicked: %v", e.Value)
}

// Unwrap returns the panic value, if it is an error, or nil.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
