// Package kassert implements the kernel's fatal assertion mechanism.
//
// A failed assertion is a programming error in the kernel itself: the
// scheduler's invariants can no longer be trusted, so the only safe response
// is to stop. Assertions panic with a [*Violation], which the scheduler
// recovers at the thread boundary and converts into a kernel halt.
package kassert

import (
	"fmt"
	"runtime/debug"
)

// Violation describes a broken kernel contract, e.g. blocking from interrupt
// context, or unblocking a thread that was not blocked.
type Violation struct {
	// Op is the operation that detected the violation, e.g. "sema.Down".
	Op string
	// Msg describes the broken contract.
	Msg string
	// Stack is the goroutine stack at the point of failure.
	Stack []byte
}

// Error implements the error interface.
func (x *Violation) Error() string {
	if x.Op == `` {
		return `kernel contract violation: ` + x.Msg
	}
	return `kernel contract violation: ` + x.Op + `: ` + x.Msg
}

// That panics with a [*Violation] if cond is false.
func That(cond bool, op string, format string, args ...any) {
	if !cond {
		Fail(op, format, args...)
	}
}

// Fail unconditionally panics with a [*Violation].
func Fail(op string, format string, args ...any) {
	msg := format
	if len(args) != 0 {
		msg = fmt.Sprintf(format, args...)
	}
	panic(&Violation{
		Op:    op,
		Msg:   msg,
		Stack: debug.Stack(),
	})
}

// Recover converts a recovered panic value into a *Violation, if it is one.
func Recover(r any) (*Violation, bool) {
	v, ok := r.(*Violation)
	return v, ok && v != nil
}
