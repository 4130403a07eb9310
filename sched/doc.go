// Package sched implements the preemptive, priority-based thread scheduler of
// a small single-core kernel, along with the blocking primitives built on it.
//
// # Machine model
//
// A [Scheduler] owns one simulated CPU. Every kernel thread is backed by a
// goroutine, but only the thread holding the CPU executes: a context switch
// hands the CPU from one goroutine to the next, and parks the former. All
// scheduler state is guarded by the interrupt-enable flag of the machine's
// [intr.Controller], which is the kernel's only mutual exclusion mechanism.
//
// Hardware interrupts (most importantly the timer, on [TimerVector]) are
// latched asynchronously, and serviced by whichever thread holds the CPU, the
// next time it enables interrupts or polls. Interrupt handlers never switch
// threads directly; they request a yield, which is performed once the handler
// returns.
//
// # Threads
//
// Threads are created with [Scheduler.Create], and are identified by an [ID]
// that is never reused. Each is backed by a page from a [palloc.Pool], which
// bounds the number of live threads (see [WithMaxThreads]). The ready queue is
// ordered by descending priority, FIFO among equal priorities, and the highest
// priority ready thread always runs. There is no priority donation.
//
// # Blocking
//
// A thread may only give up the CPU by calling [Scheduler.Yield],
// [Scheduler.Sleep], [Semaphore.Down] (or the [Lock] and [Cond] primitives
// built on it), or by exiting. Blocking from interrupt context is a contract
// violation. Contract violations panic with a [*kassert.Violation], which
// halts the kernel: [Scheduler.Run] returns a [*HaltError].
//
// # Running
//
// [Scheduler.Run] boots the machine, turning its caller's function into the
// "main" thread, and powers it off once main returns.
package sched
