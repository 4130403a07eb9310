// Package scenario runs declarative workloads on a [sched.Scheduler].
//
// A scenario is a YAML document declaring semaphores, and threads, each with
// a priority and a list of steps. Threads marked start are created by the
// main thread in declaration order, the rest by exactly one spawn step of
// another thread. The main thread waits for every thread to finish, then
// powers off the machine.
//
//	name: preempt-on-create
//	time_slice: 0
//	semaphores: {gate: 0}
//	threads:
//	  - name: low
//	    priority: 5
//	    start: true
//	    steps:
//	      - log: before
//	      - spawn: high
//	      - log: after
//	  - name: high
//	    priority: 10
//	    steps:
//	      - log: ran
//
// Running a scenario produces an ordered trace of [Record] values,
// interleaving scheduling events with the output of log steps, which may be
// streamed as JSON lines via a [Sink].
package scenario
