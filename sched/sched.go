package sched

import (
	"cmp"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-kernsched/internal/ordq"
	"github.com/joeycumines/go-kernsched/intr"
	"github.com/joeycumines/go-kernsched/kassert"
	"github.com/joeycumines/logiface"
	"golang.org/x/exp/slices"
)

// Scheduler is an isolated kernel: a CPU, its interrupt controller, a page
// pool, and the threads running on them. The zero value is not usable, see
// [New].
//
// Unless documented otherwise, methods must only be called from a kernel
// thread (i.e. from within the function passed to [Scheduler.Run], or a
// thread it created), or after Run has returned.
type Scheduler struct {
	log      *logiface.Logger[logiface.Event]
	limiter  *catrate.Limiter
	ic       *intr.Controller
	ticker   TickSource
	tracer   Tracer
	metrics  *metrics
	ready    *ordq.Queue[handle]
	sleepers *ordq.Queue[handle]

	// cur is the thread holding the CPU
	cur *thread
	// prev is the thread that most recently switched away, read by the
	// thread switched to
	prev *thread
	idle *thread
	main *thread

	finished chan struct{}
	off      chan struct{}
	haltErr  *HaltError

	arena arena
	stats Stats

	wg     sync.WaitGroup
	finish sync.Once
	state  fastState

	nextID    ID
	ticks     int64
	slice     int
	timeSlice int
	hz        int
	checks    bool
}

// New returns a Scheduler, which is started by calling [Scheduler.Run].
func New(options ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(options)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		log: cfg.logger,
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 3,
			time.Minute: 30,
		}),
		ic:        intr.New(intr.WithLogger(cfg.logger)),
		ticker:    cfg.ticker,
		tracer:    cfg.tracer,
		finished:  make(chan struct{}),
		off:       make(chan struct{}),
		arena:     newArena(cfg.maxThreads),
		nextID:    1,
		timeSlice: cfg.timeSlice,
		hz:        cfg.hz,
		checks:    cfg.checks,
	}
	if cfg.metrics {
		s.metrics = newMetrics()
	}
	s.ready = ordq.New(s.byPriority)
	s.sleepers = ordq.New(s.byWakeTime)
	s.ic.Register(TimerVector, `timer`, s.timerInterrupt)
	s.ic.SetYieldHook(s.yieldOnReturn)

	return s, nil
}

// Controller returns the machine's interrupt controller. Hardware may raise
// interrupts on it at any time, from any goroutine.
func (s *Scheduler) Controller() *intr.Controller { return s.ic }

// Create starts a new thread, which will call fn(arg). It is placed in the
// ready queue, and if its priority is higher than the calling thread's, the
// caller yields immediately.
//
// If no memory is available, the returned error wraps [ErrNoMemory]. A nil
// fn, or a priority outside [PriMin, PriMax], is a contract violation.
func (s *Scheduler) Create(name string, priority int, fn Func, arg any) (ID, error) {
	kassert.That(fn != nil, `sched.Create`, `nil entry function for thread %q`, name)
	kassert.That(validPriority(priority), `sched.Create`, `priority %d out of range for thread %q`, priority, name)

	g := s.ic.Guard()
	cur := s.running()
	t, err := s.arena.alloc(name, priority)
	if err != nil {
		live := s.arena.live()
		g.Restore()
		if _, ok := s.limiter.Allow(`create`); ok {
			s.log.Warning().
				Str(`name`, name).
				Int(`live`, live).
				Err(err).
				Log(`thread creation failed`)
		}
		return 0, fmt.Errorf("sched: create thread %q: %w: %w", name, ErrNoMemory, err)
	}
	t.id = s.allocID()
	t.fn, t.arg = fn, arg
	s.arena.register(t)
	s.stats.Created++

	s.wg.Add(1)
	go s.trampoline(t)

	s.trace(EventCreate, t, int64(cur.id))
	s.unblock(t)
	preempt := priority > cur.priority
	g.Restore()

	s.log.Debug().
		Int64(`id`, int64(t.id)).
		Str(`name`, name).
		Int(`priority`, priority).
		Log(`thread created`)

	if preempt {
		s.preempt()
	}

	return t.id, nil
}

// Current returns the ID of the running thread. It may be called from
// interrupt context.
func (s *Scheduler) Current() ID { return s.running().id }

// CurrentName returns the name of the running thread.
func (s *Scheduler) CurrentName() string { return s.running().name }

// CurrentPriority returns the priority of the running thread.
func (s *Scheduler) CurrentPriority() int { return s.running().priority }

// Priority returns the priority of the thread identified by id.
func (s *Scheduler) Priority(id ID) (int, error) {
	t, ok := s.arena.lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNoSuchThread, id)
	}
	return t.priority, nil
}

// Yield gives up the CPU. The calling thread remains ready, and will run
// again as soon as it is the highest priority ready thread, which may be
// immediately. Calling Yield from interrupt context is a contract
// violation, see [intr.Controller.YieldOnReturn].
func (s *Scheduler) Yield() {
	kassert.That(!s.ic.InContext(), `sched.Yield`, `called from interrupt context`)
	g := s.ic.Guard()
	s.stats.Yields++
	s.yield()
	g.Restore()
}

// Exit terminates the calling thread, and never returns. Returning from a
// thread's entry function is equivalent. The main thread must return from
// its function instead.
func (s *Scheduler) Exit() {
	kassert.That(!s.ic.InContext(), `sched.Exit`, `called from interrupt context`)
	s.ic.Disable()
	t := s.running()
	kassert.That(t != s.main && t != s.idle, `sched.Exit`, `%s thread cannot exit`, t.name)
	t.completed = true
	t.status = StatusDying
	s.log.Debug().
		Int64(`id`, int64(t.id)).
		Str(`name`, t.name).
		Int64(`ticks`, t.ticks).
		Log(`thread exiting`)
	s.trace(EventExit, t, 0)
	s.schedule()
	kassert.Fail(`sched.Exit`, `thread %d resumed after exiting`, t.id)
}

// SetPriority changes the priority of a thread.
//
// If the running thread lowers its priority below that of the highest
// priority ready thread, it yields. Raising a ready thread's priority above
// the running thread's causes the running thread to yield. Threads waiting
// on a semaphore are repositioned among its waiters.
func (s *Scheduler) SetPriority(id ID, priority int) error {
	kassert.That(validPriority(priority), `sched.SetPriority`, `priority %d out of range`, priority)

	g := s.ic.Guard()
	t, ok := s.arena.lookup(id)
	if !ok {
		g.Restore()
		return fmt.Errorf("%w: %d", ErrNoSuchThread, id)
	}

	old := t.priority
	t.priority = priority

	var preempt bool
	switch t.status {
	case StatusRunning:
		if h, ok := s.ready.Front(); ok && priority < s.arena.get(h).priority {
			preempt = true
		}
	case StatusReady:
		if s.ready.Reposition(t.h) {
			preempt = priority > s.running().priority
		}
	case StatusBlocked:
		if t.waitingOn != nil {
			t.waitingOn.waiters.Reposition(t.h)
		}
	}

	s.trace(EventPriority, t, int64(old))
	g.Restore()

	if preempt {
		s.preempt()
	}

	return nil
}

// Threads returns a snapshot of every live thread, ordered by ID.
func (s *Scheduler) Threads() []ThreadInfo {
	g := s.ic.Guard()
	defer g.Restore()
	threads := make([]ThreadInfo, 0, s.arena.live())
	for _, t := range s.arena.byID {
		threads = append(threads, t.info())
	}
	slices.SortFunc(threads, func(a, b ThreadInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return threads
}

// LocalStorage returns the memory of the page backing the running thread,
// which is zeroed when the thread is created, and is reclaimed when it
// exits.
func (s *Scheduler) LocalStorage() []byte { return s.running().page.Bytes() }

func (s *Scheduler) running() *thread {
	t := s.cur
	kassert.That(t != nil, `sched.running`, `scheduler is not running`)
	kassert.That(t.status == StatusRunning, `sched.running`, `thread %d (%s) is %s`, t.id, t.name, t.status)
	return t
}

func (s *Scheduler) allocID() ID {
	id := s.nextID
	s.nextID++
	return id
}

// unblock moves a blocked or sleeping thread to the ready queue. It does not
// preempt the running thread, even if t has a higher priority.
func (s *Scheduler) unblock(t *thread) {
	g := s.ic.Guard()
	kassert.That(t.status == StatusBlocked || t.status == StatusSleeping,
		`sched.unblock`, `thread %d (%s) is %s`, t.id, t.name, t.status)
	t.waitingOn = nil
	t.status = StatusReady
	s.readyInsert(t)
	g.Restore()
}

// block suspends the running thread, which must have been placed in the
// appropriate queue already.
func (s *Scheduler) block(status Status) {
	kassert.That(!s.ic.InContext(), `sched.block`, `cannot block in interrupt context`)
	kassert.That(s.ic.Level() == intr.Off, `sched.block`, `interrupts must be disabled`)
	s.running().status = status
	s.schedule()
}

// yield requires interrupts to be disabled.
func (s *Scheduler) yield() {
	cur := s.running()
	if cur != s.idle {
		s.readyInsert(cur)
	}
	cur.status = StatusReady
	s.trace(EventYield, cur, 0)
	s.schedule()
}

// yieldOnReturn is the interrupt controller's yield hook.
func (s *Scheduler) yieldOnReturn() {
	s.stats.Preemptions++
	s.yield()
}

// preempt yields, or if called from interrupt context, arranges for the
// interrupted thread to yield once the handler returns.
func (s *Scheduler) preempt() {
	if s.ic.InContext() {
		s.ic.YieldOnReturn()
		return
	}
	s.Yield()
}

func (s *Scheduler) readyInsert(t *thread) {
	t.readyAt = s.ticks
	s.ready.Insert(t.h)
}

// descending priority, FIFO among equals (the queue is stable)
func (s *Scheduler) byPriority(a, b handle) int {
	return cmp.Compare(s.arena.get(b).priority, s.arena.get(a).priority)
}

func (s *Scheduler) byWakeTime(a, b handle) int {
	return cmp.Compare(s.arena.get(a).wakeAt, s.arena.get(b).wakeAt)
}
