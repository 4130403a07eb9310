package sched

import (
	"context"
	"fmt"

	"github.com/joeycumines/go-kernsched/kassert"
	"golang.org/x/sync/errgroup"
)

// Run boots the machine, and runs main as the "main" thread, at
// [PriDefault]. The machine is powered off once main returns, and every
// thread goroutine has exited by the time Run returns.
//
// Run returns nil if main returned, a [*HaltError] if any kernel thread
// panicked, or the context's error if ctx was canceled first. A Scheduler may
// only be run once.
func (s *Scheduler) Run(ctx context.Context, main func()) error {
	kassert.That(main != nil, `sched.Run`, `nil main function`)

	if !s.state.TryTransition(stateCreated, stateRunning) {
		if s.state.Load() == stateHalted {
			return ErrHalted
		}
		return ErrAlreadyRunning
	}
	defer s.state.Store(stateHalted)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	if s.ticker != nil {
		raise := func() { s.ic.Raise(TimerVector) }
		g.Go(func() error { return s.ticker.Run(gctx, raise) })
	}

	s.wg.Add(1)
	go s.boot(main)

	select {
	case <-s.finished:
	case <-gctx.Done():
	}

	cancel()
	close(s.off)
	s.ic.Stop()
	tickErr := g.Wait()
	s.wg.Wait()

	s.log.Info().
		Int64(`ticks`, s.ticks).
		Int64(`idle_ticks`, s.stats.IdleTicks).
		Int64(`kernel_ticks`, s.stats.KernelTicks).
		Int64(`switches`, s.stats.Switches).
		Int64(`threads`, s.stats.Created).
		Log(`kernel powered off`)

	select {
	case <-s.finished:
		if s.haltErr != nil {
			return s.haltErr
		}
		return nil
	default:
	}
	if tickErr != nil {
		return fmt.Errorf("sched: tick source: %w", tickErr)
	}
	return ctx.Err()
}

// boot runs on the main thread's goroutine, converting it into a kernel
// thread, and starting the idle thread.
func (s *Scheduler) boot(main func()) {
	defer s.wg.Done()

	t, err := s.arena.alloc(`main`, PriDefault)
	if err != nil {
		s.powerOff(&HaltError{Name: `main`, Cause: err})
		return
	}
	t.id = s.allocID()
	t.status = StatusRunning
	s.arena.register(t)
	s.stats.Created++
	s.main, s.cur = t, t
	s.trace(EventCreate, t, 0)

	defer s.recoverHalt(t)

	started := s.NewSemaphore(0)
	if _, err := s.Create(`idle`, PriMin, s.idleLoop, started); err != nil {
		panic(err)
	}
	s.ic.Enable()
	started.Down()

	s.log.Info().
		Int(`max_threads`, s.arena.pool.Cap()).
		Int(`hz`, s.hz).
		Int(`time_slice`, s.timeSlice).
		Bool(`tick_source`, s.ticker != nil).
		Log(`kernel booted`)

	main()
	t.completed = true
	s.powerOff(nil)
}

// idleLoop runs when no other thread is ready. It is never in the ready
// queue, and waits for interrupts with the CPU halted.
func (s *Scheduler) idleLoop(arg any) {
	started := arg.(*Semaphore)
	s.idle = s.running()
	started.Up()
	for {
		s.ic.Disable()
		s.block(StatusBlocked)
		s.ic.Halt()
	}
}
