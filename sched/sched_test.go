package sched

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/joeycumines/go-kernsched/intr"
	"github.com/joeycumines/go-kernsched/kassert"
	"github.com/joeycumines/go-kernsched/palloc"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is only appended to by kernel threads, and only read once Run
// has returned.
type recorder struct {
	events []string
	trace  []TraceEvent
}

func (r *recorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) Trace(ev TraceEvent) { r.trace = append(r.trace, ev) }

func (r *recorder) kinds(kind EventKind) (names []string) {
	for _, ev := range r.trace {
		if ev.Kind == kind {
			names = append(names, ev.Name)
		}
	}
	return names
}

func newTestScheduler(t *testing.T, options ...Option) *Scheduler {
	t.Helper()
	s, err := New(append([]Option{WithTimeSlice(0), WithInvariantChecks(true)}, options...)...)
	require.NoError(t, err)
	return s
}

func runMain(t *testing.T, s *Scheduler, main func()) {
	t.Helper()
	require.NoError(t, runErr(s, main))
}

func runErr(s *Scheduler, main func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Run(ctx, main)
}

// tick delivers a timer interrupt, from a kernel thread with interrupts
// enabled.
func tick(s *Scheduler) {
	s.Controller().Raise(TimerVector)
	s.Controller().Poll()
}

func status(s *Scheduler, id ID) Status {
	for _, v := range s.Threads() {
		if v.ID == id {
			return v.Status
		}
	}
	return Status(255)
}

func TestScheduler_bootAndPowerOff(t *testing.T) {
	s := newTestScheduler(t)
	var (
		id       ID
		name     string
		priority int
		threads  []ThreadInfo
		rerun    error
	)
	runMain(t, s, func() {
		id = s.Current()
		name = s.CurrentName()
		priority = s.CurrentPriority()
		threads = s.Threads()
		rerun = s.Run(context.Background(), func() {})
	})

	assert.Equal(t, ID(1), id)
	assert.Equal(t, `main`, name)
	assert.Equal(t, PriDefault, priority)
	require.Len(t, threads, 2)
	assert.Equal(t, ThreadInfo{Name: `main`, ID: 1, Priority: PriDefault, Status: StatusRunning}, threads[0])
	assert.Equal(t, `idle`, threads[1].Name)
	assert.Equal(t, PriMin, threads[1].Priority)
	assert.ErrorIs(t, rerun, ErrAlreadyRunning)

	assert.ErrorIs(t, s.Run(context.Background(), func() {}), ErrHalted)
	stats := s.Stats()
	assert.Equal(t, int64(2), stats.Created)
	assert.Equal(t, 2, stats.Live)
}

func TestScheduler_logging(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
	s := newTestScheduler(t, WithLogger(logger))
	runMain(t, s, func() {
		_, _ = s.Create(`worker`, PriMax, func(any) {}, nil)
	})
	out := buf.String()
	assert.Contains(t, out, `"msg":"kernel booted"`)
	assert.Contains(t, out, `"name":"worker"`)
	assert.Contains(t, out, `"msg":"thread exiting"`)
	assert.Contains(t, out, `"msg":"kernel powered off"`)
}

// Creating a higher priority thread yields immediately.
func TestScheduler_createPreempts(t *testing.T) {
	var r recorder
	s := newTestScheduler(t, WithTracer(&r))
	runMain(t, s, func() {
		assert.NoError(t, s.SetPriority(s.Current(), 5))
		r.add(`before`)
		id, err := s.Create(`high`, 10, func(arg any) {
			r.add(`high ran, arg=%v`, arg)
		}, 42)
		r.add(`after create %d err=%v`, id, err)
		_, err = s.Create(`low`, 3, func(any) { r.add(`low ran`) }, nil)
		r.add(`after low err=%v`, err)
	})
	assert.Equal(t, []string{
		`before`,
		`high ran, arg=42`,
		`after create 3 err=<nil>`,
		`after low err=<nil>`,
	}, r.events)
}

func TestScheduler_createEqualPriorityDoesNotPreempt(t *testing.T) {
	var r recorder
	s := newTestScheduler(t)
	runMain(t, s, func() {
		_, _ = s.Create(`a`, PriDefault, func(any) { r.add(`a`) }, nil)
		_, _ = s.Create(`b`, PriDefault, func(any) { r.add(`b`) }, nil)
		r.add(`main`)
		s.Yield()
		r.add(`main again`)
	})
	assert.Equal(t, []string{`main`, `a`, `b`, `main again`}, r.events)
}

// The highest priority ready thread runs first, FIFO among equals.
func TestScheduler_readyOrder(t *testing.T) {
	var r recorder
	s := newTestScheduler(t)
	priorities := []int{3, 7, 3, 9, 7, 1, 9}
	runMain(t, s, func() {
		for i, p := range priorities {
			name := fmt.Sprintf(`t%d/p%d`, i, p)
			_, err := s.Create(name, p, func(any) { r.add(`%s`, name) }, nil)
			assert.NoError(t, err)
		}
		assert.NoError(t, s.SetPriority(s.Current(), PriMin))
	})
	assert.Equal(t, []string{`t3/p9`, `t6/p9`, `t1/p7`, `t4/p7`, `t0/p3`, `t2/p3`, `t5/p1`}, r.events)
}

// Lowering the running thread's priority below the ready head
// yields, raising it never does.
func TestScheduler_setPriority(t *testing.T) {
	var r recorder
	s := newTestScheduler(t)
	runMain(t, s, func() {
		_, _ = s.Create(`r`, 20, func(any) { r.add(`r ran`) }, nil)
		assert.NoError(t, s.SetPriority(s.Current(), 25))
		r.add(`lowered to 25`)
		assert.NoError(t, s.SetPriority(s.Current(), 10))
		r.add(`lowered to 10`)

		_, _ = s.Create(`r2`, 10, func(any) { r.add(`r2 ran`) }, nil)
		assert.NoError(t, s.SetPriority(s.Current(), 40))
		r.add(`raised to 40`)
		p, err := s.Priority(s.Current())
		r.add(`priority %d %v`, p, err)
		assert.NoError(t, s.SetPriority(s.Current(), PriMin))
	})
	assert.Equal(t, []string{
		`lowered to 25`,
		`r ran`,
		`lowered to 10`,
		`raised to 40`,
		`priority 40 <nil>`,
		`r2 ran`,
	}, r.events)
}

func TestScheduler_setPriorityOfReadyThreadPreempts(t *testing.T) {
	var r recorder
	s := newTestScheduler(t)
	runMain(t, s, func() {
		id, _ := s.Create(`w`, 10, func(any) { r.add(`w ran`) }, nil)
		r.add(`created`)
		assert.NoError(t, s.SetPriority(id, 20))
		r.add(`raised to 20`)
		assert.NoError(t, s.SetPriority(id, 40))
		r.add(`raised to 40`)
	})
	assert.Equal(t, []string{`created`, `raised to 20`, `w ran`, `raised to 40`}, r.events)
}

func TestScheduler_noSuchThread(t *testing.T) {
	s := newTestScheduler(t)
	var errs []error
	runMain(t, s, func() {
		id, _ := s.Create(`gone`, PriMax, func(any) {}, nil)
		_, err := s.Priority(id)
		errs = append(errs, err)
		errs = append(errs, s.SetPriority(id, 1))
		errs = append(errs, s.SetPriority(99, 1))
	})
	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrNoSuchThread)
	}
}

func TestScheduler_allocationFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``))).Logger()
	s := newTestScheduler(t, WithMaxThreads(3), WithLogger(logger))
	var (
		ids  []ID
		errs []error
	)
	runMain(t, s, func() {
		create := func(priority int) {
			id, err := s.Create(`t`, priority, func(any) {}, nil)
			ids = append(ids, id)
			errs = append(errs, err)
		}
		create(PriMax) // runs to completion, freeing its page
		create(10)
		create(10)
		s.Yield()
		assert.NoError(t, s.SetPriority(s.Current(), PriMin))
		create(10)
	})

	assert.Equal(t, []ID{3, 4, 0, 5}, ids)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.ErrorIs(t, errs[2], ErrNoMemory)
	assert.ErrorIs(t, errs[2], palloc.ErrExhausted)
	assert.NoError(t, errs[3])
	assert.Contains(t, buf.String(), `thread creation failed`)
	assert.Equal(t, int64(3), s.Stats().Exited)
}

func TestScheduler_localStorage(t *testing.T) {
	s := newTestScheduler(t, WithMaxThreads(3))
	var fresh [][]byte
	runMain(t, s, func() {
		for i := 0; i < 2; i++ {
			_, err := s.Create(`t`, PriMax, func(any) {
				mem := s.LocalStorage()
				fresh = append(fresh, append([]byte(nil), mem[:8]...))
				copy(mem, `scribble`)
			}, nil)
			assert.NoError(t, err)
		}
	})
	require.Len(t, fresh, 2)
	assert.Equal(t, make([]byte, 8), fresh[0])
	assert.Equal(t, make([]byte, 8), fresh[1])
}

func TestScheduler_threadPanicHalts(t *testing.T) {
	s := newTestScheduler(t)
	var after bool
	err := runErr(s, func() {
		_, _ = s.Create(`bad`, PriMax, func(any) { panic(`boom`) }, nil)
		after = true
	})
	var halt *HaltError
	require.ErrorAs(t, err, &halt)
	assert.Equal(t, ID(3), halt.Thread)
	assert.Equal(t, `bad`, halt.Name)
	var pe PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, `boom`, pe.Value)
	assert.False(t, after)
}

func TestScheduler_panicWithError(t *testing.T) {
	s := newTestScheduler(t)
	sentinel := errors.New(`sentinel`)
	err := runErr(s, func() { panic(sentinel) })
	assert.ErrorIs(t, err, sentinel)
	var halt *HaltError
	require.ErrorAs(t, err, &halt)
	assert.Equal(t, `main`, halt.Name)
}

func TestScheduler_goexitHalts(t *testing.T) {
	s := newTestScheduler(t)
	err := runErr(s, func() {
		_, _ = s.Create(`quitter`, PriMax, func(any) { runtime.Goexit() }, nil)
	})
	assert.ErrorIs(t, err, ErrGoexit)
}

func TestScheduler_contractViolations(t *testing.T) {
	for _, tc := range [...]struct {
		name string
		op   string
		main func(s *Scheduler)
	}{
		{
			name: `exit main`,
			op:   `sched.Exit`,
			main: func(s *Scheduler) { s.Exit() },
		},
		{
			name: `priority out of range`,
			op:   `sched.Create`,
			main: func(s *Scheduler) { _, _ = s.Create(`x`, PriMax+1, func(any) {}, nil) },
		},
		{
			name: `nil entry`,
			op:   `sched.Create`,
			main: func(s *Scheduler) { _, _ = s.Create(`x`, PriDefault, nil, nil) },
		},
		{
			name: `unblock running thread`,
			op:   `sched.unblock`,
			main: func(s *Scheduler) { s.unblock(s.cur) },
		},
		{
			name: `block with interrupts enabled`,
			op:   `sched.block`,
			main: func(s *Scheduler) { s.block(StatusBlocked) },
		},
		{
			name: `schedule with interrupts enabled`,
			op:   `sched.schedule`,
			main: func(s *Scheduler) { s.schedule() },
		},
		{
			name: `schedule while running`,
			op:   `sched.schedule`,
			main: func(s *Scheduler) {
				g := s.Controller().Guard()
				defer g.Restore()
				s.schedule()
			},
		},
		{
			name: `yield in interrupt`,
			op:   `sched.Yield`,
			main: func(s *Scheduler) {
				s.Controller().Register(0x30, `soft`, func(*intr.Frame) { s.Yield() })
				s.Controller().Raise(0x30)
				s.Controller().Poll()
			},
		},
		{
			name: `sleep in interrupt`,
			op:   `sched.Sleep`,
			main: func(s *Scheduler) {
				s.Controller().Register(0x30, `soft`, func(*intr.Frame) { s.Sleep(1) })
				s.Controller().Raise(0x30)
				s.Controller().Poll()
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestScheduler(t)
			err := runErr(s, func() { tc.main(s) })
			var v *kassert.Violation
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tc.op, v.Op)
		})
	}
}

func TestScheduler_contextCanceled(t *testing.T) {
	s := newTestScheduler(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Run(ctx, func() {
		// never upped: every thread blocks, and the idle thread halts
		s.NewSemaphore(0).Down()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_invalidOptions(t *testing.T) {
	for _, opt := range []Option{
		WithMaxThreads(1),
		WithTimeSlice(-1),
		WithTimerFrequency(18),
		WithTimerFrequency(1001),
	} {
		s, err := New(opt)
		assert.Error(t, err)
		assert.Nil(t, s)
	}
	s, err := New(nil, WithTimerFrequency(1000))
	require.NoError(t, err)
	assert.Equal(t, 1000, s.Frequency())
}

func TestStatus_String(t *testing.T) {
	for status, name := range map[Status]string{
		StatusRunning:  `running`,
		StatusReady:    `ready`,
		StatusBlocked:  `blocked`,
		StatusSleeping: `sleeping`,
		StatusDying:    `dying`,
		Status(99):     `unknown`,
	} {
		assert.Equal(t, name, status.String())
	}
	assert.Equal(t, `switch`, EventSwitch.String())
	assert.Equal(t, `unknown`, EventKind(0).String())
	assert.Equal(t, `unknown`, EventKind(200).String())
}
