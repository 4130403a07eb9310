package scenario

import (
	"context"
	"fmt"

	"github.com/joeycumines/go-kernsched/pit"
	"github.com/joeycumines/go-kernsched/sched"
	"github.com/joeycumines/logiface"
	"golang.org/x/exp/slices"
)

// KindSpawnFailed identifies records of threads that could not be created.
const KindSpawnFailed = `spawn_failed`

// Result is the outcome of a scenario run.
type Result struct {
	Name string
	// Records is the trace, in order.
	Records []Record
	Stats   sched.Stats
	// Metrics is set if enabled, via WithSchedulerOptions.
	Metrics *sched.Metrics
}

// Logs returns the records of log steps, formatted as "thread: message".
func (x *Result) Logs() []string {
	var logs []string
	for _, rec := range x.Records {
		if rec.Kind == KindLog {
			logs = append(logs, rec.Thread+`: `+rec.Detail)
		}
	}
	return logs
}

// Filter returns the records of the given kind.
func (x *Result) Filter(kind string) []Record {
	var records []Record
	for _, rec := range x.Records {
		if rec.Kind == kind {
			records = append(records, rec)
		}
	}
	return records
}

type runner struct {
	log     *logiface.Logger[logiface.Event]
	s       *sched.Scheduler
	sc      *Scenario
	sink    *Sink
	semas   map[string]*sched.Semaphore
	names   map[sched.ID]string
	done    *sched.Semaphore
	records []Record
}

// Run validates then runs sc to completion, on a new scheduler. The result
// is returned even if the kernel halted, with the trace up to that point.
func Run(ctx context.Context, sc *Scenario, options ...Option) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	opts := resolveOptions(options)

	hz := sc.TimerHz
	if hz == 0 {
		hz = sched.DefaultTimerFrequency
	}
	ticker := opts.ticker
	if !opts.tickerSet {
		timer, err := pit.New(hz)
		if err != nil {
			return nil, fmt.Errorf(`scenario %q: %w`, sc.Name, err)
		}
		ticker = timer
	}

	r := &runner{
		log:   opts.logger.Clone().Str(`scenario`, sc.Name).Logger(),
		sc:    sc,
		sink:  opts.sink,
		semas: make(map[string]*sched.Semaphore, len(sc.Semaphores)),
		names: make(map[sched.ID]string),
	}

	schedOptions := []sched.Option{
		sched.WithLogger(opts.logger),
		sched.WithTracer(r),
		sched.WithTimerFrequency(hz),
	}
	if ticker != nil {
		schedOptions = append(schedOptions, sched.WithTickSource(ticker))
	}
	if sc.TimeSlice != nil {
		schedOptions = append(schedOptions, sched.WithTimeSlice(*sc.TimeSlice))
	}
	if sc.MaxThreads != 0 {
		schedOptions = append(schedOptions, sched.WithMaxThreads(sc.MaxThreads))
	}
	schedOptions = append(schedOptions, opts.sched...)

	s, err := sched.New(schedOptions...)
	if err != nil {
		return nil, fmt.Errorf(`scenario %q: %w`, sc.Name, err)
	}
	r.s = s

	r.log.Info().
		Int(`threads`, len(sc.Threads)).
		Int(`semaphores`, len(sc.Semaphores)).
		Log(`scenario started`)

	err = s.Run(ctx, r.main)

	res := &Result{
		Name:    sc.Name,
		Records: r.records,
		Stats:   s.Stats(),
	}
	if m, ok := s.Metrics(); ok {
		res.Metrics = &m
	}

	if err != nil {
		r.log.Err().Err(err).Int(`records`, len(res.Records)).Log(`scenario failed`)
		return res, fmt.Errorf(`scenario %q: %w`, sc.Name, err)
	}
	r.log.Info().
		Int(`records`, len(res.Records)).
		Int64(`ticks`, res.Stats.Ticks).
		Int64(`switches`, res.Stats.Switches).
		Log(`scenario finished`)
	return res, nil
}

func (r *runner) main() {
	s := r.s

	names := make([]string, 0, len(r.sc.Semaphores))
	for name := range r.sc.Semaphores {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		r.semas[name] = s.NewSemaphore(r.sc.Semaphores[name])
	}

	r.done = s.NewSemaphore(0)
	for i := range r.sc.Threads {
		if r.sc.Threads[i].Start {
			r.spawn(&r.sc.Threads[i])
		}
	}
	// every other thread may run to completion, before main powers off
	if err := s.SetPriority(s.Current(), sched.PriMin); err != nil {
		panic(err)
	}
	for range r.sc.Threads {
		r.done.Down()
	}
}

func (r *runner) spawn(t *Thread) {
	if _, err := r.s.Create(t.Name, t.Priority, r.body, t); err != nil {
		r.log.Warning().Str(`thread`, t.Name).Err(err).Log(`spawn failed`)
		r.abandon(t, err.Error())
	}
}

// abandon accounts for a thread that will never run, and for every thread
// it would have spawned.
func (r *runner) abandon(t *Thread, detail string) {
	r.record(Record{Thread: t.Name, Kind: KindSpawnFailed, Detail: detail})
	r.done.Up()
	for _, step := range t.Steps {
		if step.Kind != StepSpawn {
			continue
		}
		if child, ok := r.sc.Thread(step.Name); ok {
			r.abandon(child, fmt.Sprintf(`parent %s was not created`, t.Name))
		}
	}
}

func (r *runner) body(arg any) {
	t := arg.(*Thread)
	for _, step := range t.Steps {
		r.step(t, step)
	}
	r.done.Up()
}

func (r *runner) step(t *Thread, step Step) {
	s := r.s
	switch step.Kind {
	case StepLog:
		r.record(Record{Thread: t.Name, Kind: KindLog, Detail: step.Name})
	case StepYield:
		s.Yield()
	case StepSleep:
		s.Sleep(step.N)
	case StepDown:
		r.semas[step.Name].Down()
	case StepUp:
		r.semas[step.Name].Up()
	case StepSpawn:
		child, _ := r.sc.Thread(step.Name)
		r.spawn(child)
	case StepSetPriority:
		if err := s.SetPriority(s.Current(), int(step.N)); err != nil {
			panic(err)
		}
	case StepSpin:
		for i := int64(0); i < step.N; i++ {
			s.Controller().Poll()
		}
	default:
		panic(fmt.Errorf(`scenario: unknown step kind %q`, step.Kind))
	}
}

// record is only called by the thread holding the CPU.
func (r *runner) record(rec Record) {
	g := r.s.Controller().Guard()
	rec.Tick = r.s.Ticks()
	r.records = append(r.records, rec)
	if r.sink != nil {
		r.sink.Send(rec)
	}
	g.Restore()
}

// Trace implements sched.Tracer.
func (r *runner) Trace(ev sched.TraceEvent) {
	if ev.Kind == sched.EventCreate {
		r.names[ev.Thread] = ev.Name
	}
	rec := Record{
		Tick:   ev.Tick,
		Thread: ev.Name,
		Kind:   ev.Kind.String(),
		Detail: r.detail(ev),
	}
	r.records = append(r.records, rec)
	if r.sink != nil {
		r.sink.Send(rec)
	}
}

func (r *runner) detail(ev sched.TraceEvent) string {
	switch ev.Kind {
	case sched.EventCreate:
		if ev.Arg == 0 {
			return fmt.Sprintf(`priority %d`, ev.Priority)
		}
		return fmt.Sprintf(`priority %d by %s`, ev.Priority, r.name(sched.ID(ev.Arg)))
	case sched.EventSwitch:
		return `from ` + r.name(sched.ID(ev.Arg))
	case sched.EventUnblock:
		return `by ` + r.name(sched.ID(ev.Arg))
	case sched.EventSleep, sched.EventWake:
		return fmt.Sprintf(`until %d`, ev.Arg)
	case sched.EventPriority:
		return fmt.Sprintf(`%d -> %d`, ev.Arg, ev.Priority)
	default:
		return ``
	}
}

func (r *runner) name(id sched.ID) string {
	if name, ok := r.names[id]; ok {
		return name
	}
	return fmt.Sprintf(`#%d`, id)
}
