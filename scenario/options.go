package scenario

import (
	"github.com/joeycumines/go-kernsched/sched"
	"github.com/joeycumines/logiface"
)

type (
	// Option configures Run.
	Option interface {
		applyRun(opts *runOptions)
	}

	optionFunc func(opts *runOptions)

	runOptions struct {
		logger    *logiface.Logger[logiface.Event]
		ticker    sched.TickSource
		sink      *Sink
		sched     []sched.Option
		tickerSet bool
	}
)

func (x optionFunc) applyRun(opts *runOptions) { x(opts) }

// WithLogger sets the logger used by both the runner and the scheduler.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return optionFunc(func(opts *runOptions) {
		opts.logger = logger
	})
}

// WithTickSource replaces the default tick source, a pit.Timer at the
// scenario's frequency. A nil src disables ticks entirely, unless they are
// raised by the scenario itself, which is useful for deterministic traces
// of scenarios that never sleep.
func WithTickSource(src sched.TickSource) Option {
	return optionFunc(func(opts *runOptions) {
		opts.ticker = src
		opts.tickerSet = true
	})
}

// WithSink streams records to sink, as they are produced. The sink is not
// closed by Run.
func WithSink(sink *Sink) Option {
	return optionFunc(func(opts *runOptions) {
		opts.sink = sink
	})
}

// WithSchedulerOptions passes additional options to sched.New, which are
// applied after those derived from the scenario.
func WithSchedulerOptions(options ...sched.Option) Option {
	return optionFunc(func(opts *runOptions) {
		opts.sched = append(opts.sched, options...)
	})
}

func resolveOptions(options []Option) *runOptions {
	opts := new(runOptions)
	for _, o := range options {
		if o == nil {
			continue
		}
		o.applyRun(opts)
	}
	return opts
}
