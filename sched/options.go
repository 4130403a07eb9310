// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package sched

import (
	"fmt"

	"github.com/joeycumines/logiface"
)

const (
	// DefaultMaxThreads is the default capacity of the page pool backing
	// threads, including the main and idle threads.
	DefaultMaxThreads = 256

	// DefaultTimeSlice is the default number of timer ticks a thread may run
	// before it is preempted in favour of another of equal priority.
	DefaultTimeSlice = 4

	// DefaultTimerFrequency is the default number of timer interrupts per
	// second, used to convert durations to ticks.
	DefaultTimerFrequency = 100

	// MinTimerFrequency and MaxTimerFrequency bound the timer frequency.
	MinTimerFrequency = 19
	MaxTimerFrequency = 1000
)

// schedOptions holds configuration options for Scheduler creation.
type schedOptions struct {
	logger     *logiface.Logger[logiface.Event]
	ticker     TickSource
	tracer     Tracer
	maxThreads int
	timeSlice  int
	hz         int
	checks     bool
	metrics    bool
}

// Option configures a Scheduler instance.
type Option interface {
	applyScheduler(*schedOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applySchedulerFunc func(*schedOptions) error
}

func (o *optionImpl) applyScheduler(opts *schedOptions) error {
	return o.applySchedulerFunc(opts)
}

// WithLogger configures structured logging. A nil logger disables logging,
// which is the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *schedOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMaxThreads sets the number of pages available to back threads, which
// is the maximum number of live threads, including main and idle.
func WithMaxThreads(n int) Option {
	return &optionImpl{func(opts *schedOptions) error {
		if n < 2 {
			return fmt.Errorf("sched: max threads must be at least 2, got %d", n)
		}
		opts.maxThreads = n
		return nil
	}}
}

// WithTimeSlice sets the number of ticks after which the running thread is
// made to yield. Zero disables time slicing, meaning equal priority threads
// only take turns by blocking or yielding.
func WithTimeSlice(ticks int) Option {
	return &optionImpl{func(opts *schedOptions) error {
		if ticks < 0 {
			return fmt.Errorf("sched: negative time slice: %d", ticks)
		}
		opts.timeSlice = ticks
		return nil
	}}
}

// WithTimerFrequency sets the number of timer interrupts per second, which
// must be in the range [19, 1000].
func WithTimerFrequency(hz int) Option {
	return &optionImpl{func(opts *schedOptions) error {
		if hz < MinTimerFrequency || hz > MaxTimerFrequency {
			return fmt.Errorf("sched: timer frequency %d out of range [%d, %d]", hz, MinTimerFrequency, MaxTimerFrequency)
		}
		opts.hz = hz
		return nil
	}}
}

// WithTickSource attaches the hardware timer that drives the timer
// interrupt. Without one, ticks only occur when [TimerVector] is raised
// explicitly, via [Scheduler.Controller].
func WithTickSource(src TickSource) Option {
	return &optionImpl{func(opts *schedOptions) error {
		opts.ticker = src
		return nil
	}}
}

// WithTracer receives every scheduling event, see [Tracer].
func WithTracer(tracer Tracer) Option {
	return &optionImpl{func(opts *schedOptions) error {
		opts.tracer = tracer
		return nil
	}}
}

// WithInvariantChecks enables verification of the scheduler's structural
// invariants after every context switch, halting the kernel on failure.
func WithInvariantChecks(enabled bool) Option {
	return &optionImpl{func(opts *schedOptions) error {
		opts.checks = enabled
		return nil
	}}
}

// WithMetrics enables collection of dispatch latency metrics, accessible via
// [Scheduler.Metrics].
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *schedOptions) error {
		opts.metrics = enabled
		return nil
	}}
}

// resolveOptions applies Option instances to schedOptions.
func resolveOptions(opts []Option) (*schedOptions, error) {
	cfg := &schedOptions{
		maxThreads: DefaultMaxThreads,
		timeSlice:  DefaultTimeSlice,
		hz:         DefaultTimerFrequency,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
