package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joeycumines/go-kernsched/scenario"
	"github.com/joeycumines/go-kernsched/sched"
	"github.com/spf13/cobra"
)

func runCmd(g *globals) *cobra.Command {
	var (
		hz         int
		timeSlice  int
		maxThreads int
		trace      string
		timeout    time.Duration
		metrics    bool
		checks     bool
	)
	cmd := &cobra.Command{
		Use:   `run [flags] <scenario.yaml>`,
		Short: `Run a scenario, and print a summary`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			sc, err := scenario.ParseFile(args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed(`hz`) {
				sc.TimerHz = hz
			}
			if flags.Changed(`time-slice`) {
				sc.TimeSlice = &timeSlice
			}
			if flags.Changed(`max-threads`) {
				sc.MaxThreads = maxThreads
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			options := []scenario.Option{
				scenario.WithLogger(g.logger(cmd.ErrOrStderr())),
				scenario.WithSchedulerOptions(
					sched.WithMetrics(metrics),
					sched.WithInvariantChecks(checks),
				),
			}

			out := cmd.OutOrStdout()
			if trace != `` {
				var w io.Writer
				if trace == `-` {
					w = out
					out = cmd.ErrOrStderr()
				} else {
					f, err := os.Create(trace)
					if err != nil {
						return err
					}
					defer func() {
						if e := f.Close(); err == nil {
							err = e
						}
					}()
					w = f
				}
				sink := scenario.NewSink(w, nil)
				defer func() {
					if e := sink.Close(); err == nil && e != nil {
						err = fmt.Errorf(`trace: %w`, e)
					}
				}()
				options = append(options, scenario.WithSink(sink))
			}

			start := time.Now()
			res, err := scenario.Run(ctx, sc, options...)
			if res != nil {
				writeSummary(out, res, time.Since(start), err)
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&hz, `hz`, sched.DefaultTimerFrequency, `Timer interrupts per second, overrides the scenario`)
	flags.IntVar(&timeSlice, `time-slice`, sched.DefaultTimeSlice, `Ticks before preempting in favour of an equal priority thread, 0 to disable, overrides the scenario`)
	flags.IntVar(&maxThreads, `max-threads`, sched.DefaultMaxThreads, `Thread capacity, including main and idle, overrides the scenario`)
	flags.StringVar(&trace, `trace`, ``, `Write the trace as JSON lines to this file, or - for stdout`)
	flags.DurationVar(&timeout, `timeout`, 0, `Halt the run after this long, 0 to disable`)
	flags.BoolVar(&metrics, `metrics`, false, `Collect dispatch latency metrics`)
	flags.BoolVar(&checks, `check`, false, `Verify scheduler invariants after every context switch`)
	return cmd
}

func writeSummary(w io.Writer, res *scenario.Result, elapsed time.Duration, err error) {
	status := `ok`
	var halt *sched.HaltError
	switch {
	case err == nil:
	case errors.As(err, &halt):
		status = fmt.Sprintf(`halted by thread %d (%s)`, halt.Thread, halt.Name)
	case errors.Is(err, context.DeadlineExceeded):
		status = `timed out`
	case errors.Is(err, context.Canceled):
		status = `interrupted`
	default:
		status = `failed`
	}
	st := res.Stats
	fmt.Fprintf(w, "scenario %q: %s after %s\n", res.Name, status, elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  ticks        %s (idle %s, kernel %s)\n", humanize.Comma(st.Ticks), humanize.Comma(st.IdleTicks), humanize.Comma(st.KernelTicks))
	fmt.Fprintf(w, "  switches     %s\n", humanize.Comma(st.Switches))
	fmt.Fprintf(w, "  preemptions  %s, yields %s\n", humanize.Comma(st.Preemptions), humanize.Comma(st.Yields))
	fmt.Fprintf(w, "  threads      %s created, %s exited\n", humanize.Comma(st.Created), humanize.Comma(st.Exited))
	fmt.Fprintf(w, "  records      %s\n", humanize.Comma(int64(len(res.Records))))
	if m := res.Metrics; m != nil {
		d := m.ReadyWait
		fmt.Fprintf(w, "  ready wait   p50 %s, p90 %s, p99 %s, max %s ticks (%s samples)\n",
			humanize.FtoaWithDigits(d.P50, 2),
			humanize.FtoaWithDigits(d.P90, 2),
			humanize.FtoaWithDigits(d.P99, 2),
			humanize.FtoaWithDigits(d.Max, 2),
			humanize.Comma(d.Count))
	}
}
