package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
)

type globals struct {
	level levelFlag
}

func newRootCmd() *cobra.Command {
	g := &globals{level: levelFlag(logiface.LevelWarning)}
	cmd := &cobra.Command{
		Use:   `kernsched`,
		Short: `Run workloads on a simulated single-core kernel scheduler`,
		Long: `kernsched runs workload scenarios on a simulated single-core kernel, with a
preemptive, priority-based scheduler, printing a summary of the run.

Examples:
  # Run a scenario, writing the scheduling trace as JSON lines
  kernsched run --trace trace.jsonl scenario.yaml

  # Check a scenario, without running it
  kernsched validate scenario.yaml
`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().Var(&g.level, `log-level`, `Log level (`+strings.Join(levelNames(), `|`)+`)`)
	cmd.AddCommand(runCmd(g), validateCmd())
	return cmd
}

// logger returns a JSON lines logger, tagged with a boot ID unique to this
// invocation.
func (g *globals) logger(w io.Writer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(logiface.Level(g.level)),
	).Logger().Clone().
		Str(`boot_id`, uuid.NewString()).
		Logger()
}

// levelFlag implements pflag.Value.
type levelFlag logiface.Level

func (x *levelFlag) String() string { return logiface.Level(*x).String() }

func (x *levelFlag) Set(s string) error {
	s = strings.ToLower(s)
	switch s {
	case `error`:
		s = `err`
	case `warn`:
		s = `warning`
	case `information`, `informational`:
		s = `info`
	}
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			*x = levelFlag(level)
			return nil
		}
	}
	return fmt.Errorf(`unknown log level %q`, s)
}

func (x *levelFlag) Type() string { return `level` }

func levelNames() (names []string) {
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		names = append(names, level.String())
	}
	return names
}
