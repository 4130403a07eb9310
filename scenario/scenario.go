package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joeycumines/go-kernsched/sched"
	"gopkg.in/yaml.v3"
)

type (
	// Scenario is a workload, see the package documentation.
	Scenario struct {
		Name string `yaml:"name"`
		// TimeSlice overrides sched.DefaultTimeSlice, 0 disables it.
		TimeSlice *int `yaml:"time_slice,omitempty"`
		// TimerHz overrides sched.DefaultTimerFrequency.
		TimerHz int `yaml:"timer_hz,omitempty"`
		// MaxThreads overrides sched.DefaultMaxThreads.
		MaxThreads int `yaml:"max_threads,omitempty"`
		// Semaphores maps names to initial values.
		Semaphores map[string]uint `yaml:"semaphores,omitempty"`
		Threads    []Thread        `yaml:"threads"`
	}

	Thread struct {
		Name     string `yaml:"name"`
		Priority int    `yaml:"priority"`
		// Start indicates the thread is created by the main thread.
		Start bool   `yaml:"start,omitempty"`
		Steps []Step `yaml:"steps"`
	}

	// ValidationError lists every problem found with a scenario.
	ValidationError struct {
		Name     string
		Problems []Problem
	}

	// Problem is a single validation failure, of a field identified by a
	// path like threads[0].steps[2].
	Problem struct {
		Field   string
		Message string
	}
)

// ErrInvalid is wrapped by every *ValidationError.
var ErrInvalid = errors.New(`scenario: invalid`)

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf(`scenario: empty document`)
		}
		return nil, fmt.Errorf(`scenario: decode: %w`, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// ParseFile reads and parses the scenario at path.
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf(`scenario: %w`, err)
	}
	sc, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf(`%s: %w`, path, err)
	}
	return sc, nil
}

// Thread returns the named thread.
func (x *Scenario) Thread(name string) (*Thread, bool) {
	for i := range x.Threads {
		if x.Threads[i].Name == name {
			return &x.Threads[i], true
		}
	}
	return nil, false
}

// Validate checks the scenario is runnable, returning a *ValidationError if
// it is not.
func (x *Scenario) Validate() error {
	var problems []Problem
	fail := func(field, format string, args ...any) {
		problems = append(problems, Problem{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if x.TimeSlice != nil && *x.TimeSlice < 0 {
		fail(`time_slice`, `must not be negative`)
	}
	if x.TimerHz != 0 && (x.TimerHz < sched.MinTimerFrequency || x.TimerHz > sched.MaxTimerFrequency) {
		fail(`timer_hz`, `must be in range [%d, %d]`, sched.MinTimerFrequency, sched.MaxTimerFrequency)
	}
	if x.MaxThreads != 0 && x.MaxThreads < 2 {
		fail(`max_threads`, `must be at least 2`)
	}
	for name := range x.Semaphores {
		if name == `` {
			fail(`semaphores`, `empty name`)
		}
	}
	if len(x.Threads) == 0 {
		fail(`threads`, `at least one thread is required`)
	}

	index := make(map[string]int, len(x.Threads))
	for i, t := range x.Threads {
		field := fmt.Sprintf(`threads[%d]`, i)
		switch _, dup := index[t.Name]; {
		case t.Name == ``:
			fail(field+`.name`, `required`)
		case dup:
			fail(field+`.name`, `duplicate thread %q`, t.Name)
		default:
			index[t.Name] = i
		}
		if t.Priority < sched.PriMin || t.Priority > sched.PriMax {
			fail(field+`.priority`, `must be in range [%d, %d]`, sched.PriMin, sched.PriMax)
		}
	}

	spawns := make([]int, len(x.Threads))
	children := make([][]int, len(x.Threads))
	var roots []int
	for i, t := range x.Threads {
		if t.Start {
			spawns[i]++
			roots = append(roots, i)
		}
		for j, step := range t.Steps {
			field := fmt.Sprintf(`threads[%d].steps[%d]`, i, j)
			switch step.Kind {
			case StepDown, StepUp:
				if _, ok := x.Semaphores[step.Name]; !ok {
					fail(field, `unknown semaphore %q`, step.Name)
				}
			case StepSpawn:
				k, ok := index[step.Name]
				if !ok {
					fail(field, `unknown thread %q`, step.Name)
					break
				}
				spawns[k]++
				children[i] = append(children[i], k)
			case StepSetPriority:
				if step.N < sched.PriMin || step.N > sched.PriMax {
					fail(field, `priority %d out of range [%d, %d]`, step.N, sched.PriMin, sched.PriMax)
				}
			case StepSleep, StepSpin:
				if step.N < 0 {
					fail(field, `%s must not be negative`, step.Kind)
				}
			case StepLog, StepYield:
			default:
				fail(field, `unknown step kind %q`, step.Kind)
			}
		}
	}
	if len(x.Threads) != 0 && len(roots) == 0 {
		fail(`threads`, `no thread has start set`)
	}

	// every thread must be spawned once, by a thread that itself runs
	reached := make([]bool, len(x.Threads))
	for len(roots) != 0 {
		i := roots[len(roots)-1]
		roots = roots[:len(roots)-1]
		if reached[i] {
			continue
		}
		reached[i] = true
		roots = append(roots, children[i]...)
	}
	for i, t := range x.Threads {
		field := fmt.Sprintf(`threads[%d]`, i)
		switch {
		case spawns[i] > 1:
			fail(field, `thread %q is spawned %d times`, t.Name, spawns[i])
		case !reached[i]:
			fail(field, `thread %q is never spawned`, t.Name)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Name: x.Name, Problems: problems}
}

func (x *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrInvalid.Error())
	if x.Name != `` {
		fmt.Fprintf(&b, ` %q`, x.Name)
	}
	for i, p := range x.Problems {
		if i == 0 {
			b.WriteString(`: `)
		} else {
			b.WriteString(`; `)
		}
		b.WriteString(p.Field)
		b.WriteString(`: `)
		b.WriteString(p.Message)
	}
	return b.String()
}

func (x *ValidationError) Unwrap() error { return ErrInvalid }
