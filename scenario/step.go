package scenario

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StepKind identifies the action performed by a Step.
type StepKind string

const (
	// StepLog records Name in the trace.
	StepLog StepKind = `log`
	// StepYield yields the CPU.
	StepYield StepKind = `yield`
	// StepSleep sleeps for N ticks.
	StepSleep StepKind = `sleep`
	// StepDown performs a down on the semaphore Name.
	StepDown StepKind = `down`
	// StepUp performs an up on the semaphore Name.
	StepUp StepKind = `up`
	// StepSpawn creates the thread Name.
	StepSpawn StepKind = `spawn`
	// StepSetPriority sets the priority of the running thread to N.
	StepSetPriority StepKind = `set_priority`
	// StepSpin busy-waits, polling for interrupts N times.
	StepSpin StepKind = `spin`
)

// Step is a single action of a thread. In YAML, a step is a mapping with
// exactly one key, the kind, e.g. `down: gate`, `sleep: 10`. The yield step
// may also be written as the bare string `yield`.
type Step struct {
	Kind StepKind
	// Name is the message, semaphore, or thread, depending on Kind.
	Name string
	// N is the tick count, priority, or iteration count, depending on Kind.
	N int64
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (x *Step) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Value == string(StepYield) {
		*x = Step{Kind: StepYield}
		return nil
	}
	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return fmt.Errorf(`line %d: step must be a mapping with exactly one key`, value.Line)
	}

	key, arg := value.Content[0], value.Content[1]
	step := Step{Kind: StepKind(key.Value)}
	var err error
	switch step.Kind {
	case StepLog, StepDown, StepUp, StepSpawn:
		if arg.Kind != yaml.ScalarNode {
			return fmt.Errorf(`line %d: %s requires a name`, arg.Line, step.Kind)
		}
		err = arg.Decode(&step.Name)
	case StepSleep, StepSetPriority, StepSpin:
		err = arg.Decode(&step.N)
	case StepYield:
		// any scalar value, e.g. `yield: true`, or `yield:`
		if arg.Kind != yaml.ScalarNode {
			return fmt.Errorf(`line %d: yield takes no argument`, arg.Line)
		}
	default:
		return fmt.Errorf(`line %d: unknown step kind %q`, key.Line, key.Value)
	}
	if err != nil {
		return fmt.Errorf(`line %d: %s: %w`, arg.Line, step.Kind, err)
	}

	*x = step
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (x Step) MarshalYAML() (any, error) {
	switch x.Kind {
	case StepYield:
		return string(StepYield), nil
	case StepSleep, StepSetPriority, StepSpin:
		return map[string]int64{string(x.Kind): x.N}, nil
	default:
		return map[string]string{string(x.Kind): x.Name}, nil
	}
}

func (x Step) String() string {
	switch x.Kind {
	case StepYield:
		return string(x.Kind)
	case StepSleep, StepSetPriority, StepSpin:
		return fmt.Sprintf(`%s %d`, x.Kind, x.N)
	default:
		return fmt.Sprintf(`%s %s`, x.Kind, x.Name)
	}
}
