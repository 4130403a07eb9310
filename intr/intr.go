// Package intr models the interrupt controller of a single-core machine.
//
// The interrupt-enable flag is the kernel's only mutual exclusion mechanism:
// code that mutates scheduler state first disables interrupts, and restores
// the previous level when done. Hardware raises interrupt requests
// asynchronously, via [Controller.Raise], from any goroutine. Requests are
// latched as pending bits, and delivered on the goroutine currently holding
// the CPU, at the machine's equivalent of an instruction boundary: whenever
// the level transitions to [On], on [Controller.Poll], and while halted in
// [Controller.Halt].
//
// All methods other than Raise, Pending, Stop and Stopped must only be called
// by the goroutine currently executing on the (simulated) CPU.
package intr

import (
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-kernsched/kassert"
	"github.com/joeycumines/logiface"
)

// NumVectors is the number of interrupt vectors supported by a Controller.
const NumVectors = 64

// Level is the state of the interrupt-enable flag.
type Level uint8

const (
	// Off means interrupts are disabled.
	Off Level = iota
	// On means interrupts are enabled.
	On
)

// String implements fmt.Stringer.
func (x Level) String() string {
	switch x {
	case Off:
		return `off`
	case On:
		return `on`
	default:
		return `unknown`
	}
}

type (
	// Frame describes the interrupt being serviced.
	Frame struct {
		Name   string
		Vector uint8
	}

	// Handler services an interrupt. It runs with interrupts disabled, and
	// must never block or yield; see [Controller.YieldOnReturn].
	Handler func(f *Frame)

	// Controller is the interrupt controller, and the CPU's interrupt flag.
	Controller struct {
		log     *logiface.Logger[logiface.Event]
		limiter *catrate.Limiter
		onYield func()
		wake    chan struct{}
		quit    chan struct{}
		pending atomic.Uint64
		stop    sync.Once

		vectors [NumVectors]vector

		level         Level
		inContext     bool
		yieldOnReturn bool
	}

	vector struct {
		fn    Handler
		name  string
		count uint64
	}

	// Guard restores an interrupt level, see [Controller.Guard].
	Guard struct {
		c   *Controller
		old Level
	}
)

// New returns a Controller with interrupts disabled, which is the state of
// the machine at boot.
func New(options ...Option) *Controller {
	cfg := resolveOptions(options)
	return &Controller{
		log: cfg.logger,
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 5,
			time.Minute: 60,
		}),
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		level: Off,
	}
}

// Level returns the current interrupt level.
func (c *Controller) Level() Level { return c.level }

// InContext reports whether an interrupt handler is currently running.
func (c *Controller) InContext() bool { return c.inContext }

// Disable disables interrupts, returning the previous level.
func (c *Controller) Disable() Level {
	old := c.level
	c.level = Off
	return old
}

// Enable enables interrupts, returning the previous level. Any pending
// interrupts are delivered before Enable returns. It must not be called from
// an interrupt handler.
func (c *Controller) Enable() Level {
	kassert.That(!c.inContext, `intr.Enable`, `called from interrupt context`)
	old := c.level
	c.level = On
	c.deliver()
	return old
}

// SetLevel sets the interrupt level, returning the previous level.
func (c *Controller) SetLevel(level Level) Level {
	if level == On {
		return c.Enable()
	}
	return c.Disable()
}

// Guard disables interrupts, returning a Guard that restores the previous
// level. Typical usage is `defer ic.Guard().Restore()`.
func (c *Controller) Guard() Guard {
	return Guard{c: c, old: c.Disable()}
}

// Restore sets the interrupt level back to what it was when the guard was
// acquired.
func (x Guard) Restore() { x.c.SetLevel(x.old) }

// Prev returns the level that was in effect when the guard was acquired.
func (x Guard) Prev() Level { return x.old }

// Register installs the handler for vec. Registering the same vector twice
// is a contract violation.
func (c *Controller) Register(vec uint8, name string, fn Handler) {
	kassert.That(vec < NumVectors, `intr.Register`, `vector %#x out of range`, vec)
	kassert.That(fn != nil, `intr.Register`, `nil handler for vector %#x`, vec)
	kassert.That(c.vectors[vec].fn == nil, `intr.Register`, `vector %#x already registered to %q`, vec, c.vectors[vec].name)
	c.vectors[vec] = vector{fn: fn, name: name}
}

// SetYieldHook sets the function invoked when a handler has requested
// [Controller.YieldOnReturn]. The hook runs after the handler returns, with
// interrupts still disabled, outside interrupt context.
func (c *Controller) SetYieldHook(fn func()) { c.onYield = fn }

// YieldOnReturn requests that the interrupted thread yields the CPU, once the
// current handler returns. It may only be called from interrupt context.
func (c *Controller) YieldOnReturn() {
	kassert.That(c.inContext, `intr.YieldOnReturn`, `called outside interrupt context`)
	c.yieldOnReturn = true
}

// Raise latches an interrupt request for vec. It is safe to call from any
// goroutine, and never blocks. Requests for the same vector coalesce until
// delivered, as they would on a real interrupt controller.
func (c *Controller) Raise(vec uint8) {
	if vec >= NumVectors {
		return
	}
	c.pending.Or(1 << vec)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Pending reports whether any interrupt request is latched.
func (c *Controller) Pending() bool { return c.pending.Load() != 0 }

// Poll delivers pending interrupts, if interrupts are enabled and no handler
// is running.
func (c *Controller) Poll() {
	c.checkStop()
	if c.level == On && !c.inContext {
		c.deliver()
	}
}

// Halt enables interrupts and waits for at least one interrupt to be
// delivered, the equivalent of "sti; hlt". It returns with interrupts
// enabled.
func (c *Controller) Halt() {
	kassert.That(!c.inContext, `intr.Halt`, `called from interrupt context`)
	c.level = On
	for c.pending.Load() == 0 {
		select {
		case <-c.wake:
		case <-c.quit:
			runtime.Goexit()
		}
	}
	c.deliver()
}

// Stop powers off the controller. The goroutine holding the CPU exits (via
// runtime.Goexit) the next time it enables interrupts, polls, or halts.
func (c *Controller) Stop() {
	c.stop.Do(func() { close(c.quit) })
}

// Stopped returns a channel that is closed once Stop has been called.
func (c *Controller) Stopped() <-chan struct{} { return c.quit }

// Count returns the number of times vec has been delivered.
func (c *Controller) Count(vec uint8) uint64 {
	if vec >= NumVectors {
		return 0
	}
	return c.vectors[vec].count
}

func (c *Controller) checkStop() {
	select {
	case <-c.quit:
		runtime.Goexit()
	default:
	}
}

func (c *Controller) deliver() {
	for c.level == On {
		c.checkStop()
		pending := c.pending.Load()
		if pending == 0 {
			return
		}
		vec := uint8(bits.TrailingZeros64(pending))
		mask := uint64(1) << vec
		if c.pending.And(^mask)&mask == 0 {
			continue
		}
		c.dispatch(vec)
	}
}

func (c *Controller) dispatch(vec uint8) {
	c.level = Off
	c.inContext = true
	c.yieldOnReturn = false

	v := &c.vectors[vec]
	v.count++
	if v.fn != nil {
		v.fn(&Frame{Vector: vec, Name: v.name})
	} else {
		c.unexpected(vec, v.count)
	}

	c.inContext = false
	if c.yieldOnReturn {
		c.yieldOnReturn = false
		if c.onYield != nil {
			c.onYield()
		}
	}
	c.level = On
}

func (c *Controller) unexpected(vec uint8, count uint64) {
	if _, ok := c.limiter.Allow(vec); !ok {
		return
	}
	c.log.Warning().
		Int(`vec`, int(vec)).
		Uint64(`count`, count).
		Log(`unexpected interrupt`)
}
