package sched

type (
	// Stats are counters maintained by the scheduler.
	Stats struct {
		// Ticks is the number of timer interrupts since boot.
		Ticks int64
		// IdleTicks is the number of ticks on which the idle thread was
		// running.
		IdleTicks int64
		// KernelTicks is the number of ticks on which any other thread was
		// running.
		KernelTicks int64
		// Switches is the number of context switches.
		Switches int64
		// Yields is the number of calls to Yield.
		Yields int64
		// Preemptions is the number of yields forced on return from an
		// interrupt, due to the time slice expiring, or a higher priority
		// thread becoming ready.
		Preemptions int64
		// Created is the number of threads created, including main and idle.
		Created int64
		// Exited is the number of threads that have exited, and been reaped.
		Exited int64
		// Live is the number of threads that exist.
		Live int
	}

	// Metrics describe scheduling latency, see [WithMetrics].
	Metrics struct {
		// ReadyWait is the number of ticks threads spent in the ready queue
		// before being dispatched.
		ReadyWait Distribution
	}

	// Distribution summarizes observations, with estimated percentiles.
	Distribution struct {
		Count int64
		P50   float64
		P90   float64
		P99   float64
		Max   float64
		Mean  float64
	}

	metrics struct {
		readyWait distribution
	}

	distribution struct {
		p50, p90, p99 *quantileEstimator
		count         int64
		sum           float64
		max           float64
	}
)

// Stats returns the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	v := s.stats
	v.Ticks = s.ticks
	v.Live = s.arena.live()
	return v
}

// Metrics returns latency metrics, if enabled.
func (s *Scheduler) Metrics() (Metrics, bool) {
	if s.metrics == nil {
		return Metrics{}, false
	}
	return Metrics{ReadyWait: s.metrics.readyWait.snapshot()}, true
}

func newMetrics() *metrics {
	return &metrics{readyWait: newDistribution()}
}

// dispatched records the time a thread spent ready. The receiver may be nil.
func (m *metrics) dispatched(wait int64) {
	if m == nil {
		return
	}
	m.readyWait.add(float64(wait))
}

func newDistribution() distribution {
	return distribution{
		p50: newQuantileEstimator(0.5),
		p90: newQuantileEstimator(0.9),
		p99: newQuantileEstimator(0.99),
	}
}

func (d *distribution) add(x float64) {
	if d.count == 0 || x > d.max {
		d.max = x
	}
	d.count++
	d.sum += x
	d.p50.add(x)
	d.p90.add(x)
	d.p99.add(x)
}

func (d *distribution) snapshot() Distribution {
	v := Distribution{
		Count: d.count,
		P50:   d.p50.value(),
		P90:   d.p90.value(),
		P99:   d.p99.value(),
		Max:   d.max,
	}
	if d.count != 0 {
		v.Mean = d.sum / float64(d.count)
	}
	return v
}
