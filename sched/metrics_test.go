package sched

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantileEstimator(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i + 1)
	}
	rand.New(rand.NewSource(1)).Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	})
	for _, tc := range [...]struct {
		p    float64
		want float64
	}{
		{0.5, 500},
		{0.9, 900},
		{0.99, 990},
	} {
		e := newQuantileEstimator(tc.p)
		for _, v := range values {
			e.add(v)
		}
		assert.InDelta(t, tc.want, e.value(), 25, `p=%v`, tc.p)
	}
}

func TestQuantileEstimator_small(t *testing.T) {
	e := newQuantileEstimator(0.5)
	assert.Zero(t, e.value())
	for _, v := range []float64{3, 1, 2} {
		e.add(v)
	}
	assert.Equal(t, 2.0, e.value())
}

func TestScheduler_Metrics(t *testing.T) {
	s := newTestScheduler(t, WithMetrics(true))
	runMain(t, s, func() {
		_, _ = s.Create(`waiter`, PriDefault, func(any) {}, nil)
		for i := 0; i < 5; i++ {
			tick(s)
		}
		s.Yield()
	})
	m, ok := s.Metrics()
	require.True(t, ok)
	// main once during boot, then waiter, then main again
	assert.Equal(t, int64(3), m.ReadyWait.Count)
	assert.Equal(t, 5.0, m.ReadyWait.Max)
	assert.InDelta(t, 5.0/3, m.ReadyWait.Mean, 1e-9)

	s = newTestScheduler(t)
	runMain(t, s, func() {})
	_, ok = s.Metrics()
	assert.False(t, ok)
}
