package sched

import (
	"golang.org/x/exp/slices"
)

// quantileEstimator estimates a single quantile of a stream of observations
// in constant space, using the P² algorithm.
//
// Reference:
// Jain, R. and Chlamtac, I. (1985). "The P² Algorithm for Dynamic Calculation
// of Quantiles and Histograms Without Storing Observations". Communications
// of the ACM, 28(10), pp. 1076-1085.
type quantileEstimator struct {
	// heights of the five markers, which are the first five observations
	// (unsorted) until n reaches 5
	heights [5]float64
	// actual (0-based) marker positions
	pos [5]int
	// desired marker positions, and their increment per observation
	desired [5]float64
	incr    [5]float64
	p       float64
	n       int
}

func newQuantileEstimator(p float64) *quantileEstimator {
	p = min(max(p, 0), 1)
	return &quantileEstimator{
		p:    p,
		incr: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

func (e *quantileEstimator) add(x float64) {
	e.n++

	if e.n <= 5 {
		e.heights[e.n-1] = x
		if e.n == 5 {
			slices.Sort(e.heights[:])
			e.pos = [5]int{0, 1, 2, 3, 4}
			e.desired = [5]float64{0, 2 * e.p, 4 * e.p, 2 + 2*e.p, 4}
		}
		return
	}

	// cell k, such that heights[k] <= x < heights[k+1]
	var k int
	switch {
	case x < e.heights[0]:
		e.heights[0] = x
	case x >= e.heights[4]:
		e.heights[4] = x
		k = 3
	default:
		for k < 3 && x >= e.heights[k+1] {
			k++
		}
	}

	for i := k + 1; i < 5; i++ {
		e.pos[i]++
	}
	for i := range e.desired {
		e.desired[i] += e.incr[i]
	}

	for i := 1; i < 4; i++ {
		d := e.desired[i] - float64(e.pos[i])
		if (d >= 1 && e.pos[i+1]-e.pos[i] > 1) || (d <= -1 && e.pos[i-1]-e.pos[i] < -1) {
			step := 1
			if d < 0 {
				step = -1
			}
			h := e.parabolic(i, step)
			if h <= e.heights[i-1] || h >= e.heights[i+1] {
				h = e.linear(i, step)
			}
			e.heights[i] = h
			e.pos[i] += step
		}
	}
}

func (e *quantileEstimator) parabolic(i, step int) float64 {
	d := float64(step)
	n0, n1, n2 := float64(e.pos[i-1]), float64(e.pos[i]), float64(e.pos[i+1])
	q0, q1, q2 := e.heights[i-1], e.heights[i], e.heights[i+1]
	return q1 + d/(n2-n0)*((n1-n0+d)*(q2-q1)/(n2-n1)+(n2-n1-d)*(q1-q0)/(n1-n0))
}

func (e *quantileEstimator) linear(i, step int) float64 {
	j := i + step
	return e.heights[i] + float64(step)*(e.heights[j]-e.heights[i])/float64(e.pos[j]-e.pos[i])
}

func (e *quantileEstimator) value() float64 {
	switch {
	case e.n == 0:
		return 0
	case e.n < 5:
		sorted := slices.Clone(e.heights[:e.n])
		slices.Sort(sorted)
		return sorted[int(float64(e.n-1)*e.p)]
	default:
		return e.heights[2]
	}
}
