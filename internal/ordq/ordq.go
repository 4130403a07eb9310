// Package ordq implements a stable, ordered queue of small comparable
// values (typically arena handles), used for the scheduler's ready, sleep
// and wait queues.
package ordq

import (
	"golang.org/x/exp/slices"
)

// Queue keeps its elements sorted by cmp. Elements that compare equal are
// kept in insertion order, so a queue ordered by priority is FIFO within
// each priority. The zero value is not usable, see [New].
type Queue[E comparable] struct {
	s   []E
	cmp func(a, b E) int
}

// New returns an empty queue ordered by cmp, which must return a negative
// number when a belongs before b, and zero when neither takes precedence.
func New[E comparable](cmp func(a, b E) int) *Queue[E] {
	if cmp == nil {
		panic(`ordq: nil comparator`)
	}
	return &Queue[E]{cmp: cmp}
}

// Len returns the number of queued elements.
func (x *Queue[E]) Len() int { return len(x.s) }

// Insert adds value after every element it compares equal to, returning the
// resulting index.
func (x *Queue[E]) Insert(value E) int {
	index, _ := slices.BinarySearchFunc(x.s, value, func(elem, target E) int {
		if x.cmp(target, elem) < 0 {
			return 1
		}
		return -1
	})
	x.s = slices.Insert(x.s, index, value)
	return index
}

// Front returns the first element, if any.
func (x *Queue[E]) Front() (value E, ok bool) {
	if len(x.s) != 0 {
		value, ok = x.s[0], true
	}
	return
}

// PopFront removes and returns the first element, if any.
func (x *Queue[E]) PopFront() (value E, ok bool) {
	if value, ok = x.Front(); ok {
		x.s = slices.Delete(x.s, 0, 1)
	}
	return
}

// Get returns the element at index, panicking if it is out of range.
func (x *Queue[E]) Get(index int) E {
	if index < 0 || index >= len(x.s) {
		panic(`ordq: get: index out of range`)
	}
	return x.s[index]
}

// Index returns the position of value, or -1.
func (x *Queue[E]) Index(value E) int { return slices.Index(x.s, value) }

// Contains reports whether value is queued.
func (x *Queue[E]) Contains(value E) bool { return x.Index(value) >= 0 }

// Remove deletes value from the queue, reporting whether it was present.
func (x *Queue[E]) Remove(value E) bool {
	index := x.Index(value)
	if index < 0 {
		return false
	}
	x.s = slices.Delete(x.s, index, index+1)
	return true
}

// Reposition moves value to its sorted position, which is necessary after
// the key it is ordered by changes. It is placed after any equal elements,
// as if newly inserted. Returns false if value is not queued.
func (x *Queue[E]) Reposition(value E) bool {
	if !x.Remove(value) {
		return false
	}
	x.Insert(value)
	return true
}

// Slice returns a copy of the queue contents, front first.
func (x *Queue[E]) Slice() []E { return slices.Clone(x.s) }

// Sorted reports whether the queue is correctly ordered, which may not be
// the case if keys were mutated without calling Reposition.
func (x *Queue[E]) Sorted() bool {
	return slices.IsSortedFunc(x.s, x.cmp)
}
