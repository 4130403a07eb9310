package ordq

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	id  int
	pri int
}

// descending priority, like the ready queue
func byPriority(pri map[int]int) func(a, b int) int {
	return func(a, b int) int { return pri[b] - pri[a] }
}

func TestQueue_descendingPriorityFIFO(t *testing.T) {
	pri := map[int]int{1: 3, 2: 5, 3: 3, 4: 10, 5: 5, 6: 0}
	q := New(byPriority(pri))
	for id := 1; id <= 6; id++ {
		q.Insert(id)
	}
	assert.Equal(t, []int{4, 2, 5, 1, 3, 6}, q.Slice())
	assert.True(t, q.Sorted())

	front, ok := q.Front()
	require.True(t, ok)
	assert.Equal(t, 4, front)

	var popped []int
	for q.Len() != 0 {
		v, ok := q.PopFront()
		require.True(t, ok)
		popped = append(popped, v)
	}
	assert.Equal(t, []int{4, 2, 5, 1, 3, 6}, popped)
	_, ok = q.PopFront()
	assert.False(t, ok)
}

func TestQueue_insertReturnsIndex(t *testing.T) {
	q := New(func(a, b int) int { return a - b })
	assert.Equal(t, 0, q.Insert(5))
	assert.Equal(t, 0, q.Insert(1))
	assert.Equal(t, 2, q.Insert(9))
	assert.Equal(t, 2, q.Insert(5))
	assert.Equal(t, []int{1, 5, 5, 9}, q.Slice())
}

func TestQueue_removeAndReposition(t *testing.T) {
	pri := map[int]int{1: 1, 2: 2, 3: 3}
	q := New(byPriority(pri))
	q.Insert(1)
	q.Insert(2)
	q.Insert(3)

	assert.True(t, q.Contains(2))
	assert.True(t, q.Remove(2))
	assert.False(t, q.Remove(2))
	assert.False(t, q.Contains(2))
	assert.Equal(t, []int{3, 1}, q.Slice())

	pri[1] = 3
	assert.True(t, q.Reposition(1))
	// equal keys: the repositioned element goes last among equals
	assert.Equal(t, []int{3, 1}, q.Slice())

	pri[1] = 4
	assert.False(t, q.Sorted())
	q.Reposition(1)
	assert.Equal(t, []int{1, 3}, q.Slice())
	assert.False(t, q.Reposition(7))
	assert.Equal(t, 1, q.Get(0))
	assert.Panics(t, func() { q.Get(2) })
}

// Every observation point must be non-increasing in priority, and FIFO
// among equal priorities.
func TestQueue_randomizedOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pri := make(map[int]int)
	q := New(byPriority(pri))
	var seq []item
	next := 0
	for i := 0; i < 2000; i++ {
		if q.Len() == 0 || rng.Intn(3) != 0 {
			next++
			pri[next] = rng.Intn(8)
			q.Insert(next)
			seq = append(seq, item{id: next, pri: pri[next]})
		} else {
			v, _ := q.PopFront()
			for j, it := range seq {
				if it.id == v {
					seq = append(seq[:j], seq[j+1:]...)
					break
				}
			}
		}
		s := q.Slice()
		for j := 1; j < len(s); j++ {
			a, b := pri[s[j-1]], pri[s[j]]
			require.GreaterOrEqual(t, a, b)
			if a == b {
				// ids increase with insertion order
				require.Less(t, s[j-1], s[j])
			}
		}
		require.Len(t, s, len(seq))
	}
}

func TestNew_nilComparator(t *testing.T) {
	assert.Panics(t, func() { New[int](nil) })
}
