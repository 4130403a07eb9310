package sched

import (
	"github.com/joeycumines/go-kernsched/kassert"
	"github.com/joeycumines/go-kernsched/palloc"
)

// arena stores thread records, addressed by handle, which is the index of
// the page backing the thread. Queues hold handles, never pointers, and a
// handle is only valid while its thread is live.
type arena struct {
	pool  *palloc.Pool
	slots []*thread
	byID  map[ID]*thread
}

func newArena(pages int) arena {
	return arena{
		pool:  palloc.New(pages),
		slots: make([]*thread, pages),
		byID:  make(map[ID]*thread),
	}
}

// alloc reserves a page and the slot for a new thread, which is returned
// BLOCKED, with no ID.
func (a *arena) alloc(name string, priority int) (*thread, error) {
	page, err := a.pool.Get()
	if err != nil {
		return nil, err
	}
	h := handle(page.Index())
	kassert.That(a.slots[h] == nil, `sched.arena.alloc`, `slot %d in use`, h)
	t := &thread{
		name:     name,
		priority: priority,
		status:   StatusBlocked,
		page:     page,
		h:        h,
		resume:   make(chan struct{}, 1),
	}
	a.slots[h] = t
	return t, nil
}

// register makes t addressable by ID.
func (a *arena) register(t *thread) {
	a.byID[t.id] = t
}

func (a *arena) free(t *thread) {
	kassert.That(a.slots[t.h] == t, `sched.arena.free`, `thread %d not at slot %d`, t.id, t.h)
	a.slots[t.h] = nil
	delete(a.byID, t.id)
	a.pool.Free(t.page)
	t.page = palloc.Page{}
}

func (a *arena) get(h handle) *thread {
	t := a.slots[h]
	kassert.That(t != nil, `sched.arena.get`, `stale handle %d`, h)
	return t
}

func (a *arena) lookup(id ID) (*thread, bool) {
	t, ok := a.byID[id]
	return t, ok
}

func (a *arena) live() int { return len(a.byID) }
