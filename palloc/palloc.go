// Package palloc implements a fixed-capacity pool of zeroed, page-sized
// memory blocks, backing each kernel thread's control block and local
// storage.
package palloc

import (
	"errors"
	"math/bits"

	"github.com/joeycumines/go-kernsched/kassert"
)

// PageSize is the size, in bytes, of every block handed out by a Pool.
const PageSize = 4096

// ErrExhausted is returned by [Pool.Get] when every page is in use.
var ErrExhausted = errors.New("palloc: pool exhausted")

type (
	// Pool is a bitmap allocator over a fixed number of pages. It is not
	// safe for concurrent use; callers serialize access (in the kernel, by
	// disabling interrupts).
	Pool struct {
		used  []uint64
		mem   [][]byte
		inUse int
	}

	// Page is an allocated block. The zero value is not a valid page.
	Page struct {
		mem   []byte
		index int
	}
)

// New returns a pool with capacity for n pages. Memory for each page is
// allocated lazily, on first use.
func New(n int) *Pool {
	kassert.That(n > 0, `palloc.New`, `capacity must be positive, got %d`, n)
	return &Pool{
		used: make([]uint64, (n+63)/64),
		mem:  make([][]byte, n),
	}
}

// Get allocates a zeroed page, or returns [ErrExhausted].
func (p *Pool) Get() (Page, error) {
	for word, bitsUsed := range p.used {
		free := ^bitsUsed
		if free == 0 {
			continue
		}
		index := word*64 + bits.TrailingZeros64(free)
		if index >= len(p.mem) {
			break
		}
		p.used[word] |= 1 << (index % 64)
		p.inUse++
		mem := p.mem[index]
		if mem == nil {
			mem = make([]byte, PageSize)
			p.mem[index] = mem
		} else {
			clear(mem)
		}
		return Page{mem: mem, index: index}, nil
	}
	return Page{}, ErrExhausted
}

// Free returns a page to the pool. Freeing a page twice, or a page from
// another pool, is a contract violation.
func (p *Pool) Free(page Page) {
	kassert.That(p.owns(page), `palloc.Free`, `page %d not owned by this pool`, page.index)
	word, bit := page.index/64, uint64(1)<<(page.index%64)
	kassert.That(p.used[word]&bit != 0, `palloc.Free`, `double free of page %d`, page.index)
	p.used[word] &^= bit
	p.inUse--
}

func (p *Pool) owns(page Page) bool {
	if page.mem == nil || page.index >= len(p.mem) {
		return false
	}
	mem := p.mem[page.index]
	return len(mem) != 0 && &mem[0] == &page.mem[0]
}

// Cap returns the total number of pages.
func (p *Pool) Cap() int { return len(p.mem) }

// InUse returns the number of allocated pages.
func (p *Pool) InUse() int { return p.inUse }

// Index returns the page's position within its pool, which is stable for
// as long as the page is allocated.
func (x Page) Index() int { return x.index }

// Bytes returns the page's memory.
func (x Page) Bytes() []byte { return x.mem }

// Valid reports whether x refers to an allocated page.
func (x Page) Valid() bool { return x.mem != nil }
