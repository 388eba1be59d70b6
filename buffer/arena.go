// Package buffer implements the flat shared-memory calling convention between
// a host and the grid kernel.
//
// The kernel owns one contiguous []float64. The lower half is the input
// (scratch) region the host writes records into; the upper half is the output
// region every entry point overwrites. Offsets are counted in doubles.
//
//	[0 ................ half) input   <- host writes, kernel reads
//	[half ........ 2 * half) output   <- kernel writes, host copies out
//
// A call checks the arena out for its duration; a second checkout before the
// lease is returned fails with core.ErrBusy.
package buffer

import (
	"fmt"
	"sync/atomic"

	"gridkernel/core"
)

// DefaultCapacity is the number of doubles per region when none is configured
const DefaultCapacity = 32768

// Arena is the single owned scratch arena shared with the host
type Arena struct {
	mem        []float64
	half       int
	generation atomic.Uint64
	leased     atomic.Bool
}

// NewArena allocates an arena whose input and output regions each hold
// capacity doubles.
func NewArena(capacity int) (*Arena, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("arena capacity %d: %w", capacity, core.ErrInvalidInput)
	}
	return &Arena{
		mem:  make([]float64, 2*capacity),
		half: capacity,
	}, nil
}

// Capacity returns the size of each region in doubles
func (a *Arena) Capacity() int { return a.half }

// InputPtr is the offset of the input region inside Memory
func (a *Arena) InputPtr() int { return 0 }

// OutputPtr is the offset of the output region inside Memory
func (a *Arena) OutputPtr() int { return a.half }

// Generation changes every time Grow reallocates the backing memory.
// Hosts that cache views must re-read them when it moves.
func (a *Arena) Generation() uint64 { return a.generation.Load() }

// Memory exposes the whole linear memory
func (a *Arena) Memory() []float64 { return a.mem }

// Input returns a view of the input region
func (a *Arena) Input() []float64 { return a.mem[:a.half:a.half] }

// Output returns a view of the output region
func (a *Arena) Output() []float64 { return a.mem[a.half:] }

// Grow makes sure each region holds at least n doubles. It reports whether
// the memory was reallocated; existing input contents are preserved. Growing
// a checked-out arena goes through Lease.Reserve instead.
func (a *Arena) Grow(n int) (bool, error) {
	if n <= a.half {
		return false, nil
	}
	if a.leased.Load() {
		return false, core.ErrBusy
	}
	a.grow(n)
	return true, nil
}

func (a *Arena) grow(n int) {
	half := a.half
	for half < n {
		half *= 2
	}
	mem := make([]float64, 2*half)
	copy(mem, a.mem[:a.half])
	a.mem = mem
	a.half = half
	a.generation.Add(1)
}

// Checkout borrows the arena for one kernel call
func (a *Arena) Checkout() (*Lease, error) {
	if !a.leased.CompareAndSwap(false, true) {
		return nil, core.ErrBusy
	}
	return &Lease{arena: a, In: a.Input(), Out: a.Output()}, nil
}

// Busy reports whether a lease is outstanding
func (a *Arena) Busy() bool { return a.leased.Load() }

// Lease is an outstanding borrow of the arena
type Lease struct {
	arena    *Arena
	returned bool

	In  []float64
	Out []float64
}

// Reserve grows the leased arena so each region holds at least n doubles
// and refreshes In and Out. Views taken before a reallocation are stale.
func (l *Lease) Reserve(n int) (bool, error) {
	if l == nil || l.returned {
		return false, fmt.Errorf("reserve on returned lease: %w", core.ErrInvalidInput)
	}
	if n <= l.arena.half {
		return false, nil
	}
	l.arena.grow(n)
	l.In = l.arena.Input()
	l.Out = l.arena.Output()
	return true, nil
}

// Return hands the arena back. Calling it twice is a no-op.
func (l *Lease) Return() {
	if l == nil || l.returned {
		return
	}
	l.returned = true
	l.In = nil
	l.Out = nil
	l.arena.leased.Store(false)
}
