// Package ring implements a lock-free circular cursor over a fixed
// slice: repeated calls to Next make progress around the slice, but
// concurrent callers may observe elements out of order. That's by
// design — the only guarantee is progress, not a global sequence.
package ring

import "sync/atomic"

// Ring is a fixed-size circular cursor over T. The zero value is not
// usable; construct with New.
type Ring[T any] struct {
	items   []T
	counter atomic.Uint64
}

// New builds a Ring over items. items must be non-empty: constructing a
// Ring from an empty slice is a programming error and panics, the same
// way indexing past the end of an empty slice would.
func New[T any](items []T) *Ring[T] {
	if len(items) == 0 {
		panic("ring: New called with empty slice")
	}
	cp := make([]T, len(items))
	copy(cp, items)
	return &Ring[T]{items: cp}
}

// Next returns the next element. When the ring holds a single element,
// the counter is never touched.
func (r *Ring[T]) Next() T {
	if len(r.items) == 1 {
		return r.items[0]
	}
	i := r.counter.Add(1) - 1
	return r.items[i%uint64(len(r.items))]
}

// Len reports the number of elements in the ring.
func (r *Ring[T]) Len() int { return len(r.items) }
