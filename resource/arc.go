package resource

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Arc is a reference-counted handle to a backend object. The zero value is
// not usable; create handles with NewArc or a DynAllocator.
//
// Arc is safe for concurrent use.
type Arc[T any] struct {
	value T
	index uint64
	refs  atomic.Int64
	drop  *DropQueue[T]
}

// NewArc returns a handle holding one reference to v. When the last
// reference is released, v is pushed onto drop. A nil drop queue means the
// value is simply forgotten.
func NewArc[T any](v T, drop *DropQueue[T]) *Arc[T] {
	a := &Arc[T]{value: v, drop: drop}
	a.refs.Store(1)
	return a
}

// Get returns the wrapped value.
func (a *Arc[T]) Get() T { return a.value }

// Index returns the allocator-assigned index, or 0 for handles not created
// by a DynAllocator.
func (a *Arc[T]) Index() uint64 { return a.index }

// Clone adds a reference and returns the same handle.
func (a *Arc[T]) Clone() *Arc[T] {
	if a.refs.Add(1) <= 1 {
		panic(errors.AssertionFailedf("resource: clone of released handle %d", a.index))
	}
	return a
}

// Release drops one reference. Releasing more often than the handle was
// cloned panics.
func (a *Arc[T]) Release() {
	n := a.refs.Add(-1)
	switch {
	case n == 0:
		if a.drop != nil {
			a.drop.Push(a.value)
		}
	case n < 0:
		panic(errors.AssertionFailedf("resource: release of released handle %d", a.index))
	}
}

// RefCount returns the current number of references.
func (a *Arc[T]) RefCount() int64 { return a.refs.Load() }
