package resource

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rendergraph/internal/logging"
)

// DynAllocator hands out handles for resources that have no persistent
// identity. Indexes are unique across every allocator created by the same
// manager: the high 32 bits hold the allocator index.
//
// DynAllocator is safe for concurrent use.
type DynAllocator[T any] struct {
	drop        *DropQueue[T]
	nextIndex   atomic.Uint64
	activeCount *atomic.Int64
}

// Insert wraps v in a handle owned by the allocator's manager.
func (a *DynAllocator[T]) Insert(v T) *Arc[T] {
	arc := NewArc(v, a.drop)
	arc.index = a.nextIndex.Add(1) - 1
	a.activeCount.Add(1)
	return arc
}

// DynManager owns the drop queue and drop sink for one resource kind.
// Its methods other than CreateAllocator must be called from a single
// goroutine, normally the one that completes frames.
type DynManager[T any] struct {
	kind               string
	drop               *DropQueue[T]
	sink               *DropSink[T]
	activeCount        atomic.Int64
	nextAllocatorIndex atomic.Uint64
}

// NewDynManager creates a manager whose released resources are destroyed
// by destroy after maxFramesInFlight+1 completed frames.
func NewDynManager[T any](kind string, maxFramesInFlight int, destroy func(T) error) *DynManager[T] {
	m := &DynManager[T]{
		kind: kind,
		drop: &DropQueue[T]{},
		sink: NewDropSink(maxFramesInFlight, destroy),
	}
	m.nextAllocatorIndex.Store(1)
	return m
}

// CreateAllocator returns a new allocator feeding this manager.
func (m *DynManager[T]) CreateAllocator() *DynAllocator[T] {
	idx := m.nextAllocatorIndex.Add(1) - 1
	a := &DynAllocator[T]{
		drop:        m.drop,
		activeCount: &m.activeCount,
	}
	a.nextIndex.Store(idx<<32 + 1)
	return a
}

// Len returns the number of live handles created by this manager's
// allocators.
func (m *DynManager[T]) Len() int { return int(m.activeCount.Load()) }

// Pending returns the number of released resources awaiting destruction.
func (m *DynManager[T]) Pending() int { return m.sink.Len() }

func (m *DynManager[T]) handleDroppedResources() {
	for _, v := range m.drop.Drain() {
		m.sink.Retire(v)
		m.activeCount.Add(-1)
	}
}

// OnFrameComplete moves released resources into the drop sink and
// destroys those whose retention window has passed.
func (m *DynManager[T]) OnFrameComplete() error {
	m.handleDroppedResources()
	return m.sink.OnFrameComplete()
}

// Destroy destroys every released resource. Resources still referenced
// are reported and leaked.
func (m *DynManager[T]) Destroy() error {
	m.handleDroppedResources()
	if n := m.Len(); n > 0 {
		logging.Logger().Warn("resources will leak",
			"kind", m.kind, "count", n)
	}
	if err := m.sink.Destroy(); err != nil {
		return errors.Wrapf(err, "resource: destroy %s", m.kind)
	}
	return nil
}
