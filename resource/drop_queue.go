package resource

import "sync/atomic"

type dropNode[T any] struct {
	value T
	next  *dropNode[T]
}

// DropQueue collects values whose last handle was released. Push never
// takes a lock; Drain is called once per frame by the owner.
type DropQueue[T any] struct {
	head atomic.Pointer[dropNode[T]]
}

// Push adds v to the queue.
func (q *DropQueue[T]) Push(v T) {
	n := &dropNode[T]{value: v}
	for {
		old := q.head.Load()
		n.next = old
		if q.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// Drain removes every queued value and returns them in push order.
func (q *DropQueue[T]) Drain() []T {
	n := q.head.Swap(nil)
	var out []T
	for ; n != nil; n = n.next {
		out = append(out, n.value)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
