// Package slab provides a densely packed arena with stable integer keys.
//
// Keys carry no generation tag: callers that reuse keys must delay the
// free until no outstanding reference to the old value can exist.
package slab

import "github.com/cockroachdb/errors"

// Key identifies a slot in a RawSlab.
type Key uint32

// RawSlab stores values in a slice and recycles freed slots through a
// free list. The zero value is ready to use.
//
// RawSlab is not safe for concurrent use.
type RawSlab[T any] struct {
	storage []T
	used    []bool
	free    []Key
	count   int
}

// New returns an empty slab with room for capacity values.
func New[T any](capacity int) *RawSlab[T] {
	return &RawSlab[T]{
		storage: make([]T, 0, capacity),
		used:    make([]bool, 0, capacity),
	}
}

// Allocate stores v and returns its key. Freed slots are reused in LIFO order.
func (s *RawSlab[T]) Allocate(v T) Key {
	s.count++
	if n := len(s.free); n > 0 {
		k := s.free[n-1]
		s.free = s.free[:n-1]
		s.storage[k] = v
		s.used[k] = true
		return k
	}
	s.storage = append(s.storage, v)
	s.used = append(s.used, true)
	return Key(len(s.storage) - 1)
}

// Free releases the slot for k. Freeing an unallocated key panics.
func (s *RawSlab[T]) Free(k Key) {
	if int(k) >= len(s.used) || !s.used[k] {
		panic(errors.AssertionFailedf("slab: free of unallocated key %d", k))
	}
	var zero T
	s.storage[k] = zero
	s.used[k] = false
	s.free = append(s.free, k)
	s.count--
}

// Get returns the value stored at k.
func (s *RawSlab[T]) Get(k Key) (T, bool) {
	if int(k) >= len(s.used) || !s.used[k] {
		var zero T
		return zero, false
	}
	return s.storage[k], true
}

// GetPtr returns a pointer to the value at k, or nil if k is free.
func (s *RawSlab[T]) GetPtr(k Key) *T {
	if int(k) >= len(s.used) || !s.used[k] {
		return nil
	}
	return &s.storage[k]
}

// Len returns the number of allocated slots.
func (s *RawSlab[T]) Len() int { return s.count }

// Each calls fn for every allocated slot in key order.
func (s *RawSlab[T]) Each(fn func(Key, *T)) {
	for i := range s.storage {
		if s.used[i] {
			fn(Key(i), &s.storage[i])
		}
	}
}
