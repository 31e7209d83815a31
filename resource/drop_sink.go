package resource

import "github.com/cockroachdb/errors"

type pendingDrop[T any] struct {
	liveUntil uint64
	value     T
}

// DropSink holds retired values until no in-flight frame can reference
// them, then destroys them. Not safe for concurrent use; owners serialize
// access.
type DropSink[T any] struct {
	maxFramesInFlight uint64
	frame             uint64
	pending           []pendingDrop[T]
	destroy           func(T) error
}

// NewDropSink creates a sink that destroys values with destroy.
func NewDropSink[T any](maxFramesInFlight int, destroy func(T) error) *DropSink[T] {
	return &DropSink[T]{
		maxFramesInFlight: uint64(maxFramesInFlight),
		destroy:           destroy,
	}
}

// Retire schedules v for destruction after MaxFramesInFlight+1 more calls
// to OnFrameComplete.
func (s *DropSink[T]) Retire(v T) {
	s.pending = append(s.pending, pendingDrop[T]{
		liveUntil: s.frame + s.maxFramesInFlight + 1,
		value:     v,
	})
}

// OnFrameComplete advances the frame counter and destroys values whose
// retention window has passed.
func (s *DropSink[T]) OnFrameComplete() error {
	s.frame++
	var errs error
	n := 0
	for _, p := range s.pending {
		if p.liveUntil > s.frame {
			break
		}
		errs = errors.CombineErrors(errs, s.destroy(p.value))
		n++
	}
	var zero pendingDrop[T]
	for i := 0; i < n; i++ {
		s.pending[i] = zero
	}
	s.pending = s.pending[n:]
	return errs
}

// Destroy destroys every pending value immediately.
func (s *DropSink[T]) Destroy() error {
	var errs error
	for _, p := range s.pending {
		errs = errors.CombineErrors(errs, s.destroy(p.value))
	}
	s.pending = nil
	return errs
}

// Len returns the number of values awaiting destruction.
func (s *DropSink[T]) Len() int { return len(s.pending) }
