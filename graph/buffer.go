package graph

import "github.com/gogpu/gputypes"

// BufferSpec is a fully resolved buffer description.
type BufferSpec struct {
	Size  uint64
	Usage gputypes.BufferUsage
}

// CanMerge reports whether the sizes match.
func (s BufferSpec) CanMerge(other BufferSpec) bool {
	return s.Size == other.Size
}

// TryMerge adds other's usage flags when the specs can merge.
func (s *BufferSpec) TryMerge(other BufferSpec) bool {
	if !s.CanMerge(other) {
		return false
	}
	s.Usage |= other.Usage
	return true
}

// Constraint returns a constraint with every field set from s.
func (s BufferSpec) Constraint() BufferConstraint {
	return BufferConstraint(s)
}

// BufferConstraint is a partially specified buffer. A zero size is unset.
type BufferConstraint struct {
	Size  uint64
	Usage gputypes.BufferUsage
}

// CanMerge reports whether the sizes do not conflict.
func (c BufferConstraint) CanMerge(other BufferConstraint) bool {
	return mergeable(c.Size, other.Size, 0)
}

// TryMerge fills the size and adds usage flags when the constraints can merge.
func (c *BufferConstraint) TryMerge(other BufferConstraint) bool {
	if !c.CanMerge(other) {
		return false
	}
	c.PartialMerge(other)
	return true
}

// PartialMerge takes a non-conflicting size and always adds usage flags.
func (c *BufferConstraint) PartialMerge(other BufferConstraint) bool {
	complete := mergeField(&c.Size, other.Size, 0)
	c.Usage |= other.Usage
	return complete
}

// Set overwrites the constraint with spec.
func (c *BufferConstraint) Set(spec BufferSpec) {
	*c = spec.Constraint()
}

// Resolve converts the constraint to a spec. An unset size fails.
func (c BufferConstraint) Resolve() (BufferSpec, bool) {
	if c.Size == 0 {
		return BufferSpec{}, false
	}
	return BufferSpec(c), true
}
