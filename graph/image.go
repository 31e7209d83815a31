package graph

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/device"
)

// ExtentsKind selects how an image's size is determined.
type ExtentsKind uint8

const (
	// ExtentsUnset leaves the size to be resolved from other usages.
	ExtentsUnset ExtentsKind = iota
	// ExtentsMatchSurface sizes the image to the frame's surface.
	ExtentsMatchSurface
	// ExtentsCustom uses explicit dimensions.
	ExtentsCustom
)

// Extents is the size of an image.
type Extents struct {
	Kind   ExtentsKind
	Width  uint32
	Height uint32
	Depth  uint32
}

// MatchSurface returns extents that follow the surface size.
func MatchSurface() Extents { return Extents{Kind: ExtentsMatchSurface} }

// CustomExtents returns explicit extents.
func CustomExtents(width, height, depth uint32) Extents {
	return Extents{Kind: ExtentsCustom, Width: width, Height: height, Depth: depth}
}

// Resolve returns the concrete size for surface.
func (e Extents) Resolve(surface device.SurfaceInfo) gputypes.Extent3D {
	if e.Kind == ExtentsCustom {
		return gputypes.Extent3D{Width: e.Width, Height: e.Height, DepthOrArrayLayers: max(e.Depth, 1)}
	}
	return surface.Extent()
}

func (e Extents) String() string {
	switch e.Kind {
	case ExtentsMatchSurface:
		return "surface"
	case ExtentsCustom:
		return fmt.Sprintf("%dx%dx%d", e.Width, e.Height, e.Depth)
	default:
		return "unset"
	}
}

// ImageSpec is a fully resolved image description.
type ImageSpec struct {
	Samples    uint32
	Format     gputypes.TextureFormat
	Usage      gputypes.TextureUsage
	Extents    Extents
	LayerCount uint32
	MipCount   uint32
}

// CanMerge reports whether every field except the usage flags matches.
func (s ImageSpec) CanMerge(other ImageSpec) bool {
	return s.Samples == other.Samples &&
		s.Format == other.Format &&
		s.Extents == other.Extents &&
		s.LayerCount == other.LayerCount &&
		s.MipCount == other.MipCount
}

// TryMerge adds other's usage flags when the specs can merge. The
// receiver is left unchanged otherwise.
func (s *ImageSpec) TryMerge(other ImageSpec) bool {
	if !s.CanMerge(other) {
		return false
	}
	s.Usage |= other.Usage
	return true
}

// Constraint returns a constraint with every field set from s.
func (s ImageSpec) Constraint() ImageConstraint {
	return ImageConstraint(s)
}

// ImageConstraint is a partially specified image. The zero value of each
// field means unset: zero samples, layers or mips, an undefined format,
// ExtentsUnset.
type ImageConstraint struct {
	Samples    uint32
	Format     gputypes.TextureFormat
	Usage      gputypes.TextureUsage
	Extents    Extents
	LayerCount uint32
	MipCount   uint32
}

// CanMerge reports whether no field is set on both sides with different
// values. Usage flags always merge.
func (c ImageConstraint) CanMerge(other ImageConstraint) bool {
	return mergeable(c.Samples, other.Samples, 0) &&
		mergeable(c.Format, other.Format, gputypes.TextureFormatUndefined) &&
		mergeable(c.Extents, other.Extents, Extents{}) &&
		mergeable(c.LayerCount, other.LayerCount, 0) &&
		mergeable(c.MipCount, other.MipCount, 0)
}

// TryMerge fills unset fields from other and adds its usage flags when the
// constraints can merge. The receiver is left unchanged otherwise.
func (c *ImageConstraint) TryMerge(other ImageConstraint) bool {
	if !c.CanMerge(other) {
		return false
	}
	c.PartialMerge(other)
	return true
}

// PartialMerge takes every field other sets that does not conflict with
// the receiver and always adds other's usage flags. It returns false if
// any field conflicted.
func (c *ImageConstraint) PartialMerge(other ImageConstraint) bool {
	complete := true
	complete = mergeField(&c.Samples, other.Samples, 0) && complete
	complete = mergeField(&c.Format, other.Format, gputypes.TextureFormatUndefined) && complete
	complete = mergeField(&c.Extents, other.Extents, Extents{}) && complete
	complete = mergeField(&c.LayerCount, other.LayerCount, 0) && complete
	complete = mergeField(&c.MipCount, other.MipCount, 0) && complete
	c.Usage |= other.Usage
	return complete
}

// Set overwrites every field with spec.
func (c *ImageConstraint) Set(spec ImageSpec) {
	*c = spec.Constraint()
}

// Resolve converts the constraint to a spec. Format has no sensible
// default, so an unset format fails; other fields default to one sample,
// one layer, one mip and the surface extents.
func (c ImageConstraint) Resolve() (ImageSpec, bool) {
	if c.Format == gputypes.TextureFormatUndefined {
		return ImageSpec{}, false
	}
	spec := ImageSpec{
		Samples:    c.Samples,
		Format:     c.Format,
		Usage:      c.Usage,
		Extents:    c.Extents,
		LayerCount: c.LayerCount,
		MipCount:   c.MipCount,
	}
	if spec.Samples == 0 {
		spec.Samples = 1
	}
	if spec.LayerCount == 0 {
		spec.LayerCount = 1
	}
	if spec.MipCount == 0 {
		spec.MipCount = 1
	}
	if spec.Extents.Kind == ExtentsUnset {
		spec.Extents = MatchSurface()
	}
	return spec, true
}

// ViewOptions selects the part of an image a usage sees.
type ViewOptions struct {
	// Dimension overrides the view dimension. Zero derives it from the image.
	Dimension gputypes.TextureViewDimension

	// Aspect selects depth or stencil of a combined format. Zero means all.
	Aspect gputypes.TextureAspect

	// ArraySlice and MipSlice restrict the view to one layer or level when
	// the matching Slice flag is set.
	ArraySlice      uint32
	MipSlice        uint32
	SliceArrayLayer bool
	SliceMipLevel   bool
}

// DepthAspect selects which parts of a depth attachment a node uses.
type DepthAspect uint8

const (
	AspectDepth DepthAspect = 1 << iota
	AspectStencil
)

func mergeable[T comparable](a, b, unset T) bool {
	return a == unset || b == unset || a == b
}

func mergeField[T comparable](dst *T, src, unset T) bool {
	switch {
	case src == unset:
		return true
	case *dst == unset:
		*dst = src
		return true
	default:
		return *dst == src
	}
}
