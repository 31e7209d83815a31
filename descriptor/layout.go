package descriptor

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/device"
)

// InternalBuffer declares a buffer binding whose storage is owned by the
// pool. Each set gets Size bytes at its own aligned offset.
type InternalBuffer struct {
	Binding uint32
	Size    uint64
}

// LayoutDesc describes a bind group layout.
type LayoutDesc struct {
	Label           string
	Entries         []gputypes.BindGroupLayoutEntry
	InternalBuffers []InternalBuffer
}

// internalBufferInfo is the resolved placement of an internal buffer.
type internalBufferInfo struct {
	binding uint32
	size    uint64
	stride  uint64
	usage   gputypes.BufferUsage
}

// Layout is a created bind group layout plus the internal buffer plan
// derived from it.
type Layout struct {
	desc     LayoutDesc
	layout   hal.BindGroupLayout
	internal []internalBufferInfo
}

// NewLayout creates the backend layout and validates internal buffers
// against its entries. Internal buffer strides are rounded up to the
// device's offset alignment for the binding's buffer type.
func NewLayout(ctx *device.Context, desc LayoutDesc) (*Layout, error) {
	entries := make(map[uint32]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for _, e := range desc.Entries {
		if _, dup := entries[e.Binding]; dup {
			return nil, errors.Newf("descriptor: layout %q declares binding %d twice", desc.Label, e.Binding)
		}
		entries[e.Binding] = e
	}

	internal := make([]internalBufferInfo, 0, len(desc.InternalBuffers))
	for _, ib := range desc.InternalBuffers {
		e, ok := entries[ib.Binding]
		if !ok || e.Buffer == nil {
			return nil, errors.Newf("descriptor: layout %q internal buffer %d is not a buffer binding", desc.Label, ib.Binding)
		}
		if ib.Size == 0 {
			return nil, errors.Newf("descriptor: layout %q internal buffer %d has zero size", desc.Label, ib.Binding)
		}
		info := internalBufferInfo{binding: ib.Binding, size: ib.Size}
		if e.Buffer.Type == gputypes.BufferBindingTypeUniform {
			info.stride = ctx.AlignUniform(ib.Size)
			info.usage = gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
		} else {
			info.stride = ctx.AlignStorage(ib.Size)
			info.usage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
		}
		internal = append(internal, info)
	}

	layout, err := ctx.Device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: desc.Entries,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "descriptor: create layout %q", desc.Label)
	}
	return &Layout{desc: desc, layout: layout, internal: internal}, nil
}

// Label returns the layout's debug label.
func (l *Layout) Label() string { return l.desc.Label }

// HAL returns the backend bind group layout for pipeline layout creation.
func (l *Layout) HAL() hal.BindGroupLayout { return l.layout }

func (l *Layout) internalBuffer(binding uint32) (internalBufferInfo, bool) {
	for _, ib := range l.internal {
		if ib.binding == binding {
			return ib, true
		}
	}
	return internalBufferInfo{}, false
}

func (l *Layout) destroy(dev hal.Device) {
	if l.layout != nil {
		dev.DestroyBindGroupLayout(l.layout)
		l.layout = nil
	}
}
