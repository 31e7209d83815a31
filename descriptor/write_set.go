package descriptor

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/resource"
)

// releaser is satisfied by every resource.Arc.
type releaser interface {
	Release()
}

// WriteSet collects the bindings of one descriptor set. Resources bound
// through a WriteSet are retained until the set's slot is freed.
type WriteSet struct {
	entries map[uint32]gputypes.BindGroupEntry
	data    map[uint32][]byte
	held    []releaser
}

// NewWriteSet returns an empty write set.
func NewWriteSet() *WriteSet {
	return &WriteSet{
		entries: make(map[uint32]gputypes.BindGroupEntry),
		data:    make(map[uint32][]byte),
	}
}

// SetImage binds a texture view.
func (w *WriteSet) SetImage(binding uint32, view *resource.Arc[*resource.ImageView]) *WriteSet {
	w.entries[binding] = gputypes.BindGroupEntry{
		Binding: binding,
		Resource: gputypes.TextureViewBinding{
			TextureView: view.Get().View.NativeHandle(),
		},
	}
	w.held = append(w.held, view.Clone())
	return w
}

// SetSampler binds a sampler. Samplers are owned by the caller and must
// outlive the set.
func (w *WriteSet) SetSampler(binding uint32, sampler hal.Sampler) *WriteSet {
	w.entries[binding] = gputypes.BindGroupEntry{
		Binding: binding,
		Resource: gputypes.SamplerBinding{
			Sampler: sampler.NativeHandle(),
		},
	}
	return w
}

// SetBuffer binds size bytes of buf starting at offset.
func (w *WriteSet) SetBuffer(binding uint32, buf *resource.Arc[*resource.Buffer], offset, size uint64) *WriteSet {
	w.entries[binding] = gputypes.BindGroupEntry{
		Binding: binding,
		Resource: gputypes.BufferBinding{
			Buffer: buf.Get().Buffer.NativeHandle(),
			Offset: offset,
			Size:   size,
		},
	}
	w.held = append(w.held, buf.Clone())
	return w
}

// SetBufferData copies data into the set's region of an internal buffer.
// The data is captured immediately; later changes to the slice have no
// effect.
func (w *WriteSet) SetBufferData(binding uint32, data []byte) *WriteSet {
	w.data[binding] = append([]byte(nil), data...)
	return w
}

// release drops the references held by a write set that was never applied.
func (w *WriteSet) release() {
	for _, r := range w.held {
		r.Release()
	}
	w.held = nil
}
