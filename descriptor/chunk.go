package descriptor

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/device"
	"github.com/gogpu/rendergraph/internal/logging"
	"github.com/gogpu/rendergraph/resource"
)

// slotState is the per-slot bookkeeping of a chunk.
type slotState struct {
	bindGroup hal.BindGroup
	entries   map[uint32]gputypes.BindGroupEntry
	held      []releaser
}

// chunk is one backend allocation block: a contiguous run of slots and the
// internal buffers backing them.
type chunk struct {
	index     int
	firstSlot uint32
	count     uint32
	slots     []slotState
	buffers   map[uint32]*resource.Buffer
	pending   map[uint32]*WriteSet
}

func newChunk(ctx *device.Context, layout *Layout, index int, firstSlot, count uint32) (*chunk, error) {
	c := &chunk{
		index:     index,
		firstSlot: firstSlot,
		count:     count,
		slots:     make([]slotState, count),
		buffers:   make(map[uint32]*resource.Buffer, len(layout.internal)),
		pending:   make(map[uint32]*WriteSet),
	}
	for _, ib := range layout.internal {
		buf, err := resource.NewBuffer(ctx, resource.BufferDesc{
			Label: fmt.Sprintf("%s chunk %d binding %d", layout.Label(), index, ib.binding),
			Size:  ib.stride * uint64(count),
			Usage: ib.usage,
		})
		if err != nil {
			c.retireBuffers(nil, ctx.Device)
			return nil, errors.Mark(err, ErrChunkAllocation)
		}
		c.buffers[ib.binding] = buf
	}
	return c, nil
}

// internalEntries returns the bind group entries that point each slot at
// its own region of the internal buffers.
func (c *chunk) internalEntries(layout *Layout, local uint32) map[uint32]gputypes.BindGroupEntry {
	entries := make(map[uint32]gputypes.BindGroupEntry, len(layout.desc.Entries))
	for _, ib := range layout.internal {
		entries[ib.binding] = gputypes.BindGroupEntry{
			Binding: ib.binding,
			Resource: gputypes.BufferBinding{
				Buffer: c.buffers[ib.binding].Buffer.NativeHandle(),
				Offset: ib.stride * uint64(local),
				Size:   ib.size,
			},
		}
	}
	return entries
}

// schedule records w as the pending write for slot. A later write to the
// same slot replaces the earlier one.
func (c *chunk) schedule(local uint32, w *WriteSet) {
	if old, ok := c.pending[local]; ok {
		old.release()
	}
	c.pending[local] = w
}

// write applies w to slot immediately: internal buffer data is uploaded
// and the slot's bind group is rebuilt.
func (c *chunk) write(ctx *device.Context, layout *Layout, local uint32, w *WriteSet) error {
	s := &c.slots[local]
	if s.entries == nil {
		s.entries = c.internalEntries(layout, local)
	}
	for binding, e := range w.entries {
		if _, internal := layout.internalBuffer(binding); internal {
			return errors.Newf("descriptor: binding %d of %q is pool-owned", binding, layout.Label())
		}
		s.entries[binding] = e
	}
	for binding, data := range w.data {
		ib, ok := layout.internalBuffer(binding)
		if !ok {
			return errors.Newf("descriptor: binding %d of %q has no internal buffer", binding, layout.Label())
		}
		if uint64(len(data)) > ib.size {
			panic(errors.AssertionFailedf("descriptor: %d bytes written to internal buffer %d sized %d",
				len(data), binding, ib.size))
		}
		if uint64(len(data)) < ib.size {
			logging.Logger().Warn("descriptor: internal buffer write smaller than binding",
				"layout", layout.Label(), "binding", binding, "bytes", len(data), "size", ib.size)
		}
		if err := ctx.Queue.WriteBuffer(c.buffers[binding].Buffer, ib.stride*uint64(local), data); err != nil {
			return errors.Wrapf(err, "descriptor: upload binding %d of %q", binding, layout.Label())
		}
	}

	ordered := make([]gputypes.BindGroupEntry, 0, len(layout.desc.Entries))
	for _, le := range layout.desc.Entries {
		if e, ok := s.entries[le.Binding]; ok {
			ordered = append(ordered, e)
		}
	}
	bg, err := ctx.Device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s set %d", layout.Label(), c.firstSlot+local),
		Layout:  layout.layout,
		Entries: ordered,
	})
	if err != nil {
		return errors.Wrapf(err, "descriptor: create bind group for %q", layout.Label())
	}
	if s.bindGroup != nil {
		ctx.Device.DestroyBindGroup(s.bindGroup)
	}
	s.bindGroup = bg
	s.held = append(s.held, w.held...)
	w.held = nil
	return nil
}

// update applies every pending write. The first error is returned after
// all writes have been attempted.
func (c *chunk) update(ctx *device.Context, layout *Layout) error {
	var firstErr error
	for local, w := range c.pending {
		if err := c.write(ctx, layout, local, w); err != nil {
			w.release()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	clear(c.pending)
	return firstErr
}

// free resets slot and releases everything it retained.
func (c *chunk) free(dev hal.Device, local uint32) {
	if w, ok := c.pending[local]; ok {
		w.release()
		delete(c.pending, local)
	}
	s := &c.slots[local]
	if s.bindGroup != nil {
		dev.DestroyBindGroup(s.bindGroup)
	}
	for _, r := range s.held {
		r.Release()
	}
	*s = slotState{}
}

// retireBuffers hands the chunk's internal buffers to sink, or destroys
// them immediately when sink is nil.
func (c *chunk) retireBuffers(sink *resource.DropSink[*resource.Buffer], dev hal.Device) {
	for binding, buf := range c.buffers {
		if sink != nil {
			sink.Retire(buf)
		} else {
			dev.DestroyBuffer(buf.Buffer)
		}
		delete(c.buffers, binding)
	}
}
