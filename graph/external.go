package graph

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rendergraph/resource"
)

// AddExternalImage registers a caller-owned image. The graph transitions
// it from initial before its first use and to final after its last. The
// view is used directly; no physical image is allocated for it.
//
// A view without an image is enough for NewPlan, but Prepare rejects it.
func (b *Builder) AddExternalImage(view *resource.Arc[*resource.ImageView], spec ImageSpec, viewOptions ViewOptions, initial, final ResourceState) ExternalImageID {
	if view == nil {
		b.fail("add external image", ErrInvalidUsage, "nil image view")
		return -1
	}
	id := ExternalImageID(len(b.externalImages))
	b.externalImages = append(b.externalImages, externalImage{
		view:        view,
		spec:        spec,
		viewOptions: viewOptions,
		initial:     initial,
		final:       final,
		input:       noImageUsage,
		output:      noImageUsage,
	})
	return id
}

func (b *Builder) external(stage string, id ExternalImageID) *externalImage {
	if id < 0 || int(id) >= len(b.externalImages) {
		b.fail(stage, ErrInvalidUsage, "external image %d", id)
		return nil
	}
	return &b.externalImages[id]
}

// ReadExternalImage returns a usage holding the external image's contents
// at the start of the frame. Repeated calls return the same usage.
func (b *Builder) ReadExternalImage(id ExternalImageID) ImageUsageID {
	ext := b.external("read external image", id)
	if ext == nil {
		return noImageUsage
	}
	if ext.input != noImageUsage {
		return ext.input
	}
	image := ImageID(len(b.images))
	usage := ImageUsageID(len(b.imageUsages))
	b.imageUsages = append(b.imageUsages, imageUsage{
		node:      NoNode,
		version:   ImageVersionID{Image: image},
		usageType: UsageCreate,
		view:      ext.viewOptions,
	})
	b.images = append(b.images, imageResource{
		versions: []imageVersion{{creator: NoNode, createUsage: usage}},
	})
	ext.input = usage
	return usage
}

// WriteExternalImage makes the version usage refers to the final contents
// of the external image.
func (b *Builder) WriteExternalImage(id ExternalImageID, usage ImageUsageID) {
	const stage = "write external image"
	ext := b.external(stage, id)
	if ext == nil {
		return
	}
	u, ok := b.imageUsage(stage, usage)
	if !ok {
		return
	}
	if ext.output != noImageUsage {
		b.fail(stage, ErrInvalidUsage, "external image %d already written", id)
		return
	}
	ext.output = b.pushImageRead(NoNode, u.version, UsageOutput, ext.viewOptions)
}

// SetOutputImage binds usage to a caller-owned image, typically the frame's
// swapchain image, left in final when the graph completes.
func (b *Builder) SetOutputImage(usage ImageUsageID, view *resource.Arc[*resource.ImageView], spec ImageSpec, viewOptions ViewOptions, final ResourceState) ExternalImageID {
	id := b.AddExternalImage(view, spec, viewOptions, StateUndefined, final)
	if id >= 0 {
		b.WriteExternalImage(id, usage)
	}
	return id
}

// AddExternalBuffer registers a caller-owned buffer.
func (b *Builder) AddExternalBuffer(buf *resource.Arc[*resource.Buffer], spec BufferSpec, initial, final ResourceState) ExternalBufferID {
	if buf == nil {
		b.fail("add external buffer", ErrInvalidUsage, "nil buffer")
		return -1
	}
	id := ExternalBufferID(len(b.externalBuffers))
	b.externalBuffers = append(b.externalBuffers, externalBuffer{
		buffer:  buf,
		spec:    spec,
		initial: initial,
		final:   final,
		input:   noBufferUsage,
		output:  noBufferUsage,
	})
	return id
}

func (b *Builder) externalBuf(stage string, id ExternalBufferID) *externalBuffer {
	if id < 0 || int(id) >= len(b.externalBuffers) {
		b.fail(stage, ErrInvalidUsage, "external buffer %d", id)
		return nil
	}
	return &b.externalBuffers[id]
}

// ReadExternalBuffer returns a usage holding the external buffer's
// contents at the start of the frame.
func (b *Builder) ReadExternalBuffer(id ExternalBufferID) BufferUsageID {
	ext := b.externalBuf("read external buffer", id)
	if ext == nil {
		return noBufferUsage
	}
	if ext.input != noBufferUsage {
		return ext.input
	}
	buf := BufferID(len(b.buffers))
	usage := BufferUsageID(len(b.bufferUsages))
	b.bufferUsages = append(b.bufferUsages, bufferUsage{
		node:      NoNode,
		version:   BufferVersionID{Buffer: buf},
		usageType: UsageCreate,
	})
	b.buffers = append(b.buffers, bufferResource{
		versions: []bufferVersion{{creator: NoNode, createUsage: usage}},
	})
	ext.input = usage
	return usage
}

// WriteExternalBuffer makes the version usage refers to the final contents
// of the external buffer.
func (b *Builder) WriteExternalBuffer(id ExternalBufferID, usage BufferUsageID) {
	const stage = "write external buffer"
	ext := b.externalBuf(stage, id)
	if ext == nil {
		return
	}
	u, ok := b.bufferUsage(stage, usage)
	if !ok {
		return
	}
	if ext.output != noBufferUsage {
		b.fail(stage, ErrInvalidUsage, "external buffer %d already written", id)
		return
	}
	ext.output = b.pushBufferRead(NoNode, u.version, UsageOutput)
}

// SetOutputBuffer binds usage to a caller-owned buffer. The spec must
// carry usage flags describing how the caller consumes the buffer.
func (b *Builder) SetOutputBuffer(usage BufferUsageID, buf *resource.Arc[*resource.Buffer], spec BufferSpec, final ResourceState) ExternalBufferID {
	if spec.Usage == 0 {
		b.fail("set output buffer", errors.Wrap(ErrInvalidUsage, "output buffer spec"), "no usage flags")
		return -1
	}
	id := b.AddExternalBuffer(buf, spec, StateUndefined, final)
	if id >= 0 {
		b.WriteExternalBuffer(id, usage)
	}
	return id
}
