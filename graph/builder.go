package graph

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
)

// Builder accumulates the nodes of one frame and the image and buffer
// usages they declare. It is pure data: no backend object is touched until
// the plan is prepared.
//
// The first invalid call is recorded and returned by Err and NewPlan;
// later calls become no-ops returning invalid ids. Reusing an attachment
// slot within one node panics.
//
// Builder is not safe for concurrent use.
type Builder struct {
	nodes           []*node
	images          []imageResource
	imageUsages     []imageUsage
	buffers         []bufferResource
	bufferUsages    []bufferUsage
	externalImages  []externalImage
	externalBuffers []externalBuffer
	err             error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Err returns the first error recorded by a builder call.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(stage string, sentinel error, format string, args ...any) {
	if b.err == nil {
		b.err = configErrorf(stage, sentinel, format, args...)
	}
}

func (b *Builder) node(stage string, id NodeID) *node {
	if id < 0 || int(id) >= len(b.nodes) {
		b.fail(stage, ErrInvalidUsage, "node %d", id)
		return nil
	}
	return b.nodes[id]
}

// AddNode adds a pass recorded on queue. Nodes are culled unless they
// contribute to an external write or are marked with SetNodeCanBeCulled.
func (b *Builder) AddNode(name string, queue Queue) NodeID {
	id := NodeID(len(b.nodes))
	b.nodes = append(b.nodes, &node{
		id:          id,
		name:        name,
		queue:       queue,
		canBeCulled: true,
	})
	return id
}

// SetNodeName renames a node.
func (b *Builder) SetNodeName(id NodeID, name string) {
	if n := b.node("set node name", id); n != nil {
		n.name = name
	}
}

// SetNodeCanBeCulled controls whether an unreferenced node is dropped.
func (b *Builder) SetNodeCanBeCulled(id NodeID, canBeCulled bool) {
	if n := b.node("set node can be culled", id); n != nil {
		n.canBeCulled = canBeCulled
	}
}

// AddExplicitDependency orders id after dependsOn even if they share no
// resource.
func (b *Builder) AddExplicitDependency(id, dependsOn NodeID) {
	n := b.node("add explicit dependency", id)
	if b.node("add explicit dependency", dependsOn) == nil || n == nil {
		return
	}
	n.explicitDeps = append(n.explicitDeps, dependsOn)
}

// SetImageName names the virtual image usage belongs to.
func (b *Builder) SetImageName(usage ImageUsageID, name string) {
	if u, ok := b.imageUsage("set image name", usage); ok {
		b.images[u.version.Image].name = name
	}
}

// SetRenderpassCallback sets the function that records the node's draws.
func (b *Builder) SetRenderpassCallback(id NodeID, fn RenderpassCallback) {
	n := b.node("set renderpass callback", id)
	if n == nil {
		return
	}
	if n.renderCallback != nil || n.computeCallback != nil {
		b.fail("set renderpass callback", ErrCallbackAlreadySet, "node %q", n.name)
		return
	}
	n.renderCallback = fn
}

// SetComputeCallback sets the function that records the node's dispatches
// or copies outside a render pass.
func (b *Builder) SetComputeCallback(id NodeID, fn ComputeCallback) {
	n := b.node("set compute callback", id)
	if n == nil {
		return
	}
	if n.renderCallback != nil || n.computeCallback != nil {
		b.fail("set compute callback", ErrCallbackAlreadySet, "node %q", n.name)
		return
	}
	n.computeCallback = fn
}

// SetPrepareCallback sets a function run before recording starts. Prepare
// callbacks of different nodes may run concurrently.
func (b *Builder) SetPrepareCallback(id NodeID, fn PrepareCallback) {
	n := b.node("set prepare callback", id)
	if n == nil {
		return
	}
	if n.prepareCallback != nil {
		b.fail("set prepare callback", ErrCallbackAlreadySet, "node %q", n.name)
		return
	}
	n.prepareCallback = fn
}

func (b *Builder) imageUsage(stage string, id ImageUsageID) (imageUsage, bool) {
	if id < 0 || int(id) >= len(b.imageUsages) {
		b.fail(stage, ErrReadBeforeWrite, "image usage %d", id)
		return imageUsage{}, false
	}
	return b.imageUsages[id], true
}

func (b *Builder) version(v ImageVersionID) *imageVersion {
	return &b.images[v.Image].versions[v.Version]
}

func (b *Builder) addImageCreate(n *node, c ImageConstraint, view ViewOptions) ImageUsageID {
	image := ImageID(len(b.images))
	usage := ImageUsageID(len(b.imageUsages))
	b.imageUsages = append(b.imageUsages, imageUsage{
		node:      n.id,
		version:   ImageVersionID{Image: image},
		usageType: UsageCreate,
		view:      view,
	})
	b.images = append(b.images, imageResource{
		versions: []imageVersion{{creator: n.id, createUsage: usage}},
	})
	n.imageCreates = append(n.imageCreates, imageCreate{usage: usage, constraint: c})
	return usage
}

func (b *Builder) addImageRead(stage string, n *node, src ImageUsageID, c ImageConstraint, view ViewOptions) ImageUsageID {
	u, ok := b.imageUsage(stage, src)
	if !ok {
		return noImageUsage
	}
	usage := b.pushImageRead(n.id, u.version, UsageRead, view)
	n.imageReads = append(n.imageReads, imageRead{usage: usage, constraint: c})
	return usage
}

func (b *Builder) pushImageRead(id NodeID, v ImageVersionID, t UsageType, view ViewOptions) ImageUsageID {
	usage := ImageUsageID(len(b.imageUsages))
	b.imageUsages = append(b.imageUsages, imageUsage{node: id, version: v, usageType: t, view: view})
	ver := b.version(v)
	ver.readUsages = append(ver.readUsages, usage)
	return usage
}

func (b *Builder) addImageModify(stage string, n *node, src ImageUsageID, c ImageConstraint, view ViewOptions) (ImageUsageID, ImageUsageID) {
	u, ok := b.imageUsage(stage, src)
	if !ok {
		return noImageUsage, noImageUsage
	}
	res := &b.images[u.version.Image]
	if u.version.Version != len(res.versions)-1 {
		b.fail(stage, ErrStaleVersion, "image %d version %d superseded by version %d",
			u.version.Image, u.version.Version, len(res.versions)-1)
		return noImageUsage, noImageUsage
	}
	input := b.pushImageRead(n.id, u.version, UsageModifyRead, view)

	output := ImageUsageID(len(b.imageUsages))
	next := ImageVersionID{Image: u.version.Image, Version: len(res.versions)}
	b.imageUsages = append(b.imageUsages, imageUsage{
		node:      n.id,
		version:   next,
		usageType: UsageModifyWrite,
		view:      view,
	})
	res.versions = append(res.versions, imageVersion{creator: n.id, createUsage: output})
	n.imageModifies = append(n.imageModifies, imageModify{input: input, output: output, constraint: c})
	return input, output
}

func (b *Builder) colorSlot(stage string, n *node, slot int) *colorAttachment {
	if slot < 0 {
		b.fail(stage, ErrInvalidUsage, "color attachment slot %d", slot)
		return nil
	}
	for len(n.colorAttachments) <= slot {
		n.colorAttachments = append(n.colorAttachments, nil)
	}
	if n.colorAttachments[slot] != nil {
		panic(errors.AssertionFailedf("rendergraph: node %q color attachment %d set twice", n.name, slot))
	}
	a := &colorAttachment{readImage: noImageUsage, writeImage: noImageUsage}
	n.colorAttachments[slot] = a
	return a
}

func (b *Builder) depthSlot(n *node, aspect DepthAspect) *depthAttachment {
	if n.depthAttachment != nil {
		panic(errors.AssertionFailedf("rendergraph: node %q depth attachment set twice", n.name))
	}
	if aspect == 0 {
		aspect = AspectDepth
	}
	n.depthAttachment = &depthAttachment{aspect: aspect, readImage: noImageUsage, writeImage: noImageUsage}
	return n.depthAttachment
}

// CreateColorAttachment creates a new image written as color attachment
// slot. A nil clear leaves the initial contents undefined.
func (b *Builder) CreateColorAttachment(id NodeID, slot int, clear *gputypes.Color, c ImageConstraint, view ViewOptions) ImageUsageID {
	const stage = "create color attachment"
	n := b.node(stage, id)
	if n == nil {
		return noImageUsage
	}
	a := b.colorSlot(stage, n, slot)
	if a == nil {
		return noImageUsage
	}
	c.Usage |= gputypes.TextureUsageRenderAttachment
	a.clear = clear
	a.writeImage = b.addImageCreate(n, c, view)
	return a.writeImage
}

// ReadColorAttachment binds an existing image as a read-only color
// attachment.
func (b *Builder) ReadColorAttachment(id NodeID, image ImageUsageID, slot int, c ImageConstraint, view ViewOptions) ImageUsageID {
	const stage = "read color attachment"
	n := b.node(stage, id)
	if n == nil {
		return noImageUsage
	}
	a := b.colorSlot(stage, n, slot)
	if a == nil {
		return noImageUsage
	}
	c.Usage |= gputypes.TextureUsageRenderAttachment
	a.readImage = b.addImageRead(stage, n, image, c, view)
	return a.readImage
}

// ModifyColorAttachment loads an existing image as color attachment slot
// and writes a new version of it, which is returned.
func (b *Builder) ModifyColorAttachment(id NodeID, image ImageUsageID, slot int, clear *gputypes.Color, c ImageConstraint, view ViewOptions) ImageUsageID {
	const stage = "modify color attachment"
	n := b.node(stage, id)
	if n == nil {
		return noImageUsage
	}
	a := b.colorSlot(stage, n, slot)
	if a == nil {
		return noImageUsage
	}
	c.Usage |= gputypes.TextureUsageRenderAttachment
	a.clear = clear
	a.readImage, a.writeImage = b.addImageModify(stage, n, image, c, view)
	return a.writeImage
}

// CreateDepthAttachment creates a new image written as the depth/stencil
// attachment.
func (b *Builder) CreateDepthAttachment(id NodeID, clear *DepthStencilClear, aspect DepthAspect, c ImageConstraint, view ViewOptions) ImageUsageID {
	n := b.node("create depth attachment", id)
	if n == nil {
		return noImageUsage
	}
	a := b.depthSlot(n, aspect)
	c.Usage |= gputypes.TextureUsageRenderAttachment
	a.clear = clear
	a.writeImage = b.addImageCreate(n, c, view)
	return a.writeImage
}

// ReadDepthAttachment binds an existing image as a read-only depth
// attachment.
func (b *Builder) ReadDepthAttachment(id NodeID, image ImageUsageID, aspect DepthAspect, c ImageConstraint, view ViewOptions) ImageUsageID {
	const stage = "read depth attachment"
	n := b.node(stage, id)
	if n == nil {
		return noImageUsage
	}
	a := b.depthSlot(n, aspect)
	c.Usage |= gputypes.TextureUsageRenderAttachment
	a.readImage = b.addImageRead(stage, n, image, c, view)
	return a.readImage
}

// ModifyDepthAttachment loads an existing depth image and writes a new
// version of it, which is returned.
func (b *Builder) ModifyDepthAttachment(id NodeID, image ImageUsageID, clear *DepthStencilClear, aspect DepthAspect, c ImageConstraint, view ViewOptions) ImageUsageID {
	const stage = "modify depth attachment"
	n := b.node(stage, id)
	if n == nil {
		return noImageUsage
	}
	a := b.depthSlot(n, aspect)
	c.Usage |= gputypes.TextureUsageRenderAttachment
	a.clear = clear
	a.readImage, a.writeImage = b.addImageModify(stage, n, image, c, view)
	return a.writeImage
}

// CreateResolveAttachment creates the single-sample image color attachment
// slot resolves into.
func (b *Builder) CreateResolveAttachment(id NodeID, slot int, c ImageConstraint, view ViewOptions) ImageUsageID {
	n := b.node("create resolve attachment", id)
	if n == nil {
		return noImageUsage
	}
	return b.createResolveAttachment(n, slot, c, view)
}

func (b *Builder) createResolveAttachment(n *node, slot int, c ImageConstraint, view ViewOptions) ImageUsageID {
	for len(n.resolveAttachments) <= slot {
		n.resolveAttachments = append(n.resolveAttachments, noImageUsage)
	}
	if n.resolveAttachments[slot] != noImageUsage {
		panic(errors.AssertionFailedf("rendergraph: node %q resolve attachment %d set twice", n.name, slot))
	}
	c.Usage |= gputypes.TextureUsageRenderAttachment
	usage := b.addImageCreate(n, c, view)
	n.resolveAttachments[slot] = usage
	return usage
}

// SampleImage reads image through a texture binding.
func (b *Builder) SampleImage(id NodeID, image ImageUsageID, c ImageConstraint, view ViewOptions) ImageUsageID {
	const stage = "sample image"
	n := b.node(stage, id)
	if n == nil {
		return noImageUsage
	}
	c.Usage |= gputypes.TextureUsageTextureBinding
	usage := b.addImageRead(stage, n, image, c, view)
	if usage != noImageUsage {
		n.sampledImages = append(n.sampledImages, usage)
	}
	return usage
}

// CreateStorageImage creates an image written through a storage binding.
func (b *Builder) CreateStorageImage(id NodeID, c ImageConstraint, view ViewOptions) ImageUsageID {
	n := b.node("create storage image", id)
	if n == nil {
		return noImageUsage
	}
	c.Usage |= gputypes.TextureUsageStorageBinding
	usage := b.addImageCreate(n, c, view)
	n.storageImages = append(n.storageImages, usage)
	return usage
}

// ReadStorageImage reads image through a storage binding.
func (b *Builder) ReadStorageImage(id NodeID, image ImageUsageID, c ImageConstraint, view ViewOptions) ImageUsageID {
	const stage = "read storage image"
	n := b.node(stage, id)
	if n == nil {
		return noImageUsage
	}
	c.Usage |= gputypes.TextureUsageStorageBinding
	usage := b.addImageRead(stage, n, image, c, view)
	if usage != noImageUsage {
		n.storageImages = append(n.storageImages, usage)
	}
	return usage
}

// ModifyStorageImage reads and writes image through a storage binding and
// returns the new version.
func (b *Builder) ModifyStorageImage(id NodeID, image ImageUsageID, c ImageConstraint, view ViewOptions) ImageUsageID {
	const stage = "modify storage image"
	n := b.node(stage, id)
	if n == nil {
		return noImageUsage
	}
	c.Usage |= gputypes.TextureUsageStorageBinding
	input, output := b.addImageModify(stage, n, image, c, view)
	if output != noImageUsage {
		n.storageImages = append(n.storageImages, input, output)
	}
	return output
}

// CopyImage records that the node copies src into a new image. The
// destination inherits every unset field of its constraint from src.
func (b *Builder) CopyImage(id NodeID, src ImageUsageID, c ImageConstraint) ImageUsageID {
	const stage = "copy image"
	n := b.node(stage, id)
	if n == nil {
		return noImageUsage
	}
	read := b.addImageRead(stage, n, src, ImageConstraint{Usage: gputypes.TextureUsageCopySrc}, ViewOptions{})
	if read == noImageUsage {
		return noImageUsage
	}
	c.Usage |= gputypes.TextureUsageCopyDst
	dst := b.addImageCreate(n, c, ViewOptions{})
	n.copySrcImages = append(n.copySrcImages, read)
	n.copyDstImages = append(n.copyDstImages, dst)
	n.imageCopies = append(n.imageCopies, imageCopy{src: read, dst: dst})
	return dst
}
