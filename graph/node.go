package graph

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/resource"
)

const (
	noImageUsage  ImageUsageID  = -1
	noBufferUsage BufferUsageID = -1
)

// DepthStencilClear is the clear value of a depth/stencil attachment.
type DepthStencilClear struct {
	Depth   float32
	Stencil uint32
}

type colorAttachment struct {
	clear      *gputypes.Color
	readImage  ImageUsageID
	writeImage ImageUsageID
}

type depthAttachment struct {
	clear      *DepthStencilClear
	aspect     DepthAspect
	readImage  ImageUsageID
	writeImage ImageUsageID
}

type imageCreate struct {
	usage      ImageUsageID
	constraint ImageConstraint
}

type imageRead struct {
	usage      ImageUsageID
	constraint ImageConstraint
}

type imageModify struct {
	input      ImageUsageID
	output     ImageUsageID
	constraint ImageConstraint
}

type imageCopy struct {
	src ImageUsageID
	dst ImageUsageID
}

type bufferCreate struct {
	usage      BufferUsageID
	constraint BufferConstraint
}

type bufferRead struct {
	usage      BufferUsageID
	constraint BufferConstraint
}

type bufferModify struct {
	input      BufferUsageID
	output     BufferUsageID
	constraint BufferConstraint
}

type bufferCopy struct {
	src BufferUsageID
	dst BufferUsageID
}

// node is one pass of the graph and every access it declares.
type node struct {
	id           NodeID
	name         string
	queue        Queue
	canBeCulled  bool
	explicitDeps []NodeID

	imageCreates  []imageCreate
	imageReads    []imageRead
	imageModifies []imageModify
	imageCopies   []imageCopy

	colorAttachments   []*colorAttachment
	resolveAttachments []ImageUsageID
	depthAttachment    *depthAttachment

	sampledImages []ImageUsageID
	storageImages []ImageUsageID
	copySrcImages []ImageUsageID
	copyDstImages []ImageUsageID

	bufferCreates  []bufferCreate
	bufferReads    []bufferRead
	bufferModifies []bufferModify
	bufferCopies   []bufferCopy

	vertexBuffers   []BufferUsageID
	indexBuffers    []BufferUsageID
	indirectBuffers []BufferUsageID
	uniformBuffers  []BufferUsageID
	storageBuffers  []BufferUsageID
	copySrcBuffers  []BufferUsageID
	copyDstBuffers  []BufferUsageID

	renderCallback  RenderpassCallback
	computeCallback ComputeCallback
	prepareCallback PrepareCallback
}

func (n *node) hasAttachments() bool {
	if n.depthAttachment != nil {
		return true
	}
	for _, a := range n.colorAttachments {
		if a != nil {
			return true
		}
	}
	return false
}

type imageUsage struct {
	node      NodeID
	version   ImageVersionID
	usageType UsageType
	view      ViewOptions
}

type imageVersion struct {
	creator     NodeID
	createUsage ImageUsageID
	readUsages  []ImageUsageID
}

type imageResource struct {
	name     string
	versions []imageVersion
}

type bufferUsage struct {
	node      NodeID
	version   BufferVersionID
	usageType UsageType
}

type bufferVersion struct {
	creator     NodeID
	createUsage BufferUsageID
	readUsages  []BufferUsageID
}

type bufferResource struct {
	name     string
	versions []bufferVersion
}

type externalImage struct {
	view        *resource.Arc[*resource.ImageView]
	spec        ImageSpec
	viewOptions ViewOptions
	initial     ResourceState
	final       ResourceState
	input       ImageUsageID
	output      ImageUsageID
}

type externalBuffer struct {
	buffer  *resource.Arc[*resource.Buffer]
	spec    BufferSpec
	initial ResourceState
	final   ResourceState
	input   BufferUsageID
	output  BufferUsageID
}
