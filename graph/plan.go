package graph

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/resource"
)

// PassKind distinguishes render passes from passes recorded directly on
// the command encoder.
type PassKind int

const (
	// PassRender begins a render pass around the node callback.
	PassRender PassKind = iota
	// PassCallback hands the command encoder to the node callback.
	PassCallback
)

func (k PassKind) String() string {
	if k == PassRender {
		return "render"
	}
	return "callback"
}

// LoadOp is how an attachment's contents are initialized.
type LoadOp int

const (
	LoadDontCare LoadOp = iota
	LoadLoad
	LoadClear
)

func (o LoadOp) String() string {
	switch o {
	case LoadLoad:
		return "load"
	case LoadClear:
		return "clear"
	default:
		return "dont-care"
	}
}

// StoreOp is whether an attachment's contents survive the pass.
type StoreOp int

const (
	StoreDontCare StoreOp = iota
	StoreStore
)

func (o StoreOp) String() string {
	if o == StoreStore {
		return "store"
	}
	return "dont-care"
}

// ImageBarrier transitions a physical image before a pass. SrcQueue and
// DstQueue differ when ownership moves between queues.
type ImageBarrier struct {
	Image    PhysicalImageID
	Old      ResourceState
	New      ResourceState
	SrcQueue Queue
	DstQueue Queue
}

// QueueTransfer reports whether the barrier moves queue ownership.
func (b ImageBarrier) QueueTransfer() bool { return b.SrcQueue != b.DstQueue }

// BufferBarrier transitions a physical buffer before a pass.
type BufferBarrier struct {
	Buffer   PhysicalBufferID
	Old      ResourceState
	New      ResourceState
	SrcQueue Queue
	DstQueue Queue
}

// QueueTransfer reports whether the barrier moves queue ownership.
func (b BufferBarrier) QueueTransfer() bool { return b.SrcQueue != b.DstQueue }

// ColorTarget is one color attachment of a render pass.
type ColorTarget struct {
	Image   PhysicalImageID
	View    PhysicalImageViewID
	Load    LoadOp
	Store   StoreOp
	Clear   gputypes.Color
	Resolve *ResolveTarget
}

// ResolveTarget is the single-sample image a color target resolves into.
type ResolveTarget struct {
	Image PhysicalImageID
	View  PhysicalImageViewID
	Store StoreOp
}

// DepthStencilTarget is the depth/stencil attachment of a render pass.
// Stencil ops are left at LoadDontCare/StoreDontCare when the node does not
// use the stencil aspect, and likewise for depth.
type DepthStencilTarget struct {
	Image        PhysicalImageID
	View         PhysicalImageViewID
	Aspect       DepthAspect
	DepthLoad    LoadOp
	DepthStore   StoreOp
	StencilLoad  LoadOp
	StencilStore StoreOp
	Clear        DepthStencilClear
}

// RenderTargetMeta describes the attachment formats of a render pass.
// Pipelines are compatible with every pass sharing the same meta.
type RenderTargetMeta struct {
	ColorFormats []gputypes.TextureFormat
	DepthFormat  gputypes.TextureFormat
	SampleCount  uint32
}

// Hash returns a FNV-1a hash of the meta.
func (m RenderTargetMeta) Hash() uint64 {
	h := fnv.New64a()
	var buf [4]byte
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	put(uint32(len(m.ColorFormats)))
	for _, f := range m.ColorFormats {
		put(uint32(f))
	}
	put(uint32(m.DepthFormat))
	put(m.SampleCount)
	return h.Sum64()
}

// Pass is one node's worth of recorded work.
type Pass struct {
	Kind         PassKind
	Node         NodeID
	Name         string
	Queue        Queue
	PreBarriers  []ImageBarrier
	PreBuffers   []BufferBarrier
	ColorTargets []ColorTarget
	DepthStencil *DepthStencilTarget
	Meta         RenderTargetMeta
}

// PhysicalImageView is a view of a physical image.
type PhysicalImageView struct {
	Image   PhysicalImageID
	Format  gputypes.TextureFormat
	Options ViewOptions
}

// PlannedExternalImage is an external image as bound in the plan.
type PlannedExternalImage struct {
	ID       ExternalImageID
	Physical PhysicalImageID
	View     PhysicalImageViewID
	Resource *resource.Arc[*resource.ImageView]
	Spec     ImageSpec
	Initial  ResourceState
	Final    ResourceState
}

// PlannedExternalBuffer is an external buffer as bound in the plan.
type PlannedExternalBuffer struct {
	ID       ExternalBufferID
	Physical PhysicalBufferID
	Resource *resource.Arc[*resource.Buffer]
	Spec     BufferSpec
	Initial  ResourceState
	Final    ResourceState
}

// PlanStats summarizes a plan.
type PlanStats struct {
	Nodes               int
	CulledNodes         int
	Passes              int
	VirtualImages       int
	PhysicalImages      int
	IntermediateImages  int
	ImageViews          int
	VirtualBuffers      int
	PhysicalBuffers     int
	IntermediateBuffers int
	Barriers            int
}

type nodeCallbacks struct {
	name    string
	render  RenderpassCallback
	compute ComputeCallback
	prepare PrepareCallback
}

// Plan is a compiled graph: ordered passes, physical resource assignment
// and the transitions between them. A plan holds no backend objects of its
// own; Prepare binds it to resources for one frame.
type Plan struct {
	Passes []Pass

	// FinalImageBarriers and FinalBufferBarriers move external resources
	// into their final state after the last pass.
	FinalImageBarriers  []ImageBarrier
	FinalBufferBarriers []BufferBarrier

	PhysicalImages      []ImageSpec
	PhysicalBuffers     []BufferSpec
	ImageViews          []PhysicalImageView
	ExternalImages      []PlannedExternalImage
	ExternalBuffers     []PlannedExternalBuffer
	IntermediateImages  []PhysicalImageID
	IntermediateBuffers []PhysicalBufferID

	imageUsageToPhysical  map[ImageUsageID]PhysicalImageID
	imageUsageToView      map[ImageUsageID]PhysicalImageViewID
	bufferUsageToPhysical map[BufferUsageID]PhysicalBufferID
	nodeToPass            map[NodeID]int
	callbacks             map[NodeID]nodeCallbacks
	stats                 PlanStats
}

// Stats returns counts describing the plan.
func (p *Plan) Stats() PlanStats { return p.stats }

// PassIndex returns the pass a node was compiled into.
func (p *Plan) PassIndex(node NodeID) (int, bool) {
	i, ok := p.nodeToPass[node]
	return i, ok
}

// ImagePhysical returns the physical image a usage was assigned.
func (p *Plan) ImagePhysical(usage ImageUsageID) (PhysicalImageID, bool) {
	id, ok := p.imageUsageToPhysical[usage]
	return id, ok
}

// ImageView returns the view a usage reads or writes through.
func (p *Plan) ImageView(usage ImageUsageID) (PhysicalImageViewID, bool) {
	id, ok := p.imageUsageToView[usage]
	return id, ok
}

// BufferPhysical returns the physical buffer a usage was assigned.
func (p *Plan) BufferPhysical(usage BufferUsageID) (PhysicalBufferID, bool) {
	id, ok := p.bufferUsageToPhysical[usage]
	return id, ok
}

// ImageSpec returns the spec of a physical image.
func (p *Plan) ImageSpec(id PhysicalImageID) ImageSpec { return p.PhysicalImages[id] }

// BufferSpec returns the spec of a physical buffer.
func (p *Plan) BufferSpec(id PhysicalBufferID) BufferSpec { return p.PhysicalBuffers[id] }
