package graph

import (
	"strconv"

	"github.com/gogpu/rendergraph/internal/logging"
)

// planner carries the intermediate state of NewPlan.
type planner struct {
	b     *Builder
	order []NodeID

	imageSpecs  map[ImageUsageID]ImageSpec
	bufferSpecs map[BufferUsageID]BufferSpec

	imageVirtual        map[ImageUsageID]virtualImageID
	virtualImageCount   int
	bufferVirtual       map[BufferUsageID]virtualBufferID
	virtualBufferCount  int
	virtualImageToPhys  map[virtualImageID]PhysicalImageID
	virtualBufferToPhys map[virtualBufferID]PhysicalBufferID

	plan *Plan
}

// NewPlan compiles the builder's graph. The builder is consumed: planning
// may add resolve attachments to it, and it must not be planned again.
//
// Malformed graphs fail with an error for which IsConfigError is true.
func NewPlan(b *Builder) (*Plan, error) {
	if b.err != nil {
		return nil, b.err
	}
	p := &planner{
		b:                   b,
		imageSpecs:          make(map[ImageUsageID]ImageSpec),
		bufferSpecs:         make(map[BufferUsageID]BufferSpec),
		imageVirtual:        make(map[ImageUsageID]virtualImageID),
		bufferVirtual:       make(map[BufferUsageID]virtualBufferID),
		virtualImageToPhys:  make(map[virtualImageID]PhysicalImageID),
		virtualBufferToPhys: make(map[virtualBufferID]PhysicalBufferID),
		plan: &Plan{
			imageUsageToPhysical:  make(map[ImageUsageID]PhysicalImageID),
			imageUsageToView:      make(map[ImageUsageID]PhysicalImageViewID),
			bufferUsageToPhysical: make(map[BufferUsageID]PhysicalBufferID),
			nodeToPass:            make(map[NodeID]int),
			callbacks:             make(map[NodeID]nodeCallbacks),
		},
	}

	steps := []func() error{
		p.determineNodeOrder,
		p.determineImageConstraints,
		p.determineBufferConstraints,
		p.insertResolves,
		p.assignVirtualImages,
		p.assignVirtualBuffers,
		p.assignPhysicalImages,
		p.assignPhysicalBuffers,
		p.assignImageViews,
		p.buildPasses,
		p.buildBarriers,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	p.plan.stats = PlanStats{
		Nodes:               len(b.nodes),
		CulledNodes:         len(b.nodes) - len(p.order),
		Passes:              len(p.plan.Passes),
		VirtualImages:       p.virtualImageCount,
		PhysicalImages:      len(p.plan.PhysicalImages),
		IntermediateImages:  len(p.plan.IntermediateImages),
		ImageViews:          len(p.plan.ImageViews),
		VirtualBuffers:      p.virtualBufferCount,
		PhysicalBuffers:     len(p.plan.PhysicalBuffers),
		IntermediateBuffers: len(p.plan.IntermediateBuffers),
	}
	for _, pass := range p.plan.Passes {
		p.plan.stats.Barriers += len(pass.PreBarriers) + len(pass.PreBuffers)
	}
	p.plan.stats.Barriers += len(p.plan.FinalImageBarriers) + len(p.plan.FinalBufferBarriers)

	s := p.plan.stats
	logging.Logger().Debug("rendergraph: planned graph",
		"nodes", s.Nodes, "culled", s.CulledNodes, "passes", s.Passes,
		"virtual_images", s.VirtualImages, "physical_images", s.PhysicalImages,
		"virtual_buffers", s.VirtualBuffers, "physical_buffers", s.PhysicalBuffers)
	return p.plan, nil
}

func (p *planner) imageName(u ImageUsageID) string {
	img := p.b.imageUsages[u].version.Image
	if name := p.b.images[img].name; name != "" {
		return name
	}
	return "image " + strconv.Itoa(int(img))
}

func (p *planner) bufferName(u BufferUsageID) string {
	buf := p.b.bufferUsages[u].version.Buffer
	if name := p.b.buffers[buf].name; name != "" {
		return name
	}
	return "buffer " + strconv.Itoa(int(buf))
}

func (p *planner) nodeName(id NodeID) string {
	if id == NoNode {
		return "external"
	}
	if name := p.b.nodes[id].name; name != "" {
		return name
	}
	return "node " + strconv.Itoa(int(id))
}

func (p *planner) imageCreateOf(u ImageUsageID) ImageUsageID {
	return p.b.version(p.b.imageUsages[u].version).createUsage
}

func (p *planner) bufferCreateOf(u BufferUsageID) BufferUsageID {
	return p.b.bufferVersion(p.b.bufferUsages[u].version).createUsage
}

// imageUsagesOf lists every image usage a node declares.
func imageUsagesOf(n *node) []ImageUsageID {
	out := make([]ImageUsageID, 0, len(n.imageCreates)+len(n.imageReads)+2*len(n.imageModifies))
	for _, c := range n.imageCreates {
		out = append(out, c.usage)
	}
	for _, r := range n.imageReads {
		out = append(out, r.usage)
	}
	for _, m := range n.imageModifies {
		out = append(out, m.input, m.output)
	}
	return out
}

// bufferUsagesOf lists every buffer usage a node declares.
func bufferUsagesOf(n *node) []BufferUsageID {
	out := make([]BufferUsageID, 0, len(n.bufferCreates)+len(n.bufferReads)+2*len(n.bufferModifies))
	for _, c := range n.bufferCreates {
		out = append(out, c.usage)
	}
	for _, r := range n.bufferReads {
		out = append(out, r.usage)
	}
	for _, m := range n.bufferModifies {
		out = append(out, m.input, m.output)
	}
	return out
}
