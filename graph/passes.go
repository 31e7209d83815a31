package graph

import (
	"github.com/gogpu/gputypes"
)

// storeFor keeps a written version only when something reads it later.
func (p *planner) storeFor(write ImageUsageID) StoreOp {
	if len(p.b.version(p.b.imageUsages[write].version).readUsages) > 0 {
		return StoreStore
	}
	return StoreDontCare
}

func loadFor(clear bool, read ImageUsageID) LoadOp {
	switch {
	case clear:
		return LoadClear
	case read != noImageUsage:
		return LoadLoad
	default:
		return LoadDontCare
	}
}

// buildPasses turns each ordered node into a pass. Nodes with attachments
// become render passes with load and store ops derived from their usages;
// the rest hand the command encoder to their callback.
func (p *planner) buildPasses() error {
	const stage = "build passes"
	b := p.b
	for i, id := range p.order {
		n := b.nodes[id]
		pass := Pass{Kind: PassCallback, Node: id, Name: n.name, Queue: n.queue}
		p.plan.nodeToPass[id] = i
		p.plan.callbacks[id] = nodeCallbacks{
			name:    n.name,
			render:  n.renderCallback,
			compute: n.computeCallback,
			prepare: n.prepareCallback,
		}

		if n.hasAttachments() {
			pass.Kind = PassRender
			var samples uint32
			checkSamples := func(u ImageUsageID) error {
				s := p.imageSpecs[u].Samples
				if samples != 0 && s != samples {
					return configErrorf(stage, ErrConstraintConflict,
						"node %q attachments have %d and %d samples", p.nodeName(id), samples, s)
				}
				samples = s
				return nil
			}

			for slot, a := range n.colorAttachments {
				if a == nil {
					return configErrorf(stage, ErrInvalidUsage, "node %q color attachment %d unset", p.nodeName(id), slot)
				}
				image := a.writeImage
				if image == noImageUsage {
					image = a.readImage
				}
				if err := checkSamples(image); err != nil {
					return err
				}
				t := ColorTarget{
					Image: p.plan.imageUsageToPhysical[image],
					View:  p.plan.imageUsageToView[image],
					Load:  loadFor(a.clear != nil, a.readImage),
					Store: StoreStore,
				}
				if a.clear != nil {
					t.Clear = *a.clear
				}
				if a.writeImage != noImageUsage {
					t.Store = p.storeFor(a.writeImage)
				}
				if slot < len(n.resolveAttachments) && n.resolveAttachments[slot] != noImageUsage {
					r := n.resolveAttachments[slot]
					t.Resolve = &ResolveTarget{
						Image: p.plan.imageUsageToPhysical[r],
						View:  p.plan.imageUsageToView[r],
						Store: p.storeFor(r),
					}
				}
				pass.ColorTargets = append(pass.ColorTargets, t)
				pass.Meta.ColorFormats = append(pass.Meta.ColorFormats, p.imageSpecs[image].Format)
			}

			pass.Meta.DepthFormat = gputypes.TextureFormatUndefined
			if a := n.depthAttachment; a != nil {
				image := a.writeImage
				if image == noImageUsage {
					image = a.readImage
				}
				if err := checkSamples(image); err != nil {
					return err
				}
				load := loadFor(a.clear != nil, a.readImage)
				store := StoreStore
				if a.writeImage != noImageUsage {
					store = p.storeFor(a.writeImage)
				}
				t := &DepthStencilTarget{
					Image:  p.plan.imageUsageToPhysical[image],
					View:   p.plan.imageUsageToView[image],
					Aspect: a.aspect,
				}
				if a.clear != nil {
					t.Clear = *a.clear
				}
				if a.aspect&AspectDepth != 0 {
					t.DepthLoad, t.DepthStore = load, store
				}
				if a.aspect&AspectStencil != 0 {
					t.StencilLoad, t.StencilStore = load, store
				}
				pass.DepthStencil = t
				pass.Meta.DepthFormat = p.imageSpecs[image].Format
			}
			pass.Meta.SampleCount = samples
		}
		p.plan.Passes = append(p.plan.Passes, pass)
	}
	return nil
}
