package graph

import (
	"maps"
	"slices"

	"github.com/gogpu/gputypes"
)

type reuseRequirement struct {
	first, last int
	seen        bool
}

type physicalImage struct {
	spec        ImageSpec
	last        int
	canBeReused bool
}

type physicalBuffer struct {
	spec        BufferSpec
	last        int
	canBeReused bool
}

// assignPhysicalImages maps virtual images onto physical images. External
// images each get their own physical image. Intermediates are placed first
// fit: a physical image is reused when its last use precedes the
// requester's first use and their specs merge.
func (p *planner) assignPhysicalImages() error {
	const stage = "assign physical images"
	b := p.b

	reqs := make([]reuseRequirement, p.virtualImageCount)
	specs := make([]ImageSpec, p.virtualImageCount)
	for pass, id := range p.order {
		for _, u := range imageUsagesOf(b.nodes[id]) {
			vid, ok := p.imageVirtual[u]
			if !ok {
				continue
			}
			r := &reqs[vid]
			if !r.seen {
				r.seen, r.first = true, pass
				specs[vid] = p.imageSpecs[u]
			} else if !specs[vid].TryMerge(p.imageSpecs[u]) {
				return configErrorf(stage, ErrConstraintConflict, "%s used with incompatible specs", p.imageName(u))
			}
			r.last = pass
		}
	}

	var phys []physicalImage
	for i, ext := range b.externalImages {
		in, hasIn := p.imageVirtual[ext.input]
		out, hasOut := p.imageVirtual[ext.output]
		if !hasIn && !hasOut {
			continue
		}
		id := PhysicalImageID(len(phys))
		phys = append(phys, physicalImage{spec: ext.spec, last: len(p.order) - 1})
		for _, bind := range []struct {
			vid virtualImageID
			ok  bool
		}{{in, hasIn}, {out, hasOut}} {
			if !bind.ok {
				continue
			}
			if prev, ok := p.virtualImageToPhys[bind.vid]; ok && prev != id {
				return configErrorf(stage, ErrConstraintConflict,
					"external image %d shares its contents with external image bound to physical image %d", i, prev)
			}
			p.virtualImageToPhys[bind.vid] = id
		}
		p.plan.ExternalImages = append(p.plan.ExternalImages, PlannedExternalImage{
			ID:       ExternalImageID(i),
			Physical: id,
			Resource: ext.view,
			Spec:     ext.spec,
			Initial:  ext.initial,
			Final:    ext.final,
		})
	}

	for v := range p.virtualImageCount {
		vid := virtualImageID(v)
		if _, ok := p.virtualImageToPhys[vid]; ok || !reqs[v].seen {
			continue
		}
		req := reqs[v]
		placed := false
		for i := range phys {
			c := &phys[i]
			if c.canBeReused && c.last < req.first && c.spec.TryMerge(specs[v]) {
				c.last = req.last
				p.virtualImageToPhys[vid] = PhysicalImageID(i)
				placed = true
				break
			}
		}
		if !placed {
			p.virtualImageToPhys[vid] = PhysicalImageID(len(phys))
			p.plan.IntermediateImages = append(p.plan.IntermediateImages, PhysicalImageID(len(phys)))
			phys = append(phys, physicalImage{spec: specs[v], last: req.last, canBeReused: true})
		}
	}

	p.plan.PhysicalImages = make([]ImageSpec, len(phys))
	for i, c := range phys {
		p.plan.PhysicalImages[i] = c.spec
	}
	for u, vid := range p.imageVirtual {
		if id, ok := p.virtualImageToPhys[vid]; ok {
			p.plan.imageUsageToPhysical[u] = id
		}
	}
	return nil
}

// assignPhysicalBuffers is assignPhysicalImages for buffers.
func (p *planner) assignPhysicalBuffers() error {
	const stage = "assign physical buffers"
	b := p.b

	reqs := make([]reuseRequirement, p.virtualBufferCount)
	specs := make([]BufferSpec, p.virtualBufferCount)
	for pass, id := range p.order {
		for _, u := range bufferUsagesOf(b.nodes[id]) {
			vid, ok := p.bufferVirtual[u]
			if !ok {
				continue
			}
			r := &reqs[vid]
			if !r.seen {
				r.seen, r.first = true, pass
				specs[vid] = p.bufferSpecs[u]
			} else if !specs[vid].TryMerge(p.bufferSpecs[u]) {
				return configErrorf(stage, ErrConstraintConflict, "%s used with incompatible specs", p.bufferName(u))
			}
			r.last = pass
		}
	}

	var phys []physicalBuffer
	for i, ext := range b.externalBuffers {
		in, hasIn := p.bufferVirtual[ext.input]
		out, hasOut := p.bufferVirtual[ext.output]
		if !hasIn && !hasOut {
			continue
		}
		id := PhysicalBufferID(len(phys))
		phys = append(phys, physicalBuffer{spec: ext.spec, last: len(p.order) - 1})
		for _, bind := range []struct {
			vid virtualBufferID
			ok  bool
		}{{in, hasIn}, {out, hasOut}} {
			if !bind.ok {
				continue
			}
			if prev, ok := p.virtualBufferToPhys[bind.vid]; ok && prev != id {
				return configErrorf(stage, ErrConstraintConflict,
					"external buffer %d shares its contents with external buffer bound to physical buffer %d", i, prev)
			}
			p.virtualBufferToPhys[bind.vid] = id
		}
		p.plan.ExternalBuffers = append(p.plan.ExternalBuffers, PlannedExternalBuffer{
			ID:       ExternalBufferID(i),
			Physical: id,
			Resource: ext.buffer,
			Spec:     ext.spec,
			Initial:  ext.initial,
			Final:    ext.final,
		})
	}

	for v := range p.virtualBufferCount {
		vid := virtualBufferID(v)
		if _, ok := p.virtualBufferToPhys[vid]; ok || !reqs[v].seen {
			continue
		}
		req := reqs[v]
		placed := false
		for i := range phys {
			c := &phys[i]
			if c.canBeReused && c.last < req.first && c.spec.TryMerge(specs[v]) {
				c.last = req.last
				p.virtualBufferToPhys[vid] = PhysicalBufferID(i)
				placed = true
				break
			}
		}
		if !placed {
			p.virtualBufferToPhys[vid] = PhysicalBufferID(len(phys))
			p.plan.IntermediateBuffers = append(p.plan.IntermediateBuffers, PhysicalBufferID(len(phys)))
			phys = append(phys, physicalBuffer{spec: specs[v], last: req.last, canBeReused: true})
		}
	}

	p.plan.PhysicalBuffers = make([]BufferSpec, len(phys))
	for i, c := range phys {
		p.plan.PhysicalBuffers[i] = c.spec
	}
	for u, vid := range p.bufferVirtual {
		if id, ok := p.virtualBufferToPhys[vid]; ok {
			p.plan.bufferUsageToPhysical[u] = id
		}
	}
	return nil
}

type viewKey struct {
	image   PhysicalImageID
	format  gputypes.TextureFormat
	options ViewOptions
}

// assignImageViews gives every image usage a view, sharing one view between
// usages of the same physical image with the same format and options.
// External images are always accessed through the caller's view.
func (p *planner) assignImageViews() error {
	externalView := make(map[PhysicalImageID]PhysicalImageViewID)
	for i := range p.plan.ExternalImages {
		ext := &p.plan.ExternalImages[i]
		id := PhysicalImageViewID(len(p.plan.ImageViews))
		p.plan.ImageViews = append(p.plan.ImageViews, PhysicalImageView{
			Image:   ext.Physical,
			Format:  ext.Spec.Format,
			Options: p.b.externalImages[ext.ID].viewOptions,
		})
		ext.View = id
		externalView[ext.Physical] = id
	}

	views := make(map[viewKey]PhysicalImageViewID)
	for _, u := range slices.Sorted(maps.Keys(p.plan.imageUsageToPhysical)) {
		phys := p.plan.imageUsageToPhysical[u]
		if id, ok := externalView[phys]; ok {
			p.plan.imageUsageToView[u] = id
			continue
		}
		format := p.imageSpecs[u].Format
		key := viewKey{image: phys, format: format, options: p.b.imageUsages[u].view}
		id, ok := views[key]
		if !ok {
			id = PhysicalImageViewID(len(p.plan.ImageViews))
			p.plan.ImageViews = append(p.plan.ImageViews, PhysicalImageView{Image: phys, Format: format, Options: key.options})
			views[key] = id
		}
		p.plan.imageUsageToView[u] = id
	}
	return nil
}
