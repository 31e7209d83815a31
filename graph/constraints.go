package graph

import (
	"maps"
	"slices"
)

// determineImageConstraints resolves a spec for every image usage. A
// forward pass flows what writers declare toward their readers, a backward
// pass flows what readers need back into the versions they read, and the
// result must leave every usage fully specified.
func (p *planner) determineImageConstraints() error {
	const stage = "determine image constraints"
	b := p.b
	states := make(map[ImageUsageID]ImageConstraint)

	for _, ext := range b.externalImages {
		if ext.input != noImageUsage {
			states[ext.input] = ext.spec.Constraint()
		}
	}

	for _, id := range p.order {
		n := b.nodes[id]
		for _, c := range n.imageCreates {
			s := states[c.usage]
			if !s.TryMerge(c.constraint) {
				return configErrorf(stage, ErrConstraintConflict, "node %q creates %s with conflicting constraints",
					p.nodeName(id), p.imageName(c.usage))
			}
			states[c.usage] = s
		}
		for _, m := range n.imageModifies {
			c := m.constraint
			c.PartialMerge(states[p.imageCreateOf(m.input)])
			s := states[m.output]
			s.PartialMerge(c)
			states[m.output] = s
		}
		for _, cp := range n.imageCopies {
			src := states[p.imageCreateOf(cp.src)]
			src.Usage = 0
			s := states[cp.dst]
			s.PartialMerge(src)
			states[cp.dst] = s
		}
	}

	for _, ext := range b.externalImages {
		if ext.output == noImageUsage {
			continue
		}
		create := p.imageCreateOf(ext.output)
		s := states[create]
		s.PartialMerge(ext.spec.Constraint())
		states[create] = s
		states[ext.output] = ext.spec.Constraint()
	}

	for i := len(p.order) - 1; i >= 0; i-- {
		n := b.nodes[p.order[i]]
		for j := len(n.imageModifies) - 1; j >= 0; j-- {
			m := n.imageModifies[j]
			out := states[m.output]
			create := p.imageCreateOf(m.input)
			s := states[create]
			s.PartialMerge(out)
			states[create] = s
			states[m.input] = out
		}
		for _, cp := range n.imageCopies {
			dst := states[cp.dst]
			dst.Usage = 0
			create := p.imageCreateOf(cp.src)
			s := states[create]
			s.PartialMerge(dst)
			states[create] = s
		}
		for _, r := range n.imageReads {
			create := p.imageCreateOf(r.usage)
			vs := states[create]
			vs.PartialMerge(r.constraint)
			states[create] = vs
			rc := r.constraint
			rc.PartialMerge(vs)
			states[r.usage] = rc
		}
	}

	for _, u := range slices.Sorted(maps.Keys(states)) {
		spec, ok := states[u].Resolve()
		if !ok {
			return configErrorf(stage, ErrUnresolvedFormat, "%s (usage %d, %s)",
				p.imageName(u), u, b.imageUsages[u].usageType)
		}
		p.imageSpecs[u] = spec
	}
	return nil
}

// determineBufferConstraints is determineImageConstraints for buffers.
func (p *planner) determineBufferConstraints() error {
	const stage = "determine buffer constraints"
	b := p.b
	states := make(map[BufferUsageID]BufferConstraint)

	for _, ext := range b.externalBuffers {
		if ext.input != noBufferUsage {
			states[ext.input] = ext.spec.Constraint()
		}
	}

	for _, id := range p.order {
		n := b.nodes[id]
		for _, c := range n.bufferCreates {
			s := states[c.usage]
			if !s.TryMerge(c.constraint) {
				return configErrorf(stage, ErrConstraintConflict, "node %q creates %s with conflicting constraints",
					p.nodeName(id), p.bufferName(c.usage))
			}
			states[c.usage] = s
		}
		for _, m := range n.bufferModifies {
			c := m.constraint
			c.PartialMerge(states[p.bufferCreateOf(m.input)])
			s := states[m.output]
			s.PartialMerge(c)
			states[m.output] = s
		}
		for _, cp := range n.bufferCopies {
			src := states[p.bufferCreateOf(cp.src)]
			src.Usage = 0
			s := states[cp.dst]
			s.PartialMerge(src)
			states[cp.dst] = s
		}
	}

	for _, ext := range b.externalBuffers {
		if ext.output == noBufferUsage {
			continue
		}
		create := p.bufferCreateOf(ext.output)
		s := states[create]
		s.PartialMerge(ext.spec.Constraint())
		states[create] = s
		states[ext.output] = ext.spec.Constraint()
	}

	for i := len(p.order) - 1; i >= 0; i-- {
		n := b.nodes[p.order[i]]
		for j := len(n.bufferModifies) - 1; j >= 0; j-- {
			m := n.bufferModifies[j]
			out := states[m.output]
			create := p.bufferCreateOf(m.input)
			s := states[create]
			s.PartialMerge(out)
			states[create] = s
			states[m.input] = out
		}
		for _, cp := range n.bufferCopies {
			dst := states[cp.dst]
			dst.Usage = 0
			create := p.bufferCreateOf(cp.src)
			s := states[create]
			s.PartialMerge(dst)
			states[create] = s
		}
		for _, r := range n.bufferReads {
			create := p.bufferCreateOf(r.usage)
			vs := states[create]
			vs.PartialMerge(r.constraint)
			states[create] = vs
			rc := r.constraint
			rc.PartialMerge(vs)
			states[r.usage] = rc
		}
	}

	for _, u := range slices.Sorted(maps.Keys(states)) {
		spec, ok := states[u].Resolve()
		if !ok {
			return configErrorf(stage, ErrUnresolvedSize, "%s (usage %d, %s)",
				p.bufferName(u), u, b.bufferUsages[u].usageType)
		}
		p.bufferSpecs[u] = spec
	}
	return nil
}
