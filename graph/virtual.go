package graph

// assignVirtualImages groups image usages that can share storage. A
// version's readers share its writer's virtual image when their specs are
// compatible and at most one of them modifies it.
func (p *planner) assignVirtualImages() error {
	const stage = "assign virtual images"
	b := p.b

	newID := func() virtualImageID {
		id := virtualImageID(p.virtualImageCount)
		p.virtualImageCount++
		return id
	}
	propagate := func(writer ImageUsageID) error {
		vid := p.imageVirtual[writer]
		written := p.imageSpecs[writer]
		readers := b.version(b.imageUsages[writer].version).readUsages
		var reads, writes int
		for _, r := range readers {
			if b.imageUsages[r].usageType.IsReadOnly() {
				reads++
			} else {
				writes++
			}
		}
		for _, r := range readers {
			rs, ok := p.imageSpecs[r]
			if !ok {
				continue
			}
			readOnly := b.imageUsages[r].usageType.IsReadOnly()
			if !written.CanMerge(rs) || !((reads > 0 && readOnly) || writes <= 1) {
				return configErrorf(stage, ErrConstraintConflict,
					"image conflict that cannot be automatically resolved: %s written by %q, read by %q",
					p.imageName(writer), p.nodeName(b.imageUsages[writer].node), p.nodeName(b.imageUsages[r].node))
			}
			p.imageVirtual[r] = vid
		}
		return nil
	}

	for _, ext := range b.externalImages {
		if ext.input == noImageUsage {
			continue
		}
		if _, ok := p.imageSpecs[ext.input]; !ok {
			continue
		}
		p.imageVirtual[ext.input] = newID()
		if err := propagate(ext.input); err != nil {
			return err
		}
	}

	for _, id := range p.order {
		n := b.nodes[id]
		for _, c := range n.imageCreates {
			p.imageVirtual[c.usage] = newID()
			if err := propagate(c.usage); err != nil {
				return err
			}
		}
		for _, m := range n.imageModifies {
			vid, ok := p.imageVirtual[m.input]
			if !ok {
				return configErrorf(stage, ErrConstraintConflict, "%s modified by %q was not assigned storage",
					p.imageName(m.input), p.nodeName(id))
			}
			if !p.imageSpecs[m.input].CanMerge(p.imageSpecs[m.output]) {
				return configErrorf(stage, ErrConstraintConflict,
					"image conflict that cannot be automatically resolved: %q modifies %s into an incompatible spec",
					p.nodeName(id), p.imageName(m.input))
			}
			p.imageVirtual[m.output] = vid
			if err := propagate(m.output); err != nil {
				return err
			}
		}
	}
	return nil
}

// assignVirtualBuffers is assignVirtualImages for buffers.
func (p *planner) assignVirtualBuffers() error {
	const stage = "assign virtual buffers"
	b := p.b

	newID := func() virtualBufferID {
		id := virtualBufferID(p.virtualBufferCount)
		p.virtualBufferCount++
		return id
	}
	propagate := func(writer BufferUsageID) error {
		vid := p.bufferVirtual[writer]
		written := p.bufferSpecs[writer]
		readers := b.bufferVersion(b.bufferUsages[writer].version).readUsages
		var reads, writes int
		for _, r := range readers {
			if b.bufferUsages[r].usageType.IsReadOnly() {
				reads++
			} else {
				writes++
			}
		}
		for _, r := range readers {
			rs, ok := p.bufferSpecs[r]
			if !ok {
				continue
			}
			readOnly := b.bufferUsages[r].usageType.IsReadOnly()
			if !written.CanMerge(rs) || !((reads > 0 && readOnly) || writes <= 1) {
				return configErrorf(stage, ErrConstraintConflict,
					"buffer conflict that cannot be automatically resolved: %s written by %q, read by %q",
					p.bufferName(writer), p.nodeName(b.bufferUsages[writer].node), p.nodeName(b.bufferUsages[r].node))
			}
			p.bufferVirtual[r] = vid
		}
		return nil
	}

	for _, ext := range b.externalBuffers {
		if ext.input == noBufferUsage {
			continue
		}
		if _, ok := p.bufferSpecs[ext.input]; !ok {
			continue
		}
		p.bufferVirtual[ext.input] = newID()
		if err := propagate(ext.input); err != nil {
			return err
		}
	}

	for _, id := range p.order {
		n := b.nodes[id]
		for _, c := range n.bufferCreates {
			p.bufferVirtual[c.usage] = newID()
			if err := propagate(c.usage); err != nil {
				return err
			}
		}
		for _, m := range n.bufferModifies {
			vid, ok := p.bufferVirtual[m.input]
			if !ok {
				return configErrorf(stage, ErrConstraintConflict, "%s modified by %q was not assigned storage",
					p.bufferName(m.input), p.nodeName(id))
			}
			if !p.bufferSpecs[m.input].CanMerge(p.bufferSpecs[m.output]) {
				return configErrorf(stage, ErrConstraintConflict,
					"buffer conflict that cannot be automatically resolved: %q modifies %s into an incompatible spec",
					p.nodeName(id), p.bufferName(m.input))
			}
			p.bufferVirtual[m.output] = vid
			if err := propagate(m.output); err != nil {
				return err
			}
		}
	}
	return nil
}
