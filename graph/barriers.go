package graph

import (
	"maps"
	"slices"
)

type stateSet[K comparable] struct {
	states map[K]ResourceState
	err    error
}

func (s *stateSet[K]) set(id K, state ResourceState, describe func() error) {
	if s.err != nil {
		return
	}
	if prev, ok := s.states[id]; ok && prev != state {
		s.err = describe()
		return
	}
	s.states[id] = state
}

// nodeImageStates returns the state each physical image must be in while
// the node runs.
func (p *planner) nodeImageStates(n *node) (map[PhysicalImageID]ResourceState, error) {
	s := stateSet[PhysicalImageID]{states: make(map[PhysicalImageID]ResourceState)}
	add := func(u ImageUsageID, state ResourceState) {
		if u == noImageUsage {
			return
		}
		phys, ok := p.plan.imageUsageToPhysical[u]
		if !ok {
			return
		}
		s.set(phys, state, func() error {
			return configErrorf("build barriers", ErrStateConflict, "node %q uses %s as both %s and %s",
				p.nodeName(n.id), p.imageName(u), s.states[phys], state)
		})
	}
	for _, a := range n.colorAttachments {
		if a != nil {
			add(a.readImage, StateRenderTarget)
			add(a.writeImage, StateRenderTarget)
		}
	}
	for _, r := range n.resolveAttachments {
		add(r, StateRenderTarget)
	}
	if a := n.depthAttachment; a != nil {
		if a.writeImage != noImageUsage {
			add(a.readImage, StateDepthWrite)
			add(a.writeImage, StateDepthWrite)
		} else {
			add(a.readImage, StateDepthRead)
		}
	}
	for _, u := range n.sampledImages {
		add(u, StateShaderResource)
	}
	for _, u := range n.storageImages {
		add(u, StateUnorderedAccess)
	}
	for _, u := range n.copySrcImages {
		add(u, StateCopySrc)
	}
	for _, u := range n.copyDstImages {
		add(u, StateCopyDst)
	}
	return s.states, s.err
}

// nodeBufferStates returns the state each physical buffer must be in while
// the node runs.
func (p *planner) nodeBufferStates(n *node) (map[PhysicalBufferID]ResourceState, error) {
	s := stateSet[PhysicalBufferID]{states: make(map[PhysicalBufferID]ResourceState)}
	addAll := func(list []BufferUsageID, state ResourceState) {
		for _, u := range list {
			phys, ok := p.plan.bufferUsageToPhysical[u]
			if !ok {
				continue
			}
			s.set(phys, state, func() error {
				return configErrorf("build barriers", ErrStateConflict, "node %q uses %s as both %s and %s",
					p.nodeName(n.id), p.bufferName(u), s.states[phys], state)
			})
		}
	}
	addAll(n.vertexBuffers, StateVertexAndConstantBuffer)
	addAll(n.uniformBuffers, StateVertexAndConstantBuffer)
	addAll(n.indexBuffers, StateIndexBuffer)
	addAll(n.indirectBuffers, StateIndirectArgument)
	addAll(n.storageBuffers, StateUnorderedAccess)
	addAll(n.copySrcBuffers, StateCopySrc)
	addAll(n.copyDstBuffers, StateCopyDst)
	return s.states, s.err
}

type tracked struct {
	state   ResourceState
	queue   Queue
	touched bool
}

// transition moves t to state on queue and reports whether a barrier is
// needed and from where.
func (t *tracked) transition(state ResourceState, queue Queue) (old ResourceState, src Queue, needed bool) {
	old, src = t.state, t.queue
	if !t.touched {
		src = queue
	}
	needed = old != state || src != queue
	t.state, t.queue, t.touched = state, queue, true
	return old, src, needed
}

// buildBarriers tracks every physical resource through the passes and
// records the transitions each pass needs before it runs. Intermediate
// images start undefined and intermediate buffers start as copy
// destinations; externals start in their declared initial state and are
// moved to their final state after the last pass.
func (p *planner) buildBarriers() error {
	images := make([]tracked, len(p.plan.PhysicalImages))
	for _, ext := range p.plan.ExternalImages {
		images[ext.Physical].state = ext.Initial
	}
	buffers := make([]tracked, len(p.plan.PhysicalBuffers))
	for i := range buffers {
		buffers[i].state = StateCopyDst
	}
	for _, ext := range p.plan.ExternalBuffers {
		buffers[ext.Physical].state = ext.Initial
	}

	for i := range p.plan.Passes {
		pass := &p.plan.Passes[i]
		n := p.b.nodes[pass.Node]

		imageStates, err := p.nodeImageStates(n)
		if err != nil {
			return err
		}
		for _, id := range slices.Sorted(maps.Keys(imageStates)) {
			if old, src, ok := images[id].transition(imageStates[id], pass.Queue); ok {
				pass.PreBarriers = append(pass.PreBarriers, ImageBarrier{
					Image: id, Old: old, New: imageStates[id], SrcQueue: src, DstQueue: pass.Queue,
				})
			}
		}

		bufferStates, err := p.nodeBufferStates(n)
		if err != nil {
			return err
		}
		for _, id := range slices.Sorted(maps.Keys(bufferStates)) {
			if old, src, ok := buffers[id].transition(bufferStates[id], pass.Queue); ok {
				pass.PreBuffers = append(pass.PreBuffers, BufferBarrier{
					Buffer: id, Old: old, New: bufferStates[id], SrcQueue: src, DstQueue: pass.Queue,
				})
			}
		}
	}

	for _, ext := range p.plan.ExternalImages {
		t := images[ext.Physical]
		if !t.touched {
			continue
		}
		if ext.Final != StateUndefined && ext.Final != t.state {
			p.plan.FinalImageBarriers = append(p.plan.FinalImageBarriers, ImageBarrier{
				Image: ext.Physical, Old: t.state, New: ext.Final, SrcQueue: t.queue, DstQueue: t.queue,
			})
		}
	}
	for _, ext := range p.plan.ExternalBuffers {
		t := buffers[ext.Physical]
		if !t.touched {
			continue
		}
		if ext.Final != StateUndefined && ext.Final != t.state {
			p.plan.FinalBufferBarriers = append(p.plan.FinalBufferBarriers, BufferBarrier{
				Buffer: ext.Physical, Old: t.state, New: ext.Final, SrcQueue: t.queue, DstQueue: t.queue,
			})
		}
	}
	return nil
}
