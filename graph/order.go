package graph

// nodeDeps returns the nodes n reads from: the creators of every version
// it reads or modifies, plus its explicit dependencies.
func (p *planner) nodeDeps(n *node) []NodeID {
	var deps []NodeID
	for _, r := range n.imageReads {
		deps = append(deps, p.b.version(p.b.imageUsages[r.usage].version).creator)
	}
	for _, m := range n.imageModifies {
		deps = append(deps, p.b.version(p.b.imageUsages[m.input].version).creator)
	}
	for _, r := range n.bufferReads {
		deps = append(deps, p.b.bufferVersion(p.b.bufferUsages[r.usage].version).creator)
	}
	for _, m := range n.bufferModifies {
		deps = append(deps, p.b.bufferVersion(p.b.bufferUsages[m.input].version).creator)
	}
	return append(deps, n.explicitDeps...)
}

// hazardDeps returns the nodes that read a version n overwrites. They must
// run before n even though they share no data dependency with it.
func (p *planner) hazardDeps(n *node) []NodeID {
	var deps []NodeID
	for _, m := range n.imageModifies {
		for _, r := range p.b.version(p.b.imageUsages[m.input].version).readUsages {
			if u := p.b.imageUsages[r]; u.node != n.id && u.usageType == UsageRead {
				deps = append(deps, u.node)
			}
		}
	}
	for _, m := range n.bufferModifies {
		for _, r := range p.b.bufferVersion(p.b.bufferUsages[m.input].version).readUsages {
			if u := p.b.bufferUsages[r]; u.node != n.id && u.usageType == UsageRead {
				deps = append(deps, u.node)
			}
		}
	}
	return deps
}

// roots returns the nodes the frame must run: the writers of external
// outputs and every node that cannot be culled.
func (p *planner) roots() []NodeID {
	var roots []NodeID
	for _, ext := range p.b.externalImages {
		if ext.output != noImageUsage {
			roots = append(roots, p.b.version(p.b.imageUsages[ext.output].version).creator)
		}
	}
	for _, ext := range p.b.externalBuffers {
		if ext.output != noBufferUsage {
			roots = append(roots, p.b.bufferVersion(p.b.bufferUsages[ext.output].version).creator)
		}
	}
	for _, n := range p.b.nodes {
		if !n.canBeCulled {
			roots = append(roots, n.id)
		}
	}
	return roots
}

// determineNodeOrder culls nodes no root depends on and orders the rest so
// every node follows the writers of what it reads and precedes the writers
// of what it reads from afterwards.
func (p *planner) determineNodeOrder() error {
	const stage = "determine node order"
	roots := p.roots()

	reachable := make([]bool, len(p.b.nodes))
	var mark func(id NodeID)
	mark = func(id NodeID) {
		if id == NoNode || reachable[id] {
			return
		}
		reachable[id] = true
		for _, dep := range p.nodeDeps(p.b.nodes[id]) {
			mark(dep)
		}
	}
	for _, id := range roots {
		mark(id)
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make([]int, len(p.b.nodes))
	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		if id == NoNode || !reachable[id] {
			return nil
		}
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return configErrorf(stage, ErrCycle, "node %q depends on itself", p.nodeName(id))
		}
		state[id] = visiting
		n := p.b.nodes[id]
		for _, dep := range p.nodeDeps(n) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		for _, dep := range p.hazardDeps(n) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = visited
		p.order = append(p.order, id)
		return nil
	}
	for _, id := range roots {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
