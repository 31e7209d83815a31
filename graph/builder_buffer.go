package graph

import "github.com/gogpu/gputypes"

// SetBufferName names the virtual buffer usage belongs to.
func (b *Builder) SetBufferName(usage BufferUsageID, name string) {
	if u, ok := b.bufferUsage("set buffer name", usage); ok {
		b.buffers[u.version.Buffer].name = name
	}
}

func (b *Builder) bufferUsage(stage string, id BufferUsageID) (bufferUsage, bool) {
	if id < 0 || int(id) >= len(b.bufferUsages) {
		b.fail(stage, ErrReadBeforeWrite, "buffer usage %d", id)
		return bufferUsage{}, false
	}
	return b.bufferUsages[id], true
}

func (b *Builder) bufferVersion(v BufferVersionID) *bufferVersion {
	return &b.buffers[v.Buffer].versions[v.Version]
}

func (b *Builder) addBufferCreate(n *node, c BufferConstraint) BufferUsageID {
	buf := BufferID(len(b.buffers))
	usage := BufferUsageID(len(b.bufferUsages))
	b.bufferUsages = append(b.bufferUsages, bufferUsage{
		node:      n.id,
		version:   BufferVersionID{Buffer: buf},
		usageType: UsageCreate,
	})
	b.buffers = append(b.buffers, bufferResource{
		versions: []bufferVersion{{creator: n.id, createUsage: usage}},
	})
	n.bufferCreates = append(n.bufferCreates, bufferCreate{usage: usage, constraint: c})
	return usage
}

func (b *Builder) pushBufferRead(id NodeID, v BufferVersionID, t UsageType) BufferUsageID {
	usage := BufferUsageID(len(b.bufferUsages))
	b.bufferUsages = append(b.bufferUsages, bufferUsage{node: id, version: v, usageType: t})
	ver := b.bufferVersion(v)
	ver.readUsages = append(ver.readUsages, usage)
	return usage
}

func (b *Builder) addBufferRead(stage string, n *node, src BufferUsageID, c BufferConstraint) BufferUsageID {
	u, ok := b.bufferUsage(stage, src)
	if !ok {
		return noBufferUsage
	}
	usage := b.pushBufferRead(n.id, u.version, UsageRead)
	n.bufferReads = append(n.bufferReads, bufferRead{usage: usage, constraint: c})
	return usage
}

func (b *Builder) addBufferModify(stage string, n *node, src BufferUsageID, c BufferConstraint) (BufferUsageID, BufferUsageID) {
	u, ok := b.bufferUsage(stage, src)
	if !ok {
		return noBufferUsage, noBufferUsage
	}
	res := &b.buffers[u.version.Buffer]
	if u.version.Version != len(res.versions)-1 {
		b.fail(stage, ErrStaleVersion, "buffer %d version %d superseded by version %d",
			u.version.Buffer, u.version.Version, len(res.versions)-1)
		return noBufferUsage, noBufferUsage
	}
	input := b.pushBufferRead(n.id, u.version, UsageModifyRead)
	output := BufferUsageID(len(b.bufferUsages))
	next := BufferVersionID{Buffer: u.version.Buffer, Version: len(res.versions)}
	b.bufferUsages = append(b.bufferUsages, bufferUsage{node: n.id, version: next, usageType: UsageModifyWrite})
	res.versions = append(res.versions, bufferVersion{creator: n.id, createUsage: output})
	n.bufferModifies = append(n.bufferModifies, bufferModify{input: input, output: output, constraint: c})
	return input, output
}

// CreateBuffer creates a buffer the node fills, for example by a copy or
// a queue write from its callback.
func (b *Builder) CreateBuffer(id NodeID, c BufferConstraint) BufferUsageID {
	n := b.node("create buffer", id)
	if n == nil {
		return noBufferUsage
	}
	c.Usage |= gputypes.BufferUsageCopyDst
	usage := b.addBufferCreate(n, c)
	n.copyDstBuffers = append(n.copyDstBuffers, usage)
	return usage
}

func (b *Builder) readBufferAs(stage string, id NodeID, buf BufferUsageID, c BufferConstraint, usage gputypes.BufferUsage, list func(*node) *[]BufferUsageID) BufferUsageID {
	n := b.node(stage, id)
	if n == nil {
		return noBufferUsage
	}
	c.Usage |= usage
	read := b.addBufferRead(stage, n, buf, c)
	if read != noBufferUsage {
		l := list(n)
		*l = append(*l, read)
	}
	return read
}

// ReadVertexBuffer reads buf as vertex input.
func (b *Builder) ReadVertexBuffer(id NodeID, buf BufferUsageID, c BufferConstraint) BufferUsageID {
	return b.readBufferAs("read vertex buffer", id, buf, c, gputypes.BufferUsageVertex,
		func(n *node) *[]BufferUsageID { return &n.vertexBuffers })
}

// ReadIndexBuffer reads buf as index input.
func (b *Builder) ReadIndexBuffer(id NodeID, buf BufferUsageID, c BufferConstraint) BufferUsageID {
	return b.readBufferAs("read index buffer", id, buf, c, gputypes.BufferUsageIndex,
		func(n *node) *[]BufferUsageID { return &n.indexBuffers })
}

// ReadIndirectBuffer reads buf as indirect draw or dispatch arguments.
func (b *Builder) ReadIndirectBuffer(id NodeID, buf BufferUsageID, c BufferConstraint) BufferUsageID {
	return b.readBufferAs("read indirect buffer", id, buf, c, gputypes.BufferUsageIndirect,
		func(n *node) *[]BufferUsageID { return &n.indirectBuffers })
}

// ReadUniformBuffer reads buf through a uniform binding.
func (b *Builder) ReadUniformBuffer(id NodeID, buf BufferUsageID, c BufferConstraint) BufferUsageID {
	return b.readBufferAs("read uniform buffer", id, buf, c, gputypes.BufferUsageUniform,
		func(n *node) *[]BufferUsageID { return &n.uniformBuffers })
}

// ReadStorageBuffer reads buf through a storage binding.
func (b *Builder) ReadStorageBuffer(id NodeID, buf BufferUsageID, c BufferConstraint) BufferUsageID {
	return b.readBufferAs("read storage buffer", id, buf, c, gputypes.BufferUsageStorage,
		func(n *node) *[]BufferUsageID { return &n.storageBuffers })
}

// CreateStorageBuffer creates a buffer written through a storage binding.
func (b *Builder) CreateStorageBuffer(id NodeID, c BufferConstraint) BufferUsageID {
	n := b.node("create storage buffer", id)
	if n == nil {
		return noBufferUsage
	}
	c.Usage |= gputypes.BufferUsageStorage
	usage := b.addBufferCreate(n, c)
	n.storageBuffers = append(n.storageBuffers, usage)
	return usage
}

// ModifyStorageBuffer reads and writes buf through a storage binding and
// returns the new version.
func (b *Builder) ModifyStorageBuffer(id NodeID, buf BufferUsageID, c BufferConstraint) BufferUsageID {
	const stage = "modify storage buffer"
	n := b.node(stage, id)
	if n == nil {
		return noBufferUsage
	}
	c.Usage |= gputypes.BufferUsageStorage
	input, output := b.addBufferModify(stage, n, buf, c)
	if output != noBufferUsage {
		n.storageBuffers = append(n.storageBuffers, input, output)
	}
	return output
}

// CopyBuffer records that the node copies src into a new buffer of the
// same size unless c sets one.
func (b *Builder) CopyBuffer(id NodeID, src BufferUsageID, c BufferConstraint) BufferUsageID {
	const stage = "copy buffer"
	n := b.node(stage, id)
	if n == nil {
		return noBufferUsage
	}
	read := b.addBufferRead(stage, n, src, BufferConstraint{Usage: gputypes.BufferUsageCopySrc})
	if read == noBufferUsage {
		return noBufferUsage
	}
	c.Usage |= gputypes.BufferUsageCopyDst
	dst := b.addBufferCreate(n, c)
	n.copySrcBuffers = append(n.copySrcBuffers, read)
	n.copyDstBuffers = append(n.copyDstBuffers, dst)
	n.bufferCopies = append(n.bufferCopies, bufferCopy{src: read, dst: dst})
	return dst
}
