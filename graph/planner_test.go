package graph

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSingleOutput(t *testing.T) {
	b := NewBuilder()
	n := b.AddNode("opaque", QueueDefaultGraphics)
	color := b.CreateColorAttachment(n, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	b.SetOutputImage(color, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)

	plan, err := NewPlan(b)
	require.NoError(t, err)

	require.Len(t, plan.Passes, 1)
	pass := plan.Passes[0]
	assert.Equal(t, PassRender, pass.Kind)
	require.Len(t, pass.ColorTargets, 1)
	assert.Equal(t, LoadClear, pass.ColorTargets[0].Load)
	assert.Equal(t, StoreStore, pass.ColorTargets[0].Store)
	assert.Equal(t, []gputypes.TextureFormat{rgba8}, pass.Meta.ColorFormats)
	assert.Equal(t, gputypes.TextureFormatUndefined, pass.Meta.DepthFormat)
	assert.Equal(t, uint32(1), pass.Meta.SampleCount)

	require.Len(t, plan.ExternalImages, 1)
	ext := plan.ExternalImages[0]
	phys, ok := plan.ImagePhysical(color)
	require.True(t, ok)
	assert.Equal(t, ext.Physical, phys)
	view, ok := plan.ImageView(color)
	require.True(t, ok)
	assert.Equal(t, ext.View, view)

	require.Len(t, pass.PreBarriers, 1)
	assert.Equal(t, ImageBarrier{Image: phys, Old: StateUndefined, New: StateRenderTarget,
		SrcQueue: QueueDefaultGraphics, DstQueue: QueueDefaultGraphics}, pass.PreBarriers[0])
	require.Len(t, plan.FinalImageBarriers, 1)
	assert.Equal(t, StateRenderTarget, plan.FinalImageBarriers[0].Old)
	assert.Equal(t, StatePresent, plan.FinalImageBarriers[0].New)

	stats := plan.Stats()
	assert.Equal(t, 1, stats.PhysicalImages)
	assert.Equal(t, 0, stats.IntermediateImages)
	assert.Equal(t, 2, stats.Barriers)
}

func TestPlanVersionChainOrderAndCulling(t *testing.T) {
	b := NewBuilder()
	unused := b.AddNode("unused", QueueDefaultGraphics)
	b.CreateColorAttachment(unused, 0, opaqueBlack, colorConstraint(), ViewOptions{})

	base := b.AddNode("base", QueueDefaultGraphics)
	img := b.CreateColorAttachment(base, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	overlay := b.AddNode("overlay", QueueDefaultGraphics)
	img2 := b.ModifyColorAttachment(overlay, img, 0, nil, ImageConstraint{}, ViewOptions{})
	compose := b.AddNode("compose", QueueDefaultGraphics)
	out := b.CreateColorAttachment(compose, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	sampled := b.SampleImage(compose, img2, ImageConstraint{}, ViewOptions{})
	b.SetOutputImage(out, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)

	plan, err := NewPlan(b)
	require.NoError(t, err)

	_, ok := plan.PassIndex(unused)
	assert.False(t, ok, "unreferenced node must be culled")
	assert.Equal(t, 1, plan.Stats().CulledNodes)

	order := make([]int, 0, 3)
	for _, id := range []NodeID{base, overlay, compose} {
		i, ok := plan.PassIndex(id)
		require.True(t, ok)
		order = append(order, i)
	}
	assert.Equal(t, []int{0, 1, 2}, order)

	first, _ := plan.ImagePhysical(img)
	second, _ := plan.ImagePhysical(img2)
	read, _ := plan.ImagePhysical(sampled)
	assert.Equal(t, first, second, "a modify keeps its physical image")
	assert.Equal(t, first, read)
	spec := plan.ImageSpec(first)
	assert.Equal(t, rgba8, spec.Format)
	assert.NotZero(t, spec.Usage&gputypes.TextureUsageTextureBinding)

	assert.Equal(t, LoadClear, plan.Passes[0].ColorTargets[0].Load)
	assert.Equal(t, StoreStore, plan.Passes[0].ColorTargets[0].Store)
	assert.Equal(t, LoadLoad, plan.Passes[1].ColorTargets[0].Load)
	assert.Equal(t, StoreStore, plan.Passes[1].ColorTargets[0].Store)
	assert.Empty(t, plan.Passes[1].PreBarriers, "render target stays a render target")

	barriers := plan.Passes[2].PreBarriers
	require.Len(t, barriers, 2)
	assert.Contains(t, barriers, ImageBarrier{Image: first, Old: StateRenderTarget, New: StateShaderResource,
		SrcQueue: QueueDefaultGraphics, DstQueue: QueueDefaultGraphics})
}

func TestPlanReadersRunBeforeOverwrite(t *testing.T) {
	b := NewBuilder()
	base := b.AddNode("base", QueueDefaultGraphics)
	img := b.CreateColorAttachment(base, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	writer := b.AddNode("writer", QueueDefaultGraphics)
	img2 := b.ModifyColorAttachment(writer, img, 0, nil, ImageConstraint{}, ViewOptions{})
	reader := b.AddNode("reader", QueueDefaultGraphics)
	b.SampleImage(reader, img, ImageConstraint{}, ViewOptions{})
	out := b.CreateColorAttachment(reader, 0, opaqueBlack, colorConstraint(), ViewOptions{})

	b.SetOutputImage(img2, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)
	b.SetOutputImage(out, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)

	plan, err := NewPlan(b)
	require.NoError(t, err)
	r, ok := plan.PassIndex(reader)
	require.True(t, ok)
	w, ok := plan.PassIndex(writer)
	require.True(t, ok)
	assert.Less(t, r, w)
}

func TestPlanReusesPhysicalImages(t *testing.T) {
	small := ImageConstraint{Format: rgba8, Extents: CustomExtents(64, 64, 1)}
	b := NewBuilder()
	a := b.AddNode("a", QueueDefaultGraphics)
	x := b.CreateColorAttachment(a, 0, opaqueBlack, small, ViewOptions{})
	bn := b.AddNode("b", QueueDefaultGraphics)
	b.SampleImage(bn, x, ImageConstraint{}, ViewOptions{})
	y := b.CreateColorAttachment(bn, 0, opaqueBlack, small, ViewOptions{})
	c := b.AddNode("c", QueueDefaultGraphics)
	b.SampleImage(c, y, ImageConstraint{}, ViewOptions{})
	w := b.CreateColorAttachment(c, 0, opaqueBlack, small, ViewOptions{})
	d := b.AddNode("d", QueueDefaultGraphics)
	b.SampleImage(d, w, ImageConstraint{}, ViewOptions{})
	out := b.CreateColorAttachment(d, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	b.SetOutputImage(out, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)

	plan, err := NewPlan(b)
	require.NoError(t, err)

	px, _ := plan.ImagePhysical(x)
	py, _ := plan.ImagePhysical(y)
	pw, _ := plan.ImagePhysical(w)
	assert.Equal(t, px, pw, "lifetimes do not overlap")
	assert.NotEqual(t, px, py, "lifetimes overlap")
	assert.Equal(t, 4, plan.Stats().VirtualImages)
	assert.Equal(t, 3, plan.Stats().PhysicalImages)
	assert.Len(t, plan.IntermediateImages, 2)
}

func TestPlanInsertsResolveForMultisampledOutput(t *testing.T) {
	b := NewBuilder()
	n := b.AddNode("msaa", QueueDefaultGraphics)
	color := b.CreateColorAttachment(n, 0, opaqueBlack, ImageConstraint{Format: rgba8, Samples: 4}, ViewOptions{})
	b.SetOutputImage(color, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)

	plan, err := NewPlan(b)
	require.NoError(t, err)

	pass := plan.Passes[0]
	require.Len(t, pass.ColorTargets, 1)
	target := pass.ColorTargets[0]
	require.NotNil(t, target.Resolve)
	assert.Equal(t, plan.ExternalImages[0].Physical, target.Resolve.Image)
	assert.Equal(t, StoreStore, target.Resolve.Store)
	assert.Equal(t, StoreDontCare, target.Store, "nothing reads the multisampled image")
	assert.Equal(t, uint32(4), plan.ImageSpec(target.Image).Samples)
	assert.Equal(t, uint32(4), pass.Meta.SampleCount)
	assert.Len(t, pass.PreBarriers, 2)
}

func TestPlanBufferBarriers(t *testing.T) {
	b := NewBuilder()
	sim := b.AddNode("simulate", QueueDefaultGraphics)
	particles := b.CreateStorageBuffer(sim, BufferConstraint{Size: 256})
	draw := b.AddNode("draw", QueueDefaultGraphics)
	b.ReadVertexBuffer(draw, particles, BufferConstraint{})
	out := b.CreateColorAttachment(draw, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	b.SetOutputImage(out, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)

	plan, err := NewPlan(b)
	require.NoError(t, err)

	assert.Equal(t, PassCallback, plan.Passes[0].Kind)
	require.Len(t, plan.PhysicalBuffers, 1)
	assert.Equal(t, uint64(256), plan.PhysicalBuffers[0].Size)
	assert.Equal(t, gputypes.BufferUsageStorage|gputypes.BufferUsageVertex, plan.PhysicalBuffers[0].Usage)

	require.Len(t, plan.Passes[0].PreBuffers, 1)
	assert.Equal(t, StateCopyDst, plan.Passes[0].PreBuffers[0].Old)
	assert.Equal(t, StateUnorderedAccess, plan.Passes[0].PreBuffers[0].New)
	require.Len(t, plan.Passes[1].PreBuffers, 1)
	assert.Equal(t, StateVertexAndConstantBuffer, plan.Passes[1].PreBuffers[0].New)
}

func TestPlanQueueTransfer(t *testing.T) {
	b := NewBuilder()
	async := b.AddNode("async", QueueIndex(1))
	data := b.CreateStorageBuffer(async, BufferConstraint{Size: 64})
	draw := b.AddNode("draw", QueueDefaultGraphics)
	b.ReadUniformBuffer(draw, data, BufferConstraint{})
	out := b.CreateColorAttachment(draw, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	b.SetOutputImage(out, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)

	plan, err := NewPlan(b)
	require.NoError(t, err)
	require.Len(t, plan.Passes[1].PreBuffers, 1)
	barrier := plan.Passes[1].PreBuffers[0]
	assert.True(t, barrier.QueueTransfer())
	assert.Equal(t, QueueIndex(1), barrier.SrcQueue)
	assert.Equal(t, QueueDefaultGraphics, barrier.DstQueue)
}

func TestPlanDepthAttachment(t *testing.T) {
	b := NewBuilder()
	n := b.AddNode("scene", QueueDefaultGraphics)
	out := b.CreateColorAttachment(n, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	b.CreateDepthAttachment(n, &DepthStencilClear{Depth: 1}, AspectDepth,
		ImageConstraint{Format: gputypes.TextureFormatDepth24PlusStencil8}, ViewOptions{})
	b.SetOutputImage(out, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)

	plan, err := NewPlan(b)
	require.NoError(t, err)
	ds := plan.Passes[0].DepthStencil
	require.NotNil(t, ds)
	assert.Equal(t, LoadClear, ds.DepthLoad)
	assert.Equal(t, StoreDontCare, ds.DepthStore)
	assert.Equal(t, LoadDontCare, ds.StencilLoad)
	assert.Equal(t, float32(1), ds.Clear.Depth)
	assert.Equal(t, gputypes.TextureFormatDepth24PlusStencil8, plan.Passes[0].Meta.DepthFormat)
	assert.Len(t, plan.IntermediateImages, 1)
}

func TestPlanErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		want  error
	}{
		{
			name: "cycle",
			build: func(b *Builder) {
				a := b.AddNode("a", QueueDefaultGraphics)
				c := b.AddNode("c", QueueDefaultGraphics)
				b.AddExplicitDependency(a, c)
				b.AddExplicitDependency(c, a)
				b.SetNodeCanBeCulled(a, false)
			},
			want: ErrCycle,
		},
		{
			name: "unresolved format",
			build: func(b *Builder) {
				n := b.AddNode("compute", QueueDefaultGraphics)
				b.CreateStorageImage(n, ImageConstraint{}, ViewOptions{})
				b.SetNodeCanBeCulled(n, false)
			},
			want: ErrUnresolvedFormat,
		},
		{
			name: "unresolved size",
			build: func(b *Builder) {
				n := b.AddNode("upload", QueueDefaultGraphics)
				b.CreateBuffer(n, BufferConstraint{})
				b.SetNodeCanBeCulled(n, false)
			},
			want: ErrUnresolvedSize,
		},
		{
			name: "sample count conflict",
			build: func(b *Builder) {
				a := b.AddNode("a", QueueDefaultGraphics)
				img := b.CreateColorAttachment(a, 0, opaqueBlack, ImageConstraint{Format: rgba8, Samples: 1}, ViewOptions{})
				c := b.AddNode("c", QueueDefaultGraphics)
				b.SampleImage(c, img, ImageConstraint{Samples: 4}, ViewOptions{})
				b.SetNodeCanBeCulled(c, false)
			},
			want: ErrConstraintConflict,
		},
		{
			name: "stale version",
			build: func(b *Builder) {
				a := b.AddNode("a", QueueDefaultGraphics)
				img := b.CreateColorAttachment(a, 0, opaqueBlack, colorConstraint(), ViewOptions{})
				m1 := b.AddNode("m1", QueueDefaultGraphics)
				b.ModifyColorAttachment(m1, img, 0, nil, ImageConstraint{}, ViewOptions{})
				m2 := b.AddNode("m2", QueueDefaultGraphics)
				b.ModifyColorAttachment(m2, img, 0, nil, ImageConstraint{}, ViewOptions{})
			},
			want: ErrStaleVersion,
		},
		{
			name: "read before write",
			build: func(b *Builder) {
				n := b.AddNode("n", QueueDefaultGraphics)
				b.SampleImage(n, ImageUsageID(42), ImageConstraint{}, ViewOptions{})
			},
			want: ErrReadBeforeWrite,
		},
		{
			name: "callback set twice",
			build: func(b *Builder) {
				n := b.AddNode("n", QueueDefaultGraphics)
				b.SetRenderpassCallback(n, func(*RenderpassArgs) error { return nil })
				b.SetComputeCallback(n, func(*ComputeArgs) error { return nil })
			},
			want: ErrCallbackAlreadySet,
		},
		{
			name: "state conflict",
			build: func(b *Builder) {
				n := b.AddNode("n", QueueDefaultGraphics)
				buf := b.CreateStorageBuffer(n, BufferConstraint{Size: 16})
				m := b.AddNode("m", QueueDefaultGraphics)
				b.ReadVertexBuffer(m, buf, BufferConstraint{})
				b.ReadIndexBuffer(m, buf, BufferConstraint{})
				b.SetNodeCanBeCulled(m, false)
			},
			want: ErrStateConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.build(b)
			plan, err := NewPlan(b)
			require.Error(t, err)
			assert.Nil(t, plan)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestBuilderPanicsOnReusedSlot(t *testing.T) {
	b := NewBuilder()
	n := b.AddNode("n", QueueDefaultGraphics)
	b.CreateColorAttachment(n, 0, nil, colorConstraint(), ViewOptions{})
	assert.Panics(t, func() {
		b.CreateColorAttachment(n, 0, nil, colorConstraint(), ViewOptions{})
	})
}

func TestBuilderKeepsFirstError(t *testing.T) {
	b := NewBuilder()
	b.SampleImage(NodeID(7), ImageUsageID(0), ImageConstraint{}, ViewOptions{})
	first := b.Err()
	require.Error(t, first)
	n := b.AddNode("n", QueueDefaultGraphics)
	b.SampleImage(n, ImageUsageID(99), ImageConstraint{}, ViewOptions{})
	assert.Equal(t, first, b.Err())
	assert.True(t, errors.Is(first, ErrInvalidUsage))
}

func TestPlanExplicitDependencyKeepsNode(t *testing.T) {
	b := NewBuilder()
	setup := b.AddNode("setup", QueueDefaultGraphics)
	draw := b.AddNode("draw", QueueDefaultGraphics)
	out := b.CreateColorAttachment(draw, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	b.AddExplicitDependency(draw, setup)
	b.SetOutputImage(out, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)

	plan, err := NewPlan(b)
	require.NoError(t, err)
	s, ok := plan.PassIndex(setup)
	require.True(t, ok)
	d, _ := plan.PassIndex(draw)
	assert.Less(t, s, d)
	assert.Equal(t, PassCallback, plan.Passes[s].Kind)
}

func TestPlanOutputResolvesUnsetFormat(t *testing.T) {
	b := NewBuilder()
	n := b.AddNode("opaque", QueueDefaultGraphics)
	color := b.CreateColorAttachment(n, 0, opaqueBlack, ImageConstraint{Samples: 1}, ViewOptions{})
	b.SetOutputImage(color, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)

	plan, err := NewPlan(b)
	require.NoError(t, err)
	phys, ok := plan.ImagePhysical(color)
	require.True(t, ok)
	spec := plan.ImageSpec(phys)
	assert.Equal(t, rgba8, spec.Format)
	assert.Equal(t, uint32(1), spec.Samples)
	assert.Equal(t, uint32(1), spec.LayerCount)
	assert.Equal(t, uint32(1), spec.MipCount)
	assert.Equal(t, []gputypes.TextureFormat{rgba8}, plan.Passes[0].Meta.ColorFormats)
}

func TestPlanOutputFormatConflict(t *testing.T) {
	b := NewBuilder()
	n := b.AddNode("opaque", QueueDefaultGraphics)
	color := b.CreateColorAttachment(n, 0, opaqueBlack,
		ImageConstraint{Format: gputypes.TextureFormatBGRA8Unorm}, ViewOptions{})
	b.SetOutputImage(color, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)

	_, err := NewPlan(b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConstraintConflict), "got %v", err)
	assert.True(t, IsConfigError(err))
}

func TestPlanSkipsFinalBarrierForUnusedExternal(t *testing.T) {
	b := NewBuilder()
	history := b.AddExternalImage(placeholderView(), swapchainSpec(), ViewOptions{},
		StateShaderResource, StateCopySrc)
	debug := b.AddNode("debug", QueueDefaultGraphics)
	b.SampleImage(debug, b.ReadExternalImage(history), ImageConstraint{}, ViewOptions{})

	n := b.AddNode("opaque", QueueDefaultGraphics)
	color := b.CreateColorAttachment(n, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	b.SetOutputImage(color, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)

	plan, err := NewPlan(b)
	require.NoError(t, err)
	require.Len(t, plan.Passes, 1)
	require.Len(t, plan.FinalImageBarriers, 1)
	final := plan.FinalImageBarriers[0]
	assert.Equal(t, StatePresent, final.New)
	assert.Equal(t, QueueDefaultGraphics, final.SrcQueue)
	assert.Equal(t, QueueDefaultGraphics, final.DstQueue)
}
