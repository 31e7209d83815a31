package graph

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rendergraph/resource"
)

func depthPlan(t *testing.T) (*Plan, ImageUsageID) {
	t.Helper()
	b := NewBuilder()
	n := b.AddNode("scene", QueueDefaultGraphics)
	out := b.CreateColorAttachment(n, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	depth := b.CreateDepthAttachment(n, &DepthStencilClear{Depth: 1}, AspectDepth,
		ImageConstraint{Format: gputypes.TextureFormatDepth32Float}, ViewOptions{})
	b.SetOutputImage(out, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)
	plan, err := NewPlan(b)
	require.NoError(t, err)
	return plan, depth
}

func newTestCache(t *testing.T) (*ResourceCache, *resource.DynSetManager) {
	t.Helper()
	dev := createNoopDevice(t)
	dyn := resource.NewDynSetManager(dev)
	cache := NewResourceCache(dyn, dev.Info.MaxFramesInFlight)
	t.Cleanup(func() {
		cache.Clear()
		assert.NoError(t, dyn.Destroy())
	})
	return cache, dyn
}

func TestResourceCacheReusesAcrossFrames(t *testing.T) {
	cache, _ := newTestCache(t)
	plan, depth := depthPlan(t)
	phys, ok := plan.ImagePhysical(depth)
	require.True(t, ok)

	first, err := cache.AllocateImages(plan, testSurface)
	require.NoError(t, err)
	require.NotNil(t, first[phys])
	assert.Nil(t, first[plan.ExternalImages[0].Physical], "external images are not allocated")
	desc := first[phys].Get().Desc
	assert.Equal(t, uint32(320), desc.Extent.Width)
	assert.Equal(t, uint32(240), desc.Extent.Height)
	assert.Equal(t, gputypes.TextureFormatDepth32Float, desc.Format)

	cache.OnFrameComplete()
	second, err := cache.AllocateImages(plan, testSurface)
	require.NoError(t, err)
	assert.Same(t, first[phys], second[phys])

	m := cache.Metrics()
	assert.Equal(t, 1, m.Images)
	assert.Equal(t, uint64(1), m.Hits)
	assert.Equal(t, uint64(1), m.Misses)
}

func TestResourceCacheSurfaceChangeAllocates(t *testing.T) {
	cache, _ := newTestCache(t)
	plan, depth := depthPlan(t)
	phys, _ := plan.ImagePhysical(depth)

	first, err := cache.AllocateImages(plan, testSurface)
	require.NoError(t, err)
	resized := testSurface
	resized.Width, resized.Height = 640, 480
	second, err := cache.AllocateImages(plan, resized)
	require.NoError(t, err)
	assert.NotSame(t, first[phys], second[phys])
	assert.Equal(t, uint32(640), second[phys].Get().Desc.Extent.Width)
	assert.Equal(t, 2, cache.Metrics().Images)
}

func TestResourceCacheDistinctWithinFrame(t *testing.T) {
	cache, _ := newTestCache(t)
	small := ImageConstraint{Format: rgba8, Extents: CustomExtents(64, 64, 1)}
	b := NewBuilder()
	a := b.AddNode("a", QueueDefaultGraphics)
	x := b.CreateColorAttachment(a, 0, opaqueBlack, small, ViewOptions{})
	bn := b.AddNode("b", QueueDefaultGraphics)
	b.SampleImage(bn, x, ImageConstraint{}, ViewOptions{})
	y := b.CreateColorAttachment(bn, 0, opaqueBlack, small, ViewOptions{})
	c := b.AddNode("c", QueueDefaultGraphics)
	b.SampleImage(c, y, ImageConstraint{}, ViewOptions{})
	out := b.CreateColorAttachment(c, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	b.SetOutputImage(out, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)
	plan, err := NewPlan(b)
	require.NoError(t, err)

	px, _ := plan.ImagePhysical(x)
	py, _ := plan.ImagePhysical(y)
	require.NotEqual(t, px, py)
	require.Equal(t, plan.ImageSpec(px), plan.ImageSpec(py))

	images, err := cache.AllocateImages(plan, testSurface)
	require.NoError(t, err)
	assert.NotSame(t, images[px], images[py])

	views, err := cache.AllocateImageViews(plan, images)
	require.NoError(t, err)
	vx, _ := plan.ImageView(x)
	vy, _ := plan.ImageView(y)
	assert.NotSame(t, views[vx], views[vy])
	assert.Same(t, images[px], views[vx].Get().Image)
	assert.Equal(t, gputypes.TextureViewDimension2D, views[vx].Get().Desc.Dimension)
	vo, _ := plan.ImageView(out)
	assert.Same(t, plan.ExternalImages[0].Resource, views[vo])
}

func TestResourceCacheEviction(t *testing.T) {
	cache, _ := newTestCache(t)
	require.Equal(t, uint64(3), cache.FramesToPersist())
	plan, depth := depthPlan(t)
	phys, _ := plan.ImagePhysical(depth)

	images, err := cache.AllocateImages(plan, testSurface)
	require.NoError(t, err)
	held := images[phys].Clone()
	defer held.Release()
	assert.Equal(t, int64(2), held.RefCount())

	cache.OnFrameComplete()
	cache.OnFrameComplete()
	assert.Equal(t, 1, cache.Metrics().Images)

	cache.OnFrameComplete()
	m := cache.Metrics()
	assert.Equal(t, 0, m.Images)
	assert.Equal(t, uint64(1), m.Evictions)
	assert.Equal(t, int64(1), held.RefCount(), "eviction drops the cache reference")
}

func TestResourceCacheBuffers(t *testing.T) {
	cache, _ := newTestCache(t)
	b := NewBuilder()
	n := b.AddNode("upload", QueueDefaultGraphics)
	buf := b.CreateBuffer(n, BufferConstraint{Size: 1024})
	b.SetNodeCanBeCulled(n, false)
	plan, err := NewPlan(b)
	require.NoError(t, err)

	buffers, err := cache.AllocateBuffers(plan)
	require.NoError(t, err)
	phys, ok := plan.BufferPhysical(buf)
	require.True(t, ok)
	require.NotNil(t, buffers[phys])
	assert.Equal(t, uint64(1024), buffers[phys].Get().Desc.Size)
	assert.NotZero(t, buffers[phys].Get().Desc.Usage&gputypes.BufferUsageCopyDst)
	assert.Equal(t, 1, cache.Metrics().Buffers)

	cache.Clear()
	assert.Equal(t, CacheMetrics{Misses: 1}, cache.Metrics())
}

func TestResourceCacheReusesViewsWhenPlanShapeChanges(t *testing.T) {
	cache, _ := newTestCache(t)
	first, depth := depthPlan(t)
	firstImages, err := cache.AllocateImages(first, testSurface)
	require.NoError(t, err)
	firstViews, err := cache.AllocateImageViews(first, firstImages)
	require.NoError(t, err)
	cache.OnFrameComplete()

	// A second output ahead of the depth attachment shifts its view index.
	b := NewBuilder()
	n := b.AddNode("scene", QueueDefaultGraphics)
	primary := b.CreateColorAttachment(n, 0, opaqueBlack, colorConstraint(), ViewOptions{})
	overlay := b.CreateColorAttachment(n, 1, opaqueBlack, colorConstraint(), ViewOptions{})
	depth2 := b.CreateDepthAttachment(n, &DepthStencilClear{Depth: 1}, AspectDepth,
		ImageConstraint{Format: gputypes.TextureFormatDepth32Float}, ViewOptions{})
	b.SetOutputImage(primary, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)
	b.SetOutputImage(overlay, placeholderView(), swapchainSpec(), ViewOptions{}, StatePresent)
	second, err := NewPlan(b)
	require.NoError(t, err)

	firstView, _ := first.ImageView(depth)
	secondView, _ := second.ImageView(depth2)
	require.NotEqual(t, firstView, secondView)

	secondImages, err := cache.AllocateImages(second, testSurface)
	require.NoError(t, err)
	secondViews, err := cache.AllocateImageViews(second, secondImages)
	require.NoError(t, err)

	firstPhys, _ := first.ImagePhysical(depth)
	secondPhys, _ := second.ImagePhysical(depth2)
	assert.Same(t, firstImages[firstPhys], secondImages[secondPhys])
	assert.Same(t, firstViews[firstView], secondViews[secondView])
	assert.Equal(t, 1, cache.Metrics().ImageViews)
}
