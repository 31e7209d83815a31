package graph

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/device"
	"github.com/gogpu/rendergraph/internal/logging"
	"github.com/gogpu/rendergraph/resource"
)

type imageCacheKey struct {
	spec    ImageSpec
	surface device.SurfaceInfo
}

type viewCacheKey struct {
	image uint64
	desc  resource.ViewDesc
}

type cachedEntry[T any] struct {
	keepUntil uint64
	arc       *resource.Arc[T]
}

// bucket holds every cached resource sharing one key. nextIndex counts the
// entries handed out by the current allocation call.
type bucket[T any] struct {
	entries   []cachedEntry[T]
	nextIndex int
}

type keyedCache[K comparable, T any] struct {
	buckets map[K]*bucket[T]
}

func newKeyedCache[K comparable, T any]() keyedCache[K, T] {
	return keyedCache[K, T]{buckets: make(map[K]*bucket[T])}
}

func (c *keyedCache[K, T]) resetIndexes() {
	for _, b := range c.buckets {
		b.nextIndex = 0
	}
}

// claim returns the next unclaimed entry for key, creating one when the
// bucket is exhausted. hit reports whether an entry was reused.
func (c *keyedCache[K, T]) claim(key K, keepUntil uint64, create func() (*resource.Arc[T], error)) (arc *resource.Arc[T], hit bool, err error) {
	b, ok := c.buckets[key]
	if !ok {
		b = &bucket[T]{}
		c.buckets[key] = b
	}
	if b.nextIndex < len(b.entries) {
		e := &b.entries[b.nextIndex]
		b.nextIndex++
		e.keepUntil = keepUntil
		return e.arc, true, nil
	}
	arc, err = create()
	if err != nil {
		return nil, false, err
	}
	b.entries = append(b.entries, cachedEntry[T]{keepUntil: keepUntil, arc: arc})
	b.nextIndex++
	return arc, false, nil
}

// evict releases entries whose keepUntil has passed and prunes empty
// buckets. It returns the number of entries released.
func (c *keyedCache[K, T]) evict(current uint64) int {
	evicted := 0
	for key, b := range c.buckets {
		kept := b.entries[:0]
		for _, e := range b.entries {
			if e.keepUntil <= current {
				e.arc.Release()
				evicted++
				continue
			}
			kept = append(kept, e)
		}
		clear(b.entries[len(kept):])
		b.entries = kept
		if len(b.entries) == 0 {
			delete(c.buckets, key)
		}
	}
	return evicted
}

func (c *keyedCache[K, T]) clear() {
	for _, b := range c.buckets {
		for _, e := range b.entries {
			e.arc.Release()
		}
	}
	clear(c.buckets)
}

func (c *keyedCache[K, T]) len() int {
	n := 0
	for _, b := range c.buckets {
		n += len(b.entries)
	}
	return n
}

// CacheMetrics counts the resources a ResourceCache retains.
type CacheMetrics struct {
	Images     int
	ImageViews int
	Buffers    int
	Hits       uint64
	Misses     uint64
	Evictions  uint64
}

// ResourceCache keeps the physical resources of past frames alive so that
// later frames requesting the same specs reuse them instead of allocating.
// An entry survives FramesToPersist calls to OnFrameComplete after its last
// use. All methods take a single lock.
type ResourceCache struct {
	mu              sync.Mutex
	alloc           *resource.DynSetAllocator
	currentFrame    uint64
	framesToPersist uint64

	images  keyedCache[imageCacheKey, *resource.Image]
	views   keyedCache[viewCacheKey, *resource.ImageView]
	buffers keyedCache[BufferSpec, *resource.Buffer]

	hits, misses, evictions uint64
}

// NewResourceCache returns a cache creating resources through dyn. Entries
// persist for maxFramesInFlight+1 frames after their last use.
func NewResourceCache(dyn *resource.DynSetManager, maxFramesInFlight int) *ResourceCache {
	return &ResourceCache{
		alloc:           dyn.CreateAllocator(),
		framesToPersist: uint64(maxFramesInFlight) + 1,
		images:          newKeyedCache[imageCacheKey, *resource.Image](),
		views:           newKeyedCache[viewCacheKey, *resource.ImageView](),
		buffers:         newKeyedCache[BufferSpec, *resource.Buffer](),
	}
}

// FramesToPersist returns how many frame completions an unused entry
// survives.
func (c *ResourceCache) FramesToPersist() uint64 { return c.framesToPersist }

func imageDesc(label string, spec ImageSpec, surface device.SurfaceInfo) resource.ImageDesc {
	extent := spec.Extents.Resolve(surface)
	dim := gputypes.TextureDimension2D
	if spec.Extents.Kind == ExtentsCustom && spec.Extents.Depth > 1 {
		dim = gputypes.TextureDimension3D
	} else if spec.LayerCount > 1 {
		extent.DepthOrArrayLayers = spec.LayerCount
	}
	return resource.ImageDesc{
		Label:         label,
		Format:        spec.Format,
		Extent:        extent,
		MipLevelCount: spec.MipCount,
		SampleCount:   spec.Samples,
		Dimension:     dim,
		Usage:         spec.Usage,
	}
}

// AllocateImages returns one image per physical image of plan, indexed by
// PhysicalImageID. External images are left nil. Two physical images with
// the same spec never receive the same cached image within one call.
func (c *ResourceCache) AllocateImages(plan *Plan, surface device.SurfaceInfo) ([]*resource.Arc[*resource.Image], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.images.resetIndexes()
	keepUntil := c.currentFrame + c.framesToPersist
	out := make([]*resource.Arc[*resource.Image], len(plan.PhysicalImages))
	for _, id := range plan.IntermediateImages {
		spec := plan.PhysicalImages[id]
		arc, hit, err := c.images.claim(imageCacheKey{spec: spec, surface: surface}, keepUntil, func() (*resource.Arc[*resource.Image], error) {
			return c.alloc.CreateImage(imageDesc(fmt.Sprintf("rendergraph image %d", id), spec, surface))
		})
		if err != nil {
			return nil, errors.Wrapf(err, "rendergraph: allocate physical image %d", id)
		}
		c.count(hit)
		out[id] = arc
	}
	return out, nil
}

// AllocateBuffers returns one buffer per physical buffer of plan, indexed
// by PhysicalBufferID. External buffers are left nil.
func (c *ResourceCache) AllocateBuffers(plan *Plan) ([]*resource.Arc[*resource.Buffer], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffers.resetIndexes()
	keepUntil := c.currentFrame + c.framesToPersist
	out := make([]*resource.Arc[*resource.Buffer], len(plan.PhysicalBuffers))
	for _, id := range plan.IntermediateBuffers {
		spec := plan.PhysicalBuffers[id]
		arc, hit, err := c.buffers.claim(spec, keepUntil, func() (*resource.Arc[*resource.Buffer], error) {
			return c.alloc.CreateBuffer(resource.BufferDesc{
				Label: fmt.Sprintf("rendergraph buffer %d", id),
				Size:  spec.Size,
				Usage: spec.Usage,
			})
		})
		if err != nil {
			return nil, errors.Wrapf(err, "rendergraph: allocate physical buffer %d", id)
		}
		c.count(hit)
		out[id] = arc
	}
	return out, nil
}

// AllocateImageViews returns one view per view of plan, indexed by
// PhysicalImageViewID. Views of external images are the caller's views;
// the rest are created over images, as returned by AllocateImages.
func (c *ResourceCache) AllocateImageViews(plan *Plan, images []*resource.Arc[*resource.Image]) ([]*resource.Arc[*resource.ImageView], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.views.resetIndexes()
	keepUntil := c.currentFrame + c.framesToPersist
	out := make([]*resource.Arc[*resource.ImageView], len(plan.ImageViews))
	for _, ext := range plan.ExternalImages {
		out[ext.View] = ext.Resource
	}
	for i, v := range plan.ImageViews {
		if out[i] != nil {
			continue
		}
		image := images[v.Image]
		if image == nil {
			return nil, errors.AssertionFailedf("rendergraph: view %d of unallocated physical image %d", i, v.Image)
		}
		desc := viewDesc(fmt.Sprintf("rendergraph view %d", i), v, plan.PhysicalImages[v.Image])
		keyDesc := desc
		keyDesc.Label = ""
		key := viewCacheKey{image: image.Index(), desc: keyDesc}
		arc, hit, err := c.views.claim(key, keepUntil, func() (*resource.Arc[*resource.ImageView], error) {
			return c.alloc.CreateImageView(image, desc)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "rendergraph: allocate image view %d", i)
		}
		c.count(hit)
		out[i] = arc
	}
	return out, nil
}

func viewDesc(label string, v PhysicalImageView, spec ImageSpec) resource.ViewDesc {
	desc := resource.ViewDesc{
		Label:     label,
		Format:    v.Format,
		Dimension: v.Options.Dimension,
		Aspect:    v.Options.Aspect,
	}
	if desc.Dimension == gputypes.TextureViewDimensionUndefined {
		switch {
		case spec.Extents.Kind == ExtentsCustom && spec.Extents.Depth > 1:
			desc.Dimension = gputypes.TextureViewDimension3D
		case spec.LayerCount > 1 && !v.Options.SliceArrayLayer:
			desc.Dimension = gputypes.TextureViewDimension2DArray
		default:
			desc.Dimension = gputypes.TextureViewDimension2D
		}
	}
	if v.Options.SliceMipLevel {
		desc.BaseMipLevel, desc.MipLevelCount = v.Options.MipSlice, 1
	}
	if v.Options.SliceArrayLayer {
		desc.BaseArrayLayer, desc.ArrayLayerCount = v.Options.ArraySlice, 1
	}
	return desc
}

func (c *ResourceCache) count(hit bool) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

// OnFrameComplete advances the frame counter and releases every entry not
// used within the persistence window.
func (c *ResourceCache) OnFrameComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentFrame++
	evicted := c.views.evict(c.currentFrame) + c.images.evict(c.currentFrame) + c.buffers.evict(c.currentFrame)
	c.evictions += uint64(evicted)
	if evicted > 0 {
		logging.Logger().Debug("rendergraph: evicted cached resources",
			"frame", c.currentFrame, "count", evicted)
	}
}

// Clear releases every cached resource immediately.
func (c *ResourceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.views.clear()
	c.images.clear()
	c.buffers.clear()
}

// Metrics returns the number of cached resources and lookup counters.
func (c *ResourceCache) Metrics() CacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheMetrics{
		Images:     c.images.len(),
		ImageViews: c.views.len(),
		Buffers:    c.buffers.len(),
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
	}
}
