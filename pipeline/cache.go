package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/device"
	"github.com/gogpu/rendergraph/graph"
	"github.com/gogpu/rendergraph/internal/logging"
	"github.com/gogpu/rendergraph/resource"
)

// ErrNilDescriptor is returned when a create function yields no
// descriptor.
var ErrNilDescriptor = errors.New("pipeline: nil graphics descriptor")

// Key identifies one pass of one material, e.g. {"sprite", "opaque"}.
type Key struct {
	Material string
	Pass     string
}

// GraphicsDesc is everything about a graphics pipeline except its
// attachment formats and sample count, which come from the render pass.
type GraphicsDesc struct {
	Label  string
	Layout hal.PipelineLayout

	Vertex        *Shader
	VertexEntry   string
	VertexBuffers []gputypes.VertexBufferLayout

	// Fragment may be nil for depth-only pipelines.
	Fragment      *Shader
	FragmentEntry string
	Blend         *gputypes.BlendState

	Primitive    gputypes.PrimitiveState
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction
}

// CreateFunc builds the descriptor for a pipeline missing from the cache.
type CreateFunc func() (*GraphicsDesc, error)

type graphicsKey struct {
	key  Key
	meta uint64
}

type graphicsEntry struct {
	pipeline  hal.RenderPipeline
	keepUntil atomic.Uint64
}

// CacheMetrics is a snapshot of Cache counters.
type CacheMetrics struct {
	Pipelines int
	Pending   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache holds graphics pipelines keyed by material pass and render-target
// meta. An entry not requested for FramesToPersist frames is evicted.
//
// Cache is safe for concurrent use. Lookups take a read lock.
type Cache struct {
	dev             *device.Context
	framesToPersist uint64

	mu      sync.RWMutex
	frame   uint64
	entries map[graphicsKey]*graphicsEntry
	sink    *resource.DropSink[hal.RenderPipeline]

	hits              atomic.Uint64
	misses, evictions uint64
}

// NewCache returns an empty cache. framesToPersist below one is treated as
// one.
func NewCache(dev *device.Context, framesToPersist int) *Cache {
	return &Cache{
		dev:             dev,
		framesToPersist: uint64(max(framesToPersist, 1)),
		entries:         make(map[graphicsKey]*graphicsEntry),
		sink: resource.NewDropSink(dev.Info.MaxFramesInFlight, func(p hal.RenderPipeline) error {
			dev.Device.DestroyRenderPipeline(p)
			return nil
		}),
	}
}

// GetOrCreateGraphics returns the pipeline for key in passes described by
// meta. create is called at most once per (key, meta) while the entry is
// cached.
func (c *Cache) GetOrCreateGraphics(key Key, meta graph.RenderTargetMeta, create CreateFunc) (hal.RenderPipeline, error) {
	k := graphicsKey{key: key, meta: meta.Hash()}

	c.mu.RLock()
	if e, ok := c.entries[k]; ok {
		e.keepUntil.Store(c.frame + c.framesToPersist)
		c.hits.Add(1)
		c.mu.RUnlock()
		return e.pipeline, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[k]; ok {
		e.keepUntil.Store(c.frame + c.framesToPersist)
		c.hits.Add(1)
		return e.pipeline, nil
	}
	c.misses++

	desc, err := create()
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline: create %s/%s", key.Material, key.Pass)
	}
	if desc == nil {
		return nil, errors.Wrapf(ErrNilDescriptor, "pipeline: create %s/%s", key.Material, key.Pass)
	}
	p, err := c.dev.Device.CreateRenderPipeline(renderPipelineDescriptor(desc, meta))
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline: create render pipeline %q", desc.Label)
	}
	e := &graphicsEntry{pipeline: p}
	e.keepUntil.Store(c.frame + c.framesToPersist)
	c.entries[k] = e
	logging.Logger().Debug("pipeline: created graphics pipeline",
		"material", key.Material, "pass", key.Pass, "meta", meta.Hash())
	return p, nil
}

func renderPipelineDescriptor(desc *GraphicsDesc, meta graph.RenderTargetMeta) *hal.RenderPipelineDescriptor {
	out := &hal.RenderPipelineDescriptor{
		Label:     desc.Label,
		Layout:    desc.Layout,
		Primitive: desc.Primitive,
		Multisample: gputypes.MultisampleState{
			Count: max(meta.SampleCount, 1),
			Mask:  ^uint64(0),
		},
	}
	if desc.Vertex != nil {
		out.Vertex = hal.VertexState{
			Module:     desc.Vertex.Module,
			EntryPoint: desc.VertexEntry,
			Buffers:    desc.VertexBuffers,
		}
	}
	if desc.Fragment != nil {
		targets := make([]gputypes.ColorTargetState, len(meta.ColorFormats))
		for i, f := range meta.ColorFormats {
			targets[i] = gputypes.ColorTargetState{
				Format:    f,
				Blend:     desc.Blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}
		}
		out.Fragment = &hal.FragmentState{
			Module:     desc.Fragment.Module,
			EntryPoint: desc.FragmentEntry,
			Targets:    targets,
		}
	}
	if meta.DepthFormat != gputypes.TextureFormatUndefined {
		out.DepthStencil = &hal.DepthStencilState{
			Format:            meta.DepthFormat,
			DepthWriteEnabled: desc.DepthWrite,
			DepthCompare:      desc.DepthCompare,
			StencilReadMask:   0xFFFFFFFF,
			StencilWriteMask:  0xFFFFFFFF,
		}
	}
	return out
}

// OnFrameComplete advances the frame counter, evicts entries past their
// persistence window and destroys evicted pipelines no frame can still
// use.
func (c *Cache) OnFrameComplete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frame++
	for k, e := range c.entries {
		if e.keepUntil.Load() <= c.frame {
			c.sink.Retire(e.pipeline)
			delete(c.entries, k)
			c.evictions++
		}
	}
	return c.sink.OnFrameComplete()
}

// Metrics returns the cache counters.
func (c *Cache) Metrics() CacheMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheMetrics{
		Pipelines: len(c.entries),
		Pending:   c.sink.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Destroy destroys every pipeline. The device must be idle.
func (c *Cache) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		c.sink.Retire(e.pipeline)
		delete(c.entries, k)
	}
	return c.sink.Destroy()
}
