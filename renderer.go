package rendergraph

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/descriptor"
	"github.com/gogpu/rendergraph/device"
	"github.com/gogpu/rendergraph/graph"
	"github.com/gogpu/rendergraph/internal/logging"
	"github.com/gogpu/rendergraph/metrics"
	"github.com/gogpu/rendergraph/pipeline"
	"github.com/gogpu/rendergraph/resource"
)

// Renderer owns the per-device state a frame graph draws on: the resource
// cache, descriptor pools, pipeline and shader caches and the managers that
// defer destruction until the GPU is done with a resource.
//
// The typical frame loop is:
//
//	b := r.NewGraph()
//	// ... add nodes ...
//	if _, err := r.Execute(ctx, b, surface); err != nil {
//	    return err
//	}
//	// wait for the oldest frame in flight, then:
//	if err := r.OnFrameComplete(); err != nil {
//	    return err
//	}
//
// Execute and OnFrameComplete must not be called concurrently with each
// other or with Destroy. Accessors are safe to use from prepare callbacks.
type Renderer struct {
	dev *device.Context
	cfg Config

	dyn         *resource.DynSetManager
	cache       *graph.ResourceCache
	descriptors *descriptor.Allocator
	pipelines   *pipeline.Cache
	shaders     *pipeline.ShaderCache
	graphs      *resource.DropSink[*graph.PreparedGraph]

	mu        sync.Mutex
	frame     uint64
	lastStats graph.PlanStats
	destroyed bool
}

// New creates a Renderer on dev.
func New(dev *device.Context, cfg Config) (*Renderer, error) {
	if dev == nil {
		return nil, errors.New("rendergraph: device is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxFramesInFlight < dev.Info.MaxFramesInFlight {
		return nil, errors.Newf("rendergraph: MaxFramesInFlight %d is below the device's %d",
			cfg.MaxFramesInFlight, dev.Info.MaxFramesInFlight)
	}
	if cfg.Descriptor.MaxFramesInFlight == 0 {
		cfg.Descriptor.MaxFramesInFlight = uint64(cfg.MaxFramesInFlight)
	}

	descriptors, err := descriptor.NewAllocator(dev, cfg.Descriptor)
	if err != nil {
		return nil, errors.Wrap(err, "rendergraph: create descriptor allocator")
	}

	dyn := resource.NewDynSetManager(dev)
	r := &Renderer{
		dev:         dev,
		cfg:         cfg,
		dyn:         dyn,
		cache:       graph.NewResourceCache(dyn, cfg.MaxFramesInFlight),
		descriptors: descriptors,
		pipelines:   pipeline.NewCache(dev, cfg.PipelineFramesToPersist),
		shaders:     pipeline.NewShaderCache(dev, cfg.ShaderCacheSize, pipeline.WithValidation(cfg.ValidateShaders)),
		graphs: resource.NewDropSink(cfg.MaxFramesInFlight, func(g *graph.PreparedGraph) error {
			g.Release()
			return nil
		}),
	}
	logging.Logger().Debug("rendergraph: renderer created",
		"maxFramesInFlight", cfg.MaxFramesInFlight,
		"shaderCacheSize", cfg.ShaderCacheSize)
	return r, nil
}

// Device returns the device the renderer records on.
func (r *Renderer) Device() *device.Context { return r.dev }

// Config returns the configuration the renderer was created with.
func (r *Renderer) Config() Config { return r.cfg }

// ResourceCache returns the cache graph resources are allocated from.
func (r *Renderer) ResourceCache() *graph.ResourceCache { return r.cache }

// Descriptors returns the descriptor set allocator.
func (r *Renderer) Descriptors() *descriptor.Allocator { return r.descriptors }

// Pipelines returns the graphics pipeline cache.
func (r *Renderer) Pipelines() *pipeline.Cache { return r.pipelines }

// Shaders returns the shader module cache.
func (r *Renderer) Shaders() *pipeline.ShaderCache { return r.shaders }

// Resources returns the manager resources created outside the graph
// should be inserted into, so their destruction is deferred like the
// graph's own.
func (r *Renderer) Resources() *resource.DynSetAllocator { return r.dyn.CreateAllocator() }

// Frame returns the number of completed frames.
func (r *Renderer) Frame() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

// NewGraph returns an empty builder for one frame.
func (r *Renderer) NewGraph() *graph.Builder {
	return graph.NewBuilder()
}

// Execute plans b, binds the plan to cached resources, records it and
// submits the command buffer. It returns the queue's submission index.
//
// Descriptor writes queued since the previous frame are flushed before any
// prepare callback runs. Prepare callbacks that need a descriptor set in
// the same frame must create it with InsertWithWriter. The builder is
// consumed and must not be reused.
func (r *Renderer) Execute(ctx context.Context, b *graph.Builder, surface device.SurfaceInfo) (uint64, error) {
	r.mu.Lock()
	frame, destroyed := r.frame, r.destroyed
	r.mu.Unlock()
	if destroyed {
		return 0, errors.New("rendergraph: execute on a destroyed renderer")
	}

	if err := r.descriptors.FlushChanges(frame); err != nil {
		return 0, errors.Wrap(err, "rendergraph: flush descriptor writes")
	}

	plan, err := graph.NewPlan(b)
	if err != nil {
		return 0, err
	}
	stats := plan.Stats()
	logging.Logger().Debug("rendergraph: planned frame",
		"frame", frame,
		"passes", stats.Passes,
		"culled", stats.CulledNodes,
		"physicalImages", stats.PhysicalImages,
		"barriers", stats.Barriers)

	workers := 1
	if r.cfg.ParallelPrepare {
		workers = 0
	}
	prepared, err := graph.Prepare(ctx, r.dev, plan, r.cache, surface, graph.WithWorkers(workers))
	if err != nil {
		return 0, err
	}

	cb, err := prepared.Execute(ctx)
	if err != nil {
		prepared.Release()
		return 0, err
	}
	index, err := r.dev.Queue.Submit([]hal.CommandBuffer{cb})
	if err != nil {
		prepared.Release()
		return 0, errors.Wrap(err, "rendergraph: submit")
	}
	r.graphs.Retire(prepared)

	r.mu.Lock()
	r.lastStats = stats
	r.mu.Unlock()
	return index, nil
}

// OnFrameComplete must be called once per frame after the GPU has finished
// the oldest frame in flight. It releases graphs and resources whose
// retention window has passed.
func (r *Renderer) OnFrameComplete() error {
	r.mu.Lock()
	r.frame++
	r.mu.Unlock()

	err := r.graphs.OnFrameComplete()
	r.cache.OnFrameComplete()
	err = errors.CombineErrors(err, r.pipelines.OnFrameComplete())
	err = errors.CombineErrors(err, r.shaders.OnFrameComplete())
	err = errors.CombineErrors(err, r.dyn.OnFrameComplete())
	return err
}

// LastPlanStats returns the statistics of the most recently executed plan.
func (r *Renderer) LastPlanStats() graph.PlanStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastStats
}

// Metrics returns a snapshot suitable for metrics.Collector.Observe.
func (r *Renderer) Metrics() metrics.Snapshot {
	cache := r.cache.Metrics()
	dyn := r.dyn.Metrics()
	stats := r.LastPlanStats()
	return metrics.Snapshot{
		CachedImages:      cache.Images,
		CachedImageViews:  cache.ImageViews,
		CachedBuffers:     cache.Buffers,
		GraphicsPipelines: r.pipelines.Metrics().Pipelines,
		ShaderModules:     r.shaders.Stats().Modules,
		DescriptorSets:    r.descriptors.Metrics(),
		DynResources: map[string]int{
			"image":      dyn.ImageCount,
			"image_view": dyn.ImageViewCount,
			"buffer":     dyn.BufferCount,
		},
		Passes:   stats.Passes,
		Barriers: stats.Barriers,
	}
}

// Destroy waits for the device to go idle and releases everything the
// renderer owns. Destroy is idempotent.
func (r *Renderer) Destroy() error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return nil
	}
	r.destroyed = true
	r.mu.Unlock()

	err := errors.Wrap(r.dev.Device.WaitIdle(), "rendergraph: wait idle")
	err = errors.CombineErrors(err, r.graphs.Destroy())
	r.cache.Clear()
	err = errors.CombineErrors(err, r.pipelines.Destroy())
	err = errors.CombineErrors(err, r.shaders.Destroy())
	err = errors.CombineErrors(err, r.descriptors.Destroy())
	err = errors.CombineErrors(err, r.dyn.Destroy())
	return err
}
