package graph

import (
	"context"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/rendergraph/device"
	"github.com/gogpu/rendergraph/internal/logging"
	"github.com/gogpu/rendergraph/resource"
)

// RenderpassArgs is passed to a node's render callback while its render
// pass is open. Pass is nil when the node declared no attachments.
type RenderpassArgs struct {
	Graph   *PreparedGraph
	Node    NodeID
	Encoder hal.CommandEncoder
	Pass    hal.RenderPassEncoder
	Meta    RenderTargetMeta
}

// ComputeArgs is passed to a node's compute callback. The callback may
// begin compute passes or record copies on Encoder.
type ComputeArgs struct {
	Graph   *PreparedGraph
	Node    NodeID
	Encoder hal.CommandEncoder
}

// PrepareArgs is passed to a node's prepare callback.
type PrepareArgs struct {
	Graph *PreparedGraph
	Node  NodeID
}

// RenderpassCallback records a node's draws.
type RenderpassCallback func(args *RenderpassArgs) error

// ComputeCallback records a node's work outside a render pass.
type ComputeCallback func(args *ComputeArgs) error

// PrepareCallback runs before recording, typically to write descriptor
// sets or upload data. Callbacks of different nodes may run concurrently.
type PrepareCallback func(ctx context.Context, args *PrepareArgs) error

// PrepareOption configures Prepare.
type PrepareOption func(*prepareConfig)

type prepareConfig struct {
	workers int
}

// WithWorkers sets how many prepare callbacks may run at once.
// If n <= 0, GOMAXPROCS is used.
func WithWorkers(n int) PrepareOption {
	return func(c *prepareConfig) {
		c.workers = n
	}
}

// PreparedGraph is a plan bound to the resources of one frame.
type PreparedGraph struct {
	dev     *device.Context
	plan    *Plan
	surface device.SurfaceInfo

	images  []*resource.Arc[*resource.Image]
	views   []*resource.Arc[*resource.ImageView]
	buffers []*resource.Arc[*resource.Buffer]

	encoder  hal.CommandEncoder
	commands hal.CommandBuffer
	released bool
}

// Prepare allocates the plan's resources from cache and runs every
// prepare callback. The returned graph holds a reference to each resource
// until Release.
func Prepare(ctx context.Context, dev *device.Context, plan *Plan, cache *ResourceCache, surface device.SurfaceInfo, opts ...PrepareOption) (*PreparedGraph, error) {
	cfg := prepareConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers <= 0 {
		cfg.workers = runtime.GOMAXPROCS(0)
	}
	for i, ext := range plan.ExternalImages {
		if v := ext.Resource.Get(); v == nil || v.Image == nil {
			return nil, configErrorf("prepare", ErrInvalidUsage, "external image %d: view has no image", i)
		}
	}
	for i, ext := range plan.ExternalBuffers {
		if b := ext.Resource.Get(); b == nil || b.Buffer == nil {
			return nil, configErrorf("prepare", ErrInvalidUsage, "external buffer %d has no backend buffer", i)
		}
	}

	buffers, err := cache.AllocateBuffers(plan)
	if err != nil {
		return nil, err
	}
	for _, ext := range plan.ExternalBuffers {
		buffers[ext.Physical] = ext.Resource
	}
	images, err := cache.AllocateImages(plan, surface)
	if err != nil {
		return nil, err
	}
	for _, ext := range plan.ExternalImages {
		images[ext.Physical] = ext.Resource.Get().Image
	}
	views, err := cache.AllocateImageViews(plan, images)
	if err != nil {
		return nil, err
	}

	g := &PreparedGraph{
		dev:     dev,
		plan:    plan,
		surface: surface,
		images:  cloneAll(images),
		views:   cloneAll(views),
		buffers: cloneAll(buffers),
	}
	if err := g.runPrepareCallbacks(ctx, cfg.workers); err != nil {
		g.Release()
		return nil, err
	}
	return g, nil
}

func cloneAll[T any](arcs []*resource.Arc[T]) []*resource.Arc[T] {
	out := make([]*resource.Arc[T], len(arcs))
	for i, a := range arcs {
		if a != nil {
			out[i] = a.Clone()
		}
	}
	return out
}

func (g *PreparedGraph) runPrepareCallbacks(ctx context.Context, workers int) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, pass := range g.plan.Passes {
		cb := g.plan.callbacks[pass.Node]
		if cb.prepare == nil {
			continue
		}
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := cb.prepare(ctx, &PrepareArgs{Graph: g, Node: pass.Node}); err != nil {
				return errors.Wrapf(err, "rendergraph: prepare node %q", cb.name)
			}
			return nil
		})
	}
	return eg.Wait()
}

// Plan returns the plan the graph was prepared from.
func (g *PreparedGraph) Plan() *Plan { return g.plan }

// Surface returns the surface the graph renders to.
func (g *PreparedGraph) Surface() device.SurfaceInfo { return g.surface }

// Image returns the image usage was assigned.
func (g *PreparedGraph) Image(usage ImageUsageID) (*resource.Arc[*resource.Image], bool) {
	id, ok := g.plan.imageUsageToPhysical[usage]
	if !ok {
		return nil, false
	}
	return g.images[id], true
}

// ImageView returns the view usage reads or writes through.
func (g *PreparedGraph) ImageView(usage ImageUsageID) (*resource.Arc[*resource.ImageView], bool) {
	id, ok := g.plan.imageUsageToView[usage]
	if !ok {
		return nil, false
	}
	return g.views[id], true
}

// Buffer returns the buffer usage was assigned.
func (g *PreparedGraph) Buffer(usage BufferUsageID) (*resource.Arc[*resource.Buffer], bool) {
	id, ok := g.plan.bufferUsageToPhysical[usage]
	if !ok {
		return nil, false
	}
	return g.buffers[id], true
}

// Execute records every pass into one command buffer. Submission is left
// to the caller; the command buffer is freed by Release.
func (g *PreparedGraph) Execute(ctx context.Context) (hal.CommandBuffer, error) {
	if g.released {
		return nil, errors.New("rendergraph: execute of a released graph")
	}
	if g.encoder != nil {
		return nil, errors.New("rendergraph: graph already executed")
	}
	enc, err := g.dev.Device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "rendergraph"})
	if err != nil {
		return nil, errors.Wrap(err, "rendergraph: create command encoder")
	}
	g.encoder = enc
	if err := enc.BeginEncoding("rendergraph"); err != nil {
		return nil, errors.Wrap(err, "rendergraph: begin encoding")
	}

	for i := range g.plan.Passes {
		if err := ctx.Err(); err != nil {
			enc.DiscardEncoding()
			return nil, err
		}
		if err := g.executePass(enc, &g.plan.Passes[i]); err != nil {
			enc.DiscardEncoding()
			return nil, err
		}
	}
	g.transitionImages(enc, g.plan.FinalImageBarriers)
	g.transitionBuffers(enc, g.plan.FinalBufferBarriers)

	cb, err := enc.EndEncoding()
	if err != nil {
		return nil, errors.Wrap(err, "rendergraph: end encoding")
	}
	g.commands = cb
	return cb, nil
}

func (g *PreparedGraph) executePass(enc hal.CommandEncoder, pass *Pass) error {
	g.transitionImages(enc, pass.PreBarriers)
	g.transitionBuffers(enc, pass.PreBuffers)

	cb := g.plan.callbacks[pass.Node]
	var err error
	switch {
	case pass.Kind == PassRender:
		rp := enc.BeginRenderPass(g.renderPassDescriptor(pass))
		if cb.render != nil {
			err = cb.render(&RenderpassArgs{Graph: g, Node: pass.Node, Encoder: enc, Pass: rp, Meta: pass.Meta})
		} else {
			logging.Logger().Warn("rendergraph: render pass has no render callback", "node", pass.Name)
		}
		rp.End()
	case cb.compute != nil:
		err = cb.compute(&ComputeArgs{Graph: g, Node: pass.Node, Encoder: enc})
	case cb.render != nil:
		err = cb.render(&RenderpassArgs{Graph: g, Node: pass.Node, Encoder: enc})
	default:
		logging.Logger().Warn("rendergraph: node has no callback", "node", pass.Name)
	}
	if err != nil {
		return errors.Wrapf(err, "rendergraph: execute node %q", pass.Name)
	}
	return nil
}

func toLoadOp(op LoadOp) gputypes.LoadOp {
	if op == LoadLoad {
		return gputypes.LoadOpLoad
	}
	return gputypes.LoadOpClear
}

func toStoreOp(op StoreOp) gputypes.StoreOp {
	if op == StoreStore {
		return gputypes.StoreOpStore
	}
	return gputypes.StoreOpDiscard
}

func (g *PreparedGraph) renderPassDescriptor(pass *Pass) *hal.RenderPassDescriptor {
	desc := &hal.RenderPassDescriptor{Label: pass.Name}
	for _, t := range pass.ColorTargets {
		a := hal.RenderPassColorAttachment{
			View:       g.views[t.View].Get().View,
			LoadOp:     toLoadOp(t.Load),
			StoreOp:    toStoreOp(t.Store),
			ClearValue: t.Clear,
		}
		if t.Resolve != nil {
			a.ResolveTarget = g.views[t.Resolve.View].Get().View
		}
		desc.ColorAttachments = append(desc.ColorAttachments, a)
	}
	if t := pass.DepthStencil; t != nil {
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              g.views[t.View].Get().View,
			DepthLoadOp:       toLoadOp(t.DepthLoad),
			DepthStoreOp:      toStoreOp(t.DepthStore),
			DepthClearValue:   t.Clear.Depth,
			DepthReadOnly:     t.Aspect&AspectDepth == 0,
			StencilLoadOp:     toLoadOp(t.StencilLoad),
			StencilStoreOp:    toStoreOp(t.StencilStore),
			StencilClearValue: t.Clear.Stencil,
			StencilReadOnly:   t.Aspect&AspectStencil == 0,
		}
	}
	return desc
}

func (g *PreparedGraph) transitionImages(enc hal.CommandEncoder, barriers []ImageBarrier) {
	if len(barriers) == 0 {
		return
	}
	out := make([]hal.TextureBarrier, 0, len(barriers))
	for _, b := range barriers {
		if b.QueueTransfer() {
			logging.Logger().Debug("rendergraph: image changes queue",
				"image", b.Image, "from", b.SrcQueue, "to", b.DstQueue)
		}
		out = append(out, hal.TextureBarrier{
			Texture: g.images[b.Image].Get().Texture,
			Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
			Usage: hal.TextureUsageTransition{
				OldUsage: b.Old.TextureUsage(),
				NewUsage: b.New.TextureUsage(),
			},
		})
	}
	enc.TransitionTextures(out)
}

func (g *PreparedGraph) transitionBuffers(enc hal.CommandEncoder, barriers []BufferBarrier) {
	if len(barriers) == 0 {
		return
	}
	out := make([]hal.BufferBarrier, 0, len(barriers))
	for _, b := range barriers {
		if b.QueueTransfer() {
			logging.Logger().Debug("rendergraph: buffer changes queue",
				"buffer", b.Buffer, "from", b.SrcQueue, "to", b.DstQueue)
		}
		out = append(out, hal.BufferBarrier{
			Buffer: g.buffers[b.Buffer].Get().Buffer,
			Usage: hal.BufferUsageTransition{
				OldUsage: b.Old.BufferUsage(),
				NewUsage: b.New.BufferUsage(),
			},
		})
	}
	enc.TransitionBuffers(out)
}

// Release frees the recorded command buffer and drops the graph's
// resource references. It must only be called once the GPU has finished
// the submission. Release is idempotent.
func (g *PreparedGraph) Release() {
	if g.released {
		return
	}
	g.released = true
	if g.commands != nil {
		g.dev.Device.FreeCommandBuffer(g.commands)
		g.commands = nil
	}
	if g.encoder != nil {
		g.encoder.Destroy()
		g.encoder = nil
	}
	releaseAll(g.views)
	releaseAll(g.images)
	releaseAll(g.buffers)
}

func releaseAll[T any](arcs []*resource.Arc[T]) {
	for i, a := range arcs {
		if a != nil {
			a.Release()
			arcs[i] = nil
		}
	}
}
