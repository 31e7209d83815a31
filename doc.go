// Package rendergraph compiles a frame's rendering work into ordered passes
// and records them on a GPU device.
//
// # Overview
//
// A frame is described as a graph: nodes declare which images and buffers
// they create, read or modify, and a planner turns that description into
// ordered passes with load and store ops, physical resource assignments and
// the state transitions between passes. Nodes nothing depends on are
// culled; intermediate images whose lifetimes do not overlap share storage.
//
// # Quick Start
//
//	r, err := rendergraph.New(dev, rendergraph.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer r.Destroy()
//
//	b := r.NewGraph()
//	n := b.AddNode("opaque", graph.QueueDefaultGraphics)
//	color := b.CreateColorAttachment(n, 0, &gputypes.Color{A: 1},
//	    graph.ImageConstraint{Format: gputypes.TextureFormatBGRA8Unorm}, graph.ViewOptions{})
//	b.SetRenderpassCallback(n, drawScene)
//	b.SetOutputImage(color, swapchainView, swapchainSpec, graph.ViewOptions{}, graph.StatePresent)
//
//	if _, err := r.Execute(ctx, b, surface); err != nil {
//	    return err
//	}
//	// once the frame's fence has signalled:
//	err = r.OnFrameComplete()
//
// # Packages
//
// The work is split across sub-packages:
//   - graph: builder, planner, resource cache and executor
//   - resource: reference-counted handles and deferred destruction
//   - descriptor: chunked bind group pools
//   - pipeline: graphics pipeline and shader module caches
//   - device: the HAL device and queue the graph records on
//   - metrics: Prometheus collectors fed from Renderer.Metrics
//
// # Logging
//
// rendergraph is silent by default. SetLogger installs a *slog.Logger that
// every sub-package shares.
package rendergraph
