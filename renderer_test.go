package rendergraph

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/device"
	"github.com/gogpu/rendergraph/graph"
	"github.com/gogpu/rendergraph/resource"
)

var testSurface = device.SurfaceInfo{
	Format:      gputypes.TextureFormatBGRA8Unorm,
	Width:       640,
	Height:      480,
	SampleCount: 1,
}

func createNoopDevice(t *testing.T) *device.Context {
	t.Helper()
	ctx, cleanup, err := device.OpenNoop(device.Options{MaxFramesInFlight: 2})
	if err != nil {
		t.Fatalf("OpenNoop() = %v", err)
	}
	t.Cleanup(cleanup)
	return ctx
}

// newTestRenderer returns a renderer and a swapchain view owned by it.
func newTestRenderer(t *testing.T) (*Renderer, *resource.Arc[*resource.ImageView]) {
	t.Helper()
	r, err := New(createNoopDevice(t), DefaultConfig())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	alloc := r.Resources()
	img, err := alloc.CreateImage(resource.ImageDesc{
		Label:  "swapchain",
		Format: testSurface.Format,
		Extent: testSurface.Extent(),
		Usage:  gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		t.Fatalf("CreateImage() = %v", err)
	}
	view, err := alloc.CreateImageView(img, resource.ViewDesc{Label: "swapchain", Format: testSurface.Format})
	if err != nil {
		t.Fatalf("CreateImageView() = %v", err)
	}
	img.Release()
	t.Cleanup(func() {
		view.Release()
		if err := r.Destroy(); err != nil {
			t.Errorf("Destroy() = %v", err)
		}
	})
	return r, view
}

// sceneGraph draws into the swapchain with a transient depth buffer.
func sceneGraph(r *Renderer, swapchain *resource.Arc[*resource.ImageView], draws *int) *graph.Builder {
	b := r.NewGraph()
	n := b.AddNode("scene", graph.QueueDefaultGraphics)
	color := b.CreateColorAttachment(n, 0, &gputypes.Color{A: 1},
		graph.ImageConstraint{Format: testSurface.Format}, graph.ViewOptions{})
	b.CreateDepthAttachment(n, &graph.DepthStencilClear{Depth: 1}, graph.AspectDepth,
		graph.ImageConstraint{Format: gputypes.TextureFormatDepth32Float}, graph.ViewOptions{})
	b.SetRenderpassCallback(n, func(*graph.RenderpassArgs) error {
		*draws++
		return nil
	})
	b.SetOutputImage(color, swapchain, graph.ImageSpec{
		Samples:    1,
		Format:     testSurface.Format,
		Usage:      gputypes.TextureUsageRenderAttachment,
		Extents:    graph.MatchSurface(),
		LayerCount: 1,
		MipCount:   1,
	}, graph.ViewOptions{}, graph.StatePresent)
	return b
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero frames in flight", func(c *Config) { c.MaxFramesInFlight = 0 }},
		{"zero pipeline persistence", func(c *Config) { c.PipelineFramesToPersist = 0 }},
		{"zero shader cache", func(c *Config) { c.ShaderCacheSize = 0 }},
		{"zero chunk size", func(c *Config) { c.Descriptor.FirstChunkSize = 0 }},
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	dev := createNoopDevice(t)
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("New(nil) = nil error")
	}
	cfg := DefaultConfig()
	cfg.MaxFramesInFlight = 1
	if _, err := New(dev, cfg); err == nil {
		t.Error("New() with fewer frames in flight than the device = nil error")
	}
}

func TestNewInheritsDescriptorFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFramesInFlight = 3
	cfg.Descriptor.MaxFramesInFlight = 0
	r, err := New(createNoopDevice(t), cfg)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	defer r.Destroy()
	if got := r.Config().Descriptor.MaxFramesInFlight; got != 3 {
		t.Errorf("Descriptor.MaxFramesInFlight = %d, want 3", got)
	}
}

func TestRendererReusesResourcesAcrossFrames(t *testing.T) {
	r, swapchain := newTestRenderer(t)
	ctx := context.Background()

	draws := 0
	var misses uint64
	for frame := range 3 {
		index, err := r.Execute(ctx, sceneGraph(r, swapchain, &draws), testSurface)
		if err != nil {
			t.Fatalf("frame %d: Execute() = %v", frame, err)
		}
		if index != uint64(frame+1) {
			t.Errorf("frame %d: submission index = %d, want %d", frame, index, frame+1)
		}
		m := r.ResourceCache().Metrics()
		if frame == 0 {
			misses = m.Misses
		} else if m.Misses != misses {
			t.Errorf("frame %d: cache misses = %d, want %d", frame, m.Misses, misses)
		}
		if err := r.OnFrameComplete(); err != nil {
			t.Fatalf("frame %d: OnFrameComplete() = %v", frame, err)
		}
	}

	if draws != 3 {
		t.Errorf("render callback ran %d times, want 3", draws)
	}
	if r.Frame() != 3 {
		t.Errorf("Frame() = %d, want 3", r.Frame())
	}
	if r.ResourceCache().Metrics().Hits == 0 {
		t.Error("expected cache hits after the first frame")
	}

	snap := r.Metrics()
	if snap.CachedImages != 1 {
		t.Errorf("CachedImages = %d, want 1 (the depth buffer)", snap.CachedImages)
	}
	if snap.Passes != 1 {
		t.Errorf("Passes = %d, want 1", snap.Passes)
	}
	if snap.DynResources["image"] == 0 {
		t.Error("DynResources[image] = 0, want live images")
	}
	if len(snap.DescriptorSets) != 0 {
		t.Errorf("DescriptorSets = %v, want empty", snap.DescriptorSets)
	}
}

func TestRendererPlanErrorIsConfigError(t *testing.T) {
	r, _ := newTestRenderer(t)

	b := r.NewGraph()
	n := b.AddNode("compute", graph.QueueDefaultGraphics)
	b.CreateStorageImage(n, graph.ImageConstraint{}, graph.ViewOptions{})
	b.SetNodeCanBeCulled(n, false)

	_, err := r.Execute(context.Background(), b, testSurface)
	if err == nil {
		t.Fatal("Execute() = nil error for an unresolved format")
	}
	if !graph.IsConfigError(err) {
		t.Errorf("IsConfigError(%v) = false", err)
	}
	if !errors.Is(err, graph.ErrUnresolvedFormat) {
		t.Errorf("errors.Is(%v, ErrUnresolvedFormat) = false", err)
	}
}

func TestRendererCallbackErrorReleasesGraph(t *testing.T) {
	r, swapchain := newTestRenderer(t)
	before := swapchain.RefCount()

	b := r.NewGraph()
	n := b.AddNode("broken", graph.QueueDefaultGraphics)
	color := b.CreateColorAttachment(n, 0, nil, graph.ImageConstraint{Format: testSurface.Format}, graph.ViewOptions{})
	boom := errors.New("boom")
	b.SetRenderpassCallback(n, func(*graph.RenderpassArgs) error { return boom })
	b.SetOutputImage(color, swapchain, graph.ImageSpec{
		Samples: 1, Format: testSurface.Format, Usage: gputypes.TextureUsageRenderAttachment,
		Extents: graph.MatchSurface(), LayerCount: 1, MipCount: 1,
	}, graph.ViewOptions{}, graph.StatePresent)

	if _, err := r.Execute(context.Background(), b, testSurface); !errors.Is(err, boom) {
		t.Fatalf("Execute() = %v, want %v", err, boom)
	}
	if got := swapchain.RefCount(); got != before {
		t.Errorf("swapchain refcount = %d after failed frame, want %d", got, before)
	}
}

func TestRendererDestroy(t *testing.T) {
	r, err := New(createNoopDevice(t), DefaultConfig())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := r.Destroy(); err != nil {
		t.Fatalf("Destroy() = %v", err)
	}
	if err := r.Destroy(); err != nil {
		t.Errorf("second Destroy() = %v", err)
	}
	if _, err := r.Execute(context.Background(), r.NewGraph(), testSurface); err == nil {
		t.Error("Execute() after Destroy = nil error")
	}
}
