package command

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/cmd/rgplan/internal/loader"
	"github.com/gogpu/rendergraph/cmd/rgplan/internal/view"
	"github.com/gogpu/rendergraph/device"
	"github.com/gogpu/rendergraph/graph"
	"github.com/gogpu/rendergraph/metrics"
	"github.com/gogpu/rendergraph/pipeline"
	"github.com/gogpu/rendergraph/resource"
)

// drawWGSL is the shader every simulated render pass binds.
const drawWGSL = `
@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(f32(index), 0.0, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 1.0, 1.0);
}
`

type simulateOptions struct {
	frames          int
	framesInFlight  int
	metrics         bool
	validateShaders bool
}

func newSimulateCommand(opts *Options) *cobra.Command {
	sim := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate FILE",
		Short: "Run a graph description for several frames on a no-op device",
		Long: "Build and execute the graph once per frame against a device that accepts\n" +
			"every command without touching a GPU, and print how the resource,\n" +
			"pipeline and shader caches evolve.",
		Example: "  rgplan simulate deferred.yaml --frames 5",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sim.frames <= 0 {
				return errors.Newf("--frames must be positive, got %d", sim.frames)
			}
			g, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			collector := metrics.New()
			collector.MustRegister(reg)

			reports, err := simulate(cmd, g, sim, collector)
			if err != nil {
				return err
			}
			if err := opts.printer(cmd).Frames(reports); err != nil {
				return err
			}
			if sim.metrics {
				return writeMetrics(cmd, reg)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&sim.frames, "frames", 3, "Number of frames to run")
	cmd.Flags().IntVar(&sim.framesInFlight, "frames-in-flight", device.DefaultMaxFramesInFlight, "Frames the simulated device keeps in flight")
	cmd.Flags().BoolVar(&sim.metrics, "metrics", false, "Print the Prometheus metrics after the last frame")
	cmd.Flags().BoolVar(&sim.validateShaders, "validate-shaders", true, "Validate shaders before compiling them")
	return cmd
}

func simulate(cmd *cobra.Command, g *loader.GraphDesc, sim simulateOptions, collector *metrics.Collector) (reports []view.FrameReport, err error) {
	surface, err := g.SurfaceInfo()
	if err != nil {
		return nil, err
	}
	dev, cleanup, err := device.OpenNoop(device.Options{MaxFramesInFlight: sim.framesInFlight})
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cfg := rendergraph.DefaultConfig()
	cfg.MaxFramesInFlight = dev.Info.MaxFramesInFlight
	cfg.ValidateShaders = sim.validateShaders
	r, err := rendergraph.New(dev, cfg)
	if err != nil {
		return nil, err
	}
	ext := newDeviceExternals(r.Resources(), surface)
	defer func() {
		ext.release()
		err = errors.CombineErrors(err, r.Destroy())
	}()

	reports = make([]view.FrameReport, 0, sim.frames)
	for frame := range sim.frames {
		b, err := loader.Build(g, loader.BuildOptions{
			Externals: ext,
			Callbacks: true,
			Render:    drawFullscreen(r),
		})
		if err != nil {
			return nil, err
		}
		index, err := r.Execute(cmd.Context(), b, surface)
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d", frame)
		}
		// The no-op queue completes work as soon as it is submitted.
		if err := r.OnFrameComplete(); err != nil {
			return nil, errors.Wrapf(err, "frame %d", frame)
		}
		snap := r.Metrics()
		collector.Observe(snap)
		reports = append(reports, view.FrameReport{Frame: frame, Submission: index, Metrics: snap})
	}
	return reports, nil
}

// drawFullscreen binds a cached pipeline and issues one draw in every
// render pass.
func drawFullscreen(r *rendergraph.Renderer) graph.RenderpassCallback {
	return func(args *graph.RenderpassArgs) error {
		if args.Pass == nil {
			return nil
		}
		name := "pass"
		if i, ok := args.Graph.Plan().PassIndex(args.Node); ok {
			name = args.Graph.Plan().Passes[i].Name
		}
		p, err := r.Pipelines().GetOrCreateGraphics(pipeline.Key{Material: "rgplan", Pass: name}, args.Meta,
			func() (*pipeline.GraphicsDesc, error) {
				shader, err := r.Shaders().Get("rgplan-draw", drawWGSL)
				if err != nil {
					return nil, err
				}
				desc := &pipeline.GraphicsDesc{
					Label:       name,
					Vertex:      shader,
					VertexEntry: "vs_main",
				}
				if len(args.Meta.ColorFormats) > 0 {
					desc.Fragment = shader
					desc.FragmentEntry = "fs_main"
				}
				return desc, nil
			})
		if err != nil {
			return err
		}
		args.Pass.SetPipeline(p)
		args.Pass.Draw(3, 1, 0, 0)
		return nil
	}
}

// deviceExternals creates the output images and buffers a description
// names once and hands the same ones out every frame.
type deviceExternals struct {
	alloc   *resource.DynSetAllocator
	surface device.SurfaceInfo
	views   map[string]*resource.Arc[*resource.ImageView]
	buffers map[string]*resource.Arc[*resource.Buffer]
}

func newDeviceExternals(alloc *resource.DynSetAllocator, surface device.SurfaceInfo) *deviceExternals {
	return &deviceExternals{
		alloc:   alloc,
		surface: surface,
		views:   make(map[string]*resource.Arc[*resource.ImageView]),
		buffers: make(map[string]*resource.Arc[*resource.Buffer]),
	}
}

func (e *deviceExternals) Image(name string, spec graph.ImageSpec) (*resource.Arc[*resource.ImageView], error) {
	if v, ok := e.views[name]; ok {
		return v, nil
	}
	img, err := e.alloc.CreateImage(resource.ImageDesc{
		Label:       name,
		Format:      spec.Format,
		Extent:      spec.Extents.Resolve(e.surface),
		SampleCount: spec.Samples,
		Usage:       spec.Usage,
	})
	if err != nil {
		return nil, err
	}
	defer img.Release()
	v, err := e.alloc.CreateImageView(img, resource.ViewDesc{Label: name, Format: spec.Format})
	if err != nil {
		return nil, err
	}
	e.views[name] = v
	return v, nil
}

func (e *deviceExternals) Buffer(name string, spec graph.BufferSpec) (*resource.Arc[*resource.Buffer], error) {
	if b, ok := e.buffers[name]; ok {
		return b, nil
	}
	b, err := e.alloc.CreateBuffer(resource.BufferDesc{Label: name, Size: spec.Size, Usage: spec.Usage})
	if err != nil {
		return nil, err
	}
	e.buffers[name] = b
	return b, nil
}

func (e *deviceExternals) release() {
	for _, v := range e.views {
		v.Release()
	}
	for _, b := range e.buffers {
		b.Release()
	}
}

func writeMetrics(cmd *cobra.Command, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	w := cmd.OutOrStdout()
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}
	return nil
}
