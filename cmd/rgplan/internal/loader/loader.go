// Package loader reads render graph descriptions from YAML files and
// replays them onto a graph.Builder.
//
// A description names every image and buffer version it produces, so later
// operations refer to them by name:
//
//	name: deferred
//	surface: {format: BGRA8Unorm, width: 1280, height: 720}
//	nodes:
//	  - name: gbuffer
//	    images:
//	      - {op: color, name: albedo, slot: 0, format: RGBA8Unorm, clear: [0, 0, 0, 1]}
//	      - {op: depth, name: depth, format: Depth32Float, clear: [1]}
//	  - name: lighting
//	    images:
//	      - {op: sample, from: albedo}
//	      - {op: color, name: lit, slot: 0, format: BGRA8Unorm}
//	outputs:
//	  - image: lit
package loader

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"sigs.k8s.io/yaml"

	"github.com/gogpu/rendergraph/device"
	"github.com/gogpu/rendergraph/graph"
	"github.com/gogpu/rendergraph/resource"
)

// GraphDesc is one frame graph.
type GraphDesc struct {
	Name    string       `json:"name"`
	Surface SurfaceDesc  `json:"surface"`
	Nodes   []NodeDesc   `json:"nodes"`
	Outputs []OutputDesc `json:"outputs,omitempty"`
}

// SurfaceDesc is the surface the graph renders to.
type SurfaceDesc struct {
	Format  string `json:"format"`
	Width   uint32 `json:"width"`
	Height  uint32 `json:"height"`
	Samples uint32 `json:"samples,omitempty"`
}

// NodeDesc is one node and the resources it touches, in declaration order.
type NodeDesc struct {
	Name string `json:"name"`
	// Queue selects an additional queue. Unset means the graphics queue.
	Queue     *uint32    `json:"queue,omitempty"`
	Keep      bool       `json:"keep,omitempty"`
	DependsOn []string   `json:"dependsOn,omitempty"`
	Images    []ImageOp  `json:"images,omitempty"`
	Buffers   []BufferOp `json:"buffers,omitempty"`
}

// ImageOp is a single image access.
//
// Op is one of color, readColor, modifyColor, depth, readDepth,
// modifyDepth, resolve, sample, storage, readStorage, modifyStorage, copy.
type ImageOp struct {
	Op      string    `json:"op"`
	Name    string    `json:"name,omitempty"`
	From    string    `json:"from,omitempty"`
	Slot    int       `json:"slot,omitempty"`
	Format  string    `json:"format,omitempty"`
	Samples uint32    `json:"samples,omitempty"`
	Width   uint32    `json:"width,omitempty"`
	Height  uint32    `json:"height,omitempty"`
	Clear   []float64 `json:"clear,omitempty"`
	// Aspect is depth, stencil or both. Empty means depth.
	Aspect string `json:"aspect,omitempty"`
}

// BufferOp is a single buffer access.
//
// Op is one of create, storage, vertex, index, indirect, uniform,
// readStorage, modifyStorage, copy.
type BufferOp struct {
	Op   string `json:"op"`
	Name string `json:"name,omitempty"`
	From string `json:"from,omitempty"`
	Size uint64 `json:"size,omitempty"`
}

// OutputDesc hands a named image or buffer to the caller after the frame.
type OutputDesc struct {
	Image  string `json:"image,omitempty"`
	Buffer string `json:"buffer,omitempty"`
}

// Result is the outcome of loading one file.
type Result struct {
	Path  string
	Graph *GraphDesc
	Err   error
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

func collectYAMLFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to access path")
	}
	if !info.IsDir() {
		if !isYAML(path) {
			return nil, errors.Newf("file %q must have a .yaml or .yml extension", path)
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read directory")
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && isYAML(entry.Name()) {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// LoadAll loads every YAML file in paths. Directories contribute their
// .yaml and .yml files. Per-file failures are reported in the results;
// the returned error is only set when a path cannot be read at all.
func LoadAll(paths []string) ([]Result, error) {
	var results []Result
	for _, p := range paths {
		files, err := collectYAMLFiles(p)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			g, err := Load(f)
			results = append(results, Result{Path: f, Graph: g, Err: err})
		}
	}
	return results, nil
}

// Load reads a single description file.
func Load(path string) (*GraphDesc, error) {
	if !isYAML(path) {
		return nil, errors.Newf("file %q must have a .yaml or .yml extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}
	g, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if g.Name == "" {
		g.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return g, nil
}

// Parse decodes a description. Unknown fields are rejected.
func Parse(data []byte) (*GraphDesc, error) {
	var g GraphDesc
	if err := yaml.UnmarshalStrict(data, &g); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal graph description")
	}
	if len(g.Nodes) == 0 {
		return nil, errors.New("graph description has no nodes")
	}
	return &g, nil
}

// ParseFormat looks a texture format up by its gputypes name, ignoring
// case. The empty string is TextureFormatUndefined.
func ParseFormat(name string) (gputypes.TextureFormat, error) {
	if name == "" {
		return gputypes.TextureFormatUndefined, nil
	}
	for f := gputypes.TextureFormatR8Unorm; f <= gputypes.TextureFormatASTC12x12UnormSrgb; f++ {
		if n := f.String(); n != "Unknown" && strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return gputypes.TextureFormatUndefined, errors.Newf("unknown texture format %q", name)
}

// SurfaceInfo converts the surface description.
func (g *GraphDesc) SurfaceInfo() (device.SurfaceInfo, error) {
	format, err := ParseFormat(g.Surface.Format)
	if err != nil {
		return device.SurfaceInfo{}, errors.Wrap(err, "surface")
	}
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatBGRA8Unorm
	}
	s := device.SurfaceInfo{
		Format:      format,
		Width:       g.Surface.Width,
		Height:      g.Surface.Height,
		SampleCount: max(g.Surface.Samples, 1),
	}
	if s.Width == 0 || s.Height == 0 {
		return device.SurfaceInfo{}, errors.Newf("surface size %dx%d must be positive", s.Width, s.Height)
	}
	return s, nil
}

// Externals supplies the caller-owned resources outputs are bound to.
type Externals interface {
	Image(name string, spec graph.ImageSpec) (*resource.Arc[*resource.ImageView], error)
	Buffer(name string, spec graph.BufferSpec) (*resource.Arc[*resource.Buffer], error)
}

// Placeholders are externals with no backend objects. They are enough to
// plan a graph but not to prepare it.
type Placeholders struct{}

func (Placeholders) Image(string, graph.ImageSpec) (*resource.Arc[*resource.ImageView], error) {
	return resource.NewArc(&resource.ImageView{}, nil), nil
}

func (Placeholders) Buffer(string, graph.BufferSpec) (*resource.Arc[*resource.Buffer], error) {
	return resource.NewArc(&resource.Buffer{}, nil), nil
}

// BuildOptions configures Build.
type BuildOptions struct {
	Externals Externals
	// Callbacks installs callbacks so that the graph can be executed. Nodes
	// with attachments get Render, or a no-op when Render is nil; other
	// nodes get a no-op compute callback.
	Callbacks bool
	Render    graph.RenderpassCallback
}

type builder struct {
	b       *graph.Builder
	surface device.SurfaceInfo
	nodes   map[string]graph.NodeID
	images  map[string]graph.ImageUsageID
	buffers map[string]graph.BufferUsageID
	sizes   map[string]uint64
}

// Build replays g onto a new builder.
func Build(g *GraphDesc, opts BuildOptions) (*graph.Builder, error) {
	surface, err := g.SurfaceInfo()
	if err != nil {
		return nil, err
	}
	if opts.Externals == nil {
		opts.Externals = Placeholders{}
	}
	st := &builder{
		b:       graph.NewBuilder(),
		surface: surface,
		nodes:   make(map[string]graph.NodeID, len(g.Nodes)),
		images:  make(map[string]graph.ImageUsageID),
		buffers: make(map[string]graph.BufferUsageID),
		sizes:   make(map[string]uint64),
	}
	for i := range g.Nodes {
		if err := st.addNode(&g.Nodes[i], opts); err != nil {
			return nil, errors.Wrapf(err, "node %q", g.Nodes[i].Name)
		}
	}
	for _, out := range g.Outputs {
		if err := st.addOutput(out, opts.Externals); err != nil {
			return nil, err
		}
	}
	return st.b, nil
}

func (st *builder) addNode(n *NodeDesc, opts BuildOptions) error {
	if n.Name == "" {
		return errors.New("node has no name")
	}
	if _, dup := st.nodes[n.Name]; dup {
		return errors.New("duplicate node name")
	}
	queue := graph.QueueDefaultGraphics
	if n.Queue != nil {
		queue = graph.QueueIndex(*n.Queue)
	}
	id := st.b.AddNode(n.Name, queue)
	st.nodes[n.Name] = id
	if n.Keep {
		st.b.SetNodeCanBeCulled(id, false)
	}
	for _, dep := range n.DependsOn {
		other, ok := st.nodes[dep]
		if !ok {
			return errors.Newf("unknown dependency %q", dep)
		}
		st.b.AddExplicitDependency(id, other)
	}

	attachments := false
	for i, op := range n.Images {
		isAttachment, err := st.imageOp(id, op)
		if err != nil {
			return errors.Wrapf(err, "image op %d (%s)", i, op.Op)
		}
		attachments = attachments || isAttachment
	}
	for i, op := range n.Buffers {
		if err := st.bufferOp(id, op); err != nil {
			return errors.Wrapf(err, "buffer op %d (%s)", i, op.Op)
		}
	}

	if opts.Callbacks {
		if attachments {
			render := opts.Render
			if render == nil {
				render = func(*graph.RenderpassArgs) error { return nil }
			}
			st.b.SetRenderpassCallback(id, render)
		} else {
			st.b.SetComputeCallback(id, func(*graph.ComputeArgs) error { return nil })
		}
	}
	return nil
}

func (st *builder) constraint(op ImageOp) (graph.ImageConstraint, error) {
	format, err := ParseFormat(op.Format)
	if err != nil {
		return graph.ImageConstraint{}, err
	}
	c := graph.ImageConstraint{Format: format, Samples: op.Samples}
	if op.Width != 0 || op.Height != 0 {
		c.Extents = graph.CustomExtents(op.Width, op.Height, 1)
	}
	return c, nil
}

func (st *builder) source(op ImageOp) (graph.ImageUsageID, error) {
	if op.From == "" {
		return 0, errors.New("missing from")
	}
	src, ok := st.images[op.From]
	if !ok {
		return 0, errors.Newf("unknown image %q", op.From)
	}
	return src, nil
}

func (st *builder) bind(name string, usage graph.ImageUsageID) {
	if name != "" {
		st.images[name] = usage
	}
}

func clearColor(v []float64) (*gputypes.Color, error) {
	switch len(v) {
	case 0:
		return nil, nil
	case 4:
		return &gputypes.Color{R: v[0], G: v[1], B: v[2], A: v[3]}, nil
	default:
		return nil, errors.Newf("color clear needs 4 components, got %d", len(v))
	}
}

func clearDepth(v []float64) (*graph.DepthStencilClear, error) {
	switch len(v) {
	case 0:
		return nil, nil
	case 1:
		return &graph.DepthStencilClear{Depth: float32(v[0])}, nil
	case 2:
		return &graph.DepthStencilClear{Depth: float32(v[0]), Stencil: uint32(v[1])}, nil
	default:
		return nil, errors.Newf("depth clear needs 1 or 2 components, got %d", len(v))
	}
}

func parseAspect(s string) (graph.DepthAspect, error) {
	switch strings.ToLower(s) {
	case "", "depth":
		return graph.AspectDepth, nil
	case "stencil":
		return graph.AspectStencil, nil
	case "both":
		return graph.AspectDepth | graph.AspectStencil, nil
	default:
		return 0, errors.Newf("unknown aspect %q", s)
	}
}

// imageOp applies op and reports whether it declared a render attachment.
func (st *builder) imageOp(id graph.NodeID, op ImageOp) (bool, error) {
	c, err := st.constraint(op)
	if err != nil {
		return false, err
	}
	view := graph.ViewOptions{}
	b := st.b

	switch op.Op {
	case "color":
		clr, err := clearColor(op.Clear)
		if err != nil {
			return false, err
		}
		st.bind(op.Name, b.CreateColorAttachment(id, op.Slot, clr, c, view))
		return true, nil
	case "resolve":
		st.bind(op.Name, b.CreateResolveAttachment(id, op.Slot, c, view))
		return true, nil
	case "storage":
		st.bind(op.Name, b.CreateStorageImage(id, c, view))
		return false, nil
	case "depth", "readDepth", "modifyDepth":
		aspect, err := parseAspect(op.Aspect)
		if err != nil {
			return false, err
		}
		if op.Op == "depth" {
			clr, err := clearDepth(op.Clear)
			if err != nil {
				return false, err
			}
			st.bind(op.Name, b.CreateDepthAttachment(id, clr, aspect, c, view))
			return true, nil
		}
		src, err := st.source(op)
		if err != nil {
			return false, err
		}
		if op.Op == "readDepth" {
			b.ReadDepthAttachment(id, src, aspect, c, view)
			return true, nil
		}
		clr, err := clearDepth(op.Clear)
		if err != nil {
			return false, err
		}
		st.bind(op.Name, b.ModifyDepthAttachment(id, src, clr, aspect, c, view))
		return true, nil
	}

	src, err := st.source(op)
	if err != nil {
		return false, err
	}
	switch op.Op {
	case "readColor":
		b.ReadColorAttachment(id, src, op.Slot, c, view)
		return true, nil
	case "modifyColor":
		clr, err := clearColor(op.Clear)
		if err != nil {
			return false, err
		}
		st.bind(op.Name, b.ModifyColorAttachment(id, src, op.Slot, clr, c, view))
		return true, nil
	case "sample":
		b.SampleImage(id, src, c, view)
	case "readStorage":
		b.ReadStorageImage(id, src, c, view)
	case "modifyStorage":
		st.bind(op.Name, b.ModifyStorageImage(id, src, c, view))
	case "copy":
		st.bind(op.Name, b.CopyImage(id, src, c))
	default:
		return false, errors.Newf("unknown image op %q", op.Op)
	}
	return false, nil
}

func (st *builder) bufferOp(id graph.NodeID, op BufferOp) error {
	c := graph.BufferConstraint{Size: op.Size}
	b := st.b
	bind := func(u graph.BufferUsageID) {
		if op.Name == "" {
			return
		}
		st.buffers[op.Name] = u
		st.sizes[op.Name] = op.Size
		if op.Size == 0 && op.From != "" {
			st.sizes[op.Name] = st.sizes[op.From]
		}
	}

	switch op.Op {
	case "create":
		bind(b.CreateBuffer(id, c))
		return nil
	case "storage":
		bind(b.CreateStorageBuffer(id, c))
		return nil
	}

	if op.From == "" {
		return errors.New("missing from")
	}
	src, ok := st.buffers[op.From]
	if !ok {
		return errors.Newf("unknown buffer %q", op.From)
	}
	switch op.Op {
	case "vertex":
		b.ReadVertexBuffer(id, src, c)
	case "index":
		b.ReadIndexBuffer(id, src, c)
	case "indirect":
		b.ReadIndirectBuffer(id, src, c)
	case "uniform":
		b.ReadUniformBuffer(id, src, c)
	case "readStorage":
		b.ReadStorageBuffer(id, src, c)
	case "modifyStorage":
		bind(b.ModifyStorageBuffer(id, src, c))
	case "copy":
		bind(b.CopyBuffer(id, src, c))
	default:
		return errors.Newf("unknown buffer op %q", op.Op)
	}
	return nil
}

func (st *builder) addOutput(out OutputDesc, ext Externals) error {
	switch {
	case out.Image != "":
		usage, ok := st.images[out.Image]
		if !ok {
			return errors.Newf("output: unknown image %q", out.Image)
		}
		spec := graph.ImageSpec{
			Samples:    1,
			Format:     st.surface.Format,
			Usage:      gputypes.TextureUsageRenderAttachment,
			Extents:    graph.MatchSurface(),
			LayerCount: 1,
			MipCount:   1,
		}
		view, err := ext.Image(out.Image, spec)
		if err != nil {
			return errors.Wrapf(err, "output %q", out.Image)
		}
		st.b.SetOutputImage(usage, view, spec, graph.ViewOptions{}, graph.StatePresent)
	case out.Buffer != "":
		usage, ok := st.buffers[out.Buffer]
		if !ok {
			return errors.Newf("output: unknown buffer %q", out.Buffer)
		}
		spec := graph.BufferSpec{Size: st.sizes[out.Buffer], Usage: gputypes.BufferUsageCopySrc}
		buf, err := ext.Buffer(out.Buffer, spec)
		if err != nil {
			return errors.Wrapf(err, "output %q", out.Buffer)
		}
		st.b.SetOutputBuffer(usage, buf, spec, graph.StateCopySrc)
	default:
		return errors.New("output names neither an image nor a buffer")
	}
	return nil
}
