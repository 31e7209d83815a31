// Package view renders rgplan results as tables, JSON or YAML.
package view

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/rodaine/table"
	"sigs.k8s.io/yaml"

	"github.com/gogpu/rendergraph/graph"
	"github.com/gogpu/rendergraph/metrics"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

// ParseOutputFormat accepts table, json or yaml. The empty string is table.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "":
		return OutputTable, nil
	case OutputTable, OutputJSON, OutputYAML:
		return f, nil
	default:
		return "", errors.Newf("unknown output format %q (want table, json or yaml)", s)
	}
}

var (
	highlight = color.RGB(50, 108, 229).SprintfFunc()
	failure   = color.RGB(229, 50, 50).SprintfFunc()
	headerFmt = color.New(color.FgGreen, color.Bold).SprintfFunc()
	columnFmt = color.New(color.FgYellow).SprintfFunc()
)

// PassReport describes one compiled pass.
type PassReport struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Queue    string   `json:"queue"`
	Targets  []string `json:"targets,omitempty"`
	Depth    string   `json:"depth,omitempty"`
	Barriers []string `json:"barriers,omitempty"`
}

// ImageReport describes one physical image.
type ImageReport struct {
	ID       int    `json:"id"`
	Format   string `json:"format"`
	Samples  uint32 `json:"samples"`
	Extents  string `json:"extents"`
	Usage    string `json:"usage"`
	External bool   `json:"external,omitempty"`
}

// BufferReport describes one physical buffer.
type BufferReport struct {
	ID       int    `json:"id"`
	Size     uint64 `json:"size"`
	Usage    string `json:"usage"`
	External bool   `json:"external,omitempty"`
}

// PlanReport is the printable form of a plan, or of the error that kept a
// file from planning.
type PlanReport struct {
	File    string          `json:"file"`
	Graph   string          `json:"graph,omitempty"`
	Error   string          `json:"error,omitempty"`
	Stats   graph.PlanStats `json:"stats"`
	Passes  []PassReport    `json:"passes,omitempty"`
	Images  []ImageReport   `json:"images,omitempty"`
	Buffers []BufferReport  `json:"buffers,omitempty"`
}

func describeBarriers(p *graph.Pass) []string {
	var out []string
	for _, b := range p.PreBarriers {
		s := fmt.Sprintf("image %d %s->%s", b.Image, b.Old, b.New)
		if b.QueueTransfer() {
			s += fmt.Sprintf(" (%s->%s)", b.SrcQueue, b.DstQueue)
		}
		out = append(out, s)
	}
	for _, b := range p.PreBuffers {
		s := fmt.Sprintf("buffer %d %s->%s", b.Buffer, b.Old, b.New)
		if b.QueueTransfer() {
			s += fmt.Sprintf(" (%s->%s)", b.SrcQueue, b.DstQueue)
		}
		out = append(out, s)
	}
	return out
}

// NewPlanReport summarizes plan.
func NewPlanReport(file, name string, plan *graph.Plan) PlanReport {
	r := PlanReport{File: file, Graph: name, Stats: plan.Stats()}
	for i := range plan.Passes {
		p := &plan.Passes[i]
		pr := PassReport{
			Name:     p.Name,
			Kind:     p.Kind.String(),
			Queue:    p.Queue.String(),
			Barriers: describeBarriers(p),
		}
		for _, t := range p.ColorTargets {
			s := fmt.Sprintf("image %d %s/%s", t.Image, t.Load, t.Store)
			if t.Resolve != nil {
				s += fmt.Sprintf(" resolve->%d", t.Resolve.Image)
			}
			pr.Targets = append(pr.Targets, s)
		}
		if d := p.DepthStencil; d != nil {
			pr.Depth = fmt.Sprintf("image %d %s/%s", d.Image, d.DepthLoad, d.DepthStore)
		}
		r.Passes = append(r.Passes, pr)
	}

	externalImages := make(map[graph.PhysicalImageID]bool)
	for _, e := range plan.ExternalImages {
		externalImages[e.Physical] = true
	}
	for i, spec := range plan.PhysicalImages {
		r.Images = append(r.Images, ImageReport{
			ID:       i,
			Format:   spec.Format.String(),
			Samples:  spec.Samples,
			Extents:  spec.Extents.String(),
			Usage:    fmt.Sprintf("%#x", uint64(spec.Usage)),
			External: externalImages[graph.PhysicalImageID(i)],
		})
	}
	externalBuffers := make(map[graph.PhysicalBufferID]bool)
	for _, e := range plan.ExternalBuffers {
		externalBuffers[e.Physical] = true
	}
	for i, spec := range plan.PhysicalBuffers {
		r.Buffers = append(r.Buffers, BufferReport{
			ID:       i,
			Size:     spec.Size,
			Usage:    fmt.Sprintf("%#x", uint64(spec.Usage)),
			External: externalBuffers[graph.PhysicalBufferID(i)],
		})
	}
	return r
}

// FrameReport is the state of a simulated renderer after one frame.
type FrameReport struct {
	Frame      int              `json:"frame"`
	Submission uint64           `json:"submission"`
	Metrics    metrics.Snapshot `json:"metrics"`
}

// Printer writes reports in one output format.
type Printer struct {
	w      io.Writer
	format OutputFormat
}

// NewPrinter returns a printer writing to w.
func NewPrinter(w io.Writer, format OutputFormat) *Printer {
	return &Printer{w: w, format: format}
}

func (p *Printer) encode(v any) error {
	switch p.format {
	case OutputJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "marshal yaml")
		}
		_, err = p.w.Write(data)
		return err
	default:
		return errors.Newf("no encoder for %q", p.format)
	}
}

func (p *Printer) newTable(columns ...any) table.Table {
	return table.New(columns...).
		WithWriter(p.w).
		WithHeaderFormatter(headerFmt).
		WithFirstColumnFormatter(columnFmt)
}

// Plans prints plan reports.
func (p *Printer) Plans(reports []PlanReport) error {
	if p.format != OutputTable {
		return p.encode(reports)
	}
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		if r.Error != "" {
			fmt.Fprintln(p.w, failure("Error!"), r.File+":", r.Error)
			continue
		}
		fmt.Fprintln(p.w, highlight("%s", r.Graph), fmt.Sprintf("(%s) %d passes, %d culled, %d barriers",
			r.File, r.Stats.Passes, r.Stats.CulledNodes, r.Stats.Barriers))

		passes := p.newTable("#", "Pass", "Kind", "Queue", "Targets", "Depth", "Barriers")
		for j, pass := range r.Passes {
			passes.AddRow(j, pass.Name, pass.Kind, pass.Queue,
				strings.Join(pass.Targets, ", "), pass.Depth, len(pass.Barriers))
		}
		passes.Print()

		if len(r.Images) > 0 {
			fmt.Fprintln(p.w)
			images := p.newTable("Image", "Format", "Samples", "Extents", "Usage", "External")
			for _, img := range r.Images {
				images.AddRow(img.ID, img.Format, img.Samples, img.Extents, img.Usage, img.External)
			}
			images.Print()
		}
		if len(r.Buffers) > 0 {
			fmt.Fprintln(p.w)
			buffers := p.newTable("Buffer", "Size", "Usage", "External")
			for _, buf := range r.Buffers {
				buffers.AddRow(buf.ID, buf.Size, buf.Usage, buf.External)
			}
			buffers.Print()
		}
	}
	return nil
}

// Frames prints simulated frame reports.
func (p *Printer) Frames(reports []FrameReport) error {
	if p.format != OutputTable {
		return p.encode(reports)
	}
	tbl := p.newTable("Frame", "Submission", "Images", "Views", "Buffers", "Pipelines", "Shaders", "Live images", "Passes", "Barriers")
	for _, r := range reports {
		m := r.Metrics
		tbl.AddRow(r.Frame, r.Submission, m.CachedImages, m.CachedImageViews, m.CachedBuffers,
			m.GraphicsPipelines, m.ShaderModules, m.DynResources["image"], m.Passes, m.Barriers)
	}
	tbl.Print()
	return nil
}
