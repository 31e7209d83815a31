package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rendergraph/graph"
)

const msaaGraph = `
name: msaa
surface: {format: BGRA8Unorm, width: 800, height: 600}
nodes:
  - name: scene
    images:
      - {op: color, name: color, slot: 0, format: BGRA8Unorm, samples: 4, clear: [0, 0, 0, 1]}
      - {op: depth, name: depth, format: Depth32Float, samples: 4, clear: [1, 0]}
outputs:
  - image: color
`

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    gputypes.TextureFormat
		wantErr bool
	}{
		{"", gputypes.TextureFormatUndefined, false},
		{"RGBA8Unorm", gputypes.TextureFormatRGBA8Unorm, false},
		{"bgra8unorm", gputypes.TextureFormatBGRA8Unorm, false},
		{"depth32float", gputypes.TextureFormatDepth32Float, false},
		{"unknown", gputypes.TextureFormatUndefined, true},
		{"RGBA9000", gputypes.TextureFormatUndefined, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("nodes: [{name: a, colour: red}]"))
	assert.Error(t, err)

	_, err = Parse([]byte("name: empty"))
	assert.ErrorContains(t, err, "no nodes")
}

func TestSurfaceInfoDefaults(t *testing.T) {
	g, err := Parse([]byte("surface: {width: 10, height: 20}\nnodes: [{name: a}]"))
	require.NoError(t, err)
	s, err := g.SurfaceInfo()
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, s.Format)
	assert.Equal(t, uint32(1), s.SampleCount)

	g.Surface.Width = 0
	_, err = g.SurfaceInfo()
	assert.Error(t, err)
}

func TestBuildMultisampledGraph(t *testing.T) {
	g, err := Parse([]byte(msaaGraph))
	require.NoError(t, err)
	b, err := Build(g, BuildOptions{})
	require.NoError(t, err)

	plan, err := graph.NewPlan(b)
	require.NoError(t, err)
	require.Len(t, plan.Passes, 1)
	pass := plan.Passes[0]
	require.Len(t, pass.ColorTargets, 1)
	assert.NotNil(t, pass.ColorTargets[0].Resolve, "multisampled output should be resolved")
	require.NotNil(t, pass.DepthStencil)
	assert.Equal(t, uint32(4), pass.Meta.SampleCount)
}

func TestBuildInstallsCallbacks(t *testing.T) {
	g, err := Parse([]byte(`
surface: {width: 64, height: 64}
nodes:
  - name: upload
    buffers:
      - {op: create, name: staging, size: 256}
  - name: copy
    buffers:
      - {op: copy, name: result, from: staging}
outputs:
  - buffer: result
`))
	require.NoError(t, err)

	b, err := Build(g, BuildOptions{Callbacks: true})
	require.NoError(t, err)
	plan, err := graph.NewPlan(b)
	require.NoError(t, err)
	assert.Len(t, plan.Passes, 2)
	for _, p := range plan.Passes {
		assert.Equal(t, graph.PassCallback, p.Kind, p.Name)
	}
	require.Len(t, plan.ExternalBuffers, 1)
	assert.Equal(t, uint64(256), plan.ExternalBuffers[0].Spec.Size)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown source",
			yaml: "surface: {width: 1, height: 1}\nnodes: [{name: a, images: [{op: sample, from: nope}]}]",
			want: `unknown image "nope"`,
		},
		{
			name: "missing source",
			yaml: "surface: {width: 1, height: 1}\nnodes: [{name: a, images: [{op: sample}]}]",
			want: "missing from",
		},
		{
			name: "unknown op",
			yaml: "surface: {width: 1, height: 1}\nnodes: [{name: a, images: [{op: color, name: c, format: RGBA8Unorm}, {op: paint, from: c}]}]",
			want: `unknown image op "paint"`,
		},
		{
			name: "bad clear",
			yaml: "surface: {width: 1, height: 1}\nnodes: [{name: a, images: [{op: color, clear: [1, 2]}]}]",
			want: "4 components",
		},
		{
			name: "duplicate node",
			yaml: "surface: {width: 1, height: 1}\nnodes: [{name: a}, {name: a}]",
			want: "duplicate node name",
		},
		{
			name: "unknown dependency",
			yaml: "surface: {width: 1, height: 1}\nnodes: [{name: a, dependsOn: [b]}]",
			want: `unknown dependency "b"`,
		},
		{
			name: "unknown output",
			yaml: "surface: {width: 1, height: 1}\nnodes: [{name: a}]\noutputs: [{image: x}]",
			want: `unknown image "x"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = Build(g, BuildOptions{})
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	write("b.yaml", msaaGraph)
	write("a.yml", "nodes: [")
	write("readme.md", "ignored")

	results, err := LoadAll([]string{dir})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, filepath.Join(dir, "a.yml"), results[0].Path)
	assert.Error(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.Equal(t, "msaa", results[1].Graph.Name)

	_, err = LoadAll([]string{filepath.Join(dir, "readme.md")})
	assert.ErrorContains(t, err, "must have a .yaml or .yml extension")

	_, err = LoadAll([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestLoadNamesGraphAfterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shadow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodes: [{name: a}]"), 0o600))
	g, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "shadow", g.Name)
}

func TestPlaceholders(t *testing.T) {
	view, err := Placeholders{}.Image("x", graph.ImageSpec{})
	require.NoError(t, err)
	assert.Nil(t, view.Get().View)
	buf, err := Placeholders{}.Buffer("y", graph.BufferSpec{})
	require.NoError(t, err)
	assert.Nil(t, buf.Get().Buffer)
}
