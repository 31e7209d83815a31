package command_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/cmd/rgplan/internal/command"
	"github.com/gogpu/rendergraph/cmd/rgplan/internal/view"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	orig := rendergraph.Logger()
	t.Cleanup(func() { rendergraph.SetLogger(orig) })

	cmd := command.NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := command.NewRootCommand()

	assert.Equal(t, "rgplan", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
	assert.True(t, cmd.CompletionOptions.DisableDefaultCmd)

	flag := cmd.PersistentFlags().Lookup("output")
	require.NotNil(t, flag)
	assert.Equal(t, "table", flag.DefValue)
	assert.Equal(t, flag, cmd.PersistentFlags().ShorthandLookup("o"))

	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"plan", "simulate"}, names)
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := run(t, "plan", "-o", "xml", "testdata/deferred.yaml")
	assert.ErrorContains(t, err, `unknown output format "xml"`)
}

func TestPlanTable(t *testing.T) {
	out, err := run(t, "plan", "testdata/deferred.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "deferred")
	assert.Contains(t, out, "2 passes, 1 culled")
	assert.Contains(t, out, "gbuffer")
	assert.Contains(t, out, "lighting")
	assert.NotContains(t, out, "debug")
	assert.Contains(t, out, "Depth32Float")
}

func TestPlanJSON(t *testing.T) {
	out, err := run(t, "plan", "-o", "json", "testdata/deferred.yaml", "testdata/particles.yml")
	require.NoError(t, err)

	var reports []view.PlanReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 2)

	deferred := reports[0]
	assert.Equal(t, "deferred", deferred.Graph)
	require.Len(t, deferred.Passes, 2)
	assert.Equal(t, "gbuffer", deferred.Passes[0].Name)
	assert.Equal(t, "lighting", deferred.Passes[1].Name)
	assert.Len(t, deferred.Passes[0].Targets, 2)
	assert.NotEmpty(t, deferred.Passes[0].Depth)

	particles := reports[1]
	assert.Equal(t, "particles", particles.Graph)
	require.Len(t, particles.Passes, 2)
	assert.Equal(t, "simulate", particles.Passes[0].Name)
	require.Len(t, particles.Buffers, 1)
	assert.Equal(t, uint64(4096), particles.Buffers[0].Size)
}

func TestPlanYAML(t *testing.T) {
	out, err := run(t, "plan", "--output", "yaml", "testdata/particles.yml")
	require.NoError(t, err)

	var reports []view.PlanReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].Stats.Passes)
}

func TestPlanDirectoryReportsFailures(t *testing.T) {
	out, err := run(t, "plan", "-o", "json", "testdata")
	assert.ErrorContains(t, err, "1 of 3 graphs failed to plan")

	var reports []view.PlanReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 3)
	assert.Equal(t, "broken", reports[0].Graph)
	assert.Contains(t, reports[0].Error, "format")
	assert.Empty(t, reports[1].Error)
	assert.Empty(t, reports[2].Error)
}

func TestPlanRequiresArgs(t *testing.T) {
	_, err := run(t, "plan")
	assert.Error(t, err)
}

func TestSimulate(t *testing.T) {
	out, err := run(t, "simulate", "-o", "json", "--frames", "4", "--validate-shaders=false", "testdata/deferred.yaml")
	require.NoError(t, err)

	var frames []view.FrameReport
	require.NoError(t, json.Unmarshal([]byte(out), &frames))
	require.Len(t, frames, 4)
	for i, f := range frames {
		assert.Equal(t, i, f.Frame)
		assert.Equal(t, uint64(i+1), f.Submission)
		assert.Equal(t, 2, f.Metrics.Passes)
	}
	last := frames[3].Metrics
	assert.Equal(t, frames[0].Metrics.CachedImages, last.CachedImages, "cache should settle after the first frame")
	assert.Equal(t, 2, last.GraphicsPipelines)
	assert.Equal(t, 1, last.ShaderModules)
}

func TestSimulateMetrics(t *testing.T) {
	out, err := run(t, "simulate", "--frames", "2", "--metrics", "--validate-shaders=false", "testdata/particles.yml")
	require.NoError(t, err)
	assert.Contains(t, out, "rendergraph_frames_total 2")
	assert.Contains(t, out, "rendergraph_cached_buffers 1")
}

func TestSimulateRejectsBadFrames(t *testing.T) {
	_, err := run(t, "simulate", "--frames", "0", "testdata/particles.yml")
	assert.ErrorContains(t, err, "--frames must be positive")
}

func TestSimulatePlanError(t *testing.T) {
	_, err := run(t, "simulate", "testdata/broken.yaml")
	assert.ErrorContains(t, err, "frame 0")
}

func TestDebugLogsToStderr(t *testing.T) {
	orig := rendergraph.Logger()
	t.Cleanup(func() { rendergraph.SetLogger(orig) })

	cmd := command.NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"simulate", "--debug", "--frames", "1", "--validate-shaders=false", "testdata/particles.yml"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, errOut.String(), "planned frame")
}
