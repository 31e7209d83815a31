package view

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rendergraph/metrics"
)

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{
		"":      OutputTable,
		"table": OutputTable,
		"JSON":  OutputJSON,
		"yaml":  OutputYAML,
	} {
		got, err := ParseOutputFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseOutputFormat("toml")
	assert.Error(t, err)
}

func TestPlansTableShowsErrors(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf, OutputTable).Plans([]PlanReport{
		{File: "bad.yaml", Error: "image format unresolved"},
		{File: "good.yaml", Graph: "good", Passes: []PassReport{{Name: "opaque", Kind: "render", Queue: "graphics"}}},
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "bad.yaml: image format unresolved")
	assert.Contains(t, out, "opaque")
	assert.Contains(t, out, "Barriers")
}

func TestFramesYAML(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf, OutputYAML).Frames([]FrameReport{
		{Frame: 0, Submission: 1, Metrics: metrics.Snapshot{Passes: 2}},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "submission: 1")
	assert.Contains(t, buf.String(), "Passes: 2")
}
