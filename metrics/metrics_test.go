package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorObserve(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := New()
	c.MustRegister(registry)

	c.Observe(Snapshot{
		CachedImages:      3,
		CachedBuffers:     1,
		GraphicsPipelines: 2,
		DescriptorSets:    map[string]int{"material": 5, "frame": 1},
		DynResources:      map[string]int{"image": 4},
		Passes:            6,
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(c.cachedImages))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.graphicsPipelines))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.descriptorSets.WithLabelValues("material")))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.passes))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.frames))

	expected := `
# HELP rendergraph_dyn_resources Live dynamically allocated resources per kind.
# TYPE rendergraph_dyn_resources gauge
rendergraph_dyn_resources{kind="image"} 4
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "rendergraph_dyn_resources"))
}

func TestCollectorDropsStaleLabels(t *testing.T) {
	c := New()
	c.Observe(Snapshot{DescriptorSets: map[string]int{"old": 1, "kept": 2}})
	c.Observe(Snapshot{DescriptorSets: map[string]int{"kept": 3}})

	assert.Equal(t, 1, testutil.CollectAndCount(c.descriptorSets))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.descriptorSets.WithLabelValues("kept")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.frames))
}

func TestMustRegisterTwicePanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := New()
	c.MustRegister(registry)
	assert.Panics(t, func() { c.MustRegister(registry) })
}
