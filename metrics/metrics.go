// Package metrics exports render graph statistics as Prometheus metrics.
//
// The renderer produces a Snapshot once per frame; Observe copies it into
// the collectors. Nothing here reads renderer state on scrape, so a scrape
// never contends with frame recording.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rendergraph"

// Snapshot is the per-frame state Observe publishes.
type Snapshot struct {
	CachedImages      int
	CachedImageViews  int
	CachedBuffers     int
	GraphicsPipelines int
	ShaderModules     int

	// DescriptorSets is the live set count per layout label.
	DescriptorSets map[string]int

	// DynResources is the live handle count per resource kind.
	DynResources map[string]int

	// Passes and Barriers describe the last executed plan.
	Passes   int
	Barriers int
}

// Collector holds the Prometheus collectors.
type Collector struct {
	cachedImages      prometheus.Gauge
	cachedImageViews  prometheus.Gauge
	cachedBuffers     prometheus.Gauge
	graphicsPipelines prometheus.Gauge
	shaderModules     prometheus.Gauge
	descriptorSets    *prometheus.GaugeVec
	dynResources      *prometheus.GaugeVec
	passes            prometheus.Gauge
	barriers          prometheus.Gauge
	frames            prometheus.Counter
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

// New returns unregistered collectors.
func New() *Collector {
	return &Collector{
		cachedImages:      gauge("cached_images", "Physical images held by the resource cache."),
		cachedImageViews:  gauge("cached_image_views", "Image views held by the resource cache."),
		cachedBuffers:     gauge("cached_buffers", "Physical buffers held by the resource cache."),
		graphicsPipelines: gauge("graphics_pipelines", "Graphics pipelines held by the pipeline cache."),
		shaderModules:     gauge("shader_modules", "Shader modules held by the shader cache."),
		descriptorSets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "descriptor_sets",
				Help:      "Live descriptor sets per layout.",
			},
			[]string{"layout"},
		),
		dynResources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dyn_resources",
				Help:      "Live dynamically allocated resources per kind.",
			},
			[]string{"kind"},
		),
		passes:   gauge("plan_passes", "Passes in the last executed plan."),
		barriers: gauge("plan_barriers", "Barriers in the last executed plan."),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames observed.",
		}),
	}
}

// MustRegister registers every collector with registry.
func (c *Collector) MustRegister(registry prometheus.Registerer) {
	registry.MustRegister(
		c.cachedImages,
		c.cachedImageViews,
		c.cachedBuffers,
		c.graphicsPipelines,
		c.shaderModules,
		c.descriptorSets,
		c.dynResources,
		c.passes,
		c.barriers,
		c.frames,
	)
}

// Observe publishes s and counts one frame.
func (c *Collector) Observe(s Snapshot) {
	c.cachedImages.Set(float64(s.CachedImages))
	c.cachedImageViews.Set(float64(s.CachedImageViews))
	c.cachedBuffers.Set(float64(s.CachedBuffers))
	c.graphicsPipelines.Set(float64(s.GraphicsPipelines))
	c.shaderModules.Set(float64(s.ShaderModules))
	c.passes.Set(float64(s.Passes))
	c.barriers.Set(float64(s.Barriers))

	// Layouts come and go; stale label values must not linger.
	c.descriptorSets.Reset()
	for layout, n := range s.DescriptorSets {
		c.descriptorSets.WithLabelValues(layout).Set(float64(n))
	}
	c.dynResources.Reset()
	for kind, n := range s.DynResources {
		c.dynResources.WithLabelValues(kind).Set(float64(n))
	}
	c.frames.Inc()
}
