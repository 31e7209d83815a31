package rendergraph

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rendergraph/descriptor"
)

// Config configures a Renderer.
//
// Example:
//
//	cfg := rendergraph.DefaultConfig()
//	cfg.ShaderCacheSize = 256
//	r, err := rendergraph.New(dev, cfg)
type Config struct {
	// MaxFramesInFlight is how many submitted frames may still be executing
	// on the GPU. It must not be smaller than the device's value, otherwise
	// resources would be destroyed while still in use.
	MaxFramesInFlight int `json:"maxFramesInFlight"`

	// Descriptor sizes the descriptor set pools. A zero
	// Descriptor.MaxFramesInFlight inherits MaxFramesInFlight.
	Descriptor descriptor.Config `json:"descriptor"`

	// PipelineFramesToPersist is how many frames an unused graphics
	// pipeline is kept.
	PipelineFramesToPersist int `json:"pipelineFramesToPersist"`

	// ShaderCacheSize is the number of compiled shader modules kept.
	ShaderCacheSize int `json:"shaderCacheSize"`

	// ValidateShaders runs the shader compiler's validator on every module
	// before code generation.
	ValidateShaders bool `json:"validateShaders"`

	// ParallelPrepare runs node prepare callbacks on all available CPUs.
	// When false they run one at a time in pass order.
	ParallelPrepare bool `json:"parallelPrepare"`
}

// DefaultConfig returns the configuration New is usually called with.
func DefaultConfig() Config {
	return Config{
		MaxFramesInFlight:       2,
		Descriptor:              descriptor.DefaultConfig(),
		PipelineFramesToPersist: 3,
		ShaderCacheSize:         64,
		ValidateShaders:         true,
		ParallelPrepare:         true,
	}
}

// Validate reports values a Renderer cannot work with.
func (c Config) Validate() error {
	if c.MaxFramesInFlight <= 0 {
		return errors.Newf("rendergraph: MaxFramesInFlight must be positive, got %d", c.MaxFramesInFlight)
	}
	if c.PipelineFramesToPersist <= 0 {
		return errors.Newf("rendergraph: PipelineFramesToPersist must be positive, got %d", c.PipelineFramesToPersist)
	}
	if c.ShaderCacheSize <= 0 {
		return errors.Newf("rendergraph: ShaderCacheSize must be positive, got %d", c.ShaderCacheSize)
	}
	return errors.Wrap(c.Descriptor.Validate(), "rendergraph: descriptor config")
}
