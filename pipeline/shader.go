package pipeline

import (
	"hash/fnv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/device"
	"github.com/gogpu/rendergraph/internal/cache"
	"github.com/gogpu/rendergraph/internal/logging"
	"github.com/gogpu/rendergraph/resource"
)

// Shader is a compiled shader module.
type Shader struct {
	Label  string
	Module hal.ShaderModule
	SPIRV  []uint32
}

type shaderKey struct {
	label  string
	source uint64
}

// ShaderStats is a snapshot of ShaderCache counters.
type ShaderStats struct {
	Modules   int
	Pending   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// ShaderOption configures a ShaderCache.
type ShaderOption func(*naga.CompileOptions)

// WithValidation enables or disables IR validation before SPIR-V
// generation. Validation is on by default.
func WithValidation(validate bool) ShaderOption {
	return func(o *naga.CompileOptions) {
		o.Validate = validate
	}
}

// WithDebugInfo emits SPIR-V debug names and line info.
func WithDebugInfo(debug bool) ShaderOption {
	return func(o *naga.CompileOptions) {
		o.Debug = debug
	}
}

// ShaderCache compiles and caches shader modules.
//
// ShaderCache is safe for concurrent use.
type ShaderCache struct {
	dev  *device.Context
	opts naga.CompileOptions
	lru  *cache.LRU[shaderKey, *Shader]

	mu   sync.Mutex
	sink *resource.DropSink[*Shader]
}

// NewShaderCache returns a cache holding at most capacity modules.
// Evicted modules are destroyed MaxFramesInFlight+1 frames later.
func NewShaderCache(dev *device.Context, capacity int, opts ...ShaderOption) *ShaderCache {
	c := &ShaderCache{
		dev:  dev,
		opts: naga.DefaultOptions(),
		sink: resource.NewDropSink(dev.Info.MaxFramesInFlight, func(s *Shader) error {
			dev.Device.DestroyShaderModule(s.Module)
			return nil
		}),
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	c.lru = cache.New[shaderKey, *Shader](capacity, func(_ shaderKey, s *Shader) {
		c.mu.Lock()
		c.sink.Retire(s)
		c.mu.Unlock()
	})
	return c
}

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string, opts naga.CompileOptions) ([]uint32, error) {
	b, err := naga.CompileWithOptions(source, opts)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: compile WGSL")
	}
	if len(b)%4 != 0 {
		return nil, errors.Newf("pipeline: SPIR-V length %d is not a multiple of 4", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}

func hashSource(source string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	return h.Sum64()
}

// Get returns the module compiled from source, compiling it on first use.
func (c *ShaderCache) Get(label, source string) (*Shader, error) {
	key := shaderKey{label: label, source: hashSource(source)}
	return c.lru.GetOrCreate(key, func() (*Shader, error) {
		words, err := CompileWGSL(source, c.opts)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline: shader %q", label)
		}
		module, err := c.dev.Device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  label,
			Source: hal.ShaderSource{SPIRV: words},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline: create shader module %q", label)
		}
		logging.Logger().Debug("pipeline: compiled shader", "label", label, "words", len(words))
		return &Shader{Label: label, Module: module, SPIRV: words}, nil
	})
}

// OnFrameComplete destroys evicted modules no frame can still use.
func (c *ShaderCache) OnFrameComplete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.OnFrameComplete()
}

// Stats returns the cache counters.
func (c *ShaderCache) Stats() ShaderStats {
	s := c.lru.Stats()
	c.mu.Lock()
	pending := c.sink.Len()
	c.mu.Unlock()
	return ShaderStats{
		Modules:   s.Len,
		Pending:   pending,
		Hits:      s.Hits,
		Misses:    s.Misses,
		Evictions: s.Evictions,
	}
}

// Destroy destroys every module, cached or pending. The device must be
// idle.
func (c *ShaderCache) Destroy() error {
	c.lru.Purge()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.Destroy()
}
