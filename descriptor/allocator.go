package descriptor

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rendergraph/device"
)

// Allocator owns the layouts and pools of one device.
type Allocator struct {
	mu      sync.Mutex
	ctx     *device.Context
	cfg     Config
	layouts []*Layout
	pools   map[*Layout]*Pool
	order   []*Pool
}

// NewAllocator creates an allocator. cfg.MaxFramesInFlight defaults to the
// device's value when zero.
func NewAllocator(ctx *device.Context, cfg Config) (*Allocator, error) {
	if cfg.MaxFramesInFlight == 0 {
		cfg.MaxFramesInFlight = uint64(ctx.Info.MaxFramesInFlight)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Allocator{
		ctx:   ctx,
		cfg:   cfg,
		pools: make(map[*Layout]*Pool),
	}, nil
}

// CreateLayout creates a layout owned by the allocator.
func (a *Allocator) CreateLayout(desc LayoutDesc) (*Layout, error) {
	l, err := NewLayout(a.ctx, desc)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.layouts = append(a.layouts, l)
	a.mu.Unlock()
	return l, nil
}

// Pool returns the pool for layout, creating it on first use.
func (a *Allocator) Pool(layout *Layout) (*Pool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.pools[layout]; ok {
		return p, nil
	}
	p, err := NewPool(a.ctx, layout, a.cfg)
	if err != nil {
		return nil, err
	}
	a.pools[layout] = p
	a.order = append(a.order, p)
	return p, nil
}

// InsertWithWriter is shorthand for Pool(layout).InsertWithWriter(fn).
func (a *Allocator) InsertWithWriter(layout *Layout, fn func(w *WriteSet) error) (*Set, error) {
	p, err := a.Pool(layout)
	if err != nil {
		return nil, err
	}
	return p.InsertWithWriter(fn)
}

// InsertWithWriteSet is shorthand for Pool(layout).InsertWithWriteSet(w).
// The set has no bind group until the next FlushChanges.
func (a *Allocator) InsertWithWriteSet(layout *Layout, w *WriteSet) (*Set, error) {
	p, err := a.Pool(layout)
	if err != nil {
		return nil, err
	}
	return p.InsertWithWriteSet(w)
}

func (a *Allocator) snapshot() []*Pool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Pool(nil), a.order...)
}

// FlushChanges flushes every pool.
func (a *Allocator) FlushChanges(frame uint64) error {
	var errs error
	for _, p := range a.snapshot() {
		errs = errors.CombineErrors(errs, p.FlushChanges(frame))
	}
	return errs
}

// Metrics returns the allocated set count per layout label.
func (a *Allocator) Metrics() map[string]int {
	out := make(map[string]int)
	for _, p := range a.snapshot() {
		out[p.layout.Label()] += p.Len()
	}
	return out
}

// Destroy destroys every pool, then every layout.
func (a *Allocator) Destroy() error {
	var errs error
	for _, p := range a.snapshot() {
		errs = errors.CombineErrors(errs, p.Destroy())
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range a.layouts {
		l.destroy(a.ctx.Device)
	}
	a.layouts = nil
	clear(a.pools)
	a.order = nil
	return errs
}
