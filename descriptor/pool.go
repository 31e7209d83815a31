package descriptor

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/device"
	"github.com/gogpu/rendergraph/internal/logging"
	"github.com/gogpu/rendergraph/internal/slab"
	"github.com/gogpu/rendergraph/resource"
)

// ErrChunkAllocation marks failures to allocate a new pool chunk.
var ErrChunkAllocation = errors.New("descriptor: chunk allocation failed")

type pendingDrop struct {
	key       slab.Key
	liveUntil uint64
}

// Pool allocates descriptor sets for one layout.
//
// Pool is safe for concurrent use. All mutating operations take a single
// pool-wide lock; releasing a Set does not.
type Pool struct {
	mu           sync.Mutex
	ctx          *device.Context
	layout       *Layout
	cfg          Config
	slots        *slab.RawSlab[struct{}]
	chunks       []*chunk
	drops        *resource.DropQueue[slab.Key]
	pendingDrops []pendingDrop
	bufferSink   *resource.DropSink[*resource.Buffer]
}

// NewPool creates an empty pool. No backend objects are allocated until
// the first insert.
func NewPool(ctx *device.Context, layout *Layout, cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pool{
		ctx:        ctx,
		layout:     layout,
		cfg:        cfg,
		slots:      slab.New[struct{}](int(cfg.FirstChunkSize)),
		drops:      &resource.DropQueue[slab.Key]{},
		bufferSink: resource.NewBufferSink(ctx),
	}, nil
}

// Layout returns the layout this pool allocates for.
func (p *Pool) Layout() *Layout { return p.layout }

// InsertWithWriter allocates a set and writes it immediately. fn fills
// the write set; if it returns an error the slot is freed.
func (p *Pool) InsertWithWriter(fn func(w *WriteSet) error) (*Set, error) {
	w := NewWriteSet()
	if err := fn(w); err != nil {
		w.release()
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key, c, local, err := p.allocateSlotLocked()
	if err != nil {
		w.release()
		return nil, err
	}
	if err := c.write(p.ctx, p.layout, local, w); err != nil {
		w.release()
		c.free(p.ctx.Device, local)
		p.slots.Free(key)
		return nil, err
	}
	return p.newSet(key), nil
}

// InsertWithWriteSet allocates a set whose contents are written at the
// next FlushChanges. Until then BindGroup returns nil, so a set inserted
// after the frame's flush (for example from a graph prepare callback) is
// not usable until the following frame. Use InsertWithWriter for sets
// needed in the current frame.
func (p *Pool) InsertWithWriteSet(w *WriteSet) (*Set, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key, c, local, err := p.allocateSlotLocked()
	if err != nil {
		w.release()
		return nil, err
	}
	c.schedule(local, w)
	return p.newSet(key), nil
}

func (p *Pool) newSet(key slab.Key) *Set {
	return &Set{pool: p, key: key, arc: resource.NewArc(key, p.drops)}
}

// allocateSlotLocked takes a free slab key, growing the chunk list until
// the key is covered. Caller must hold p.mu.
func (p *Pool) allocateSlotLocked() (slab.Key, *chunk, uint32, error) {
	key := p.slots.Allocate(struct{}{})
	idx := p.cfg.chunkIndex(uint32(key))
	for idx >= len(p.chunks) {
		var first uint32
		if n := len(p.chunks); n > 0 {
			last := p.chunks[n-1]
			first = last.firstSlot + last.count
		}
		c, err := newChunk(p.ctx, p.layout, len(p.chunks), first, p.cfg.chunkSize(len(p.chunks)))
		if err != nil {
			p.slots.Free(key)
			return 0, nil, 0, err
		}
		logging.Logger().Debug("descriptor: allocated pool chunk",
			"layout", p.layout.Label(), "chunk", c.index, "slots", c.count)
		p.chunks = append(p.chunks, c)
	}
	c := p.chunks[idx]
	if uint32(key) < c.firstSlot || uint32(key) >= c.firstSlot+c.count {
		panic(errors.AssertionFailedf("descriptor: slot %d mapped to chunk %d covering [%d, %d)",
			key, idx, c.firstSlot, c.firstSlot+c.count))
	}
	return key, c, uint32(key) - c.firstSlot, nil
}

// FlushChanges must be called once per frame with a monotonically
// increasing frame number. It schedules released sets for reuse after
// MaxFramesInFlight frames, frees the ones whose window has passed, and
// applies pending writes.
func (p *Pool) FlushChanges(frame uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, key := range p.drops.Drain() {
		p.pendingDrops = append(p.pendingDrops, pendingDrop{
			key:       key,
			liveUntil: frame + p.cfg.MaxFramesInFlight,
		})
	}
	n := 0
	for _, d := range p.pendingDrops {
		if d.liveUntil > frame {
			break
		}
		c := p.chunks[p.cfg.chunkIndex(uint32(d.key))]
		c.free(p.ctx.Device, uint32(d.key)-c.firstSlot)
		p.slots.Free(d.key)
		n++
	}
	p.pendingDrops = p.pendingDrops[n:]

	var errs error
	for _, c := range p.chunks {
		errs = errors.CombineErrors(errs, c.update(p.ctx, p.layout))
	}
	return errors.CombineErrors(errs, p.bufferSink.OnFrameComplete())
}

// Len returns the number of allocated slots, including released slots
// still waiting out their frames in flight.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots.Len()
}

// ChunkCount returns the number of backend chunks allocated so far.
func (p *Pool) ChunkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks)
}

func (p *Pool) bindGroup(key slab.Key) hal.BindGroup {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.chunks[p.cfg.chunkIndex(uint32(key))]
	return c.slots[uint32(key)-c.firstSlot].bindGroup
}

// Destroy frees every slot and destroys all backend objects. Sets still
// referenced are reported and become invalid.
func (p *Pool) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	released := len(p.drops.Drain())
	if n := p.slots.Len() - len(p.pendingDrops) - released; n > 0 {
		logging.Logger().Warn("descriptor sets will leak", "layout", p.layout.Label(), "count", n)
	}
	p.pendingDrops = nil
	p.slots.Each(func(key slab.Key, _ *struct{}) {
		c := p.chunks[p.cfg.chunkIndex(uint32(key))]
		c.free(p.ctx.Device, uint32(key)-c.firstSlot)
	})
	p.slots = slab.New[struct{}](0)
	for _, c := range p.chunks {
		c.retireBuffers(p.bufferSink, p.ctx.Device)
	}
	p.chunks = nil
	return p.bufferSink.Destroy()
}

// Set is a reference-counted handle to one descriptor set.
type Set struct {
	pool *Pool
	key  slab.Key
	arc  *resource.Arc[slab.Key]
}

// BindGroup returns the backend bind group. It is nil until a set created
// with InsertWithWriteSet has been flushed.
func (s *Set) BindGroup() hal.BindGroup { return s.pool.bindGroup(s.key) }

// Slot returns the set's slab index.
func (s *Set) Slot() uint32 { return uint32(s.key) }

// Clone adds a reference.
func (s *Set) Clone() *Set {
	s.arc.Clone()
	return s
}

// Release drops a reference. The slot is recycled MaxFramesInFlight frames
// after the last release.
func (s *Set) Release() { s.arc.Release() }
