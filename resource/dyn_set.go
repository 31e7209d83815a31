package resource

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rendergraph/device"
)

// DynMetrics counts live dynamic resources per kind.
type DynMetrics struct {
	ImageCount     int
	ImageViewCount int
	BufferCount    int
}

// DynSetAllocator creates images, image views and buffers whose handles
// are owned by a DynSetManager.
type DynSetAllocator struct {
	ctx     *device.Context
	images  *DynAllocator[*Image]
	views   *DynAllocator[*ImageView]
	buffers *DynAllocator[*Buffer]
}

// InsertImage wraps an existing image.
func (a *DynSetAllocator) InsertImage(img *Image) *Arc[*Image] { return a.images.Insert(img) }

// InsertImageView wraps an existing image view.
func (a *DynSetAllocator) InsertImageView(v *ImageView) *Arc[*ImageView] { return a.views.Insert(v) }

// InsertBuffer wraps an existing buffer.
func (a *DynSetAllocator) InsertBuffer(b *Buffer) *Arc[*Buffer] { return a.buffers.Insert(b) }

// CreateImage creates a texture and returns a handle to it.
func (a *DynSetAllocator) CreateImage(desc ImageDesc) (*Arc[*Image], error) {
	img, err := NewImage(a.ctx, desc)
	if err != nil {
		return nil, err
	}
	return a.InsertImage(img), nil
}

// CreateImageView creates a view of image and returns a handle to it.
func (a *DynSetAllocator) CreateImageView(image *Arc[*Image], desc ViewDesc) (*Arc[*ImageView], error) {
	v, err := NewImageView(a.ctx, image, desc)
	if err != nil {
		return nil, err
	}
	return a.InsertImageView(v), nil
}

// CreateBuffer creates a buffer and returns a handle to it.
func (a *DynSetAllocator) CreateBuffer(desc BufferDesc) (*Arc[*Buffer], error) {
	b, err := NewBuffer(a.ctx, desc)
	if err != nil {
		return nil, err
	}
	return a.InsertBuffer(b), nil
}

// DynSetManager bundles the dynamic managers for every resource kind the
// render graph creates.
type DynSetManager struct {
	ctx     *device.Context
	images  *DynManager[*Image]
	views   *DynManager[*ImageView]
	buffers *DynManager[*Buffer]
}

// NewDynSetManager creates managers that destroy resources on ctx's device.
func NewDynSetManager(ctx *device.Context) *DynSetManager {
	frames := ctx.Info.MaxFramesInFlight
	return &DynSetManager{
		ctx:     ctx,
		images:  NewDynManager("image", frames, destroyImage(ctx.Device)),
		views:   NewDynManager("image view", frames, destroyImageView(ctx.Device)),
		buffers: NewDynManager("buffer", frames, destroyBuffer(ctx.Device)),
	}
}

// CreateAllocator returns an allocator for all three kinds.
func (m *DynSetManager) CreateAllocator() *DynSetAllocator {
	return &DynSetAllocator{
		ctx:     m.ctx,
		images:  m.images.CreateAllocator(),
		views:   m.views.CreateAllocator(),
		buffers: m.buffers.CreateAllocator(),
	}
}

// OnFrameComplete advances every manager. Views release their images when
// destroyed, so images are processed before views and pick those releases
// up on the next frame.
func (m *DynSetManager) OnFrameComplete() error {
	return errors.CombineErrors(
		m.buffers.OnFrameComplete(),
		errors.CombineErrors(m.images.OnFrameComplete(), m.views.OnFrameComplete()),
	)
}

// Destroy tears down views first so the image references they hold are
// released before images are destroyed.
func (m *DynSetManager) Destroy() error {
	err := m.views.Destroy()
	err = errors.CombineErrors(err, m.images.Destroy())
	return errors.CombineErrors(err, m.buffers.Destroy())
}

// Metrics returns the number of live handles per kind.
func (m *DynSetManager) Metrics() DynMetrics {
	return DynMetrics{
		ImageCount:     m.images.Len(),
		ImageViewCount: m.views.Len(),
		BufferCount:    m.buffers.Len(),
	}
}
