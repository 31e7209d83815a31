package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/device"
)

// ImageDesc describes a texture to create.
type ImageDesc struct {
	Label         string
	Format        gputypes.TextureFormat
	Extent        gputypes.Extent3D
	MipLevelCount uint32
	SampleCount   uint32
	Dimension     gputypes.TextureDimension
	Usage         gputypes.TextureUsage
}

// Image is a backend texture and the description it was created from.
type Image struct {
	Texture hal.Texture
	Desc    ImageDesc
}

// ViewDesc describes a view into an image.
type ViewDesc struct {
	Label           string
	Format          gputypes.TextureFormat
	Dimension       gputypes.TextureViewDimension
	Aspect          gputypes.TextureAspect
	BaseMipLevel    uint32
	MipLevelCount   uint32
	BaseArrayLayer  uint32
	ArrayLayerCount uint32
}

// ImageView is a backend texture view. It holds a reference to its image
// for as long as the view exists.
type ImageView struct {
	Image *Arc[*Image]
	View  hal.TextureView
	Desc  ViewDesc
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// Buffer is a backend buffer and the description it was created from.
type Buffer struct {
	Buffer hal.Buffer
	Desc   BufferDesc
}

// NewImage creates a backend texture.
func NewImage(ctx *device.Context, desc ImageDesc) (*Image, error) {
	if desc.MipLevelCount == 0 {
		desc.MipLevelCount = 1
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	tex, err := ctx.Device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Extent.Width,
			Height:             desc.Extent.Height,
			DepthOrArrayLayers: desc.Extent.DepthOrArrayLayers,
		},
		MipLevelCount: desc.MipLevelCount,
		SampleCount:   desc.SampleCount,
		Dimension:     desc.Dimension,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "resource: create image %q", desc.Label)
	}
	return &Image{Texture: tex, Desc: desc}, nil
}

// NewImageView creates a view of image. The view takes its own reference
// to image and releases it when destroyed.
func NewImageView(ctx *device.Context, image *Arc[*Image], desc ViewDesc) (*ImageView, error) {
	if desc.Aspect == 0 {
		desc.Aspect = gputypes.TextureAspectAll
	}
	view, err := ctx.Device.CreateTextureView(image.Get().Texture, &hal.TextureViewDescriptor{
		Label:           desc.Label,
		Format:          desc.Format,
		Dimension:       desc.Dimension,
		Aspect:          desc.Aspect,
		BaseMipLevel:    desc.BaseMipLevel,
		MipLevelCount:   desc.MipLevelCount,
		BaseArrayLayer:  desc.BaseArrayLayer,
		ArrayLayerCount: desc.ArrayLayerCount,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "resource: create image view %q", desc.Label)
	}
	return &ImageView{Image: image.Clone(), View: view, Desc: desc}, nil
}

// NewBuffer creates a backend buffer.
func NewBuffer(ctx *device.Context, desc BufferDesc) (*Buffer, error) {
	if desc.Size == 0 {
		return nil, errors.Newf("resource: buffer %q has zero size", desc.Label)
	}
	buf, err := ctx.Device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "resource: create buffer %q", desc.Label)
	}
	return &Buffer{Buffer: buf, Desc: desc}, nil
}

func destroyImage(dev hal.Device) func(*Image) error {
	return func(img *Image) error {
		if img == nil || img.Texture == nil {
			return errors.New("resource: destroy of nil image")
		}
		dev.DestroyTexture(img.Texture)
		img.Texture = nil
		return nil
	}
}

func destroyImageView(dev hal.Device) func(*ImageView) error {
	return func(v *ImageView) error {
		if v == nil || v.View == nil {
			return errors.New("resource: destroy of nil image view")
		}
		dev.DestroyTextureView(v.View)
		v.View = nil
		v.Image.Release()
		return nil
	}
}

func destroyBuffer(dev hal.Device) func(*Buffer) error {
	return func(b *Buffer) error {
		if b == nil || b.Buffer == nil {
			return errors.New("resource: destroy of nil buffer")
		}
		dev.DestroyBuffer(b.Buffer)
		b.Buffer = nil
		return nil
	}
}

// NewBufferSink returns a drop sink that destroys buffers on ctx's device.
func NewBufferSink(ctx *device.Context) *DropSink[*Buffer] {
	return NewDropSink(ctx.Info.MaxFramesInFlight, destroyBuffer(ctx.Device))
}
