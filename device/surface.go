package device

import "github.com/gogpu/gputypes"

// SurfaceInfo describes the swapchain the current frame renders to. It is
// part of the image cache key so a resize invalidates cached images sized
// to the old surface.
type SurfaceInfo struct {
	Format      gputypes.TextureFormat
	Width       uint32
	Height      uint32
	SampleCount uint32
}

// Extent returns the surface size as a gputypes.Extent3D with depth 1.
func (s SurfaceInfo) Extent() gputypes.Extent3D {
	return gputypes.Extent3D{Width: s.Width, Height: s.Height, DepthOrArrayLayers: 1}
}
