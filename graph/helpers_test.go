package graph

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rendergraph/device"
	"github.com/gogpu/rendergraph/resource"
)

const rgba8 = gputypes.TextureFormatRGBA8Unorm

var opaqueBlack = &gputypes.Color{A: 1}

func colorConstraint() ImageConstraint {
	return ImageConstraint{Format: rgba8}
}

func swapchainSpec() ImageSpec {
	return ImageSpec{
		Samples:    1,
		Format:     rgba8,
		Usage:      gputypes.TextureUsageRenderAttachment,
		Extents:    MatchSurface(),
		LayerCount: 1,
		MipCount:   1,
	}
}

// placeholderView is an external view with no backend object, enough for
// planning.
func placeholderView() *resource.Arc[*resource.ImageView] {
	return resource.NewArc(&resource.ImageView{}, nil)
}

func createNoopDevice(t *testing.T) *device.Context {
	t.Helper()
	ctx, cleanup, err := device.OpenNoop(device.Options{MaxFramesInFlight: 2})
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return ctx
}

var testSurface = device.SurfaceInfo{Format: rgba8, Width: 320, Height: 240, SampleCount: 1}
