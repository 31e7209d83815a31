package device

import (
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

func TestOpenNoop(t *testing.T) {
	ctx, cleanup, err := OpenNoop(Options{})
	if err != nil {
		t.Fatalf("OpenNoop: %v", err)
	}
	defer cleanup()

	if ctx.Info.MaxFramesInFlight != DefaultMaxFramesInFlight {
		t.Errorf("MaxFramesInFlight = %d, want %d", ctx.Info.MaxFramesInFlight, DefaultMaxFramesInFlight)
	}
	if ctx.Info.MinUniformBufferOffsetAlignment == 0 {
		t.Error("uniform alignment must be at least 1")
	}
}

func TestNewRejectsNil(t *testing.T) {
	if _, err := New(nil, nil, Options{}); err == nil {
		t.Error("New(nil, nil) should fail")
	}
}

func TestNewRejectsNegativeFrames(t *testing.T) {
	ctx, cleanup, err := OpenNoop(Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	if _, err := New(ctx.Device, ctx.Queue, Options{MaxFramesInFlight: -1}); err == nil {
		t.Error("negative MaxFramesInFlight should fail")
	}
}

func TestAlign(t *testing.T) {
	limits := gputypes.DefaultLimits()
	limits.MinUniformBufferOffsetAlignment = 256
	limits.MinStorageBufferOffsetAlignment = 64
	ctx, cleanup, err := OpenNoop(Options{Limits: &limits})
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	tests := []struct {
		size, uniform, storage uint64
	}{
		{0, 0, 0},
		{1, 256, 64},
		{64, 256, 64},
		{257, 512, 320},
	}
	for _, tt := range tests {
		if got := ctx.AlignUniform(tt.size); got != tt.uniform {
			t.Errorf("AlignUniform(%d) = %d, want %d", tt.size, got, tt.uniform)
		}
		if got := ctx.AlignStorage(tt.size); got != tt.storage {
			t.Errorf("AlignStorage(%d) = %d, want %d", tt.size, got, tt.storage)
		}
	}
}

// nullProvider satisfies gpucontext.DeviceProvider without exposing HAL
// objects.
type nullProvider struct{}

func (nullProvider) Device() gpucontext.Device   { return nil }
func (nullProvider) Queue() gpucontext.Queue     { return nil }
func (nullProvider) Adapter() gpucontext.Adapter { return nil }
func (nullProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{}
}
func (nullProvider) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

func TestFromProviderWithoutHAL(t *testing.T) {
	if _, err := FromProvider(nullProvider{}, Options{}); err == nil {
		t.Error("FromProvider should reject providers without HAL accessors")
	}
}

func TestSurfaceExtent(t *testing.T) {
	s := SurfaceInfo{Width: 800, Height: 600, Format: gputypes.TextureFormatBGRA8Unorm, SampleCount: 1}
	e := s.Extent()
	if e.Width != 800 || e.Height != 600 || e.DepthOrArrayLayers != 1 {
		t.Errorf("Extent() = %+v", e)
	}
}
