package device

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
)

// OpenNoop opens a device on the no-op HAL backend. Every call succeeds
// without touching a GPU, which makes it suitable for tests and for
// dry-running graphs. The returned func releases the device and instance.
func OpenNoop(opts Options) (*Context, func(), error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "device: create noop instance")
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, errors.New("device: noop backend reported no adapters")
	}
	limits := gputypes.DefaultLimits()
	if opts.Limits != nil {
		limits = *opts.Limits
	}
	opened, err := adapters[0].Adapter.Open(0, limits)
	if err != nil {
		instance.Destroy()
		return nil, nil, errors.Wrap(err, "device: open noop adapter")
	}
	opts.Limits = &limits
	ctx, err := New(opened.Device, opened.Queue, opts)
	if err != nil {
		opened.Device.Destroy()
		instance.Destroy()
		return nil, nil, err
	}
	cleanup := func() {
		opened.Device.Destroy()
		instance.Destroy()
	}
	return ctx, cleanup, nil
}
