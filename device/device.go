// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package device wraps the backend device a render graph records into.
//
// Key principle: rendergraph RECEIVES the device from the host, it does NOT
// create one. The host passes either a hal.Device/hal.Queue pair or a
// gpucontext.DeviceProvider that exposes its HAL objects.
package device

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DefaultMaxFramesInFlight is used when Options.MaxFramesInFlight is zero.
const DefaultMaxFramesInFlight = 2

// Info describes the device properties the render graph and descriptor
// pools size themselves from.
type Info struct {
	// MaxFramesInFlight is the number of frames whose GPU work may still be
	// executing while the CPU prepares the next one.
	MaxFramesInFlight int

	// MinUniformBufferOffsetAlignment is the required alignment of dynamic
	// offsets into uniform buffers.
	MinUniformBufferOffsetAlignment uint64

	// MinStorageBufferOffsetAlignment is the required alignment of offsets
	// into storage buffers.
	MinStorageBufferOffsetAlignment uint64

	// MaxTextureDimension2D is the largest width or height of a 2D texture.
	MaxTextureDimension2D uint32

	// MaxBindGroups is the number of bind groups a pipeline layout may use.
	MaxBindGroups uint32
}

// Options configures New.
type Options struct {
	// MaxFramesInFlight overrides DefaultMaxFramesInFlight when non-zero.
	MaxFramesInFlight int

	// Limits are the limits the device was opened with. The zero value
	// means gputypes.DefaultLimits().
	Limits *gputypes.Limits
}

// Context is the device capability consumed by the render graph core.
// It is shared by value-pointer and never mutated after creation.
type Context struct {
	Device hal.Device
	Queue  hal.Queue
	Info   Info
}

// New wraps an opened HAL device and queue.
func New(dev hal.Device, queue hal.Queue, opts Options) (*Context, error) {
	if dev == nil {
		return nil, errors.New("device: hal device is nil")
	}
	if queue == nil {
		return nil, errors.New("device: hal queue is nil")
	}

	limits := gputypes.DefaultLimits()
	if opts.Limits != nil {
		limits = *opts.Limits
	}
	frames := opts.MaxFramesInFlight
	if frames == 0 {
		frames = DefaultMaxFramesInFlight
	}
	if frames < 0 {
		return nil, errors.Newf("device: invalid MaxFramesInFlight %d", frames)
	}

	return &Context{
		Device: dev,
		Queue:  queue,
		Info: Info{
			MaxFramesInFlight:               frames,
			MinUniformBufferOffsetAlignment: uint64(max(limits.MinUniformBufferOffsetAlignment, 1)),
			MinStorageBufferOffsetAlignment: uint64(max(limits.MinStorageBufferOffsetAlignment, 1)),
			MaxTextureDimension2D:           limits.MaxTextureDimension2D,
			MaxBindGroups:                   limits.MaxBindGroups,
		},
	}, nil
}

// halProvider is implemented by host device providers that expose their
// underlying HAL objects (gogpu does).
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// FromProvider builds a Context from a host application's device provider.
// The provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func FromProvider(provider gpucontext.DeviceProvider, opts Options) (*Context, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, errors.New("device: provider does not expose HAL types")
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, errors.New("device: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.New("device: provider HalQueue is not hal.Queue")
	}
	return New(dev, queue, opts)
}

// AlignUniform rounds size up to the uniform buffer offset alignment.
func (c *Context) AlignUniform(size uint64) uint64 {
	return alignUp(size, c.Info.MinUniformBufferOffsetAlignment)
}

// AlignStorage rounds size up to the storage buffer offset alignment.
func (c *Context) AlignStorage(size uint64) uint64 {
	return alignUp(size, c.Info.MinStorageBufferOffsetAlignment)
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
