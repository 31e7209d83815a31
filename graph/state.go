package graph

import (
	"strings"

	"github.com/gogpu/gputypes"
)

// ResourceState is the access state a resource must be in for a usage.
type ResourceState uint32

const (
	StateUndefined ResourceState = 0
	StateVertexAndConstantBuffer ResourceState = 1 << (iota - 1)
	StateIndexBuffer
	StateRenderTarget
	StateUnorderedAccess
	StateDepthWrite
	StateDepthRead
	StateShaderResource
	StateIndirectArgument
	StateCopyDst
	StateCopySrc
	StatePresent
)

var stateNames = []struct {
	state ResourceState
	name  string
}{
	{StateVertexAndConstantBuffer, "vertex-and-constant"},
	{StateIndexBuffer, "index"},
	{StateRenderTarget, "render-target"},
	{StateUnorderedAccess, "unordered-access"},
	{StateDepthWrite, "depth-write"},
	{StateDepthRead, "depth-read"},
	{StateShaderResource, "shader-resource"},
	{StateIndirectArgument, "indirect"},
	{StateCopyDst, "copy-dst"},
	{StateCopySrc, "copy-src"},
	{StatePresent, "present"},
}

func (s ResourceState) String() string {
	if s == StateUndefined {
		return "undefined"
	}
	var parts []string
	for _, n := range stateNames {
		if s&n.state != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseResourceState parses a name produced by String.
func ParseResourceState(name string) (ResourceState, bool) {
	if name == "" || name == "undefined" {
		return StateUndefined, true
	}
	var s ResourceState
	for _, part := range strings.Split(name, "|") {
		found := false
		for _, n := range stateNames {
			if n.name == part {
				s |= n.state
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return s, true
}

// TextureUsage maps the state to the texture usage the backend transitions
// between. Present maps to render attachment, the usage surfaces are
// created with.
func (s ResourceState) TextureUsage() gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if s&(StateRenderTarget|StateDepthWrite|StateDepthRead|StatePresent) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if s&StateShaderResource != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if s&StateUnorderedAccess != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if s&StateCopySrc != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	if s&StateCopyDst != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	return u
}

// BufferUsage maps the state to the buffer usage the backend transitions
// between.
func (s ResourceState) BufferUsage() gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if s&StateVertexAndConstantBuffer != 0 {
		u |= gputypes.BufferUsageVertex | gputypes.BufferUsageUniform
	}
	if s&StateIndexBuffer != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if s&StateIndirectArgument != 0 {
		u |= gputypes.BufferUsageIndirect
	}
	if s&(StateUnorderedAccess|StateShaderResource) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if s&StateCopySrc != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	if s&StateCopyDst != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	return u
}
