package graph

import "fmt"

// NodeID identifies a node added to a Builder.
type NodeID int

// NoNode marks usages that are not produced by a node, such as the input
// usage of an external image.
const NoNode NodeID = -1

// ImageID identifies a virtual image.
type ImageID int

// BufferID identifies a virtual buffer.
type BufferID int

// ImageUsageID identifies one access to a version of a virtual image.
type ImageUsageID int

// BufferUsageID identifies one access to a version of a virtual buffer.
type BufferUsageID int

// ImageVersionID identifies a version of a virtual image.
type ImageVersionID struct {
	Image   ImageID
	Version int
}

// BufferVersionID identifies a version of a virtual buffer.
type BufferVersionID struct {
	Buffer  BufferID
	Version int
}

// ExternalImageID identifies an image supplied by the caller.
type ExternalImageID int

// ExternalBufferID identifies a buffer supplied by the caller.
type ExternalBufferID int

// virtualImageID groups usages that must share one physical image.
type virtualImageID int

// virtualBufferID groups usages that must share one physical buffer.
type virtualBufferID int

// PhysicalImageID identifies a concrete image in a plan.
type PhysicalImageID int

// PhysicalImageViewID identifies a (physical image, view options) pair.
type PhysicalImageViewID int

// PhysicalBufferID identifies a concrete buffer in a plan.
type PhysicalBufferID int

// Queue selects the queue a node is recorded for.
type Queue struct {
	index int32
}

// QueueDefaultGraphics is the device's main graphics queue.
var QueueDefaultGraphics = Queue{index: -1}

// QueueIndex selects an additional queue by index.
func QueueIndex(i uint32) Queue { return Queue{index: int32(i)} }

func (q Queue) String() string {
	if q.index < 0 {
		return "graphics"
	}
	return fmt.Sprintf("queue %d", q.index)
}

// UsageType is the kind of access a usage performs.
type UsageType int

const (
	// UsageCreate writes the first version of a resource.
	UsageCreate UsageType = iota
	// UsageRead reads a version.
	UsageRead
	// UsageModifyRead reads the version a modify overwrites.
	UsageModifyRead
	// UsageModifyWrite writes the version produced by a modify.
	UsageModifyWrite
	// UsageOutput binds a version to an external resource.
	UsageOutput
)

// IsReadOnly reports whether the usage never writes. ModifyRead is not
// read-only: it is always paired with a write of the same resource.
func (u UsageType) IsReadOnly() bool {
	return u == UsageRead || u == UsageOutput
}

// IsWrite reports whether the usage produces a version.
func (u UsageType) IsWrite() bool {
	return u == UsageCreate || u == UsageModifyWrite
}

func (u UsageType) String() string {
	switch u {
	case UsageCreate:
		return "create"
	case UsageRead:
		return "read"
	case UsageModifyRead:
		return "modify-read"
	case UsageModifyWrite:
		return "modify-write"
	case UsageOutput:
		return "output"
	default:
		return fmt.Sprintf("UsageType(%d)", int(u))
	}
}
