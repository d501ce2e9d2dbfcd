package resource

import (
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/native"
)

// Access is a set of ways a resource is accessed by a task.
type Access uint32

// Access kinds.
const (
	AccessVertexRead Access = 1 << iota
	AccessIndexRead
	AccessIndirectRead
	AccessUniformRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorRead
	AccessColorWrite
	AccessDepthRead
	AccessDepthWrite
	AccessTransferRead
	AccessTransferWrite
	AccessPresent
	// AccessBuildRead is an acceleration structure or geometry buffer read by a build.
	AccessBuildRead
	// AccessBuildWrite is an acceleration structure written by a build.
	AccessBuildWrite
	// AccessBuildScratch is a scratch buffer used by a build.
	AccessBuildScratch
	// AccessRayTrace is an acceleration structure traversed by ray-tracing shaders.
	AccessRayTrace
)

// AccessNone means the resource has not been used.
const AccessNone Access = 0

const writeAccess = AccessShaderWrite | AccessColorWrite | AccessDepthWrite |
	AccessTransferWrite | AccessBuildWrite | AccessBuildScratch

// Writes reports whether a contains any write access.
func (a Access) Writes() bool { return a&writeAccess != 0 }

// ReadOnly returns a without its write kinds.
func (a Access) ReadOnly() Access { return a &^ writeAccess }

var accessNames = [...]string{
	"VertexRead", "IndexRead", "IndirectRead", "UniformRead", "ShaderRead",
	"ShaderWrite", "ColorRead", "ColorWrite", "DepthRead", "DepthWrite",
	"TransferRead", "TransferWrite", "Present", "BuildRead", "BuildWrite",
	"BuildScratch", "RayTrace",
}

func (a Access) String() string {
	if a == AccessNone {
		return "None"
	}
	var parts []string
	for i, name := range accessNames {
		if a&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Layout is the memory layout of an image subresource.
type Layout uint8

// Image layouts.
const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderRead
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutColorAttachment:
		return "ColorAttachment"
	case LayoutDepthStencilAttachment:
		return "DepthStencilAttachment"
	case LayoutDepthStencilReadOnly:
		return "DepthStencilReadOnly"
	case LayoutShaderRead:
		return "ShaderRead"
	case LayoutTransferSrc:
		return "TransferSrc"
	case LayoutTransferDst:
		return "TransferDst"
	case LayoutPresent:
		return "Present"
	}
	return "Unknown"
}

// LayoutFor returns the image layout that serves every kind in a.
// Access sets without a dedicated layout map to LayoutGeneral.
func LayoutFor(a Access) Layout {
	switch {
	case a == AccessNone:
		return LayoutUndefined
	case a&^(AccessColorRead|AccessColorWrite) == 0:
		return LayoutColorAttachment
	case a&AccessDepthWrite != 0 && a&^(AccessDepthRead|AccessDepthWrite) == 0:
		return LayoutDepthStencilAttachment
	case a&AccessDepthRead != 0 && a&^(AccessDepthRead|AccessShaderRead) == 0:
		return LayoutDepthStencilReadOnly
	case a == AccessShaderRead:
		return LayoutShaderRead
	case a == AccessTransferRead:
		return LayoutTransferSrc
	case a == AccessTransferWrite:
		return LayoutTransferDst
	case a == AccessPresent:
		return LayoutPresent
	}
	return LayoutGeneral
}

// BufferUsage maps a to the HAL buffer usage used in barriers.
func BufferUsage(a Access) gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if a&AccessVertexRead != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if a&AccessIndexRead != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if a&AccessIndirectRead != 0 {
		u |= gputypes.BufferUsageIndirect
	}
	if a&AccessUniformRead != 0 {
		u |= gputypes.BufferUsageUniform
	}
	if a&(AccessShaderRead|AccessShaderWrite|AccessBuildRead|AccessBuildScratch|AccessRayTrace) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if a&AccessTransferRead != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	if a&AccessTransferWrite != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	return u
}

// TextureUsage maps a to the HAL texture usage used in barriers.
func TextureUsage(a Access) gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if a&AccessShaderRead != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if a&AccessShaderWrite != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if a&(AccessColorRead|AccessColorWrite|AccessDepthRead|AccessDepthWrite) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if a&AccessTransferRead != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	if a&AccessTransferWrite != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	return u
}

// AccelerationUsage maps a to the synchronization domain of an acceleration structure.
func AccelerationUsage(a Access) native.AccelerationUsage {
	switch {
	case a&AccessBuildWrite != 0:
		return native.AccelerationUsageBuildOutput
	case a&AccessBuildRead != 0:
		return native.AccelerationUsageBuildInput
	case a&AccessRayTrace != 0:
		return native.AccelerationUsageTrace
	}
	return native.AccelerationUsageNone
}
