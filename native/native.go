// Package native defines the command stream that the frame compiler records into.
//
// The interfaces mirror the subset of gogpu/wgpu HAL that the compiler needs:
// barriers, copies, render passes with subpasses, and compute passes. FromHAL
// adapts a hal.CommandEncoder; tests substitute a recording implementation.
//
// Optional capabilities (debug markers, blits, push constants, mesh shading and
// ray tracing) are separate interfaces discovered with type assertions, so a
// backend only implements what it supports.
package native

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CommandEncoder records commands into one native command buffer.
//
// A CommandEncoder is owned by exactly one goroutine for the whole recording
// pass. Passes are not nested: at most one render or compute pass is open.
type CommandEncoder interface {
	// TransitionBuffers records one batched barrier command for buffers.
	TransitionBuffers(barriers []BufferBarrier)

	// TransitionTextures records one batched barrier command for textures.
	TransitionTextures(barriers []TextureBarrier)

	// ClearBuffer zeroes size bytes at offset.
	ClearBuffer(buffer hal.Buffer, offset, size uint64)

	CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy)
	CopyBufferToTexture(src hal.Buffer, dst hal.Texture, regions []hal.BufferTextureCopy)
	CopyTextureToBuffer(src hal.Texture, dst hal.Buffer, regions []hal.BufferTextureCopy)
	CopyTextureToTexture(src, dst hal.Texture, regions []TextureCopy)

	// BeginRenderPass opens a render pass positioned on its first subpass.
	BeginRenderPass(desc *RenderPassDescriptor) RenderPassEncoder

	// BeginComputePass opens a compute pass.
	BeginComputePass(label string) ComputePassEncoder
}

// RenderPassEncoder records commands inside a render pass.
type RenderPassEncoder interface {
	SetPipeline(pipeline hal.RenderPipeline)
	SetBindGroup(index uint32, group hal.BindGroup, dynamicOffsets []uint32)
	SetVertexBuffer(slot uint32, buffer hal.Buffer, offset uint64)
	SetIndexBuffer(buffer hal.Buffer, format gputypes.IndexFormat, offset uint64)
	SetViewport(x, y, width, height, minDepth, maxDepth float32)
	SetScissorRect(x, y, width, height uint32)
	SetStencilReference(reference uint32)
	SetBlendConstant(color *gputypes.Color)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	DrawIndirect(buffer hal.Buffer, offset uint64)
	DrawIndexedIndirect(buffer hal.Buffer, offset uint64)

	// NextSubpass advances to the next subpass of the descriptor passed to
	// BeginRenderPass. Bound state does not survive the transition.
	NextSubpass()

	// End closes the render pass after its last subpass.
	End()
}

// ComputePassEncoder records commands inside a compute pass.
type ComputePassEncoder interface {
	SetPipeline(pipeline hal.ComputePipeline)
	SetBindGroup(index uint32, group hal.BindGroup, dynamicOffsets []uint32)
	Dispatch(x, y, z uint32)
	DispatchIndirect(buffer hal.Buffer, offset uint64)
	End()
}

// RenderPassDescriptor describes a render pass split into ordered subpasses.
// Every subpass carries its complete attachment set with load and store
// operations already resolved for that position in the chain.
type RenderPassDescriptor struct {
	Label     string
	Subpasses []SubpassDescriptor
}

// SubpassDescriptor is the attachment set of one subpass.
type SubpassDescriptor struct {
	ColorAttachments       []hal.RenderPassColorAttachment
	DepthStencilAttachment *hal.RenderPassDepthStencilAttachment
}

// TextureCopy is one texture-to-texture copy region.
type TextureCopy struct {
	SrcBase hal.ImageCopyTexture
	DstBase hal.ImageCopyTexture
	Size    hal.Extent3D
}

// SubresourceRange selects mip levels and array layers of a texture.
type SubresourceRange struct {
	BaseMipLevel    uint32
	MipLevelCount   uint32
	BaseArrayLayer  uint32
	ArrayLayerCount uint32
}

// BufferBarrier is a memory dependency on a byte range of a buffer.
type BufferBarrier struct {
	Buffer hal.Buffer
	Offset uint64
	Size   uint64
	From   gputypes.BufferUsage
	To     gputypes.BufferUsage
}

// TextureBarrier is a memory and layout dependency on texture subresources.
type TextureBarrier struct {
	Texture hal.Texture
	Range   SubresourceRange
	From    gputypes.TextureUsage
	To      gputypes.TextureUsage
}

// DebugEncoder is implemented by encoders that support debug labels.
type DebugEncoder interface {
	PushDebugGroup(label string, color [4]float32)
	PopDebugGroup()
	InsertDebugMarker(label string, color [4]float32)
}

// Blitter is implemented by encoders that support scaled texture copies.
type Blitter interface {
	BlitTexture(src, dst hal.Texture, regions []BlitRegion, filter gputypes.FilterMode)
}

// BlitRegion is one scaled copy region. Offsets are inclusive-exclusive corners.
type BlitRegion struct {
	SrcMipLevel uint32
	SrcLayer    uint32
	SrcOffsets  [2]hal.Origin3D
	DstMipLevel uint32
	DstLayer    uint32
	DstOffsets  [2]hal.Origin3D
}

// PushConstantSetter is implemented by pass encoders that accept push constants.
type PushConstantSetter interface {
	SetPushConstants(stages uint32, offset uint32, data []byte)
}

// MeshEncoder is implemented by render pass encoders that support mesh shading.
type MeshEncoder interface {
	DrawMeshTasks(groupCountX, groupCountY, groupCountZ uint32)
	DrawMeshTasksIndirect(buffer hal.Buffer, offset uint64, drawCount, stride uint32)
}
