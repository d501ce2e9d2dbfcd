package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// FromHAL adapts a HAL command encoder that is already between
// BeginEncoding and EndEncoding.
//
// HAL has no subpass concept, so each subpass is recorded as its own HAL
// render pass. Load and store operations are resolved per subpass by the
// caller, which keeps attachment contents intact across the split.
func FromHAL(enc hal.CommandEncoder) CommandEncoder {
	return &halEncoder{raw: enc}
}

type halEncoder struct {
	raw hal.CommandEncoder
}

func (e *halEncoder) TransitionBuffers(barriers []BufferBarrier) {
	if len(barriers) == 0 {
		return
	}
	out := make([]hal.BufferBarrier, len(barriers))
	for i, b := range barriers {
		out[i] = hal.BufferBarrier{
			Buffer: b.Buffer,
			Usage: hal.BufferUsageTransition{
				OldUsage: b.From,
				NewUsage: b.To,
			},
		}
	}
	e.raw.TransitionBuffers(out)
}

// TransitionTextures emits one HAL barrier per subresource range.
func (e *halEncoder) TransitionTextures(barriers []TextureBarrier) {
	if len(barriers) == 0 {
		return
	}
	out := make([]hal.TextureBarrier, len(barriers))
	for i, b := range barriers {
		out[i] = hal.TextureBarrier{
			Texture: b.Texture,
			Range: hal.TextureRange{
				Aspect:          gputypes.TextureAspectAll,
				BaseMipLevel:    b.Range.BaseMipLevel,
				MipLevelCount:   b.Range.MipLevelCount,
				BaseArrayLayer:  b.Range.BaseArrayLayer,
				ArrayLayerCount: b.Range.ArrayLayerCount,
			},
			Usage: hal.TextureUsageTransition{
				OldUsage: b.From,
				NewUsage: b.To,
			},
		}
	}
	e.raw.TransitionTextures(out)
}

func (e *halEncoder) ClearBuffer(buffer hal.Buffer, offset, size uint64) {
	e.raw.ClearBuffer(buffer, offset, size)
}

func (e *halEncoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	e.raw.CopyBufferToBuffer(src, dst, regions)
}

func (e *halEncoder) CopyBufferToTexture(src hal.Buffer, dst hal.Texture, regions []hal.BufferTextureCopy) {
	e.raw.CopyBufferToTexture(src, dst, regions)
}

func (e *halEncoder) CopyTextureToBuffer(src hal.Texture, dst hal.Buffer, regions []hal.BufferTextureCopy) {
	e.raw.CopyTextureToBuffer(src, dst, regions)
}

func (e *halEncoder) CopyTextureToTexture(src, dst hal.Texture, regions []TextureCopy) {
	out := make([]hal.TextureCopy, len(regions))
	for i, r := range regions {
		out[i] = hal.TextureCopy{SrcBase: r.SrcBase, DstBase: r.DstBase, Size: r.Size}
	}
	e.raw.CopyTextureToTexture(src, dst, out)
}

func (e *halEncoder) BeginRenderPass(desc *RenderPassDescriptor) RenderPassEncoder {
	p := &halRenderPass{enc: e, desc: desc}
	p.begin()
	return p
}

func (e *halEncoder) BeginComputePass(label string) ComputePassEncoder {
	return &halComputePass{raw: e.raw.BeginComputePass(&hal.ComputePassDescriptor{Label: label})}
}

type halRenderPass struct {
	enc     *halEncoder
	desc    *RenderPassDescriptor
	subpass int
	raw     hal.RenderPassEncoder
}

func (p *halRenderPass) begin() {
	sp := p.desc.Subpasses[p.subpass]
	label := p.desc.Label
	if len(p.desc.Subpasses) > 1 {
		label = fmt.Sprintf("%s/%d", p.desc.Label, p.subpass)
	}
	p.raw = p.enc.raw.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:                  label,
		ColorAttachments:       sp.ColorAttachments,
		DepthStencilAttachment: sp.DepthStencilAttachment,
	})
}

func (p *halRenderPass) SetPipeline(pipeline hal.RenderPipeline) { p.raw.SetPipeline(pipeline) }

func (p *halRenderPass) SetBindGroup(index uint32, group hal.BindGroup, dynamicOffsets []uint32) {
	p.raw.SetBindGroup(index, group, dynamicOffsets)
}

func (p *halRenderPass) SetVertexBuffer(slot uint32, buffer hal.Buffer, offset uint64) {
	p.raw.SetVertexBuffer(slot, buffer, offset)
}

func (p *halRenderPass) SetIndexBuffer(buffer hal.Buffer, format gputypes.IndexFormat, offset uint64) {
	p.raw.SetIndexBuffer(buffer, format, offset)
}

func (p *halRenderPass) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	p.raw.SetViewport(x, y, width, height, minDepth, maxDepth)
}

func (p *halRenderPass) SetScissorRect(x, y, width, height uint32) {
	p.raw.SetScissorRect(x, y, width, height)
}

func (p *halRenderPass) SetStencilReference(reference uint32) { p.raw.SetStencilReference(reference) }

func (p *halRenderPass) SetBlendConstant(color *gputypes.Color) { p.raw.SetBlendConstant(color) }

func (p *halRenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.raw.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *halRenderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.raw.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (p *halRenderPass) DrawIndirect(buffer hal.Buffer, offset uint64) {
	p.raw.DrawIndirect(buffer, offset)
}

func (p *halRenderPass) DrawIndexedIndirect(buffer hal.Buffer, offset uint64) {
	p.raw.DrawIndexedIndirect(buffer, offset)
}

func (p *halRenderPass) NextSubpass() {
	if p.subpass+1 >= len(p.desc.Subpasses) {
		return
	}
	p.raw.End()
	p.subpass++
	p.begin()
}

func (p *halRenderPass) End() { p.raw.End() }

type halComputePass struct {
	raw hal.ComputePassEncoder
}

func (p *halComputePass) SetPipeline(pipeline hal.ComputePipeline) { p.raw.SetPipeline(pipeline) }

func (p *halComputePass) SetBindGroup(index uint32, group hal.BindGroup, dynamicOffsets []uint32) {
	p.raw.SetBindGroup(index, group, dynamicOffsets)
}

func (p *halComputePass) Dispatch(x, y, z uint32) { p.raw.Dispatch(x, y, z) }

func (p *halComputePass) DispatchIndirect(buffer hal.Buffer, offset uint64) {
	p.raw.DispatchIndirect(buffer, offset)
}

func (p *halComputePass) End() { p.raw.End() }
