// Package nativetest provides a CommandEncoder that records commands in memory.
//
// The Recorder is used by tests to assert on the exact command stream and by
// the demo command to print a compiled frame.
package nativetest

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/native"
)

// Command is one recorded command.
type Command struct {
	Op    string
	Label string

	BufferBarriers  []native.BufferBarrier
	TextureBarriers []native.TextureBarrier
	AccelBarriers   []native.AccelerationBarrier

	// Pipeline is the bound render, compute or ray-tracing pipeline.
	Pipeline any
	// Buffer is the buffer argument of vertex, index, indirect and copy commands.
	Buffer hal.Buffer
	Index  uint32
	Offset uint64
	Size   uint64
	Args   []uint32

	Pass *native.RenderPassDescriptor
}

func (c Command) String() string {
	switch {
	case c.Label != "":
		return fmt.Sprintf("%s(%s)", c.Op, c.Label)
	case len(c.Args) > 0:
		return fmt.Sprintf("%s%v", c.Op, c.Args)
	}
	return c.Op
}

// Recorder records every command it receives, including the optional
// debug, blit, mesh, push-constant and ray-tracing extensions.
type Recorder struct {
	Commands []Command
}

// Basic returns a view of r that implements only native.CommandEncoder,
// hiding every optional extension.
func (r *Recorder) Basic() native.CommandEncoder {
	return basic{r}
}

type basic struct {
	native.CommandEncoder
}

// Ops returns the recorded operation names in order.
func (r *Recorder) Ops() []string {
	ops := make([]string, len(r.Commands))
	for i, c := range r.Commands {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many commands named op were recorded.
func (r *Recorder) Count(op string) int {
	n := 0
	for _, c := range r.Commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Find returns the indices of commands named op.
func (r *Recorder) Find(op string) []int {
	var idx []int
	for i, c := range r.Commands {
		if c.Op == op {
			idx = append(idx, i)
		}
	}
	return idx
}

// Reset drops all recorded commands.
func (r *Recorder) Reset() { r.Commands = r.Commands[:0] }

func (r *Recorder) String() string {
	var sb strings.Builder
	for i, c := range r.Commands {
		fmt.Fprintf(&sb, "%3d %s\n", i, c)
	}
	return sb.String()
}

func (r *Recorder) add(c Command) { r.Commands = append(r.Commands, c) }

func (r *Recorder) TransitionBuffers(barriers []native.BufferBarrier) {
	r.add(Command{Op: "TransitionBuffers", BufferBarriers: append([]native.BufferBarrier(nil), barriers...)})
}

func (r *Recorder) TransitionTextures(barriers []native.TextureBarrier) {
	r.add(Command{Op: "TransitionTextures", TextureBarriers: append([]native.TextureBarrier(nil), barriers...)})
}

func (r *Recorder) ClearBuffer(buffer hal.Buffer, offset, size uint64) {
	r.add(Command{Op: "ClearBuffer", Buffer: buffer, Offset: offset, Size: size})
}

func (r *Recorder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	r.add(Command{Op: "CopyBufferToBuffer", Buffer: dst, Args: []uint32{uint32(len(regions))}})
}

func (r *Recorder) CopyBufferToTexture(src hal.Buffer, dst hal.Texture, regions []hal.BufferTextureCopy) {
	r.add(Command{Op: "CopyBufferToTexture", Buffer: src, Args: []uint32{uint32(len(regions))}})
}

func (r *Recorder) CopyTextureToBuffer(src hal.Texture, dst hal.Buffer, regions []hal.BufferTextureCopy) {
	r.add(Command{Op: "CopyTextureToBuffer", Buffer: dst, Args: []uint32{uint32(len(regions))}})
}

func (r *Recorder) CopyTextureToTexture(src, dst hal.Texture, regions []native.TextureCopy) {
	r.add(Command{Op: "CopyTextureToTexture", Args: []uint32{uint32(len(regions))}})
}

func (r *Recorder) BeginRenderPass(desc *native.RenderPassDescriptor) native.RenderPassEncoder {
	r.add(Command{Op: "BeginRenderPass", Label: desc.Label, Pass: desc})
	return &renderPass{r: r}
}

func (r *Recorder) BeginComputePass(label string) native.ComputePassEncoder {
	r.add(Command{Op: "BeginComputePass", Label: label})
	return &computePass{r: r}
}

func (r *Recorder) PushDebugGroup(label string, _ [4]float32) {
	r.add(Command{Op: "PushDebugGroup", Label: label})
}

func (r *Recorder) PopDebugGroup() { r.add(Command{Op: "PopDebugGroup"}) }

func (r *Recorder) InsertDebugMarker(label string, _ [4]float32) {
	r.add(Command{Op: "InsertDebugMarker", Label: label})
}

func (r *Recorder) BlitTexture(src, dst hal.Texture, regions []native.BlitRegion, filter gputypes.FilterMode) {
	r.add(Command{Op: "BlitTexture", Args: []uint32{uint32(len(regions)), uint32(filter)}})
}

func (r *Recorder) TransitionAccelerationStructures(barriers []native.AccelerationBarrier) {
	r.add(Command{Op: "TransitionAccelerationStructures", AccelBarriers: append([]native.AccelerationBarrier(nil), barriers...)})
}

func (r *Recorder) BuildGeometry(dst native.AccelerationStructure, build *native.GeometryBuild) {
	r.add(Command{Op: "BuildGeometry", Args: []uint32{uint32(len(build.Triangles)), uint32(len(build.AABBs))}})
}

func (r *Recorder) BuildScene(dst native.AccelerationStructure, build *native.SceneBuild) {
	r.add(Command{Op: "BuildScene", Args: []uint32{uint32(len(build.Instances))}})
}

func (r *Recorder) SetRayTracingPipeline(pipeline native.RayTracingPipeline) {
	r.add(Command{Op: "SetRayTracingPipeline", Pipeline: pipeline})
}

func (r *Recorder) SetRayTracingBindGroup(index uint32, group hal.BindGroup, _ []uint32) {
	r.add(Command{Op: "SetRayTracingBindGroup", Index: index})
}

func (r *Recorder) TraceRays(_ *native.ShaderBindingTable, width, height, depth uint32) {
	r.add(Command{Op: "TraceRays", Args: []uint32{width, height, depth}})
}

type renderPass struct {
	r *Recorder
}

func (p *renderPass) SetPipeline(pipeline hal.RenderPipeline) {
	p.r.add(Command{Op: "SetPipeline", Pipeline: pipeline})
}

func (p *renderPass) SetBindGroup(index uint32, _ hal.BindGroup, offsets []uint32) {
	p.r.add(Command{Op: "SetBindGroup", Index: index, Args: append([]uint32(nil), offsets...)})
}

func (p *renderPass) SetVertexBuffer(slot uint32, buffer hal.Buffer, offset uint64) {
	p.r.add(Command{Op: "SetVertexBuffer", Index: slot, Buffer: buffer, Offset: offset})
}

func (p *renderPass) SetIndexBuffer(buffer hal.Buffer, format gputypes.IndexFormat, offset uint64) {
	p.r.add(Command{Op: "SetIndexBuffer", Buffer: buffer, Offset: offset, Args: []uint32{uint32(format)}})
}

func (p *renderPass) SetViewport(x, y, width, height, _, _ float32) {
	p.r.add(Command{Op: "SetViewport", Args: []uint32{uint32(x), uint32(y), uint32(width), uint32(height)}})
}

func (p *renderPass) SetScissorRect(x, y, width, height uint32) {
	p.r.add(Command{Op: "SetScissorRect", Args: []uint32{x, y, width, height}})
}

func (p *renderPass) SetStencilReference(reference uint32) {
	p.r.add(Command{Op: "SetStencilReference", Args: []uint32{reference}})
}

func (p *renderPass) SetBlendConstant(*gputypes.Color) {
	p.r.add(Command{Op: "SetBlendConstant"})
}

func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.r.add(Command{Op: "Draw", Args: []uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (p *renderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.r.add(Command{Op: "DrawIndexed", Args: []uint32{indexCount, instanceCount, firstIndex, uint32(baseVertex), firstInstance}})
}

func (p *renderPass) DrawIndirect(buffer hal.Buffer, offset uint64) {
	p.r.add(Command{Op: "DrawIndirect", Buffer: buffer, Offset: offset})
}

func (p *renderPass) DrawIndexedIndirect(buffer hal.Buffer, offset uint64) {
	p.r.add(Command{Op: "DrawIndexedIndirect", Buffer: buffer, Offset: offset})
}

func (p *renderPass) DrawMeshTasks(x, y, z uint32) {
	p.r.add(Command{Op: "DrawMeshTasks", Args: []uint32{x, y, z}})
}

func (p *renderPass) DrawMeshTasksIndirect(buffer hal.Buffer, offset uint64, drawCount, stride uint32) {
	p.r.add(Command{Op: "DrawMeshTasksIndirect", Buffer: buffer, Offset: offset, Args: []uint32{drawCount, stride}})
}

func (p *renderPass) SetPushConstants(stages, offset uint32, data []byte) {
	p.r.add(Command{Op: "SetPushConstants", Offset: uint64(offset), Size: uint64(len(data)), Args: []uint32{stages}})
}

func (p *renderPass) NextSubpass() { p.r.add(Command{Op: "NextSubpass"}) }

func (p *renderPass) End() { p.r.add(Command{Op: "EndRenderPass"}) }

type computePass struct {
	r *Recorder
}

func (p *computePass) SetPipeline(pipeline hal.ComputePipeline) {
	p.r.add(Command{Op: "SetComputePipeline", Pipeline: pipeline})
}

func (p *computePass) SetBindGroup(index uint32, _ hal.BindGroup, offsets []uint32) {
	p.r.add(Command{Op: "SetComputeBindGroup", Index: index, Args: append([]uint32(nil), offsets...)})
}

func (p *computePass) Dispatch(x, y, z uint32) {
	p.r.add(Command{Op: "Dispatch", Args: []uint32{x, y, z}})
}

func (p *computePass) DispatchIndirect(buffer hal.Buffer, offset uint64) {
	p.r.add(Command{Op: "DispatchIndirect", Buffer: buffer, Offset: offset})
}

func (p *computePass) SetPushConstants(stages, offset uint32, data []byte) {
	p.r.add(Command{Op: "SetPushConstants", Offset: uint64(offset), Size: uint64(len(data)), Args: []uint32{stages}})
}

func (p *computePass) End() { p.r.add(Command{Op: "EndComputePass"}) }

var (
	_ native.CommandEncoder     = (*Recorder)(nil)
	_ native.DebugEncoder       = (*Recorder)(nil)
	_ native.Blitter            = (*Recorder)(nil)
	_ native.RayTracer          = (*Recorder)(nil)
	_ native.MeshEncoder        = (*renderPass)(nil)
	_ native.PushConstantSetter = (*renderPass)(nil)
	_ native.PushConstantSetter = (*computePass)(nil)
)
