package framegraph

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/native"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/resource"
)

// dirtyState tracks what a DrawContext must resolve before its next draw.
// Each level includes the work of the levels below it.
type dirtyState uint8

const (
	clean dirtyState = iota
	// dynamicDirty: only dynamic pass state changed.
	dynamicDirty
	// pipelineDirty: the pipeline must be looked up again.
	pipelineDirty
)

func (d *dirtyState) mark(s dirtyState) {
	if s > *d {
		*d = s
	}
}

// DrawContext records draws with mutable render state from a Subpass
// callback. Pipelines are looked up in the processor's cache with every
// dynamic state enabled, so viewport, scissor, stencil reference and blend
// constant changes never create pipelines.
//
// Resources bound through a DrawContext are not declared: their uses must be
// declared with Subpass.Use, because barriers cannot be recorded inside a
// render pass. While a vertex slot holds a buffer that failed to resolve,
// vertex draws are skipped; indexed draws are also skipped while the index
// buffer did. Binding a valid buffer clears the failure.
//
// A DrawContext is valid only during the callback that received it.
type DrawContext struct {
	p       *Processor
	subpass *Subpass
	targets pipeline.Targets

	kind   pipeline.Kind
	layout *pipeline.Layout
	state  pipeline.RenderState
	vertex pipeline.VertexInput

	viewport pipeline.Viewport
	scissor  pipeline.Scissor
	stencil  uint32
	blend    [4]float32

	dirty    dirtyState
	instance *pipeline.Instance
	closed   bool

	// missingVertex holds the slots whose last bind did not resolve.
	missingVertex map[uint32]struct{}
	missingIndex  bool
}

func newDrawContext(p *Processor, s *Subpass, prep *preparedSubpass) *DrawContext {
	w, h := prep.extent[0], prep.extent[1]
	return &DrawContext{
		p:        p,
		subpass:  s,
		targets:  prep.targets,
		kind:     pipeline.KindGraphics,
		state:    pipeline.DefaultRenderState(),
		viewport: pipeline.Viewport{Width: float32(w), Height: float32(h), MaxDepth: 1},
		scissor:  pipeline.Scissor{Width: w, Height: h},
		dirty:    pipelineDirty,
	}
}

func (d *DrawContext) close() { d.closed = true }

// Targets returns the attachment formats of the subpass.
func (d *DrawContext) Targets() pipeline.Targets { return d.targets }

// SetLayout selects the pipeline layout and its shaders.
func (d *DrawContext) SetLayout(l *pipeline.Layout) {
	if d.layout != l {
		d.layout = l
		d.dirty.mark(pipelineDirty)
	}
}

// SetMesh switches between the vertex and the task/mesh shading path.
func (d *DrawContext) SetMesh(mesh bool) {
	kind := pipeline.KindGraphics
	if mesh {
		kind = pipeline.KindMesh
	}
	if d.kind != kind {
		d.kind = kind
		d.dirty.mark(pipelineDirty)
	}
}

// SetRenderState replaces the whole fixed-function state. The stencil
// reference of s becomes the current dynamic reference.
func (d *DrawContext) SetRenderState(s pipeline.RenderState) {
	d.state = s
	d.SetStencilReference(s.Stencil.Reference)
	d.dirty.mark(pipelineDirty)
}

// RenderState returns the current fixed-function state.
func (d *DrawContext) RenderState() pipeline.RenderState { return d.state }

// SetBlend sets the blend state of color target i.
func (d *DrawContext) SetBlend(i int, b pipeline.TargetBlend) error {
	if i < 0 || i >= pipeline.MaxColorTargets {
		return fmt.Errorf("%w: color target %d out of range", ErrInvalidTask, i)
	}
	if d.state.Blend[i] != b {
		d.state.Blend[i] = b
		d.dirty.mark(pipelineDirty)
	}
	return nil
}

// SetDepth sets the depth test state.
func (d *DrawContext) SetDepth(s pipeline.DepthState) {
	if d.state.Depth != s {
		d.state.Depth = s
		d.dirty.mark(pipelineDirty)
	}
}

// SetStencil sets the stencil test state and its reference.
func (d *DrawContext) SetStencil(s pipeline.StencilState) {
	d.SetStencilReference(s.Reference)
	s.Reference = 0
	cur := d.state.Stencil
	cur.Reference = 0
	if cur != s {
		d.state.Stencil = s
		d.dirty.mark(pipelineDirty)
	}
}

// SetRaster sets the rasterizer state.
func (d *DrawContext) SetRaster(s pipeline.RasterState) {
	if d.state.Raster != s {
		d.state.Raster = s
		d.dirty.mark(pipelineDirty)
	}
}

// SetMultisample sets the multisample state.
func (d *DrawContext) SetMultisample(s pipeline.MultisampleState) {
	if d.state.Multisample != s {
		d.state.Multisample = s
		d.dirty.mark(pipelineDirty)
	}
}

// SetVertexInput sets the vertex buffer layouts.
func (d *DrawContext) SetVertexInput(v pipeline.VertexInput) {
	d.vertex = v
	d.dirty.mark(pipelineDirty)
}

// SetViewport sets the viewport. It defaults to the whole subpass extent.
func (d *DrawContext) SetViewport(v pipeline.Viewport) {
	if d.viewport != v {
		d.viewport = v
		d.dirty.mark(dynamicDirty)
	}
}

// SetScissor sets the scissor rectangle. It defaults to the whole subpass extent.
func (d *DrawContext) SetScissor(s pipeline.Scissor) {
	if d.scissor != s {
		d.scissor = s
		d.dirty.mark(dynamicDirty)
	}
}

// SetStencilReference sets the stencil reference value.
func (d *DrawContext) SetStencilReference(ref uint32) {
	if d.stencil != ref {
		d.stencil = ref
		d.dirty.mark(dynamicDirty)
	}
}

// SetBlendConstant sets the constant blend color.
func (d *DrawContext) SetBlendConstant(c [4]float32) {
	if d.blend != c {
		d.blend = c
		d.dirty.mark(dynamicDirty)
	}
}

// BindGroup binds g at index. Rebinding the same group with the same
// offsets records nothing.
func (d *DrawContext) BindGroup(index uint32, g *BindGroup, dynamicOffsets ...uint32) error {
	if d.closed {
		return ErrDrawOutsidePass
	}
	if g == nil {
		return fmt.Errorf("%w: nil bind group at index %d", ErrInvalidTask, index)
	}
	if d.p.bound.setGroup(int(index), g, dynamicOffsets) {
		d.p.chain.pass.SetBindGroup(index, g.Native, dynamicOffsets)
	}
	return nil
}

// SetVertexBuffer binds h to a vertex slot.
func (d *DrawContext) SetVertexBuffer(slot uint32, h resource.Handle, offset uint64) error {
	if d.closed {
		return ErrDrawOutsidePass
	}
	buf, ok := lookup[*resource.Buffer](d.p, h)
	if !ok {
		if d.missingVertex == nil {
			d.missingVertex = make(map[uint32]struct{})
		}
		d.missingVertex[slot] = struct{}{}
		return nil
	}
	delete(d.missingVertex, slot)
	d.p.bindVertexBuffer(int(slot), buf, offset)
	return nil
}

// SetIndexBuffer binds h as the index buffer.
func (d *DrawContext) SetIndexBuffer(h resource.Handle, format gputypes.IndexFormat, offset uint64) error {
	if d.closed {
		return ErrDrawOutsidePass
	}
	buf, ok := lookup[*resource.Buffer](d.p, h)
	d.missingIndex = !ok
	if !ok {
		return nil
	}
	d.p.bindIndexBuffer(buf, offset, format)
	return nil
}

// unresolved reports whether a vertex draw, or an indexed one, would read
// a buffer that failed to bind.
func (d *DrawContext) unresolved(indexed bool) bool {
	return len(d.missingVertex) > 0 || (indexed && d.missingIndex)
}

// PushConstants uploads push constants for the vertex and fragment stages.
func (d *DrawContext) PushConstants(data []byte) error {
	if err := d.flush(d.kind); err != nil {
		return err
	}
	return pushConstants(d.p.chain.pass, d.instance.Layout, renderStages, data)
}

// Draw draws count vertices.
func (d *DrawContext) Draw(count, instances, first, firstInstance uint32) error {
	if err := d.flush(pipeline.KindGraphics); err != nil || d.unresolved(false) {
		return err
	}
	d.p.chain.pass.Draw(count, max(instances, 1), first, firstInstance)
	d.p.stats.add(CounterDraws, 1)
	return nil
}

// DrawIndexed draws count indices from the bound index buffer.
func (d *DrawContext) DrawIndexed(count, instances, firstIndex uint32, baseVertex int32, firstInstance uint32) error {
	if err := d.flush(pipeline.KindGraphics); err != nil || d.unresolved(true) {
		return err
	}
	d.p.chain.pass.DrawIndexed(count, max(instances, 1), firstIndex, baseVertex, firstInstance)
	d.p.stats.add(CounterDraws, 1)
	return nil
}

// DrawIndirect draws with arguments read from args.Buffer.
func (d *DrawContext) DrawIndirect(args IndirectArgs) error {
	return d.drawIndirect(args, false)
}

// DrawIndexedIndirect draws indexed with arguments read from args.Buffer.
func (d *DrawContext) DrawIndexedIndirect(args IndirectArgs) error {
	return d.drawIndirect(args, true)
}

func (d *DrawContext) drawIndirect(args IndirectArgs, indexed bool) error {
	if err := d.flush(pipeline.KindGraphics); err != nil || d.unresolved(indexed) {
		return err
	}
	buf, ok := lookup[*resource.Buffer](d.p, args.Buffer)
	if !ok {
		return nil
	}
	if indexed {
		d.p.chain.pass.DrawIndexedIndirect(buf.Native(), args.Offset)
	} else {
		d.p.chain.pass.DrawIndirect(buf.Native(), args.Offset)
	}
	d.p.stats.add(CounterDraws, 1)
	return nil
}

// DrawMeshTasks launches x*y*z task or mesh workgroups.
func (d *DrawContext) DrawMeshTasks(x, y, z uint32) error {
	me, err := d.meshEncoder()
	if err != nil {
		return err
	}
	me.DrawMeshTasks(x, y, z)
	d.p.stats.add(CounterDraws, 1)
	return nil
}

// DrawMeshTasksIndirect launches mesh work with arguments read from args.Buffer.
func (d *DrawContext) DrawMeshTasksIndirect(args IndirectArgs) error {
	me, err := d.meshEncoder()
	if err != nil {
		return err
	}
	buf, ok := lookup[*resource.Buffer](d.p, args.Buffer)
	if !ok {
		return nil
	}
	me.DrawMeshTasksIndirect(buf.Native(), args.Offset, max(args.DrawCount, 1), args.Stride)
	d.p.stats.add(CounterDraws, 1)
	return nil
}

func (d *DrawContext) meshEncoder() (native.MeshEncoder, error) {
	if err := d.flush(pipeline.KindMesh); err != nil {
		return nil, err
	}
	me, ok := d.p.chain.pass.(native.MeshEncoder)
	if !ok {
		return nil, ErrMeshUnsupported
	}
	return me, nil
}

// flush resolves dirty state before a draw of the given kind.
func (d *DrawContext) flush(want pipeline.Kind) error {
	if d.closed {
		return ErrDrawOutsidePass
	}
	if d.kind != want {
		return fmt.Errorf("%w: %s draw with a %s pipeline", ErrInvalidTask, want, d.kind)
	}
	switch d.dirty {
	case pipelineDirty:
		inst, err := d.lookupPipeline()
		if err != nil {
			return err
		}
		d.instance = inst
		d.p.bindRenderPipeline(inst)
		fallthrough
	case dynamicDirty:
		d.p.setViewport(d.viewport)
		d.p.setScissor(d.scissor)
		if d.state.Stencil.Enabled {
			d.p.setStencilReference(d.stencil)
		}
		d.p.setBlendConstant(d.blend)
	case clean:
	}
	d.dirty = clean
	return nil
}

func (d *DrawContext) lookupPipeline() (*pipeline.Instance, error) {
	if d.layout == nil {
		return nil, ErrMissingLayout
	}
	switch d.kind {
	case pipeline.KindGraphics:
		return d.p.pipelines.Graphics(&pipeline.GraphicsRequest{
			Layout:  d.layout,
			State:   d.state,
			Vertex:  d.vertex,
			Dynamic: pipeline.DynamicAll,
			Debug:   d.p.opts.debugMode,
			Targets: d.targets,
		})
	case pipeline.KindMesh:
		return d.p.pipelines.Mesh(&pipeline.MeshRequest{
			Layout:  d.layout,
			State:   d.state,
			Dynamic: pipeline.DynamicAll,
			Debug:   d.p.opts.debugMode,
			Targets: d.targets,
		})
	case pipeline.KindCompute, pipeline.KindRayTracing:
		return nil, fmt.Errorf("%w: %s pipeline inside a render pass", ErrInvalidTask, d.kind)
	}
	return nil, fmt.Errorf("%w: unknown pipeline kind %d", ErrInvalidTask, d.kind)
}
