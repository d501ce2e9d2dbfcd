package framegraph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/native"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/resource"
)

const renderStages = uint32(gputypes.ShaderStageVertex | gputypes.ShaderStageFragment)

// attachmentOps are the load and store operations of one attachment at its
// position in a render pass.
type attachmentOps struct {
	load  gputypes.LoadOp
	store gputypes.StoreOp
}

type subpassLayout struct {
	targets pipeline.Targets
	colors  []attachmentOps
	depth   attachmentOps
}

// passLayout is the attachment layout of a render pass: formats, sample
// counts and the load/store operations resolved across its subpasses.
// Passes of the same shape share one layout.
type passLayout struct {
	subpasses []subpassLayout
}

// passImages are the resolved attachments of one subpass.
type passImages struct {
	colors   []*resource.Image
	resolves []*resource.Image
	depth    *resource.Image
}

// preparedSubpass is a subpass whose pipelines and barriers are ready.
type preparedSubpass struct {
	targets pipeline.Targets
	extent  [2]uint32
	// draws holds the pipeline of each draw; nil marks a skipped draw.
	draws []*pipeline.Instance
}

// activeChain is the render pass being recorded.
type activeChain struct {
	chain       *passChain
	next        int
	pass        native.RenderPassEncoder
	subpasses   []preparedSubpass
	debugPushed bool
}

func (p *Processor) runSubpass(s *Subpass) error {
	if s.pos == 0 {
		if err := p.beginChain(s.chain); err != nil {
			return err
		}
	} else {
		p.chain.pass.NextSubpass()
		p.bound.reset()
	}

	ac := p.chain
	err := p.recordSubpass(s, &ac.subpasses[s.pos])
	ac.next++
	if err != nil || s.Last() {
		p.endChain()
	}
	return err
}

func (p *Processor) endChain() {
	ac := p.chain
	ac.pass.End()
	p.chain = nil
	p.bound.reset()
	if ac.debugPushed && p.debug != nil {
		p.debug.PopDebugGroup()
	}
}

// beginChain prepares every subpass of ch, commits their barriers and opens
// the native pass. Native subpasses cannot be interrupted by barriers, so
// the whole chain is declared up front.
func (p *Processor) beginChain(ch *passChain) error {
	images := make([]passImages, len(ch.subpasses))
	for i, sp := range ch.subpasses {
		if err := p.resolveAttachments(sp, &images[i]); err != nil {
			return err
		}
	}

	layout, err := p.passLayouts.GetOrCreate(passLayoutKey(ch, images), func() (*passLayout, error) {
		return newPassLayout(ch, images), nil
	})
	if err != nil {
		return err
	}

	prepared := make([]preparedSubpass, len(ch.subpasses))
	for i, sp := range ch.subpasses {
		p.declareAttachments(sp, &images[i])
		p.declareUses(sp.Uses)
		prep := &prepared[i]
		prep.targets = layout.subpasses[i].targets
		prep.extent = images[i].extent()
		prep.draws = make([]*pipeline.Instance, len(sp.Draws))
		for j := range sp.Draws {
			item := &sp.Draws[j]
			if !p.declareDraw(item) {
				continue
			}
			inst, err := p.drawPipeline(&item.Pipeline, prep.targets)
			if err != nil {
				return fmt.Errorf("framegraph: subpass %q draw %d: %w", sp.Name, j, err)
			}
			prep.draws[j] = inst
		}
	}

	if err := p.commit(); err != nil {
		return err
	}

	desc := &native.RenderPassDescriptor{
		Label:     ch.label,
		Subpasses: make([]native.SubpassDescriptor, len(ch.subpasses)),
	}
	for i, sp := range ch.subpasses {
		desc.Subpasses[i] = subpassDescriptor(sp, &images[i], &layout.subpasses[i])
	}
	p.chain = &activeChain{
		chain:     ch,
		pass:      p.enc.BeginRenderPass(desc),
		subpasses: prepared,
	}
	p.bound.reset()
	return nil
}

func (p *Processor) resolveImage(h resource.Handle, sp *Subpass) (*resource.Image, error) {
	px, err := p.resolver.ToLocal(h)
	if err != nil {
		return nil, fmt.Errorf("%w: attachment %s of %q: %w", ErrResourceMissing, h, sp.Name, err)
	}
	img, ok := px.(*resource.Image)
	if !ok {
		return nil, fmt.Errorf("%w: attachment %s of %q is a %s", resource.ErrKindMismatch, h, sp.Name, px.Kind())
	}
	return img, nil
}

func (p *Processor) resolveAttachments(sp *Subpass, out *passImages) error {
	if len(sp.Colors) > pipeline.MaxColorTargets {
		return fmt.Errorf("%w: %q has %d color attachments", ErrInvalidTask, sp.Name, len(sp.Colors))
	}
	out.colors = make([]*resource.Image, len(sp.Colors))
	out.resolves = make([]*resource.Image, len(sp.Colors))
	for i, a := range sp.Colors {
		img, err := p.resolveImage(a.Image, sp)
		if err != nil {
			return err
		}
		out.colors[i] = img
		if !a.Resolve.IsZero() {
			if out.resolves[i], err = p.resolveImage(a.Resolve, sp); err != nil {
				return err
			}
		}
	}
	if sp.Depth != nil {
		img, err := p.resolveImage(sp.Depth.Image, sp)
		if err != nil {
			return err
		}
		out.depth = img
	}
	return nil
}

func (imgs *passImages) extent() [2]uint32 {
	if len(imgs.colors) > 0 {
		d := imgs.colors[0].Desc()
		return [2]uint32{d.Width, d.Height}
	}
	if imgs.depth != nil {
		d := imgs.depth.Desc()
		return [2]uint32{d.Width, d.Height}
	}
	return [2]uint32{}
}

func (p *Processor) declareAttachments(sp *Subpass, imgs *passImages) {
	for i, a := range sp.Colors {
		assert(!(a.ReadOnly && a.Load == gputypes.LoadOpClear), "subpass %q clears read-only color attachment %d", sp.Name, i)
		p.declareImage(imgs.colors[i], resource.Use(a.access(false)))
		if imgs.resolves[i] != nil {
			p.declareImage(imgs.resolves[i], resource.Use(resource.AccessColorWrite))
		}
	}
	if sp.Depth != nil {
		assert(!(sp.Depth.ReadOnly && sp.Depth.Load == gputypes.LoadOpClear), "subpass %q clears read-only depth attachment", sp.Name)
		p.declareImage(imgs.depth, resource.Use(sp.Depth.access(true)))
	}
}

// declareImage queues st on an already resolved attachment.
func (p *Processor) declareImage(img *resource.Image, st resource.State) {
	if err := p.barriers.Declare(img, st.By(p.task)); err != nil {
		p.softFail(img.Handle(), err)
	}
}

// drawArguments returns the buffers a draw passes to the native command.
func drawArguments(item *DrawItem) []resource.Handle {
	args := make([]resource.Handle, 0, len(item.VertexBuffers)+2)
	for _, vb := range item.VertexBuffers {
		args = append(args, vb.Buffer)
	}
	if item.Index != nil {
		args = append(args, item.Index.Buffer)
	}
	if item.Indirect != nil {
		args = append(args, item.Indirect.Buffer)
	}
	return args
}

// declareDraw queues the states of one draw. A draw whose vertex, index or
// indirect buffer does not resolve cannot be recorded and queues nothing.
func (p *Processor) declareDraw(item *DrawItem) bool {
	if !p.resolvable(drawArguments(item)...) {
		return false
	}
	p.declareBindings(item.Bindings)
	for _, vb := range item.VertexBuffers {
		declare[*resource.Buffer](p, vb.Buffer, resource.Use(resource.AccessVertexRead).In(resource.Bytes(vb.Offset, resource.WholeSize)))
	}
	if ib := item.Index; ib != nil {
		declare[*resource.Buffer](p, ib.Buffer, resource.Use(resource.AccessIndexRead).In(resource.Bytes(ib.Offset, resource.WholeSize)))
	}
	if args := item.Indirect; args != nil {
		declare[*resource.Buffer](p, args.Buffer, resource.Use(resource.AccessIndirectRead).In(resource.Bytes(args.Offset, resource.WholeSize)))
	}
	return true
}

func (p *Processor) drawPipeline(dp *DrawPipeline, targets pipeline.Targets) (*pipeline.Instance, error) {
	if dp.Layout == nil {
		return nil, ErrMissingLayout
	}
	if dp.Mesh {
		return p.pipelines.Mesh(&pipeline.MeshRequest{
			Layout:  dp.Layout,
			State:   dp.State,
			Dynamic: dp.Dynamic,
			Debug:   p.opts.debugMode,
			Targets: targets,
		})
	}
	return p.pipelines.Graphics(&pipeline.GraphicsRequest{
		Layout:  dp.Layout,
		State:   dp.State,
		Vertex:  dp.Vertex,
		Dynamic: dp.Dynamic,
		Debug:   p.opts.debugMode,
		Targets: targets,
	})
}

func (p *Processor) recordSubpass(s *Subpass, prep *preparedSubpass) error {
	for i := range s.Draws {
		inst := prep.draws[i]
		if inst == nil {
			continue
		}
		if err := p.draw(&s.Draws[i], inst); err != nil {
			return fmt.Errorf("framegraph: subpass %q draw %d: %w", s.Name, i, err)
		}
	}
	if s.Record == nil {
		return nil
	}
	dc := newDrawContext(p, s, prep)
	defer dc.close()
	return s.Record(dc)
}

func (p *Processor) draw(item *DrawItem, inst *pipeline.Instance) error {
	pass := p.chain.pass
	if item.Pipeline.Mesh {
		if _, ok := pass.(native.MeshEncoder); !ok {
			return ErrMeshUnsupported
		}
	}

	p.bindRenderPipeline(inst)
	p.applyStaticState(inst)
	p.applyDynamicState(inst.Dynamic, item.Viewport, item.Scissor, item.StencilReference, item.BlendConstant)
	p.bound.bindGroups(item.Bindings, func(i uint32, g *BindGroup, offsets []uint32) {
		pass.SetBindGroup(i, g.Native, offsets)
	})

	for slot, vb := range item.VertexBuffers {
		buf, ok := lookup[*resource.Buffer](p, vb.Buffer)
		if !ok {
			return nil
		}
		p.bindVertexBuffer(slot, buf, vb.Offset)
	}
	if ib := item.Index; ib != nil {
		buf, ok := lookup[*resource.Buffer](p, ib.Buffer)
		if !ok {
			return nil
		}
		p.bindIndexBuffer(buf, ib.Offset, ib.Format)
	}
	if err := pushConstants(pass, inst.Layout, renderStages, item.PushConstants); err != nil {
		return err
	}

	var indirect *resource.Buffer
	if args := item.Indirect; args != nil {
		buf, ok := lookup[*resource.Buffer](p, args.Buffer)
		if !ok {
			return nil
		}
		indirect = buf
	}
	instances := max(item.Instances, 1)
	switch {
	case item.Pipeline.Mesh:
		me := pass.(native.MeshEncoder)
		if indirect != nil {
			me.DrawMeshTasksIndirect(indirect.Native(), item.Indirect.Offset, max(item.Indirect.DrawCount, 1), item.Indirect.Stride)
		} else {
			me.DrawMeshTasks(item.MeshGroups[0], item.MeshGroups[1], item.MeshGroups[2])
		}
	case item.Index != nil && indirect != nil:
		pass.DrawIndexedIndirect(indirect.Native(), item.Indirect.Offset)
	case item.Index != nil:
		pass.DrawIndexed(item.Count, instances, item.First, item.BaseVertex, item.FirstInstance)
	case indirect != nil:
		pass.DrawIndirect(indirect.Native(), item.Indirect.Offset)
	default:
		pass.Draw(item.Count, instances, item.First, item.FirstInstance)
	}
	p.stats.add(CounterDraws, 1)
	return nil
}

func (p *Processor) bindRenderPipeline(inst *pipeline.Instance) {
	if !p.bound.setPipeline(inst) {
		return
	}
	p.chain.pass.SetPipeline(inst.Render())
	p.stats.add(CounterPipelineBinds, 1)
}

func (p *Processor) bindVertexBuffer(slot int, buf *resource.Buffer, offset uint64) {
	if p.bound.setVertex(slot, buf, offset) {
		p.chain.pass.SetVertexBuffer(uint32(slot), buf.Native(), offset) //nolint:gosec // G115: vertex slot is small
	}
}

func (p *Processor) bindIndexBuffer(buf *resource.Buffer, offset uint64, format gputypes.IndexFormat) {
	if p.bound.setIndex(buf, offset, format) {
		p.chain.pass.SetIndexBuffer(buf.Native(), format, offset)
	}
}

// applyStaticState sets the pass state a pipeline carries statically.
func (p *Processor) applyStaticState(inst *pipeline.Instance) {
	st, dyn := &inst.State, inst.Dynamic
	if !dyn.Has(pipeline.DynamicViewport) && st.Viewport.Width > 0 {
		p.setViewport(st.Viewport)
	}
	if !dyn.Has(pipeline.DynamicScissor) && st.Scissor.Width > 0 {
		p.setScissor(st.Scissor)
	}
	if !dyn.Has(pipeline.DynamicStencilReference) && st.Stencil.Enabled {
		p.setStencilReference(st.Stencil.Reference)
	}
	if !dyn.Has(pipeline.DynamicBlendConstant) && st.BlendConstant != [4]float32{} {
		p.setBlendConstant(st.BlendConstant)
	}
}

// applyDynamicState sets the values of the states dyn marks dynamic.
// A nil value leaves the pass state unchanged.
func (p *Processor) applyDynamicState(dyn pipeline.DynamicState, vp *pipeline.Viewport, sc *pipeline.Scissor, ref *uint32, blend *[4]float32) {
	if vp != nil && dyn.Has(pipeline.DynamicViewport) {
		p.setViewport(*vp)
	}
	if sc != nil && dyn.Has(pipeline.DynamicScissor) {
		p.setScissor(*sc)
	}
	if ref != nil && dyn.Has(pipeline.DynamicStencilReference) {
		p.setStencilReference(*ref)
	}
	if blend != nil && dyn.Has(pipeline.DynamicBlendConstant) {
		p.setBlendConstant(*blend)
	}
}

func (p *Processor) setViewport(v pipeline.Viewport) {
	if p.bound.setViewport(v) {
		p.chain.pass.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
	}
}

func (p *Processor) setScissor(s pipeline.Scissor) {
	if p.bound.setScissor(s) {
		p.chain.pass.SetScissorRect(s.X, s.Y, s.Width, s.Height)
	}
}

func (p *Processor) setStencilReference(ref uint32) {
	if p.bound.setStencil(ref) {
		p.chain.pass.SetStencilReference(ref)
	}
}

func (p *Processor) setBlendConstant(c [4]float32) {
	if p.bound.setBlend(c) {
		p.chain.pass.SetBlendConstant(&gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])})
	}
}

// passLayoutKey encodes the shape of a render pass. Attachments are named by
// the order in which their images first appear in the chain, so passes over
// different images of the same formats share a key.
func passLayoutKey(ch *passChain, images []passImages) string {
	var sb strings.Builder
	ordinals := make(map[*resource.Image]int)
	ordinal := func(img *resource.Image) int {
		if n, ok := ordinals[img]; ok {
			return n
		}
		n := len(ordinals)
		ordinals[img] = n
		return n
	}
	writeAttachment := func(tag byte, img *resource.Image, a *Attachment, resolve bool) {
		d := img.Desc()
		sb.WriteByte(tag)
		sb.WriteString(strconv.Itoa(ordinal(img)))
		fmt.Fprintf(&sb, ":%d:%d:%d:%d:%t:%t;", d.Format, d.SampleCount, a.Load, a.Store, a.ReadOnly, resolve)
	}
	for i, sp := range ch.subpasses {
		sb.WriteByte('|')
		for j := range sp.Colors {
			writeAttachment('c', images[i].colors[j], &sp.Colors[j], images[i].resolves[j] != nil)
		}
		if sp.Depth != nil {
			writeAttachment('d', images[i].depth, sp.Depth, false)
		}
	}
	return sb.String()
}

// newPassLayout resolves attachment formats and load/store operations for
// every subpass of ch. An image keeps its own load operation only where it
// first appears in the chain and loads afterwards; it is stored whenever a
// later subpass uses it again.
func newPassLayout(ch *passChain, images []passImages) *passLayout {
	first := make(map[*resource.Image]int)
	last := make(map[*resource.Image]int)
	note := func(img *resource.Image, i int) {
		if _, ok := first[img]; !ok {
			first[img] = i
		}
		last[img] = i
	}
	for i := range images {
		for _, img := range images[i].colors {
			note(img, i)
		}
		if images[i].depth != nil {
			note(images[i].depth, i)
		}
	}
	ops := func(img *resource.Image, a *Attachment, i int) attachmentOps {
		o := attachmentOps{load: a.Load, store: a.Store}
		if first[img] < i {
			o.load = gputypes.LoadOpLoad
		}
		if last[img] > i {
			o.store = gputypes.StoreOpStore
		}
		return o
	}

	l := &passLayout{subpasses: make([]subpassLayout, len(ch.subpasses))}
	for i, sp := range ch.subpasses {
		sl := &l.subpasses[i]
		sl.colors = make([]attachmentOps, len(sp.Colors))
		sl.targets.ColorCount = uint8(len(sp.Colors)) //nolint:gosec // G115: bounded by MaxColorTargets
		for j, img := range images[i].colors {
			d := img.Desc()
			sl.targets.ColorFormats[j] = d.Format
			sl.targets.SampleCount = max(sl.targets.SampleCount, d.SampleCount)
			sl.colors[j] = ops(img, &sp.Colors[j], i)
		}
		if img := images[i].depth; img != nil {
			d := img.Desc()
			sl.targets.DepthFormat = d.Format
			sl.targets.SampleCount = max(sl.targets.SampleCount, d.SampleCount)
			sl.depth = ops(img, sp.Depth, i)
		}
	}
	return l
}

func subpassDescriptor(sp *Subpass, imgs *passImages, sl *subpassLayout) native.SubpassDescriptor {
	var d native.SubpassDescriptor
	d.ColorAttachments = make([]hal.RenderPassColorAttachment, len(sp.Colors))
	for i, a := range sp.Colors {
		ca := &d.ColorAttachments[i]
		ca.View = imgs.colors[i].View()
		if r := imgs.resolves[i]; r != nil {
			ca.ResolveTarget = r.View()
		}
		ca.LoadOp = sl.colors[i].load
		ca.StoreOp = sl.colors[i].store
		ca.ClearValue = a.Clear
	}
	if sp.Depth != nil {
		d.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              imgs.depth.View(),
			DepthLoadOp:       sl.depth.load,
			DepthStoreOp:      sl.depth.store,
			DepthClearValue:   sp.Depth.ClearDepth,
			StencilLoadOp:     sl.depth.load,
			StencilStoreOp:    sl.depth.store,
			StencilClearValue: sp.Depth.ClearStencil,
		}
	}
	return d
}
