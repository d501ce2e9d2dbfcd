package framegraph

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/cache"
	"github.com/gogpu/framegraph/native"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/resource"
)

// Processor compiles tasks into a native command stream.
//
// Each task is compiled in four steps: declare the resource states it
// needs, resolve its pipelines, commit the resulting barriers, then emit
// its commands. Redundant binds of pipelines, bind groups, vertex and index
// buffers and dynamic state are suppressed within a native pass.
//
// A Processor is used by one goroutine at a time. The pipeline cache it
// draws from may be shared between processors.
type Processor struct {
	opts      processorOptions
	logger    *slog.Logger
	table     *resource.Table
	resolver  Resolver
	barriers  *resource.Barriers
	pipelines *pipeline.Cache

	passLayouts *cache.LRU[string, *passLayout]

	stats counters

	recording bool
	enc       native.CommandEncoder
	debug     native.DebugEncoder

	task     uint32
	taskName string

	chain   *activeChain
	bound   boundState
	rtBound boundState
}

// NewProcessor creates a processor over the resources of table and the
// pipelines of pipelines.
func NewProcessor(table *resource.Table, pipelines *pipeline.Cache, opts ...ProcessorOption) *Processor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p := &Processor{
		opts:        o,
		logger:      o.logger,
		table:       table,
		resolver:    o.resolver,
		barriers:    resource.NewBarriers(table),
		pipelines:   pipelines,
		passLayouts: cache.NewLRU[string, *passLayout](o.passCacheSize, nil),
		stats:       counters{fn: o.counter},
	}
	if p.resolver == nil {
		p.resolver = table
	}
	return p
}

// Begin starts recording into enc.
func (p *Processor) Begin(enc native.CommandEncoder) error {
	if p.recording {
		return ErrAlreadyRecording
	}
	if enc == nil {
		return fmt.Errorf("%w: nil encoder", ErrInvalidTask)
	}
	p.recording = true
	p.enc = enc
	p.debug, _ = enc.(native.DebugEncoder)
	p.bound.reset()
	p.rtBound.reset()
	p.logger.Debug("framegraph: begin recording")
	return nil
}

// Run compiles one task. A task must have been added to a Graph. Soft
// failures are logged and skipped; the returned error is structural.
func (p *Processor) Run(t Task) error {
	if !p.recording {
		return ErrNotRecording
	}
	base := t.Base()
	if base.index == 0 {
		return fmt.Errorf("%w: %q", ErrNotSubmitted, base.Name)
	}
	if err := p.checkOrder(t); err != nil {
		return err
	}

	p.task = base.index
	p.taskName = base.Name

	pushed := false
	if p.opts.debugLabels && p.debug != nil && p.chain == nil {
		p.debug.PushDebugGroup(base.Name, base.Color)
		pushed = true
	}

	err := t.process(p)
	if err != nil {
		p.barriers.Reset()
	}

	if pushed {
		if p.chain != nil {
			p.chain.debugPushed = true
		} else {
			p.debug.PopDebugGroup()
		}
	}
	return err
}

func (p *Processor) checkOrder(t Task) error {
	sp, isSubpass := t.(*Subpass)
	if p.chain == nil {
		if isSubpass && sp.pos != 0 {
			return fmt.Errorf("%w: %q runs before the first subpass of %q", ErrSubpassOrder, sp.Name, sp.chain.label)
		}
		return nil
	}
	if !isSubpass {
		return fmt.Errorf("%w: %q runs inside %q", ErrRenderPassOpen, t.Base().Name, p.chain.chain.label)
	}
	if sp.chain != p.chain.chain || sp.pos != p.chain.next {
		return fmt.Errorf("%w: %q", ErrSubpassOrder, sp.Name)
	}
	return nil
}

// End finishes recording. Ending inside a render pass closes the pass and
// returns ErrIncompleteRenderPass.
func (p *Processor) End() error {
	if !p.recording {
		return ErrNotRecording
	}
	var err error
	if p.chain != nil {
		err = fmt.Errorf("%w: %q", ErrIncompleteRenderPass, p.chain.chain.label)
		p.endChain()
	}
	p.barriers.Reset()
	p.recording = false
	p.enc = nil
	p.debug = nil
	p.bound.reset()
	p.rtBound.reset()
	p.logger.Debug("framegraph: end recording",
		"draws", p.stats.v[CounterDraws],
		"dispatches", p.stats.v[CounterDispatches],
		"barriers", p.stats.v[CounterBarriers])
	return err
}

// Recording reports whether the processor is between Begin and End.
func (p *Processor) Recording() bool { return p.recording }

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() Stats { return p.stats.snapshot() }

// ResetStats zeroes the counters.
func (p *Processor) ResetStats() { p.stats.reset() }

// PassLayoutStats returns the statistics of the render pass layout cache.
func (p *Processor) PassLayoutStats() cache.Stats { return p.passLayouts.Stats() }

// softFail records a resource that could not be used by the current task.
func (p *Processor) softFail(h resource.Handle, err error) {
	p.stats.add(CounterSoftFailures, 1)
	p.logger.Warn("framegraph: skipping unresolved resource",
		"task", p.taskName, "handle", h.String(), "err", err)
	assert(false, "task %q: resource %s: %v", p.taskName, h, err)
}

// lookup resolves h to a proxy of type T. Failures are soft.
func lookup[T resource.Proxy](p *Processor, h resource.Handle) (T, bool) {
	var zero T
	px, err := p.resolver.ToLocal(h)
	if err != nil {
		p.softFail(h, err)
		return zero, false
	}
	v, ok := px.(T)
	if !ok {
		p.softFail(h, fmt.Errorf("%w: %s is a %s", resource.ErrKindMismatch, h, px.Kind()))
		return zero, false
	}
	return v, true
}

// declare resolves h and queues st on it, stamped with the current task.
func declare[T resource.Proxy](p *Processor, h resource.Handle, st resource.State) (T, bool) {
	v, ok := lookup[T](p, h)
	if !ok {
		return v, false
	}
	if err := p.barriers.Declare(v, st.By(p.task)); err != nil {
		p.softFail(h, err)
		var zero T
		return zero, false
	}
	return v, true
}

// declareUses queues explicit declarations. A use that does not resolve
// loses its barrier; the others still apply.
func (p *Processor) declareUses(uses []Use) {
	for _, u := range uses {
		declare[resource.Proxy](p, u.Resource, u.State)
	}
}

// bindingSize maps a zero binding size to the rest of the buffer.
func bindingSize(size uint64) uint64 {
	if size == 0 {
		return resource.WholeSize
	}
	return size
}

// declareBindings queues the resources referenced by bound groups. Groups
// are native objects built by the caller and stay bindable when one of
// their references does not resolve; only that reference's barrier is lost.
func (p *Processor) declareBindings(bindings []Binding) {
	for _, b := range bindings {
		g := b.Group
		if g == nil {
			continue
		}
		for _, bb := range g.Buffers {
			st := resource.Use(bb.Access).In(resource.Bytes(bb.Offset, bindingSize(bb.Size)))
			declare[*resource.Buffer](p, bb.Buffer, st)
		}
		for _, ib := range g.Images {
			declare[*resource.Image](p, ib.Image, resource.Use(ib.Access).In(ib.Range))
		}
		for _, h := range g.Scenes {
			declare[*resource.Scene](p, h, resource.Use(resource.AccessRayTrace))
		}
	}
}

// resolvable reports whether every handle resolves to a buffer. Handles
// that do not are soft failures.
func (p *Processor) resolvable(handles ...resource.Handle) bool {
	ok := true
	for _, h := range handles {
		if _, found := lookup[*resource.Buffer](p, h); !found {
			ok = false
		}
	}
	return ok
}

// commit flushes the declared states of the current task.
func (p *Processor) commit() error {
	n, err := p.barriers.Commit(p.enc)
	if n > 0 {
		p.stats.add(CounterBarriers, uint64(n))
		p.logger.Debug("framegraph: barriers", "task", p.taskName, "count", n)
	}
	if err != nil {
		return fmt.Errorf("framegraph: task %q: %w", p.taskName, err)
	}
	return nil
}

// skip drops the declarations of a task that will not be recorded.
func (p *Processor) skip() error {
	p.barriers.Reset()
	return nil
}

func pushConstants(enc any, layout *pipeline.Layout, stages uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	pc, ok := enc.(native.PushConstantSetter)
	if !ok {
		return ErrPushConstants
	}
	assert(layout.PushConstantSize == 0 || uint32(len(data)) <= layout.PushConstantSize, //nolint:gosec // G115: push constant blocks are tiny
		"push constants of %d bytes exceed %d bytes of layout %s", len(data), layout.PushConstantSize, layout.Label)
	pc.SetPushConstants(stages, 0, data)
	return nil
}

type boundGroup struct {
	group   *BindGroup
	offsets []uint32
}

type boundBuffer struct {
	buffer *resource.Buffer
	offset uint64
}

type boundIndex struct {
	buffer *resource.Buffer
	offset uint64
	format gputypes.IndexFormat
}

// boundState is what the current native pass has bound. It is reset at
// every pass boundary.
type boundState struct {
	pipeline *pipeline.Instance
	groups   []boundGroup
	vertex   []boundBuffer
	index    boundIndex

	viewport    pipeline.Viewport
	viewportSet bool
	scissor     pipeline.Scissor
	scissorSet  bool
	stencil     uint32
	stencilSet  bool
	blend       [4]float32
	blendSet    bool
}

func (b *boundState) reset() {
	clear(b.groups)
	clear(b.vertex)
	groups, vertex := b.groups[:0], b.vertex[:0]
	*b = boundState{groups: groups, vertex: vertex}
}

// setPipeline reports whether inst differs from the bound pipeline.
func (b *boundState) setPipeline(inst *pipeline.Instance) bool {
	if b.pipeline == inst {
		return false
	}
	b.pipeline = inst
	return true
}

// setGroup reports whether g with offsets differs from what index i holds.
func (b *boundState) setGroup(i int, g *BindGroup, offsets []uint32) bool {
	for len(b.groups) <= i {
		b.groups = append(b.groups, boundGroup{})
	}
	cur := &b.groups[i]
	if cur.group == g && slices.Equal(cur.offsets, offsets) {
		return false
	}
	cur.group = g
	cur.offsets = append(cur.offsets[:0], offsets...)
	return true
}

func (b *boundState) setVertex(slot int, buf *resource.Buffer, offset uint64) bool {
	for len(b.vertex) <= slot {
		b.vertex = append(b.vertex, boundBuffer{})
	}
	next := boundBuffer{buffer: buf, offset: offset}
	if b.vertex[slot] == next {
		return false
	}
	b.vertex[slot] = next
	return true
}

func (b *boundState) setIndex(buf *resource.Buffer, offset uint64, format gputypes.IndexFormat) bool {
	next := boundIndex{buffer: buf, offset: offset, format: format}
	if b.index == next {
		return false
	}
	b.index = next
	return true
}

func (b *boundState) setViewport(v pipeline.Viewport) bool {
	if b.viewportSet && b.viewport == v {
		return false
	}
	b.viewport, b.viewportSet = v, true
	return true
}

func (b *boundState) setScissor(s pipeline.Scissor) bool {
	if b.scissorSet && b.scissor == s {
		return false
	}
	b.scissor, b.scissorSet = s, true
	return true
}

func (b *boundState) setStencil(ref uint32) bool {
	if b.stencilSet && b.stencil == ref {
		return false
	}
	b.stencil, b.stencilSet = ref, true
	return true
}

func (b *boundState) setBlend(c [4]float32) bool {
	if b.blendSet && b.blend == c {
		return false
	}
	b.blend, b.blendSet = c, true
	return true
}

// bindGroups binds every group that changed through set.
func (b *boundState) bindGroups(bindings []Binding, set func(index uint32, g *BindGroup, offsets []uint32)) {
	for i, bd := range bindings {
		if bd.Group == nil {
			continue
		}
		if b.setGroup(i, bd.Group, bd.DynamicOffsets) {
			set(uint32(i), bd.Group, bd.DynamicOffsets) //nolint:gosec // G115: bind group index is small
		}
	}
}
