package framegraph

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/resource"
)

// Attachment is a color or depth-stencil attachment of a subpass. The
// attachment renders into the view of its image.
type Attachment struct {
	Image resource.Handle
	// Resolve is the single-sample image a multisampled color attachment
	// resolves into at the end of the subpass. The zero handle means none.
	Resolve resource.Handle

	Load  gputypes.LoadOp
	Store gputypes.StoreOp

	Clear        gputypes.Color
	ClearDepth   float32
	ClearStencil uint32

	// ReadOnly attaches the image without writes. A clear load still writes.
	ReadOnly bool
}

// ColorAttachment returns an attachment of h that loads and stores.
func ColorAttachment(h resource.Handle) Attachment {
	return Attachment{Image: h, Load: gputypes.LoadOpLoad, Store: gputypes.StoreOpStore}
}

// DepthAttachment returns a depth-stencil attachment of h that loads and stores.
func DepthAttachment(h resource.Handle) Attachment {
	return Attachment{Image: h, Load: gputypes.LoadOpLoad, Store: gputypes.StoreOpStore, ClearDepth: 1}
}

// Cleared returns a with a clear load to c.
func (a Attachment) Cleared(c gputypes.Color) Attachment {
	a.Load = gputypes.LoadOpClear
	a.Clear = c
	return a
}

// ClearedDepth returns a with a clear load to depth and stencil.
func (a Attachment) ClearedDepth(depth float32, stencil uint32) Attachment {
	a.Load = gputypes.LoadOpClear
	a.ClearDepth = depth
	a.ClearStencil = stencil
	return a
}

// Discarded returns a with its contents discarded at the end of the subpass.
func (a Attachment) Discarded() Attachment {
	a.Store = gputypes.StoreOpDiscard
	return a
}

// ResolvedTo returns a with a multisample resolve into h.
func (a Attachment) ResolvedTo(h resource.Handle) Attachment {
	a.Resolve = h
	return a
}

// access returns the declared access of a color or depth attachment.
// A clear always writes.
func (a Attachment) access(depth bool) resource.Access {
	read, write := resource.AccessColorRead, resource.AccessColorWrite
	if depth {
		read, write = resource.AccessDepthRead, resource.AccessDepthWrite
	}
	switch {
	case a.Load == gputypes.LoadOpClear:
		return write
	case a.ReadOnly:
		return read
	}
	return read | write
}

// DrawPipeline selects the pipeline of a draw.
type DrawPipeline struct {
	Layout  *pipeline.Layout
	State   pipeline.RenderState
	Vertex  pipeline.VertexInput
	Dynamic pipeline.DynamicState
	// Mesh selects the task/mesh shading path. Vertex is ignored.
	Mesh bool
}

// VertexBinding binds a buffer to a vertex slot.
type VertexBinding struct {
	Buffer resource.Handle
	Offset uint64
}

// IndexBinding binds an index buffer.
type IndexBinding struct {
	Buffer resource.Handle
	Offset uint64
	Format gputypes.IndexFormat
}

// IndirectArgs locates indirect draw or dispatch arguments.
type IndirectArgs struct {
	Buffer resource.Handle
	Offset uint64
	// DrawCount and Stride apply to indirect mesh draws.
	DrawCount uint32
	Stride    uint32
}

// DrawItem is one draw of a subpass.
type DrawItem struct {
	Pipeline DrawPipeline
	Bindings []Binding

	VertexBuffers []VertexBinding
	Index         *IndexBinding
	Indirect      *IndirectArgs

	// Dynamic values. Each applies only when the pipeline marks the state
	// dynamic.
	Viewport         *pipeline.Viewport
	Scissor          *pipeline.Scissor
	StencilReference *uint32
	BlendConstant    *[4]float32

	PushConstants []byte

	// Count is the vertex or index count. Instances of zero draws one instance.
	Count         uint32
	Instances     uint32
	First         uint32
	BaseVertex    int32
	FirstInstance uint32

	// MeshGroups is the task/mesh group count of a mesh draw.
	MeshGroups [3]uint32
}

// passChain is the ordered list of subpasses forming one render pass.
type passChain struct {
	label     string
	subpasses []*Subpass
}

// Subpass is one subpass of a render pass. The first subpass of a chain
// opens the native pass, later ones advance it and the last one closes it.
// The subpasses of a chain must run consecutively and in order.
type Subpass struct {
	TaskBase

	Colors []Attachment
	Depth  *Attachment
	// Uses declares resources read by draws beyond their bindings, such as
	// images sampled by a custom draw callback.
	Uses  []Use
	Draws []DrawItem
	// Record is called after Draws with a DrawContext positioned on this
	// subpass.
	Record func(dc *DrawContext) error

	chain *passChain
	pos   int
}

// NewRenderPass starts a render pass and returns its first subpass.
func NewRenderPass(name string) *Subpass {
	ch := &passChain{label: name}
	sp := &Subpass{TaskBase: TaskBase{Name: name}, chain: ch}
	ch.subpasses = append(ch.subpasses, sp)
	return sp
}

// Next appends a subpass to the render pass of s and returns it.
func (s *Subpass) Next(name string) *Subpass {
	sp := &Subpass{TaskBase: TaskBase{Name: name}, chain: s.chain, pos: len(s.chain.subpasses)}
	s.chain.subpasses = append(s.chain.subpasses, sp)
	return sp
}

// First reports whether s opens its render pass.
func (s *Subpass) First() bool { return s.pos == 0 }

// Last reports whether s closes its render pass.
func (s *Subpass) Last() bool { return s.pos == len(s.chain.subpasses)-1 }

// Color adds a color attachment.
func (s *Subpass) Color(a Attachment) *Subpass {
	s.Colors = append(s.Colors, a)
	return s
}

// DepthStencil sets the depth-stencil attachment.
func (s *Subpass) DepthStencil(a Attachment) *Subpass {
	s.Depth = &a
	return s
}

// Use declares an additional resource use.
func (s *Subpass) Use(u Use) *Subpass {
	s.Uses = append(s.Uses, u)
	return s
}

// Draw appends a draw.
func (s *Subpass) Draw(item DrawItem) *Subpass {
	s.Draws = append(s.Draws, item)
	return s
}

// Custom sets the draw callback.
func (s *Subpass) Custom(fn func(dc *DrawContext) error) *Subpass {
	s.Record = fn
	return s
}

func (s *Subpass) process(p *Processor) error { return p.runSubpass(s) }
