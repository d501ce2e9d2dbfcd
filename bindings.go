package framegraph

import (
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/resource"
)

// BufferBinding is a buffer range referenced by a bind group.
type BufferBinding struct {
	Buffer resource.Handle
	Offset uint64
	Size   uint64
	Access resource.Access
}

// ImageBinding is an image subresource range referenced by a bind group.
type ImageBinding struct {
	Image  resource.Handle
	Range  resource.Range
	Access resource.Access
}

// BindGroup is a caller-built native bind group together with the resources
// it references. The processor declares every referenced resource before a
// task that binds the group runs.
type BindGroup struct {
	Label  string
	Native hal.BindGroup

	Buffers []BufferBinding
	Images  []ImageBinding
	// Scenes are top-level acceleration structures traversed through the group.
	Scenes []resource.Handle
}

// NewBindGroup wraps a native bind group.
func NewBindGroup(label string, raw hal.BindGroup) *BindGroup {
	return &BindGroup{Label: label, Native: raw}
}

// Buffer records that the group reads or writes size bytes of h at offset.
func (g *BindGroup) Buffer(h resource.Handle, access resource.Access, offset, size uint64) *BindGroup {
	g.Buffers = append(g.Buffers, BufferBinding{Buffer: h, Offset: offset, Size: size, Access: access})
	return g
}

// Image records that the group accesses the subresources r of h.
func (g *BindGroup) Image(h resource.Handle, access resource.Access, r resource.Range) *BindGroup {
	g.Images = append(g.Images, ImageBinding{Image: h, Range: r, Access: access})
	return g
}

// Scene records that the group traces rays against h.
func (g *BindGroup) Scene(h resource.Handle) *BindGroup {
	g.Scenes = append(g.Scenes, h)
	return g
}

// Binding binds a group at the index of its position in a binding list.
type Binding struct {
	Group          *BindGroup
	DynamicOffsets []uint32
}

// Bind returns a binding of g with dynamic offsets.
func Bind(g *BindGroup, dynamicOffsets ...uint32) Binding {
	return Binding{Group: g, DynamicOffsets: dynamicOffsets}
}

// Use is an explicit resource declaration of a task.
type Use struct {
	Resource resource.Handle
	State    resource.State
}

// Uses returns a declaration of access a over the whole of h.
func Uses(h resource.Handle, a resource.Access) Use {
	return Use{Resource: h, State: resource.Use(a)}
}

// In returns u restricted to r.
func (u Use) In(r resource.Range) Use {
	u.State = u.State.In(r)
	return u
}
