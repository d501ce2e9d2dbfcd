package resource

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/native"
)

// Table errors.
var (
	// ErrUnknownHandle is returned for a handle that was never issued by the table.
	ErrUnknownHandle = errors.New("resource: unknown handle")

	// ErrStaleHandle is returned for a handle whose resource was destroyed.
	ErrStaleHandle = errors.New("resource: stale handle")

	// ErrKindMismatch is returned when a handle resolves to another resource kind.
	ErrKindMismatch = errors.New("resource: kind mismatch")
)

// Kind is the class of a tracked resource.
type Kind uint8

// Resource kinds.
const (
	KindBuffer Kind = iota
	KindImage
	KindGeometry
	KindScene
)

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindImage:
		return "image"
	case KindGeometry:
		return "geometry"
	case KindScene:
		return "scene"
	}
	return "unknown"
}

// Handle addresses a resource in a Table. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) String() string { return fmt.Sprintf("#%d.%d", h.index, h.gen) }

// Proxy is the in-process stand-in for one native resource.
// The concrete types are *Buffer, *Image, *Geometry and *Scene.
type Proxy interface {
	Handle() Handle
	Kind() Kind
	Label() string
	sealed()
}

// BufferDesc describes a tracked buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// Buffer is a tracked buffer.
type Buffer struct {
	handle Handle
	desc   BufferDesc
	raw    hal.Buffer
}

func (b *Buffer) Handle() Handle { return b.handle }
func (b *Buffer) Kind() Kind     { return KindBuffer }
func (b *Buffer) Label() string  { return b.desc.Label }
func (b *Buffer) Size() uint64   { return b.desc.Size }

// Native returns the backing HAL buffer.
func (b *Buffer) Native() hal.Buffer { return b.raw }
func (*Buffer) sealed()              {}

// ImageDesc describes a tracked image.
type ImageDesc struct {
	Label       string
	Format      gputypes.TextureFormat
	Width       uint32
	Height      uint32
	MipLevels   uint32
	Layers      uint32
	SampleCount uint32
}

// Image is a tracked image together with the view used for attachments.
type Image struct {
	handle Handle
	desc   ImageDesc
	raw    hal.Texture
	view   hal.TextureView
}

func (i *Image) Handle() Handle      { return i.handle }
func (i *Image) Kind() Kind          { return KindImage }
func (i *Image) Label() string       { return i.desc.Label }
func (i *Image) Desc() ImageDesc     { return i.desc }
func (i *Image) Native() hal.Texture { return i.raw }

// View returns the view bound when the image is a render pass attachment.
func (i *Image) View() hal.TextureView { return i.view }
func (*Image) sealed()                 {}

// Geometry is a tracked bottom-level acceleration structure.
type Geometry struct {
	handle Handle
	label  string
	raw    native.AccelerationStructure
}

func (g *Geometry) Handle() Handle                       { return g.handle }
func (g *Geometry) Kind() Kind                           { return KindGeometry }
func (g *Geometry) Label() string                        { return g.label }
func (g *Geometry) Native() native.AccelerationStructure { return g.raw }
func (*Geometry) sealed()                                {}

// Scene is a tracked top-level acceleration structure.
type Scene struct {
	handle Handle
	label  string
	raw    native.AccelerationStructure
}

func (s *Scene) Handle() Handle                       { return s.handle }
func (s *Scene) Kind() Kind                           { return KindScene }
func (s *Scene) Label() string                        { return s.label }
func (s *Scene) Native() native.AccelerationStructure { return s.raw }
func (*Scene) sealed()                                {}

// slot is the arena record of one resource. The proxy is immutable; the
// pending queue and committed state are the mutable side table.
type slot struct {
	gen     uint32
	live    bool
	proxy   Proxy
	pending []State
	track   tracker
}

// Table is the arena of tracked resources of a frame.
//
// Table is not safe for concurrent use.
type Table struct {
	slots []slot
	free  []uint32
}

// NewTable creates an empty resource table.
func NewTable() *Table {
	return &Table{}
}

func (t *Table) alloc() Handle {
	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		s := &t.slots[idx]
		s.live = true
		return Handle{index: idx, gen: s.gen}
	}
	t.slots = append(t.slots, slot{gen: 1, live: true})
	return Handle{index: uint32(len(t.slots) - 1), gen: 1}
}

// CreateBuffer starts tracking raw.
func (t *Table) CreateBuffer(desc BufferDesc, raw hal.Buffer) *Buffer {
	h := t.alloc()
	b := &Buffer{handle: h, desc: desc, raw: raw}
	s := &t.slots[h.index]
	s.proxy = b
	s.track = &bufferTracker{raw: raw, size: desc.Size}
	return b
}

// CreateImage starts tracking raw. MipLevels and Layers default to 1.
func (t *Table) CreateImage(desc ImageDesc, raw hal.Texture, view hal.TextureView) *Image {
	desc.MipLevels = max(desc.MipLevels, 1)
	desc.Layers = max(desc.Layers, 1)
	desc.SampleCount = max(desc.SampleCount, 1)
	h := t.alloc()
	img := &Image{handle: h, desc: desc, raw: raw, view: view}
	s := &t.slots[h.index]
	s.proxy = img
	s.track = newImageTracker(raw, desc.MipLevels, desc.Layers)
	return img
}

// CreateGeometry starts tracking a bottom-level acceleration structure.
func (t *Table) CreateGeometry(label string, raw native.AccelerationStructure) *Geometry {
	h := t.alloc()
	g := &Geometry{handle: h, label: label, raw: raw}
	s := &t.slots[h.index]
	s.proxy = g
	s.track = &accelTracker{raw: raw}
	return g
}

// CreateScene starts tracking a top-level acceleration structure.
func (t *Table) CreateScene(label string, raw native.AccelerationStructure) *Scene {
	h := t.alloc()
	sc := &Scene{handle: h, label: label, raw: raw}
	s := &t.slots[h.index]
	s.proxy = sc
	s.track = &accelTracker{raw: raw}
	return sc
}

// Destroy stops tracking h. Every outstanding copy of h becomes stale.
// The native object is not released; the table does not own backing memory.
func (t *Table) Destroy(h Handle) error {
	s, err := t.slot(h)
	if err != nil {
		return err
	}
	s.gen++
	s.live = false
	s.proxy = nil
	s.pending = nil
	s.track = nil
	t.free = append(t.free, h.index)
	return nil
}

func (t *Table) slot(h Handle) (*slot, error) {
	if h.IsZero() || int(h.index) >= len(t.slots) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	s := &t.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	return s, nil
}

// Lookup resolves h to its proxy.
func (t *Table) Lookup(h Handle) (Proxy, error) {
	s, err := t.slot(h)
	if err != nil {
		return nil, err
	}
	return s.proxy, nil
}

// ToLocal resolves h to its proxy. It is safe to call repeatedly within a
// recording pass.
func (t *Table) ToLocal(h Handle) (Proxy, error) {
	return t.Lookup(h)
}

// AcquireTransient returns the native object behind h.
func (t *Table) AcquireTransient(h Handle) (any, error) {
	p, err := t.Lookup(h)
	if err != nil {
		return nil, err
	}
	switch p := p.(type) {
	case *Buffer:
		return p.raw, nil
	case *Image:
		return p.raw, nil
	case *Geometry:
		return p.raw, nil
	case *Scene:
		return p.raw, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
}

// Len returns the number of live resources.
func (t *Table) Len() int {
	return len(t.slots) - len(t.free)
}

// Pending returns a copy of the queued states of h.
func (t *Table) Pending(h Handle) ([]State, error) {
	s, err := t.slot(h)
	if err != nil {
		return nil, err
	}
	return append([]State(nil), s.pending...), nil
}

// Committed returns the last committed state covering the start of r.
// A range that was never used reports AccessNone.
func (t *Table) Committed(h Handle, r Range) (State, error) {
	s, err := t.slot(h)
	if err != nil {
		return State{}, err
	}
	return s.track.state(s.track.clamp(r)), nil
}

// declare queues st on h and reports whether anything was queued.
func (t *Table) declare(h Handle, st State) (bool, error) {
	s, err := t.slot(h)
	if err != nil {
		return false, err
	}
	st.Range = s.track.clamp(st.Range)
	sh := s.track.shape()
	if sh.empty(st.Range) {
		return false, nil
	}
	if sh != shapeSubresources {
		st.Layout = LayoutUndefined
	}
	s.pending = sh.enqueue(s.pending, st)
	return true, nil
}

// commit resolves the pending queue of h into b and clears it.
func (t *Table) commit(h Handle, b *batch) error {
	s, err := t.slot(h)
	if err != nil {
		return err
	}
	for _, st := range s.pending {
		s.track.resolve(st, b)
	}
	s.pending = s.pending[:0]
	return nil
}
