package framegraph

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/native"
	"github.com/gogpu/framegraph/resource"
)

// CopyBuffer copies byte ranges between buffers.
type CopyBuffer struct {
	TaskBase

	Src, Dst resource.Handle
	Regions  []hal.BufferCopy
}

// NewCopyBuffer creates a buffer copy without regions.
func NewCopyBuffer(name string) *CopyBuffer {
	return &CopyBuffer{TaskBase: TaskBase{Name: name}}
}

// From sets the source buffer.
func (c *CopyBuffer) From(h resource.Handle) *CopyBuffer {
	c.Src = h
	return c
}

// To sets the destination buffer.
func (c *CopyBuffer) To(h resource.Handle) *CopyBuffer {
	c.Dst = h
	return c
}

// Region appends a copy of size bytes.
func (c *CopyBuffer) Region(srcOffset, dstOffset, size uint64) *CopyBuffer {
	c.Regions = append(c.Regions, hal.BufferCopy{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size})
	return c
}

func (c *CopyBuffer) process(p *Processor) error { return p.runCopyBuffer(c) }

// ImageCopy is one image-to-image copy region. Origin.Z selects the first
// array layer and Size.DepthOrArrayLayers the layer count.
type ImageCopy struct {
	SrcMip    uint32
	SrcOrigin hal.Origin3D
	DstMip    uint32
	DstOrigin hal.Origin3D
	Size      hal.Extent3D
}

// CopyImage copies texels between images of the same format.
type CopyImage struct {
	TaskBase

	Src, Dst resource.Handle
	Regions  []ImageCopy
}

// NewCopyImage creates an image copy without regions.
func NewCopyImage(name string) *CopyImage {
	return &CopyImage{TaskBase: TaskBase{Name: name}}
}

// From sets the source image.
func (c *CopyImage) From(h resource.Handle) *CopyImage {
	c.Src = h
	return c
}

// To sets the destination image.
func (c *CopyImage) To(h resource.Handle) *CopyImage {
	c.Dst = h
	return c
}

// Region appends a copy region.
func (c *CopyImage) Region(r ImageCopy) *CopyImage {
	c.Regions = append(c.Regions, r)
	return c
}

func (c *CopyImage) process(p *Processor) error { return p.runCopyImage(c) }

// CopyBufferToImage uploads buffer contents into image subresources.
type CopyBufferToImage struct {
	TaskBase

	Src     resource.Handle
	Dst     resource.Handle
	Regions []hal.BufferTextureCopy
}

// NewCopyBufferToImage creates an upload from src into dst.
func NewCopyBufferToImage(name string, src, dst resource.Handle, regions ...hal.BufferTextureCopy) *CopyBufferToImage {
	return &CopyBufferToImage{TaskBase: TaskBase{Name: name}, Src: src, Dst: dst, Regions: regions}
}

func (c *CopyBufferToImage) process(p *Processor) error { return p.runCopyBufferToImage(c) }

// CopyImageToBuffer reads image subresources back into a buffer.
type CopyImageToBuffer struct {
	TaskBase

	Src     resource.Handle
	Dst     resource.Handle
	Regions []hal.BufferTextureCopy
}

// NewCopyImageToBuffer creates a readback from src into dst.
func NewCopyImageToBuffer(name string, src, dst resource.Handle, regions ...hal.BufferTextureCopy) *CopyImageToBuffer {
	return &CopyImageToBuffer{TaskBase: TaskBase{Name: name}, Src: src, Dst: dst, Regions: regions}
}

func (c *CopyImageToBuffer) process(p *Processor) error { return p.runCopyImageToBuffer(c) }

// BlitImage copies with scaling and filtering.
type BlitImage struct {
	TaskBase

	Src, Dst resource.Handle
	Regions  []native.BlitRegion
	Filter   gputypes.FilterMode
}

// NewBlitImage creates a blit from src into dst.
func NewBlitImage(name string, src, dst resource.Handle, filter gputypes.FilterMode, regions ...native.BlitRegion) *BlitImage {
	return &BlitImage{TaskBase: TaskBase{Name: name}, Src: src, Dst: dst, Filter: filter, Regions: regions}
}

func (b *BlitImage) process(p *Processor) error { return p.runBlit(b) }

// ResolveImage resolves a multisampled image into a single-sample image.
type ResolveImage struct {
	TaskBase

	Src, Dst resource.Handle
}

// NewResolveImage creates a resolve of src into dst.
func NewResolveImage(name string, src, dst resource.Handle) *ResolveImage {
	return &ResolveImage{TaskBase: TaskBase{Name: name}, Src: src, Dst: dst}
}

func (r *ResolveImage) process(p *Processor) error { return p.runResolve(r) }

// ClearColorImage clears a color image.
type ClearColorImage struct {
	TaskBase

	Image resource.Handle
	Color gputypes.Color
}

// NewClearColorImage creates a clear of h to c.
func NewClearColorImage(name string, h resource.Handle, c gputypes.Color) *ClearColorImage {
	return &ClearColorImage{TaskBase: TaskBase{Name: name}, Image: h, Color: c}
}

func (c *ClearColorImage) process(p *Processor) error { return p.runClearColor(c) }

// ClearDepthStencilImage clears a depth-stencil image.
type ClearDepthStencilImage struct {
	TaskBase

	Image   resource.Handle
	Depth   float32
	Stencil uint32
}

// NewClearDepthStencilImage creates a clear of h.
func NewClearDepthStencilImage(name string, h resource.Handle, depth float32, stencil uint32) *ClearDepthStencilImage {
	return &ClearDepthStencilImage{TaskBase: TaskBase{Name: name}, Image: h, Depth: depth, Stencil: stencil}
}

func (c *ClearDepthStencilImage) process(p *Processor) error { return p.runClearDepthStencil(c) }

// FillBuffer fills a buffer range with a repeated 32-bit value.
type FillBuffer struct {
	TaskBase

	Buffer resource.Handle
	Offset uint64
	// Size of resource.WholeSize fills to the end of the buffer.
	Size  uint64
	Value uint32
}

// NewFillBuffer creates a fill of size bytes of h at offset.
func NewFillBuffer(name string, h resource.Handle, offset, size uint64, value uint32) *FillBuffer {
	return &FillBuffer{TaskBase: TaskBase{Name: name}, Buffer: h, Offset: offset, Size: size, Value: value}
}

func (f *FillBuffer) process(p *Processor) error { return p.runFill(f) }

// UpdateBuffer writes host data into a buffer through staging memory.
type UpdateBuffer struct {
	TaskBase

	Buffer resource.Handle
	Offset uint64
	Data   []byte
}

// NewUpdateBuffer creates a write of data into h at offset.
func NewUpdateBuffer(name string, h resource.Handle, offset uint64, data []byte) *UpdateBuffer {
	return &UpdateBuffer{TaskBase: TaskBase{Name: name}, Buffer: h, Offset: offset, Data: data}
}

func (u *UpdateBuffer) process(p *Processor) error { return p.runUpdate(u) }

// Present hands an image to the configured Presenter.
type Present struct {
	TaskBase

	Image resource.Handle
}

// NewPresent creates a presentation of h.
func NewPresent(name string, h resource.Handle) *Present {
	return &Present{TaskBase: TaskBase{Name: name}, Image: h}
}

func (pr *Present) process(p *Processor) error { return p.runPresent(pr) }

// Custom records arbitrary commands after its declared uses are committed.
// Fn runs outside any pass.
type Custom struct {
	TaskBase

	Uses []Use
	Fn   func(enc native.CommandEncoder) error
}

// NewCustom creates a custom task.
func NewCustom(name string, fn func(enc native.CommandEncoder) error, uses ...Use) *Custom {
	return &Custom{TaskBase: TaskBase{Name: name}, Fn: fn, Uses: uses}
}

func (c *Custom) process(p *Processor) error { return p.runCustom(c) }
