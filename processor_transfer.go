package framegraph

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/native"
	"github.com/gogpu/framegraph/resource"
)

func (p *Processor) runCopyBuffer(c *CopyBuffer) error {
	if len(c.Regions) == 0 {
		return nil
	}
	var src, dst *resource.Buffer
	for _, r := range c.Regions {
		var ok bool
		read := resource.Use(resource.AccessTransferRead).In(resource.Bytes(r.SrcOffset, r.Size))
		if src, ok = declare[*resource.Buffer](p, c.Src, read); !ok {
			return p.skip()
		}
		write := resource.Use(resource.AccessTransferWrite).In(resource.Bytes(r.DstOffset, r.Size))
		if dst, ok = declare[*resource.Buffer](p, c.Dst, write); !ok {
			return p.skip()
		}
	}
	if err := p.commit(); err != nil {
		return err
	}
	p.enc.CopyBufferToBuffer(src.Native(), dst.Native(), c.Regions)
	p.stats.add(CounterTransfers, 1)
	return nil
}

// layers returns the array layers covered by an origin and extent.
func layers(origin hal.Origin3D, size hal.Extent3D) resource.Range {
	return resource.Subresources(0, 1, origin.Z, max(size.DepthOrArrayLayers, 1))
}

func mipLayers(mip uint32, origin hal.Origin3D, size hal.Extent3D) resource.Range {
	r := layers(origin, size)
	r.BaseMip = mip
	return r
}

func (p *Processor) runCopyImage(c *CopyImage) error {
	if len(c.Regions) == 0 {
		return nil
	}
	var src, dst *resource.Image
	for _, r := range c.Regions {
		var ok bool
		read := resource.Use(resource.AccessTransferRead).In(mipLayers(r.SrcMip, r.SrcOrigin, r.Size))
		if src, ok = declare[*resource.Image](p, c.Src, read); !ok {
			return p.skip()
		}
		write := resource.Use(resource.AccessTransferWrite).In(mipLayers(r.DstMip, r.DstOrigin, r.Size))
		if dst, ok = declare[*resource.Image](p, c.Dst, write); !ok {
			return p.skip()
		}
	}
	if err := p.commit(); err != nil {
		return err
	}
	regions := make([]native.TextureCopy, len(c.Regions))
	for i, r := range c.Regions {
		regions[i] = native.TextureCopy{
			SrcBase: hal.ImageCopyTexture{Texture: src.Native(), MipLevel: r.SrcMip, Origin: r.SrcOrigin},
			DstBase: hal.ImageCopyTexture{Texture: dst.Native(), MipLevel: r.DstMip, Origin: r.DstOrigin},
			Size:    r.Size,
		}
	}
	p.enc.CopyTextureToTexture(src.Native(), dst.Native(), regions)
	p.stats.add(CounterTransfers, 1)
	return nil
}

// copyBytes returns the buffer bytes a buffer-image copy touches, or
// WholeSize when the layout leaves the row pitch implicit.
func copyBytes(l hal.ImageDataLayout, size hal.Extent3D) uint64 {
	if l.BytesPerRow == 0 {
		return resource.WholeSize
	}
	rows := l.RowsPerImage
	if rows == 0 {
		rows = size.Height
	}
	return uint64(l.BytesPerRow) * uint64(rows) * uint64(max(size.DepthOrArrayLayers, 1))
}

// declareBufferImage declares the buffer side with bufAccess and the image
// side with imgAccess for every region.
func (p *Processor) declareBufferImage(buf, img resource.Handle, regions []hal.BufferTextureCopy, bufAccess, imgAccess resource.Access) (*resource.Buffer, *resource.Image, bool) {
	var b *resource.Buffer
	var i *resource.Image
	for _, r := range regions {
		var ok bool
		bst := resource.Use(bufAccess).In(resource.Bytes(r.BufferLayout.Offset, copyBytes(r.BufferLayout, r.Size)))
		if b, ok = declare[*resource.Buffer](p, buf, bst); !ok {
			return nil, nil, false
		}
		ist := resource.Use(imgAccess).In(mipLayers(r.TextureBase.MipLevel, r.TextureBase.Origin, r.Size))
		if i, ok = declare[*resource.Image](p, img, ist); !ok {
			return nil, nil, false
		}
	}
	return b, i, true
}

func (p *Processor) runCopyBufferToImage(c *CopyBufferToImage) error {
	if len(c.Regions) == 0 {
		return nil
	}
	src, dst, ok := p.declareBufferImage(c.Src, c.Dst, c.Regions, resource.AccessTransferRead, resource.AccessTransferWrite)
	if !ok {
		return p.skip()
	}
	if err := p.commit(); err != nil {
		return err
	}
	regions := withTexture(c.Regions, dst.Native())
	p.enc.CopyBufferToTexture(src.Native(), dst.Native(), regions)
	p.stats.add(CounterTransfers, 1)
	return nil
}

func (p *Processor) runCopyImageToBuffer(c *CopyImageToBuffer) error {
	if len(c.Regions) == 0 {
		return nil
	}
	dst, src, ok := p.declareBufferImage(c.Dst, c.Src, c.Regions, resource.AccessTransferWrite, resource.AccessTransferRead)
	if !ok {
		return p.skip()
	}
	if err := p.commit(); err != nil {
		return err
	}
	regions := withTexture(c.Regions, src.Native())
	p.enc.CopyTextureToBuffer(src.Native(), dst.Native(), regions)
	p.stats.add(CounterTransfers, 1)
	return nil
}

// withTexture returns regions with their texture set to tex.
func withTexture(regions []hal.BufferTextureCopy, tex hal.Texture) []hal.BufferTextureCopy {
	out := make([]hal.BufferTextureCopy, len(regions))
	for i, r := range regions {
		r.TextureBase.Texture = tex
		out[i] = r
	}
	return out
}

// blitAsCopy converts unscaled blit regions into copy regions. It reports
// false when any region scales or flips.
func blitAsCopy(regions []native.BlitRegion) ([]ImageCopy, bool) {
	out := make([]ImageCopy, len(regions))
	for i, r := range regions {
		s0, s1 := r.SrcOffsets[0], r.SrcOffsets[1]
		d0, d1 := r.DstOffsets[0], r.DstOffsets[1]
		if s1.X < s0.X || s1.Y < s0.Y || s1.Z < s0.Z {
			return nil, false
		}
		size := hal.Extent3D{Width: s1.X - s0.X, Height: s1.Y - s0.Y, DepthOrArrayLayers: max(s1.Z-s0.Z, 1)}
		if d1.X < d0.X || d1.Y < d0.Y || d1.Z < d0.Z ||
			d1.X-d0.X != size.Width || d1.Y-d0.Y != size.Height || max(d1.Z-d0.Z, 1) != size.DepthOrArrayLayers {
			return nil, false
		}
		s0.Z, d0.Z = r.SrcLayer, r.DstLayer
		out[i] = ImageCopy{SrcMip: r.SrcMipLevel, SrcOrigin: s0, DstMip: r.DstMipLevel, DstOrigin: d0, Size: size}
	}
	return out, true
}

// runBlit uses the encoder's Blitter when it has one. Otherwise unscaled
// regions fall back to a copy, where the filter has no effect.
func (p *Processor) runBlit(b *BlitImage) error {
	if len(b.Regions) == 0 {
		return nil
	}
	blitter, canBlit := p.enc.(native.Blitter)
	if !canBlit {
		copies, ok := blitAsCopy(b.Regions)
		if !ok {
			return fmt.Errorf("%w: %q", ErrBlitUnsupported, b.Name)
		}
		p.logger.Debug("framegraph: blit recorded as copy", "task", b.Name)
		return p.runCopyImage(&CopyImage{TaskBase: b.TaskBase, Src: b.Src, Dst: b.Dst, Regions: copies})
	}

	var src, dst *resource.Image
	for _, r := range b.Regions {
		var ok bool
		read := resource.Use(resource.AccessTransferRead).In(resource.Subresources(r.SrcMipLevel, 1, r.SrcLayer, 1))
		if src, ok = declare[*resource.Image](p, b.Src, read); !ok {
			return p.skip()
		}
		write := resource.Use(resource.AccessTransferWrite).In(resource.Subresources(r.DstMipLevel, 1, r.DstLayer, 1))
		if dst, ok = declare[*resource.Image](p, b.Dst, write); !ok {
			return p.skip()
		}
	}
	if err := p.commit(); err != nil {
		return err
	}
	blitter.BlitTexture(src.Native(), dst.Native(), b.Regions, b.Filter)
	p.stats.add(CounterTransfers, 1)
	return nil
}

// transferPass records a single-subpass render pass that only loads and
// stores its attachments. Resolves and clears are expressed this way.
func (p *Processor) transferPass(label string, sub native.SubpassDescriptor) {
	pass := p.enc.BeginRenderPass(&native.RenderPassDescriptor{
		Label:     label,
		Subpasses: []native.SubpassDescriptor{sub},
	})
	pass.End()
	p.stats.add(CounterTransfers, 1)
}

func (p *Processor) runResolve(r *ResolveImage) error {
	src, ok := declare[*resource.Image](p, r.Src, resource.Use(resource.AccessColorRead))
	if !ok {
		return p.skip()
	}
	dst, ok := declare[*resource.Image](p, r.Dst, resource.Use(resource.AccessColorWrite))
	if !ok {
		return p.skip()
	}
	if err := p.commit(); err != nil {
		return err
	}
	p.transferPass(r.Name, native.SubpassDescriptor{
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:          src.View(),
			ResolveTarget: dst.View(),
			LoadOp:        gputypes.LoadOpLoad,
			StoreOp:       gputypes.StoreOpStore,
		}},
	})
	return nil
}

func (p *Processor) runClearColor(c *ClearColorImage) error {
	img, ok := declare[*resource.Image](p, c.Image, resource.Use(resource.AccessColorWrite))
	if !ok {
		return p.skip()
	}
	if err := p.commit(); err != nil {
		return err
	}
	p.transferPass(c.Name, native.SubpassDescriptor{
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       img.View(),
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: c.Color,
		}},
	})
	return nil
}

func (p *Processor) runClearDepthStencil(c *ClearDepthStencilImage) error {
	img, ok := declare[*resource.Image](p, c.Image, resource.Use(resource.AccessDepthWrite))
	if !ok {
		return p.skip()
	}
	if err := p.commit(); err != nil {
		return err
	}
	p.transferPass(c.Name, native.SubpassDescriptor{
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:              img.View(),
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   c.Depth,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: c.Stencil,
		},
	})
	return nil
}

func (p *Processor) runFill(f *FillBuffer) error {
	buf, ok := lookup[*resource.Buffer](p, f.Buffer)
	if !ok {
		return nil
	}
	size := f.Size
	if size == resource.WholeSize {
		if f.Offset >= buf.Size() {
			return nil
		}
		size = buf.Size() - f.Offset
	}
	if size == 0 {
		return nil
	}

	var (
		staging       hal.Buffer
		stagingOffset uint64
		staged        = f.Value != 0
	)
	if staged {
		if size%4 != 0 {
			return fmt.Errorf("%w: fill of %d bytes is not a multiple of 4", ErrInvalidTask, size)
		}
		if p.opts.stager == nil {
			return ErrNoStager
		}
		data := make([]byte, size)
		for i := uint64(0); i < size; i += 4 {
			binary.LittleEndian.PutUint32(data[i:], f.Value)
		}
		var err error
		if staging, stagingOffset, err = p.opts.stager.Stage(size, data); err != nil {
			return fmt.Errorf("framegraph: stage fill %q: %w", f.Name, err)
		}
	}

	write := resource.Use(resource.AccessTransferWrite).In(resource.Bytes(f.Offset, size))
	if _, ok := declare[*resource.Buffer](p, f.Buffer, write); !ok {
		return p.skip()
	}
	if err := p.commit(); err != nil {
		return err
	}
	if !staged {
		p.enc.ClearBuffer(buf.Native(), f.Offset, size)
	} else {
		p.enc.CopyBufferToBuffer(staging, buf.Native(), []hal.BufferCopy{{SrcOffset: stagingOffset, DstOffset: f.Offset, Size: size}})
	}
	p.stats.add(CounterTransfers, 1)
	return nil
}

func (p *Processor) runUpdate(u *UpdateBuffer) error {
	if len(u.Data) == 0 {
		return nil
	}
	if p.opts.stager == nil {
		return ErrNoStager
	}
	size := uint64(len(u.Data))
	staging, offset, err := p.opts.stager.Stage(size, u.Data)
	if err != nil {
		return fmt.Errorf("framegraph: stage update %q: %w", u.Name, err)
	}
	write := resource.Use(resource.AccessTransferWrite).In(resource.Bytes(u.Offset, size))
	buf, ok := declare[*resource.Buffer](p, u.Buffer, write)
	if !ok {
		return p.skip()
	}
	if err := p.commit(); err != nil {
		return err
	}
	p.enc.CopyBufferToBuffer(staging, buf.Native(), []hal.BufferCopy{{SrcOffset: offset, DstOffset: u.Offset, Size: size}})
	p.stats.add(CounterTransfers, 1)
	return nil
}

func (p *Processor) runPresent(pr *Present) error {
	if p.opts.presenter == nil {
		return ErrNoPresenter
	}
	img, ok := declare[*resource.Image](p, pr.Image, resource.Use(resource.AccessPresent))
	if !ok {
		return p.skip()
	}
	if err := p.commit(); err != nil {
		return err
	}
	if err := p.opts.presenter.Present(img.Native()); err != nil {
		return fmt.Errorf("framegraph: present %q: %w", pr.Name, err)
	}
	p.stats.add(CounterPresents, 1)
	return nil
}

func (p *Processor) runCustom(c *Custom) error {
	p.declareUses(c.Uses)
	if err := p.commit(); err != nil {
		return err
	}
	if c.Fn == nil {
		return nil
	}
	return c.Fn(p.enc)
}
