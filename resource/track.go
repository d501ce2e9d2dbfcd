package resource

import (
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/native"
)

// committed is the resolved state of one tracked range.
type committed struct {
	// State is the most recently committed declaration.
	State
	// visible accumulates the access kinds made visible since the last
	// write or layout change.
	visible Access
}

// advance resolves s against c. It returns the new committed value, the
// access to transition from and whether a barrier is required.
func advance(c committed, s State, image bool) (committed, Access, bool) {
	switch {
	case c.Access == AccessNone:
		// First use. Images still leave the undefined layout.
		return committed{State: s, visible: s.Access}, AccessNone, image
	case image && c.Layout != s.Layout, c.visible.Writes(), s.Access.Writes():
		return committed{State: s, visible: s.Access}, c.visible, true
	case s.Access&^c.visible != 0:
		return committed{State: s, visible: c.visible | s.Access}, c.visible, true
	}
	return committed{State: s, visible: c.visible}, AccessNone, false
}

type tracker interface {
	shape() shape
	clamp(r Range) Range
	resolve(s State, b *batch)
	state(r Range) State
}

// batch collects the barriers of one commit.
type batch struct {
	buffers  []native.BufferBarrier
	textures []native.TextureBarrier
	accel    []native.AccelerationBarrier
}

func (b *batch) len() int { return len(b.buffers) + len(b.textures) + len(b.accel) }

func (b *batch) addBuffer(bar native.BufferBarrier) {
	if n := len(b.buffers); n > 0 {
		last := &b.buffers[n-1]
		if last.Buffer == bar.Buffer && last.From == bar.From && last.To == bar.To &&
			last.Offset+last.Size == bar.Offset {
			last.Size += bar.Size
			return
		}
	}
	b.buffers = append(b.buffers, bar)
}

type segment struct {
	lo, hi uint64
	c      committed
}

func appendSegment(segs []segment, s segment) []segment {
	if n := len(segs); n > 0 && segs[n-1].hi == s.lo && segs[n-1].c == s.c {
		segs[n-1].hi = s.hi
		return segs
	}
	return append(segs, s)
}

// bufferTracker keeps sorted, disjoint byte segments. Gaps were never used.
type bufferTracker struct {
	raw  hal.Buffer
	size uint64
	segs []segment
}

func (t *bufferTracker) shape() shape { return shapeBytes }

func (t *bufferTracker) clamp(r Range) Range {
	if t.size == 0 {
		return Range{Offset: r.Offset, Size: r.Size}
	}
	if r.Offset >= t.size {
		return Range{Offset: r.Offset}
	}
	return Range{Offset: r.Offset, Size: min(r.Size, t.size-r.Offset)}
}

func (t *bufferTracker) resolve(s State, b *batch) {
	lo, hi := s.Range.Offset, s.Range.end()
	out := make([]segment, 0, len(t.segs)+2)
	cursor := lo
	apply := func(p segment) {
		next, from, need := advance(p.c, s, false)
		if need {
			b.addBuffer(native.BufferBarrier{
				Buffer: t.raw,
				Offset: p.lo,
				Size:   p.hi - p.lo,
				From:   BufferUsage(from),
				To:     BufferUsage(s.Access),
			})
		}
		out = appendSegment(out, segment{lo: p.lo, hi: p.hi, c: next})
	}
	for _, sg := range t.segs {
		if sg.hi <= lo || sg.lo >= hi {
			if sg.lo >= hi && cursor < hi {
				apply(segment{lo: cursor, hi: hi})
				cursor = hi
			}
			out = appendSegment(out, sg)
			continue
		}
		if sg.lo < lo {
			out = appendSegment(out, segment{lo: sg.lo, hi: lo, c: sg.c})
		}
		plo, phi := max(sg.lo, lo), min(sg.hi, hi)
		if cursor < plo {
			apply(segment{lo: cursor, hi: plo})
		}
		apply(segment{lo: plo, hi: phi, c: sg.c})
		cursor = phi
		if sg.hi > hi {
			out = appendSegment(out, segment{lo: hi, hi: sg.hi, c: sg.c})
		}
	}
	if cursor < hi {
		apply(segment{lo: cursor, hi: hi})
	}
	t.segs = out
}

func (t *bufferTracker) state(r Range) State {
	for _, sg := range t.segs {
		if sg.lo <= r.Offset && r.Offset < sg.hi {
			return sg.c.State
		}
	}
	return State{}
}

// imageTracker keeps one committed value per (mip, layer) cell.
type imageTracker struct {
	raw    hal.Texture
	mips   uint32
	layers uint32
	cells  []committed
}

func newImageTracker(raw hal.Texture, mips, layers uint32) *imageTracker {
	return &imageTracker{raw: raw, mips: mips, layers: layers, cells: make([]committed, mips*layers)}
}

func (t *imageTracker) shape() shape { return shapeSubresources }

func (t *imageTracker) clamp(r Range) Range {
	out := Range{BaseMip: r.BaseMip, BaseLayer: r.BaseLayer}
	if r.BaseMip < t.mips {
		out.MipCount = min(r.MipCount, t.mips-r.BaseMip)
	}
	if r.BaseLayer < t.layers {
		out.LayerCount = min(r.LayerCount, t.layers-r.BaseLayer)
	}
	return out
}

func (t *imageTracker) resolve(s State, b *batch) {
	r := s.Range
	var rows []native.TextureBarrier
	for mip := r.BaseMip; mip < r.mipEnd(); mip++ {
		var row []native.TextureBarrier
		for layer := r.BaseLayer; layer < r.layerEnd(); layer++ {
			c := &t.cells[mip*t.layers+layer]
			next, from, need := advance(*c, s, true)
			*c = next
			if !need {
				continue
			}
			bar := native.TextureBarrier{
				Texture: t.raw,
				Range:   native.SubresourceRange{BaseMipLevel: mip, MipLevelCount: 1, BaseArrayLayer: layer, ArrayLayerCount: 1},
				From:    TextureUsage(from),
				To:      TextureUsage(s.Access),
			}
			if n := len(row); n > 0 {
				last := &row[n-1]
				if last.From == bar.From && last.To == bar.To &&
					last.Range.BaseArrayLayer+last.Range.ArrayLayerCount == layer {
					last.Range.ArrayLayerCount++
					continue
				}
			}
			row = append(row, bar)
		}
		rows = mergeRows(rows, row)
	}
	b.textures = append(b.textures, rows...)
}

// mergeRows folds the barriers of one mip level into rows, extending a
// barrier of the previous level that covers the same layers.
func mergeRows(rows, row []native.TextureBarrier) []native.TextureBarrier {
next:
	for _, bar := range row {
		for i := range rows {
			prev := &rows[i]
			if prev.From == bar.From && prev.To == bar.To &&
				prev.Range.BaseArrayLayer == bar.Range.BaseArrayLayer &&
				prev.Range.ArrayLayerCount == bar.Range.ArrayLayerCount &&
				prev.Range.BaseMipLevel+prev.Range.MipLevelCount == bar.Range.BaseMipLevel {
				prev.Range.MipLevelCount++
				continue next
			}
		}
		rows = append(rows, bar)
	}
	return rows
}

func (t *imageTracker) state(r Range) State {
	if r.BaseMip >= t.mips || r.BaseLayer >= t.layers {
		return State{}
	}
	return t.cells[r.BaseMip*t.layers+r.BaseLayer].State
}

// accelTracker tracks an acceleration structure as a whole.
type accelTracker struct {
	raw native.AccelerationStructure
	c   committed
}

func (t *accelTracker) shape() shape      { return shapeWhole }
func (t *accelTracker) clamp(Range) Range { return Whole }
func (t *accelTracker) state(Range) State { return t.c.State }

func (t *accelTracker) resolve(s State, b *batch) {
	next, from, need := advance(t.c, s, false)
	t.c = next
	if need {
		b.accel = append(b.accel, native.AccelerationBarrier{
			Structure: t.raw,
			From:      AccelerationUsage(from),
			To:        AccelerationUsage(s.Access),
		})
	}
}
