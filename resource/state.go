package resource

import "fmt"

const (
	// WholeSize selects the rest of a buffer from Offset.
	WholeSize = ^uint64(0)
	// Remaining selects the rest of the mip levels or array layers of an image.
	Remaining = ^uint32(0)
)

// Range selects part of a resource. Buffers use Offset and Size in bytes.
// Images use the mip and layer fields. Acceleration structures are always
// tracked whole and ignore the range.
type Range struct {
	Offset uint64
	Size   uint64

	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// Whole selects an entire resource.
var Whole = Range{Size: WholeSize, MipCount: Remaining, LayerCount: Remaining}

// Bytes selects size bytes of a buffer starting at offset.
func Bytes(offset, size uint64) Range {
	return Range{Offset: offset, Size: size}
}

// Subresources selects mip levels and array layers of an image.
func Subresources(baseMip, mipCount, baseLayer, layerCount uint32) Range {
	return Range{BaseMip: baseMip, MipCount: mipCount, BaseLayer: baseLayer, LayerCount: layerCount}
}

func (r Range) end() uint64 {
	if r.Size > WholeSize-r.Offset {
		return WholeSize
	}
	return r.Offset + r.Size
}

func (r Range) mipEnd() uint32 {
	if r.MipCount > Remaining-r.BaseMip {
		return Remaining
	}
	return r.BaseMip + r.MipCount
}

func (r Range) layerEnd() uint32 {
	if r.LayerCount > Remaining-r.BaseLayer {
		return Remaining
	}
	return r.BaseLayer + r.LayerCount
}

func (r Range) String() string {
	return fmt.Sprintf("[%d+%d mip %d+%d layer %d+%d]", r.Offset, r.Size, r.BaseMip, r.MipCount, r.BaseLayer, r.LayerCount)
}

// State is one declared use of a resource range by a task.
type State struct {
	Access Access
	// Layout is the image layout. It is ignored for buffers and
	// acceleration structures.
	Layout Layout
	Range  Range
	// Task is the execution index of the declaring task.
	Task uint32
}

// Use returns a state for access a over the whole resource, with the image
// layout derived from a.
func Use(a Access) State {
	return State{Access: a, Layout: LayoutFor(a), Range: Whole}
}

// In returns s restricted to r.
func (s State) In(r Range) State {
	s.Range = r
	return s
}

// By returns s stamped with the execution index of a task.
func (s State) By(task uint32) State {
	s.Task = task
	return s
}

func (s State) String() string {
	return fmt.Sprintf("%s/%s%s@%d", s.Access, s.Layout, s.Range, s.Task)
}

// shape tells how ranges of one resource kind are compared.
type shape uint8

const (
	shapeBytes shape = iota
	shapeSubresources
	shapeWhole
)

func (sh shape) empty(r Range) bool {
	switch sh {
	case shapeBytes:
		return r.Size == 0
	case shapeSubresources:
		return r.MipCount == 0 || r.LayerCount == 0
	}
	return false
}

func (sh shape) overlaps(a, b Range) bool {
	switch sh {
	case shapeBytes:
		return a.Offset < b.end() && b.Offset < a.end()
	case shapeSubresources:
		return a.BaseMip < b.mipEnd() && b.BaseMip < a.mipEnd() &&
			a.BaseLayer < b.layerEnd() && b.BaseLayer < a.layerEnd()
	}
	return true
}

func (sh shape) union(a, b Range) Range {
	switch sh {
	case shapeBytes:
		lo, hi := min(a.Offset, b.Offset), max(a.end(), b.end())
		return Range{Offset: lo, Size: hi - lo}
	case shapeSubresources:
		mlo, mhi := min(a.BaseMip, b.BaseMip), max(a.mipEnd(), b.mipEnd())
		llo, lhi := min(a.BaseLayer, b.BaseLayer), max(a.layerEnd(), b.layerEnd())
		return Range{BaseMip: mlo, MipCount: mhi - mlo, BaseLayer: llo, LayerCount: lhi - llo}
	}
	return Whole
}

func (sh shape) equal(a, b Range) bool {
	switch sh {
	case shapeBytes:
		return a.Offset == b.Offset && a.Size == b.Size
	case shapeSubresources:
		return a.BaseMip == b.BaseMip && a.MipCount == b.MipCount &&
			a.BaseLayer == b.BaseLayer && a.LayerCount == b.LayerCount
	}
	return true
}

// conflicts reports whether two queued states cannot coexist.
func (sh shape) conflicts(a, b State) bool {
	if !sh.overlaps(a.Range, b.Range) {
		return false
	}
	if a.Access.Writes() || b.Access.Writes() {
		return true
	}
	return sh == shapeSubresources && a.Layout != b.Layout
}

// enqueue adds s to a pending queue. A state equal to a queued one is
// dropped. A state that conflicts with queued states is merged with them
// until the queue is conflict free.
func (sh shape) enqueue(queue []State, s State) []State {
	for i, q := range queue {
		if q.Access == s.Access && q.Layout == s.Layout && sh.equal(q.Range, s.Range) {
			queue[i].Task = max(q.Task, s.Task)
			return queue
		}
	}
	for {
		merged := false
		for i := 0; i < len(queue); i++ {
			q := queue[i]
			if !sh.conflicts(q, s) {
				continue
			}
			s = sh.merge(q, s)
			queue = append(queue[:i], queue[i+1:]...)
			merged = true
			break
		}
		if !merged {
			break
		}
	}
	return append(queue, s)
}

func (sh shape) merge(a, b State) State {
	out := State{
		Access: a.Access | b.Access,
		Layout: a.Layout,
		Range:  sh.union(a.Range, b.Range),
		Task:   max(a.Task, b.Task),
	}
	if a.Layout != b.Layout {
		out.Layout = LayoutGeneral
	}
	return out
}
