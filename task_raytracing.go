package framegraph

import (
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/resource"
)

// Triangles is a triangle mesh input of a geometry build.
type Triangles struct {
	Vertices     resource.Handle
	VertexOffset uint64
	VertexStride uint64
	VertexCount  uint32
	// Indices is optional.
	Indices     resource.Handle
	IndexOffset uint64
	IndexCount  uint32
	Opaque      bool
}

// AABBs is a procedural bounding-box input of a geometry build.
type AABBs struct {
	Buffer resource.Handle
	Offset uint64
	Stride uint64
	Count  uint32
	Opaque bool
}

// Scratch locates build scratch memory.
type Scratch struct {
	Buffer resource.Handle
	Offset uint64
	Size   uint64
}

// BuildGeometry builds or refits a bottom-level acceleration structure.
type BuildGeometry struct {
	TaskBase

	Geometry  resource.Handle
	Triangles []Triangles
	AABBs     []AABBs
	Scratch   Scratch
	// Update refits the existing structure in place.
	Update bool
}

// NewBuildGeometry creates a build of h using scratch.
func NewBuildGeometry(name string, h resource.Handle, scratch Scratch) *BuildGeometry {
	return &BuildGeometry{TaskBase: TaskBase{Name: name}, Geometry: h, Scratch: scratch}
}

// AddTriangles appends a triangle mesh input.
func (b *BuildGeometry) AddTriangles(t Triangles) *BuildGeometry {
	b.Triangles = append(b.Triangles, t)
	return b
}

// AddAABBs appends a bounding-box input.
func (b *BuildGeometry) AddAABBs(a AABBs) *BuildGeometry {
	b.AABBs = append(b.AABBs, a)
	return b
}

func (b *BuildGeometry) process(p *Processor) error { return p.runBuildGeometry(b) }

// Instance places a geometry in a scene.
type Instance struct {
	Geometry resource.Handle
	// Transform is a row-major 3x4 matrix.
	Transform       [12]float32
	CustomIndex     uint32
	Mask            uint8
	SBTRecordOffset uint32
}

// BuildScene builds or refits a top-level acceleration structure.
type BuildScene struct {
	TaskBase

	Scene     resource.Handle
	Instances []Instance
	Scratch   Scratch
	Update    bool
}

// NewBuildScene creates a build of h using scratch.
func NewBuildScene(name string, h resource.Handle, scratch Scratch, instances ...Instance) *BuildScene {
	return &BuildScene{TaskBase: TaskBase{Name: name}, Scene: h, Scratch: scratch, Instances: instances}
}

func (b *BuildScene) process(p *Processor) error { return p.runBuildScene(b) }

// BindingTable locates the shader binding table of a trace.
type BindingTable struct {
	Buffer         resource.Handle
	RayGenOffset   uint64
	MissOffset     uint64
	MissStride     uint64
	HitGroupOffset uint64
	HitGroupStride uint64
	CallableOffset uint64
	CallableStride uint64
}

// TraceRays launches a ray-tracing pipeline over a width*height*depth grid.
type TraceRays struct {
	TaskBase

	Layout            *pipeline.Layout
	MaxRecursionDepth uint32
	Bindings          []Binding
	Table             BindingTable
	Width             uint32
	Height            uint32
	Depth             uint32
}

// NewTraceRays creates a trace over a width*height grid.
func NewTraceRays(name string, layout *pipeline.Layout, table BindingTable, width, height uint32, bindings ...Binding) *TraceRays {
	return &TraceRays{
		TaskBase: TaskBase{Name: name},
		Layout:   layout,
		Table:    table,
		Width:    width,
		Height:   height,
		Depth:    1,
		Bindings: bindings,
	}
}

func (t *TraceRays) process(p *Processor) error { return p.runTraceRays(t) }
