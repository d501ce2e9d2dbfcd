package native

import "github.com/gogpu/wgpu/hal"

// AccelerationStructure is a native bottom- or top-level acceleration structure.
type AccelerationStructure interface {
	Destroy()
}

// RayTracingPipeline is a native ray-tracing pipeline object.
type RayTracingPipeline interface {
	Destroy()
}

// AccelerationUsage is the synchronization domain of an acceleration structure.
type AccelerationUsage uint8

const (
	// AccelerationUsageNone means the structure has not been used yet.
	AccelerationUsageNone AccelerationUsage = iota
	// AccelerationUsageBuildInput means the structure is read by a build.
	AccelerationUsageBuildInput
	// AccelerationUsageBuildOutput means the structure is written by a build.
	AccelerationUsageBuildOutput
	// AccelerationUsageTrace means the structure is traversed by shaders.
	AccelerationUsageTrace
)

// AccelerationBarrier orders accesses to one acceleration structure.
type AccelerationBarrier struct {
	Structure AccelerationStructure
	From      AccelerationUsage
	To        AccelerationUsage
}

// GeometryTriangles is a triangle mesh fed to a bottom-level build.
type GeometryTriangles struct {
	VertexBuffer hal.Buffer
	VertexOffset uint64
	VertexStride uint64
	VertexCount  uint32
	IndexBuffer  hal.Buffer
	IndexOffset  uint64
	IndexCount   uint32
	Opaque       bool
}

// GeometryAABBs is a procedural bounding-box set fed to a bottom-level build.
type GeometryAABBs struct {
	Buffer hal.Buffer
	Offset uint64
	Stride uint64
	Count  uint32
	Opaque bool
}

// GeometryBuild describes a bottom-level acceleration structure build.
type GeometryBuild struct {
	Triangles     []GeometryTriangles
	AABBs         []GeometryAABBs
	Scratch       hal.Buffer
	ScratchOffset uint64
	// Source is non-nil for an update (refit) of an existing structure.
	Source AccelerationStructure
}

// SceneInstance places one bottom-level structure in a scene.
type SceneInstance struct {
	Geometry        AccelerationStructure
	Transform       [12]float32
	CustomIndex     uint32
	Mask            uint8
	SBTRecordOffset uint32
}

// SceneBuild describes a top-level acceleration structure build.
type SceneBuild struct {
	Instances     []SceneInstance
	Scratch       hal.Buffer
	ScratchOffset uint64
	Source        AccelerationStructure
}

// ShaderBindingTable locates shader records for a trace.
type ShaderBindingTable struct {
	Buffer         hal.Buffer
	RayGenOffset   uint64
	MissOffset     uint64
	MissStride     uint64
	HitGroupOffset uint64
	HitGroupStride uint64
	CallableOffset uint64
	CallableStride uint64
}

// RayTracer is implemented by command encoders that support ray tracing.
// Builds and traces are recorded outside render and compute passes.
type RayTracer interface {
	TransitionAccelerationStructures(barriers []AccelerationBarrier)
	BuildGeometry(dst AccelerationStructure, build *GeometryBuild)
	BuildScene(dst AccelerationStructure, build *SceneBuild)
	SetRayTracingPipeline(pipeline RayTracingPipeline)
	SetRayTracingBindGroup(index uint32, group hal.BindGroup, dynamicOffsets []uint32)
	TraceRays(sbt *ShaderBindingTable, width, height, depth uint32)
}
