package pipeline

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/native"
	"github.com/gogpu/framegraph/shader"
)

// ErrNilLayout is returned for a request without a pipeline layout.
var ErrNilLayout = errors.New("pipeline: nil layout")

var nextLayoutID atomic.Uint64

// Layout is a pipeline layout together with the shader program it serves.
// Its identity, not its contents, takes part in pipeline keys.
type Layout struct {
	id    uint64
	Label string
	Raw   hal.PipelineLayout

	// Shaders are the stage modules, keyed by debug mode.
	Shaders *shader.Set

	// PushConstantSize is the size in bytes of the push constant range, or 0.
	PushConstantSize uint32
}

// NewLayout wraps an existing HAL pipeline layout.
func NewLayout(label string, raw hal.PipelineLayout, shaders *shader.Set) *Layout {
	return &Layout{
		id:      nextLayoutID.Add(1),
		Label:   label,
		Raw:     raw,
		Shaders: shaders,
	}
}

// LayoutCreator is the part of hal.Device that creates pipeline layouts.
type LayoutCreator interface {
	CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error)
}

// CreateLayout creates a HAL pipeline layout over the bind group layouts.
func CreateLayout(dev LayoutCreator, label string, groups []hal.BindGroupLayout, shaders *shader.Set) (*Layout, error) {
	raw, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: groups,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: create layout %s: %w", label, err)
	}
	return NewLayout(label, raw, shaders), nil
}

// ID returns an identifier unique within the process.
func (l *Layout) ID() uint64 { return l.id }

// Device is the subset of hal.Device used to build pipelines.
type Device interface {
	CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error)
	DestroyRenderPipeline(p hal.RenderPipeline)
	CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error)
	DestroyComputePipeline(p hal.ComputePipeline)
}

// Stage is a shader module and its entry point.
type Stage struct {
	Module     hal.ShaderModule
	EntryPoint string
}

// MeshPipelineDescriptor describes a task/mesh shading pipeline.
type MeshPipelineDescriptor struct {
	Label        string
	Layout       hal.PipelineLayout
	Task         *Stage
	Mesh         Stage
	Fragment     *hal.FragmentState
	DepthStencil *hal.DepthStencilState
	Primitive    gputypes.PrimitiveState
	Multisample  gputypes.MultisampleState
}

// MeshDevice is implemented by devices that support mesh shading.
type MeshDevice interface {
	CreateMeshPipeline(desc *MeshPipelineDescriptor) (hal.RenderPipeline, error)
}

// RayTracingStage is one shader of a ray tracing pipeline.
type RayTracingStage struct {
	Stage      shader.Stage
	Module     hal.ShaderModule
	EntryPoint string
}

// RayTracingPipelineDescriptor describes a ray tracing pipeline.
type RayTracingPipelineDescriptor struct {
	Label             string
	Layout            hal.PipelineLayout
	Stages            []RayTracingStage
	MaxRecursionDepth uint32
}

// RayTracingDevice is implemented by devices that support ray tracing.
type RayTracingDevice interface {
	CreateRayTracingPipeline(desc *RayTracingPipelineDescriptor) (native.RayTracingPipeline, error)
}
