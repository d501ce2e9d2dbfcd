package framegraph

import (
	"github.com/gogpu/framegraph/pipeline"
)

// ComputeGroup is one dispatch of a DispatchCompute batch. A Y or Z of zero
// dispatches one workgroup along that axis.
type ComputeGroup struct {
	Bindings      []Binding
	PushConstants []byte
	X, Y, Z       uint32
}

// DispatchCompute records a batch of dispatches sharing one pipeline.
type DispatchCompute struct {
	TaskBase

	Layout *pipeline.Layout
	Groups []ComputeGroup
}

// NewDispatchCompute creates an empty dispatch batch for layout.
func NewDispatchCompute(name string, layout *pipeline.Layout) *DispatchCompute {
	return &DispatchCompute{TaskBase: TaskBase{Name: name}, Layout: layout}
}

// Dispatch appends a dispatch of x*y*z workgroups.
func (d *DispatchCompute) Dispatch(x, y, z uint32, bindings ...Binding) *DispatchCompute {
	d.Groups = append(d.Groups, ComputeGroup{Bindings: bindings, X: x, Y: y, Z: z})
	return d
}

// Group appends a fully described dispatch.
func (d *DispatchCompute) Group(g ComputeGroup) *DispatchCompute {
	d.Groups = append(d.Groups, g)
	return d
}

func (d *DispatchCompute) process(p *Processor) error { return p.runDispatch(d) }

// DispatchComputeIndirect records one dispatch whose workgroup counts are
// read from a buffer.
type DispatchComputeIndirect struct {
	TaskBase

	Layout        *pipeline.Layout
	Bindings      []Binding
	PushConstants []byte
	Args          IndirectArgs
}

// NewDispatchComputeIndirect creates an indirect dispatch for layout.
func NewDispatchComputeIndirect(name string, layout *pipeline.Layout, args IndirectArgs, bindings ...Binding) *DispatchComputeIndirect {
	return &DispatchComputeIndirect{
		TaskBase: TaskBase{Name: name},
		Layout:   layout,
		Bindings: bindings,
		Args:     args,
	}
}

func (d *DispatchComputeIndirect) process(p *Processor) error { return p.runDispatchIndirect(d) }
