package framegraph

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/native"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/resource"
)

const computeStages = uint32(gputypes.ShaderStageCompute)

func (p *Processor) computePipeline(layout *pipeline.Layout) (*pipeline.Instance, error) {
	if layout == nil {
		return nil, ErrMissingLayout
	}
	return p.pipelines.Compute(&pipeline.ComputeRequest{Layout: layout, Debug: p.opts.debugMode})
}

func (p *Processor) runDispatch(d *DispatchCompute) error {
	inst, err := p.computePipeline(d.Layout)
	if err != nil {
		return err
	}
	if len(d.Groups) == 0 {
		return nil
	}
	for i := range d.Groups {
		p.declareBindings(d.Groups[i].Bindings)
	}
	if err := p.commit(); err != nil {
		return err
	}

	pass := p.enc.BeginComputePass(d.Name)
	p.bound.reset()
	defer p.endComputePass(pass)

	for i := range d.Groups {
		g := &d.Groups[i]
		if err := p.bindCompute(pass, inst, g.Bindings, g.PushConstants); err != nil {
			return fmt.Errorf("framegraph: dispatch %d: %w", i, err)
		}
		pass.Dispatch(g.X, max(g.Y, 1), max(g.Z, 1))
		p.stats.add(CounterDispatches, 1)
	}
	return nil
}

func (p *Processor) runDispatchIndirect(d *DispatchComputeIndirect) error {
	inst, err := p.computePipeline(d.Layout)
	if err != nil {
		return err
	}
	if !p.resolvable(d.Args.Buffer) {
		return nil
	}
	p.declareBindings(d.Bindings)
	st := resource.Use(resource.AccessIndirectRead).In(resource.Bytes(d.Args.Offset, resource.WholeSize))
	args, ok := declare[*resource.Buffer](p, d.Args.Buffer, st)
	if !ok {
		return p.skip()
	}
	if err := p.commit(); err != nil {
		return err
	}

	pass := p.enc.BeginComputePass(d.Name)
	p.bound.reset()
	defer p.endComputePass(pass)

	if err := p.bindCompute(pass, inst, d.Bindings, d.PushConstants); err != nil {
		return err
	}
	pass.DispatchIndirect(args.Native(), d.Args.Offset)
	p.stats.add(CounterDispatches, 1)
	return nil
}

func (p *Processor) endComputePass(pass native.ComputePassEncoder) {
	pass.End()
	p.bound.reset()
}

func (p *Processor) bindCompute(pass native.ComputePassEncoder, inst *pipeline.Instance, bindings []Binding, push []byte) error {
	if p.bound.setPipeline(inst) {
		pass.SetPipeline(inst.Compute())
		p.stats.add(CounterPipelineBinds, 1)
	}
	p.bound.bindGroups(bindings, func(i uint32, g *BindGroup, offsets []uint32) {
		pass.SetBindGroup(i, g.Native, offsets)
	})
	return pushConstants(pass, inst.Layout, computeStages, push)
}
