package framegraph

import (
	"fmt"

	"github.com/gogpu/framegraph/native"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/resource"
)

func (p *Processor) rayTracer(name string) (native.RayTracer, error) {
	rt, ok := p.enc.(native.RayTracer)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRayTracing, name)
	}
	return rt, nil
}

// buildAccess is the access of the structure a build writes. A refit also
// reads the previous contents.
func buildAccess(update bool) resource.Access {
	if update {
		return resource.AccessBuildRead | resource.AccessBuildWrite
	}
	return resource.AccessBuildWrite
}

func (p *Processor) declareScratch(s Scratch) (*resource.Buffer, bool) {
	st := resource.Use(resource.AccessBuildScratch).In(resource.Bytes(s.Offset, bindingSize(s.Size)))
	return declare[*resource.Buffer](p, s.Buffer, st)
}

func buildInput(offset uint64) resource.State {
	return resource.Use(resource.AccessBuildRead).In(resource.Bytes(offset, resource.WholeSize))
}

func (p *Processor) runBuildGeometry(b *BuildGeometry) error {
	rt, err := p.rayTracer(b.Name)
	if err != nil {
		return err
	}
	build := &native.GeometryBuild{
		Triangles: make([]native.GeometryTriangles, len(b.Triangles)),
		AABBs:     make([]native.GeometryAABBs, len(b.AABBs)),
	}
	for i, t := range b.Triangles {
		vb, ok := declare[*resource.Buffer](p, t.Vertices, buildInput(t.VertexOffset))
		if !ok {
			return p.skip()
		}
		tri := native.GeometryTriangles{
			VertexBuffer: vb.Native(),
			VertexOffset: t.VertexOffset,
			VertexStride: t.VertexStride,
			VertexCount:  t.VertexCount,
			IndexOffset:  t.IndexOffset,
			IndexCount:   t.IndexCount,
			Opaque:       t.Opaque,
		}
		if !t.Indices.IsZero() {
			ib, ok := declare[*resource.Buffer](p, t.Indices, buildInput(t.IndexOffset))
			if !ok {
				return p.skip()
			}
			tri.IndexBuffer = ib.Native()
		}
		build.Triangles[i] = tri
	}
	for i, a := range b.AABBs {
		buf, ok := declare[*resource.Buffer](p, a.Buffer, buildInput(a.Offset))
		if !ok {
			return p.skip()
		}
		build.AABBs[i] = native.GeometryAABBs{Buffer: buf.Native(), Offset: a.Offset, Stride: a.Stride, Count: a.Count, Opaque: a.Opaque}
	}
	scratch, ok := p.declareScratch(b.Scratch)
	if !ok {
		return p.skip()
	}
	dst, ok := declare[*resource.Geometry](p, b.Geometry, resource.Use(buildAccess(b.Update)))
	if !ok {
		return p.skip()
	}
	if err := p.commit(); err != nil {
		return err
	}

	build.Scratch = scratch.Native()
	build.ScratchOffset = b.Scratch.Offset
	if b.Update {
		build.Source = dst.Native()
	}
	rt.BuildGeometry(dst.Native(), build)
	p.stats.add(CounterBuilds, 1)
	return nil
}

func (p *Processor) runBuildScene(b *BuildScene) error {
	rt, err := p.rayTracer(b.Name)
	if err != nil {
		return err
	}
	build := &native.SceneBuild{Instances: make([]native.SceneInstance, len(b.Instances))}
	for i, inst := range b.Instances {
		g, ok := declare[*resource.Geometry](p, inst.Geometry, resource.Use(resource.AccessBuildRead))
		if !ok {
			return p.skip()
		}
		build.Instances[i] = native.SceneInstance{
			Geometry:        g.Native(),
			Transform:       inst.Transform,
			CustomIndex:     inst.CustomIndex,
			Mask:            inst.Mask,
			SBTRecordOffset: inst.SBTRecordOffset,
		}
	}
	scratch, ok := p.declareScratch(b.Scratch)
	if !ok {
		return p.skip()
	}
	dst, ok := declare[*resource.Scene](p, b.Scene, resource.Use(buildAccess(b.Update)))
	if !ok {
		return p.skip()
	}
	if err := p.commit(); err != nil {
		return err
	}

	build.Scratch = scratch.Native()
	build.ScratchOffset = b.Scratch.Offset
	if b.Update {
		build.Source = dst.Native()
	}
	rt.BuildScene(dst.Native(), build)
	p.stats.add(CounterBuilds, 1)
	return nil
}

func (p *Processor) runTraceRays(t *TraceRays) error {
	if t.Layout == nil {
		return ErrMissingLayout
	}
	rt, err := p.rayTracer(t.Name)
	if err != nil {
		return err
	}
	inst, err := p.pipelines.RayTracing(&pipeline.RayTracingRequest{
		Layout:            t.Layout,
		Debug:             p.opts.debugMode,
		MaxRecursionDepth: t.MaxRecursionDepth,
	})
	if err != nil {
		return err
	}
	if !p.resolvable(t.Table.Buffer) {
		return nil
	}
	p.declareBindings(t.Bindings)
	sbt, ok := declare[*resource.Buffer](p, t.Table.Buffer, resource.Use(resource.AccessShaderRead))
	if !ok {
		return p.skip()
	}
	if err := p.commit(); err != nil {
		return err
	}

	if p.rtBound.setPipeline(inst) {
		rt.SetRayTracingPipeline(inst.RayTracing())
		p.stats.add(CounterPipelineBinds, 1)
	}
	p.rtBound.bindGroups(t.Bindings, func(i uint32, g *BindGroup, offsets []uint32) {
		rt.SetRayTracingBindGroup(i, g.Native, offsets)
	})
	rt.TraceRays(&native.ShaderBindingTable{
		Buffer:         sbt.Native(),
		RayGenOffset:   t.Table.RayGenOffset,
		MissOffset:     t.Table.MissOffset,
		MissStride:     t.Table.MissStride,
		HitGroupOffset: t.Table.HitGroupOffset,
		HitGroupStride: t.Table.HitGroupStride,
		CallableOffset: t.Table.CallableOffset,
		CallableStride: t.Table.CallableStride,
	}, t.Width, max(t.Height, 1), max(t.Depth, 1))
	p.stats.add(CounterTraces, 1)
	return nil
}
