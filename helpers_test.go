package framegraph

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framegraph/native"
	"github.com/gogpu/framegraph/native/nativetest"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/resource"
	"github.com/gogpu/framegraph/shader"
)

func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

// rayDevice adds ray-tracing pipelines to a noop device.
type rayDevice struct {
	hal.Device
}

type fakeRayPipeline struct{}

func (fakeRayPipeline) Destroy() {}

func (rayDevice) CreateRayTracingPipeline(*pipeline.RayTracingPipelineDescriptor) (native.RayTracingPipeline, error) {
	return fakeRayPipeline{}, nil
}

// fixture is a processor recording into a nativetest.Recorder.
type fixture struct {
	dev   hal.Device
	table *resource.Table
	cache *pipeline.Cache
	proc  *Processor
	rec   *nativetest.Recorder
}

func newFixture(t *testing.T, opts ...ProcessorOption) *fixture {
	t.Helper()
	dev, _ := createNoopDevice(t)
	table := resource.NewTable()
	pc := pipeline.NewCache(rayDevice{dev}, pipeline.WithFeatures(pipeline.FeatureRayTracing))
	t.Cleanup(pc.Destroy)
	return &fixture{
		dev:   dev,
		table: table,
		cache: pc,
		proc:  NewProcessor(table, pc, opts...),
		rec:   &nativetest.Recorder{},
	}
}

func (f *fixture) buffer(label string, size uint64) *resource.Buffer {
	return f.table.CreateBuffer(resource.BufferDesc{Label: label, Size: size}, nil)
}

func (f *fixture) image(label string, format gputypes.TextureFormat) *resource.Image {
	return f.table.CreateImage(resource.ImageDesc{Label: label, Format: format, Width: 64, Height: 64}, nil, nil)
}

func (f *fixture) color(label string) *resource.Image {
	return f.image(label, gputypes.TextureFormatBGRA8Unorm)
}

func (f *fixture) layout(t *testing.T, label string, stages ...shader.Stage) *pipeline.Layout {
	t.Helper()
	mods := make([]*shader.Module, 0, len(stages))
	for _, s := range stages {
		code := []uint32{0x07230203, uint32(s)}
		raw, err := f.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  s.String(),
			Source: hal.ShaderSource{SPIRV: code},
		})
		if err != nil {
			t.Fatalf("CreateShaderModule: %v", err)
		}
		mods = append(mods, shader.NewModule(s, s.String()+"_main", raw, code))
	}
	l, err := pipeline.CreateLayout(f.dev, label, nil, shader.NewSet(label, mods...))
	if err != nil {
		t.Fatalf("CreateLayout: %v", err)
	}
	return l
}

func (f *fixture) graphicsLayout(t *testing.T) *pipeline.Layout {
	return f.layout(t, "graphics", shader.StageVertex, shader.StageFragment)
}

// record adds tasks to a new graph and runs it on enc. Subpasses that open
// a render pass are added with their whole chain.
func (f *fixture) record(t *testing.T, enc native.CommandEncoder, tasks ...Task) error {
	t.Helper()
	g := NewGraph()
	for _, task := range tasks {
		var err error
		if sp, ok := task.(*Subpass); ok {
			err = g.AddPass(sp)
		} else {
			err = g.Add(task)
		}
		if err != nil {
			t.Fatalf("Add(%s): %v", task.Base().Name, err)
		}
	}
	if err := f.proc.Begin(enc); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	runErr := g.Run(f.proc)
	endErr := f.proc.End()
	return errors.Join(runErr, endErr)
}

// run records tasks into the fixture's recorder and fails on any error.
func (f *fixture) run(t *testing.T, tasks ...Task) {
	t.Helper()
	if err := f.record(t, f.rec, tasks...); err != nil {
		t.Fatalf("record: %v", err)
	}
}

// stager hands out slices of one staging buffer.
type stager struct {
	sizes []uint64
	data  [][]byte
	err   error
}

func (s *stager) Stage(size uint64, data []byte) (hal.Buffer, uint64, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	offset := uint64(0)
	for _, n := range s.sizes {
		offset += n
	}
	s.sizes = append(s.sizes, size)
	s.data = append(s.data, append([]byte(nil), data...))
	return nil, offset, nil
}

type presenter struct {
	presented int
	err       error
}

func (p *presenter) Present(hal.Texture) error {
	p.presented++
	return p.err
}
