package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/framegraph/native"
	"github.com/gogpu/framegraph/shader"
)

func createNoopDevice(t *testing.T) hal.Device {
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
	return openDev.Device
}

// countingDevice counts pipeline creation. When arrive is set, every
// CreateRenderPipeline call blocks until all expected callers are inside.
type countingDevice struct {
	hal.Device

	arrive *sync.WaitGroup

	renders   atomic.Int32
	computes  atomic.Int32
	destroyed atomic.Int32
	meshes    atomic.Int32
	rays      atomic.Int32

	lastRender atomic.Pointer[hal.RenderPipelineDescriptor]
}

func (d *countingDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	d.renders.Add(1)
	d.lastRender.Store(desc)
	if d.arrive != nil {
		d.arrive.Done()
		d.arrive.Wait()
	}
	return d.Device.CreateRenderPipeline(desc)
}

func (d *countingDevice) DestroyRenderPipeline(p hal.RenderPipeline) {
	d.destroyed.Add(1)
	d.Device.DestroyRenderPipeline(p)
}

func (d *countingDevice) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error) {
	d.computes.Add(1)
	return d.Device.CreateComputePipeline(desc)
}

func (d *countingDevice) DestroyComputePipeline(p hal.ComputePipeline) {
	d.destroyed.Add(1)
	d.Device.DestroyComputePipeline(p)
}

// extendedDevice adds mesh shading and ray tracing to a countingDevice.
type extendedDevice struct {
	*countingDevice
}

func (d extendedDevice) CreateMeshPipeline(desc *MeshPipelineDescriptor) (hal.RenderPipeline, error) {
	d.meshes.Add(1)
	return d.Device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{Label: desc.Label, Layout: desc.Layout})
}

type fakeRayPipeline struct{ destroyed *atomic.Int32 }

func (p *fakeRayPipeline) Destroy() { p.destroyed.Add(1) }

func (d extendedDevice) CreateRayTracingPipeline(desc *RayTracingPipelineDescriptor) (native.RayTracingPipeline, error) {
	d.rays.Add(1)
	return &fakeRayPipeline{destroyed: &d.destroyed}, nil
}

func newModule(t *testing.T, dev hal.Device, stage shader.Stage, entry string) *shader.Module {
	t.Helper()
	code := []uint32{0x07230203, uint32(stage)}
	raw, err := dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  entry,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		t.Fatalf("CreateShaderModule: %v", err)
	}
	return shader.NewModule(stage, entry, raw, code)
}

func newLayout(t *testing.T, dev hal.Device, label string, stages ...shader.Stage) *Layout {
	t.Helper()
	mods := make([]*shader.Module, 0, len(stages))
	for _, s := range stages {
		mods = append(mods, newModule(t, dev, s, s.String()+"_main"))
	}
	l, err := CreateLayout(dev, label, nil, shader.NewSet(label, mods...))
	if err != nil {
		t.Fatalf("CreateLayout: %v", err)
	}
	return l
}

func colorTarget() Targets {
	t := Targets{ColorCount: 1}
	t.ColorFormats[0] = gputypes.TextureFormatBGRA8Unorm
	return t
}

func depthTarget() Targets {
	t := colorTarget()
	t.DepthFormat = gputypes.TextureFormatDepth24PlusStencil8
	return t
}

var alphaBlend = TargetBlend{
	Enabled:   true,
	Color:     BlendComponent{BlendFactorSrcAlpha, BlendFactorOneMinusSrcAlpha, gputypes.BlendOperationAdd},
	Alpha:     BlendComponent{BlendFactorOne, BlendFactorOneMinusSrcAlpha, gputypes.BlendOperationAdd},
	WriteMask: gputypes.ColorWriteMaskAll,
}

func TestNormalizationSharesInstances(t *testing.T) {
	tests := []struct {
		name    string
		targets Targets
		dynamic DynamicState
		mutate  func(a, b *RenderState)
		same    bool
	}{
		{
			name:    "discard ignores blend and depth",
			targets: depthTarget(),
			mutate: func(a, b *RenderState) {
				a.Raster.Discard, b.Raster.Discard = true, true
				a.Blend[0] = alphaBlend
				b.Depth = DepthState{TestEnabled: true, WriteEnabled: true, Compare: gputypes.CompareFunctionLess}
			},
			same: true,
		},
		{
			name:    "disabled blend ignores factors",
			targets: colorTarget(),
			mutate: func(a, _ *RenderState) {
				a.Blend[0].Color = alphaBlend.Color
			},
			same: true,
		},
		{
			name:    "dynamic viewport ignores static viewport",
			targets: colorTarget(),
			dynamic: DynamicViewport,
			mutate: func(a, b *RenderState) {
				a.Viewport = Viewport{Width: 640, Height: 480, MaxDepth: 1}
				b.Viewport = Viewport{Width: 1920, Height: 1080, MaxDepth: 1}
			},
			same: true,
		},
		{
			name:    "static viewport is part of the key",
			targets: colorTarget(),
			mutate: func(a, b *RenderState) {
				a.Viewport = Viewport{Width: 640, Height: 480, MaxDepth: 1}
				b.Viewport = Viewport{Width: 1920, Height: 1080, MaxDepth: 1}
			},
			same: false,
		},
		{
			name:    "no depth attachment ignores depth state",
			targets: colorTarget(),
			mutate: func(a, _ *RenderState) {
				a.Depth = DepthState{TestEnabled: true, Compare: gputypes.CompareFunctionLess}
				a.Stencil.Enabled = true
			},
			same: true,
		},
		{
			name:    "unused color targets are ignored",
			targets: colorTarget(),
			mutate: func(a, _ *RenderState) {
				a.Blend[3] = alphaBlend
			},
			same: true,
		},
		{
			name:    "unused blend constant is ignored",
			targets: colorTarget(),
			mutate: func(a, b *RenderState) {
				a.Blend[0], b.Blend[0] = alphaBlend, alphaBlend
				a.BlendConstant = [4]float32{1, 0, 0, 1}
			},
			same: true,
		},
		{
			name:    "disabled depth test ignores compare",
			targets: depthTarget(),
			mutate: func(a, _ *RenderState) {
				a.Depth.Compare = gputypes.CompareFunctionLess
			},
			same: true,
		},
		{
			name:    "cull mode is part of the key",
			targets: colorTarget(),
			mutate: func(a, _ *RenderState) {
				a.Raster.CullMode = gputypes.CullModeBack
			},
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hd := createNoopDevice(t)
			dev := &countingDevice{Device: hd}
			c := NewCache(dev)
			defer c.Destroy()
			layout := newLayout(t, hd, "mesh", shader.StageVertex, shader.StageFragment)

			a, b := DefaultRenderState(), DefaultRenderState()
			tt.mutate(&a, &b)

			ia, err := c.Graphics(&GraphicsRequest{Layout: layout, State: a, Dynamic: tt.dynamic, Targets: tt.targets})
			if err != nil {
				t.Fatalf("Graphics(a): %v", err)
			}
			ib, err := c.Graphics(&GraphicsRequest{Layout: layout, State: b, Dynamic: tt.dynamic, Targets: tt.targets})
			if err != nil {
				t.Fatalf("Graphics(b): %v", err)
			}
			if (ia == ib) != tt.same {
				t.Errorf("same instance = %v, want %v", ia == ib, tt.same)
			}
			want := int32(2)
			if tt.same {
				want = 1
			}
			if got := dev.renders.Load(); got != want {
				t.Errorf("pipelines created = %d, want %d", got, want)
			}
		})
	}
}

func TestInsertOrFindConvergence(t *testing.T) {
	const goroutines = 16
	hd := createNoopDevice(t)
	var arrive sync.WaitGroup
	arrive.Add(goroutines)
	dev := &countingDevice{Device: hd, arrive: &arrive}
	c := NewCache(dev)
	layout := newLayout(t, hd, "sprite", shader.StageVertex, shader.StageFragment)

	req := &GraphicsRequest{Layout: layout, State: DefaultRenderState(), Targets: colorTarget()}
	results := make([]*Instance, goroutines)
	var g errgroup.Group
	for i := range goroutines {
		g.Go(func() error {
			inst, err := c.Graphics(req)
			results[i] = inst
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Graphics: %v", err)
	}

	for i, r := range results {
		if r != results[0] {
			t.Fatalf("goroutine %d got a different instance", i)
		}
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if got := dev.renders.Load(); got != goroutines {
		t.Errorf("created = %d, want %d", got, goroutines)
	}
	if got := dev.destroyed.Load(); got != goroutines-1 {
		t.Errorf("destroyed = %d, want %d", got, goroutines-1)
	}
	st := c.Stats()
	if st.Races != goroutines-1 || st.Created != goroutines || st.Destroyed != goroutines-1 {
		t.Errorf("stats = %+v", st)
	}

	c.Destroy()
	if got := dev.destroyed.Load(); got != goroutines {
		t.Errorf("destroyed after Destroy = %d, want %d", got, goroutines)
	}
	if c.Len() != 0 {
		t.Errorf("Len after Destroy = %d", c.Len())
	}
}

func TestValidate(t *testing.T) {
	dualSource := DefaultRenderState()
	dualSource.Blend[0] = alphaBlend
	dualSource.Blend[0].Color.DstFactor = BlendFactorOneMinusSrc1

	restartList := DefaultRenderState()
	restartList.Raster.PrimitiveRestart = true
	restartList.Raster.StripIndexFormat = gputypes.IndexFormatUint16

	restartStrip := restartList
	restartStrip.Raster.Topology = gputypes.PrimitiveTopologyTriangleStrip

	restartNoFormat := restartStrip
	restartNoFormat.Raster.StripIndexFormat = gputypes.IndexFormatUndefined

	samples3 := DefaultRenderState()
	samples3.Multisample.Count = 3

	samples4 := DefaultRenderState()
	samples4.Multisample.Count = 4

	bias := DefaultRenderState()
	bias.Depth.Bias = 2

	unclipped := DefaultRenderState()
	unclipped.Raster.UnclippedDepth = true

	msaa := colorTarget()
	msaa.SampleCount = 4

	tests := []struct {
		name     string
		state    RenderState
		targets  Targets
		features Features
		want     error
	}{
		{"default", DefaultRenderState(), colorTarget(), 0, nil},
		{"dual source without feature", dualSource, colorTarget(), 0, ErrDualSourceBlend},
		{"dual source with feature", dualSource, colorTarget(), FeatureDualSourceBlend, nil},
		{"restart on list", restartList, colorTarget(), 0, ErrPrimitiveRestart},
		{"restart on strip", restartStrip, colorTarget(), 0, nil},
		{"restart without format", restartNoFormat, colorTarget(), 0, ErrPrimitiveRestart},
		{"three samples", samples3, colorTarget(), 0, ErrSampleCount},
		{"msaa state with unset attachment samples", samples4, colorTarget(), 0, nil},
		{"attachment sample mismatch", DefaultRenderState(), msaa, 0, ErrSampleCount},
		{"matching msaa", samples4, msaa, 0, nil},
		{"bias without depth", bias, colorTarget(), 0, ErrDepthBias},
		{"bias with depth", bias, depthTarget(), 0, nil},
		{"unclipped depth without feature", unclipped, colorTarget(), 0, ErrUnclippedDepth},
		{"too many targets", DefaultRenderState(), Targets{ColorCount: MaxColorTargets + 1}, 0, ErrColorTargets},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.state, tt.targets, tt.features)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGraphicsValidation(t *testing.T) {
	hd := createNoopDevice(t)
	layout := newLayout(t, hd, "graphics", shader.StageVertex, shader.StageFragment)

	dualSource := DefaultRenderState()
	dualSource.Blend[0] = alphaBlend
	dualSource.Blend[0].Alpha.SrcFactor = BlendFactorSrc1Alpha

	dualSourceOff := dualSource
	dualSourceOff.Blend[0].Enabled = false

	bias := DefaultRenderState()
	bias.Depth.Bias = 2

	slope := DefaultRenderState()
	slope.Depth.BiasSlope = 1.5

	tests := []struct {
		name     string
		state    RenderState
		targets  Targets
		features Features
		want     error
	}{
		{"dual source without feature", dualSource, colorTarget(), 0, ErrDualSourceBlend},
		{"dual source with feature", dualSource, colorTarget(), FeatureDualSourceBlend, nil},
		{"dual source on disabled blend", dualSourceOff, colorTarget(), 0, nil},
		{"bias without depth", bias, colorTarget(), 0, ErrDepthBias},
		{"slope bias without depth", slope, colorTarget(), 0, ErrDepthBias},
		{"bias with depth", bias, depthTarget(), 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &countingDevice{Device: hd}
			c := NewCache(dev, WithFeatures(tt.features))
			defer c.Destroy()

			_, err := c.Graphics(&GraphicsRequest{Layout: layout, State: tt.state, Targets: tt.targets})
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Graphics = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Graphics = %v, want %v", err, tt.want)
			}
			if got := dev.renders.Load(); got != 0 {
				t.Errorf("created %d pipelines for an invalid request", got)
			}
		})
	}
}

func TestGraphicsDescriptor(t *testing.T) {
	hd := createNoopDevice(t)
	dev := &countingDevice{Device: hd}
	c := NewCache(dev, WithFeatures(FeatureDualSourceBlend|FeatureDepthClipControl))
	defer c.Destroy()
	layout := newLayout(t, hd, "graphics", shader.StageVertex, shader.StageFragment)

	s := DefaultRenderState()
	s.Raster.Topology = gputypes.PrimitiveTopologyTriangleStrip
	s.Raster.PrimitiveRestart = true
	s.Raster.StripIndexFormat = gputypes.IndexFormatUint32
	s.Raster.UnclippedDepth = true
	s.Blend[0] = alphaBlend
	s.Blend[0].Color.DstFactor = BlendFactorOneMinusSrc1
	s.Depth = DepthState{TestEnabled: true, WriteEnabled: true, Compare: gputypes.CompareFunctionLess, Bias: 4, BiasSlope: 2, BiasClamp: 0.5}

	if _, err := c.Graphics(&GraphicsRequest{Layout: layout, State: s, Targets: depthTarget()}); err != nil {
		t.Fatalf("Graphics: %v", err)
	}
	desc := dev.lastRender.Load()
	if desc == nil {
		t.Fatal("no render pipeline was created")
	}

	prim := desc.Primitive
	if prim.Topology != gputypes.PrimitiveTopologyTriangleStrip {
		t.Errorf("Topology = %v", prim.Topology)
	}
	if prim.StripIndexFormat == nil || *prim.StripIndexFormat != gputypes.IndexFormatUint32 {
		t.Errorf("StripIndexFormat = %v, want Uint32", prim.StripIndexFormat)
	}
	if !prim.UnclippedDepth {
		t.Error("UnclippedDepth was not passed through")
	}

	ds := desc.DepthStencil
	if ds == nil {
		t.Fatal("DepthStencil = nil")
	}
	if ds.DepthBias != 4 || ds.DepthBiasSlopeScale != 2 || ds.DepthBiasClamp != 0.5 {
		t.Errorf("depth bias = %d/%v/%v, want 4/2/0.5", ds.DepthBias, ds.DepthBiasSlopeScale, ds.DepthBiasClamp)
	}

	if desc.Fragment == nil || len(desc.Fragment.Targets) != 1 || desc.Fragment.Targets[0].Blend == nil {
		t.Fatal("missing blended color target")
	}
	if got := desc.Fragment.Targets[0].Blend.Color.DstFactor; got != gputypes.BlendFactor(BlendFactorOneMinusSrc1) {
		t.Errorf("DstFactor = %v, want the one-minus-src1 value", got)
	}
}

func TestStripIndexFormatWithoutRestart(t *testing.T) {
	hd := createNoopDevice(t)
	dev := &countingDevice{Device: hd}
	c := NewCache(dev)
	defer c.Destroy()
	layout := newLayout(t, hd, "graphics", shader.StageVertex, shader.StageFragment)

	s := DefaultRenderState()
	s.Raster.Topology = gputypes.PrimitiveTopologyTriangleStrip
	s.Raster.StripIndexFormat = gputypes.IndexFormatUint16

	if _, err := c.Graphics(&GraphicsRequest{Layout: layout, State: s, Targets: colorTarget()}); err != nil {
		t.Fatalf("Graphics: %v", err)
	}
	if f := dev.lastRender.Load().Primitive.StripIndexFormat; f != nil {
		t.Errorf("StripIndexFormat = %v, want nil without primitive restart", *f)
	}
}

func TestBlendFactorDualSource(t *testing.T) {
	for _, f := range []BlendFactor{BlendFactorSrc1, BlendFactorOneMinusSrc1, BlendFactorSrc1Alpha, BlendFactorOneMinusSrc1Alpha} {
		if !f.DualSource() {
			t.Errorf("%d.DualSource() = false", f)
		}
	}
	for _, f := range []BlendFactor{BlendFactorZero, BlendFactorSrcAlpha, BlendFactorConstant, BlendFactorOneMinusConstant} {
		if f.DualSource() {
			t.Errorf("%d.DualSource() = true", f)
		}
	}
	if BlendFactorSrcAlpha != BlendFactor(gputypes.BlendFactorSrcAlpha) {
		t.Error("single-source factors must keep the gputypes values")
	}
}

func TestKeyHash(t *testing.T) {
	vertex := VertexInput{{
		ArrayStride: 8,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
		},
	}}
	base := Key{Kind: KindGraphics, Layout: 7, Targets: colorTarget(), State: DefaultRenderState(), Vertex: vertex.encode()}

	same := base
	if base.Hash() != same.Hash() {
		t.Error("equal keys hash differently")
	}

	negZero := base
	negZero.State.BlendConstant[0] = negativeZero()
	if negZero != base {
		t.Fatal("negative zero key compares unequal")
	}
	if negZero.Hash() != base.Hash() {
		t.Error("negative zero changes the hash of an equal key")
	}

	noVertex := base
	noVertex.Vertex = VertexInput(nil).encode()
	if noVertex.Hash() == base.Hash() {
		t.Error("vertex input does not affect the hash")
	}

	otherLayout := base
	otherLayout.Layout = 8
	if otherLayout.Hash() == base.Hash() {
		t.Error("layout does not affect the hash")
	}
}

func negativeZero() float32 {
	z := float32(0)
	return -z
}

func TestComputeAndRayTracing(t *testing.T) {
	hd := createNoopDevice(t)
	dev := extendedDevice{&countingDevice{Device: hd}}

	compute := newLayout(t, hd, "cull", shader.StageCompute)
	rays := newLayout(t, hd, "shadows", shader.StageRayGen, shader.StageMiss, shader.StageClosestHit)

	c := NewCache(dev, WithFeatures(FeatureRayTracing|FeatureMeshShader))
	first, err := c.Compute(&ComputeRequest{Layout: compute})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	second, err := c.Compute(&ComputeRequest{Layout: compute, Debug: 3})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if first != second {
		t.Error("unsupported debug mode did not share the regular pipeline")
	}
	if first.Kind != KindCompute || dev.computes.Load() != 1 {
		t.Errorf("compute pipeline created %d times", dev.computes.Load())
	}

	rt, err := c.RayTracing(&RayTracingRequest{Layout: rays})
	if err != nil {
		t.Fatalf("RayTracing: %v", err)
	}
	if rt.Kind != KindRayTracing || rt.RayTracing() == nil {
		t.Errorf("ray tracing instance = %+v", rt)
	}
	if _, err := c.RayTracing(&RayTracingRequest{Layout: compute}); !errors.Is(err, ErrMissingStage) {
		t.Errorf("RayTracing without raygen = %v, want ErrMissingStage", err)
	}

	c.Destroy()
	if got := dev.destroyed.Load(); got != 2 {
		t.Errorf("destroyed = %d, want 2", got)
	}

	plain := NewCache(&countingDevice{Device: hd})
	if _, err := plain.RayTracing(&RayTracingRequest{Layout: rays}); !errors.Is(err, ErrRayTracingUnsupported) {
		t.Errorf("RayTracing on plain device = %v", err)
	}
}

func TestMesh(t *testing.T) {
	hd := createNoopDevice(t)
	dev := extendedDevice{&countingDevice{Device: hd}}
	layout := newLayout(t, hd, "meshlets", shader.StageTask, shader.StageMesh, shader.StageFragment)
	req := &MeshRequest{Layout: layout, State: DefaultRenderState(), Targets: colorTarget()}

	if _, err := NewCache(dev).Mesh(req); !errors.Is(err, ErrMeshUnsupported) {
		t.Errorf("Mesh without feature = %v, want ErrMeshUnsupported", err)
	}

	c := NewCache(dev, WithFeatures(FeatureMeshShader))
	defer c.Destroy()
	inst, err := c.Mesh(req)
	if err != nil {
		t.Fatalf("Mesh: %v", err)
	}
	if inst.Kind != KindMesh {
		t.Errorf("mesh instance = %+v", inst)
	}
	again, _ := c.Mesh(req)
	if again != inst || dev.meshes.Load() != 1 {
		t.Errorf("mesh pipeline created %d times", dev.meshes.Load())
	}
}

func TestRequestErrors(t *testing.T) {
	hd := createNoopDevice(t)
	c := NewCache(&countingDevice{Device: hd})
	vertexOnly := newLayout(t, hd, "vs", shader.StageVertex)
	empty := NewLayout("empty", nil, nil)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"nil layout", GraphicsRequest{}, ErrNilLayout},
		{"no shaders", ComputeRequest{Layout: empty}, ErrMissingStage},
		{"no compute stage", ComputeRequest{Layout: vertexOnly}, ErrMissingStage},
		{"color without fragment", GraphicsRequest{Layout: vertexOnly, State: DefaultRenderState(), Targets: colorTarget()}, ErrMissingStage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Get(tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Get = %v, want %v", err, tt.want)
			}
		})
	}

	depthOnly, err := c.Get(GraphicsRequest{Layout: vertexOnly, State: DefaultRenderState(), Targets: Targets{DepthFormat: gputypes.TextureFormatDepth24PlusStencil8}})
	if err != nil || depthOnly == nil {
		t.Errorf("depth-only pipeline = %v", err)
	}
}

func TestWarm(t *testing.T) {
	hd := createNoopDevice(t)
	dev := &countingDevice{Device: hd}
	c := NewCache(dev)
	defer c.Destroy()
	layout := newLayout(t, hd, "scene", shader.StageVertex, shader.StageFragment, shader.StageCompute)

	culled := DefaultRenderState()
	culled.Raster.CullMode = gputypes.CullModeBack
	reqs := []Request{
		GraphicsRequest{Layout: layout, State: DefaultRenderState(), Targets: colorTarget()},
		GraphicsRequest{Layout: layout, State: culled, Targets: colorTarget()},
		GraphicsRequest{Layout: layout, State: culled, Targets: colorTarget()},
		ComputeRequest{Layout: layout},
	}
	if err := c.Warm(context.Background(), reqs); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Warm(ctx, reqs); !errors.Is(err, context.Canceled) {
		t.Errorf("Warm with canceled context = %v", err)
	}
}
