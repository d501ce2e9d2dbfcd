package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/framegraph/cache"
	"github.com/gogpu/framegraph/native"
	"github.com/gogpu/framegraph/shader"
)

// Creation errors.
var (
	ErrMissingStage          = errors.New("pipeline: missing shader stage")
	ErrRayTracingUnsupported = errors.New("pipeline: ray tracing is not supported")
)

// Instance is a native pipeline together with the key it was built for.
// Instances are shared by every caller requesting an equal key and stay
// valid until Cache.Destroy.
type Instance struct {
	key  Key
	hash uint64

	Label  string
	Kind   Kind
	Layout *Layout

	// State is the normalized render state. Static viewport, scissor,
	// stencil reference and blend constant are applied from it at bind time.
	State   RenderState
	Dynamic DynamicState

	render     hal.RenderPipeline
	compute    hal.ComputePipeline
	rayTracing native.RayTracingPipeline
}

// Key returns the key of the instance.
func (i *Instance) Key() Key { return i.key }

// Hash returns the hash of the key.
func (i *Instance) Hash() uint64 { return i.hash }

// Render returns the native pipeline of a graphics or mesh instance.
func (i *Instance) Render() hal.RenderPipeline { return i.render }

// Compute returns the native pipeline of a compute instance.
func (i *Instance) Compute() hal.ComputePipeline { return i.compute }

// RayTracing returns the native pipeline of a ray tracing instance.
func (i *Instance) RayTracing() native.RayTracingPipeline { return i.rayTracing }

// GraphicsRequest describes a vertex pipeline.
type GraphicsRequest struct {
	Layout  *Layout
	State   RenderState
	Vertex  VertexInput
	Dynamic DynamicState
	Debug   shader.DebugMode
	Targets Targets
}

// MeshRequest describes a task/mesh shading pipeline.
type MeshRequest struct {
	Layout  *Layout
	State   RenderState
	Dynamic DynamicState
	Debug   shader.DebugMode
	Targets Targets
}

// ComputeRequest describes a compute pipeline.
type ComputeRequest struct {
	Layout *Layout
	Debug  shader.DebugMode
}

// RayTracingRequest describes a ray tracing pipeline.
type RayTracingRequest struct {
	Layout            *Layout
	Debug             shader.DebugMode
	MaxRecursionDepth uint32
}

// Request is any of the pipeline requests. It is used by Warm.
type Request interface {
	get(c *Cache) (*Instance, error)
}

func (r GraphicsRequest) get(c *Cache) (*Instance, error)   { return c.Graphics(&r) }
func (r MeshRequest) get(c *Cache) (*Instance, error)       { return c.Mesh(&r) }
func (r ComputeRequest) get(c *Cache) (*Instance, error)    { return c.Compute(&r) }
func (r RayTracingRequest) get(c *Cache) (*Instance, error) { return c.RayTracing(&r) }

// Option configures a Cache.
type Option func(*Cache)

// WithFeatures sets the optional device features render states may use.
func WithFeatures(f Features) Option {
	return func(c *Cache) { c.features = f }
}

// WithLogger sets the logger. Pipeline creation is logged at Debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// Cache maps pipeline keys to native pipelines.
//
// Lookups take a shard read lock. On a miss the pipeline is built without
// holding any lock and then inserted with insert-or-find semantics: if
// another goroutine inserted the same key first, the pipeline just built is
// destroyed and the existing one is returned. Creation may run more than
// once under contention but the cache never holds two pipelines for one key.
//
// Cache is safe for concurrent use.
type Cache struct {
	dev      Device
	features Features
	logger   *slog.Logger

	instances *cache.Sharded[Key, *Instance]

	created   atomic.Uint64
	destroyed atomic.Uint64
}

// NewCache creates an empty cache building pipelines on dev.
func NewCache(dev Device, opts ...Option) *Cache {
	c := &Cache{
		dev:       dev,
		logger:    slog.New(slog.DiscardHandler),
		instances: cache.NewSharded[Key, *Instance](func(k Key) uint64 { return k.Hash() }),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Features returns the device features the cache validates against.
func (c *Cache) Features() Features { return c.features }

// Get returns the instance for any request kind.
func (c *Cache) Get(req Request) (*Instance, error) { return req.get(c) }

// Graphics returns the vertex pipeline for req, creating it on first use.
func (c *Cache) Graphics(req *GraphicsRequest) (*Instance, error) {
	if req.Layout == nil {
		return nil, ErrNilLayout
	}
	mode, err := resolveMode(req.Layout, req.Debug)
	if err != nil {
		return nil, err
	}
	targets := canonicalTargets(req.Targets, req.State.Multisample.Count)
	state := Normalize(req.State, req.Dynamic, targets)
	if err := Validate(state, targets, c.features); err != nil {
		return nil, err
	}
	key := Key{
		Kind:    KindGraphics,
		Layout:  req.Layout.ID(),
		Debug:   mode,
		Targets: targets,
		State:   state,
		Vertex:  req.Vertex.encode(),
		Dynamic: req.Dynamic,
	}
	return c.getOrCreate(key, func() (*Instance, error) {
		return c.createGraphics(req.Layout, mode, &key, req.Vertex)
	})
}

// Mesh returns the task/mesh pipeline for req, creating it on first use.
func (c *Cache) Mesh(req *MeshRequest) (*Instance, error) {
	if req.Layout == nil {
		return nil, ErrNilLayout
	}
	if !c.features.Has(FeatureMeshShader) {
		return nil, ErrMeshUnsupported
	}
	mode, err := resolveMode(req.Layout, req.Debug)
	if err != nil {
		return nil, err
	}
	targets := canonicalTargets(req.Targets, req.State.Multisample.Count)
	state := Normalize(req.State, req.Dynamic, targets)
	if err := Validate(state, targets, c.features); err != nil {
		return nil, err
	}
	key := Key{
		Kind:    KindMesh,
		Layout:  req.Layout.ID(),
		Debug:   mode,
		Targets: targets,
		State:   state,
		Dynamic: req.Dynamic,
	}
	return c.getOrCreate(key, func() (*Instance, error) {
		return c.createMesh(req.Layout, mode, &key)
	})
}

// Compute returns the compute pipeline for req, creating it on first use.
func (c *Cache) Compute(req *ComputeRequest) (*Instance, error) {
	if req.Layout == nil {
		return nil, ErrNilLayout
	}
	mode, err := resolveMode(req.Layout, req.Debug)
	if err != nil {
		return nil, err
	}
	key := Key{Kind: KindCompute, Layout: req.Layout.ID(), Debug: mode}
	return c.getOrCreate(key, func() (*Instance, error) {
		cs := req.Layout.Shaders.Stage(mode, shader.StageCompute)
		if cs == nil {
			return nil, fmt.Errorf("%w: %s has no compute stage", ErrMissingStage, req.Layout.Label)
		}
		raw, err := c.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  req.Layout.Label,
			Layout: req.Layout.Raw,
			Compute: hal.ComputeState{
				Module:     cs.Raw,
				EntryPoint: cs.EntryPoint,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("pipeline: create compute pipeline %s: %w", req.Layout.Label, err)
		}
		return &Instance{Label: req.Layout.Label, Kind: KindCompute, Layout: req.Layout, compute: raw}, nil
	})
}

// RayTracing returns the ray tracing pipeline for req, creating it on first use.
func (c *Cache) RayTracing(req *RayTracingRequest) (*Instance, error) {
	if req.Layout == nil {
		return nil, ErrNilLayout
	}
	rt, ok := c.dev.(RayTracingDevice)
	if !ok || !c.features.Has(FeatureRayTracing) {
		return nil, ErrRayTracingUnsupported
	}
	mode, err := resolveMode(req.Layout, req.Debug)
	if err != nil {
		return nil, err
	}
	depth := max(req.MaxRecursionDepth, 1)
	key := Key{Kind: KindRayTracing, Layout: req.Layout.ID(), Debug: mode, Recursion: depth}
	return c.getOrCreate(key, func() (*Instance, error) {
		mods, err := req.Layout.Shaders.Stages(mode)
		if err != nil {
			return nil, err
		}
		desc := &RayTracingPipelineDescriptor{
			Label:             req.Layout.Label,
			Layout:            req.Layout.Raw,
			MaxRecursionDepth: depth,
		}
		hasRayGen := false
		for _, m := range mods {
			if m.Stage < shader.StageRayGen {
				continue
			}
			hasRayGen = hasRayGen || m.Stage == shader.StageRayGen
			desc.Stages = append(desc.Stages, RayTracingStage{Stage: m.Stage, Module: m.Raw, EntryPoint: m.EntryPoint})
		}
		if !hasRayGen {
			return nil, fmt.Errorf("%w: %s has no raygen stage", ErrMissingStage, req.Layout.Label)
		}
		raw, err := rt.CreateRayTracingPipeline(desc)
		if err != nil {
			return nil, fmt.Errorf("pipeline: create ray tracing pipeline %s: %w", req.Layout.Label, err)
		}
		return &Instance{Label: req.Layout.Label, Kind: KindRayTracing, Layout: req.Layout, rayTracing: raw}, nil
	})
}

// Warm builds the pipelines for reqs concurrently. It stops at the first
// error or when ctx is canceled.
func (c *Cache) Warm(ctx context.Context, reqs []Request) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := req.get(c)
			return err
		})
	}
	return g.Wait()
}

// Len returns the number of cached pipelines.
func (c *Cache) Len() int { return c.instances.Len() }

// Stats holds cache statistics.
type Stats struct {
	cache.Stats
	Created   uint64
	Destroyed uint64
}

// Stats returns the current statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Stats:     c.instances.Stats(),
		Created:   c.created.Load(),
		Destroyed: c.destroyed.Load(),
	}
}

// Destroy releases every cached pipeline. Instances obtained earlier must
// not be used afterwards.
func (c *Cache) Destroy() {
	for _, inst := range c.instances.Drain() {
		c.release(inst)
	}
}

func (c *Cache) getOrCreate(key Key, build func() (*Instance, error)) (*Instance, error) {
	if inst, ok := c.instances.Load(key); ok {
		return inst, nil
	}

	inst, err := build()
	if err != nil {
		return nil, err
	}
	inst.key = key
	inst.hash = key.Hash()
	inst.State = key.State
	inst.Dynamic = key.Dynamic
	c.created.Add(1)

	actual, loaded := c.instances.LoadOrStore(key, inst)
	if loaded {
		c.release(inst)
		c.logger.Debug("pipeline: lost creation race", "kind", key.Kind, "label", inst.Label)
		return actual, nil
	}
	c.logger.Debug("pipeline: created", "kind", key.Kind, "label", inst.Label, "hash", inst.hash)
	return inst, nil
}

func (c *Cache) release(inst *Instance) {
	switch inst.Kind {
	case KindGraphics, KindMesh:
		if inst.render != nil {
			c.dev.DestroyRenderPipeline(inst.render)
		}
	case KindCompute:
		if inst.compute != nil {
			c.dev.DestroyComputePipeline(inst.compute)
		}
	case KindRayTracing:
		if inst.rayTracing != nil {
			inst.rayTracing.Destroy()
		}
	}
	c.destroyed.Add(1)
}

func resolveMode(l *Layout, mode shader.DebugMode) (shader.DebugMode, error) {
	if l.Shaders == nil {
		return 0, fmt.Errorf("%w: layout %s has no shaders", ErrMissingStage, l.Label)
	}
	return l.Shaders.Resolve(mode), nil
}

// canonicalTargets clears formats past ColorCount and fills in the sample
// count from the render state when the attachments leave it unset.
func canonicalTargets(t Targets, samples uint32) Targets {
	for i := range t.ColorFormats {
		if i >= int(t.ColorCount) {
			t.ColorFormats[i] = gputypes.TextureFormatUndefined
		}
	}
	if t.SampleCount == 0 {
		t.SampleCount = max(samples, 1)
	}
	return t
}

func (c *Cache) createGraphics(l *Layout, mode shader.DebugMode, key *Key, vertex VertexInput) (*Instance, error) {
	vs := l.Shaders.Stage(mode, shader.StageVertex)
	if vs == nil {
		return nil, fmt.Errorf("%w: %s has no vertex stage", ErrMissingStage, l.Label)
	}
	fragment, err := fragmentState(l, mode, key)
	if err != nil {
		return nil, err
	}
	raw, err := c.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  l.Label,
		Layout: l.Raw,
		Vertex: hal.VertexState{
			Module:     vs.Raw,
			EntryPoint: vs.EntryPoint,
			Buffers:    vertex,
		},
		Fragment:     fragment,
		DepthStencil: depthStencilState(&key.State, key.Targets),
		Multisample:  multisampleState(&key.State),
		Primitive:    primitiveState(&key.State),
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: create render pipeline %s: %w", l.Label, err)
	}
	return &Instance{Label: l.Label, Kind: KindGraphics, Layout: l, render: raw}, nil
}

func (c *Cache) createMesh(l *Layout, mode shader.DebugMode, key *Key) (*Instance, error) {
	md, ok := c.dev.(MeshDevice)
	if !ok {
		return nil, ErrMeshUnsupported
	}
	ms := l.Shaders.Stage(mode, shader.StageMesh)
	if ms == nil {
		return nil, fmt.Errorf("%w: %s has no mesh stage", ErrMissingStage, l.Label)
	}
	fragment, err := fragmentState(l, mode, key)
	if err != nil {
		return nil, err
	}
	desc := &MeshPipelineDescriptor{
		Label:        l.Label,
		Layout:       l.Raw,
		Mesh:         Stage{Module: ms.Raw, EntryPoint: ms.EntryPoint},
		Fragment:     fragment,
		DepthStencil: depthStencilState(&key.State, key.Targets),
		Primitive:    primitiveState(&key.State),
		Multisample:  multisampleState(&key.State),
	}
	if ts := l.Shaders.Stage(mode, shader.StageTask); ts != nil {
		desc.Task = &Stage{Module: ts.Raw, EntryPoint: ts.EntryPoint}
	}
	raw, err := md.CreateMeshPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create mesh pipeline %s: %w", l.Label, err)
	}
	return &Instance{Label: l.Label, Kind: KindMesh, Layout: l, render: raw}, nil
}

// fragmentState returns nil when rasterization is discarded. The fragment
// stage may also be absent for depth-only pipelines.
func fragmentState(l *Layout, mode shader.DebugMode, key *Key) (*hal.FragmentState, error) {
	if key.State.Raster.Discard {
		return nil, nil
	}
	fs := l.Shaders.Stage(mode, shader.StageFragment)
	if fs == nil {
		if key.Targets.ColorCount > 0 {
			return nil, fmt.Errorf("%w: %s has no fragment stage", ErrMissingStage, l.Label)
		}
		return nil, nil
	}
	return &hal.FragmentState{
		Module:     fs.Raw,
		EntryPoint: fs.EntryPoint,
		Targets:    colorTargets(&key.State, key.Targets),
	}, nil
}

func colorTargets(s *RenderState, t Targets) []gputypes.ColorTargetState {
	targets := make([]gputypes.ColorTargetState, t.ColorCount)
	for i := range targets {
		b := &s.Blend[i]
		targets[i] = gputypes.ColorTargetState{
			Format:    t.ColorFormats[i],
			WriteMask: b.WriteMask,
		}
		if b.Enabled {
			targets[i].Blend = &gputypes.BlendState{
				Color: blendComponent(b.Color),
				Alpha: blendComponent(b.Alpha),
			}
		}
	}
	return targets
}

func blendComponent(c BlendComponent) gputypes.BlendComponent {
	return gputypes.BlendComponent{
		SrcFactor: gputypes.BlendFactor(c.SrcFactor),
		DstFactor: gputypes.BlendFactor(c.DstFactor),
		Operation: c.Operation,
	}
}

func depthStencilState(s *RenderState, t Targets) *hal.DepthStencilState {
	if !t.HasDepth() {
		return nil
	}
	ds := &hal.DepthStencilState{
		Format:              t.DepthFormat,
		DepthWriteEnabled:   s.Depth.TestEnabled && s.Depth.WriteEnabled,
		DepthCompare:        s.Depth.Compare,
		DepthBias:           s.Depth.Bias,
		DepthBiasSlopeScale: s.Depth.BiasSlope,
		DepthBiasClamp:      s.Depth.BiasClamp,
		StencilFront:        keepStencil,
		StencilBack:         keepStencil,
	}
	if s.Stencil.Enabled {
		ds.StencilFront = stencilFace(s.Stencil.Front)
		ds.StencilBack = stencilFace(s.Stencil.Back)
		ds.StencilReadMask = s.Stencil.ReadMask
		ds.StencilWriteMask = s.Stencil.WriteMask
	}
	return ds
}

var keepStencil = hal.StencilFaceState{
	Compare:     gputypes.CompareFunctionAlways,
	FailOp:      hal.StencilOperationKeep,
	DepthFailOp: hal.StencilOperationKeep,
	PassOp:      hal.StencilOperationKeep,
}

func stencilFace(f StencilFace) hal.StencilFaceState {
	return hal.StencilFaceState{
		Compare:     f.Compare,
		FailOp:      f.FailOp,
		DepthFailOp: f.DepthFailOp,
		PassOp:      f.PassOp,
	}
}

func multisampleState(s *RenderState) gputypes.MultisampleState {
	return gputypes.MultisampleState{
		Count:                  s.Multisample.Count,
		Mask:                   uint64(s.Multisample.Mask),
		AlphaToCoverageEnabled: s.Multisample.AlphaToCoverage,
	}
}

func primitiveState(s *RenderState) gputypes.PrimitiveState {
	ps := gputypes.PrimitiveState{
		Topology:       s.Raster.Topology,
		FrontFace:      s.Raster.FrontFace,
		CullMode:       s.Raster.CullMode,
		UnclippedDepth: s.Raster.UnclippedDepth,
	}
	if f := s.Raster.StripIndexFormat; f != gputypes.IndexFormatUndefined {
		ps.StripIndexFormat = &f
	}
	return ps
}
