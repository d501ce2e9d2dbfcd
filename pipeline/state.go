package pipeline

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// MaxColorTargets is the maximum number of color attachments of a subpass.
const MaxColorTargets = 8

// Kind is the class of a pipeline.
type Kind uint8

// Pipeline kinds.
const (
	KindGraphics Kind = iota
	KindMesh
	KindCompute
	KindRayTracing
)

func (k Kind) String() string {
	switch k {
	case KindGraphics:
		return "graphics"
	case KindMesh:
		return "mesh"
	case KindCompute:
		return "compute"
	case KindRayTracing:
		return "ray-tracing"
	}
	return "unknown"
}

// Features are optional device capabilities that gate render states.
type Features uint32

// Device features.
const (
	FeatureDualSourceBlend Features = 1 << iota
	FeatureMeshShader
	FeatureRayTracing
	FeatureDepthClipControl
)

// Has reports whether f contains every feature in g.
func (f Features) Has(g Features) bool { return f&g == g }

// DynamicState marks render state that is set on the pass instead of being
// baked into the pipeline. Dynamic fields do not take part in the key.
type DynamicState uint8

// Dynamic states.
const (
	DynamicViewport DynamicState = 1 << iota
	DynamicScissor
	DynamicStencilReference
	DynamicBlendConstant
)

// DynamicAll marks every dynamic state. DrawContext requests pipelines with
// it, since all of these are set through its setters.
const DynamicAll = DynamicViewport | DynamicScissor | DynamicStencilReference | DynamicBlendConstant

// Has reports whether d contains every state in e.
func (d DynamicState) Has(e DynamicState) bool { return d&e == e }

// BlendFactor is a blend factor. It extends gputypes.BlendFactor with the
// dual-source factors, which follow OneMinusConstant in the WebGPU numbering.
type BlendFactor uint32

// Blend factors.
const (
	BlendFactorZero              = BlendFactor(gputypes.BlendFactorZero)
	BlendFactorOne               = BlendFactor(gputypes.BlendFactorOne)
	BlendFactorSrc               = BlendFactor(gputypes.BlendFactorSrc)
	BlendFactorOneMinusSrc       = BlendFactor(gputypes.BlendFactorOneMinusSrc)
	BlendFactorSrcAlpha          = BlendFactor(gputypes.BlendFactorSrcAlpha)
	BlendFactorOneMinusSrcAlpha  = BlendFactor(gputypes.BlendFactorOneMinusSrcAlpha)
	BlendFactorDst               = BlendFactor(gputypes.BlendFactorDst)
	BlendFactorOneMinusDst       = BlendFactor(gputypes.BlendFactorOneMinusDst)
	BlendFactorDstAlpha          = BlendFactor(gputypes.BlendFactorDstAlpha)
	BlendFactorOneMinusDstAlpha  = BlendFactor(gputypes.BlendFactorOneMinusDstAlpha)
	BlendFactorSrcAlphaSaturated = BlendFactor(gputypes.BlendFactorSrcAlphaSaturated)
	BlendFactorConstant          = BlendFactor(gputypes.BlendFactorConstant)
	BlendFactorOneMinusConstant  = BlendFactor(gputypes.BlendFactorOneMinusConstant)

	// Dual-source factors read the second fragment output. They require
	// FeatureDualSourceBlend.
	BlendFactorSrc1              = BlendFactorOneMinusConstant + 1
	BlendFactorOneMinusSrc1      = BlendFactorOneMinusConstant + 2
	BlendFactorSrc1Alpha         = BlendFactorOneMinusConstant + 3
	BlendFactorOneMinusSrc1Alpha = BlendFactorOneMinusConstant + 4
)

// DualSource reports whether f reads the second fragment output.
func (f BlendFactor) DualSource() bool {
	return f >= BlendFactorSrc1 && f <= BlendFactorOneMinusSrc1Alpha
}

// BlendComponent is the blend equation of the color or alpha channel.
type BlendComponent struct {
	SrcFactor BlendFactor
	DstFactor BlendFactor
	Operation gputypes.BlendOperation
}

// TargetBlend is the blend state of one color target.
type TargetBlend struct {
	Enabled   bool
	Color     BlendComponent
	Alpha     BlendComponent
	WriteMask gputypes.ColorWriteMask
}

// DepthState configures depth testing and depth bias.
type DepthState struct {
	TestEnabled  bool
	WriteEnabled bool
	Compare      gputypes.CompareFunction
	Bias         int32
	BiasSlope    float32
	BiasClamp    float32
}

// StencilFace is the stencil test of one face.
type StencilFace struct {
	Compare     gputypes.CompareFunction
	FailOp      hal.StencilOperation
	DepthFailOp hal.StencilOperation
	PassOp      hal.StencilOperation
}

// StencilState configures stencil testing.
type StencilState struct {
	Enabled   bool
	Front     StencilFace
	Back      StencilFace
	ReadMask  uint32
	WriteMask uint32
	Reference uint32
}

// RasterState configures primitive assembly and rasterization.
type RasterState struct {
	Topology         gputypes.PrimitiveTopology
	PrimitiveRestart bool
	StripIndexFormat gputypes.IndexFormat
	FrontFace        gputypes.FrontFace
	CullMode         gputypes.CullMode
	// Discard disables rasterization. Blend, depth and stencil state are
	// then irrelevant and normalized away.
	Discard        bool
	UnclippedDepth bool
}

// MultisampleState configures multisampling.
type MultisampleState struct {
	Count           uint32
	Mask            uint32
	AlphaToCoverage bool
}

// Viewport is a static viewport.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Scissor is a static scissor rectangle.
type Scissor struct {
	X, Y, Width, Height uint32
}

// RenderState is the fixed-function state of a graphics or mesh pipeline.
// It is comparable and is used as part of the pipeline key after Normalize.
type RenderState struct {
	Blend         [MaxColorTargets]TargetBlend
	BlendConstant [4]float32
	Depth         DepthState
	Stencil       StencilState
	Raster        RasterState
	Multisample   MultisampleState
	Viewport      Viewport
	Scissor       Scissor
}

// DefaultRenderState returns opaque triangle-list rendering with every
// color channel written and no depth or stencil test.
func DefaultRenderState() RenderState {
	var s RenderState
	for i := range s.Blend {
		s.Blend[i].WriteMask = gputypes.ColorWriteMaskAll
	}
	s.Raster.Topology = gputypes.PrimitiveTopologyTriangleList
	s.Raster.CullMode = gputypes.CullModeNone
	s.Multisample = MultisampleState{Count: 1, Mask: 0xFFFFFFFF}
	return s
}

// Targets are the attachment formats of the subpass a pipeline renders into.
type Targets struct {
	ColorCount   uint8
	ColorFormats [MaxColorTargets]gputypes.TextureFormat
	DepthFormat  gputypes.TextureFormat
	SampleCount  uint32
}

// HasDepth reports whether the subpass has a depth-stencil attachment.
func (t Targets) HasDepth() bool {
	return t.DepthFormat != gputypes.TextureFormatUndefined
}
