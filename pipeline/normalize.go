package pipeline

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// Validation errors.
var (
	ErrDualSourceBlend   = errors.New("pipeline: dual-source blend factors require FeatureDualSourceBlend")
	ErrPrimitiveRestart  = errors.New("pipeline: primitive restart requires a strip topology and a strip index format")
	ErrSampleCount       = errors.New("pipeline: unsupported sample count")
	ErrDepthBias         = errors.New("pipeline: depth bias requires a depth attachment")
	ErrColorTargets      = errors.New("pipeline: too many color targets")
	ErrMeshUnsupported   = errors.New("pipeline: mesh shading is not supported")
	ErrUnclippedDepth    = errors.New("pipeline: unclipped depth requires FeatureDepthClipControl")
	ErrVertexInputOnMesh = errors.New("pipeline: mesh pipelines take no vertex input")
)

// Normalize returns s with every field that cannot affect rendering reset
// to a canonical value, so that equivalent states produce equal keys.
func Normalize(s RenderState, dyn DynamicState, t Targets) RenderState {
	if s.Multisample.Count == 0 {
		s.Multisample.Count = 1
	}
	if s.Multisample.Mask == 0 {
		s.Multisample.Mask = 0xFFFFFFFF
	}
	if !s.Raster.PrimitiveRestart {
		s.Raster.StripIndexFormat = gputypes.IndexFormatUndefined
	}

	if s.Raster.Discard {
		s.Blend = [MaxColorTargets]TargetBlend{}
		s.BlendConstant = [4]float32{}
		s.Depth = DepthState{}
		s.Stencil = StencilState{}
		s.Multisample.AlphaToCoverage = false
	}

	for i := range s.Blend {
		if i >= int(t.ColorCount) {
			s.Blend[i] = TargetBlend{}
			continue
		}
		if !s.Blend[i].Enabled {
			s.Blend[i] = TargetBlend{WriteMask: s.Blend[i].WriteMask}
		}
	}
	if !usesBlendConstant(&s) {
		s.BlendConstant = [4]float32{}
	}

	if !t.HasDepth() {
		// Bias is kept for Validate to reject.
		s.Depth = DepthState{Bias: s.Depth.Bias, BiasSlope: s.Depth.BiasSlope, BiasClamp: s.Depth.BiasClamp}
		s.Stencil = StencilState{}
	}
	if !s.Depth.TestEnabled {
		s.Depth.Compare = gputypes.CompareFunctionAlways
	}
	if !s.Stencil.Enabled {
		s.Stencil = StencilState{}
	}

	if dyn.Has(DynamicViewport) {
		s.Viewport = Viewport{}
	}
	if dyn.Has(DynamicScissor) {
		s.Scissor = Scissor{}
	}
	if dyn.Has(DynamicStencilReference) {
		s.Stencil.Reference = 0
	}
	if dyn.Has(DynamicBlendConstant) {
		s.BlendConstant = [4]float32{}
	}
	return s
}

func usesBlendConstant(s *RenderState) bool {
	for i := range s.Blend {
		b := &s.Blend[i]
		if !b.Enabled {
			continue
		}
		for _, f := range []BlendFactor{b.Color.SrcFactor, b.Color.DstFactor, b.Alpha.SrcFactor, b.Alpha.DstFactor} {
			if f == BlendFactorConstant || f == BlendFactorOneMinusConstant {
				return true
			}
		}
	}
	return false
}

// Validate checks a state returned by Normalize against the targets and the device
// features. These are capability invariants, not options.
func Validate(s RenderState, t Targets, f Features) error {
	if t.ColorCount > MaxColorTargets {
		return fmt.Errorf("%w: %d", ErrColorTargets, t.ColorCount)
	}
	if !f.Has(FeatureDualSourceBlend) {
		for i := range s.Blend {
			b := &s.Blend[i]
			if b.Enabled && (b.Color.SrcFactor.DualSource() || b.Color.DstFactor.DualSource() ||
				b.Alpha.SrcFactor.DualSource() || b.Alpha.DstFactor.DualSource()) {
				return fmt.Errorf("%w: target %d", ErrDualSourceBlend, i)
			}
		}
	}
	if s.Raster.PrimitiveRestart {
		strip := s.Raster.Topology == gputypes.PrimitiveTopologyLineStrip ||
			s.Raster.Topology == gputypes.PrimitiveTopologyTriangleStrip
		format := s.Raster.StripIndexFormat == gputypes.IndexFormatUint16 ||
			s.Raster.StripIndexFormat == gputypes.IndexFormatUint32
		if !strip || !format {
			return ErrPrimitiveRestart
		}
	}
	switch s.Multisample.Count {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("%w: %d", ErrSampleCount, s.Multisample.Count)
	}
	if t.SampleCount != 0 && t.SampleCount != s.Multisample.Count {
		return fmt.Errorf("%w: state has %d samples, attachments have %d", ErrSampleCount, s.Multisample.Count, t.SampleCount)
	}
	if (s.Depth.Bias != 0 || s.Depth.BiasSlope != 0) && !t.HasDepth() {
		return ErrDepthBias
	}
	if s.Raster.UnclippedDepth && !f.Has(FeatureDepthClipControl) {
		return ErrUnclippedDepth
	}
	return nil
}
