package pipeline

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/shader"
)

// VertexInput is the vertex buffer layout of a graphics pipeline.
type VertexInput []gputypes.VertexBufferLayout

// encode returns the canonical byte encoding of the layout. Key stores it as
// a string so the key stays comparable.
func (v VertexInput) encode() string {
	if len(v) == 0 {
		return ""
	}
	b := make([]byte, 0, 32*len(v))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(v))) //nolint:gosec // G115: at most a handful of vertex buffers
	for _, l := range v {
		b = binary.LittleEndian.AppendUint64(b, uint64(l.ArrayStride))
		b = binary.LittleEndian.AppendUint32(b, uint32(l.StepMode))
		b = binary.LittleEndian.AppendUint32(b, uint32(len(l.Attributes))) //nolint:gosec // G115: attribute count is small
		for _, a := range l.Attributes {
			b = binary.LittleEndian.AppendUint32(b, uint32(a.Format))
			b = binary.LittleEndian.AppendUint64(b, uint64(a.Offset))
			b = binary.LittleEndian.AppendUint32(b, uint32(a.ShaderLocation))
		}
	}
	return string(b)
}

// Key identifies a pipeline instance. Two requests map to the same instance
// iff their keys are equal.
type Key struct {
	Kind    Kind
	Layout  uint64
	Debug   shader.DebugMode
	Targets Targets
	State   RenderState
	Vertex  string
	Dynamic DynamicState

	// Recursion is the maximum ray recursion depth of ray tracing pipelines.
	Recursion uint32
}

// Hash returns the FNV-1a hash of the key, written field by field.
func (k *Key) Hash() uint64 {
	h := fnv.New64a()

	hashWriteUint32(h, uint32(k.Kind))
	hashWriteUint64(h, k.Layout)
	hashWriteUint32(h, uint32(k.Debug))
	hashWriteUint32(h, uint32(k.Dynamic))
	hashWriteUint32(h, k.Recursion)

	if k.Kind == KindCompute || k.Kind == KindRayTracing {
		return h.Sum64()
	}

	// Targets
	hashWriteUint32(h, uint32(k.Targets.ColorCount))
	for _, f := range k.Targets.ColorFormats {
		hashWriteUint32(h, uint32(f))
	}
	hashWriteUint32(h, uint32(k.Targets.DepthFormat))
	hashWriteUint32(h, k.Targets.SampleCount)

	hashRenderState(h, &k.State)
	hashWriteString(h, k.Vertex)

	return h.Sum64()
}

func hashRenderState(h hash.Hash64, s *RenderState) {
	for i := range s.Blend {
		b := &s.Blend[i]
		hashWriteBool(h, b.Enabled)
		hashBlendComponent(h, b.Color)
		hashBlendComponent(h, b.Alpha)
		hashWriteUint32(h, uint32(b.WriteMask))
	}
	for _, c := range s.BlendConstant {
		hashWriteFloat32(h, c)
	}

	hashWriteBool(h, s.Depth.TestEnabled)
	hashWriteBool(h, s.Depth.WriteEnabled)
	hashWriteUint32(h, uint32(s.Depth.Compare))
	hashWriteUint32(h, uint32(s.Depth.Bias))
	hashWriteFloat32(h, s.Depth.BiasSlope)
	hashWriteFloat32(h, s.Depth.BiasClamp)

	hashWriteBool(h, s.Stencil.Enabled)
	hashStencilFace(h, s.Stencil.Front)
	hashStencilFace(h, s.Stencil.Back)
	hashWriteUint32(h, s.Stencil.ReadMask)
	hashWriteUint32(h, s.Stencil.WriteMask)
	hashWriteUint32(h, s.Stencil.Reference)

	hashWriteUint32(h, uint32(s.Raster.Topology))
	hashWriteBool(h, s.Raster.PrimitiveRestart)
	hashWriteUint32(h, uint32(s.Raster.StripIndexFormat))
	hashWriteUint32(h, uint32(s.Raster.FrontFace))
	hashWriteUint32(h, uint32(s.Raster.CullMode))
	hashWriteBool(h, s.Raster.Discard)
	hashWriteBool(h, s.Raster.UnclippedDepth)

	hashWriteUint32(h, s.Multisample.Count)
	hashWriteUint32(h, s.Multisample.Mask)
	hashWriteBool(h, s.Multisample.AlphaToCoverage)

	for _, f := range []float32{s.Viewport.X, s.Viewport.Y, s.Viewport.Width, s.Viewport.Height, s.Viewport.MinDepth, s.Viewport.MaxDepth} {
		hashWriteFloat32(h, f)
	}
	hashWriteUint32(h, s.Scissor.X)
	hashWriteUint32(h, s.Scissor.Y)
	hashWriteUint32(h, s.Scissor.Width)
	hashWriteUint32(h, s.Scissor.Height)
}

func hashBlendComponent(h hash.Hash64, c BlendComponent) {
	hashWriteUint32(h, uint32(c.SrcFactor))
	hashWriteUint32(h, uint32(c.DstFactor))
	hashWriteUint32(h, uint32(c.Operation))
}

func hashStencilFace(h hash.Hash64, f StencilFace) {
	hashWriteUint32(h, uint32(f.Compare))
	hashWriteUint32(h, uint32(f.FailOp))
	hashWriteUint32(h, uint32(f.DepthFailOp))
	hashWriteUint32(h, uint32(f.PassOp))
}

func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

func hashWriteUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

// hashWriteFloat32 hashes the bit pattern of v. Negative zero compares equal
// to zero, so it is folded before hashing.
func hashWriteFloat32(h hash.Hash64, v float32) {
	if v == 0 {
		v = 0
	}
	hashWriteUint32(h, math.Float32bits(v))
}

//nolint:gosec // G115: the encoded vertex layout is small
func hashWriteString(h hash.Hash64, s string) {
	hashWriteUint32(h, uint32(len(s)))
	_, _ = h.Write([]byte(s))
}

func hashWriteBool(h hash.Hash64, v bool) {
	if v {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
}
