package framegraph

import "errors"

// Recording errors. These are structural: the task that returns one has not
// been recorded and the caller decides whether to continue.
var (
	ErrNotRecording         = errors.New("framegraph: processor is not recording")
	ErrAlreadyRecording     = errors.New("framegraph: processor is already recording")
	ErrNotSubmitted         = errors.New("framegraph: task was not added to a graph")
	ErrAlreadySubmitted     = errors.New("framegraph: task was already added to a graph")
	ErrUnknownDependency    = errors.New("framegraph: dependency was not added before its dependent")
	ErrRenderPassOpen       = errors.New("framegraph: render pass is still open")
	ErrSubpassOrder         = errors.New("framegraph: subpass run out of order")
	ErrMissingLayout        = errors.New("framegraph: task has no pipeline layout")
	ErrInvalidTask          = errors.New("framegraph: invalid task")
	ErrResourceMissing      = errors.New("framegraph: required resource did not resolve")
	ErrBlitUnsupported      = errors.New("framegraph: scaled blit needs an encoder implementing native.Blitter")
	ErrMeshUnsupported      = errors.New("framegraph: mesh draw needs a pass implementing native.MeshEncoder")
	ErrRayTracing           = errors.New("framegraph: encoder does not implement native.RayTracer")
	ErrPushConstants        = errors.New("framegraph: pass does not implement native.PushConstantSetter")
	ErrNoStager             = errors.New("framegraph: no Stager configured")
	ErrNoPresenter          = errors.New("framegraph: no Presenter configured")
	ErrNoHALDevice          = errors.New("framegraph: provider does not expose a HAL device")
	ErrDrawOutsidePass      = errors.New("framegraph: draw context used outside its subpass")
	ErrIncompleteRenderPass = errors.New("framegraph: recording ended inside a render pass")
)
