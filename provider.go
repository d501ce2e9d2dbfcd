package framegraph

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/resource"
)

// Resolver maps resource handles to their proxies. Implementations must be
// idempotent within one recording pass. *resource.Table implements it.
type Resolver interface {
	ToLocal(h resource.Handle) (resource.Proxy, error)
}

// Stager allocates host-visible staging memory. Stage copies data into a
// new allocation of size bytes and returns the buffer and offset holding it.
// The allocation must stay valid until the command buffer has executed.
type Stager interface {
	Stage(size uint64, data []byte) (hal.Buffer, uint64, error)
}

// Presenter hands a finished image to the presentation engine.
type Presenter interface {
	Present(image hal.Texture) error
}

// DeviceFromProvider returns the HAL device and queue shared by a host
// application. The provider must also expose HalDevice and HalQueue, as
// gogpu does.
func DeviceFromProvider(provider gpucontext.DeviceProvider) (hal.Device, hal.Queue, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, nil, ErrNoHALDevice
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, nil, ErrNoHALDevice
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, ErrNoHALDevice
	}
	return device, queue, nil
}
