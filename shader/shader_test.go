package shader

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

const triangleWGSL = `
@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    let x = f32(i32(idx) - 1);
    return vec4<f32>(x, 0.0, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`

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

func TestCompileWGSL(t *testing.T) {
	code, err := CompileWGSL(triangleWGSL)
	if err != nil {
		t.Fatalf("CompileWGSL: %v", err)
	}
	if len(code) == 0 || code[0] != 0x07230203 {
		t.Errorf("output does not start with the SPIR-V magic number")
	}
	if _, err := CompileWGSL("fn broken("); err == nil {
		t.Error("expected an error for invalid source")
	}
}

func TestCreateModule(t *testing.T) {
	dev := createNoopDevice(t)
	vs, err := CreateModule(dev, "triangle.vs", StageVertex, "vs_main", triangleWGSL)
	if err != nil {
		t.Fatalf("CreateModule: %v", err)
	}
	fs, err := CreateModule(dev, "triangle.fs", StageFragment, "fs_main", triangleWGSL)
	if err != nil {
		t.Fatalf("CreateModule: %v", err)
	}
	if vs.Hash() != fs.Hash() {
		t.Error("modules compiled from the same source hash differently")
	}
	if vs.Raw == nil {
		t.Error("module has no HAL object")
	}
}

func TestSetVariants(t *testing.T) {
	const debugOverdraw DebugMode = 1
	vs := NewModule(StageVertex, "vs_main", nil, []uint32{1})
	fs := NewModule(StageFragment, "fs_main", nil, []uint32{2})
	fsDebug := NewModule(StageFragment, "fs_overdraw", nil, []uint32{3})

	s := NewSet("mesh", vs, fs)
	other := NewSet("other")
	if s.ID() == other.ID() {
		t.Fatal("set IDs are not unique")
	}

	tests := []struct {
		name      string
		variant   bool
		mode      DebugMode
		wantMode  DebugMode
		wantEntry string
	}{
		{"regular", false, DebugNone, DebugNone, "fs_main"},
		{"missing variant falls back", false, debugOverdraw, DebugNone, "fs_main"},
		{"variant", true, debugOverdraw, debugOverdraw, "fs_overdraw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.variant {
				s.AddVariant(debugOverdraw, vs, fsDebug)
			}
			if got := s.Resolve(tt.mode); got != tt.wantMode {
				t.Errorf("Resolve = %d, want %d", got, tt.wantMode)
			}
			if got := s.Stage(tt.mode, StageFragment); got == nil || got.EntryPoint != tt.wantEntry {
				t.Errorf("fragment stage = %v, want %s", got, tt.wantEntry)
			}
			if s.Stage(tt.mode, StageCompute) != nil {
				t.Error("found a compute stage in a graphics set")
			}
		})
	}

	if _, err := other.Stages(DebugNone); !errors.Is(err, ErrNoStages) {
		t.Errorf("Stages on empty set = %v, want ErrNoStages", err)
	}
}
