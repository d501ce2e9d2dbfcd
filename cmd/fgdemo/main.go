// Command fgdemo compiles a small frame on a noop device and prints the
// resulting command stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/native/nativetest"
	"github.com/gogpu/framegraph/pipeline"
	"github.com/gogpu/framegraph/resource"
	"github.com/gogpu/framegraph/shader"
)

const triangleWGSL = `
@vertex
fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    let x = f32(i32(i) - 1);
    let y = f32(i32(i & 1u) * 2 - 1);
    return vec4<f32>(x, y, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.5, 0.0, 1.0);
}
`

const particlesWGSL = `
@group(0) @binding(0) var<storage, read_write> particles: array<vec4<f32>>;

@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    particles[id.x] = particles[id.x] + vec4<f32>(0.0, 0.01, 0.0, 0.0);
}
`

func main() {
	var (
		width     = flag.Int("width", 800, "target width")
		height    = flag.Int("height", 600, "target height")
		particles = flag.Int("particles", 4096, "particle count")
		overlays  = flag.Int("overlays", 1, "overlay subpasses after the scene subpass")
		labels    = flag.Bool("labels", true, "wrap tasks in debug groups")
		verbose   = flag.Bool("v", false, "log at debug level")
	)
	flag.Parse()

	if *verbose {
		framegraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	dev, cleanup, err := openNoopDevice()
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer cleanup()

	raster, err := newProgram(dev, "triangle",
		stageSource{shader.StageVertex, "vs_main", triangleWGSL},
		stageSource{shader.StageFragment, "fs_main", triangleWGSL})
	if err != nil {
		log.Fatalf("Failed to build raster program: %v", err)
	}
	compute, err := newProgram(dev, "particles", stageSource{shader.StageCompute, "cs_main", particlesWGSL})
	if err != nil {
		log.Fatalf("Failed to build compute program: %v", err)
	}

	pipelines := pipeline.NewCache(dev, pipeline.WithLogger(framegraph.Logger()))
	defer pipelines.Destroy()

	targets := pipeline.Targets{ColorCount: 1, SampleCount: 1}
	targets.ColorFormats[0] = gputypes.TextureFormatBGRA8Unorm
	state := pipeline.DefaultRenderState()
	if err := pipelines.Warm(context.Background(), []pipeline.Request{
		pipeline.GraphicsRequest{Layout: raster, State: state, Targets: targets},
		pipeline.ComputeRequest{Layout: compute},
	}); err != nil {
		log.Fatalf("Failed to warm pipelines: %v", err)
	}

	table := resource.NewTable()
	w, h := uint32(*width), uint32(*height) //nolint:gosec // G115: flag values are small
	color := table.CreateImage(resource.ImageDesc{Label: "color", Format: gputypes.TextureFormatBGRA8Unorm, Width: w, Height: h}, nil, nil)
	size := uint64(*particles) * 16 //nolint:gosec // G115: flag values are small
	particleBuf := table.CreateBuffer(resource.BufferDesc{Label: "particles", Size: size}, nil)
	readback := table.CreateBuffer(resource.BufferDesc{Label: "readback", Size: size}, nil)

	group := framegraph.NewBindGroup("particles", nil).
		Buffer(particleBuf.Handle(), resource.AccessShaderWrite, 0, 0)
	simulate := framegraph.NewDispatchCompute("simulate", compute).
		Dispatch(uint32((*particles+63)/64), 1, 1, framegraph.Bind(group)) //nolint:gosec // G115: flag values are small

	scene := framegraph.NewRenderPass("scene").
		Color(framegraph.ColorAttachment(color.Handle()).Cleared(gputypes.Color{R: 0.1, G: 0.1, B: 0.2, A: 1})).
		Draw(framegraph.DrawItem{Pipeline: framegraph.DrawPipeline{Layout: raster, State: state}, Count: 3})
	last := scene
	for i := 0; i < *overlays; i++ {
		last = last.Next(fmt.Sprintf("overlay-%d", i)).
			Color(framegraph.ColorAttachment(color.Handle())).
			Custom(func(dc *framegraph.DrawContext) error {
				dc.SetLayout(raster)
				dc.SetViewport(pipeline.Viewport{Width: float32(w) / 2, Height: float32(h) / 2, MaxDepth: 1})
				return dc.Draw(3, 1, 0, 0)
			})
	}
	copyBack := framegraph.NewCopyBuffer("readback").
		From(particleBuf.Handle()).To(readback.Handle()).Region(0, 0, size)

	g := framegraph.NewGraph()
	if err := g.Add(simulate); err != nil {
		log.Fatalf("Failed to add task: %v", err)
	}
	if err := g.AddPass(scene); err != nil {
		log.Fatalf("Failed to add pass: %v", err)
	}
	if err := g.Add(copyBack, simulate); err != nil {
		log.Fatalf("Failed to add task: %v", err)
	}

	rec := &nativetest.Recorder{}
	proc := framegraph.NewProcessor(table, pipelines, framegraph.WithDebugLabels(*labels))
	if err := proc.Begin(rec); err != nil {
		log.Fatalf("Failed to begin: %v", err)
	}
	runErr := g.Run(proc)
	if err := proc.End(); err != nil {
		log.Fatalf("Failed to end: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Failed to record frame: %v", runErr)
	}

	fmt.Print(rec)
	s := proc.Stats()
	log.Printf("Recorded %d commands: %d draws, %d dispatches, %d transfers, %d barriers, %d pipelines\n",
		len(rec.Commands), s.Draws, s.Dispatches, s.Transfers, s.Barriers, pipelines.Len())
}

type stageSource struct {
	stage  shader.Stage
	entry  string
	source string
}

func newProgram(dev hal.Device, label string, stages ...stageSource) (*pipeline.Layout, error) {
	mods := make([]*shader.Module, 0, len(stages))
	for _, s := range stages {
		m, err := shader.CreateModule(dev, label+"/"+s.stage.String(), s.stage, s.entry, s.source)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return pipeline.CreateLayout(dev, label, nil, shader.NewSet(label, mods...))
}

func openNoopDevice() (hal.Device, func(), error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, nil, err
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, errors.New("noop: no adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, err
	}
	return openDev.Device, func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}, nil
}
