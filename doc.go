// Package framegraph compiles frame tasks into native GPU command buffers.
//
// # Overview
//
// A frame is described as a Graph of tasks: render passes split into
// subpasses, compute dispatches, copies, blits, clears, resolves, buffer
// fills and updates, acceleration structure builds, ray traces,
// presentation and custom callbacks. A Processor records the graph into a
// native.CommandEncoder. For every task it declares the resource states the
// task needs, looks up its pipelines in a shared pipeline.Cache, commits the
// minimal set of barriers and emits the commands.
//
// # Quick Start
//
//	table := resource.NewTable()
//	color := table.CreateImage(resource.ImageDesc{Format: gputypes.TextureFormatBGRA8Unorm, Width: w, Height: h}, tex, view)
//
//	pipelines := pipeline.NewCache(device)
//	proc := framegraph.NewProcessor(table, pipelines)
//
//	pass := framegraph.NewRenderPass("main").
//	    Color(framegraph.ColorAttachment(color.Handle()).Cleared(gputypes.Color{A: 1})).
//	    Draw(framegraph.DrawItem{Pipeline: framegraph.DrawPipeline{Layout: layout, State: pipeline.DefaultRenderState()}, Count: 3})
//
//	g := framegraph.NewGraph()
//	_ = g.AddPass(pass)
//
//	_ = proc.Begin(native.FromHAL(encoder))
//	err := g.Run(proc)
//	_ = proc.End()
//
// # Failures
//
// Structural errors (missing layouts, pipeline creation failures, missing
// extensions, tasks out of order) are returned from Run. A resource that
// does not resolve only skips the draw or task that uses it; the skip is
// logged at Warn level and counted in Stats.SoftFailures. Building with the
// fgdebug tag turns skips and internal assertions into panics.
//
// # Logging
//
// The package logs through log/slog and is silent by default. Use SetLogger
// to install a logger for every processor created afterwards, or
// WithLogger for one processor.
package framegraph

// Version is the current version of the module.
const Version = "0.1.0"
