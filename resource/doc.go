// Package resource tracks how GPU resources are used within a command buffer
// and synthesizes the barriers between those uses.
//
// Resources live in a Table arena and are addressed by generation-checked
// Handles. A task declares the State it needs through Barriers.Declare; the
// declaration is queued on the resource and nothing is recorded yet. At the
// next Barriers.Commit every touched resource resolves its whole queue against
// its committed per-range state, and all resulting barriers are flushed to the
// command encoder in one batched call per resource class.
//
// Buffers are tracked by byte interval and images by (mip, layer)
// subresource, so disjoint ranges of one resource never synchronize with
// each other. Acceleration structures are tracked as a whole.
//
// A Table and its Barriers assume a single writer per commit cycle.
package resource
