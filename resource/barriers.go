package resource

import (
	"errors"
	"fmt"

	"github.com/gogpu/framegraph/native"
)

// ErrRayTracingUnsupported is returned by Commit when acceleration structure
// barriers are pending and the encoder does not implement native.RayTracer.
var ErrRayTracingUnsupported = errors.New("resource: encoder does not support acceleration structure barriers")

// Barriers accumulates declared resource states and commits them as one
// batch of native barriers.
//
// Each touched resource registers one commit function per cycle, in
// declaration order, so barrier order is deterministic.
type Barriers struct {
	table      *Table
	registered map[Handle]struct{}
	commits    []func(*batch) error

	emitted uint64
	dropped uint64
}

// NewBarriers creates a barrier manager over the resources of t.
func NewBarriers(t *Table) *Barriers {
	return &Barriers{table: t, registered: make(map[Handle]struct{})}
}

// Declare queues st on p. Declaring a zero-sized range, or a state already
// queued, has no effect. A stale proxy returns ErrStaleHandle and queues
// nothing.
func (b *Barriers) Declare(p Proxy, st State) error {
	h := p.Handle()
	queued, err := b.table.declare(h, st)
	if err != nil || !queued {
		return err
	}
	if _, ok := b.registered[h]; ok {
		return nil
	}
	b.registered[h] = struct{}{}
	b.commits = append(b.commits, func(bt *batch) error {
		return b.table.commit(h, bt)
	})
	return nil
}

// Pending returns the number of resources with queued states.
func (b *Barriers) Pending() int { return len(b.commits) }

// Emitted returns the total number of barriers flushed so far.
func (b *Barriers) Emitted() uint64 { return b.emitted }

// Dropped returns how many queued resources were destroyed before their
// commit.
func (b *Barriers) Dropped() uint64 { return b.dropped }

// Commit resolves every queued state and flushes the resulting barriers to
// enc: one TransitionBuffers and one TransitionTextures call at most, plus
// one acceleration structure transition when needed. It returns the number
// of barriers recorded. The pending set is empty afterwards, even on error.
func (b *Barriers) Commit(enc native.CommandEncoder) (int, error) {
	if len(b.commits) == 0 {
		return 0, nil
	}
	var bt batch
	for _, commit := range b.commits {
		if err := commit(&bt); err != nil {
			b.dropped++
		}
	}
	clear(b.registered)
	b.commits = b.commits[:0]

	if len(bt.buffers) > 0 {
		enc.TransitionBuffers(bt.buffers)
	}
	if len(bt.textures) > 0 {
		enc.TransitionTextures(bt.textures)
	}
	n := bt.len()
	if len(bt.accel) > 0 {
		rt, ok := enc.(native.RayTracer)
		if !ok {
			n -= len(bt.accel)
			b.emitted += uint64(n)
			return n, fmt.Errorf("%w: %d barriers", ErrRayTracingUnsupported, len(bt.accel))
		}
		rt.TransitionAccelerationStructures(bt.accel)
	}
	b.emitted += uint64(n)
	return n, nil
}

// Reset drops every queued state without recording anything.
func (b *Barriers) Reset() {
	for h := range b.registered {
		if s, err := b.table.slot(h); err == nil {
			s.pending = s.pending[:0]
		}
	}
	clear(b.registered)
	b.commits = b.commits[:0]
}
