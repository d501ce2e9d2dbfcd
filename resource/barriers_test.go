package resource

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framegraph/native"
	"github.com/gogpu/framegraph/native/nativetest"
)

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

func newTestBuffer(t *testing.T, dev hal.Device, tbl *Table, label string, size uint64) *Buffer {
	t.Helper()
	raw, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		t.Fatalf("CreateBuffer(%s): %v", label, err)
	}
	return tbl.CreateBuffer(BufferDesc{Label: label, Size: size}, raw)
}

func newTestImage(t *testing.T, dev hal.Device, tbl *Table, label string, mips, layers uint32) *Image {
	t.Helper()
	raw, err := dev.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: layers},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		t.Fatalf("CreateTexture(%s): %v", label, err)
	}
	return tbl.CreateImage(ImageDesc{
		Label:     label,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Width:     64,
		Height:    64,
		MipLevels: mips,
		Layers:    layers,
	}, raw, nil)
}

type fakeStructure struct{ name string }

func (*fakeStructure) Destroy() {}

func mustDeclare(t *testing.T, b *Barriers, p Proxy, st State) {
	t.Helper()
	if err := b.Declare(p, st); err != nil {
		t.Fatalf("Declare(%s, %s): %v", p.Label(), st, err)
	}
}

func mustCommit(t *testing.T, b *Barriers, enc native.CommandEncoder) int {
	t.Helper()
	n, err := b.Commit(enc)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return n
}

func TestDeclareIsIdempotent(t *testing.T) {
	dev := createNoopDevice(t)

	run := func(times int) []nativetest.Command {
		tbl := NewTable()
		buf := newTestBuffer(t, dev, tbl, "vertices", 1024)
		img := newTestImage(t, dev, tbl, "albedo", 1, 1)
		b := NewBarriers(tbl)

		// Establish a committed state so the next cycle has to synchronize.
		mustDeclare(t, b, buf, Use(AccessTransferWrite))
		mustDeclare(t, b, img, Use(AccessTransferWrite))
		mustCommit(t, b, &nativetest.Recorder{})

		rec := &nativetest.Recorder{}
		for range times {
			mustDeclare(t, b, buf, Use(AccessVertexRead))
			mustDeclare(t, b, img, Use(AccessShaderRead))
		}
		mustCommit(t, b, rec)
		return rec.Commands
	}

	once, twice := run(1), run(2)
	if len(once) != 2 {
		t.Fatalf("got %d commands, want 2", len(once))
	}
	if len(once) != len(twice) {
		t.Fatalf("declaring twice recorded %d commands, declaring once %d", len(twice), len(once))
	}
	for i := range once {
		if len(once[i].BufferBarriers) != len(twice[i].BufferBarriers) ||
			len(once[i].TextureBarriers) != len(twice[i].TextureBarriers) {
			t.Errorf("command %d: barrier count differs: %v vs %v", i, once[i], twice[i])
		}
		for j := range once[i].BufferBarriers {
			a, b := once[i].BufferBarriers[j], twice[i].BufferBarriers[j]
			if a.Offset != b.Offset || a.Size != b.Size || a.From != b.From || a.To != b.To {
				t.Errorf("buffer barrier %d differs: %+v vs %+v", j, a, b)
			}
		}
		for j := range once[i].TextureBarriers {
			a, b := once[i].TextureBarriers[j], twice[i].TextureBarriers[j]
			if a.Range != b.Range || a.From != b.From || a.To != b.To {
				t.Errorf("texture barrier %d differs: %+v vs %+v", j, a, b)
			}
		}
	}
}

func TestCommitClearsPending(t *testing.T) {
	dev := createNoopDevice(t)
	tbl := NewTable()
	a := newTestBuffer(t, dev, tbl, "a", 256)
	c := newTestBuffer(t, dev, tbl, "c", 256)
	img := newTestImage(t, dev, tbl, "img", 1, 1)
	b := NewBarriers(tbl)

	declared := map[Proxy]State{
		a:   Use(AccessShaderWrite).In(Bytes(0, 256)).By(3),
		c:   Use(AccessUniformRead).In(Bytes(0, 256)).By(4),
		img: Use(AccessColorWrite).In(Subresources(0, 1, 0, 1)).By(5),
	}
	for _, p := range []Proxy{a, c, img} {
		mustDeclare(t, b, p, declared[p])
	}
	if got := b.Pending(); got != 3 {
		t.Fatalf("Pending() = %d, want 3", got)
	}

	mustCommit(t, b, &nativetest.Recorder{})

	if got := b.Pending(); got != 0 {
		t.Errorf("Pending() after commit = %d, want 0", got)
	}
	for p, want := range declared {
		q, err := tbl.Pending(p.Handle())
		if err != nil {
			t.Fatalf("Pending(%s): %v", p.Label(), err)
		}
		if len(q) != 0 {
			t.Errorf("%s: queue has %d states after commit", p.Label(), len(q))
		}
		if p.Kind() == KindBuffer {
			want.Layout = LayoutUndefined
		}
		got, err := tbl.Committed(p.Handle(), want.Range)
		if err != nil {
			t.Fatalf("Committed(%s): %v", p.Label(), err)
		}
		if got != want {
			t.Errorf("%s: committed %s, want %s", p.Label(), got, want)
		}
	}
}

func TestWriteThenReadEmitsBarrier(t *testing.T) {
	dev := createNoopDevice(t)
	tbl := NewTable()
	buf := newTestBuffer(t, dev, tbl, "x", 512)
	b := NewBarriers(tbl)
	rec := &nativetest.Recorder{}

	mustDeclare(t, b, buf, Use(AccessTransferWrite).By(1))
	if n := mustCommit(t, b, rec); n != 0 {
		t.Fatalf("first use of a buffer recorded %d barriers, want 0", n)
	}

	mustDeclare(t, b, buf, Use(AccessVertexRead).By(2))
	if n := mustCommit(t, b, rec); n != 1 {
		t.Fatalf("read after write recorded %d barriers, want 1", n)
	}
	if len(rec.Commands) != 1 || rec.Commands[0].Op != "TransitionBuffers" {
		t.Fatalf("commands = %v, want [TransitionBuffers]", rec.Ops())
	}
	got := rec.Commands[0].BufferBarriers[0]
	want := native.BufferBarrier{
		Buffer: buf.Native(),
		Offset: 0,
		Size:   512,
		From:   gputypes.BufferUsageCopyDst,
		To:     gputypes.BufferUsageVertex,
	}
	if got != want {
		t.Errorf("barrier = %+v, want %+v", got, want)
	}
}

func TestBarrierDecisions(t *testing.T) {
	tests := []struct {
		name   string
		first  Access
		second Access
		want   int
	}{
		{"read after read", AccessVertexRead, AccessVertexRead, 0},
		{"new read kind", AccessVertexRead, AccessUniformRead, 1},
		{"read after write", AccessShaderWrite, AccessShaderRead, 1},
		{"write after read", AccessShaderRead, AccessShaderWrite, 1},
		{"write after write", AccessTransferWrite, AccessTransferWrite, 1},
		{"build after scratch", AccessBuildScratch, AccessBuildScratch, 1},
	}
	dev := createNoopDevice(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := NewTable()
			buf := newTestBuffer(t, dev, tbl, "buf", 64)
			b := NewBarriers(tbl)
			mustDeclare(t, b, buf, Use(tt.first))
			mustCommit(t, b, &nativetest.Recorder{})
			mustDeclare(t, b, buf, Use(tt.second))
			if got := mustCommit(t, b, &nativetest.Recorder{}); got != tt.want {
				t.Errorf("barriers = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCommitBatchesBarriers(t *testing.T) {
	dev := createNoopDevice(t)
	tbl := NewTable()
	b := NewBarriers(tbl)
	var bufs []*Buffer
	for _, name := range []string{"a", "b", "c"} {
		bufs = append(bufs, newTestBuffer(t, dev, tbl, name, 128))
	}
	img := newTestImage(t, dev, tbl, "img", 1, 1)

	for _, buf := range bufs {
		mustDeclare(t, b, buf, Use(AccessShaderWrite))
	}
	mustDeclare(t, b, img, Use(AccessTransferWrite))
	mustCommit(t, b, &nativetest.Recorder{})

	rec := &nativetest.Recorder{}
	for _, buf := range bufs {
		mustDeclare(t, b, buf, Use(AccessShaderRead))
	}
	mustDeclare(t, b, img, Use(AccessShaderRead))
	mustCommit(t, b, rec)

	if got, want := rec.Ops(), []string{"TransitionBuffers", "TransitionTextures"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	if got := len(rec.Commands[0].BufferBarriers); got != 3 {
		t.Errorf("buffer barriers = %d, want 3", got)
	}
	for i, bar := range rec.Commands[0].BufferBarriers {
		if bar.Buffer != bufs[i].Native() {
			t.Errorf("barrier %d is for the wrong buffer, declaration order not kept", i)
		}
	}
}

func TestDisjointRangesAreIndependent(t *testing.T) {
	dev := createNoopDevice(t)

	t.Run("buffer", func(t *testing.T) {
		tbl := NewTable()
		buf := newTestBuffer(t, dev, tbl, "buf", 1024)
		b := NewBarriers(tbl)
		mustDeclare(t, b, buf, Use(AccessShaderWrite).In(Bytes(0, 512)))
		mustDeclare(t, b, buf, Use(AccessShaderRead).In(Bytes(512, 512)))
		if q, _ := tbl.Pending(buf.Handle()); len(q) != 2 {
			t.Fatalf("disjoint states merged: %v", q)
		}
		mustCommit(t, b, &nativetest.Recorder{})

		rec := &nativetest.Recorder{}
		mustDeclare(t, b, buf, Use(AccessShaderRead).In(Bytes(512, 512)))
		if n := mustCommit(t, b, rec); n != 0 {
			t.Errorf("reading the read-only half recorded %d barriers, want 0", n)
		}
		mustDeclare(t, b, buf, Use(AccessShaderRead).In(Bytes(0, 512)))
		if n := mustCommit(t, b, rec); n != 1 {
			t.Fatalf("reading the written half recorded %d barriers, want 1", n)
		}
		bar := rec.Commands[0].BufferBarriers[0]
		if bar.Offset != 0 || bar.Size != 512 {
			t.Errorf("barrier range = [%d+%d], want [0+512]", bar.Offset, bar.Size)
		}
	})

	t.Run("image", func(t *testing.T) {
		tbl := NewTable()
		img := newTestImage(t, dev, tbl, "img", 2, 1)
		b := NewBarriers(tbl)
		mustDeclare(t, b, img, Use(AccessTransferWrite).In(Subresources(0, 1, 0, 1)))
		mustCommit(t, b, &nativetest.Recorder{})

		rec := &nativetest.Recorder{}
		mustDeclare(t, b, img, Use(AccessTransferWrite).In(Subresources(1, 1, 0, 1)))
		mustCommit(t, b, rec)
		if len(rec.Commands) != 1 {
			t.Fatalf("ops = %v, want one TransitionTextures", rec.Ops())
		}
		bars := rec.Commands[0].TextureBarriers
		if len(bars) != 1 || bars[0].Range.BaseMipLevel != 1 || bars[0].From != 0 {
			t.Errorf("barriers = %+v, want one barrier for mip 1 out of the undefined layout", bars)
		}
	})
}

func TestImageBarriersMergeSubresources(t *testing.T) {
	dev := createNoopDevice(t)
	tbl := NewTable()
	img := newTestImage(t, dev, tbl, "array", 3, 4)
	b := NewBarriers(tbl)
	rec := &nativetest.Recorder{}

	mustDeclare(t, b, img, Use(AccessTransferWrite))
	mustCommit(t, b, rec)

	bars := rec.Commands[0].TextureBarriers
	if len(bars) != 1 {
		t.Fatalf("got %d barriers, want 1 covering every subresource", len(bars))
	}
	want := native.SubresourceRange{BaseMipLevel: 0, MipLevelCount: 3, BaseArrayLayer: 0, ArrayLayerCount: 4}
	if bars[0].Range != want {
		t.Errorf("range = %+v, want %+v", bars[0].Range, want)
	}
}

func TestConflictingDeclarationsMerge(t *testing.T) {
	dev := createNoopDevice(t)
	tbl := NewTable()
	img := newTestImage(t, dev, tbl, "img", 1, 1)
	b := NewBarriers(tbl)

	mustDeclare(t, b, img, Use(AccessShaderRead).By(1))
	mustDeclare(t, b, img, Use(AccessColorWrite).By(2))

	q, err := tbl.Pending(img.Handle())
	if err != nil {
		t.Fatal(err)
	}
	if len(q) != 1 {
		t.Fatalf("queue = %v, want one merged state", q)
	}
	if q[0].Access != AccessShaderRead|AccessColorWrite {
		t.Errorf("access = %s, want ShaderRead|ColorWrite", q[0].Access)
	}
	if q[0].Layout != LayoutGeneral {
		t.Errorf("layout = %s, want General", q[0].Layout)
	}
	if q[0].Task != 2 {
		t.Errorf("task = %d, want 2", q[0].Task)
	}
}

func TestZeroSizedDeclarationIsNoop(t *testing.T) {
	dev := createNoopDevice(t)
	tbl := NewTable()
	buf := newTestBuffer(t, dev, tbl, "buf", 64)
	img := newTestImage(t, dev, tbl, "img", 1, 1)
	b := NewBarriers(tbl)

	mustDeclare(t, b, buf, Use(AccessShaderWrite).In(Bytes(16, 0)))
	mustDeclare(t, b, buf, Use(AccessShaderWrite).In(Bytes(64, 16)))
	mustDeclare(t, b, img, Use(AccessShaderWrite).In(Subresources(0, 0, 0, 1)))
	if got := b.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestDeclareStaleHandle(t *testing.T) {
	dev := createNoopDevice(t)
	tbl := NewTable()
	buf := newTestBuffer(t, dev, tbl, "buf", 64)
	b := NewBarriers(tbl)

	if err := tbl.Destroy(buf.Handle()); err != nil {
		t.Fatal(err)
	}
	if err := b.Declare(buf, Use(AccessShaderRead)); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Declare on destroyed buffer = %v, want ErrStaleHandle", err)
	}
	if b.Pending() != 0 {
		t.Error("stale declaration was queued")
	}
}

func TestCommitDropsDestroyedResource(t *testing.T) {
	dev := createNoopDevice(t)
	tbl := NewTable()
	buf := newTestBuffer(t, dev, tbl, "buf", 64)
	b := NewBarriers(tbl)

	mustDeclare(t, b, buf, Use(AccessShaderWrite))
	if err := tbl.Destroy(buf.Handle()); err != nil {
		t.Fatal(err)
	}
	rec := &nativetest.Recorder{}
	if n := mustCommit(t, b, rec); n != 0 {
		t.Errorf("recorded %d barriers for a destroyed buffer", n)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}

func TestAccelerationStructureBarriers(t *testing.T) {
	tbl := NewTable()
	geom := tbl.CreateGeometry("blas", &fakeStructure{"blas"})
	b := NewBarriers(tbl)

	mustDeclare(t, b, geom, Use(AccessBuildWrite))
	mustCommit(t, b, &nativetest.Recorder{})

	t.Run("without ray tracing", func(t *testing.T) {
		mustDeclare(t, b, geom, Use(AccessBuildRead))
		rec := &nativetest.Recorder{}
		if _, err := b.Commit(rec.Basic()); !errors.Is(err, ErrRayTracingUnsupported) {
			t.Errorf("Commit = %v, want ErrRayTracingUnsupported", err)
		}
		if b.Pending() != 0 {
			t.Error("pending set not cleared after a failed commit")
		}
	})

	t.Run("with ray tracing", func(t *testing.T) {
		mustDeclare(t, b, geom, Use(AccessBuildWrite))
		rec := &nativetest.Recorder{}
		mustCommit(t, b, rec)
		if rec.Count("TransitionAccelerationStructures") != 1 {
			t.Fatalf("ops = %v", rec.Ops())
		}
		bar := rec.Commands[0].AccelBarriers[0]
		if bar.From != native.AccelerationUsageBuildInput || bar.To != native.AccelerationUsageBuildOutput {
			t.Errorf("barrier = %+v, want BuildInput -> BuildOutput", bar)
		}
	})
}

func TestReset(t *testing.T) {
	dev := createNoopDevice(t)
	tbl := NewTable()
	buf := newTestBuffer(t, dev, tbl, "buf", 64)
	b := NewBarriers(tbl)

	mustDeclare(t, b, buf, Use(AccessShaderWrite))
	b.Reset()
	if b.Pending() != 0 {
		t.Errorf("Pending() = %d after Reset", b.Pending())
	}
	if q, _ := tbl.Pending(buf.Handle()); len(q) != 0 {
		t.Errorf("queue = %v after Reset", q)
	}
}
