package framegraph

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/gogpu/framegraph/resource"
	"github.com/gogpu/framegraph/shader"
)

// aliasResolver resolves one extra handle to an existing proxy.
type aliasResolver struct {
	table *resource.Table
	alias resource.Handle
	to    resource.Proxy
}

func (r *aliasResolver) ToLocal(h resource.Handle) (resource.Proxy, error) {
	if h == r.alias {
		return r.to, nil
	}
	return r.table.ToLocal(h)
}

// TestNewProcessorDefault tests the defaults of a processor without options.
func TestNewProcessorDefault(t *testing.T) {
	f := newFixture(t)
	p := f.proc

	if p.logger != Logger() {
		t.Error("logger is not the package logger")
	}
	if p.resolver != Resolver(f.table) {
		t.Error("resolver is not the resource table")
	}
	if p.opts.stager != nil || p.opts.presenter != nil || p.opts.counter != nil {
		t.Error("optional collaborators should be unset")
	}
	if p.opts.debugLabels {
		t.Error("debug labels should be off")
	}
	if p.opts.debugMode != shader.DebugNone {
		t.Errorf("debugMode = %d, want DebugNone", p.opts.debugMode)
	}
	if got := p.PassLayoutStats().Capacity; got != DefaultPassCacheSize {
		t.Errorf("pass cache capacity = %d, want %d", got, DefaultPassCacheSize)
	}
	if p.Recording() {
		t.Error("new processor should not be recording")
	}
}

// TestProcessorOptions tests that every option reaches the processor.
func TestProcessorOptions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	st := &stager{}
	pr := &presenter{}
	counted := 0

	f := newFixture(t,
		WithLogger(logger),
		WithStager(st),
		WithPresenter(pr),
		WithCounterFunc(func(Counter, uint64) { counted++ }),
		WithDebugMode(shader.DebugMode(2)),
		WithDebugLabels(true),
		WithPassCacheSize(8),
	)
	p := f.proc

	if p.logger != logger {
		t.Error("logger was not applied")
	}
	if p.opts.stager != Stager(st) {
		t.Error("stager was not applied")
	}
	if p.opts.presenter != Presenter(pr) {
		t.Error("presenter was not applied")
	}
	if p.opts.debugMode != 2 {
		t.Errorf("debugMode = %d, want 2", p.opts.debugMode)
	}
	if !p.opts.debugLabels {
		t.Error("debug labels were not enabled")
	}
	if got := p.PassLayoutStats().Capacity; got != 8 {
		t.Errorf("pass cache capacity = %d, want 8", got)
	}

	p.stats.add(CounterDraws, 3)
	if counted != 1 {
		t.Errorf("counter func called %d times, want 1", counted)
	}
}

// TestWithLoggerNil tests that a nil logger keeps the default.
func TestWithLoggerNil(t *testing.T) {
	f := newFixture(t, WithLogger(nil))
	if f.proc.logger == nil {
		t.Fatal("WithLogger(nil) cleared the logger")
	}
}

// TestWithResolver tests that a custom resolver is consulted for handles.
func TestWithResolver(t *testing.T) {
	f := newFixture(t)
	target := f.buffer("target", 64)
	stale := f.buffer("stale", 64)
	if err := f.table.Destroy(stale.Handle()); err != nil {
		t.Fatal(err)
	}
	f.proc = NewProcessor(f.table, f.cache,
		WithResolver(&aliasResolver{table: f.table, alias: stale.Handle(), to: target}))

	f.run(t, NewFillBuffer("fill", stale.Handle(), 0, 64, 0))
	if got := f.rec.Count("ClearBuffer"); got != 1 {
		t.Errorf("ClearBuffer recorded %d times, want 1", got)
	}
	if got := f.proc.Stats().SoftFailures; got != 0 {
		t.Errorf("SoftFailures = %d, want 0", got)
	}
}

// TestResolverKindMismatch tests that a handle of the wrong kind is a soft failure.
func TestResolverKindMismatch(t *testing.T) {
	if debugBuild {
		t.Skip("soft failures panic under fgdebug")
	}
	f := newFixture(t)
	img := f.color("img")

	f.run(t, NewFillBuffer("fill", img.Handle(), 0, 64, 0))
	if got := f.proc.Stats().SoftFailures; got != 1 {
		t.Errorf("SoftFailures = %d, want 1", got)
	}
	if len(f.rec.Commands) != 0 {
		t.Errorf("recorded %v, want nothing", f.rec.Ops())
	}
}

// TestStagerError tests that staging failures are returned.
func TestStagerError(t *testing.T) {
	errFull := errors.New("staging ring full")
	f := newFixture(t, WithStager(&stager{err: errFull}))
	buf := f.buffer("buf", 64)

	err := f.record(t, f.rec, NewUpdateBuffer("update", buf.Handle(), 0, []byte{1, 2, 3, 4}))
	if !errors.Is(err, errFull) {
		t.Errorf("record = %v, want the stager error", err)
	}
}
