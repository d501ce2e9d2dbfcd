package framegraph

import (
	"log/slog"

	"github.com/gogpu/framegraph/shader"
)

// DefaultPassCacheSize is the soft limit of the render pass layout cache.
const DefaultPassCacheSize = 64

// ProcessorOption configures a Processor during creation.
//
// Example:
//
//	p := framegraph.NewProcessor(table, pipelines,
//	    framegraph.WithStager(ring),
//	    framegraph.WithDebugLabels(true))
type ProcessorOption func(*processorOptions)

type processorOptions struct {
	logger        *slog.Logger
	resolver      Resolver
	stager        Stager
	presenter     Presenter
	counter       CounterFunc
	debugMode     shader.DebugMode
	debugLabels   bool
	passCacheSize int
}

func defaultOptions() processorOptions {
	return processorOptions{
		logger:        Logger(),
		passCacheSize: DefaultPassCacheSize,
	}
}

// WithLogger sets the logger of the processor. The default is Logger().
func WithLogger(l *slog.Logger) ProcessorOption {
	return func(o *processorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithResolver replaces the resource table as the handle resolver.
// The proxies it returns must belong to the processor's table.
func WithResolver(r Resolver) ProcessorOption {
	return func(o *processorOptions) {
		o.resolver = r
	}
}

// WithStager sets the staging allocator used by FillBuffer and UpdateBuffer.
func WithStager(s Stager) ProcessorOption {
	return func(o *processorOptions) {
		o.stager = s
	}
}

// WithPresenter sets the presentation target of Present tasks.
func WithPresenter(p Presenter) ProcessorOption {
	return func(o *processorOptions) {
		o.presenter = p
	}
}

// WithCounterFunc reports every counter increment to fn.
func WithCounterFunc(fn CounterFunc) ProcessorOption {
	return func(o *processorOptions) {
		o.counter = fn
	}
}

// WithDebugMode selects the shader debug variant used for every pipeline.
func WithDebugMode(m shader.DebugMode) ProcessorOption {
	return func(o *processorOptions) {
		o.debugMode = m
	}
}

// WithDebugLabels wraps every task in a debug group named after the task
// when the encoder implements native.DebugEncoder.
func WithDebugLabels(enabled bool) ProcessorOption {
	return func(o *processorOptions) {
		o.debugLabels = enabled
	}
}

// WithPassCacheSize sets the soft limit of the render pass layout cache.
func WithPassCacheSize(n int) ProcessorOption {
	return func(o *processorOptions) {
		o.passCacheSize = n
	}
}
