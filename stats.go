package framegraph

// Counter names a runtime counter reported by the processor.
type Counter uint8

// Counters.
const (
	CounterDraws Counter = iota
	CounterDispatches
	CounterTransfers
	CounterBarriers
	CounterPipelineBinds
	CounterSoftFailures
	CounterBuilds
	CounterTraces
	CounterPresents
	counterCount
)

var counterNames = [counterCount]string{
	"draws", "dispatches", "transfers", "barriers", "pipeline_binds",
	"soft_failures", "builds", "traces", "presents",
}

func (c Counter) String() string {
	if c < counterCount {
		return counterNames[c]
	}
	return "unknown"
}

// CounterFunc receives every counter increment. It is called on the
// recording goroutine and must not block.
type CounterFunc func(c Counter, delta uint64)

// Stats holds the counters of a processor since it was created or last reset.
type Stats struct {
	Draws         uint64
	Dispatches    uint64
	Transfers     uint64
	Barriers      uint64
	PipelineBinds uint64
	SoftFailures  uint64
	Builds        uint64
	Traces        uint64
	Presents      uint64
}

type counters struct {
	v  [counterCount]uint64
	fn CounterFunc
}

func (c *counters) add(k Counter, n uint64) {
	if n == 0 {
		return
	}
	c.v[k] += n
	if c.fn != nil {
		c.fn(k, n)
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Draws:         c.v[CounterDraws],
		Dispatches:    c.v[CounterDispatches],
		Transfers:     c.v[CounterTransfers],
		Barriers:      c.v[CounterBarriers],
		PipelineBinds: c.v[CounterPipelineBinds],
		SoftFailures:  c.v[CounterSoftFailures],
		Builds:        c.v[CounterBuilds],
		Traces:        c.v[CounterTraces],
		Presents:      c.v[CounterPresents],
	}
}

func (c *counters) reset() { c.v = [counterCount]uint64{} }
