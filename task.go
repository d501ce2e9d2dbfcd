package framegraph

import "fmt"

// Task is one unit of GPU work. The concrete types are *Subpass,
// *DispatchCompute, *DispatchComputeIndirect, the transfer tasks, *Present,
// the ray-tracing tasks and *Custom.
//
// A task must not be modified after it has been added to a Graph.
type Task interface {
	Base() *TaskBase
	process(p *Processor) error
}

// TaskBase holds the fields shared by every task.
type TaskBase struct {
	Name string
	// Color is the debug group color.
	Color [4]float32
	// Inputs are the tasks this task depends on.
	Inputs []Task

	index uint32
}

// Base returns b.
func (b *TaskBase) Base() *TaskBase { return b }

// Index returns the execution index assigned by Graph.Add. Zero means the
// task has not been added to a graph.
func (b *TaskBase) Index() uint32 { return b.index }

// Graph orders tasks for execution. Tasks run in the order they were added;
// a task can only depend on tasks added before it.
//
// Graph is not safe for concurrent use.
type Graph struct {
	tasks []Task
	next  uint32
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// Add appends t after its dependencies and assigns its execution index.
func (g *Graph) Add(t Task, after ...Task) error {
	base := t.Base()
	if base.index != 0 {
		return fmt.Errorf("%w: %q", ErrAlreadySubmitted, base.Name)
	}
	for _, dep := range after {
		if dep.Base().index == 0 {
			return fmt.Errorf("%w: %q needs %q", ErrUnknownDependency, base.Name, dep.Base().Name)
		}
	}
	g.next++
	base.index = g.next
	base.Inputs = append(base.Inputs, after...)
	g.tasks = append(g.tasks, t)
	return nil
}

// AddPass adds every subpass of the render pass that starts at first, in
// chain order. Each subpass depends on the one before it.
func (g *Graph) AddPass(first *Subpass, after ...Task) error {
	if first.pos != 0 {
		return fmt.Errorf("%w: %q is not the first subpass", ErrInvalidTask, first.Name)
	}
	deps := after
	for _, sp := range first.chain.subpasses {
		if err := g.Add(sp, deps...); err != nil {
			return err
		}
		deps = []Task{sp}
	}
	return nil
}

// Tasks returns the tasks in execution order.
func (g *Graph) Tasks() []Task { return g.tasks }

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.tasks) }

// Run records every task into p in execution order. It stops at the first
// structural error.
func (g *Graph) Run(p *Processor) error {
	for _, t := range g.tasks {
		if err := p.Run(t); err != nil {
			return fmt.Errorf("framegraph: task %q: %w", t.Base().Name, err)
		}
	}
	return nil
}

// Reset removes every task and releases their execution indices so the
// tasks can be added to a graph again.
func (g *Graph) Reset() {
	for _, t := range g.tasks {
		base := t.Base()
		base.index = 0
		base.Inputs = nil
	}
	clear(g.tasks)
	g.tasks = g.tasks[:0]
	g.next = 0
}
