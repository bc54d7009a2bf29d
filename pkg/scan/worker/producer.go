package worker

import (
	"iter"
	"sync"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/api/openapi"
)

// Task is one unit of work: an operation to test, a link to follow, or an
// operation that failed to load and is reported as an error.
type Task struct {
	Operation *core.Operation
	Link      *core.Link
	Err       *openapi.OperationError
}

// Label identifies the task in events.
func (t Task) Label() string {
	if t.Link != nil {
		return t.Link.Source + " -> " + t.Link.Target
	}
	if t.Operation != nil {
		return t.Operation.Label()
	}
	if t.Err != nil {
		return t.Err.Label
	}
	return ""
}

// TaskProducer hands out tasks to workers. Every task is handed out once.
type TaskProducer struct {
	mu     sync.Mutex
	next   func() (Task, bool)
	stop   func()
	closed bool
}

func NewTaskProducer(seq iter.Seq[Task]) *TaskProducer {
	next, stop := iter.Pull(seq)
	return &TaskProducer{next: next, stop: stop}
}

// OperationTasks yields every operation of a definition followed by the
// operations that could not be loaded.
func OperationTasks(spec *openapi.Specification) iter.Seq[Task] {
	return func(yield func(Task) bool) {
		if spec.Operations != nil {
			for i := range spec.Operations.Operations {
				if !yield(Task{Operation: &spec.Operations.Operations[i]}) {
					return
				}
			}
		}
		for i := range spec.Errors {
			if !yield(Task{Err: &spec.Errors[i]}) {
				return
			}
		}
	}
}

// LinkTasks yields one task per link.
func LinkTasks(links []core.Link) iter.Seq[Task] {
	return func(yield func(Task) bool) {
		for i := range links {
			if !yield(Task{Link: &links[i]}) {
				return
			}
		}
	}
}

// Next returns the next task, or false once all tasks were handed out.
func (p *TaskProducer) Next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Task{}, false
	}
	task, ok := p.next()
	if !ok {
		p.closed = true
		p.stop()
	}
	return task, ok
}

func (p *TaskProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.stop()
	}
}
