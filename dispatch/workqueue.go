package dispatch

import (
	"sync"

	"github.com/Comcast/flume/util"
)

// WorkQueue runs tasks one at a time on a single worker goroutine.
//
// Dispatch blocks when the backlog is full.  Tasks scheduled on the
// same WorkQueue observe sequential execution.
type WorkQueue struct {
	mu     sync.Mutex
	tasks  chan func()
	closed bool
	done   chan struct{}
}

// NewWorkQueue creates a WorkQueue with the given backlog and starts
// its worker.
func NewWorkQueue(backlog int) *WorkQueue {
	if backlog <= 0 {
		backlog = 64
	}
	d := &WorkQueue{
		tasks: make(chan func(), backlog),
		done:  make(chan struct{}),
	}
	go d.work()
	return d
}

func (d *WorkQueue) work() {
	for task := range d.tasks {
		task()
	}
	close(d.done)
}

func (d *WorkQueue) Dispatch(task func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		util.Logf("WorkQueue.Dispatch dropped a task after Close")
		return
	}
	d.tasks <- task
	d.mu.Unlock()
}

// Close stops the worker after the backlog drains.
func (d *WorkQueue) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.tasks)
	}
	d.mu.Unlock()
	<-d.done
	return nil
}
