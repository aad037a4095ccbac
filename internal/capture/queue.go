package capture

import (
	"context"
	"sync"
)

type taskKind int

const (
	kindIngest taskKind = iota
	kindResolve
	kindControl
)

type task struct {
	kind taskKind
	run  func()
	// cancel, when set, is called instead of run for tasks still pending
	// when the queue closes.
	cancel func()
}

// taskQueue is an unbounded FIFO for control and resolve tasks with a bound on
// pending ingest tasks. When the bound is hit the oldest pending ingest task
// is discarded; resolve and control tasks are never dropped.
type taskQueue struct {
	mu       sync.Mutex
	tasks    []task
	ingests  int
	capacity int
	closed   bool
	notify   chan struct{}
}

func newTaskQueue(capacity int) *taskQueue {
	return &taskQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// push appends t. It reports whether an older ingest task was dropped to make
// room, and false for accepted when the queue is closed.
func (q *taskQueue) push(t task) (accepted, dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, false
	}

	if t.kind == kindIngest {
		if q.capacity > 0 && q.ingests >= q.capacity {
			q.dropOldestIngestLocked()
			dropped = true
		}
		q.ingests++
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true, dropped
}

func (q *taskQueue) dropOldestIngestLocked() {
	for i, t := range q.tasks {
		if t.kind != kindIngest {
			continue
		}
		copy(q.tasks[i:], q.tasks[i+1:])
		q.tasks[len(q.tasks)-1] = task{}
		q.tasks = q.tasks[:len(q.tasks)-1]
		q.ingests--
		return
	}
}

// pop blocks until a task is available or ctx is done. Once ctx is done it
// returns false even if tasks are pending; those are left for close.
func (q *taskQueue) pop(ctx context.Context) (task, bool) {
	for {
		if ctx.Err() != nil {
			return task{}, false
		}
		q.mu.Lock()
		if len(q.tasks) > 0 {
			t := q.tasks[0]
			q.tasks[0] = task{}
			q.tasks = q.tasks[1:]
			if t.kind == kindIngest {
				q.ingests--
			}
			q.mu.Unlock()
			return t, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return task{}, false
		case <-q.notify:
		}
	}
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// close rejects further pushes and returns the tasks still pending.
func (q *taskQueue) close() []task {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.tasks
	q.tasks = nil
	q.ingests = 0
	return rest
}
