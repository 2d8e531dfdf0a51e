package system

import "sync"

// TaskQueue carries closures from worker goroutines back onto the game
// loop. Detached database work (authentication, trade swaps, stake
// settlements) finishes by posting a closure here; the dispatch system
// drains the queue at the top of the next tick, so posted closures may
// touch world state freely.
type TaskQueue struct {
	mu    sync.Mutex
	tasks []func()
}

func NewTaskQueue() *TaskQueue {
	return &TaskQueue{}
}

// Post queues fn for the next tick. Safe from any goroutine.
func (q *TaskQueue) Post(fn func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
}

// Drain runs every queued task in post order. Tasks posted while draining
// run next tick, not this one.
func (q *TaskQueue) Drain() int {
	q.mu.Lock()
	batch := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Len reports the number of queued tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
