package aio

import (
	"sync"

	"github.com/ehrlich-b/go-aio/internal/constants"
	"github.com/ehrlich-b/go-aio/internal/reactor"
)

// task is one runnable unit in the shared queue: a posted user callback or
// an operation completion.
type task any

// taskQueue is the multi-producer/multi-consumer FIFO shared by all
// workers. It also arbitrates which worker currently drives the reactor:
// the queue-empty check and the poll claim must be atomic, so the polling
// flag lives under the same lock.
type taskQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []task
	head    int
	stopped bool
	polling bool
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{items: make([]task, 0, constants.InitialTaskQueueCap)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// post appends t and wakes one waiter. It reports whether a worker is
// blocked inside the reactor, in which case the caller must interrupt it.
func (q *taskQueue) post(t task) bool {
	q.mu.Lock()
	q.items = append(q.items, t)
	polling := q.polling
	q.mu.Unlock()
	q.cond.Signal()
	return polling
}

// postOps appends every operation in ready. Same contract as post.
func (q *taskQueue) postOps(ready *reactor.OpQueue) bool {
	q.mu.Lock()
	for {
		op := ready.Pop()
		if op == nil {
			break
		}
		q.items = append(q.items, op)
	}
	polling := q.polling
	q.mu.Unlock()
	q.cond.Broadcast()
	return polling
}

// pop returns, in priority order: a queued task; the poll claim (claimed
// true, meaning the caller must run the reactor and then call donePolling);
// or not-alive when the queue is stopped and drained. With block false it
// returns immediately instead of waiting; with block true it only ever
// returns a task, a claim, or not-alive.
func (q *taskQueue) pop(block bool) (t task, claimed bool, alive bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.head < len(q.items) {
			t = q.items[q.head]
			q.items[q.head] = nil
			q.head++
			if q.head == len(q.items) {
				q.items = q.items[:0]
				q.head = 0
			}
			return t, false, true
		}
		if q.stopped {
			return nil, false, false
		}
		if !q.polling {
			q.polling = true
			return nil, true, true
		}
		if !block {
			return nil, false, true
		}
		q.cond.Wait()
	}
}

// donePolling releases the poll claim and publishes the completions the
// reactor produced.
func (q *taskQueue) donePolling(ready *reactor.OpQueue) {
	q.mu.Lock()
	q.polling = false
	if ready != nil {
		for {
			op := ready.Pop()
			if op == nil {
				break
			}
			q.items = append(q.items, op)
		}
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

// stop marks the queue stopped and wakes every waiter. Queued tasks remain
// poppable so workers drain before returning.
func (q *taskQueue) stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *taskQueue) restart() {
	q.mu.Lock()
	q.stopped = false
	q.mu.Unlock()
}

func (q *taskQueue) isStopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// wakeAll unblocks every waiting worker so it can re-check the work
// counter.
func (q *taskQueue) wakeAll() {
	q.cond.Broadcast()
}
