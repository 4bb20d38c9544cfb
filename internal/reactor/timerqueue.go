package reactor

import "container/heap"

// TimerEntry is one armed timer wait: an absolute expiry, the operation to
// post when it elapses, and the entry's position in the queue's heap.
// Ordering is by expiry ascending; ties break by insertion sequence so
// equal expiries fire in FIFO order.
type TimerEntry struct {
	expiry Expiry
	seq    uint64
	op     Operation
	index  int
}

// Expiry returns the entry's absolute expiry.
func (e *TimerEntry) Expiry() Expiry {
	return e.expiry
}

// timerHeap implements heap.Interface over timer entries.
type timerHeap []*TimerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].expiry != h[j].expiry {
		return h[i].expiry < h[j].expiry
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*TimerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TimerQueue is an ordered set of timer entries. It is not self-locking;
// the owning reactor serializes access.
type TimerQueue struct {
	heap timerHeap
	seq  uint64
}

// Insert arms a new entry for op at expiry and reports whether it became
// the new earliest expiry (in which case a blocked poll must be shortened).
func (q *TimerQueue) Insert(expiry Expiry, op Operation) (*TimerEntry, bool) {
	q.seq++
	e := &TimerEntry{expiry: expiry, seq: q.seq, op: op, index: -1}
	heap.Push(&q.heap, e)
	return e, q.heap[0] == e
}

// Remove takes a pending entry out of the queue. It reports false if the
// entry already fired or was removed.
func (q *TimerQueue) Remove(e *TimerEntry) bool {
	if e.index < 0 {
		return false
	}
	heap.Remove(&q.heap, e.index)
	return true
}

// NextExpiry returns the earliest pending expiry, if any.
func (q *TimerQueue) NextExpiry() (Expiry, bool) {
	if len(q.heap) == 0 {
		return 0, false
	}
	return q.heap[0].expiry, true
}

// PopReady moves every entry whose expiry is at or before now into ready
// and returns how many fired. The operations carry their default (nil)
// outcome, i.e. success.
func (q *TimerQueue) PopReady(now Expiry, ready *OpQueue) int {
	n := 0
	for len(q.heap) > 0 && q.heap[0].expiry.Elapsed(now) {
		e := heap.Pop(&q.heap).(*TimerEntry)
		ready.Push(e.op)
		n++
	}
	return n
}

// Len returns the number of pending entries.
func (q *TimerQueue) Len() int {
	return len(q.heap)
}
