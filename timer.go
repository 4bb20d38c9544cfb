package aio

import (
	"sync"
	"time"

	"github.com/ehrlich-b/go-aio/internal/reactor"
)

// Timer is a waitable deadline on the monotonic clock. At most one wait is
// pending at a time; arming a new wait or moving the expiry cancels the
// previous wait with ErrCancelled.
type Timer struct {
	ioc *IOContext

	mu     sync.Mutex
	expiry reactor.Expiry
	entry  *reactor.TimerEntry
}

// NewTimer creates a timer on the context, expiring immediately until an
// expiry is set.
func (c *IOContext) NewTimer() *Timer {
	return &Timer{ioc: c, expiry: reactor.ExpiryZero}
}

// ExpiresAt moves the expiry to the absolute time when, cancelling any
// pending wait. It returns the number of waits cancelled (0 or 1).
func (t *Timer) ExpiresAt(when time.Time) int {
	t.mu.Lock()
	n := t.cancelLocked()
	t.expiry = reactor.At(when)
	t.mu.Unlock()
	return n
}

// ExpiresAfter moves the expiry to d from now, cancelling any pending
// wait. It returns the number of waits cancelled (0 or 1).
func (t *Timer) ExpiresAfter(d time.Duration) int {
	t.mu.Lock()
	n := t.cancelLocked()
	t.expiry = reactor.After(d)
	t.mu.Unlock()
	return n
}

// AsyncWait arms a wait that completes with nil when the expiry elapses,
// or with ErrCancelled if the wait is cancelled first. A wait already
// pending is cancelled and replaced.
func (t *Timer) AsyncWait(h func(error)) {
	t.mu.Lock()
	t.cancelLocked()
	op := &timerOp{
		opBase:  opBase{ioc: t.ioc, start: time.Now()},
		timer:   t,
		handler: h,
	}
	t.ioc.workStarted()
	entry := t.ioc.r.AddTimer(t.expiry, op)
	op.entry = entry
	t.entry = entry
	t.mu.Unlock()
}

// Cancel aborts the pending wait, if any, posting its handler with
// ErrCancelled. It returns the number of waits cancelled (0 or 1).
func (t *Timer) Cancel() int {
	t.mu.Lock()
	n := t.cancelLocked()
	t.mu.Unlock()
	return n
}

// cancelLocked cancels the pending wait under t.mu.
func (t *Timer) cancelLocked() int {
	if t.entry == nil {
		return 0
	}
	entry := t.entry
	t.entry = nil
	var ready reactor.OpQueue
	if !t.ioc.r.CancelTimer(entry, ErrCancelled, &ready) {
		// Fired concurrently; its completion is already on its way.
		return 0
	}
	t.ioc.postOps(&ready)
	return 1
}

// fired detaches entry if it is still the timer's pending wait. Called by
// the operation's completion.
func (t *Timer) fired(entry *reactor.TimerEntry) {
	t.mu.Lock()
	if t.entry == entry {
		t.entry = nil
	}
	t.mu.Unlock()
}

// timerOp is the operation posted when a timer wait elapses or is
// cancelled.
type timerOp struct {
	opBase
	timer   *Timer
	entry   *reactor.TimerEntry
	handler func(error)
}

func (o *timerOp) Perform() reactor.Status {
	return reactor.Done
}

func (o *timerOp) Complete() {
	o.timer.fired(o.entry)
	err := WrapError("timer_wait", -1, o.err)
	if obs := o.ioc.observer; obs != nil {
		obs.ObserveTimer(o.latencyNs(), err != nil)
	}
	o.handler(err)
}
