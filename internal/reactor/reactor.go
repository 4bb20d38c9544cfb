// Package reactor demultiplexes readiness events over an OS notification
// facility (epoll on Linux, kqueue on BSD/macOS) and services per
// descriptor FIFOs of pending operations. It owns the timer queue and the
// interrupter; the execution context layered on top owns the task queue
// and the worker threads.
package reactor

import (
	"sync"
	"time"

	"github.com/ehrlich-b/go-aio/internal/constants"
	"github.com/ehrlich-b/go-aio/internal/interfaces"
)

// Reactor tracks registered descriptors, arms one-shot readiness interest
// with the OS poller, and on each tick performs the head operations of
// every ready FIFO. Finished operations are appended to the caller's ready
// queue; the caller posts them to its task queue for completion.
type Reactor struct {
	poller *poller
	intr   *interrupter
	logger interfaces.Logger

	mu     sync.Mutex
	descs  map[int]*Descriptor
	timers TimerQueue
	events []pollEvent
}

// New creates a reactor with its poller and interrupter wired up.
func New(logger interfaces.Logger) (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	intr, err := newInterrupter()
	if err != nil {
		p.close()
		return nil, err
	}
	if err := p.registerPersistent(intr.readFD()); err != nil {
		intr.close()
		p.close()
		return nil, err
	}
	return &Reactor{
		poller: p,
		intr:   intr,
		logger: logger,
		descs:  make(map[int]*Descriptor),
		events: make([]pollEvent, constants.MaxPollEvents),
	}, nil
}

// Close releases the poller and interrupter. Descriptors must already have
// been deregistered by their owners.
func (r *Reactor) Close() error {
	err := r.poller.close()
	if cerr := r.intr.close(); err == nil {
		err = cerr
	}
	return err
}

// Interrupt wakes a blocked Poll from any thread.
func (r *Reactor) Interrupt() {
	r.intr.signal()
}

// Register adds fd to the reactor with no readiness interest armed.
func (r *Reactor) Register(fd int) (*Descriptor, error) {
	if err := r.poller.register(fd); err != nil {
		return nil, err
	}
	d := &Descriptor{fd: fd, registered: true}
	r.mu.Lock()
	r.descs[fd] = d
	r.mu.Unlock()
	return d, nil
}

// Deregister removes d from the reactor, aborting every pending operation
// with err into ready. Idempotent. The caller still owns (and closes) the
// file descriptor.
func (r *Reactor) Deregister(d *Descriptor, err error, ready *OpQueue) {
	r.mu.Lock()
	if !d.registered {
		r.mu.Unlock()
		return
	}
	d.registered = false
	d.closed = true
	d.armed = 0
	delete(r.descs, d.fd)
	r.drainAbortedLocked(d, err, ready)
	r.mu.Unlock()
	if derr := r.poller.deregister(d.fd); derr != nil && r.logger != nil {
		r.logger.Debugf("deregister fd=%d: %v", d.fd, derr)
	}
}

// Enqueue appends op to d's FIFO for the given direction, arming readiness
// if the FIFO was empty. An operation carrying initialErr, or aimed at a
// closed descriptor, never reaches the FIFO: it is aborted into ready for
// immediate posting. Enqueue and arming are atomic with respect to the
// reactor's dispatch.
func (r *Reactor) Enqueue(d *Descriptor, dir int, op Operation, initialErr error, ready *OpQueue) {
	if initialErr != nil {
		op.Abort(initialErr)
		ready.Push(op)
		return
	}
	r.mu.Lock()
	if d.closed {
		r.mu.Unlock()
		op.Abort(ErrClosed)
		ready.Push(op)
		return
	}
	wasEmpty := d.queues[dir].Empty()
	d.queues[dir].Push(op)
	if wasEmpty {
		r.updateInterestLocked(d, ready)
	}
	r.mu.Unlock()
}

// CancelOps removes every pending operation from both of d's FIFOs,
// aborting each with err into ready, FIFO order preserved. The descriptor
// stays registered; new operations may follow.
func (r *Reactor) CancelOps(d *Descriptor, err error, ready *OpQueue) int {
	r.mu.Lock()
	n := r.drainAbortedLocked(d, err, ready)
	r.mu.Unlock()
	return n
}

// drainAbortedLocked empties both FIFOs, aborting each op with err.
func (r *Reactor) drainAbortedLocked(d *Descriptor, err error, ready *OpQueue) int {
	n := 0
	for dir := DirRead; dir <= DirWrite; dir++ {
		for {
			op := d.queues[dir].Pop()
			if op == nil {
				break
			}
			op.Abort(err)
			ready.Push(op)
			n++
		}
	}
	return n
}

// AddTimer arms op to fire at expiry. If the new entry became the earliest
// deadline, the interrupter is signalled so a blocked poll re-enters with
// the shorter wait.
func (r *Reactor) AddTimer(expiry Expiry, op Operation) *TimerEntry {
	r.mu.Lock()
	e, earliest := r.timers.Insert(expiry, op)
	r.mu.Unlock()
	if earliest {
		r.intr.signal()
	}
	return e
}

// CancelTimer removes a pending entry, aborting its operation with err into
// ready. Reports false if the entry already fired.
func (r *Reactor) CancelTimer(e *TimerEntry, err error, ready *OpQueue) bool {
	r.mu.Lock()
	ok := r.timers.Remove(e)
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.op.Abort(err)
	ready.Push(e.op)
	return true
}

// TimersPending returns the number of armed timers.
func (r *Reactor) TimersPending() int {
	r.mu.Lock()
	n := r.timers.Len()
	r.mu.Unlock()
	return n
}

// Poll waits for readiness (up to the next timer deadline when block is
// true, not at all otherwise), performs the head operations of every ready
// FIFO until one would block or the FIFO empties, re-arms interest, pops
// elapsed timers, and appends every finished operation to ready. At most
// one goroutine may be inside Poll at a time; the execution context
// enforces this.
func (r *Reactor) Poll(block bool, ready *OpQueue) (int, error) {
	msec := 0
	if block {
		msec = r.timeoutMsec()
	}
	before := ready.Len()

	n, err := r.poller.wait(r.events, msec)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	for i := 0; i < n; i++ {
		r.handleEventLocked(&r.events[i], ready)
	}
	r.timers.PopReady(Now(), ready)
	r.mu.Unlock()

	return ready.Len() - before, nil
}

// timeoutMsec converts the earliest timer deadline into an epoll-style
// millisecond timeout, rounding up so the deadline is never undershot.
func (r *Reactor) timeoutMsec() int {
	r.mu.Lock()
	next, ok := r.timers.NextExpiry()
	r.mu.Unlock()
	if !ok {
		return int(constants.MaxPollTimeout / time.Millisecond)
	}
	left := next.Left()
	if left <= 0 {
		return 0
	}
	msec := (left + time.Millisecond - 1) / time.Millisecond
	if msec > constants.MaxPollTimeout/time.Millisecond {
		msec = constants.MaxPollTimeout / time.Millisecond
	}
	return int(msec)
}

func (r *Reactor) handleEventLocked(ev *pollEvent, ready *OpQueue) {
	if ev.fd == r.intr.readFD() {
		r.intr.drain()
		return
	}
	d := r.descs[ev.fd]
	if d == nil {
		// Deregistered between event delivery and dispatch.
		return
	}
	// One-shot delivery disarmed the kernel-side interest.
	d.armed = 0
	if ev.read {
		r.drainDirLocked(d, DirRead, ready)
	}
	if ev.write {
		r.drainDirLocked(d, DirWrite, ready)
	}
	r.updateInterestLocked(d, ready)
}

// drainDirLocked performs head operations until one would block or the
// FIFO empties. Completion order matches enqueue order.
func (r *Reactor) drainDirLocked(d *Descriptor, dir int, ready *OpQueue) {
	for {
		op := d.queues[dir].Front()
		if op == nil {
			return
		}
		if op.Perform() == Retry {
			return
		}
		d.queues[dir].Pop()
		ready.Push(op)
	}
}

// updateInterestLocked re-arms readiness to match the FIFOs. If arming
// fails, every pending operation is aborted with the failure.
func (r *Reactor) updateInterestLocked(d *Descriptor, ready *OpQueue) {
	needR, needW := d.pending()
	if !needR && !needW {
		d.armed = 0
		return
	}
	var want uint8
	if needR {
		want |= interestRead
	}
	if needW {
		want |= interestWrite
	}
	if want == d.armed {
		return
	}
	if err := r.poller.arm(d.fd, needR, needW); err != nil {
		if r.logger != nil {
			r.logger.Debugf("arm fd=%d: %v", d.fd, err)
		}
		d.armed = 0
		r.drainAbortedLocked(d, err, ready)
		return
	}
	d.armed = want
}
