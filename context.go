// Package aio provides an asynchronous I/O core: an execution context that
// drives completion handlers on worker goroutines, a readiness reactor over
// epoll/kqueue, per-descriptor operation queues with cancellation and FIFO
// completion, an interruptible timer queue, strands that serialize handlers
// without holding a lock while they run (a strand's pending queue itself is
// mutex-guarded), and a coroutine adaptor that turns callback chains into
// straight-line code.
package aio

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/go-aio/internal/constants"
	"github.com/ehrlich-b/go-aio/internal/interfaces"
	"github.com/ehrlich-b/go-aio/internal/logging"
	"github.com/ehrlich-b/go-aio/internal/reactor"
)

// Logger is the optional logging interface accepted through Options.
type Logger = interfaces.Logger

// Observer is the optional metrics interface accepted through Options.
type Observer = interfaces.Observer

// Options contains additional options for context creation
type Options struct {
	// Logger for debug/info messages (if nil, the context logs handler
	// panics and reactor poll errors through the internal/logging default
	// logger, and the reactor does not log)
	Logger Logger

	// Observer for metrics collection (if nil, no metrics)
	Observer Observer
}

// IOContext owns the reactor, timer queue, task queue and interrupter, and
// runs completion handlers on the goroutines that call Run. The number of
// workers equals the number of concurrent Run calls; a single Run caller is
// the degenerate single-threaded configuration.
type IOContext struct {
	q        *taskQueue
	r        *reactor.Reactor
	logger   Logger
	observer Observer

	outstanding atomic.Int64

	frameMu sync.RWMutex
	frames  map[uint64]*callFrame

	closed atomic.Bool
}

// callFrame tracks one worker goroutine inside Run: its Run nesting count,
// its inline-dispatch depth, and the strand it is currently draining.
type callFrame struct {
	nest   int
	depth  int
	strand *Strand
}

// NewIOContext creates an execution context with its reactor, interrupter
// and task queue wired up.
func NewIOContext(options *Options) (*IOContext, error) {
	if options == nil {
		options = &Options{}
	}
	if err := acquireNet(); err != nil {
		return nil, err
	}
	r, err := reactor.New(options.Logger)
	if err != nil {
		releaseNet()
		return nil, err
	}
	return &IOContext{
		q:        newTaskQueue(),
		r:        r,
		logger:   options.Logger,
		observer: options.Observer,
		frames:   make(map[uint64]*callFrame),
	}, nil
}

// Close stops the context and releases the reactor's resources. Sockets
// and timers created on the context must be closed first.
func (c *IOContext) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.Stop()
	err := c.r.Close()
	releaseNet()
	return err
}

// Run blocks the calling goroutine, alternately executing tasks and
// driving the reactor, until no work remains or Stop has been called and
// the task queue has drained. It returns the number of handlers executed.
func (c *IOContext) Run() int {
	c.enterFrame()
	defer c.exitFrame()
	n := 0
	for c.runOne(true) {
		n++
	}
	return n
}

// RunOne executes at most one handler, blocking on the reactor if none is
// ready. It reports whether a handler ran.
func (c *IOContext) RunOne() bool {
	c.enterFrame()
	defer c.exitFrame()
	return c.runOne(true)
}

// Poll executes every handler that is ready to run without blocking and
// returns how many ran.
func (c *IOContext) Poll() int {
	c.enterFrame()
	defer c.exitFrame()
	n := 0
	for c.runOne(false) {
		n++
	}
	return n
}

// PollOne executes at most one ready handler without blocking.
func (c *IOContext) PollOne() bool {
	c.enterFrame()
	defer c.exitFrame()
	return c.runOne(false)
}

// Stop makes all current and future Run calls return once the task queue
// drains. Executing handlers are not preempted; pending reactor operations
// stay queued for a later Restart.
func (c *IOContext) Stop() {
	c.q.stop()
	c.r.Interrupt()
}

// Stopped reports whether Stop has been called since the last Restart.
func (c *IOContext) Stopped() bool {
	return c.q.isStopped()
}

// Restart clears the stop flag. It must be called between successive Run
// cycles after a Stop.
func (c *IOContext) Restart() {
	c.q.restart()
}

// Post enqueues f for execution by some worker. It never runs f inline.
func (c *IOContext) Post(f func()) {
	c.workStarted()
	if c.q.post(f) {
		c.r.Interrupt()
	}
}

// Dispatch runs f inline when called from a worker goroutine inside Run
// (bounded by an inline-depth limit so long dispatch chains cannot
// overflow the stack); otherwise it behaves like Post.
func (c *IOContext) Dispatch(f func()) {
	if fr := c.currentFrame(); fr != nil && fr.depth < constants.MaxInlineDepth {
		fr.depth++
		defer func() { fr.depth-- }()
		f()
		return
	}
	c.Post(f)
}

// RunningInThisGoroutine reports whether the calling goroutine is inside
// Run (or one of its variants) on this context.
func (c *IOContext) RunningInThisGoroutine() bool {
	return c.currentFrame() != nil
}

// WorkGuard is an outstanding-work token. While any guard lives, Run does
// not return even when the task queue is empty, so services whose work
// arrives asynchronously can keep their workers parked.
type WorkGuard struct {
	c        *IOContext
	released atomic.Bool
}

// NewWorkGuard registers outstanding work against the context.
func (c *IOContext) NewWorkGuard() *WorkGuard {
	c.workStarted()
	return &WorkGuard{c: c}
}

// Release drops the guard. Releasing twice is a no-op.
func (g *WorkGuard) Release() {
	if g.released.CompareAndSwap(false, true) {
		g.c.workFinished()
	}
}

// WorkCount returns the current outstanding-work counter. Intended for
// diagnostics.
func (c *IOContext) WorkCount() int64 {
	return c.outstanding.Load()
}

func (c *IOContext) workStarted() {
	c.outstanding.Add(1)
}

func (c *IOContext) workFinished() {
	if c.outstanding.Add(-1) == 0 {
		c.q.wakeAll()
		c.r.Interrupt()
	}
}

// runOne executes a single task. With block true it parks on the task
// queue or inside the reactor until one is available, the work count hits
// zero, or the context stops; with block false it returns after at most
// one non-blocking reactor pass.
func (c *IOContext) runOne(block bool) bool {
	polled := false
	for {
		t, claimed, alive := c.q.pop(block)
		if t != nil {
			c.execute(t)
			return true
		}
		if !alive {
			return false
		}
		if claimed {
			if c.outstanding.Load() == 0 || (polled && !block) {
				c.q.donePolling(nil)
				return false
			}
			var ready reactor.OpQueue
			if _, err := c.r.Poll(block, &ready); err != nil {
				c.q.donePolling(&ready)
				c.logf("reactor poll: %v", err)
				return false
			}
			c.q.donePolling(&ready)
			polled = true
			continue
		}
		// Queue empty and another worker holds the poll claim.
		if !block {
			return false
		}
	}
}

// execute runs one task with panic isolation: a panicking user handler is
// logged and the worker moves on.
func (c *IOContext) execute(t task) {
	defer c.workFinished()
	defer func() {
		if r := recover(); r != nil {
			c.logPanic(r)
		}
	}()
	switch v := t.(type) {
	case func():
		v()
	case reactor.Operation:
		v.Complete()
	}
}

// startOp counts the operation as outstanding work and hands it to the
// reactor; operations that complete immediately (pre-existing error,
// closed descriptor) are posted straight to the task queue.
func (c *IOContext) startOp(d *reactor.Descriptor, dir int, op reactor.Operation, initialErr error) {
	c.workStarted()
	var ready reactor.OpQueue
	c.r.Enqueue(d, dir, op, initialErr, &ready)
	c.postOps(&ready)
}

// postCompletion posts an operation that finished without touching the
// reactor (e.g. a synchronously successful connect).
func (c *IOContext) postCompletion(op reactor.Operation) {
	c.workStarted()
	if c.q.post(op) {
		c.r.Interrupt()
	}
}

// postOps publishes already-counted completions to the task queue.
func (c *IOContext) postOps(ready *reactor.OpQueue) {
	if ready.Empty() {
		return
	}
	if c.q.postOps(ready) {
		c.r.Interrupt()
	}
}

func (c *IOContext) enterFrame() {
	id := getGoroutineID()
	c.frameMu.Lock()
	fr := c.frames[id]
	if fr == nil {
		fr = &callFrame{}
		c.frames[id] = fr
	}
	fr.nest++
	c.frameMu.Unlock()
}

func (c *IOContext) exitFrame() {
	id := getGoroutineID()
	c.frameMu.Lock()
	if fr := c.frames[id]; fr != nil {
		fr.nest--
		if fr.nest <= 0 {
			delete(c.frames, id)
		}
	}
	c.frameMu.Unlock()
}

func (c *IOContext) currentFrame() *callFrame {
	id := getGoroutineID()
	c.frameMu.RLock()
	fr := c.frames[id]
	c.frameMu.RUnlock()
	return fr
}

func (c *IOContext) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
		return
	}
	logging.Default().Debugf(format, args...)
}

func (c *IOContext) logPanic(v any) {
	if c.logger != nil {
		c.logger.Printf("handler panicked: %v", v)
		return
	}
	logging.Default().Errorf("handler panicked: %v", v)
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
