package aio

// Coroutine turns callback-driven operations into straight-line code. The
// coroutine body runs on its own goroutine, but execution alternates
// strictly with a worker: while the body runs, the worker that resumed it
// is parked, and while an awaited operation is pending the body is parked.
// At any instant at most one of the two is running, so the coroutine
// behaves like a stackful coroutine resumed on worker threads.
//
// Await must only be called from the coroutine's own body.
type Coroutine struct {
	ioc *IOContext
	in  chan coroResult
	out chan bool
}

type coroResult struct {
	n   int
	val any
	aux any
	err error
}

// Spawn starts fn as a coroutine on the context. fn begins executing when
// a worker picks the spawn task up.
func (c *IOContext) Spawn(fn func(co *Coroutine)) {
	co := &Coroutine{
		ioc: c,
		in:  make(chan coroResult),
		out: make(chan bool),
	}
	c.Post(func() {
		go co.body(fn)
		co.wait()
	})
}

// Context returns the owning execution context.
func (co *Coroutine) Context() *IOContext {
	return co.ioc
}

// Await initiates an asynchronous operation through initiate, suspends the
// coroutine, and returns the operation's byte count and error once its
// completion handler fires. Cancellation surfaces as the returned error;
// the coroutine is not unwound.
func (co *Coroutine) Await(initiate func(done func(n int, err error))) (int, error) {
	initiate(func(n int, err error) {
		co.resume(coroResult{n: n, err: err})
	})
	r := co.suspend()
	return r.n, r.err
}

// AwaitErr is Await for operations whose completion carries only an error
// (connect, wait, timer wait).
func (co *Coroutine) AwaitErr(initiate func(done func(err error))) error {
	initiate(func(err error) {
		co.resume(coroResult{err: err})
	})
	r := co.suspend()
	return r.err
}

// Await1 is Await for completions carrying one value and an error.
func Await1[T any](co *Coroutine, initiate func(done func(T, error))) (T, error) {
	initiate(func(v T, err error) {
		co.resume(coroResult{val: v, err: err})
	})
	r := co.suspend()
	var v T
	if r.val != nil {
		v = r.val.(T)
	}
	return v, r.err
}

// Await2 is Await for completions carrying two values and an error, such
// as accept (socket, endpoint) or receive-from (count, endpoint).
func Await2[A, B any](co *Coroutine, initiate func(done func(A, B, error))) (A, B, error) {
	initiate(func(a A, b B, err error) {
		co.resume(coroResult{val: a, aux: b, err: err})
	})
	r := co.suspend()
	var a A
	var b B
	if r.val != nil {
		a = r.val.(A)
	}
	if r.aux != nil {
		b = r.aux.(B)
	}
	return a, b, r.err
}

// body runs the coroutine function and signals the final return of control
// to whichever worker is parked on it.
func (co *Coroutine) body(fn func(co *Coroutine)) {
	defer func() {
		if r := recover(); r != nil {
			co.ioc.logPanic(r)
		}
		co.out <- false
	}()
	fn(co)
}

// suspend hands control back to the parked worker and parks the coroutine
// until a completion resumes it. Runs on the coroutine goroutine.
func (co *Coroutine) suspend() coroResult {
	co.out <- true
	return <-co.in
}

// resume unparks the coroutine with the operation's result and parks the
// calling worker until the coroutine suspends again or finishes. Runs on a
// worker goroutine, from a completion handler.
func (co *Coroutine) resume(r coroResult) {
	co.in <- r
	co.wait()
}

// wait parks the calling worker until the coroutine suspends or finishes.
func (co *Coroutine) wait() {
	<-co.out
}
