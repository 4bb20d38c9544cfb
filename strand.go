package aio

import (
	"sync"

	"github.com/ehrlich-b/go-aio/internal/constants"
)

// Strand is a serialization domain over an execution context: handlers
// posted through the same strand run one at a time, in posting order, on
// whichever worker picks them up. No lock is held while user code runs.
//
// The first Post against an idle strand flips its running flag and posts a
// single consumer task; the consumer drains the pending queue in batches
// and clears the flag when the queue is empty. Handlers queued while the
// consumer runs are picked up by the same consumer, preserving order.
type Strand struct {
	ioc *IOContext

	mu      sync.Mutex
	pending []func()
	running bool
}

// NewStrand creates a strand bound to the context.
func (c *IOContext) NewStrand() *Strand {
	return &Strand{ioc: c}
}

// Context returns the owning execution context.
func (s *Strand) Context() *IOContext {
	return s.ioc
}

// Post enqueues f to run under the strand's serialization, after every
// handler already posted. It never runs f inline.
func (s *Strand) Post(f func()) {
	s.mu.Lock()
	s.pending = append(s.pending, f)
	start := !s.running
	if start {
		s.running = true
	}
	s.mu.Unlock()
	if start {
		s.ioc.Post(s.drain)
	}
}

// Dispatch runs f inline when the calling goroutine is already executing a
// handler on this strand (bounded by the inline-depth limit); otherwise it
// behaves like Post.
func (s *Strand) Dispatch(f func()) {
	if fr := s.ioc.currentFrame(); fr != nil && fr.strand == s && fr.depth < constants.MaxInlineDepth {
		fr.depth++
		defer func() { fr.depth-- }()
		f()
		return
	}
	s.Post(f)
}

// Wrap binds an error-shaped completion handler to the strand: the
// returned handler posts the original through the strand.
func (s *Strand) Wrap(h func(error)) func(error) {
	return func(err error) {
		s.Post(func() { h(err) })
	}
}

// WrapIO binds a byte-count completion handler to the strand.
func (s *Strand) WrapIO(h func(int, error)) func(int, error) {
	return func(n int, err error) {
		s.Post(func() { h(n, err) })
	}
}

// RunningInThisGoroutine reports whether the calling goroutine is
// currently executing a handler on this strand.
func (s *Strand) RunningInThisGoroutine() bool {
	fr := s.ioc.currentFrame()
	return fr != nil && fr.strand == s
}

// drain is the strand's consumer task.
func (s *Strand) drain() {
	fr := s.ioc.currentFrame()
	if fr != nil {
		prev := fr.strand
		fr.strand = s
		defer func() { fr.strand = prev }()
	}
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()
		for _, f := range batch {
			s.invoke(f)
		}
	}
}

// invoke isolates handler panics so one bad handler cannot skip the rest
// of the batch or wedge the running flag.
func (s *Strand) invoke(f func()) {
	defer func() {
		if r := recover(); r != nil {
			s.ioc.logPanic(r)
		}
	}()
	f()
}
