package reactor

import "errors"

// Directions index a descriptor's per-direction operation FIFOs.
const (
	DirRead  = 0
	DirWrite = 1
)

// ErrClosed is recorded on operations enqueued against a descriptor that
// has been deregistered. The public layer maps it to its own taxonomy.
var ErrClosed = errors.New("descriptor closed")

// interest bits mirrored from what was last armed with the OS poller.
const (
	interestRead  = 1 << DirRead
	interestWrite = 1 << DirWrite
)

// Descriptor is an OS file descriptor plus its per-fd reactor state: two
// FIFOs of pending operations and the currently armed readiness interest.
// All fields except fd are guarded by the owning reactor's mutex.
type Descriptor struct {
	fd         int
	queues     [2]OpQueue
	armed      uint8
	registered bool
	closed     bool
}

// FD returns the underlying file descriptor.
func (d *Descriptor) FD() int {
	return d.fd
}

// pending reports whether either direction has queued operations.
// Caller holds the reactor lock.
func (d *Descriptor) pending() (read, write bool) {
	return !d.queues[DirRead].Empty(), !d.queues[DirWrite].Empty()
}
