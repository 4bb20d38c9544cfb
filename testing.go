package aio

import (
	"sync"

	"golang.org/x/sys/unix"
)

// RecordingObserver is an Observer that tracks observation calls for test
// verification.
type RecordingObserver struct {
	mu sync.Mutex

	Accepts    int
	Connects   int
	Reads      int
	Writes     int
	Timers     int
	Cancels    uint64
	ReadBytes  uint64
	WriteBytes uint64
	Failures   int
}

func (o *RecordingObserver) ObserveAccept(latencyNs uint64, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Accepts++
	if !success {
		o.Failures++
	}
}

func (o *RecordingObserver) ObserveConnect(latencyNs uint64, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Connects++
	if !success {
		o.Failures++
	}
}

func (o *RecordingObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Reads++
	if success {
		o.ReadBytes += bytes
	} else {
		o.Failures++
	}
}

func (o *RecordingObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Writes++
	if success {
		o.WriteBytes += bytes
	} else {
		o.Failures++
	}
}

func (o *RecordingObserver) ObserveTimer(latencyNs uint64, cancelled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Timers++
}

func (o *RecordingObserver) ObserveCancel(count uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Cancels += count
}

// ObserverCounts is a plain copy of a RecordingObserver's counters.
type ObserverCounts struct {
	Accepts    int
	Connects   int
	Reads      int
	Writes     int
	Timers     int
	Cancels    uint64
	ReadBytes  uint64
	WriteBytes uint64
	Failures   int
}

// Snapshot returns a copy of the counters under the lock.
func (o *RecordingObserver) Snapshot() ObserverCounts {
	o.mu.Lock()
	defer o.mu.Unlock()
	return ObserverCounts{
		Accepts:    o.Accepts,
		Connects:   o.Connects,
		Reads:      o.Reads,
		Writes:     o.Writes,
		Timers:     o.Timers,
		Cancels:    o.Cancels,
		ReadBytes:  o.ReadBytes,
		WriteBytes: o.WriteBytes,
		Failures:   o.Failures,
	}
}

var _ Observer = (*RecordingObserver)(nil)

// StreamPair creates a connected pair of local stream sockets registered
// on the context. Useful for exercising read/write paths without binding
// network endpoints.
func StreamPair(ioc *IOContext) (*Socket, *Socket, error) {
	return socketPair(ioc, unix.SOCK_STREAM)
}

// DatagramPair creates a connected pair of local datagram sockets.
func DatagramPair(ioc *IOContext) (*Socket, *Socket, error) {
	return socketPair(ioc, unix.SOCK_DGRAM)
}

func socketPair(ioc *IOContext, sotype int) (*Socket, *Socket, error) {
	fds, err := sysSocketpair(unix.AF_UNIX, sotype, 0)
	if err != nil {
		return nil, nil, WrapError("socketpair", -1, err)
	}
	a, err := adoptSocket(ioc, fds[0], unix.AF_UNIX, sotype, 0)
	if err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := adoptSocket(ioc, fds[1], unix.AF_UNIX, sotype, 0)
	if err != nil {
		a.Close()
		unix.Close(fds[1])
		return nil, nil, err
	}
	return a, b, nil
}
