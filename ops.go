package aio

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-aio/internal/reactor"
)

// opBase carries the state every operation shares: the owning context, the
// recorded outcome, and the enqueue timestamp for latency accounting.
type opBase struct {
	ioc   *IOContext
	err   error
	start time.Time
}

func (o *opBase) Abort(err error) {
	o.err = err
}

func (o *opBase) latencyNs() uint64 {
	return uint64(time.Since(o.start).Nanoseconds())
}

func (s *Socket) newOpBase() opBase {
	return opBase{ioc: s.ioc, start: time.Now()}
}

// acceptOp accepts one connection on a listening descriptor's read side.
type acceptOp struct {
	opBase
	lis     *Socket
	nfd     int
	sa      unix.Sockaddr
	handler func(*Socket, Endpoint, error)
}

func (o *acceptOp) Perform() reactor.Status {
	for {
		nfd, sa, err := sysAccept(o.lis.fd)
		switch err {
		case nil:
			o.nfd, o.sa = nfd, sa
			return reactor.Done
		case unix.EINTR, unix.ECONNABORTED:
			continue
		case unix.EAGAIN:
			return reactor.Retry
		default:
			o.err = err
			return reactor.Done
		}
	}
}

func (o *acceptOp) Complete() {
	var child *Socket
	if o.err == nil {
		var err error
		child, err = adoptSocket(o.ioc, o.nfd, o.lis.family, o.lis.sotype, o.lis.proto)
		if err != nil {
			unix.Close(o.nfd)
			o.err = err
		}
	}
	err := WrapError("accept", o.lis.fd, o.err)
	if obs := o.ioc.observer; obs != nil {
		obs.ObserveAccept(o.latencyNs(), err == nil)
	}
	o.handler(child, endpointFromSockaddr(o.sa), err)
}

// connectOp finishes a non-blocking connect on the write side: readiness
// means the three-way handshake resolved, SO_ERROR says how.
type connectOp struct {
	opBase
	fd      int
	handler func(error)
}

func (o *connectOp) Perform() reactor.Status {
	v, err := unix.GetsockoptInt(o.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		o.err = err
	} else if v != 0 {
		o.err = syscall.Errno(v)
	}
	return reactor.Done
}

func (o *connectOp) Complete() {
	err := WrapError("connect", o.fd, o.err)
	if obs := o.ioc.observer; obs != nil {
		obs.ObserveConnect(o.latencyNs(), err == nil)
	}
	o.handler(err)
}

// readOp services read, receive and connected-datagram receive. A zero
// byte result on a stream socket with a non-empty buffer is end-of-file.
type readOp struct {
	opBase
	fd      int
	buf     []byte
	flags   int
	stream  bool
	n       int
	handler func(int, error)
}

func (o *readOp) Perform() reactor.Status {
	for {
		n, _, err := unix.Recvfrom(o.fd, o.buf, o.flags)
		switch err {
		case nil:
			o.n = n
			if n == 0 && o.stream && len(o.buf) > 0 {
				o.err = ErrEndOfFile
			}
			return reactor.Done
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return reactor.Retry
		default:
			o.err = err
			return reactor.Done
		}
	}
}

func (o *readOp) Complete() {
	err := WrapError("receive", o.fd, o.err)
	if obs := o.ioc.observer; obs != nil {
		obs.ObserveRead(uint64(o.n), o.latencyNs(), err == nil)
	}
	o.handler(o.n, err)
}

// recvFromOp is readOp plus the sender's endpoint.
type recvFromOp struct {
	opBase
	fd      int
	buf     []byte
	flags   int
	n       int
	sa      unix.Sockaddr
	handler func(int, Endpoint, error)
}

func (o *recvFromOp) Perform() reactor.Status {
	for {
		n, sa, err := unix.Recvfrom(o.fd, o.buf, o.flags)
		switch err {
		case nil:
			o.n, o.sa = n, sa
			return reactor.Done
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return reactor.Retry
		default:
			o.err = err
			return reactor.Done
		}
	}
}

func (o *recvFromOp) Complete() {
	err := WrapError("receive_from", o.fd, o.err)
	if obs := o.ioc.observer; obs != nil {
		obs.ObserveRead(uint64(o.n), o.latencyNs(), err == nil)
	}
	o.handler(o.n, endpointFromSockaddr(o.sa), err)
}

// writeOp services write, send and send-to. A short write completes with
// the byte count; callers wanting write-all compose through AsyncWrite.
type writeOp struct {
	opBase
	fd      int
	buf     []byte
	flags   int
	to      unix.Sockaddr
	n       int
	handler func(int, error)
}

func (o *writeOp) Perform() reactor.Status {
	for {
		n, err := unix.SendmsgN(o.fd, o.buf, nil, o.to, o.flags)
		switch err {
		case nil:
			o.n = n
			return reactor.Done
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return reactor.Retry
		default:
			o.err = err
			return reactor.Done
		}
	}
}

func (o *writeOp) Complete() {
	err := WrapError("send", o.fd, o.err)
	if obs := o.ioc.observer; obs != nil {
		obs.ObserveWrite(uint64(o.n), o.latencyNs(), err == nil)
	}
	o.handler(o.n, err)
}

// waitOp completes, with no syscall, when the descriptor becomes ready in
// its direction.
type waitOp struct {
	opBase
	fd      int
	handler func(error)
}

func (o *waitOp) Perform() reactor.Status {
	return reactor.Done
}

func (o *waitOp) Complete() {
	o.handler(WrapError("wait", o.fd, o.err))
}
