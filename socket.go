package aio

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-aio/internal/reactor"
)

// Socket owns one non-blocking file descriptor registered with its
// context's reactor. Every Async method queues an operation on the
// descriptor's read or write FIFO; operations on the same descriptor and
// direction complete in the order they were started.
type Socket struct {
	ioc    *IOContext
	desc   *reactor.Descriptor
	fd     int
	family int
	sotype int
	proto  int
	closed atomic.Bool
}

// NewSocket opens a socket for the protocol triple and registers it with
// the context.
func NewSocket(ioc *IOContext, family, sotype, proto int) (*Socket, error) {
	fd, err := sysSocket(family, sotype, proto)
	if err != nil {
		return nil, WrapError("socket", -1, err)
	}
	s, err := adoptSocket(ioc, fd, family, sotype, proto)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return s, nil
}

// adoptSocket registers an already-open non-blocking fd (accept children,
// socket pairs). The caller closes fd if adoption fails.
func adoptSocket(ioc *IOContext, fd, family, sotype, proto int) (*Socket, error) {
	desc, err := ioc.r.Register(fd)
	if err != nil {
		return nil, WrapError("register", fd, err)
	}
	return &Socket{
		ioc:    ioc,
		desc:   desc,
		fd:     fd,
		family: family,
		sotype: sotype,
		proto:  proto,
	}, nil
}

// Context returns the owning execution context.
func (s *Socket) Context() *IOContext {
	return s.ioc
}

// FD returns the underlying file descriptor.
func (s *Socket) FD() int {
	return s.fd
}

// Bind binds the socket to a local endpoint.
func (s *Socket) Bind(ep Endpoint) error {
	return WrapError("bind", s.fd, unix.Bind(s.fd, ep.Sockaddr()))
}

// Listen marks the socket as accepting connections.
func (s *Socket) Listen(backlog int) error {
	return WrapError("listen", s.fd, unix.Listen(s.fd, backlog))
}

// Shutdown half-closes the socket (unix.SHUT_RD, SHUT_WR, SHUT_RDWR).
func (s *Socket) Shutdown(how int) error {
	return WrapError("shutdown", s.fd, unix.Shutdown(s.fd, how))
}

// LocalEndpoint returns the bound local address.
func (s *Socket) LocalEndpoint() (Endpoint, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return Endpoint{}, WrapError("getsockname", s.fd, err)
	}
	return endpointFromSockaddr(sa), nil
}

// RemoteEndpoint returns the connected peer's address.
func (s *Socket) RemoteEndpoint() (Endpoint, error) {
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return Endpoint{}, WrapError("getpeername", s.fd, err)
	}
	return endpointFromSockaddr(sa), nil
}

// AsyncAccept queues an accept on the read side. The handler receives the
// connected child socket, registered on the same context, and the peer
// endpoint.
func (s *Socket) AsyncAccept(h func(*Socket, Endpoint, error)) {
	op := &acceptOp{opBase: s.newOpBase(), lis: s, handler: h}
	s.start(reactor.DirRead, op, nil)
}

// AsyncConnect starts a non-blocking connect. A connect that succeeds
// immediately completes without touching the reactor; EINPROGRESS queues
// the operation on the write side until the handshake resolves.
func (s *Socket) AsyncConnect(ep Endpoint, h func(error)) {
	op := &connectOp{opBase: s.newOpBase(), fd: s.fd, handler: h}
	if !ep.IsValid() {
		op.Abort(NewError("connect", ErrCodeInvalidArgument, "zero endpoint"))
		s.ioc.postCompletion(op)
		return
	}
	if s.closed.Load() {
		op.Abort(ErrClosed)
		s.ioc.postCompletion(op)
		return
	}
	err := unix.Connect(s.fd, ep.Sockaddr())
	switch err {
	case nil:
		s.ioc.postCompletion(op)
	case unix.EINPROGRESS:
		s.start(reactor.DirWrite, op, nil)
	default:
		op.Abort(err)
		s.ioc.postCompletion(op)
	}
}

// AsyncReadSome queues a single read; the handler may observe fewer bytes
// than the buffer holds. Zero bytes on a stream socket completes with the
// end-of-file error.
func (s *Socket) AsyncReadSome(buf []byte, h func(int, error)) {
	op := &readOp{opBase: s.newOpBase(), fd: s.fd, buf: buf, stream: s.isStream(), handler: h}
	s.start(reactor.DirRead, op, nil)
}

// AsyncWriteSome queues a single write; the handler may observe a short
// count.
func (s *Socket) AsyncWriteSome(buf []byte, h func(int, error)) {
	op := &writeOp{opBase: s.newOpBase(), fd: s.fd, buf: buf, handler: h}
	s.start(reactor.DirWrite, op, nil)
}

// AsyncRead composes AsyncReadSome operations until buf is full or an
// error (including end-of-file) occurs. The handler receives the total
// bytes transferred.
func (s *Socket) AsyncRead(buf []byte, h func(int, error)) {
	var total int
	var step func(int, error)
	step = func(n int, err error) {
		total += n
		if err != nil || total == len(buf) {
			h(total, err)
			return
		}
		s.AsyncReadSome(buf[total:], step)
	}
	s.AsyncReadSome(buf, step)
}

// AsyncWrite composes AsyncWriteSome operations until buf is fully sent or
// an error occurs. The handler receives the total bytes transferred.
func (s *Socket) AsyncWrite(buf []byte, h func(int, error)) {
	var total int
	var step func(int, error)
	step = func(n int, err error) {
		total += n
		if err != nil || total == len(buf) {
			h(total, err)
			return
		}
		s.AsyncWriteSome(buf[total:], step)
	}
	s.AsyncWriteSome(buf, step)
}

// AsyncReceive queues a receive with flags on a connected socket.
func (s *Socket) AsyncReceive(buf []byte, flags int, h func(int, error)) {
	op := &readOp{opBase: s.newOpBase(), fd: s.fd, buf: buf, flags: flags, stream: s.isStream(), handler: h}
	s.start(reactor.DirRead, op, nil)
}

// AsyncSend queues a send with flags on a connected socket.
func (s *Socket) AsyncSend(buf []byte, flags int, h func(int, error)) {
	op := &writeOp{opBase: s.newOpBase(), fd: s.fd, buf: buf, flags: flags, handler: h}
	s.start(reactor.DirWrite, op, nil)
}

// AsyncReceiveFrom queues a datagram receive, delivering the sender's
// endpoint alongside the byte count.
func (s *Socket) AsyncReceiveFrom(buf []byte, flags int, h func(int, Endpoint, error)) {
	op := &recvFromOp{opBase: s.newOpBase(), fd: s.fd, buf: buf, flags: flags, handler: h}
	s.start(reactor.DirRead, op, nil)
}

// AsyncSendTo queues a datagram send to ep.
func (s *Socket) AsyncSendTo(buf []byte, flags int, ep Endpoint, h func(int, error)) {
	op := &writeOp{opBase: s.newOpBase(), fd: s.fd, buf: buf, flags: flags, to: ep.Sockaddr(), handler: h}
	s.start(reactor.DirWrite, op, nil)
}

// AsyncWaitRead completes when the socket becomes readable, without
// consuming anything.
func (s *Socket) AsyncWaitRead(h func(error)) {
	op := &waitOp{opBase: s.newOpBase(), fd: s.fd, handler: h}
	s.start(reactor.DirRead, op, nil)
}

// AsyncWaitWrite completes when the socket becomes writable.
func (s *Socket) AsyncWaitWrite(h func(error)) {
	op := &waitOp{opBase: s.newOpBase(), fd: s.fd, handler: h}
	s.start(reactor.DirWrite, op, nil)
}

// Cancel aborts every pending operation on the socket; each handler runs
// exactly once with the cancellation error, in FIFO order, before any
// operation queued afterwards. The socket stays usable.
func (s *Socket) Cancel() int {
	var ready reactor.OpQueue
	n := s.ioc.r.CancelOps(s.desc, ErrCancelled, &ready)
	if n > 0 {
		if obs := s.ioc.observer; obs != nil {
			obs.ObserveCancel(uint64(n))
		}
		s.ioc.postOps(&ready)
	}
	return n
}

// Close cancels pending operations, deregisters the descriptor from the
// reactor and closes the file descriptor. Idempotent.
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var ready reactor.OpQueue
	s.ioc.r.Deregister(s.desc, ErrCancelled, &ready)
	s.ioc.postOps(&ready)
	return WrapError("close", s.fd, unix.Close(s.fd))
}

// start queues op on the descriptor, short-circuiting to an immediate
// completion when the socket is already closed.
func (s *Socket) start(dir int, op reactor.Operation, initialErr error) {
	if initialErr == nil && s.closed.Load() {
		initialErr = ErrClosed
	}
	s.ioc.startOp(s.desc, dir, op, initialErr)
}

func (s *Socket) isStream() bool {
	return s.sotype == unix.SOCK_STREAM
}
