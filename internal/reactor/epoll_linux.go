//go:build linux

package reactor

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-aio/internal/constants"
)

const (
	epollReadFlags  = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLPRI
	epollWriteFlags = unix.EPOLLOUT
)

// pollEvent is one decoded readiness event.
type pollEvent struct {
	fd    int
	read  bool
	write bool
}

// poller demultiplexes readiness with epoll in one-shot mode. Descriptors
// are added with no interest; Arm enables the requested directions until
// the next event delivery disarms them.
type poller struct {
	fd  int
	raw []unix.EpollEvent
}

func newPoller() (*poller, error) {
	// EPOLL_CLOEXEC for consistency with the Go runtime's own pollers.
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &poller{
		fd:  fd,
		raw: make([]unix.EpollEvent, constants.MaxPollEvents),
	}, nil
}

// register adds fd with no interest armed.
func (p *poller) register(fd int) error {
	ev := unix.EpollEvent{Events: 0, Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl add", err)
	}
	return nil
}

// registerPersistent adds fd with level-triggered read interest that
// survives event delivery. Used for the interrupter only.
func (p *poller) registerPersistent(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl add", err)
	}
	return nil
}

// arm enables one-shot readiness for the requested directions.
func (p *poller) arm(fd int, read, write bool) error {
	var events uint32 = unix.EPOLLONESHOT
	if read {
		events |= epollReadFlags
	}
	if write {
		events |= epollWriteFlags
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl mod", err)
	}
	return nil
}

// deregister removes fd. Removing an fd the kernel already dropped is not
// an error.
func (p *poller) deregister(fd int) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT || err == unix.EBADF {
		return nil
	}
	if err != nil {
		return os.NewSyscallError("epoll_ctl del", err)
	}
	return nil
}

// wait blocks for up to msec milliseconds (-1 blocks indefinitely, 0 polls)
// and decodes ready events into out. EINTR reads as an empty tick.
func (p *poller) wait(out []pollEvent, msec int) (int, error) {
	n, err := unix.EpollWait(p.fd, p.raw, msec)
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, os.NewSyscallError("epoll_wait", err)
	}
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		ev := &p.raw[i]
		// HUP and ERR wake both directions so queued operations observe
		// the failure from the syscall itself.
		errHup := ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0
		out[i] = pollEvent{
			fd:    int(ev.Fd),
			read:  errHup || ev.Events&epollReadFlags != 0,
			write: errHup || ev.Events&epollWriteFlags != 0,
		}
	}
	return n, nil
}

func (p *poller) close() error {
	return unix.Close(p.fd)
}
