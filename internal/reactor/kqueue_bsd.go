//go:build darwin || freebsd || netbsd || openbsd

package reactor

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-aio/internal/constants"
)

// pollEvent is one decoded readiness event.
type pollEvent struct {
	fd    int
	read  bool
	write bool
}

// poller demultiplexes readiness with kqueue. Read and write interest are
// separate one-shot kevents, re-added on each Arm.
type poller struct {
	fd  int
	raw []unix.Kevent_t
}

func newPoller() (*poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(fd)
	return &poller{
		fd:  fd,
		raw: make([]unix.Kevent_t, constants.MaxPollEvents),
	}, nil
}

// register is a no-op for kqueue; interest is established per direction by
// arm.
func (p *poller) register(fd int) error {
	return nil
}

// registerPersistent adds persistent read interest. Used for the
// interrupter only.
func (p *poller) registerPersistent(fd int) error {
	ev := unix.Kevent_t{Filter: unix.EVFILT_READ, Flags: unix.EV_ADD}
	unix.SetKevent(&ev, fd, unix.EVFILT_READ, unix.EV_ADD)
	if _, err := unix.Kevent(p.fd, []unix.Kevent_t{ev}, nil, nil); err != nil {
		return os.NewSyscallError("kevent add", err)
	}
	return nil
}

// arm enables one-shot readiness for the requested directions.
func (p *poller) arm(fd int, read, write bool) error {
	changes := make([]unix.Kevent_t, 0, 2)
	if read {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ONESHOT)
		changes = append(changes, ev)
	}
	if write {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ONESHOT)
		changes = append(changes, ev)
	}
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.fd, changes, nil, nil); err != nil {
		return os.NewSyscallError("kevent add", err)
	}
	return nil
}

// deregister drops any remaining interest for fd. Filters that were never
// armed, or already fired their one shot, report ENOENT; that is fine.
func (p *poller) deregister(fd int) error {
	var rd, wr unix.Kevent_t
	unix.SetKevent(&rd, fd, unix.EVFILT_READ, unix.EV_DELETE)
	unix.SetKevent(&wr, fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	_, _ = unix.Kevent(p.fd, []unix.Kevent_t{rd}, nil, nil)
	_, _ = unix.Kevent(p.fd, []unix.Kevent_t{wr}, nil, nil)
	return nil
}

// wait blocks for up to msec milliseconds (-1 blocks indefinitely, 0 polls)
// and decodes ready events into out. EINTR reads as an empty tick.
func (p *poller) wait(out []pollEvent, msec int) (int, error) {
	var ts *unix.Timespec
	if msec >= 0 {
		t := unix.NsecToTimespec(int64(msec) * 1e6)
		ts = &t
	}
	n, err := unix.Kevent(p.fd, nil, p.raw, ts)
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, os.NewSyscallError("kevent", err)
	}
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		ev := &p.raw[i]
		out[i] = pollEvent{
			fd:    int(ev.Ident),
			read:  ev.Filter == unix.EVFILT_READ,
			write: ev.Filter == unix.EVFILT_WRITE,
		}
	}
	return n, nil
}

func (p *poller) close() error {
	return unix.Close(p.fd)
}
