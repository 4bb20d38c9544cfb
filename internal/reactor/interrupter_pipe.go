//go:build darwin || freebsd || netbsd || openbsd

package reactor

import (
	"os"

	"golang.org/x/sys/unix"
)

// interrupter wakes a blocked poll from another thread, built on a
// non-blocking self-pipe.
type interrupter struct {
	rfd int
	wfd int
}

func newInterrupter() (*interrupter, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, os.NewSyscallError("pipe", err)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, os.NewSyscallError("fcntl", err)
		}
	}
	return &interrupter{rfd: fds[0], wfd: fds[1]}, nil
}

// readFD returns the descriptor the reactor watches for wakes.
func (i *interrupter) readFD() int {
	return i.rfd
}

// signal wakes the poller. A full pipe means a wake is already pending.
func (i *interrupter) signal() {
	buf := [1]byte{1}
	for {
		_, err := unix.Write(i.wfd, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}

// drain reads the pipe dry.
func (i *interrupter) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(i.rfd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < len(buf) {
			return
		}
	}
}

func (i *interrupter) close() error {
	err := unix.Close(i.rfd)
	if cerr := unix.Close(i.wfd); err == nil {
		err = cerr
	}
	return err
}
