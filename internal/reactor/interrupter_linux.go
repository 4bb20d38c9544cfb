//go:build linux

package reactor

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

// interrupter wakes a blocked poll from another thread, built on eventfd.
// Signal is idempotent: repeated signals accumulate in the counter and
// drain clears it in one read.
type interrupter struct {
	efd int
}

func newInterrupter() (*interrupter, error) {
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("eventfd", err)
	}
	return &interrupter{efd: efd}, nil
}

// readFD returns the descriptor the reactor watches for wakes.
func (i *interrupter) readFD() int {
	return i.efd
}

// signal wakes the poller. Non-blocking; a saturated counter means a wake
// is already pending, which is all that matters.
func (i *interrupter) signal() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(i.efd, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}

// drain clears the pending wake.
func (i *interrupter) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(i.efd, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}

func (i *interrupter) close() error {
	return unix.Close(i.efd)
}
