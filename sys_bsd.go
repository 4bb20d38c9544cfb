//go:build darwin || freebsd || netbsd || openbsd

package aio

import "golang.org/x/sys/unix"

// sysSocket opens a non-blocking close-on-exec socket. SOCK_NONBLOCK and
// SOCK_CLOEXEC are not portable here, so flags are applied after the fact.
func sysSocket(family, sotype, proto int) (int, error) {
	fd, err := unix.Socket(family, sotype, proto)
	if err != nil {
		return -1, err
	}
	if err := prepareFD(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// sysAccept accepts and flags the child non-blocking and close-on-exec.
func sysAccept(fd int) (int, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept(fd)
	if err != nil {
		return -1, nil, err
	}
	if err := prepareFD(nfd); err != nil {
		unix.Close(nfd)
		return -1, nil, err
	}
	return nfd, sa, nil
}

// sysSocketpair creates a connected non-blocking pair.
func sysSocketpair(family, sotype, proto int) ([2]int, error) {
	fds, err := unix.Socketpair(family, sotype, proto)
	if err != nil {
		return fds, err
	}
	for _, fd := range fds {
		if perr := prepareFD(fd); perr != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return fds, perr
		}
	}
	return fds, nil
}

func prepareFD(fd int) error {
	unix.CloseOnExec(fd)
	return unix.SetNonblock(fd, true)
}
