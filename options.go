package aio

import "golang.org/x/sys/unix"

// SocketOption is a level/name/value triple passed through setsockopt. The
// set is open; the constructors below cover the built-ins.
type SocketOption struct {
	Level int
	Name  int
	Value int
}

// ReuseAddr controls SO_REUSEADDR.
func ReuseAddr(on bool) SocketOption {
	return SocketOption{Level: unix.SOL_SOCKET, Name: unix.SO_REUSEADDR, Value: boolOpt(on)}
}

// Broadcast controls SO_BROADCAST.
func Broadcast(on bool) SocketOption {
	return SocketOption{Level: unix.SOL_SOCKET, Name: unix.SO_BROADCAST, Value: boolOpt(on)}
}

// KeepAlive controls SO_KEEPALIVE.
func KeepAlive(on bool) SocketOption {
	return SocketOption{Level: unix.SOL_SOCKET, Name: unix.SO_KEEPALIVE, Value: boolOpt(on)}
}

// V6Only controls IPV6_V6ONLY.
func V6Only(on bool) SocketOption {
	return SocketOption{Level: unix.IPPROTO_IPV6, Name: unix.IPV6_V6ONLY, Value: boolOpt(on)}
}

func boolOpt(on bool) int {
	if on {
		return 1
	}
	return 0
}

// SetOption applies a socket option.
func (s *Socket) SetOption(o SocketOption) error {
	err := unix.SetsockoptInt(s.fd, o.Level, o.Name, o.Value)
	return WrapError("setsockopt", s.fd, err)
}

// GetOption reads an integer socket option.
func (s *Socket) GetOption(level, name int) (int, error) {
	v, err := unix.GetsockoptInt(s.fd, level, name)
	if err != nil {
		return 0, WrapError("getsockopt", s.fd, err)
	}
	return v, nil
}

// BytesReadable returns the number of bytes that can be read without
// blocking (FIONREAD).
func (s *Socket) BytesReadable() (int, error) {
	v, err := unix.IoctlGetInt(s.fd, unix.FIONREAD)
	if err != nil {
		return 0, WrapError("ioctl", s.fd, err)
	}
	return v, nil
}
