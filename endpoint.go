package aio

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-aio/internal/constants"
)

// Endpoint is a protocol address the core treats opaquely: a thin wrapper
// over the kernel sockaddr for the IPv4, IPv6, UNIX-domain and generic
// families.
type Endpoint struct {
	sa unix.Sockaddr
}

// InetEndpoint builds an IPv4 or IPv6 endpoint from ip and port, picking
// the family from the address.
func InetEndpoint(ip net.IP, port int) Endpoint {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return Endpoint{sa: sa}
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return Endpoint{sa: sa}
}

// UnixEndpoint builds a UNIX-domain endpoint. Paths longer than the
// kernel's sun_path limit fail with the name-too-long error.
func UnixEndpoint(path string) (Endpoint, error) {
	if len(path) > constants.MaxUnixPathLen {
		return Endpoint{}, NewError("endpoint", ErrCodeNameTooLong, fmt.Sprintf("unix path %d bytes", len(path)))
	}
	return Endpoint{sa: &unix.SockaddrUnix{Name: path}}, nil
}

// RawEndpoint wraps an arbitrary sockaddr for protocols the core does not
// know about.
func RawEndpoint(sa unix.Sockaddr) Endpoint {
	return Endpoint{sa: sa}
}

// endpointFromSockaddr converts a kernel-returned sockaddr.
func endpointFromSockaddr(sa unix.Sockaddr) Endpoint {
	return Endpoint{sa: sa}
}

// Sockaddr returns the underlying kernel sockaddr, nil for the zero
// endpoint.
func (e Endpoint) Sockaddr() unix.Sockaddr {
	return e.sa
}

// IsValid reports whether the endpoint carries an address.
func (e Endpoint) IsValid() bool {
	return e.sa != nil
}

// Family returns the address family (unix.AF_*) for IPv4, IPv6 and
// UNIX-domain endpoints, and unix.AF_UNSPEC for the zero endpoint and for
// any other sockaddr type.
func (e Endpoint) Family() int {
	switch e.sa.(type) {
	case *unix.SockaddrInet4:
		return unix.AF_INET
	case *unix.SockaddrInet6:
		return unix.AF_INET6
	case *unix.SockaddrUnix:
		return unix.AF_UNIX
	case nil:
		return unix.AF_UNSPEC
	default:
		return unix.AF_UNSPEC
	}
}

// IP returns the address for inet endpoints, nil otherwise.
func (e Endpoint) IP() net.IP {
	switch sa := e.sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(sa.Addr[:])
	case *unix.SockaddrInet6:
		return net.IP(sa.Addr[:])
	default:
		return nil
	}
}

// Port returns the port for inet endpoints, 0 otherwise.
func (e Endpoint) Port() int {
	switch sa := e.sa.(type) {
	case *unix.SockaddrInet4:
		return sa.Port
	case *unix.SockaddrInet6:
		return sa.Port
	default:
		return 0
	}
}

// Path returns the path for UNIX-domain endpoints, "" otherwise.
func (e Endpoint) Path() string {
	if sa, ok := e.sa.(*unix.SockaddrUnix); ok {
		return sa.Name
	}
	return ""
}

// String formats the endpoint for logs.
func (e Endpoint) String() string {
	switch sa := e.sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(sa.Addr[:]), sa.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(sa.Addr[:]), sa.Port)
	case *unix.SockaddrUnix:
		return sa.Name
	case nil:
		return "<none>"
	default:
		return fmt.Sprintf("<%T>", sa)
	}
}
