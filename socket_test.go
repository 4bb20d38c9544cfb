package aio

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newListener binds a TCP listener on 127.0.0.1 with an ephemeral port and
// returns it with its bound endpoint.
func newListener(t *testing.T, ioc *IOContext) (*Socket, Endpoint) {
	t.Helper()
	lis, err := NewSocket(ioc, unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })

	require.NoError(t, lis.SetOption(ReuseAddr(true)))
	require.NoError(t, lis.Bind(InetEndpoint(net.IPv4(127, 0, 0, 1), 0)))
	require.NoError(t, lis.Listen(16))

	local, err := lis.LocalEndpoint()
	require.NoError(t, err)
	require.NotZero(t, local.Port())
	return lis, local
}

func TestStreamPairEcho(t *testing.T) {
	ioc := newTestContext(t, nil)
	a, b, err := StreamPair(ioc)
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	var sent, received int
	var readBuf [16]byte
	a.AsyncWriteSome([]byte("hello"), func(n int, err error) {
		require.NoError(t, err)
		sent = n
	})
	b.AsyncReadSome(readBuf[:], func(n int, err error) {
		require.NoError(t, err)
		received = n
	})

	ioc.Run()
	assert.Equal(t, 5, sent)
	assert.Equal(t, 5, received)
	assert.Equal(t, "hello", string(readBuf[:received]))
}

func TestAcceptAndConnect(t *testing.T) {
	ioc := newTestContext(t, nil)
	lis, local := newListener(t, ioc)

	// Two successive accepts, two clients connecting from a posted task.
	var accepted []*Socket
	var acceptErrs []error
	var onAccept func(*Socket, Endpoint, error)
	onAccept = func(conn *Socket, peer Endpoint, err error) {
		accepted = append(accepted, conn)
		acceptErrs = append(acceptErrs, err)
		if len(accepted) < 2 {
			lis.AsyncAccept(onAccept)
		}
	}
	lis.AsyncAccept(onAccept)

	var connectErrs []error
	clients := make([]*Socket, 2)
	ioc.Post(func() {
		for i := range clients {
			c, err := NewSocket(ioc, unix.AF_INET, unix.SOCK_STREAM, 0)
			require.NoError(t, err)
			clients[i] = c
			c.AsyncConnect(local, func(err error) {
				connectErrs = append(connectErrs, err)
			})
		}
	})

	ioc.Run()

	require.Len(t, accepted, 2)
	for _, err := range acceptErrs {
		assert.NoError(t, err)
	}
	require.Len(t, connectErrs, 2)
	for _, err := range connectErrs {
		assert.NoError(t, err)
	}
	for _, conn := range accepted {
		require.NotNil(t, conn)
		peer, err := conn.RemoteEndpoint()
		require.NoError(t, err)
		assert.True(t, peer.IP().IsLoopback())
		conn.Close()
	}
	for _, c := range clients {
		c.Close()
	}
}

func TestConnectionRefused(t *testing.T) {
	ioc := newTestContext(t, nil)

	c, err := NewSocket(ioc, unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer c.Close()

	var gotErr error
	c.AsyncConnect(InetEndpoint(net.IPv4(127, 0, 0, 1), 1), func(err error) {
		gotErr = err
	})
	ioc.Run()

	require.Error(t, gotErr)
	assert.True(t, IsCode(gotErr, ErrCodeConnectionRefused), "got %v", gotErr)
}

func TestCancelAsyncAccept(t *testing.T) {
	ioc := newTestContext(t, nil)
	lis, _ := newListener(t, ioc)

	var acceptErr error
	lis.AsyncAccept(func(conn *Socket, peer Endpoint, err error) {
		acceptErr = err
	})

	timer := ioc.NewTimer()
	timer.ExpiresAfter(50 * time.Millisecond)
	var timerErr error
	timer.AsyncWait(func(err error) {
		timerErr = err
		lis.Cancel()
	})

	ioc.Run()
	assert.NoError(t, timerErr)
	assert.True(t, IsCancelled(acceptErr), "accept must complete with the cancellation error")
}

func TestBrokenPipeOnSend(t *testing.T) {
	ioc := newTestContext(t, nil)
	lis, local := newListener(t, ioc)

	// Server accepts and immediately closes; client loops large sends
	// until the failure surfaces.
	lis.AsyncAccept(func(conn *Socket, peer Endpoint, err error) {
		require.NoError(t, err)
		conn.Close()
	})

	c, err := NewSocket(ioc, unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer c.Close()

	var sendErr error
	buf := make([]byte, 1<<20)
	var pump func(int, error)
	pump = func(n int, err error) {
		if err != nil {
			sendErr = err
			return
		}
		c.AsyncWrite(buf, pump)
	}
	c.AsyncConnect(local, func(err error) {
		require.NoError(t, err)
		c.AsyncWrite(buf, pump)
	})

	ioc.Run()
	require.Error(t, sendErr)
	broken := IsCode(sendErr, ErrCodeBrokenPipe) || IsCode(sendErr, ErrCodeConnectionReset)
	assert.True(t, broken, "got %v", sendErr)
}

func TestReadCompletionOrderPerDescriptor(t *testing.T) {
	ioc := newTestContext(t, nil)
	a, b, err := StreamPair(ioc)
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	var mu sync.Mutex
	var order []int
	bufs := make([][]byte, 3)
	for i := range bufs {
		i := i
		bufs[i] = make([]byte, 4)
		b.AsyncRead(bufs[i], func(n int, err error) {
			require.NoError(t, err)
			require.Equal(t, 4, n)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	a.AsyncWrite([]byte("aaaabbbbcccc"), func(n int, err error) {
		require.NoError(t, err)
	})

	ioc.Run()
	assert.Equal(t, []int{0, 1, 2}, order, "same-direction completions follow enqueue order")
	assert.Equal(t, "aaaa", string(bufs[0]))
	assert.Equal(t, "bbbb", string(bufs[1]))
	assert.Equal(t, "cccc", string(bufs[2]))
}

func TestCancelAllOrderingBeforeNewOps(t *testing.T) {
	ioc := newTestContext(t, nil)
	a, b, err := StreamPair(ioc)
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	var mu sync.Mutex
	var events []string

	buf := make([]byte, 4)
	for i := 0; i < 3; i++ {
		i := i
		b.AsyncReadSome(buf, func(n int, err error) {
			mu.Lock()
			defer mu.Unlock()
			if IsCancelled(err) {
				events = append(events, "cancel")
			} else {
				events = append(events, "data")
			}
			_ = i
		})
	}

	ioc.Post(func() {
		n := b.Cancel()
		assert.Equal(t, 3, n)
		fresh := make([]byte, 4)
		b.AsyncReadSome(fresh, func(n int, err error) {
			mu.Lock()
			events = append(events, "fresh")
			mu.Unlock()
		})
		a.AsyncWriteSome([]byte("pong"), func(n int, err error) {})
	})

	ioc.Run()
	assert.Equal(t, []string{"cancel", "cancel", "cancel", "fresh"}, events,
		"every cancelled handler runs once, before operations queued after the cancel")
}

func TestEndOfFileOnPeerClose(t *testing.T) {
	ioc := newTestContext(t, nil)
	a, b, err := StreamPair(ioc)
	require.NoError(t, err)
	defer b.Close()

	var gotErr error
	buf := make([]byte, 8)
	b.AsyncReadSome(buf, func(n int, err error) {
		gotErr = err
	})
	ioc.Post(func() { a.Close() })

	ioc.Run()
	assert.True(t, IsEndOfFile(gotErr), "zero-byte stream read signals end-of-file, got %v", gotErr)
}

func TestDatagramSendToReceiveFrom(t *testing.T) {
	ioc := newTestContext(t, nil)

	mk := func() (*Socket, Endpoint) {
		s, err := NewSocket(ioc, unix.AF_INET, unix.SOCK_DGRAM, 0)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		require.NoError(t, s.Bind(InetEndpoint(net.IPv4(127, 0, 0, 1), 0)))
		ep, err := s.LocalEndpoint()
		require.NoError(t, err)
		return s, ep
	}
	rx, rxEP := mk()
	tx, txEP := mk()

	var n int
	var from Endpoint
	buf := make([]byte, 32)
	rx.AsyncReceiveFrom(buf, 0, func(got int, peer Endpoint, err error) {
		require.NoError(t, err)
		n = got
		from = peer
	})
	tx.AsyncSendTo([]byte("datagram"), 0, rxEP, func(sent int, err error) {
		require.NoError(t, err)
		assert.Equal(t, 8, sent)
	})

	ioc.Run()
	assert.Equal(t, 8, n)
	assert.Equal(t, "datagram", string(buf[:n]))
	assert.Equal(t, txEP.Port(), from.Port(), "receive-from reports the sender endpoint")
}

func TestAsyncWaitReadiness(t *testing.T) {
	ioc := newTestContext(t, nil)
	a, b, err := StreamPair(ioc)
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	var writable, readable bool
	a.AsyncWaitWrite(func(err error) {
		require.NoError(t, err)
		writable = true
	})
	b.AsyncWaitRead(func(err error) {
		require.NoError(t, err)
		readable = true
		// The wait consumed nothing; the payload is still there.
		n, rerr := b.BytesReadable()
		require.NoError(t, rerr)
		assert.Equal(t, 4, n)
	})
	a.AsyncWriteSome([]byte("wait"), func(n int, err error) {})

	ioc.Run()
	assert.True(t, writable)
	assert.True(t, readable)
}

func TestOperationsOnClosedSocket(t *testing.T) {
	ioc := newTestContext(t, nil)
	a, b, err := StreamPair(ioc)
	require.NoError(t, err)
	b.Close()

	require.NoError(t, a.Close())
	assert.NoError(t, a.Close(), "close is idempotent")

	var gotErr error
	a.AsyncReadSome(make([]byte, 4), func(n int, err error) {
		gotErr = err
	})
	ioc.Run()
	assert.True(t, IsCode(gotErr, ErrCodeClosed), "ops on a closed socket short-circuit, got %v", gotErr)
}

func TestCloseAbortsPendingOps(t *testing.T) {
	ioc := newTestContext(t, nil)
	a, b, err := StreamPair(ioc)
	require.NoError(t, err)
	defer a.Close()

	var gotErr error
	b.AsyncReadSome(make([]byte, 4), func(n int, err error) {
		gotErr = err
	})
	ioc.Post(func() { b.Close() })

	ioc.Run()
	assert.True(t, IsCancelled(gotErr), "close aborts pending operations, got %v", gotErr)
}

func TestSocketOptionsRoundTrip(t *testing.T) {
	ioc := newTestContext(t, nil)

	s, err := NewSocket(ioc, unix.AF_INET, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetOption(Broadcast(true)))
	v, err := s.GetOption(unix.SOL_SOCKET, unix.SO_BROADCAST)
	require.NoError(t, err)
	assert.NotZero(t, v)

	require.NoError(t, s.SetOption(Broadcast(false)))
	v, err = s.GetOption(unix.SOL_SOCKET, unix.SO_BROADCAST)
	require.NoError(t, err)
	assert.Zero(t, v)

	s6, err := NewSocket(ioc, unix.AF_INET6, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer s6.Close()
	require.NoError(t, s6.SetOption(V6Only(true)))
	v, err = s6.GetOption(unix.IPPROTO_IPV6, unix.IPV6_V6ONLY)
	require.NoError(t, err)
	assert.NotZero(t, v)

	tcp, err := NewSocket(ioc, unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer tcp.Close()
	require.NoError(t, tcp.SetOption(KeepAlive(true)))
}
