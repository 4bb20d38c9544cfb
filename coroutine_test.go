package aio

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestCoroutineEchoLoop(t *testing.T) {
	ioc := newTestContext(t, nil)
	tx, rx, err := StreamPair(ioc)
	require.NoError(t, err)
	defer tx.Close()
	defer rx.Close()

	// 1000 iterations of send-then-receive, written as straight-line code.
	const iterations = 1000
	payload := []byte("coroutine-echo")
	var sends, receives int

	ioc.Spawn(func(co *Coroutine) {
		buf := make([]byte, len(payload))
		for i := 0; i < iterations; i++ {
			n, err := co.Await(func(done func(int, error)) {
				tx.AsyncWrite(payload, done)
			})
			if err != nil {
				t.Errorf("send %d: %v", i, err)
				return
			}
			if n != len(payload) {
				t.Errorf("send %d: short write %d", i, n)
				return
			}
			sends++

			n, err = co.Await(func(done func(int, error)) {
				rx.AsyncRead(buf, done)
			})
			if err != nil {
				t.Errorf("receive %d: %v", i, err)
				return
			}
			if n != len(payload) {
				t.Errorf("receive %d: short read %d", i, n)
				return
			}
			receives++
		}
	})

	ioc.Run()
	assert.Equal(t, iterations, sends)
	assert.Equal(t, iterations, receives)
}

func TestCoroutineAccept(t *testing.T) {
	ioc := newTestContext(t, nil)
	lis, local := newListener(t, ioc)

	var peer Endpoint
	var acceptErr error
	ioc.Spawn(func(co *Coroutine) {
		conn, from, err := Await2[*Socket, Endpoint](co, func(done func(*Socket, Endpoint, error)) {
			lis.AsyncAccept(done)
		})
		acceptErr = err
		peer = from
		if conn != nil {
			conn.Close()
		}
	})

	c, err := NewSocket(ioc, unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer c.Close()
	c.AsyncConnect(local, func(err error) { require.NoError(t, err) })

	ioc.Run()
	assert.NoError(t, acceptErr)
	assert.True(t, peer.IP().IsLoopback())
}

func TestCoroutineTimerWait(t *testing.T) {
	ioc := newTestContext(t, nil)

	var waited time.Duration
	start := time.Now()
	ioc.Spawn(func(co *Coroutine) {
		timer := co.Context().NewTimer()
		timer.ExpiresAfter(20 * time.Millisecond)
		err := co.AwaitErr(func(done func(error)) {
			timer.AsyncWait(done)
		})
		require.NoError(t, err)
		waited = time.Since(start)
	})

	ioc.Run()
	assert.GreaterOrEqual(t, waited, 20*time.Millisecond)
}

func TestCoroutineCancellationSurfacesAsError(t *testing.T) {
	ioc := newTestContext(t, nil)
	a, b, err := StreamPair(ioc)
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	var gotErr error
	ioc.Spawn(func(co *Coroutine) {
		_, gotErr = co.Await(func(done func(int, error)) {
			b.AsyncReadSome(make([]byte, 4), done)
		})
	})

	timer := ioc.NewTimer()
	timer.ExpiresAfter(20 * time.Millisecond)
	timer.AsyncWait(func(err error) {
		require.NoError(t, err)
		b.Cancel()
	})

	ioc.Run()
	assert.True(t, IsCancelled(gotErr), "cancellation returns from the suspended call, got %v", gotErr)
}

func TestCoroutineResumesOnWorker(t *testing.T) {
	ioc := newTestContext(t, nil)

	var before, after bool
	ioc.Spawn(func(co *Coroutine) {
		before = ioc.RunningInThisGoroutine()
		timer := ioc.NewTimer()
		timer.ExpiresAfter(time.Millisecond)
		_ = co.AwaitErr(func(done func(error)) { timer.AsyncWait(done) })
		after = ioc.WorkCount() >= 0 // resumed; the worker is parked while we run
	})
	ioc.Run()
	assert.False(t, before, "the coroutine body runs on its own goroutine")
	assert.True(t, after)
}

func TestCoroutinePanicIsIsolated(t *testing.T) {
	ioc := newTestContext(t, nil)

	var after bool
	ioc.Spawn(func(co *Coroutine) {
		panic("coroutine exploded")
	})
	ioc.Post(func() { after = true })

	ioc.Run()
	assert.True(t, after, "a panicking coroutine must not take the context down")
}

func TestCoroutineDatagramExchange(t *testing.T) {
	ioc := newTestContext(t, nil)

	rx, err := NewSocket(ioc, unix.AF_INET, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	defer rx.Close()
	require.NoError(t, rx.Bind(InetEndpoint(net.IPv4(127, 0, 0, 1), 0)))
	rxEP, err := rx.LocalEndpoint()
	require.NoError(t, err)

	tx, err := NewSocket(ioc, unix.AF_INET, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	defer tx.Close()

	var got string
	ioc.Spawn(func(co *Coroutine) {
		buf := make([]byte, 64)
		n, _, err := Await2[int, Endpoint](co, func(done func(int, Endpoint, error)) {
			rx.AsyncReceiveFrom(buf, 0, func(n int, from Endpoint, err error) {
				done(n, from, err)
			})
		})
		require.NoError(t, err)
		got = string(buf[:n])
	})

	tx.AsyncSendTo([]byte("ping"), 0, rxEP, func(n int, err error) {
		require.NoError(t, err)
	})

	ioc.Run()
	assert.Equal(t, "ping", got)
}
