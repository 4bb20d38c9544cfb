package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOp records Abort/Perform calls for queue tests.
type stubOp struct {
	id        int
	err       error
	performed bool
	completed bool
}

func (o *stubOp) Perform() Status {
	o.performed = true
	return Done
}

func (o *stubOp) Abort(err error) {
	o.err = err
}

func (o *stubOp) Complete() {
	o.completed = true
}

func TestTimerQueueOrdering(t *testing.T) {
	var q TimerQueue
	now := Now()

	late := &stubOp{id: 3}
	early := &stubOp{id: 1}
	mid := &stubOp{id: 2}

	_, earliest := q.Insert(now+Expiry(3*time.Second), late)
	assert.True(t, earliest, "first insert is always the earliest")

	_, earliest = q.Insert(now+Expiry(1*time.Second), early)
	assert.True(t, earliest, "earlier expiry must report as new minimum")

	_, earliest = q.Insert(now+Expiry(2*time.Second), mid)
	assert.False(t, earliest)

	next, ok := q.NextExpiry()
	require.True(t, ok)
	assert.Equal(t, now+Expiry(1*time.Second), next)

	var ready OpQueue
	n := q.PopReady(now+Expiry(10*time.Second), &ready)
	assert.Equal(t, 3, n)
	assert.Equal(t, early, ready.Pop())
	assert.Equal(t, mid, ready.Pop())
	assert.Equal(t, late, ready.Pop())
	assert.Equal(t, 0, q.Len())
}

func TestTimerQueueTieBreakFIFO(t *testing.T) {
	var q TimerQueue
	expiry := Now() + Expiry(time.Second)

	ops := make([]*stubOp, 10)
	for i := range ops {
		ops[i] = &stubOp{id: i}
		q.Insert(expiry, ops[i])
	}

	var ready OpQueue
	q.PopReady(expiry, &ready)
	for i := range ops {
		assert.Equal(t, ops[i], ready.Pop(), "equal expiries must fire in insertion order")
	}
}

func TestTimerQueuePopReadyRespectsNow(t *testing.T) {
	var q TimerQueue
	now := Now()

	due := &stubOp{}
	pending := &stubOp{}
	q.Insert(now, due)
	q.Insert(now+Expiry(time.Hour), pending)

	var ready OpQueue
	n := q.PopReady(now, &ready)
	assert.Equal(t, 1, n)
	assert.Equal(t, due, ready.Pop())
	assert.Equal(t, 1, q.Len())
}

func TestTimerQueueRemove(t *testing.T) {
	var q TimerQueue
	now := Now()

	op := &stubOp{}
	e, _ := q.Insert(now+Expiry(time.Second), op)

	assert.True(t, q.Remove(e))
	assert.False(t, q.Remove(e), "second remove must report already gone")
	assert.Equal(t, 0, q.Len())

	_, ok := q.NextExpiry()
	assert.False(t, ok)
}

func TestExpirySentinels(t *testing.T) {
	assert.True(t, ExpiryZero.Elapsed(Now()))
	assert.False(t, ExpiryInfinity.Elapsed(Now()))
	assert.Equal(t, time.Duration(0), ExpiryZero.Left())
	assert.Greater(t, ExpiryInfinity.Left(), time.Hour)

	after := After(50 * time.Millisecond)
	assert.Greater(t, after.Left(), time.Duration(0))
	assert.LessOrEqual(t, after.Left(), 50*time.Millisecond)

	past := At(time.Now().Add(-time.Second))
	assert.True(t, past.Elapsed(Now()))
}

func TestOpQueueFIFO(t *testing.T) {
	var q OpQueue
	assert.True(t, q.Empty())
	assert.Nil(t, q.Pop())
	assert.Nil(t, q.Front())

	ops := []*stubOp{{id: 0}, {id: 1}, {id: 2}}
	for _, op := range ops {
		q.Push(op)
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, ops[0], q.Front())

	for _, want := range ops {
		assert.Equal(t, want, q.Pop())
	}
	assert.True(t, q.Empty())

	// Reusable after draining.
	q.Push(ops[1])
	assert.Equal(t, ops[1], q.Pop())
}
