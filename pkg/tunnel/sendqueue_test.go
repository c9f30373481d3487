package tunnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendQueueDispatchesWhenConnectionReady(t *testing.T) {
	cs := newConnectionSet(DefaultConfig())
	conn := &fakeConn{id: "c1", ready: true}
	cs.AcceptInbound(conn)

	q := newSendQueue(cs)
	var gotErr error
	called := false
	q.Send(Frame{PayloadCipher: []byte("hi")}, func(err error) {
		called = true
		gotErr = err
	})

	require.True(t, called)
	assert.NoError(t, gotErr)
	assert.Len(t, conn.sent, 1)
	assert.Equal(t, 0, q.Len())
}

func TestSendQueueBuffersUntilConnectionReady(t *testing.T) {
	cs := newConnectionSet(DefaultConfig())
	conn := &fakeConn{id: "c1", ready: false}
	cs.AcceptInbound(conn)

	q := newSendQueue(cs)
	dispatched := false
	q.Send(Frame{PayloadCipher: []byte("buffered")}, func(err error) {
		dispatched = true
	})

	require.False(t, dispatched)
	require.Equal(t, 1, q.Len())

	conn.ready = true
	q.OnConnectionReady()

	assert.True(t, dispatched)
	assert.Equal(t, 0, q.Len())
	assert.Len(t, conn.sent, 1)
}

func TestSendQueueCancelRemovesEntry(t *testing.T) {
	cs := newConnectionSet(DefaultConfig())
	q := newSendQueue(cs) // no ready connection, so Send just buffers

	h := q.Send(Frame{}, nil)
	require.Equal(t, 1, q.Len())

	err := q.Cancel(h)
	require.NoError(t, err)
	assert.Equal(t, 0, q.Len())
}

func TestSendQueueCancelUnknownHandle(t *testing.T) {
	cs := newConnectionSet(DefaultConfig())
	q := newSendQueue(cs)

	err := q.Cancel(Handle{})
	assert.ErrorIs(t, err, ErrQueueCancelled)
}

func TestSendQueueFIFOOrder(t *testing.T) {
	cs := newConnectionSet(DefaultConfig())
	conn := &fakeConn{id: "c1", ready: false}
	cs.AcceptInbound(conn)
	q := newSendQueue(cs)

	q.Send(Frame{PayloadCipher: []byte("first")}, nil)
	q.Send(Frame{PayloadCipher: []byte("second")}, nil)
	require.Equal(t, 2, q.Len())

	conn.ready = true
	q.OnConnectionReady()
	require.Equal(t, 1, q.Len())
	require.Len(t, conn.sent, 1)

	q.OnConnectionReady()
	require.Equal(t, 0, q.Len())
	require.Len(t, conn.sent, 2)
}
