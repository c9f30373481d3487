package tunnel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePath struct {
	id     string
	length int
	desire float64
}

func (p fakePath) Length() int           { return p.length }
func (p fakePath) Desirability() float64 { return p.desire }
func (p fakePath) Equal(other Path) bool {
	o, ok := other.(fakePath)
	return ok && o.id == p.id
}

type fakeConn struct {
	id    string
	ready bool
	path  Path
	sent  [][]byte
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) Ready() bool    { return c.ready }
func (c *fakeConn) Path() Path     { return c.path }
func (c *fakeConn) Send(f []byte) error {
	c.sent = append(c.sent, f)
	return nil
}

func TestConnectionSetAcceptInboundAndPickReady(t *testing.T) {
	cs := newConnectionSet(DefaultConfig())
	c1 := &fakeConn{id: "c1", ready: false}
	c2 := &fakeConn{id: "c2", ready: true}
	cs.AcceptInbound(c1)
	cs.AcceptInbound(c2)

	require.Equal(t, 2, cs.Len())
	assert.Equal(t, c2, cs.PickReady())
}

func TestConsiderPathRejectsDuplicatePath(t *testing.T) {
	cs := newConnectionSet(DefaultConfig())
	p := fakePath{id: "p1", length: 2}
	adopted, err := cs.ConsiderPath(p, func() (Connection, error) {
		return &fakeConn{id: "c1", ready: true, path: p}, nil
	})
	require.NoError(t, err)
	require.True(t, adopted)

	adopted, err = cs.ConsiderPath(p, func() (Connection, error) {
		t.Fatal("newConn should not be called for a duplicate path")
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, adopted)
}

func TestConsiderPathRejectsMuchLongerPathOverCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DesiredConnections = 1
	cs := newConnectionSet(cfg)

	short := fakePath{id: "short", length: 1, desire: 0.1}
	_, err := cs.ConsiderPath(short, func() (Connection, error) {
		return &fakeConn{id: "c-short", ready: true, path: short}, nil
	})
	require.NoError(t, err)

	medium := fakePath{id: "medium", length: 2, desire: 0.9}
	adopted, err := cs.ConsiderPath(medium, func() (Connection, error) {
		return &fakeConn{id: "c-medium", ready: true, path: medium}, nil
	})
	require.NoError(t, err)
	require.True(t, adopted)
	require.Equal(t, 2, cs.Len())

	farTooLong := fakePath{id: "long", length: 10, desire: 1.0}
	adopted, err = cs.ConsiderPath(farTooLong, func() (Connection, error) {
		t.Fatal("newConn should not be called for a rejected path")
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, adopted)
}

func TestMaintenanceTickEvictsLowestThroughputAboveDesiredPlusOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DesiredConnections = 1
	cs := newConnectionSet(cfg)

	cs.AcceptInbound(&fakeConn{id: "a", ready: true})
	cs.AcceptInbound(&fakeConn{id: "b", ready: true})

	// Only DesiredConnections+1 == 2 connections: no eviction yet.
	assert.Nil(t, cs.MaintenanceTick())

	cs.AcceptInbound(&fakeConn{id: "c", ready: true})
	cs.RecordThroughput("a", 1000, time.Second)
	cs.RecordThroughput("b", 10, time.Second)
	cs.RecordThroughput("c", 1000, time.Second)

	evicted := cs.MaintenanceTick()
	require.NotNil(t, evicted)
	assert.Equal(t, "b", evicted.ID())
	assert.Equal(t, 2, cs.Len())
}

func TestDisconnectedRemovesConnection(t *testing.T) {
	cs := newConnectionSet(DefaultConfig())
	cs.AcceptInbound(&fakeConn{id: "a", ready: true})
	cs.Disconnected("a")
	assert.Equal(t, 0, cs.Len())
}
