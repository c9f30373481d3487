package tunnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	delivered []fakeDelivery
}

type fakeDelivery struct {
	kind    InnerKind
	payload []byte
}

func (c *fakeChannel) Deliver(kind InnerKind, payload []byte) {
	c.delivered = append(c.delivered, fakeDelivery{kind, payload})
}

func TestChannelTableAddAssignsIncreasingNumbers(t *testing.T) {
	tbl := newChannelTable(nil, nil)
	n1 := tbl.Add(&fakeChannel{})
	n2 := tbl.Add(&fakeChannel{})
	assert.NotEqual(t, n1, n2)
	assert.Equal(t, 2, tbl.Len())
}

func TestChannelTableFillAndEmptyCallbacks(t *testing.T) {
	filled := 0
	emptied := 0
	tbl := newChannelTable(func() { emptied++ }, func() { filled++ })

	ch := &fakeChannel{}
	n := tbl.Add(ch)
	assert.Equal(t, 1, filled)
	assert.Equal(t, 0, emptied)

	require.NoError(t, tbl.Remove(n, ch))
	assert.Equal(t, 1, emptied)
}

func TestChannelTableRemoveWrongHandleFails(t *testing.T) {
	tbl := newChannelTable(nil, nil)
	ch := &fakeChannel{}
	n := tbl.Add(ch)

	err := tbl.Remove(n, &fakeChannel{})
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestChannelTableLookup(t *testing.T) {
	tbl := newChannelTable(nil, nil)
	ch := &fakeChannel{}
	n := tbl.Add(ch)

	got, ok := tbl.Lookup(n)
	require.True(t, ok)
	assert.Same(t, ch, got.(*fakeChannel))

	_, ok = tbl.Lookup(n + 1000)
	assert.False(t, ok)
}

func TestChannelTableIterateVisitsAllSlots(t *testing.T) {
	tbl := newChannelTable(nil, nil)
	ch1, ch2 := &fakeChannel{}, &fakeChannel{}
	n1 := tbl.Add(ch1)
	n2 := tbl.Add(ch2)

	seen := make(map[uint32]ChannelHandle)
	tbl.Iterate(func(n uint32, ch ChannelHandle) { seen[n] = ch })

	assert.Len(t, seen, 2)
	assert.Same(t, ch1, seen[n1].(*fakeChannel))
	assert.Same(t, ch2, seen[n2].(*fakeChannel))
}
