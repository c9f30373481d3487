package tunnel

// ChannelHandle is opaque to the tunnel (§3 Channel-slot); it is
// provided by the channel layer (pkg/channel) and never dereferenced
// here beyond what the dispatch contract in §6.3 requires.
type ChannelHandle interface {
	// Deliver routes one decrypted, typed inner message to the
	// channel. The tunnel never inspects the channel's own state.
	Deliver(kind InnerKind, payload []byte)
}

// ChannelTable assigns unique 32-bit channel numbers within a tunnel
// and maps inbound messages to channel handles (§4.4). It is the
// authoritative owner of channel-number assignment.
type ChannelTable struct {
	slots   map[uint32]ChannelHandle
	next    uint32
	onEmpty func()
	onFill  func()
}

func newChannelTable(onEmpty, onFill func()) *ChannelTable {
	return &ChannelTable{
		slots:   make(map[uint32]ChannelHandle),
		onEmpty: onEmpty,
		onFill:  onFill,
	}
}

// Add implements add(channel) -> channel_number (§4.4): linear probe
// from next for a free slot, with wraparound. Collisions are
// impossible because Add is the only inserter and it probes for
// emptiness.
func (t *ChannelTable) Add(ch ChannelHandle) uint32 {
	wasEmpty := len(t.slots) == 0

	n := t.next
	for {
		if _, taken := t.slots[n]; !taken {
			break
		}
		n++
	}
	t.slots[n] = ch
	t.next = n + 1

	if wasEmpty && t.onFill != nil {
		t.onFill()
	}
	return n
}

// Remove implements remove(channel_number, channel) (§4.4): asserts
// membership; arms idle-destroy on transition to empty (I6).
func (t *ChannelTable) Remove(n uint32, ch ChannelHandle) error {
	existing, ok := t.slots[n]
	if !ok || existing != ch {
		return ErrChannelNotFound
	}
	delete(t.slots, n)
	if len(t.slots) == 0 && t.onEmpty != nil {
		t.onEmpty()
	}
	return nil
}

// Iterate implements iterate(visitor) (§4.4): unspecified order.
func (t *ChannelTable) Iterate(visit func(n uint32, ch ChannelHandle)) {
	for n, ch := range t.slots {
		visit(n, ch)
	}
}

// Len reports the number of live channel slots.
func (t *ChannelTable) Len() int { return len(t.slots) }

// Lookup returns the channel handle bound to n, if any.
func (t *ChannelTable) Lookup(n uint32) (ChannelHandle, bool) {
	ch, ok := t.slots[n]
	return ch, ok
}
