// Package channel provides a minimal channel-handle implementation
// for the CADET tunnel's ChannelTable: one Channel per logical stream
// multiplexed over a tunnel, delivering ordered application data and
// forwarding acks/destroy notices to the owning application.
package channel

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cadetmesh/tunnel/pkg/tunnel"
)

// DataHandler receives application payloads delivered on a channel, in
// the order the tunnel's dispatcher handed them over (§6.3 makes no
// ordering guarantee across channels, but within one channel delivery
// is call-order, matching the Axolotl receive order).
type DataHandler func(payload []byte)

// Channel is one multiplexed logical stream inside a Tunnel. It
// implements tunnel.ChannelHandle.
type Channel struct {
	mu      sync.Mutex
	number  uint32
	bound   bool
	tunnel  *Tunnel
	onData  DataHandler
	onAck   func(payload []byte)
	onClose func()
	log     *zap.Logger
}

// Tunnel is the subset of *tunnel.Tunnel a Channel needs, kept as an
// interface so tests can substitute a fake without pulling in the
// full orchestrator.
type Tunnel interface {
	Send(channel uint32, msg []byte, cont func(err error)) (tunnel.Handle, error)
	RemoveChannel(n uint32, ch tunnel.ChannelHandle) error
}

// New creates an unbound Channel; call Open to register it with t and
// obtain a channel number.
func New(onData DataHandler, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{onData: onData, log: logger}
}

// Open binds the channel to t and records its assigned number. It does
// not call AddChannel itself: the caller invokes t.AddChannel
// (tunnel.Tunnel, not the Tunnel interface above, owns number
// assignment) and passes the result here.
func (c *Channel) Open(t Tunnel, number uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tunnel = t
	c.number = number
	c.bound = true
}

// Number returns the channel's assigned slot, or false if unopened.
func (c *Channel) Number() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.number, c.bound
}

// OnAck installs a callback invoked for InnerChannelDataAck deliveries.
func (c *Channel) OnAck(fn func(payload []byte)) { c.onAck = fn }

// OnClose installs a callback invoked when the peer sends
// InnerChannelDestroy.
func (c *Channel) OnClose(fn func()) { c.onClose = fn }

// Send frames payload as application data and hands it to the tunnel's
// send queue.
func (c *Channel) Send(payload []byte, cont func(err error)) (tunnel.Handle, error) {
	c.mu.Lock()
	num, bound, t := c.number, c.bound, c.tunnel
	c.mu.Unlock()
	if !bound {
		return tunnel.Handle{}, fmt.Errorf("channel: not opened")
	}
	return t.Send(num, payload, cont)
}

// Close removes the channel from its tunnel (§4.4 remove).
func (c *Channel) Close() error {
	c.mu.Lock()
	num, bound, t := c.number, c.bound, c.tunnel
	c.bound = false
	c.mu.Unlock()
	if !bound {
		return nil
	}
	return t.RemoveChannel(num, c)
}

// Deliver implements tunnel.ChannelHandle: routes one decrypted inner
// message to the registered handler for its kind.
func (c *Channel) Deliver(kind tunnel.InnerKind, payload []byte) {
	switch kind {
	case tunnel.InnerChannelData:
		if c.onData != nil {
			c.onData(payload)
		}
	case tunnel.InnerChannelDataAck:
		if c.onAck != nil {
			c.onAck(payload)
		}
	case tunnel.InnerChannelDestroy:
		if c.onClose != nil {
			c.onClose()
		}
	default:
		c.log.Debug("channel dropped inner kind with no handler", zap.Uint8("kind", uint8(kind)))
	}
}
