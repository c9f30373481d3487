package meshconn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/cadetmesh/tunnel/pkg/tunnel"
)

// TunnelProtocolID is the libp2p stream protocol CADET tunnel frames
// are carried over, analogous to meshstorage's ProtocolID.
const TunnelProtocolID = protocol.ID("/cadet/tunnel/1.0.0")

// StreamConnection adapts one open libp2p stream into a
// tunnel.Connection: every encrypted frame is written as a
// length-prefixed message on the stream, mirroring the
// meshstorage RPCClient's request framing.
type StreamConnection struct {
	id     string
	peer   peer.ID
	path   tunnel.Path
	stream network.Stream

	mu    sync.Mutex
	ready atomic.Bool
}

// Dial opens a fresh stream to p over h and wraps it as a
// tunnel.Connection adopted for path.
func Dial(ctx context.Context, h host.Host, p peer.ID, path tunnel.Path) (*StreamConnection, error) {
	stream, err := h.NewStream(ctx, p, TunnelProtocolID)
	if err != nil {
		return nil, fmt.Errorf("meshconn: open stream: %w", err)
	}
	c := &StreamConnection{
		id:     fmt.Sprintf("%s/%d", p.String(), time.Now().UnixNano()),
		peer:   p,
		path:   path,
		stream: stream,
	}
	c.ready.Store(true)
	return c, nil
}

// Accept wraps an inbound stream handed to the protocol handler
// registered on the host (see SetStreamHandler in Listener).
func Accept(stream network.Stream) *StreamConnection {
	c := &StreamConnection{
		id:     fmt.Sprintf("%s/%d", stream.Conn().RemotePeer().String(), time.Now().UnixNano()),
		peer:   stream.Conn().RemotePeer(),
		stream: stream,
	}
	c.ready.Store(true)
	return c
}

// ID implements tunnel.Connection.
func (c *StreamConnection) ID() string { return c.id }

// Ready implements tunnel.Connection.
func (c *StreamConnection) Ready() bool { return c.ready.Load() }

// Path implements tunnel.Connection.
func (c *StreamConnection) Path() tunnel.Path { return c.path }

// Send implements tunnel.Connection: writes a 4-byte big-endian length
// prefix followed by frame, matching the wire shape tunnel.Frame.Encode
// already produces (a flat byte slice, no internal framing).
func (c *StreamConnection) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lenPrefix [4]byte
	n := len(frame)
	lenPrefix[0] = byte(n >> 24)
	lenPrefix[1] = byte(n >> 16)
	lenPrefix[2] = byte(n >> 8)
	lenPrefix[3] = byte(n)

	if _, err := c.stream.Write(lenPrefix[:]); err != nil {
		c.ready.Store(false)
		return fmt.Errorf("meshconn: write length prefix: %w", err)
	}
	if _, err := c.stream.Write(frame); err != nil {
		c.ready.Store(false)
		return fmt.Errorf("meshconn: write frame: %w", err)
	}
	return nil
}

// ReadFrame blocks for the next length-prefixed frame arriving on the
// stream. Callers run this in their own goroutine per connection and
// feed the result to Tunnel.HandleEncrypted.
func (c *StreamConnection) ReadFrame() ([]byte, error) {
	var lenPrefix [4]byte
	if _, err := readFull(c.stream, lenPrefix[:]); err != nil {
		c.ready.Store(false)
		return nil, err
	}
	n := int(lenPrefix[0])<<24 | int(lenPrefix[1])<<16 | int(lenPrefix[2])<<8 | int(lenPrefix[3])
	buf := make([]byte, n)
	if _, err := readFull(c.stream, buf); err != nil {
		c.ready.Store(false)
		return nil, err
	}
	return buf, nil
}

func readFull(s network.Stream, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := s.Read(buf[read:])
		read += n
		if err != nil {
			return read, err
		}
	}
	return read, nil
}

// Close terminates the underlying stream and marks the connection not
// ready; the owning Tunnel learns of this through OnDisconnected.
func (c *StreamConnection) Close() error {
	c.ready.Store(false)
	return c.stream.Close()
}

// PeerID exposes the libp2p peer identity for callers outside the
// tunnel.Connection interface (e.g. logging, metrics labels).
func (c *StreamConnection) PeerID() peer.ID { return c.peer }
