package meshconn

import (
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"go.uber.org/zap"

	"github.com/cadetmesh/tunnel/pkg/tunnel"
)

// Listener registers the tunnel stream protocol on a libp2p host and
// feeds inbound connections and frames to a Tunnel, mirroring
// meshstorage's RPCHandler.SetupStreamHandler wiring.
type Listener struct {
	host host.Host
	log  *zap.Logger

	// lookup resolves the peer a newly accepted stream belongs to, to
	// the Tunnel that owns it. One Listener serves every tunnel on the
	// host; the lookup function passed to NewListener decides which.
	lookup func(peerKey string) *tunnel.Tunnel
}

// NewListener registers TunnelProtocolID on h. lookup must return the
// Tunnel responsible for an inbound stream's remote peer, or nil to
// reject it.
func NewListener(h host.Host, logger *zap.Logger, lookup func(peerKey string) *tunnel.Tunnel) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Listener{host: h, log: logger, lookup: lookup}
	h.SetStreamHandler(TunnelProtocolID, l.handleStream)
	return l
}

func (l *Listener) handleStream(stream network.Stream) {
	remote := stream.Conn().RemotePeer().String()
	t := l.lookup(remote)
	if t == nil {
		l.log.Debug("rejected inbound stream: no tunnel for peer", zap.String("peer", remote))
		stream.Reset()
		return
	}

	conn := Accept(stream)
	t.AcceptInbound(conn)
	go l.readLoop(t, conn)
}

// readLoop pumps frames from conn into the tunnel until the stream
// closes, then reports the disconnection.
func (l *Listener) readLoop(t *tunnel.Tunnel, conn *StreamConnection) {
	defer t.OnDisconnected(conn.ID())
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			l.log.Debug("stream closed", zap.String("conn", conn.ID()), zap.Error(err))
			return
		}
		t.HandleEncrypted(conn.ID(), frame)
	}
}

// PumpOutbound starts the read loop for a connection the caller
// dialed itself (Dial does not start one automatically, since the
// dialer may want to confirm readiness before handing control to the
// tunnel).
func PumpOutbound(l *Listener, t *tunnel.Tunnel, conn *StreamConnection) {
	go l.readLoop(t, conn)
}
