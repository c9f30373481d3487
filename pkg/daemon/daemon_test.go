package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

// newLoopbackDaemon starts a Daemon bound to an ephemeral loopback
// port, suitable for connecting a pair of daemons within a test.
func newLoopbackDaemon(t *testing.T) *Daemon {
	t.Helper()
	d, err := New(Config{ListenAddr: "/ip4/127.0.0.1/tcp/0"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// TestConnectDialsAndAdoptsOutboundConnection exercises the outbound
// initiation flow (§2 "Outbound: ... Tunnel.create ... initiate path
// discovery"): Connect must dial the peer over the tunnel protocol,
// the dialer's Tunnel must adopt the resulting connection, and the
// listener on the accepting side must adopt the inbound half.
func TestConnectDialsAndAdoptsOutboundConnection(t *testing.T) {
	a := newLoopbackDaemon(t)
	b := newLoopbackDaemon(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// b must know about a tunnel for a before a's inbound stream
	// arrives (handleStream rejects streams with no matching tunnel);
	// a real deployment populates this via the out-of-scope routing
	// layer (§1) before a peer is ever dialed.
	b.TunnelFor(a.Host.ID())

	require.NoError(t, a.Host.Connect(ctx, peer.AddrInfo{ID: b.Host.ID(), Addrs: b.Host.Addrs()}))

	tun, err := a.Connect(ctx, b.Host.ID())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tun.Snapshot().Connections == 1
	}, 5*time.Second, 20*time.Millisecond, "dialer never adopted the outbound connection")

	require.Eventually(t, func() bool {
		return b.TunnelFor(a.Host.ID()).Snapshot().Connections == 1
	}, 5*time.Second, 20*time.Millisecond, "acceptor never adopted the inbound connection")
}

// TestSendDialsUnknownPeerOnFirstUse exercises daemon.Send's lazy-dial
// path: a Send to a peer with no existing connections must trigger
// Connect before handing off to the tunnel, rather than failing with
// "no ready connection" forever.
func TestSendDialsUnknownPeerOnFirstUse(t *testing.T) {
	a := newLoopbackDaemon(t)
	b := newLoopbackDaemon(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b.TunnelFor(a.Host.ID())
	require.NoError(t, a.Host.Connect(ctx, peer.AddrInfo{ID: b.Host.ID(), Addrs: b.Host.Addrs()}))

	require.Eventually(t, func() bool {
		_, err := a.Send(ctx, b.Host.ID(), 0, []byte("hi"), nil)
		// Encryption is not established in this test (KX is out of
		// scope, §1) so Send itself still errors; what matters is that
		// a connection got adopted as a side effect instead of Send
		// silently queuing against a peer nobody ever dialed.
		_ = err
		return a.TunnelFor(b.Host.ID()).Snapshot().Connections == 1
	}, 5*time.Second, 20*time.Millisecond, "Send never triggered an outbound dial")
}
