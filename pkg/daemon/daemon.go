// Package daemon wires a libp2p host, the tunnel registry, and the
// debug HTTP surface together into one long-running process, the
// cadetd equivalent of meshstorage's DHTNode + RPCHandler pairing.
package daemon

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"github.com/cadetmesh/tunnel/pkg/meshconn"
	"github.com/cadetmesh/tunnel/pkg/tunnel"
)

// Config holds runtime wiring options for building a Daemon.
type Config struct {
	ListenAddr string // e.g. "/ip4/0.0.0.0/tcp/4001"
	Tunnel     tunnel.Config
}

// Daemon bundles the host, the live tunnel registry, and the listener
// that feeds inbound streams to the right tunnel.
type Daemon struct {
	Host host.Host
	Log  *zap.Logger

	cfg Config

	mu      sync.RWMutex
	tunnels map[peer.ID]*tunnel.Tunnel

	listener *meshconn.Listener
}

// New builds a Daemon: generates a libp2p identity, opens the host,
// and registers the tunnel stream handler.
func New(cfg Config, logger *zap.Logger) (*Daemon, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("daemon: generate identity: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(cfg.ListenAddr),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
		libp2p.NATPortMap(),
		libp2p.EnableNATService(),
	)
	if err != nil {
		return nil, fmt.Errorf("daemon: create libp2p host: %w", err)
	}

	d := &Daemon{
		Host:    h,
		Log:     logger,
		cfg:     cfg,
		tunnels: make(map[peer.ID]*tunnel.Tunnel),
	}
	d.listener = meshconn.NewListener(h, logger, d.lookupByKey)
	return d, nil
}

func (d *Daemon) lookupByKey(peerKey string) *tunnel.Tunnel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for id, t := range d.tunnels {
		if id.String() == peerKey {
			return t
		}
	}
	return nil
}

// TunnelFor returns the tunnel for p, creating one in state NEW if
// none exists yet (via tunnel.New; path discovery, Tunnel.Create, runs
// in Connect).
func (d *Daemon) TunnelFor(p peer.ID) *tunnel.Tunnel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tunnels[p]; ok {
		return t
	}
	var pid tunnel.PeerID
	copy(pid[:], []byte(p))
	t := tunnel.New(pid, d.cfg.Tunnel, d.Log)
	d.tunnels[p] = t
	return t
}

// Connect implements the outbound half of §2 ("initiate path
// discovery") end to end: it asks p's addresses from the host's
// peerstore, offers each to ConsiderPath, and dials over the tunnel
// stream protocol only the paths ConsiderPath accepts. Callers that already hold an
// AddrInfo for p should feed it to d.Host.Peerstore() (or
// d.Host.Connect) first so discovery has something to iterate.
func (d *Daemon) Connect(ctx context.Context, p peer.ID) (*tunnel.Tunnel, error) {
	t := d.TunnelFor(p)
	discovery := meshconn.NewPeerstoreDiscovery(d.Host, p)
	dial := func(path tunnel.Path) (tunnel.Connection, error) {
		conn, err := meshconn.Dial(ctx, d.Host, p, path)
		if err != nil {
			return nil, err
		}
		meshconn.PumpOutbound(d.listener, t, conn)
		return conn, nil
	}
	t.Create(discovery, dial)
	return t, nil
}

// Send implements §4.3/§4.5 send(msg, cont) at the daemon level: it
// lazily dials p on the first send to a peer the tunnel has no
// connections for yet (§2 "Outbound"), then hands msg to the tunnel's
// send queue.
func (d *Daemon) Send(ctx context.Context, p peer.ID, channel uint32, msg []byte, cont func(err error)) (tunnel.Handle, error) {
	t := d.TunnelFor(p)
	if t.Snapshot().Connections == 0 {
		if _, err := d.Connect(ctx, p); err != nil {
			return tunnel.Handle{}, fmt.Errorf("daemon: connect to peer: %w", err)
		}
	}
	return t.Send(channel, msg, cont)
}

// Tunnels returns a snapshot of every live tunnel, keyed by peer
// string, for the debug route.
func (d *Daemon) Tunnels() map[string]*tunnel.Tunnel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]*tunnel.Tunnel, len(d.tunnels))
	for id, t := range d.tunnels {
		out[id.String()] = t
	}
	return out
}

// Close shuts down the libp2p host.
func (d *Daemon) Close() error {
	return d.Host.Close()
}

// Addrs returns the host's listen multiaddrs as strings, for startup
// logging.
func (d *Daemon) Addrs() []string {
	out := make([]string, 0, len(d.Host.Addrs()))
	for _, a := range d.Host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, d.Host.ID()))
	}
	return out
}
