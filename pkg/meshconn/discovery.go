package meshconn

import (
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/cadetmesh/tunnel/pkg/tunnel"
)

// PeerstoreDiscovery implements tunnel.PathDiscovery over one target
// peer's addresses as known to the libp2p host's peerstore (populated
// by identify, DHT lookups, or an explicit AddAddrs call before
// Connect runs). It is scoped to a single peer per instance, created
// fresh for each Tunnel.Create call.
type PeerstoreDiscovery struct {
	host host.Host
	peer peer.ID
}

// NewPeerstoreDiscovery builds a discovery collaborator that iterates
// p's known addresses on h's peerstore.
func NewPeerstoreDiscovery(h host.Host, p peer.ID) *PeerstoreDiscovery {
	return &PeerstoreDiscovery{host: h, peer: p}
}

// IteratePaths implements tunnel.PathDiscovery: offers one MeshPath
// per known address, shortest-hop-count first, to consider. The
// tunnel.PeerID argument is ignored — this discovery instance is
// already bound to a concrete libp2p peer.ID at construction, since
// that is the identity Dial needs and the tunnel-level PeerID (§3) is
// a lossy truncation of it (daemon.TunnelFor).
func (d *PeerstoreDiscovery) IteratePaths(_ tunnel.PeerID, consider func(tunnel.Path) (bool, error)) {
	addrs := d.host.Peerstore().Addrs(d.peer)
	paths := make([]MeshPath, 0, len(addrs))
	for _, a := range addrs {
		paths = append(paths, NewMeshPath(d.peer, a, 1.0))
	}
	sortByHops(paths)
	for _, p := range paths {
		if _, err := consider(p); err != nil {
			return
		}
	}
}

// sortByHops orders paths shortest-first (§4.2 "Paths are expected to
// be presented in increasing length by the caller"), insertion sort
// since the candidate set per peer is small.
func sortByHops(paths []MeshPath) {
	for i := 1; i < len(paths); i++ {
		for j := i; j > 0 && paths[j].Hops < paths[j-1].Hops; j-- {
			paths[j], paths[j-1] = paths[j-1], paths[j]
		}
	}
}
