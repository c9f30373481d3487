// Package meshconn adapts the libp2p host (the same stack
// pkg/meshstorage uses for its DHT node) into the tunnel package's
// Connection and Path interfaces: one tunnel.Connection per open
// stream, one tunnel.Path per candidate multiaddr route.
package meshconn

import (
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/cadetmesh/tunnel/pkg/tunnel"
)

// MeshPath is a candidate route to a peer: a multiaddr plus the
// relay-hop count recovered from it, plus a caller-supplied health
// score that ConsiderPath's rule 3 compares only when a tunnel at
// capacity sees a strictly longer path (§4.2). Nothing in this package computes
// Health; a caller with an actual reliability signal (e.g. a rolling
// delivery-success rate from ConnectionSet.RecordThroughput) should
// feed it in via NewMeshPath. Callers with no such signal can pass a
// constant and rely on path length alone.
type MeshPath struct {
	Peer   peer.ID
	Addr   multiaddr.Multiaddr
	Hops   int
	Health float64 // 0..1, supplied by the caller
}

// Length implements tunnel.Path.
func (p MeshPath) Length() int { return p.Hops }

// Desirability implements tunnel.Path: the caller-supplied Health,
// returned unscaled.
func (p MeshPath) Desirability() float64 { return p.Health }

// Equal implements tunnel.Path.
func (p MeshPath) Equal(other tunnel.Path) bool {
	o, ok := other.(MeshPath)
	if !ok {
		return false
	}
	return p.Peer == o.Peer && p.Addr.Equal(o.Addr)
}

// hopsFromAddr counts /p2p-circuit occurrences in addr as a cheap
// proxy for relay hop count: a direct address has zero, a
// relayed address has at least one.
func hopsFromAddr(addr multiaddr.Multiaddr) int {
	hops := 0
	for _, p := range addr.Protocols() {
		if p.Code == multiaddr.P_CIRCUIT {
			hops++
		}
	}
	return hops
}

// NewMeshPath builds a MeshPath from a resolved AddrInfo address,
// deriving Hops from the multiaddr's circuit-relay components.
func NewMeshPath(p peer.ID, addr multiaddr.Multiaddr, health float64) MeshPath {
	return MeshPath{Peer: p, Addr: addr, Hops: hopsFromAddr(addr) + 1, Health: health}
}
