package tunnel

import (
	"container/list"
	"time"
)

// Path is a route to the destination peer, as enumerated by the
// path-discovery collaborator (§1, out of scope here). Length and
// Desirability are the only properties ConnectionSet's admission
// policy (§4.2) needs; a concrete implementation (pkg/meshconn) scores
// these from multiaddr hop count and a caller-supplied health value.
type Path interface {
	// Length is the path's hop count (shorter is preferred).
	Length() int
	// Desirability is a larger-is-better score supplied by the path
	// layer (e.g. recent delivery reliability); consulted by rule 3
	// when an over-capacity tunnel sees a strictly longer path
	// (§4.2 rule 3).
	Desirability() float64
	// Equal reports whether two paths name the same underlying route.
	Equal(other Path) bool
}

// Connection is the tunnel's view of one underlying routed connection
// (GLOSSARY: Connection). The connection layer owns its lifetime; the
// tunnel holds only this interface, dropped synchronously on
// Disconnected (§5 Shared resources).
type Connection interface {
	// ID uniquely identifies the connection for wire framing and logs.
	ID() string
	// Ready reports the connection-layer readiness predicate.
	Ready() bool
	// Path returns the route this connection was adopted over, or nil
	// for inbound connections whose path is not tracked.
	Path() Path
	// Send hands a ciphertext frame to the connection layer.
	Send(frame []byte) error
}

// connEntry is one Connection-in-tunnel (§3): a handle plus
// bookkeeping metadata. Participation is a weak association — Conn is
// owned by the connection layer.
type connEntry struct {
	Conn       Connection
	CreatedAt  time.Time
	Throughput float64 // decaying bytes/sec estimate, supplemented feature
	el         *list.Element
}

// ConnectionSet is the ordered collection of connections associated
// with one tunnel (§4.2). Order is insertion order (oldest first);
// selection and eviction both break ties oldest-first.
type ConnectionSet struct {
	order *list.List // of *connEntry, oldest at Front
	byID  map[string]*connEntry
	cfg   Config
}

func newConnectionSet(cfg Config) *ConnectionSet {
	return &ConnectionSet{
		order: list.New(),
		byID:  make(map[string]*connEntry),
		cfg:   cfg,
	}
}

// Len reports the number of adopted connections.
func (cs *ConnectionSet) Len() int { return cs.order.Len() }

// shortestLength returns the hop length of the shortest adopted path,
// or -1 if no connection carries path information.
func (cs *ConnectionSet) shortestLength() int {
	best := -1
	for el := cs.order.Front(); el != nil; el = el.Next() {
		p := el.Value.(*connEntry).Conn.Path()
		if p == nil {
			continue
		}
		if best == -1 || p.Length() < best {
			best = p.Length()
		}
	}
	return best
}

// mostDesirable returns the highest Desirability() among adopted
// connections with path information, or -1 if none have one.
func (cs *ConnectionSet) mostDesirable() float64 {
	best := -1.0
	found := false
	for el := cs.order.Front(); el != nil; el = el.Next() {
		p := el.Value.(*connEntry).Conn.Path()
		if p == nil {
			continue
		}
		if !found || p.Desirability() > best {
			best = p.Desirability()
			found = true
		}
	}
	if !found {
		return -1
	}
	return best
}

// ConsiderPath implements consider_path (§4.2): may adopt path as a
// new connection over newConn. Paths are expected to be presented in
// increasing length by the caller (path discovery), but the rules
// below do not depend on that ordering holding strictly.
func (cs *ConnectionSet) ConsiderPath(path Path, newConn func() (Connection, error)) (bool, error) {
	// Rule 1: reject if an existing connection already uses this path.
	for el := cs.order.Front(); el != nil; el = el.Next() {
		p := el.Value.(*connEntry).Conn.Path()
		if p != nil && path.Equal(p) {
			return false, nil
		}
	}

	n := cs.Len()
	shortest := cs.shortestLength()

	// Rule 2: too many connections and this path is a lot longer.
	if n > cs.cfg.DesiredConnections && shortest >= 0 && path.Length() > 2*shortest {
		return false, nil
	}

	// Rule 3: at capacity, and this path is both strictly longer and
	// strictly less desirable than what we already have. An
	// equal-length or equally-desirable candidate still gets adopted —
	// only a path that loses on both counts is rejected here.
	if n >= cs.cfg.DesiredConnections && shortest >= 0 && path.Length() > shortest {
		if path.Desirability() < cs.mostDesirable() {
			return false, nil
		}
	}

	conn, err := newConn()
	if err != nil {
		return false, err
	}
	cs.adopt(conn)
	return true, nil
}

// AcceptInbound implements accept_inbound (§4.2): always adopts; the
// caller has already authorized the inbound connection.
func (cs *ConnectionSet) AcceptInbound(conn Connection) {
	cs.adopt(conn)
}

func (cs *ConnectionSet) adopt(conn Connection) {
	e := &connEntry{Conn: conn, CreatedAt: time.Now()}
	e.el = cs.order.PushBack(e)
	cs.byID[conn.ID()] = e
}

// PickReady implements pick_ready (§4.2): the first connection in set
// order whose readiness predicate holds, or nil.
func (cs *ConnectionSet) PickReady() Connection {
	for el := cs.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*connEntry)
		if e.Conn.Ready() {
			return e.Conn
		}
	}
	return nil
}

// RecordThroughput updates the decaying throughput estimate for conn
// after a successful dispatch through it (supplemented feature,
// SPEC_FULL.md "Per-connection throughput accounting").
func (cs *ConnectionSet) RecordThroughput(id string, bytesSent int, elapsed time.Duration) {
	e, ok := cs.byID[id]
	if !ok || elapsed <= 0 {
		return
	}
	const decay = 0.7
	sample := float64(bytesSent) / elapsed.Seconds()
	e.Throughput = decay*e.Throughput + (1-decay)*sample
}

// MaintenanceTick implements maintenance_tick (§4.2): evicts the
// lowest-throughput connection when the set exceeds
// DesiredConnections+1, never evicting the last connection. Resolves
// the §9 FIXME with the spec's conservative policy choice.
func (cs *ConnectionSet) MaintenanceTick() Connection {
	if cs.order.Len() <= cs.cfg.DesiredConnections+1 || cs.order.Len() <= 1 {
		return nil
	}
	var worst *list.Element
	for el := cs.order.Front(); el != nil; el = el.Next() {
		if worst == nil || el.Value.(*connEntry).Throughput < worst.Value.(*connEntry).Throughput {
			worst = el
		}
	}
	if worst == nil {
		return nil
	}
	e := worst.Value.(*connEntry)
	cs.remove(worst)
	return e.Conn
}

// Disconnected implements the ConnectionDisconnected error policy
// (§7): drops conn from the set. If this empties the set, the
// encryption state is untouched; the SendQueue simply waits.
func (cs *ConnectionSet) Disconnected(id string) {
	e, ok := cs.byID[id]
	if !ok {
		return
	}
	cs.remove(e.el)
}

func (cs *ConnectionSet) remove(el *list.Element) {
	e := el.Value.(*connEntry)
	delete(cs.byID, e.Conn.ID())
	cs.order.Remove(el)
}
