package tunnel

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ConnectivityState is the tunnel's connectivity lifecycle (§3).
type ConnectivityState int

const (
	StateNew ConnectivityState = iota
	StateSearching
	StateWaiting
	StateReady
	StateShutdown
)

func (s ConnectivityState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSearching:
		return "SEARCHING"
	case StateWaiting:
		return "WAITING"
	case StateReady:
		return "READY"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// EncryptionState is the encryption-state machine (§4.1 "Encryption
// state machine"): UNINITIALIZED -> SENT -> PING -> OK <-> REKEY.
type EncryptionState int

const (
	EncUninitialized EncryptionState = iota
	EncSent
	EncPing
	EncOK
	EncRekey
)

func (s EncryptionState) String() string {
	switch s {
	case EncUninitialized:
		return "UNINITIALIZED"
	case EncSent:
		return "SENT"
	case EncPing:
		return "PING"
	case EncOK:
		return "OK"
	case EncRekey:
		return "REKEY"
	default:
		return "UNKNOWN"
	}
}

// PeerID is the destination peer's opaque identifier (§3).
type PeerID [32]byte

// KXMessage is the KX boundary stub (§1, §4.5, §9): the detailed
// key-agreement framing is left to a future KX specification. Kind
// lets handle_kx drive the encryption-state machine without parsing
// cryptographic content.
type KXMessage struct {
	Kind KXKind
	Raw  []byte
}

// KXKind distinguishes the KX messages the state machine reacts to.
type KXKind int

const (
	KXInitial KXKind = iota
	KXResponse
	KXRekeyInitiate
	KXRekeyAck
)

// PathDiscovery is the out-of-scope path-discovery collaborator (§1):
// asked once at tunnel creation to iterate known paths against
// ConsiderPath.
type PathDiscovery interface {
	IteratePaths(peer PeerID, consider func(Path) (adopted bool, err error))
}

// metrics is the statistics write-only sink (§9), backed by
// prometheus counters (SPEC_FULL.md DOMAIN STACK).
type metrics struct {
	macMismatch   prometheus.Counter
	gapExceeded   prometheus.Counter
	protoWarnings prometheus.Counter
	unknownInner  prometheus.Counter
}

func newMetrics(peer PeerID) *metrics {
	labels := prometheus.Labels{"peer": fmt.Sprintf("%x", peer[:8])}
	return &metrics{
		macMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cadet_tunnel_mac_mismatch_total",
			Help:        "Frames dropped for failing authentication under every available key.",
			ConstLabels: labels,
		}),
		gapExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cadet_tunnel_gap_exceeded_total",
			Help:        "Frames dropped for advertising a message number beyond MaxKeyGap.",
			ConstLabels: labels,
		}),
		protoWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cadet_tunnel_protocol_warnings_total",
			Help:        "Protocol-warning events raised once encryption state reaches PING or above.",
			ConstLabels: labels,
		}),
		unknownInner: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cadet_tunnel_unknown_inner_total",
			Help:        "Decrypted frames whose inner type the dispatcher does not recognize.",
			ConstLabels: labels,
		}),
	}
}

// Tunnel is the top-level orchestrator (§4.5). All mutation happens on
// a single goroutine (run), giving the total ordering §5 requires
// without locks — the idiomatic Go rendering of the spec's
// single-threaded cooperative scheduler.
type Tunnel struct {
	Peer PeerID

	connectivity ConnectivityState
	encryption   EncryptionState

	ax       *State
	conns    *ConnectionSet
	queue    *SendQueue
	channels *ChannelTable

	cfg    Config
	log    *zap.Logger
	metric *metrics

	idleTimer   *time.Timer
	maintTicker *time.Ticker
	rekeyTimer  *time.Timer

	onChannelOpen func(channel uint32, payload []byte) ChannelHandle

	events  chan tunnelRequest
	stopCh  chan struct{}
	stopped bool
}

type tunnelRequest struct {
	fn   func()
	done chan struct{}
}

// New creates a tunnel for destination in connectivity state NEW and
// encryption state UNINITIALIZED, with no Axolotl state. HandleKX's
// install callback supplies one (built with NewInitiatorState or
// NewResponderState) once the out-of-scope KX exchange has established
// SK and header keys. Path discovery is started separately by Create.
func New(peer PeerID, cfg Config, logger *zap.Logger) *Tunnel {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tunnel{
		Peer:         peer,
		connectivity: StateNew,
		encryption:   EncUninitialized,
		conns:        newConnectionSet(cfg),
		cfg:          cfg,
		log:          logger.With(zap.String("peer", fmt.Sprintf("%x", peer[:8]))),
		metric:       newMetrics(peer),
		events:       make(chan tunnelRequest, 64),
		stopCh:       make(chan struct{}),
	}
	t.queue = newSendQueue(t.conns)
	t.channels = newChannelTable(t.armIdleDestroy, t.disarmIdleDestroy)
	t.maintTicker = time.NewTicker(cfg.MaintenanceInterval)
	go t.run()
	return t
}

// Create implements §4.5 "create": initiates path discovery by asking
// the peer layer to iterate known paths with ConsiderPath. Connections
// adopted this way are dial-side and already Ready (meshconn.Dial
// returns only once the stream is open), so reaching at least one
// connection moves straight to READY and wakes the send queue rather
// than waiting for a separate OnConnectionReady call — that call would
// re-enter do() from inside this closure and deadlock the actor
// goroutine against itself.
func (t *Tunnel) Create(discovery PathDiscovery, dial func(Path) (Connection, error)) {
	t.do(func() {
		t.connectivity = StateSearching
		discovery.IteratePaths(t.Peer, func(p Path) (bool, error) {
			return t.conns.ConsiderPath(p, func() (Connection, error) { return dial(p) })
		})
		if t.conns.Len() > 0 {
			t.connectivity = StateReady
			t.queue.OnConnectionReady()
		} else {
			t.connectivity = StateWaiting
		}
	})
}

// do runs fn on the actor goroutine and blocks until it returns. It
// reports false, without running fn, if the tunnel has already shut
// down — callers with an error return surface this as
// ErrTunnelShutdown.
func (t *Tunnel) do(fn func()) bool {
	if t.stopped {
		return false
	}
	done := make(chan struct{})
	select {
	case t.events <- tunnelRequest{fn: fn, done: done}:
		<-done
		return true
	case <-t.stopCh:
		return false
	}
}

func (t *Tunnel) run() {
	for {
		select {
		case req := <-t.events:
			req.fn()
			close(req.done)
		case <-t.maintTicker.C:
			t.runMaintenance()
		case <-t.idleTimerFired():
			t.runIdleDestroy()
		case <-t.rekeyTimerFired():
			t.runRekeyTimeout()
		case <-t.stopCh:
			t.maintTicker.Stop()
			if t.idleTimer != nil {
				t.idleTimer.Stop()
			}
			if t.rekeyTimer != nil {
				t.rekeyTimer.Stop()
			}
			return
		}
	}
}

// idleTimerFired returns the idle timer's channel, or a nil channel
// (never fires) when the timer is disarmed.
func (t *Tunnel) idleTimerFired() <-chan time.Time {
	if t.idleTimer == nil {
		return nil
	}
	return t.idleTimer.C
}

// rekeyTimerFired returns the rekey timer's channel, or a nil channel
// (never fires) when the timer is disarmed.
func (t *Tunnel) rekeyTimerFired() <-chan time.Time {
	if t.rekeyTimer == nil {
		return nil
	}
	return t.rekeyTimer.C
}

// armRekeyTimer implements §5 "Rekey timer: ... cancelled on
// transition to OK" the other direction: (re)armed every time the
// machine enters OK, so a freshly-established or freshly-rekeyed
// tunnel always gets a full interval before the next rekey.
func (t *Tunnel) armRekeyTimer() {
	if t.rekeyTimer == nil {
		t.rekeyTimer = time.NewTimer(t.cfg.RekeyInterval)
		return
	}
	t.rekeyTimer.Reset(t.cfg.RekeyInterval)
}

// disarmRekeyTimer stops the rekey timer without draining its
// channel. t.rekeyTimer stays non-nil; a stopped timer delivers no
// further value on its channel (Go 1.23+ timer semantics), and
// runRekeyTimeout ignores any firing that arrives outside OK.
func (t *Tunnel) disarmRekeyTimer() {
	if t.rekeyTimer != nil {
		t.rekeyTimer.Stop()
	}
}

// runRekeyTimeout implements §4.1 "Rekey timer expiry from OK: ->
// REKEY, queue a rekey-initiating frame". A timer firing while the
// machine is no longer in OK (e.g. it already moved to REKEY via an
// inbound KXRekeyInitiate) is stale and ignored.
func (t *Tunnel) runRekeyTimeout() {
	if t.encryption != EncOK {
		return
	}
	t.enterRekey()
	t.queueRekeyFrame()
}

// queueRekeyFrame encrypts and enqueues a zero-payload
// InnerKXRekeyInitiate frame so the peer's encryption state machine
// follows ours into REKEY (§4.1).
func (t *Tunnel) queueRekeyFrame() {
	if t.ax == nil {
		return
	}
	inner := encodeInner(InnerKXRekeyInitiate, 0, nil)
	frame, err := t.ax.Encrypt(inner)
	if err != nil {
		t.log.Warn("rekey: encrypt rekey-initiate frame", zap.Error(err))
		return
	}
	t.queue.Send(frame, nil)
}

func (t *Tunnel) runMaintenance() {
	if evicted := t.conns.MaintenanceTick(); evicted != nil {
		t.log.Debug("evicted low-throughput connection", zap.String("conn", evicted.ID()))
	}
}

// armIdleDestroy implements I6: ChannelTable empty -> idle-destroy
// armed. Invoked synchronously from ChannelTable.Remove, which only
// ever runs inside the actor goroutine.
func (t *Tunnel) armIdleDestroy() {
	if t.idleTimer == nil {
		t.idleTimer = time.NewTimer(t.cfg.IdleDestroyDelay)
		return
	}
	t.idleTimer.Reset(t.cfg.IdleDestroyDelay)
}

// disarmIdleDestroy implements I6: ChannelTable non-empty ->
// idle-destroy disarmed.
func (t *Tunnel) disarmIdleDestroy() {
	if t.idleTimer != nil {
		t.idleTimer.Stop()
	}
}

func (t *Tunnel) runIdleDestroy() {
	if t.channels.Len() > 0 {
		// A channel was added in the race between the timer firing and
		// this handler running; the scheduler serializes us after any
		// concurrently enqueued AddChannel, so re-check and bail.
		return
	}
	t.shutdown()
}

func (t *Tunnel) shutdown() {
	t.connectivity = StateShutdown
	if t.ax != nil {
		t.ax.Wipe()
	}
	t.stopped = true
	close(t.stopCh)
}

// Shutdown destroys the tunnel immediately (peer-layer initiated
// teardown, §3 Lifecycles).
func (t *Tunnel) Shutdown() {
	t.do(t.shutdown)
}

// AddChannel implements add_channel (§4.5): disarms idle-destroy,
// delegates to ChannelTable.
func (t *Tunnel) AddChannel(ch ChannelHandle) (n uint32) {
	t.do(func() { n = t.channels.Add(ch) })
	return n
}

// RemoveChannel implements remove_channel (§4.5).
func (t *Tunnel) RemoveChannel(n uint32, ch ChannelHandle) (err error) {
	if !t.do(func() { err = t.channels.Remove(n, ch) }) {
		return ErrTunnelShutdown
	}
	return err
}

// Send implements send(msg, cont) (§4.3, §4.5): encrypts msg through
// AxolotlState, enqueues it, and returns its handle.
func (t *Tunnel) Send(channel uint32, msg []byte, cont func(err error)) (h Handle, err error) {
	if !t.do(func() {
		if t.ax == nil {
			err = fmt.Errorf("tunnel: encryption not yet established")
			return
		}
		inner := encodeInner(InnerChannelData, channel, msg)
		frame, ferr := t.ax.Encrypt(inner)
		if ferr != nil {
			err = ferr
			return
		}
		h = t.queue.Send(frame, cont)
	}) {
		return Handle{}, ErrTunnelShutdown
	}
	return h, err
}

// Cancel implements cancel(handle) (§4.3).
func (t *Tunnel) Cancel(h Handle) (err error) {
	if !t.do(func() { err = t.queue.Cancel(h) }) {
		return ErrTunnelShutdown
	}
	return err
}

// OnConnectionReady implements ready(connection) (§6.2): the
// connection layer signals readiness; dispatch is triggered.
func (t *Tunnel) OnConnectionReady() {
	t.do(func() {
		t.queue.OnConnectionReady()
		if t.connectivity == StateWaiting || t.connectivity == StateSearching {
			t.connectivity = StateReady
		}
	})
}

// OnDisconnected implements disconnected(connection) (§6.2, §7
// ConnectionDisconnected): drops the connection from the set
// synchronously, per §5's weak-association contract.
func (t *Tunnel) OnDisconnected(connID string) {
	t.do(func() {
		t.conns.Disconnected(connID)
		if t.conns.Len() == 0 && t.connectivity == StateReady {
			t.connectivity = StateWaiting
		}
	})
}

// ConsiderPath implements consider_path for callers outside Create's
// initial discovery sweep (e.g. a later path-discovery refresh).
func (t *Tunnel) ConsiderPath(path Path, dial func(Path) (Connection, error)) (adopted bool, err error) {
	if !t.do(func() {
		adopted, err = t.conns.ConsiderPath(path, func() (Connection, error) { return dial(path) })
	}) {
		return false, ErrTunnelShutdown
	}
	return adopted, err
}

// AcceptInbound implements accept_inbound (§4.2).
func (t *Tunnel) AcceptInbound(conn Connection) {
	t.do(func() { t.conns.AcceptInbound(conn) })
}

// HandleEncrypted implements handle_encrypted(connection, frame)
// (§4.5): decrypts, raises encryption state to OK on success, tokenizes
// the plaintext, and dispatches each inner message. Errors are handled
// per the §7 taxonomy: no error here is fatal to the tunnel.
func (t *Tunnel) HandleEncrypted(connID string, wire []byte) {
	t.do(func() {
		frame, err := DecodeFrame(wire)
		if err != nil {
			t.log.Debug("corrupt frame", zap.String("conn", connID), zap.Error(err))
			return
		}
		if t.ax == nil {
			return
		}
		plaintext, err := t.ax.Decrypt(frame)
		if err != nil {
			t.handleDecryptError(err)
			return
		}

		t.raiseEncryptionState(EncOK)

		msgs, err := tokenize(plaintext)
		if err != nil {
			t.log.Warn("malformed inner framing", zap.String("conn", connID), zap.Error(err))
			return
		}
		for _, m := range msgs {
			t.dispatchInner(m)
		}
	})
}

func (t *Tunnel) handleDecryptError(err error) {
	switch err {
	case ErrGapExceeded:
		t.metric.gapExceeded.Inc()
		t.log.Warn("protocol warning: gap exceeded")
		if t.cfg.ReKXOnGapExceeded {
			// Optional per §9 TODO; KX re-initiation is out of scope
			// for this package and left to the KX layer to observe via
			// the raised counter.
			t.log.Info("gap exceeded; fresh KX recommended")
		}
	default:
		t.metric.macMismatch.Inc()
		if t.encryption >= EncPing {
			t.metric.protoWarnings.Inc()
			t.log.Warn("unable to decrypt frame", zap.Error(err))
		}
	}
}

// dispatchInner routes one tokenized inner message to its channel
// (§6.3). channel-open creates a new channel slot; all other kinds
// require an existing one.
func (t *Tunnel) dispatchInner(m innerMessage) {
	switch m.Kind {
	case InnerKeepalive:
		return
	case InnerKXRekeyInitiate:
		// The peer's rekey timer fired; follow it into REKEY so both
		// sides expect a fresh KX handshake (§4.1).
		t.raiseEncryptionState(EncRekey)
		return
	case InnerChannelOpen:
		// The channel layer (out of scope, §1) is responsible for
		// constructing the handle, through the factory installed with
		// SetChannelOpenHandler; the tunnel adds the returned handle
		// with ChannelTable.Add, which assigns the next free local
		// number (not necessarily the one the open message carried).
		if t.onChannelOpen != nil {
			ch := t.onChannelOpen(m.Channel, m.Payload)
			if ch != nil {
				t.channels.Add(ch)
			}
		}
		return
	case InnerChannelData, InnerChannelDataAck, InnerChannelOpenAck, InnerChannelOpenNack, InnerChannelDestroy:
		ch, ok := t.channels.Lookup(m.Channel)
		if !ok {
			return
		}
		ch.Deliver(m.Kind, m.Payload)
	default:
		t.metric.unknownInner.Inc()
		t.log.Debug("dropped unknown inner type", zap.Uint8("kind", uint8(m.Kind)))
	}
}

// HandleKX implements handle_kx(connection, kx_msg) (§4.5, §9): drives
// the encryption-state machine. The KX framing itself is out of scope
// (§1); install installs the freshly negotiated Axolotl state once
// the handshake produces one.
func (t *Tunnel) HandleKX(kx KXMessage, install func(existing *State) (*State, error)) (err error) {
	if !t.do(func() {
		switch kx.Kind {
		case KXInitial:
			if t.encryption == EncUninitialized {
				t.encryption = EncSent
			}
			newState, ierr := install(t.ax)
			if ierr != nil {
				err = ierr
				return
			}
			t.ax = newState
		case KXResponse:
			if t.encryption == EncSent {
				t.enterOK()
			}
			newState, ierr := install(t.ax)
			if ierr != nil {
				err = ierr
				return
			}
			t.ax = newState
		case KXRekeyInitiate:
			t.raiseEncryptionState(EncRekey)
		case KXRekeyAck:
			if t.encryption == EncRekey {
				t.enterOK()
			}
		}
	}) {
		return ErrTunnelShutdown
	}
	return err
}

// raiseEncryptionState implements the machine's monotone-except-REKEY
// rule: successful decrypt always raises state to OK, but never
// moves an existing REKEY back to OK implicitly.
func (t *Tunnel) raiseEncryptionState(target EncryptionState) {
	if target == EncOK && t.encryption == EncRekey {
		return
	}
	if target > t.encryption || target == EncOK {
		switch target {
		case EncOK:
			t.enterOK()
		case EncRekey:
			t.enterRekey()
		default:
			t.encryption = target
		}
	}
}

// enterOK sets the encryption state to OK and (re)arms the rekey
// timer, the single place every OK transition funnels through so the
// timer in tunnel.go:153 stays honest (§5).
func (t *Tunnel) enterOK() {
	t.encryption = EncOK
	t.armRekeyTimer()
}

// enterRekey sets the encryption state to REKEY and cancels the rekey
// timer (§5 "cancelled on transition to OK" — the converse holds too:
// once REKEY is entered there is nothing left to time out until OK is
// reached again).
func (t *Tunnel) enterRekey() {
	t.disarmRekeyTimer()
	t.encryption = EncRekey
}

// Debug implements debug(level) (§4.5): side-effect-only introspection
// via the logger's level.
func (t *Tunnel) Debug(level zap.AtomicLevel) {
	t.do(func() {
		t.log.Debug("debug level changed", zap.String("connectivity", t.connectivity.String()), zap.String("encryption", t.encryption.String()))
	})
}

// TunnelSnapshot is the JSON-serializable debug view exposed by
// cmd/cadetd's gin debug route (SPEC_FULL.md supplemented feature).
type TunnelSnapshot struct {
	Peer         string `json:"peer"`
	Connectivity string `json:"connectivity"`
	Encryption   string `json:"encryption"`
	Connections  int    `json:"connections"`
	QueueDepth   int    `json:"queue_depth"`
	Channels     int    `json:"channels"`
}

// Snapshot returns a point-in-time debug view.
func (t *Tunnel) Snapshot() (s TunnelSnapshot) {
	t.do(func() {
		s = TunnelSnapshot{
			Peer:         fmt.Sprintf("%x", t.Peer[:8]),
			Connectivity: t.connectivity.String(),
			Encryption:   t.encryption.String(),
			Connections:  t.conns.Len(),
			QueueDepth:   t.queue.Len(),
			Channels:     t.channels.Len(),
		}
	})
	return s
}

// SetChannelOpenHandler installs the channel layer's factory for
// inbound channel-open requests (§6.3 InnerChannelOpen).
func (t *Tunnel) SetChannelOpenHandler(fn func(channel uint32, payload []byte) ChannelHandle) {
	t.do(func() { t.onChannelOpen = fn })
}
