package tunnel

import (
	"container/list"
	"time"

	"github.com/google/uuid"
)

// Handle identifies a QueuedMessage for Cancel. Handles are never
// reused; once Cont has fired the handle is dangling and must not be
// used again (§5 Cancellation & timeouts).
type Handle uuid.UUID

// queuedMessage is one entry in the SendQueue (§3 QueuedMessage): an
// encrypted frame, a continuation to invoke once dispatched, and the
// handle used for cancellation. The connection that carries it is
// chosen only at dispatch time and is not recorded here.
type queuedMessage struct {
	Handle Handle
	Frame  Frame
	Cont   func(err error)
	el     *list.Element
}

// SendQueue buffers outbound frames until ConnectionSet.PickReady
// returns a connection (§4.3). It is strictly FIFO (I7); Cancel never
// reorders the remaining entries.
type SendQueue struct {
	order *list.List // of *queuedMessage, oldest at Front
	byID  map[Handle]*queuedMessage
	conns *ConnectionSet
}

func newSendQueue(conns *ConnectionSet) *SendQueue {
	return &SendQueue{
		order: list.New(),
		byID:  make(map[Handle]*queuedMessage),
		conns: conns,
	}
}

// Send implements send(msg, cont) (§4.3 a-c). The frame has already
// been produced by AxolotlState.Encrypt by the caller (Tunnel.Send);
// SendQueue only owns dispatch ordering, not encryption.
func (q *SendQueue) Send(frame Frame, cont func(err error)) Handle {
	h := Handle(uuid.New())
	m := &queuedMessage{Handle: h, Frame: frame, Cont: cont}
	m.el = q.order.PushBack(m)
	q.byID[h] = m
	q.trigger()
	return h
}

// Cancel implements cancel(handle) (§4.3): valid only before Cont has
// fired. Returns ErrQueueCancelled if the handle is unknown (already
// dispatched or never issued) — a programmer error per §7
// QueueCancelled.
func (q *SendQueue) Cancel(h Handle) error {
	m, ok := q.byID[h]
	if !ok {
		return ErrQueueCancelled
	}
	q.order.Remove(m.el)
	delete(q.byID, h)
	return nil
}

// trigger implements trigger() (§4.3): if the queue is non-empty and a
// connection is ready, pop the head, hand it to the connection layer,
// then invoke its continuation. Only one entry is dispatched per call
// — OnConnectionReady invokes trigger exactly once per readiness
// event, and Send invokes it once per enqueue, matching §4.3's
// contract precisely (repeated internal looping is not specified and
// would let a single readiness event drain the whole queue out of
// step with the scheduler's yield model in §5).
func (q *SendQueue) trigger() {
	if q.order.Len() == 0 {
		return
	}
	conn := q.conns.PickReady()
	if conn == nil {
		return
	}
	front := q.order.Front()
	m := front.Value.(*queuedMessage)
	q.order.Remove(front)
	delete(q.byID, m.Handle)

	wire := m.Frame.Encode()
	start := time.Now()
	err := conn.Send(wire)
	if err == nil {
		q.conns.RecordThroughput(conn.ID(), len(wire), time.Since(start))
	}
	if m.Cont != nil {
		m.Cont(err)
	}
}

// OnConnectionReady implements on_connection_ready (§4.3): invoked by
// the connection layer when a previously-unready connection becomes
// ready.
func (q *SendQueue) OnConnectionReady() {
	q.trigger()
}

// Len reports the number of queued (not yet dispatched) entries.
func (q *SendQueue) Len() int { return q.order.Len() }
