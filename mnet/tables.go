package mnet

import "time"

// reliability distinguishes the two independent sequence streams per peer
// (§3): 'r' (reliable) and 'u' (unreliable).
type reliability byte

const (
	relReliable   reliability = 'r'
	relUnreliable reliability = 'u'
)

// streamID is the key for lastSentSeq: a per-(destination, reliability)
// sequence space.
type streamID struct {
	host Host
	rel  reliability
}

// sentKey keys the sentPackets table: (host, sequence) per §3.
type sentKey struct {
	host Host
	seq  uint32
}

// sentEntry is the sentPackets value: (firstSent, lastId, flags, payload,
// destHost) plus the bookkeeping the retransmit manager needs (§3, §4.6).
type sentEntry struct {
	firstSent  time.Time
	lastSentAt time.Time
	lastID     uint32
	flags      Flags
	payload    []byte
	destHost   Host
	port       uint16
	waiter     *sendWaiter
}

// recvKey keys receivedPackets: (host, sequence) within one reliability
// stream, per §3.
type recvKey struct {
	src Host
	seq uint32
}

// recvEntry is the receivedPackets value: (arrived, flags, port, payload)
// per §3. fragCount is implicit in flags.FragFinal.
type recvEntry struct {
	arrived time.Time
	flags   Flags
	port    uint16
	payload []byte
}

// dropEvent is queued by tick() and handed to the caller's onDrop callback
// on the next Receive call (§4.6, §7).
type dropEvent struct {
	host    Host
	port    uint16
	payload []byte
}

// readyMessage is one application-deliverable message sitting in the
// pendingDelivery queue, already reassembled if it was fragmented.
type readyMessage struct {
	src     Host
	port    uint16
	payload []byte
}

// sendWaiter is the future a waitForAck Send blocks on, resolved by the
// actor loop when every fragment of the message has been acknowledged or
// any one of them is dropped (§4.7, §9 "promise/future values resolved by
// the receive loop").
type sendWaiter struct {
	remaining int
	done      chan bool
	resolved  bool
}

func newSendWaiter(fragments int) *sendWaiter {
	return &sendWaiter{remaining: fragments, done: make(chan bool, 1)}
}

func (w *sendWaiter) ackOne() {
	if w.resolved {
		return
	}
	w.remaining--
	if w.remaining <= 0 {
		w.resolved = true
		w.done <- true
	}
}

func (w *sendWaiter) fail() {
	if w.resolved {
		return
	}
	w.resolved = true
	w.done <- false
}

// ufragKey separates in-progress unreliable fragment reassembly by
// (source, port), since two ports on the same peer may fragment unrelated
// messages concurrently.
type ufragKey struct {
	host Host
	port uint16
}

// ufragState accumulates an in-progress unreliable fragment group, which is
// delivered in arrival order with no ordering guarantee (§4.5).
type ufragState struct {
	nextSeq uint32
	buf     []byte
}

// StreamKey identifies the (destination, reliability) stream a Send call
// issued packets on, and the sequence range it allocated — the Go
// equivalent of spec.md's "streamKey | nil" return value.
type StreamKey struct {
	Host     Host
	Reliable bool
	FirstSeq uint32
	LastSeq  uint32
}
