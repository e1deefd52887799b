package mnet

import (
	"math/rand"
	"strconv"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// taggedFrame is an InboundFrame annotated with the device handle it
// arrived on, fed into the single actor loop that owns all transport
// state (§5).
type taggedFrame struct {
	handle string
	from   DeviceAddr
	data   []byte
}

// Transport is the core state machine (§4.7): it drives send, receive,
// tick, ack and forward. All mutable state (routeCache, sentPackets,
// receivedPackets, seenIds, lastSentSeq, lastDeliveredSeq) is owned
// exclusively by one goroutine — the run() actor loop — so callers never
// need their own locking (§5, §9 "explicit transport object owning this
// state").
type Transport struct {
	cfg    Config
	log    Logger
	metric Metrics

	devices map[string]Device
	routes  *routeTable
	seenIDs *cache.Cache

	sent             map[sentKey]*sentEntry
	recv             map[recvKey]*recvEntry
	lastSentSeq      map[streamID]uint32
	lastDeliveredSeq map[Host]uint32
	assembling       map[Host][]byte // in-progress reliable fragment reassembly per src
	uFrag            map[ufragKey]*ufragState
	ready            []readyMessage
	drops            []dropEvent
	waiters          []chan struct{}

	idCounter uint32
	rng       *rand.Rand

	cmd        chan func()
	inboundAgg chan taggedFrame
	closeCh    chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup

	tickInterval time.Duration
}

// Option configures optional Transport collaborators.
type Option func(*Transport)

// WithLogger installs a Logger; the default is a no-op.
func WithLogger(l Logger) Option { return func(t *Transport) { t.log = l } }

// WithMetrics installs a Metrics sink; the default is a no-op.
func WithMetrics(m Metrics) Option { return func(t *Transport) { t.metric = m } }

// NewTransport builds a Transport from cfg and starts its actor loop. Call
// RegisterDevice for at least one device before sending.
func NewTransport(cfg Config, opts ...Option) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg:              cfg,
		log:              nopLogger{},
		metric:           nopMetrics{},
		devices:          make(map[string]Device),
		routes:           newRouteTable(cfg.RouteTime),
		seenIDs:          cache.New(cfg.DropTime, cfg.DropTime/2+time.Second),
		sent:             make(map[sentKey]*sentEntry),
		recv:             make(map[recvKey]*recvEntry),
		lastSentSeq:      make(map[streamID]uint32),
		lastDeliveredSeq: make(map[Host]uint32),
		assembling:       make(map[Host][]byte),
		uFrag:            make(map[ufragKey]*ufragState),
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
		cmd:              make(chan func(), 64),
		inboundAgg:       make(chan taggedFrame, 256),
		closeCh:          make(chan struct{}),
		tickInterval:     200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.idCounter = t.rng.Uint32()
	t.wg.Add(1)
	go t.run()
	return t
}

func (t *Transport) run() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case fn := <-t.cmd:
			fn()
		case frm := <-t.inboundAgg:
			t.onFrame(frm.handle, frm.from, frm.data)
		case <-ticker.C:
			t.tick()
		case <-t.closeCh:
			return
		}
	}
}

// Closed returns a channel that closes once the transport has shut down,
// so collaborators (such as mrpc's port router) can stop polling Receive.
func (t *Transport) Closed() <-chan struct{} { return t.closeCh }

// Close shuts down the actor loop and every registered device.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.closeCh) })
	t.wg.Wait()
	var firstErr error
	for _, d := range t.devices {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RegisterDevice opens dev on the transport's configured port and begins
// pumping its inbound frames into the actor loop (§4.1, §6).
func (t *Transport) RegisterDevice(handle string, dev Device) error {
	if err := dev.Open(t.cfg.Port); err != nil {
		return err
	}
	done := make(chan struct{})
	t.cmd <- func() {
		t.devices[handle] = dev
		close(done)
	}
	<-done
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.pumpDevice(handle, dev)
	}()
	return nil
}

func (t *Transport) pumpDevice(handle string, dev Device) {
	for {
		select {
		case frm, ok := <-dev.Inbound():
			if !ok {
				return
			}
			select {
			case t.inboundAgg <- taggedFrame{handle, frm.From, frm.Data}:
			case <-t.closeCh:
				return
			}
		case <-t.closeCh:
			return
		}
	}
}

// GetDevices returns the registered device handles.
func (t *Transport) GetDevices() map[string]Device {
	out := make(chan map[string]Device, 1)
	t.cmd <- func() {
		m := make(map[string]Device, len(t.devices))
		for k, v := range t.devices {
			m[k] = v
		}
		out <- m
	}
	return <-out
}

// AddStaticRoute installs a route that never expires (§4.4).
func (t *Transport) AddStaticRoute(host Host, handle string, addr DeviceAddr) {
	done := make(chan struct{})
	t.cmd <- func() {
		t.routes.AddStatic(host, handle, addr)
		close(done)
	}
	<-done
}

// GetStaticRoutes reports the configured static routes.
func (t *Transport) GetStaticRoutes() map[Host]routeEntry {
	out := make(chan map[Host]routeEntry, 1)
	t.cmd <- func() { out <- t.routes.Static() }
	return <-out
}

// DebugSetSmallMTU forces a tiny MTU for testing fragmentation (§6).
const debugMTU = 32

func (t *Transport) DebugSetSmallMTU(enabled bool) {
	done := make(chan struct{})
	t.cmd <- func() {
		if enabled {
			t.cfg.MTU = debugMTU
		} else {
			t.cfg.MTU = 0
		}
		close(done)
	}
	<-done
}

// SetMTU overrides the effective MTU directly (0 restores auto-detection
// from registered devices).
func (t *Transport) SetMTU(n int) {
	done := make(chan struct{})
	t.cmd <- func() {
		t.cfg.MTU = n
		close(done)
	}
	<-done
}

// DebugEnableLossy toggles loss on any registered device that was wrapped in
// a LossyDevice (§4.1, §8 S3/S4): enabling sets a 0.5 drop probability and
// leaves ReorderSpan as it is; disabling clears both the drop probability
// and ReorderSpan.
func (t *Transport) DebugEnableLossy(enabled bool) {
	done := make(chan struct{})
	t.cmd <- func() {
		for _, d := range t.devices {
			if l, ok := d.(*LossyDevice); ok {
				if enabled {
					l.DropProbability = 0.5
				} else {
					l.DropProbability = 0
					l.ReorderSpan = 0
				}
			}
		}
		close(done)
	}
	<-done
}

func (t *Transport) effectiveMTU() int {
	if t.cfg.MTU > 0 {
		return t.cfg.MTU
	}
	min := -1
	for _, d := range t.devices {
		mp := d.MaxPayload()
		if min == -1 || mp < min {
			min = mp
		}
	}
	if min == -1 {
		return 1500 - headerOverhead
	}
	result := min - headerOverhead
	if result < 1 {
		result = 1
	}
	return result
}

func (t *Transport) nextID() uint32 {
	t.idCounter = NextSeq(t.idCounter)
	return t.idCounter
}

// routeSend resolves dest via routeCache -> staticRoutes -> broadcast on
// every device (excluding excludeHandle, typically the device a forwarded
// frame arrived on) and hands frame to the chosen device (§4.4, §4.8).
func (t *Transport) routeSend(dest Host, frame []byte, excludeHandle string) {
	if entry, ok := t.routes.Lookup(dest); ok {
		if dev, ok := t.devices[entry.deviceHandle]; ok {
			_ = dev.Send(entry.addr, frame)
			return
		}
	}
	for handle, dev := range t.devices {
		if handle == excludeHandle {
			continue
		}
		_ = dev.Broadcast(frame)
	}
}

// Send implements §4.7's send operation.
func (t *Transport) Send(dest Host, port uint16, payload []byte, reliable, waitForAck bool) (*StreamKey, error) {
	if dest == Broadcast && reliable {
		return nil, ErrBroadcastReliable
	}
	type result struct {
		sk     *StreamKey
		waiter *sendWaiter
		err    error
	}
	resCh := make(chan result, 1)
	fn := func() {
		sk, waiter, err := t.doSend(dest, port, payload, reliable, waitForAck)
		resCh <- result{sk, waiter, err}
	}
	select {
	case t.cmd <- fn:
	case <-t.closeCh:
		return nil, ErrClosed
	}
	var r result
	select {
	case r = <-resCh:
	case <-t.closeCh:
		return nil, ErrClosed
	}
	if r.err != nil {
		return nil, r.err
	}
	if waitForAck && r.waiter != nil {
		select {
		case ok := <-r.waiter.done:
			if !ok {
				return nil, nil
			}
		case <-t.closeCh:
			return nil, ErrClosed
		}
	}
	return r.sk, nil
}

func (t *Transport) doSend(dest Host, port uint16, payload []byte, reliable, waitForAck bool) (*StreamKey, *sendWaiter, error) {
	if dest.isLocal(t.cfg.Hostname) {
		t.pushReady(t.cfg.Hostname, port, append([]byte(nil), payload...))
		sk := &StreamKey{Host: t.cfg.Hostname, Reliable: reliable}
		if waitForAck {
			w := newSendWaiter(1)
			w.ackOne()
			return sk, w, nil
		}
		return sk, nil, nil
	}

	mtu := t.effectiveMTU()
	chunks := splitPayload(payload, mtu)
	if len(chunks) > MaxSplitFragments {
		return nil, nil, ErrPayloadTooLarge
	}

	rel := relUnreliable
	if reliable {
		rel = relReliable
	}
	sid := streamID{dest, rel}
	last, exists := t.lastSentSeq[sid]
	var seqs []uint32
	isNewStream := !exists
	next := last
	if !exists {
		next = uint32(1 + t.rng.Intn(1<<30))
	} else {
		next = NextSeq(last)
	}
	for i := 0; i < len(chunks); i++ {
		seqs = append(seqs, next)
		if i < len(chunks)-1 {
			next = NextSeq(next)
		}
	}
	t.lastSentSeq[sid] = seqs[len(seqs)-1]

	var waiter *sendWaiter
	if reliable && waitForAck {
		waiter = newSendWaiter(len(chunks))
	}

	now := time.Now()
	for i, chunk := range chunks {
		flags := Flags{}
		if i == 0 && isNewStream {
			flags.Sync = true
		}
		if reliable {
			flags.Reliable = true
		}
		if len(chunks) > 1 {
			flags.HasFrag = true
			if i == len(chunks)-1 {
				flags.FragFinal = uint32(len(chunks))
			}
		}
		id := t.nextID()
		pkt := &Packet{
			ID: id, Sequence: seqs[i], Flags: flags,
			DestHost: dest, SrcHost: t.cfg.Hostname, Port: port, Payload: chunk,
		}
		t.routeSend(dest, pkt.Encode(), "")
		t.metric.PacketSent()
		if reliable {
			key := sentKey{dest, seqs[i]}
			t.sent[key] = &sentEntry{
				firstSent: now, lastSentAt: now, lastID: id,
				flags: flags, payload: chunk, destHost: dest, port: port, waiter: waiter,
			}
		}
	}

	sk := &StreamKey{Host: dest, Reliable: reliable, FirstSeq: seqs[0], LastSeq: seqs[len(seqs)-1]}
	return sk, waiter, nil
}

// Receive implements §4.7's receive operation: one tick of housekeeping,
// then wait up to timeout for the next deliverable message.
func (t *Transport) Receive(timeout time.Duration, onDrop func(host Host, port uint16, payload []byte)) (Host, uint16, []byte, bool) {
	deadline := time.Now().Add(timeout)
	for {
		type tickResult struct {
			msg   *readyMessage
			drops []dropEvent
		}
		resCh := make(chan tickResult, 1)
		notifyCh := make(chan struct{}, 1)
		t.cmd <- func() {
			t.tick()
			drops := t.drops
			t.drops = nil
			msg := t.popReady()
			if msg == nil {
				t.waiters = append(t.waiters, notifyCh)
			}
			resCh <- tickResult{msg, drops}
		}
		res := <-resCh
		for _, d := range res.drops {
			if onDrop != nil {
				onDrop(d.host, d.port, d.payload)
			}
		}
		if res.msg != nil {
			return res.msg.src, res.msg.port, res.msg.payload, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", 0, nil, false
		}
		select {
		case <-notifyCh:
			continue
		case <-time.After(remaining):
			return "", 0, nil, false
		case <-t.closeCh:
			return "", 0, nil, false
		}
	}
}

func (t *Transport) popReady() *readyMessage {
	if len(t.ready) == 0 {
		return nil
	}
	msg := t.ready[0]
	t.ready = t.ready[1:]
	return &msg
}

func (t *Transport) pushReady(src Host, port uint16, payload []byte) {
	t.ready = append(t.ready, readyMessage{src, port, payload})
	for _, w := range t.waiters {
		select {
		case w <- struct{}{}:
		default:
		}
	}
	t.waiters = nil
}

// tick runs the retransmit manager and table eviction for one housekeeping
// pass (§4.6).
func (t *Transport) tick() {
	now := time.Now()
	for key, e := range t.sent {
		if now.Sub(e.firstSent) > t.cfg.DropTime {
			if e.waiter != nil {
				e.waiter.fail()
			}
			t.drops = append(t.drops, dropEvent{e.destHost, e.port, e.payload})
			t.metric.PacketDropped()
			t.log.Warnf("mnet: dropping undelivered packet to %s (port %d) after %s with no ack", e.destHost, e.port, t.cfg.DropTime)
			delete(t.sent, key)
			continue
		}
		if now.Sub(e.lastSentAt) > t.cfg.RetransmitTime {
			id := t.nextID()
			pkt := &Packet{
				ID: id, Sequence: key.seq, Flags: e.flags,
				DestHost: e.destHost, SrcHost: t.cfg.Hostname, Port: e.port, Payload: e.payload,
			}
			t.routeSend(e.destHost, pkt.Encode(), "")
			e.lastSentAt = now
			e.lastID = id
			t.metric.Retransmit()
		}
	}
	for key, e := range t.recv {
		if now.Sub(e.arrived) > t.cfg.DropTime {
			delete(t.recv, key)
		}
	}
}

// onFrame is the single entry point for every arriving frame, implementing
// §4.7's receive-side pipeline: duplicate suppression, route learning,
// forward-if-not-local, local delivery, ack emission.
func (t *Transport) onFrame(handle string, from DeviceAddr, data []byte) {
	pkt, err := DecodePacket(data)
	if err != nil {
		t.log.Debugf("mnet: dropping malformed arrival on %s: %v", handle, err)
		return
	}
	t.metric.PacketReceived()

	idKey := strconv.FormatUint(uint64(pkt.ID), 10)
	_, dup := t.seenIDs.Get(idKey)
	if dup {
		t.metric.PacketDuplicate()
	} else {
		t.seenIDs.Set(idKey, time.Now(), cache.DefaultExpiration)
	}

	if pkt.SrcHost != "" && pkt.SrcHost != t.cfg.Hostname {
		t.routes.Learn(pkt.SrcHost, handle, from)
		t.metric.RouteLearned()
	}

	isSelf := pkt.DestHost.isLocal(t.cfg.Hostname) || pkt.DestHost == t.cfg.Hostname
	isBroadcast := pkt.DestHost == Broadcast

	if pkt.Flags.Ack {
		if !isSelf {
			if t.cfg.RouteEnabled() && !dup {
				t.forward(pkt, data, handle)
			}
			return
		}
		t.handleAck(pkt)
		return
	}

	if !isSelf && !isBroadcast {
		if t.cfg.RouteEnabled() && !dup {
			t.forward(pkt, data, handle)
		}
		return
	}

	if !dup {
		t.deliverLocal(pkt)
	}
	if pkt.Flags.Reliable {
		t.sendAck(pkt.SrcHost)
	}
}

func (t *Transport) forward(pkt *Packet, frame []byte, fromHandle string) {
	t.routeSend(pkt.DestHost, frame, fromHandle)
	t.metric.PacketForwarded()
}

func (t *Transport) handleAck(pkt *Packet) {
	ackedUpTo := pkt.Sequence
	for key, e := range t.sent {
		if key.host != pkt.SrcHost {
			continue
		}
		if AfterEq(ackedUpTo, key.seq) {
			if e.waiter != nil {
				e.waiter.ackOne()
			}
			delete(t.sent, key)
		}
	}
}

func (t *Transport) sendAck(src Host) {
	seq := t.lastDeliveredSeq[src]
	pkt := &Packet{
		ID: t.nextID(), Sequence: seq, Flags: Flags{Ack: true},
		DestHost: src, SrcHost: t.cfg.Hostname, Port: 0,
	}
	t.routeSend(src, pkt.Encode(), "")
}

func (t *Transport) deliverLocal(pkt *Packet) {
	if pkt.Flags.Reliable {
		t.deliverReliable(pkt)
	} else {
		t.deliverUnreliable(pkt)
	}
}

// deliverReliable implements §4.5's ordering buffer.
func (t *Transport) deliverReliable(pkt *Packet) {
	src := pkt.SrcHost
	seq := pkt.Sequence
	cur, known := t.lastDeliveredSeq[src]

	t.recv[recvKey{src, seq}] = &recvEntry{
		arrived: time.Now(), flags: pkt.Flags, port: pkt.Port, payload: pkt.Payload,
	}

	switch {
	case pkt.Flags.Sync:
		// Any s1 resets the receiver's delivery cursor for this source to
		// just before this packet's sequence, per the Open Question
		// resolution in SPEC_FULL.md §9: any s1 repositions the cursor,
		// whether or not this is the first packet ever seen from src.
		t.lastDeliveredSeq[src] = seq - 1
	case !known:
		// First packet ever seen from src without s1 (e.g. a retransmit of
		// the synchronizing packet arrived, or s1 was lost but this is a
		// later fragment): buffer only, do not advance blindly.
		return
	case seq == NextSeq(cur):
		t.lastDeliveredSeq[src] = cur // advance() below steps it forward
	default:
		return // out of order: buffered, cursor unchanged (§4.5 step 3)
	}

	t.advance(src)
}

// advance walks receivedPackets forward from lastDeliveredSeq[src] while
// contiguous entries exist, assembling fragment groups atomically (§4.2,
// §4.5).
func (t *Transport) advance(src Host) {
	for {
		next := NextSeq(t.lastDeliveredSeq[src])
		entry, ok := t.recv[recvKey{src, next}]
		if !ok {
			return
		}
		delete(t.recv, recvKey{src, next})
		t.lastDeliveredSeq[src] = next

		switch {
		case entry.flags.IsMoreFragments():
			t.assembling[src] = append(t.assembling[src], entry.payload...)
		case entry.flags.HasFrag:
			full := append(t.assembling[src], entry.payload...)
			delete(t.assembling, src)
			t.pushReady(src, entry.port, full)
		default:
			t.pushReady(src, entry.port, entry.payload)
		}
	}
}

// deliverUnreliable implements §4.5's "skip ordering entirely" path:
// unreliable packets (and their fragment groups, best-effort) are
// delivered in arrival order.
func (t *Transport) deliverUnreliable(pkt *Packet) {
	if !pkt.Flags.HasFrag {
		t.pushReady(pkt.SrcHost, pkt.Port, pkt.Payload)
		return
	}
	key := ufragKey{pkt.SrcHost, pkt.Port}
	st := t.uFrag[key]
	if st == nil || pkt.Sequence != st.nextSeq {
		st = &ufragState{}
		t.uFrag[key] = st
	}
	st.buf = append(st.buf, pkt.Payload...)
	st.nextSeq = NextSeq(pkt.Sequence)
	if _, ok := pkt.Flags.IsFinalFragment(); ok {
		t.pushReady(pkt.SrcHost, pkt.Port, st.buf)
		delete(t.uFrag, key)
	}
}
