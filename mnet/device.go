package mnet

import (
	"net"

	"github.com/pkg/errors"
)

// DeviceAddr is an opaque underlying address a Device knows how to reach;
// its concrete type is private to the Device implementation (e.g. a
// *net.UDPAddr for a UDP-backed device).
type DeviceAddr interface{}

// Device is the polymorphic capability set every transport member exposes
// uniformly, whether it is a broadcast radio or a point-to-point tunnel
// (§4.1).
type Device interface {
	// Open binds the device to the given application port.
	Open(port uint16) error
	Close() error
	// Send transmits frame to a specific peer address.
	Send(addr DeviceAddr, frame []byte) error
	// Broadcast transmits frame to every peer currently in range.
	Broadcast(frame []byte) error
	// MaxPayload reports the largest frame this device can carry.
	MaxPayload() int
	// Inbound delivers frames arriving on this device.
	Inbound() <-chan InboundFrame
}

// InboundFrame is a raw frame received by a Device, paired with the
// underlying address it arrived from.
type InboundFrame struct {
	From DeviceAddr
	Data []byte
}

// udpDevice is a UDP-socket-backed device shared by both the broadcast
// radio and tunnel variants; they differ only in how Broadcast resolves
// its recipient set (grounded on the teacher's net.ListenUDP + per-packet
// goroutine dispatch in source/server/server.go, adapted to a channel of
// inbound frames instead of an unbounded goroutine per packet — see
// REDESIGN FLAGS in SPEC_FULL.md).
type udpDevice struct {
	conn     *net.UDPConn
	inbound  chan InboundFrame
	done     chan struct{}
	maxFrame int
}

func newUDPDevice(laddr string, maxFrame int) (*udpDevice, error) {
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, errors.Wrap(err, "mnet: resolve device address")
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "mnet: open device socket")
	}
	d := &udpDevice{
		conn:     conn,
		inbound:  make(chan InboundFrame, 256),
		done:     make(chan struct{}),
		maxFrame: maxFrame,
	}
	go d.readLoop()
	return d, nil
}

func (d *udpDevice) readLoop() {
	buf := make([]byte, d.maxFrame+headerOverhead+64)
	for {
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-d.done:
				return
			default:
				continue
			}
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case d.inbound <- InboundFrame{From: from, Data: data}:
		case <-d.done:
			return
		}
	}
}

// Open ignores the port: a UDP-backed device is already bound to the laddr
// it was created with.
func (d *udpDevice) Open(uint16) error { return nil }

func (d *udpDevice) Close() error {
	close(d.done)
	return d.conn.Close()
}

func (d *udpDevice) Send(addr DeviceAddr, frame []byte) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return errors.Errorf("mnet: device address is not a *net.UDPAddr: %T", addr)
	}
	_, err := d.conn.WriteToUDP(frame, udpAddr)
	return err
}

func (d *udpDevice) MaxPayload() int { return d.maxFrame }

func (d *udpDevice) Inbound() <-chan InboundFrame { return d.inbound }

func (d *udpDevice) LocalAddr() *net.UDPAddr {
	return d.conn.LocalAddr().(*net.UDPAddr)
}

// RadioDevice models an unreliable, range-limited broadcast radio: Send
// targets one address, Broadcast reaches every peer currently registered
// as "in range" (§4.1).
type RadioDevice struct {
	*udpDevice
	peers   map[string]*net.UDPAddr
}

// NewRadioDevice opens a UDP socket at laddr to stand in for a broadcast
// radio. maxFrame bounds the device's reported payload capacity.
func NewRadioDevice(laddr string, maxFrame int) (*RadioDevice, error) {
	ud, err := newUDPDevice(laddr, maxFrame)
	if err != nil {
		return nil, err
	}
	return &RadioDevice{udpDevice: ud, peers: make(map[string]*net.UDPAddr)}, nil
}

// AddPeer brings a peer "into range" so Broadcast will reach it.
func (r *RadioDevice) AddPeer(addr *net.UDPAddr) {
	r.peers[addr.String()] = addr
}

// RemovePeer takes a peer "out of range".
func (r *RadioDevice) RemovePeer(addr *net.UDPAddr) {
	delete(r.peers, addr.String())
}

func (r *RadioDevice) Broadcast(frame []byte) error {
	var firstErr error
	for _, p := range r.peers {
		if err := r.udpDevice.Send(p, frame); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TunnelDevice is a point-to-point link with a single preconfigured remote
// endpoint; Send and Broadcast both resolve to that one remote (§4.1).
type TunnelDevice struct {
	*udpDevice
	remote *net.UDPAddr
}

// NewTunnelDevice opens a UDP socket at laddr permanently paired with
// remote.
func NewTunnelDevice(laddr string, remote *net.UDPAddr, maxFrame int) (*TunnelDevice, error) {
	ud, err := newUDPDevice(laddr, maxFrame)
	if err != nil {
		return nil, err
	}
	return &TunnelDevice{udpDevice: ud, remote: remote}, nil
}

func (t *TunnelDevice) Broadcast(frame []byte) error {
	return t.udpDevice.Send(t.remote, frame)
}

// Send ignores addr and always targets the tunnel's single remote, matching
// the teacher's single-peer Session model (source/protocol/raknet.go).
func (t *TunnelDevice) Send(_ DeviceAddr, frame []byte) error {
	return t.udpDevice.Send(t.remote, frame)
}
