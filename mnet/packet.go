package mnet

import (
	"encoding/binary"
	"fmt"
)

// headerOverhead is subtracted from a device's reported max payload to get
// the effective MTU (§6 "mtu": device-min − 150).
const headerOverhead = 150

// Packet is the on-wire frame described in §3, carried positionally:
// id, sequence, flags, destHost, srcHost, port, payload.
type Packet struct {
	ID       uint32
	Sequence uint32
	Flags    Flags
	DestHost Host
	SrcHost  Host
	Port     uint16
	Payload  []byte
}

// wireWriter mirrors the teacher's BitStream: a small append-only byte
// writer for the fixed positional fields (source/protocol/raknet.go).
type wireWriter struct {
	buf []byte
}

func (w *wireWriter) putUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *wireWriter) putUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *wireWriter) putString(s string) {
	w.putUint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *wireWriter) putBytes(b []byte) {
	w.putUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

type wireReader struct {
	buf []byte
	off int
}

var errShortFrame = fmt.Errorf("mnet: malformed arrival: frame too short")

func (r *wireReader) getUint32() (uint32, error) {
	if r.off+4 > len(r.buf) {
		return 0, errShortFrame
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *wireReader) getUint16() (uint16, error) {
	if r.off+2 > len(r.buf) {
		return 0, errShortFrame
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *wireReader) getString() (string, error) {
	n, err := r.getUint16()
	if err != nil {
		return "", err
	}
	if r.off+int(n) > len(r.buf) {
		return "", errShortFrame
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func (r *wireReader) getBytes() ([]byte, error) {
	n, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	if r.off+int(n) > len(r.buf) {
		return nil, errShortFrame
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+int(n)])
	r.off += int(n)
	return out, nil
}

// Encode serializes the packet's positional fields for handoff to a
// Device's Send/Broadcast primitive.
func (p *Packet) Encode() []byte {
	w := &wireWriter{buf: make([]byte, 0, len(p.Payload)+64)}
	w.putUint32(p.ID)
	w.putUint32(p.Sequence)
	w.putString(p.Flags.String())
	w.putString(string(p.DestHost))
	w.putString(string(p.SrcHost))
	w.putUint16(p.Port)
	w.putBytes(p.Payload)
	return w.buf
}

// DecodePacket parses a frame coming off a Device. Per §4.2, a frame whose
// fields fail to conform (short/truncated buffer) is reported as an error
// and the caller silently drops it rather than propagating a fault.
func DecodePacket(frame []byte) (*Packet, error) {
	r := &wireReader{buf: frame}
	id, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	seq, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	flagsStr, err := r.getString()
	if err != nil {
		return nil, err
	}
	dest, err := r.getString()
	if err != nil {
		return nil, err
	}
	src, err := r.getString()
	if err != nil {
		return nil, err
	}
	port, err := r.getUint16()
	if err != nil {
		return nil, err
	}
	payload, err := r.getBytes()
	if err != nil {
		return nil, err
	}
	return &Packet{
		ID:       id,
		Sequence: seq,
		Flags:    ParseFlags(flagsStr),
		DestHost: Host(dest),
		SrcHost:  Host(src),
		Port:     port,
		Payload:  payload,
	}, nil
}
