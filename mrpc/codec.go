package mrpc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// messageKind tags the four shapes of payload mrpc puts inside an mnet
// message (§4.10): a plain call (await-ack only), an async call (no
// correlation), a sync call (expects a correlated reply), and the reply
// itself.
type messageKind byte

const (
	kindAsync messageKind = 'A'
	kindCall  messageKind = 'C'
	kindSync  messageKind = 'S'
	kindReply messageKind = 'R'
)

// valueTag distinguishes the argument kinds on the wire; generalizes the
// teacher's fixed-opcode little-endian field writers (source/protocol/rpc.go)
// into a small self-describing value encoding, since mrpc's argument
// vocabulary (§4.10) is open-ended rather than one fixed SA-MP opcode shape.
type valueTag byte

const (
	tagNil valueTag = iota
	tagString
	tagNumber
	tagBool
	tagTable
)

// tableKind distinguishes a table's two wire shapes: a []interface{} list
// or a map[string]interface{} dictionary, both accepted by mrpc/types.go's
// KindTable vocabulary entry (§4.10).
type tableKind byte

const (
	tableKindArray tableKind = 0
	tableKindMap   tableKind = 1
)

// message is the decoded contents of an mrpc payload.
type message struct {
	kind     messageKind
	token    string
	function string
	args     []interface{}
	err      string
}

type rpcWriter struct {
	buf []byte
}

func (w *rpcWriter) byte(b byte) { w.buf = append(w.buf, b) }

func (w *rpcWriter) string(s string) {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	w.buf = append(w.buf, l[:]...)
	w.buf = append(w.buf, s...)
}

func (w *rpcWriter) float64(f float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	w.buf = append(w.buf, b[:]...)
}

func (w *rpcWriter) uint16(n int) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(n))
	w.buf = append(w.buf, b[:]...)
}

func (w *rpcWriter) value(v interface{}) error {
	switch val := v.(type) {
	case nil:
		w.byte(byte(tagNil))
	case string:
		w.byte(byte(tagString))
		w.string(val)
	case bool:
		w.byte(byte(tagBool))
		if val {
			w.byte(1)
		} else {
			w.byte(0)
		}
	case int:
		w.byte(byte(tagNumber))
		w.float64(float64(val))
	case int32:
		w.byte(byte(tagNumber))
		w.float64(float64(val))
	case int64:
		w.byte(byte(tagNumber))
		w.float64(float64(val))
	case uint:
		w.byte(byte(tagNumber))
		w.float64(float64(val))
	case uint32:
		w.byte(byte(tagNumber))
		w.float64(float64(val))
	case uint64:
		w.byte(byte(tagNumber))
		w.float64(float64(val))
	case float32:
		w.byte(byte(tagNumber))
		w.float64(float64(val))
	case float64:
		w.byte(byte(tagNumber))
		w.float64(val)
	case []interface{}:
		w.byte(byte(tagTable))
		w.byte(byte(tableKindArray))
		w.uint16(len(val))
		for _, item := range val {
			if err := w.value(item); err != nil {
				return err
			}
		}
	case map[string]interface{}:
		w.byte(byte(tagTable))
		w.byte(byte(tableKindMap))
		w.uint16(len(val))
		for k, item := range val {
			w.string(k)
			if err := w.value(item); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("mrpc: unsupported argument type %T", v)
	}
	return nil
}

type rpcReader struct {
	buf []byte
	off int
}

var errShortMessage = fmt.Errorf("mrpc: malformed message")

func (r *rpcReader) byte() (byte, error) {
	if r.off+1 > len(r.buf) {
		return 0, errShortMessage
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *rpcReader) string() (string, error) {
	if r.off+2 > len(r.buf) {
		return "", errShortMessage
	}
	n := int(binary.BigEndian.Uint16(r.buf[r.off:]))
	r.off += 2
	if r.off+n > len(r.buf) {
		return "", errShortMessage
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += n
	return s, nil
}

func (r *rpcReader) float64() (float64, error) {
	if r.off+8 > len(r.buf) {
		return 0, errShortMessage
	}
	bits := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return math.Float64frombits(bits), nil
}

func (r *rpcReader) uint16() (int, error) {
	if r.off+2 > len(r.buf) {
		return 0, errShortMessage
	}
	n := int(binary.BigEndian.Uint16(r.buf[r.off:]))
	r.off += 2
	return n, nil
}

func (r *rpcReader) value() (interface{}, error) {
	tagByte, err := r.byte()
	if err != nil {
		return nil, err
	}
	switch valueTag(tagByte) {
	case tagNil:
		return nil, nil
	case tagString:
		return r.string()
	case tagBool:
		b, err := r.byte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case tagNumber:
		return r.float64()
	case tagTable:
		kindByte, err := r.byte()
		if err != nil {
			return nil, err
		}
		n, err := r.uint16()
		if err != nil {
			return nil, err
		}
		switch tableKind(kindByte) {
		case tableKindArray:
			arr := make([]interface{}, 0, n)
			for i := 0; i < n; i++ {
				v, err := r.value()
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			return arr, nil
		case tableKindMap:
			m := make(map[string]interface{}, n)
			for i := 0; i < n; i++ {
				k, err := r.string()
				if err != nil {
					return nil, err
				}
				v, err := r.value()
				if err != nil {
					return nil, err
				}
				m[k] = v
			}
			return m, nil
		default:
			return nil, fmt.Errorf("mrpc: unknown table kind %d", kindByte)
		}
	default:
		return nil, fmt.Errorf("mrpc: unknown value tag %d", tagByte)
	}
}

// encodeMessage serializes a message for handoff to mnet.Send.
func encodeMessage(m message) ([]byte, error) {
	w := &rpcWriter{}
	w.byte(byte(m.kind))
	w.string(m.token)
	w.string(m.function)
	w.string(m.err)
	w.byte(byte(len(m.args)))
	for _, a := range m.args {
		if err := w.value(a); err != nil {
			return nil, err
		}
	}
	return w.buf, nil
}

// decodeMessage parses a payload arriving on an mrpc server's port.
func decodeMessage(raw []byte) (message, error) {
	r := &rpcReader{buf: raw}
	kindByte, err := r.byte()
	if err != nil {
		return message{}, err
	}
	token, err := r.string()
	if err != nil {
		return message{}, err
	}
	fn, err := r.string()
	if err != nil {
		return message{}, err
	}
	errStr, err := r.string()
	if err != nil {
		return message{}, err
	}
	n, err := r.byte()
	if err != nil {
		return message{}, err
	}
	args := make([]interface{}, 0, n)
	for i := 0; i < int(n); i++ {
		v, err := r.value()
		if err != nil {
			return message{}, err
		}
		args = append(args, v)
	}
	return message{kind: messageKind(kindByte), token: token, function: fn, args: args, err: errStr}, nil
}
