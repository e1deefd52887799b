package mnet

import "math/rand"

// LossyDevice wraps a Device with configurable loss and reordering
// probabilities, for exercising §8's S3/S4 scenarios. When both
// probabilities are zero it is fully transparent (§4.1).
type LossyDevice struct {
	Device

	// DropProbability is the chance [0,1) an outgoing Send/Broadcast is
	// silently discarded instead of handed to the wrapped device.
	DropProbability float64

	// ReorderSpan, when > 0, holds back outgoing frames in groups of N (N
	// chosen uniformly in [1, ReorderSpan] for each group) and releases each
	// group in reverse order, so a frame trades places with up to N-1 of the
	// sends after it; a group of 1 goes out unchanged. Frames of a group
	// that is not yet full stay held until later sends fill it.
	ReorderSpan int

	rng     *rand.Rand
	pending [][]byte
	holdFor int
}

// NewLossyDevice wraps dev with the default transparent (no loss, no
// reordering) configuration; set DropProbability/ReorderSpan to enable it.
func NewLossyDevice(dev Device, seed int64) *LossyDevice {
	return &LossyDevice{Device: dev, rng: rand.New(rand.NewSource(seed))}
}

func (l *LossyDevice) shouldDrop() bool {
	return l.DropProbability > 0 && l.rng.Float64() < l.DropProbability
}

func (l *LossyDevice) reorder(frame []byte, send func([]byte) error) error {
	if l.ReorderSpan <= 0 {
		return send(frame)
	}
	l.pending = append(l.pending, frame)
	if l.holdFor == 0 {
		l.holdFor = 1 + l.rng.Intn(l.ReorderSpan)
	}
	l.holdFor--
	if l.holdFor > 0 {
		return nil
	}
	// Release the held frames in reverse arrival order so the wrapped
	// device sees the group's frames swapped rather than a plain delay.
	toSend := l.pending
	l.pending = nil
	for i := len(toSend) - 1; i >= 0; i-- {
		if err := send(toSend[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *LossyDevice) Send(addr DeviceAddr, frame []byte) error {
	if l.shouldDrop() {
		return nil
	}
	return l.reorder(frame, func(f []byte) error { return l.Device.Send(addr, f) })
}

func (l *LossyDevice) Broadcast(frame []byte) error {
	if l.shouldDrop() {
		return nil
	}
	return l.reorder(frame, l.Device.Broadcast)
}
