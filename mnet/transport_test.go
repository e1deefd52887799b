package mnet

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// pairedTransports builds two Transports, each with one RadioDevice bound to
// an ephemeral localhost port, and peers them together — the two-node mesh
// used throughout spec.md §8's scenarios.
func pairedTransports(t *testing.T, hostA, hostB Host) (*Transport, *Transport) {
	t.Helper()

	devA, err := NewRadioDevice("127.0.0.1:0", 1200)
	require.NoError(t, err)
	devB, err := NewRadioDevice("127.0.0.1:0", 1200)
	require.NoError(t, err)

	devA.AddPeer(devB.LocalAddr())
	devB.AddPeer(devA.LocalAddr())

	ta := NewTransport(Config{Hostname: hostA, RetransmitTime: 50 * time.Millisecond, DropTime: 400 * time.Millisecond})
	tb := NewTransport(Config{Hostname: hostB, RetransmitTime: 50 * time.Millisecond, DropTime: 400 * time.Millisecond})

	require.NoError(t, ta.RegisterDevice("radio0", devA))
	require.NoError(t, tb.RegisterDevice("radio0", devB))

	t.Cleanup(func() {
		ta.Close()
		tb.Close()
	})
	return ta, tb
}

// S1: reliable delivery between two directly connected nodes.
func TestScenarioReliableDelivery(t *testing.T) {
	ta, tb := pairedTransports(t, "node-a", "node-b")

	_, err := ta.Send("node-b", 7000, []byte("ping"), true, true)
	require.NoError(t, err)

	src, port, payload, ok := tb.Receive(2*time.Second, nil)
	require.True(t, ok)
	require.Equal(t, Host("node-a"), src)
	require.Equal(t, uint16(7000), port)
	require.Equal(t, []byte("ping"), payload)
}

// S2: unreliable delivery, no ack expected, best effort.
func TestScenarioUnreliableDelivery(t *testing.T) {
	ta, tb := pairedTransports(t, "node-a", "node-b")

	_, err := ta.Send("node-b", 7001, []byte("unreliable"), false, false)
	require.NoError(t, err)

	_, _, payload, ok := tb.Receive(2*time.Second, nil)
	require.True(t, ok)
	require.Equal(t, []byte("unreliable"), payload)
}

// Broadcast must not be used with reliable=true.
func TestSendBroadcastReliableRejected(t *testing.T) {
	ta, _ := pairedTransports(t, "node-a", "node-b")
	_, err := ta.Send(Broadcast, 1, []byte("x"), true, false)
	require.ErrorIs(t, err, ErrBroadcastReliable)
}

// Fragmentation: a payload larger than the MTU must arrive whole and in
// order at the receiver (§4.2's atomic fragment-group delivery).
func TestScenarioFragmentedReliableMessage(t *testing.T) {
	ta, tb := pairedTransports(t, "node-a", "node-b")
	ta.DebugSetSmallMTU(true)

	big := make([]byte, debugMTU*5+3)
	for i := range big {
		big[i] = byte(i % 251)
	}

	_, err := ta.Send("node-b", 7002, big, true, true)
	require.NoError(t, err)

	_, _, payload, ok := tb.Receive(3*time.Second, nil)
	require.True(t, ok)
	require.Equal(t, big, payload)
}

// Local self-send bypasses devices entirely.
func TestSendToSelf(t *testing.T) {
	ta, _ := pairedTransports(t, "node-a", "node-b")
	_, err := ta.Send("node-a", 42, []byte("loopback"), true, true)
	require.NoError(t, err)

	src, port, payload, ok := ta.Receive(time.Second, nil)
	require.True(t, ok)
	require.Equal(t, Host("node-a"), src)
	require.Equal(t, uint16(42), port)
	require.Equal(t, []byte("loopback"), payload)
}

// S3/S4-style scenario: a lossy link still delivers a reliable message via
// retransmission before dropTime elapses.
func TestScenarioRetransmitUnderLoss(t *testing.T) {
	devA, err := NewRadioDevice("127.0.0.1:0", 1200)
	require.NoError(t, err)
	devB, err := NewRadioDevice("127.0.0.1:0", 1200)
	require.NoError(t, err)
	devA.AddPeer(devB.LocalAddr())
	devB.AddPeer(devA.LocalAddr())

	lossyA := NewLossyDevice(devA, 1)
	lossyA.DropProbability = 0.5

	ta := NewTransport(Config{Hostname: "node-a", RetransmitTime: 20 * time.Millisecond, DropTime: 2 * time.Second})
	tb := NewTransport(Config{Hostname: "node-b", RetransmitTime: 20 * time.Millisecond, DropTime: 2 * time.Second})
	require.NoError(t, ta.RegisterDevice("radio0", lossyA))
	require.NoError(t, tb.RegisterDevice("radio0", devB))
	defer ta.Close()
	defer tb.Close()

	_, err = ta.Send("node-b", 7003, []byte("resilient"), true, false)
	require.NoError(t, err)

	_, _, payload, ok := tb.Receive(3*time.Second, nil)
	require.True(t, ok)
	require.Equal(t, []byte("resilient"), payload)
}

type recordingLogger struct {
	warnings chan string
}

func (l *recordingLogger) Debugf(string, ...interface{}) {}
func (l *recordingLogger) Infof(string, ...interface{})  {}
func (l *recordingLogger) Errorf(string, ...interface{}) {}
func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	select {
	case l.warnings <- fmt.Sprintf(format, args...):
	default:
	}
}

// A reliable send with no peer ever acking it must be logged at Warn once
// dropTime elapses (§4.6, §7 "Dropped-packet ... events are logged").
func TestDropIsLoggedAtWarn(t *testing.T) {
	dev, err := NewRadioDevice("127.0.0.1:0", 1200)
	require.NoError(t, err)

	logger := &recordingLogger{warnings: make(chan string, 1)}
	tr := NewTransport(Config{Hostname: "node-a", RetransmitTime: 20 * time.Millisecond, DropTime: 100 * time.Millisecond}, WithLogger(logger))
	require.NoError(t, tr.RegisterDevice("radio0", dev))
	defer tr.Close()

	_, err = tr.Send("nobody", 9000, []byte("gone"), true, false)
	require.NoError(t, err)

	select {
	case msg := <-logger.warnings:
		require.Contains(t, msg, "nobody")
	case <-time.After(2 * time.Second):
		t.Fatal("drop was never logged")
	}
}

// Three-node forwarding: node-a and node-c only share a link through
// node-b, which must forward as a third device on its own radio.
func TestScenarioMultiHopForwarding(t *testing.T) {
	devAB, err := NewRadioDevice("127.0.0.1:0", 1200)
	require.NoError(t, err)
	devBA, err := NewRadioDevice("127.0.0.1:0", 1200)
	require.NoError(t, err)
	devBC, err := NewRadioDevice("127.0.0.1:0", 1200)
	require.NoError(t, err)
	devCB, err := NewRadioDevice("127.0.0.1:0", 1200)
	require.NoError(t, err)

	devAB.AddPeer(devBA.LocalAddr())
	devBA.AddPeer(devAB.LocalAddr())
	devBC.AddPeer(devCB.LocalAddr())
	devCB.AddPeer(devBC.LocalAddr())

	ta := NewTransport(Config{Hostname: "node-a", RetransmitTime: 50 * time.Millisecond, DropTime: time.Second})
	tb := NewTransport(Config{Hostname: "node-b", Route: boolPtr(true), RetransmitTime: 50 * time.Millisecond, DropTime: time.Second})
	tc := NewTransport(Config{Hostname: "node-c", RetransmitTime: 50 * time.Millisecond, DropTime: time.Second})

	require.NoError(t, ta.RegisterDevice("toB", devAB))
	require.NoError(t, tb.RegisterDevice("toA", devBA))
	require.NoError(t, tb.RegisterDevice("toC", devBC))
	require.NoError(t, tc.RegisterDevice("toB", devCB))
	defer ta.Close()
	defer tb.Close()
	defer tc.Close()

	ta.AddStaticRoute("node-c", "toB", devBA.LocalAddr())
	tc.AddStaticRoute("node-a", "toB", devBC.LocalAddr())

	_, err = ta.Send("node-c", 8000, []byte("hop"), true, false)
	require.NoError(t, err)

	_, _, payload, ok := tc.Receive(3*time.Second, nil)
	require.True(t, ok)
	require.Equal(t, []byte("hop"), payload)
}

func TestTransportCloseLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))

	dev, err := NewRadioDevice("127.0.0.1:0", 1200)
	require.NoError(t, err)
	tr := NewTransport(Config{Hostname: "solo"})
	require.NoError(t, tr.RegisterDevice("radio0", dev))
	require.NoError(t, tr.Close())
}

func TestConcurrentSendsDoNotRace(t *testing.T) {
	ta, tb := pairedTransports(t, "node-a", "node-b")
	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			_, err := ta.Send("node-b", uint16(9000+i), []byte(fmt.Sprintf("msg-%d", i)), false, false)
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	seen := 0
	for i := 0; i < n; i++ {
		_, _, _, ok := tb.Receive(2*time.Second, nil)
		if ok {
			seen++
		}
	}
	require.Greater(t, seen, 0)
}
