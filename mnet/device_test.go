package mnet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRadioDeviceBroadcastReachesRegisteredPeers(t *testing.T) {
	a, err := NewRadioDevice("127.0.0.1:0", 1500)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRadioDevice("127.0.0.1:0", 1500)
	require.NoError(t, err)
	defer b.Close()

	a.AddPeer(b.LocalAddr())
	require.NoError(t, a.Broadcast([]byte("hello")))

	select {
	case frm := <-b.Inbound():
		require.Equal(t, []byte("hello"), frm.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast frame")
	}
}

func TestRadioDeviceRemovePeerStopsBroadcast(t *testing.T) {
	a, err := NewRadioDevice("127.0.0.1:0", 1500)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRadioDevice("127.0.0.1:0", 1500)
	require.NoError(t, err)
	defer b.Close()

	a.AddPeer(b.LocalAddr())
	a.RemovePeer(b.LocalAddr())
	require.NoError(t, a.Broadcast([]byte("nope")))

	select {
	case <-b.Inbound():
		t.Fatal("peer received a frame after being removed from range")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTunnelDeviceSendIgnoresAddrAndUsesFixedRemote(t *testing.T) {
	b, err := NewRadioDevice("127.0.0.1:0", 1500)
	require.NoError(t, err)
	defer b.Close()

	tun, err := NewTunnelDevice("127.0.0.1:0", b.LocalAddr(), 1500)
	require.NoError(t, err)
	defer tun.Close()

	require.NoError(t, tun.Send("whatever-this-is-ignored", []byte("ping")))

	select {
	case frm := <-b.Inbound():
		require.Equal(t, []byte("ping"), frm.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tunnel frame")
	}
}

func TestMaxPayloadReportsConfiguredValue(t *testing.T) {
	d, err := NewRadioDevice("127.0.0.1:0", 777)
	require.NoError(t, err)
	defer d.Close()
	require.Equal(t, 777, d.MaxPayload())
}
