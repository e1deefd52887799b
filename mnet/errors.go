package mnet

import "github.com/pkg/errors"

// Validation errors (§7): programmer mistakes reported synchronously, with
// no wire activity.
var (
	// ErrBroadcastReliable is returned when Send is called with
	// destHost="*" and reliable=true; broadcast is unreliable-only (§4.7).
	ErrBroadcastReliable = errors.New("mnet: broadcast destination requires reliable=false")

	// ErrPayloadTooLarge is returned when a payload cannot be fragmented
	// within MaxSplitFragments.
	ErrPayloadTooLarge = errors.New("mnet: payload exceeds maximum fragmentable size")

	// ErrNoDevices names the condition of a transport with no registered
	// device. No function in this package returns it: a Transport with no
	// device still accepts Send and hands its frames to no device.
	ErrNoDevices = errors.New("mnet: no devices registered")

	// ErrClosed is returned by Send once the transport has been closed.
	// Receive has no error result; it reports a timeout or a closed
	// transport as ok=false.
	ErrClosed = errors.New("mnet: transport closed")
)

// MaxSplitFragments bounds a single message's fragment count, the way the
// teacher bounds split packets (source/protocol/raknet.go MAX_SPLIT_PACKET_COUNT).
const MaxSplitFragments = 1024
