package mrpc

import "github.com/pkg/errors"

// ErrUnknownFunction is returned by Async, Call and Sync when they name a
// function that was never declared. An arriving message naming an undeclared
// function is left unhandled without an error or a log entry.
var ErrUnknownFunction = errors.New("mrpc: unknown function")

// ErrSyncTimeout is the failure a sync call reports when dropTime elapses
// with no correlated reply (§7 "Handler error (mrpc)").
var ErrSyncTimeout = errors.New("mrpc: sync call timed out waiting for reply")

// ErrDestroyed is returned by call modes invoked after Destroy.
var ErrDestroyed = errors.New("mrpc: server destroyed")

func errPortInUse(port uint16) error {
	return errors.Errorf("mrpc: port %d already claimed by a server (pass sharePort=true to share it)", port)
}
