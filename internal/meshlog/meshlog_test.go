package meshlog

import "testing"

func TestNewLoggerDoesNotPanic(t *testing.T) {
	l := New(DefaultConfig())
	l.Debugf("starting %s", "node")
	l.Infof("port %d", 2048)
	l.Warnf("retry %d", 1)
	l.Errorf("drop: %v", "timeout")
	_ = l.Sync()
}
