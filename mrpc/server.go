package mrpc

import (
	"sync"
	"time"

	"github.com/meshnet/mnet/mnet"
	"github.com/pkg/errors"
	"github.com/rs/xid"
)

// pendingCall is the future a sync call blocks on until the correlated
// reply arrives or dropTime elapses, mirroring mnet's sendWaiter (§9
// "promise/future values resolved by the receive loop").
type pendingCall struct {
	done chan syncResult
}

type syncResult struct {
	values []interface{}
	err    error
}

// Server is one mrpc server object bound to a port on a *mnet.Transport
// (§4.10). Multiple Servers may share a port when sharePort is asserted at
// construction; each still only ever dispatches the functions it declared.
type Server struct {
	transport *mnet.Transport
	port      uint16
	receiver  interface{}
	router    *portRouter
	dropTime  time.Duration
	log       mnet.Logger

	mu        sync.RWMutex
	functions map[string]*Declaration
	handlers  map[string]Handler
	pending   map[string]*pendingCall

	destroyed bool
}

// ServerOption configures optional Server collaborators.
type ServerOption func(*Server)

// WithLogger installs a Logger a Server reports dropped/failed calls
// through; the default is a no-op, matching mnet.Transport's own Option
// pattern.
func WithLogger(l mnet.Logger) ServerOption { return func(s *Server) { s.log = l } }

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// NewServer constructs an RPC server object listening on port. sharePort
// asserts that other Server objects may already (or will later) claim the
// same port on the same transport.
func NewServer(transport *mnet.Transport, port uint16, sharePort bool, receiver interface{}, opts ...ServerOption) (*Server, error) {
	s := &Server{
		transport: transport,
		port:      port,
		receiver:  receiver,
		dropTime:  12 * time.Second,
		log:       nopLogger{},
		functions: make(map[string]*Declaration),
		handlers:  make(map[string]Handler),
		pending:   make(map[string]*pendingCall),
	}
	for _, opt := range opts {
		opt(s)
	}
	r := routerFor(transport)
	if err := r.register(port, s, sharePort); err != nil {
		return nil, err
	}
	s.router = r
	return s, nil
}

// SetDropTime overrides how long a sync call waits for its reply before
// failing with ErrSyncTimeout (defaults to 12s, mnet's default dropTime; it
// does not follow the transport's configured DropTime).
func (s *Server) SetDropTime(d time.Duration) { s.dropTime = d }

// DeclareFunction registers name's typed signature (§4.10). It must be
// called before SetHandler(name, ...) and before any call mode uses it.
func (s *Server) DeclareFunction(name string, argSpec, returnSpec []Param) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functions[name] = &Declaration{Name: name, ArgSpec: argSpec, ReturnSpec: returnSpec}
}

// AddDeclarations registers every entry of table at once.
func (s *Server) AddDeclarations(table []Declaration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range table {
		d := table[i]
		s.functions[d.Name] = &d
	}
}

// SetHandler installs the body for a previously declared function
// (mirrors the spec's `functions[name] = handler` assignment).
func (s *Server) SetHandler(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

func (s *Server) declaration(name string) (*Declaration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.functions[name]
	return d, ok
}

func (s *Server) handler(name string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[name]
	return h, ok
}

func (s *Server) isDestroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed
}

// Async fires a message with no acknowledgement or reply expected. host
// may be mnet.Broadcast.
func (s *Server) Async(name string, host mnet.Host, args ...interface{}) error {
	return s.send(name, host, args, kindAsync, false, false)
}

// Call sends reliably and waits for the transport-level ack only, not for
// any application-level reply.
func (s *Server) Call(name string, host mnet.Host, args ...interface{}) error {
	return s.send(name, host, args, kindCall, true, true)
}

// Sync sends reliably, waits for ack, then waits for a correlated reply
// carrying the remote handler's return values, or ErrSyncTimeout once
// dropTime elapses (§4.10 "Correlation").
func (s *Server) Sync(name string, host mnet.Host, args ...interface{}) ([]interface{}, error) {
	if s.isDestroyed() {
		return nil, ErrDestroyed
	}
	d, ok := s.declaration(name)
	if !ok {
		return nil, ErrUnknownFunction
	}
	if err := d.validateArgs(args); err != nil {
		return nil, err
	}

	token := xid.New().String()
	pc := &pendingCall{done: make(chan syncResult, 1)}
	s.mu.Lock()
	s.pending[token] = pc
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, token)
		s.mu.Unlock()
	}()

	payload, err := encodeMessage(message{kind: kindSync, token: token, function: name, args: args})
	if err != nil {
		return nil, err
	}
	if _, err := s.transport.Send(host, s.port, payload, true, true); err != nil {
		return nil, err
	}

	select {
	case res := <-pc.done:
		return res.values, res.err
	case <-time.After(s.dropTime):
		return nil, ErrSyncTimeout
	}
}

func (s *Server) send(name string, host mnet.Host, args []interface{}, kind messageKind, reliable, waitForAck bool) error {
	if s.isDestroyed() {
		return ErrDestroyed
	}
	d, ok := s.declaration(name)
	if !ok {
		return ErrUnknownFunction
	}
	if err := d.validateArgs(args); err != nil {
		return err
	}
	payload, err := encodeMessage(message{kind: kind, function: name, args: args})
	if err != nil {
		return err
	}
	_, err = s.transport.Send(host, s.port, payload, reliable, waitForAck)
	return err
}

// handleMessage decodes one arriving payload and dispatches it: a reply
// resolves a pending sync call; a call/async/sync message runs the
// declared handler and, for sync, sends back a correlated reply. Returns
// whether this server recognized and consumed the message, letting the
// router try the next server sharing the port (§4.10).
func (s *Server) handleMessage(host mnet.Host, port uint16, raw []byte) bool {
	msg, err := decodeMessage(raw)
	if err != nil {
		return false
	}

	if msg.kind == kindReply {
		s.mu.RLock()
		pc, ok := s.pending[msg.token]
		s.mu.RUnlock()
		if !ok {
			return false
		}
		if msg.err != "" {
			pc.done <- syncResult{err: errors.New(msg.err)}
		} else {
			pc.done <- syncResult{values: msg.args}
		}
		return true
	}

	d, ok := s.declaration(msg.function)
	if !ok {
		return false
	}
	h, ok := s.handler(msg.function)
	if !ok {
		return false
	}
	if err := d.validateArgs(msg.args); err != nil {
		return true
	}

	values, handlerErr := h(s.receiver, string(host), msg.args)
	if handlerErr != nil {
		// §7 "Handler error (mrpc)": a raising handler sends no reply at
		// all, so a waiting Sync call sees a drop and fails via
		// ErrSyncTimeout rather than an immediate error.
		s.log.Warnf("mrpc: handler %q raised for caller %s: %v", msg.function, host, handlerErr)
		return true
	}

	if msg.kind == kindSync {
		reply := message{kind: kindReply, token: msg.token, function: msg.function}
		if d.ReturnSpec != nil {
			if verr := d.validateReturn(values); verr != nil {
				reply.err = verr.Error()
			} else {
				reply.args = values
			}
		}
		payload, err := encodeMessage(reply)
		if err == nil {
			_, _ = s.transport.Send(host, port, payload, true, false)
		}
	}
	return true
}

// Destroy unregisters this server from its port; the underlying
// *mnet.Transport is left open since other servers may still use it.
func (s *Server) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()
	s.router.unregister(s.port, s)
}
