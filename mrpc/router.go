package mrpc

import (
	"sync"
	"time"

	"github.com/meshnet/mnet/mnet"
)

// portRouter is the single consumer of one *mnet.Transport's Receive loop,
// fanning arrivals out to whichever servers are listening on the packet's
// port. mnet.Transport.Receive has exactly one logical consumer per
// process (§5 "no user-visible locking... all mutations happen on the
// scheduler thread"); mrpc needs this extra layer because more than one
// Server may share a port (§4.10), which a raw Receive loop cannot express
// on its own.
type portRouter struct {
	transport *mnet.Transport

	mu       sync.Mutex
	byPort   map[uint16][]*Server
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

var (
	routersMu sync.Mutex
	routers   = map[*mnet.Transport]*portRouter{}
)

func routerFor(t *mnet.Transport) *portRouter {
	routersMu.Lock()
	defer routersMu.Unlock()
	r, ok := routers[t]
	if !ok {
		r = &portRouter{transport: t, byPort: make(map[uint16][]*Server), stopCh: make(chan struct{})}
		routers[t] = r
		go r.evictOnClose()
	}
	return r
}

// evictOnClose removes r from the global registry once its transport shuts
// down, so a closed transport's router and its Server references can be
// garbage collected instead of leaking for the life of the process.
func (r *portRouter) evictOnClose() {
	<-r.transport.Closed()
	r.stop()
	routersMu.Lock()
	if routers[r.transport] == r {
		delete(routers, r.transport)
	}
	routersMu.Unlock()
}

func (r *portRouter) register(port uint16, s *Server, sharePort bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.byPort[port]; len(existing) > 0 && !sharePort {
		return errPortInUse(port)
	}
	r.byPort[port] = append(r.byPort[port], s)
	if !r.started {
		r.started = true
		go r.loop()
	}
	return nil
}

func (r *portRouter) unregister(port uint16, s *Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	servers := r.byPort[port]
	for i, other := range servers {
		if other == s {
			r.byPort[port] = append(servers[:i], servers[i+1:]...)
			break
		}
	}
}

func (r *portRouter) loop() {
	for {
		select {
		case <-r.stopCh:
			return
		case <-r.transport.Closed():
			return
		default:
		}
		host, port, payload, ok := r.transport.Receive(200*time.Millisecond, nil)
		if !ok {
			continue
		}
		r.mu.Lock()
		servers := append([]*Server(nil), r.byPort[port]...)
		r.mu.Unlock()
		for _, s := range servers {
			if s.handleMessage(host, port, payload) {
				break
			}
		}
	}
}

func (r *portRouter) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}
