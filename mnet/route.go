package mnet

import (
	"time"

	cache "github.com/patrickmn/go-cache"
)

// routeEntry is the value stored per learned or static route (§3 routeCache
// / staticRoutes tables).
type routeEntry struct {
	deviceHandle string
	addr         DeviceAddr
	lastSeen     time.Time
}

// routeTable is the learned + static next-hop map from §4.4, backed by
// go-cache the way controller/server.go backs its IP rate-limit table
// (cache.New(defaultExpiration, cleanupInterval)) — the teacher's own TTL
// idiom, reused here for the route cache's age > routeTime eviction rule.
type routeTable struct {
	learned *cache.Cache
	static  map[Host]routeEntry
}

func newRouteTable(routeTime time.Duration) *routeTable {
	return &routeTable{
		learned: cache.New(routeTime, routeTime/2+time.Second),
		static:  make(map[Host]routeEntry),
	}
}

// Learn records the next hop a packet from host most recently arrived on,
// unless a static route already claims that host (§4.4).
func (rt *routeTable) Learn(host Host, handle string, addr DeviceAddr) {
	if _, ok := rt.static[host]; ok {
		return
	}
	rt.learned.Set(string(host), routeEntry{deviceHandle: handle, addr: addr, lastSeen: time.Now()}, cache.DefaultExpiration)
}

// AddStatic installs a route that never expires.
func (rt *routeTable) AddStatic(host Host, handle string, addr DeviceAddr) {
	rt.static[host] = routeEntry{deviceHandle: handle, addr: addr}
}

// Lookup resolves a host to a next hop following §4.4's precedence:
// routeCache, then staticRoutes. ok is false when neither has an entry,
// meaning the caller should fall back to broadcasting on all devices.
func (rt *routeTable) Lookup(host Host) (routeEntry, bool) {
	if v, ok := rt.learned.Get(string(host)); ok {
		return v.(routeEntry), true
	}
	if e, ok := rt.static[host]; ok {
		return e, true
	}
	return routeEntry{}, false
}

// Static reports the configured static routes, for getStaticRoutes (§6).
func (rt *routeTable) Static() map[Host]routeEntry {
	out := make(map[Host]routeEntry, len(rt.static))
	for h, e := range rt.static {
		out[h] = e
	}
	return out
}
