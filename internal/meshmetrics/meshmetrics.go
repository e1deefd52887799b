// Package meshmetrics exposes the mnet.Metrics packet counters (sent,
// received, dropped, forwarded, duplicate, retransmits, routes learned) as
// Prometheus counters; it has no acked counter and no route cache size
// gauge. It is grounded on the pack's TCPInfoCollector
// (runZeroInc-sockstats/pkg/exporter/exporter.go): a dedicated
// *prometheus.Registry per process rather than the global DefaultRegisterer,
// so more than one mesh node can run in a test binary without collector
// name collisions.
package meshmetrics

import "github.com/prometheus/client_golang/prometheus"

// Collector implements mnet.Metrics with counters registered on its own
// *prometheus.Registry, served by cmd/meshnode at /metrics.
type Collector struct {
	registry *prometheus.Registry

	sent       prometheus.Counter
	received   prometheus.Counter
	dropped    prometheus.Counter
	forwarded  prometheus.Counter
	duplicate  prometheus.Counter
	retransmit prometheus.Counter
	routes     prometheus.Counter
}

// New builds a Collector with its own registry, labeled by hostname so
// several node processes' metrics don't collide if ever scraped together
// behind one federated endpoint.
func New(hostname string) *Collector {
	constLabels := prometheus.Labels{"node": hostname}
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mnet", Name: "packets_sent_total", Help: "Packets handed to a device for transmission.", ConstLabels: constLabels,
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mnet", Name: "packets_received_total", Help: "Packets decoded off a device's inbound channel.", ConstLabels: constLabels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mnet", Name: "packets_dropped_total", Help: "Reliable packets that expired without an ack.", ConstLabels: constLabels,
		}),
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mnet", Name: "packets_forwarded_total", Help: "Packets relayed toward a non-local destination.", ConstLabels: constLabels,
		}),
		duplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mnet", Name: "packets_duplicate_total", Help: "Arrivals recognized as already-seen packet ids.", ConstLabels: constLabels,
		}),
		retransmit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mnet", Name: "retransmits_total", Help: "Reliable packets resent by the retransmit manager.", ConstLabels: constLabels,
		}),
		routes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mnet", Name: "routes_learned_total", Help: "Next-hop routes learned from arriving traffic.", ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(c.sent, c.received, c.dropped, c.forwarded, c.duplicate, c.retransmit, c.routes)
	return c
}

// Registry returns the collector's registry, for cmd/meshnode to serve at
// /metrics via promhttp.HandlerFor.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) PacketSent()      { c.sent.Inc() }
func (c *Collector) PacketReceived()  { c.received.Inc() }
func (c *Collector) PacketDropped()   { c.dropped.Inc() }
func (c *Collector) PacketForwarded() { c.forwarded.Inc() }
func (c *Collector) PacketDuplicate() { c.duplicate.Inc() }
func (c *Collector) Retransmit()      { c.retransmit.Inc() }
func (c *Collector) RouteLearned()    { c.routes.Inc() }
