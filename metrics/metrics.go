// Package metrics exposes socket activity as Prometheus metrics.
//
// A nil *Collector is valid and records nothing, so sockets can be built
// without metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector aggregates counters for every socket sharing it.
type Collector struct {
	polls          *prometheus.CounterVec
	packetsIn      *prometheus.CounterVec
	packetsOut     *prometheus.CounterVec
	bytesOut       prometheus.Counter
	flushes        *prometheus.CounterVec
	parseErrors    prometheus.Counter
	opens          prometheus.Counter
	closes         *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	listenerPanics prometheus.Counter
}

// NewCollector creates unregistered metrics under namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Receive requests completed, by result.",
		}, []string{"result"}),
		packetsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Packets decoded from receive payloads, by type.",
		}, []string{"type"}),
		packetsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Packets confirmed delivered, by type.",
		}, []string{"type"}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_sent_total",
			Help:      "Bytes of payload bodies confirmed delivered.",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Send flushes completed, by result.",
		}, []string{"result"}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Receive payloads rejected by the decoder.",
		}),
		opens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Handshakes completed.",
		}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sockets_closed_total",
			Help:      "Sockets that reached CLOSED, by cleanliness.",
		}, []string{"clean"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "send_queue_depth",
			Help:      "Packets waiting in send queues.",
		}),
		listenerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_panics_total",
			Help:      "Panics recovered from notification listeners.",
		}),
	}
}

// Collectors returns every metric, for registration.
func (c *Collector) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.polls, c.packetsIn, c.packetsOut, c.bytesOut, c.flushes,
		c.parseErrors, c.opens, c.closes, c.queueDepth, c.listenerPanics,
	}
}

// Register registers all metrics with reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, m := range c.Collectors() {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// RecordPoll records a completed receive request.
func (c *Collector) RecordPoll(ok bool) {
	if c == nil {
		return
	}
	c.polls.WithLabelValues(result(ok)).Inc()
}

// RecordPacketIn records a received packet.
func (c *Collector) RecordPacketIn(typ string) {
	if c == nil {
		return
	}
	c.packetsIn.WithLabelValues(typ).Inc()
}

// RecordParseError records a rejected payload.
func (c *Collector) RecordParseError() {
	if c == nil {
		return
	}
	c.parseErrors.Inc()
}

// RecordFlush records a completed flush. types lists the delivered packet
// types and is only counted on success.
func (c *Collector) RecordFlush(ok bool, types []string, bytes int) {
	if c == nil {
		return
	}
	c.flushes.WithLabelValues(result(ok)).Inc()
	if !ok {
		return
	}
	for _, t := range types {
		c.packetsOut.WithLabelValues(t).Inc()
	}
	c.bytesOut.Add(float64(bytes))
}

// QueueAdd adjusts the send queue depth gauge.
func (c *Collector) QueueAdd(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Add(float64(n))
}

// RecordOpen records a completed handshake.
func (c *Collector) RecordOpen() {
	if c == nil {
		return
	}
	c.opens.Inc()
}

// RecordClose records a socket reaching CLOSED.
func (c *Collector) RecordClose(clean bool) {
	if c == nil {
		return
	}
	c.closes.WithLabelValues(strconv.FormatBool(clean)).Inc()
}

// RecordListenerPanic records a recovered listener panic.
func (c *Collector) RecordListenerPanic() {
	if c == nil {
		return
	}
	c.listenerPanics.Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
