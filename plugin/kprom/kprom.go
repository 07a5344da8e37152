// Package kprom provides a kgo.Hook that exports connection, write, read,
// throttle, and disconnect events as Prometheus metrics.
package kprom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wireproto/kgo/kgo"
)

// Metrics is a kgo.Hook implementing ConnectHook, WriteHook, ReadHook,
// ThrottleHook, and DisconnectHook. The zero value is not usable; build one
// with NewMetrics.
type Metrics struct {
	connectsTotal    *prometheus.CounterVec
	connectSeconds   *prometheus.HistogramVec
	writeBytesTotal  *prometheus.CounterVec
	writeErrorsTotal *prometheus.CounterVec
	writeSeconds     *prometheus.HistogramVec
	readBytesTotal   *prometheus.CounterVec
	readErrorsTotal  *prometheus.CounterVec
	readSeconds      *prometheus.HistogramVec
	throttleSeconds  *prometheus.HistogramVec
	disconnectsTotal *prometheus.CounterVec
}

// Opt configures a Metrics on construction.
type Opt interface {
	apply(*cfg)
}

type cfg struct {
	namespace string
	reg       prometheus.Registerer
}

type opt func(*cfg)

func (o opt) apply(c *cfg) { o(c) }

// WithNamespace sets the Prometheus namespace prefixed to every metric name.
// Defaults to "kgo".
func WithNamespace(ns string) Opt {
	return opt(func(c *cfg) { c.namespace = ns })
}

// WithRegisterer sets the registry metrics are registered against. Defaults
// to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Opt {
	return opt(func(c *cfg) { c.reg = reg })
}

// NewMetrics builds and registers a Metrics collector. It panics if
// registration fails, except that a collector the registerer already holds
// (prometheus.AlreadyRegisteredError) is skipped and left unregistered,
// matching the teacher corpus's init-time collector
// registration convention (kprom's own go.mod has no populated source in
// this pack; grounded on expansive_prometheus's presence among the teacher's
// examples as the domain dependency this plugin exists to exercise).
func NewMetrics(opts ...Opt) *Metrics {
	c := cfg{namespace: "kgo", reg: prometheus.DefaultRegisterer}
	for _, o := range opts {
		o.apply(&c)
	}

	connLabels := []string{"addr"}
	m := &Metrics{
		connectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace, Name: "connects_total",
			Help: "Total number of connection attempts, by result.",
		}, []string{"addr", "result"}),
		connectSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace, Name: "connect_seconds",
			Help: "Time to establish a connection.", Buckets: prometheus.DefBuckets,
		}, connLabels),
		writeBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace, Name: "write_bytes_total",
			Help: "Total bytes written to broker connections.",
		}, connLabels),
		writeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace, Name: "write_errors_total",
			Help: "Total request write failures.",
		}, connLabels),
		writeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace, Name: "write_seconds",
			Help: "Time to write a request frame.", Buckets: prometheus.DefBuckets,
		}, connLabels),
		readBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace, Name: "read_bytes_total",
			Help: "Total bytes read from broker connections.",
		}, connLabels),
		readErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace, Name: "read_errors_total",
			Help: "Total response read failures.",
		}, connLabels),
		readSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace, Name: "read_seconds",
			Help: "Time to read a response frame.", Buckets: prometheus.DefBuckets,
		}, connLabels),
		throttleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace, Name: "throttle_seconds",
			Help: "Broker-applied throttle duration, as reported in responses.",
			Buckets: prometheus.DefBuckets,
		}, connLabels),
		disconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace, Name: "disconnects_total",
			Help: "Total connection teardowns, by result.",
		}, []string{"addr", "result"}),
	}

	for _, coll := range []prometheus.Collector{
		m.connectsTotal, m.connectSeconds,
		m.writeBytesTotal, m.writeErrorsTotal, m.writeSeconds,
		m.readBytesTotal, m.readErrorsTotal, m.readSeconds,
		m.throttleSeconds, m.disconnectsTotal,
	} {
		if err := c.reg.Register(coll); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			panic(err)
		}
	}
	return m
}

// OnConnect implements kgo.ConnectHook.
func (m *Metrics) OnConnect(e kgo.ConnectEvent) {
	result := "ok"
	if e.Err != nil {
		result = "error"
	}
	m.connectsTotal.WithLabelValues(e.Addr, result).Inc()
	if e.Err == nil {
		m.connectSeconds.WithLabelValues(e.Addr).Observe(e.Dur.Seconds())
	}
}

// OnWrite implements kgo.WriteHook.
func (m *Metrics) OnWrite(e kgo.WriteEvent) {
	if e.Err != nil {
		m.writeErrorsTotal.WithLabelValues(e.Addr).Inc()
		return
	}
	m.writeBytesTotal.WithLabelValues(e.Addr).Add(float64(e.BytesWritten))
	m.writeSeconds.WithLabelValues(e.Addr).Observe(e.TimeToWrite.Seconds())
}

// OnRead implements kgo.ReadHook.
func (m *Metrics) OnRead(e kgo.ReadEvent) {
	if e.Err != nil {
		m.readErrorsTotal.WithLabelValues(e.Addr).Inc()
		return
	}
	m.readBytesTotal.WithLabelValues(e.Addr).Add(float64(e.BytesRead))
	m.readSeconds.WithLabelValues(e.Addr).Observe(e.TimeToRead.Seconds())
}

// OnThrottle implements kgo.ThrottleHook.
func (m *Metrics) OnThrottle(e kgo.ThrottleEvent) {
	m.throttleSeconds.WithLabelValues(e.Addr).Observe(float64(e.ThrottleMillis) / 1000)
}

// OnDisconnect implements kgo.DisconnectHook.
func (m *Metrics) OnDisconnect(e kgo.DisconnectEvent) {
	result := "clean"
	if e.Err != nil {
		result = "error"
	}
	m.disconnectsTotal.WithLabelValues(e.Addr, result).Inc()
}
