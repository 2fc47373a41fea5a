// Package metrics exposes Prometheus collectors for the search cache, the
// realtime bridge and tracked resources.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Iron-Ham/taskscope/internal/realtime"
	"github.com/Iron-Ham/taskscope/internal/search"
	"github.com/Iron-Ham/taskscope/internal/tracker"
)

const namespace = "taskscope"

// Metrics holds every collector on its own registry. It implements
// search.Recorder, realtime.Recorder and tracker.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheInvalidations *prometheus.CounterVec
	cacheEvicted       *prometheus.CounterVec
	cacheEntries       prometheus.Gauge
	searchDuration     *prometheus.HistogramVec
	searchDiscarded    prometheus.Counter

	messagesReceived  *prometheus.CounterVec
	messagesDiscarded *prometheus.CounterVec
	updatesApplied    prometheus.Counter
	updatesRejected   prometheus.Counter
	connected         *prometheus.GaugeVec

	resourcesAcquired *prometheus.CounterVec
	resourcesActive   *prometheus.GaugeVec
	computeDuration   *prometheus.HistogramVec
}

var (
	_ search.Recorder   = (*Metrics)(nil)
	_ realtime.Recorder = (*Metrics)(nil)
	_ tracker.Recorder  = (*Metrics)(nil)
)

// Option configures New.
type Option func(*options)

type options struct {
	goCollector      bool
	processCollector bool
}

// WithRuntimeCollectors also registers the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(o *options) {
		o.goCollector = true
		o.processCollector = true
	}
}

// New creates and registers the collectors on a fresh registry.
func New(opts ...Option) *Metrics {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Search cache lookups that found an entry.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Search cache lookups that found nothing.",
		}),
		cacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "invalidations_total",
			Help: "Cache invalidation passes by reason.",
		}, []string{"reason"}),
		cacheEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evicted_entries_total",
			Help: "Cache entries removed by invalidation, by reason.",
		}, []string{"reason"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "entries",
			Help: "Current number of cached search results.",
		}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search", Name: "duration_seconds",
			Help:    "Search execution latency, cache hits included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		searchDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search", Name: "stale_discarded_total",
			Help: "Search results dropped because a newer search had been issued.",
		}),

		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "realtime", Name: "messages_total",
			Help: "Decoded inbound messages by type.",
		}, []string{"type"}),
		messagesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "realtime", Name: "discarded_total",
			Help: "Inbound messages dropped, by reason.",
		}, []string{"reason"}),
		updatesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "realtime", Name: "updates_applied_total",
			Help: "Task updates merged into the collection.",
		}),
		updatesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "realtime", Name: "updates_rejected_total",
			Help: "Task updates rejected by the transition table.",
		}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "realtime", Name: "connected",
			Help: "1 while a connection of the given type is open.",
		}, []string{"connection_type"}),

		resourcesAcquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "acquired_total",
			Help: "Tracked resources acquired, by kind.",
		}, []string{"kind"}),
		resourcesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "active",
			Help: "Tracked resources not yet released, by kind.",
		}, []string{"kind"}),
		computeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "compute_duration_seconds",
			Help:    "Duration of tracked computations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.cacheHits, m.cacheMisses, m.cacheInvalidations, m.cacheEvicted, m.cacheEntries,
		m.searchDuration, m.searchDiscarded,
		m.messagesReceived, m.messagesDiscarded, m.updatesApplied, m.updatesRejected, m.connected,
		m.resourcesAcquired, m.resourcesActive, m.computeDuration,
	)
	if o.goCollector {
		m.registry.MustRegister(collectors.NewGoCollector())
	}
	if o.processCollector {
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// search.Recorder

func (m *Metrics) CacheHit()  { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss() { m.cacheMisses.Inc() }

func (m *Metrics) CacheInvalidated(reason string, removed int) {
	m.cacheInvalidations.WithLabelValues(reason).Inc()
	m.cacheEvicted.WithLabelValues(reason).Add(float64(removed))
}

func (m *Metrics) CacheSize(n int) { m.cacheEntries.Set(float64(n)) }

func (m *Metrics) SearchCompleted(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.searchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) SearchDiscarded() { m.searchDiscarded.Inc() }

// realtime.Recorder

func (m *Metrics) MessageReceived(msgType string) { m.messagesReceived.WithLabelValues(msgType).Inc() }
func (m *Metrics) MessageDiscarded(reason string) { m.messagesDiscarded.WithLabelValues(reason).Inc() }
func (m *Metrics) UpdateApplied()                 { m.updatesApplied.Inc() }
func (m *Metrics) UpdateRejected()                { m.updatesRejected.Inc() }

func (m *Metrics) ConnectionState(connectionType string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	m.connected.WithLabelValues(connectionType).Set(v)
}

// tracker.Recorder

func (m *Metrics) ResourceAcquired(kind string) {
	m.resourcesAcquired.WithLabelValues(kind).Inc()
	m.resourcesActive.WithLabelValues(kind).Inc()
}

func (m *Metrics) ResourceReleased(kind string) { m.resourcesActive.WithLabelValues(kind).Dec() }

func (m *Metrics) ComputeRecorded(kind string, d time.Duration) {
	m.computeDuration.WithLabelValues(kind).Observe(d.Seconds())
}
