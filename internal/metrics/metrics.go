// Package metrics exposes Prometheus collectors and rolling latency stats for
// the translation and speech backends.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Backend and cache label values.
const (
	Translation = "translation"
	Speech      = "speech"
)

// Page outcome label values.
const (
	OutcomeCompleted   = "completed"
	OutcomePlaceholder = "placeholder"
	OutcomeError       = "error"
)

// Metrics holds every collector the service exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CacheLookupsTotal    *prometheus.CounterVec
	BackendCallsTotal    *prometheus.CounterVec
	BackendCallDuration  *prometheus.HistogramVec
	BackendRetriesTotal  *prometheus.CounterVec
	PagesProcessedTotal  *prometheus.CounterVec
	PrefetchDroppedTotal prometheus.Counter
	PrefetchQueueDepth   prometheus.Gauge
	ActiveSessions       prometheus.Gauge

	translation *LatencyStats
	speech      *LatencyStats
}

// New creates the collectors on a private registry. statsWindow bounds the
// rolling latency stats served by Stats.
func New(statsWindow time.Duration) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CacheLookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookvoice_cache_lookups_total",
				Help: "Cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
		BackendCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookvoice_backend_calls_total",
				Help: "Backend calls by backend and status",
			},
			[]string{"backend", "status"},
		),
		BackendCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookvoice_backend_call_duration_seconds",
				Help:    "Duration of backend calls in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"backend"},
		),
		BackendRetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookvoice_backend_retries_total",
				Help: "Backend retries by backend",
			},
			[]string{"backend"},
		),
		PagesProcessedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookvoice_pages_processed_total",
				Help: "Pages run through the pipeline by outcome",
			},
			[]string{"outcome"},
		),
		PrefetchDroppedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "bookvoice_prefetch_dropped_total",
				Help: "Prefetch jobs dropped because the queue was full",
			},
		),
		PrefetchQueueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookvoice_prefetch_queue_depth",
				Help: "Prefetch jobs waiting for a worker",
			},
		),
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookvoice_active_sessions",
				Help: "Reading sessions currently held in memory",
			},
		),
		translation: NewLatencyStats(statsWindow),
		speech:      NewLatencyStats(statsWindow),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// BackendCall records one backend round trip.
func (m *Metrics) BackendCall(backend string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BackendCallsTotal.WithLabelValues(backend, status).Inc()
	m.BackendCallDuration.WithLabelValues(backend).Observe(d.Seconds())
	if s := m.latency(backend); s != nil {
		s.Record(d.Milliseconds())
	}
}

func (m *Metrics) Retry(backend string) {
	if m == nil {
		return
	}
	m.BackendRetriesTotal.WithLabelValues(backend).Inc()
}

func (m *Metrics) PageProcessed(outcome string) {
	if m == nil {
		return
	}
	m.PagesProcessedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PrefetchDropped() {
	if m == nil {
		return
	}
	m.PrefetchDroppedTotal.Inc()
}

func (m *Metrics) SetPrefetchQueueDepth(n int) {
	if m == nil {
		return
	}
	m.PrefetchQueueDepth.Set(float64(n))
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// Stats returns rolling latency snapshots keyed by backend.
func (m *Metrics) Stats() map[string]StatsSnapshot {
	if m == nil {
		return map[string]StatsSnapshot{}
	}
	return map[string]StatsSnapshot{
		Translation: m.translation.Snapshot(),
		Speech:      m.speech.Snapshot(),
	}
}

func (m *Metrics) latency(backend string) *LatencyStats {
	switch backend {
	case Translation:
		return m.translation
	case Speech:
		return m.speech
	}
	return nil
}
