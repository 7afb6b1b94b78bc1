package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shellkeep"

// Registry holds all agent metrics.
type Registry struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Cache metrics
	CacheLookups   *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec

	// Sync queue metrics
	QueueDepth     prometheus.Gauge
	QueuedTotal    prometheus.Counter
	ReplayOutcomes *prometheus.CounterVec

	// Connectivity
	Offline          prometheus.Gauge
	EventSubscribers prometheus.Gauge

	ServingCertExpiry prometheus.Gauge
}

// NewRegistry creates a registry with Go runtime and process collectors
// plus every agent metric.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled by the agent",
		}, []string{"route", "method", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}, []string{"route", "method"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Offline cache lookups by class and result",
		}, []string{"class", "result"}),
		CacheEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries removed by activation, by class and reason",
		}, []string{"class", "reason"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "queue_depth",
			Help:      "Requests waiting for replay",
		}),
		QueuedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "queued_total",
			Help:      "Requests deferred while offline",
		}),
		ReplayOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "replay_total",
			Help:      "Replay outcomes (success, failed, expired)",
		}, []string{"result"}),
		Offline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline",
			Help:      "1 when the upstream is unreachable",
		}),
		EventSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Live event stream subscribers",
		}),
		ServingCertExpiry: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tls",
			Name:      "serving_cert_not_after_seconds",
			Help:      "Expiry of the served certificate as a Unix timestamp",
		}),
	}
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry() })
	return global
}

// Handler serves the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Registerer exposes the underlying registry for components that own
// their own collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Handler serves r in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordRequest counts one handled request.
func (r *Registry) RecordRequest(route, method, status string) {
	r.RequestsTotal.WithLabelValues(route, method, status).Inc()
}

// ObserveRequestDuration records request latency in seconds.
func (r *Registry) ObserveRequestDuration(route, method string, seconds float64) {
	r.RequestDuration.WithLabelValues(route, method).Observe(seconds)
}

// RecordCacheLookup counts a cache lookup; result is "hit" or "miss".
func (r *Registry) RecordCacheLookup(class, result string) {
	r.CacheLookups.WithLabelValues(class, result).Inc()
}

// AddCacheEvictions counts entries removed from class.
func (r *Registry) AddCacheEvictions(class, reason string, n int) {
	if n > 0 {
		r.CacheEvictions.WithLabelValues(class, reason).Add(float64(n))
	}
}

// IncQueued counts one deferred request.
func (r *Registry) IncQueued() {
	r.QueuedTotal.Inc()
}

// SetQueueDepth records the current queue length.
func (r *Registry) SetQueueDepth(n int) {
	r.QueueDepth.Set(float64(n))
}

// AddReplayOutcome counts n replay results of one kind.
func (r *Registry) AddReplayOutcome(result string, n int) {
	if n > 0 {
		r.ReplayOutcomes.WithLabelValues(result).Add(float64(n))
	}
}

// SetOffline records the connectivity state.
func (r *Registry) SetOffline(offline bool) {
	if offline {
		r.Offline.Set(1)
	} else {
		r.Offline.Set(0)
	}
}

// SetEventSubscribers records the live subscriber count.
func (r *Registry) SetEventSubscribers(n int) {
	r.EventSubscribers.Set(float64(n))
}

// SetServingCertExpiry records when the served certificate expires.
func (r *Registry) SetServingCertExpiry(notAfter time.Time) {
	r.ServingCertExpiry.Set(float64(notAfter.Unix()))
}
