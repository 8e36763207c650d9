// Package metrics exposes Prometheus counters for the wiki and the user registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wikiloult/app/internal/domain/users"
	"wikiloult/app/internal/domain/wiki"
)

const namespace = "wikiloult"

// Metrics owns a dedicated registry so tests and tools can build several instances.
type Metrics struct {
	registry *prometheus.Registry

	pageSaves        *prometheus.CounterVec
	previews         prometheus.Counter
	searches         prometheus.Counter
	searchHits       prometheus.Histogram
	registrations    prometheus.Counter
	purged           prometheus.Counter
	rateLimited      *prometheus.CounterVec
	requestDurations *prometheus.HistogramVec
}

var (
	_ wiki.Metrics  = (*Metrics)(nil)
	_ users.Metrics = (*Metrics)(nil)
)

// New registers every collector on a fresh registry, including the Go runtime collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		pageSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_saves_total",
			Help:      "Saved page revisions by kind (create, edit, restore)",
		}, []string{"kind"}),
		previews: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "previews_total",
			Help:      "Rendered previews that were not persisted",
		}),
		searches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Search queries served",
		}),
		searchHits: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_hits",
			Help:      "Number of pages returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
		}),
		registrations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identities_registered_total",
			Help:      "Identities registered for the first time",
		}),
		purged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identities_purged_total",
			Help:      "Idle identities removed by administrators",
		}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter",
		}, []string{"limiter"}),
		requestDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and status",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "status"}),
	}
}

// PageSaved counts a persisted create, edit or restore.
func (m *Metrics) PageSaved(kind string) {
	m.pageSaves.WithLabelValues(kind).Inc()
}

// PreviewRendered counts a preview request.
func (m *Metrics) PreviewRendered() {
	m.previews.Inc()
}

// SearchPerformed counts a search and records its hit count.
func (m *Metrics) SearchPerformed(hits int) {
	m.searches.Inc()
	m.searchHits.Observe(float64(hits))
}

// IdentityRegistered counts a first registration.
func (m *Metrics) IdentityRegistered() {
	m.registrations.Inc()
}

// IdentitiesPurged adds the number of purged identities.
func (m *Metrics) IdentitiesPurged(count int64) {
	if count > 0 {
		m.purged.Add(float64(count))
	}
}

// RateLimited counts a request rejected by the named limiter.
func (m *Metrics) RateLimited(limiter string) {
	m.rateLimited.WithLabelValues(limiter).Inc()
}

// ObserveRequest records the latency of a served HTTP request.
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	m.requestDurations.WithLabelValues(method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry for scraping in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
