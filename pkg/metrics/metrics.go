// Package metrics defines the Prometheus collectors of the index service and
// serves them for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "invx"

var (
	httpBuckets   = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	searchBuckets = prometheus.ExponentialBuckets(0.0001, 4, 8)
)

type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Index lifecycle. CollectionsIndexedTotal is labelled created,
	// replaced or rejected.
	CollectionsIndexedTotal *prometheus.CounterVec
	DocsIndexedTotal        prometheus.Counter
	CollectionTerms         *prometheus.GaugeVec
	Collections             prometheus.Gauge

	// Search. result_type is hit, zero_result, empty or error.
	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchTermsCount   prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	// IngestMessagesTotal counts consumed messages as indexed, malformed
	// or rejected.
	IngestMessagesTotal *prometheus.CounterVec
}

// New registers every collector with reg, or with the default registerer
// when reg is nil. Registering twice on one registry panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace, Name: "http_request_duration_seconds",
			Help: "HTTP request latency.", Buckets: httpBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),

		CollectionsIndexedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "collections_indexed_total",
			Help: "CreateIndex outcomes.",
		}, []string{"status"}),
		DocsIndexedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Name: "docs_indexed_total",
			Help: "Documents indexed across all collections.",
		}),
		CollectionTerms: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "collection_terms",
			Help: "Distinct terms in each collection's index.",
		}, []string{"collection"}),
		Collections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "collections",
			Help: "Collections currently indexed.",
		}),

		SearchQueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "search_queries_total",
			Help: "Searches by result type.",
		}, []string{"result_type"}),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace, Name: "search_latency_seconds",
			Help: "Search latency split by cache status.", Buckets: searchBuckets,
		}, []string{"cache_status"}),
		SearchTermsCount: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Name: "search_terms_count",
			Help:    "Flattened terms per search.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Name: "cache_hits_total",
			Help: "Search cache hits.",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Name: "cache_misses_total",
			Help: "Search cache misses.",
		}),

		IngestMessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "ingest_messages_total",
			Help: "Consumed ingest messages by outcome.",
		}, []string{"status"}),
	}
}

// Handler serves gatherer in the Prometheus text format. A nil gatherer
// serves the default registry.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
