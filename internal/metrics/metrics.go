package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdfetch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rdfetch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	DebridRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdfetch",
		Name:      "debrid_requests_total",
		Help:      "Total Real-Debrid API requests by operation and status code.",
	}, []string{"op", "status"})

	DebridRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rdfetch",
		Name:      "debrid_request_duration_seconds",
		Help:      "Real-Debrid API request duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"op"})

	AvailabilityQueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdfetch",
		Name:      "availability_queries_total",
		Help:      "Instant availability index rebuilds by outcome.",
	}, []string{"outcome"})

	AvailabilityRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rdfetch",
		Name:      "availability_records",
		Help:      "Number of hashes in the current availability index.",
	})

	AvailabilityCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rdfetch",
		Name:      "availability_cache_hits_total",
		Help:      "Total availability lookups served from the shared cache.",
	})

	AvailabilityCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rdfetch",
		Name:      "availability_cache_misses_total",
		Help:      "Total availability lookups forwarded to Real-Debrid.",
	})

	ResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdfetch",
		Name:      "resolutions_total",
		Help:      "Download resolutions by outcome.",
	}, []string{"outcome"})

	ResolutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rdfetch",
		Name:      "resolution_duration_seconds",
		Help:      "Download resolution duration in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	TorrentCleanupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdfetch",
		Name:      "torrent_cleanups_total",
		Help:      "Remote torrent deletions after failed resolutions by status.",
	}, []string{"status"})

	ResolutionInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rdfetch",
		Name:      "resolution_in_progress",
		Help:      "Number of resolution runs still unwinding or running.",
	})

	AuthAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdfetch",
		Name:      "auth_attempts_total",
		Help:      "Device authorization attempts by outcome.",
	}, []string{"outcome"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DebridRequestsTotal,
		DebridRequestDuration,
		AvailabilityQueriesTotal,
		AvailabilityRecords,
		AvailabilityCacheHitsTotal,
		AvailabilityCacheMissesTotal,
		ResolutionsTotal,
		ResolutionDuration,
		TorrentCleanupsTotal,
		ResolutionInProgress,
		AuthAttemptsTotal,
	)
}
