// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page kinds.
const (
	KindRoot  = "root"
	KindIndex = "index"
	KindItem  = "item"
)

// Outcome labels shared across collectors.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusRateLimited = "rate_limited"
)

var (
	pagesTotal                 *prometheus.CounterVec
	itemsRecordedTotal         *prometheus.CounterVec
	dedupSkipsTotal            prometheus.Counter
	artifactDownloadsTotal     *prometheus.CounterVec
	artifactBytesTotal         prometheus.Counter
	classifierAttemptsTotal    *prometheus.CounterVec
	labelsTotal                *prometheus.CounterVec
	hostWaitSeconds            *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_total",
				Help: "Catalog pages fetched, labeled by page kind and status.",
			},
			[]string{"kind", "status"},
		)

		itemsRecordedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_items_recorded_total",
				Help: "Items appended to the metadata store, labeled by whether the artifact was downloaded.",
			},
			[]string{"downloaded"},
		)

		dedupSkipsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_dedup_skips_total",
				Help: "Item pages skipped because their artifact URL was already recorded.",
			},
		)

		artifactDownloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_artifact_downloads_total",
				Help: "Artifact download attempts, labeled by status.",
			},
			[]string{"status"},
		)

		artifactBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_artifact_bytes_total",
				Help: "Bytes written to local artifact storage.",
			},
		)

		classifierAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_classifier_attempts_total",
				Help: "Remote classification calls, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		labelsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_labels_total",
				Help: "Labels assigned during enrichment.",
			},
			[]string{"label"},
		)

		hostWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_host_wait_seconds",
				Help:    "Time spent waiting on the per-host request limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage counts one catalog page fetch.
func ObservePage(kind, status string) {
	Init()
	pagesTotal.WithLabelValues(kind, status).Inc()
}

// ObserveItemRecorded counts one appended item.
func ObserveItemRecorded(downloaded bool) {
	Init()
	itemsRecordedTotal.WithLabelValues(strconv.FormatBool(downloaded)).Inc()
}

// ObserveDedupSkip counts one item skipped by the dedup index.
func ObserveDedupSkip() {
	Init()
	dedupSkipsTotal.Inc()
}

// ObserveDownload counts one artifact download and the bytes it wrote.
func ObserveDownload(status string, bytesWritten int64) {
	Init()
	artifactDownloadsTotal.WithLabelValues(status).Inc()
	if bytesWritten > 0 {
		artifactBytesTotal.Add(float64(bytesWritten))
	}
}

// ObserveClassifierAttempt counts one remote classification call.
func ObserveClassifierAttempt(outcome string) {
	Init()
	classifierAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveLabel counts one label assignment.
func ObserveLabel(label string) {
	Init()
	labelsTotal.WithLabelValues(label).Inc()
}

// ObserveHostWait records how long a request waited for its host's limiter.
func ObserveHostWait(host string, waited time.Duration) {
	Init()
	hostWaitSeconds.WithLabelValues(host).Observe(waited.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
