package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/RishiKendai/textpair/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCount counts HTTP requests
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	// RunCount counts comparison runs by final status
	RunCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textpair_runs_total",
			Help: "Total number of comparison runs",
		},
		[]string{"status"},
	)

	// RunDuration measures comparison run duration
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "textpair_run_duration_seconds",
			Help:    "Comparison run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
	)

	// Documents counts source documents by outcome
	Documents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textpair_documents_total",
			Help: "Source documents compared, by outcome",
		},
		[]string{"outcome"},
	)

	// Alignments counts produced and rejected alignments
	Alignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textpair_alignments_total",
			Help: "Alignments produced or rejected, by reason",
		},
		[]string{"result"},
	)

	// Hits counts raw candidate hits
	Hits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "textpair_hits_total",
			Help: "Candidate ngram hits generated",
		},
	)

	// StreamRequests counts run requests taken from the stream, by outcome
	StreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textpair_stream_requests_total",
			Help: "Run requests consumed from the stream, by outcome",
		},
		[]string{"outcome"},
	)

	// ActiveRuns tracks runs currently executing
	ActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "textpair_active_runs",
			Help: "Comparison runs currently executing",
		},
	)
)

var registerOnce sync.Once

// InitPrometheus registers the collectors with the default registry. Safe to
// call more than once.
func InitPrometheus() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCount, RequestDuration, RunCount, RunDuration,
			Documents, Alignments, Hits, StreamRequests, ActiveRuns)
	})
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records the outcome of a finished run
func ObserveRun(status string, s models.RunSummary) {
	RunCount.WithLabelValues(status).Inc()
	RunDuration.Observe(s.Duration.Seconds())
	Documents.WithLabelValues("processed").Add(float64(s.DocumentsProcessed))
	Documents.WithLabelValues("failed").Add(float64(s.DocumentsFailed))
	Documents.WithLabelValues("skipped").Add(float64(s.DocumentsSkipped))
	Alignments.WithLabelValues("produced").Add(float64(s.AlignmentsProduced))
	Alignments.WithLabelValues("too_few_ngrams").Add(float64(s.RejectedTooFew))
	Alignments.WithLabelValues("too_short").Add(float64(s.RejectedTooShort))
	Alignments.WithLabelValues("banal").Add(float64(s.RejectedBanal))
	Hits.Add(float64(s.Hits))
}

// ObserveRequest records one served HTTP request
func ObserveRequest(method, endpoint, status string, elapsed time.Duration) {
	RequestCount.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

// ObserveStreamRequest records what became of one consumed run request
func ObserveStreamRequest(outcome string) {
	StreamRequests.WithLabelValues(outcome).Inc()
}
