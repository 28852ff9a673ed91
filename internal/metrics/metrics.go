package metrics

import (
	"net/http"
	"strconv"

	"github.com/cam3ron2/commit-ingest/internal/model"
	"github.com/cam3ron2/commit-ingest/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "commit_ingest"

var _ webhook.Recorder = (*Recorder)(nil)

// Recorder publishes push pipeline outcomes as Prometheus metrics.
type Recorder struct {
	registry    *prometheus.Registry
	events      *prometheus.CounterVec
	commits     *prometheus.CounterVec
	enrichments *prometheus.CounterVec
	attempts    prometheus.Histogram
	failures    *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
}

// NewRecorder creates a recorder backed by its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_events_total",
			Help:      "Push events processed by result.",
		}, []string{"result"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Commits prepared for persistence by type.",
		}, []string{"type"}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_enrichments_total",
			Help:      "Remote commit lookups by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_enrichment_attempts",
			Help:      "Remote attempts spent per commit lookup.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_failures_total",
			Help:      "Push events that failed by error code.",
		}, []string{"code"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook deliveries by event and HTTP status.",
		}, []string{"event", "status"}),
	}
	r.registry.MustRegister(r.events, r.commits, r.enrichments, r.attempts, r.failures, r.deliveries)
	return r
}

// ObserveEvent counts a processed push event.
func (r *Recorder) ObserveEvent(result string) {
	r.events.WithLabelValues(resultLabel(result)).Inc()
}

// ObserveCommit counts a prepared commit.
func (r *Recorder) ObserveCommit(commitType model.CommitType) {
	r.commits.WithLabelValues(string(commitType)).Inc()
}

// ObserveEnrichment counts a remote commit lookup and its attempts.
func (r *Recorder) ObserveEnrichment(outcome string, attempts int) {
	r.enrichments.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		r.attempts.Observe(float64(attempts))
	}
}

// ObserveFailure counts a failed push event.
func (r *Recorder) ObserveFailure(code string) {
	r.failures.WithLabelValues(code).Inc()
}

// ObserveDelivery counts an HTTP delivery.
func (r *Recorder) ObserveDelivery(event string, status int) {
	if event == "" {
		event = "unknown"
	}
	r.deliveries.WithLabelValues(event, strconv.Itoa(status)).Inc()
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// NewOpenMetricsHandler returns a handler that renders gathered metrics through the Prometheus OpenMetrics encoder.
func NewOpenMetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// resultLabel collapses not-registered results, which embed the repository, into one label.
func resultLabel(result string) string {
	switch result {
	case webhook.ResultNoCommits, webhook.ResultEmptyCommits, webhook.ResultNoRepository, webhook.ResultProcessed:
		return result
	default:
		return "not_registered"
	}
}
