// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	LogsFetched       prometheus.Counter
	ChunksFetched     prometheus.Counter
	SpanShrinks       prometheus.Counter
	RateLimitBackoffs prometheus.Counter
	DecodeFailures    prometheus.Counter
	EventsAggregated  *prometheus.CounterVec
	RecordsUpserted   prometheus.Counter
	Bookmark          prometheus.Gauge
	HolderCount       prometheus.Gauge

	// Controller metrics
	Threshold        prometheus.Gauge
	DemandIndex      prometheus.Gauge
	Decision         prometheus.Gauge
	Decisions        *prometheus.CounterVec
	TransactionsSent *prometheus.CounterVec

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg registers on the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "supply_controller"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		LogsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "logs_fetched_total",
			Help:      "Total number of raw logs fetched",
		}),
		ChunksFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "chunks_fetched_total",
			Help:      "Total number of successful eth_getLogs windows",
		}),
		SpanShrinks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "span_shrinks_total",
			Help:      "Total number of window halvings after oversize results",
		}),
		RateLimitBackoffs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "rate_limit_backoffs_total",
			Help:      "Total number of backoff waits after rate limiting",
		}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_failures_total",
			Help:      "Total number of logs skipped because they could not be decoded",
		}),
		EventsAggregated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_aggregated_total",
			Help:      "Total number of decoded events folded into daily buckets by kind",
		}, []string{"kind"}),
		RecordsUpserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_upserted_total",
			Help:      "Total number of daily metrics records upserted",
		}),
		Bookmark: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "bookmark_block",
			Help:      "Last committed block height",
		}),
		HolderCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "holder_count",
			Help:      "Holder count after the last committed run",
		}),

		// Controller metrics
		Threshold: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "threshold",
			Help:      "Adaptive threshold (msct) after the last decision",
		}),
		DemandIndex: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "demand_index",
			Help:      "Demand index of the last decision",
		}),
		Decision: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "decision_percent",
			Help:      "Percent supply change of the last decision",
		}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "decisions_total",
			Help:      "Total number of controller invocations by outcome",
		}, []string{"outcome"}),
		TransactionsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "transactions_total",
			Help:      "Total number of adjustSupply transactions by status",
		}, []string{"status"}),

		// Run metrics
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Total number of runs by phase and status",
		}, []string{"phase", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Run phase duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"phase"}),

		// Health metrics
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Push sends the default registry to a Prometheus Pushgateway.
// One-shot runs exit before a scrape could happen.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// FetchStats is what the log fetcher reports for one walk.
type FetchStats struct {
	Logs     int
	Chunks   int
	Shrinks  int
	Backoffs int
}

// RecordFetch adds the counters of one log walk.
func RecordFetch(s FetchStats) {
	DefaultMetrics.LogsFetched.Add(float64(s.Logs))
	DefaultMetrics.ChunksFetched.Add(float64(s.Chunks))
	DefaultMetrics.SpanShrinks.Add(float64(s.Shrinks))
	DefaultMetrics.RateLimitBackoffs.Add(float64(s.Backoffs))
}

// RecordDecodeFailure increments the decode failure counter.
func RecordDecodeFailure() {
	DefaultMetrics.DecodeFailures.Inc()
}

// RecordEvent increments the aggregated events counter for kind.
func RecordEvent(kind string) {
	DefaultMetrics.EventsAggregated.WithLabelValues(kind).Inc()
}

// RecordCommit updates gauges after an ingestion commit.
func RecordCommit(bookmark uint64, holders, records int) {
	DefaultMetrics.Bookmark.Set(float64(bookmark))
	DefaultMetrics.HolderCount.Set(float64(holders))
	DefaultMetrics.RecordsUpserted.Add(float64(records))
}

// RecordDecision records a controller outcome. Values are only set for decisions.
func RecordDecision(outcome string, threshold, demand, percent float64) {
	DefaultMetrics.Decisions.WithLabelValues(outcome).Inc()
	if outcome != "decision" {
		return
	}
	DefaultMetrics.Threshold.Set(threshold)
	DefaultMetrics.DemandIndex.Set(demand)
	DefaultMetrics.Decision.Set(percent)
}

// RecordTransaction records a submission attempt.
func RecordTransaction(status string) {
	DefaultMetrics.TransactionsSent.WithLabelValues(status).Inc()
}

// RecordRun records a run phase.
func RecordRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.RunDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordSuccess stamps the last successful run time.
func RecordSuccess(unixSeconds float64) {
	DefaultMetrics.LastSuccessfulRun.Set(unixSeconds)
}
