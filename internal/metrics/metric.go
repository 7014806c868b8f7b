// Package metrics exposes Prometheus collectors for provider calls and the
// two pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lexshelf"

// metricSet holds every metric the Recorder updates.
type metricSet struct {
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	exhausted       *prometheus.CounterVec

	budgetStops *prometheus.CounterVec
	media       *prometheus.CounterVec
	rewrites    *prometheus.CounterVec
	rewriteRate prometheus.Histogram

	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
}

func newMetricSet(reg prometheus.Registerer) *metricSet {
	f := promauto.With(reg)
	return &metricSet{
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "attempts_total",
				Help:      "Provider attempts by kind, provider, model and outcome",
			},
			[]string{"kind", "provider", "model", "outcome"},
		),
		attemptDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "attempt_duration_seconds",
				Help:      "Duration of a single provider attempt",
				Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"kind", "provider"},
		),
		exhausted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "exhausted_total",
				Help:      "Calls whose every fallback candidate failed",
			},
			[]string{"kind"},
		),
		budgetStops: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "budget_stops_total",
				Help:      "Invocations that deferred work after crossing the time budget margin",
			},
			[]string{"pipeline"},
		),
		media: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "summarize",
				Name:      "media_total",
				Help:      "Chapter media attempts by kind and result",
			},
			[]string{"kind", "result"},
		),
		rewrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "format",
				Name:      "rewrites_total",
				Help:      "Chapter rewrites kept or replaced by the original text",
			},
			[]string{"result"},
		),
		rewriteRate: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "format",
				Name:      "preservation_ratio",
				Help:      "Rewritten to original length ratio",
				Buckets:   []float64{.25, .5, .75, .85, .9, .95, 1, 1.05, 1.25},
			},
		),
		invocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "invocations_total",
				Help:      "Pipeline invocations by outcome",
			},
			[]string{"pipeline", "outcome"},
		),
		invocationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "invocation_duration_seconds",
				Help:      "Wall-clock duration of a pipeline invocation",
				Buckets:   []float64{1, 5, 10, 30, 60, 75, 85, 120},
			},
			[]string{"pipeline"},
		),
	}
}
