package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jackzampolin/lexshelf/internal/format"
	"github.com/jackzampolin/lexshelf/internal/providers"
	"github.com/jackzampolin/lexshelf/internal/summarize"
)

// Recorder updates Prometheus collectors. It observes the provider fallback
// client and both pipelines.
type Recorder struct {
	registry *prometheus.Registry
	c        *metricSet
}

// NewRecorder creates a recorder with its own registry, including the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Recorder{registry: reg, c: newMetricSet(reg)}
}

// Gatherer returns the registry backing this recorder.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveAttempt(a providers.Attempt) {
	r.c.attempts.WithLabelValues(string(a.Kind), a.Provider, a.Model, string(a.Outcome)).Inc()
	r.c.attemptDuration.WithLabelValues(string(a.Kind), a.Provider).Observe(a.Duration.Seconds())
}

func (r *Recorder) ObserveExhausted(kind providers.Kind) {
	r.c.exhausted.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) BudgetStop(pipeline string) {
	r.c.budgetStops.WithLabelValues(pipeline).Inc()
}

func (r *Recorder) MediaResult(kind string, ok bool) {
	r.c.media.WithLabelValues(kind, result(ok, "generated", "missing")).Inc()
}

func (r *Recorder) Rewrite(kept bool, rate float64) {
	r.c.rewrites.WithLabelValues(result(kept, "kept", "substituted")).Inc()
	r.c.rewriteRate.Observe(rate)
}

func (r *Recorder) Invocation(pipeline, outcome string, d time.Duration) {
	r.c.invocations.WithLabelValues(pipeline, outcome).Inc()
	r.c.invocationDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

var (
	_ providers.Observer = (*Recorder)(nil)
	_ summarize.Recorder = (*Recorder)(nil)
	_ format.Recorder    = (*Recorder)(nil)
)
