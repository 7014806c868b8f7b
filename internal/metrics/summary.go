package metrics

import (
	"fmt"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// Summary aggregates the recorder's counters for the CLI and JSON API.
type Summary struct {
	Attempts    map[string]int `json:"attempts"`     // by outcome
	ByProvider  map[string]int `json:"by_provider"`  // attempts by provider/model
	Exhausted   map[string]int `json:"exhausted"`    // by call kind
	BudgetStops map[string]int `json:"budget_stops"` // by pipeline
	Media       map[string]int `json:"media"`        // kind/result
	Rewrites    map[string]int `json:"rewrites"`     // kept or substituted
	Invocations map[string]int `json:"invocations"`  // pipeline/outcome

	AvgInvocationSeconds map[string]float64 `json:"avg_invocation_seconds"`
}

// Summary gathers the current counter values.
func (r *Recorder) Summary() (*Summary, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	s := &Summary{
		Attempts:             map[string]int{},
		ByProvider:           map[string]int{},
		Exhausted:            map[string]int{},
		BudgetStops:          map[string]int{},
		Media:                map[string]int{},
		Rewrites:             map[string]int{},
		Invocations:          map[string]int{},
		AvgInvocationSeconds: map[string]float64{},
	}
	for _, mf := range families {
		name := strings.TrimPrefix(mf.GetName(), namespace+"_")
		for _, m := range mf.GetMetric() {
			labels := labelMap(m)
			count := int(m.GetCounter().GetValue())
			switch name {
			case "provider_attempts_total":
				s.Attempts[labels["outcome"]] += count
				s.ByProvider[labels["provider"]+"/"+labels["model"]] += count
			case "provider_exhausted_total":
				s.Exhausted[labels["kind"]] += count
			case "pipeline_budget_stops_total":
				s.BudgetStops[labels["pipeline"]] += count
			case "summarize_media_total":
				s.Media[labels["kind"]+"/"+labels["result"]] += count
			case "format_rewrites_total":
				s.Rewrites[labels["result"]] += count
			case "pipeline_invocations_total":
				s.Invocations[labels["pipeline"]+"/"+labels["outcome"]] += count
			case "pipeline_invocation_duration_seconds":
				h := m.GetHistogram()
				if n := h.GetSampleCount(); n > 0 {
					s.AvgInvocationSeconds[labels["pipeline"]] = h.GetSampleSum() / float64(n)
				}
			}
		}
	}
	return s, nil
}

func labelMap(m *dto.Metric) map[string]string {
	out := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}
