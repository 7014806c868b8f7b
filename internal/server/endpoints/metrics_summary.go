package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/lexshelf/internal/api"
	"github.com/jackzampolin/lexshelf/internal/metrics"
	"github.com/jackzampolin/lexshelf/internal/svcctx"
)

// MetricsSummaryEndpoint handles GET /api/metrics/summary.
type MetricsSummaryEndpoint struct{}

func (e *MetricsSummaryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/metrics/summary", e.handler
}

func (e *MetricsSummaryEndpoint) RequiresInit() bool { return true }

func (e *MetricsSummaryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	rec := svcctx.MetricsFrom(r.Context())
	if rec == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics not initialized")
		return
	}

	summary, err := rec.Summary()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (e *MetricsSummaryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Summarize provider attempts and pipeline outcomes since server start",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp metrics.Summary
			if err := client.Get(cmd.Context(), "/api/metrics/summary", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
