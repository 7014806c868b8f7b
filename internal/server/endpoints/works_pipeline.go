package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/lexshelf/internal/api"
	"github.com/jackzampolin/lexshelf/internal/format"
	"github.com/jackzampolin/lexshelf/internal/summarize"
	"github.com/jackzampolin/lexshelf/internal/svcctx"
)

// FormatEndpoint handles POST /api/works/{id}/format.
type FormatEndpoint struct{}

var _ api.Endpoint = (*FormatEndpoint)(nil)

func (e *FormatEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/works/{id}/format", e.handler
}

func (e *FormatEndpoint) RequiresInit() bool { return true }

func (e *FormatEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	pipeline := svcctx.FormatterFrom(r.Context())
	if pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "format pipeline not initialized")
		return
	}

	resp, err := pipeline.Run(r.Context(), format.Request{WorkID: r.PathValue("id")})
	if errors.Is(err, format.ErrNoContent) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *FormatEndpoint) Command(getServerURL func() string) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "format <work-id>",
		Short: "Run the formatting pipeline for a work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			for {
				var resp format.Response
				if err := client.Post(cmd.Context(), "/api/works/"+args[0]+"/format", nil, &resp); err != nil {
					return err
				}
				if !all || resp.Complete || resp.ChaptersProcessedNow == 0 {
					return api.Output(resp)
				}
				if !api.IsStructuredOutput() {
					fmt.Printf("formatted %d chapters, %d remaining\n", resp.ChaptersProcessedNow, resp.RemainingChapters)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Keep invoking until every chapter is formatted")
	return cmd
}

// SummarizeRequest is the body of a summary invocation.
type SummarizeRequest struct {
	Title                 string `json:"title,omitempty"`
	BatchIndex            int    `json:"batchIndex"`
	ExpectedTotalChapters int    `json:"expectedTotalChapters,omitempty"`
}

// SummarizeErrorResponse is returned when the chapter structure could not
// be generated.
type SummarizeErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SummarizeEndpoint handles POST /api/works/{id}/summarize.
type SummarizeEndpoint struct{}

var _ api.Endpoint = (*SummarizeEndpoint)(nil)

func (e *SummarizeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/works/{id}/summarize", e.handler
}

func (e *SummarizeEndpoint) RequiresInit() bool { return true }

func (e *SummarizeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	orch := svcctx.SummarizerFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "summary pipeline not initialized")
		return
	}

	var req SummarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BatchIndex < 0 {
		writeError(w, http.StatusBadRequest, "batchIndex must not be negative")
		return
	}

	resp, err := orch.Run(r.Context(), summarize.Request{
		WorkID:                r.PathValue("id"),
		Title:                 req.Title,
		BatchIndex:            req.BatchIndex,
		ExpectedTotalChapters: req.ExpectedTotalChapters,
	})
	switch {
	case errors.Is(err, summarize.ErrStructureFailed):
		writeJSON(w, http.StatusBadGateway, SummarizeErrorResponse{Success: false, Error: err.Error()})
	case errors.Is(err, summarize.ErrNoContent):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (e *SummarizeEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		req SummarizeRequest
		all bool
	)
	cmd := &cobra.Command{
		Use:   "summarize <work-id>",
		Short: "Run the summary pipeline for a work",
		Long: `Run one summary batch, or with --all follow nextBatch until the
server reports every chapter processed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			stalled := 0
			for {
				var resp summarize.Response
				if err := client.Post(cmd.Context(), "/api/works/"+args[0]+"/summarize", req, &resp); err != nil {
					return err
				}
				if !all || resp.NextBatch == nil {
					return api.Output(resp)
				}

				if *resp.NextBatch == req.BatchIndex && !resp.BudgetStopped {
					stalled++
				} else {
					stalled = 0
				}
				if stalled >= 3 {
					return fmt.Errorf("batch %d made no progress after %d invocations", req.BatchIndex, stalled)
				}
				if !api.IsStructuredOutput() {
					fmt.Printf("batch %d: %d/%d chapters\n", resp.CurrentBatch, resp.ChaptersGenerated, resp.TotalChapters)
				}
				req.BatchIndex = *resp.NextBatch
			}
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "Work title used in prompts")
	cmd.Flags().IntVar(&req.BatchIndex, "batch", 0, "Batch index to process")
	cmd.Flags().IntVar(&req.ExpectedTotalChapters, "expected-chapters", 0, "Chapter count to ask for when the work has no index")
	cmd.Flags().BoolVar(&all, "all", false, "Keep invoking until every batch is processed")
	return cmd
}
