package endpoints

import (
	"fmt"
	"net/http"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/lexshelf/internal/api"
	"github.com/jackzampolin/lexshelf/internal/store"
	"github.com/jackzampolin/lexshelf/internal/svcctx"
)

// ListWorksResponse is the response for listing works.
type ListWorksResponse struct {
	Works []store.WorkSummary `json:"works"`
}

func (r ListWorksResponse) TableHeader() table.Row {
	return table.Row{"WORK", "SOURCE PAGES", "INDEX", "FORMATTED", "VIRTUAL PAGES", "SUMMARIZED"}
}

func (r ListWorksResponse) TableRows() []table.Row {
	rows := make([]table.Row, len(r.Works))
	for i, w := range r.Works {
		summarized := "-"
		if w.TotalChapters > 0 {
			summarized = fmt.Sprintf("%d/%d", w.ChaptersGenerated, w.TotalChapters)
		}
		rows[i] = table.Row{w.WorkID, w.SourcePages, w.IndexEntries, w.FormattedChapters, w.VirtualPages, summarized}
	}
	return rows
}

// ListWorksEndpoint handles GET /api/works.
type ListWorksEndpoint struct{}

var _ api.Endpoint = (*ListWorksEndpoint)(nil)

func (e *ListWorksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/works", e.handler
}

func (e *ListWorksEndpoint) RequiresInit() bool { return true }

func (e *ListWorksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	works, err := st.Works(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if works == nil {
		works = []store.WorkSummary{}
	}
	writeJSON(w, http.StatusOK, ListWorksResponse{Works: works})
}

func (e *ListWorksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List works and their pipeline progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListWorksResponse
			if err := client.Get(cmd.Context(), "/api/works", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
