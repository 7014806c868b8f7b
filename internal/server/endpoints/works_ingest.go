package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/lexshelf/internal/api"
	"github.com/jackzampolin/lexshelf/internal/svcctx"
	"github.com/jackzampolin/lexshelf/internal/types"
)

// IngestResponse is the response for page and index uploads.
type IngestResponse struct {
	WorkID string `json:"workId"`
	Stored int    `json:"stored"`
}

// UploadPagesEndpoint handles POST /api/works/{id}/pages.
// Pages are upserted by page number. Formatted chapters are reset because
// their text may have changed.
type UploadPagesEndpoint struct{}

var _ api.Endpoint = (*UploadPagesEndpoint)(nil)

func (e *UploadPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/works/{id}/pages", e.handler
}

func (e *UploadPagesEndpoint) RequiresInit() bool { return true }

func (e *UploadPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	workID := r.PathValue("id")
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	var pages []types.SourcePage
	if err := json.NewDecoder(r.Body).Decode(&pages); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: expected [{pageNumber, rawText}]")
		return
	}
	if len(pages) == 0 {
		writeError(w, http.StatusBadRequest, "at least one page is required")
		return
	}
	for _, p := range pages {
		if p.PageNumber < 1 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid page number %d", p.PageNumber))
			return
		}
	}

	if err := st.UpsertSourcePages(r.Context(), workID, pages); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := st.ResetFormattedChapters(r.Context(), workID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	svcctx.LoggerFrom(r.Context()).Info("source pages stored", "work_id", workID, "pages", len(pages))
	writeJSON(w, http.StatusOK, IngestResponse{WorkID: workID, Stored: len(pages)})
}

func (e *UploadPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload-pages <work-id> <pages.json>",
		Short: "Upload OCR source pages from a JSON array of {pageNumber, rawText}",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pages []types.SourcePage
			if err := readJSONFile(args[1], &pages); err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp IngestResponse
			if err := client.Post(cmd.Context(), "/api/works/"+args[0]+"/pages", pages, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// SetIndexEndpoint handles POST /api/works/{id}/index.
// The index replaces any previous one and resets formatted chapters.
type SetIndexEndpoint struct{}

var _ api.Endpoint = (*SetIndexEndpoint)(nil)

func (e *SetIndexEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/works/{id}/index", e.handler
}

func (e *SetIndexEndpoint) RequiresInit() bool { return true }

func (e *SetIndexEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	workID := r.PathValue("id")
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	var entries []types.ChapterIndexEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: expected [{number, title, startPage}]")
		return
	}

	if err := st.ReplaceChapterIndex(r.Context(), workID, entries); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := st.ResetFormattedChapters(r.Context(), workID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	svcctx.LoggerFrom(r.Context()).Info("chapter index replaced", "work_id", workID, "entries", len(entries))
	writeJSON(w, http.StatusOK, IngestResponse{WorkID: workID, Stored: len(entries)})
}

func (e *SetIndexEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "set-index <work-id> <index.json>",
		Short: "Replace the chapter index from a JSON array of {number, title, startPage}",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []types.ChapterIndexEntry
			if err := readJSONFile(args[1], &entries); err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp IngestResponse
			if err := client.Post(cmd.Context(), "/api/works/"+args[0]+"/index", entries, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
