package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/lexshelf/internal/api"
	"github.com/jackzampolin/lexshelf/internal/store"
	"github.com/jackzampolin/lexshelf/internal/svcctx"
	"github.com/jackzampolin/lexshelf/internal/types"
)

// VirtualPagesResponse is the response for reading virtual pages.
type VirtualPagesResponse struct {
	WorkID string              `json:"workId"`
	Pages  []types.VirtualPage `json:"pages"`
}

func (r VirtualPagesResponse) TableHeader() table.Row {
	return table.Row{"PAGE", "CHAPTER", "START", "CHARS", "COVER"}
}

func (r VirtualPagesResponse) TableRows() []table.Row {
	rows := make([]table.Row, len(r.Pages))
	for i, p := range r.Pages {
		chapter := ""
		if p.ChapterNumber != nil {
			chapter = fmt.Sprintf("%d. %s", *p.ChapterNumber, p.ChapterTitle)
		}
		rows[i] = table.Row{p.PageNumber, chapter, p.IsChapterStart, utf8.RuneCountInString(p.Content), p.CoverImageURL != ""}
	}
	return rows
}

// VirtualPagesEndpoint handles GET /api/works/{id}/pages.
type VirtualPagesEndpoint struct{}

var _ api.Endpoint = (*VirtualPagesEndpoint)(nil)

func (e *VirtualPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/works/{id}/pages", e.handler
}

func (e *VirtualPagesEndpoint) RequiresInit() bool { return true }

func (e *VirtualPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	from, err := pageParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := pageParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	workID := r.PathValue("id")
	pages, err := st.VirtualPages(r.Context(), workID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pages == nil {
		pages = []types.VirtualPage{}
	}
	writeJSON(w, http.StatusOK, VirtualPagesResponse{WorkID: workID, Pages: pages})
}

func pageParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (e *VirtualPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	var from, to int
	cmd := &cobra.Command{
		Use:   "pages <work-id>",
		Short: "Read formatted virtual pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/works/%s/pages?from=%d&to=%d", args[0], from, to)
			client := api.NewClient(getServerURL())
			var resp VirtualPagesResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "First page number")
	cmd.Flags().IntVar(&to, "to", 0, "Last page number (0 for all)")
	return cmd
}

// StructureResponse is the persisted summary state of a work.
type StructureResponse struct {
	WorkID            string           `json:"workId"`
	Title             string           `json:"title,omitempty"`
	Phase             types.Phase      `json:"phase"`
	TotalChapters     int              `json:"totalChapters"`
	ChaptersGenerated int              `json:"chaptersGenerated"`
	ChapterStructure  []types.Chapter  `json:"chapterStructure"`
	Questions         []types.Question `json:"questions"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

func (r StructureResponse) TableHeader() table.Row {
	return table.Row{"#", "TITLE", "PAGES", "IMAGE", "AUDIO", "ATTEMPTED"}
}

func (r StructureResponse) TableRows() []table.Row {
	rows := make([]table.Row, len(r.ChapterStructure))
	for i, ch := range r.ChapterStructure {
		rows[i] = table.Row{ch.Number, ch.Title, fmt.Sprintf("%d-%d", ch.StartPage, ch.EndPage), ch.ImageURL != "", ch.AudioURL != "", ch.MediaAttempted}
	}
	return rows
}

// StructureEndpoint handles GET /api/works/{id}/structure.
type StructureEndpoint struct{}

var _ api.Endpoint = (*StructureEndpoint)(nil)

func (e *StructureEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/works/{id}/structure", e.handler
}

func (e *StructureEndpoint) RequiresInit() bool { return true }

func (e *StructureEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	job, err := st.GetJob(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no chapter structure for this work")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StructureResponse{
		WorkID:            job.WorkID,
		Title:             job.Title,
		Phase:             job.Phase(),
		TotalChapters:     job.TotalChapters,
		ChaptersGenerated: job.ChaptersGenerated,
		ChapterStructure:  job.ChapterStructure,
		Questions:         job.Questions,
		UpdatedAt:         job.UpdatedAt,
	})
}

func (e *StructureEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "structure <work-id>",
		Short: "Show the generated chapter structure and media progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StructureResponse
			if err := client.Get(cmd.Context(), "/api/works/"+args[0]+"/structure", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
