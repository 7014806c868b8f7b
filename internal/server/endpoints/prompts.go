package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/lexshelf/internal/api"
	"github.com/jackzampolin/lexshelf/internal/svcctx"
)

// PromptResponse represents a single prompt as currently resolved.
type PromptResponse struct {
	Key         string   `json:"key"`
	Text        string   `json:"text"`
	Description string   `json:"description,omitempty"`
	Variables   []string `json:"variables,omitempty"`
	Hash        string   `json:"hash"`
	IsOverride  bool     `json:"is_override"`
}

// PromptsListResponse contains all prompts.
type PromptsListResponse struct {
	Prompts []PromptResponse `json:"prompts"`
}

// ListPromptsEndpoint handles GET /api/prompts.
type ListPromptsEndpoint struct{}

func (e *ListPromptsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts", e.handler
}

func (e *ListPromptsEndpoint) RequiresInit() bool { return true }

func (e *ListPromptsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resolver := svcctx.PromptResolverFrom(r.Context())
	if resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "prompt resolver not available")
		return
	}

	embedded := resolver.AllEmbedded()
	resp := PromptsListResponse{Prompts: make([]PromptResponse, 0, len(embedded))}
	for _, p := range embedded {
		resolved, err := resolver.Resolve(p.Key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Prompts = append(resp.Prompts, PromptResponse{
			Key:         p.Key,
			Text:        resolved.Text,
			Description: p.Description,
			Variables:   resolved.Variables,
			Hash:        resolved.Hash,
			IsOverride:  resolved.IsOverride,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListPromptsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all prompts with any config overrides applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp PromptsListResponse
			if err := client.Get(cmd.Context(), "/api/prompts", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetPromptEndpoint handles GET /api/prompts/{key}.
type GetPromptEndpoint struct{}

func (e *GetPromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts/{key}", e.handler
}

func (e *GetPromptEndpoint) RequiresInit() bool { return true }

func (e *GetPromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resolver := svcctx.PromptResolverFrom(r.Context())
	if resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "prompt resolver not available")
		return
	}

	key := r.PathValue("key")
	embedded, ok := resolver.GetEmbedded(key)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("prompt not found: %s", key))
		return
	}
	resolved, err := resolver.Resolve(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PromptResponse{
		Key:         key,
		Text:        resolved.Text,
		Description: embedded.Description,
		Variables:   resolved.Variables,
		Hash:        resolved.Hash,
		IsOverride:  resolved.IsOverride,
	})
}

func (e *GetPromptEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show one prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp PromptResponse
			if err := client.Get(cmd.Context(), "/api/prompts/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
