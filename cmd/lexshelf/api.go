package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/lexshelf/internal/api"
	"github.com/jackzampolin/lexshelf/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running lexshelf server via HTTP.

These commands require a running server (lexshelf serve).
Use --server to specify a custom server URL.

Examples:
  lexshelf api health                              # Check server health
  lexshelf api works upload-pages torts pages.json # Store OCR pages
  lexshelf api works format torts --all            # Format until complete
  lexshelf api works summarize torts --all         # Run every summary batch
  lexshelf api works pages torts --from 1 --to 5   # Read virtual pages`,
}

var worksCmd = &cobra.Command{
	Use:   "works",
	Short: "Work ingestion, pipelines and reading",
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Provider and pipeline metrics",
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect prompt templates and overrides",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func addCommands(parent *cobra.Command, eps []api.Endpoint) {
	for _, ep := range eps {
		parent.AddCommand(ep.Command(getServerURL))
	}
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	addCommands(apiCmd, endpoints.HealthCommands())
	addCommands(worksCmd, endpoints.WorkCommands())
	addCommands(metricsCmd, endpoints.MetricsCommands())
	addCommands(promptsCmd, endpoints.PromptCommands())

	apiCmd.AddCommand(worksCmd)
	apiCmd.AddCommand(metricsCmd)
	apiCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(apiCmd)
}
