package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/lexshelf/internal/api"
	"github.com/jackzampolin/lexshelf/internal/home"
	"github.com/jackzampolin/lexshelf/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "lexshelf",
	Short: "Study material generation for legal texts",
	Long: `lexshelf turns OCR'd legal textbooks into readable virtual pages and
per-chapter study material.

The server runs two resumable pipelines, each bounded to a short invocation:
  - format: segment chapters, optionally rewrite OCR noise, paginate
  - summarize: chapter summaries, key points, citations, practice examples,
    review questions, then cover images and audio narration in batches`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.lexshelf/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "lexshelf home directory (default: ~/.lexshelf)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or table",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// getHome returns the home directory, creating it if needed.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}

// configPath prefers --config, then the home directory's config file.
// An empty result lets viper search its default paths.
func configPath(h *home.Dir) string {
	if cfgFile != "" {
		return cfgFile
	}
	if h.ConfigExists() {
		return h.ConfigPath()
	}
	return ""
}
