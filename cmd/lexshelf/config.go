package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/lexshelf/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the lexshelf config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config to the home directory",
	Long: `Write the default configuration to {home}/config.yaml.

API keys are written as ${GEMINI_API_KEY} and ${OPENAI_API_KEY} references
and resolved from the environment when the server starts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		if h.ConfigExists() && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", h.ConfigPath())
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", h.ConfigPath())
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config as loaded from file and environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := config.NewManager(configPath(h))
		if err != nil {
			return err
		}
		if err := mgr.Get().Validate(); err != nil {
			fmt.Printf("# warning: %v\n", err)
		}
		return config.Write(cmd.OutOrStdout(), mgr.Get())
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
