package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/lexshelf/internal/config"
	"github.com/jackzampolin/lexshelf/internal/logging"
	"github.com/jackzampolin/lexshelf/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lexshelf server",
	Long: `Start the lexshelf HTTP server.

The server opens the configured store (SQLite under the home directory by
default, or PostgreSQL), writes generated media under the home directory,
and reloads providers and prompt overrides when the config file changes.

The server provides:
  - /health             - Basic server health check
  - /ready              - Readiness check (store and provider registry)
  - /metrics            - Prometheus metrics
  - /api/works/...      - Ingest, format, summarize and read works
  - /media/...          - Generated covers and narration

Examples:
  lexshelf serve                    # Start on the configured port
  lexshelf serve --port 3000        # Start on custom port
  lexshelf serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		cfgMgr, err := config.NewManager(configPath(h))
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg := cfgMgr.Get()

		logger, err := logging.New(logging.Options{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Output: os.Stdout,
		})
		if err != nil {
			return err
		}

		lock := flock.New(h.LockPath())
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return errors.New("another lexshelf server is already running with this home directory")
		}
		defer lock.Unlock()

		cfgMgr.WatchConfig()

		host := serveHost
		if !cmd.Flags().Changed("host") {
			host = cfg.Server.Host
		}
		port := servePort
		if !cmd.Flags().Changed("port") {
			port = cfg.Server.Port
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			Home:          h,
			ConfigManager: cfgMgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to (overrides server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on (overrides server.port)")

	rootCmd.AddCommand(serveCmd)
}
