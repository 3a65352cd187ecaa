package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/letterpress/internal/config"
	"github.com/jackzampolin/letterpress/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only browse API server",
	Long: `Start the HTTP server for browsing the archive.

The server is read only; it never mutates pipeline state. It provides:
  - /health                 - server health check
  - /api/stats              - pipeline progress counts
  - /api/documents          - letter listing with filters and pagination
  - /api/documents/{id}     - one letter with its pages
  - /api/files/{id}         - one page record
  - /api/files/{id}/pdf     - the original scan bytes
  - /api/search             - full-text search over transcriptions
  - /api/filters            - available filter values

Examples:
  letterpress serve                        # default localhost:8000
  letterpress serve --addr 0.0.0.0:9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		addr := serveAddr
		if addr == "" {
			addr = e.cfg.Server.Addr
		}

		// Reload config edits while the server runs. The listen address
		// is fixed for the process lifetime.
		e.mgr.OnChange(func(cfg *config.Config) {
			e.logger.Info("config reloaded")
		})
		e.mgr.WatchConfig()

		srv := server.New(server.Config{
			Addr:   addr,
			Store:  e.store,
			Logger: e.logger,
		})

		// Blocks until the context is cancelled.
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")

	rootCmd.AddCommand(serveCmd)
}
