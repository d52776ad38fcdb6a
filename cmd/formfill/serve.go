package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/formfill/formfill/internal/config"
	"github.com/formfill/formfill/internal/home"
	"github.com/formfill/formfill/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the formfill HTTP server",
	Long: `Start the formfill HTTP server.

The server exposes document processing, return preparation, and template
inspection endpoints. Configuration is hot-reloaded when the config file
changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		if err := h.EnsureExists(); err != nil {
			return fmt.Errorf("failed to create home directory: %w", err)
		}

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		mgr.WatchConfig()

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Home:          h,
			ConfigManager: mgr,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind to (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
