package main

import (
	"github.com/spf13/cobra"

	"github.com/rohankatakam/addrlinks/internal/cache"
	"github.com/rohankatakam/addrlinks/internal/config"
	"github.com/rohankatakam/addrlinks/internal/pipeline"
	"github.com/rohankatakam/addrlinks/internal/server"
	"github.com/rohankatakam/addrlinks/internal/storage"
)

var (
	serveAddr    string
	serveOpen    bool
	serveEnsure  bool
	serveNoWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interactive network viewer and JSON API",
	Long: `Start the HTTP server: the network viewer at /, the JSON API under /api,
health at /health and Prometheus metrics at /metrics.

The server reloads the tables whenever they change on disk.

Examples:
  addrlinks serve --ensure --open
  addrlinks serve --addr :8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().BoolVar(&serveOpen, "open", false, "open the viewer in a browser")
	serveCmd.Flags().BoolVar(&serveEnsure, "ensure", false, "build the tables first if they do not exist")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "do not reload when the tables change")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveOpen {
		cfg.Server.OpenBrowser = true
	}
	if serveNoWatch {
		cfg.Server.Watch = false
	}

	result := cfg.Validate(config.ValidationContextServe)
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	if err := result.Err(); err != nil {
		return err
	}

	store, err := storage.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if serveEnsure {
		if _, err := pipeline.EnsureBuilt(ctx, cfg, store, logger); err != nil {
			return err
		}
	}

	results, err := cache.NewResultCache(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer results.Close()

	return server.New(cfg, store, results, logger).Start(ctx)
}
