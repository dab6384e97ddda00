package main

import (
	"github.com/spf13/cobra"

	"github.com/rohankatakam/addrlinks/internal/cache"
	"github.com/rohankatakam/addrlinks/internal/config"
	"github.com/rohankatakam/addrlinks/internal/mcp"
	"github.com/rohankatakam/addrlinks/internal/mcp/tools"
	"github.com/rohankatakam/addrlinks/internal/storage"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the filter tools to MCP clients over stdio",
	Long: `Run an MCP server on stdin/stdout exposing the filter_graph and
top_shared_addresses tools. Logs go to stderr.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := cfg.Validate(config.ValidationContextServe).Err(); err != nil {
		return err
	}

	store, err := storage.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := cache.NewResultCache(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer results.Close()

	server := mcp.NewServer(tools.Deps{
		Snapshots:              cache.NewSnapshotCache(store, 0, logger),
		Results:                results,
		Logger:                 logger,
		DefaultMinContributors: cfg.Filter.DefaultMinContributors,
		TopLimit:               cfg.Filter.TopLimit,
	}, Version)

	logger.WithField("location", store.Location()).Info("mcp server listening on stdio")
	return mcp.ServeStdio(ctx, server)
}
