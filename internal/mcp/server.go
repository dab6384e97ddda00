// Package mcp exposes the filtered network to MCP clients over stdio.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/addrlinks/internal/mcp/tools"
)

// ServerName is reported to clients during initialization
const ServerName = "addrlinks"

// NewServer registers every tool on a new MCP server
func NewServer(deps tools.Deps, version string) *sdk.Server {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	server := sdk.NewServer(&sdk.Implementation{Name: ServerName, Version: version}, nil)

	filterGraph := tools.NewFilterGraphTool(deps)
	sdk.AddTool(server, filterGraph.Definition(), filterGraph.Handle)

	topShared := tools.NewTopSharedTool(deps)
	sdk.AddTool(server, topShared.Definition(), topShared.Handle)

	deps.Logger.WithField("tools", 2).Info("mcp tools registered")
	return server
}

// ServeStdio blocks serving JSON-RPC on stdin/stdout until ctx is done or
// the client disconnects
func ServeStdio(ctx context.Context, server *sdk.Server) error {
	return server.Run(ctx, &sdk.StdioTransport{})
}
