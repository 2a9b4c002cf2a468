package mcptool

import (
	"context"
	"log/slog"

	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerName is reported to MCP clients.
const ServerName = "meterread"

// NewServer registers the meter tools on a new MCP server.
func NewServer(reader *meter.Reader, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)

	tools := NewTools(reader)
	mcp.AddTool(server, MetadataClassifyWaterMeter, tools.ClassifyWaterMeter)
	mcp.AddTool(server, MetadataReadWaterMeter, tools.ReadWaterMeter)
	return server
}

// ServeStdio serves the tools over stdin/stdout until the client
// disconnects or ctx is cancelled.
func ServeStdio(ctx context.Context, reader *meter.Reader, version string) error {
	slog.Info("starting MCP server", "transport", "stdio", "version", version)
	return NewServer(reader, version).Run(ctx, &mcp.StdioTransport{})
}
