package cmd

import (
	"github.com/MeKo-Tech/meterread/internal/mcptool"
	"github.com/MeKo-Tech/meterread/internal/version"
	"github.com/spf13/cobra"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve meter tools over the Model Context Protocol on stdio",
		Long: `Serve the classify_water_meter and read_water_meter tools to an MCP client
over stdin and stdout. Logs go to stderr.

Example client configuration:
  {"command": "meterread", "args": ["mcp"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetConfig()
			reader := buildReader(cfg, readerOptions{diagnostics: cfg.OCR.Diagnostics})
			return mcptool.ServeStdio(cmd.Context(), reader, version.Version)
		},
	}
}
