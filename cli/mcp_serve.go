package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ollaforge/forgecli/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol integration",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the backend's projects and training controls over MCP stdio",
	Long: `Run an MCP server on stdio. Register it with an MCP client (Claude
Desktop, editors, agents) to let it list projects, inspect training
status, and start or cancel jobs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := mcp.NewServer(serverFlag)
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		return srv.Serve()
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
}
