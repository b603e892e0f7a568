package cmd

import (
	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/internal/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the covagg MCP server",
	Long:  `Launch an MCP server over stdio that lets AI agents aggregate and check coverage via standard tools.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		// Logs go to stderr, so stdio stays clean for the protocol.
		return sharedSetup(rootCtx, cmd, args)
	},
	Run: func(_ *cobra.Command, _ []string) {
		if err := mcp.StartMCPServer(rootCtx, cfg, version); err != nil {
			contract.LogFatal("MCP server stopped", err)
		}
	},
}
