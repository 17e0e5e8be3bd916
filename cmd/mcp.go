package cmd

import (
	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/internal/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the backfill MCP server",
	Long:  `Launch an MCP server that lets AI agents plan, run and monitor backfills via standard tools.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		// Logs go to stderr; stdout carries the protocol.
		return sharedSetup(rootCtx, cmd, args)
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		orch, closeDeps, err := newOrchestrator(rootCtx, cfg)
		if err != nil {
			return err
		}
		defer closeDeps()
		return mcp.StartMCPServer(rootCtx, cfg, orch, contract.Component(logger, "mcp"))
	},
}
