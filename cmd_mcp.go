package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/factlens/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the evaluation tools over MCP on stdio",
	Long: `Starts an MCP server over stdin/stdout exposing evaluate_statement,
get_evaluation, list_evaluations and list_agents. Logs go to stderr.`,
	RunE: runMCP,
}

func runMCP(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcp.NewServer(mcp.Deps{
		Orchestrator: a.orch,
		DB:           a.db,
		AuditLog:     a.auditLog,
		Ledger:       a.metricsDB,
	}, version)

	a.logger.Info("starting MCP server over stdio", "agents", a.orch.Agents())
	return server.ServeStdio(srv)
}
