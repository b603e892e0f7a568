// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer initializes and configures the coverage MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"Coverage Aggregation Server",
		version,
		server.WithLogging(),
	)

	h := &toolHandler{baseCfg: baseCfg}

	// --- 1. Tool: aggregate_coverage ---
	s.AddTool(mcp.NewTool("aggregate_coverage",
		mcp.WithDescription("Aggregate JaCoCo execution data across the modules of a Maven project and return per-module coverage counters."),
		mcp.WithString("project_path", mcp.Description("Directory or pom.xml of the reporting project (defaults to the configured project).")),
		mcp.WithString("data_root", mcp.Description("Directory searched for execution data; limits the run to the project itself.")),
		mcp.WithBoolean("include_current_project", mcp.Description("Also report the project itself, first.")),
	), h.handleAggregateCoverage)

	// --- 2. Tool: check_coverage ---
	s.AddTool(mcp.NewTool("check_coverage",
		mcp.WithDescription("Check aggregated coverage against limits and list the violations."),
		mcp.WithString("limits", mcp.Description("Comma separated limits in element:counter:value:min form, e.g. 'bundle:line:coveredratio:0.8'."), mcp.Required()),
		mcp.WithString("project_path", mcp.Description("Directory or pom.xml of the reporting project.")),
	), h.handleCheckCoverage)

	// --- 3. Tool: list_modules ---
	s.AddTool(mcp.NewTool("list_modules",
		mcp.WithDescription("List the modules a coverage report would visit, in visit order."),
		mcp.WithString("project_path", mcp.Description("Directory or pom.xml of the reporting project.")),
	), h.handleListModules)

	// --- 4. Tool: exec_info ---
	s.AddTool(mcp.NewTool("exec_info",
		mcp.WithDescription("Describe the sessions and class records of one execution data file."),
		mcp.WithString("path", mcp.Description("Path to the .exec file."), mcp.Required()),
	), h.handleExecInfo)

	return s
}

// StartMCPServer starts the coverage MCP server on stdio.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, version string) error {
	s := NewMCPServer(baseCfg, version)
	return server.ServeStdio(s)
}
