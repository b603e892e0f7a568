package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/huangsam/covagg/core"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/internal/execdata"
	"github.com/huangsam/covagg/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
}

// projectConfig clones the base config and applies the shared project_path argument.
func (h *toolHandler) projectConfig(request mcp.CallToolRequest) *contract.Config {
	cfg := h.baseCfg.Clone()
	if p := request.GetString("project_path", ""); p != "" {
		cfg.ProjectDir = p
	}
	return cfg
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (h *toolHandler) handleAggregateCoverage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := h.projectConfig(request)
	if d := request.GetString("data_root", ""); d != "" {
		cfg.DataRoot = d
	}
	cfg.IncludeCurrentProject = request.GetBool("include_current_project", cfg.IncludeCurrentProject)

	res, err := core.Aggregate(ctx, cfg, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("aggregation failed: %v", err)), nil
	}
	return jsonResult(schema.Summarize(res))
}

func (h *toolHandler) handleCheckCoverage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := h.projectConfig(request)
	rules, err := contract.ParseLimitsString(request.GetString("limits", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid limits: %v", err)), nil
	}
	if len(rules) == 0 {
		return mcp.NewToolResultError("limits is required"), nil
	}

	res, err := core.Aggregate(ctx, cfg, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("aggregation failed: %v", err)), nil
	}
	result, err := core.CheckRules(res.Group, rules)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("check failed: %v", err)), nil
	}
	return jsonResult(result)
}

func (h *toolHandler) handleListModules(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modules, err := core.ResolveModules(h.projectConfig(request))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("module resolution failed: %v", err)), nil
	}
	return jsonResult(modules)
}

func (h *toolHandler) handleExecInfo(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := request.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}
	info, err := execdata.Inspect(h.baseCfg.FS(), path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot read execution data: %v", err)), nil
	}
	return jsonResult(info)
}
