// Package core has core logic for module discovery, coverage aggregation and rule checks.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/internal/execdata"
	"github.com/huangsam/covagg/internal/outwriter"
	"github.com/huangsam/covagg/internal/pom"
	"github.com/huangsam/covagg/schema"
)

// ExecutorFunc defines the function signature for executing different commands.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, mgr contract.HistoryManager) error

// ExecuteReport aggregates coverage, writes the configured report formats and prints a summary.
// It serves as the main entry point for the 'report' command.
func ExecuteReport(ctx context.Context, cfg *contract.Config, mgr contract.HistoryManager) error {
	start := time.Now()
	if !shouldSuppressHeader(ctx) && !cfg.Quiet {
		outwriter.LogReportHeader(cfg)
	}

	visitors, err := outwriter.CreateVisitors(cfg.Formats, ReportConfig(cfg))
	if err != nil {
		return err
	}
	res, err := Aggregate(ctx, cfg, visitors)
	if err != nil {
		return err
	}
	recordRun(cfg, mgr, res, start)

	if cfg.Quiet {
		return nil
	}
	return outwriter.WriteSummary(res, cfg, time.Since(start))
}

// ReportConfig binds the report formatters to the run configuration.
func ReportConfig(cfg *contract.Config) outwriter.ReportConfig {
	return outwriter.ReportConfig{
		Fs:        cfg.FS(),
		OutputDir: cfg.OutputDir,
		Encoding:  cfg.OutputEncoding,
		Locale:    cfg.Locale,
		Footer:    cfg.Footer,
	}
}

// ExecuteModules lists the modules a report run would visit, in visit order.
func ExecuteModules(_ context.Context, cfg *contract.Config, _ contract.HistoryManager) error {
	modules, err := ResolveModules(cfg)
	if err != nil {
		return err
	}
	return outwriter.WriteModules(modules, cfg)
}

// ResolveModules returns the modules a report run would visit without loading any data.
func ResolveModules(cfg *contract.Config) ([]schema.ModuleDescriptor, error) {
	plan, err := planModules(cfg, pom.NewResolver(cfg.FS()))
	if err != nil {
		return nil, err
	}
	return plan.modules, nil
}

// ExecuteExecInfo prints the sessions and record counts of execution data files.
func ExecuteExecInfo(_ context.Context, cfg *contract.Config, files []string) error {
	if len(files) == 0 {
		return errors.New("no execution data files given")
	}
	infos := make([]schema.ExecFileInfo, 0, len(files))
	for _, f := range files {
		info, err := execdata.Inspect(cfg.FS(), f)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}
	return outwriter.WriteExecInfo(infos, cfg)
}

// ExecuteMerge merges execution data files into one destination file.
func ExecuteMerge(_ context.Context, cfg *contract.Config, dest string, files []string) error {
	if dest == "" {
		return errors.New("--dest-file is required for merge")
	}
	if len(files) == 0 {
		return errors.New("no execution data files given")
	}
	info, err := execdata.Merge(cfg.FS(), dest, files)
	if err != nil {
		return err
	}
	contract.LogInfo("Merged %d files into %s: %d sessions, %d classes", len(files), dest, len(info.Sessions), info.Records)
	return nil
}
