package core

import (
	"time"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/schema"
)

// recordRun stores the bundle counters of a finished run when a history store is configured.
// Tracking failures are logged and never fail the run.
func recordRun(cfg *contract.Config, mgr contract.HistoryManager, res *schema.AggregateResult, start time.Time) {
	if mgr == nil {
		return
	}
	store := mgr.GetHistoryStore()
	if store == nil {
		return
	}

	formats := make([]string, len(cfg.Formats))
	for i, f := range cfg.Formats {
		formats[i] = string(f)
	}
	configParams := map[string]any{
		"project_dir":             cfg.ProjectDir,
		"data_root":               cfg.DataRoot,
		"output_dir":              cfg.OutputDir,
		"formats":                 formats,
		"include_current_project": cfg.IncludeCurrentProject,
		"workers":                 cfg.Workers,
	}
	runID, err := store.BeginRun(start, res.Group.Name, configParams)
	if err != nil {
		contract.LogWarn("History tracking initialization failed", err)
		return
	}

	summary := schema.Summarize(res)
	now := time.Now()
	for _, b := range summary.Bundles {
		if err := store.RecordBundle(runID, b, now); err != nil {
			contract.LogWarn("Failed to record bundle "+b.Name, err)
		}
	}
	if err := store.EndRun(runID, time.Now(), len(summary.Bundles)); err != nil {
		contract.LogWarn("Failed to finalize history tracking", err)
	}
}
