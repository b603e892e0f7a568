package cmd

import (
	"github.com/huangsam/covagg/core"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/spf13/cobra"
)

// reportCmd writes the aggregated coverage report.
var reportCmd = &cobra.Command{
	Use:   "report [project-dir]",
	Short: "Aggregate coverage of all modules into one report.",
	Long: `Discover the modules of a multi-module Maven build, merge their execution data
and write one combined coverage report.

Each module becomes a bundle of the report group. The project given (or the current
directory) is the reporting project; its siblings under the parent are aggregated.

Examples:
  # Aggregate from the report module of a build
  covagg report ./report

  # Aggregate integration test data collected in one place
  covagg report . --data-root ./it-results

  # Only XML for CI ingestion, without the console summary
  covagg report --formats xml --quiet

  # Record each run in the history store
  covagg report --history-backend sqlite`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteReport(rootCtx, cfg, historyManager); err != nil {
			contract.LogFatal("Cannot write coverage report", err)
		}
	},
}

// modulesCmd lists the modules a report would visit.
var modulesCmd = &cobra.Command{
	Use:   "modules [project-dir]",
	Short: "List the modules that a report run would aggregate.",
	Long: `Resolve the module tree without reading any execution data or class files.

Modules are printed in the order their bundles appear in the report.

Examples:
  # Show the bundles of the current build
  covagg modules

  # Export the module list as JSON
  covagg modules --output-file modules.json`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteModules(rootCtx, cfg, historyManager); err != nil {
			contract.LogFatal("Cannot resolve modules", err)
		}
	},
}
