package cmd

import (
	"errors"

	"github.com/huangsam/covagg/core"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/spf13/cobra"
)

// checkCmd focused on CI/CD policy enforcement.
var checkCmd = &cobra.Command{
	Use:   "check [project-dir]",
	Short: "Enforce coverage limits for CI/CD pipelines (fails build on violations)",
	Long: `Aggregate coverage without writing reports and check it against coverage rules.

Rules come from the 'rules' section of the config file and from --limits.
Each limit names an element (bundle, package, class, sourcefile, method), a counter
and a value kind. The command exits non-zero when any limit is violated.

Examples:
  # Require 80% line coverage for every bundle
  covagg check --limits "bundle:line:0.8"

  # Allow at most 3 missed branches per class
  covagg check --limits "class:branch:missedcount:3"

  # Rules from .covagg.yaml
  covagg check ./report`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		err := core.ExecuteCheck(rootCtx, cfg, historyManager)
		if errors.Is(err, core.ErrCheckFailed) {
			contract.LogFatal("Coverage check failed", err)
		}
		if err != nil {
			contract.LogFatal("Cannot run coverage check", err)
		}
	},
}
