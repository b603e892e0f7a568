package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/huangsam/covagg/core"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/spf13/cobra"
)

// watchCmd rewrites the report whenever execution data changes.
var watchCmd = &cobra.Command{
	Use:   "watch [project-dir]",
	Short: "Rewrite the report whenever execution data changes.",
	Long: `Write the aggregated report, then watch every module's build directory and
write it again whenever an execution data file is created or updated.

Bursts of writes are coalesced into one run. Stop with Ctrl-C.

Examples:
  # Keep the report fresh while tests run in another terminal
  covagg watch ./report --formats html`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := core.ExecuteWatch(ctx, cfg, historyManager); err != nil {
			contract.LogFatal("Cannot watch execution data", err)
		}
	},
}
