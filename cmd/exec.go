package cmd

import (
	"github.com/huangsam/covagg/core"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// execSetup runs the shared setup against the current directory.
// Positional args of exec commands are files, not a project.
func execSetup(cmd *cobra.Command, _ []string) error {
	return sharedSetup(rootCtx, cmd, nil)
}

// execInfoCmd prints what an execution data file contains.
var execInfoCmd = &cobra.Command{
	Use:   "execinfo <file>...",
	Short: "Show sessions and class counts of execution data files.",
	Long: `Read execution data files and print their sessions and record counts.

Examples:
  # Inspect a module's data
  covagg execinfo core/target/jacoco.exec

  # As JSON
  covagg execinfo target/*.exec --output-file info.json`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: execSetup,
	Run: func(_ *cobra.Command, args []string) {
		if err := core.ExecuteExecInfo(rootCtx, cfg, args); err != nil {
			contract.LogFatal("Cannot read execution data", err)
		}
	},
}

// mergeCmd merges execution data files.
var mergeCmd = &cobra.Command{
	Use:   "merge --dest-file <out> <file>...",
	Short: "Merge execution data files into one file.",
	Long: `Merge several execution data files into one.

Sessions are kept in order. Probe arrays of the same class are OR-ed together;
a class whose probe count differs between files is an error.

Examples:
  covagg merge --dest-file target/merged.exec a/target/jacoco.exec b/target/jacoco.exec`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: execSetup,
	Run: func(_ *cobra.Command, args []string) {
		if err := core.ExecuteMerge(rootCtx, cfg, viper.GetString("dest-file"), args); err != nil {
			contract.LogFatal("Cannot merge execution data", err)
		}
	},
}
