package cmd

import (
	"runtime"

	"github.com/huangsam/covagg/internal/execdata"
	"github.com/spf13/cobra"
)

// versionCmd shows the verbose version for diagnostic purposes.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of covagg.",
	Long: `Display version information including build details and the
execution data format version this build reads and writes.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("covagg CLI\n")
		cmd.Printf("  Version:     %s\n", version)
		cmd.Printf("  Commit:      %s\n", commit)
		cmd.Printf("  Built:       %s\n", date)
		cmd.Printf("  Runtime:     %s\n", runtime.Version())
		cmd.Printf("  Exec format: 0x%04X\n", execdata.FormatVersion)
	},
}
