// Package cmd defines the command-line interface for covagg.
package cmd

import (
	"github.com/huangsam/covagg/internal/contract"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(execInfoCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	// Add the history subcommands to the parent history command
	historyCmd.AddCommand(historyStatusCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("data-root", "", "Aggregate only this directory's execution data against the current project")
	rootCmd.PersistentFlags().String("output-dir", contract.DefaultOutputDir, "Report output directory, relative to the project")
	rootCmd.PersistentFlags().StringSlice("formats", []string{"html", "xml", "csv"}, "Report formats: html, xml, csv")
	rootCmd.PersistentFlags().String("source-encoding", "", "Source file encoding (defaults to the module's project.build.sourceEncoding)")
	rootCmd.PersistentFlags().String("output-encoding", contract.DefaultEncoding, "Encoding of the written reports")
	rootCmd.PersistentFlags().String("locale", contract.DefaultLocale, "Locale for numbers in the HTML report")
	rootCmd.PersistentFlags().String("title", "", "Report title (defaults to the project name)")
	rootCmd.PersistentFlags().String("footer", "", "Footer text for the HTML report")
	rootCmd.PersistentFlags().Bool("include-current-project", false, "Include the current project as a bundle")
	rootCmd.PersistentFlags().StringSlice("includes", nil, "Class file patterns to include (e.g. org/acme/**)")
	rootCmd.PersistentFlags().StringSlice("excludes", nil, "Class file patterns to exclude")
	rootCmd.PersistentFlags().StringSlice("data-file-includes", []string{contract.DefaultDataFileInclude}, "Execution data file patterns, relative to each module")
	rootCmd.PersistentFlags().StringSlice("data-file-excludes", nil, "Execution data file patterns to skip")
	rootCmd.PersistentFlags().Int("workers", contract.DefaultWorkers, "Number of concurrent workers")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Do not print the console summary")
	rootCmd.PersistentFlags().String("verbosity", contract.DefaultVerbosity, "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("history-backend", "", "History backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("history-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write console output to (.json and .csv switch the format)")
	rootCmd.PersistentFlags().String("profile", "", "Enable profiling and write profiles to files with this prefix")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of checkCmd to Viper
	checkCmd.Flags().String("limits", "", "Coverage limits (format: 'bundle:line:0.8,class:branch:missedcount:3')")
	if err := viper.BindPFlags(checkCmd.Flags()); err != nil {
		contract.LogFatal("Error binding check flags", err)
	}

	// Bind all flags of mergeCmd to Viper
	mergeCmd.Flags().String("dest-file", "", "Path of the merged execution data file")
	if err := viper.BindPFlags(mergeCmd.Flags()); err != nil {
		contract.LogFatal("Error binding merge flags", err)
	}

	// Bind all flags of historyMigrateCmd to Viper
	historyMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(historyMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding history migrate flags", err)
	}
}
