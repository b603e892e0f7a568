package cmd

import (
	"fmt"
	"os"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/internal/history"
	"github.com/huangsam/covagg/internal/outwriter"
	"github.com/huangsam/covagg/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// historyConfig loads the history backend settings without validating a project.
func historyConfig() error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	backend, err := contract.ParseHistoryBackend(viper.GetString("history-backend"))
	if err != nil {
		return err
	}
	connStr := viper.GetString("history-db-connect")
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}

	cfg.HistoryBackend = backend
	cfg.HistoryDBConnect = connStr
	cfg.OutputFile = viper.GetString("output-file")
	return nil
}

// historySetup loads minimal configuration and opens the history store.
func historySetup(_ *cobra.Command, _ []string) error {
	if err := historyConfig(); err != nil {
		return err
	}
	if err := history.InitHistory(cfg.HistoryBackend, cfg.HistoryDBConnect); err != nil {
		return fmt.Errorf("failed to initialize history: %w", err)
	}
	return nil
}

// historyMigrateSetup loads minimal configuration without opening the store,
// so migrations can run against a database at any version.
func historyMigrateSetup(_ *cobra.Command, _ []string) error {
	return historyConfig()
}

// historyCmd focused on coverage history management.
//
// Note: History subcommands use minimal initialization instead of the full
// sharedSetup. They never need a project directory.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage recorded coverage history and exports",
	Long: `Manage the coverage history recorded by report runs.

When a history backend is configured, every report run stores:
- Run metadata (timestamp, title, configuration, duration)
- Missed and covered counts of every bundle

Supported backends: SQLite, MySQL, PostgreSQL, or None (disabled, the default)

Subcommands:
  status  - Show history statistics
  export  - Export data to Parquet for analytics
  clear   - Remove all history data
  migrate - Run database schema migrations

Examples:
  # Check history status
  covagg history status --history-backend sqlite

  # Export for analysis in pandas/DuckDB
  covagg history export --history-backend sqlite --output-file coverage`,
}

// historyStatusCmd shows history status.
var historyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display history statistics and connection details",
	Long: `Show the backend, connection state, run counts and table sizes of the history store.

Examples:
  COVAGG_HISTORY_BACKEND=sqlite covagg history status`,
	PreRunE: historySetup,
	Run: func(_ *cobra.Command, _ []string) {
		status := schema.HistoryStatus{Backend: string(cfg.HistoryBackend)}
		if store := historyManager.GetHistoryStore(); store != nil {
			var err error
			if status, err = store.GetStatus(); err != nil {
				contract.LogFatal("Failed to get history status", err)
			}
		}
		if err := outwriter.WriteHistoryStatus(os.Stdout, status); err != nil {
			contract.LogFatal("Failed to print history status", err)
		}
	},
}

// historyClearCmd clears the history data.
var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all recorded coverage history",
	Long: `Delete all stored report runs and bundle coverage records.

For SQLite: Deletes the database file
For MySQL/PostgreSQL: Drops the history tables

WARNING: This action cannot be undone. Consider exporting data first.

Examples:
  covagg history export --history-backend sqlite --output-file backup
  covagg history clear --history-backend sqlite`,
	PreRunE: historyMigrateSetup,
	Run: func(_ *cobra.Command, _ []string) {
		if err := history.ClearHistory(cfg.HistoryBackend, cfg.HistoryDBConnect); err != nil {
			contract.LogFatal("Failed to clear history", err)
		}
		fmt.Println("History cleared successfully.")
	},
}

// historyExportCmd exports history data to Parquet files.
var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export coverage history to Parquet for BI tools and analytics",
	Long: `Export all stored history to Parquet files.

Writes two datasets next to --output-file:
- <output-file>.runs.parquet    - one row per report run
- <output-file>.bundles.parquet - one row per bundle per run

Requires: --output-file parameter

Examples:
  covagg history export --history-backend sqlite --output-file coverage
  duckdb -c "SELECT * FROM read_parquet('coverage.bundles.parquet') LIMIT 10"`,
	PreRunE: historySetup,
	Run: func(_ *cobra.Command, _ []string) {
		if err := history.ExecuteExport(os.Stdout, historyManager.GetHistoryStore(), cfg.OutputFile); err != nil {
			contract.LogFatal("Failed to export history", err)
		}
	},
}

// historyMigrateCmd runs database migrations for the history store.
var historyMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage database schema versions for the history store.

By default, migrates to the latest version. Use --target-version for specific versions.

Examples:
  # Migrate to latest version (default)
  covagg history migrate --history-backend sqlite

  # Migrate to specific version
  covagg history migrate --history-backend sqlite --target-version 1

  # Rollback everything
  covagg history migrate --history-backend sqlite --target-version 0`,
	PreRunE: historyMigrateSetup,
	Run: func(_ *cobra.Command, _ []string) {
		res, err := history.Migrate(cfg.HistoryBackend, cfg.HistoryDBConnect, viper.GetInt("target-version"))
		if err != nil {
			contract.LogFatal("Failed to run migrations", err)
		}
		if !res.Changed {
			fmt.Printf("Database is already at version %d.\n", res.To)
			return
		}
		fmt.Printf("Migrated from version %d to %d.\n", res.From, res.To)
	},
}
