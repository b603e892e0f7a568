package history

import (
	"errors"
	"fmt"
	"io"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/internal/parquet"
)

// ExecuteExport exports all runs and bundle records to Parquet files next to outputFile.
func ExecuteExport(w io.Writer, store contract.HistoryStore, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}
	if store == nil {
		return errors.New("history is disabled, set --history-backend")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get history status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no history data found to export")
	}

	_, _ = fmt.Fprintf(w, "Exporting data from %s backend...\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Total report runs: %d\n", status.TotalRuns)
	_, _ = fmt.Fprintf(w, "Total bundle records: %d\n", status.TableSizes[bundleCoverageTable])

	runs, err := store.GetAllRuns()
	if err != nil {
		return fmt.Errorf("failed to retrieve report runs: %w", err)
	}
	bundles, err := store.GetAllBundleRecords()
	if err != nil {
		return fmt.Errorf("failed to retrieve bundle records: %w", err)
	}

	runsFile := outputFile + parquet.RunsSuffix
	if err := parquet.WriteReportRunsParquet(parquet.ConvertReportRunRecords(runs), runsFile); err != nil {
		return fmt.Errorf("failed to write report runs: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d report runs to: %s\n", len(runs), runsFile)

	bundlesFile := outputFile + parquet.BundlesSuffix
	if err := parquet.WriteBundleCoverageParquet(parquet.ConvertBundleCoverageRecords(bundles), bundlesFile); err != nil {
		return fmt.Errorf("failed to write bundle records: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d bundle records to: %s\n", len(bundles), bundlesFile)
	return nil
}
