// Package parquet provides data structures and functions for exporting coverage
// history to Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"time"

	"github.com/huangsam/covagg/schema"
	"github.com/parquet-go/parquet-go"
)

// File suffixes appended to the export base path.
const (
	RunsSuffix    = ".runs.parquet"
	BundlesSuffix = ".bundles.parquet"
)

// ReportRun represents a single report run with metadata.
// This struct maps to the covagg_report_runs database table.
type ReportRun struct {
	// RunID is the unique identifier for this report run
	RunID int64 `parquet:"run_id,snappy"`

	// RunUUID is the globally unique id of the run
	RunUUID string `parquet:"run_uuid,snappy"`

	// Title is the report title of the run
	Title string `parquet:"title,snappy"`

	// StartTime is when the run began (stored as TIMESTAMP with nanosecond precision)
	StartTime time.Time `parquet:"start_time,snappy"`

	// EndTime is when the run completed (nullable)
	EndTime *time.Time `parquet:"end_time,optional,snappy"`

	// RunDurationMs is the duration of the run in milliseconds (nullable)
	RunDurationMs *int32 `parquet:"run_duration_ms,optional,snappy"`

	// TotalBundles is the number of bundles recorded in this run
	TotalBundles int32 `parquet:"total_bundles,snappy"`

	// ConfigParams contains the JSON-encoded configuration parameters (nullable)
	ConfigParams *string `parquet:"config_params,optional,snappy"`
}

// BundleCoverage represents the counters of one bundle in a run.
// This struct maps to the covagg_bundle_coverage database table.
type BundleCoverage struct {
	RunID              int64     `parquet:"run_id,snappy"`
	BundleName         string    `parquet:"bundle_name,snappy"`
	RecordTime         time.Time `parquet:"record_time,snappy"`
	InstructionMissed  int32     `parquet:"instruction_missed,snappy"`
	InstructionCovered int32     `parquet:"instruction_covered,snappy"`
	BranchMissed       int32     `parquet:"branch_missed,snappy"`
	BranchCovered      int32     `parquet:"branch_covered,snappy"`
	LineMissed         int32     `parquet:"line_missed,snappy"`
	LineCovered        int32     `parquet:"line_covered,snappy"`
	ComplexityMissed   int32     `parquet:"complexity_missed,snappy"`
	ComplexityCovered  int32     `parquet:"complexity_covered,snappy"`
	MethodMissed       int32     `parquet:"method_missed,snappy"`
	MethodCovered      int32     `parquet:"method_covered,snappy"`
	ClassMissed        int32     `parquet:"class_missed,snappy"`
	ClassCovered       int32     `parquet:"class_covered,snappy"`

	// InstructionRatio is the covered instruction ratio, 0 for empty bundles
	InstructionRatio float64 `parquet:"instruction_ratio,snappy"`
}

// WriteReportRunsParquet writes report runs to a Parquet file.
func WriteReportRunsParquet(data []ReportRun, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteBundleCoverageParquet writes bundle coverage rows to a Parquet file.
func WriteBundleCoverageParquet(data []BundleCoverage, outputPath string) error {
	return writeParquet(data, outputPath)
}

// writeParquet writes rows with the schema derived from T's struct tags.
func writeParquet[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

// ConvertReportRunRecords converts schema.ReportRunRecord to ReportRun for Parquet export.
func ConvertReportRunRecords(records []schema.ReportRunRecord) []ReportRun {
	result := make([]ReportRun, len(records))
	for i, record := range records {
		result[i] = ReportRun{
			RunID:         record.RunID,
			RunUUID:       record.RunUUID,
			Title:         record.Title,
			StartTime:     record.StartTime,
			EndTime:       record.EndTime,
			RunDurationMs: record.RunDurationMs,
			TotalBundles:  record.TotalBundles,
			ConfigParams:  record.ConfigParams,
		}
	}
	return result
}

// ConvertBundleCoverageRecords converts schema.BundleCoverageRecord to BundleCoverage for Parquet export.
func ConvertBundleCoverageRecords(records []schema.BundleCoverageRecord) []BundleCoverage {
	result := make([]BundleCoverage, len(records))
	for i, record := range records {
		c := record.Counters
		result[i] = BundleCoverage{
			RunID:              record.RunID,
			BundleName:         record.BundleName,
			RecordTime:         record.RecordTime,
			InstructionMissed:  int32(c.Instruction.Missed),
			InstructionCovered: int32(c.Instruction.Covered),
			BranchMissed:       int32(c.Branch.Missed),
			BranchCovered:      int32(c.Branch.Covered),
			LineMissed:         int32(c.Line.Missed),
			LineCovered:        int32(c.Line.Covered),
			ComplexityMissed:   int32(c.Complexity.Missed),
			ComplexityCovered:  int32(c.Complexity.Covered),
			MethodMissed:       int32(c.Method.Missed),
			MethodCovered:      int32(c.Method.Covered),
			ClassMissed:        int32(c.Class.Missed),
			ClassCovered:       int32(c.Class.Covered),
			InstructionRatio:   c.Instruction.CoveredRatio(),
		}
	}
	return result
}
