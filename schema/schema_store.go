package schema

import "time"

// ReportRunRecord represents a row from the covagg_report_runs table.
type ReportRunRecord struct {
	RunID         int64
	RunUUID       string
	Title         string
	StartTime     time.Time
	EndTime       *time.Time
	RunDurationMs *int32
	TotalBundles  int32
	ConfigParams  *string
}

// BundleCoverageRecord represents a row from the covagg_bundle_coverage table.
type BundleCoverageRecord struct {
	RunID      int64
	BundleName string
	RecordTime time.Time
	Counters   Counters
}
