package parquet

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/covagg/schema"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll[T any](t *testing.T, path string) []T {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = file.Close() }()

	reader := parquet.NewGenericReader[T](file)
	defer func() { _ = reader.Close() }()

	rows := make([]T, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	return rows[:n]
}

func TestStructTags(t *testing.T) {
	tests := []struct {
		name    string
		schema  *parquet.Schema
		columns []string
	}{
		{
			name:    "runs",
			schema:  parquet.SchemaOf(new(ReportRun)),
			columns: []string{"run_id", "run_uuid", "title", "start_time", "end_time", "run_duration_ms", "total_bundles", "config_params"},
		},
		{
			name:   "bundles",
			schema: parquet.SchemaOf(new(BundleCoverage)),
			columns: []string{
				"run_id", "bundle_name", "record_time",
				"instruction_missed", "instruction_covered", "branch_missed", "branch_covered",
				"line_missed", "line_covered", "complexity_missed", "complexity_covered",
				"method_missed", "method_covered", "class_missed", "class_covered", "instruction_ratio",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, col := range tt.columns {
				_, ok := tt.schema.Lookup(col)
				assert.True(t, ok, "column %s should exist", col)
			}
		})
	}
}

func TestWriteReportRunsParquet(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	duration := int32(1500)
	params := `{"formats":["html"]}`
	records := []schema.ReportRunRecord{
		{RunID: 1, RunUUID: "a-1", Title: "Acme", StartTime: start, EndTime: &end, RunDurationMs: &duration, TotalBundles: 2, ConfigParams: &params},
		{RunID: 2, RunUUID: "a-2", Title: "Acme", StartTime: end},
	}

	path := filepath.Join(t.TempDir(), "history"+RunsSuffix)
	require.NoError(t, WriteReportRunsParquet(ConvertReportRunRecords(records), path))

	got := readAll[ReportRun](t, path)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].RunID)
	assert.Equal(t, "a-1", got[0].RunUUID)
	require.NotNil(t, got[0].EndTime)
	assert.WithinDuration(t, end, *got[0].EndTime, time.Nanosecond)
	require.NotNil(t, got[0].RunDurationMs)
	assert.Equal(t, duration, *got[0].RunDurationMs)
	assert.Equal(t, params, *got[0].ConfigParams)

	assert.Nil(t, got[1].EndTime)
	assert.Nil(t, got[1].RunDurationMs)
	assert.Nil(t, got[1].ConfigParams)
}

func TestWriteBundleCoverageParquet(t *testing.T) {
	records := []schema.BundleCoverageRecord{
		{
			RunID: 1, BundleName: "core", RecordTime: time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC),
			Counters: schema.Counters{
				Instruction: schema.Counter{Missed: 1, Covered: 3},
				Class:       schema.Counter{Covered: 1},
			},
		},
		{RunID: 1, BundleName: "empty"},
	}

	path := filepath.Join(t.TempDir(), "history"+BundlesSuffix)
	require.NoError(t, WriteBundleCoverageParquet(ConvertBundleCoverageRecords(records), path))

	got := readAll[BundleCoverage](t, path)
	require.Len(t, got, 2)
	assert.Equal(t, "core", got[0].BundleName)
	assert.Equal(t, int32(3), got[0].InstructionCovered)
	assert.Equal(t, int32(1), got[0].ClassCovered)
	assert.InDelta(t, 0.75, got[0].InstructionRatio, 1e-9)
	assert.Zero(t, got[1].InstructionRatio)
}

func TestWriteParquetEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty"+RunsSuffix)
	require.NoError(t, WriteReportRunsParquet(nil, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Empty(t, readAll[ReportRun](t, path))
}

func TestWriteParquetBadPath(t *testing.T) {
	err := WriteReportRunsParquet(nil, filepath.Join(t.TempDir(), "missing", "x.parquet"))
	assert.Error(t, err)
}
