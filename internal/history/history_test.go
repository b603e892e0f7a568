package history

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/covagg/internal/parquet"
	"github.com/huangsam/covagg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := NewStore(schema.SQLiteBackend, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func bundle(name string, missed, covered int) schema.BundleSummary {
	return schema.BundleSummary{
		Name:    name,
		Classes: 1,
		Counters: schema.Counters{
			Instruction: schema.Counter{Missed: missed, Covered: covered},
			Line:        schema.Counter{Missed: 1, Covered: 2},
			Class:       schema.Counter{Covered: 1},
		},
	}
}

func TestStoreRunRoundTrip(t *testing.T) {
	store, _ := newSQLiteStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	runID, err := store.BeginRun(start, "Acme", map[string]any{"workers": 2})
	require.NoError(t, err)
	assert.Positive(t, runID)

	require.NoError(t, store.RecordBundle(runID, bundle("core", 1, 3), start.Add(time.Second)))
	require.NoError(t, store.RecordBundle(runID, bundle("api", 4, 0), start.Add(time.Second)))
	require.NoError(t, store.EndRun(runID, start.Add(2*time.Second), 2))

	runs, err := store.GetAllRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, runID, run.RunID)
	assert.Equal(t, "Acme", run.Title)
	assert.Len(t, run.RunUUID, 36)
	assert.True(t, start.Equal(run.StartTime))
	require.NotNil(t, run.EndTime)
	require.NotNil(t, run.RunDurationMs)
	assert.Equal(t, int32(2000), *run.RunDurationMs)
	assert.Equal(t, int32(2), run.TotalBundles)
	require.NotNil(t, run.ConfigParams)
	assert.JSONEq(t, `{"workers":2}`, *run.ConfigParams)

	records, err := store.GetAllBundleRecords()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "api", records[0].BundleName)
	assert.Equal(t, "core", records[1].BundleName)
	assert.Equal(t, schema.Counter{Missed: 1, Covered: 3}, records[1].Counters.Instruction)
	assert.Equal(t, schema.Counter{Missed: 1, Covered: 2}, records[1].Counters.Line)
	assert.Equal(t, schema.Counter{Covered: 1}, records[1].Counters.Class)
	assert.True(t, start.Add(time.Second).Equal(records[1].RecordTime))
}

func TestStoreStatus(t *testing.T) {
	store, _ := newSQLiteStore(t)

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", status.Backend)
	assert.True(t, status.Connected)
	assert.Zero(t, status.TotalRuns)
	assert.Equal(t, map[string]int64{reportRunsTable: 0, bundleCoverageTable: 0}, status.TableSizes)

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := range 3 {
		start := first.Add(time.Duration(i) * time.Hour)
		runID, err := store.BeginRun(start, "Acme", nil)
		require.NoError(t, err)
		require.NoError(t, store.RecordBundle(runID, bundle("core", 1, 1), start))
		require.NoError(t, store.EndRun(runID, start.Add(time.Minute), 1))
	}

	status, err = store.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, 3, status.TotalRuns)
	assert.Equal(t, int64(3), status.LastRunID)
	assert.True(t, first.Add(2*time.Hour).Equal(status.LastRunTime))
	assert.True(t, first.Equal(status.OldestRunTime))
	assert.Equal(t, 3, status.TotalBundles)
	assert.Equal(t, int64(3), status.TableSizes[bundleCoverageTable])
}

func TestStoreDuplicateBundle(t *testing.T) {
	store, _ := newSQLiteStore(t)
	runID, err := store.BeginRun(time.Now(), "Acme", nil)
	require.NoError(t, err)
	require.NoError(t, store.RecordBundle(runID, bundle("core", 0, 1), time.Now()))
	assert.Error(t, store.RecordBundle(runID, bundle("core", 0, 1), time.Now()))
}

func TestNoneStore(t *testing.T) {
	store, err := NewStore(schema.NoneBackend, "")
	require.NoError(t, err)

	runID, err := store.BeginRun(time.Now(), "x", nil)
	require.NoError(t, err)
	assert.Zero(t, runID)
	require.NoError(t, store.RecordBundle(runID, bundle("core", 0, 1), time.Now()))
	require.NoError(t, store.EndRun(runID, time.Now(), 1))

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.False(t, status.Connected)
	runs, err := store.GetAllRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, store.Close())
}

func TestUnsupportedBackend(t *testing.T) {
	_, err := NewStore("oracle", "")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	res, err := Migrate(schema.SQLiteBackend, path, -1)
	require.NoError(t, err)
	assert.Equal(t, MigrationResult{From: 0, To: 2, Changed: true}, res)

	res, err = Migrate(schema.SQLiteBackend, path, -1)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	res, err = Migrate(schema.SQLiteBackend, path, 1)
	require.NoError(t, err)
	assert.Equal(t, MigrationResult{From: 2, To: 1, Changed: true}, res)

	res, err = Migrate(schema.SQLiteBackend, path, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(0), res.To)

	_, err = Migrate(schema.NoneBackend, "", -1)
	assert.Error(t, err)
}

func TestClearHistory(t *testing.T) {
	store, path := newSQLiteStore(t)
	require.NoError(t, store.Close())

	require.NoError(t, ClearHistory(schema.SQLiteBackend, path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing twice is fine.
	require.NoError(t, ClearHistory(schema.SQLiteBackend, path))
	require.NoError(t, ClearHistory(schema.NoneBackend, ""))
	assert.Error(t, ClearHistory("oracle", ""))
}

func TestExecuteExport(t *testing.T) {
	store, _ := newSQLiteStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	runID, err := store.BeginRun(start, "Acme", nil)
	require.NoError(t, err)
	require.NoError(t, store.RecordBundle(runID, bundle("core", 1, 3), start))
	require.NoError(t, store.EndRun(runID, start.Add(time.Second), 1))

	base := filepath.Join(t.TempDir(), "export")
	var out bytes.Buffer
	require.NoError(t, ExecuteExport(&out, store, base))

	assert.Contains(t, out.String(), "Exported 1 report runs")
	assert.Contains(t, out.String(), "Exported 1 bundle records")
	for _, suffix := range []string{parquet.RunsSuffix, parquet.BundlesSuffix} {
		info, err := os.Stat(base + suffix)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestExecuteExportErrors(t *testing.T) {
	store, _ := newSQLiteStore(t)
	var out bytes.Buffer
	assert.Error(t, ExecuteExport(&out, store, ""))
	assert.Error(t, ExecuteExport(&out, nil, "x"))
	assert.ErrorContains(t, ExecuteExport(&out, store, filepath.Join(t.TempDir(), "x")), "no history data")
}

func TestExecuteExportWithMock(t *testing.T) {
	store := &MockHistoryStore{}
	store.On("GetStatus").Return(schema.HistoryStatus{Backend: "mysql", TotalRuns: 1}, nil)
	store.On("GetAllRuns").Return(nil, assert.AnError)

	var out bytes.Buffer
	err := ExecuteExport(&out, store, filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, assert.AnError)
	store.AssertExpectations(t)
}

func TestRebind(t *testing.T) {
	q := "UPDATE t SET a = ?, b = ? WHERE id = ?"
	assert.Equal(t, q, rebind(q, schema.MySQLBackend))
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = $3", rebind(q, schema.PostgreSQLBackend))
}

func TestDataSource(t *testing.T) {
	dsn, err := dataSource(schema.MySQLBackend, "user:pw@tcp(localhost:3306)/covagg")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")

	_, err = dataSource(schema.MySQLBackend, "not a dsn")
	assert.Error(t, err)

	dsn, err = dataSource(schema.SQLiteBackend, "/tmp/h.db")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/h.db", dsn)
}
