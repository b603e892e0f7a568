package core

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/huangsam/covagg/internal/classfile"
	"github.com/huangsam/covagg/internal/execdata"
	"github.com/huangsam/covagg/internal/history"
	"github.com/huangsam/covagg/schema"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExecuteReport(t *testing.T) {
	f := newProjectFixture(t)
	cfg := f.config()
	cfg.Formats = schema.AllReportFormats
	cfg.OutputFile = filepath.Join(t.TempDir(), "summary.json")

	store := &history.MockHistoryStore{}
	store.On("BeginRun", mock.Anything, "report", mock.Anything).Return(int64(1), nil)
	store.On("RecordBundle", int64(1), mock.Anything, mock.Anything).Return(nil).Times(3)
	store.On("EndRun", int64(1), mock.Anything, 3).Return(nil)
	mgr := &history.MockHistoryManager{}
	mgr.On("GetHistoryStore").Return(store)

	require.NoError(t, ExecuteReport(withSuppressHeader(context.Background()), cfg, mgr))
	store.AssertExpectations(t)

	for _, name := range []string{"index.html", "jacoco.xml", "jacoco.csv", "jacoco-sessions.html", "a/index.html"} {
		exists, err := afero.Exists(f.fs, filepath.Join(cfg.OutputDir, name))
		require.NoError(t, err)
		assert.True(t, exists, "%s should be written", name)
	}

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	var summary schema.GroupSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, "report", summary.Name)
	assert.Len(t, summary.Bundles, 3)
	assert.Equal(t, schema.Counter{Missed: 1, Covered: 1}, summary.Totals.Instruction)
	assert.Equal(t, 1, summary.Sessions)
}

func TestExecuteReportQuiet(t *testing.T) {
	f := newProjectFixture(t)
	cfg := f.config()
	cfg.Quiet = true
	cfg.OutputFile = filepath.Join(t.TempDir(), "summary.json")

	require.NoError(t, ExecuteReport(context.Background(), cfg, nil))
	_, err := os.Stat(cfg.OutputFile)
	assert.True(t, os.IsNotExist(err), "quiet runs print no summary")
}

func TestExecuteModules(t *testing.T) {
	f := newProjectFixture(t)
	cfg := f.config()
	cfg.OutputFile = filepath.Join(t.TempDir(), "modules.json")

	require.NoError(t, ExecuteModules(context.Background(), cfg, nil))
	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	var modules []schema.ModuleDescriptor
	require.NoError(t, json.Unmarshal(data, &modules))
	assert.Equal(t, []string{"a", "b", "report"}, moduleIDs(modules))
}

func TestExecuteExecInfo(t *testing.T) {
	f := newProjectFixture(t)
	cfg := f.config()
	cfg.OutputFile = filepath.Join(t.TempDir(), "info.json")

	require.NoError(t, ExecuteExecInfo(context.Background(), cfg, []string{"/proj/a/target/jacoco.exec"}))
	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	var infos []schema.ExecFileInfo
	require.NoError(t, json.Unmarshal(data, &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, 1, infos[0].Records)

	assert.Error(t, ExecuteExecInfo(context.Background(), cfg, nil))
	assert.Error(t, ExecuteExecInfo(context.Background(), cfg, []string{"/missing.exec"}))
}

func TestExecuteMerge(t *testing.T) {
	f := newProjectFixture(t)
	writeFile(t, f.fs, "/proj/b/target/jacoco.exec", execBytes(t, "session-b", schema.ExecutionRecord{
		ID: classfile.ClassID(f.bData), Name: "org/acme/b/B", Probes: []bool{true},
	}))
	cfg := f.config()

	err := ExecuteMerge(context.Background(), cfg, "/merged.exec", []string{"/proj/a/target/jacoco.exec", "/proj/b/target/jacoco.exec"})
	require.NoError(t, err)

	data, err := afero.ReadFile(f.fs, "/merged.exec")
	require.NoError(t, err)
	var sessions []schema.SessionInfo
	var records []schema.ExecutionRecord
	r := execdata.NewReader(bytes.NewReader(data))
	r.OnSession = func(s schema.SessionInfo) { sessions = append(sessions, s) }
	r.OnRecord = func(rec schema.ExecutionRecord) error {
		records = append(records, rec)
		return nil
	}
	require.NoError(t, r.Read())
	assert.Len(t, sessions, 2)
	assert.Len(t, records, 2)

	assert.Error(t, ExecuteMerge(context.Background(), cfg, "/merged.exec", nil))
	assert.Error(t, ExecuteMerge(context.Background(), cfg, "", []string{"/proj/a/target/jacoco.exec"}))
}
