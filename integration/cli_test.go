//go:build basic

// Package integration contains end-to-end tests for the covagg binary.
// These tests are excluded from normal test runs due to build tags.
// To run these tests: go test -tags basic ./integration
package integration

import (
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/huangsam/covagg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestReportCommand(t *testing.T) {
	root := writeProject(t)
	summaryFile := filepath.Join(root, "summary.json")

	_, err := runCovagg(t, root, nil, "report", "report", "--output-file", summaryFile)
	require.NoError(t, err)

	site := filepath.Join(root, "report", "target", "site", "jacoco")
	for _, name := range []string{"index.html", "jacoco.xml", "jacoco.csv", "jacoco-sessions.html"} {
		_, err := os.Stat(filepath.Join(site, name))
		assert.NoError(t, err, "%s should be written", name)
	}

	var summary schema.GroupSummary
	readJSON(t, summaryFile, &summary)
	assert.Equal(t, "report", summary.Name)
	require.Len(t, summary.Bundles, 3)
	assert.Equal(t, "core", summary.Bundles[0].Name)
	assert.Equal(t, "api", summary.Bundles[1].Name)
	assert.Equal(t, "report", summary.Bundles[2].Name, "the aggregating module is a declared module too")
	assert.Equal(t, schema.Counter{Missed: 1, Covered: 1}, summary.Totals.Instruction)
	assert.Equal(t, 1, summary.Sessions)
}

func TestReportFromConfigFile(t *testing.T) {
	root := writeProject(t)
	config := "formats: [xml]\ntitle: Shop Coverage\ninclude-current-project: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".covagg.yaml"), []byte(config), 0o644))
	summaryFile := filepath.Join(root, "summary.json")

	_, err := runCovagg(t, root, nil, "report", "report", "--output-file", summaryFile)
	require.NoError(t, err)

	site := filepath.Join(root, "report", "target", "site", "jacoco")
	_, err = os.Stat(filepath.Join(site, "jacoco.xml"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(site, "index.html"))
	assert.True(t, os.IsNotExist(err), "html is not configured")

	var summary schema.GroupSummary
	readJSON(t, summaryFile, &summary)
	assert.Equal(t, "Shop Coverage", summary.Name)
	assert.Len(t, summary.Bundles, 3)
}

func TestCheckCommand(t *testing.T) {
	root := writeProject(t)

	_, err := runCovagg(t, root, nil, "check", "report", "--limits", "bundle:instruction:0.0")
	require.NoError(t, err)

	out, err := runCovagg(t, root, nil, "check", "report", "--limits", "bundle:instruction:0.9")
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "a violated limit fails the command")
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, out, "api")
}

func TestModulesCommand(t *testing.T) {
	root := writeProject(t)
	modulesFile := filepath.Join(root, "modules.json")

	_, err := runCovagg(t, root, nil, "modules", "report", "--output-file", modulesFile)
	require.NoError(t, err)

	var modules []schema.ModuleDescriptor
	readJSON(t, modulesFile, &modules)
	require.Len(t, modules, 3)
	assert.Equal(t, "core", modules[0].ArtifactID)
}

func TestExecCommands(t *testing.T) {
	root := writeProject(t)
	execFile := filepath.Join(root, "core", "target", "jacoco.exec")
	merged := filepath.Join(root, "merged.exec")

	_, err := runCovagg(t, root, nil, "merge", "--dest-file", merged, execFile, execFile)
	require.NoError(t, err)

	infoFile := filepath.Join(root, "info.json")
	_, err = runCovagg(t, root, nil, "execinfo", merged, "--output-file", infoFile)
	require.NoError(t, err)

	var infos []schema.ExecFileInfo
	readJSON(t, infoFile, &infos)
	require.Len(t, infos, 1)
	assert.Equal(t, 1, infos[0].Records)
	assert.Len(t, infos[0].Sessions, 2)
}

func TestHistoryWithSQLite(t *testing.T) {
	root := writeProject(t)
	env := []string{
		"COVAGG_HISTORY_BACKEND=sqlite",
		"COVAGG_HISTORY_DB_CONNECT=" + filepath.Join(root, "history.db"),
	}

	for range 2 {
		_, err := runCovagg(t, root, env, "report", "report", "--quiet")
		require.NoError(t, err)
	}

	out, err := runCovagg(t, root, env, "history", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite")

	exportBase := filepath.Join(root, "coverage")
	_, err = runCovagg(t, root, env, "history", "export", "--output-file", exportBase)
	require.NoError(t, err)
	for _, suffix := range []string{".runs.parquet", ".bundles.parquet"} {
		_, err := os.Stat(exportBase + suffix)
		assert.NoError(t, err)
	}

	_, err = runCovagg(t, root, env, "history", "migrate", "--target-version", "0")
	require.NoError(t, err)
	_, err = runCovagg(t, root, env, "history", "migrate")
	require.NoError(t, err)

	_, err = runCovagg(t, root, env, "history", "clear")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "history.db"))
	assert.True(t, os.IsNotExist(err))
}

func TestVersionCommand(t *testing.T) {
	out, err := runCovagg(t, t.TempDir(), nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "covagg CLI")
}
