package contract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/huangsam/covagg/schema"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProjectFs(t *testing.T) (afero.Fs, string) {
	t.Helper()
	fs := afero.NewMemMapFs()
	dir, err := filepath.Abs(filepath.Join(string(filepath.Separator), "work", "app"))
	require.NoError(t, err)
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "pom.xml"), []byte("<project/>"), 0o644))
	return fs, dir
}

func validInput(dir string) *ConfigRawInput {
	return &ConfigRawInput{
		ProjectDirStr: dir,
		Workers:       2,
		Color:         "no",
		Verbosity:     "info",
	}
}

func TestProcessAndValidate(t *testing.T) {
	fs, dir := newProjectFs(t)

	tests := []struct {
		name        string
		mutate      func(*ConfigRawInput)
		expectError bool
		check       func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, dir, cfg.ProjectDir)
				assert.Equal(t, filepath.Join(dir, "target", "site", "jacoco"), cfg.OutputDir)
				assert.Equal(t, schema.AllReportFormats, cfg.Formats)
				assert.Equal(t, []string{DefaultDataFileInclude}, cfg.DataFileIncludes)
				assert.Equal(t, DefaultEncoding, cfg.OutputEncoding)
				assert.Equal(t, DefaultLocale, cfg.Locale)
				assert.Equal(t, schema.NoneBackend, cfg.HistoryBackend)
				assert.Empty(t, cfg.DataRoot)
				assert.Empty(t, cfg.Rules)
			},
		},
		{
			name: "pom file as project path",
			mutate: func(in *ConfigRawInput) {
				in.ProjectDirStr = filepath.Join(dir, "pom.xml")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, dir, cfg.ProjectDir)
			},
		},
		{
			name: "relative data root and output dir",
			mutate: func(in *ConfigRawInput) {
				in.DataRoot = "exec"
				in.OutputDir = "out/report"
				in.Formats = []string{"xml,CSV", "xml"}
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, filepath.Join(dir, "exec"), cfg.DataRoot)
				assert.Equal(t, filepath.Join(dir, "out", "report"), cfg.OutputDir)
				assert.Equal(t, []schema.ReportFormat{schema.XMLFormat, schema.CSVFormat}, cfg.Formats)
			},
		},
		{
			name: "limits shorthand",
			mutate: func(in *ConfigRawInput) {
				in.Limits = "bundle:line:0.8,class:branch:missedcount:3"
			},
			check: func(t *testing.T, cfg *Config) {
				require.Len(t, cfg.Rules, 2)
				assert.Equal(t, schema.BundleElement, cfg.Rules[0].Element)
				assert.Equal(t, schema.LineCounter, cfg.Rules[0].Limits[0].Counter)
				assert.InDelta(t, 0.8, *cfg.Rules[0].Limits[0].Minimum, 1e-9)
				assert.Equal(t, schema.MissedCountValue, cfg.Rules[1].Limits[0].Value)
				assert.InDelta(t, 3, *cfg.Rules[1].Limits[0].Maximum, 1e-9)
			},
		},
		{
			name:        "zero workers",
			mutate:      func(in *ConfigRawInput) { in.Workers = 0 },
			expectError: true,
		},
		{
			name:        "unknown format",
			mutate:      func(in *ConfigRawInput) { in.Formats = []string{"pdf"} },
			expectError: true,
		},
		{
			name:        "unknown output encoding",
			mutate:      func(in *ConfigRawInput) { in.OutputEncoding = "no-such-charset" },
			expectError: true,
		},
		{
			name:        "bad locale",
			mutate:      func(in *ConfigRawInput) { in.Locale = "!!" },
			expectError: true,
		},
		{
			name:        "bad color",
			mutate:      func(in *ConfigRawInput) { in.Color = "maybe" },
			expectError: true,
		},
		{
			name:        "missing project",
			mutate:      func(in *ConfigRawInput) { in.ProjectDirStr = filepath.Join(dir, "missing") },
			expectError: true,
		},
		{
			name:        "mysql without connection",
			mutate:      func(in *ConfigRawInput) { in.HistoryBackend = "mysql" },
			expectError: true,
		},
		{
			name:        "ratio limit out of range",
			mutate:      func(in *ConfigRawInput) { in.Limits = "bundle:line:1.5" },
			expectError: true,
		},
		{
			name:        "malformed limit",
			mutate:      func(in *ConfigRawInput) { in.Limits = "bundle" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput(dir)
			if tt.mutate != nil {
				tt.mutate(input)
			}
			cfg := &Config{Fs: fs}
			err := ProcessAndValidate(cfg, input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestProcessAndValidateMissingProjectIsFilesystemError(t *testing.T) {
	fs, dir := newProjectFs(t)
	input := validInput(filepath.Join(dir, "nope"))
	err := ProcessAndValidate(&Config{Fs: fs}, input)
	var fsErr *FilesystemError
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, filepath.Join(dir, "nope"), fsErr.Path)
}

func TestConfigRulesFromFile(t *testing.T) {
	fs, dir := newProjectFs(t)
	input := validInput(dir)
	minimum := 0.5
	input.Rules = []schema.CoverageRule{{
		Element:  "package",
		Includes: []string{"org.acme.*"},
		Limits:   []schema.CoverageLimit{{Counter: "branch", Minimum: &minimum}},
	}}
	cfg := &Config{Fs: fs}
	require.NoError(t, ProcessAndValidate(cfg, input))
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, schema.PackageElement, cfg.Rules[0].Element)
	assert.Equal(t, schema.BranchCounter, cfg.Rules[0].Limits[0].Counter)
	assert.Equal(t, schema.CoveredRatioValue, cfg.Rules[0].Limits[0].Value)
}

func TestConfigClone(t *testing.T) {
	cfg := &Config{
		Formats:  []schema.ReportFormat{schema.HTMLFormat},
		Includes: []string{"org/**"},
	}
	clone := cfg.Clone()
	clone.Formats[0] = schema.CSVFormat
	clone.Includes = append(clone.Includes, "com/**")

	assert.Equal(t, schema.HTMLFormat, cfg.Formats[0])
	assert.Len(t, cfg.Includes, 1)
}

func TestValidateDatabaseConnectionString(t *testing.T) {
	tests := []struct {
		name    string
		backend schema.DatabaseBackend
		conn    string
		wantErr bool
	}{
		{"sqlite ignores connection", schema.SQLiteBackend, "", false},
		{"none", schema.NoneBackend, "", false},
		{"mysql valid", schema.MySQLBackend, "root:pw@tcp(localhost:3306)/covagg", false},
		{"mysql missing tcp", schema.MySQLBackend, "root:pw@localhost/covagg", true},
		{"mysql missing db", schema.MySQLBackend, "root:pw@tcp(localhost:3306)", true},
		{"postgres valid", schema.PostgreSQLBackend, "host=localhost dbname=covagg", false},
		{"postgres missing host", schema.PostgreSQLBackend, "dbname=covagg", true},
		{"postgres missing dbname", schema.PostgreSQLBackend, "host=localhost", true},
		{"unknown", schema.DatabaseBackend("oracle"), "x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDatabaseConnectionString(tt.backend, tt.conn)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseFormats(t *testing.T) {
	formats, err := ParseFormats(nil)
	require.NoError(t, err)
	assert.Equal(t, schema.AllReportFormats, formats)

	formats, err = ParseFormats([]string{})
	require.NoError(t, err)
	assert.Empty(t, formats)

	_, err = ParseFormats([]string{"html", "json"})
	assert.Error(t, err)
}

func TestProcessProfilingConfig(t *testing.T) {
	var p ProfileConfig
	require.NoError(t, ProcessProfilingConfig(&p, ""))
	assert.False(t, p.Enabled)
	require.NoError(t, ProcessProfilingConfig(&p, "run"))
	assert.True(t, p.Enabled)
	assert.Equal(t, "run", p.Prefix)
}

func TestResolveAgainstHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, filepath.Join(home, "x"), resolveAgainst("/base", "~/x"))
	assert.Equal(t, filepath.Join("/base", "x"), resolveAgainst("/base", "x"))
}
