package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/huangsam/covagg/schema"
	"github.com/spf13/afero"
	"golang.org/x/text/language"
)

// Default values for configuration.
const (
	DefaultOutputDir       = "target/site/jacoco"
	DefaultDataFileInclude = "target/*.exec"
	DefaultLocale          = "en"
	DefaultVerbosity       = "info"
	DefaultTabWidth        = 4
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// Config holds the runtime configuration for a report run.
// This struct is the "final, validated" config.
type Config struct {
	ProjectDir string `validate:"required"`
	DataRoot   string // optional; set means "this project alone, no discovery"
	OutputDir  string `validate:"required"`

	Formats        []schema.ReportFormat `validate:"dive,oneof=html xml csv"`
	SourceEncoding string                // empty means per-module pom encoding
	OutputEncoding string                `validate:"required"`
	Locale         string                `validate:"required"`
	Title          string                // empty means project name
	Footer         string

	IncludeCurrentProject bool
	Includes              []string
	Excludes              []string
	DataFileIncludes      []string `validate:"min=1"`
	DataFileExcludes      []string

	Workers   int `validate:"gte=1"`
	Width     int `validate:"gte=0"` // Terminal width override (0 = auto-detect)
	UseColors bool
	Quiet     bool
	Verbosity string `validate:"oneof=trace debug info warn warning error"`

	HistoryBackend   schema.DatabaseBackend `validate:"omitempty,oneof=sqlite mysql postgresql none"`
	HistoryDBConnect string                 // Please use env var as this is plaintext

	Rules      []schema.CoverageRule
	OutputFile string

	Fs afero.Fs `validate:"-"`
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// This is set manually from positional args, so no tag
	ProjectDirStr string

	// --- Fields from rootCmd.PersistentFlags() ---
	DataRoot              string   `mapstructure:"data-root"`
	OutputDir             string   `mapstructure:"output-dir"`
	Formats               []string `mapstructure:"formats"`
	SourceEncoding        string   `mapstructure:"source-encoding"`
	OutputEncoding        string   `mapstructure:"output-encoding"`
	Locale                string   `mapstructure:"locale"`
	Title                 string   `mapstructure:"title"`
	Footer                string   `mapstructure:"footer"`
	IncludeCurrentProject bool     `mapstructure:"include-current-project"`
	Includes              []string `mapstructure:"includes"`
	Excludes              []string `mapstructure:"excludes"`
	DataFileIncludes      []string `mapstructure:"data-file-includes"`
	DataFileExcludes      []string `mapstructure:"data-file-excludes"`
	Workers               int      `mapstructure:"workers"`
	Width                 int      `mapstructure:"width"`
	Color                 string   `mapstructure:"color"`
	Quiet                 bool     `mapstructure:"quiet"`
	Verbosity             string   `mapstructure:"verbosity"`
	HistoryBackend        string   `mapstructure:"history-backend"`
	HistoryDBConnect      string   `mapstructure:"history-db-connect"`
	OutputFile            string   `mapstructure:"output-file"`

	// --- Fields from checkCmd.Flags() ---
	Limits string `mapstructure:"limits"`

	// --- Coverage rules from config file ---
	Rules []schema.CoverageRule `mapstructure:"rules"`
}

// validate is shared; validator caches struct metadata.
var validate = validator.New()

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Formats = slices.Clone(c.Formats)
	clone.Includes = slices.Clone(c.Includes)
	clone.Excludes = slices.Clone(c.Excludes)
	clone.DataFileIncludes = slices.Clone(c.DataFileIncludes)
	clone.DataFileExcludes = slices.Clone(c.DataFileExcludes)
	clone.Rules = slices.Clone(c.Rules)
	return &clone
}

// FS returns the configured filesystem, defaulting to the OS.
func (c *Config) FS() afero.Fs {
	if c.Fs == nil {
		return afero.NewOsFs()
	}
	return c.Fs
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := resolveProjectPaths(cfg, input); err != nil {
		return err
	}
	if err := processRules(cfg, input); err != nil {
		return err
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend, "":
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("history-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for the host:port address")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("history-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	default:
		return fmt.Errorf("invalid history backend '%s'. must be sqlite, mysql, postgresql, none", backend)
	}
	return nil
}

// ParseHistoryBackend normalizes a backend name; empty means disabled.
func ParseHistoryBackend(s string) (schema.DatabaseBackend, error) {
	backend := schema.DatabaseBackend(strings.ToLower(strings.TrimSpace(s)))
	if backend == "" {
		return schema.NoneBackend, nil
	}
	if _, ok := schema.ValidDatabaseBackends[backend]; !ok {
		return "", fmt.Errorf("invalid history backend '%s'. must be sqlite, mysql, postgresql, none", s)
	}
	return backend, nil
}

// validateSimpleInputs processes and validates all non-path related fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	// --- 0. Transfer simple non-validated fields from input -> cfg ---
	cfg.Title = strings.TrimSpace(input.Title)
	cfg.Footer = input.Footer
	cfg.IncludeCurrentProject = input.IncludeCurrentProject
	cfg.Width = input.Width
	cfg.Quiet = input.Quiet
	cfg.OutputFile = input.OutputFile
	cfg.Includes = SplitList(input.Includes)
	cfg.Excludes = SplitList(input.Excludes)
	cfg.DataFileExcludes = SplitList(input.DataFileExcludes)
	cfg.DataFileIncludes = SplitList(input.DataFileIncludes)
	if len(cfg.DataFileIncludes) == 0 {
		cfg.DataFileIncludes = []string{DefaultDataFileInclude}
	}

	// Parse color flag
	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	// --- 1. Workers Validation ---
	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Workers = input.Workers

	// --- 2. Verbosity ---
	cfg.Verbosity = strings.ToLower(input.Verbosity)
	if cfg.Verbosity == "" {
		cfg.Verbosity = DefaultVerbosity
	}
	if err := SetVerbosity(cfg.Verbosity); err != nil {
		return err
	}

	// --- 3. Formats ---
	formats, err := ParseFormats(input.Formats)
	if err != nil {
		return err
	}
	cfg.Formats = formats

	// --- 4. Encodings and locale ---
	cfg.SourceEncoding = strings.TrimSpace(input.SourceEncoding)
	if cfg.SourceEncoding != "" {
		if _, err := LookupEncoding(cfg.SourceEncoding); err != nil {
			return fmt.Errorf("invalid --source-encoding: %w", err)
		}
	}
	cfg.OutputEncoding = strings.TrimSpace(input.OutputEncoding)
	if cfg.OutputEncoding == "" {
		cfg.OutputEncoding = DefaultEncoding
	}
	if _, err := LookupEncoding(cfg.OutputEncoding); err != nil {
		return fmt.Errorf("invalid --output-encoding: %w", err)
	}
	cfg.Locale = strings.TrimSpace(input.Locale)
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}
	if _, err := language.Parse(cfg.Locale); err != nil {
		return fmt.Errorf("invalid --locale '%s': %w", cfg.Locale, err)
	}

	// --- 5. Backend Validation ---
	backend, err := ParseHistoryBackend(input.HistoryBackend)
	if err != nil {
		return err
	}
	cfg.HistoryBackend = backend
	cfg.HistoryDBConnect = input.HistoryDBConnect
	return ValidateDatabaseConnectionString(cfg.HistoryBackend, cfg.HistoryDBConnect)
}

// ParseFormats parses report format names; nil input selects every format.
func ParseFormats(values []string) ([]schema.ReportFormat, error) {
	names := SplitList(values)
	if values == nil {
		return slices.Clone(schema.AllReportFormats), nil
	}
	var formats []schema.ReportFormat
	for _, name := range names {
		f := schema.ReportFormat(strings.ToLower(name))
		if _, ok := schema.ValidReportFormats[f]; !ok {
			return nil, fmt.Errorf("invalid report format '%s'. must be html, xml, csv", name)
		}
		if !slices.Contains(formats, f) {
			formats = append(formats, f)
		}
	}
	return formats, nil
}

// resolveProjectPaths makes the project, data root and output paths absolute.
func resolveProjectPaths(cfg *Config, input *ConfigRawInput) error {
	projectDir := input.ProjectDirStr
	if projectDir == "" {
		projectDir = "."
	}
	absProjectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return err
	}
	fs := cfg.FS()
	info, err := fs.Stat(absProjectDir)
	if err != nil {
		return &FilesystemError{Op: "project directory not found", Path: absProjectDir, Err: err}
	}
	if !info.IsDir() {
		if filepath.Base(absProjectDir) != "pom.xml" {
			return &FilesystemError{Op: "project path is not a directory", Path: absProjectDir}
		}
		absProjectDir = filepath.Dir(absProjectDir)
	}
	cfg.ProjectDir = absProjectDir

	cfg.DataRoot = ""
	if dr := strings.TrimSpace(input.DataRoot); dr != "" {
		cfg.DataRoot = resolveAgainst(absProjectDir, dr)
	}

	outputDir := strings.TrimSpace(input.OutputDir)
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	cfg.OutputDir = resolveAgainst(absProjectDir, outputDir)
	return nil
}

// resolveAgainst resolves p relative to base unless it is absolute.
func resolveAgainst(base, p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// processRules merges configured rules with the --limits shorthand and validates them.
func processRules(cfg *Config, input *ConfigRawInput) error {
	rules := slices.Clone(input.Rules)
	if input.Limits != "" {
		parsed, err := ParseLimitsString(input.Limits)
		if err != nil {
			return fmt.Errorf("invalid --limits format: %w", err)
		}
		rules = append(rules, parsed...)
	}
	for i := range rules {
		if err := normalizeRule(&rules[i]); err != nil {
			return err
		}
	}
	cfg.Rules = rules
	return nil
}

// normalizeRule upper-cases enum fields and checks bounds.
func normalizeRule(rule *schema.CoverageRule) error {
	rule.Element = schema.RuleElement(strings.ToUpper(string(rule.Element)))
	if rule.Element == "" {
		rule.Element = schema.BundleElement
	}
	if _, ok := schema.ValidRuleElements[rule.Element]; !ok {
		return fmt.Errorf("invalid rule element '%s'", rule.Element)
	}
	if len(rule.Limits) == 0 {
		return fmt.Errorf("rule for %s has no limits", rule.Element)
	}
	for i := range rule.Limits {
		l := &rule.Limits[i]
		l.Counter = schema.CounterEntity(strings.ToUpper(string(l.Counter)))
		if l.Counter == "" {
			l.Counter = schema.InstructionCounter
		}
		if _, ok := schema.ValidCounterEntities[l.Counter]; !ok {
			return fmt.Errorf("invalid limit counter '%s'", l.Counter)
		}
		l.Value = schema.RuleValue(strings.ToUpper(string(l.Value)))
		if l.Value == "" {
			l.Value = schema.CoveredRatioValue
		}
		if _, ok := schema.ValidRuleValues[l.Value]; !ok {
			return fmt.Errorf("invalid limit value '%s'", l.Value)
		}
		if l.Minimum == nil && l.Maximum == nil {
			return fmt.Errorf("limit %s %s needs a minimum or maximum", l.Counter, l.Value)
		}
		isRatio := l.Value == schema.CoveredRatioValue || l.Value == schema.MissedRatioValue
		for _, bound := range []*float64{l.Minimum, l.Maximum} {
			if bound != nil && isRatio && (*bound < 0 || *bound > 1) {
				return fmt.Errorf("ratio limit %s %s must be between 0.0 and 1.0 (received %.2f)", l.Counter, l.Value, *bound)
			}
		}
	}
	return nil
}

// ParseLimitsString parses a string like "bundle:line:0.8,class:branch:missedcount:3"
// into one rule per limit. The value kind defaults to COVEREDRATIO and every bound is a minimum,
// except MISSEDCOUNT and MISSEDRATIO which are maximums.
func ParseLimitsString(s string) ([]schema.CoverageRule, error) {
	var rules []schema.CoverageRule
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 && len(fields) != 4 {
			return nil, fmt.Errorf("invalid limit '%s', expected 'element:counter[:value]:bound'", part)
		}
		limit := schema.CoverageLimit{
			Counter: schema.CounterEntity(strings.ToUpper(fields[1])),
			Value:   schema.CoveredRatioValue,
		}
		if len(fields) == 4 {
			limit.Value = schema.RuleValue(strings.ToUpper(fields[2]))
		}
		bound, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bound in limit '%s': %w", part, err)
		}
		if limit.Value == schema.MissedCountValue || limit.Value == schema.MissedRatioValue {
			limit.Maximum = &bound
		} else {
			limit.Minimum = &bound
		}
		rules = append(rules, schema.CoverageRule{
			Element: schema.RuleElement(strings.ToUpper(fields[0])),
			Limits:  []schema.CoverageLimit{limit},
		})
	}
	return rules, nil
}

// ProcessProfilingConfig handles the profiling flag and sets up profiling configuration.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}
