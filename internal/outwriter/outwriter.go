// Package outwriter has report formatters, report visitors and console output.
package outwriter

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/schema"
	"github.com/spf13/afero"
)

// ReportConfig binds formatters to an output location and presentation settings.
type ReportConfig struct {
	Fs        afero.Fs
	OutputDir string
	Encoding  string
	Locale    string
	Footer    string
}

// ReportFormatter creates visitors for one report format. The set of formatters is closed.
type ReportFormatter interface {
	// Format returns the report format the formatter emits.
	Format() schema.ReportFormat

	// CreateVisitor returns a visitor that writes the report on VisitEnd.
	CreateVisitor(cfg ReportConfig) (ReportVisitor, error)

	formatter()
}

// FormatterFor returns the formatter of a report format.
func FormatterFor(format schema.ReportFormat) (ReportFormatter, error) {
	switch format {
	case schema.HTMLFormat:
		return HTMLFormatter{}, nil
	case schema.XMLFormat:
		return XMLFormatter{}, nil
	case schema.CSVFormat:
		return CSVFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format '%s'", format)
	}
}

// CreateVisitors creates one visitor per format, in the given order.
func CreateVisitors(formats []schema.ReportFormat, cfg ReportConfig) ([]ReportVisitor, error) {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Encoding == "" {
		cfg.Encoding = contract.DefaultEncoding
	}
	if cfg.Locale == "" {
		cfg.Locale = contract.DefaultLocale
	}
	if _, err := contract.LookupEncoding(cfg.Encoding); err != nil {
		return nil, err
	}
	visitors := make([]ReportVisitor, 0, len(formats))
	for _, format := range formats {
		f, err := FormatterFor(format)
		if err != nil {
			return nil, err
		}
		v, err := f.CreateVisitor(cfg)
		if err != nil {
			return nil, fmt.Errorf("cannot create %s report: %w", format, err)
		}
		visitors = append(visitors, v)
	}
	return visitors, nil
}

// outputFiles buffers rendered files and writes them in one go.
type outputFiles struct {
	cfg   ReportConfig
	files map[string][]byte
}

func newOutputFiles(cfg ReportConfig) *outputFiles {
	return &outputFiles{cfg: cfg, files: map[string][]byte{}}
}

// render stores the output of fn under rel, transcoded to the report encoding.
func (o *outputFiles) render(rel string, fn func(w io.Writer) error) error {
	var buf bytes.Buffer
	enc, err := contract.NewEncodingWriter(&buf, o.cfg.Encoding)
	if err != nil {
		return err
	}
	if err := fn(enc); err != nil {
		return fmt.Errorf("rendering %s: %w", rel, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	o.files[rel] = buf.Bytes()
	return nil
}

// raw stores bytes as they are.
func (o *outputFiles) raw(rel string, data []byte) {
	o.files[rel] = data
}

// flush writes every buffered file below the output directory.
func (o *outputFiles) flush() error {
	for _, rel := range slices.Sorted(maps.Keys(o.files)) {
		p := filepath.Join(o.cfg.OutputDir, filepath.FromSlash(rel))
		if err := o.cfg.Fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return &contract.FilesystemError{Op: "Created directory fail", Path: filepath.Dir(p), Err: err}
		}
		if err := afero.WriteFile(o.cfg.Fs, p, o.files[rel], 0o644); err != nil {
			return &contract.FilesystemError{Op: "cannot write report file", Path: p, Err: err}
		}
	}
	return nil
}
