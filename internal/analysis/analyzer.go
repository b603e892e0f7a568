// Package analysis computes class coverage from compiled classes and execution data.
package analysis

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/huangsam/covagg/internal/classfile"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/schema"
	"github.com/spf13/afero"
)

// ExecutionData is the read-only view of the execution data store the analyzer needs.
type ExecutionData interface {
	Get(id uint64) (schema.ExecutionRecord, bool)
	Contains(name string) bool
}

// Analyzer analyzes class files and archives as bundles.
type Analyzer struct {
	fs      afero.Fs
	data    ExecutionData
	workers int
}

var _ contract.BundleAnalyzer = (*Analyzer)(nil)

// New creates an analyzer reading from fs and looking up probes in data.
func New(fs afero.Fs, data ExecutionData, workers int) *Analyzer {
	return &Analyzer{fs: fs, data: data, workers: max(1, workers)}
}

// unit is one class file to analyze; location names it in logs.
type unit struct {
	location string
	data     []byte
}

type classResult struct {
	coverage *schema.ClassCoverage
	location string
}

// AnalyzeBundle analyzes the given class files and archives as one bundle.
func (a *Analyzer) AnalyzeBundle(ctx context.Context, name string, classFiles []string) (*schema.BundleCoverage, []string, error) {
	var units []unit
	for _, f := range classFiles {
		found, err := a.collect(f)
		if err != nil {
			return nil, nil, err
		}
		units = append(units, found...)
	}

	results, err := a.analyzeUnits(ctx, units)
	if err != nil {
		return nil, nil, err
	}

	builder := NewCoverageBuilder()
	for _, r := range results {
		if r.coverage == nil {
			continue
		}
		if err := builder.Add(r.coverage); err != nil {
			contract.LogWarn(fmt.Sprintf("Skipping %s", r.location), err)
		}
	}

	bundle := builder.Bundle(name)
	noMatch := builder.NoMatchClasses()
	logBundleInfo(bundle, noMatch)
	return bundle, noMatch, nil
}

// analyzeUnits runs the worker pool; results keep the order of units.
func (a *Analyzer) analyzeUnits(ctx context.Context, units []unit) ([]classResult, error) {
	results := make([]classResult, len(units))
	unitCh := make(chan int, len(units))
	var wg sync.WaitGroup

	for range min(a.workers, max(1, len(units))) {
		wg.Go(func() {
			for i := range unitCh {
				if ctx.Err() != nil {
					continue
				}
				// Each worker writes a unique index.
				results[i] = a.analyzeClass(units[i])
			}
		})
	}
	for i := range units {
		unitCh <- i
	}
	close(unitCh)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// analyzeClass parses one class and replays its probes. Unparseable classes are skipped with a warning.
func (a *Analyzer) analyzeClass(u unit) classResult {
	res := classResult{location: u.location}
	cf, err := classfile.Parse(u.data)
	if err != nil {
		contract.LogWarn(fmt.Sprintf("Skipping class file %s", u.location), err)
		return res
	}
	if cf.AccessFlags&classfile.AccSynthetic != 0 || cf.IsModuleInfo() {
		return res
	}

	id := classfile.ClassID(u.data)
	var probes []bool
	rec, found := a.data.Get(id)
	if found {
		probes = rec.Probes
	}
	cc := schema.NewClassCoverage(cf.Name, id, !found && a.data.Contains(cf.Name))
	cc.SuperName = cf.SuperName
	cc.SourceFileName = cf.SourceFile

	next := 0
	for _, m := range cf.Methods {
		if m.Code == nil {
			continue
		}
		mc, used, err := analyzeMethod(m, next, probes)
		if err != nil {
			contract.LogWarn(fmt.Sprintf("Skipping class file %s", u.location), err)
			return res
		}
		next += used
		// Synthetic methods still consume their probes.
		if m.IsSynthetic() && !strings.HasPrefix(m.Name, "lambda$") {
			continue
		}
		if mc.Instruction.Total() > 0 {
			cc.AddMethod(mc)
		}
	}
	if cc.Instruction.Total() == 0 {
		return res
	}
	res.coverage = cc
	return res
}

// collect reads a class file, or every class entry of an archive.
func (a *Analyzer) collect(file string) ([]unit, error) {
	data, err := afero.ReadFile(a.fs, file)
	if err != nil {
		return nil, &contract.FilesystemError{Op: "cannot read class file", Path: file, Err: err}
	}
	switch strings.ToLower(path.Ext(file)) {
	case ".class":
		return []unit{{location: file, data: data}}, nil
	case ".jar", ".zip", ".war", ".ear":
		return collectArchive(file, data)
	default:
		return nil, nil
	}
}

func collectArchive(location string, data []byte) ([]unit, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &contract.FilesystemError{Op: "cannot read archive", Path: location, Err: err}
	}
	var units []unit
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(entry.Name))
		if ext != ".class" && ext != ".jar" && ext != ".zip" {
			continue
		}
		entryLocation := location + "@" + entry.Name
		body, err := readEntry(entry)
		if err != nil {
			return nil, &contract.FilesystemError{Op: "cannot read archive entry", Path: entryLocation, Err: err}
		}
		if ext == ".class" {
			units = append(units, unit{location: entryLocation, data: body})
			continue
		}
		nested, err := collectArchive(entryLocation, body)
		if err != nil {
			return nil, err
		}
		units = append(units, nested...)
	}
	return units, nil
}

func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func logBundleInfo(bundle *schema.BundleCoverage, noMatch []string) {
	contract.LogInfo("Analyzed bundle '%s' with %d classes", bundle.Name, bundle.Class.Total())
	if len(noMatch) > 0 {
		contract.LogWarn(fmt.Sprintf("Classes in bundle '%s' do not match with execution data. "+
			"For report generation the same class files must be used as at runtime.", bundle.Name),
			&contract.ClassMismatchWarning{Bundle: bundle.Name, Classes: noMatch})
		for _, name := range noMatch {
			contract.LogWarn(fmt.Sprintf("Execution data for class %s does not match.", name), nil)
		}
	}
	if bundle.Instruction.Total() > 0 && bundle.Line.Total() == 0 {
		contract.LogWarn("To enable source code annotation class files have to be compiled with debug information.", nil)
	}
}
