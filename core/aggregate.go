package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/huangsam/covagg/internal/analysis"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/internal/execdata"
	"github.com/huangsam/covagg/internal/filefilter"
	"github.com/huangsam/covagg/internal/outwriter"
	"github.com/huangsam/covagg/internal/pom"
	"github.com/huangsam/covagg/schema"
	"github.com/spf13/afero"
)

// modulePlan is the resolved set of modules for one run.
type modulePlan struct {
	current schema.ModuleDescriptor
	modules []schema.ModuleDescriptor // visit order
	dataDir map[string]string         // descriptor path -> directory searched for exec files
}

// Aggregate runs discovery, loads execution data, analyzes every module and
// visits the resulting bundles on the given visitors under one titled group.
// With no visitors nothing is written and the output directory is left alone.
func Aggregate(ctx context.Context, cfg *contract.Config, visitors []outwriter.ReportVisitor) (*schema.AggregateResult, error) {
	return aggregate(ctx, cfg, pom.NewResolver(cfg.FS()), visitors)
}

func aggregate(ctx context.Context, cfg *contract.Config, resolver contract.ModuleResolver, visitors []outwriter.ReportVisitor) (*schema.AggregateResult, error) {
	fs := cfg.FS()

	// --- 1. Module resolution ---
	plan, err := planModules(cfg, resolver)
	if err != nil {
		return nil, err
	}

	// --- 2. Execution data, module order then path order ---
	loader := execdata.NewLoader(fs)
	execFiles, err := loadExecutionData(fs, cfg, plan, loader)
	if err != nil {
		return nil, err
	}

	// --- 3. Output directory ---
	if len(visitors) > 0 {
		if err := createOutputDir(fs, cfg.OutputDir); err != nil {
			return nil, err
		}
	}

	// --- 4. Visit bundles ---
	title := reportTitle(cfg, plan.current)
	records := loader.Store.Contents()
	res := &schema.AggregateResult{
		Group:     &schema.ReportGroup{Name: title},
		Modules:   plan.modules,
		ExecFiles: execFiles,
		Sessions:  loader.Sessions.Infos(),
		Records:   len(records),
		NoMatch:   map[string][]string{},
	}

	root := outwriter.NewMultiReportVisitor(visitors...)
	if err := root.VisitInfo(res.Sessions, records); err != nil {
		return nil, err
	}
	group, err := root.VisitGroup(title)
	if err != nil {
		return nil, err
	}

	analyzer := analysis.New(fs, loader.Store, cfg.Workers)
	for _, m := range plan.modules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bundle, noMatch, err := analyzeModule(ctx, fs, cfg, analyzer, m)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.DisplayName(), err)
		}
		if err := group.VisitBundle(bundle, sourceLocator(fs, cfg, m)); err != nil {
			return nil, err
		}
		res.Group.Bundles = append(res.Group.Bundles, bundle)
		if len(noMatch) > 0 {
			res.NoMatch[bundle.Name] = noMatch
		}
	}

	// --- 5. Flush formatters ---
	if err := root.VisitEnd(); err != nil {
		return nil, err
	}
	if len(visitors) > 0 {
		res.OutputDir = cfg.OutputDir
	}
	return res, nil
}

// planModules resolves the current project and the modules to visit.
// A configured data root means the current project alone; otherwise modules
// are discovered from the project's parent, or from the project itself.
func planModules(cfg *contract.Config, resolver contract.ModuleResolver) (*modulePlan, error) {
	current, err := resolver.Describe(cfg.ProjectDir)
	if err != nil {
		var fsErr *contract.FilesystemError
		if errors.As(err, &fsErr) {
			return nil, err
		}
		return nil, &contract.FilesystemError{Op: "cannot resolve project", Path: cfg.ProjectDir, Err: err}
	}

	plan := &modulePlan{current: current, dataDir: map[string]string{}}
	if cfg.DataRoot != "" {
		plan.modules = []schema.ModuleDescriptor{current}
		plan.dataDir[current.DescriptorPath] = cfg.DataRoot
		return plan, nil
	}

	root := current
	if parent, ok := resolver.Parent(current); ok {
		root = parent
	}
	discovered := resolver.Discover(root)
	contract.LogDebug("Discovered %d modules below %s", len(discovered), root.DescriptorPath)

	if cfg.IncludeCurrentProject {
		plan.modules = append(plan.modules, current)
	}
	for _, m := range discovered {
		if cfg.IncludeCurrentProject && filepath.Clean(m.DescriptorPath) == filepath.Clean(current.DescriptorPath) {
			continue
		}
		plan.modules = append(plan.modules, m)
	}
	for _, m := range plan.modules {
		plan.dataDir[m.DescriptorPath] = m.BaseDir
	}
	return plan, nil
}

// loadExecutionData loads every selected exec file into the shared stores and returns them in load order.
func loadExecutionData(fs afero.Fs, cfg *contract.Config, plan *modulePlan, loader *execdata.Loader) ([]string, error) {
	filter, err := filefilter.New(fs, cfg.DataFileIncludes, cfg.DataFileExcludes)
	if err != nil {
		return nil, fmt.Errorf("invalid data file patterns: %w", err)
	}

	seen := map[string]bool{}
	var loaded []string
	for _, m := range plan.modules {
		files, err := filter.GetFiles(plan.dataDir[m.DescriptorPath])
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if seen[f] {
				continue
			}
			seen[f] = true
			if err := loader.Load(f); err != nil {
				return nil, err
			}
			loaded = append(loaded, f)
		}
	}
	return loaded, nil
}

// createOutputDir creates the report directory; an existing non-directory is an error.
func createOutputDir(fs afero.Fs, dir string) error {
	if info, err := fs.Stat(dir); err == nil {
		if !info.IsDir() {
			return &contract.FilesystemError{Op: "Created directory fail", Path: dir, Err: errors.New("path exists and is not a directory")}
		}
		return nil
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return &contract.FilesystemError{Op: "Created directory fail", Path: dir, Err: err}
	}
	return nil
}

// analyzeModule builds the bundle of one module; a module without a classes directory yields an empty bundle.
func analyzeModule(ctx context.Context, fs afero.Fs, cfg *contract.Config, analyzer contract.BundleAnalyzer, m schema.ModuleDescriptor) (*schema.BundleCoverage, []string, error) {
	name := m.BundleName()
	if ok, _ := afero.DirExists(fs, m.OutputDir); !ok {
		contract.LogDebug("No classes directory for %s at %s", name, m.OutputDir)
		return schema.NewBundleCoverage(name, nil), nil, nil
	}
	filter, err := filefilter.New(fs, cfg.Includes, cfg.Excludes)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid class file patterns: %w", err)
	}
	files, err := filter.GetFiles(m.OutputDir)
	if err != nil {
		return nil, nil, err
	}
	return analyzer.AnalyzeBundle(ctx, name, files)
}

// sourceLocator looks up sources in the module's roots; a configured encoding wins over the module's.
func sourceLocator(fs afero.Fs, cfg *contract.Config, m schema.ModuleDescriptor) outwriter.SourceFileLocator {
	encoding := cfg.SourceEncoding
	if encoding == "" {
		encoding = m.SourceEncoding
	}
	return outwriter.NewDirectorySourceLocator(fs, m.SourceRoots, encoding, contract.DefaultTabWidth)
}

func reportTitle(cfg *contract.Config, current schema.ModuleDescriptor) string {
	if cfg.Title != "" {
		return cfg.Title
	}
	return current.DisplayName()
}
