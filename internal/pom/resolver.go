package pom

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/schema"
	"github.com/spf13/afero"
)

// Maven defaults for the build layout.
const (
	DefaultBuildDir     = "target"
	DefaultClassesDir   = "classes"
	DefaultSourceDir    = "src/main/java"
	sourceEncodingKey   = "project.build.sourceEncoding"
	maxInterpolateDepth = 10
)

var propertyRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolver turns descriptor files into module descriptors.
type Resolver struct {
	fs afero.Fs
}

// NewResolver returns a resolver reading from fs.
func NewResolver(fs afero.Fs) *Resolver {
	return &Resolver{fs: fs}
}

var _ contract.ModuleResolver = (*Resolver)(nil)

// effective carries what a child inherits from a resolved parent chain.
type effective struct {
	props    map[string]string
	encoding string
}

// Describe resolves the descriptor at path, which may be a pom.xml or a directory holding one.
func (r *Resolver) Describe(path string) (schema.ModuleDescriptor, error) {
	pomPath, err := r.descriptorPath(path)
	if err != nil {
		return schema.ModuleDescriptor{}, err
	}
	desc, _, err := r.describe(pomPath, map[string]bool{})
	return desc, err
}

// Parent resolves the declared parent of a module when it exists on disk.
func (r *Resolver) Parent(module schema.ModuleDescriptor) (schema.ModuleDescriptor, bool) {
	project, err := Read(r.fs, module.DescriptorPath)
	if err != nil {
		return schema.ModuleDescriptor{}, false
	}
	parentPath, ok := r.parentPath(project, module.BaseDir)
	if !ok {
		return schema.ModuleDescriptor{}, false
	}
	parent, _, err := r.describe(parentPath, map[string]bool{module.DescriptorPath: true})
	if err != nil {
		contract.LogDebug("Parent of %s is not resolvable: %v", module.DescriptorPath, err)
		return schema.ModuleDescriptor{}, false
	}
	return parent, true
}

// Discover walks the declared modules below root and returns them parent-first,
// children in declared order. The root itself is not part of the result.
func (r *Resolver) Discover(root schema.ModuleDescriptor) []schema.ModuleDescriptor {
	type item struct {
		parent schema.ModuleDescriptor
		module string
	}

	visited := map[string]bool{filepath.Clean(root.DescriptorPath): true}
	var result []schema.ModuleDescriptor

	// Pushing children in reverse keeps the pop order equal to declared order.
	var stack []item
	push := func(parent schema.ModuleDescriptor) {
		for i := len(parent.Modules) - 1; i >= 0; i-- {
			stack = append(stack, item{parent: parent, module: parent.Modules[i]})
		}
	}
	push(root)

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		target := filepath.Join(it.parent.BaseDir, filepath.FromSlash(it.module))
		pomPath, err := r.descriptorPath(target)
		if err != nil {
			contract.LogWarn("Skipping module", &contract.ModuleResolutionWarning{Path: target, Err: err})
			continue
		}
		if visited[pomPath] {
			contract.LogWarn("Skipping module", &contract.ModuleResolutionWarning{
				Path: pomPath, Err: fmt.Errorf("already visited"),
			})
			continue
		}
		visited[pomPath] = true

		desc, _, err := r.describe(pomPath, map[string]bool{})
		if err != nil {
			contract.LogWarn("Skipping module", &contract.ModuleResolutionWarning{Path: pomPath, Err: err})
			continue
		}
		result = append(result, desc)
		push(desc)
	}
	return result
}

// descriptorPath maps a directory or pom path to a cleaned absolute pom path.
func (r *Resolver) descriptorPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := r.fs.Stat(abs)
	if err != nil {
		if filepath.Ext(abs) != ".xml" {
			abs = filepath.Join(abs, FileName)
		}
		return abs, &contract.FilesystemError{Op: "descriptor not found", Path: abs, Err: err}
	}
	if info.IsDir() {
		abs = filepath.Join(abs, FileName)
		if _, err := r.fs.Stat(abs); err != nil {
			return abs, &contract.FilesystemError{Op: "descriptor not found", Path: abs, Err: err}
		}
	}
	return filepath.Clean(abs), nil
}

// parentPath returns the parent descriptor location when one is declared and present.
// A pom at the relative path only counts when it is the declared parent; otherwise
// the parent lives in a repository and is not resolvable locally.
func (r *Resolver) parentPath(project *Project, baseDir string) (string, bool) {
	rel := project.ParentRelativePath()
	if rel == "" {
		return "", false
	}
	p, err := r.descriptorPath(filepath.Join(baseDir, filepath.FromSlash(rel)))
	if err != nil {
		return "", false
	}
	candidate, err := Read(r.fs, p)
	if err != nil {
		return "", false
	}
	if !project.Parent.Matches(candidate) {
		contract.LogDebug("Ignoring %s: it is not the declared parent %s", p, project.Parent.Coordinates())
		return "", false
	}
	return p, true
}

// describe resolves a pom and its local parent chain. seen guards against parent cycles.
func (r *Resolver) describe(pomPath string, seen map[string]bool) (schema.ModuleDescriptor, effective, error) {
	project, err := Read(r.fs, pomPath)
	if err != nil {
		return schema.ModuleDescriptor{}, effective{}, fmt.Errorf("%s: %w", pomPath, err)
	}
	seen[pomPath] = true
	baseDir := filepath.Dir(pomPath)

	inherited := effective{props: map[string]string{}}
	if parentPath, ok := r.parentPath(project, baseDir); ok && !seen[parentPath] {
		if _, parentEff, err := r.describe(parentPath, seen); err == nil {
			inherited = parentEff
		}
	}

	props := make(map[string]string, len(inherited.props)+len(project.Properties)+8)
	for k, v := range inherited.props {
		props[k] = v
	}
	for k, v := range project.Properties {
		props[k] = v
	}
	props["project.basedir"] = baseDir
	props["basedir"] = baseDir
	props["project.artifactId"] = project.ArtifactID
	props["project.groupId"] = project.EffectiveGroupID()
	props["project.version"] = project.EffectiveVersion()

	buildDir := resolvePath(baseDir, interpolate(orDefault(project.Build.Directory, DefaultBuildDir), props))
	props["project.build.directory"] = buildDir
	outputDir := resolvePath(baseDir, interpolate(
		orDefault(project.Build.OutputDirectory, filepath.Join(buildDir, DefaultClassesDir)), props))
	props["project.build.outputDirectory"] = outputDir
	sourceDir := resolvePath(baseDir, interpolate(orDefault(project.Build.SourceDirectory, DefaultSourceDir), props))

	encoding := interpolate(project.Properties[sourceEncodingKey], props)
	if encoding == "" {
		encoding = inherited.encoding
	}
	if encoding == "" {
		encoding = contract.DefaultEncoding
	}

	desc := schema.ModuleDescriptor{
		ArtifactID:     project.ArtifactID,
		Name:           interpolate(strings.TrimSpace(project.Name), props),
		Packaging:      project.Packaging,
		BaseDir:        baseDir,
		DescriptorPath: pomPath,
		Modules:        project.Modules,
		OutputDir:      outputDir,
		SourceRoots:    []string{sourceDir},
		SourceEncoding: encoding,
	}

	// Build-specific keys do not carry over to children.
	childProps := make(map[string]string, len(props))
	for k, v := range props {
		switch k {
		case "project.basedir", "basedir", "project.artifactId", "project.build.directory", "project.build.outputDirectory":
			continue
		}
		childProps[k] = v
	}
	return desc, effective{props: childProps, encoding: encoding}, nil
}

// interpolate expands ${...} references; unknown references are left as they are.
func interpolate(s string, props map[string]string) string {
	for range maxInterpolateDepth {
		if !strings.Contains(s, "${") {
			return s
		}
		next := propertyRef.ReplaceAllStringFunc(s, func(m string) string {
			key := m[2 : len(m)-1]
			if v, ok := props[key]; ok {
				return v
			}
			return m
		})
		if next == s {
			return s
		}
		s = next
	}
	return s
}

func resolvePath(baseDir, p string) string {
	p = filepath.FromSlash(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
