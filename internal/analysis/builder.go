package analysis

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/huangsam/covagg/schema"
)

// CoverageBuilder collects analyzed classes and groups them into a bundle.
type CoverageBuilder struct {
	ids     map[string]uint64
	classes map[string]*schema.ClassCoverage
	noMatch []string
}

// NewCoverageBuilder returns an empty builder.
func NewCoverageBuilder() *CoverageBuilder {
	return &CoverageBuilder{ids: map[string]uint64{}, classes: map[string]*schema.ClassCoverage{}}
}

// Add records a class. Adding the same class twice is a no-op; a different class
// with the same name is rejected.
func (b *CoverageBuilder) Add(c *schema.ClassCoverage) error {
	if id, ok := b.ids[c.Name]; ok {
		if id != c.ID {
			return fmt.Errorf("can't add different class with same name: %s", c.Name)
		}
		return nil
	}
	b.ids[c.Name] = c.ID
	if c.NoMatch {
		b.noMatch = append(b.noMatch, c.Name)
		return nil
	}
	b.classes[c.Name] = c
	return nil
}

// NoMatchClasses returns the sorted names of classes whose execution data did not match.
func (b *CoverageBuilder) NoMatchClasses() []string {
	return slices.Sorted(slices.Values(b.noMatch))
}

// Bundle builds the bundle; packages, classes and source files are sorted by name.
func (b *CoverageBuilder) Bundle(name string) *schema.BundleCoverage {
	type pkgParts struct {
		classes []*schema.ClassCoverage
		sources map[string]*schema.SourceFileCoverage
	}
	pkgs := map[string]*pkgParts{}

	for _, cname := range slices.Sorted(maps.Keys(b.classes)) {
		c := b.classes[cname]
		pkgName := c.PackageName()
		p, ok := pkgs[pkgName]
		if !ok {
			p = &pkgParts{sources: map[string]*schema.SourceFileCoverage{}}
			pkgs[pkgName] = p
		}
		p.classes = append(p.classes, c)
		if c.SourceFileName == "" {
			continue
		}
		s, ok := p.sources[c.SourceFileName]
		if !ok {
			s = &schema.SourceFileCoverage{Name: c.SourceFileName, PackageName: pkgName, SourceNode: schema.NewSourceNode()}
			p.sources[c.SourceFileName] = s
		}
		s.IncrementNode(c.SourceNode)
	}

	packages := make([]*schema.PackageCoverage, 0, len(pkgs))
	for _, pkgName := range slices.Sorted(maps.Keys(pkgs)) {
		p := pkgs[pkgName]
		sources := slices.SortedFunc(maps.Values(p.sources), func(a, b *schema.SourceFileCoverage) int {
			return cmp.Compare(a.Name, b.Name)
		})
		packages = append(packages, schema.NewPackageCoverage(pkgName, p.classes, sources))
	}
	return schema.NewBundleCoverage(name, packages)
}
