// Package schema has the coverage model, records and enums for all parts of covagg.
package schema

import (
	"maps"
	"slices"
	"strings"
)

// UnknownLine marks a node without debug line information.
const UnknownLine = -1

// Counter holds the missed and covered totals for one counter entity.
type Counter struct {
	Missed  int `json:"missed"`
	Covered int `json:"covered"`
}

// Shared counters for single items.
var (
	CounterMissedOne  = Counter{Missed: 1}
	CounterCoveredOne = Counter{Covered: 1}
)

// Total returns missed plus covered.
func (c Counter) Total() int { return c.Missed + c.Covered }

// Add returns the element-wise sum of two counters.
func (c Counter) Add(o Counter) Counter {
	return Counter{Missed: c.Missed + o.Missed, Covered: c.Covered + o.Covered}
}

// CoveredRatio returns covered/total, or 0 for an empty counter.
func (c Counter) CoveredRatio() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Covered) / float64(c.Total())
}

// MissedRatio returns missed/total, or 0 for an empty counter.
func (c Counter) MissedRatio() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Missed) / float64(c.Total())
}

// Value returns the counter value selected by a rule value.
func (c Counter) Value(v RuleValue) float64 {
	switch v {
	case TotalCountValue:
		return float64(c.Total())
	case CoveredCountValue:
		return float64(c.Covered)
	case MissedCountValue:
		return float64(c.Missed)
	case MissedRatioValue:
		return c.MissedRatio()
	default:
		return c.CoveredRatio()
	}
}

// status returns the JaCoCo-style status bits: 0 empty, 1 not covered, 2 fully, 3 partly.
func (c Counter) status() int {
	s := 0
	if c.Missed > 0 {
		s |= 1
	}
	if c.Covered > 0 {
		s |= 2
	}
	return s
}

// Counters holds one counter per counter entity.
type Counters struct {
	Instruction Counter `json:"instruction"`
	Branch      Counter `json:"branch"`
	Line        Counter `json:"line"`
	Complexity  Counter `json:"complexity"`
	Method      Counter `json:"method"`
	Class       Counter `json:"class"`
}

// Increment adds every counter of o to c.
func (c *Counters) Increment(o Counters) {
	c.Instruction = c.Instruction.Add(o.Instruction)
	c.Branch = c.Branch.Add(o.Branch)
	c.Line = c.Line.Add(o.Line)
	c.Complexity = c.Complexity.Add(o.Complexity)
	c.Method = c.Method.Add(o.Method)
	c.Class = c.Class.Add(o.Class)
}

// Get returns the counter for the given entity.
func (c Counters) Get(entity CounterEntity) Counter {
	switch entity {
	case BranchCounter:
		return c.Branch
	case LineCounter:
		return c.Line
	case ComplexityCounter:
		return c.Complexity
	case MethodCounter:
		return c.Method
	case ClassCounter:
		return c.Class
	default:
		return c.Instruction
	}
}

// LineCoverage holds the instruction and branch counters of one source line.
type LineCoverage struct {
	Nr          int     `json:"nr"`
	Instruction Counter `json:"instruction"`
	Branch      Counter `json:"branch"`
}

// Status combines instruction and branch coverage into a line status.
func (l LineCoverage) Status() LineStatus {
	switch l.Instruction.status() | l.Branch.status() {
	case 1:
		return LineNotCovered
	case 2:
		return LineFullyCovered
	case 3:
		return LinePartlyCovered
	default:
		return LineEmpty
	}
}

// SourceNode is a coverage node with optional per-line detail.
type SourceNode struct {
	Counters
	FirstLine int                  `json:"first_line"`
	LastLine  int                  `json:"last_line"`
	Lines     map[int]LineCoverage `json:"-"`
}

// NewSourceNode returns an empty node without line information.
func NewSourceNode() SourceNode {
	return SourceNode{FirstLine: UnknownLine, LastLine: UnknownLine, Lines: map[int]LineCoverage{}}
}

// IncrementLine adds instruction and branch counts to a line, keeping the line counter consistent.
func (n *SourceNode) IncrementLine(nr int, insn, branch Counter) {
	if n.Lines == nil {
		n.Lines = map[int]LineCoverage{}
	}
	old := n.Lines[nr]
	oldTotal, oldCovered := old.Instruction.Total(), old.Instruction.Covered
	n.Lines[nr] = LineCoverage{Nr: nr, Instruction: old.Instruction.Add(insn), Branch: old.Branch.Add(branch)}

	if n.FirstLine == UnknownLine || nr < n.FirstLine {
		n.FirstLine = nr
	}
	if n.LastLine == UnknownLine || nr > n.LastLine {
		n.LastLine = nr
	}

	if insn.Total() == 0 {
		return
	}
	switch {
	case insn.Covered == 0:
		if oldTotal == 0 {
			n.Line = n.Line.Add(CounterMissedOne)
		}
	case oldTotal == 0:
		n.Line = n.Line.Add(CounterCoveredOne)
	case oldCovered == 0:
		n.Line = n.Line.Add(Counter{Missed: -1, Covered: 1})
	}
}

// IncrementNode adds a child node: counters directly, lines merged line by line.
func (n *SourceNode) IncrementNode(child SourceNode) {
	line := n.Line
	n.Increment(child.Counters)
	n.Line = line
	for _, nr := range slices.Sorted(maps.Keys(child.Lines)) {
		l := child.Lines[nr]
		n.IncrementLine(nr, l.Instruction, l.Branch)
	}
}

// SortedLines returns line details ordered by line number.
func (n *SourceNode) SortedLines() []LineCoverage {
	out := make([]LineCoverage, 0, len(n.Lines))
	for _, nr := range slices.Sorted(maps.Keys(n.Lines)) {
		out = append(out, n.Lines[nr])
	}
	return out
}

// HasLines reports whether debug line information is present.
func (n *SourceNode) HasLines() bool { return n.FirstLine != UnknownLine }

// MethodCoverage is the coverage of a single method.
type MethodCoverage struct {
	Name string `json:"name"`
	Desc string `json:"desc"`
	SourceNode
}

// ClassCoverage is the coverage of a single class.
type ClassCoverage struct {
	Name           string            `json:"name"` // VM name, e.g. org/acme/Foo$Bar
	ID             uint64            `json:"id"`
	NoMatch        bool              `json:"no_match"`
	SuperName      string            `json:"super_name,omitempty"`
	SourceFileName string            `json:"source_file,omitempty"`
	Methods        []*MethodCoverage `json:"methods"`
	SourceNode
}

// NewClassCoverage returns an empty class node.
func NewClassCoverage(name string, id uint64, noMatch bool) *ClassCoverage {
	return &ClassCoverage{Name: name, ID: id, NoMatch: noMatch, SourceNode: NewSourceNode()}
}

// AddMethod adds a method; the class counts as covered once any method is covered.
func (c *ClassCoverage) AddMethod(m *MethodCoverage) {
	c.Methods = append(c.Methods, m)
	c.IncrementNode(m.SourceNode)
	if c.Method.Covered > 0 {
		c.Class = CounterCoveredOne
	} else {
		c.Class = CounterMissedOne
	}
}

// PackageName returns the VM package of the class, empty for the default package.
func (c *ClassCoverage) PackageName() string {
	if i := strings.LastIndexByte(c.Name, '/'); i >= 0 {
		return c.Name[:i]
	}
	return ""
}

// SimpleName returns the class name without package, nested classes joined with '.'.
func (c *ClassCoverage) SimpleName() string {
	name := c.Name[strings.LastIndexByte(c.Name, '/')+1:]
	return strings.ReplaceAll(name, "$", ".")
}

// SourceFileCoverage is the merged coverage of all classes compiled from one source file.
type SourceFileCoverage struct {
	Name        string `json:"name"`
	PackageName string `json:"package"`
	SourceNode
}

// PackageCoverage is the coverage of one package.
type PackageCoverage struct {
	Name        string                `json:"name"` // VM name, e.g. org/acme
	Classes     []*ClassCoverage      `json:"classes"`
	SourceFiles []*SourceFileCoverage `json:"source_files"`
	Counters
}

// NewPackageCoverage builds a package node; classes without a source file count on their own.
func NewPackageCoverage(name string, classes []*ClassCoverage, sourceFiles []*SourceFileCoverage) *PackageCoverage {
	p := &PackageCoverage{Name: name, Classes: classes, SourceFiles: sourceFiles}
	for _, s := range sourceFiles {
		p.Increment(s.Counters)
	}
	for _, c := range classes {
		if c.SourceFileName == "" {
			p.Increment(c.Counters)
		}
	}
	return p
}

// DisplayName returns the dotted package name.
func (p *PackageCoverage) DisplayName() string {
	if p.Name == "" {
		return "default"
	}
	return strings.ReplaceAll(p.Name, "/", ".")
}

// BundleCoverage is the coverage of one module.
type BundleCoverage struct {
	Name     string             `json:"name"`
	Packages []*PackageCoverage `json:"packages"`
	Counters
}

// NewBundleCoverage builds a bundle node from its packages.
func NewBundleCoverage(name string, packages []*PackageCoverage) *BundleCoverage {
	b := &BundleCoverage{Name: name, Packages: packages}
	for _, p := range packages {
		b.Increment(p.Counters)
	}
	return b
}

// ClassCount returns the number of classes in the bundle.
func (b *BundleCoverage) ClassCount() int {
	n := 0
	for _, p := range b.Packages {
		n += len(p.Classes)
	}
	return n
}

// ReportGroup is a named tree of bundles and subgroups.
type ReportGroup struct {
	Name    string            `json:"name"`
	Bundles []*BundleCoverage `json:"bundles"`
	Groups  []*ReportGroup    `json:"groups,omitempty"`
}

// Totals returns the sum of direct bundles and subgroups.
func (g *ReportGroup) Totals() Counters {
	var c Counters
	for _, b := range g.Bundles {
		c.Increment(b.Counters)
	}
	for _, sub := range g.Groups {
		c.Increment(sub.Totals())
	}
	return c
}

// AllBundles returns every bundle in the tree, depth first, in visit order.
func (g *ReportGroup) AllBundles() []*BundleCoverage {
	out := slices.Clone(g.Bundles)
	for _, sub := range g.Groups {
		out = append(out, sub.AllBundles()...)
	}
	return out
}
