package outwriter

import (
	"errors"
	"slices"

	"github.com/huangsam/covagg/schema"
)

// GroupVisitor receives bundles and nested groups.
type GroupVisitor interface {
	// VisitBundle adds a bundle; locator provides its sources for annotated output.
	VisitBundle(bundle *schema.BundleCoverage, locator SourceFileLocator) error

	// VisitGroup opens a nested group and returns its visitor.
	VisitGroup(name string) (GroupVisitor, error)
}

// ReportVisitor is the root visitor of a report.
type ReportVisitor interface {
	GroupVisitor

	// VisitInfo passes session infos and execution records; it must be called first.
	VisitInfo(sessions []schema.SessionInfo, records []schema.ExecutionRecord) error

	// VisitEnd completes the report and writes it.
	VisitEnd() error
}

// MultiReportVisitor fans every call out to all of its visitors.
type MultiReportVisitor struct {
	multiGroupVisitor
	visitors []ReportVisitor
}

// NewMultiReportVisitor combines visitors into one.
func NewMultiReportVisitor(visitors ...ReportVisitor) *MultiReportVisitor {
	groups := make([]GroupVisitor, len(visitors))
	for i, v := range visitors {
		groups[i] = v
	}
	return &MultiReportVisitor{multiGroupVisitor: multiGroupVisitor{visitors: groups}, visitors: visitors}
}

// VisitInfo implements ReportVisitor.
func (m *MultiReportVisitor) VisitInfo(sessions []schema.SessionInfo, records []schema.ExecutionRecord) error {
	for _, v := range m.visitors {
		if err := v.VisitInfo(sessions, records); err != nil {
			return err
		}
	}
	return nil
}

// VisitEnd implements ReportVisitor; every visitor is ended even when one fails.
func (m *MultiReportVisitor) VisitEnd() error {
	var errs []error
	for _, v := range m.visitors {
		errs = append(errs, v.VisitEnd())
	}
	return errors.Join(errs...)
}

type multiGroupVisitor struct {
	visitors []GroupVisitor
}

func (m *multiGroupVisitor) VisitBundle(bundle *schema.BundleCoverage, locator SourceFileLocator) error {
	for _, v := range m.visitors {
		if err := v.VisitBundle(bundle, locator); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiGroupVisitor) VisitGroup(name string) (GroupVisitor, error) {
	children := make([]GroupVisitor, 0, len(m.visitors))
	for _, v := range m.visitors {
		child, err := v.VisitGroup(name)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return &multiGroupVisitor{visitors: children}, nil
}

// visitedBundle is a bundle together with the locator it was visited with.
type visitedBundle struct {
	bundle  *schema.BundleCoverage
	locator SourceFileLocator
}

// groupNode records a visited group; children keep visit order.
type groupNode struct {
	name     string
	children []groupChild
}

type groupChild struct {
	bundle *visitedBundle
	group  *groupNode
}

func (g *groupNode) VisitBundle(bundle *schema.BundleCoverage, locator SourceFileLocator) error {
	if locator == nil {
		locator = NoSourceLocator{}
	}
	g.children = append(g.children, groupChild{bundle: &visitedBundle{bundle: bundle, locator: locator}})
	return nil
}

func (g *groupNode) VisitGroup(name string) (GroupVisitor, error) {
	child := &groupNode{name: name}
	g.children = append(g.children, groupChild{group: child})
	return child, nil
}

// counters sums every bundle below the group.
func (g *groupNode) counters() schema.Counters {
	var c schema.Counters
	for _, ch := range g.children {
		if ch.bundle != nil {
			c.Increment(ch.bundle.bundle.Counters)
		} else {
			c.Increment(ch.group.counters())
		}
	}
	return c
}

// recorder buffers a visited report so formatters can write it at the end.
// The first group opened on an empty root names the report instead of nesting.
type recorder struct {
	root     groupNode
	named    bool
	sessions []schema.SessionInfo
	records  []schema.ExecutionRecord
	ended    bool
}

func (r *recorder) VisitInfo(sessions []schema.SessionInfo, records []schema.ExecutionRecord) error {
	r.sessions = slices.Clone(sessions)
	r.records = records
	return nil
}

func (r *recorder) VisitBundle(bundle *schema.BundleCoverage, locator SourceFileLocator) error {
	return r.root.VisitBundle(bundle, locator)
}

func (r *recorder) VisitGroup(name string) (GroupVisitor, error) {
	if !r.named && len(r.root.children) == 0 {
		r.named = true
		r.root.name = name
		return &r.root, nil
	}
	return r.root.VisitGroup(name)
}

// end guards against writing a report twice.
func (r *recorder) end() error {
	if r.ended {
		return errors.New("report already ended")
	}
	r.ended = true
	return nil
}

// reportName is the group title, or the single root bundle's name.
func (r *recorder) reportName() string {
	if r.named {
		return r.root.name
	}
	if len(r.root.children) == 1 && r.root.children[0].bundle != nil {
		return r.root.children[0].bundle.bundle.Name
	}
	return r.root.name
}
