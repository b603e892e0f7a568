package outwriter

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/huangsam/covagg/schema"
)

const csvFileName = "jacoco.csv"

var csvHeader = []string{
	"GROUP", "PACKAGE", "CLASS",
	"INSTRUCTION_MISSED", "INSTRUCTION_COVERED",
	"BRANCH_MISSED", "BRANCH_COVERED",
	"LINE_MISSED", "LINE_COVERED",
	"COMPLEXITY_MISSED", "COMPLEXITY_COVERED",
	"METHOD_MISSED", "METHOD_COVERED",
}

// CSVFormatter writes a single jacoco.csv with one row per class.
type CSVFormatter struct{}

// Format implements ReportFormatter.
func (CSVFormatter) Format() schema.ReportFormat { return schema.CSVFormat }

// CreateVisitor implements ReportFormatter.
func (CSVFormatter) CreateVisitor(cfg ReportConfig) (ReportVisitor, error) {
	return &csvVisitor{cfg: cfg}, nil
}

func (CSVFormatter) formatter() {}

type csvVisitor struct {
	recorder
	cfg ReportConfig
}

func (v *csvVisitor) VisitEnd() error {
	if err := v.end(); err != nil {
		return err
	}
	out := newOutputFiles(v.cfg)
	err := out.render(csvFileName, func(w io.Writer) error {
		return writeCSVWithHeader(w, csvHeader, func(cw *csv.Writer) error {
			if v.named {
				return writeCSVGroup(cw, &v.root, v.root.name)
			}
			return writeCSVGroup(cw, &v.root, "")
		})
	})
	if err != nil {
		return err
	}
	return out.flush()
}

func writeCSVGroup(w *csv.Writer, g *groupNode, prefix string) error {
	for _, ch := range g.children {
		if ch.bundle != nil {
			if err := writeCSVBundle(w, ch.bundle.bundle, joinGroup(prefix, ch.bundle.bundle.Name)); err != nil {
				return err
			}
			continue
		}
		if err := writeCSVGroup(w, ch.group, joinGroup(prefix, ch.group.name)); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVBundle(w *csv.Writer, b *schema.BundleCoverage, group string) error {
	for _, p := range b.Packages {
		for _, c := range p.Classes {
			row := []string{group, p.DisplayName(), c.SimpleName()}
			for _, counter := range []schema.Counter{c.Instruction, c.Branch, c.Line, c.Complexity, c.Method} {
				row = append(row, strconv.Itoa(counter.Missed), strconv.Itoa(counter.Covered))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinGroup(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
