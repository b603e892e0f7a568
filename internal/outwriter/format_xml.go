package outwriter

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/huangsam/covagg/schema"
)

const (
	xmlFileName = "jacoco.xml"
	xmlDoctype  = `<!DOCTYPE report PUBLIC "-//JACOCO//DTD Report 1.1//EN" "report.dtd">`
)

// XMLFormatter writes a single jacoco.xml in the JaCoCo report DTD structure.
type XMLFormatter struct{}

// Format implements ReportFormatter.
func (XMLFormatter) Format() schema.ReportFormat { return schema.XMLFormat }

// CreateVisitor implements ReportFormatter.
func (XMLFormatter) CreateVisitor(cfg ReportConfig) (ReportVisitor, error) {
	return &xmlVisitor{cfg: cfg}, nil
}

func (XMLFormatter) formatter() {}

type xmlReport struct {
	XMLName     xml.Name         `xml:"report"`
	Name        string           `xml:"name,attr"`
	SessionInfo []xmlSessionInfo `xml:"sessioninfo"`
	Groups      []xmlGroup       `xml:"group"`
	Packages    []xmlPackage     `xml:"package"`
	Counters    []xmlCounter     `xml:"counter"`
}

type xmlSessionInfo struct {
	ID    string `xml:"id,attr"`
	Start int64  `xml:"start,attr"`
	Dump  int64  `xml:"dump,attr"`
}

type xmlGroup struct {
	Name     string       `xml:"name,attr"`
	Groups   []xmlGroup   `xml:"group"`
	Packages []xmlPackage `xml:"package"`
	Counters []xmlCounter `xml:"counter"`
}

type xmlPackage struct {
	Name        string          `xml:"name,attr"`
	Classes     []xmlClass      `xml:"class"`
	SourceFiles []xmlSourceFile `xml:"sourcefile"`
	Counters    []xmlCounter    `xml:"counter"`
}

type xmlClass struct {
	Name           string       `xml:"name,attr"`
	SourceFileName string       `xml:"sourcefilename,attr,omitempty"`
	Methods        []xmlMethod  `xml:"method"`
	Counters       []xmlCounter `xml:"counter"`
}

type xmlMethod struct {
	Name     string       `xml:"name,attr"`
	Desc     string       `xml:"desc,attr"`
	Line     int          `xml:"line,attr,omitempty"`
	Counters []xmlCounter `xml:"counter"`
}

type xmlSourceFile struct {
	Name     string       `xml:"name,attr"`
	Lines    []xmlLine    `xml:"line"`
	Counters []xmlCounter `xml:"counter"`
}

type xmlLine struct {
	Nr int `xml:"nr,attr"`
	Mi int `xml:"mi,attr"`
	Ci int `xml:"ci,attr"`
	Mb int `xml:"mb,attr"`
	Cb int `xml:"cb,attr"`
}

type xmlCounter struct {
	Type    schema.CounterEntity `xml:"type,attr"`
	Missed  int                  `xml:"missed,attr"`
	Covered int                  `xml:"covered,attr"`
}

type xmlVisitor struct {
	recorder
	cfg ReportConfig
}

func (v *xmlVisitor) VisitEnd() error {
	if err := v.end(); err != nil {
		return err
	}
	report := xmlReport{Name: v.reportName(), Counters: xmlCounters(v.root.counters())}
	for _, s := range v.sessions {
		report.SessionInfo = append(report.SessionInfo, xmlSessionInfo{ID: s.ID, Start: s.Start.UnixMilli(), Dump: s.Dump.UnixMilli()})
	}
	if !v.named && len(v.root.children) == 1 && v.root.children[0].bundle != nil {
		report.Packages = xmlPackages(v.root.children[0].bundle.bundle)
	} else {
		report.Groups = xmlChildren(&v.root)
	}

	out := newOutputFiles(v.cfg)
	if err := out.render(xmlFileName, func(w io.Writer) error { return writeXMLReport(w, report, v.cfg.Encoding) }); err != nil {
		return err
	}
	return out.flush()
}

func writeXMLReport(w io.Writer, report xmlReport, encoding string) error {
	if _, err := fmt.Fprintf(w, `<?xml version="1.0" encoding="%s" standalone="yes"?>%s`, encoding, xmlDoctype); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode XML: %w", err)
	}
	return enc.Close()
}

func xmlChildren(g *groupNode) []xmlGroup {
	var out []xmlGroup
	for _, ch := range g.children {
		if ch.bundle != nil {
			b := ch.bundle.bundle
			out = append(out, xmlGroup{Name: b.Name, Packages: xmlPackages(b), Counters: xmlCounters(b.Counters)})
			continue
		}
		out = append(out, xmlGroup{Name: ch.group.name, Groups: xmlChildren(ch.group), Counters: xmlCounters(ch.group.counters())})
	}
	return out
}

func xmlPackages(b *schema.BundleCoverage) []xmlPackage {
	out := make([]xmlPackage, 0, len(b.Packages))
	for _, p := range b.Packages {
		xp := xmlPackage{Name: p.Name, Counters: xmlCounters(p.Counters)}
		for _, c := range p.Classes {
			xc := xmlClass{Name: c.Name, SourceFileName: c.SourceFileName, Counters: xmlCounters(c.Counters)}
			for _, m := range c.Methods {
				xm := xmlMethod{Name: m.Name, Desc: m.Desc, Counters: xmlCounters(m.Counters)}
				if m.HasLines() {
					xm.Line = m.FirstLine
				}
				xc.Methods = append(xc.Methods, xm)
			}
			xp.Classes = append(xp.Classes, xc)
		}
		for _, s := range p.SourceFiles {
			xs := xmlSourceFile{Name: s.Name, Counters: xmlCounters(s.Counters)}
			for _, l := range s.SortedLines() {
				xs.Lines = append(xs.Lines, xmlLine{
					Nr: l.Nr,
					Mi: l.Instruction.Missed, Ci: l.Instruction.Covered,
					Mb: l.Branch.Missed, Cb: l.Branch.Covered,
				})
			}
			xp.SourceFiles = append(xp.SourceFiles, xs)
		}
		out = append(out, xp)
	}
	return out
}

// xmlCounters lists the non-empty counters in entity order.
func xmlCounters(c schema.Counters) []xmlCounter {
	var out []xmlCounter
	for _, entity := range schema.AllCounterEntities {
		counter := c.Get(entity)
		if counter.Total() > 0 {
			out = append(out, xmlCounter{Type: entity, Missed: counter.Missed, Covered: counter.Covered})
		}
	}
	return out
}
