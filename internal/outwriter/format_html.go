package outwriter

import (
	"bufio"
	"fmt"
	"html/template"
	"io"
	"path"
	"strings"

	"github.com/huangsam/covagg/schema"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	htmlIndexFile    = "index.html"
	htmlSessionsFile = "jacoco-sessions.html"
	htmlResourcesDir = "jacoco-resources"
)

// HTMLFormatter writes a browsable multi-page report below the output directory.
type HTMLFormatter struct{}

// Format implements ReportFormatter.
func (HTMLFormatter) Format() schema.ReportFormat { return schema.HTMLFormat }

// CreateVisitor implements ReportFormatter.
func (HTMLFormatter) CreateVisitor(cfg ReportConfig) (ReportVisitor, error) {
	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale '%s': %w", cfg.Locale, err)
	}
	return &htmlVisitor{cfg: cfg, printer: message.NewPrinter(tag)}, nil
}

func (HTMLFormatter) formatter() {}

type htmlVisitor struct {
	recorder
	cfg     ReportConfig
	printer *message.Printer
}

func (v *htmlVisitor) VisitEnd() error {
	if err := v.end(); err != nil {
		return err
	}
	w := &htmlWriter{out: newOutputFiles(v.cfg), printer: v.printer, cfg: v.cfg}

	var err error
	if !v.named && len(v.root.children) == 1 && v.root.children[0].bundle != nil {
		vb := v.root.children[0].bundle
		err = w.bundlePage(vb, "", nil)
	} else {
		err = w.groupPage(&v.root, v.reportName(), "", nil)
	}
	if err != nil {
		return err
	}
	if err := w.sessionsPage(v.sessions, v.records); err != nil {
		return err
	}
	w.out.raw(path.Join(htmlResourcesDir, "report.css"), []byte(reportCSS))
	return w.out.flush()
}

// htmlLink is a breadcrumb; Href is relative to the report root.
type htmlLink struct {
	Name string
	Href string
}

type htmlCells struct {
	InsnMissed, InsnCov     string
	BranchMissed, BranchCov string
	CxtyMissed, Cxty        string
	LinesMissed, Lines      string
	MethodsMissed, Methods  string
	ClassesMissed, Classes  string
}

type htmlRow struct {
	Name  string
	Href  string
	Style string
	Cells htmlCells
}

type htmlSourceLine struct {
	Nr     int
	Text   string
	Status string
	Title  string
}

type htmlSession struct {
	ID, Start, Dump string
}

type htmlRecord struct {
	Name, ID string
}

type htmlPage struct {
	Title       string
	Crumbs      []htmlLink
	Root        string
	Style       string
	Rows        []htmlRow
	Total       *htmlCells
	ShowClasses bool
	Source      []htmlSourceLine
	Sessions    []htmlSession
	Records     []htmlRecord
	ShowInfo    bool
	Footer      string
	Encoding    string
}

type htmlWriter struct {
	out     *outputFiles
	printer *message.Printer
	cfg     ReportConfig
}

func (w *htmlWriter) groupPage(g *groupNode, title, dir string, crumbs []htmlLink) error {
	crumbs = appendCrumb(crumbs, title, path.Join(dir, htmlIndexFile))
	page := w.newPage(title, dir, crumbs, "el_group")
	page.ShowClasses = true
	total := w.cells(g.counters())
	page.Total = &total

	for _, ch := range g.children {
		if ch.bundle != nil {
			b := ch.bundle.bundle
			child := path.Join(dir, fileSafe(b.Name))
			page.Rows = append(page.Rows, w.row(b.Name, relTo(dir, path.Join(child, htmlIndexFile)), "el_bundle", b.Counters))
			if err := w.bundlePage(ch.bundle, child, crumbs); err != nil {
				return err
			}
			continue
		}
		child := path.Join(dir, fileSafe(ch.group.name))
		page.Rows = append(page.Rows, w.row(ch.group.name, relTo(dir, path.Join(child, htmlIndexFile)), "el_group", ch.group.counters()))
		if err := w.groupPage(ch.group, ch.group.name, child, crumbs); err != nil {
			return err
		}
	}
	return w.write(path.Join(dir, htmlIndexFile), page)
}

func (w *htmlWriter) bundlePage(vb *visitedBundle, dir string, crumbs []htmlLink) error {
	b := vb.bundle
	crumbs = appendCrumb(crumbs, b.Name, path.Join(dir, htmlIndexFile))
	page := w.newPage(b.Name, dir, crumbs, "el_bundle")
	page.ShowClasses = true
	total := w.cells(b.Counters)
	page.Total = &total

	for _, p := range b.Packages {
		child := path.Join(dir, fileSafe(p.DisplayName()))
		page.Rows = append(page.Rows, w.row(p.DisplayName(), relTo(dir, path.Join(child, htmlIndexFile)), "el_package", p.Counters))
		if err := w.packagePages(p, vb.locator, child, crumbs); err != nil {
			return err
		}
	}
	return w.write(path.Join(dir, htmlIndexFile), page)
}

func (w *htmlWriter) packagePages(p *schema.PackageCoverage, locator SourceFileLocator, dir string, crumbs []htmlLink) error {
	crumbs = appendCrumb(crumbs, p.DisplayName(), path.Join(dir, htmlIndexFile))
	page := w.newPage(p.DisplayName(), dir, crumbs, "el_package")
	page.ShowClasses = true
	total := w.cells(p.Counters)
	page.Total = &total

	sources := map[string]bool{}
	for _, s := range p.SourceFiles {
		file := path.Join(dir, fileSafe(s.Name)+".html")
		ok, err := w.sourcePage(s, locator, file, appendCrumb(crumbs, s.Name, file))
		if err != nil {
			return err
		}
		sources[s.Name] = ok
	}

	for _, c := range p.Classes {
		file := path.Join(dir, fileSafe(c.SimpleName())+".html")
		page.Rows = append(page.Rows, w.row(c.SimpleName(), relTo(dir, file), "el_class", c.Counters))
		sourceHref := ""
		if sources[c.SourceFileName] {
			sourceHref = relTo(dir, path.Join(dir, fileSafe(c.SourceFileName)+".html"))
		}
		if err := w.classPage(c, sourceHref, dir, file, crumbs); err != nil {
			return err
		}
	}
	return w.write(path.Join(dir, htmlIndexFile), page)
}

func (w *htmlWriter) classPage(c *schema.ClassCoverage, sourceHref, dir, file string, crumbs []htmlLink) error {
	crumbs = appendCrumb(crumbs, c.SimpleName(), file)
	page := w.newPage(c.SimpleName(), dir, crumbs, "el_class")
	total := w.cells(c.Counters)
	page.Total = &total
	for _, m := range c.Methods {
		href := ""
		if sourceHref != "" && m.HasLines() {
			href = fmt.Sprintf("%s#L%d", sourceHref, m.FirstLine)
		}
		page.Rows = append(page.Rows, w.row(methodLabel(c, m), href, "el_method", m.Counters))
	}
	return w.write(file, page)
}

// sourcePage writes the highlighted source; it reports false when the source was not found.
func (w *htmlWriter) sourcePage(s *schema.SourceFileCoverage, locator SourceFileLocator, file string, crumbs []htmlLink) (bool, error) {
	rc, ok := locator.Open(s.PackageName, s.Name)
	if !ok {
		return false, nil
	}
	defer func() { _ = rc.Close() }()

	page := w.newPage(s.Name, path.Dir(file), crumbs, "el_source")
	tabs := strings.Repeat(" ", max(1, locator.TabWidth()))
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for nr := 1; scanner.Scan(); nr++ {
		line := htmlSourceLine{Nr: nr, Text: strings.ReplaceAll(strings.TrimSuffix(scanner.Text(), "\r"), "\t", tabs)}
		if lc, ok := s.Lines[nr]; ok {
			line.Status = string(lc.Status())
			line.Title = w.branchTitle(lc.Branch)
		}
		page.Source = append(page.Source, line)
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("reading source %s: %w", s.Name, err)
	}
	return true, w.write(file, page)
}

func (w *htmlWriter) sessionsPage(sessions []schema.SessionInfo, records []schema.ExecutionRecord) error {
	page := w.newPage("Sessions", "", []htmlLink{{Name: "Sessions"}}, "el_session")
	page.ShowInfo = true
	for _, s := range sessions {
		page.Sessions = append(page.Sessions, htmlSession{
			ID:    s.ID,
			Start: s.Start.Format("Jan 2, 2006, 3:04:05 PM"),
			Dump:  s.Dump.Format("Jan 2, 2006, 3:04:05 PM"),
		})
	}
	for _, r := range records {
		page.Records = append(page.Records, htmlRecord{Name: strings.ReplaceAll(r.Name, "/", "."), ID: fmt.Sprintf("%016x", r.ID)})
	}
	return w.write(htmlSessionsFile, page)
}

func (w *htmlWriter) newPage(title, dir string, crumbs []htmlLink, style string) *htmlPage {
	rel := make([]htmlLink, len(crumbs))
	for i, c := range crumbs {
		rel[i] = htmlLink{Name: c.Name}
		if i < len(crumbs)-1 && c.Href != "" {
			rel[i].Href = relTo(dir, c.Href)
		}
	}
	return &htmlPage{
		Title:    title,
		Crumbs:   rel,
		Root:     rootPrefix(dir),
		Style:    style,
		Footer:   w.cfg.Footer,
		Encoding: w.cfg.Encoding,
	}
}

func (w *htmlWriter) write(file string, page *htmlPage) error {
	return w.out.render(file, func(out io.Writer) error {
		return reportTemplate.Execute(out, page)
	})
}

func (w *htmlWriter) row(name, href, style string, c schema.Counters) htmlRow {
	return htmlRow{Name: name, Href: href, Style: style, Cells: w.cells(c)}
}

func (w *htmlWriter) cells(c schema.Counters) htmlCells {
	return htmlCells{
		InsnMissed:    w.printer.Sprintf("%d", c.Instruction.Missed),
		InsnCov:       w.percent(c.Instruction),
		BranchMissed:  w.printer.Sprintf("%d", c.Branch.Missed),
		BranchCov:     w.percent(c.Branch),
		CxtyMissed:    w.printer.Sprintf("%d", c.Complexity.Missed),
		Cxty:          w.printer.Sprintf("%d", c.Complexity.Total()),
		LinesMissed:   w.printer.Sprintf("%d", c.Line.Missed),
		Lines:         w.printer.Sprintf("%d", c.Line.Total()),
		MethodsMissed: w.printer.Sprintf("%d", c.Method.Missed),
		Methods:       w.printer.Sprintf("%d", c.Method.Total()),
		ClassesMissed: w.printer.Sprintf("%d", c.Class.Missed),
		Classes:       w.printer.Sprintf("%d", c.Class.Total()),
	}
}

// percent floors the covered ratio like the console and XML consumers expect.
func (w *htmlWriter) percent(c schema.Counter) string {
	if c.Total() == 0 {
		return "n/a"
	}
	return w.printer.Sprintf("%d%%", c.Covered*100/c.Total())
}

func (w *htmlWriter) branchTitle(b schema.Counter) string {
	switch {
	case b.Total() == 0:
		return ""
	case b.Missed == 0:
		return w.printer.Sprintf("All %d branches covered.", b.Total())
	default:
		return w.printer.Sprintf("%d of %d branches missed.", b.Missed, b.Total())
	}
}

func methodLabel(c *schema.ClassCoverage, m *schema.MethodCoverage) string {
	name := m.Name
	switch name {
	case "<init>":
		name = c.SimpleName()
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			name = name[i+1:]
		}
	case "<clinit>":
		return "static {...}"
	}
	return name + "(" + javaParams(m.Desc) + ")"
}

// javaParams renders the parameter list of a method descriptor with simple type names.
func javaParams(desc string) string {
	start, end := strings.IndexByte(desc, '('), strings.IndexByte(desc, ')')
	if start < 0 || end < start {
		return ""
	}
	var params []string
	s := desc[start+1 : end]
	for len(s) > 0 {
		dims := 0
		for len(s) > 0 && s[0] == '[' {
			dims++
			s = s[1:]
		}
		if len(s) == 0 {
			break
		}
		var name string
		switch s[0] {
		case 'L':
			semi := strings.IndexByte(s, ';')
			if semi < 0 {
				return strings.Join(params, ", ")
			}
			full := s[1:semi]
			name = strings.ReplaceAll(full[strings.LastIndexByte(full, '/')+1:], "$", ".")
			s = s[semi+1:]
		default:
			name = primitiveNames[s[0]]
			s = s[1:]
		}
		params = append(params, name+strings.Repeat("[]", dims))
	}
	return strings.Join(params, ", ")
}

var primitiveNames = map[byte]string{
	'Z': "boolean", 'B': "byte", 'C': "char", 'S': "short",
	'I': "int", 'J': "long", 'F': "float", 'D': "double", 'V': "void",
}

func appendCrumb(crumbs []htmlLink, name, href string) []htmlLink {
	out := make([]htmlLink, len(crumbs), len(crumbs)+1)
	copy(out, crumbs)
	return append(out, htmlLink{Name: name, Href: href})
}

// relTo returns target (relative to the report root) as seen from dir.
func relTo(dir, target string) string {
	if dir != "" && strings.HasPrefix(target, dir+"/") {
		return strings.TrimPrefix(target, dir+"/")
	}
	return rootPrefix(dir) + target
}

func rootPrefix(dir string) string {
	if dir == "" || dir == "." {
		return ""
	}
	return strings.Repeat("../", strings.Count(path.Clean(dir), "/")+1)
}

// fileSafe maps a name to a portable file name.
func fileSafe(name string) string {
	if name == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_', r == '$':
			return r
		default:
			return '_'
		}
	}, name)
}

var reportTemplate = template.Must(template.New("page").Parse(pageTemplate))
