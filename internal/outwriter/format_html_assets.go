package outwriter

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta http-equiv="Content-Type" content="text/html;charset={{.Encoding}}"/>
<link rel="stylesheet" href="{{.Root}}jacoco-resources/report.css" type="text/css"/>
<title>{{.Title}}</title>
</head>
<body>
<div class="breadcrumb" id="breadcrumb">
<span class="info"><a href="{{.Root}}jacoco-sessions.html" class="el_session">Sessions</a></span>
{{- range $i, $c := .Crumbs}}{{if $i}} &gt; {{end}}{{if $c.Href}}<a href="{{$c.Href}}">{{$c.Name}}</a>{{else}}<span class="current">{{$c.Name}}</span>{{end}}{{end}}
</div>
<h1>{{.Title}}</h1>
{{- if .ShowInfo}}
<p>This coverage report is based on execution data from the following sessions:</p>
<table class="coverage" cellspacing="0" id="sessions">
<thead><tr><td>Session</td><td>Start Time</td><td>Dump Time</td></tr></thead>
<tbody>
{{- range .Sessions}}
<tr><td><span class="el_session">{{.ID}}</span></td><td>{{.Start}}</td><td>{{.Dump}}</td></tr>
{{- end}}
</tbody>
</table>
<p>Execution data for the following classes is considered in this report:</p>
<table class="coverage" cellspacing="0" id="classes">
<thead><tr><td>Class</td><td>Id</td></tr></thead>
<tbody>
{{- range .Records}}
<tr><td><span class="el_class">{{.Name}}</span></td><td><code>{{.ID}}</code></td></tr>
{{- end}}
</tbody>
</table>
{{- else if .Source}}
<pre class="source lang-java linenums">
{{- range .Source}}
<span id="L{{.Nr}}"{{if .Status}} class="{{.Status}}"{{end}}{{if .Title}} title="{{.Title}}"{{end}}>{{.Text}}</span>
{{- end}}
</pre>
{{- else}}
<table class="coverage" cellspacing="0" id="coveragetable">
<thead><tr>
<td>Element</td>
<td class="bar">Missed Instructions</td><td class="ctr2">Cov.</td>
<td class="bar">Missed Branches</td><td class="ctr2">Cov.</td>
<td class="ctr1">Missed</td><td class="ctr2">Cxty</td>
<td class="ctr1">Missed</td><td class="ctr2">Lines</td>
<td class="ctr1">Missed</td><td class="ctr2">Methods</td>
{{- if .ShowClasses}}
<td class="ctr1">Missed</td><td class="ctr2">Classes</td>
{{- end}}
</tr></thead>
{{- with .Total}}
<tfoot><tr>
<td>Total</td>
<td class="bar">{{.InsnMissed}}</td><td class="ctr2">{{.InsnCov}}</td>
<td class="bar">{{.BranchMissed}}</td><td class="ctr2">{{.BranchCov}}</td>
<td class="ctr1">{{.CxtyMissed}}</td><td class="ctr2">{{.Cxty}}</td>
<td class="ctr1">{{.LinesMissed}}</td><td class="ctr2">{{.Lines}}</td>
<td class="ctr1">{{.MethodsMissed}}</td><td class="ctr2">{{.Methods}}</td>
{{- if $.ShowClasses}}
<td class="ctr1">{{.ClassesMissed}}</td><td class="ctr2">{{.Classes}}</td>
{{- end}}
</tr></tfoot>
{{- end}}
<tbody>
{{- range .Rows}}
<tr>
<td>{{if .Href}}<a href="{{.Href}}" class="{{.Style}}">{{.Name}}</a>{{else}}<span class="{{.Style}}">{{.Name}}</span>{{end}}</td>
<td class="bar">{{.Cells.InsnMissed}}</td><td class="ctr2">{{.Cells.InsnCov}}</td>
<td class="bar">{{.Cells.BranchMissed}}</td><td class="ctr2">{{.Cells.BranchCov}}</td>
<td class="ctr1">{{.Cells.CxtyMissed}}</td><td class="ctr2">{{.Cells.Cxty}}</td>
<td class="ctr1">{{.Cells.LinesMissed}}</td><td class="ctr2">{{.Cells.Lines}}</td>
<td class="ctr1">{{.Cells.MethodsMissed}}</td><td class="ctr2">{{.Cells.Methods}}</td>
{{- if $.ShowClasses}}
<td class="ctr1">{{.Cells.ClassesMissed}}</td><td class="ctr2">{{.Cells.Classes}}</td>
{{- end}}
</tr>
{{- end}}
</tbody>
</table>
{{- end}}
<div class="footer"><span class="right">Created with covagg</span>{{.Footer}}</div>
</body>
</html>
`

const reportCSS = `body, td { font-family: sans-serif; font-size: 10pt; }
h1 { font-weight: bold; font-size: 18pt; }
.breadcrumb { border: #d6d3ce 1px solid; padding: 2px 4px; }
.breadcrumb .info { float: right; }
.breadcrumb .info a { margin-left: 8px; }
.el_session, .el_group, .el_bundle, .el_package, .el_class, .el_method, .el_source { padding-left: 4px; }
.footer { margin-top: 20px; border-top: #d6d3ce 1px solid; padding-top: 2px; font-size: 8pt; color: #a0a0a0; }
.footer a { color: #a0a0a0; }
.right { float: right; }
table.coverage { empty-cells: show; border-collapse: collapse; }
table.coverage thead { background-color: #e0e0e0; }
table.coverage thead td { white-space: nowrap; padding: 2px 14px 0 6px; border-bottom: #b0b0b0 1px solid; }
table.coverage tbody td { white-space: nowrap; padding: 2px 6px; border-bottom: #d6d3ce 1px solid; }
table.coverage tfoot td { white-space: nowrap; padding: 2px 6px; font-weight: bold; }
.bar, .ctr1, .ctr2 { text-align: right; }
pre.source { border: #d6d3ce 1px solid; font-family: monospace; }
pre.source span { display: block; }
pre.source span::before { content: attr(id); display: inline-block; width: 4em; color: #a0a0a0; }
pre.source span.fc { background-color: #ccffcc; }
pre.source span.nc { background-color: #ffaaaa; }
pre.source span.pc { background-color: #ffffcc; }
`
