package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/schema"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// WriteSummary outputs the per-bundle coverage summary of an aggregation run.
// The output file extension selects JSON, CSV or the table view.
func WriteSummary(res *schema.AggregateResult, cfg *contract.Config, duration time.Duration) error {
	summary := schema.Summarize(res)
	switch kindOf(cfg.OutputFile) {
	case jsonOutput:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, summary)
		}, "Wrote JSON")
	case csvOutput:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSummaryCSV(w, summary)
		}, "Wrote CSV")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSummaryTable(w, summary, res, cfg, duration)
		}, "Wrote table")
	}
}

// writeSummaryTable generates and writes the human-readable bundle table.
func writeSummaryTable(w io.Writer, summary schema.GroupSummary, res *schema.AggregateResult, cfg *contract.Config, duration time.Duration) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Bundle", "Classes", "Instructions", "Branches", "Lines", "Methods", "Coverage", "Label"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	width := GetMaxTableNameWidth(cfg)
	var data [][]string
	for _, b := range summary.Bundles {
		data = append(data, summaryRow(contract.TruncatePath(b.Name, width), b.Classes, b.Counters, cfg.UseColors))
	}
	if err := table.Bulk(data); err != nil {
		return err
	}

	classes := 0
	for _, b := range summary.Bundles {
		classes += b.Classes
	}
	table.Footer(summaryRow("Total", classes, summary.Totals, cfg.UseColors))
	if err := table.Render(); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "Report '%s': %d bundles, %d sessions, %d execution records\n",
		summary.Name, len(summary.Bundles), summary.Sessions, res.Records); err != nil {
		return err
	}
	if summary.NoMatch > 0 {
		if _, err := fmt.Fprintf(w, "%s %d classes did not match their execution data\n",
			contract.FairColor.Sprint("Warning:"), summary.NoMatch); err != nil {
			return err
		}
	}
	if res.OutputDir != "" {
		if _, err := fmt.Fprintf(w, "Reports written to %s\n", res.OutputDir); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Aggregation completed in %v with %d workers.\n", duration, cfg.Workers)
	return err
}

func summaryRow(name string, classes int, c schema.Counters, useColors bool) []string {
	label := contract.GetPlainLabel(ratioOrEmpty(c.Instruction))
	if useColors {
		label = contract.GetColorLabel(ratioOrEmpty(c.Instruction))
	}
	return []string{
		name,
		strconv.Itoa(classes),
		formatCounter(c.Instruction),
		formatCounter(c.Branch),
		formatCounter(c.Line),
		formatCounter(c.Method),
		formatCoverage(c.Instruction),
		label,
	}
}

func writeSummaryCSV(w io.Writer, summary schema.GroupSummary) error {
	header := []string{"bundle", "classes"}
	for _, entity := range schema.AllCounterEntities {
		header = append(header, string(entity)+"_MISSED", string(entity)+"_COVERED")
	}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, b := range summary.Bundles {
			row := []string{b.Name, strconv.Itoa(b.Classes)}
			for _, entity := range schema.AllCounterEntities {
				c := b.Counters.Get(entity)
				row = append(row, strconv.Itoa(c.Missed), strconv.Itoa(c.Covered))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteModules outputs the modules an aggregation run would visit, in visit order.
func WriteModules(modules []schema.ModuleDescriptor, cfg *contract.Config) error {
	if kindOf(cfg.OutputFile) == jsonOutput {
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, modules)
		}, "Wrote JSON")
	}
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return writeModulesTable(w, modules, cfg)
	}, "Wrote table")
}

func writeModulesTable(w io.Writer, modules []schema.ModuleDescriptor, cfg *contract.Config) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"#", "Module", "Packaging", "Classes Dir", "Encoding"})

	width := GetMaxTableNameWidth(cfg)
	var data [][]string
	for i, m := range modules {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			contract.TruncatePath(m.DisplayName(), width),
			m.Packaging,
			contract.TruncatePath(m.OutputDir, width),
			m.SourceEncoding,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Found %d modules\n", len(modules))
	return err
}

// WriteExecInfo outputs the content summary of execution data files.
func WriteExecInfo(infos []schema.ExecFileInfo, cfg *contract.Config) error {
	if kindOf(cfg.OutputFile) == jsonOutput {
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, infos)
		}, "Wrote JSON")
	}
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return writeExecInfoTable(w, infos, cfg)
	}, "Wrote table")
}

func writeExecInfoTable(w io.Writer, infos []schema.ExecFileInfo, cfg *contract.Config) error {
	for _, info := range infos {
		if _, err := fmt.Fprintf(w, "%s: %d sessions, %d classes, %d of %d probes hit\n",
			info.Path, len(info.Sessions), info.Records, info.Hits, info.Probes); err != nil {
			return err
		}
		if len(info.Sessions) == 0 {
			continue
		}
		table := tablewriter.NewWriter(w)
		table.Header([]string{"Session", "Start", "Dump"})
		var data [][]string
		for _, s := range info.Sessions {
			data = append(data, []string{
				contract.TruncatePath(s.ID, GetMaxTableNameWidth(cfg)),
				s.Start.Format(time.DateTime),
				s.Dump.Format(time.DateTime),
			})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
	}
	return nil
}

// WriteCheckResult outputs rule violations and the overall verdict.
func WriteCheckResult(result *schema.CheckResult, cfg *contract.Config) error {
	if kindOf(cfg.OutputFile) == jsonOutput {
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, result)
		}, "Wrote JSON")
	}
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return writeCheckText(w, result)
	}, "Wrote check result")
}

func writeCheckText(w io.Writer, result *schema.CheckResult) error {
	for _, v := range result.Violations {
		bound := "minimum"
		if v.Maximum {
			bound = "maximum"
		}
		if _, err := fmt.Fprintf(w, "%s %s %s: %s %s is %s, but expected %s is %s\n",
			contract.ViolationColor.Sprint("Rule violated for"),
			v.Element, v.Name, v.Counter, v.Value,
			formatLimitValue(v.Value, v.Actual), bound, formatLimitValue(v.Value, v.Expected)); err != nil {
			return err
		}
	}
	if result.Passed {
		_, err := fmt.Fprintf(w, "%s All coverage checks have been met (%d elements, %d rules)\n",
			contract.PassColor.Sprint("PASSED"), result.CheckedElements, len(result.Rules))
		return err
	}
	_, err := fmt.Fprintf(w, "%s %d coverage violations (%d elements, %d rules)\n",
		contract.ViolationColor.Sprint("FAILED"), len(result.Violations), result.CheckedElements, len(result.Rules))
	return err
}

func formatLimitValue(value schema.RuleValue, v float64) string {
	switch value {
	case schema.CoveredRatioValue, schema.MissedRatioValue:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strconv.FormatInt(int64(v), 10)
	}
}

// WriteHistoryStatus outputs the history store status as a two-column table.
func WriteHistoryStatus(w io.Writer, status schema.HistoryStatus) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Property", "Value"})
	data := [][]string{
		{"Backend", status.Backend},
		{"Connected", strconv.FormatBool(status.Connected)},
	}
	if status.Connected {
		data = append(data, []string{"Total Runs", strconv.Itoa(status.TotalRuns)})
		if status.TotalRuns > 0 {
			data = append(data,
				[]string{"Last Run ID", strconv.FormatInt(status.LastRunID, 10)},
				[]string{"Last Run", status.LastRunTime.Format(time.DateTime)},
				[]string{"Oldest Run", status.OldestRunTime.Format(time.DateTime)},
				[]string{"Total Bundles Recorded", strconv.Itoa(status.TotalBundles)},
			)
		}
		for _, name := range slices.Sorted(maps.Keys(status.TableSizes)) {
			data = append(data, []string{"Rows in " + name, strconv.FormatInt(status.TableSizes[name], 10)})
		}
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// LogReportHeader prints a concise, 2-line header for a report run.
func LogReportHeader(cfg *contract.Config) {
	projectName := filepath.Base(cfg.ProjectDir)
	if projectName == "" || projectName == "." {
		projectName = "current"
	}
	formats := make([]string, len(cfg.Formats))
	for i, f := range cfg.Formats {
		formats[i] = string(f)
	}

	// Line 1: The project and how modules are found
	mode := "discovery"
	if cfg.DataRoot != "" {
		mode = "data root " + cfg.DataRoot
	}
	fmt.Printf("🔎 Project: %s (Modules: %s)\n", projectName, mode)

	// Line 2: Where the reports go
	fmt.Printf("📂 Output: %s (%s)\n", cfg.OutputDir, strings.Join(formats, ", "))
}
