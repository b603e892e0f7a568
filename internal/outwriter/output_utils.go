package outwriter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/schema"
)

// outputKind is derived from the output file extension.
type outputKind int

const (
	tableOutput outputKind = iota
	jsonOutput
	csvOutput
)

// kindOf picks the console output encoding from the output file name.
func kindOf(outputFile string) outputKind {
	switch strings.ToLower(filepath.Ext(outputFile)) {
	case ".json":
		return jsonOutput
	case ".csv":
		return csvOutput
	default:
		return tableOutput
	}
}

// writeWithFile handles the common pattern of opening a file, writing to it, and cleaning up.
// It accepts a writer function that takes an io.Writer and returns an error.
func writeWithFile(outputFile string, writer func(io.Writer) error, successMsg string) error {
	file, err := contract.SelectOutputFile(outputFile)
	if err != nil {
		return err
	}
	// Only close if it's not stdout
	if file != os.Stdout {
		defer func() { _ = file.Close() }()
	}

	if err := writer(file); err != nil {
		return err
	}

	if file != os.Stdout {
		fmt.Fprintf(os.Stderr, "💾 %s to %s\n", successMsg, outputFile)
	}
	return nil
}

// writeJSON is a generic JSON encoder that handles indentation consistently.
func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeCSVWithHeader handles the common pattern of creating a CSV writer,
// writing a header, and writing data rows.
func writeCSVWithHeader(w io.Writer, header []string, writeRows func(*csv.Writer) error) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	if err := writeRows(csvWriter); err != nil {
		return err
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// formatCounter renders a counter as "covered/total".
func formatCounter(c schema.Counter) string {
	return strconv.Itoa(c.Covered) + "/" + strconv.Itoa(c.Total())
}

// ratioOrEmpty returns the covered ratio, or -1 when there is nothing to measure.
func ratioOrEmpty(c schema.Counter) float64 {
	if c.Total() == 0 {
		return -1
	}
	return c.CoveredRatio()
}

// formatCoverage renders the covered ratio as a percentage.
func formatCoverage(c schema.Counter) string {
	return contract.FormatRatio(ratioOrEmpty(c))
}
