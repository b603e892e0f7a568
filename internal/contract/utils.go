package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

// Coverage label constants.
const (
	ExcellentValue = "Excellent" // Excellent value
	GoodValue      = "Good"      // Good value
	FairValue      = "Fair"      // Fair value
	PoorValue      = "Poor"      // Poor value
	EmptyValue     = "n/a"       // Nothing to measure
)

// Color variables for console output.
var (
	ExcellentColor = color.New(color.FgGreen, color.Bold) // ExcellentColor marks well covered code.
	GoodColor      = color.New(color.FgCyan)              // GoodColor marks acceptable coverage.
	FairColor      = color.New(color.FgYellow)            // FairColor marks coverage worth a look.
	PoorColor      = color.New(color.FgRed, color.Bold)   // PoorColor marks mostly untested code.
	ViolationColor = color.New(color.FgRed)               // ViolationColor marks failed rule limits.
	PassColor      = color.New(color.FgGreen)             // PassColor marks passed checks.
)

// GetPlainLabel returns a plain text label for a covered ratio between 0 and 1.
// A negative ratio means there was nothing to measure.
func GetPlainLabel(ratio float64) string {
	switch {
	case ratio < 0:
		return EmptyValue
	case ratio >= 0.9:
		return ExcellentValue
	case ratio >= 0.75:
		return GoodValue
	case ratio >= 0.5:
		return FairValue
	default:
		return PoorValue
	}
}

// GetColorLabel returns a colored text label for console output (table).
func GetColorLabel(ratio float64) string {
	text := GetPlainLabel(ratio)

	switch text {
	case ExcellentValue:
		return ExcellentColor.Sprint(text)
	case GoodValue:
		return GoodColor.Sprint(text)
	case FairValue:
		return FairColor.Sprint(text)
	case PoorValue:
		return PoorColor.Sprint(text)
	default:
		return text
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. It falls back to os.Stdout when no path is given.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// GetHistoryDBFilePath returns the path to the SQLite DB file for coverage history.
func GetHistoryDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".covagg_history.db"
	}
	return filepath.Join(homeDir, ".covagg_history.db")
}

// TruncatePath truncates a path to a maximum width with ellipsis prefix.
// Requires maxWidth > 3 to leave room for the "..." prefix.
func TruncatePath(path string, maxWidth int) string {
	runes := []rune(path)
	if len(runes) > maxWidth && maxWidth > 3 {
		return "..." + string(runes[len(runes)-maxWidth+3:])
	}
	return path
}

// FormatRatio renders a covered ratio as a percentage, or n/a when nothing was measured.
func FormatRatio(ratio float64) string {
	if ratio < 0 {
		return EmptyValue
	}
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
// Returns an error for invalid values.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}

// SplitList splits comma separated values, trimming blanks.
func SplitList(values []string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
