package outwriter

import (
	"os"

	"github.com/huangsam/covagg/internal/contract"
	"golang.org/x/term"
)

// GetMaxTableNameWidth calculates the maximum width for bundle and module names
// in table output based on terminal width and the fixed counter columns.
func GetMaxTableNameWidth(cfg *contract.Config) int {
	var termWidth int

	// Check for absolute width override from flag/env
	if cfg.Width > 0 {
		termWidth = cfg.Width
	}

	if termWidth == 0 { // Not set by override
		detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detectedWidth <= 0 {
			// Conservative default for narrow terminals and CI
			termWidth = 80
		} else {
			termWidth = detectedWidth
		}
	}

	// Classes + Instructions + Branches + Lines + Methods + Coverage + Label
	baseWidth := 8 + 14 + 12 + 12 + 10 + 10 + 12

	// Table borders, separators and padding
	baseWidth += 20

	available := termWidth - baseWidth
	if available < 15 {
		return 15
	}
	if available > 60 {
		return 60
	}
	return available
}
