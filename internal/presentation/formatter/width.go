package formatter

import (
	"os"

	"golang.org/x/term"

	"github.com/penwyp/go-trace-project/internal/util"
)

// TerminalWidth returns the usable output width, with a fallback when
// stdout is not a terminal.
func TerminalWidth() int {
	termWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || termWidth < 60 {
		termWidth = 100
	}

	maxWidth := termWidth - 2
	if maxWidth > 160 {
		maxWidth = 160
	}

	util.LogDebugf("TerminalWidth %d", maxWidth)
	return maxWidth
}
