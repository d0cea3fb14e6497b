package formatter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/penwyp/go-trace-project/internal/util"
)

// TreeFormatter prints the tree with box-drawing connectors.
type TreeFormatter struct {
	w     io.Writer
	color bool
	width int
}

func NewTreeFormatter(w io.Writer, color bool) *TreeFormatter {
	return &TreeFormatter{w: w, color: color, width: TerminalWidth()}
}

// WithWidth overrides the detected terminal width.
func (f *TreeFormatter) WithWidth(width int) *TreeFormatter {
	f.width = width
	return f
}

func (f *TreeFormatter) Format(root Node) error {
	title := root.Label
	if f.color {
		title = util.FormatHeaderTitle(title)
	}
	if _, err := fmt.Fprintln(f.w, title); err != nil {
		return err
	}
	for i, child := range root.Children {
		if err := f.printNode(child, "", i == len(root.Children)-1); err != nil {
			return err
		}
	}
	return nil
}

func (f *TreeFormatter) printNode(n Node, prefix string, last bool) error {
	connector, childPrefix := "├── ", "│   "
	if last {
		connector, childPrefix = "└── ", "    "
	}

	line := prefix + connector + n.Label
	if detail := f.detail(n); detail != "" {
		line += "  " + detail
	}
	line = util.TruncateToWidth(line, f.width)
	if f.color {
		line = f.colorize(n, line)
	}
	if _, err := fmt.Fprintln(f.w, line); err != nil {
		return err
	}

	for i, child := range n.Children {
		if err := f.printNode(child, prefix+childPrefix, i == len(n.Children)-1); err != nil {
			return err
		}
	}
	return nil
}

// detail renders the trace type, bounds and execution state of n.
func (f *TreeFormatter) detail(n Node) string {
	var parts []string
	if n.TraceType != "" {
		parts = append(parts, "("+n.TraceType+")")
	}
	if n.Start != nil && n.End != nil {
		parts = append(parts, fmt.Sprintf("%s .. %s [%s]",
			util.FormatTimestamp(*n.Start),
			util.FormatTimestamp(*n.End),
			util.FormatDuration(time.Duration(*n.End-*n.Start))))
	}
	if n.CanExecute != nil && !*n.CanExecute {
		parts = append(parts, "[unavailable]")
	}
	return strings.Join(parts, " ")
}

func (f *TreeFormatter) colorize(n Node, line string) string {
	switch n.Kind {
	case "trace_folder", "experiment_folder":
		return util.Colorize(line, util.ColorBlue)
	case "trace":
		return util.Colorize(line, util.ColorGreen)
	case "experiment":
		return util.Colorize(line, util.ColorCyan)
	case "analysis", "aggregate_analysis", "on_demand_analysis":
		if n.CanExecute != nil && !*n.CanExecute {
			return util.Colorize(line, util.ColorDim)
		}
		return util.Colorize(line, util.ColorYellow)
	case "output", "report":
		return util.Colorize(line, util.ColorMagenta)
	default:
		return line
	}
}
