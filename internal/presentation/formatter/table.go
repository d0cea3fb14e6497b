package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/penwyp/go-trace-project/internal/util"
)

// TableFormatter lists traces and experiments with their bounds.
type TableFormatter struct {
	w       io.Writer
	headers []string
}

func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{
		w:       w,
		headers: []string{"Path", "Kind", "Trace Type", "Start", "End", "Analyses"},
	}
}

func (f *TableFormatter) Format(root Node) error {
	rows := f.rows(root)
	widths := f.calculateColumnWidths(rows)

	f.printBorder(widths, "top")
	f.printRow(f.headers, widths)
	f.printBorder(widths, "middle")
	for _, row := range rows {
		f.printRow(row, widths)
	}
	if len(rows) == 0 {
		f.printRow([]string{"(empty)", "", "", "", "", ""}, widths)
	}
	f.printBorder(widths, "bottom")
	return nil
}

// rows keeps the entities of the tree: traces and experiments.
func (f *TableFormatter) rows(root Node) [][]string {
	var rows [][]string
	for _, r := range Flatten(root) {
		n := r.Node
		if n.Kind != "trace" && n.Kind != "experiment" {
			continue
		}
		rows = append(rows, []string{
			n.Path,
			n.Kind,
			n.TraceType,
			optionalTimestamp(n.Start),
			optionalTimestamp(n.End),
			fmt.Sprintf("%d", countAnalyses(n)),
		})
	}
	return rows
}

func countAnalyses(n Node) int {
	count := 0
	for _, c := range n.Children {
		if c.Kind != "views" {
			continue
		}
		for _, a := range c.Children {
			if a.Kind == "analysis" || a.Kind == "aggregate_analysis" {
				count++
			}
		}
	}
	return count
}

func optionalTimestamp(v *int64) string {
	if v == nil {
		return "-"
	}
	return util.FormatTimestamp(*v)
}

// calculateColumnWidths determines the width of each column from content
func (f *TableFormatter) calculateColumnWidths(rows [][]string) []int {
	widths := make([]int, len(f.headers))
	for i, header := range f.headers {
		widths[i] = util.GetDisplayWidth(header)
	}
	for _, row := range rows {
		for i, value := range row {
			if w := util.GetDisplayWidth(value); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		if widths[i] < 8 {
			widths[i] = 8
		}
	}
	return widths
}

// printBorder prints table borders (top, middle, bottom)
func (f *TableFormatter) printBorder(widths []int, borderType string) {
	var left, middle, right string
	switch borderType {
	case "top":
		left, middle, right = "┌", "┬", "┐"
	case "middle":
		left, middle, right = "├", "┼", "┤"
	case "bottom":
		left, middle, right = "└", "┴", "┘"
	}

	var b strings.Builder
	b.WriteString(left)
	for i, width := range widths {
		b.WriteString(strings.Repeat("─", width+2))
		if i < len(widths)-1 {
			b.WriteString(middle)
		}
	}
	b.WriteString(right)
	fmt.Fprintln(f.w, b.String())
}

func (f *TableFormatter) printRow(values []string, widths []int) {
	var b strings.Builder
	b.WriteString("│")
	for i, value := range values {
		b.WriteString(" ")
		b.WriteString(util.PadToWidth(value, widths[i]))
		b.WriteString(" │")
	}
	fmt.Fprintln(f.w, b.String())
}
