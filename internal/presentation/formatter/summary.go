package formatter

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// SummaryFormatter prints element counts per kind.
type SummaryFormatter struct {
	w io.Writer
}

func NewSummaryFormatter(w io.Writer) *SummaryFormatter {
	return &SummaryFormatter{w: w}
}

func (f *SummaryFormatter) Format(root Node) error {
	counts := make(map[string]int)
	unavailable := 0
	for _, row := range Flatten(root) {
		counts[row.Node.Kind]++
		if row.Node.CanExecute != nil && !*row.Node.CanExecute {
			unavailable++
		}
	}

	fmt.Fprintln(f.w, strings.Repeat("=", 60))
	fmt.Fprintf(f.w, "Project Summary: %s\n", root.Label)
	fmt.Fprintln(f.w, strings.Repeat("=", 60))
	fmt.Fprintln(f.w)

	if len(root.Children) == 0 {
		fmt.Fprintln(f.w, "Project has no traces or experiments folder")
		fmt.Fprintln(f.w)
		fmt.Fprintln(f.w, strings.Repeat("=", 60))
		return nil
	}

	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		if kind != "project" {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)

	fmt.Fprintln(f.w, "Elements:")
	for _, kind := range kinds {
		fmt.Fprintf(f.w, "  %-22s %d\n", kind+":", counts[kind])
	}
	if unavailable > 0 {
		fmt.Fprintln(f.w)
		fmt.Fprintf(f.w, "Analyses unavailable on opened traces: %d\n", unavailable)
	}

	fmt.Fprintln(f.w)
	fmt.Fprintln(f.w, strings.Repeat("=", 60))
	return nil
}
