package formatter

import (
	"fmt"
	"io"

	"github.com/penwyp/go-trace-project/internal/core/model"
)

// Node is a detached snapshot of one tree element.
type Node struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Kind       string `json:"kind"`
	Label      string `json:"label"`
	TraceType  string `json:"traceType,omitempty"`
	Start      *int64 `json:"start,omitempty"`
	End        *int64 `json:"end,omitempty"`
	CanExecute *bool  `json:"canExecute,omitempty"`
	Help       string `json:"help,omitempty"`
	Children   []Node `json:"children,omitempty"`
}

// Row is a Node flattened for tabular output.
type Row struct {
	Depth int
	Node  Node
}

// Formatter writes a snapshot tree.
type Formatter interface {
	Format(root Node) error
}

// Snapshot captures e and its descendants.
func Snapshot(e model.Element) Node {
	n := Node{
		Name:  e.Name(),
		Path:  e.Path(),
		Kind:  e.Kind().String(),
		Label: e.Label(),
	}

	switch v := e.(type) {
	case *model.Trace:
		n.TraceType = v.TraceType()
		if start, ok := v.StartTime(); ok {
			n.Start = &start
		}
		if end, ok := v.EndTime(); ok {
			n.End = &end
		}
	case *model.Experiment:
		n.TraceType = v.TraceType()
	case model.AnalysisElement:
		can := v.CanExecute()
		n.CanExecute = &can
		n.Help = v.HelpMessage()
	case *model.Report:
		n.Help = v.Description()
	}

	for _, child := range e.Children() {
		n.Children = append(n.Children, Snapshot(child))
	}
	return n
}

// Flatten lists n and its descendants depth first.
func Flatten(n Node) []Row {
	var rows []Row
	var walk func(Node, int)
	walk = func(n Node, depth int) {
		rows = append(rows, Row{Depth: depth, Node: n})
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(n, 0)
	return rows
}

// New returns the formatter for format writing to w.
func New(format string, w io.Writer, color bool) (Formatter, error) {
	switch format {
	case "", "text", "tree":
		return NewTreeFormatter(w, color), nil
	case "table":
		return NewTableFormatter(w), nil
	case "json":
		return NewJSONFormatter(w), nil
	case "csv":
		return NewCSVFormatter(w), nil
	case "summary":
		return NewSummaryFormatter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
