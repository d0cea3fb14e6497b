package formatter

import (
	"encoding/csv"
	"io"
	"strconv"
)

type CSVFormatter struct {
	w io.Writer
}

func NewCSVFormatter(w io.Writer) *CSVFormatter {
	return &CSVFormatter{w: w}
}

func (f *CSVFormatter) Format(root Node) error {
	w := csv.NewWriter(f.w)
	defer w.Flush()

	headers := []string{"Path", "Kind", "Label", "Trace Type", "Start", "End"}
	if err := w.Write(headers); err != nil {
		return err
	}

	for _, row := range Flatten(root) {
		n := row.Node
		record := []string{
			n.Path,
			n.Kind,
			n.Label,
			n.TraceType,
			optionalInt(n.Start),
			optionalInt(n.End),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

func optionalInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
