package analysis

// OutputExclusion hides one output of an analysis for a trace type.
type OutputExclusion struct {
	TraceType string `yaml:"traceType" mapstructure:"traceType"`
	Analysis  string `yaml:"analysis" mapstructure:"analysis"`
	Output    string `yaml:"output" mapstructure:"output"`
}

// OutputFilter is the set of hidden outputs. It is built once at startup
// and only read afterwards.
type OutputFilter struct {
	hidden map[OutputExclusion]struct{}
}

// NewOutputFilter builds a filter from exclusions.
func NewOutputFilter(exclusions ...OutputExclusion) OutputFilter {
	f := OutputFilter{hidden: make(map[OutputExclusion]struct{}, len(exclusions))}
	for _, e := range exclusions {
		f.hidden[e] = struct{}{}
	}
	return f
}

// IsHidden reports whether output of analysis is hidden for traceType.
func (f OutputFilter) IsHidden(traceType, analysis, output string) bool {
	if f.hidden == nil {
		return false
	}
	_, ok := f.hidden[OutputExclusion{TraceType: traceType, Analysis: analysis, Output: output}]
	return ok
}

// Len returns the number of exclusions.
func (f OutputFilter) Len() int {
	return len(f.hidden)
}
