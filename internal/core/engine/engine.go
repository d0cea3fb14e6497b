// Package engine defines the boundary to the trace engine: live trace and
// experiment instances, their analysis modules and outputs.
package engine

import "errors"

// ErrUnknownType is returned when instantiating an unregistered trace type.
var ErrUnknownType = errors.New("unknown trace type")

// Output is one view an analysis module can produce.
type Output interface {
	ID() string
	Name() string
	RequestOutput()
}

// Module is an analysis module instance bound to a live trace.
type Module interface {
	ID() string
	Name() string
	Outputs() []Output
	HelpText(trace Trace) string
	// Schedule runs the analysis. It may block until completion.
	Schedule()
}

// PropertiesProvider is implemented by modules exposing properties.
type PropertiesProvider interface {
	Properties() map[string]string
}

// Trace is a live trace or experiment instance.
type Trace interface {
	// Resource is the storage path the instance was opened from.
	Resource() string
	Name() string
	TypeID() string
	StartTime() int64
	EndTime() int64
	// AnalysisModule returns the module with the given id, or nil.
	AnalysisModule(id string) Module
	// TraceSet returns the member traces of an experiment, or the trace itself.
	TraceSet() []Trace
}

// Engine gives access to the currently opened traces and instantiates new ones.
type Engine interface {
	OpenedTraces() []Trace
	Instantiate(typeID, resource string) (Trace, error)
}

// TraceSetWithExperiment returns t, followed by its members when t is an experiment.
func TraceSetWithExperiment(t Trace) []Trace {
	set := []Trace{t}
	for _, member := range t.TraceSet() {
		if member != t {
			set = append(set, member)
		}
	}
	return set
}
