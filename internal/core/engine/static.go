package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/penwyp/go-trace-project/internal/core/analysis"
	"github.com/penwyp/go-trace-project/internal/util"
)

// StaticOutput is an output declared by a module descriptor.
type StaticOutput struct {
	id, name  string
	requested atomic.Int64
}

func (o *StaticOutput) ID() string   { return o.id }
func (o *StaticOutput) Name() string { return o.name }

// RequestOutput records the request.
func (o *StaticOutput) RequestOutput() {
	o.requested.Add(1)
	util.LogDebug(fmt.Sprintf("Output %s requested", o.id))
}

// Requests returns how many times the output was requested.
func (o *StaticOutput) Requests() int64 {
	return o.requested.Load()
}

// StaticModule is a module built from a descriptor. Scheduling only counts runs.
type StaticModule struct {
	helper    analysis.Helper
	outputs   []Output
	scheduled atomic.Int64
}

// NewStaticModule builds a module from a descriptor.
func NewStaticModule(h analysis.Helper) *StaticModule {
	m := &StaticModule{helper: h}
	for _, od := range h.Outputs {
		m.outputs = append(m.outputs, &StaticOutput{id: od.ID, name: od.Name})
	}
	return m
}

func (m *StaticModule) ID() string        { return m.helper.ID }
func (m *StaticModule) Name() string      { return m.helper.Name }
func (m *StaticModule) Outputs() []Output { return m.outputs }

// HelpText returns the descriptor help, naming the trace when given.
func (m *StaticModule) HelpText(trace Trace) string {
	if trace == nil {
		return m.helper.HelpText
	}
	return fmt.Sprintf("%s (%s)", m.helper.HelpText, trace.Name())
}

// Schedule runs the analysis.
func (m *StaticModule) Schedule() {
	n := m.scheduled.Add(1)
	util.LogInfo(fmt.Sprintf("Analysis %s scheduled (run %d)", m.helper.ID, n))
}

// Scheduled returns how many times the module ran.
func (m *StaticModule) Scheduled() int64 {
	return m.scheduled.Load()
}

// Properties exposes the descriptor properties.
func (m *StaticModule) Properties() map[string]string {
	return m.helper.HelperProperties()
}

// StaticTrace is a live instance whose modules come from descriptors.
type StaticTrace struct {
	resource string
	name     string
	typeID   string

	mu      sync.RWMutex
	start   int64
	end     int64
	modules map[string]Module
	members []Trace
}

// NewStaticTrace builds a live trace with one module per helper.
func NewStaticTrace(resource, typeID string, helpers []analysis.Helper) *StaticTrace {
	t := &StaticTrace{
		resource: resource,
		name:     baseName(resource),
		typeID:   typeID,
		modules:  make(map[string]Module, len(helpers)),
	}
	for _, h := range helpers {
		t.modules[h.ID] = NewStaticModule(h)
	}
	return t
}

// NewStaticExperiment builds a live experiment over members.
func NewStaticExperiment(resource, typeID string, helpers []analysis.Helper, members ...Trace) *StaticTrace {
	t := NewStaticTrace(resource, typeID, helpers)
	t.members = members
	for _, m := range members {
		t.extendBounds(m.StartTime(), m.EndTime())
	}
	return t
}

func baseName(resource string) string {
	for i := len(resource) - 1; i >= 0; i-- {
		if resource[i] == '/' {
			return resource[i+1:]
		}
	}
	return resource
}

func (t *StaticTrace) Resource() string { return t.resource }
func (t *StaticTrace) Name() string     { return t.name }
func (t *StaticTrace) TypeID() string   { return t.typeID }

func (t *StaticTrace) StartTime() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.start
}

func (t *StaticTrace) EndTime() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.end
}

// SetBounds sets the time range of the trace.
func (t *StaticTrace) SetBounds(start, end int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start, t.end = start, end
}

func (t *StaticTrace) extendBounds(start, end int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.start == 0 || start < t.start {
		t.start = start
	}
	if end > t.end {
		t.end = end
	}
}

// AnalysisModule returns the module with the given id, or nil.
func (t *StaticTrace) AnalysisModule(id string) Module {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if m, ok := t.modules[id]; ok {
		return m
	}
	return nil
}

// AddModule attaches a module to the instance.
func (t *StaticTrace) AddModule(m Module) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modules[m.ID()] = m
}

// RemoveModule detaches a module from the instance.
func (t *StaticTrace) RemoveModule(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.modules, id)
}

// TraceSet returns the experiment members, or the trace itself.
func (t *StaticTrace) TraceSet() []Trace {
	if len(t.members) == 0 {
		return []Trace{t}
	}
	set := make([]Trace, len(t.members))
	copy(set, t.members)
	return set
}
