// Package model is the project tree: an in-memory mirror of a project's
// storage, reconciled incrementally, plus the derived tree of analyses,
// outputs and cross-trace aggregates.
package model

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Kind discriminates the closed set of element types.
type Kind int

const (
	KindProject Kind = iota
	KindTraceFolder
	KindExperimentFolder
	KindTrace
	KindExperiment
	KindViews
	KindAnalysis
	KindAggregateAnalysis
	KindOutput
	KindOnDemandAnalyses
	KindOnDemandAnalysis
	KindReports
	KindReport
)

var kindNames = [...]string{
	KindProject:           "project",
	KindTraceFolder:       "trace_folder",
	KindExperimentFolder:  "experiment_folder",
	KindTrace:             "trace",
	KindExperiment:        "experiment",
	KindViews:             "views",
	KindAnalysis:          "analysis",
	KindAggregateAnalysis: "aggregate_analysis",
	KindOutput:            "output",
	KindOnDemandAnalyses:  "on_demand_analyses",
	KindOnDemandAnalysis:  "on_demand_analysis",
	KindReports:           "reports",
	KindReport:            "report",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Element is a node of the project tree.
type Element interface {
	Name() string
	// Path is the hierarchical key of the element, unique within the project.
	Path() string
	Kind() Kind
	Parent() Element
	Project() *Project
	// Children returns a snapshot of the current children.
	Children() []Element
	Child(name string) Element
	Label() string
	// Refresh reconciles the children with external state, then refreshes
	// every surviving or created child. Concurrent calls on one element
	// are serialized.
	Refresh()
	Disposed() bool

	base() *node
	dispose()
}

type reconciler interface {
	refreshChildren()
}

// node carries what every element shares. Children are held in an
// immutable slice swapped atomically: readers never lock, writers
// serialize on childMu. refreshMu serializes reconciliation only, so a
// child may detach itself while its parent is refreshing.
type node struct {
	name    string
	path    string
	kind    Kind
	parent  Element
	project *Project
	self    Element

	refreshMu sync.Mutex
	childMu   sync.Mutex
	children  atomic.Pointer[[]Element]
	disposed  atomic.Bool
}

func (n *node) init(self Element, kind Kind, name, path string, parent Element, project *Project) {
	n.self = self
	n.kind = kind
	n.name = name
	n.path = path
	n.parent = parent
	n.project = project
	empty := []Element{}
	n.children.Store(&empty)
}

func (n *node) base() *node         { return n }
func (n *node) Name() string        { return n.name }
func (n *node) Path() string        { return n.path }
func (n *node) Kind() Kind          { return n.kind }
func (n *node) Parent() Element     { return n.parent }
func (n *node) Project() *Project   { return n.project }
func (n *node) Label() string       { return n.name }
func (n *node) Disposed() bool      { return n.disposed.Load() }
func (n *node) snapshot() []Element { return *n.children.Load() }

// Children returns a copy of the current children.
func (n *node) Children() []Element {
	return slices.Clone(n.snapshot())
}

// Child returns the child with the given name, or nil.
func (n *node) Child(name string) Element {
	for _, c := range n.snapshot() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// Refresh runs the element's reconciliation under its refresh lock.
func (n *node) Refresh() {
	if n.disposed.Load() {
		return
	}
	n.refreshMu.Lock()
	defer n.refreshMu.Unlock()

	start := time.Now()
	n.self.(reconciler).refreshChildren()
	n.project.observer().RefreshCompleted(n.kind.String(), time.Since(start))
}

func (n *node) addChild(child Element) {
	n.childMu.Lock()
	old := n.snapshot()
	next := make([]Element, len(old), len(old)+1)
	copy(next, old)
	next = append(next, child)
	n.children.Store(&next)
	n.childMu.Unlock()

	n.project.observer().ElementCreated(child.Kind().String())
}

// detachChild removes child from the children without disposing it.
func (n *node) detachChild(child Element) bool {
	n.childMu.Lock()
	defer n.childMu.Unlock()
	old := n.snapshot()
	idx := slices.Index(old, child)
	if idx < 0 {
		return false
	}
	next := slices.Delete(slices.Clone(old), idx, idx+1)
	n.children.Store(&next)
	return true
}

// removeChild detaches and disposes child.
func (n *node) removeChild(child Element) {
	if !n.detachChild(child) {
		return
	}
	child.dispose()
	n.project.observer().ElementRemoved(child.Kind().String())
}

func (n *node) dispose() {
	if !n.disposed.CompareAndSwap(false, true) {
		return
	}
	for _, c := range n.snapshot() {
		c.dispose()
	}
}

// childrenByName indexes the current children for reconciliation.
func (n *node) childrenByName() map[string]Element {
	snap := n.snapshot()
	m := make(map[string]Element, len(snap))
	for _, c := range snap {
		m[c.Name()] = c
	}
	return m
}

// Severity of a Status.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is the outcome of a request that never fails hard.
type Status struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// StatusOK is the plain success status.
var StatusOK = Status{Severity: SeverityOK, Message: "OK"}

// IsOK reports whether the status is a success.
func (s Status) IsOK() bool {
	return s.Severity == SeverityOK
}

// Observer receives tree lifecycle events, typically for metrics.
type Observer interface {
	ElementCreated(kind string)
	ElementRemoved(kind string)
	RefreshCompleted(kind string, d time.Duration)
	AnalysisScheduled(analysisID string)
}

type nopObserver struct{}

func (nopObserver) ElementCreated(string)                  {}
func (nopObserver) ElementRemoved(string)                  {}
func (nopObserver) RefreshCompleted(string, time.Duration) {}
func (nopObserver) AnalysisScheduled(string)               {}
