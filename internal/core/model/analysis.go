package model

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/penwyp/go-trace-project/internal/core/analysis"
	"github.com/penwyp/go-trace-project/internal/core/engine"
	"github.com/penwyp/go-trace-project/internal/core/storage"
)

// AnalysisElement is an analysis or an aggregate of analyses.
type AnalysisElement interface {
	Element
	AnalysisID() string
	Helper() analysis.Helper
	ParentEntity() Entity
	CanExecute() bool
	HelpMessage() string
	// ScheduleAnalysis starts the live module in the background and
	// returns without waiting for it.
	ScheduleAnalysis() Status
	AnalysisProperties() map[string]string
	AnalysisHelperProperties() map[string]string
	AvailableOutputs() []*Output
}

// Analysis is one analysis module available on an entity.
type Analysis struct {
	node
	helper     analysis.Helper
	views      *Views
	canExecute atomic.Bool
}

func analysisName(h analysis.Helper) string {
	if h.Name != "" {
		return h.Name
	}
	return h.ID
}

func newAnalysis(v *Views, h analysis.Helper) *Analysis {
	a := &Analysis{helper: h, views: v}
	a.init(a, KindAnalysis, analysisName(h), storage.Join(v.path, h.ID), v, v.project)
	a.canExecute.Store(true)
	return a
}

func (a *Analysis) AnalysisID() string      { return a.helper.ID }
func (a *Analysis) Helper() analysis.Helper { return a.helper }
func (a *Analysis) ParentEntity() Entity    { return a.views.entity }
func (a *Analysis) CanExecute() bool        { return a.canExecute.Load() }

// AvailableOutputs returns the output children.
func (a *Analysis) AvailableOutputs() []*Output {
	var outputs []*Output
	for _, c := range a.snapshot() {
		if o, ok := c.(*Output); ok {
			outputs = append(outputs, o)
		}
	}
	return outputs
}

func (a *Analysis) deleteOutputs() {
	for _, o := range a.AvailableOutputs() {
		a.removeChild(o)
	}
}

// liveModule resolves the module instance on the opened trace of the
// entity. Outputs are dropped when there is none.
func (a *Analysis) liveModule() engine.Module {
	trace := engine.FindInTraceSets(a.project.engine(), a.views.entity.Path())
	if trace == nil {
		a.deleteOutputs()
		return nil
	}
	module := trace.AnalysisModule(a.helper.ID)
	if module == nil {
		a.deleteOutputs()
		a.canExecute.Store(false)
		return nil
	}
	return module
}

func (a *Analysis) refreshChildren() {
	a.canExecute.Store(true)
	if a.project.TracesFolder() == nil {
		return
	}
	module := a.liveModule()
	if module == nil {
		return
	}

	children := make(map[string]*Output)
	for _, o := range a.AvailableOutputs() {
		children[o.Name()] = o
	}
	traceType := a.views.entity.TraceType()
	filter := a.project.outputs()
	for _, out := range module.Outputs() {
		if filter.IsHidden(traceType, a.helper.ID, out.ID()) {
			continue
		}
		if _, ok := children[out.Name()]; ok {
			delete(children, out.Name())
			continue
		}
		a.addChild(newOutput(a, out))
	}
	for _, o := range children {
		a.removeChild(o)
	}
}

// HelpMessage returns the help of the live module when the entity is
// open, the descriptor help otherwise.
func (a *Analysis) HelpMessage() string {
	if trace := a.views.entity.LiveTrace(); trace != nil {
		if module := trace.AnalysisModule(a.helper.ID); module != nil {
			return module.HelpText(trace)
		}
	}
	return a.helper.HelpText
}

func (a *Analysis) ScheduleAnalysis() Status {
	module := a.liveModule()
	if module == nil {
		return Status{
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("null analysis for %s", analysisName(a.helper)),
		}
	}
	a.project.observer().AnalysisScheduled(a.helper.ID)
	go module.Schedule()
	return StatusOK
}

// AnalysisProperties returns the properties of the live module, or an
// empty map.
func (a *Analysis) AnalysisProperties() map[string]string {
	trace := a.views.entity.LiveTrace()
	if trace == nil {
		return map[string]string{}
	}
	provider, ok := trace.AnalysisModule(a.helper.ID).(engine.PropertiesProvider)
	if !ok {
		return map[string]string{}
	}
	props := maps.Clone(provider.Properties())
	if props == nil {
		props = map[string]string{}
	}
	return props
}

// AnalysisHelperProperties returns the descriptor properties.
func (a *Analysis) AnalysisHelperProperties() map[string]string {
	return a.helper.HelperProperties()
}

// AggregateAnalysis groups the analyses sharing an id across an
// experiment and its traces. It is never empty while in the tree.
type AggregateAnalysis struct {
	Analysis

	membersMu sync.RWMutex
	seed      *Analysis
	members   []*Analysis
}

func newAggregateAnalysis(v *Views, h analysis.Helper) *AggregateAnalysis {
	g := &AggregateAnalysis{}
	g.helper = h
	g.views = v
	g.init(g, KindAggregateAnalysis, analysisName(h), storage.Join(v.path, h.ID), v, v.project)
	g.canExecute.Store(true)
	return g
}

// Seed returns the experiment-level analysis the aggregate wraps, or nil.
func (g *AggregateAnalysis) Seed() *Analysis {
	g.membersMu.RLock()
	defer g.membersMu.RUnlock()
	return g.seed
}

func (g *AggregateAnalysis) clearSeed() {
	g.membersMu.Lock()
	defer g.membersMu.Unlock()
	g.seed = nil
}

// Members returns the contained analyses.
func (g *AggregateAnalysis) Members() []*Analysis {
	g.membersMu.RLock()
	defer g.membersMu.RUnlock()
	return slices.Clone(g.members)
}

// AddAnalysis adds a member. Adding a contained analysis is a no-op.
func (g *AggregateAnalysis) AddAnalysis(a *Analysis) {
	g.membersMu.Lock()
	defer g.membersMu.Unlock()
	if !slices.Contains(g.members, a) {
		g.members = append(g.members, a)
	}
}

// RemoveAnalysis removes a member.
func (g *AggregateAnalysis) RemoveAnalysis(a *Analysis) {
	g.membersMu.Lock()
	defer g.membersMu.Unlock()
	if i := slices.Index(g.members, a); i >= 0 {
		g.members = slices.Delete(g.members, i, i+1)
	}
}

// IsEmpty reports whether the aggregate has no member left.
func (g *AggregateAnalysis) IsEmpty() bool {
	g.membersMu.RLock()
	defer g.membersMu.RUnlock()
	return len(g.members) == 0
}

func (g *AggregateAnalysis) setMembers(members []*Analysis) {
	unique := make([]*Analysis, 0, len(members))
	for _, m := range members {
		if !slices.Contains(unique, m) {
			unique = append(unique, m)
		}
	}
	g.membersMu.Lock()
	g.members = unique
	g.membersMu.Unlock()
}

// CanExecute is true when any member can execute.
func (g *AggregateAnalysis) CanExecute() bool {
	for _, m := range g.Members() {
		if m.CanExecute() {
			return true
		}
	}
	return false
}

// HelpMessage joins the distinct help texts of the members.
func (g *AggregateAnalysis) HelpMessage() string {
	seen := make(map[string]struct{})
	for _, m := range g.Members() {
		if text := m.HelpMessage(); text != "" {
			seen[text] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return g.Analysis.HelpMessage()
	}
	texts := make([]string, 0, len(seen))
	for text := range seen {
		texts = append(texts, text)
	}
	sort.Strings(texts)
	return strings.Join(texts, ",")
}

func (g *AggregateAnalysis) refreshChildren() {
	if seed := g.Seed(); seed != nil {
		seed.Refresh()
	}
	g.Analysis.refreshChildren()
}
