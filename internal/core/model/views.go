package model

import (
	"sort"

	"github.com/penwyp/go-trace-project/internal/core/analysis"
	"github.com/penwyp/go-trace-project/internal/core/storage"
)

// Views holds the analyses of an entity. For an experiment, analyses
// sharing an id across the experiment and its traces are grouped into
// aggregates.
type Views struct {
	node
	entity Entity
}

func newViews(e Entity) *Views {
	v := &Views{entity: e}
	v.init(v, KindViews, viewsName, storage.Join(e.Path(), viewsKey), e, e.Project())
	return v
}

// Entity returns the trace or experiment the views belong to.
func (v *Views) Entity() Entity {
	return v.entity
}

// Analyses returns the analysis children.
func (v *Views) Analyses() []AnalysisElement {
	var analyses []AnalysisElement
	for _, c := range v.snapshot() {
		if a, ok := c.(AnalysisElement); ok {
			analyses = append(analyses, a)
		}
	}
	return analyses
}

// Aggregate returns the aggregate with the given analysis id, or nil.
func (v *Views) Aggregate(analysisID string) *AggregateAnalysis {
	for _, c := range v.snapshot() {
		if g, ok := c.(*AggregateAnalysis); ok && g.AnalysisID() == analysisID {
			return g
		}
	}
	return nil
}

func (v *Views) analysesByID() map[string]AnalysisElement {
	m := make(map[string]AnalysisElement)
	for _, a := range v.Analyses() {
		m[a.AnalysisID()] = a
	}
	return m
}

func sortedIDs(helpers map[string]analysis.Helper) []string {
	ids := make([]string, 0, len(helpers))
	for id := range helpers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (v *Views) refreshChildren() {
	children := v.analysesByID()

	typeID := v.entity.TraceType()
	if _, ok := v.project.traceTypes().Get(typeID); !ok {
		for _, c := range children {
			v.removeChild(c)
		}
		return
	}

	var visited []AnalysisElement
	if _, isExperiment := v.entity.(*Experiment); isExperiment {
		visited = v.reconcileExperiment(typeID, children)
	} else {
		visited = v.reconcileTrace(typeID, children)
	}

	for _, c := range children {
		v.removeChild(c)
	}
	for _, a := range visited {
		a.Refresh()
	}
}

// reconcileTrace keeps one analysis per applicable module. Visited ids
// are deleted from children.
func (v *Views) reconcileTrace(typeID string, children map[string]AnalysisElement) []AnalysisElement {
	modules := v.project.analyses().ModulesFor(typeID)
	visited := make([]AnalysisElement, 0, len(modules))
	for _, id := range sortedIDs(modules) {
		a, ok := children[id].(*Analysis)
		if !ok {
			if old := children[id]; old != nil {
				v.removeChild(old)
			}
			a = newAnalysis(v, modules[id])
			v.addChild(a)
		}
		delete(children, id)
		visited = append(visited, a)
	}
	return visited
}

// reconcileExperiment rebuilds the aggregates of an experiment. Modules
// of the experiment type seed an aggregate with the experiment-level
// analysis; the analyses of each referenced trace then join the
// aggregate of their id. Aggregates keep their identity across passes
// while their membership follows the current traces. Experiment-level
// modules of the live experiment that no aggregate covers get a plain
// analysis.
func (v *Views) reconcileExperiment(typeID string, children map[string]AnalysisElement) []AnalysisElement {
	aggregates := make(map[string]*AggregateAnalysis)
	members := make(map[string][]*Analysis)
	var order []string

	aggregateFor := func(h analysis.Helper) *AggregateAnalysis {
		if g, ok := aggregates[h.ID]; ok {
			return g
		}
		var g *AggregateAnalysis
		switch existing := children[h.ID].(type) {
		case *AggregateAnalysis:
			g = existing
		case *Analysis:
			v.detachChild(existing)
			g = newAggregateAnalysis(v, h)
			g.seed = existing
			v.addChild(g)
		default:
			g = newAggregateAnalysis(v, h)
			v.addChild(g)
		}
		delete(children, h.ID)
		aggregates[h.ID] = g
		order = append(order, h.ID)
		return g
	}

	modules := v.project.analyses().ModulesFor(typeID)
	for _, id := range sortedIDs(modules) {
		g := aggregateFor(modules[id])
		if g.seed == nil {
			g.seed = newAnalysis(v, modules[id])
		}
		members[id] = append(members[id], g.seed)
	}

	for _, a := range v.entity.AvailableChildrenAnalyses() {
		id := a.AnalysisID()
		aggregateFor(a.helper)
		members[id] = append(members[id], a)
	}

	visited := make([]AnalysisElement, 0, len(order))
	for _, id := range order {
		g := aggregates[id]
		if _, seeded := modules[id]; !seeded {
			g.clearSeed()
		}
		g.setMembers(members[id])
		visited = append(visited, g)
	}

	if live := v.entity.LiveTrace(); live != nil {
		for _, h := range v.project.analyses().ExperimentModules() {
			if _, ok := aggregates[h.ID]; ok {
				continue
			}
			if live.AnalysisModule(h.ID) == nil {
				continue
			}
			a, ok := children[h.ID].(*Analysis)
			if !ok {
				if old := children[h.ID]; old != nil {
					v.removeChild(old)
				}
				a = newAnalysis(v, h)
				v.addChild(a)
			}
			delete(children, h.ID)
			visited = append(visited, a)
		}
	}
	return visited
}

// RemoveChildrenAnalysis removes each analysis from the aggregate of its
// id. An aggregate left empty is removed.
func (v *Views) RemoveChildrenAnalysis(entries []AnalysisElement) {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	for _, entry := range entries {
		a, ok := entry.(*Analysis)
		if !ok {
			continue
		}
		g := v.Aggregate(a.AnalysisID())
		if g == nil {
			continue
		}
		g.RemoveAnalysis(a)
		if g.IsEmpty() {
			v.removeChild(g)
		}
	}
}
