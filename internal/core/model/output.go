package model

import (
	"sort"

	"github.com/penwyp/go-trace-project/internal/core/analysis"
	"github.com/penwyp/go-trace-project/internal/core/engine"
	"github.com/penwyp/go-trace-project/internal/core/storage"
)

// Output is a view produced by an analysis.
type Output struct {
	node
	output engine.Output
}

func newOutput(a *Analysis, out engine.Output) *Output {
	o := &Output{output: out}
	o.init(o, KindOutput, out.Name(), storage.Join(a.path, out.Name()), a.self, a.project)
	return o
}

// OutputID returns the id of the output.
func (o *Output) OutputID() string { return o.output.ID() }

// Open requests the output from the engine.
func (o *Output) Open() {
	o.output.RequestOutput()
}

func (o *Output) refreshChildren() {}

// OnDemandAnalyses lists the on-demand analyses applicable to an entity.
type OnDemandAnalyses struct {
	node
	entity Entity
}

func newOnDemandAnalyses(e Entity) *OnDemandAnalyses {
	d := &OnDemandAnalyses{entity: e}
	d.init(d, KindOnDemandAnalyses, onDemandName, storage.Join(e.Path(), onDemandKey), e, e.Project())
	return d
}

// Analyses returns the on-demand analysis children.
func (d *OnDemandAnalyses) Analyses() []*OnDemandAnalysis {
	var analyses []*OnDemandAnalysis
	for _, c := range d.snapshot() {
		if a, ok := c.(*OnDemandAnalysis); ok {
			analyses = append(analyses, a)
		}
	}
	return analyses
}

func (d *OnDemandAnalyses) refreshChildren() {
	children := make(map[string]*OnDemandAnalysis)
	for _, a := range d.Analyses() {
		children[a.def.ID] = a
	}

	defs := d.project.analyses().OnDemandFor(d.entity.TraceType())
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	for _, def := range defs {
		if _, ok := children[def.ID]; ok {
			delete(children, def.ID)
			continue
		}
		d.addChild(newOnDemandAnalysis(d, def))
	}
	for _, a := range children {
		d.removeChild(a)
	}
}

// OnDemandAnalysis is an analysis run explicitly by the user.
type OnDemandAnalysis struct {
	node
	def analysis.OnDemand
}

func newOnDemandAnalysis(d *OnDemandAnalyses, def analysis.OnDemand) *OnDemandAnalysis {
	name := def.Name
	if name == "" {
		name = def.ID
	}
	a := &OnDemandAnalysis{def: def}
	a.init(a, KindOnDemandAnalysis, name, storage.Join(d.path, def.ID), d, d.project)
	return a
}

// Definition returns the registered on-demand analysis.
func (a *OnDemandAnalysis) Definition() analysis.OnDemand { return a.def }

func (a *OnDemandAnalysis) refreshChildren() {}

// Reports holds the reports produced for an entity.
type Reports struct {
	node
	entity Entity
}

func newReports(e Entity) *Reports {
	r := &Reports{entity: e}
	r.init(r, KindReports, reportsName, storage.Join(e.Path(), reportsKey), e, e.Project())
	return r
}

// Reports returns the report children.
func (r *Reports) Reports() []*Report {
	var reports []*Report
	for _, c := range r.snapshot() {
		if rep, ok := c.(*Report); ok {
			reports = append(reports, rep)
		}
	}
	return reports
}

// AddReport attaches a report. A report with the same name is replaced.
func (r *Reports) AddReport(name, description string) *Report {
	if old, ok := r.Child(name).(*Report); ok {
		r.removeChild(old)
	}
	rep := &Report{description: description}
	rep.init(rep, KindReport, name, storage.Join(r.path, name), r, r.project)
	r.addChild(rep)
	return rep
}

// RemoveReport detaches and disposes a report.
func (r *Reports) RemoveReport(rep *Report) {
	r.removeChild(rep)
}

// Reports are attached explicitly, there is nothing to reconcile.
func (r *Reports) refreshChildren() {}

// Report is a leaf produced by an on-demand analysis.
type Report struct {
	node
	description string
}

// Description returns the report description.
func (r *Report) Description() string { return r.description }

func (r *Report) refreshChildren() {}
