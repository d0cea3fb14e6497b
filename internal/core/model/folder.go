package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/penwyp/go-trace-project/internal/core/storage"
	"github.com/penwyp/go-trace-project/internal/util"
)

// TraceFolder groups traces and nested trace folders.
type TraceFolder struct {
	node
}

func newTraceFolder(name, path string, parent Element) *TraceFolder {
	f := &TraceFolder{}
	f.init(f, KindTraceFolder, name, path, parent, parent.Project())
	return f
}

// IsTracesRoot reports whether the folder is the project traces folder.
func (f *TraceFolder) IsTracesRoot() bool {
	return f.parent.Kind() == KindProject
}

// Label returns the folder name with its recursive trace count.
func (f *TraceFolder) Label() string {
	if n := len(f.Traces()); n > 0 {
		return util.FormatCount(f.name, n)
	}
	return f.name
}

// Traces returns every trace below the folder, depth first.
func (f *TraceFolder) Traces() []*Trace {
	var traces []*Trace
	for _, c := range f.snapshot() {
		switch e := c.(type) {
		case *Trace:
			traces = append(traces, e)
		case *TraceFolder:
			traces = append(traces, e.Traces()...)
		}
	}
	return traces
}

// TraceElements returns the traces whose storage path is in paths.
func (f *TraceFolder) TraceElements(paths []string) []*Trace {
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[p] = struct{}{}
	}
	var traces []*Trace
	for _, t := range f.Traces() {
		if _, ok := want[t.Path()]; ok {
			traces = append(traces, t)
		}
	}
	return traces
}

// isTraceMember reports whether a storage member reconciles as a trace.
// A persisted trace type or a recognized directory format wins over the
// plain folder interpretation.
func (f *TraceFolder) isTraceMember(info storage.Info) (bool, string) {
	if !info.IsDir {
		return true, ""
	}
	if id, ok, err := f.project.properties().Get(info.Path, PropertyTraceType); err == nil && ok && id != "" {
		return true, ""
	}
	if id := f.project.traceTypes().DetectDirectoryTrace(f.project.AbsPath(info.Path)); id != "" {
		return true, id
	}
	return false, ""
}

func (f *TraceFolder) refreshChildren() {
	children := f.childrenByName()

	members, err := f.project.storage().Members(f.path, false)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logStorageError("members", f.path, err)
		return
	}

	for _, m := range members {
		isTrace, detected := f.isTraceMember(m)
		existing := children[m.Name]
		var child Element

		switch e := existing.(type) {
		case *Trace:
			child = e
		case *TraceFolder:
			if !isTrace {
				child = e
			} else {
				f.removeChild(e)
			}
		}

		if child == nil {
			if isTrace {
				if detected != "" {
					if err := f.project.properties().Set(m.Path, PropertyTraceType, detected); err != nil {
						logStorageError("set trace type", m.Path, err)
					}
				}
				child = newTrace(m.Name, m.Path, f)
			} else {
				child = newTraceFolder(m.Name, m.Path, f)
			}
			f.addChild(child)
		}
		delete(children, m.Name)
		child.Refresh()
	}

	for _, c := range children {
		f.removeChild(c)
	}
}

// ExperimentFolder groups experiments.
type ExperimentFolder struct {
	node
}

func newExperimentFolder(name, path string, parent Element) *ExperimentFolder {
	f := &ExperimentFolder{}
	f.init(f, KindExperimentFolder, name, path, parent, parent.Project())
	return f
}

// Label returns the folder name with its experiment count.
func (f *ExperimentFolder) Label() string {
	return util.FormatCount(f.name, len(f.snapshot()))
}

// Experiments returns the experiments of the folder.
func (f *ExperimentFolder) Experiments() []*Experiment {
	var exps []*Experiment
	for _, c := range f.snapshot() {
		if e, ok := c.(*Experiment); ok {
			exps = append(exps, e)
		}
	}
	return exps
}

// Experiment returns the experiment with the given name, or nil.
func (f *ExperimentFolder) Experiment(name string) *Experiment {
	e, _ := f.Child(name).(*Experiment)
	return e
}

// AddExperiment attaches the experiment stored at path, creating the
// element when it is not yet known.
func (f *ExperimentFolder) AddExperiment(path string) (*Experiment, error) {
	if storage.Parent(path) != f.path {
		return nil, fmt.Errorf("experiment %s is not in folder %s", path, f.path)
	}
	if !f.project.storage().Exists(path) {
		return nil, fmt.Errorf("experiment %s: %w", path, storage.ErrNotFound)
	}
	name := storage.Base(path)
	if e := f.Experiment(name); e != nil {
		return e, nil
	}
	e := newExperiment(name, path, f)
	f.addChild(e)
	return e, nil
}

func (f *ExperimentFolder) refreshChildren() {
	children := f.childrenByName()

	members, err := f.project.storage().Members(f.path, false)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logStorageError("members", f.path, err)
		return
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })

	for _, m := range members {
		if !m.IsDir {
			continue
		}
		e, ok := children[m.Name].(*Experiment)
		if !ok {
			e = newExperiment(m.Name, m.Path, f)
			f.addChild(e)
		}
		delete(children, m.Name)
		e.Refresh()
	}

	for _, c := range children {
		f.removeChild(c)
	}
}
