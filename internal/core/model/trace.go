package model

import (
	"fmt"
	"sync/atomic"

	"github.com/penwyp/go-trace-project/internal/core/storage"
	"github.com/penwyp/go-trace-project/internal/util"
)

// Trace is a trace entity, either under a trace folder or listed by an
// experiment as a reference to one.
type Trace struct {
	entity

	start, end       int64
	hasStart, hasEnd bool

	deleting atomic.Bool
}

func newTrace(name, path string, parent Element) *Trace {
	t := &Trace{}
	t.init(t, KindTrace, name, path, parent, parent.Project())
	t.RefreshTraceType()
	return t
}

// Label returns the element path for experiment traces, the name otherwise.
func (t *Trace) Label() string {
	if t.parent.Kind() == KindExperiment {
		return t.ElementPath()
	}
	return t.name
}

func (t *Trace) refreshChildren() {
	t.RefreshTraceType()
	t.refreshEntityChildren(t)
}

// ElementUnderTraceFolder resolves an experiment trace to the trace it
// references. It returns t itself when no such trace is known.
func (t *Trace) ElementUnderTraceFolder() *Trace {
	if t.parent.Kind() != KindExperiment {
		return t
	}
	folder := t.project.TracesFolder()
	if folder == nil {
		return t
	}
	var cur Element = folder
	for _, seg := range storage.Segments(t.ElementPath()) {
		next := cur.Child(seg)
		if next == nil {
			return t
		}
		cur = next
	}
	if resolved, ok := cur.(*Trace); ok {
		return resolved
	}
	return t
}

// StartTime returns the start of the trace, refreshed from the live
// instance when one is open. The second value is false when unknown.
func (t *Trace) StartTime() (int64, bool) {
	if under := t.ElementUnderTraceFolder(); under != t {
		return under.StartTime()
	}
	if live := t.LiveTrace(); live != nil {
		t.SetStartTime(live.StartTime())
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.start, t.hasStart
}

// EndTime returns the end of the trace, refreshed from the live instance
// when one is open. The second value is false when unknown.
func (t *Trace) EndTime() (int64, bool) {
	if under := t.ElementUnderTraceFolder(); under != t {
		return under.EndTime()
	}
	if live := t.LiveTrace(); live != nil {
		t.SetEndTime(live.EndTime())
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.end, t.hasEnd
}

// SetStartTime caches the start of the trace.
func (t *Trace) SetStartTime(ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start, t.hasStart = ts, true
}

// SetEndTime caches the end of the trace. The end only moves forward.
func (t *Trace) SetEndTime(ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasEnd || ts > t.end {
		t.end, t.hasEnd = ts, true
	}
}

func (t *Trace) invalidateBounds() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start, t.end = 0, 0
	t.hasStart, t.hasEnd = false, false
}

// experimentsContaining returns the experiments listing this trace.
func (t *Trace) experimentsContaining() []*Experiment {
	ef := t.project.ExperimentsFolder()
	if ef == nil || t.parent.Kind() == KindExperiment {
		return nil
	}
	elementPath := t.ElementPath()
	var exps []*Experiment
	for _, exp := range ef.Experiments() {
		if exp.traceByElementPath(elementPath) != nil {
			exps = append(exps, exp)
		}
	}
	return exps
}

// DeleteSupplementaryResources clears the supplementary files and the
// cached bounds, then those of every experiment containing the trace.
func (t *Trace) DeleteSupplementaryResources() {
	t.invalidateBounds()
	t.deleteSupplementaryResources()
	for _, exp := range t.experimentsContaining() {
		exp.DeleteSupplementaryResources()
	}
}

// Delete removes the trace. Unless overwriting, the trace leaves every
// experiment containing it, experiments left empty are deleted, and its
// supplementary folder goes away. When overwriting, experiment membership
// is kept, only the supplementary files are cleared and the element is
// detached right away.
func (t *Trace) Delete(overwriting bool) error {
	t.preDelete(overwriting)
	if err := t.deleteResource(); err != nil {
		// Let a retry run the cleanup again.
		t.deleting.Store(false)
		return err
	}
	return nil
}

func (t *Trace) preDelete(overwriting bool) {
	if !t.deleting.CompareAndSwap(false, true) {
		return
	}

	switch parent := t.parent.(type) {
	case *TraceFolder:
		if !overwriting {
			t.leaveExperiments()
			t.DeleteSupplementaryFolder()
		} else {
			t.DeleteSupplementaryResources()
		}
	case *Experiment:
		parent.DeleteSupplementaryResources()
	}

	if overwriting {
		t.parent.base().removeChild(t)
	}
}

func (t *Trace) leaveExperiments() {
	ef := t.project.ExperimentsFolder()
	if ef == nil {
		return
	}
	elementPath := t.ElementPath()
	for _, exp := range ef.Experiments() {
		ref := exp.traceByElementPath(elementPath)
		if ref == nil {
			continue
		}
		if err := exp.RemoveTrace(ref); err != nil {
			logStorageError("remove trace from experiment", exp.path, err)
			continue
		}
		if len(exp.Traces()) == 0 {
			util.LogInfo(fmt.Sprintf("Deleting experiment %s left without traces", exp.path))
			if err := exp.Delete(); err != nil {
				logStorageError("delete experiment", exp.path, err)
			}
		}
	}
}

// Copy copies the trace next to itself under newName.
func (t *Trace) Copy(newName string, copySupplementary, asLink bool) (string, error) {
	return t.copyTo(copySupplementary, asLink, storage.Join(storage.Parent(t.path), newName))
}

// CopyTrace copies the trace and its supplementary files and returns the
// element of the copy.
func (t *Trace) CopyTrace(newName string) (*Trace, error) {
	dest, err := t.Copy(newName, true, false)
	if err != nil {
		return nil, err
	}
	folder, ok := t.parent.(*TraceFolder)
	if !ok {
		return nil, fmt.Errorf("trace %s is not in a trace folder", t.path)
	}
	folder.Refresh()
	for _, c := range folder.Traces() {
		if c.Path() == dest {
			return c, nil
		}
	}
	return nil, fmt.Errorf("copied trace %s: %w", dest, storage.ErrNotFound)
}

// Rename renames the trace storage, properties and supplementary folder,
// and re-points the experiments referencing it.
func (t *Trace) Rename(newName string) error {
	folder, ok := t.parent.(*TraceFolder)
	if !ok {
		return fmt.Errorf("trace %s is not in a trace folder", t.path)
	}
	oldElementPath := t.ElementPath()
	exps := t.experimentsContaining()

	dest, err := t.move(newName)
	if err != nil {
		return err
	}
	newElementPath := t.elementPathOf(dest)
	for _, exp := range exps {
		if err := exp.repointTrace(oldElementPath, dest, newElementPath); err != nil {
			logStorageError("re-point experiment trace", exp.path, err)
		}
	}

	folder.Refresh()
	if ef := t.project.ExperimentsFolder(); ef != nil {
		ef.Refresh()
	}
	return nil
}
