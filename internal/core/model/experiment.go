package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/penwyp/go-trace-project/internal/core/storage"
	"github.com/penwyp/go-trace-project/internal/core/tracetype"
	"github.com/penwyp/go-trace-project/internal/util"
)

// Experiment is an entity whose children reference traces of the
// traces folder.
type Experiment struct {
	entity
}

func newExperiment(name, path string, parent Element) *Experiment {
	e := &Experiment{}
	e.init(e, KindExperiment, name, path, parent, parent.Project())
	e.RefreshTraceType()
	return e
}

// Label returns the name with the trace count.
func (e *Experiment) Label() string {
	return util.FormatCount(e.name, len(e.Traces()))
}

// RefreshTraceType reloads the trace type, persisting the default
// experiment type when none is set.
func (e *Experiment) RefreshTraceType() {
	e.entity.RefreshTraceType()
	if e.TraceType() != "" {
		return
	}
	if err := e.SetTraceType(tracetype.DefaultExperimentType); err != nil {
		logStorageError("set default experiment type", e.path, err)
	}
}

// Traces returns the traces of the experiment.
func (e *Experiment) Traces() []*Trace {
	var traces []*Trace
	for _, c := range e.snapshot() {
		if t, ok := c.(*Trace); ok {
			traces = append(traces, t)
		}
	}
	return traces
}

func (e *Experiment) traceByElementPath(elementPath string) *Trace {
	for _, t := range e.Traces() {
		if t.ElementPath() == elementPath {
			return t
		}
	}
	return nil
}

// traceResources lists the trace references of the experiment. Files and
// links are references; folders are only descended into.
func (e *Experiment) traceResources() []storage.Info {
	var refs []storage.Info
	err := e.project.storage().Walk(e.path, func(info storage.Info) bool {
		if !info.IsDir || info.IsLink {
			refs = append(refs, info)
			return false
		}
		return true
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logStorageError("walk", e.path, err)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs
}

func (e *Experiment) refreshChildren() {
	e.RefreshTraceType()

	children := make(map[string]*Trace)
	for _, t := range e.Traces() {
		children[t.ElementPath()] = t
	}

	for _, ref := range e.traceResources() {
		elementPath := storage.Rel(e.path, ref.Path)
		t, ok := children[elementPath]
		if !ok {
			t = newTrace(ref.Name, ref.Path, e)
			e.addChild(t)
		}
		delete(children, elementPath)
		t.Refresh()
	}

	for _, t := range children {
		e.removeChild(t)
	}

	e.refreshEntityChildren(e)
}

// AvailableChildrenAnalyses returns the analyses of every trace the
// experiment references.
func (e *Experiment) AvailableChildrenAnalyses() []*Analysis {
	var analyses []*Analysis
	for _, t := range e.Traces() {
		for _, a := range t.ElementUnderTraceFolder().AvailableAnalysis() {
			if plain, ok := a.(*Analysis); ok {
				analyses = append(analyses, plain)
			}
		}
	}
	return analyses
}

// DeleteSupplementaryResources clears the supplementary files of the experiment.
func (e *Experiment) DeleteSupplementaryResources() {
	e.deleteSupplementaryResources()
}

// AddTrace adds a reference to t, which must live under the traces folder.
func (e *Experiment) AddTrace(t *Trace, refresh bool) error {
	if t.parent.Kind() == KindExperiment {
		return fmt.Errorf("trace %s already belongs to an experiment", t.path)
	}
	if err := e.addTraceRef(t.path, t.ElementPath()); err != nil {
		return err
	}
	if refresh {
		e.Refresh()
	}
	return nil
}

// addTraceRef creates the reference resource and copies the trace type
// of the referenced trace onto it.
func (e *Experiment) addTraceRef(tracePath, elementPath string) error {
	ref := storage.Join(e.path, elementPath)
	if err := e.project.storage().CreateFile(ref, nil); err != nil {
		return fmt.Errorf("failed to add trace %s to %s: %w", elementPath, e.name, err)
	}
	typeID, ok, err := e.project.properties().Get(tracePath, PropertyTraceType)
	if err != nil {
		logStorageError("get trace type", tracePath, err)
	}
	if ok && typeID != "" {
		if err := e.project.properties().Set(ref, PropertyTraceType, typeID); err != nil {
			logStorageError("set trace type", ref, err)
		}
	}
	return nil
}

// RemoveTrace removes t from the experiment: its analyses leave the
// aggregates, its reference resource and empty parents are deleted and
// the experiment supplementary files are cleared.
func (e *Experiment) RemoveTrace(t *Trace) error {
	if v := e.Views(); v != nil {
		v.RemoveChildrenAnalysis(t.ElementUnderTraceFolder().AvailableAnalysis())
	}
	e.removeChild(t)
	err := e.deleteTraceResource(t.path)
	e.DeleteSupplementaryResources()
	return err
}

func (e *Experiment) deleteTraceResource(path string) error {
	if err := e.project.storage().Delete(path); err != nil {
		logStorageError("delete trace reference", path, err)
		return err
	}
	if err := e.project.properties().DeleteTree(path); err != nil {
		logStorageError("delete properties", path, err)
	}
	e.deleteEmptyParents(path, e.path)
	return nil
}

// repointTrace replaces the reference to oldElementPath by one to the
// trace now stored at tracePath.
func (e *Experiment) repointTrace(oldElementPath, tracePath, newElementPath string) error {
	if t := e.traceByElementPath(oldElementPath); t != nil {
		e.removeChild(t)
	}
	if err := e.deleteTraceResource(storage.Join(e.path, oldElementPath)); err != nil {
		return err
	}
	if err := e.addTraceRef(tracePath, newElementPath); err != nil {
		return err
	}
	e.DeleteSupplementaryResources()
	return nil
}

// Delete removes the experiment, its supplementary folder and its element.
func (e *Experiment) Delete() error {
	e.DeleteSupplementaryFolder()
	if err := e.deleteResource(); err != nil {
		return err
	}
	e.parent.base().removeChild(e)
	return nil
}

// Copy copies the experiment under newName. Unless asLink is set, every
// referenced trace is copied under a traces folder named after the copy
// and the copy references those instead of the originals.
func (e *Experiment) Copy(newName string, copySupplementary, asLink bool) (string, error) {
	dest, err := e.copyTo(copySupplementary, true, storage.Join(storage.Parent(e.path), newName))
	if err != nil || asLink {
		return dest, err
	}

	ef, tf := e.project.ExperimentsFolder(), e.project.TracesFolder()
	if ef == nil || tf == nil {
		return "", fmt.Errorf("project %s has no traces or experiments folder", e.project.name)
	}
	ef.Refresh()
	copied := ef.Experiment(newName)
	if copied == nil {
		return "", fmt.Errorf("copied experiment %s: %w", dest, storage.ErrNotFound)
	}

	originals := copied.Traces()
	newRefs := make(map[*Trace]string, len(originals))
	refElementPaths := make(map[*Trace]string, len(originals))
	for _, orig := range originals {
		under := orig.ElementUnderTraceFolder()
		if under == orig {
			continue
		}
		traceElementPath := under.ElementPath()
		newTracePath := storage.Join(tf.path, newName, traceElementPath)
		if err := e.project.storage().CreateFolder(storage.Parent(newTracePath)); err != nil {
			logStorageError("create", storage.Parent(newTracePath), err)
			continue
		}
		p, err := under.copyTo(copySupplementary, false, newTracePath)
		if err != nil {
			continue
		}
		newRefs[orig] = p
		refElementPaths[orig] = storage.Join(newName, traceElementPath)
	}

	var errs []error
	for _, orig := range originals {
		copied.removeChild(orig)
		if err := copied.deleteTraceResource(orig.path); err != nil {
			errs = append(errs, fmt.Errorf("drop reference %s: %w", orig.path, err))
			continue
		}
		p, ok := newRefs[orig]
		if !ok {
			continue
		}
		if err := copied.addTraceRef(p, refElementPaths[orig]); err != nil {
			logStorageError("add copied trace", p, err)
		}
	}

	e.project.Refresh()
	if len(errs) > 0 {
		return dest, fmt.Errorf("copy experiment %s: %w", e.path, errors.Join(errs...))
	}
	return dest, nil
}

// Rename renames the experiment storage, properties and supplementary folder.
func (e *Experiment) Rename(newName string) error {
	if _, err := e.move(newName); err != nil {
		return err
	}
	if ef := e.project.ExperimentsFolder(); ef != nil {
		ef.Refresh()
	}
	return nil
}
