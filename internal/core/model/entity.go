package model

import (
	"errors"
	"fmt"
	"sync"

	"github.com/penwyp/go-trace-project/internal/core/engine"
	"github.com/penwyp/go-trace-project/internal/core/storage"
	"github.com/penwyp/go-trace-project/internal/util"
)

const (
	viewsName    = "Views"
	viewsKey     = ".views"
	onDemandName = "On-demand Analyses"
	onDemandKey  = ".ondemand"
	reportsName  = "Reports"
	reportsKey   = ".reports"

	experimentSuffix = "_exp"
)

// Entity is a trace or an experiment.
type Entity interface {
	Element
	TraceType() string
	SetTraceType(typeID string) error
	RefreshTraceType()
	// ElementPath is the path relative to the traces root, the enclosing
	// experiment or the experiments folder.
	ElementPath() string
	SupplementaryFolder() string
	PrepareSupplementaryFolder() string
	RefreshSupplementaryFolder()
	SupplementaryResources() []storage.Info
	HasSupplementaryResources() bool
	DeleteSupplementaryResources()
	DeleteSupplementaryFolder()
	Views() *Views
	OnDemandAnalyses() *OnDemandAnalyses
	Reports() *Reports
	AvailableAnalysis() []AnalysisElement
	AvailableChildrenAnalyses() []*Analysis
	LiveTrace() engine.Trace
	Instantiate() (engine.Trace, error)
	Copy(newName string, copySupplementary, asLink bool) (string, error)
	Rename(newName string) error

	entityBase() *entity
}

// entity is what traces and experiments share.
type entity struct {
	node

	mu          sync.RWMutex
	traceTypeID string
	views       *Views
	onDemand    *OnDemandAnalyses
	reports     *Reports
}

func (e *entity) entityBase() *entity { return e }

// TraceType returns the bound trace type id, or "".
func (e *entity) TraceType() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.traceTypeID
}

// RefreshTraceType reloads the trace type from the property store.
func (e *entity) RefreshTraceType() {
	id, _, err := e.project.properties().Get(e.path, PropertyTraceType)
	if err != nil {
		logStorageError("get trace type", e.path, err)
		return
	}
	e.mu.Lock()
	e.traceTypeID = id
	e.mu.Unlock()
}

// SetTraceType persists and binds a trace type.
func (e *entity) SetTraceType(typeID string) error {
	if err := e.project.properties().Set(e.path, PropertyTraceType, typeID); err != nil {
		return fmt.Errorf("failed to persist trace type of %s: %w", e.path, err)
	}
	e.mu.Lock()
	e.traceTypeID = typeID
	e.mu.Unlock()
	return nil
}

func (e *entity) Views() *Views {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.views
}

func (e *entity) OnDemandAnalyses() *OnDemandAnalyses {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.onDemand
}

func (e *entity) Reports() *Reports {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reports
}

// AvailableAnalysis returns the analyses under the views child.
func (e *entity) AvailableAnalysis() []AnalysisElement {
	v := e.Views()
	if v == nil {
		return nil
	}
	return v.Analyses()
}

// AvailableChildrenAnalyses is empty for a plain trace.
func (e *entity) AvailableChildrenAnalyses() []*Analysis {
	return nil
}

// LiveTrace returns the opened instance of this entity, or nil.
func (e *entity) LiveTrace() engine.Trace {
	return engine.FindOpened(e.project.engine(), e.path)
}

// Instantiate creates a live instance through the engine.
func (e *entity) Instantiate() (engine.Trace, error) {
	e.RefreshSupplementaryFolder()
	typeID := e.TraceType()
	if typeID == "" {
		return nil, fmt.Errorf("%s has no trace type: %w", e.path, engine.ErrUnknownType)
	}
	eng := e.project.engine()
	if eng == nil {
		return nil, fmt.Errorf("no trace engine configured")
	}
	t, err := eng.Instantiate(typeID, e.path)
	if err != nil {
		util.LogErrorFields("Failed to instantiate trace",
			util.Field{Key: "path", Value: e.path},
			util.Field{Key: "type", Value: typeID},
			util.Field{Key: "error", Value: err.Error()})
		return nil, err
	}
	return t, nil
}

// refreshEntityChildren maintains the views, on-demand and reports
// children. Traces listed by an experiment carry none of them.
func (e *entity) refreshEntityChildren(self Entity) {
	if e.parent.Kind() == KindExperiment {
		return
	}

	if _, ok := e.project.traceTypes().Get(e.TraceType()); !ok {
		e.mu.Lock()
		views, onDemand, reports := e.views, e.onDemand, e.reports
		e.views, e.onDemand, e.reports = nil, nil, nil
		e.mu.Unlock()
		if views != nil {
			e.removeChild(views)
		}
		if onDemand != nil {
			e.removeChild(onDemand)
		}
		if reports != nil {
			e.removeChild(reports)
		}
		return
	}

	e.mu.Lock()
	var created []Element
	if e.views == nil {
		e.views = newViews(self)
		created = append(created, e.views)
	}
	if e.onDemand == nil {
		e.onDemand = newOnDemandAnalyses(self)
		created = append(created, e.onDemand)
	}
	if e.reports == nil {
		e.reports = newReports(self)
		created = append(created, e.reports)
	}
	views, onDemand, reports := e.views, e.onDemand, e.reports
	e.mu.Unlock()

	for _, c := range created {
		e.addChild(c)
	}
	views.Refresh()
	onDemand.Refresh()
	reports.Refresh()
}

// rootFolder returns the ancestor element paths are relative to.
func (e *entity) rootFolder() Element {
	for p := e.parent; p != nil; p = p.Parent() {
		switch f := p.(type) {
		case *TraceFolder:
			if f.IsTracesRoot() {
				return f
			}
		case *Experiment, *ExperimentFolder:
			return f
		}
	}
	return e.project
}

func (e *entity) ElementPath() string {
	return storage.Rel(e.rootFolder().Path(), e.path)
}

// elementPathOf computes the element path a resource at path would have
// under the same root folder as this entity.
func (e *entity) elementPathOf(path string) string {
	return storage.Rel(e.rootFolder().Path(), path)
}

func (e *entity) suffix() string {
	if e.kind == KindExperiment {
		return experimentSuffix
	}
	return ""
}

func (e *entity) supplementaryFolderFor(elementPath string) string {
	return storage.Join(e.project.SupplementaryFolder(), elementPath+e.suffix())
}

// SupplementaryFolder returns the derived storage key of the entity.
func (e *entity) SupplementaryFolder() string {
	return e.supplementaryFolderFor(e.ElementPath())
}

// PrepareSupplementaryFolder creates the supplementary folder and its
// properties marker when missing. Failures are logged and the folder
// path is returned regardless.
func (e *entity) PrepareSupplementaryFolder() string {
	folder := e.SupplementaryFolder()
	marker := storage.Join(folder, PropertiesFolderName)
	st := e.project.storage()
	if !st.Exists(marker) {
		if err := st.CreateFolder(marker); err != nil {
			logStorageError("prepare supplementary folder", folder, err)
		}
	}
	return folder
}

// RefreshSupplementaryFolder prepares the folder and persists its location.
func (e *entity) RefreshSupplementaryFolder() {
	folder := e.PrepareSupplementaryFolder()
	if err := e.project.properties().Set(e.path, PropertySupplementaryFolder, e.project.AbsPath(folder)); err != nil {
		logStorageError("set supplementary folder", e.path, err)
	}
}

// SupplementaryResources returns the non-hidden members of the
// supplementary folder.
func (e *entity) SupplementaryResources() []storage.Info {
	members, err := e.project.storage().Members(e.SupplementaryFolder(), false)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logStorageError("list supplementary resources", e.SupplementaryFolder(), err)
		}
		return nil
	}
	return members
}

func (e *entity) HasSupplementaryResources() bool {
	return len(e.SupplementaryResources()) > 0
}

func (e *entity) deleteSupplementaryResources() {
	for _, r := range e.SupplementaryResources() {
		if err := e.project.storage().Delete(r.Path); err != nil {
			logStorageError("delete supplementary resource", r.Path, err)
		}
	}
}

// DeleteSupplementaryFolder removes the supplementary folder, then any
// parents it leaves empty.
func (e *entity) DeleteSupplementaryFolder() {
	folder := e.SupplementaryFolder()
	if err := e.project.storage().Delete(folder); err != nil {
		logStorageError("delete supplementary folder", folder, err)
		return
	}
	e.deleteEmptyParents(folder, e.project.SupplementaryFolder())
}

// deleteEmptyParents removes the empty ancestors of path strictly below stop.
func (e *entity) deleteEmptyParents(path, stop string) {
	st := e.project.storage()
	for p := storage.Parent(path); p != stop && storage.IsPrefix(stop, p) && p != ""; p = storage.Parent(p) {
		members, err := st.Members(p, true)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logStorageError("list", p, err)
			return
		}
		if len(members) > 0 {
			return
		}
		if err := st.Delete(p); err != nil {
			logStorageError("delete", p, err)
			return
		}
	}
}

func (e *entity) copySupplementaryFolder(newElementPath string) {
	src := e.SupplementaryFolder()
	st := e.project.storage()
	if !st.Exists(src) {
		return
	}
	dst := e.supplementaryFolderFor(newElementPath)
	if err := st.CreateFolder(storage.Parent(dst)); err != nil {
		logStorageError("create", storage.Parent(dst), err)
		return
	}
	if err := st.Copy(src, dst, false); err != nil {
		logStorageError("copy supplementary folder", src, err)
	}
}

func (e *entity) renameSupplementaryFolder(newElementPath string) {
	src := e.SupplementaryFolder()
	st := e.project.storage()
	if !st.Exists(src) {
		return
	}
	dst := e.supplementaryFolderFor(newElementPath)
	if err := st.Move(src, dst); err != nil {
		logStorageError("rename supplementary folder", src, err)
		return
	}
	e.deleteEmptyParents(src, e.project.SupplementaryFolder())
}

// copyTo copies the entity storage, properties and optionally its
// supplementary folder to dest.
func (e *entity) copyTo(copySupplementary, asLink bool, dest string) (string, error) {
	st := e.project.storage()
	if st.Exists(dest) {
		return "", fmt.Errorf("copy %s to %s: %w", e.path, dest, storage.ErrExists)
	}
	if copySupplementary {
		e.copySupplementaryFolder(e.elementPathOf(dest))
	}
	if err := st.Copy(e.path, dest, asLink); err != nil {
		logStorageError("copy", e.path, err)
		return "", err
	}
	if err := e.project.properties().CopyTree(e.path, dest); err != nil {
		logStorageError("copy properties", e.path, err)
	}
	// The copy starts with a fresh supplementary location.
	if err := e.project.properties().Delete(dest, PropertySupplementaryFolder); err != nil {
		logStorageError("reset supplementary folder", dest, err)
	}
	return dest, nil
}

// move renames the entity storage, properties and supplementary folder.
func (e *entity) move(newName string) (string, error) {
	if newName == "" || newName == e.name {
		return "", fmt.Errorf("invalid new name %q for %s", newName, e.path)
	}
	dest := storage.Join(storage.Parent(e.path), newName)
	st := e.project.storage()
	if st.Exists(dest) {
		return "", fmt.Errorf("rename %s to %s: %w", e.path, dest, storage.ErrExists)
	}
	e.renameSupplementaryFolder(e.elementPathOf(dest))
	if err := st.Move(e.path, dest); err != nil {
		logStorageError("rename", e.path, err)
		return "", err
	}
	if err := e.project.properties().MoveTree(e.path, dest); err != nil {
		logStorageError("move properties", e.path, err)
	}
	if err := e.project.properties().Delete(dest, PropertySupplementaryFolder); err != nil {
		logStorageError("reset supplementary folder", dest, err)
	}
	return dest, nil
}

// deleteResource removes the entity storage and its properties.
func (e *entity) deleteResource() error {
	if err := e.project.storage().Delete(e.path); err != nil {
		logStorageError("delete", e.path, err)
		return err
	}
	if err := e.project.properties().DeleteTree(e.path); err != nil {
		logStorageError("delete properties", e.path, err)
	}
	return nil
}
