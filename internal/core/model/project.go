package model

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/penwyp/go-trace-project/internal/core/analysis"
	"github.com/penwyp/go-trace-project/internal/core/engine"
	"github.com/penwyp/go-trace-project/internal/core/storage"
	"github.com/penwyp/go-trace-project/internal/core/tracetype"
	"github.com/penwyp/go-trace-project/internal/util"
)

const (
	// TracesFolderName is the storage folder holding the project traces
	TracesFolderName = "Traces"
	// ExperimentsFolderName is the storage folder holding the experiments
	ExperimentsFolderName = "Experiments"
	// SupplementaryFolderName is the root of derived per-entity storage
	SupplementaryFolderName = ".tracing"
	// PropertiesFolderName marks a prepared supplementary folder
	PropertiesFolderName = ".properties"
	// DefaultLabel is the project label used when none is configured
	DefaultLabel = "Trace Compass"

	// PropertyTraceType persists the trace type id of an entity
	PropertyTraceType = "trace.type"
	// PropertySupplementaryFolder persists the supplementary location
	PropertySupplementaryFolder = "trace.supplementary.folder"
)

// ErrInvalidOptions is returned when a project is built without its collaborators.
var ErrInvalidOptions = errors.New("invalid project options")

// Options are the collaborators of a project tree. They are read once
// at construction and shared read-only by every element.
type Options struct {
	Name       string
	Label      string
	Storage    storage.Backend
	Properties storage.PropertyStore
	TraceTypes *tracetype.Registry
	Analyses   *analysis.Registry
	Engine     engine.Engine
	// Outputs hides analysis outputs per trace type.
	Outputs  analysis.OutputFilter
	Observer Observer
}

// Project is the root of the tree.
type Project struct {
	node
	opts Options
}

// NewProject creates the root element. Call Refresh to populate it.
func NewProject(opts Options) (*Project, error) {
	if opts.Storage == nil || opts.Properties == nil {
		return nil, fmt.Errorf("%w: storage and properties are required", ErrInvalidOptions)
	}
	if opts.TraceTypes == nil {
		opts.TraceTypes = tracetype.NewRegistry()
	}
	if opts.Analyses == nil {
		opts.Analyses = analysis.NewRegistry()
	}
	if opts.Name == "" {
		opts.Name = filepath.Base(opts.Storage.Root())
	}
	if opts.Label == "" {
		opts.Label = DefaultLabel
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	p := &Project{opts: opts}
	p.init(p, KindProject, opts.Name, "", nil, p)
	return p, nil
}

func (p *Project) observer() Observer {
	if p == nil {
		return nopObserver{}
	}
	return p.opts.Observer
}

func (p *Project) storage() storage.Backend          { return p.opts.Storage }
func (p *Project) properties() storage.PropertyStore { return p.opts.Properties }
func (p *Project) traceTypes() *tracetype.Registry   { return p.opts.TraceTypes }
func (p *Project) analyses() *analysis.Registry      { return p.opts.Analyses }
func (p *Project) engine() engine.Engine             { return p.opts.Engine }
func (p *Project) outputs() analysis.OutputFilter    { return p.opts.Outputs }

// Label returns the configured project label.
func (p *Project) Label() string {
	return p.opts.Label
}

// SupplementaryFolder returns the root of derived storage.
func (p *Project) SupplementaryFolder() string {
	return SupplementaryFolderName
}

// AbsPath converts a storage path to a filesystem location.
func (p *Project) AbsPath(path string) string {
	return filepath.Join(p.storage().Root(), filepath.FromSlash(path))
}

// CreateFolderStructure creates the traces, experiments and supplementary folders.
func (p *Project) CreateFolderStructure() error {
	for _, f := range []string{TracesFolderName, ExperimentsFolderName, SupplementaryFolderName} {
		if err := p.storage().CreateFolder(f); err != nil {
			return fmt.Errorf("failed to create %s folder: %w", f, err)
		}
	}
	return nil
}

// TracesFolder returns the root traces folder, or nil.
func (p *Project) TracesFolder() *TraceFolder {
	f, _ := p.Child(TracesFolderName).(*TraceFolder)
	return f
}

// ExperimentsFolder returns the experiments folder, or nil.
func (p *Project) ExperimentsFolder() *ExperimentFolder {
	f, _ := p.Child(ExperimentsFolderName).(*ExperimentFolder)
	return f
}

func (p *Project) refreshChildren() {
	children := p.childrenByName()

	if p.storage().Exists(TracesFolderName) {
		f, ok := children[TracesFolderName].(*TraceFolder)
		if !ok {
			f = newTraceFolder(TracesFolderName, TracesFolderName, p)
			p.addChild(f)
		}
		delete(children, TracesFolderName)
		f.Refresh()
	}

	if p.storage().Exists(ExperimentsFolderName) {
		f, ok := children[ExperimentsFolderName].(*ExperimentFolder)
		if !ok {
			f = newExperimentFolder(ExperimentsFolderName, ExperimentsFolderName, p)
			p.addChild(f)
		}
		delete(children, ExperimentsFolderName)
		f.Refresh()
	}

	for _, c := range children {
		p.removeChild(c)
	}
}

// Find returns the element at path, or nil.
func (p *Project) Find(path string) Element {
	var cur Element = p
	for cur.Path() != path {
		var next Element
		for _, c := range cur.base().snapshot() {
			if storage.IsPrefix(c.Path(), path) {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// SetTraceType persists the trace type of the entity at path and refreshes
// every element bound to it. With refresh set, the whole project is
// reconciled afterwards.
func (p *Project) SetTraceType(path, typeID string, refresh bool) error {
	if err := p.properties().Set(path, PropertyTraceType, typeID); err != nil {
		return fmt.Errorf("failed to persist trace type of %s: %w", path, err)
	}
	if e, ok := p.Find(path).(Entity); ok {
		e.RefreshTraceType()
	}
	if ef := p.ExperimentsFolder(); ef != nil {
		for _, exp := range ef.Experiments() {
			for _, t := range exp.Traces() {
				if t.Path() == path {
					t.RefreshTraceType()
				}
			}
		}
	}
	if refresh {
		p.Refresh()
	}
	return nil
}

// logStorageError reports a failed storage operation against the element
// stored at path.
func logStorageError(op, path string, err error) {
	ctx := util.ContextWithElementPath(context.Background(), path)
	util.LogContext(ctx).Error("Storage operation failed",
		util.Field{Key: "op", Value: op},
		util.ErrField(err))
}
