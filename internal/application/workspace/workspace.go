// Package workspace wires a project tree to its storage, property store,
// catalog, registries and trace engine, and keeps it in sync with disk.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/penwyp/go-trace-project/internal/core/analysis"
	"github.com/penwyp/go-trace-project/internal/core/catalog"
	"github.com/penwyp/go-trace-project/internal/core/engine"
	"github.com/penwyp/go-trace-project/internal/core/metrics"
	"github.com/penwyp/go-trace-project/internal/core/model"
	"github.com/penwyp/go-trace-project/internal/core/storage"
	"github.com/penwyp/go-trace-project/internal/core/tracetype"
	"github.com/penwyp/go-trace-project/internal/util"
)

// ErrNotEntity is returned when a path does not name a trace or experiment.
var ErrNotEntity = errors.New("not a trace or experiment")

// Workspace owns a project tree and everything it depends on.
type Workspace struct {
	config Config

	store    *storage.Local
	props    *storage.BadgerProperties
	types    *tracetype.Registry
	analyses *analysis.Registry
	engine   *engine.Manager
	metrics  *metrics.Collector
	project  *model.Project

	refreshMutex sync.Mutex // Prevent concurrent full refreshes
	unsubscribe  func()
}

// Open builds a workspace for cfg. The project tree is not refreshed yet.
func Open(cfg Config) (*Workspace, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.ProjectDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	store, err := storage.NewLocal(cfg.ProjectDir)
	if err != nil {
		return nil, err
	}

	propsCfg := storage.DefaultPropertiesConfig(cfg.PropertiesDir)
	if cfg.InMemoryProperties {
		propsCfg = storage.InMemoryPropertiesConfig()
	}
	props, err := storage.OpenProperties(propsCfg)
	if err != nil {
		return nil, err
	}

	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		if cat, err = catalog.Load(cfg.CatalogFile); err != nil {
			props.Close()
			return nil, err
		}
	}
	for i, h := range cat.Analyses {
		if h.ConfigRoot != "" && !filepath.IsAbs(h.ConfigRoot) {
			cat.Analyses[i].ConfigRoot = filepath.Join(cfg.ConfigRoot, h.ConfigRoot)
		}
	}

	w := &Workspace{
		config:   cfg,
		store:    store,
		props:    props,
		types:    tracetype.NewRegistry(),
		analyses: analysis.NewRegistry(),
		engine:   engine.NewManager(),
		metrics:  metrics.NewCollector(),
	}
	if err := cat.Apply(w.types, w.analyses, w.engine, w.experimentMembers); err != nil {
		props.Close()
		return nil, err
	}
	if err := w.analyses.Reload(context.Background()); err != nil {
		util.LogWarn(fmt.Sprintf("Failed to load configured analyses: %v", err))
	}

	w.project, err = model.NewProject(model.Options{
		Name:       cfg.Name,
		Label:      cfg.Label,
		Storage:    store,
		Properties: props,
		TraceTypes: w.types,
		Analyses:   w.analyses,
		Engine:     w.engine,
		Outputs:    cat.OutputFilter(),
		Observer:   w.metrics,
	})
	if err != nil {
		props.Close()
		return nil, err
	}

	w.unsubscribe = w.analyses.Subscribe(func() {
		util.LogInfo("Analysis configuration updated, refreshing project")
		w.Refresh()
	})

	util.LogInfoFields("Workspace opened",
		util.Field{Key: "project", Value: cfg.ProjectDir},
		util.Field{Key: "trace_types", Value: len(w.types.All())},
		util.Field{Key: "analyses", Value: len(w.analyses.All())})
	return w, nil
}

// Init creates the project folder structure and refreshes the tree.
func (w *Workspace) Init() error {
	if err := w.project.CreateFolderStructure(); err != nil {
		return err
	}
	w.Refresh()
	return nil
}

// Refresh reconciles the whole project tree with storage.
func (w *Workspace) Refresh() time.Duration {
	w.refreshMutex.Lock()
	defer w.refreshMutex.Unlock()

	start := time.Now()
	w.project.Refresh()
	elapsed := time.Since(start)
	util.LogDebug(fmt.Sprintf("Project %s refreshed in %s", w.project.Name(), util.FormatDuration(elapsed)))
	return elapsed
}

func (w *Workspace) Project() *model.Project           { return w.project }
func (w *Workspace) Engine() *engine.Manager           { return w.engine }
func (w *Workspace) Metrics() *metrics.Collector       { return w.metrics }
func (w *Workspace) Analyses() *analysis.Registry      { return w.analyses }
func (w *Workspace) TraceTypes() *tracetype.Registry   { return w.types }
func (w *Workspace) Properties() storage.PropertyStore { return w.props }
func (w *Workspace) Config() Config                    { return w.config }

// ReloadAnalyses re-reads configurable analyses. Subscribers, the
// workspace itself included, are notified.
func (w *Workspace) ReloadAnalyses(ctx context.Context) error {
	return w.analyses.Reload(ctx)
}

// Entity returns the trace or experiment at path.
func (w *Workspace) Entity(path string) (model.Entity, error) {
	e, ok := w.project.Find(path).(model.Entity)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotEntity)
	}
	return e, nil
}

// OpenTrace instantiates the entity at path, marks it opened and
// schedules its automatic analyses.
func (w *Workspace) OpenTrace(path string) (engine.Trace, error) {
	e, err := w.Entity(path)
	if err != nil {
		return nil, err
	}
	if live := e.LiveTrace(); live != nil {
		return live, nil
	}
	live, err := e.Instantiate()
	if err != nil {
		return nil, err
	}
	w.engine.Open(live)
	w.Refresh()
	w.scheduleAutomatic(path)
	return live, nil
}

// scheduleAutomatic starts the analyses of path flagged automatic.
func (w *Workspace) scheduleAutomatic(path string) {
	e, err := w.Entity(path)
	if err != nil {
		return
	}
	for _, an := range e.AvailableAnalysis() {
		if !an.Helper().Automatic {
			continue
		}
		if status := an.ScheduleAnalysis(); status.Severity != model.SeverityOK {
			util.LogWarnf("Automatic analysis %s on %s: %s", an.AnalysisID(), path, status.Message)
		}
	}
}

// CloseTrace forgets the opened instance of path.
func (w *Workspace) CloseTrace(path string) bool {
	closed := w.engine.Close(path)
	if closed {
		w.Refresh()
	}
	return closed
}

// experimentMembers resolves the live traces an experiment references.
func (w *Workspace) experimentMembers(experiment string) []engine.Trace {
	var members []engine.Trace
	err := w.store.Walk(experiment, func(info storage.Info) bool {
		if info.IsDir && !info.IsLink {
			return true
		}
		tracePath := storage.Join(model.TracesFolderName, storage.Rel(experiment, info.Path))
		if live := engine.FindOpened(w.engine, tracePath); live != nil {
			members = append(members, live)
			return false
		}
		typeID, ok, err := w.props.Get(tracePath, model.PropertyTraceType)
		if err != nil || !ok {
			util.LogDebug(fmt.Sprintf("Skipping experiment member %s without trace type", tracePath))
			return false
		}
		live, err := w.engine.Instantiate(typeID, tracePath)
		if err != nil {
			util.LogWarn(fmt.Sprintf("Failed to instantiate experiment member %s: %v", tracePath, err))
			return false
		}
		members = append(members, live)
		return false
	})
	if err != nil {
		util.LogWarn(fmt.Sprintf("Failed to list members of %s: %v", experiment, err))
	}
	return members
}

// Close releases the property store.
func (w *Workspace) Close() error {
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
	return w.props.Close()
}
