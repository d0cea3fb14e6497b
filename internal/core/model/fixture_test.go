package model

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-trace-project/internal/core/analysis"
	"github.com/penwyp/go-trace-project/internal/core/engine"
	"github.com/penwyp/go-trace-project/internal/core/storage"
	"github.com/penwyp/go-trace-project/internal/core/tracetype"
)

const (
	typeA   = "type.a"
	typeB   = "type.b"
	typeCTF = "type.ctf"
)

var (
	helperX = analysis.Helper{
		ID: "x", Name: "X", HelpText: "x help",
		AppliesTo: []string{typeA},
		Outputs:   []analysis.OutputDescriptor{{ID: "x.out", Name: "X Output"}},
	}
	helperY = analysis.Helper{
		ID: "y", Name: "Y", HelpText: "y help",
		AppliesTo:  []string{typeA, typeB},
		Properties: map[string]string{"k": "v"},
		Outputs: []analysis.OutputDescriptor{
			{ID: "y.out", Name: "Y Output"},
			{ID: "y.hidden", Name: "Y Hidden"},
		},
	}
	helperZ = analysis.Helper{
		ID: "z", Name: "Z", HelpText: "z help",
		AppliesTo: []string{typeB},
	}
)

type recordingObserver struct {
	mu        sync.Mutex
	created   map[string]int
	removed   map[string]int
	refreshed map[string]int
	scheduled []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		created:   make(map[string]int),
		removed:   make(map[string]int),
		refreshed: make(map[string]int),
	}
}

func (o *recordingObserver) ElementCreated(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created[kind]++
}

func (o *recordingObserver) ElementRemoved(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removed[kind]++
}

func (o *recordingObserver) RefreshCompleted(kind string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refreshed[kind]++
}

func (o *recordingObserver) AnalysisScheduled(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scheduled = append(o.scheduled, id)
}

func (o *recordingObserver) count(m map[string]int, kind Kind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return m[kind.String()]
}

type fixture struct {
	store    *storage.Local
	backend  *failingBackend
	props    *storage.BadgerProperties
	types    *tracetype.Registry
	modules  *analysis.Registry
	engine   *engine.Manager
	observer *recordingObserver
	project  *Project
}

// newFixture builds a project with traces folder, experiments folder and
// the x, y and z analyses, plus any extra helpers.
func newFixture(t *testing.T, extra ...analysis.Helper) *fixture {
	t.Helper()

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	props, err := storage.OpenProperties(storage.InMemoryPropertiesConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = props.Close() })

	types := tracetype.NewRegistry()
	require.NoError(t, types.Register(tracetype.TraceType{ID: typeA, Name: "Type A"}))
	require.NoError(t, types.Register(tracetype.TraceType{ID: typeB, Name: "Type B"}))
	require.NoError(t, types.Register(tracetype.TraceType{ID: typeCTF, Name: "CTF", DirectoryMarker: "metadata"}))

	modules := analysis.NewRegistry()
	for _, h := range append([]analysis.Helper{helperX, helperY, helperZ}, extra...) {
		require.NoError(t, modules.Register(h))
	}

	f := &fixture{
		store:    store,
		backend:  &failingBackend{Local: store, deletes: make(map[string]error)},
		props:    props,
		types:    types,
		modules:  modules,
		engine:   engine.NewManager(),
		observer: newRecordingObserver(),
	}
	f.project, err = NewProject(Options{
		Name:       "demo",
		Storage:    f.backend,
		Properties: props,
		TraceTypes: types,
		Analyses:   modules,
		Engine:     f.engine,
		Outputs: analysis.NewOutputFilter(analysis.OutputExclusion{
			TraceType: typeA, Analysis: "y", Output: "y.hidden",
		}),
		Observer: f.observer,
	})
	require.NoError(t, err)
	require.NoError(t, f.project.CreateFolderStructure())
	return f
}

// syncBuffer collects log output written from any goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// failingBackend fails deletes of chosen paths.
type failingBackend struct {
	*storage.Local

	mu      sync.Mutex
	deletes map[string]error
}

func (b *failingBackend) failDelete(p string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.deletes, p)
		return
	}
	b.deletes[p] = err
}

func (b *failingBackend) Delete(p string) error {
	b.mu.Lock()
	err := b.deletes[p]
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.Local.Delete(p)
}

// addTrace creates a single-file trace and binds its type.
func (f *fixture) addTrace(t *testing.T, path, typeID string) {
	t.Helper()
	require.NoError(t, f.store.CreateFile(path, []byte("events")))
	if typeID != "" {
		require.NoError(t, f.props.Set(path, PropertyTraceType, typeID))
	}
}

// addExperiment creates an experiment referencing traces by element path.
func (f *fixture) addExperiment(t *testing.T, name string, elementPaths ...string) {
	t.Helper()
	expPath := storage.Join(ExperimentsFolderName, name)
	require.NoError(t, f.store.CreateFolder(expPath))
	for _, ep := range elementPaths {
		ref := storage.Join(expPath, ep)
		require.NoError(t, f.store.CreateFile(ref, nil))
		if typeID, ok, _ := f.props.Get(storage.Join(TracesFolderName, ep), PropertyTraceType); ok {
			require.NoError(t, f.props.Set(ref, PropertyTraceType, typeID))
		}
	}
}

func (f *fixture) trace(t *testing.T, path string) *Trace {
	t.Helper()
	tr, ok := f.project.Find(path).(*Trace)
	require.True(t, ok, "no trace at %s", path)
	return tr
}

func (f *fixture) experiment(t *testing.T, name string) *Experiment {
	t.Helper()
	ef := f.project.ExperimentsFolder()
	require.NotNil(t, ef)
	exp := ef.Experiment(name)
	require.NotNil(t, exp, "no experiment %s", name)
	return exp
}

func (f *fixture) analysisOf(t *testing.T, tracePath, id string) *Analysis {
	t.Helper()
	for _, a := range f.trace(t, tracePath).AvailableAnalysis() {
		if a.AnalysisID() == id {
			plain, ok := a.(*Analysis)
			require.True(t, ok)
			return plain
		}
	}
	require.Failf(t, "analysis not found", "%s on %s", id, tracePath)
	return nil
}

// openTrace opens a live instance for the trace at path.
func (f *fixture) openTrace(path, typeID string, helpers ...analysis.Helper) *engine.StaticTrace {
	live := engine.NewStaticTrace(path, typeID, helpers)
	f.engine.Open(live)
	return live
}

// collect indexes the subtree of e by path.
func collect(e Element) map[string]Element {
	out := map[string]Element{e.Path(): e}
	for _, c := range e.Children() {
		for p, el := range collect(c) {
			out[p] = el
		}
	}
	return out
}

func aggregateIDs(v *Views) []string {
	var ids []string
	for _, a := range v.Analyses() {
		if _, ok := a.(*AggregateAnalysis); ok {
			ids = append(ids, a.AnalysisID())
		}
	}
	return ids
}
