package workspace

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-trace-project/internal/core/analysis"
	"github.com/penwyp/go-trace-project/internal/core/catalog"
	"github.com/penwyp/go-trace-project/internal/core/model"
	"github.com/penwyp/go-trace-project/internal/core/tracetype"
)

func openWorkspace(t *testing.T, mutate ...func(*Config)) *Workspace {
	t.Helper()
	cfg := Config{
		ProjectDir:         t.TempDir(),
		InMemoryProperties: true,
		Debounce:           20 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	w, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.Init())
	return w
}

func writeTrace(t *testing.T, w *Workspace, rel, typeID string) {
	t.Helper()
	full := filepath.Join(w.Config().ProjectDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte("events"), 0644))
	if typeID != "" {
		require.NoError(t, w.Project().SetTraceType(rel, typeID, false))
	}
}

func analysisIDs(e model.Entity) []string {
	var ids []string
	for _, a := range e.AvailableAnalysis() {
		ids = append(ids, a.AnalysisID())
	}
	return ids
}

func TestOpen_InitCreatesFolders(t *testing.T) {
	w := openWorkspace(t)

	assert.NotNil(t, w.Project().TracesFolder())
	assert.NotNil(t, w.Project().ExperimentsFolder())
	assert.DirExists(t, filepath.Join(w.Config().ProjectDir, ".tracing"))
	assert.Len(t, w.TraceTypes().All(), len(catalog.Default().TraceTypes)+1)
}

func TestOpen_RejectsBadCatalog(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(file, []byte("traceTypes:\n  - name: nameless\n"), 0644))

	_, err := Open(Config{ProjectDir: dir, CatalogFile: file, InMemoryProperties: true})
	assert.Error(t, err)
}

func TestWorkspace_RefreshPicksUpTraces(t *testing.T) {
	w := openWorkspace(t)
	writeTrace(t, w, "Traces/app.log", "text.log")

	w.Refresh()

	e, err := w.Entity("Traces/app.log")
	require.NoError(t, err)
	assert.Equal(t, "text.log", e.TraceType())
	assert.Equal(t, []string{"statistics"}, analysisIDs(e))

	_, err = w.Entity("Traces")
	assert.ErrorIs(t, err, ErrNotEntity)
}

func TestWorkspace_OpenAndCloseTrace(t *testing.T) {
	w := openWorkspace(t)
	writeTrace(t, w, "Traces/app.log", "text.log")
	w.Refresh()

	live, err := w.OpenTrace("Traces/app.log")
	require.NoError(t, err)
	assert.Equal(t, "Traces/app.log", live.Resource())
	assert.NotNil(t, live.AnalysisModule("statistics"))

	again, err := w.OpenTrace("Traces/app.log")
	require.NoError(t, err)
	assert.Same(t, live, again)

	e, err := w.Entity("Traces/app.log")
	require.NoError(t, err)
	assert.True(t, e.AvailableAnalysis()[0].CanExecute())

	assert.True(t, w.CloseTrace("Traces/app.log"))
	assert.False(t, w.CloseTrace("Traces/app.log"))
}

func TestWorkspace_ExperimentMembersResolveFromReferences(t *testing.T) {
	w := openWorkspace(t)
	writeTrace(t, w, "Traces/a.log", "text.log")
	writeTrace(t, w, "Traces/sub/b.log", "text.log")
	w.Refresh()

	require.NoError(t, os.MkdirAll(filepath.Join(w.Config().ProjectDir, "Experiments", "both"), 0755))
	exps := w.Project().ExperimentsFolder()
	exp, err := exps.AddExperiment("Experiments/both")
	require.NoError(t, err)
	traces := w.Project().TracesFolder().Traces()
	require.Len(t, traces, 2)
	for _, tr := range traces {
		require.NoError(t, exp.AddTrace(tr, false))
	}
	w.Refresh()

	live, err := w.OpenTrace("Experiments/both")
	require.NoError(t, err)
	assert.Equal(t, tracetype.DefaultExperimentType, live.TypeID())

	var members []string
	for _, m := range live.TraceSet() {
		members = append(members, m.Resource())
	}
	assert.ElementsMatch(t, []string{"Traces/a.log", "Traces/sub/b.log"}, members)
	assert.NotNil(t, live.AnalysisModule("experiment.sync"))
}

func TestWorkspace_ReloadAnalysesRefreshesTree(t *testing.T) {
	dir := t.TempDir()
	cat := catalog.Default()
	cat.Analyses = append(cat.Analyses, analysis.Helper{
		ID: "custom", Name: "Custom", AppliesTo: []string{"text.log"}, ConfigRoot: "custom",
	})
	file := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, cat.Write(file))

	w := openWorkspace(t, func(c *Config) {
		c.ProjectDir = filepath.Join(dir, "project")
		c.CatalogFile = file
	})
	writeTrace(t, w, "Traces/app.log", "text.log")
	w.Refresh()

	e, err := w.Entity("Traces/app.log")
	require.NoError(t, err)
	assert.Equal(t, []string{"statistics"}, analysisIDs(e))

	require.NoError(t, analysis.WriteConfiguration(analysis.Configuration{
		ID: "errors", Name: "Errors only", SourceTypeID: "custom",
	}, filepath.Join(w.Config().ConfigRoot, "custom")))
	require.NoError(t, w.ReloadAnalyses(context.Background()))

	assert.ElementsMatch(t, []string{"statistics", "custom:errors"}, analysisIDs(e))
}

func TestWorkspace_OpenTraceSchedulesAutomaticAnalyses(t *testing.T) {
	dir := t.TempDir()
	cat := catalog.Default()
	cat.Analyses = append(cat.Analyses, analysis.Helper{
		ID: "index", Name: "Index", AppliesTo: []string{"text.log"}, Automatic: true,
	})
	file := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, cat.Write(file))

	w := openWorkspace(t, func(c *Config) {
		c.ProjectDir = filepath.Join(dir, "project")
		c.CatalogFile = file
	})
	writeTrace(t, w, "Traces/app.log", "text.log")
	w.Refresh()

	_, err := w.OpenTrace("Traces/app.log")
	require.NoError(t, err)

	body := scrape(t, w)
	assert.Contains(t, body, `trace_project_analysis_scheduled_total{analysis="index"} 1`)
	assert.NotContains(t, body, `analysis="statistics"`)

	// Already opened: nothing is scheduled again.
	_, err = w.OpenTrace("Traces/app.log")
	require.NoError(t, err)
	assert.Contains(t, scrape(t, w), `trace_project_analysis_scheduled_total{analysis="index"} 1`)
}

func TestWorkspace_ObserverFeedsMetrics(t *testing.T) {
	w := openWorkspace(t)
	writeTrace(t, w, "Traces/app.log", "text.log")
	w.Refresh()

	body := scrape(t, w)
	assert.Contains(t, body, `trace_project_tree_elements_created_total{kind="trace"} 1`)
	assert.Contains(t, body, "trace_project_tree_refresh_duration_seconds")
}

func TestWorkspace_WatchRefreshesOnChange(t *testing.T) {
	w := openWorkspace(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var refreshes atomic.Int32
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, func() { refreshes.Add(1) }) }()

	// Give the watcher time to register folders
	time.Sleep(200 * time.Millisecond)
	writeTrace(t, w, "Traces/late.log", "")

	assert.Eventually(t, func() bool {
		_, err := w.Entity("Traces/late.log")
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, refreshes.Load(), int32(1))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestFileWatcher_IgnoresHiddenFolders(t *testing.T) {
	root := t.TempDir()
	fw := &FileWatcher{root: root}

	assert.False(t, fw.ignored(root))
	assert.False(t, fw.ignored(filepath.Join(root, "Traces", "a.log")))
	assert.True(t, fw.ignored(filepath.Join(root, ".tracing", "Traces", "a.log")))
	assert.True(t, fw.ignored(filepath.Join(root, ".project", "properties")))
}

func scrape(t *testing.T, w *Workspace) string {
	t.Helper()
	srv := httptest.NewServer(w.Metrics().Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
