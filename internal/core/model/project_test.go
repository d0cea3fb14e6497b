package model

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-trace-project/internal/core/storage"
)

func TestNewProject_RequiresStorage(t *testing.T) {
	_, err := NewProject(Options{})
	assert.True(t, errors.Is(err, ErrInvalidOptions))
}

func TestProject_FoldersFollowStorage(t *testing.T) {
	f := newFixture(t)
	f.project.Refresh()

	require.NotNil(t, f.project.TracesFolder())
	require.NotNil(t, f.project.ExperimentsFolder())
	assert.Equal(t, DefaultLabel, f.project.Label())
	assert.Equal(t, SupplementaryFolderName, f.project.SupplementaryFolder())

	require.NoError(t, f.store.Delete(ExperimentsFolderName))
	experiments := f.project.ExperimentsFolder()
	f.project.Refresh()

	assert.Nil(t, f.project.ExperimentsFolder())
	assert.True(t, experiments.Disposed())
	assert.NotNil(t, f.project.TracesFolder())
}

func TestRefresh_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addTrace(t, "Traces/B", typeB)
	f.addTrace(t, "Traces/sub/t1", typeA)
	f.addExperiment(t, "E", "A", "B")

	f.project.Refresh()
	before := collect(f.project)
	f.project.Refresh()
	after := collect(f.project)

	require.Equal(t, len(before), len(after))
	for path, el := range before {
		assert.Same(t, el, after[path], "element %s was recreated", path)
		assert.False(t, el.Disposed())
	}
}

func TestRefresh_Convergence(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.project.Refresh()
	traces := f.project.TracesFolder()
	a := f.trace(t, "Traces/A")

	f.addTrace(t, "Traces/C", typeB)
	f.project.Refresh()

	children := traces.Children()
	require.Len(t, children, 2)
	assert.Same(t, a, traces.Child("A"))
	c := f.trace(t, "Traces/C")
	assert.Equal(t, "C", c.Name())
	assert.Equal(t, "Traces/C", c.Path())

	views := a.Views()
	require.NotNil(t, views)
	outputsBefore := len(collect(a))
	require.Greater(t, outputsBefore, 1)

	require.NoError(t, f.store.Delete("Traces/A"))
	f.project.Refresh()

	assert.Nil(t, traces.Child("A"))
	assert.True(t, a.Disposed())
	assert.True(t, views.Disposed())
	for _, el := range collect(a) {
		assert.True(t, el.Disposed(), "%s not disposed", el.Path())
	}
	assert.Same(t, c, traces.Child("C"))
	assert.GreaterOrEqual(t, f.observer.count(f.observer.removed, KindTrace), 1)
}

func TestTraceFolder_DirectoryTraceWinsOverFolder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateFile("Traces/kernel/metadata", nil))
	require.NoError(t, f.store.CreateFile("Traces/kernel/channel0", nil))
	require.NoError(t, f.store.CreateFile("Traces/plain/t1", nil))
	require.NoError(t, f.store.CreateFile("Traces/.hidden", nil))

	f.project.Refresh()

	kernel, ok := f.project.Find("Traces/kernel").(*Trace)
	require.True(t, ok, "directory trace reconciled as a folder")
	assert.Equal(t, typeCTF, kernel.TraceType())
	require.NotNil(t, kernel.Views())
	assert.Empty(t, kernel.Views().Analyses(), "no analysis applies to ctf")

	plain, ok := f.project.Find("Traces/plain").(*TraceFolder)
	require.True(t, ok)
	assert.IsType(t, &Trace{}, plain.Child("t1"))
	assert.Nil(t, f.project.TracesFolder().Child(".hidden"))

	// a folder gaining a marker becomes a trace
	require.NoError(t, f.store.CreateFile("Traces/plain/metadata", nil))
	f.project.Refresh()
	assert.True(t, plain.Disposed())
	assert.IsType(t, &Trace{}, f.project.Find("Traces/plain"))
}

func TestTraceFolder_TypedFolderIsTrace(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateFile("Traces/dirtrace/part0", nil))
	require.NoError(t, f.props.Set("Traces/dirtrace", PropertyTraceType, typeA))

	f.project.Refresh()

	tr := f.trace(t, "Traces/dirtrace")
	assert.Equal(t, typeA, tr.TraceType())
}

func TestTraceFolder_TraceElements(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addTrace(t, "Traces/sub/t1", typeA)
	f.addTrace(t, "Traces/sub/t2", typeB)
	f.project.Refresh()

	got := f.project.TracesFolder().TraceElements([]string{"Traces/sub/t1", "Traces/A", "Traces/missing"})
	paths := make([]string, 0, len(got))
	for _, tr := range got {
		paths = append(paths, tr.Path())
	}
	assert.ElementsMatch(t, []string{"Traces/A", "Traces/sub/t1"}, paths)
	assert.Empty(t, f.project.TracesFolder().TraceElements(nil))
}

func TestLabels(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addTrace(t, "Traces/sub/t1", typeA)
	f.addExperiment(t, "E", "A", "sub/t1")
	f.project.Refresh()

	assert.Equal(t, "Traces [2]", f.project.TracesFolder().Label())
	assert.Equal(t, "sub [1]", f.project.Find("Traces/sub").Label())
	assert.Equal(t, "Experiments [1]", f.project.ExperimentsFolder().Label())

	exp := f.experiment(t, "E")
	assert.Equal(t, "E [2]", exp.Label())
	labels := make([]string, 0)
	for _, tr := range exp.Traces() {
		labels = append(labels, tr.Label())
	}
	assert.ElementsMatch(t, []string{"A", "sub/t1"}, labels)
	assert.Equal(t, "t1", f.trace(t, "Traces/sub/t1").Label())
}

func TestProject_Find(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.project.Refresh()

	assert.Same(t, f.project, f.project.Find(""))
	assert.IsType(t, &Views{}, f.project.Find("Traces/A/.views"))
	assert.IsType(t, &Analysis{}, f.project.Find("Traces/A/.views/x"))
	assert.Nil(t, f.project.Find("Traces/missing"))
	assert.Nil(t, f.project.Find("Tracesx"))
}

func TestProject_SetTraceType(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/unknown.log", "")
	f.project.Refresh()

	tr := f.trace(t, "Traces/unknown.log")
	assert.Nil(t, tr.Views(), "untyped trace has no analyses")
	assert.Empty(t, tr.Children())

	require.NoError(t, f.project.SetTraceType("Traces/unknown.log", typeA, true))
	views := tr.Views()
	require.NotNil(t, views)
	assert.Len(t, views.Analyses(), 2)
	assert.NotNil(t, tr.OnDemandAnalyses())
	assert.NotNil(t, tr.Reports())

	require.NoError(t, f.project.SetTraceType("Traces/unknown.log", "bogus", true))
	assert.Nil(t, tr.Views())
	assert.True(t, views.Disposed())
	assert.Empty(t, tr.Children())
}

func TestRefresh_Concurrent(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addTrace(t, "Traces/B", typeB)
	f.addExperiment(t, "E", "A", "B")
	f.project.Refresh()
	want := collect(f.project)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				f.project.Refresh()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				exp := f.project.ExperimentsFolder().Experiment("E")
				if exp != nil {
					exp.Refresh()
					for _, c := range exp.Children() {
						_ = c.Label()
					}
				}
			}
		}()
	}
	wg.Wait()

	got := collect(f.project)
	require.Equal(t, len(want), len(got))
	for path, el := range want {
		assert.Same(t, el, got[path], "element %s was recreated", path)
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "trace", KindTrace.String())
	assert.Equal(t, "aggregate_analysis", KindAggregateAnalysis.String())
	assert.Equal(t, "unknown", Kind(99).String())
	assert.Equal(t, "info", SeverityInfo.String())
	assert.True(t, StatusOK.IsOK())
}

func TestProject_AbsPath(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, f.store.Root(), f.project.AbsPath(""))
	assert.Contains(t, f.project.AbsPath(storage.Join(TracesFolderName, "A")), "Traces")
}
