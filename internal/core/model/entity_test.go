package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-trace-project/internal/util"
)

func TestSupplementaryFolder_DerivedFromElementPath(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addTrace(t, "Traces/sub/t1", typeA)
	f.addExperiment(t, "A", "A")
	f.project.Refresh()

	trace := f.trace(t, "Traces/sub/t1")
	assert.Equal(t, "sub/t1", trace.ElementPath())
	assert.Equal(t, ".tracing/sub/t1", trace.SupplementaryFolder())

	exp := f.experiment(t, "A")
	assert.Equal(t, "A", exp.ElementPath())
	assert.Equal(t, ".tracing/A_exp", exp.SupplementaryFolder())
	assert.NotEqual(t, f.trace(t, "Traces/A").SupplementaryFolder(), exp.SupplementaryFolder())

	ref := exp.Traces()[0]
	assert.Equal(t, "A", ref.ElementPath())
}

func TestPrepareSupplementaryFolder_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.project.Refresh()
	tr := f.trace(t, "Traces/A")

	assert.Equal(t, ".tracing/A", tr.PrepareSupplementaryFolder())
	assert.Equal(t, ".tracing/A", tr.PrepareSupplementaryFolder())
	assert.True(t, f.store.Exists(".tracing/A/.properties"))
	assert.False(t, tr.HasSupplementaryResources(), "the marker is hidden")

	require.NoError(t, f.store.CreateFile(".tracing/A/stats.ht", nil))
	assert.True(t, tr.HasSupplementaryResources())
	require.Len(t, tr.SupplementaryResources(), 1)
	assert.Equal(t, "stats.ht", tr.SupplementaryResources()[0].Name)
}

func TestRefreshSupplementaryFolder_PersistsLocation(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.project.Refresh()

	f.trace(t, "Traces/A").RefreshSupplementaryFolder()

	location, ok, err := f.props.Get("Traces/A", PropertySupplementaryFolder)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, f.project.AbsPath(".tracing/A"), location)
}

func TestTraceDelete_CascadesToSoleExperiment(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addExperiment(t, "E", "A")
	require.NoError(t, f.store.CreateFile(".tracing/A/stats.ht", nil))
	require.NoError(t, f.store.CreateFile(".tracing/E_exp/sync.ht", nil))
	f.project.Refresh()
	exp := f.experiment(t, "E")

	require.NoError(t, f.trace(t, "Traces/A").Delete(false))

	assert.Nil(t, f.project.ExperimentsFolder().Experiment("E"))
	assert.True(t, exp.Disposed())
	assert.False(t, f.store.Exists("Experiments/E"))
	assert.False(t, f.store.Exists(".tracing/E_exp"))
	assert.False(t, f.store.Exists(".tracing/A"))
	assert.False(t, f.store.Exists("Traces/A"))
	assert.True(t, f.store.Exists(".tracing"))

	f.project.Refresh()
	assert.Nil(t, f.project.Find("Traces/A"))
}

func TestTraceDelete_KeepsExperimentWithOtherTraces(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addTrace(t, "Traces/B", typeB)
	f.addExperiment(t, "E", "A", "B")
	f.project.Refresh()

	require.NoError(t, f.trace(t, "Traces/A").Delete(false))

	exp := f.experiment(t, "E")
	require.Len(t, exp.Traces(), 1)
	assert.Equal(t, "B", exp.Traces()[0].ElementPath())
	assert.False(t, f.store.Exists("Experiments/E/A"))
	assert.Nil(t, exp.Views().Aggregate("x"))
}

func TestTraceDelete_Overwrite(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addExperiment(t, "E", "A")
	f.project.Refresh()
	a := f.trace(t, "Traces/A")
	a.PrepareSupplementaryFolder()
	require.NoError(t, f.store.CreateFile(".tracing/A/stats.ht", nil))

	require.NoError(t, a.Delete(true))

	assert.True(t, f.store.Exists(".tracing/A/.properties"))
	assert.False(t, f.store.Exists(".tracing/A/stats.ht"))
	assert.True(t, f.store.Exists("Experiments/E/A"))
	exp := f.experiment(t, "E")
	assert.Len(t, exp.Traces(), 1)
	assert.Nil(t, f.project.TracesFolder().Child("A"))
	assert.True(t, a.Disposed())

	// the cascade runs once per element
	a.preDelete(false)
	assert.NotNil(t, f.project.ExperimentsFolder().Experiment("E"))
}

func TestTraceDelete_ExperimentTraceClearsExperimentResources(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addExperiment(t, "E", "A")
	require.NoError(t, f.store.CreateFile(".tracing/E_exp/sync.ht", nil))
	require.NoError(t, f.store.CreateFile(".tracing/A/stats.ht", nil))
	f.project.Refresh()

	ref := f.experiment(t, "E").Traces()[0]
	require.NoError(t, ref.Delete(false))

	assert.False(t, f.store.Exists(".tracing/E_exp/sync.ht"))
	assert.True(t, f.store.Exists(".tracing/A/stats.ht"))
	assert.True(t, f.store.Exists("Traces/A"))
	assert.False(t, f.store.Exists("Experiments/E/A"))
}

func TestTraceDelete_RetryAfterStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addTrace(t, "Traces/B", typeA)
	f.addExperiment(t, "E", "A", "B")
	f.project.Refresh()

	f.backend.failDelete("Traces/A", errors.New("device busy"))
	require.Error(t, f.trace(t, "Traces/A").Delete(false))
	assert.True(t, f.store.Exists("Traces/A"))

	// A new reference appears before the retry.
	f.addExperiment(t, "E2", "A", "B")
	require.NoError(t, f.store.CreateFile(".tracing/A/stats.ht", nil))
	f.project.Refresh()
	require.Len(t, f.experiment(t, "E2").Traces(), 2)

	f.backend.failDelete("Traces/A", nil)
	require.NoError(t, f.trace(t, "Traces/A").Delete(false))

	assert.False(t, f.store.Exists("Traces/A"))
	assert.False(t, f.store.Exists("Experiments/E2/A"))
	assert.False(t, f.store.Exists(".tracing/A"))
	assert.Len(t, f.experiment(t, "E2").Traces(), 1)
}

func TestStorageFailureIsLoggedAgainstElement(t *testing.T) {
	buf := &syncBuffer{}
	util.SetLogger(util.NewLogger(util.LoggerConfig{
		Outputs: []util.Output{util.NewConsoleOutput(buf, util.FormatText)},
	}))
	t.Cleanup(func() { util.SetLogger(nil) })

	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.project.Refresh()

	f.backend.failDelete("Traces/A", errors.New("device busy"))
	require.Error(t, f.trace(t, "Traces/A").Delete(false))

	assert.Contains(t, buf.String(), "Traces/A: Storage operation failed error=device busy op=delete")
}

func TestTraceRename_MovesEverything(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addExperiment(t, "E", "A")
	require.NoError(t, f.store.CreateFile(".tracing/A/stats.ht", nil))
	f.project.Refresh()
	old := f.trace(t, "Traces/A")

	require.NoError(t, old.Rename("A2"))

	assert.False(t, f.store.Exists("Traces/A"))
	assert.True(t, f.store.Exists("Traces/A2"))
	assert.False(t, f.store.Exists(".tracing/A"))
	assert.True(t, f.store.Exists(".tracing/A2/stats.ht"))
	typeID, _, err := f.props.Get("Traces/A2", PropertyTraceType)
	require.NoError(t, err)
	assert.Equal(t, typeA, typeID)

	renamed := f.trace(t, "Traces/A2")
	assert.Equal(t, ".tracing/A2", renamed.SupplementaryFolder())
	assert.True(t, old.Disposed())

	assert.False(t, f.store.Exists("Experiments/E/A"))
	assert.True(t, f.store.Exists("Experiments/E/A2"))
	exp := f.experiment(t, "E")
	require.Len(t, exp.Traces(), 1)
	assert.Same(t, renamed, exp.Traces()[0].ElementUnderTraceFolder())

	assert.Error(t, renamed.Rename("A2"))
}

func TestTraceCopy(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/sub/A", typeA)
	require.NoError(t, f.store.CreateFile(".tracing/sub/A/stats.ht", nil))
	f.project.Refresh()

	copied, err := f.trace(t, "Traces/sub/A").CopyTrace("B")
	require.NoError(t, err)

	assert.Equal(t, "Traces/sub/B", copied.Path())
	assert.Equal(t, typeA, copied.TraceType())
	assert.True(t, f.store.Exists(".tracing/sub/B/stats.ht"))
	assert.True(t, f.store.Exists(".tracing/sub/A/stats.ht"))

	_, err = f.trace(t, "Traces/sub/A").CopyTrace("B")
	assert.Error(t, err)
}

func TestTraceBounds_CachedFromLiveTrace(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addExperiment(t, "E", "A")
	f.project.Refresh()
	tr := f.trace(t, "Traces/A")

	_, known := tr.StartTime()
	assert.False(t, known, "bounds are unknown until a live trace is seen")

	live := f.openTrace("Traces/A", typeA)
	live.SetBounds(10, 100)
	start, _ := tr.StartTime()
	end, _ := tr.EndTime()
	assert.Equal(t, int64(10), start)
	assert.Equal(t, int64(100), end)

	live.SetBounds(5, 80)
	start, _ = tr.StartTime()
	end, _ = tr.EndTime()
	assert.Equal(t, int64(5), start)
	assert.Equal(t, int64(100), end, "end never moves back")

	f.engine.Close("Traces/A")
	start, known = tr.StartTime()
	assert.True(t, known)
	assert.Equal(t, int64(5), start)

	ref := f.experiment(t, "E").Traces()[0]
	refStart, _ := ref.StartTime()
	assert.Equal(t, int64(5), refStart)

	tr.DeleteSupplementaryResources()
	_, known = tr.StartTime()
	assert.False(t, known)
	_, known = tr.EndTime()
	assert.False(t, known)
}

func TestTraceInstantiate(t *testing.T) {
	f := newFixture(t)
	f.addTrace(t, "Traces/A", typeA)
	f.addTrace(t, "Traces/raw", "")
	f.project.Refresh()

	_, err := f.trace(t, "Traces/raw").Instantiate()
	assert.Error(t, err)

	_, err = f.trace(t, "Traces/A").Instantiate()
	assert.Error(t, err, "no factory registered")
	assert.True(t, f.store.Exists(".tracing/A/.properties"))
}

func TestReportsAndOnDemand(t *testing.T) {
	f := newFixture(t)
	f.modules.RegisterOnDemand(analysisOnDemand("od.stats", typeA))
	f.addTrace(t, "Traces/A", typeA)
	f.project.Refresh()
	tr := f.trace(t, "Traces/A")

	onDemand := tr.OnDemandAnalyses().Analyses()
	require.Len(t, onDemand, 1)
	assert.Equal(t, "od.stats", onDemand[0].Definition().ID)

	reports := tr.Reports()
	rep := reports.AddReport("latency", "latency report")
	assert.Equal(t, "latency report", rep.Description())
	assert.Len(t, reports.Reports(), 1)
	replaced := reports.AddReport("latency", "again")
	assert.True(t, rep.Disposed())
	assert.Len(t, reports.Reports(), 1)

	f.project.Refresh()
	assert.Same(t, replaced, reports.Child("latency"))

	reports.RemoveReport(replaced)
	assert.Empty(t, reports.Reports())
	assert.True(t, replaced.Disposed())
}
